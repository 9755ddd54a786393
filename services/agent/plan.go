// Copyright (C) 2026 Prforge Authors (dev@prforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package agent

import "time"

// StepStatus is the lifecycle of one plan step.
type StepStatus string

// Plan-step statuses.
const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepSkipped   StepStatus = "skipped"
	StepError     StepStatus = "error"
)

// terminal reports whether a step status is final.
func (s StepStatus) terminal() bool {
	return s == StepCompleted || s == StepSkipped || s == StepError
}

// The seven fixed step identifiers of the planned pipeline, in
// execution order.
const (
	StepValidateInput   = "validate_input"
	StepEnsureGitHub    = "ensure_github"
	StepFetchRepo       = "fetch_repo"
	StepGenerateChanges = "generate_changes"
	StepCreateBranch    = "create_branch"
	StepApplyChanges    = "apply_changes"
	StepCreatePR        = "create_pr"
)

// PlanStep is one unit of the fixed pipeline.
type PlanStep struct {
	ID          string     `json:"id"`
	Label       string     `json:"label"`
	Status      StepStatus `json:"status"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// ExecutionPlan is the ordered seven-step pipeline plus a cursor.
//
// Steps complete strictly left to right; a step runs only after all
// prior steps completed, and the first error halts the plan.
type ExecutionPlan struct {
	Steps            []PlanStep `json:"steps"`
	CurrentStepIndex int        `json:"current_step_index"`
}

// NewExecutionPlan creates the pipeline with all steps pending.
func NewExecutionPlan() *ExecutionPlan {
	mk := func(id, label string) PlanStep {
		return PlanStep{ID: id, Label: label, Status: StepPending}
	}
	return &ExecutionPlan{
		Steps: []PlanStep{
			mk(StepValidateInput, "Validate input"),
			mk(StepEnsureGitHub, "Connect to repository host"),
			mk(StepFetchRepo, "Fetch repository context"),
			mk(StepGenerateChanges, "Generate changes"),
			mk(StepCreateBranch, "Create branch"),
			mk(StepApplyChanges, "Apply changes"),
			mk(StepCreatePR, "Create pull request"),
		},
	}
}

// setStep applies a status transition to step i.
//
// Description:
//
//	Transitions are monotonic: a terminal step never regresses, and a
//	running step only advances to a terminal status. Out-of-range
//	indexes and regressions are ignored rather than panicking, since
//	the tracker serializes writers.
func (p *ExecutionPlan) setStep(i int, status StepStatus, errMsg string) {
	if i < 0 || i >= len(p.Steps) {
		return
	}
	step := &p.Steps[i]

	if step.Status.terminal() {
		return
	}
	if step.Status == StepRunning && status == StepPending {
		return
	}

	now := time.Now()
	switch status {
	case StepRunning:
		step.StartedAt = &now
		p.CurrentStepIndex = i
	case StepCompleted, StepSkipped, StepError:
		step.CompletedAt = &now
	}
	step.Status = status
	step.Error = errMsg
}

// clone returns a deep copy of the plan.
func (p *ExecutionPlan) clone() *ExecutionPlan {
	if p == nil {
		return nil
	}
	out := &ExecutionPlan{
		Steps:            make([]PlanStep, len(p.Steps)),
		CurrentStepIndex: p.CurrentStepIndex,
	}
	copy(out.Steps, p.Steps)
	for i := range out.Steps {
		if p.Steps[i].StartedAt != nil {
			t := *p.Steps[i].StartedAt
			out.Steps[i].StartedAt = &t
		}
		if p.Steps[i].CompletedAt != nil {
			t := *p.Steps[i].CompletedAt
			out.Steps[i].CompletedAt = &t
		}
	}
	return out
}
