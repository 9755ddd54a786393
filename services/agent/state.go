// Copyright (C) 2026 Prforge Authors (dev@prforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package agent

import (
	"log/slog"
	"sync"
)

// StateTracker owns the observable state of one agent instance.
//
// A single executor writes; external observers read snapshots. Starting
// a new task clears the previous task's result, progress, and plan.
//
// Thread Safety:
//
//	StateTracker is safe for concurrent use.
type StateTracker struct {
	mu    sync.RWMutex
	state AgentTaskState
}

// NewStateTracker creates a tracker in the idle state.
func NewStateTracker() *StateTracker {
	return &StateTracker{
		state: AgentTaskState{Status: StatusIdle},
	}
}

// Begin resets the tracker for a fresh task.
func (t *StateTracker) Begin(request *TaskRequest) {
	t.mu.Lock()
	defer t.mu.Unlock()

	req := *request
	t.state = AgentTaskState{
		Status:           StatusConnecting,
		CurrentRequest:   &req,
		ProgressMessages: nil,
	}
}

// SetStatus updates the coarse task status.
func (t *StateTracker) SetStatus(status Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.Status = status
}

// AppendProgress appends one human-readable progress message.
//
// Messages are strictly append-only and observed in production order.
func (t *StateTracker) AppendProgress(message string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.state.ProgressMessages = append(t.state.ProgressMessages, message)
	slog.Info("Task progress", "message", message)
}

// InitPlan installs a fresh execution plan (planned mode only).
func (t *StateTracker) InitPlan() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.Plan = NewExecutionPlan()
}

// SetPlanStep transitions plan step i to the given status.
func (t *StateTracker) SetPlanStep(i int, status StepStatus, errMsg string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state.Plan == nil {
		return
	}
	t.state.Plan.setStep(i, status, errMsg)
}

// SetGeneratedChanges records the change set produced for this task.
func (t *StateTracker) SetGeneratedChanges(changes []FileChange) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.state.GeneratedChanges = make([]FileChange, len(changes))
	copy(t.state.GeneratedChanges, changes)
}

// Finish records the terminal result and status.
func (t *StateTracker) Finish(result *TaskResult) {
	t.mu.Lock()
	defer t.mu.Unlock()

	res := *result
	t.state.Result = &res
	if res.Success {
		t.state.Status = StatusCompleted
	} else {
		t.state.Status = StatusError
	}
}

// Snapshot returns a deep copy of the current state.
//
// Thread Safety: safe to call from any goroutine; the returned value
// shares no memory with the tracker.
func (t *StateTracker) Snapshot() AgentTaskState {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := AgentTaskState{
		Status: t.state.Status,
	}
	if t.state.CurrentRequest != nil {
		req := *t.state.CurrentRequest
		out.CurrentRequest = &req
	}
	if t.state.Result != nil {
		res := *t.state.Result
		out.Result = &res
	}
	if len(t.state.GeneratedChanges) > 0 {
		out.GeneratedChanges = make([]FileChange, len(t.state.GeneratedChanges))
		copy(out.GeneratedChanges, t.state.GeneratedChanges)
	}
	if len(t.state.ProgressMessages) > 0 {
		out.ProgressMessages = make([]string, len(t.state.ProgressMessages))
		copy(out.ProgressMessages, t.state.ProgressMessages)
	}
	out.Plan = t.state.Plan.clone()
	return out
}
