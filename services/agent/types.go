// Copyright (C) 2026 Prforge Authors (dev@prforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package agent

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// validate is the shared struct validator.
var validate = validator.New()

// TaskRequest describes one change request. Immutable once a task
// starts.
type TaskRequest struct {
	// Repository locates the target repository: "owner/repo" shorthand
	// or a full https URL.
	Repository string `json:"repository" validate:"required"`

	// Description is the user's intent in natural language.
	Description string `json:"description" validate:"required,min=3"`

	// BranchName is the feature branch. Derived from the description
	// and a timestamp when empty.
	BranchName string `json:"branch_name,omitempty"`

	// TargetBranch is the base branch. Defaults to "main".
	TargetBranch string `json:"target_branch,omitempty"`
}

// Validate checks the request's field constraints.
func (r *TaskRequest) Validate() error {
	return validate.Struct(r)
}

// Target returns the target branch, defaulting to main.
func (r *TaskRequest) Target() string {
	if r.TargetBranch != "" {
		return r.TargetBranch
	}
	return "main"
}

// RepoLocator identifies a repository by owner and name.
type RepoLocator struct {
	Owner string `json:"owner"`
	Repo  string `json:"repo"`
}

func (l RepoLocator) String() string {
	return l.Owner + "/" + l.Repo
}

// ParseRepoLocator parses "owner/repo" shorthand or a hosted https
// URL (with or without a trailing ".git") into a RepoLocator.
//
// Outputs:
//
//	RepoLocator - The parsed locator.
//	error - Wraps ErrInvalidRepoLocator when the input has no
//	recognizable owner/name shape.
func ParseRepoLocator(input string) (RepoLocator, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return RepoLocator{}, fmt.Errorf("%w: empty input", ErrInvalidRepoLocator)
	}

	if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		u, err := url.Parse(s)
		if err != nil {
			return RepoLocator{}, fmt.Errorf("%w: %q", ErrInvalidRepoLocator, input)
		}
		s = strings.Trim(u.Path, "/")
	}
	s = strings.TrimSuffix(s, ".git")

	parts := strings.Split(s, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return RepoLocator{}, fmt.Errorf("%w: %q", ErrInvalidRepoLocator, input)
	}
	for _, part := range parts {
		if strings.ContainsAny(part, " \t") {
			return RepoLocator{}, fmt.Errorf("%w: %q", ErrInvalidRepoLocator, input)
		}
	}

	return RepoLocator{Owner: parts[0], Repo: parts[1]}, nil
}

// DeriveBranchName builds a deterministic feature-branch name from
// the task description and a timestamp: "prforge/<slug>-<unix>".
func DeriveBranchName(description string, now time.Time) string {
	slug := slugify(description, 40)
	if slug == "" {
		slug = "task"
	}
	return fmt.Sprintf("prforge/%s-%d", slug, now.Unix())
}

// slugify lowercases s, maps runs of non-alphanumerics to single
// dashes, and truncates to maxLen.
func slugify(s string, maxLen int) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
		if b.Len() >= maxLen {
			break
		}
	}
	return strings.Trim(b.String(), "-")
}

// FileChange is one unit of work committed to a branch. Content is
// the complete file text, never a partial patch.
type FileChange struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	Action  string `json:"action"`
}

// File-change actions.
const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// validAction reports whether a is a recognized change action.
func validAction(a string) bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// TaskResult is the structured outcome of one task.
type TaskResult struct {
	Success    bool   `json:"success"`
	PRURL      string `json:"pr_url,omitempty"`
	BranchName string `json:"branch_name,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Status is the coarse lifecycle of a task.
type Status string

// Task statuses.
const (
	StatusIdle       Status = "idle"
	StatusConnecting Status = "connecting"
	StatusAnalyzing  Status = "analyzing"
	StatusGenerating Status = "generating"
	StatusCreatingPR Status = "creating_pr"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// AgentTaskState is the observable state of the current task.
type AgentTaskState struct {
	Status           Status         `json:"status"`
	CurrentRequest   *TaskRequest   `json:"current_request,omitempty"`
	GeneratedChanges []FileChange   `json:"generated_changes,omitempty"`
	Result           *TaskResult    `json:"result,omitempty"`
	ProgressMessages []string       `json:"progress_messages"`
	Plan             *ExecutionPlan `json:"plan,omitempty"`
}

// ToolCallRecord is an ephemeral record of one autonomous tool call,
// kept for loop-detection and history construction only.
type ToolCallRecord struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
	Result    string `json:"result,omitempty"`
	Error     string `json:"error,omitempty"`
}
