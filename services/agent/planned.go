// Copyright (C) 2026 Prforge Authors (dev@prforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/prforge/prforge/services/agent/tools"
	"github.com/prforge/prforge/services/github"
)

// fetchRepo limits for the context-gathering step.
const (
	maxContextDirs     = 5
	maxContextFileSize = 2000
)

// RunPlanned executes a task through the fixed seven-step pipeline.
//
// Description:
//
//	Steps run strictly in order; each is marked running, then
//	completed or error in the execution plan. The first fatal error
//	halts the plan, leaves the remaining steps pending, and surfaces
//	the message verbatim in the result.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	request - The task request.
//
// Outputs:
//
//	*TaskResult - Always non-nil; errors are carried in the result.
func (e *Executor) RunPlanned(ctx context.Context, request *TaskRequest) *TaskResult {
	if !e.taskMu.TryLock() {
		return &TaskResult{Success: false, Error: ErrTaskInProgress.Error()}
	}
	defer e.taskMu.Unlock()

	start := e.now()
	defer func() { taskDuration.WithLabelValues("planned").Observe(e.now().Sub(start).Seconds()) }()

	e.state.Begin(request)
	e.state.InitPlan()
	e.state.AppendProgress("Starting planned task for " + request.Repository)

	failStep := func(step int, message string) *TaskResult {
		e.state.SetPlanStep(step, StepError, message)
		return e.fail("planned", message)
	}

	// Step 1: validate input.
	e.state.SetPlanStep(0, StepRunning, "")
	if err := request.Validate(); err != nil {
		return failStep(0, "invalid request: "+err.Error())
	}
	loc, err := ParseRepoLocator(request.Repository)
	if err != nil {
		return failStep(0, err.Error())
	}
	e.state.SetPlanStep(0, StepCompleted, "")
	e.state.AppendProgress("Validated request for " + loc.String())

	// Step 2: ensure repository connection.
	e.state.SetPlanStep(1, StepRunning, "")
	client, err := e.ensureClient(ctx)
	if err != nil {
		return failStep(1, err.Error())
	}
	e.state.SetPlanStep(1, StepCompleted, "")
	e.state.AppendProgress("Connected to repository host")

	// Step 3: fetch repository context. Best effort; an empty context
	// is acceptable.
	e.state.SetStatus(StatusAnalyzing)
	e.state.SetPlanStep(2, StepRunning, "")
	repoContext := fetchRepoContext(ctx, client, loc, request.Target())
	e.state.SetPlanStep(2, StepCompleted, "")
	e.state.AppendProgress(fmt.Sprintf("Fetched repository context (%d bytes)", len(repoContext)))

	// Step 4: generate the change set.
	e.state.SetStatus(StatusGenerating)
	e.state.SetPlanStep(3, StepRunning, "")
	changes, err := e.generator.Generate(ctx, request, repoContext)
	if err != nil {
		return failStep(3, err.Error())
	}
	e.state.SetGeneratedChanges(changes)
	e.state.SetPlanStep(3, StepCompleted, "")
	e.state.AppendProgress(fmt.Sprintf("Generated %d file changes", len(changes)))

	// Step 5: create the feature branch.
	branch := e.branchFor(request)
	target := request.Target()
	e.state.SetPlanStep(4, StepRunning, "")
	if err := ensureBranch(ctx, client, loc, branch, target); err != nil {
		return failStep(4, err.Error())
	}
	e.state.SetPlanStep(4, StepCompleted, "")
	e.state.AppendProgress("Created branch " + branch)

	// Step 6: apply the changes. Per-file failures are logged, not
	// fatal; delete actions are unsupported and skipped.
	e.state.SetPlanStep(5, StepRunning, "")
	committed := e.applyChanges(ctx, client, loc, branch, changes)
	e.state.SetPlanStep(5, StepCompleted, "")
	e.state.AppendProgress(fmt.Sprintf("Committed %d of %d changes", committed, len(changes)))

	// Step 7: open the pull request.
	e.state.SetStatus(StatusCreatingPR)
	e.state.SetPlanStep(6, StepRunning, "")

	comparison, err := client.CompareCommits(ctx, loc.Owner, loc.Repo, target, branch)
	if err != nil {
		return failStep(6, fmt.Sprintf("preflight comparison of %s...%s failed: %v", target, branch, err))
	}
	if comparison.AheadBy <= 0 {
		return failStep(6, fmt.Sprintf("No commits on branch %q ahead of %q; nothing to open a pull request for", branch, target))
	}

	title := prTitle(request.Description)
	pr, err := client.CreatePullRequest(ctx, loc.Owner, loc.Repo, title, plannedPRBody(request, changes), branch, target)
	if err != nil {
		if github.IsAlreadyExists(err) {
			e.state.SetPlanStep(6, StepCompleted, "")
			e.state.AppendProgress("Pull request for " + branch + " already exists")
			return e.succeed("planned", "", branch)
		}
		return failStep(6, "opening pull request: "+err.Error())
	}

	e.state.SetPlanStep(6, StepCompleted, "")
	return e.succeed("planned", pr.HTMLURL, branch)
}

// applyChanges commits each change independently and returns how many
// succeeded.
func (e *Executor) applyChanges(ctx context.Context, client tools.RepoClient, loc RepoLocator, branch string, changes []FileChange) int {
	committed := 0
	for _, change := range changes {
		if change.Action == ActionDelete {
			slog.Warn("Skipping unsupported delete action", "path", change.Path)
			e.state.AppendProgress("Skipped unsupported delete of " + change.Path)
			continue
		}

		sha := ""
		if change.Action == ActionUpdate {
			if existing, err := client.GetFileContent(ctx, loc.Owner, loc.Repo, change.Path, branch); err == nil {
				sha = existing.SHA
			} else if !github.IsNotFound(err) {
				slog.Warn("Could not read current file revision", "path", change.Path, "error", err)
			}
		}

		message := fmt.Sprintf("prforge: %s %s", change.Action, change.Path)
		if _, err := client.CreateOrUpdateFile(ctx, loc.Owner, loc.Repo, change.Path, change.Content, message, branch, sha); err != nil {
			slog.Warn("Commit failed", "path", change.Path, "error", err)
			e.state.AppendProgress(fmt.Sprintf("Failed to commit %s: %v", change.Path, err))
			continue
		}
		committed++
		e.state.AppendProgress("Committed " + change.Path)
	}
	return committed
}

// fetchRepoContext gathers a structure summary plus opportunistic
// reads of README.md and index.html. Failures are logged, never
// fatal.
func fetchRepoContext(ctx context.Context, client tools.RepoClient, loc RepoLocator, ref string) string {
	var b strings.Builder

	rootEntries, err := client.GetContents(ctx, loc.Owner, loc.Repo, "")
	if err != nil {
		slog.Warn("Could not list repository root", "repo", loc.String(), "error", err)
		return ""
	}

	b.WriteString("Structure:\n")
	dirs := make([]string, 0, maxContextDirs)
	for _, entry := range rootEntries {
		fmt.Fprintf(&b, "  %s (%s)\n", entry.Path, entry.Type)
		if entry.Type == "dir" && len(dirs) < maxContextDirs {
			dirs = append(dirs, entry.Path)
		}
	}
	for _, dir := range dirs {
		children, err := client.GetContents(ctx, loc.Owner, loc.Repo, dir)
		if err != nil {
			slog.Debug("Could not list subdirectory", "path", dir, "error", err)
			continue
		}
		for _, child := range children {
			fmt.Fprintf(&b, "  %s (%s)\n", child.Path, child.Type)
		}
	}

	for _, path := range []string{"README.md", "index.html"} {
		fc, err := client.GetFileContent(ctx, loc.Owner, loc.Repo, path, ref)
		if err != nil {
			continue
		}
		content := fc.Content
		if len(content) > maxContextFileSize {
			content = content[:maxContextFileSize] + "\n...(truncated)"
		}
		fmt.Fprintf(&b, "\n--- %s ---\n%s\n", path, content)
	}

	return b.String()
}

// prTitle derives a PR title from the description.
func prTitle(description string) string {
	title := strings.TrimSpace(description)
	if title == "" {
		return "Automated change"
	}
	if idx := strings.IndexAny(title, "\r\n"); idx >= 0 {
		title = title[:idx]
	}
	if len(title) > 72 {
		title = title[:69] + "..."
	}
	return title
}

// plannedPRBody renders the PR body with the change list.
func plannedPRBody(request *TaskRequest, changes []FileChange) string {
	var b strings.Builder
	b.WriteString("## Summary\n\n")
	b.WriteString(strings.TrimSpace(request.Description))
	b.WriteString("\n\n## Changes\n\n")
	for _, change := range changes {
		fmt.Fprintf(&b, "- `%s` (%s)\n", change.Path, change.Action)
	}
	b.WriteString("\n---\nOpened automatically by prforge.\n")
	return b.String()
}
