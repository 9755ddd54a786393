// Copyright (C) 2026 Prforge Authors (dev@prforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prforge/prforge/services/github"
)

// maxCommitBatch bounds how many files one commit_files call may
// touch. Larger batches are truncated with a warning.
const maxCommitBatch = 10

// TaskContext carries the per-task state the tools close over.
type TaskContext struct {
	// Client performs the remote repository operations.
	Client RepoClient

	// Owner and Repo identify the repository.
	Owner string
	Repo  string

	// BranchName is the feature branch for this task. Used as the
	// default when the model omits an explicit branch argument.
	BranchName string

	// TargetBranch is the base branch pull requests merge into.
	TargetBranch string

	// Description is the user's change request, used for default PR
	// titles and bodies.
	Description string

	// Progress appends a human-readable progress message. May be nil.
	Progress func(message string)
}

func (tc *TaskContext) progress(format string, args ...any) {
	if tc.Progress != nil {
		tc.Progress(fmt.Sprintf(format, args...))
	}
}

// NewCatalog builds the registry with the five repository tools bound
// to the given task context.
//
// Outputs:
//
//	*Registry - Registry containing get_repo_structure, read_file,
//	create_branch, commit_files, and create_pull_request.
func NewCatalog(tc *TaskContext) *Registry {
	registry := NewRegistry()
	registry.Register(newGetRepoStructureTool(tc))
	registry.Register(newReadFileTool(tc))
	registry.Register(newCreateBranchTool(tc))
	registry.Register(newCommitFilesTool(tc))
	registry.Register(newCreatePullRequestTool(tc))
	return registry
}

// instrument wraps a tool executor with metrics and logging.
func instrument(name string, fn func(ctx context.Context, args map[string]any) (map[string]any, error)) func(context.Context, map[string]any) (map[string]any, error) {
	return func(ctx context.Context, args map[string]any) (map[string]any, error) {
		start := time.Now()
		result, err := fn(ctx, args)
		toolDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

		if err != nil {
			toolExecutions.WithLabelValues(name, "error").Inc()
			slog.Warn("Tool execution failed", "tool", name, "error", err)
			return nil, err
		}
		toolExecutions.WithLabelValues(name, "success").Inc()
		slog.Debug("Tool executed", "tool", name, "duration", time.Since(start))
		return result, nil
	}
}

func newGetRepoStructureTool(tc *TaskContext) *Tool {
	return &Tool{
		Name: "get_repo_structure",
		Description: "List the immediate children (files and directories) of a path in the repository. " +
			"Omit path or pass an empty string to list the repository root. " +
			"Call this before reading files to discover real paths.",
		Parameters: objectSchema(map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Directory path to list. Empty lists the root.",
			},
		}),
		Execute: instrument("get_repo_structure", func(ctx context.Context, args map[string]any) (map[string]any, error) {
			path := stringArg(args, "path", "")

			entries, err := tc.Client.GetContents(ctx, tc.Owner, tc.Repo, path)
			if err != nil {
				return nil, fmt.Errorf("listing %q: %w", path, err)
			}

			listing := make([]map[string]any, 0, len(entries))
			for _, entry := range entries {
				listing = append(listing, map[string]any{
					"path": entry.Path,
					"type": entry.Type,
				})
			}

			label := path
			if label == "" {
				label = "/"
			}
			tc.progress("Listed %d entries under %s", len(listing), label)

			return map[string]any{
				"path":    path,
				"entries": listing,
			}, nil
		}),
	}
}

func newReadFileTool(tc *TaskContext) *Tool {
	return &Tool{
		Name: "read_file",
		Description: "Read the full text content of one file at an optional ref. " +
			"Only use paths previously returned by get_repo_structure.",
		Parameters: objectSchema(map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "File path within the repository.",
			},
			"ref": map[string]any{
				"type":        "string",
				"description": "Branch, tag, or commit to read from. Defaults to the default branch.",
			},
		}, "path"),
		Execute: instrument("read_file", func(ctx context.Context, args map[string]any) (map[string]any, error) {
			path := stringArg(args, "path", "")
			if path == "" {
				return nil, fmt.Errorf("read_file requires a non-empty path")
			}
			ref := stringArg(args, "ref", "")

			fc, err := tc.Client.GetFileContent(ctx, tc.Owner, tc.Repo, path, ref)
			if err != nil {
				if github.IsNotFound(err) {
					// Steer the model back to listing instead of
					// guessing further paths.
					return nil, fmt.Errorf("file %q not found; do not guess paths, call get_repo_structure to re-list the repository structure and use an exact path from its output", path)
				}
				return nil, fmt.Errorf("reading %q: %w", path, err)
			}

			tc.progress("Read %s (%d bytes)", path, len(fc.Content))

			return map[string]any{
				"path":    fc.Path,
				"content": fc.Content,
				"sha":     fc.SHA,
			}, nil
		}),
	}
}

func newCreateBranchTool(tc *TaskContext) *Tool {
	return &Tool{
		Name: "create_branch",
		Description: "Create a new branch pointing at the tip of an existing branch. " +
			"Succeeds if the branch already exists.",
		Parameters: objectSchema(map[string]any{
			"branch_name": map[string]any{
				"type":        "string",
				"description": "Name of the branch to create.",
			},
			"from_branch": map[string]any{
				"type":        "string",
				"description": "Source branch to fork from. Defaults to the target branch.",
			},
		}, "branch_name"),
		Execute: instrument("create_branch", func(ctx context.Context, args map[string]any) (map[string]any, error) {
			branch := stringArg(args, "branch_name", tc.BranchName)
			if branch == "" {
				return nil, fmt.Errorf("create_branch requires a branch_name")
			}
			from := stringArg(args, "from_branch", tc.TargetBranch)

			ref, err := tc.Client.GetRef(ctx, tc.Owner, tc.Repo, from)
			if err != nil {
				return nil, fmt.Errorf("resolving source branch %q: %w", from, err)
			}

			if err := tc.Client.CreateRef(ctx, tc.Owner, tc.Repo, branch, ref.Object.SHA); err != nil {
				// Plans get retried; an existing branch is success.
				if github.IsAlreadyExists(err) {
					tc.progress("Branch %s already exists, reusing it", branch)
					return map[string]any{
						"success":        true,
						"already_exists": true,
						"branch":         branch,
					}, nil
				}
				return nil, fmt.Errorf("creating branch %q: %w", branch, err)
			}

			tc.progress("Created branch %s from %s", branch, from)

			return map[string]any{
				"success": true,
				"branch":  branch,
				"from":    from,
			}, nil
		}),
	}
}

func newCommitFilesTool(tc *TaskContext) *Tool {
	return &Tool{
		Name: "commit_files",
		Description: "Commit a batch of file creations or updates to a branch. " +
			"Each change needs a path, the complete new file content (not a diff), and an action of create or update. " +
			"At most 10 files per call.",
		Parameters: objectSchema(map[string]any{
			"branch_name": map[string]any{
				"type":        "string",
				"description": "Branch to commit to.",
			},
			"changes": map[string]any{
				"type":        "array",
				"description": "File changes to commit.",
				"items": objectSchema(map[string]any{
					"path":    map[string]any{"type": "string"},
					"content": map[string]any{"type": "string"},
					"action": map[string]any{
						"type": "string",
						"enum": []string{"create", "update", "delete"},
					},
				}, "path", "content"),
			},
		}, "changes"),
		Execute: instrument("commit_files", func(ctx context.Context, args map[string]any) (map[string]any, error) {
			branch := stringArg(args, "branch_name", tc.BranchName)
			if branch == "" {
				return nil, fmt.Errorf("commit_files requires a branch_name")
			}

			changes, err := coerceChanges(args["changes"])
			if err != nil {
				return nil, err
			}

			changes = filterChanges(changes)
			if len(changes) == 0 {
				return nil, fmt.Errorf("no valid changes to commit; each change needs a non-empty path and full file content")
			}
			if len(changes) > maxCommitBatch {
				slog.Warn("Truncating commit batch",
					"requested", len(changes),
					"limit", maxCommitBatch,
				)
				tc.progress("Commit batch truncated from %d to %d files", len(changes), maxCommitBatch)
				changes = changes[:maxCommitBatch]
			}

			results := make([]map[string]any, 0, len(changes))
			successCount, errorCount := 0, 0

			for _, change := range changes {
				path := change["path"].(string)
				content := change["content"].(string)
				action := strings.ToLower(stringArg(change, "action", "update"))

				// The update endpoint needs the current blob sha; a
				// missing file just means this becomes a create.
				sha := ""
				if action != "create" {
					if existing, err := tc.Client.GetFileContent(ctx, tc.Owner, tc.Repo, path, branch); err == nil {
						sha = existing.SHA
					} else if !github.IsNotFound(err) {
						slog.Warn("Could not read current file revision, committing without it",
							"path", path,
							"error", err,
						)
					}
				}

				message := fmt.Sprintf("prforge: %s %s", action, path)
				if _, err := tc.Client.CreateOrUpdateFile(ctx, tc.Owner, tc.Repo, path, content, message, branch, sha); err != nil {
					errorCount++
					results = append(results, map[string]any{
						"path":   path,
						"status": "error",
						"error":  err.Error(),
					})
					tc.progress("Failed to commit %s: %v", path, err)
					continue
				}

				successCount++
				results = append(results, map[string]any{
					"path":   path,
					"status": "committed",
				})
				tc.progress("Committed %s to %s", path, branch)
			}

			return map[string]any{
				"branch":        branch,
				"results":       results,
				"success_count": successCount,
				"error_count":   errorCount,
			}, nil
		}),
	}
}

func newCreatePullRequestTool(tc *TaskContext) *Tool {
	return &Tool{
		Name: "create_pull_request",
		Description: "Open a pull request from a feature branch into the target branch. " +
			"Commit files to the branch first; an empty branch is rejected.",
		Parameters: objectSchema(map[string]any{
			"branch_name": map[string]any{
				"type":        "string",
				"description": "Feature branch with the committed changes.",
			},
			"target_branch": map[string]any{
				"type":        "string",
				"description": "Base branch to merge into. Defaults to the repository target branch.",
			},
			"title": map[string]any{
				"type":        "string",
				"description": "Pull request title. Defaults to a title derived from the task.",
			},
		}),
		Execute: instrument("create_pull_request", func(ctx context.Context, args map[string]any) (map[string]any, error) {
			branch := stringArg(args, "branch_name", tc.BranchName)
			if branch == "" {
				return nil, fmt.Errorf("create_pull_request requires a branch_name")
			}
			target := stringArg(args, "target_branch", tc.TargetBranch)
			title := stringArg(args, "title", defaultPRTitle(tc.Description))

			comparison, err := tc.Client.CompareCommits(ctx, tc.Owner, tc.Repo, target, branch)
			if err != nil {
				return nil, fmt.Errorf("preflight comparison of %s...%s failed: %w", target, branch, err)
			}
			if comparison.AheadBy <= 0 {
				return nil, fmt.Errorf("No commits on branch %q ahead of %q; commit files with commit_files before opening a pull request", branch, target)
			}

			pr, err := tc.Client.CreatePullRequest(ctx, tc.Owner, tc.Repo, title, prBody(tc.Description, branch), branch, target)
			if err != nil {
				if github.IsAlreadyExists(err) {
					tc.progress("Pull request for %s already exists", branch)
					return map[string]any{
						"success":        true,
						"already_exists": true,
						"branch":         branch,
					}, nil
				}
				return nil, fmt.Errorf("opening pull request: %w", err)
			}

			tc.progress("Opened pull request #%d: %s", pr.Number, pr.HTMLURL)

			return map[string]any{
				"success":   true,
				"branch":    branch,
				"pr_number": pr.Number,
				"pr_url":    pr.HTMLURL,
			}, nil
		}),
	}
}

// coerceChanges normalizes the changes argument into a slice of entry
// maps, re-parsing a JSON-encoded string if the model stringified the
// nested array.
func coerceChanges(v any) ([]map[string]any, error) {
	if s, ok := v.(string); ok {
		var decoded any
		if err := json.Unmarshal([]byte(s), &decoded); err != nil {
			return nil, fmt.Errorf("changes is a string but not valid JSON: %w", err)
		}
		v = decoded
	}

	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("changes must be an array of {path, content, action} objects")
	}

	entries := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if entry, ok := item.(map[string]any); ok {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

// filterChanges drops entries that cannot be committed: missing path
// or content, or delete actions (unsupported). Dropped entries are not
// errors.
func filterChanges(changes []map[string]any) []map[string]any {
	kept := make([]map[string]any, 0, len(changes))
	for _, change := range changes {
		path, _ := change["path"].(string)
		_, hasContent := change["content"].(string)
		action, _ := change["action"].(string)

		if path == "" || !hasContent {
			slog.Debug("Dropping change without path or content", "path", path)
			continue
		}
		if strings.EqualFold(action, "delete") {
			slog.Warn("Dropping unsupported delete action", "path", path)
			continue
		}
		kept = append(kept, change)
	}
	return kept
}

// defaultPRTitle derives a PR title from the task description.
func defaultPRTitle(description string) string {
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

// prBody renders the pull-request body.
func prBody(description, branch string) string {
	var b strings.Builder
	b.WriteString("## Summary\n\n")
	if strings.TrimSpace(description) != "" {
		b.WriteString(strings.TrimSpace(description))
	} else {
		b.WriteString("Automated change.")
	}
	b.WriteString("\n\n---\n")
	b.WriteString(fmt.Sprintf("Branch `%s`, opened automatically by prforge.\n", branch))
	return b.String()
}
