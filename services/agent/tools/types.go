// Copyright (C) 2026 Prforge Authors (dev@prforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package tools provides the fixed catalog of repository-manipulation
// operations exposed to the model: structure listing, file reads,
// branch creation, batched commits, and pull-request opening.
//
// Each tool is a schema-described closure over per-task context (the
// repository client, the repo locator, and a progress callback). Tool
// failures are returned as values so the control loop can hand them
// back to the model as observations.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/prforge/prforge/services/agent/llm"
	"github.com/prforge/prforge/services/github"
)

// RepoClient is the subset of repository operations the tools need.
//
// *github.Client satisfies this; tests substitute a fake.
type RepoClient interface {
	GetContents(ctx context.Context, owner, repo, path string) ([]github.ContentEntry, error)
	GetFileContent(ctx context.Context, owner, repo, path, ref string) (*github.FileContent, error)
	GetRef(ctx context.Context, owner, repo, branch string) (*github.Ref, error)
	CreateRef(ctx context.Context, owner, repo, branch, sha string) error
	CreateOrUpdateFile(ctx context.Context, owner, repo, path, content, message, branch, sha string) (*github.CommitResult, error)
	CreatePullRequest(ctx context.Context, owner, repo, title, body, head, base string) (*github.PullRequest, error)
	CompareCommits(ctx context.Context, owner, repo, base, head string) (*github.Comparison, error)
}

// Tool is one named operation in the catalog.
//
// Execute returns a JSON-able result map. A returned error means the
// operation failed in a way the model should observe and adapt to; the
// caller converts it into an {error: message} payload rather than
// aborting the task.
type Tool struct {
	// Name is the unique tool name.
	Name string

	// Description tells the model when to invoke the tool.
	Description string

	// Parameters is the JSON schema of the tool's arguments.
	Parameters map[string]any

	// Execute runs the tool with parsed arguments.
	Execute func(ctx context.Context, args map[string]any) (map[string]any, error)
}

// Spec converts the tool into the shape the model runner expects.
func (t *Tool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        t.Name,
		Description: t.Description,
		Parameters:  t.Parameters,
	}
}

// ParseArguments decodes a tool-call argument payload.
//
// Description:
//
//	Models occasionally double-encode nested structures, delivering a
//	JSON string whose content is itself JSON. If the first decode
//	yields a string, it is decoded once more before giving up.
//
// Inputs:
//
//	raw - The raw argument JSON from the model. Empty means no args.
//
// Outputs:
//
//	map[string]any - The decoded arguments (never nil on success).
//	error - Non-nil if the payload is not a JSON object.
func ParseArguments(raw string) (map[string]any, error) {
	if raw == "" {
		return map[string]any{}, nil
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err == nil {
		return args, nil
	}

	var nested string
	if err := json.Unmarshal([]byte(raw), &nested); err == nil {
		if err := json.Unmarshal([]byte(nested), &args); err == nil {
			return args, nil
		}
	}

	return nil, fmt.Errorf("tool arguments are not a JSON object: %q", truncate(raw, 120))
}

// stringArg returns args[key] as a string, or fallback when absent.
func stringArg(args map[string]any, key, fallback string) string {
	if v, ok := args[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// objectSchema builds a JSON-schema object descriptor.
func objectSchema(properties map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
