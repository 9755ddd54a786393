// Copyright (C) 2026 Prforge Authors (dev@prforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/prforge/prforge/services/agent/llm"
)

const (
	// generatorAttemptsMax bounds how often the generator re-prompts
	// the model after a rejected change set.
	generatorAttemptsMax = 3

	// repoContextLimit caps how much repository context is embedded in
	// the generation prompt.
	repoContextLimit = 6000

	// rejectionMarker prefixes the corrective feedback block added to
	// the prompt after a failed attempt.
	rejectionMarker = "PREVIOUS ATTEMPT WAS REJECTED"
)

const generatorSystemPrompt = `You are a software engineer producing file changes for a repository.
Respond with ONLY a JSON array of change objects, no prose and no markdown fences.
Each object has exactly these fields:
  "path": the file path (string, required),
  "content": the COMPLETE new file content, never a partial diff (string, required),
  "action": one of "create", "update", "delete".
`

// Generator turns a task description plus repository context into a
// validated list of file changes.
//
// Invalid model output is retried with explicit corrective feedback
// embedded in the next prompt.
type Generator struct {
	runner      llm.Runner
	maxAttempts int
	maxTokens   int
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithGeneratorAttempts overrides the attempt budget.
func WithGeneratorAttempts(n int) GeneratorOption {
	return func(g *Generator) {
		if n > 0 {
			g.maxAttempts = n
		}
	}
}

// NewGenerator creates a change-set generator backed by runner.
func NewGenerator(runner llm.Runner, opts ...GeneratorOption) *Generator {
	g := &Generator{
		runner:      runner,
		maxAttempts: generatorAttemptsMax,
		maxTokens:   8192,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate produces a validated change set for the request.
//
// Description:
//
//	Prompts the model for a JSON array of {path, content, action}
//	objects and structurally validates the reply. Each failed attempt
//	augments the next prompt with the rejection reason so the model
//	can self-correct. Exhausting the budget returns the last
//	validation error.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	request - The task request.
//	repoContext - Repository structure and file excerpts for grounding.
//	May be empty.
//
// Outputs:
//
//	[]FileChange - The validated, non-empty change list.
//	error - Non-nil after all attempts failed.
func (g *Generator) Generate(ctx context.Context, request *TaskRequest, repoContext string) ([]FileChange, error) {
	var lastErr error

	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		prompt := g.buildPrompt(request, repoContext, lastErr)

		resp, err := g.runner.Run(ctx, &llm.Request{
			SystemPrompt: generatorSystemPrompt,
			Messages: []llm.Message{
				{Role: "user", Content: prompt},
			},
			MaxTokens: g.maxTokens,
		})
		if err != nil {
			generatorAttempts.WithLabelValues("model_error").Inc()
			return nil, fmt.Errorf("generating changes: %w", err)
		}

		changes, err := parseChangeSet(resp.Content)
		if err != nil {
			generatorAttempts.WithLabelValues("rejected").Inc()
			slog.Warn("Change set rejected",
				"attempt", attempt+1,
				"max_attempts", g.maxAttempts,
				"error", err,
			)
			lastErr = err
			continue
		}

		generatorAttempts.WithLabelValues("accepted").Inc()
		return changes, nil
	}

	return nil, fmt.Errorf("%w after %d attempts: %v", ErrNoChanges, g.maxAttempts, lastErr)
}

// buildPrompt renders the generation prompt, appending corrective
// feedback when the previous attempt was rejected.
func (g *Generator) buildPrompt(request *TaskRequest, repoContext string, rejection error) string {
	var b strings.Builder

	b.WriteString("Task: ")
	b.WriteString(strings.TrimSpace(request.Description))
	b.WriteString("\n\nRepository: ")
	b.WriteString(request.Repository)
	b.WriteString("\n")

	if repoContext != "" {
		if len(repoContext) > repoContextLimit {
			repoContext = repoContext[:repoContextLimit] + "\n...(truncated)"
		}
		b.WriteString("\nRepository context:\n")
		b.WriteString(repoContext)
		b.WriteString("\n")
	}

	b.WriteString("\nProduce the JSON array of file changes now.")

	if rejection != nil {
		b.WriteString("\n\n")
		b.WriteString(rejectionMarker)
		b.WriteString(": ")
		b.WriteString(rejection.Error())
		b.WriteString("\nFix the problem and respond again with only the corrected JSON array.")
	}

	return b.String()
}

// parseChangeSet extracts, parses, and validates the model's reply.
func parseChangeSet(raw string) ([]FileChange, error) {
	payload, err := extractJSONArray(raw)
	if err != nil {
		return nil, err
	}

	var elements []map[string]any
	if err := json.Unmarshal([]byte(payload), &elements); err != nil {
		return nil, fmt.Errorf("response is not a valid JSON array: %v", err)
	}
	if len(elements) == 0 {
		return nil, fmt.Errorf("change list must not be empty")
	}

	changes := make([]FileChange, 0, len(elements))
	for i, element := range elements {
		path, ok := element["path"].(string)
		if !ok || path == "" {
			return nil, fmt.Errorf("change %d: \"path\" must be a non-empty string", i)
		}
		content, ok := element["content"].(string)
		if !ok {
			return nil, fmt.Errorf("change %d (%s): \"content\" must be a string with the full file text", i, path)
		}
		action, ok := element["action"].(string)
		if !ok || !validAction(action) {
			return nil, fmt.Errorf("change %d (%s): \"action\" must be one of create, update, delete", i, path)
		}
		changes = append(changes, FileChange{Path: path, Content: content, Action: action})
	}

	return changes, nil
}

// extractJSONArray strips markdown fences and returns the substring
// between the first '[' and the last ']'.
func extractJSONArray(raw string) (string, error) {
	s := raw
	for _, fence := range []string{"```json", "```JSON", "```"} {
		s = strings.ReplaceAll(s, fence, "")
	}

	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start < 0 || end <= start {
		return "", fmt.Errorf("response contains no JSON array")
	}
	return s[start : end+1], nil
}
