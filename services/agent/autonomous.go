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
	"github.com/prforge/prforge/services/agent/tools"
)

const (
	// maxSteps bounds the number of model invocations per autonomous
	// task.
	maxSteps = 15

	// maxRepeatedCalls is how many times an identical tool-call batch
	// may execute before a corrective nudge is injected instead.
	maxRepeatedCalls = 2
)

const autonomousSystemPrompt = `You are an autonomous software engineering agent. You are given a change request for a repository and a set of tools to inspect it, commit file changes to a feature branch, and open a pull request.

Work step by step:
1. List the repository structure and read the files relevant to the request.
2. Commit your changes to the feature branch with commit_files. Always provide the complete new file content, never a diff.
3. Open a pull request with create_pull_request once the changes are committed.

Only use file paths returned by get_repo_structure. The task is finished when the pull request is open.`

// RunAutonomous executes a task by driving the model through a
// bounded reasoning/acting loop over the tool catalog.
//
// Description:
//
//	Each iteration sends the full message history and the tool schema
//	catalog to the model, executes the requested tool calls
//	sequentially, and feeds results (or errors) back as observations.
//	Repeated identical call batches are skipped and answered with a
//	corrective nudge. A successful create_pull_request ends the loop
//	immediately.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	request - The task request.
//
// Outputs:
//
//	*TaskResult - Always non-nil; errors are carried in the result,
//	never panicked or returned past the task boundary.
func (e *Executor) RunAutonomous(ctx context.Context, request *TaskRequest) *TaskResult {
	if !e.taskMu.TryLock() {
		return &TaskResult{Success: false, Error: ErrTaskInProgress.Error()}
	}
	defer e.taskMu.Unlock()

	start := e.now()
	defer func() { taskDuration.WithLabelValues("autonomous").Observe(e.now().Sub(start).Seconds()) }()

	e.state.Begin(request)
	e.state.AppendProgress("Starting autonomous task for " + request.Repository)

	if err := request.Validate(); err != nil {
		return e.fail("autonomous", "invalid request: "+err.Error())
	}
	loc, err := ParseRepoLocator(request.Repository)
	if err != nil {
		return e.fail("autonomous", err.Error())
	}

	client, err := e.ensureClient(ctx)
	if err != nil {
		return e.fail("autonomous", err.Error())
	}

	branch := e.branchFor(request)
	target := request.Target()

	tc := &tools.TaskContext{
		Client:       client,
		Owner:        loc.Owner,
		Repo:         loc.Repo,
		BranchName:   branch,
		TargetBranch: target,
		Description:  request.Description,
		Progress:     e.state.AppendProgress,
	}
	registry := tools.NewCatalog(tc)

	// The PR head must resolve even if the model never calls
	// create_branch itself.
	if err := ensureBranch(ctx, client, loc, branch, target); err != nil {
		return e.fail("autonomous", err.Error())
	}
	e.state.AppendProgress("Working on branch " + branch)
	e.state.SetStatus(StatusAnalyzing)

	history := []llm.Message{{
		Role: "user",
		Content: fmt.Sprintf(
			"Repository: %s\nFeature branch: %s\nTarget branch: %s\n\nChange request:\n%s",
			loc, branch, target, request.Description,
		),
	}}

	var (
		lastSignature string
		repeats       int
		lastContent   string
		iterations    int
	)

	for step := 0; step < maxSteps; step++ {
		iterations++
		resp, err := e.runner.Run(ctx, &llm.Request{
			SystemPrompt: autonomousSystemPrompt,
			Messages:     history,
			Tools:        registry.Specs(),
			MaxTokens:    8192,
		})
		if err != nil {
			loopIterations.Observe(float64(iterations))
			return e.fail("autonomous", "model call failed: "+err.Error())
		}

		history = append(history, llm.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		if resp.Content != "" {
			lastContent = resp.Content
		}

		if !resp.HasToolCalls() {
			break
		}

		signature := callSignature(resp.ToolCalls)
		if signature == lastSignature {
			repeats++
		} else {
			repeats = 0
			lastSignature = signature
		}

		if repeats >= maxRepeatedCalls {
			slog.Warn("Repeated identical tool calls, injecting corrective nudge",
				"tool", resp.ToolCalls[0].Name,
				"repeats", repeats,
			)
			loopCorrections.Inc()
			e.state.AppendProgress("Model repeated " + resp.ToolCalls[0].Name + ", nudging it forward")

			for _, call := range resp.ToolCalls {
				history = append(history, toolResultMessage(call.ID, map[string]any{
					"error": "this exact call was already made; it was skipped",
				}))
			}
			history = append(history, llm.Message{
				Role:    "user",
				Content: correctiveNudge(resp.ToolCalls[0].Name),
			})

			repeats = 0
			lastSignature = ""
			continue
		}

		// Sequential on purpose: later calls observe earlier side
		// effects (commit before PR).
		done := false
		var prURL string
		for _, call := range resp.ToolCalls {
			result, execErr := e.executeCall(ctx, registry, call)
			if execErr != nil {
				history = append(history, toolResultMessage(call.ID, map[string]any{"error": execErr.Error()}))
				continue
			}
			history = append(history, toolResultMessage(call.ID, result))

			if call.Name == "create_pull_request" {
				if ok, _ := result["success"].(bool); ok {
					prURL, _ = result["pr_url"].(string)
					done = true
				}
			}
		}
		if done {
			loopIterations.Observe(float64(iterations))
			e.state.SetStatus(StatusCreatingPR)
			return e.succeed("autonomous", prURL, branch)
		}
	}

	loopIterations.Observe(float64(iterations))

	message := fmt.Sprintf("no pull request was opened within %d model invocations", maxSteps)
	if lastContent != "" {
		message += ": " + truncateMessage(lastContent, 300)
	}
	return e.fail("autonomous", message)
}

// executeCall resolves and runs one tool call.
func (e *Executor) executeCall(ctx context.Context, registry *tools.Registry, call llm.ToolCall) (map[string]any, error) {
	tool, ok := registry.Get(call.Name)
	if !ok {
		return nil, fmt.Errorf("unknown tool %q; available tools: %s", call.Name, strings.Join(registry.Names(), ", "))
	}

	args, err := tools.ParseArguments(call.Arguments)
	if err != nil {
		return nil, err
	}

	return tool.Execute(ctx, args)
}

// callSignature fingerprints a tool-call batch for loop detection.
func callSignature(calls []llm.ToolCall) string {
	var b strings.Builder
	for _, call := range calls {
		b.WriteString(call.Name)
		b.WriteString(":")
		b.WriteString(call.Arguments)
		b.WriteString("|")
	}
	return b.String()
}

// toolResultMessage renders a tool result (or error) as a tool-role
// observation.
func toolResultMessage(callID string, payload map[string]any) llm.Message {
	content, err := json.Marshal(payload)
	if err != nil {
		content = []byte(`{"error":"unserializable tool result"}`)
	}
	return llm.Message{
		Role:       "tool",
		ToolCallID: callID,
		Content:    string(content),
	}
}

// correctiveNudge names the repeated tool and spells out concrete next
// steps.
func correctiveNudge(toolName string) string {
	return fmt.Sprintf(
		"You have repeated the exact same %s call multiple times; it was not executed again. "+
			"Change your approach: if you have already committed your file changes, call create_pull_request now to finish the task. "+
			"Otherwise, read the files you need with read_file and commit the complete updated content with commit_files. "+
			"Do not issue the same call with the same arguments again.",
		toolName,
	)
}

func truncateMessage(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
