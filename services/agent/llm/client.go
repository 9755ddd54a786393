// Copyright (C) 2026 Prforge Authors (dev@prforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package llm provides the model-runner interface for the agent
// executors, a retrying wrapper that absorbs transient upstream
// failures, and an OpenAI-compatible implementation.
//
// Executors depend only on the Runner interface; concrete runners are
// injected at construction time. Tests use MockRunner.
//
// Thread Safety:
//
//	All types in this package are designed for concurrent use.
package llm

import (
	"context"
	"time"
)

// Runner defines the interface for model invocations.
//
// Implementations must be safe for concurrent use.
type Runner interface {
	// Run sends a request to the model and returns its response.
	//
	// Inputs:
	//   ctx - Context for cancellation and timeout.
	//   request - The completion request.
	//
	// Outputs:
	//   *Response - The model response.
	//   error - Non-nil if the request failed.
	Run(ctx context.Context, request *Request) (*Response, error)

	// Name returns the provider name (e.g., "openai", "mock").
	Name() string

	// Model returns the default model identifier.
	Model() string
}

// Request represents a completion request to the model.
type Request struct {
	// SystemPrompt is the system message.
	SystemPrompt string `json:"system_prompt,omitempty"`

	// Messages is the conversation history.
	Messages []Message `json:"messages"`

	// Tools declares the operations the model may invoke.
	Tools []ToolSpec `json:"tools,omitempty"`

	// MaxTokens limits the response length.
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature controls randomness (0.0-1.0).
	Temperature float32 `json:"temperature,omitempty"`

	// ModelOverride selects a different model for this request.
	// Empty means the runner's default model.
	ModelOverride string `json:"model_override,omitempty"`
}

// Message represents a conversation message.
type Message struct {
	// Role is "user", "assistant", "system", or "tool".
	Role string `json:"role"`

	// Content is the text content.
	Content string `json:"content"`

	// ToolCalls contains tool invocations (for assistant messages).
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID links a tool-role message to the call it answers.
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// ToolCall represents a tool invocation requested by the model.
type ToolCall struct {
	// ID is a unique identifier for this call.
	ID string `json:"id"`

	// Name is the tool name.
	Name string `json:"name"`

	// Arguments are the tool arguments as raw JSON.
	Arguments string `json:"arguments"`
}

// ToolSpec describes one tool to the model.
//
// Parameters is a JSON-schema-shaped descriptor; the concrete shape is
// produced by the tools package and passed through untouched.
type ToolSpec struct {
	// Name is the unique tool name.
	Name string `json:"name"`

	// Description tells the model when to invoke the tool.
	Description string `json:"description"`

	// Parameters is the JSON schema of the tool's arguments.
	Parameters any `json:"parameters"`
}

// Response represents a model response.
type Response struct {
	// Content is the text response.
	Content string `json:"content"`

	// ToolCalls contains any tool calls the model wants to make.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// StopReason indicates why generation stopped.
	// Values: "end", "max_tokens", "tool_use".
	StopReason string `json:"stop_reason"`

	// TokensUsed is the total tokens consumed (input + output).
	TokensUsed int `json:"tokens_used"`

	// Duration is how long the request took.
	Duration time.Duration `json:"duration"`

	// Model is the model that generated this response.
	Model string `json:"model,omitempty"`
}

// HasToolCalls returns true if the response contains tool calls.
func (r *Response) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}
