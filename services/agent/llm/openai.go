// Copyright (C) 2026 Prforge Authors (dev@prforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	defaultPrimaryModel  = "gpt-4o"
	defaultFallbackModel = "gpt-4o-mini"
)

// OpenAIRunner implements Runner against any OpenAI-compatible
// chat-completions endpoint.
//
// The runner carries a primary and a smaller fallback model: a request
// is attempted with the primary model first and, when that attempt
// fails with a non-transient model-side error, once more with the
// fallback. Transient failures are left to the RetryRunner above.
//
// Thread Safety: OpenAIRunner is safe for concurrent use.
type OpenAIRunner struct {
	client        *openai.Client
	primaryModel  string
	fallbackModel string
}

// OpenAIOption configures an OpenAIRunner.
type OpenAIOption func(*OpenAIRunner)

// WithModels sets the primary and fallback model identifiers.
func WithModels(primary, fallback string) OpenAIOption {
	return func(r *OpenAIRunner) {
		if primary != "" {
			r.primaryModel = primary
		}
		if fallback != "" {
			r.fallbackModel = fallback
		}
	}
}

// NewOpenAIRunner creates a runner for an OpenAI-compatible API.
//
// Description:
//
//	The API key is resolved from OPENAI_API_KEY, then the
//	/run/secrets/openai_api_key secret file. OPENAI_BASE_URL overrides
//	the endpoint for self-hosted compatible servers.
//
// Outputs:
//
//	*OpenAIRunner - The configured runner.
//	error - Non-nil if no API key could be resolved.
func NewOpenAIRunner(opts ...OpenAIOption) (*OpenAIRunner, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		if content, err := os.ReadFile("/run/secrets/openai_api_key"); err == nil {
			apiKey = strings.TrimSpace(string(content))
			slog.Info("Read model API key from secrets file")
		}
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is missing")
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		cfg.BaseURL = baseURL
		slog.Info("Using custom model endpoint", "base_url", baseURL)
	}

	r := &OpenAIRunner{
		client:        openai.NewClientWithConfig(cfg),
		primaryModel:  defaultPrimaryModel,
		fallbackModel: defaultFallbackModel,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run implements Runner.
func (r *OpenAIRunner) Run(ctx context.Context, request *Request) (*Response, error) {
	model := request.ModelOverride
	if model == "" {
		model = r.primaryModel
	}

	start := time.Now()
	resp, err := r.complete(ctx, model, request)
	if err != nil && model == r.primaryModel && r.fallbackModel != "" && !IsTransient(err) {
		slog.Warn("Primary model failed, trying fallback",
			"primary", model,
			"fallback", r.fallbackModel,
			"error", err,
		)
		resp, err = r.complete(ctx, r.fallbackModel, request)
	}
	if err != nil {
		return nil, err
	}

	resp.Duration = time.Since(start)
	return resp, nil
}

// complete performs one chat-completion call against a specific model.
func (r *OpenAIRunner) complete(ctx context.Context, model string, request *Request) (*Response, error) {
	req := openai.ChatCompletionRequest{
		Model:       model,
		MaxTokens:   request.MaxTokens,
		Temperature: request.Temperature,
		Messages:    buildMessages(request),
		Tools:       buildTools(request.Tools),
	}

	resp, err := r.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("chat completion (%s): %w", model, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion (%s): empty choices", model)
	}

	choice := resp.Choices[0]
	out := &Response{
		Content:    choice.Message.Content,
		TokensUsed: resp.Usage.TotalTokens,
		Model:      resp.Model,
		StopReason: stopReason(choice.FinishReason),
	}

	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}

	return out, nil
}

// Name implements Runner.
func (r *OpenAIRunner) Name() string {
	return "openai"
}

// Model implements Runner.
func (r *OpenAIRunner) Model() string {
	return r.primaryModel
}

// buildMessages converts the generic request into API messages.
func buildMessages(request *Request) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(request.Messages)+1)

	if request.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: request.SystemPrompt,
		})
	}

	for _, msg := range request.Messages {
		m := openai.ChatCompletionMessage{
			Role:       msg.Role,
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
		}
		for _, tc := range msg.ToolCalls {
			m.ToolCalls = append(m.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		messages = append(messages, m)
	}

	return messages
}

// buildTools converts tool specs into API function declarations.
func buildTools(specs []ToolSpec) []openai.Tool {
	if len(specs) == 0 {
		return nil
	}

	tools := make([]openai.Tool, 0, len(specs))
	for _, spec := range specs {
		params, err := json.Marshal(spec.Parameters)
		if err != nil {
			slog.Warn("Skipping tool with unserializable schema", "tool", spec.Name, "error", err)
			continue
		}
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  json.RawMessage(params),
			},
		})
	}
	return tools
}

// stopReason maps API finish reasons onto the Runner vocabulary.
func stopReason(reason openai.FinishReason) string {
	switch reason {
	case openai.FinishReasonToolCalls:
		return "tool_use"
	case openai.FinishReasonLength:
		return "max_tokens"
	default:
		return "end"
	}
}
