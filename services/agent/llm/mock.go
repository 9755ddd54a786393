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
	"sync"
)

// MockRunner is a scripted Runner for tests.
//
// Responses and errors are consumed from a queue in order; when the
// queue is empty the default response is returned. All requests are
// recorded for assertion.
//
// Thread Safety: MockRunner is safe for concurrent use.
type MockRunner struct {
	mu sync.Mutex

	name  string
	model string

	script          []scriptEntry
	defaultResponse *Response
	responseFunc    func(*Request) (*Response, error)
	requests        []*Request
}

type scriptEntry struct {
	response *Response
	err      error
}

// NewMockRunner creates a mock runner with a benign default response.
func NewMockRunner() *MockRunner {
	return &MockRunner{
		name:  "mock",
		model: "mock-model",
		defaultResponse: &Response{
			Content:    "done",
			StopReason: "end",
			TokensUsed: 42,
		},
	}
}

// QueueResponse appends a response to the script.
func (m *MockRunner) QueueResponse(resp *Response) *MockRunner {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, scriptEntry{response: resp})
	return m
}

// QueueError appends an error to the script.
func (m *MockRunner) QueueError(err error) *MockRunner {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, scriptEntry{err: err})
	return m
}

// QueueToolCall appends a response requesting a single tool call.
func (m *MockRunner) QueueToolCall(toolName string, arguments map[string]any) *MockRunner {
	argsJSON, _ := json.Marshal(arguments)

	m.mu.Lock()
	id := fmt.Sprintf("call_%d", len(m.script))
	m.mu.Unlock()

	return m.QueueResponse(&Response{
		StopReason: "tool_use",
		ToolCalls: []ToolCall{{
			ID:        id,
			Name:      toolName,
			Arguments: string(argsJSON),
		}},
		TokensUsed: 42,
	})
}

// QueueText appends a plain-text response with no tool calls.
func (m *MockRunner) QueueText(content string) *MockRunner {
	return m.QueueResponse(&Response{
		Content:    content,
		StopReason: "end",
		TokensUsed: 42,
	})
}

// SetResponseFunc installs a dynamic response function, bypassing the
// script entirely.
func (m *MockRunner) SetResponseFunc(fn func(*Request) (*Response, error)) *MockRunner {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responseFunc = fn
	return m
}

// Run implements Runner.
func (m *MockRunner) Run(ctx context.Context, request *Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, request)

	if m.responseFunc != nil {
		return m.responseFunc(request)
	}

	if len(m.script) > 0 {
		entry := m.script[0]
		m.script = m.script[1:]
		if entry.err != nil {
			return nil, entry.err
		}
		resp := *entry.response
		resp.Model = m.model
		return &resp, nil
	}

	resp := *m.defaultResponse
	resp.Model = m.model
	return &resp, nil
}

// Name implements Runner.
func (m *MockRunner) Name() string {
	return m.name
}

// Model implements Runner.
func (m *MockRunner) Model() string {
	return m.model
}

// CallCount returns the number of Run invocations.
func (m *MockRunner) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Requests returns a copy of all recorded requests.
func (m *MockRunner) Requests() []*Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// LastRequest returns the most recent request, or nil.
func (m *MockRunner) LastRequest() *Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return nil
	}
	return m.requests[len(m.requests)-1]
}
