// Copyright (C) 2026 Prforge Authors (dev@prforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noSleep(delays *[]time.Duration) RetryOption {
	return withSleep(func(_ context.Context, d time.Duration) error {
		if delays != nil {
			*delays = append(*delays, d)
		}
		return nil
	})
}

func TestRetryRunner_TransientThenSuccess(t *testing.T) {
	mock := NewMockRunner()
	mock.QueueError(errors.New("503 service unavailable"))
	mock.QueueText("recovered")

	runner := NewRetryRunner(mock, noSleep(nil))

	resp, err := runner.Run(context.Background(), &Request{})
	require.NoError(t, err)
	assert.Equal(t, "recovered", resp.Content)
	assert.Equal(t, 2, mock.CallCount())
}

func TestRetryRunner_NonTransientFailsImmediately(t *testing.T) {
	mock := NewMockRunner()
	mock.QueueError(errors.New("invalid api key"))

	runner := NewRetryRunner(mock, noSleep(nil))

	_, err := runner.Run(context.Background(), &Request{})
	require.Error(t, err)
	assert.Equal(t, 1, mock.CallCount())
}

func TestRetryRunner_ExhaustsBudget(t *testing.T) {
	mock := NewMockRunner()
	for i := 0; i < 4; i++ {
		mock.QueueError(errors.New("model is overloaded"))
	}

	runner := NewRetryRunner(mock, noSleep(nil))

	_, err := runner.Run(context.Background(), &Request{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed after 3 retries")
	assert.Equal(t, 4, mock.CallCount())
}

func TestRetryRunner_LinearBackoffSchedule(t *testing.T) {
	mock := NewMockRunner()
	mock.QueueError(errors.New("rate limit hit"))
	mock.QueueError(errors.New("rate limit hit"))
	mock.QueueError(errors.New("rate limit hit"))
	mock.QueueText("ok")

	var delays []time.Duration
	runner := NewRetryRunner(mock, noSleep(&delays))

	_, err := runner.Run(context.Background(), &Request{})
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}, delays)
}

func TestRetryRunner_SleepCancellation(t *testing.T) {
	mock := NewMockRunner()
	mock.QueueError(errors.New("temporarily unavailable"))

	ctx, cancel := context.WithCancel(context.Background())
	runner := NewRetryRunner(mock, withSleep(func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}))

	_, err := runner.Run(ctx, &Request{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, mock.CallCount())
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"context canceled", context.Canceled, false},
		{"deadline exceeded", context.DeadlineExceeded, false},
		{"api error 429", &openai.APIError{HTTPStatusCode: 429}, true},
		{"api error 500", &openai.APIError{HTTPStatusCode: 500}, true},
		{"api error 529", &openai.APIError{HTTPStatusCode: 529}, true},
		{"api error 400", &openai.APIError{HTTPStatusCode: 400}, false},
		{"api error 401", &openai.APIError{HTTPStatusCode: 401}, false},
		{"request error 503", &openai.RequestError{HTTPStatusCode: 503, Err: errors.New("x")}, true},
		{"rate limit text", errors.New("Rate Limit exceeded, slow down"), true},
		{"overloaded text", errors.New("the model is overloaded"), true},
		{"bad gateway text", errors.New("upstream returned Bad Gateway"), true},
		{"gateway timeout text", errors.New("gateway timeout while waiting"), true},
		{"service unavailable text", errors.New("Service Unavailable"), true},
		{"status code text", errors.New("unexpected status 502"), true},
		{"plain failure", errors.New("no such model"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestRetryRunner_DelegatesIdentity(t *testing.T) {
	mock := NewMockRunner()
	runner := NewRetryRunner(mock)
	assert.Equal(t, "mock", runner.Name())
	assert.Equal(t, "mock-model", runner.Model())
}
