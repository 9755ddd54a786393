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
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	openai "github.com/sashabaranov/go-openai"
)

var retryAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "prforge",
	Subsystem: "llm",
	Name:      "retry_attempts_total",
	Help:      "Model call retries, by outcome.",
}, []string{"outcome"})

// transientSignatures are upstream-unavailability markers matched as
// substrings when the error carries no structured status. Kept for
// compatibility with runners that only surface message text.
var transientSignatures = []string{
	"rate limit",
	"overloaded",
	"temporarily unavailable",
	"bad gateway",
	"gateway timeout",
	"service unavailable",
	"429",
	"502",
	"503",
	"529",
}

// IsTransient reports whether err looks like a transient upstream
// failure worth retrying.
//
// Description:
//
//	Structured checks run first: an OpenAI-style API error with HTTP
//	status 429 or 5xx is transient. Only untyped errors fall back to
//	substring matching on the known unavailability signatures.
//	Context cancellation is never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == 429 || reqErr.HTTPStatusCode >= 500
	}

	msg := strings.ToLower(err.Error())
	for _, sig := range transientSignatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}

// RetryRunner wraps a Runner with transient-failure retries.
//
// This wrapper is the sole point where model flakiness is absorbed;
// callers above it treat a successful return as authoritative.
//
// Thread Safety: RetryRunner is safe for concurrent use.
type RetryRunner struct {
	inner      Runner
	maxRetries int
	baseDelay  time.Duration
	sleep      func(context.Context, time.Duration) error
}

// RetryOption configures a RetryRunner.
type RetryOption func(*RetryRunner)

// WithMaxRetries sets the retry budget (default 3).
func WithMaxRetries(n int) RetryOption {
	return func(r *RetryRunner) {
		r.maxRetries = n
	}
}

// WithBaseDelay sets the backoff unit (default 1s). Attempt n sleeps
// baseDelay*(n+1): 1s, 2s, 3s with the defaults.
func WithBaseDelay(d time.Duration) RetryOption {
	return func(r *RetryRunner) {
		r.baseDelay = d
	}
}

// withSleep replaces the sleep function. Test hook.
func withSleep(fn func(context.Context, time.Duration) error) RetryOption {
	return func(r *RetryRunner) {
		r.sleep = fn
	}
}

// NewRetryRunner wraps inner with retry/backoff behavior.
//
// Inputs:
//
//	inner - The runner to wrap. Must not be nil.
//	opts - Configuration options.
//
// Outputs:
//
//	*RetryRunner - The wrapping runner.
func NewRetryRunner(inner Runner, opts ...RetryOption) *RetryRunner {
	r := &RetryRunner{
		inner:      inner,
		maxRetries: 3,
		baseDelay:  time.Second,
		sleep:      sleepCtx,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run implements Runner.
//
// Description:
//
//	Invokes the wrapped runner. Transient failures are retried with a
//	linearly increasing delay while budget remains; non-transient
//	errors propagate immediately. Exhausting the budget returns the
//	last error.
func (r *RetryRunner) Run(ctx context.Context, request *Request) (*Response, error) {
	var lastErr error

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			delay := r.baseDelay * time.Duration(attempt)
			slog.Warn("Retrying model call",
				"attempt", attempt,
				"max_retries", r.maxRetries,
				"delay", delay,
				"error", lastErr,
			)
			retryAttempts.WithLabelValues("retried").Inc()
			if err := r.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		resp, err := r.inner.Run(ctx, request)
		if err == nil {
			return resp, nil
		}
		if !IsTransient(err) {
			retryAttempts.WithLabelValues("fatal").Inc()
			return nil, err
		}
		lastErr = err
	}

	retryAttempts.WithLabelValues("exhausted").Inc()
	return nil, fmt.Errorf("model call failed after %d retries: %w", r.maxRetries, lastErr)
}

// Name implements Runner.
func (r *RetryRunner) Name() string {
	return r.inner.Name()
}

// Model implements Runner.
func (r *RetryRunner) Model() string {
	return r.inner.Model()
}

// sleepCtx sleeps for d unless ctx is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
