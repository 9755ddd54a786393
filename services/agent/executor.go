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
	"sync"
	"time"

	"github.com/prforge/prforge/services/agent/llm"
	"github.com/prforge/prforge/services/agent/tools"
	"github.com/prforge/prforge/services/github"
)

// ConnectFunc lazily constructs a repository client from stored
// credentials.
type ConnectFunc func(ctx context.Context) (tools.RepoClient, error)

// Executor runs tasks in either autonomous or planned mode.
//
// One logical executor handles exactly one in-flight task; a second
// submission while a task runs is rejected. A new task overwrites the
// terminal state of the previous one.
//
// Thread Safety:
//
//	Executor is safe for concurrent use; concurrent Run calls beyond
//	the first receive ErrTaskInProgress.
type Executor struct {
	runner    llm.Runner
	generator *Generator
	state     *StateTracker

	repo    tools.RepoClient
	connect ConnectFunc

	// taskMu serializes task execution.
	taskMu sync.Mutex

	now func() time.Time
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithRepoClient injects an already-connected repository client.
func WithRepoClient(client tools.RepoClient) ExecutorOption {
	return func(e *Executor) {
		e.repo = client
	}
}

// WithConnectFunc overrides how a repository client is lazily built.
func WithConnectFunc(fn ConnectFunc) ExecutorOption {
	return func(e *Executor) {
		e.connect = fn
	}
}

// WithGenerator overrides the change-set generator.
func WithGenerator(g *Generator) ExecutorOption {
	return func(e *Executor) {
		e.generator = g
	}
}

// NewExecutor creates an executor backed by the given model runner.
//
// Inputs:
//
//	runner - The model runner. Must not be nil.
//	opts - Configuration options.
//
// Outputs:
//
//	*Executor - The configured executor with a fresh StateTracker.
func NewExecutor(runner llm.Runner, opts ...ExecutorOption) *Executor {
	e := &Executor{
		runner:  runner,
		state:   NewStateTracker(),
		connect: defaultConnect,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.generator == nil {
		e.generator = NewGenerator(runner)
	}
	return e
}

// defaultConnect restores a GitHub client from stored credentials.
func defaultConnect(_ context.Context) (tools.RepoClient, error) {
	client, err := github.NewClient()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	return client, nil
}

// State returns the tracker external observers read snapshots from.
func (e *Executor) State() *StateTracker {
	return e.state
}

// Busy reports whether a task is currently in flight. Best effort;
// the executor itself still rejects a concurrent run.
func (e *Executor) Busy() bool {
	if e.taskMu.TryLock() {
		e.taskMu.Unlock()
		return false
	}
	return true
}

// ensureClient returns the repository client, lazily connecting when
// none was injected.
func (e *Executor) ensureClient(ctx context.Context) (tools.RepoClient, error) {
	if e.repo != nil {
		return e.repo, nil
	}
	if e.connect == nil {
		return nil, ErrNotConnected
	}
	client, err := e.connect(ctx)
	if err != nil {
		return nil, err
	}
	e.repo = client
	return client, nil
}

// branchFor resolves the feature-branch name for a request.
func (e *Executor) branchFor(request *TaskRequest) string {
	if request.BranchName != "" {
		return request.BranchName
	}
	return DeriveBranchName(request.Description, e.now())
}

// fail builds a failure result, records it, and logs the final
// progress line.
func (e *Executor) fail(mode, message string) *TaskResult {
	result := &TaskResult{Success: false, Error: message}
	e.state.AppendProgress("Task failed: " + message)
	e.state.Finish(result)
	tasksTotal.WithLabelValues(mode, "error").Inc()
	return result
}

// succeed builds a success result and records it.
func (e *Executor) succeed(mode, prURL, branch string) *TaskResult {
	result := &TaskResult{Success: true, PRURL: prURL, BranchName: branch}
	e.state.AppendProgress("Task completed: " + prURL)
	e.state.Finish(result)
	tasksTotal.WithLabelValues(mode, "success").Inc()
	return result
}

// ensureBranch guarantees the feature branch exists, creating it from
// the target branch when absent.
func ensureBranch(ctx context.Context, client tools.RepoClient, loc RepoLocator, branch, target string) error {
	if _, err := client.GetRef(ctx, loc.Owner, loc.Repo, branch); err == nil {
		return nil
	} else if !github.IsNotFound(err) {
		return fmt.Errorf("checking branch %q: %w", branch, err)
	}

	base, err := client.GetRef(ctx, loc.Owner, loc.Repo, target)
	if err != nil {
		return fmt.Errorf("resolving target branch %q: %w", target, err)
	}
	if err := client.CreateRef(ctx, loc.Owner, loc.Repo, branch, base.Object.SHA); err != nil {
		if github.IsAlreadyExists(err) {
			return nil
		}
		return fmt.Errorf("creating branch %q: %w", branch, err)
	}
	return nil
}
