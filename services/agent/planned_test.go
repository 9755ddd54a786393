// Copyright (C) 2026 Prforge Authors (dev@prforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prforge/prforge/services/agent/llm"
	"github.com/prforge/prforge/services/agent/tools"
	"github.com/prforge/prforge/services/github"
)

func TestRunPlanned_HappyPath(t *testing.T) {
	repo := newFakeRepo()
	mock := llm.NewMockRunner()
	mock.QueueText(validChangeSet)

	e := NewExecutor(mock, WithRepoClient(repo))
	result := e.RunPlanned(context.Background(), testRequest())

	require.True(t, result.Success, "result error: %s", result.Error)
	assert.Equal(t, "https://example.com/pr/1", result.PRURL)
	assert.Equal(t, "prforge/greeting-1", result.BranchName)

	snapshot := e.State().Snapshot()
	assert.Equal(t, StatusCompleted, snapshot.Status)
	require.NotNil(t, snapshot.Plan)
	for _, step := range snapshot.Plan.Steps {
		assert.Equal(t, StepCompleted, step.Status, "step %s", step.ID)
	}
	assert.NotEmpty(t, snapshot.ProgressMessages)
	require.Len(t, snapshot.GeneratedChanges, 1)

	// The committed content is readable back from the branch.
	fc, err := repo.GetFileContent(context.Background(), "acme", "widgets", "src/greeting.go", "prforge/greeting-1")
	require.NoError(t, err)
	assert.Equal(t, "package src\n", fc.Content)
}

func TestRunPlanned_MalformedLocatorNeverContactsClient(t *testing.T) {
	repo := newFakeRepo()
	e := NewExecutor(llm.NewMockRunner(), WithRepoClient(repo))

	request := testRequest()
	request.Repository = "not a repo"

	result := e.RunPlanned(context.Background(), request)
	require.False(t, result.Success)
	assert.Contains(t, result.Error, "invalid repository locator")
	assert.Equal(t, 0, repo.callCount())

	snapshot := e.State().Snapshot()
	assert.Equal(t, StatusError, snapshot.Status)
	require.NotNil(t, snapshot.Plan)
	assert.Equal(t, StepError, snapshot.Plan.Steps[0].Status)
	for _, step := range snapshot.Plan.Steps[1:] {
		assert.Equal(t, StepPending, step.Status, "step %s", step.ID)
	}
}

func TestRunPlanned_ConnectFailureIsFatal(t *testing.T) {
	e := NewExecutor(llm.NewMockRunner(), WithConnectFunc(func(context.Context) (tools.RepoClient, error) {
		return nil, ErrNotConnected
	}))

	result := e.RunPlanned(context.Background(), testRequest())
	require.False(t, result.Success)
	assert.Contains(t, result.Error, "not connected")

	snapshot := e.State().Snapshot()
	assert.Equal(t, StepError, snapshot.Plan.Steps[1].Status)
	assert.Equal(t, StepPending, snapshot.Plan.Steps[2].Status)
}

func TestRunPlanned_GeneratorExhaustionIsFatal(t *testing.T) {
	repo := newFakeRepo()
	mock := llm.NewMockRunner()
	for i := 0; i < 3; i++ {
		mock.QueueText("no json in sight")
	}

	e := NewExecutor(mock, WithRepoClient(repo))
	result := e.RunPlanned(context.Background(), testRequest())

	require.False(t, result.Success)
	assert.Contains(t, result.Error, "no valid changes generated")
	assert.Equal(t, StepError, e.State().Snapshot().Plan.Steps[3].Status)
}

func TestRunPlanned_PreflightRejectsEmptyBranch(t *testing.T) {
	repo := newFakeRepo()
	mock := llm.NewMockRunner()
	// Only a delete, which apply_changes skips, so nothing is
	// committed and the branch stays empty.
	mock.QueueText(`[{"path":"old.txt","content":"","action":"delete"}]`)

	e := NewExecutor(mock, WithRepoClient(repo))
	result := e.RunPlanned(context.Background(), testRequest())

	require.False(t, result.Success)
	assert.Contains(t, result.Error, "No commits")
	assert.Empty(t, repo.prs)
	assert.Equal(t, StepError, e.State().Snapshot().Plan.Steps[6].Status)
}

func TestRunPlanned_ExistingPullRequestIsSuccess(t *testing.T) {
	repo := newFakeRepo()
	repo.prExists = true
	mock := llm.NewMockRunner()
	mock.QueueText(validChangeSet)

	e := NewExecutor(mock, WithRepoClient(repo))
	result := e.RunPlanned(context.Background(), testRequest())

	require.True(t, result.Success)
	assert.Equal(t, "prforge/greeting-1", result.BranchName)
	assert.Equal(t, StatusCompleted, e.State().Snapshot().Status)
}

func TestRunPlanned_DeleteActionsAreSkippedNotFatal(t *testing.T) {
	repo := newFakeRepo()
	mock := llm.NewMockRunner()
	mock.QueueText(`[
		{"path":"good.txt","content":"fine","action":"create"},
		{"path":"old.txt","content":"","action":"delete"}
	]`)

	e := NewExecutor(mock, WithRepoClient(repo))
	result := e.RunPlanned(context.Background(), testRequest())

	require.True(t, result.Success, "result error: %s", result.Error)
	require.Len(t, repo.prs, 1)
}

func TestFetchRepoContext(t *testing.T) {
	repo := newFakeRepo()
	loc := RepoLocator{Owner: "acme", Repo: "widgets"}

	ctx := fetchRepoContext(context.Background(), repo, loc, "main")
	assert.Contains(t, ctx, "README.md (file)")
	assert.Contains(t, ctx, "src/app.go (file)")
	assert.Contains(t, ctx, "# widgets")
}

func TestFetchRepoContext_FailureYieldsEmptyContext(t *testing.T) {
	loc := RepoLocator{Owner: "acme", Repo: "widgets"}
	broken := &erroringRepo{}

	ctx := fetchRepoContext(context.Background(), broken, loc, "main")
	assert.Empty(t, ctx)
}

// erroringRepo fails structure listing.
type erroringRepo struct {
	fakeRepo
}

func (e *erroringRepo) GetContents(context.Context, string, string, string) ([]github.ContentEntry, error) {
	return nil, errors.New("unreachable")
}

func TestPRTitle(t *testing.T) {
	assert.Equal(t, "Automated change", prTitle(" "))
	assert.Equal(t, "First line", prTitle("First line\nsecond"))
}
