// Copyright (C) 2026 Prforge Authors (dev@prforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package agent

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateTracker_StartsIdle(t *testing.T) {
	tracker := NewStateTracker()
	snapshot := tracker.Snapshot()
	assert.Equal(t, StatusIdle, snapshot.Status)
	assert.Nil(t, snapshot.CurrentRequest)
	assert.Nil(t, snapshot.Result)
}

func TestStateTracker_BeginClearsPreviousTask(t *testing.T) {
	tracker := NewStateTracker()

	tracker.Begin(testRequest())
	tracker.InitPlan()
	tracker.AppendProgress("first task")
	tracker.Finish(&TaskResult{Success: true, PRURL: "https://example.com/pr/1"})

	tracker.Begin(testRequest())
	snapshot := tracker.Snapshot()
	assert.Equal(t, StatusConnecting, snapshot.Status)
	assert.Nil(t, snapshot.Result)
	assert.Nil(t, snapshot.Plan)
	assert.Empty(t, snapshot.ProgressMessages)
}

func TestStateTracker_ProgressIsAppendOnlyAndOrdered(t *testing.T) {
	tracker := NewStateTracker()
	tracker.Begin(testRequest())

	for i := 0; i < 5; i++ {
		tracker.AppendProgress(fmt.Sprintf("step %d", i))
	}

	snapshot := tracker.Snapshot()
	require.Len(t, snapshot.ProgressMessages, 5)
	for i, msg := range snapshot.ProgressMessages {
		assert.Equal(t, fmt.Sprintf("step %d", i), msg)
	}
}

func TestStateTracker_FinishSetsTerminalStatus(t *testing.T) {
	tracker := NewStateTracker()
	tracker.Begin(testRequest())
	tracker.Finish(&TaskResult{Success: true, PRURL: "u", BranchName: "b"})
	assert.Equal(t, StatusCompleted, tracker.Snapshot().Status)

	tracker.Begin(testRequest())
	tracker.Finish(&TaskResult{Success: false, Error: "boom"})
	snapshot := tracker.Snapshot()
	assert.Equal(t, StatusError, snapshot.Status)
	assert.Equal(t, "boom", snapshot.Result.Error)
}

func TestStateTracker_SnapshotSharesNoMemory(t *testing.T) {
	tracker := NewStateTracker()
	tracker.Begin(testRequest())
	tracker.InitPlan()
	tracker.AppendProgress("one")
	tracker.SetGeneratedChanges([]FileChange{{Path: "a.go", Content: "x", Action: ActionCreate}})

	snapshot := tracker.Snapshot()
	snapshot.ProgressMessages[0] = "mutated"
	snapshot.GeneratedChanges[0].Path = "mutated.go"
	snapshot.CurrentRequest.Repository = "mutated/repo"
	snapshot.Plan.setStep(0, StepError, "mutated")

	fresh := tracker.Snapshot()
	assert.Equal(t, "one", fresh.ProgressMessages[0])
	assert.Equal(t, "a.go", fresh.GeneratedChanges[0].Path)
	assert.Equal(t, "acme/widgets", fresh.CurrentRequest.Repository)
	assert.Equal(t, StepPending, fresh.Plan.Steps[0].Status)
}

func TestStateTracker_SetPlanStepWithoutPlanIsNoop(t *testing.T) {
	tracker := NewStateTracker()
	tracker.Begin(testRequest())
	tracker.SetPlanStep(0, StepRunning, "")
	assert.Nil(t, tracker.Snapshot().Plan)
}

func TestStateTracker_ConcurrentReadersAndWriter(t *testing.T) {
	tracker := NewStateTracker()
	tracker.Begin(testRequest())
	tracker.InitPlan()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			tracker.AppendProgress(fmt.Sprintf("msg %d", i))
		}(i)
		go func() {
			defer wg.Done()
			_ = tracker.Snapshot()
		}()
	}
	wg.Wait()

	assert.Len(t, tracker.Snapshot().ProgressMessages, 20)
}
