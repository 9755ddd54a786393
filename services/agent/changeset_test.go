// Copyright (C) 2026 Prforge Authors (dev@prforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prforge/prforge/services/agent/llm"
)

const validChangeSet = `[{"path":"src/greeting.go","content":"package src\n","action":"create"}]`

func TestParseChangeSet_Valid(t *testing.T) {
	changes, err := parseChangeSet(validChangeSet)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, "src/greeting.go", changes[0].Path)
	assert.Equal(t, ActionCreate, changes[0].Action)
}

func TestParseChangeSet_StripsFencesAndProse(t *testing.T) {
	raw := "Here are the changes:\n```json\n" + validChangeSet + "\n```\nLet me know!"
	changes, err := parseChangeSet(raw)
	require.NoError(t, err)
	assert.Len(t, changes, 1)
}

func TestParseChangeSet_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantMsg string
	}{
		{"no array", "I cannot do that.", "no JSON array"},
		{"broken json", `[{"path": "a.go", }]`, "not a valid JSON array"},
		{"empty array", `[]`, "must not be empty"},
		{"missing path", `[{"content":"x","action":"create"}]`, `change 0: "path"`},
		{"missing content", `[{"path":"a.go","action":"update"}]`, `"content"`},
		{"bad action", `[{"path":"a.go","content":"x","action":"rename"}]`, "one of create, update, delete"},
		{"indexed message", `[{"path":"a.go","content":"x","action":"create"},{"path":"","content":"x","action":"create"}]`, "change 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseChangeSet(tt.raw)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestGenerate_SelfCorrectsOnThirdAttempt(t *testing.T) {
	mock := llm.NewMockRunner()
	mock.QueueText("sorry, no JSON here")
	mock.QueueText(`[{"path":"","content":"x","action":"create"}]`)
	mock.QueueText(validChangeSet)

	g := NewGenerator(mock)
	changes, err := g.Generate(context.Background(), testRequest(), "Structure:\n  README.md (file)")
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, 3, mock.CallCount())

	// The final prompt carries the rejection feedback.
	last := mock.LastRequest()
	require.NotNil(t, last)
	require.Len(t, last.Messages, 1)
	assert.Contains(t, last.Messages[0].Content, "PREVIOUS ATTEMPT WAS REJECTED")

	// The first prompt does not.
	first := mock.Requests()[0]
	assert.NotContains(t, first.Messages[0].Content, "PREVIOUS ATTEMPT WAS REJECTED")
}

func TestGenerate_ExhaustsAttempts(t *testing.T) {
	mock := llm.NewMockRunner()
	for i := 0; i < 3; i++ {
		mock.QueueText("still not json")
	}

	g := NewGenerator(mock)
	_, err := g.Generate(context.Background(), testRequest(), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoChanges)
	assert.Equal(t, 3, mock.CallCount())
}

func TestGenerate_ModelErrorIsNotRetried(t *testing.T) {
	mock := llm.NewMockRunner()
	mock.QueueError(context.DeadlineExceeded)

	g := NewGenerator(mock)
	_, err := g.Generate(context.Background(), testRequest(), "")
	require.Error(t, err)
	assert.Equal(t, 1, mock.CallCount())
}

func TestGenerate_TruncatesRepoContext(t *testing.T) {
	mock := llm.NewMockRunner()
	mock.QueueText(validChangeSet)

	huge := make([]byte, repoContextLimit*2)
	for i := range huge {
		huge[i] = 'a'
	}

	g := NewGenerator(mock)
	_, err := g.Generate(context.Background(), testRequest(), string(huge))
	require.NoError(t, err)

	prompt := mock.LastRequest().Messages[0].Content
	assert.Contains(t, prompt, "(truncated)")
	assert.Less(t, len(prompt), repoContextLimit+1000)
}
