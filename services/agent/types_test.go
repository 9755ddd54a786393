// Copyright (C) 2026 Prforge Authors (dev@prforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package agent

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRepoLocator(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    RepoLocator
		wantErr bool
	}{
		{"shorthand", "acme/widgets", RepoLocator{"acme", "widgets"}, false},
		{"https url", "https://github.com/acme/widgets", RepoLocator{"acme", "widgets"}, false},
		{"url with git suffix", "https://github.com/acme/widgets.git", RepoLocator{"acme", "widgets"}, false},
		{"url trailing slash", "https://github.com/acme/widgets/", RepoLocator{"acme", "widgets"}, false},
		{"shorthand git suffix", "acme/widgets.git", RepoLocator{"acme", "widgets"}, false},
		{"whitespace padded", "  acme/widgets  ", RepoLocator{"acme", "widgets"}, false},
		{"free text", "not a repo", RepoLocator{}, true},
		{"empty", "", RepoLocator{}, true},
		{"missing repo", "acme/", RepoLocator{}, true},
		{"missing owner", "/widgets", RepoLocator{}, true},
		{"too many segments", "a/b/c", RepoLocator{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRepoLocator(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidRepoLocator)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDeriveBranchName(t *testing.T) {
	now := time.Unix(1756000000, 0)

	name := DeriveBranchName("Add a Greeting endpoint!", now)
	assert.Equal(t, "prforge/add-a-greeting-endpoint-1756000000", name)

	// Long descriptions are truncated to a bounded slug.
	long := DeriveBranchName(strings.Repeat("word ", 50), now)
	parts := strings.SplitN(strings.TrimPrefix(long, "prforge/"), "-17", 2)
	assert.LessOrEqual(t, len(parts[0]), 40)

	// Descriptions with no usable characters still get a branch.
	fallback := DeriveBranchName("!!! ???", now)
	assert.Equal(t, "prforge/task-1756000000", fallback)
}

func TestTaskRequest_Validate(t *testing.T) {
	valid := testRequest()
	assert.NoError(t, valid.Validate())

	missing := &TaskRequest{Description: "do something useful"}
	assert.Error(t, missing.Validate())

	short := &TaskRequest{Repository: "acme/widgets", Description: "x"}
	assert.Error(t, short.Validate())
}

func TestTaskRequest_TargetDefaultsToMain(t *testing.T) {
	r := &TaskRequest{}
	assert.Equal(t, "main", r.Target())

	r.TargetBranch = "develop"
	assert.Equal(t, "develop", r.Target())
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "hello-world", slugify("Hello, World!", 40))
	assert.Equal(t, "a-b", slugify("a---b", 40))
	assert.Equal(t, "", slugify("!!!", 40))
	assert.LessOrEqual(t, len(slugify(strings.Repeat("x", 100), 40)), 40)
}

func TestValidAction(t *testing.T) {
	assert.True(t, validAction(ActionCreate))
	assert.True(t, validAction(ActionUpdate))
	assert.True(t, validAction(ActionDelete))
	assert.False(t, validAction("rename"))
	assert.False(t, validAction(""))
}
