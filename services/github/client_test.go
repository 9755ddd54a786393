// Copyright (C) 2026 Prforge Authors (dev@prforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(WithBaseURL(server.URL), WithToken("test-token"))
	require.NoError(t, err)
	return client
}

func TestNewClient_MissingToken(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "")
	_, err := NewClient()
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestGetContents(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/acme/widgets/contents/src", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode([]contentResponse{
			{Name: "main.go", Path: "src/main.go", Type: "file", Size: 120},
			{Name: "util", Path: "src/util", Type: "dir"},
		})
	}))

	entries, err := client.GetContents(context.Background(), "acme", "widgets", "src")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "src/main.go", entries[0].Path)
	assert.Equal(t, "file", entries[0].Type)
	assert.Equal(t, "dir", entries[1].Type)
}

func TestGetContents_SingleFileObject(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(contentResponse{Name: "README.md", Path: "README.md", Type: "file"})
	}))

	entries, err := client.GetContents(context.Background(), "acme", "widgets", "README.md")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "README.md", entries[0].Path)
}

func TestGetFileContent(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "feature", r.URL.Query().Get("ref"))
		json.NewEncoder(w).Encode(contentResponse{
			Path:     "docs/intro.md",
			Type:     "file",
			SHA:      "abc123",
			Content:  base64.StdEncoding.EncodeToString([]byte("hello world\n")),
			Encoding: "base64",
		})
	}))

	fc, err := client.GetFileContent(context.Background(), "acme", "widgets", "docs/intro.md", "feature")
	require.NoError(t, err)
	assert.Equal(t, "hello world\n", fc.Content)
	assert.Equal(t, "abc123", fc.SHA)
}

func TestGetFileContent_NotFound(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"message": "Not Found"})
	}))

	_, err := client.GetFileContent(context.Background(), "acme", "widgets", "ghost.go", "")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestCreateRef(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)

		var req createRefRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "refs/heads/prforge/test", req.Ref)
		assert.Equal(t, "deadbeef", req.SHA)

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(Ref{Name: req.Ref})
	}))

	err := client.CreateRef(context.Background(), "acme", "widgets", "prforge/test", "deadbeef")
	require.NoError(t, err)
}

func TestCreateRef_AlreadyExists(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]string{"message": "Reference already exists"})
	}))

	err := client.CreateRef(context.Background(), "acme", "widgets", "existing", "deadbeef")
	require.Error(t, err)
	assert.True(t, IsAlreadyExists(err))
	assert.False(t, IsNotFound(err))
}

func TestCreateOrUpdateFile_RoundTrip(t *testing.T) {
	var committed string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)

		var req updateFileRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		decoded, err := base64.StdEncoding.DecodeString(req.Content)
		require.NoError(t, err)
		committed = string(decoded)

		assert.Equal(t, "feature", req.Branch)
		assert.Equal(t, "oldsha", req.SHA)

		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"content":{"path":"a.txt","sha":"newsha"},"commit":{"sha":"c1"}}`))
	}))

	result, err := client.CreateOrUpdateFile(context.Background(),
		"acme", "widgets", "a.txt", "file body", "update a.txt", "feature", "oldsha")
	require.NoError(t, err)
	assert.Equal(t, "file body", committed)
	assert.Equal(t, "newsha", result.SHA)
	assert.Equal(t, "c1", result.CommitSHA)
}

func TestCreatePullRequest(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req createPullRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "feature", req.Head)
		assert.Equal(t, "main", req.Base)

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(PullRequest{Number: 7, HTMLURL: "https://example.com/pr/7"})
	}))

	pr, err := client.CreatePullRequest(context.Background(),
		"acme", "widgets", "Add widget", "body", "feature", "main")
	require.NoError(t, err)
	assert.Equal(t, 7, pr.Number)
	assert.Equal(t, "https://example.com/pr/7", pr.HTMLURL)
}

func TestCompareCommits(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/acme/widgets/compare/main...feature", r.URL.Path)
		json.NewEncoder(w).Encode(Comparison{AheadBy: 3, BehindBy: 1, TotalCommits: 3})
	}))

	cmp, err := client.CompareCommits(context.Background(), "acme", "widgets", "main", "feature")
	require.NoError(t, err)
	assert.Equal(t, 3, cmp.AheadBy)
	assert.Equal(t, 1, cmp.BehindBy)
}

func TestAPIError_Message(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"message":"API rate limit exceeded"}`))
	}))

	_, err := client.GetRef(context.Background(), "acme", "widgets", "main")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API rate limit exceeded")
	assert.Contains(t, err.Error(), "403")
}

func TestEscapePath(t *testing.T) {
	assert.Equal(t, "", escapePath(""))
	assert.Equal(t, "a/b/c.txt", escapePath("a/b/c.txt"))
	assert.Equal(t, "dir%20name/file.go", escapePath("dir name/file.go"))
}
