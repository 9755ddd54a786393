// Copyright (C) 2026 Prforge Authors (dev@prforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package github

// ContentEntry is one child of a repository directory.
type ContentEntry struct {
	// Name is the entry's base name.
	Name string `json:"name"`

	// Path is the full path from the repository root.
	Path string `json:"path"`

	// Type is "file" or "dir".
	Type string `json:"type"`

	// Size is the file size in bytes (0 for directories).
	Size int `json:"size"`
}

// FileContent is the decoded content of a single file.
type FileContent struct {
	// Path is the file path from the repository root.
	Path string `json:"path"`

	// Content is the decoded file text.
	Content string `json:"content"`

	// SHA is the blob SHA, required for optimistic-concurrency updates.
	SHA string `json:"sha"`
}

// Ref is a git reference (branch head).
type Ref struct {
	// Name is the fully qualified ref name (refs/heads/<branch>).
	Name string `json:"ref"`

	// Object holds the commit the ref points at.
	Object RefObject `json:"object"`
}

// RefObject is the target of a Ref.
type RefObject struct {
	// SHA is the commit SHA.
	SHA string `json:"sha"`

	// Type is the object type (usually "commit").
	Type string `json:"type"`
}

// PullRequest is an opened pull request.
type PullRequest struct {
	// Number is the PR number within the repository.
	Number int `json:"number"`

	// HTMLURL is the browser URL of the PR.
	HTMLURL string `json:"html_url"`

	// Head is the feature branch name.
	Head string `json:"head,omitempty"`

	// Base is the target branch name.
	Base string `json:"base,omitempty"`
}

// Comparison is the result of comparing two refs.
type Comparison struct {
	// AheadBy is how many commits head is ahead of base.
	AheadBy int `json:"ahead_by"`

	// BehindBy is how many commits head is behind base.
	BehindBy int `json:"behind_by"`

	// TotalCommits is the number of commits in the comparison range.
	TotalCommits int `json:"total_commits"`
}

// CommitResult reports the outcome of a createOrUpdateFile call.
type CommitResult struct {
	// Path is the committed file path.
	Path string `json:"path"`

	// SHA is the new blob SHA.
	SHA string `json:"sha"`

	// CommitSHA is the commit created for this change.
	CommitSHA string `json:"commit_sha"`
}

// wire types, matching the hosted API's JSON shapes

type contentResponse struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Type     string `json:"type"`
	Size     int    `json:"size"`
	SHA      string `json:"sha"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

type createRefRequest struct {
	Ref string `json:"ref"`
	SHA string `json:"sha"`
}

type updateFileRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	Branch  string `json:"branch"`
	SHA     string `json:"sha,omitempty"`
}

type updateFileResponse struct {
	Content *struct {
		Path string `json:"path"`
		SHA  string `json:"sha"`
	} `json:"content"`
	Commit struct {
		SHA string `json:"sha"`
	} `json:"commit"`
}

type createPullRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Head  string `json:"head"`
	Base  string `json:"base"`
}

type apiErrorBody struct {
	Message string `json:"message"`
	Errors  []struct {
		Message string `json:"message"`
	} `json:"errors,omitempty"`
}
