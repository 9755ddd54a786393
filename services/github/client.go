// Copyright (C) 2026 Prforge Authors (dev@prforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package github provides a minimal client for the hosted repository
// REST API: directory listing, file content, refs, file commits, pull
// requests, and ref comparison.
//
// The client covers exactly the operations the agent executors need.
// All failures surface as *APIError carrying the HTTP status, which the
// tool layer uses to distinguish not-found (redirect the model toward
// re-listing structure) from already-exists (idempotent success).
//
// Thread Safety:
//
//	Client is safe for concurrent use.
package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultBaseURL   = "https://api.github.com"
	defaultUserAgent = "prforge-agent"

	// requestsPerSecond paces calls below the hosted API's secondary
	// rate limits; bursts cover the fetch_repo fan-out.
	requestsPerSecond = 5
	requestBurst      = 10
)

// Client calls the hosted repository REST API.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
	token      string
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL (for tests and self-hosted
// installations).
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithToken sets the API token explicitly.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// NewClient creates a client for the hosted repository API.
//
// Description:
//
//	The token is resolved from options, then the GITHUB_TOKEN
//	environment variable, then the /run/secrets/github_token secret
//	file. A missing token is an error: every operation the agent
//	performs requires authentication.
//
// Inputs:
//
//	opts - Configuration options.
//
// Outputs:
//
//	*Client - The configured client.
//	error - ErrMissingToken if no token could be resolved.
func NewClient(opts ...Option) (*Client, error) {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(requestsPerSecond), requestBurst),
		baseURL:    defaultBaseURL,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.token == "" {
		c.token = os.Getenv("GITHUB_TOKEN")
	}
	if c.token == "" {
		if content, err := os.ReadFile("/run/secrets/github_token"); err == nil {
			c.token = strings.TrimSpace(string(content))
			slog.Info("Read repository API token from secrets file")
		}
	}
	if c.token == "" {
		return nil, ErrMissingToken
	}

	return c, nil
}

// GetContents lists the immediate children of a directory.
//
// Inputs:
//
//	ctx - Context for cancellation and timeout.
//	owner, repo - Repository identity.
//	path - Directory path; empty lists the repository root.
//
// Outputs:
//
//	[]ContentEntry - Children with path and type.
//	error - *APIError on failure (404 if the path does not exist).
func (c *Client) GetContents(ctx context.Context, owner, repo, path string) ([]ContentEntry, error) {
	endpoint := fmt.Sprintf("/repos/%s/%s/contents/%s", owner, repo, escapePath(path))

	var raw []contentResponse
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &raw); err != nil {
		return nil, err
	}

	entries := make([]ContentEntry, 0, len(raw))
	for _, r := range raw {
		entries = append(entries, ContentEntry{
			Name: r.Name,
			Path: r.Path,
			Type: r.Type,
			Size: r.Size,
		})
	}
	return entries, nil
}

// GetFileContent fetches and decodes a file at an optional ref.
//
// Description:
//
//	The API returns file bodies base64-encoded; the decoded text and
//	the blob SHA are returned. The SHA is required when updating the
//	file (the API's optimistic-concurrency check).
//
// Inputs:
//
//	ctx - Context for cancellation and timeout.
//	owner, repo - Repository identity.
//	path - File path from the repository root.
//	ref - Branch, tag, or commit; empty uses the default branch.
//
// Outputs:
//
//	*FileContent - Decoded content plus blob SHA.
//	error - *APIError on failure (404 if the file does not exist).
func (c *Client) GetFileContent(ctx context.Context, owner, repo, path, ref string) (*FileContent, error) {
	endpoint := fmt.Sprintf("/repos/%s/%s/contents/%s", owner, repo, escapePath(path))
	if ref != "" {
		endpoint += "?ref=" + url.QueryEscape(ref)
	}

	var raw contentResponse
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &raw); err != nil {
		return nil, err
	}
	if raw.Type != "" && raw.Type != "file" {
		return nil, &APIError{
			StatusCode: http.StatusUnprocessableEntity,
			Message:    fmt.Sprintf("%s is a %s, not a file", path, raw.Type),
		}
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(raw.Content, "\n", ""))
	if err != nil {
		return nil, fmt.Errorf("decode content of %s: %w", path, err)
	}

	return &FileContent{
		Path:    raw.Path,
		Content: string(decoded),
		SHA:     raw.SHA,
	}, nil
}

// GetRef resolves a branch to its tip commit.
//
// Outputs:
//
//	*Ref - The reference with its commit SHA.
//	error - *APIError on failure (404 if the branch does not exist).
func (c *Client) GetRef(ctx context.Context, owner, repo, branch string) (*Ref, error) {
	endpoint := fmt.Sprintf("/repos/%s/%s/git/ref/heads/%s", owner, repo, url.PathEscape(branch))

	var ref Ref
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &ref); err != nil {
		return nil, err
	}
	return &ref, nil
}

// CreateRef creates a new branch pointing at the given commit.
//
// Outputs:
//
//	error - *APIError on failure; a 422 "already exists" is returned
//	as-is so callers can treat it as idempotent success.
func (c *Client) CreateRef(ctx context.Context, owner, repo, branch, sha string) error {
	endpoint := fmt.Sprintf("/repos/%s/%s/git/refs", owner, repo)
	body := createRefRequest{
		Ref: "refs/heads/" + branch,
		SHA: sha,
	}
	return c.do(ctx, http.MethodPost, endpoint, body, nil)
}

// CreateOrUpdateFile commits a single file to a branch.
//
// Description:
//
//	Replaces the file content wholesale. For updates, sha must be the
//	current blob SHA; for new files it must be empty. This is why the
//	change-set model carries complete file content, never patches.
//
// Inputs:
//
//	ctx - Context for cancellation and timeout.
//	owner, repo - Repository identity.
//	path - File path from the repository root.
//	content - Full new file text (encoded for transport here).
//	message - Commit message.
//	branch - Branch to commit to.
//	sha - Current blob SHA for updates; empty for creates.
//
// Outputs:
//
//	*CommitResult - The committed path and new SHAs.
//	error - *APIError on failure (409 on SHA mismatch).
func (c *Client) CreateOrUpdateFile(ctx context.Context, owner, repo, path, content, message, branch, sha string) (*CommitResult, error) {
	endpoint := fmt.Sprintf("/repos/%s/%s/contents/%s", owner, repo, escapePath(path))
	body := updateFileRequest{
		Message: message,
		Content: base64.StdEncoding.EncodeToString([]byte(content)),
		Branch:  branch,
		SHA:     sha,
	}

	var resp updateFileResponse
	if err := c.do(ctx, http.MethodPut, endpoint, body, &resp); err != nil {
		return nil, err
	}

	result := &CommitResult{Path: path, CommitSHA: resp.Commit.SHA}
	if resp.Content != nil {
		result.SHA = resp.Content.SHA
	}
	return result, nil
}

// CreatePullRequest opens a pull request from head into base.
//
// Outputs:
//
//	*PullRequest - The opened PR with its browser URL.
//	error - *APIError on failure; a 422 "already exists" is returned
//	as-is so callers can treat it as idempotent success.
func (c *Client) CreatePullRequest(ctx context.Context, owner, repo, title, body, head, base string) (*PullRequest, error) {
	endpoint := fmt.Sprintf("/repos/%s/%s/pulls", owner, repo)
	req := createPullRequest{
		Title: title,
		Body:  body,
		Head:  head,
		Base:  base,
	}

	var pr PullRequest
	if err := c.do(ctx, http.MethodPost, endpoint, req, &pr); err != nil {
		return nil, err
	}
	pr.Head = head
	pr.Base = base
	return &pr, nil
}

// CompareCommits compares two refs and reports how far head is ahead
// of base. Used as the preflight check before opening a pull request.
func (c *Client) CompareCommits(ctx context.Context, owner, repo, base, head string) (*Comparison, error) {
	endpoint := fmt.Sprintf("/repos/%s/%s/compare/%s...%s",
		owner, repo, url.PathEscape(base), url.PathEscape(head))

	var cmp Comparison
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &cmp); err != nil {
		return nil, err
	}
	return &cmp, nil
}

// do performs one API request with rate limiting and error decoding.
func (c *Client) do(ctx context.Context, method, endpoint string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	fullURL := c.baseURL + endpoint
	req, err := http.NewRequestWithContext(ctx, method, fullURL, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("User-Agent", defaultUserAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, URL: fullURL}
		var parsed apiErrorBody
		if json.Unmarshal(data, &parsed) == nil && parsed.Message != "" {
			apiErr.Message = parsed.Message
			for _, detail := range parsed.Errors {
				if detail.Message != "" {
					apiErr.Message += ": " + detail.Message
				}
			}
		} else {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		slog.Debug("API call failed",
			"method", method,
			"endpoint", endpoint,
			"status", resp.StatusCode,
		)
		return apiErr
	}

	if out == nil {
		return nil
	}

	// Directory listings return an array; a single file returns an
	// object. When the caller asked for a listing but got an object,
	// wrap it so GetContents works on single-file paths too.
	if entries, ok := out.(*[]contentResponse); ok && len(data) > 0 && data[0] == '{' {
		var single contentResponse
		if err := json.Unmarshal(data, &single); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		*entries = []contentResponse{single}
		return nil
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// escapePath escapes each path segment while preserving separators.
func escapePath(path string) string {
	if path == "" {
		return ""
	}
	segments := strings.Split(path, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
