// Copyright (C) 2026 Prforge Authors (dev@prforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package github

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel errors for the client.
var (
	// ErrMissingToken indicates no API token was configured.
	ErrMissingToken = errors.New("github token is missing")
)

// APIError represents a failed API call.
//
// The hosted API reports failures with an HTTP status and a message
// body; both are preserved so callers can branch on the status (404
// redirects the model toward re-listing structure, 422 signals
// already-exists conditions).
type APIError struct {
	// StatusCode is the HTTP status returned by the API.
	StatusCode int

	// Message is the API's error message.
	Message string

	// URL is the request URL that failed.
	URL string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("github api: %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Message)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// IsAlreadyExists reports whether err signals that the ref or pull
// request being created already exists (422 with an "already exists"
// message).
func IsAlreadyExists(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.StatusCode != http.StatusUnprocessableEntity {
		return false
	}
	return strings.Contains(strings.ToLower(apiErr.Message), "already exists")
}
