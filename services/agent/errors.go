// Copyright (C) 2026 Prforge Authors (dev@prforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package agent

import "errors"

// Sentinel errors for the agent package.
var (
	// ErrInvalidRepoLocator indicates the repository locator could not
	// be parsed into owner and name.
	ErrInvalidRepoLocator = errors.New("invalid repository locator")

	// ErrNotConnected indicates no repository client is available and
	// none could be constructed from stored credentials.
	ErrNotConnected = errors.New("not connected to repository host")

	// ErrNoChanges indicates the change-set generator produced no
	// usable changes after all attempts.
	ErrNoChanges = errors.New("no valid changes generated")

	// ErrTaskInProgress indicates another task is already running on
	// this agent instance.
	ErrTaskInProgress = errors.New("a task is already in progress")
)
