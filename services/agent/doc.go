// Copyright (C) 2026 Prforge Authors (dev@prforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package agent implements the task executor that turns a
// natural-language change request into a pull request.
//
// Two execution modes are provided. The autonomous mode drives the
// model through a bounded reasoning/acting loop over the tool catalog
// in the tools package. The planned mode runs a fixed seven-step
// pipeline (validate, connect, fetch context, generate changes, create
// branch, apply changes, open PR) with the change-set generator in
// place of open-ended tool calling.
//
// Both modes report through a StateTracker: an append-only progress
// log plus a structured plan snapshot that external observers (the
// HTTP surface, tests) read. A task never panics or errors past its
// boundary; callers always receive a structured TaskResult.
package agent
