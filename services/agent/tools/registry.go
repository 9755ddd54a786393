// Copyright (C) 2026 Prforge Authors (dev@prforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tools

import (
	"sort"
	"sync"

	"github.com/prforge/prforge/services/agent/llm"
)

// Registry manages tool registration and lookup.
//
// Thread Safety:
//
//	Registry is fully thread-safe. All methods can be called
//	concurrently.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]*Tool
}

// NewRegistry creates a new empty tool registry.
//
// Outputs:
//
//	*Registry - Empty registry ready for tool registration.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]*Tool),
	}
}

// Register adds a tool to the registry.
//
// Description:
//
//	Registers a tool under its Name. A tool with the same name is
//	replaced.
//
// Inputs:
//
//	tool - The tool to register. Nil tools are ignored.
//
// Thread Safety: This method is safe for concurrent use.
func (r *Registry) Register(tool *Tool) {
	if tool == nil || tool.Name == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[tool.Name] = tool
}

// Get returns a tool by name.
//
// Outputs:
//
//	*Tool - The registered tool, or nil if not found.
//	bool - True if the tool was found.
//
// Thread Safety: This method is safe for concurrent use.
func (r *Registry) Get(name string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, ok := r.byName[name]
	return tool, ok
}

// Names returns all registered tool names, sorted.
//
// Thread Safety: This method is safe for concurrent use.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Specs returns the schema catalog for the model runner, sorted by
// tool name so prompts are deterministic.
//
// Thread Safety: This method is safe for concurrent use.
func (r *Registry) Specs() []llm.ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)

	specs := make([]llm.ToolSpec, 0, len(names))
	for _, name := range names {
		specs = append(specs, r.byName[name].Spec())
	}
	return specs
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}
