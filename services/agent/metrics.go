// Copyright (C) 2026 Prforge Authors (dev@prforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package agent

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "prforge",
		Subsystem: "agent",
		Name:      "tasks_total",
		Help:      "Executed tasks, by mode and outcome.",
	}, []string{"mode", "outcome"})

	taskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "prforge",
		Subsystem: "agent",
		Name:      "task_duration_seconds",
		Help:      "End-to-end task latency.",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"mode"})

	loopIterations = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "prforge",
		Subsystem: "agent",
		Name:      "loop_iterations",
		Help:      "Model invocations per autonomous task.",
		Buckets:   []float64{1, 2, 3, 5, 8, 10, 15},
	})

	loopCorrections = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "prforge",
		Subsystem: "agent",
		Name:      "loop_corrections_total",
		Help:      "Corrective nudges injected after repeated identical tool calls.",
	})

	generatorAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "prforge",
		Subsystem: "agent",
		Name:      "generator_attempts_total",
		Help:      "Change-set generation attempts, by outcome.",
	}, []string{"outcome"})
)
