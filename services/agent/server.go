// Copyright (C) 2026 Prforge Authors (dev@prforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package agent

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// TaskSubmission is the HTTP payload for starting a task.
type TaskSubmission struct {
	TaskRequest

	// Mode selects the executor: "autonomous" or "planned".
	// Defaults to "planned".
	Mode string `json:"mode"`
}

// Server exposes the executor over HTTP.
//
// One task runs at a time; submissions while a task is in flight get
// 409. Observers poll GET /v1/tasks/current for the state snapshot.
type Server struct {
	executor *Executor
	router   *gin.Engine
}

// NewServer builds the HTTP surface around an executor.
func NewServer(executor *Executor) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	s := &Server{executor: executor, router: router}

	router.GET("/healthz", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	{
		v1.POST("/tasks", s.handleSubmitTask)
		v1.GET("/tasks/current", s.handleCurrentTask)
	}

	return s
}

// Handler returns the underlying HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until the listener fails.
func (s *Server) Run(addr string) error {
	slog.Info("Starting HTTP server", "addr", addr)
	return s.router.Run(addr)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleSubmitTask starts a task in the background and returns 202.
func (s *Server) handleSubmitTask(c *gin.Context) {
	var submission TaskSubmission
	if err := c.ShouldBindJSON(&submission); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body: " + err.Error()})
		return
	}

	if err := submission.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, err := ParseRepoLocator(submission.Repository); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	mode := submission.Mode
	switch mode {
	case "":
		mode = "planned"
	case "planned", "autonomous":
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "mode must be \"planned\" or \"autonomous\""})
		return
	}

	if s.executor.Busy() {
		c.JSON(http.StatusConflict, gin.H{"error": ErrTaskInProgress.Error()})
		return
	}

	taskID := uuid.NewString()
	request := submission.TaskRequest

	go func() {
		ctx := context.Background()
		var result *TaskResult
		if mode == "autonomous" {
			result = s.executor.RunAutonomous(ctx, &request)
		} else {
			result = s.executor.RunPlanned(ctx, &request)
		}
		slog.Info("Task finished",
			"task_id", taskID,
			"mode", mode,
			"success", result.Success,
			"pr_url", result.PRURL,
		)
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"task_id": taskID,
		"mode":    mode,
		"status":  "accepted",
	})
}

// handleCurrentTask returns the state snapshot of the current (or
// last) task.
func (s *Server) handleCurrentTask(c *gin.Context) {
	c.JSON(http.StatusOK, s.executor.State().Snapshot())
}

// requestLogger is a minimal slog access-log middleware.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		slog.Debug("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
		)
	}
}
