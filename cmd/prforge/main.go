// Copyright (C) 2026 Prforge Authors (dev@prforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command prforge turns a natural-language change request into a pull
// request, either as a one-shot CLI run or as a long-running HTTP
// service.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/prforge/prforge/pkg/logging"
	"github.com/prforge/prforge/services/agent"
	"github.com/prforge/prforge/services/agent/llm"
)

var (
	flagConfig string

	flagRepo         string
	flagDescription  string
	flagBranch       string
	flagTargetBranch string
	flagMode         string
)

var rootCmd = &cobra.Command{
	Use:   "prforge",
	Short: "Turn change requests into pull requests",
	Long: `prforge drives a language model through repository tools to turn a
natural-language change request into a pull request. It runs either a
deterministic seven-step plan or an autonomous tool-calling loop.`,
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one task and print the result",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer logger.Close()

		executor, err := buildExecutor(cfg)
		if err != nil {
			return err
		}

		request := &agent.TaskRequest{
			Repository:   flagRepo,
			Description:  flagDescription,
			BranchName:   flagBranch,
			TargetBranch: flagTargetBranch,
		}

		var result *agent.TaskResult
		if flagMode == "autonomous" {
			result = executor.RunAutonomous(cmd.Context(), request)
		} else {
			result = executor.RunPlanned(cmd.Context(), request)
		}

		for _, message := range executor.State().Snapshot().ProgressMessages {
			fmt.Fprintln(cmd.OutOrStdout(), message)
		}

		if !result.Success {
			return fmt.Errorf("task failed: %s", result.Error)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Pull request: %s (branch %s)\n", result.PRURL, result.BranchName)
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP task service",
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer logger.Close()

		executor, err := buildExecutor(cfg)
		if err != nil {
			return err
		}

		return agent.NewServer(executor).Run(cfg.Server.Addr)
	},
}

// setup loads configuration and installs the logger.
func setup() (*agent.Config, *logging.Logger, error) {
	cfg, err := agent.LoadConfig(flagConfig)
	if err != nil {
		return nil, nil, err
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Log.Dir,
		Service: "prforge",
		JSON:    true,
	})
	if err != nil {
		return nil, nil, err
	}
	logger.SetAsSlogDefault()

	return cfg, logger, nil
}

// buildExecutor wires the model runner stack behind the executor.
func buildExecutor(cfg *agent.Config) (*agent.Executor, error) {
	runner, err := llm.NewOpenAIRunner(llm.WithModels(cfg.Model.Primary, cfg.Model.Fallback))
	if err != nil {
		return nil, err
	}
	return agent.NewExecutor(llm.NewRetryRunner(runner)), nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "path to config.yaml")

	runCmd.Flags().StringVarP(&flagRepo, "repo", "r", "", "repository (owner/repo or URL)")
	runCmd.Flags().StringVarP(&flagDescription, "message", "m", "", "change request description")
	runCmd.Flags().StringVar(&flagBranch, "branch", "", "feature branch name (derived when empty)")
	runCmd.Flags().StringVar(&flagTargetBranch, "target-branch", "main", "base branch for the pull request")
	runCmd.Flags().StringVar(&flagMode, "mode", "planned", "execution mode: planned or autonomous")
	_ = runCmd.MarkFlagRequired("repo")
	_ = runCmd.MarkFlagRequired("message")

	rootCmd.AddCommand(runCmd, serveCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
