// Copyright (C) 2025 Crashlens Authors (oss@crashlens.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/crashlens/crashlens/pkg/logging"
	"github.com/crashlens/crashlens/services/triage/config"
	"github.com/crashlens/crashlens/services/triage/frameclass"
	"github.com/crashlens/crashlens/services/triage/model"
	"github.com/crashlens/crashlens/services/triage/report"
	"github.com/crashlens/crashlens/services/triage/sourcectx"
)

const version = "0.3.0"

func newRootCmd(logger *logging.Logger) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "crashlens",
		Short:         "Crash-dump triage with source context enrichment",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newAnalyzeCmd(logger))
	return rootCmd
}

func newAnalyzeCmd(logger *logging.Logger) *cobra.Command {
	var (
		configPath string
		format     string
		output     string
		roots      []string
		timeout    time.Duration
	)

	analyzeCmd := &cobra.Command{
		Use:   "analyze <analysis.json>",
		Short: "Enrich an engine-produced analysis and render a report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings(configPath)
			if err != nil {
				return err
			}
			if format != "" {
				settings.Format = format
			}
			if output != "" {
				settings.Output = output
			}
			if len(roots) > 0 {
				settings.SourceRoots = roots
			}
			if err := settings.Validate(); err != nil {
				return err
			}

			return runAnalyze(cmd, args[0], settings, timeout, logger)
		},
	}

	analyzeCmd.Flags().StringVar(&configPath, "config", "", "Path to a YAML settings file")
	analyzeCmd.Flags().StringVarP(&format, "format", "f", "", "Report format: json, yaml, markdown, html")
	analyzeCmd.Flags().StringVarP(&output, "output", "o", "", "Report destination path (default stdout)")
	analyzeCmd.Flags().StringSliceVar(&roots, "source-root", nil,
		"Local source root directory (repeatable; overrides "+config.EnvSourceRoots+")")
	analyzeCmd.Flags().DurationVar(&timeout, "timeout", sourcectx.DefaultPassTimeout,
		"Time budget for one enrichment pass")
	return analyzeCmd
}

func loadSettings(configPath string) (*config.Settings, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	return config.Load(configPath)
}

func runAnalyze(cmd *cobra.Command, analysisPath string, settings *config.Settings, timeout time.Duration, logger *logging.Logger) error {
	data, err := os.ReadFile(analysisPath)
	if err != nil {
		return fmt.Errorf("reading analysis: %w", err)
	}

	var analysis model.CrashAnalysis
	if err := json.Unmarshal(data, &analysis); err != nil {
		return fmt.Errorf("parsing analysis: %w", err)
	}

	enricher := sourcectx.NewEnricher(sourcectx.Config{
		SourceRoots: settings.SourceRoots,
		PassTimeout: timeout,
		Classifier:  frameclass.NewClassifier(),
		Logger:      logger.Slog(),
	})
	if err := enricher.Enrich(cmd.Context(), &analysis, time.Now()); err != nil {
		return fmt.Errorf("enriching analysis: %w", err)
	}

	renderer, err := report.ForFormat(settings.Format)
	if err != nil {
		return err
	}

	out := os.Stdout
	if settings.Output != "" {
		file, err := os.Create(settings.Output)
		if err != nil {
			return fmt.Errorf("creating report: %w", err)
		}
		defer file.Close()
		out = file
	}

	if err := renderer.Render(out, &analysis); err != nil {
		return fmt.Errorf("rendering report: %w", err)
	}

	logger.Info("report written",
		"report_id", analysis.ReportID,
		"format", settings.Format,
		"entries", len(analysis.SourceContext))
	return nil
}
