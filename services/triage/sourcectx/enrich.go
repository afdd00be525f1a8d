// Copyright (C) 2025 Crashlens Authors (oss@crashlens.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package sourcectx

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/crashlens/crashlens/services/triage/model"
)

const (
	// DefaultPassTimeout scopes one whole enrichment pass.
	DefaultPassTimeout = 5 * time.Second

	// enrichConcurrency bounds in-flight candidate processing. Entry
	// order is fixed by selection order regardless of completion order.
	enrichConcurrency = 4
)

// Config carries the constructor-injected configuration for an Enricher.
// There is no package-level mutable state; two Enrichers with different
// configs can run concurrently.
type Config struct {
	// SourceRoots are the sandbox roots for local reads. Empty disables
	// local reads entirely (remote-only mode).
	SourceRoots []string

	// PassTimeout overrides DefaultPassTimeout when positive.
	PassTimeout time.Duration

	// Transport overrides the HTTP transport. Tests inject fakes here.
	Transport http.RoundTripper

	// Classifier decides frame meaningfulness. Nil admits every frame.
	Classifier FrameClassifier

	// Logger defaults to slog.Default() when nil.
	Logger *slog.Logger
}

// Enricher runs enrichment passes over crash analyses.
//
// Thread Safety:
//
//	Enricher is immutable after construction; each Enrich call builds
//	its own per-pass state (fetcher, cache) and is safe to run
//	concurrently with other calls.
type Enricher struct {
	sandbox   *SandboxReader
	selector  *Selector
	transport http.RoundTripper
	timeout   time.Duration
	logger    *slog.Logger
}

// NewEnricher creates an enricher from the given configuration.
func NewEnricher(cfg Config) *Enricher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.PassTimeout
	if timeout <= 0 {
		timeout = DefaultPassTimeout
	}

	return &Enricher{
		sandbox:   NewSandboxReader(cfg.SourceRoots, logger),
		selector:  NewSelector(cfg.Classifier),
		transport: cfg.Transport,
		timeout:   timeout,
		logger:    logger.With(slog.String("component", "source_enricher")),
	}
}

// Enrich mutates the analysis in place with source context.
//
// Description:
//
//	Stamps a capture timestamp and report ID when absent, selects the
//	summary candidates, and processes each through the local → remote →
//	unavailable pipeline. The faulting thread additionally receives an
//	expanded context list capped at MaxThreadEntries. One timeout
//	scopes the whole pass; on expiry, unfinished candidates become
//	error entries while completed ones are preserved.
//
// Inputs:
//
//	ctx - Parent context; the pass timeout is layered on top of it.
//	analysis - The analysis to enrich. Must be non-nil.
//	generatedAt - Capture time used when the engine left none.
//
// Outputs:
//
//	error - ErrNilAnalysis for a nil analysis; nil otherwise. Per-frame
//	        failures never surface here.
func (e *Enricher) Enrich(ctx context.Context, analysis *model.CrashAnalysis, generatedAt time.Time) error {
	if analysis == nil {
		return ErrNilAnalysis
	}

	ctx, span := tracer.Start(ctx, "sourcectx.enrich")
	defer span.End()

	if analysis.Timestamp == "" {
		analysis.Timestamp = generatedAt.UTC().Format(time.RFC3339)
	}
	if analysis.ReportID == "" {
		analysis.ReportID = uuid.NewString()
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	// Per-pass state: the fetch cache lives and dies with this pass.
	fetcher := NewFetcher(e.transport, e.logger)

	summary := e.selector.SelectSummary(analysis)
	analysis.SourceContext = e.processAll(ctx, fetcher, summary)

	if faulting := analysis.FaultingThread(); faulting != nil {
		expanded := e.selector.SelectExpanded(faulting)
		faulting.SourceContext = e.processAll(ctx, fetcher, expanded)
	}

	span.SetAttributes(
		attribute.Int("summary_entries", len(analysis.SourceContext)),
		attribute.String("report_id", analysis.ReportID),
	)
	e.logger.Info("enrichment pass complete",
		"report_id", analysis.ReportID,
		"summary_entries", len(analysis.SourceContext))
	return nil
}

// processAll turns candidates into entries, fanning out across a bounded
// worker pool. The returned slice is index-aligned with the candidate
// list, so emitted order always equals selection order.
func (e *Enricher) processAll(ctx context.Context, fetcher *Fetcher, candidates []Candidate) []model.SourceContextEntry {
	if len(candidates) == 0 {
		return nil
	}

	entries := make([]model.SourceContextEntry, len(candidates))

	g := new(errgroup.Group)
	g.SetLimit(enrichConcurrency)
	for i, c := range candidates {
		i, c := i, c
		g.Go(func() error {
			entries[i] = e.processCandidate(ctx, fetcher, c)
			return nil
		})
	}
	// Workers never return errors; failures live inside their entries.
	_ = g.Wait()

	for i := range entries {
		recordEntry(ctx, string(entries[i].Status))
	}
	return entries
}

// processCandidate runs one frame through local read, remote fetch, or
// unavailable, converting every failure (including panics) into the
// entry itself.
func (e *Enricher) processCandidate(ctx context.Context, fetcher *Fetcher, c Candidate) (entry model.SourceContextEntry) {
	frame := c.Frame
	entry = model.SourceContextEntry{
		ThreadID:   c.Thread.ThreadID,
		Frame:      frame.Index,
		Function:   frame.Function,
		Module:     frame.Module,
		SourceFile: frame.SourceFile,
		Line:       frame.Line,
		SourceURL:  frame.SourceURL,
		RawURL:     frame.RawURL,
	}

	defer func() {
		if r := recover(); r != nil {
			entry.Status = model.StatusError
			entry.Error = fmt.Sprintf("panic: %v", r)
			entry.Lines = nil
			entry.StartLine, entry.EndLine = 0, 0
			e.logger.Error("candidate processing panicked",
				"thread", entry.ThreadID, "frame", entry.Frame, "panic", r)
		}
	}()

	if err := ctx.Err(); err != nil {
		entry.Status = model.StatusError
		entry.Error = "pass cancelled: " + err.Error()
		return entry
	}

	if frame.SourceFile != "" && e.sandbox.Enabled() {
		if window, err := e.sandbox.Read(frame.SourceFile, frame.Line); err == nil {
			entry.Status = model.StatusLocal
			entry.Lines = window.Lines
			entry.StartLine = window.StartLine
			entry.EndLine = window.EndLine
			return entry
		}
		// Refused local reads fall through to remote resolution.
	}

	resolved, ok := ResolveRawURL(frame)
	if !ok {
		entry.Status = model.StatusUnavailable
		return entry
	}
	entry.RawURL = resolved.String()

	text, err := fetcher.Fetch(ctx, resolved)
	if err != nil {
		entry.Status = model.StatusError
		entry.Error = err.Error()
		return entry
	}

	window, err := ExtractWindow(text, frame.Line)
	if err != nil {
		entry.Status = model.StatusError
		entry.Error = err.Error()
		return entry
	}

	entry.Status = model.StatusRemote
	entry.Lines = window.Lines
	entry.StartLine = window.StartLine
	entry.EndLine = window.EndLine
	return entry
}
