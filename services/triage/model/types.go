// Copyright (C) 2025 Crashlens Authors (oss@crashlens.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package model defines the crash analysis data model shared between the
// analysis engine adapter, the source context enrichment subsystem, and
// the report renderers.
//
// The engine produces a CrashAnalysis (threads, stacks, exception info);
// enrichment attaches SourceContextEntry values to it; renderers read the
// result. All types carry json and yaml tags so a serialized analysis can
// round-trip through the CLI.
package model

// StackFrame is one entry of a thread's call stack, innermost first.
//
// SourceFile, SourceURL, and RawURL originate from debug symbols embedded
// in the dump and are untrusted: they may be crafted to escape the local
// sandbox or to point a fetch at an internal network destination. Nothing
// outside the sourcectx package may dereference them.
type StackFrame struct {
	// Index is the zero-based frame number within the stack.
	Index int `json:"frame" yaml:"frame"`

	// Module is the image or assembly the frame executes in.
	Module string `json:"module,omitempty" yaml:"module,omitempty"`

	// Function is the resolved symbol name, empty when symbols are missing.
	Function string `json:"function,omitempty" yaml:"function,omitempty"`

	// SourceFile is an absolute path recorded in the debug info, if any.
	SourceFile string `json:"source_file,omitempty" yaml:"source_file,omitempty"`

	// Line is the 1-based source line, 0 when unknown.
	Line int `json:"line,omitempty" yaml:"line,omitempty"`

	// SourceURL is a browsable source-hosting page for the frame, if any.
	SourceURL string `json:"source_url,omitempty" yaml:"source_url,omitempty"`

	// RawURL is a direct raw-content URL for the frame's file, if any.
	RawURL string `json:"raw_url,omitempty" yaml:"raw_url,omitempty"`

	// Managed reports whether the frame belongs to managed (runtime-
	// jitted) code as opposed to native code.
	Managed bool `json:"managed" yaml:"managed"`
}

// HasLocation reports whether the frame carries at least one source
// location hint worth enriching.
func (f *StackFrame) HasLocation() bool {
	return f.SourceFile != "" || f.SourceURL != "" || f.RawURL != ""
}

// ThreadInfo describes one thread captured in the dump.
type ThreadInfo struct {
	// ThreadID is a stable identifier (OS thread id as text).
	ThreadID string `json:"thread_id" yaml:"thread_id"`

	// Faulting marks the thread the exception was raised on.
	Faulting bool `json:"faulting" yaml:"faulting"`

	// Frames is the call stack, innermost frame first.
	Frames []StackFrame `json:"frames" yaml:"frames"`

	// SourceContext is the expanded per-thread context list. It is only
	// populated on the faulting thread and holds at most
	// sourcectx.MaxThreadEntries entries.
	SourceContext []SourceContextEntry `json:"source_context,omitempty" yaml:"source_context,omitempty"`
}

// ContextStatus classifies how a SourceContextEntry was produced.
type ContextStatus string

const (
	// StatusLocal means the snippet came from a sandboxed local read.
	StatusLocal ContextStatus = "local"

	// StatusRemote means the snippet was fetched from an allowlisted host.
	StatusRemote ContextStatus = "remote"

	// StatusUnavailable means no usable, trusted location existed.
	StatusUnavailable ContextStatus = "unavailable"

	// StatusError means processing the frame failed; Error holds why.
	StatusError ContextStatus = "error"
)

// SourceContextEntry is one enriched frame: a bounded source snippet plus
// the metadata needed to render it.
//
// Invariant: Lines is only populated when Status is StatusLocal or
// StatusRemote, and never holds more than seven lines.
type SourceContextEntry struct {
	ThreadID   string        `json:"thread_id" yaml:"thread_id"`
	Frame      int           `json:"frame" yaml:"frame"`
	Function   string        `json:"function,omitempty" yaml:"function,omitempty"`
	Module     string        `json:"module,omitempty" yaml:"module,omitempty"`
	SourceFile string        `json:"source_file,omitempty" yaml:"source_file,omitempty"`
	Line       int           `json:"line,omitempty" yaml:"line,omitempty"`
	SourceURL  string        `json:"source_url,omitempty" yaml:"source_url,omitempty"`
	RawURL     string        `json:"raw_url,omitempty" yaml:"raw_url,omitempty"`
	Status     ContextStatus `json:"status" yaml:"status"`
	StartLine  int           `json:"start_line,omitempty" yaml:"start_line,omitempty"`
	EndLine    int           `json:"end_line,omitempty" yaml:"end_line,omitempty"`
	Lines      []string      `json:"lines,omitempty" yaml:"lines,omitempty"`
	Error      string        `json:"error,omitempty" yaml:"error,omitempty"`
}

// ExceptionInfo describes the fault that produced the dump.
type ExceptionInfo struct {
	Type    string `json:"type" yaml:"type"`
	Message string `json:"message,omitempty" yaml:"message,omitempty"`
	Address string `json:"address,omitempty" yaml:"address,omitempty"`
	Code    string `json:"code,omitempty" yaml:"code,omitempty"`
}

// DumpInfo carries metadata about the dump file itself.
type DumpInfo struct {
	Path      string `json:"path" yaml:"path"`
	SizeBytes int64  `json:"size_bytes,omitempty" yaml:"size_bytes,omitempty"`
	Created   string `json:"created,omitempty" yaml:"created,omitempty"`
}

// CrashAnalysis is the complete analysis of one dump, as produced by the
// external engine and enriched in place by the sourcectx subsystem.
type CrashAnalysis struct {
	// ReportID uniquely identifies one analysis report.
	ReportID string `json:"report_id,omitempty" yaml:"report_id,omitempty"`

	// Timestamp is the capture time in RFC 3339 form. Enrichment stamps
	// it when the engine left it empty.
	Timestamp string `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`

	DumpFile  DumpInfo       `json:"dump_file" yaml:"dump_file"`
	Exception *ExceptionInfo `json:"exception,omitempty" yaml:"exception,omitempty"`
	Threads   []ThreadInfo   `json:"threads" yaml:"threads"`

	// SourceContext is the report-level summary context, at most
	// sourcectx.MaxSummaryEntries entries in selection order.
	SourceContext []SourceContextEntry `json:"source_context,omitempty" yaml:"source_context,omitempty"`
}

// FaultingThread returns the first thread marked faulting, or nil.
func (a *CrashAnalysis) FaultingThread() *ThreadInfo {
	for i := range a.Threads {
		if a.Threads[i].Faulting {
			return &a.Threads[i]
		}
	}
	return nil
}
