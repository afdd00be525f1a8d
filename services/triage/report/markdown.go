// Copyright (C) 2025 Crashlens Authors (oss@crashlens.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/crashlens/crashlens/services/triage/model"
)

// MarkdownRenderer emits a human-readable Markdown report: crash summary,
// faulting thread first, per-thread stacks, and source context blocks.
type MarkdownRenderer struct{}

func (MarkdownRenderer) Render(w io.Writer, analysis *model.CrashAnalysis) error {
	var b strings.Builder

	b.WriteString("# Crash Report\n\n")
	if analysis.ReportID != "" {
		fmt.Fprintf(&b, "- **Report**: `%s`\n", analysis.ReportID)
	}
	if analysis.Timestamp != "" {
		fmt.Fprintf(&b, "- **Captured**: %s\n", analysis.Timestamp)
	}
	if analysis.DumpFile.Path != "" {
		fmt.Fprintf(&b, "- **Dump**: `%s`", analysis.DumpFile.Path)
		if analysis.DumpFile.SizeBytes > 0 {
			fmt.Fprintf(&b, " (%d bytes)", analysis.DumpFile.SizeBytes)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if ex := analysis.Exception; ex != nil {
		b.WriteString("## Exception\n\n")
		fmt.Fprintf(&b, "- **Type**: `%s`\n", ex.Type)
		if ex.Message != "" {
			fmt.Fprintf(&b, "- **Message**: %s\n", ex.Message)
		}
		if ex.Address != "" {
			fmt.Fprintf(&b, "- **Address**: `%s`\n", ex.Address)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Threads\n\n")
	writeThread := func(t *model.ThreadInfo) {
		marker := ""
		if t.Faulting {
			marker = " (faulting)"
		}
		fmt.Fprintf(&b, "### Thread %s%s\n\n", t.ThreadID, marker)
		for i := range t.Frames {
			f := &t.Frames[i]
			fmt.Fprintf(&b, "%d. `%s!%s`", f.Index, f.Module, f.Function)
			if f.SourceFile != "" && f.Line > 0 {
				fmt.Fprintf(&b, " (%s:%d)", f.SourceFile, f.Line)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		if len(t.SourceContext) > 0 {
			fmt.Fprintf(&b, "#### Source context (%d frames)\n\n", len(t.SourceContext))
			for i := range t.SourceContext {
				writeContextEntry(&b, &t.SourceContext[i])
			}
		}
	}
	if faulting := analysis.FaultingThread(); faulting != nil {
		writeThread(faulting)
	}
	for i := range analysis.Threads {
		if !analysis.Threads[i].Faulting {
			writeThread(&analysis.Threads[i])
		}
	}

	if len(analysis.SourceContext) > 0 {
		b.WriteString("## Source Context\n\n")
		for i := range analysis.SourceContext {
			writeContextEntry(&b, &analysis.SourceContext[i])
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// writeContextEntry renders one entry as a fenced snippet, or its status
// when no lines are available. Failed entries render inline rather than
// being dropped.
func writeContextEntry(b *strings.Builder, entry *model.SourceContextEntry) {
	location := entry.SourceFile
	if location == "" {
		location = entry.RawURL
	}
	fmt.Fprintf(b, "**Thread %s frame %d** `%s` %s:%d (%s)\n\n",
		entry.ThreadID, entry.Frame, entry.Function, location, entry.Line, entry.Status)

	switch entry.Status {
	case model.StatusLocal, model.StatusRemote:
		b.WriteString("```\n")
		for i, line := range entry.Lines {
			fmt.Fprintf(b, "%4d  %s\n", entry.StartLine+i, line)
		}
		b.WriteString("```\n\n")
	case model.StatusError:
		fmt.Fprintf(b, "> %s\n\n", entry.Error)
	default:
		b.WriteString("> no source available\n\n")
	}
}
