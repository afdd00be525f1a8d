// Copyright (C) 2025 Crashlens Authors (oss@crashlens.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package sourcectx

import (
	"fmt"
	"regexp"
	"strings"
)

// Window limits for extracted context. Fixed constants rather than
// configuration: the window exists to orient a reader, not to ship source
// trees through a crash report.
const (
	// contextRadius is the number of lines shown on each side of the
	// target line.
	contextRadius = 3

	// maxWindowLines is the hard cap on returned lines.
	maxWindowLines = 7

	// maxLineLength is the per-line truncation threshold in characters.
	maxLineLength = 400

	// redactionMarker replaces quoted secret values in returned lines.
	redactionMarker = "<redacted>"

	// truncationMarker terminates lines cut at maxLineLength.
	truncationMarker = "..."
)

// secretAssignmentPattern matches secret-bearing assignments whose quoted
// value must be redacted before a line leaves this subsystem. The key and
// assignment syntax are preserved; only the quoted value is replaced.
var secretAssignmentPattern = regexp.MustCompile(
	`(?i)((?:api[_-]?key|token|password|secret)\s*[=:]\s*)(["'])(?:[^"']*)(["'])`)

// Window is a bounded snippet of source text around a target line.
type Window struct {
	// Lines holds at most maxWindowLines redacted, truncated lines.
	Lines []string

	// StartLine and EndLine are the 1-based inclusive bounds of Lines
	// within the original text.
	StartLine int
	EndLine   int
}

// ExtractWindow computes the context window for targetLine within text.
//
// Description:
//
//	Normalizes line endings, splits the text, and returns the lines
//	from max(1, target-3) through min(lineCount, target+3), each
//	redacted and truncated. Returns ErrExtractionFailed when the target
//	line is non-positive or beyond the end of the text.
//
// Inputs:
//
//	text - The full file content. May use CRLF or LF endings.
//	targetLine - The 1-based line the stack frame points at.
//
// Outputs:
//
//	*Window - The bounded snippet. Nil on error.
//	error - ErrExtractionFailed (wrapped) when targetLine is out of range.
func ExtractWindow(text string, targetLine int) (*Window, error) {
	normalized := strings.ReplaceAll(text, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")
	lines := strings.Split(normalized, "\n")

	if targetLine <= 0 || targetLine > len(lines) {
		return nil, fmt.Errorf("%w: line %d outside 1..%d",
			ErrExtractionFailed, targetLine, len(lines))
	}

	start := max(1, targetLine-contextRadius)
	end := min(len(lines), targetLine+contextRadius)
	if end-start+1 > maxWindowLines {
		end = start + maxWindowLines - 1
	}

	out := make([]string, 0, end-start+1)
	for i := start; i <= end; i++ {
		out = append(out, sanitizeLine(lines[i-1]))
	}

	return &Window{Lines: out, StartLine: start, EndLine: end}, nil
}

// sanitizeLine redacts secret assignments and truncates overlong lines.
// Redaction runs first so a secret beyond the truncation point cannot
// leak a partial value through the cut.
func sanitizeLine(line string) string {
	redacted := secretAssignmentPattern.ReplaceAllString(line,
		"${1}${2}"+redactionMarker+"${3}")
	if len(redacted) > maxLineLength {
		redacted = redacted[:maxLineLength] + truncationMarker
	}
	return redacted
}
