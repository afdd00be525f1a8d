// Copyright (C) 2025 Crashlens Authors (oss@crashlens.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package report renders an enriched crash analysis as JSON, YAML,
// Markdown, or HTML. Renderers read the analysis read-only; all
// enrichment happens upstream in sourcectx.
package report

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/crashlens/crashlens/services/triage/model"
)

// Renderer writes one analysis to a writer in a fixed format.
type Renderer interface {
	Render(w io.Writer, analysis *model.CrashAnalysis) error
}

// ForFormat returns the renderer for a format name.
//
// Outputs:
//
//	Renderer - One of json, yaml, markdown, html.
//	error - Non-nil for an unknown format.
func ForFormat(format string) (Renderer, error) {
	switch format {
	case "json":
		return JSONRenderer{}, nil
	case "yaml":
		return YAMLRenderer{}, nil
	case "markdown":
		return MarkdownRenderer{}, nil
	case "html":
		return HTMLRenderer{}, nil
	default:
		return nil, fmt.Errorf("unknown report format %q", format)
	}
}

// JSONRenderer emits the canonical machine-readable report payload.
type JSONRenderer struct{}

func (JSONRenderer) Render(w io.Writer, analysis *model.CrashAnalysis) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(analysis)
}

// YAMLRenderer emits the analysis as YAML.
type YAMLRenderer struct{}

func (YAMLRenderer) Render(w io.Writer, analysis *model.CrashAnalysis) error {
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(analysis)
}
