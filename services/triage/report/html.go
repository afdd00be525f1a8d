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

	"gitlab.com/golang-commonmark/markdown"

	"github.com/crashlens/crashlens/services/triage/model"
)

const htmlHeader = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Crash Report</title>
<style>
body { font-family: sans-serif; max-width: 60rem; margin: 2rem auto; }
pre { background: #f5f5f5; padding: 0.75rem; overflow-x: auto; }
code { font-family: monospace; }
blockquote { color: #777; border-left: 3px solid #ccc; padding-left: 0.75rem; }
</style>
</head>
<body>
`

const htmlFooter = `</body>
</html>
`

// HTMLRenderer renders the Markdown report through a CommonMark engine
// and wraps it in a minimal standalone page. Snippet lines pass through
// fenced code blocks, so the engine escapes them; no frame-supplied text
// reaches the page unescaped.
type HTMLRenderer struct{}

func (HTMLRenderer) Render(w io.Writer, analysis *model.CrashAnalysis) error {
	var md strings.Builder
	if err := (MarkdownRenderer{}).Render(&md, analysis); err != nil {
		return err
	}

	engine := markdown.New(markdown.XHTMLOutput(true), markdown.Linkify(false))
	body := engine.RenderToString([]byte(md.String()))

	if _, err := fmt.Fprint(w, htmlHeader, body, htmlFooter); err != nil {
		return err
	}
	return nil
}
