// Copyright (C) 2025 Crashlens Authors (oss@crashlens.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command crashlens enriches and renders crash-dump analyses.
//
// An external analysis engine drives the debugger and emits a structured
// analysis (threads, stacks, exception info) as JSON. Crashlens attaches
// bounded, redacted source context to the interesting frames and renders
// the result.
//
// Usage:
//
//	crashlens analyze dump-analysis.json
//	crashlens analyze dump-analysis.json --format markdown -o report.md
//	CRASHLENS_SOURCE_ROOTS=/src/myapp crashlens analyze dump-analysis.json
package main

import (
	"os"

	"github.com/crashlens/crashlens/pkg/logging"
)

func main() {
	logger := logging.Default()
	defer logger.Close()

	if err := newRootCmd(logger).Execute(); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}
