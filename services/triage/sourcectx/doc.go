// Copyright (C) 2025 Crashlens Authors (oss@crashlens.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package sourcectx enriches a crash analysis with bounded source-code
// context for selected stack frames.
//
// # Overview
//
// For each chosen (thread, frame) pair the subsystem locates the frame's
// source, either on a sandboxed local filesystem or on an allowlisted
// remote hosting provider, and attaches a redacted seven-line snippet to
// the analysis. Every frame-supplied location string is treated as
// untrusted input: a crafted path may try to escape the sandbox, a
// crafted URL may try to leak credentials or reach internal services.
//
// # Pipeline
//
//	Enricher
//	└── Selector            deterministic, budgeted frame selection
//	    ├── SandboxReader   jailed local reads, whole-chain symlink check
//	    └── ResolveRawURL   provider allowlisting + raw-URL inference
//	        └── Fetcher     bounded HTTPS GET, per-pass coalesced cache
//	            └── ExtractWindow   windowing, redaction, truncation
//
// One call to Enricher.Enrich is one self-contained pass over one
// analysis, scoped by a single five-second timeout. Per-frame failures
// are converted into entries with an error status; only a nil analysis
// aborts the pass.
//
// # Security Invariants
//
//   - No remote URL is fetched unless it is https, on the host
//     allowlist, and shaped like the provider's raw-content API.
//   - No local file is read unless every path element from a configured
//     root down to the file is free of symlinks.
//   - Returned lines are redacted for secret-bearing assignments and
//     bounded in both count and length.
//   - Validation rejections are externally indistinguishable from
//     missing locations.
package sourcectx
