// Copyright (C) 2025 Crashlens Authors (oss@crashlens.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package sourcectx

import "errors"

// Sentinel errors for the enrichment pipeline. Per-frame failures are
// classified with these and folded into the produced entry; none of them
// ever aborts a pass.
var (
	// ErrNilAnalysis is the only error Enrich returns: the caller passed
	// a nil analysis, which is a contract violation rather than a
	// runtime condition.
	ErrNilAnalysis = errors.New("sourcectx: nil crash analysis")

	// ErrUnavailable means no usable source location exists for a frame.
	// Benign and expected; it maps to StatusUnavailable, never to an
	// error message.
	ErrUnavailable = errors.New("sourcectx: no usable source location")

	// ErrValidationRejected means a candidate URL failed a security
	// check. It is always folded into ErrUnavailable before anything
	// user-visible is produced, so output never reveals which rule
	// rejected an attacker-supplied URL.
	ErrValidationRejected = errors.New("sourcectx: url rejected by validation")

	// ErrFetchFailed covers transport, status, content-type, size, and
	// timeout failures while retrieving remote content.
	ErrFetchFailed = errors.New("sourcectx: remote fetch failed")

	// ErrExtractionFailed means the target line fell outside the bounds
	// of the retrieved text.
	ErrExtractionFailed = errors.New("sourcectx: context extraction failed")

	// ErrLocalReadRefused covers sandbox policy violations and local I/O
	// failures. The pipeline falls through to remote resolution when a
	// local read is refused.
	ErrLocalReadRefused = errors.New("sourcectx: local read refused")
)
