// Copyright (C) 2025 Crashlens Authors (oss@crashlens.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package sourcectx

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// SandboxReader performs read-only, root-jailed access to local source
// files. Frame-supplied paths are untrusted; the reader refuses anything
// that is not provably a plain file reached through a symlink-free chain
// of directories under a configured root.
//
// Thread Safety:
//
//	SandboxReader is immutable after construction and safe for
//	concurrent use.
type SandboxReader struct {
	roots  []string
	logger *slog.Logger
}

// NewSandboxReader creates a reader jailed to the given root directories.
//
// Description:
//
//	Roots are cleaned and made absolute; relative or empty roots are
//	dropped. A reader with zero roots is valid but refuses every read
//	(remote-only mode).
//
// Inputs:
//
//	roots - Candidate sandbox roots, typically from configuration.
//	logger - Logger for refusal events. If nil, uses slog.Default().
func NewSandboxReader(roots []string, logger *slog.Logger) *SandboxReader {
	if logger == nil {
		logger = slog.Default()
	}

	cleaned := make([]string, 0, len(roots))
	for _, r := range roots {
		r = strings.TrimSpace(r)
		if r == "" || !filepath.IsAbs(r) {
			continue
		}
		cleaned = append(cleaned, filepath.Clean(r))
	}

	return &SandboxReader{
		roots:  cleaned,
		logger: logger.With(slog.String("component", "sandbox_reader")),
	}
}

// Enabled reports whether any sandbox root is configured.
func (r *SandboxReader) Enabled() bool {
	return len(r.roots) > 0
}

// Read returns the context window around targetLine in the file at path.
//
// Description:
//
//	Enforces the sandbox policy before touching file content: the path
//	must be absolute, must resolve under a configured root (longest
//	matching root wins), and neither the root, nor any directory
//	between root and file, nor the file itself may be a symlink or
//	reparse point. An intermediate symlink planted inside a trusted
//	root would otherwise redirect the read outside the sandbox.
//
// Outputs:
//
//	*Window - The extracted snippet on success.
//	error - ErrLocalReadRefused (wrapped) on any policy or I/O failure,
//	        ErrExtractionFailed when the line is out of range.
func (r *SandboxReader) Read(path string, targetLine int) (*Window, error) {
	if !r.Enabled() {
		return nil, fmt.Errorf("%w: no sandbox roots configured", ErrLocalReadRefused)
	}
	if !filepath.IsAbs(path) {
		return nil, fmt.Errorf("%w: relative path %q", ErrLocalReadRefused, path)
	}

	clean := filepath.Clean(path)
	root := r.matchRoot(clean)
	if root == "" {
		r.logger.Debug("path outside sandbox roots", "path", clean)
		return nil, fmt.Errorf("%w: path outside configured roots", ErrLocalReadRefused)
	}

	if err := verifyChain(root, clean); err != nil {
		r.logger.Warn("sandbox chain check failed", "path", clean, "error", err)
		return nil, err
	}

	data, err := os.ReadFile(clean)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLocalReadRefused, err)
	}

	return ExtractWindow(string(data), targetLine)
}

// matchRoot returns the longest configured root that contains path, or ""
// when no root does.
func (r *SandboxReader) matchRoot(path string) string {
	best := ""
	for _, root := range r.roots {
		if path != root && !strings.HasPrefix(path, root+string(filepath.Separator)) {
			continue
		}
		if len(root) > len(best) {
			best = root
		}
	}
	return best
}

// verifyChain checks every element from root down to path inclusive:
// the root must be a real directory, every intermediate element a real
// directory, and the leaf a regular file. Any symlink anywhere in the
// chain refuses the read.
func verifyChain(root, path string) error {
	info, err := os.Lstat(root)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLocalReadRefused, err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return fmt.Errorf("%w: root %q is a symlink", ErrLocalReadRefused, root)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: root %q is not a directory", ErrLocalReadRefused, root)
	}

	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("%w: path escapes root", ErrLocalReadRefused)
	}

	current := root
	parts := strings.Split(rel, string(filepath.Separator))
	for i, part := range parts {
		current = filepath.Join(current, part)

		info, err := os.Lstat(current)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrLocalReadRefused, err)
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("%w: %q is a symlink", ErrLocalReadRefused, current)
		}

		leaf := i == len(parts)-1
		if leaf && !info.Mode().IsRegular() {
			return fmt.Errorf("%w: %q is not a regular file", ErrLocalReadRefused, current)
		}
		if !leaf && !info.IsDir() {
			return fmt.Errorf("%w: %q is not a directory", ErrLocalReadRefused, current)
		}
	}

	return nil
}
