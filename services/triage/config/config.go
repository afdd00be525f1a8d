// Copyright (C) 2025 Crashlens Authors (oss@crashlens.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads Crashlens configuration from the environment and
// an optional YAML settings file.
//
// The only security-relevant setting a user controls is the list of
// local source roots. Host allowlists, fetch size limits, timeouts, and
// window sizes are fixed constants inside the sourcectx package and are
// not configurable.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// EnvSourceRoots names the environment variable listing local source
// root directories, separated by the platform's path-list separator
// (':' on Unix, ';' on Windows). Empty or absent disables local reads.
const EnvSourceRoots = "CRASHLENS_SOURCE_ROOTS"

// Settings is the CLI configuration, loadable from a YAML file and
// overridable by flags and environment.
type Settings struct {
	// SourceRoots are sandbox roots for local source reads.
	SourceRoots []string `yaml:"source_roots" validate:"dive,required"`

	// Format selects the report renderer.
	Format string `yaml:"format" validate:"omitempty,oneof=json yaml markdown html"`

	// Output is the report destination path; empty means stdout.
	Output string `yaml:"output"`
}

var validate = validator.New()

// Default returns settings with source roots taken from the environment
// and JSON output.
func Default() *Settings {
	return &Settings{
		SourceRoots: SourceRootsFromEnv(),
		Format:      "json",
	}
}

// Load reads settings from a YAML file, merging in environment roots
// when the file names none.
//
// Outputs:
//
//	*Settings - The validated settings.
//	error - Non-nil when the file is unreadable, unparsable, or invalid.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	settings := Default()
	settings.SourceRoots = nil
	if err := yaml.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if len(settings.SourceRoots) == 0 {
		settings.SourceRoots = SourceRootsFromEnv()
	}
	if settings.Format == "" {
		settings.Format = "json"
	}

	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

// Validate checks the settings against their struct tags.
func (s *Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	return nil
}

// SourceRootsFromEnv parses EnvSourceRoots into a root list, dropping
// empty elements. Relative roots are kept here; the sandbox reader
// refuses them at use time.
func SourceRootsFromEnv() []string {
	raw := os.Getenv(EnvSourceRoots)
	if raw == "" {
		return nil
	}

	var roots []string
	for _, root := range filepath.SplitList(raw) {
		if root != "" {
			roots = append(roots, root)
		}
	}
	return roots
}
