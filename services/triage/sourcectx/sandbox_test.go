// Copyright (C) 2025 Crashlens Authors (oss@crashlens.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package sourcectx

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSourceFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestSandboxReader_ReadsFileUnderRoot(t *testing.T) {
	root := t.TempDir()
	path := writeSourceFile(t, root, "pkg/main.go", "one\ntwo\nthree\nfour\nfive\n")

	reader := NewSandboxReader([]string{root}, nil)
	window, err := reader.Read(path, 3)
	require.NoError(t, err)

	assert.Equal(t, 1, window.StartLine)
	assert.Equal(t, "three", window.Lines[2])
}

func TestSandboxReader_DisabledWithoutRoots(t *testing.T) {
	root := t.TempDir()
	path := writeSourceFile(t, root, "main.go", "package main\n")

	reader := NewSandboxReader(nil, nil)
	assert.False(t, reader.Enabled())

	_, err := reader.Read(path, 1)
	assert.ErrorIs(t, err, ErrLocalReadRefused)
}

func TestSandboxReader_RefusesRelativePath(t *testing.T) {
	reader := NewSandboxReader([]string{t.TempDir()}, nil)

	_, err := reader.Read("pkg/main.go", 1)
	assert.ErrorIs(t, err, ErrLocalReadRefused)
}

func TestSandboxReader_RefusesPathOutsideRoots(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	path := writeSourceFile(t, outside, "main.go", "package main\n")

	reader := NewSandboxReader([]string{root}, nil)
	_, err := reader.Read(path, 1)
	assert.ErrorIs(t, err, ErrLocalReadRefused)
}

func TestSandboxReader_RefusesTraversalEscape(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "root")
	require.NoError(t, os.MkdirAll(root, 0755))
	writeSourceFile(t, parent, "secret.txt", "credentials\n")

	reader := NewSandboxReader([]string{root}, nil)
	_, err := reader.Read(filepath.Join(root, "..", "secret.txt"), 1)
	assert.ErrorIs(t, err, ErrLocalReadRefused)
}

func TestSandboxReader_RefusesMissingFile(t *testing.T) {
	root := t.TempDir()

	reader := NewSandboxReader([]string{root}, nil)
	_, err := reader.Read(filepath.Join(root, "gone.go"), 1)
	assert.ErrorIs(t, err, ErrLocalReadRefused)
}

func TestSandboxReader_RefusesSymlinkLeaf(t *testing.T) {
	requireSymlinks(t)
	root := t.TempDir()
	target := writeSourceFile(t, root, "real.go", "package main\n")
	link := filepath.Join(root, "link.go")
	require.NoError(t, os.Symlink(target, link))

	reader := NewSandboxReader([]string{root}, nil)
	_, err := reader.Read(link, 1)
	assert.ErrorIs(t, err, ErrLocalReadRefused)
}

func TestSandboxReader_RefusesSymlinkedIntermediateDir(t *testing.T) {
	requireSymlinks(t)
	root := t.TempDir()
	writeSourceFile(t, root, "real/File.cs", "class Foo {}\n")
	link := filepath.Join(root, "link")
	require.NoError(t, os.Symlink(filepath.Join(root, "real"), link))

	reader := NewSandboxReader([]string{root}, nil)

	// The same file is readable through the real directory...
	_, err := reader.Read(filepath.Join(root, "real", "File.cs"), 1)
	require.NoError(t, err)

	// ...but not through the planted symlink.
	_, err = reader.Read(filepath.Join(link, "File.cs"), 1)
	assert.ErrorIs(t, err, ErrLocalReadRefused)
}

func TestSandboxReader_RefusesSymlinkedRoot(t *testing.T) {
	requireSymlinks(t)
	parent := t.TempDir()
	real := filepath.Join(parent, "real")
	require.NoError(t, os.MkdirAll(real, 0755))
	writeSourceFile(t, real, "main.go", "package main\n")

	linkRoot := filepath.Join(parent, "linkroot")
	require.NoError(t, os.Symlink(real, linkRoot))

	reader := NewSandboxReader([]string{linkRoot}, nil)
	_, err := reader.Read(filepath.Join(linkRoot, "main.go"), 1)
	assert.ErrorIs(t, err, ErrLocalReadRefused)
}

func TestSandboxReader_LongestRootWins(t *testing.T) {
	outer := t.TempDir()
	inner := filepath.Join(outer, "inner")
	path := writeSourceFile(t, inner, "main.go", "package main\n")

	reader := NewSandboxReader([]string{outer, inner}, nil)
	window, err := reader.Read(path, 1)
	require.NoError(t, err)
	assert.Equal(t, "package main", window.Lines[0])
}

func TestSandboxReader_DropsRelativeRoots(t *testing.T) {
	reader := NewSandboxReader([]string{"relative/root", "", "  "}, nil)
	assert.False(t, reader.Enabled())
}

func requireSymlinks(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("symlink creation requires elevation on windows")
	}
}
