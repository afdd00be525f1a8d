// Copyright (C) 2025 Crashlens Authors (oss@crashlens.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package frameclass decides which stack frames are meaningful enough to
// deserve source context. Runtime, allocator, and unwinding frames tell
// a reader nothing about their crash; the classifier filters them so
// enrichment spends its budget on application frames.
package frameclass

import (
	"strings"

	"github.com/crashlens/crashlens/services/triage/model"
)

// infrastructureModules are module-name prefixes (lowercased) for OS and
// runtime images whose frames are never meaningful.
var infrastructureModules = []string{
	"ntdll",
	"kernel32",
	"kernelbase",
	"ucrtbase",
	"msvcrt",
	"vcruntime",
	"coreclr",
	"clr",
	"mscorwks",
	"libc",
	"libpthread",
	"libstdc++",
	"ld-linux",
	"libsystem_",
	"libdyld",
}

// infrastructureFunctions are function-name prefixes for runtime
// plumbing that survives symbolization inside otherwise-application
// modules.
var infrastructureFunctions = []string{
	"__libc_",
	"_start",
	"abort",
	"raise",
	"RtlUserThreadStart",
	"BaseThreadInitThunk",
	"JIT_",
	"GCHeap::",
	"WKS::gc_heap",
	"SVR::gc_heap",
	"ThreadNative::",
	"DebuggerU2MCatchHandlerFrame",
	"HelperMethodFrame",
	"System.Threading.ThreadPoolWorkQueue",
	"System.Runtime.CompilerServices.AsyncMethodBuilderCore",
}

// Classifier is the default meaningful-frame classifier.
//
// Thread Safety:
//
//	Classifier is immutable after construction and safe for concurrent
//	use.
type Classifier struct {
	modulePrefixes   []string
	functionPrefixes []string
}

// NewClassifier creates a classifier with the default filter tables.
func NewClassifier() *Classifier {
	return &Classifier{
		modulePrefixes:   infrastructureModules,
		functionPrefixes: infrastructureFunctions,
	}
}

// Meaningful reports whether a frame represents application code worth
// showing source for. Frames without a resolved function are never
// meaningful; neither are frames in known runtime modules or runtime
// plumbing functions.
func (c *Classifier) Meaningful(frame *model.StackFrame) bool {
	if frame.Function == "" {
		return false
	}

	module := strings.ToLower(frame.Module)
	for _, prefix := range c.modulePrefixes {
		if strings.HasPrefix(module, prefix) {
			return false
		}
	}

	for _, prefix := range c.functionPrefixes {
		if strings.HasPrefix(frame.Function, prefix) {
			return false
		}
	}

	return true
}
