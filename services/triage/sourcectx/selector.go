// Copyright (C) 2025 Crashlens Authors (oss@crashlens.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package sourcectx

import "github.com/crashlens/crashlens/services/triage/model"

// Selection budgets. Fixed constants, like the window limits.
const (
	// MaxSummaryEntries caps the report-level source context list.
	MaxSummaryEntries = 10

	// MaxThreadEntries caps the expanded faulting-thread context list.
	MaxThreadEntries = 1000

	// maxPerNonFaultingThread caps candidates from each non-faulting
	// thread so one busy thread cannot consume the summary budget.
	maxPerNonFaultingThread = 2

	// reservedManagedSlots holds back summary slots for the first
	// managed frames of the faulting thread, so a native-heavy top of
	// stack never crowds out managed context.
	reservedManagedSlots = 2
)

// FrameClassifier decides whether a frame is meaningful enough to deserve
// source context. The default implementation lives in the frameclass
// package; tests substitute their own.
type FrameClassifier interface {
	Meaningful(frame *model.StackFrame) bool
}

// Candidate is one (thread, frame) pair chosen for enrichment.
type Candidate struct {
	Thread *model.ThreadInfo
	Frame  *model.StackFrame
}

// Selector chooses which frames receive source context, under the global
// and per-thread budgets. Selection is deterministic: identical input
// always yields identical output order.
//
// Thread Safety:
//
//	Selector is immutable after construction and safe for concurrent
//	use.
type Selector struct {
	classifier FrameClassifier
}

// NewSelector creates a selector using the given classifier.
func NewSelector(classifier FrameClassifier) *Selector {
	return &Selector{classifier: classifier}
}

// SelectSummary returns the summary candidates for one analysis, at most
// MaxSummaryEntries, with the faulting thread (if any) contributing
// first and other threads following in their original order.
func (s *Selector) SelectSummary(analysis *model.CrashAnalysis) []Candidate {
	budget := MaxSummaryEntries
	var out []Candidate

	faulting := analysis.FaultingThread()
	if faulting != nil {
		picked := s.selectFaulting(faulting, budget)
		out = append(out, picked...)
		budget -= len(picked)
	}

	for i := range analysis.Threads {
		if budget <= 0 {
			break
		}
		thread := &analysis.Threads[i]
		if thread == faulting {
			continue
		}

		taken := 0
		for j := range thread.Frames {
			if budget <= 0 || taken >= maxPerNonFaultingThread {
				break
			}
			frame := &thread.Frames[j]
			if !s.eligible(frame) {
				continue
			}
			out = append(out, Candidate{Thread: thread, Frame: frame})
			taken++
			budget--
		}
	}

	return out
}

// SelectExpanded returns every eligible candidate of one thread in stack
// order, capped at MaxThreadEntries. Used for the expanded context list
// attached to the faulting thread.
func (s *Selector) SelectExpanded(thread *model.ThreadInfo) []Candidate {
	var out []Candidate
	for i := range thread.Frames {
		if len(out) >= MaxThreadEntries {
			break
		}
		frame := &thread.Frames[i]
		if s.eligible(frame) {
			out = append(out, Candidate{Thread: thread, Frame: frame})
		}
	}
	return out
}

// selectFaulting picks the faulting thread's summary candidates within
// budget. The first reservedManagedSlots managed candidates in stack
// order always get in; other candidates are admitted in stack order only
// while doing so leaves enough slots for the outstanding reservation.
func (s *Selector) selectFaulting(thread *model.ThreadInfo, budget int) []Candidate {
	if budget > MaxSummaryEntries {
		budget = MaxSummaryEntries
	}

	var candidates []Candidate
	for i := range thread.Frames {
		frame := &thread.Frames[i]
		if s.eligible(frame) {
			candidates = append(candidates, Candidate{Thread: thread, Frame: frame})
		}
	}

	reserved := make(map[int]bool, reservedManagedSlots)
	for i, c := range candidates {
		if len(reserved) >= reservedManagedSlots {
			break
		}
		if c.Frame.Managed {
			reserved[i] = true
		}
	}

	out := make([]Candidate, 0, budget)
	outstanding := len(reserved)
	for i, c := range candidates {
		if len(out) >= budget {
			break
		}
		if reserved[i] {
			out = append(out, c)
			outstanding--
			continue
		}
		// Admitting a non-reserved frame must not starve the managed
		// reservation given the slots left.
		if budget-len(out)-1 >= outstanding {
			out = append(out, c)
		}
	}

	return out
}

// eligible applies the candidate rule: classifier-meaningful, a positive
// line number, and at least one source location hint.
func (s *Selector) eligible(frame *model.StackFrame) bool {
	if frame.Line <= 0 || !frame.HasLocation() {
		return false
	}
	return s.classifier == nil || s.classifier.Meaningful(frame)
}
