// Copyright 2020-2025 Buf Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package span

import (
	"errors"
	"fmt"
)

// ErrInvalidSpan is wrapped by every error describing a span that can never
// be stored, such as one with an inverted range.
var ErrInvalidSpan = errors.New("span: invalid span")

// OverlapError is returned when a span is inserted directly into a
// [Partition] and it intersects a span already stored there.
//
// The consolidation algorithm never produces one; seeing this error means a
// caller bypassed [Consolidator.Apply].
type OverlapError struct {
	// The span that was being inserted.
	Span Span
	// The stored span with the least start that it overlaps.
	Existing Span
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("span: %s overlaps stored span %s", e.Span, e.Existing)
}

// ConsolidationInvariantError is returned when a victim of a consolidation
// does not meet exactly one unresolved fragment of the perpetrator.
//
// Victims are pairwise disjoint and visited in ascending order, so every
// victim overlaps exactly one fragment; anything else is a logic defect.
type ConsolidationInvariantError struct {
	Perpetrator Span
	Victim      Span
	// The number of unmet fragments that overlapped the victim.
	Fragments int
}

func (e *ConsolidationInvariantError) Error() string {
	return fmt.Sprintf(
		"span: impossible overlap: victim %s meets %d unmet fragments of %s",
		e.Victim, e.Fragments, e.Perpetrator,
	)
}
