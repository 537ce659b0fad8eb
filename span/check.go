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
	"fmt"
	"unicode/utf8"
)

// Validate checks that s could be applied to this consolidator's text.
//
// Every error it returns wraps [ErrInvalidSpan].
func (c *Consolidator) Validate(s Span) error {
	if err := c.checkRange(s.Start, s.End); err != nil {
		return err
	}
	return checkCell(s)
}

func (c *Consolidator) checkRange(start, end int) error {
	switch {
	case start > end:
		return fmt.Errorf("%w: start %d > end %d", ErrInvalidSpan, start, end)
	case start < 0:
		return fmt.Errorf("%w: negative start %d", ErrInvalidSpan, start)
	case end >= c.length:
		return fmt.Errorf("%w: end %d is beyond text of length %d", ErrInvalidSpan, end, c.length)
	}
	return nil
}

// checkCell checks the parts of s that do not depend on the text.
func checkCell(s Span) error {
	if s.Start > s.End {
		return fmt.Errorf("%w: start %d > end %d", ErrInvalidSpan, s.Start, s.End)
	}
	if len(s.Labels) == 0 {
		return fmt.Errorf("%w: %s has no labels", ErrInvalidSpan, s)
	}
	if len(s.Labels) != len(s.Colors) {
		return fmt.Errorf("%w: %s has %d labels but %d colors",
			ErrInvalidSpan, s, len(s.Labels), len(s.Colors))
	}
	if n := utf8.RuneCountInString(s.Text); n != s.Len() {
		return fmt.Errorf("%w: %s covers %d runes but its text has %d",
			ErrInvalidSpan, s, s.Len(), n)
	}
	return nil
}

// Check verifies that cells is a well-formed partition: every cell is valid,
// and the cells are in ascending order and pairwise disjoint.
func Check(cells []Span) error {
	for i, s := range cells {
		if err := checkCell(s); err != nil {
			return fmt.Errorf("cell %d: %w", i, err)
		}
		if i == 0 {
			continue
		}

		prev := cells[i-1]
		if prev.Overlaps(s) {
			return &OverlapError{Span: s, Existing: prev}
		}
		if prev.Start > s.Start {
			return fmt.Errorf("%w: cell %d (%s) is out of order after %s", ErrInvalidSpan, i, s, prev)
		}
	}
	return nil
}
