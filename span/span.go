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

// Package span implements the span consolidation engine: a partition of a
// text's rune offsets into disjoint annotated cells, and the algorithm that
// merges a newly annotated span into it.
//
// All ranges in this package are closed: a [Span] with Start 2 and End 6
// covers the five runes at offsets 2, 3, 4, 5 and 6.
package span

import (
	"fmt"
	"slices"
	"strings"
)

// Span is an annotated cell of a text.
//
// Labels and Colors are parallel: Colors[i] is the color that was applied
// together with Labels[i]. Both are in application order, oldest first, and
// may contain duplicates.
type Span struct {
	// The range of rune offsets this span covers, inclusive.
	Start, End int

	// The runes of the text at [Start, End].
	Text string

	Labels []string
	Colors []int
}

// ColorLabel is an annotation tool: a label together with the color it is
// drawn with. A nil *ColorLabel stands for the eraser.
type ColorLabel struct {
	Color int
	Label string
}

// Span returns a span over [start, end] that carries this label.
func (c ColorLabel) Span(start, end int, text string) Span {
	return Span{
		Start:  start,
		End:    end,
		Text:   text,
		Labels: []string{c.Label},
		Colors: []int{c.Color},
	}
}

// String implements [fmt.Stringer].
func (c ColorLabel) String() string {
	return fmt.Sprintf("%s#%d", c.Label, c.Color)
}

// Len returns the number of runes this span covers.
func (s Span) Len() int {
	return s.End - s.Start + 1
}

// Contains returns whether this span covers the given offset.
func (s Span) Contains(offset int) bool {
	return s.Start <= offset && offset <= s.End
}

// Overlaps returns whether the closed ranges of s and that intersect.
func (s Span) Overlaps(that Span) bool {
	return s.Start <= that.End && that.Start <= s.End
}

// Clone returns a deep copy of s.
func (s Span) Clone() Span {
	s.Labels = slices.Clone(s.Labels)
	s.Colors = slices.Clone(s.Colors)
	return s
}

// Equal returns whether s and that are the same cell with the same labels.
func (s Span) Equal(that Span) bool {
	return s.Start == that.Start && s.End == that.End && s.Text == that.Text &&
		slices.Equal(s.Labels, that.Labels) && slices.Equal(s.Colors, that.Colors)
}

// String implements [fmt.Stringer].
//
// The output looks like [2, 6]:X,Y.
func (s Span) String() string {
	return fmt.Sprintf("[%d, %d]:%s", s.Start, s.End, strings.Join(s.Labels, ","))
}

// sub returns the part of s over [start, end], which must lie within s,
// carrying the given labels.
func (s Span) sub(start, end int, labels []string, colors []int) Span {
	runes := []rune(s.Text)
	return Span{
		Start:  start,
		End:    end,
		Text:   string(runes[start-s.Start : end-s.Start+1]),
		Labels: labels,
		Colors: colors,
	}
}
