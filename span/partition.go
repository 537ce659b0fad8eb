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
	"iter"

	"github.com/tflexsoom/spanpart/internal/interval"
)

// Partition is a collection of pairwise disjoint spans.
//
// A zero value is ready to use. A Partition is not safe for concurrent use.
type Partition struct {
	m interval.Map[int, Span]
}

// Len returns the number of spans stored in p.
func (p *Partition) Len() int {
	return p.m.Len()
}

// Insert stores s.
//
// Returns an [*OverlapError] if s intersects a span already stored in p, in
// which case p is unchanged.
func (p *Partition) Insert(s Span) error {
	if s.Start > s.End {
		return fmt.Errorf("%w: start %d > end %d", ErrInvalidSpan, s.Start, s.End)
	}

	if overlap := p.m.Insert(s.Start, s.End, s); overlap.Value != nil {
		return &OverlapError{Span: s, Existing: *overlap.Value}
	}
	return nil
}

// Remove deletes the span stored at exactly [start, end]. Returns whether
// such a span existed.
func (p *Partition) Remove(start, end int) bool {
	return p.m.Delete(start, end)
}

// Search returns every stored span which intersects [start, end], in
// ascending order.
func (p *Partition) Search(start, end int) []Span {
	var out []Span
	for iv := range p.m.Overlapping(start, end) {
		out = append(out, *iv.Value)
	}
	return out
}

// All returns an iterator over the spans in p, in ascending order.
func (p *Partition) All() iter.Seq[Span] {
	return func(yield func(Span) bool) {
		for iv := range p.m.Intervals() {
			if !yield(*iv.Value) {
				return
			}
		}
	}
}

// Values returns the spans in p, in ascending order.
func (p *Partition) Values() []Span {
	out := make([]Span, 0, p.Len())
	for s := range p.All() {
		out = append(out, s)
	}
	return out
}

// replace atomically swaps victims, which must all be stored in p, for cells.
// If any cell cannot be inserted, p is restored and the error is returned.
func (p *Partition) replace(victims, cells []Span) error {
	for _, v := range victims {
		p.Remove(v.Start, v.End)
	}

	for i, s := range cells {
		if err := p.Insert(s); err != nil {
			for _, s := range cells[:i] {
				p.Remove(s.Start, s.End)
			}
			for _, v := range victims {
				p.m.Insert(v.Start, v.End, v)
			}
			return err
		}
	}
	return nil
}

// Format implements [fmt.Formatter].
func (p *Partition) Format(s fmt.State, v rune) {
	fmt.Fprint(s, "{")
	first := true
	for cell := range p.All() {
		if !first {
			fmt.Fprint(s, ", ")
		}
		first = false
		fmt.Fprintf(s, fmt.FormatString(s, v), cell)
	}
	fmt.Fprint(s, "}")
}
