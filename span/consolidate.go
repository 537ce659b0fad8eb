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
	"cmp"
	"iter"
	"slices"

	"github.com/tflexsoom/spanpart/internal/interval"
)

// Consolidator owns the partition of one text and merges new spans into it.
//
// A Consolidator is not safe for concurrent use, and its methods must not be
// called re-entrantly.
type Consolidator struct {
	partition Partition
	length    int
	version   uint64
}

// Snapshot is an immutable copy of a partition at some version.
type Snapshot struct {
	// The document the snapshot belongs to. Consolidators leave this empty;
	// it is filled in by whoever owns the document.
	Document string

	// Incremented by every mutation of the partition.
	Version uint64

	// The cells of the partition, in ascending order.
	Cells []Span
}

// NewConsolidator returns a consolidator for a text of the given length, in
// runes.
func NewConsolidator(length int) *Consolidator {
	return &Consolidator{length: length}
}

// TextLen returns the length of the text this consolidator partitions.
func (c *Consolidator) TextLen() int {
	return c.length
}

// Version returns the number of successful mutations so far.
func (c *Consolidator) Version() uint64 {
	return c.version
}

// Len returns the number of cells in the partition.
func (c *Consolidator) Len() int {
	return c.partition.Len()
}

// All returns an iterator over copies of the cells of the partition, in
// ascending order.
func (c *Consolidator) All() iter.Seq[Span] {
	return func(yield func(Span) bool) {
		for s := range c.partition.All() {
			if !yield(s.Clone()) {
				return
			}
		}
	}
}

// Values returns copies of the cells of the partition, in ascending order.
func (c *Consolidator) Values() []Span {
	cells := make([]Span, 0, c.partition.Len())
	for s := range c.All() {
		cells = append(cells, s)
	}
	return cells
}

// Search returns copies of the cells intersecting [start, end], in ascending
// order.
func (c *Consolidator) Search(start, end int) []Span {
	cells := c.partition.Search(start, end)
	for i := range cells {
		cells[i] = cells[i].Clone()
	}
	return cells
}

// Snapshot returns a deep copy of the current partition.
func (c *Consolidator) Snapshot() Snapshot {
	return Snapshot{Version: c.version, Cells: c.Values()}
}

// Apply merges perpetrator into the partition.
//
// Afterwards the partition covers the union of what it covered before and
// perpetrator's range. Wherever perpetrator overlaps a stored cell, the cell
// is split and the overlapping piece carries the cell's labels followed by
// perpetrator's.
//
// On error the partition is left exactly as it was.
func (c *Consolidator) Apply(perpetrator Span) error {
	if err := c.Validate(perpetrator); err != nil {
		return err
	}
	perpetrator = perpetrator.Clone()

	victims := c.partition.Search(perpetrator.Start, perpetrator.End)
	if len(victims) == 0 {
		if err := c.partition.Insert(perpetrator); err != nil {
			return err
		}
		c.version++
		return nil
	}

	cells, err := consolidate(perpetrator, victims)
	if err != nil {
		return err
	}
	if err := c.partition.replace(victims, cells); err != nil {
		return err
	}
	c.version++
	return nil
}

// Remove erases every cell intersecting [start, end] outright, and returns
// the erased cells.
func (c *Consolidator) Remove(start, end int) ([]Span, error) {
	if err := c.checkRange(start, end); err != nil {
		return nil, err
	}

	victims := c.partition.Search(start, end)
	for _, v := range victims {
		c.partition.Remove(v.Start, v.End)
	}
	if len(victims) > 0 {
		c.version++
	}
	return victims, nil
}

// consolidate computes the cells that replace victims once perpetrator is
// merged with them. victims must be every stored cell overlapping
// perpetrator, in ascending order.
//
//	(perpetrator)       a-----------------a
//	(victims)      b--------b    c---c        d-------d
//	(result)       b---b(bb)aa(ccc)a---a(dd)d---d
//
// where (x) marks a piece carrying x's labels followed by a's.
func consolidate(perpetrator Span, victims []Span) ([]Span, error) {
	// The parts of perpetrator that have not collided with a victim yet.
	var unmet interval.Map[int, struct{}]
	unmet.Insert(perpetrator.Start, perpetrator.End, struct{}{})

	cells := make([]Span, 0, 2*len(victims)+1)
	for _, victim := range victims {
		var (
			piece interval.Interval[int, struct{}]
			n     int
		)
		for iv := range unmet.Overlapping(victim.Start, victim.End) {
			piece = iv
			n++
		}
		if n != 1 {
			return nil, &ConsolidationInvariantError{
				Perpetrator: perpetrator,
				Victim:      victim,
				Fragments:   n,
			}
		}
		unmet.Delete(piece.Start, piece.End)

		// The collision is [lo, hi].
		lo, hi := max(piece.Start, victim.Start), min(piece.End, victim.End)

		if victim.Start < lo {
			cells = append(cells, victim.sub(
				victim.Start, lo-1,
				slices.Clone(victim.Labels), slices.Clone(victim.Colors),
			))
		}
		cells = append(cells, victim.sub(
			lo, hi,
			slices.Concat(victim.Labels, perpetrator.Labels),
			slices.Concat(victim.Colors, perpetrator.Colors),
		))
		if hi < victim.End {
			cells = append(cells, victim.sub(
				hi+1, victim.End,
				slices.Clone(victim.Labels), slices.Clone(victim.Colors),
			))
		}

		if piece.Start < lo {
			unmet.Insert(piece.Start, lo-1, struct{}{})
		}
		if hi < piece.End {
			unmet.Insert(hi+1, piece.End, struct{}{})
		}
	}

	// Whatever is still unmet lies between or beyond the victims.
	for iv := range unmet.Intervals() {
		cells = append(cells, perpetrator.sub(
			iv.Start, iv.End,
			slices.Clone(perpetrator.Labels), slices.Clone(perpetrator.Colors),
		))
	}

	slices.SortFunc(cells, func(a, b Span) int { return cmp.Compare(a.Start, b.Start) })
	return cells, nil
}
