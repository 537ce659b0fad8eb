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

// Package interval provides a map of pairwise disjoint closed intervals.
package interval

import (
	"cmp"
	"fmt"
	"iter"

	"github.com/tidwall/btree"
)

// Map is an interval map, which maps closed intervals with endpoints in K
// to values of type V. No two intervals in a Map overlap.
//
// A zero value is ready to use.
type Map[K cmp.Ordered, V any] struct {
	// Keys in this map are the ends of intervals in the map. Because the
	// intervals are disjoint, ordering by end is the same as ordering by start.
	tree btree.Map[K, *entry[K, V]]
}

// Interval is an entry returned by the lookup operations on [Map].
type Interval[K cmp.Ordered, V any] struct {
	// The range for this interval, inclusive.
	Start, End K

	// The value associated with it.
	Value *V
}

// Len returns the number of intervals in this map.
func (m *Map[K, V]) Len() int {
	return m.tree.Len()
}

// Intervals returns an iterator over the intervals in this map, in ascending
// order.
func (m *Map[K, V]) Intervals() iter.Seq[Interval[K, V]] {
	return func(yield func(Interval[K, V]) bool) {
		iter := m.tree.Iter()
		for more := iter.First(); more; more = iter.Next() {
			if !yield(Interval[K, V]{
				Start: iter.Value().start,
				End:   iter.Key(),
				Value: &iter.Value().value,
			}) {
				return
			}
		}
	}
}

// Overlapping returns an iterator over every interval that intersects
// [start, end], in ascending order.
//
// The map must not be mutated while the iterator is running.
func (m *Map[K, V]) Overlapping(start, end K) iter.Seq[Interval[K, V]] {
	return func(yield func(Interval[K, V]) bool) {
		if start > end {
			return
		}

		// Here, [a, b] is the query interval, and [c, d] is the current
		// interval we're looking at.
		//
		// Seek() lands on the least interval with a <= d. From there we walk
		// forwards until we find an interval with b < c, or run off the end
		// of the tree.
		a, b := start, end
		iter := m.tree.Iter()
		for more := iter.Seek(a); more; more = iter.Next() {
			c := iter.Value().start
			if b < c {
				return
			}

			if !yield(Interval[K, V]{
				Start: c,
				End:   iter.Key(),
				Value: &iter.Value().value,
			}) {
				return
			}
		}
	}
}

// Insert inserts a new interval into this map, with the given associated value.
// Both endpoints are inclusive.
//
// If [start, end] overlaps any interval present in this map, this function will
// return the interval with the least start that overlaps with it, and the map
// is left unchanged. This case is distinguished by overlap.Value != nil.
func (m *Map[K, V]) Insert(start, end K, value V) (overlap Interval[K, V]) {
	if start > end {
		panic(fmt.Sprintf("interval: start (%#v) > end (%#v)", start, end))
	}

	for first := range m.Overlapping(start, end) {
		return first
	}

	m.tree.Set(end, &entry[K, V]{
		start: start,
		value: value,
	})
	return Interval[K, V]{}
}

// Delete removes the interval [start, end] from this map. The interval must
// match a stored interval exactly; returns whether anything was removed.
func (m *Map[K, V]) Delete(start, end K) bool {
	e, ok := m.tree.Get(end)
	if !ok || e.start != start {
		return false
	}
	m.tree.Delete(end)
	return true
}

type entry[K cmp.Ordered, V any] struct {
	start K
	value V
}
