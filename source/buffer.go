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

// Package source provides the immutable text that annotations are made over.
//
// Offsets into a [Buffer] count runes, not bytes, so that they agree with the
// offsets a selection collaborator reports for displayed text.
package source

import (
	"errors"
	"fmt"
	"slices"

	"github.com/rivo/uniseg"
)

// ErrOutOfRange is returned when a range does not lie within a buffer.
var ErrOutOfRange = errors.New("source: range out of bounds")

// Buffer is an immutable text addressed by rune offset.
//
// A zero Buffer is an empty text.
type Buffer struct {
	text  string
	runes []rune

	// Rune offsets at which a grapheme cluster begins, plus len(runes).
	// Ascending.
	clusters []int
}

// New returns a buffer over text.
func New(text string) *Buffer {
	b := &Buffer{text: text, runes: []rune(text)}

	var offset int
	for gs := uniseg.NewGraphemes(text); gs.Next(); {
		b.clusters = append(b.clusters, offset)
		offset += len(gs.Runes())
	}
	b.clusters = append(b.clusters, offset)
	return b
}

// Len returns the length of the buffer, in runes.
func (b *Buffer) Len() int {
	return len(b.runes)
}

// String returns the whole text.
func (b *Buffer) String() string {
	return b.text
}

// Rune returns the rune at offset, which must be in range.
func (b *Buffer) Rune(offset int) rune {
	return b.runes[offset]
}

// Slice returns the runes at [start, end], inclusive of both ends.
func (b *Buffer) Slice(start, end int) (string, error) {
	if start < 0 || start > end || end >= len(b.runes) {
		return "", fmt.Errorf("%w: [%d, %d] in text of length %d", ErrOutOfRange, start, end, len(b.runes))
	}
	return string(b.runes[start : end+1]), nil
}

// Clamp clips the half-open range [start, end) to the buffer.
//
// The result may be empty, in which case start == end.
func (b *Buffer) Clamp(start, end int) (int, int) {
	start = min(max(start, 0), len(b.runes))
	end = min(max(end, start), len(b.runes))
	return start, end
}

// Snap widens the half-open range [start, end) as little as possible so that
// neither end falls inside a grapheme cluster. The range must already lie
// within the buffer.
//
// Without this, a selection could split an emoji or a letter from its
// combining accent across two cells.
func (b *Buffer) Snap(start, end int) (int, int) {
	if start == end {
		return start, end
	}

	// Last cluster boundary <= start.
	i, found := slices.BinarySearch(b.clusters, start)
	if !found {
		start = b.clusters[i-1]
	}

	// First cluster boundary >= end.
	j, _ := slices.BinarySearch(b.clusters, end)
	end = b.clusters[j]
	return start, end
}
