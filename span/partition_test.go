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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cell(start, end int, label string) Span {
	return Span{
		Start:  start,
		End:    end,
		Text:   "abcdefghij"[start : end+1],
		Labels: []string{label},
		Colors: []int{1},
	}
}

func TestPartitionInsert(t *testing.T) {
	t.Parallel()

	var p Partition
	require.NoError(t, p.Insert(cell(0, 2, "A")))
	require.NoError(t, p.Insert(cell(5, 7, "B")))

	err := p.Insert(cell(2, 5, "C"))
	var overlap *OverlapError
	require.ErrorAs(t, err, &overlap)
	assert.Equal(t, cell(0, 2, "A"), overlap.Existing)
	assert.Equal(t, 2, p.Len())

	require.ErrorIs(t, p.Insert(Span{Start: 3, End: 2}), ErrInvalidSpan)

	assert.Equal(t, []Span{cell(0, 2, "A"), cell(5, 7, "B")}, p.Search(2, 5))
	assert.Empty(t, p.Search(3, 4))
	assert.Equal(t, "{[0, 2]:A, [5, 7]:B}", fmt.Sprintf("%v", &p))
}

func TestPartitionRemove(t *testing.T) {
	t.Parallel()

	var p Partition
	require.NoError(t, p.Insert(cell(0, 2, "A")))

	assert.False(t, p.Remove(0, 1))
	assert.True(t, p.Remove(0, 2))
	assert.Equal(t, 0, p.Len())
}

func TestReplaceRollsBack(t *testing.T) {
	t.Parallel()

	var p Partition
	require.NoError(t, p.Insert(cell(0, 2, "A")))
	require.NoError(t, p.Insert(cell(5, 7, "B")))

	// The second replacement cell collides with B, which is not a victim.
	err := p.replace(
		[]Span{cell(0, 2, "A")},
		[]Span{cell(0, 1, "C"), cell(2, 5, "D")},
	)
	var overlap *OverlapError
	require.ErrorAs(t, err, &overlap)
	assert.Equal(t, []Span{cell(0, 2, "A"), cell(5, 7, "B")}, p.Values())
}

func TestConsolidateInvariant(t *testing.T) {
	t.Parallel()

	perpetrator := cell(0, 9, "P")

	tests := []struct {
		name      string
		victims   []Span
		fragments int
	}{
		{
			// The second victim straddles both leftovers of the first.
			name:      "two-fragments",
			victims:   []Span{cell(2, 3, "A"), cell(0, 9, "B")},
			fragments: 2,
		},
		{
			// The second victim was already fully met.
			name:      "no-fragments",
			victims:   []Span{cell(0, 5, "A"), cell(0, 5, "B")},
			fragments: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cells, err := consolidate(perpetrator, tt.victims)
			assert.Nil(t, cells)

			var invariant *ConsolidationInvariantError
			require.True(t, errors.As(err, &invariant))
			assert.Equal(t, tt.fragments, invariant.Fragments)
			assert.Equal(t, tt.victims[1], invariant.Victim)
			assert.Contains(t, err.Error(), "impossible overlap")
		})
	}
}

func TestCheck(t *testing.T) {
	t.Parallel()

	require.NoError(t, Check(nil))
	require.NoError(t, Check([]Span{cell(0, 2, "A"), cell(3, 4, "B")}))

	var overlap *OverlapError
	require.ErrorAs(t, Check([]Span{cell(0, 2, "A"), cell(2, 4, "B")}), &overlap)
	require.ErrorIs(t, Check([]Span{cell(5, 6, "A"), cell(0, 2, "B")}), ErrInvalidSpan)

	bad := cell(0, 2, "A")
	bad.Colors = nil
	require.ErrorIs(t, Check([]Span{bad}), ErrInvalidSpan)
}
