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

package session_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tflexsoom/spanpart/palette"
	"github.com/tflexsoom/spanpart/render"
	"github.com/tflexsoom/spanpart/session"
	"github.com/tflexsoom/spanpart/span"
	"github.com/tflexsoom/spanpart/transport"
	"github.com/tflexsoom/spanpart/wire"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type collector []span.Snapshot

func (c *collector) Submit(_ context.Context, s span.Snapshot) error {
	*c = append(*c, s)
	return nil
}

func records(t *testing.T, data string) []wire.Record {
	t.Helper()
	r, err := wire.DecodeRecords([]byte(data))
	require.NoError(t, err)
	return r
}

func TestSelect(t *testing.T) {
	t.Parallel()

	var published collector
	s := session.New("doc", "abcdefghij", session.WithSink(&published), session.WithLogger(quiet))
	assert.Equal(t, "doc", s.ID())
	assert.Nil(t, s.Armed())

	s.Arm(&span.ColorLabel{Label: "X", Color: 1})
	require.NoError(t, s.Select(t.Context(), 2, 7))
	s.Arm(&span.ColorLabel{Label: "Y", Color: 2})
	require.NoError(t, s.Select(t.Context(), 4, 9))

	assert.Equal(t, []span.Span{
		{Start: 2, End: 3, Text: "cd", Labels: []string{"X"}, Colors: []int{1}},
		{Start: 4, End: 6, Text: "efg", Labels: []string{"X", "Y"}, Colors: []int{1, 2}},
		{Start: 7, End: 8, Text: "hi", Labels: []string{"Y"}, Colors: []int{2}},
	}, s.Cells())

	require.Len(t, published, 2)
	assert.Equal(t, "doc", published[1].Document)
	assert.Equal(t, uint64(2), published[1].Version)
	assert.Equal(t, s.Snapshot(), published[1])

	// Empty and out-of-range selections are ignored.
	require.NoError(t, s.Select(t.Context(), 5, 5))
	require.NoError(t, s.Select(t.Context(), 12, 20))
	require.NoError(t, s.Select(t.Context(), 7, 3))
	assert.Len(t, published, 2)

	// A selection running off the end is clipped.
	s.Arm(&span.ColorLabel{Label: "Z", Color: 3})
	require.NoError(t, s.Select(t.Context(), 9, 50))
	assert.Equal(t, span.Span{Start: 9, End: 9, Text: "j", Labels: []string{"Z"}, Colors: []int{3}}, s.Cells()[3])

	// Erasing removes every touched cell whole.
	s.Disarm()
	require.NoError(t, s.Select(t.Context(), 3, 5))
	assert.Equal(t, []span.Span{
		{Start: 7, End: 8, Text: "hi", Labels: []string{"Y"}, Colors: []int{2}},
		{Start: 9, End: 9, Text: "j", Labels: []string{"Z"}, Colors: []int{3}},
	}, s.Cells())
	assert.Len(t, published, 4)

	// Erasing nothing publishes nothing.
	require.NoError(t, s.Select(t.Context(), 0, 2))
	assert.Len(t, published, 4)
	assert.Equal(t, uint64(4), s.Version())
}

func TestArm(t *testing.T) {
	t.Parallel()

	scheme, err := palette.New(span.ColorLabel{Label: "PER", Color: 9})
	require.NoError(t, err)
	s := session.New("doc", "text", session.WithPalette(scheme), session.WithLogger(quiet))

	tool := &span.ColorLabel{Label: "X", Color: 1}
	s.Arm(tool)
	tool.Label = "mutated"
	assert.Equal(t, &span.ColorLabel{Label: "X", Color: 1}, s.Armed())
	s.Armed().Color = 5
	assert.Equal(t, 1, s.Armed().Color)

	require.NoError(t, s.ArmLabel("PER"))
	assert.Equal(t, &span.ColorLabel{Label: "PER", Color: 9}, s.Armed())
	require.NoError(t, s.ArmLabel("ORG"))
	assert.Equal(t, &span.ColorLabel{Label: "ORG", Color: 1}, s.Armed())
	require.NoError(t, s.ArmLabel(""))
	assert.Nil(t, s.Armed())
}

func TestSeed(t *testing.T) {
	t.Parallel()

	var published collector
	s := session.New("doc", "abcdefghij", session.WithSink(&published), session.WithLogger(quiet))

	err := s.Seed(t.Context(), records(t, `{"annotations": [
		{"start": 0, "end": 2, "span": "abc", "labels": ["A"], "colors": [1]},
		{"start": 5, "labels": ["B"], "colors": [2]},
		{"start": 5, "end": 7, "labels": ["B"], "colors": [2]},
		{"start": 1, "end": 6, "labels": ["C"], "colors": [3]}
	]}`))
	require.ErrorIs(t, err, wire.ErrMalformed)
	assert.Equal(t, "annotation 1: wire: malformed annotation: missing end", err.Error())

	assert.Len(t, s.Cells(), 5)
	require.Len(t, published, 1, "one snapshot per seed batch")
	assert.Equal(t, uint64(3), published[0].Version)

	// A batch with nothing to apply publishes nothing.
	require.Error(t, s.Seed(t.Context(), records(t, `[{"labels": []}]`)))
	require.NoError(t, s.Seed(t.Context(), nil))
	assert.Len(t, published, 1)
}

func TestGraphemeSnap(t *testing.T) {
	t.Parallel()

	text := "xe\u0301y"
	for _, snap := range []bool{true, false} {
		s := session.New("doc", text, session.WithGraphemeSnap(snap), session.WithLogger(quiet))
		s.Arm(&span.ColorLabel{Label: "A", Color: 1})
		require.NoError(t, s.Select(t.Context(), 0, 2))

		cells := s.Cells()
		require.Len(t, cells, 1)
		if snap {
			assert.Equal(t, "xe\u0301", cells[0].Text)
		} else {
			assert.Equal(t, "xe", cells[0].Text)
		}
	}
}

func TestPublishFailure(t *testing.T) {
	t.Parallel()

	var logs bytes.Buffer
	sink := transport.SinkFunc(func(context.Context, span.Snapshot) error {
		return errors.New("unreachable")
	})
	s := session.New("doc", "abc",
		session.WithSink(sink),
		session.WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))

	s.Arm(&span.ColorLabel{Label: "A", Color: 1})
	require.NoError(t, s.Select(t.Context(), 0, 3), "publishing is fire-and-forget")
	assert.Len(t, s.Cells(), 1)
	assert.Contains(t, logs.String(), "publishing snapshot failed")
	assert.Contains(t, logs.String(), "document=doc")
}

func TestViews(t *testing.T) {
	t.Parallel()

	s := session.New("doc", "a<b", session.WithLogger(quiet))
	s.Arm(&span.ColorLabel{Label: "A", Color: 2})
	require.NoError(t, s.Select(t.Context(), 1, 2))

	var html strings.Builder
	require.NoError(t, s.Markup(&html))
	assert.Equal(t, `a<mark aria-hidden="true" class=" new-span-color-2 " data-labels="A">&lt;</mark>b`, html.String())
	assert.Equal(t, []render.Boundary{
		{Offset: 1, Labels: []string{"A"}, Colors: []int{2}},
		{Offset: 2},
	}, s.Boundaries())
	assert.Equal(t, "[1, 1]  A  \"<\"\n", s.Ruler())
	assert.Equal(t, 3, s.Buffer().Len())
}
