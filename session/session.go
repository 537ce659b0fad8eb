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

// Package session drives the annotation of one displayed text: it owns the
// text, its partition and the armed tool, and publishes a snapshot after
// every change.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/tflexsoom/spanpart/palette"
	"github.com/tflexsoom/spanpart/render"
	"github.com/tflexsoom/spanpart/source"
	"github.com/tflexsoom/spanpart/span"
	"github.com/tflexsoom/spanpart/transport"
	"github.com/tflexsoom/spanpart/wire"
)

// Session is the annotation state of one document.
//
// A Session is not safe for concurrent use; callers that share one between
// goroutines must serialize access to it.
type Session struct {
	id     string
	buf    *source.Buffer
	cells  *span.Consolidator
	tool   *span.ColorLabel
	sink   transport.Sink
	logger *slog.Logger
	scheme *palette.Palette
	snap   bool
}

// Option configures a [Session].
type Option func(*Session)

// WithSink sets where snapshots are published. The session does not wait on
// the sink beyond the Submit call; wrap slow sinks in a [transport.Async].
func WithSink(sink transport.Sink) Option {
	return func(s *Session) { s.sink = sink }
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// WithPalette sets the palette that [Session.ArmLabel] looks colors up in.
func WithPalette(p *palette.Palette) Option {
	return func(s *Session) { s.scheme = p }
}

// WithGraphemeSnap sets whether selections are widened to whole grapheme
// clusters. On by default.
func WithGraphemeSnap(snap bool) Option {
	return func(s *Session) { s.snap = snap }
}

// New starts a session over text with no annotations and no armed tool.
func New(id, text string, opts ...Option) *Session {
	buf := source.New(text)
	s := &Session{
		id:    id,
		buf:   buf,
		cells: span.NewConsolidator(buf.Len()),
		sink:  transport.Discard,
		snap:  true,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("document", id)
	if s.scheme == nil {
		s.scheme = new(palette.Palette)
	}
	return s
}

// ID returns the document id.
func (s *Session) ID() string {
	return s.id
}

// Buffer returns the text being annotated.
func (s *Session) Buffer() *source.Buffer {
	return s.buf
}

// Arm makes tool the current annotation tool. A nil tool arms the eraser.
func (s *Session) Arm(tool *span.ColorLabel) {
	if tool != nil {
		tool = &span.ColorLabel{Color: tool.Color, Label: tool.Label}
	}
	s.tool = tool
}

// ArmLabel arms the tool for label with the color the palette gives it. The
// empty label arms the eraser.
func (s *Session) ArmLabel(label string) error {
	tool, err := s.scheme.Arm(label)
	if err != nil {
		return err
	}
	s.tool = tool
	return nil
}

// Disarm arms the eraser.
func (s *Session) Disarm() {
	s.tool = nil
}

// Armed returns a copy of the current tool, or nil for the eraser.
func (s *Session) Armed() *span.ColorLabel {
	if s.tool == nil {
		return nil
	}
	tool := *s.tool
	return &tool
}

// Seed applies a server-provided batch of annotations, in order.
//
// A record that is malformed, or that cannot be applied, is skipped; the
// others are still applied. The returned error joins one error per skipped
// record.
func (s *Session) Seed(ctx context.Context, records []wire.Record) error {
	var (
		errs    []error
		applied int
	)
	for i, r := range records {
		cell, err := r.Span(s.buf)
		if err == nil {
			err = s.apply(cell)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("annotation %d: %w", i, err))
			continue
		}
		applied++
	}

	s.logger.Debug("seeded annotations",
		"applied", applied, "rejected", len(errs), "cells", s.cells.Len())
	if applied > 0 {
		s.publish(ctx)
	}
	return errors.Join(errs...)
}

// Select handles a selection of the half-open rune range [start, end) made
// with the current tool: the armed label is applied to it, or, with the
// eraser, every cell it touches is removed.
//
// The range is clipped to the text, and an empty selection does nothing.
func (s *Session) Select(ctx context.Context, start, end int) error {
	start, end = s.buf.Clamp(start, end)
	if start == end {
		return nil
	}
	if s.snap {
		start, end = s.buf.Snap(start, end)
	}
	last := end - 1

	if s.tool == nil {
		removed, err := s.cells.Remove(start, last)
		if err != nil {
			return err
		}
		s.logger.Debug("erased selection", "start", start, "end", last, "removed", len(removed))
		if len(removed) > 0 {
			s.publish(ctx)
		}
		return nil
	}

	text, err := s.buf.Slice(start, last)
	if err != nil {
		return err
	}
	if err := s.apply(s.tool.Span(start, last, text)); err != nil {
		return err
	}
	s.logger.Debug("applied selection",
		"start", start, "end", last, "label", s.tool.Label, "cells", s.cells.Len())
	s.publish(ctx)
	return nil
}

// Cells returns a copy of the partition, in ascending order.
func (s *Session) Cells() []span.Span {
	return s.cells.Values()
}

// Version returns the number of changes made to the partition so far.
func (s *Session) Version() uint64 {
	return s.cells.Version()
}

// Snapshot returns an immutable copy of the partition.
func (s *Session) Snapshot() span.Snapshot {
	snapshot := s.cells.Snapshot()
	snapshot.Document = s.id
	return snapshot
}

// Boundaries returns the points where the active labels change.
func (s *Session) Boundaries() []render.Boundary {
	return render.Boundaries(s.cells.Values())
}

// Markup writes the text as highlighted HTML.
func (s *Session) Markup(w io.Writer) error {
	return render.Markup(w, s.buf, s.cells.Values())
}

// Ruler returns a plain-text table of the partition.
func (s *Session) Ruler() string {
	return render.Ruler(s.cells.Values())
}

func (s *Session) apply(cell span.Span) error {
	err := s.cells.Apply(cell)

	var invariant *span.ConsolidationInvariantError
	var overlap *span.OverlapError
	switch {
	case errors.As(err, &invariant):
		s.logger.Error("consolidation invariant violated",
			"perpetrator", invariant.Perpetrator.String(),
			"victim", invariant.Victim.String(),
			"fragments", invariant.Fragments)
	case errors.As(err, &overlap):
		s.logger.Error("partition overlap while committing",
			"span", overlap.Span.String(), "existing", overlap.Existing.String())
	}
	return err
}

func (s *Session) publish(ctx context.Context) {
	snapshot := s.Snapshot()
	if err := s.sink.Submit(ctx, snapshot); err != nil {
		s.logger.Warn("publishing snapshot failed", "version", snapshot.Version, "error", err)
	}
}
