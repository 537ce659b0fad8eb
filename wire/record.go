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

// Package wire contains the encodings spans travel in: the annotation records
// a server seeds a document with, and JSON and binary partition snapshots.
package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/tflexsoom/spanpart/source"
	"github.com/tflexsoom/spanpart/span"
)

// ErrMalformed is wrapped by every error about malformed input.
var ErrMalformed = errors.New("wire: malformed annotation")

// Record is one annotation as it appears on the wire:
//
//	{"start": 2, "end": 6, "span": "cdefg", "labels": ["X"], "colors": [1]}
//
// Offsets are rune offsets and both ends are inclusive. Fields are pointers
// so that a missing offset can be told apart from zero.
type Record struct {
	Start  *int     `json:"start"           yaml:"start"`
	End    *int     `json:"end"             yaml:"end"`
	Text   *string  `json:"span,omitempty"  yaml:"span,omitempty"`
	Labels []string `json:"labels"          yaml:"labels"`
	Colors []int    `json:"colors"          yaml:"colors"`

	// Set when this element could not be decoded at all.
	err error
}

// FromSpan returns the record for s.
func FromSpan(s span.Span) Record {
	start, end, text := s.Start, s.End, s.Text
	return Record{
		Start:  &start,
		End:    &end,
		Text:   &text,
		Labels: s.Labels,
		Colors: s.Colors,
	}
}

// Span validates r against buf and returns the span it describes. If r has
// no text, it is taken from buf.
//
// Every error it returns wraps [ErrMalformed].
func (r Record) Span(buf *source.Buffer) (span.Span, error) {
	if err := r.check(); err != nil {
		return span.Span{}, err
	}

	text, err := buf.Slice(*r.Start, *r.End)
	if err != nil {
		return span.Span{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if r.Text != nil && *r.Text != text {
		return span.Span{}, fmt.Errorf("%w: text %q does not match %q at [%d, %d]",
			ErrMalformed, *r.Text, text, *r.Start, *r.End)
	}

	return span.Span{
		Start:  *r.Start,
		End:    *r.End,
		Text:   text,
		Labels: r.Labels,
		Colors: r.Colors,
	}, nil
}

// cell is like Span, but for records that must carry their own text.
func (r Record) cell() (span.Span, error) {
	if err := r.check(); err != nil {
		return span.Span{}, err
	}
	if r.Text == nil {
		return span.Span{}, fmt.Errorf("%w: missing span text", ErrMalformed)
	}
	return span.Span{
		Start:  *r.Start,
		End:    *r.End,
		Text:   *r.Text,
		Labels: r.Labels,
		Colors: r.Colors,
	}, nil
}

func (r Record) check() error {
	switch {
	case r.err != nil:
		return r.err
	case r.Start == nil && r.End == nil:
		return fmt.Errorf("%w: missing start and end", ErrMalformed)
	case r.Start == nil:
		return fmt.Errorf("%w: missing start", ErrMalformed)
	case r.End == nil:
		return fmt.Errorf("%w: missing end", ErrMalformed)
	case len(r.Labels) == 0:
		return fmt.Errorf("%w: no labels", ErrMalformed)
	case len(r.Labels) != len(r.Colors):
		return fmt.Errorf("%w: %d labels but %d colors", ErrMalformed, len(r.Labels), len(r.Colors))
	}
	return nil
}

// DecodeRecords decodes a batch of records. data may be a JSON array of
// records, or an object holding that array under "annotations".
//
// An element that cannot be decoded does not fail the batch: it comes back as
// a record whose Span method reports the problem.
func DecodeRecords(data []byte) ([]Record, error) {
	var raw []json.RawMessage
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return nil, fmt.Errorf("wire: decoding annotations: %w", err)
		}
	} else {
		var wrapper struct {
			Annotations []json.RawMessage `json:"annotations"`
		}
		if err := json.Unmarshal(trimmed, &wrapper); err != nil {
			return nil, fmt.Errorf("wire: decoding annotations: %w", err)
		}
		raw = wrapper.Annotations
	}

	records := make([]Record, len(raw))
	for i, elem := range raw {
		if err := json.Unmarshal(elem, &records[i]); err != nil {
			records[i] = Record{err: fmt.Errorf("%w: %w", ErrMalformed, err)}
		}
	}
	return records, nil
}

// DecodeRecordNode decodes one YAML annotation. Like [DecodeRecords], it
// never fails: an element that cannot be decoded reports its error from
// [Record.Span].
func DecodeRecordNode(node *yaml.Node) Record {
	var r Record
	if err := node.Decode(&r); err != nil {
		return Record{err: fmt.Errorf("%w: line %d: %w", ErrMalformed, node.Line, err)}
	}
	return r
}
