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

package wire

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tflexsoom/spanpart/span"
)

// SnapshotJSON is the JSON shape of a [span.Snapshot].
//
// Its annotations field is a record batch, so [DecodeRecords] accepts a
// snapshot as a seed.
type SnapshotJSON struct {
	Document    string   `json:"document"`
	Version     uint64   `json:"version"`
	Annotations []Record `json:"annotations"`
}

// NewSnapshotJSON converts s into its JSON shape.
func NewSnapshotJSON(s span.Snapshot) SnapshotJSON {
	out := SnapshotJSON{
		Document:    s.Document,
		Version:     s.Version,
		Annotations: make([]Record, len(s.Cells)),
	}
	for i, cell := range s.Cells {
		out.Annotations[i] = FromSpan(cell)
	}
	return out
}

// Snapshot converts s back into a snapshot, checking that its cells form a
// partition.
func (s SnapshotJSON) Snapshot() (span.Snapshot, error) {
	out := span.Snapshot{
		Document: s.Document,
		Version:  s.Version,
		Cells:    make([]span.Span, len(s.Annotations)),
	}

	var errs []error
	for i, r := range s.Annotations {
		cell, err := r.cell()
		if err != nil {
			errs = append(errs, fmt.Errorf("annotation %d: %w", i, err))
		}
		out.Cells[i] = cell
	}
	if err := errors.Join(errs...); err != nil {
		return span.Snapshot{}, err
	}

	if err := span.Check(out.Cells); err != nil {
		return span.Snapshot{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return out, nil
}

// MarshalJSON encodes s as JSON.
func MarshalJSON(s span.Snapshot) ([]byte, error) {
	return json.Marshal(NewSnapshotJSON(s))
}

// UnmarshalJSON decodes a snapshot encoded by [MarshalJSON].
func UnmarshalJSON(data []byte) (span.Snapshot, error) {
	var s SnapshotJSON
	if err := json.Unmarshal(data, &s); err != nil {
		return span.Snapshot{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return s.Snapshot()
}
