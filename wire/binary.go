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
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/tflexsoom/spanpart/span"
)

// Field numbers of the binary snapshot encoding. It is the protobuf wire
// encoding of
//
//	message Snapshot {
//	  string document = 1;
//	  uint64 version = 2;
//	  repeated Cell cells = 3;
//	}
//
//	message Cell {
//	  int64 start = 1;
//	  int64 end = 2;
//	  string text = 3;
//	  repeated string labels = 4;
//	  repeated int64 colors = 5;
//	}
const (
	snapshotDocument protowire.Number = 1
	snapshotVersion  protowire.Number = 2
	snapshotCells    protowire.Number = 3

	cellStart  protowire.Number = 1
	cellEnd    protowire.Number = 2
	cellText   protowire.Number = 3
	cellLabels protowire.Number = 4
	cellColors protowire.Number = 5
)

// AppendBinary appends the binary encoding of s to b.
func AppendBinary(b []byte, s span.Snapshot) []byte {
	if s.Document != "" {
		b = protowire.AppendTag(b, snapshotDocument, protowire.BytesType)
		b = protowire.AppendString(b, s.Document)
	}
	if s.Version != 0 {
		b = protowire.AppendTag(b, snapshotVersion, protowire.VarintType)
		b = protowire.AppendVarint(b, s.Version)
	}

	var scratch []byte
	for _, cell := range s.Cells {
		scratch = appendCell(scratch[:0], cell)
		b = protowire.AppendTag(b, snapshotCells, protowire.BytesType)
		b = protowire.AppendBytes(b, scratch)
	}
	return b
}

// MarshalBinary returns the binary encoding of s.
func MarshalBinary(s span.Snapshot) []byte {
	return AppendBinary(nil, s)
}

func appendCell(b []byte, cell span.Span) []byte {
	b = protowire.AppendTag(b, cellStart, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(cell.Start))
	b = protowire.AppendTag(b, cellEnd, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(cell.End))
	b = protowire.AppendTag(b, cellText, protowire.BytesType)
	b = protowire.AppendString(b, cell.Text)
	for _, label := range cell.Labels {
		b = protowire.AppendTag(b, cellLabels, protowire.BytesType)
		b = protowire.AppendString(b, label)
	}
	for _, color := range cell.Colors {
		b = protowire.AppendTag(b, cellColors, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(color))
	}
	return b
}

// UnmarshalBinary decodes a snapshot encoded by [MarshalBinary], checking that
// its cells form a partition. Unknown fields are skipped.
func UnmarshalBinary(data []byte) (span.Snapshot, error) {
	var s span.Snapshot
	err := consumeFields(data, func(num protowire.Number, typ protowire.Type, data []byte) (int, error) {
		switch {
		case num == snapshotDocument && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			s.Document = v
			return n, nil
		case num == snapshotVersion && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			s.Version = v
			return n, nil
		case num == snapshotCells && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return n, nil
			}
			cell, err := consumeCell(v)
			if err != nil {
				return 0, fmt.Errorf("cell %d: %w", len(s.Cells), err)
			}
			s.Cells = append(s.Cells, cell)
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, data), nil
	})
	if err != nil {
		return span.Snapshot{}, err
	}

	if err := span.Check(s.Cells); err != nil {
		return span.Snapshot{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return s, nil
}

func consumeCell(data []byte) (span.Span, error) {
	var cell span.Span
	err := consumeFields(data, func(num protowire.Number, typ protowire.Type, data []byte) (int, error) {
		if typ == protowire.VarintType {
			v, n := protowire.ConsumeVarint(data)
			switch num {
			case cellStart:
				cell.Start = int(v)
			case cellEnd:
				cell.End = int(v)
			case cellColors:
				cell.Colors = append(cell.Colors, int(v))
			}
			return n, nil
		}
		if typ == protowire.BytesType && (num == cellText || num == cellLabels) {
			v, n := protowire.ConsumeString(data)
			if num == cellText {
				cell.Text = v
			} else {
				cell.Labels = append(cell.Labels, v)
			}
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, data), nil
	})
	return cell, err
}

// consumeFields calls field for each field in data. field consumes the value
// following the tag and returns its length, or a negative protowire error
// code.
func consumeFields(
	data []byte,
	field func(protowire.Number, protowire.Type, []byte) (int, error),
) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return fmt.Errorf("%w: %w", ErrMalformed, protowire.ParseError(n))
		}
		data = data[n:]

		n, err := field(num, typ, data)
		if err != nil {
			return err
		}
		if n < 0 {
			return fmt.Errorf("%w: field %d: %w", ErrMalformed, num, protowire.ParseError(n))
		}
		data = data[n:]
	}
	return nil
}
