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

// Package render turns a partition into things people look at: the sequence
// of label boundaries, highlighted HTML, and a plain-text table.
//
// Every function here expects cells in the form a [span.Consolidator]
// produces them: ascending and pairwise disjoint.
package render

import (
	"fmt"
	"html"
	"io"
	"strconv"
	"strings"

	"github.com/rivo/uniseg"

	"github.com/tflexsoom/spanpart/source"
	"github.com/tflexsoom/spanpart/span"
)

// Boundary is a point where the set of active labels changes. The set holds
// until the next boundary.
type Boundary struct {
	Offset int
	// Empty when no cell covers Offset.
	Labels []string
	Colors []int
}

// Boundaries returns the ordered boundaries of cells.
//
// There is a boundary at the start of every cell, and one just past the end
// of every cell that is not immediately followed by another.
func Boundaries(cells []span.Span) []Boundary {
	out := make([]Boundary, 0, 2*len(cells))
	for i, cell := range cells {
		out = append(out, Boundary{
			Offset: cell.Start,
			Labels: cell.Labels,
			Colors: cell.Colors,
		})
		if i+1 == len(cells) || cells[i+1].Start != cell.End+1 {
			out = append(out, Boundary{Offset: cell.End + 1})
		}
	}
	return out
}

// Markup writes buf as HTML, wrapping each cell in a mark element.
//
// Text is escaped and line feeds become <br /> elements.
func Markup(w io.Writer, buf *source.Buffer, cells []span.Span) error {
	var out strings.Builder
	for i := 0; i < buf.Len(); i++ {
		if len(cells) > 0 && cells[0].Start == i {
			openMark(&out, cells[0])
		}

		switch r := buf.Rune(i); r {
		case '\n':
			out.WriteString("<br />")
		default:
			out.WriteString(html.EscapeString(string(r)))
		}

		if len(cells) > 0 && cells[0].End == i {
			out.WriteString("</mark>")
			cells = cells[1:]
		}
	}

	_, err := io.WriteString(w, out.String())
	return err
}

// ColorClass returns the style class for a color id.
func ColorClass(color int) string {
	return "new-span-color-" + strconv.Itoa(color)
}

func openMark(out *strings.Builder, cell span.Span) {
	out.WriteString(`<mark aria-hidden="true" class=" `)
	for _, color := range cell.Colors {
		out.WriteString(ColorClass(color))
		out.WriteByte(' ')
	}
	fmt.Fprintf(out, `" data-labels="%s">`, html.EscapeString(strings.Join(cell.Labels, ",")))
}

// Ruler returns a plain-text table of cells, one per line, with columns
// aligned by display width.
func Ruler(cells []span.Span) string {
	rows := make([][3]string, len(cells))
	var widths [2]int
	for i, cell := range cells {
		rows[i] = [3]string{
			fmt.Sprintf("[%d, %d]", cell.Start, cell.End),
			strings.Join(cell.Labels, ","),
			strconv.Quote(cell.Text),
		}
		for j := range widths {
			widths[j] = max(widths[j], uniseg.StringWidth(rows[i][j]))
		}
	}

	var out strings.Builder
	for _, row := range rows {
		for j, col := range row {
			out.WriteString(col)
			if j < len(widths) {
				out.WriteString(strings.Repeat(" ", widths[j]-uniseg.StringWidth(col)+2))
			}
		}
		out.WriteByte('\n')
	}
	return out.String()
}
