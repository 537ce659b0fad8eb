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

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"

	"github.com/tflexsoom/spanpart/internal/batch"
	"github.com/tflexsoom/spanpart/wire"
)

var formats = []string{"ruler", "cells", "html", "json"}

func newConsolidateCommand(a *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "consolidate <glob>...",
		Short: "consolidate the annotations of document files",
		Long: `
Consolidate the annotations of every document file matching the given globs,
which may use ** to match any number of directories.

A document file is YAML or JSON:

  id: doc-1            # defaults to the file name
  text: abcdefghij
  annotations:
    - {start: 2, end: 6, labels: [X], colors: [1]}

Offsets count runes and both ends are inclusive. Malformed annotations are
reported and skipped, and a file that cannot be read is reported as an empty
document. The command then fails after printing every document.

Formats:
  ruler  an aligned table of cells per document
  cells  tab-separated document, start, end, labels, colors and text
  html   each document's text, highlighted
  json   an array of snapshots
`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(formats, format) {
				return fmt.Errorf("unknown format %q, want one of %s", format, strings.Join(formats, ", "))
			}
			return a.consolidate(cmd.Context(), cmd.OutOrStdout(), format, args)
		},
	}
	cmd.Flags().StringVar(&format, "format", "ruler", strings.Join(formats, ", "))
	cmd.Flags().Int("parallelism", 0, "documents consolidated at once (default: GOMAXPROCS)")
	_ = a.v.BindPFlag("batch.parallelism", cmd.Flags().Lookup("parallelism"))
	return cmd
}

func (a *app) consolidate(ctx context.Context, w io.Writer, format string, globs []string) (err error) {
	paths, err := expand(globs)
	if err != nil {
		return err
	}
	docs := batch.LoadAll(paths)

	out, err := a.openSinks(ctx)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, out.close()) }()

	results, err := batch.Run(ctx, docs, batch.Options{
		MaxParallelism: a.cfg.Batch.Parallelism,
		Sink:           out,
		Logger:         a.logger,
	})
	if err != nil {
		return err
	}

	if err := write(w, format, results); err != nil {
		return err
	}

	var failed int
	for i, r := range results {
		if r.Err != nil {
			failed++
			msg := "rejected annotations"
			if docs[i].Err != nil {
				msg = "unreadable document"
			}
			a.logger.Warn(msg, "document", docs[i].ID, "path", paths[i], "error", r.Err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d documents had errors", failed, len(results))
	}
	return nil
}

// expand returns the files matching globs, without duplicates. Matches are
// sorted within each glob, and globs keep their order.
func expand(globs []string) ([]string, error) {
	var paths []string
	seen := make(map[string]struct{})
	for _, glob := range globs {
		matches, err := doublestar.FilepathGlob(glob, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", glob, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("glob %q matches no files", glob)
		}
		slices.Sort(matches)
		for _, path := range matches {
			if _, ok := seen[path]; !ok {
				seen[path] = struct{}{}
				paths = append(paths, path)
			}
		}
	}
	return paths, nil
}

func write(w io.Writer, format string, results []batch.Result) error {
	var out strings.Builder
	switch format {
	case "ruler":
		for i, r := range results {
			if i > 0 {
				out.WriteByte('\n')
			}
			fmt.Fprintf(&out, "# %s\n%s", r.Session.ID(), r.Session.Ruler())
		}
	case "cells":
		for _, r := range results {
			for _, cell := range r.Session.Cells() {
				colors := make([]string, len(cell.Colors))
				for i, c := range cell.Colors {
					colors[i] = strconv.Itoa(c)
				}
				fmt.Fprintf(&out, "%s\t%d\t%d\t%s\t%s\t%s\n", r.Session.ID(), cell.Start, cell.End,
					strings.Join(cell.Labels, ","), strings.Join(colors, ","), strconv.Quote(cell.Text))
			}
		}
	case "html":
		for _, r := range results {
			fmt.Fprintf(&out, "<section data-document=\"%s\">", html.EscapeString(r.Session.ID()))
			if err := r.Session.Markup(&out); err != nil {
				return err
			}
			out.WriteString("</section>\n")
		}
	case "json":
		snapshots := make([]wire.SnapshotJSON, len(results))
		for i, r := range results {
			snapshots[i] = wire.NewSnapshotJSON(r.Session.Snapshot())
		}
		data, err := json.MarshalIndent(snapshots, "", "  ")
		if err != nil {
			return err
		}
		out.Write(data)
		out.WriteByte('\n')
	}
	_, err := io.WriteString(w, out.String())
	return err
}
