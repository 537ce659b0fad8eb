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

// Package batch consolidates the annotations of many documents at once.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/sync/semaphore"
	"gopkg.in/yaml.v3"

	"github.com/tflexsoom/spanpart/session"
	"github.com/tflexsoom/spanpart/transport"
	"github.com/tflexsoom/spanpart/wire"
)

// Document is a text together with the annotations made on it.
//
// Document files are YAML, or JSON, which is read as YAML.
type Document struct {
	ID          string
	Text        string
	Annotations []wire.Record

	// Set when the file could not be read or parsed. [Run] reports it as the
	// document's error and consolidates nothing.
	Err error
}

type documentFile struct {
	ID          string      `yaml:"id"`
	Text        string      `yaml:"text"`
	Annotations []yaml.Node `yaml:"annotations"`
}

// Load reads a document file. A document without an id is named after its
// file.
//
// Annotations are decoded one at a time, so a malformed annotation does not
// fail the file; it is rejected when the document is consolidated.
func Load(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, err
	}

	var file documentFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Document{}, fmt.Errorf("parse %s: %w", path, err)
	}
	doc := Document{ID: file.ID, Text: file.Text}
	if doc.ID == "" {
		doc.ID = nameOf(path)
	}
	doc.Annotations = make([]wire.Record, len(file.Annotations))
	for i := range file.Annotations {
		doc.Annotations[i] = wire.DecodeRecordNode(&file.Annotations[i])
	}
	return doc, nil
}

// LoadAll loads every path. A file that cannot be loaded becomes a document
// named after the file, with its error in [Document.Err].
func LoadAll(paths []string) []Document {
	docs := make([]Document, len(paths))
	for i, path := range paths {
		doc, err := Load(path)
		if err != nil {
			doc = Document{ID: nameOf(path), Err: err}
		}
		docs[i] = doc
	}
	return docs
}

func nameOf(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

// Options configures [Run].
type Options struct {
	// The maximum number of documents consolidated at once. If unspecified or
	// non-positive, min(runtime.NumCPU(), runtime.GOMAXPROCS(-1)) is used.
	MaxParallelism int

	// Receives the snapshot of every document. May be nil.
	Sink transport.Sink

	// Defaults to [slog.Default].
	Logger *slog.Logger
}

// Result is the outcome for one document.
type Result struct {
	Session *session.Session

	// Joins the errors of every annotation that was rejected. The others
	// are still applied. For a document that could not be loaded, it is
	// [Document.Err] and the session is empty.
	Err error
}

type pending struct {
	ready chan struct{}
	Result
}

// Run consolidates docs independently of each other, and returns one result
// per document in the same order. It only fails if ctx expires.
func Run(ctx context.Context, docs []Document, opts Options) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	par := opts.MaxParallelism
	if par <= 0 {
		par = min(runtime.GOMAXPROCS(-1), runtime.NumCPU())
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sink := opts.Sink
	if sink == nil {
		sink = transport.Discard
	}

	sem := semaphore.NewWeighted(int64(par))
	all := make([]*pending, len(docs))
	for i, doc := range docs {
		p := &pending{ready: make(chan struct{})}
		all[i] = p

		go func() {
			defer close(p.ready)
			if err := sem.Acquire(ctx, 1); err != nil {
				p.Err = err
				return
			}
			defer sem.Release(1)

			s := session.New(doc.ID, doc.Text, session.WithSink(sink), session.WithLogger(logger))
			p.Session = s
			if doc.Err != nil {
				p.Err = doc.Err
				return
			}
			p.Err = s.Seed(ctx, doc.Annotations)
		}()
	}

	results := make([]Result, len(docs))
	for i, p := range all {
		select {
		case <-p.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		results[i] = p.Result
	}
	return results, nil
}
