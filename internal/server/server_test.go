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

package server_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tflexsoom/spanpart/internal/server"
	"github.com/tflexsoom/spanpart/span"
	"github.com/tflexsoom/spanpart/transport"
	"github.com/tflexsoom/spanpart/wire"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, r))
	return rec
}

func snapshot(t *testing.T, rec *httptest.ResponseRecorder) span.Snapshot {
	t.Helper()
	s, err := wire.UnmarshalJSON(rec.Body.Bytes())
	require.NoError(t, err)
	return s
}

func texts(s span.Snapshot) []string {
	var out []string
	for _, cell := range s.Cells {
		out = append(out, cell.Text)
	}
	return out
}

func TestDocumentLifecycle(t *testing.T) {
	t.Parallel()

	var (
		mu        sync.Mutex
		published []span.Snapshot
	)
	sink := transport.SinkFunc(func(_ context.Context, s span.Snapshot) error {
		mu.Lock()
		defer mu.Unlock()
		published = append(published, s)
		return nil
	})
	srv := server.New(server.Options{Sink: sink, Logger: quiet, Dropped: func() uint64 { return 7 }})

	rec := do(t, srv, http.MethodPost, "/api/v1/documents", `{
		"id": "doc",
		"text": "abcdefghij",
		"annotations": [
			{"start": 0, "end": 2, "labels": ["A"], "colors": [1]},
			{"start": 5, "end": 7, "labels": ["B"], "colors": [2]},
			{"start": 5, "labels": ["X"], "colors": [1]},
			{"start": 1, "end": 6, "labels": ["C"], "colors": [3]}
		]
	}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "/api/v1/documents/doc", rec.Header().Get("Location"))

	var opened struct {
		Document    string        `json:"document"`
		Version     uint64        `json:"version"`
		Annotations []wire.Record `json:"annotations"`
		Errors      []string      `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &opened))
	assert.Equal(t, "doc", opened.Document)
	assert.Equal(t, uint64(3), opened.Version)
	assert.Len(t, opened.Annotations, 5)
	assert.Equal(t, []string{"annotation 2: wire: malformed annotation: missing end"}, opened.Errors)

	rec = do(t, srv, http.MethodPost, "/api/v1/documents", `{"id": "doc", "text": "other"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, srv, http.MethodGet, "/api/v1/documents/doc", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"a", "bc", "de", "fg", "h"}, texts(snapshot(t, rec)))

	rec = do(t, srv, http.MethodPut, "/api/v1/documents/doc/tool", `{"label": "D", "color": 4}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"tool": {"label": "D", "color": 4}}`, rec.Body.String())

	rec = do(t, srv, http.MethodPost, "/api/v1/documents/doc/selections", `{"start": 8, "end": 10}`)
	require.Equal(t, http.StatusOK, rec.Code)
	s := snapshot(t, rec)
	assert.Equal(t, uint64(4), s.Version)
	assert.Equal(t, []string{"a", "bc", "de", "fg", "h", "ij"}, texts(s))

	rec = do(t, srv, http.MethodPut, "/api/v1/documents/doc/tool", `{"label": ""}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"tool": null}`, rec.Body.String())

	rec = do(t, srv, http.MethodPost, "/api/v1/documents/doc/selections", `{"start": 0, "end": 1}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"bc", "de", "fg", "h", "ij"}, texts(snapshot(t, rec)))

	rec = do(t, srv, http.MethodGet, "/api/v1/documents/doc/markup", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), `a<mark aria-hidden="true" class=" new-span-color-1 new-span-color-3 " data-labels="A,C">bc</mark>`), rec.Body.String())

	rec = do(t, srv, http.MethodGet, "/api/v1/documents/doc/boundaries", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var boundaries struct {
		Boundaries []struct {
			Offset int      `json:"offset"`
			Labels []string `json:"labels"`
		} `json:"boundaries"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &boundaries))
	require.NotEmpty(t, boundaries.Boundaries)
	assert.Equal(t, 1, boundaries.Boundaries[0].Offset)
	assert.Equal(t, []string{"A", "C"}, boundaries.Boundaries[0].Labels)

	rec = do(t, srv, http.MethodGet, "/api/v1/documents/doc/ruler", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ij"`)

	rec = do(t, srv, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	for _, line := range []string{
		`spanpart_mutations_total{op="seed"} 3`,
		`spanpart_mutations_total{op="apply"} 1`,
		`spanpart_mutations_total{op="erase"} 1`,
		`spanpart_rejections_total 1`,
		`spanpart_sessions 1`,
		`spanpart_submit_dropped_total 7`,
	} {
		assert.Contains(t, rec.Body.String(), line)
	}

	rec = do(t, srv, http.MethodDelete, "/api/v1/documents/doc", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, srv.Documents())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, published, 3)
	assert.Equal(t, uint64(5), published[2].Version)
}

func TestOpenLocksUntilSeeded(t *testing.T) {
	t.Parallel()

	// The sink holds each document's first snapshot, published while it is
	// being seeded, until its gate is closed.
	seeding := map[string]chan struct{}{"read": make(chan struct{}), "gone": make(chan struct{})}
	gates := map[string]chan struct{}{"read": make(chan struct{}), "gone": make(chan struct{})}
	sink := transport.SinkFunc(func(_ context.Context, s span.Snapshot) error {
		if s.Version == 1 {
			close(seeding[s.Document])
			<-gates[s.Document]
		}
		return nil
	})
	srv := server.New(server.Options{Sink: sink, Logger: quiet})

	open := func(id string) chan *httptest.ResponseRecorder {
		done := make(chan *httptest.ResponseRecorder, 1)
		go func() {
			done <- do(t, srv, http.MethodPost, "/api/v1/documents", `{
				"id": "`+id+`",
				"text": "abcdefghij",
				"annotations": [{"start": 2, "end": 6, "labels": ["X"], "colors": [1]}]
			}`)
		}()
		return done
	}

	// A read of a document being seeded waits for the seed.
	opened := open("read")
	<-seeding["read"]
	read := make(chan *httptest.ResponseRecorder, 1)
	go func() { read <- do(t, srv, http.MethodGet, "/api/v1/documents/read", "") }()
	select {
	case <-read:
		t.Fatal("document was read before it was seeded")
	case <-time.After(50 * time.Millisecond):
	}
	close(gates["read"])

	rec := <-opened
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = <-read
	require.Equal(t, http.StatusOK, rec.Code)
	got := snapshot(t, rec)
	assert.Equal(t, uint64(1), got.Version)
	assert.Equal(t, []string{"cdefg"}, texts(got))

	// Closing a document being seeded does not empty the open response.
	opened = open("gone")
	<-seeding["gone"]
	rec = do(t, srv, http.MethodDelete, "/api/v1/documents/gone", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	close(gates["gone"])

	rec = <-opened
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	got = snapshot(t, rec)
	assert.Equal(t, uint64(1), got.Version)
	assert.Equal(t, []string{"cdefg"}, texts(got))
	assert.Equal(t, []string{"read"}, srv.Documents())
}

func TestOpenAssignsID(t *testing.T) {
	t.Parallel()

	srv := server.New(server.Options{Logger: quiet})
	rec := do(t, srv, http.MethodPost, "/api/v1/documents", `{"text": "abc"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	s := snapshot(t, rec)
	assert.Len(t, s.Document, 36)
	assert.Empty(t, s.Cells)
	assert.Equal(t, []string{s.Document}, srv.Documents())

	rec = do(t, srv, http.MethodGet, "/api/v1/documents", "")
	assert.JSONEq(t, fmt.Sprintf(`{"documents": [%q]}`, s.Document), rec.Body.String())
}

func TestPaletteTool(t *testing.T) {
	t.Parallel()

	srv := server.New(server.Options{Logger: quiet})
	_, ok := srv.Open("one", "abc")
	require.True(t, ok)
	_, ok = srv.Open("two", "abc")
	require.True(t, ok)

	rec := do(t, srv, http.MethodPut, "/api/v1/documents/one/tool", `{"label": "PER"}`)
	assert.JSONEq(t, `{"tool": {"label": "PER", "color": 1}}`, rec.Body.String())
	rec = do(t, srv, http.MethodPut, "/api/v1/documents/two/tool", `{"label": "ORG"}`)
	assert.JSONEq(t, `{"tool": {"label": "ORG", "color": 2}}`, rec.Body.String())
	rec = do(t, srv, http.MethodPut, "/api/v1/documents/two/tool", `{"label": "PER"}`)
	assert.JSONEq(t, `{"tool": {"label": "PER", "color": 1}}`, rec.Body.String(), "palette is shared")
}

func TestBadRequests(t *testing.T) {
	t.Parallel()

	srv := server.New(server.Options{Logger: quiet})
	_, ok := srv.Open("doc", "abc")
	require.True(t, ok)

	tests := []struct {
		name, method, path, body string
		status                   int
	}{
		{"unknown document", http.MethodGet, "/api/v1/documents/nope", "", http.StatusNotFound},
		{"unknown markup", http.MethodGet, "/api/v1/documents/nope/markup", "", http.StatusNotFound},
		{"close unknown", http.MethodDelete, "/api/v1/documents/nope", "", http.StatusNotFound},
		{"open without text", http.MethodPost, "/api/v1/documents", `{"id": "x"}`, http.StatusBadRequest},
		{"open bad json", http.MethodPost, "/api/v1/documents", `{`, http.StatusBadRequest},
		{"open bad annotations", http.MethodPost, "/api/v1/documents", `{"text": "a", "annotations": 5}`, http.StatusBadRequest},
		{"tool color", http.MethodPut, "/api/v1/documents/doc/tool", `{"label": "X", "color": 25}`, http.StatusBadRequest},
		{"selection without end", http.MethodPost, "/api/v1/documents/doc/selections", `{"start": 0}`, http.StatusBadRequest},
		{"wrong method", http.MethodPatch, "/api/v1/documents/doc", "", http.StatusMethodNotAllowed},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			rec := do(t, srv, test.method, test.path, test.body)
			assert.Equal(t, test.status, rec.Code, rec.Body.String())
		})
	}

	rec := do(t, srv, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
