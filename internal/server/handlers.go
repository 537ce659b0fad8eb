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

package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tflexsoom/spanpart/palette"
	"github.com/tflexsoom/spanpart/session"
	"github.com/tflexsoom/spanpart/span"
	"github.com/tflexsoom/spanpart/wire"
)

const maxBody = 8 << 20

type openRequest struct {
	ID          string          `json:"id"`
	Text        *string         `json:"text"`
	Annotations json.RawMessage `json:"annotations"`
}

type documentResponse struct {
	wire.SnapshotJSON
	// One entry per rejected seed annotation.
	Errors []string `json:"errors,omitempty"`
}

type toolJSON struct {
	Label string `json:"label"`
	Color int    `json:"color"`
}

type toolResponse struct {
	// Null when the eraser is armed.
	Tool *toolJSON `json:"tool"`
}

type selectRequest struct {
	Start *int `json:"start"`
	End   *int `json:"end"`
}

type boundaryJSON struct {
	Offset int      `json:"offset"`
	Labels []string `json:"labels"`
	Colors []int    `json:"colors"`
}

func healthzHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"documents": s.Documents()})
}

func (s *Server) openHandler(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Text == nil {
		writeError(w, http.StatusBadRequest, errors.New("missing text"))
		return
	}

	var records []wire.Record
	if len(req.Annotations) > 0 && !bytes.Equal(req.Annotations, []byte("null")) {
		var err error
		if records, err = wire.DecodeRecords(req.Annotations); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	doc, ok := s.open(req.ID, *req.Text)
	if !ok {
		writeError(w, http.StatusConflict, fmt.Errorf("document %q is already open", req.ID))
		return
	}

	// The document stays locked until it is seeded.
	sess := doc.s
	err := sess.Seed(r.Context(), records)
	s.metrics.reject(err)
	s.metrics.mutations.WithLabelValues("seed").Add(float64(sess.Version()))
	resp := documentResponse{SnapshotJSON: wire.NewSnapshotJSON(sess.Snapshot())}
	doc.mu.Unlock()
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, err := range joined.Unwrap() {
			resp.Errors = append(resp.Errors, err.Error())
		}
	}

	w.Header().Set("Location", "/api/v1/documents/"+req.ID)
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) closeHandler(w http.ResponseWriter, r *http.Request) {
	if !s.Close(chi.URLParam(r, "id")) {
		notFound(w, r)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) snapshotHandler(w http.ResponseWriter, r *http.Request) {
	var snapshot span.Snapshot
	if !s.with(chi.URLParam(r, "id"), func(sess *session.Session) { snapshot = sess.Snapshot() }) {
		notFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, wire.NewSnapshotJSON(snapshot))
}

func (s *Server) markupHandler(w http.ResponseWriter, r *http.Request) {
	var (
		buf bytes.Buffer
		err error
	)
	if !s.with(chi.URLParam(r, "id"), func(sess *session.Session) { err = sess.Markup(&buf) }) {
		notFound(w, r)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func (s *Server) boundariesHandler(w http.ResponseWriter, r *http.Request) {
	var out []boundaryJSON
	ok := s.with(chi.URLParam(r, "id"), func(sess *session.Session) {
		for _, b := range sess.Boundaries() {
			out = append(out, boundaryJSON{Offset: b.Offset, Labels: b.Labels, Colors: b.Colors})
		}
	})
	if !ok {
		notFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]boundaryJSON{"boundaries": out})
}

func (s *Server) rulerHandler(w http.ResponseWriter, r *http.Request) {
	var ruler string
	if !s.with(chi.URLParam(r, "id"), func(sess *session.Session) { ruler = sess.Ruler() }) {
		notFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, ruler)
}

// toolHandler arms a document's tool. An empty label arms the eraser, and a
// zero color takes the label's color from the palette.
func (s *Server) toolHandler(w http.ResponseWriter, r *http.Request) {
	var req toolJSON
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Color < 0 || req.Color > palette.ColorModulo {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: %d", palette.ErrInvalidColor, req.Color))
		return
	}

	var (
		resp toolResponse
		err  error
	)
	ok := s.with(chi.URLParam(r, "id"), func(sess *session.Session) {
		switch {
		case req.Label == "":
			sess.Disarm()
		case req.Color == 0:
			err = sess.ArmLabel(req.Label)
		default:
			sess.Arm(&span.ColorLabel{Label: req.Label, Color: req.Color})
		}
		if tool := sess.Armed(); tool != nil {
			resp.Tool = &toolJSON{Label: tool.Label, Color: tool.Color}
		}
	})
	if !ok {
		notFound(w, r)
		return
	}
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// selectHandler applies a half-open selection [start, end) with the armed
// tool and responds with the resulting snapshot.
func (s *Server) selectHandler(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Start == nil || req.End == nil {
		writeError(w, http.StatusBadRequest, errors.New("selection needs start and end"))
		return
	}

	var (
		snapshot span.Snapshot
		err      error
	)
	ok := s.with(chi.URLParam(r, "id"), func(sess *session.Session) {
		op := "apply"
		if sess.Armed() == nil {
			op = "erase"
		}
		before := sess.Version()
		err = sess.Select(r.Context(), *req.Start, *req.End)
		if n := sess.Version() - before; n > 0 {
			s.metrics.mutations.WithLabelValues(op).Add(float64(n))
		}
		snapshot = sess.Snapshot()
	})
	if !ok {
		notFound(w, r)
		return
	}

	switch {
	case errors.Is(err, span.ErrInvalidSpan):
		s.metrics.reject(err)
		writeError(w, http.StatusUnprocessableEntity, err)
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
	default:
		writeJSON(w, http.StatusOK, wire.NewSnapshotJSON(snapshot))
	}
}

func readJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func notFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, fmt.Errorf("no open document %q", chi.URLParam(r, "id")))
}
