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

// Package server exposes annotation sessions over HTTP.
package server

import (
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tflexsoom/spanpart/palette"
	"github.com/tflexsoom/spanpart/session"
	"github.com/tflexsoom/spanpart/transport"
)

// Options configures a [Server].
type Options struct {
	// Receives a snapshot after every change to any document. May be nil.
	Sink transport.Sink

	// Shared by every document for tools armed by label alone. May be nil.
	Palette *palette.Palette

	// Defaults to [slog.Default].
	Logger *slog.Logger

	// Where metrics are registered and served from. A private registry is
	// created if nil.
	Registry *prometheus.Registry

	// Reports the number of snapshots the sink has dropped, such as
	// [transport.Async.Dropped]. May be nil.
	Dropped func() uint64
}

// Server is an [http.Handler] holding open documents in memory.
type Server struct {
	sink    transport.Sink
	scheme  *palette.Palette
	logger  *slog.Logger
	metrics *metrics
	router  chi.Router

	mu   sync.RWMutex
	docs map[string]*document
}

// document serializes access to a session.
type document struct {
	mu sync.Mutex
	s  *session.Session
}

// New returns a server with no open documents.
func New(opts Options) *Server {
	s := &Server{
		sink:   opts.Sink,
		scheme: opts.Palette,
		logger: opts.Logger,
		docs:   make(map[string]*document),
	}
	if s.sink == nil {
		s.sink = transport.Discard
	}
	if s.scheme == nil {
		s.scheme = new(palette.Palette)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	s.metrics = newMetrics(reg, opts.Dropped)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", healthzHandler)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Route("/api/v1/documents", func(r chi.Router) {
		r.Get("/", s.listHandler)
		r.Post("/", s.openHandler)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.snapshotHandler)
			r.Delete("/", s.closeHandler)
			r.Get("/markup", s.markupHandler)
			r.Get("/boundaries", s.boundariesHandler)
			r.Get("/ruler", s.rulerHandler)
			r.Put("/tool", s.toolHandler)
			r.Post("/selections", s.selectHandler)
		})
	})
	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Open starts a session for a document. It returns false if a document with
// the same id is already open.
func (s *Server) Open(id, text string) (*session.Session, bool) {
	doc, ok := s.open(id, text)
	if !ok {
		return nil, false
	}
	doc.mu.Unlock()
	return doc.s, true
}

// open is like Open, but the new document is returned locked, so that no
// other request can use it before the caller unlocks it.
func (s *Server) open(id, text string) (*document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[id]; ok {
		return nil, false
	}
	doc := &document{s: session.New(id, text,
		session.WithSink(s.sink),
		session.WithLogger(s.logger),
		session.WithPalette(s.scheme))}
	doc.mu.Lock()
	s.docs[id] = doc
	s.metrics.sessions.Inc()
	return doc, true
}

// Close forgets a document. It returns false if no such document is open.
func (s *Server) Close(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[id]; !ok {
		return false
	}
	delete(s.docs, id)
	s.metrics.sessions.Dec()
	return true
}

// Documents returns the ids of the open documents, sorted.
func (s *Server) Documents() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.docs))
	for id := range s.docs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// with runs f with exclusive access to a document's session. It returns false
// if no such document is open.
func (s *Server) with(id string, f func(*session.Session)) bool {
	s.mu.RLock()
	doc, ok := s.docs[id]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	doc.mu.Lock()
	defer doc.mu.Unlock()
	f(doc.s)
	return true
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			s.logger.Debug("handled request",
				"request_id", middleware.GetReqID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"elapsed", time.Since(start))
		}()
		next.ServeHTTP(ww, r)
	})
}
