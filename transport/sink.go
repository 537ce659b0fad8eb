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

// Package transport delivers partition snapshots to whoever collects them.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/tflexsoom/spanpart/span"
	"github.com/tflexsoom/spanpart/wire"
)

// Sink receives snapshots.
//
// Submit may be called with snapshots of several documents, and with several
// versions of the same document. Snapshots passed to Submit must not be
// modified afterwards.
type Sink interface {
	Submit(ctx context.Context, snapshot span.Snapshot) error
}

// SinkFunc adapts a function into a [Sink].
type SinkFunc func(context.Context, span.Snapshot) error

// Submit implements [Sink].
func (f SinkFunc) Submit(ctx context.Context, snapshot span.Snapshot) error {
	return f(ctx, snapshot)
}

// Discard is a [Sink] that drops everything.
var Discard Sink = SinkFunc(func(context.Context, span.Snapshot) error { return nil })

// Tee returns a sink that submits to each of sinks in turn. Every sink sees
// every snapshot, and the errors are joined.
func Tee(sinks ...Sink) Sink {
	return SinkFunc(func(ctx context.Context, snapshot span.Snapshot) error {
		var errs []error
		for _, sink := range sinks {
			if err := sink.Submit(ctx, snapshot); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}

// HTTPSink posts snapshots as JSON to a URL.
type HTTPSink struct {
	URL string

	// If nil, [http.DefaultClient] is used.
	Client *http.Client
}

// Submit implements [Sink].
func (h *HTTPSink) Submit(ctx context.Context, snapshot span.Snapshot) error {
	body, err := wire.MarshalJSON(snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("submit snapshot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		return fmt.Errorf("snapshot rejected: status=%d body=%s", resp.StatusCode, bytes.TrimSpace(respBody))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
