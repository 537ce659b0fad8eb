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

package transport

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/tflexsoom/spanpart/span"
)

// ErrClosed is returned by [Async.Submit] after [Async.Close].
var ErrClosed = errors.New("transport: sink closed")

// Async is a fire-and-forget [Sink]. Submit queues the snapshot and returns
// immediately; a background goroutine hands queued snapshots to the
// underlying sink in order.
//
// Nothing is retried. A snapshot that the underlying sink fails on, or that
// arrives while the queue is full, is logged and dropped.
type Async struct {
	sink   Sink
	logger *slog.Logger
	queue  chan span.Snapshot
	done   chan struct{}

	mu     sync.RWMutex // Guards closed against sends on queue.
	closed bool

	dropped, failed atomic.Uint64
}

// AsyncOptions configures [NewAsync].
type AsyncOptions struct {
	// The queue length. Defaults to 64.
	Queue int

	// Defaults to [slog.Default].
	Logger *slog.Logger
}

// NewAsync starts delivering to sink in the background. Call [Async.Close]
// to stop.
func NewAsync(sink Sink, opts AsyncOptions) *Async {
	if opts.Queue <= 0 {
		opts.Queue = 64
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	a := &Async{
		sink:   sink,
		logger: opts.Logger,
		queue:  make(chan span.Snapshot, opts.Queue),
		done:   make(chan struct{}),
	}
	go a.run()
	return a
}

// Submit implements [Sink]. It never blocks.
func (a *Async) Submit(_ context.Context, snapshot span.Snapshot) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}

	select {
	case a.queue <- snapshot:
	default:
		a.dropped.Add(1)
		a.logger.Warn("submit queue full, dropping snapshot",
			"document", snapshot.Document, "version", snapshot.Version)
	}
	return nil
}

// Dropped returns how many snapshots were dropped because the queue was full.
func (a *Async) Dropped() uint64 {
	return a.dropped.Load()
}

// Failed returns how many snapshots the underlying sink returned an error
// for.
func (a *Async) Failed() uint64 {
	return a.failed.Load()
}

// Close stops accepting snapshots and waits until the queued ones have been
// delivered, or until ctx expires.
func (a *Async) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Async) run() {
	defer close(a.done)
	for snapshot := range a.queue {
		if err := a.sink.Submit(context.Background(), snapshot); err != nil {
			a.failed.Add(1)
			a.logger.Error("snapshot submission failed",
				"document", snapshot.Document, "version", snapshot.Version, "error", err)
		}
	}
}
