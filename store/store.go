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

// Package store keeps the latest snapshot of each document in a bbolt
// database.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/tflexsoom/spanpart/span"
	"github.com/tflexsoom/spanpart/wire"
)

// ErrNotFound is returned by [Store.Load] for unknown documents.
var ErrNotFound = errors.New("store: document not found")

var bucketSnapshots = []byte("snapshots")

// Store is a [transport.Sink] that persists snapshots.
//
// A Store is safe for concurrent use.
type Store struct {
	db *bbolt.DB
}

// Open opens or creates the database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	opts := &bbolt.Options{Timeout: time.Second}
	if deadline, ok := ctx.Deadline(); ok {
		opts.Timeout = time.Until(deadline)
	}

	db, err := bbolt.Open(path, 0o600, opts)
	if err != nil {
		return nil, fmt.Errorf("open snapshot store: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSnapshots)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create snapshots bucket: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Submit stores snapshot under its document, unless a snapshot with the same
// or a higher version is already stored. Snapshots may arrive out of order,
// and the stored one only ever moves forward.
func (s *Store) Submit(ctx context.Context, snapshot span.Snapshot) error {
	if snapshot.Document == "" {
		return fmt.Errorf("store: snapshot has no document")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketSnapshots)
		key := []byte(snapshot.Document)

		if data := bucket.Get(key); data != nil {
			prev, err := wire.UnmarshalBinary(data)
			if err != nil {
				return fmt.Errorf("decode stored snapshot of %q: %w", snapshot.Document, err)
			}
			if prev.Version >= snapshot.Version {
				return nil
			}
		}

		if err := bucket.Put(key, wire.MarshalBinary(snapshot)); err != nil {
			return fmt.Errorf("save snapshot of %q: %w", snapshot.Document, err)
		}
		return nil
	})
}

// Load returns the stored snapshot of a document.
func (s *Store) Load(_ context.Context, document string) (span.Snapshot, error) {
	var snapshot span.Snapshot
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketSnapshots).Get([]byte(document))
		if data == nil {
			return fmt.Errorf("%w: %q", ErrNotFound, document)
		}

		var err error
		snapshot, err = wire.UnmarshalBinary(data)
		return err
	})
	return snapshot, err
}

// List returns the ids of every stored document, in ascending order.
func (s *Store) List(_ context.Context) ([]string, error) {
	var ids []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSnapshots).ForEach(func(k, _ []byte) error {
			ids = append(ids, string(k))
			return nil
		})
	})
	return ids, err
}

// Delete forgets a document. Deleting an unknown document is not an error.
func (s *Store) Delete(_ context.Context, document string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSnapshots).Delete([]byte(document))
	})
}
