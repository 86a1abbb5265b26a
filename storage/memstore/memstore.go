// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package memstore is an in-memory storage.Storage, used by tests and
// by callers who want an ephemeral corestore that never touches disk.
// It is a real, fully-functional implementation of the interface, not
// a mock — the same philosophy as the teacher's MemorySignaler.
package memstore

import (
	"context"
	"fmt"
	"iter"
	"sync"

	"github.com/corestore-go/corestore/engine"
	"github.com/corestore-go/corestore/storage"
)

type aliasKey struct {
	namespace [engine.KeySize]byte
	name      string
}

type userDataKey struct {
	discoveryKey [engine.KeySize]byte
	key          string
}

// Store is an in-memory storage.Storage. The zero value is not usable;
// construct one with New.
type Store struct {
	mu sync.Mutex

	seed    [32]byte
	hasSeed bool

	cores    map[[engine.KeySize]byte]storage.CoreEntry
	aliases  map[aliasKey][engine.KeySize]byte
	auth     map[[engine.KeySize]byte]storage.AuthRecord
	userData map[userDataKey][]byte

	suspended bool
	closed    bool
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		cores:    make(map[[engine.KeySize]byte]storage.CoreEntry),
		aliases:  make(map[aliasKey][engine.KeySize]byte),
		auth:     make(map[[engine.KeySize]byte]storage.AuthRecord),
		userData: make(map[userDataKey][]byte),
	}
}

func (s *Store) GetUserData(ctx context.Context, discoveryKey [engine.KeySize]byte, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.userData[userDataKey{discoveryKey: discoveryKey, key: key}]
	return value, ok, nil
}

func (s *Store) SetUserData(ctx context.Context, discoveryKey [engine.KeySize]byte, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := make([]byte, len(value))
	copy(stored, value)
	s.userData[userDataKey{discoveryKey: discoveryKey, key: key}] = stored
	return nil
}

func (s *Store) GetSeed(ctx context.Context) ([32]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seed, s.hasSeed, nil
}

func (s *Store) SetSeed(ctx context.Context, seed [32]byte) ([32]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasSeed {
		s.seed = seed
		s.hasSeed = true
	}
	return s.seed, nil
}

func (s *Store) Has(ctx context.Context, discoveryKey [engine.KeySize]byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.cores[discoveryKey]
	return ok, nil
}

func (s *Store) GetAlias(ctx context.Context, namespace [engine.KeySize]byte, name string) ([engine.KeySize]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	discoveryKey, ok := s.aliases[aliasKey{namespace: namespace, name: name}]
	return discoveryKey, ok, nil
}

func (s *Store) SetAlias(ctx context.Context, namespace [engine.KeySize]byte, name string, discoveryKey [engine.KeySize]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aliases[aliasKey{namespace: namespace, name: name}] = discoveryKey
	return nil
}

func (s *Store) GetAuth(ctx context.Context, discoveryKey [engine.KeySize]byte) (storage.AuthRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.auth[discoveryKey]
	return record, ok, nil
}

func (s *Store) SetAuth(ctx context.Context, discoveryKey [engine.KeySize]byte, record storage.AuthRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auth[discoveryKey] = record
	version := 1
	if record.Manifest != nil {
		version = record.Manifest.Version
	}
	s.cores[discoveryKey] = storage.CoreEntry{DiscoveryKey: discoveryKey, Version: version}
	return nil
}

func (s *Store) CreateCoreStream(ctx context.Context) iter.Seq2[storage.CoreEntry, error] {
	s.mu.Lock()
	entries := make([]storage.CoreEntry, 0, len(s.cores))
	for _, entry := range s.cores {
		entries = append(entries, entry)
	}
	s.mu.Unlock()

	return func(yield func(storage.CoreEntry, error) bool) {
		for _, entry := range entries {
			if !yield(entry, nil) {
				return
			}
		}
	}
}

func (s *Store) CreateDiscoveryKeyStream(ctx context.Context, namespace *[engine.KeySize]byte) iter.Seq2[[engine.KeySize]byte, error] {
	s.mu.Lock()
	var keys [][engine.KeySize]byte
	if namespace == nil {
		for k := range s.aliases {
			keys = append(keys, s.aliases[k])
		}
	} else {
		for k, discoveryKey := range s.aliases {
			if k.namespace == *namespace {
				keys = append(keys, discoveryKey)
			}
		}
	}
	s.mu.Unlock()

	return func(yield func([engine.KeySize]byte, error) bool) {
		for _, key := range keys {
			if !yield(key, nil) {
				return
			}
		}
	}
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return nil
}

func (s *Store) Flush(ctx context.Context) error {
	return nil
}

func (s *Store) Suspend(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("memstore: suspend: storage is closed")
	}
	s.suspended = true
	return nil
}

func (s *Store) Resume(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suspended = false
	return nil
}
