package recording

import (
	"sync"

	"github.com/google/uuid"
)

// Handle references an artifact held by an ArtifactStore, in the same way an
// object URL references a blob. A handle stays valid until released.
type Handle string

// ArtifactStore is the resource abstraction for finished recordings.
// Every Put must eventually be matched by a Release; the session releases
// the previous handle before storing a new one.
type ArtifactStore interface {
	Put(a *Artifact) Handle
	Get(h Handle) (*Artifact, bool)
	Release(h Handle) bool
	Live() int
}

// InMemoryStore is a concurrency-safe in-memory implementation of ArtifactStore.
type InMemoryStore struct {
	mu        sync.RWMutex
	artifacts map[Handle]*Artifact
}

// NewInMemoryStore returns a new empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		artifacts: make(map[Handle]*Artifact),
	}
}

// Put implements ArtifactStore.Put. It assigns a fresh handle to a.
func (s *InMemoryStore) Put(a *Artifact) Handle {
	h := Handle("blob:" + uuid.NewString())

	s.mu.Lock()
	defer s.mu.Unlock()
	a.Handle = h
	s.artifacts[h] = a
	return h
}

// Get implements ArtifactStore.Get.
func (s *InMemoryStore) Get(h Handle) (*Artifact, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.artifacts[h]
	return a, ok
}

// Release implements ArtifactStore.Release. It reports whether h was live.
func (s *InMemoryStore) Release(h Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.artifacts[h]; !ok {
		return false
	}
	delete(s.artifacts, h)
	return true
}

// Live implements ArtifactStore.Live.
func (s *InMemoryStore) Live() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.artifacts)
}
