package store

import (
	"context"
	"sync"

	"github.com/ashureev/virtual-companion/internal/domain"
)

// MemoryStore keeps the persona in process memory. State does not survive
// a restart.
type MemoryStore struct {
	mu    sync.Mutex
	saved *domain.Persona
	saves int
	err   error
}

// NewMemory creates an empty in-memory repository.
func NewMemory() *MemoryStore {
	return &MemoryStore{}
}

// Load returns a copy of the saved persona.
func (s *MemoryStore) Load(_ context.Context) (*domain.Persona, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saved == nil {
		return nil, nil
	}
	p := s.saved.Clone()
	return &p, nil
}

// Save stores a copy of p.
func (s *MemoryStore) Save(_ context.Context, p *domain.Persona) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	cp := p.Clone()
	s.saved = &cp
	s.saves++
	return nil
}

// FailSaves makes every following Save return err. A nil err clears it.
func (s *MemoryStore) FailSaves(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Saves returns the number of successful saves.
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// Ping always succeeds.
func (s *MemoryStore) Ping(_ context.Context) error { return nil }

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
