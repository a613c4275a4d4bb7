// Package store provides persona persistence interfaces and implementations.
package store

import (
	"context"

	"github.com/ashureev/virtual-companion/internal/domain"
)

// Repository persists the single persona document.
type Repository interface {
	// Load returns the saved persona, or nil if nothing has been saved yet.
	Load(ctx context.Context) (*domain.Persona, error)

	// Save overwrites the saved persona with p.
	Save(ctx context.Context, p *domain.Persona) error

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// Ensure implementations satisfy Repository.
var (
	_ Repository = (*FileStore)(nil)
	_ Repository = (*SQLiteStore)(nil)
	_ Repository = (*MemoryStore)(nil)
)
