// Package store persists registration records and verifier settings.
package store

import (
	"context"
	"time"

	"idregistry/internal/registry/models"
	id "idregistry/pkg/domain"
)

// Hook runs inside Apply's unit of work once the plan is computed. SQL stores
// pass the open transaction in ctx so the hook can write alongside the
// records. Returning an error discards the whole registration.
type Hook func(ctx context.Context, plan *models.RegistrationPlan) error

// Registrations is the address to record mapping.
type Registrations interface {
	// FindByAddress returns sentinel.ErrNotFound when the address has no record.
	FindByAddress(ctx context.Context, addr id.Address) (*models.Registration, error)
	// FindMany returns the records that exist among addrs.
	FindMany(ctx context.Context, addrs []id.Address) (map[id.Address]models.Registration, error)
	// Apply plans and commits a registration atomically.
	Apply(ctx context.Context, addrs []id.Address, registerTime time.Time, hook Hook) (*models.RegistrationPlan, error)
}

// Settings holds the single current verifier configuration.
type Settings interface {
	// Load returns sentinel.ErrNotFound before the first Save.
	Load(ctx context.Context) (*models.Settings, error)
	// Save stores s when the stored version is s.Version-1 (or absent for
	// version 1). Otherwise it returns sentinel.ErrConflict.
	Save(ctx context.Context, s *models.Settings) error
}
