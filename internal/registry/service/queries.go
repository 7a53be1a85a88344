package service

import (
	"context"
	"errors"
	"time"

	"idregistry/internal/registry/models"
	id "idregistry/pkg/domain"
	"idregistry/pkg/platform/sentinel"
	"idregistry/pkg/requestcontext"
)

// IsVerified reports whether addr is active and inside the registration period.
// An uninitialized registry verifies nobody.
func (s *Service) IsVerified(ctx context.Context, addr id.Address) (bool, error) {
	defer s.observeQuery("is_verified", time.Now())

	settings := s.settings.Load()
	if settings == nil {
		return false, nil
	}
	record, err := s.find(ctx, addr)
	if err != nil {
		return false, err
	}
	return record.IsVerifiedAt(requestcontext.Now(ctx), settings.RegistrationPeriod), nil
}

// UniqueUserID returns the canonical identity of addr. Void and expired
// records still answer; addresses without an assigned identity fail with
// NO_UNIQUE_ID_ASSIGNED.
func (s *Service) UniqueUserID(ctx context.Context, addr id.Address) (id.Address, error) {
	defer s.observeQuery("unique_user_id", time.Now())

	record, err := s.find(ctx, addr)
	if err != nil {
		return id.Address{}, err
	}
	if !record.HasUniqueUserID() {
		return id.Address{}, models.Fail(models.ReasonNoUniqueIDAssigned, "no unique user id assigned to "+addr.Hex())
	}
	return record.UniqueUserID, nil
}

// HasUniqueUserID reports whether addr resolves to a canonical identity.
func (s *Service) HasUniqueUserID(ctx context.Context, addr id.Address) (bool, error) {
	defer s.observeQuery("has_unique_user_id", time.Now())

	record, err := s.find(ctx, addr)
	if err != nil {
		return false, err
	}
	return record.HasUniqueUserID(), nil
}

// UserRegistration returns the stored record for addr. Unknown addresses
// yield an empty record rather than an error.
func (s *Service) UserRegistration(ctx context.Context, addr id.Address) (*models.Registration, error) {
	defer s.observeQuery("user_registration", time.Now())

	record, err := s.find(ctx, addr)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return &models.Registration{Address: addr}, nil
	}
	return record, nil
}

// find returns nil without error when addr has no record.
func (s *Service) find(ctx context.Context, addr id.Address) (*models.Registration, error) {
	record, err := s.registrations.FindByAddress(ctx, addr)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storeError(err, "failed to load registration")
	}
	return record, nil
}

func (s *Service) observeQuery(query string, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveQuery(query, start)
	}
}
