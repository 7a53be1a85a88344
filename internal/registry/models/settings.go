package models

import (
	"fmt"
	"time"

	id "idregistry/pkg/domain"
)

// MaxVerifiers caps the trusted verifier set and the number of attestations
// accepted in one registration call.
const MaxVerifiers = 20

// Settings is the verifier configuration: who may attest, how many must agree,
// and the time windows applied to attestations and registrations.
//
// Invariants:
//   - Verifiers is non-empty, has no duplicates and at most MaxVerifiers entries
//   - 1 <= RequiredVerifications <= len(Verifiers)
//   - RegistrationPeriod > 0
//   - TimestampVariance >= 0
//
// A Settings value is never mutated in place. Every change produces a new
// value with Version incremented, so readers holding an older pointer keep a
// consistent view.
type Settings struct {
	Version               uint64
	Context               id.AttestationContext
	Verifiers             []id.Address
	RequiredVerifications int
	RegistrationPeriod    time.Duration
	TimestampVariance     time.Duration
}

// InitParams carries the one-time initialization values.
type InitParams struct {
	Context               id.AttestationContext
	Verifiers             []id.Address
	RequiredVerifications int
	RegistrationPeriod    time.Duration
	TimestampVariance     time.Duration
}

// NewSettings validates initialization parameters and returns version 1.
func NewSettings(p InitParams) (*Settings, error) {
	if p.Context.IsZero() {
		return nil, Fail(ReasonContextRequired, "attestation context is required")
	}
	if err := validateVerifiers(p.Verifiers, p.RequiredVerifications); err != nil {
		return nil, err
	}
	if err := validateRegistrationPeriod(p.RegistrationPeriod); err != nil {
		return nil, err
	}
	if err := validateTimestampVariance(p.TimestampVariance); err != nil {
		return nil, err
	}
	return &Settings{
		Version:               1,
		Context:               p.Context,
		Verifiers:             copyAddresses(p.Verifiers),
		RequiredVerifications: p.RequiredVerifications,
		RegistrationPeriod:    p.RegistrationPeriod,
		TimestampVariance:     p.TimestampVariance,
	}, nil
}

// WithVerifiers returns the next version with a replaced verifier set.
func (s *Settings) WithVerifiers(verifiers []id.Address, required int) (*Settings, error) {
	if err := validateVerifiers(verifiers, required); err != nil {
		return nil, err
	}
	next := s.next()
	next.Verifiers = copyAddresses(verifiers)
	next.RequiredVerifications = required
	return next, nil
}

// WithRegistrationPeriod returns the next version with a new registration period.
func (s *Settings) WithRegistrationPeriod(period time.Duration) (*Settings, error) {
	if err := validateRegistrationPeriod(period); err != nil {
		return nil, err
	}
	next := s.next()
	next.RegistrationPeriod = period
	return next, nil
}

// WithTimestampVariance returns the next version with a new timestamp variance.
// Zero is allowed and means attestations must carry the current second.
func (s *Settings) WithTimestampVariance(variance time.Duration) (*Settings, error) {
	if err := validateTimestampVariance(variance); err != nil {
		return nil, err
	}
	next := s.next()
	next.TimestampVariance = variance
	return next, nil
}

// IsVerifier reports whether addr belongs to the trusted set.
func (s *Settings) IsVerifier(addr id.Address) bool {
	for _, v := range s.Verifiers {
		if v == addr {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (s *Settings) Clone() *Settings {
	c := *s
	c.Verifiers = copyAddresses(s.Verifiers)
	return &c
}

func (s *Settings) next() *Settings {
	c := s.Clone()
	c.Version = s.Version + 1
	return c
}

func validateVerifiers(verifiers []id.Address, required int) error {
	if len(verifiers) == 0 {
		return Fail(ReasonNoVerifiers, "at least one verifier is required")
	}
	if len(verifiers) > MaxVerifiers {
		return Fail(ReasonTooManyVerifiers, fmt.Sprintf("at most %d verifiers are allowed", MaxVerifiers))
	}
	seen := make(map[id.Address]struct{}, len(verifiers))
	for _, v := range verifiers {
		if v.IsZero() {
			return Fail(ReasonNoVerifiers, "verifier address must not be zero")
		}
		if _, dup := seen[v]; dup {
			return Fail(ReasonDuplicateVerifiers, fmt.Sprintf("verifier %s listed twice", v))
		}
		seen[v] = struct{}{}
	}
	if required <= 0 {
		return Fail(ReasonNotEnoughVerifications, "required verifications must be at least 1")
	}
	if required > len(verifiers) {
		return Fail(ReasonTooManyVerifications, "required verifications exceed the verifier count")
	}
	return nil
}

func validateRegistrationPeriod(period time.Duration) error {
	if period < time.Second {
		return Fail(ReasonRegistrationPeriodZero, "registration period must be at least one second")
	}
	return nil
}

func validateTimestampVariance(variance time.Duration) error {
	if variance < 0 {
		return Fail(ReasonInvalidTimestampVariance, "timestamp variance must not be negative")
	}
	return nil
}

func copyAddresses(in []id.Address) []id.Address {
	out := make([]id.Address, len(in))
	copy(out, in)
	return out
}
