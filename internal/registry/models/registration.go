package models

import (
	"time"

	id "idregistry/pkg/domain"
	dErrors "idregistry/pkg/domain-errors"
)

// Registration is the per-address record.
//
// Invariants:
//   - AddressVoid only ever moves false -> true
//   - a void address can never again be the registering (first) address
//   - UniqueUserID is zero for tombstones created by voiding an address that
//     never registered on its own
type Registration struct {
	Address      id.Address
	UniqueUserID id.Address
	RegisterTime time.Time
	AddressVoid  bool
}

// HasUniqueUserID reports whether a canonical identity has been assigned.
func (r *Registration) HasUniqueUserID() bool {
	return r != nil && !r.UniqueUserID.IsZero()
}

// IsVerifiedAt reports whether the record is active and inside the
// registration period at now.
func (r *Registration) IsVerifiedAt(now time.Time, period time.Duration) bool {
	if r == nil || r.AddressVoid || r.RegisterTime.IsZero() {
		return false
	}
	return now.Sub(r.RegisterTime) < period
}

// RegistrationPlan is the set of record writes one registration call performs.
type RegistrationPlan struct {
	// Subject is the registering address (first in the list).
	Subject id.Address
	// UniqueUserID is the canonical identity assigned to Subject.
	UniqueUserID id.Address
	// Writes holds every record to upsert, voided addresses first, Subject last.
	Writes []Registration
	// Voided lists addresses that transitioned to void in this call.
	Voided []id.Address
}

// SubjectRecord returns the record written for the registering address.
func (p *RegistrationPlan) SubjectRecord() Registration {
	return p.Writes[len(p.Writes)-1]
}

// PlanRegistration computes the writes for registering addrs at registerTime.
// existing holds the current record of every address in addrs that has one.
//
// Rules:
//  1. addrs[0] must not be void.
//  2. addrs[0] keeps its own UniqueUserID when it has one. Otherwise it takes
//     the last address of the list: attestations list addresses newest first,
//     so the last entry is the oldest address of the person.
//  3. Every other listed address becomes void. Addresses without a record get
//     a tombstone. Already void records are left untouched.
//  4. addrs[0] is upserted as active with the new register time.
func PlanRegistration(addrs []id.Address, existing map[id.Address]Registration, registerTime time.Time) (*RegistrationPlan, error) {
	if len(addrs) == 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "registration requires at least one address")
	}
	subject := addrs[0]

	prior, hasPrior := existing[subject]
	if hasPrior && prior.AddressVoid {
		return nil, Fail(ReasonAddressVoided, "address "+subject.Hex()+" is void")
	}

	uniqueUserID := addrs[len(addrs)-1]
	if hasPrior && !prior.UniqueUserID.IsZero() {
		uniqueUserID = prior.UniqueUserID
	}

	plan := &RegistrationPlan{
		Subject:      subject,
		UniqueUserID: uniqueUserID,
		Writes:       make([]Registration, 0, len(addrs)),
	}

	seen := map[id.Address]struct{}{subject: {}}
	for _, addr := range addrs[1:] {
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}

		record, ok := existing[addr]
		if ok && record.AddressVoid {
			continue
		}
		if !ok {
			record = Registration{Address: addr}
		}
		record.AddressVoid = true
		plan.Writes = append(plan.Writes, record)
		plan.Voided = append(plan.Voided, addr)
	}

	plan.Writes = append(plan.Writes, Registration{
		Address:      subject,
		UniqueUserID: uniqueUserID,
		RegisterTime: registerTime,
		AddressVoid:  false,
	})
	return plan, nil
}
