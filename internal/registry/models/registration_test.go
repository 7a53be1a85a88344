package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "idregistry/pkg/domain"
	dErrors "idregistry/pkg/domain-errors"
)

// apply folds a plan into an in-memory record map the way a store would.
func apply(records map[id.Address]Registration, plan *RegistrationPlan) {
	for _, w := range plan.Writes {
		records[w.Address] = w
	}
}

func existingFor(records map[id.Address]Registration, list []id.Address) map[id.Address]Registration {
	out := make(map[id.Address]Registration)
	for _, a := range list {
		if r, ok := records[a]; ok {
			out[a] = r
		}
	}
	return out
}

func register(t *testing.T, records map[id.Address]Registration, list []id.Address, at time.Time) *RegistrationPlan {
	t.Helper()
	plan, err := PlanRegistration(list, existingFor(records, list), at)
	require.NoError(t, err)
	apply(records, plan)
	return plan
}

func TestPlanRegistration_FirstRegistration(t *testing.T) {
	records := map[id.Address]Registration{}
	now := time.Unix(1_600_000_000, 0)
	u := addr(1)

	plan := register(t, records, []id.Address{u}, now)

	assert.Equal(t, u, plan.UniqueUserID)
	assert.Empty(t, plan.Voided)
	assert.Equal(t, Registration{Address: u, UniqueUserID: u, RegisterTime: now}, records[u])
	assert.Equal(t, records[u], plan.SubjectRecord())
}

func TestPlanRegistration_Rotation(t *testing.T) {
	now := time.Unix(1_600_000_000, 0)
	a, b, c := addr(1), addr(2), addr(3)

	t.Run("canonical continuity across a rotation chain", func(t *testing.T) {
		records := map[id.Address]Registration{}
		register(t, records, []id.Address{a}, now)
		register(t, records, []id.Address{b, a}, now.Add(time.Minute))
		register(t, records, []id.Address{c, b, a}, now.Add(2*time.Minute))

		assert.Equal(t, a, records[a].UniqueUserID)
		assert.Equal(t, a, records[b].UniqueUserID)
		assert.Equal(t, a, records[c].UniqueUserID)
		assert.True(t, records[a].AddressVoid)
		assert.True(t, records[b].AddressVoid)
		assert.False(t, records[c].AddressVoid)
	})

	t.Run("subject keeps its own prior id", func(t *testing.T) {
		records := map[id.Address]Registration{}
		register(t, records, []id.Address{a}, now)
		register(t, records, []id.Address{b}, now)
		plan := register(t, records, []id.Address{b, a}, now)

		assert.Equal(t, b, plan.UniqueUserID)
		assert.Equal(t, a, records[a].UniqueUserID, "voiding keeps the old identity queryable")
	})

	t.Run("unregistered older address becomes a tombstone without an id", func(t *testing.T) {
		records := map[id.Address]Registration{}
		plan := register(t, records, []id.Address{b, a}, now)

		assert.Equal(t, a, plan.UniqueUserID)
		assert.Equal(t, []id.Address{a}, plan.Voided)
		tomb := records[a]
		assert.True(t, tomb.AddressVoid)
		assert.False(t, tomb.HasUniqueUserID())
		assert.True(t, tomb.RegisterTime.IsZero())
	})

	t.Run("already void entries are not rewritten", func(t *testing.T) {
		records := map[id.Address]Registration{}
		register(t, records, []id.Address{b, a}, now)
		plan := register(t, records, []id.Address{c, b, a}, now)

		assert.Equal(t, []id.Address{b}, plan.Voided)
		assert.Len(t, plan.Writes, 2)
	})

	t.Run("subject repeated later in the list is not voided", func(t *testing.T) {
		records := map[id.Address]Registration{}
		register(t, records, []id.Address{a}, now)
		register(t, records, []id.Address{a, a}, now)
		assert.False(t, records[a].AddressVoid)
	})
}

func TestPlanRegistration_VoidMonotonicity(t *testing.T) {
	now := time.Unix(1_600_000_000, 0)
	a, b := addr(1), addr(2)
	records := map[id.Address]Registration{}
	register(t, records, []id.Address{a}, now)
	register(t, records, []id.Address{b, a}, now)

	_, err := PlanRegistration([]id.Address{a}, existingFor(records, []id.Address{a}), now)
	require.Error(t, err)
	assert.True(t, HasReason(err, ReasonAddressVoided))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))

	_, err = PlanRegistration([]id.Address{a, b}, existingFor(records, []id.Address{a, b}), now)
	assert.True(t, HasReason(err, ReasonAddressVoided))
	assert.True(t, records[a].AddressVoid)
}

func TestPlanRegistration_EmptyList(t *testing.T) {
	_, err := PlanRegistration(nil, nil, time.Now())
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

func TestRegistration_IsVerifiedAt(t *testing.T) {
	registered := time.Unix(1_600_000_000, 0)
	period := 7 * 24 * time.Hour
	r := &Registration{Address: addr(1), UniqueUserID: addr(1), RegisterTime: registered}

	assert.True(t, r.IsVerifiedAt(registered, period))
	assert.True(t, r.IsVerifiedAt(registered.Add(period-time.Second), period))
	assert.False(t, r.IsVerifiedAt(registered.Add(period), period))

	r.AddressVoid = true
	assert.False(t, r.IsVerifiedAt(registered, period))

	var missing *Registration
	assert.False(t, missing.IsVerifiedAt(registered, period))
	assert.False(t, missing.HasUniqueUserID())
}
