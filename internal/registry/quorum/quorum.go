// Package quorum decides whether a set of verifier attestations is enough to
// accept a registration.
package quorum

import (
	"fmt"
	"time"

	"idregistry/internal/registry/models"
	"idregistry/internal/registry/signature"
	id "idregistry/pkg/domain"
)

// RecoverFunc returns the signer of a digest.
type RecoverFunc func(hash signature.Hash, sig models.Signature) (id.Address, error)

// Validator checks attestations against a settings snapshot.
type Validator struct {
	recover RecoverFunc
}

// Option configures a Validator.
type Option func(*Validator)

// WithRecover replaces signer recovery. Tests use it to avoid real keys.
func WithRecover(fn RecoverFunc) Option {
	return func(v *Validator) {
		v.recover = fn
	}
}

// New returns a Validator that recovers signers with secp256k1.
func New(opts ...Option) *Validator {
	v := &Validator{recover: signature.Recover}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate runs the quorum checks in order:
//
//  1. timestamps and every signature component have the same length
//  2. that length is between RequiredVerifications and MaxVerifiers, and no
//     timestamp is zero
//  3. each signer is a trusted verifier not already counted in this call
//  4. each counted timestamp lies in [now-variance, now]
//  5. at least RequiredVerifications attestations were counted
//
// Malformed, untrusted, repeated and stale attestations are skipped. When the
// quorum is missed and a malformed signature was among the skipped, the call
// fails with INVALID_SIGNATURE instead of NOT_VERIFIED.
func (v *Validator) Validate(now time.Time, settings *models.Settings, req *models.RegisterRequest) (*models.QuorumResult, error) {
	n := len(req.Timestamps)
	if len(req.V) != n || len(req.R) != n || len(req.S) != n {
		return nil, models.Fail(models.ReasonSignaturesDifferentLengths,
			fmt.Sprintf("got %d timestamps, %d v, %d r, %d s", n, len(req.V), len(req.R), len(req.S)))
	}
	if n < settings.RequiredVerifications {
		return nil, models.Fail(models.ReasonIncorrectSignatures,
			fmt.Sprintf("got %d attestations, need at least %d", n, settings.RequiredVerifications))
	}
	if n > models.MaxVerifiers {
		return nil, models.Fail(models.ReasonIncorrectSignatures,
			fmt.Sprintf("got %d attestations, at most %d are accepted", n, models.MaxVerifiers))
	}
	for i, ts := range req.Timestamps {
		if ts == 0 {
			return nil, models.Fail(models.ReasonIncorrectTimestamps, fmt.Sprintf("timestamp %d is zero", i))
		}
	}

	low, high := window(now, settings.TimestampVariance)
	result := &models.QuorumResult{}
	counted := make(map[id.Address]struct{}, n)
	var malformed error

	for i, sig := range req.Signatures() {
		ts := req.Timestamps[i]
		hash := signature.MessageHash(settings.Context, req.Addresses, ts)
		signer, err := v.recover(hash, sig)
		if err != nil {
			if malformed == nil {
				malformed = err
			}
			result.Skipped = append(result.Skipped, models.Skip{Index: i, Cause: models.SkipMalformed})
			continue
		}

		switch {
		case !settings.IsVerifier(signer):
			result.Skipped = append(result.Skipped, models.Skip{Index: i, Signer: signer, Cause: models.SkipUntrusted})
			continue
		case isCounted(counted, signer):
			result.Skipped = append(result.Skipped, models.Skip{Index: i, Signer: signer, Cause: models.SkipDuplicate})
			continue
		case ts < low || ts > high:
			result.Skipped = append(result.Skipped, models.Skip{Index: i, Signer: signer, Cause: models.SkipOutOfWindow})
			continue
		}

		counted[signer] = struct{}{}
		result.Accepted = append(result.Accepted, models.Acceptance{Verifier: signer, Timestamp: ts, Index: i})
		if result.Earliest == 0 || ts < result.Earliest {
			result.Earliest = ts
		}
	}

	if len(result.Accepted) < settings.RequiredVerifications {
		if malformed != nil {
			if models.HasReason(malformed, models.ReasonInvalidSignature) {
				return nil, malformed
			}
			return nil, models.Fail(models.ReasonInvalidSignature, malformed.Error())
		}
		return nil, models.Fail(models.ReasonNotVerified,
			fmt.Sprintf("%d of %d required verifications accepted", len(result.Accepted), settings.RequiredVerifications))
	}
	return result, nil
}

// window returns the inclusive accepted timestamp range in unix seconds.
func window(now time.Time, variance time.Duration) (low, high uint64) {
	nowSec := now.Unix()
	if nowSec < 0 {
		return 0, 0
	}
	high = uint64(nowSec)
	v := uint64(variance / time.Second)
	if v < high {
		low = high - v
	}
	return low, high
}

func isCounted(counted map[id.Address]struct{}, signer id.Address) bool {
	_, ok := counted[signer]
	return ok
}
