package models

import (
	id "idregistry/pkg/domain"
)

// Signature is a recoverable secp256k1 signature split the way verifiers
// publish it.
type Signature struct {
	V uint8
	R [32]byte
	S [32]byte
}

// RegisterRequest is a registration call. Timestamps and the V/R/S component
// slices are positionally aligned: entry i is one verifier's attestation.
// CallerSignature is the submitter's signature over the whole request and
// must recover to Addresses[0].
type RegisterRequest struct {
	CallerSignature Signature
	Addresses       []id.Address
	Timestamps      []uint64
	V               []uint8
	R               [][32]byte
	S               [][32]byte
	// Receiver is notified after a successful registration. Zero means none.
	Receiver id.Address
	Payload  []byte
}

// Signatures zips the component slices. Callers must have checked lengths.
func (r *RegisterRequest) Signatures() []Signature {
	sigs := make([]Signature, len(r.V))
	for i := range r.V {
		sigs[i] = Signature{V: r.V[i], R: r.R[i], S: r.S[i]}
	}
	return sigs
}

// Acceptance records one attestation that counted toward quorum.
type Acceptance struct {
	Verifier  id.Address
	Timestamp uint64
	Index     int
}

// SkipCause says why an attestation did not count toward quorum.
type SkipCause string

const (
	SkipUntrusted   SkipCause = "untrusted"
	SkipDuplicate   SkipCause = "duplicate"
	SkipOutOfWindow SkipCause = "out_of_window"
	SkipMalformed   SkipCause = "malformed"
)

// Skip records one attestation that was ignored.
type Skip struct {
	Index  int
	Signer id.Address
	Cause  SkipCause
}

// QuorumResult is the outcome of a successful quorum check.
type QuorumResult struct {
	Accepted []Acceptance
	Skipped  []Skip
	// Earliest is the smallest accepted timestamp (unix seconds).
	Earliest uint64
}

// RegisterResult is returned by a successful registration.
type RegisterResult struct {
	Caller   id.Address
	Plan     *RegistrationPlan
	Quorum   *QuorumResult
	Receiver id.Address
	// NotificationID is the outbox entry queued for Receiver, empty when none.
	NotificationID string
}
