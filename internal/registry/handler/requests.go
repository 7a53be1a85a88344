package handler

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"idregistry/internal/registry/models"
	id "idregistry/pkg/domain"
	dErrors "idregistry/pkg/domain-errors"
)

const (
	// maxListedAddresses bounds the address list of one registration.
	maxListedAddresses = 64
	// maxAttestations bounds decoded attestation slices. The quorum check
	// applies the tighter verifier cap.
	maxAttestations = 4 * models.MaxVerifiers
	maxPayloadBytes = 64 << 10
	maxDuration     = 100 * 365 * 24 * time.Hour
)

// SignatureBody is a {v, r, s} signature in its published form.
type SignatureBody struct {
	V int    `json:"v"`
	R string `json:"r"`
	S string `json:"s"`
}

// RegisterRequest is the HTTP request body for POST /v1/registrations.
//
// CallerSignature is the first listed address's signature over the
// submission digest. It stands in for the transaction sender, so the server
// never trusts a claimed caller.
type RegisterRequest struct {
	Addresses       []string       `json:"addresses"`
	Timestamps      []uint64       `json:"timestamps"`
	V               []int          `json:"v"`
	R               []string       `json:"r"`
	S               []string       `json:"s"`
	Receiver        string         `json:"receiver,omitempty"`
	Payload         string         `json:"payload,omitempty"`
	CallerSignature *SignatureBody `json:"caller_signature"`

	// Parsed values (populated by Validate)
	addresses []id.Address
	v         []uint8
	r         [][32]byte
	s         [][32]byte
	receiver  id.Address
	payload   []byte
	caller    models.Signature
}

// Validate validates and parses the request.
func (r *RegisterRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.Addresses) == 0 {
		return dErrors.New(dErrors.CodeValidation, "addresses is required")
	}
	if len(r.Addresses) > maxListedAddresses {
		return dErrors.Newf(dErrors.CodeValidation, "at most %d addresses may be listed", maxListedAddresses)
	}
	if len(r.Timestamps) > maxAttestations || len(r.V) > maxAttestations ||
		len(r.R) > maxAttestations || len(r.S) > maxAttestations {
		return models.Fail(models.ReasonIncorrectSignatures, "too many attestations")
	}
	if n := len(r.Timestamps); len(r.V) != n || len(r.R) != n || len(r.S) != n {
		return models.Fail(models.ReasonSignaturesDifferentLengths,
			fmt.Sprintf("got %d timestamps, %d v, %d r, %d s", n, len(r.V), len(r.R), len(r.S)))
	}

	addrs, err := id.ParseAddresses(r.Addresses)
	if err != nil {
		return err
	}
	r.addresses = addrs

	if r.CallerSignature == nil {
		return models.Fail(models.ReasonSenderNotInVerification, "caller_signature from the first listed address is required")
	}
	if r.caller, err = r.CallerSignature.parse(); err != nil {
		return err
	}

	r.v = make([]uint8, len(r.V))
	for i, v := range r.V {
		if v < 0 || v > 255 {
			return models.Fail(models.ReasonInvalidSignature, "v components must fit in one byte")
		}
		r.v[i] = uint8(v)
	}
	if r.r, err = parseWords(r.R, "r"); err != nil {
		return err
	}
	if r.s, err = parseWords(r.S, "s"); err != nil {
		return err
	}

	if receiver := strings.TrimSpace(r.Receiver); receiver != "" {
		if r.receiver, err = id.ParseAddress(receiver); err != nil {
			return err
		}
	}
	if payload := strings.TrimSpace(r.Payload); payload != "" {
		if r.payload, err = hexutil.Decode(payload); err != nil {
			return dErrors.New(dErrors.CodeBadRequest, "payload must be 0x-prefixed hex")
		}
		if len(r.payload) > maxPayloadBytes {
			return dErrors.Newf(dErrors.CodeValidation, "payload must be at most %d bytes", maxPayloadBytes)
		}
	}
	return nil
}

// Domain builds the service request.
func (r *RegisterRequest) Domain() *models.RegisterRequest {
	return &models.RegisterRequest{
		CallerSignature: r.caller,
		Addresses:       r.addresses,
		Timestamps:      r.Timestamps,
		V:               r.v,
		R:               r.r,
		S:               r.s,
		Receiver:        r.receiver,
		Payload:         r.payload,
	}
}

func (b *SignatureBody) parse() (models.Signature, error) {
	if b.V < 0 || b.V > 255 {
		return models.Signature{}, models.Fail(models.ReasonInvalidSignature, "caller_signature.v must fit in one byte")
	}
	words, err := parseWords([]string{b.R, b.S}, "caller_signature")
	if err != nil {
		return models.Signature{}, err
	}
	return models.Signature{V: uint8(b.V), R: words[0], S: words[1]}, nil
}

func parseWords(values []string, field string) ([][32]byte, error) {
	out := make([][32]byte, len(values))
	for i, v := range values {
		b, err := hexutil.Decode(strings.TrimSpace(v))
		if err != nil || len(b) != 32 {
			return nil, models.Fail(models.ReasonInvalidSignature, field+" components must be 32-byte 0x-hex words")
		}
		copy(out[i][:], b)
	}
	return out, nil
}

// SetVerifiersRequest is the body of PUT /v1/admin/verifiers.
type SetVerifiersRequest struct {
	Verifiers             []string `json:"verifiers"`
	RequiredVerifications int      `json:"required_verifications"`

	verifiers []id.Address
}

func (r *SetVerifiersRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	// The settings model owns the count rules; only bound the parsing work here.
	if len(r.Verifiers) > 4*models.MaxVerifiers {
		return models.Fail(models.ReasonTooManyVerifiers, "too many verifiers")
	}
	verifiers, err := id.ParseAddresses(r.Verifiers)
	if err != nil {
		return err
	}
	r.verifiers = verifiers
	return nil
}

// DurationRequest is the body of the admin period endpoints.
type DurationRequest struct {
	Seconds *int64 `json:"seconds"`
}

func (r *DurationRequest) Validate() error {
	if r == nil || r.Seconds == nil {
		return dErrors.New(dErrors.CodeValidation, "seconds is required")
	}
	if *r.Seconds < 0 || *r.Seconds > int64(maxDuration/time.Second) {
		return dErrors.New(dErrors.CodeValidation, "seconds is out of range")
	}
	return nil
}

// Duration returns the parsed duration.
func (r *DurationRequest) Duration() time.Duration {
	return time.Duration(*r.Seconds) * time.Second
}
