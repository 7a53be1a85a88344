package handler

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idregistry/internal/registry/models"
	dErrors "idregistry/pkg/domain-errors"
)

func word(b byte) string {
	return fmt.Sprintf("0x%064x", b)
}

func TestRegisterRequestValidate(t *testing.T) {
	valid := func() *RegisterRequest {
		return &RegisterRequest{
			Addresses:       []string{addr(1).Hex(), addr(2).Hex()},
			Timestamps:      []uint64{1600000000},
			V:               []int{27},
			R:               []string{word(1)},
			S:               []string{word(2)},
			CallerSignature: &SignatureBody{V: 28, R: word(3), S: word(4)},
		}
	}

	t.Run("parses every field", func(t *testing.T) {
		req := valid()
		req.Receiver = addr(3).Hex()
		req.Payload = "0x0102"
		require.NoError(t, req.Validate())

		domain := req.Domain()
		assert.Equal(t, models.Signature{V: 28, R: [32]byte{31: 3}, S: [32]byte{31: 4}}, domain.CallerSignature)
		assert.Equal(t, addr(2), domain.Addresses[1])
		assert.Equal(t, []uint8{27}, domain.V)
		assert.Equal(t, byte(1), domain.R[0][31])
		assert.Equal(t, byte(2), domain.S[0][31])
		assert.Equal(t, addr(3), domain.Receiver)
		assert.Equal(t, []byte{1, 2}, domain.Payload)
	})

	t.Run("no receiver leaves the zero address", func(t *testing.T) {
		req := valid()
		require.NoError(t, req.Validate())
		assert.True(t, req.Domain().Receiver.IsZero())
	})

	tests := []struct {
		name   string
		mutate func(r *RegisterRequest)
		reason models.Reason
		code   dErrors.Code
	}{
		{"no addresses", func(r *RegisterRequest) { r.Addresses = nil }, "", dErrors.CodeValidation},
		{"bad address", func(r *RegisterRequest) { r.Addresses[1] = "0x12" }, "", dErrors.CodeInvalidInput},
		{"v out of range", func(r *RegisterRequest) { r.V[0] = 300 }, models.ReasonInvalidSignature, dErrors.CodeBadRequest},
		{"short s", func(r *RegisterRequest) { r.S[0] = "0x01" }, models.ReasonInvalidSignature, dErrors.CodeBadRequest},
		{"payload not hex", func(r *RegisterRequest) { r.Payload = "cafe" }, "", dErrors.CodeBadRequest},
		{"too many attestations", func(r *RegisterRequest) { r.Timestamps = make([]uint64, maxAttestations+1) }, models.ReasonIncorrectSignatures, dErrors.CodeBadRequest},
		{"missing s component", func(r *RegisterRequest) { r.S = nil }, models.ReasonSignaturesDifferentLengths, dErrors.CodeBadRequest},
		{"length mismatch wins over a bad word", func(r *RegisterRequest) {
			r.R = append(r.R, "0x01")
		}, models.ReasonSignaturesDifferentLengths, dErrors.CodeBadRequest},
		{"length mismatch wins over a bad v", func(r *RegisterRequest) {
			r.V = []int{300, 27}
		}, models.ReasonSignaturesDifferentLengths, dErrors.CodeBadRequest},
		{"no caller signature", func(r *RegisterRequest) { r.CallerSignature = nil }, models.ReasonSenderNotInVerification, dErrors.CodeUnauthorized},
		{"short caller signature word", func(r *RegisterRequest) { r.CallerSignature.R = "0x01" }, models.ReasonInvalidSignature, dErrors.CodeBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid()
			tt.mutate(req)
			err := req.Validate()
			require.Error(t, err)
			assert.Equal(t, tt.code, dErrors.CodeOf(err))
			if tt.reason != "" {
				assert.True(t, models.HasReason(err, tt.reason))
			}
		})
	}
}

func TestDurationRequestValidate(t *testing.T) {
	seconds := func(n int64) *int64 { return &n }

	assert.Error(t, (&DurationRequest{}).Validate())
	assert.Error(t, (&DurationRequest{Seconds: seconds(-1)}).Validate())
	assert.NoError(t, (&DurationRequest{Seconds: seconds(0)}).Validate())

	req := &DurationRequest{Seconds: seconds(90)}
	require.NoError(t, req.Validate())
	assert.Equal(t, int64(90), int64(req.Duration().Seconds()))
}
