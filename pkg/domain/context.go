package domain

import (
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	dErrors "idregistry/pkg/domain-errors"
)

// ContextLength is the byte length of an attestation context.
const ContextLength = 32

// AttestationContext is the application tag mixed into every signed message.
// Two deployments with different contexts never accept each other's attestations.
type AttestationContext [ContextLength]byte

// ContextFromString right-pads an ASCII application name to 32 bytes,
// e.g. "1hive" becomes 0x3168697665000...0.
func ContextFromString(name string) (AttestationContext, error) {
	var c AttestationContext
	if name == "" {
		return c, dErrors.New(dErrors.CodeInvalidInput, "context name is required")
	}
	if len(name) > ContextLength {
		return c, dErrors.Newf(dErrors.CodeInvalidInput, "context name must be at most %d bytes", ContextLength)
	}
	copy(c[:], name)
	return c, nil
}

// ParseContext accepts either a 0x-prefixed 32-byte hex value or a short
// application name.
func ParseContext(s string) (AttestationContext, error) {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "0x") && !strings.HasPrefix(trimmed, "0X") {
		return ContextFromString(trimmed)
	}
	raw, err := hexutil.Decode(strings.ToLower(trimmed))
	if err != nil {
		return AttestationContext{}, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid context hex")
	}
	if len(raw) != ContextLength {
		return AttestationContext{}, dErrors.Newf(dErrors.CodeInvalidInput, "context must be %d bytes, got %d", ContextLength, len(raw))
	}
	var c AttestationContext
	copy(c[:], raw)
	return c, nil
}

// IsZero reports whether the context is unset.
func (c AttestationContext) IsZero() bool {
	return c == AttestationContext{}
}

// Hex returns the 0x-prefixed hex form.
func (c AttestationContext) Hex() string {
	return hexutil.Encode(c[:])
}

func (c AttestationContext) String() string {
	return c.Hex()
}

func (c AttestationContext) MarshalText() ([]byte, error) {
	return []byte(c.Hex()), nil
}

func (c *AttestationContext) UnmarshalText(text []byte) error {
	parsed, err := ParseContext(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
