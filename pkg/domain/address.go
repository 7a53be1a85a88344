// Package domain holds the value types shared by every registry module.
//
// Addresses and attestation contexts are parsed once at trust boundaries
// (HTTP handlers, CLI flags, config) and passed around as typed values after.
package domain

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"

	dErrors "idregistry/pkg/domain-errors"
)

// AddressLength is the byte length of an account address.
const AddressLength = common.AddressLength

// maxAddressInput bounds the raw input accepted by ParseAddress.
const maxAddressInput = 2 + 2*AddressLength

// Address is a 20-byte account address.
type Address common.Address

// ZeroAddress is the null address. It marks "no receiver" in registration calls.
var ZeroAddress Address

// ParseAddress validates a hex address ("0x" prefix optional, any case).
// The zero address is accepted; callers that need a real account check IsZero.
func ParseAddress(s string) (Address, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return Address{}, dErrors.New(dErrors.CodeInvalidInput, "address is required")
	}
	if len(trimmed) > maxAddressInput {
		return Address{}, dErrors.New(dErrors.CodeInvalidInput, "address is too long")
	}
	if !common.IsHexAddress(trimmed) {
		return Address{}, dErrors.Newf(dErrors.CodeInvalidInput, "invalid address %q", trimmed)
	}
	return Address(common.HexToAddress(trimmed)), nil
}

// MustParseAddress panics on invalid input. Intended for tests and constants.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// AddressFromCommon converts a go-ethereum address.
func AddressFromCommon(a common.Address) Address {
	return Address(a)
}

// Common returns the go-ethereum representation.
func (a Address) Common() common.Address {
	return common.Address(a)
}

// Bytes returns a copy of the raw 20 bytes.
func (a Address) Bytes() []byte {
	b := make([]byte, AddressLength)
	copy(b, a[:])
	return b
}

// IsZero reports whether a is the null address.
func (a Address) IsZero() bool {
	return a == ZeroAddress
}

// Hex returns the EIP-55 checksummed form.
func (a Address) Hex() string {
	return common.Address(a).Hex()
}

func (a Address) String() string {
	return a.Hex()
}

// Key returns the lowercase hex form used for storage and cache keys.
func (a Address) Key() string {
	return strings.ToLower(a.Hex())
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.Hex()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAddresses parses an ordered list, preserving order.
func ParseAddresses(values []string) ([]Address, error) {
	out := make([]Address, 0, len(values))
	for _, v := range values {
		a, err := ParseAddress(v)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}
