// Package signature hashes attestation messages and recovers the verifier
// that signed them.
//
// The message layout matches Solidity's
// abi.encodePacked(bytes32 context, address[] addrs, uint256 timestamp):
// the context, then every address left-padded to 32 bytes, then the timestamp
// as a big-endian 256-bit integer. Signatures sign that digest directly with
// no personal-message prefix.
package signature

import (
	"crypto/ecdsa"
	"encoding/binary"
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/sha3"

	"idregistry/internal/registry/models"
	id "idregistry/pkg/domain"
)

const (
	wordLength = 32
	// recoveryOffset is added to the recovery id in published signatures.
	recoveryOffset = 27
)

// Hash is a keccak256 digest.
type Hash [32]byte

// MessageHash returns the digest verifiers sign for a registration.
func MessageHash(ctx id.AttestationContext, addrs []id.Address, timestamp uint64) Hash {
	h := sha3.NewLegacyKeccak256()
	h.Write(ctx[:])

	var word [wordLength]byte
	for _, a := range addrs {
		clear(word[:])
		copy(word[wordLength-id.AddressLength:], a[:])
		h.Write(word[:])
	}

	clear(word[:])
	binary.BigEndian.PutUint64(word[wordLength-8:], timestamp)
	h.Write(word[:])

	var out Hash
	h.Sum(out[:0])
	return out
}

// submissionTag separates submission digests from attestation digests.
var submissionTag = crypto.Keccak256Hash([]byte("idregistry.submission"))

// SubmissionHash returns the digest the submitter signs to prove control of
// addrs[0]. It binds the whole request: every address, every attestation
// timestamp, the receiver and the payload.
func SubmissionHash(ctx id.AttestationContext, addrs []id.Address, timestamps []uint64, receiver id.Address, payload []byte) Hash {
	h := sha3.NewLegacyKeccak256()
	h.Write(submissionTag[:])
	h.Write(ctx[:])

	var word [wordLength]byte
	for _, a := range addrs {
		clear(word[:])
		copy(word[wordLength-id.AddressLength:], a[:])
		h.Write(word[:])
	}
	for _, ts := range timestamps {
		clear(word[:])
		binary.BigEndian.PutUint64(word[wordLength-8:], ts)
		h.Write(word[:])
	}
	clear(word[:])
	copy(word[wordLength-id.AddressLength:], receiver[:])
	h.Write(word[:])
	h.Write(crypto.Keccak256(payload))

	var out Hash
	h.Sum(out[:0])
	return out
}

// Submit signs the submission digest for a registration request.
func Submit(ctx id.AttestationContext, req *models.RegisterRequest, key *ecdsa.PrivateKey) (models.Signature, error) {
	return Sign(SubmissionHash(ctx, req.Addresses, req.Timestamps, req.Receiver, req.Payload), key)
}

// Recover returns the address whose key produced sig over hash.
// V must be 27 or 28 and S must lie in the lower half of the curve order.
func Recover(hash Hash, sig models.Signature) (id.Address, error) {
	if sig.V != recoveryOffset && sig.V != recoveryOffset+1 {
		return id.Address{}, models.Fail(models.ReasonInvalidSignature, "recovery id must be 27 or 28")
	}
	v := sig.V - recoveryOffset
	r := new(big.Int).SetBytes(sig.R[:])
	s := new(big.Int).SetBytes(sig.S[:])
	if !crypto.ValidateSignatureValues(v, r, s, true) {
		return id.Address{}, models.Fail(models.ReasonInvalidSignature, "signature values out of range")
	}

	raw := make([]byte, crypto.SignatureLength)
	copy(raw[0:32], sig.R[:])
	copy(raw[32:64], sig.S[:])
	raw[64] = v

	pub, err := crypto.SigToPub(hash[:], raw)
	if err != nil {
		return id.Address{}, models.Fail(models.ReasonInvalidSignature, "public key recovery failed")
	}
	return id.AddressFromCommon(crypto.PubkeyToAddress(*pub)), nil
}

// Sign signs hash with key and returns the published {V,R,S} form.
func Sign(hash Hash, key *ecdsa.PrivateKey) (models.Signature, error) {
	raw, err := crypto.Sign(hash[:], key)
	if err != nil {
		return models.Signature{}, err
	}
	var sig models.Signature
	copy(sig.R[:], raw[0:32])
	copy(sig.S[:], raw[32:64])
	sig.V = raw[64] + recoveryOffset
	return sig, nil
}

// Attest hashes the message and signs it in one step.
func Attest(ctx id.AttestationContext, addrs []id.Address, timestamp uint64, key *ecdsa.PrivateKey) (models.Signature, error) {
	return Sign(MessageHash(ctx, addrs, timestamp), key)
}

// AddressOf returns the address controlled by key.
func AddressOf(key *ecdsa.PrivateKey) id.Address {
	return id.AddressFromCommon(crypto.PubkeyToAddress(key.PublicKey))
}

// ParseKey decodes a hex private key, with or without 0x prefix.
func ParseKey(hexKey string) (*ecdsa.PrivateKey, error) {
	if len(hexKey) >= 2 && (hexKey[:2] == "0x" || hexKey[:2] == "0X") {
		hexKey = hexKey[2:]
	}
	return crypto.HexToECDSA(hexKey)
}
