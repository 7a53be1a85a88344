package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"idregistry/internal/registry/models"
	id "idregistry/pkg/domain"
)

// Attestation is one verifier's signature over (context, addresses, timestamp).
type Attestation struct {
	Verifier  id.Address            `json:"verifier"`
	Context   id.AttestationContext `json:"context"`
	Addresses []id.Address          `json:"addresses"`
	Timestamp uint64                `json:"timestamp"`
	V         uint8                 `json:"v"`
	R         hexutil.Bytes         `json:"r"`
	S         hexutil.Bytes         `json:"s"`
}

func newAttestation(verifier id.Address, attCtx id.AttestationContext, addrs []id.Address, ts uint64, sig models.Signature) Attestation {
	return Attestation{
		Verifier:  verifier,
		Context:   attCtx,
		Addresses: addrs,
		Timestamp: ts,
		V:         sig.V,
		R:         append(hexutil.Bytes{}, sig.R[:]...),
		S:         append(hexutil.Bytes{}, sig.S[:]...),
	}
}

// readAttestation reads one attestation from path, or stdin for "-".
func readAttestation(path string, stdin io.Reader) (Attestation, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return Attestation{}, err
		}
		defer f.Close()
		r = f
	}
	var a Attestation
	if err := json.NewDecoder(r).Decode(&a); err != nil {
		return Attestation{}, fmt.Errorf("decode attestation %s: %w", path, err)
	}
	if len(a.R) != 32 || len(a.S) != 32 {
		return Attestation{}, fmt.Errorf("attestation %s: r and s must be 32 bytes", path)
	}
	return a, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
