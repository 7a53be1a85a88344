package main

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"idregistry/internal/registry/handler"
	"idregistry/internal/registry/models"
	"idregistry/internal/registry/signature"
	id "idregistry/pkg/domain"
)

func newMergeCmd() *cobra.Command {
	var (
		keyHex   string
		receiver string
		payload  string
	)
	cmd := &cobra.Command{
		Use:   "merge FILE...",
		Short: "Combine verifier attestations into a registration request body",
		Long: `Merge attestations produced by "attest sign" into the JSON body of
POST /v1/registrations. Every attestation must cover the same context and
address list. Use "-" to read one attestation from stdin.

The body is signed with the key of the first listed address, which proves
the submitter controls it. Receiver and payload are covered by that
signature, so set them here rather than editing the output.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			atts := make([]Attestation, 0, len(args))
			for _, path := range args {
				a, err := readAttestation(path, cmd.InOrStdin())
				if err != nil {
					return err
				}
				atts = append(atts, a)
			}
			if keyHex == "" {
				keyHex = os.Getenv("SUBMITTER_KEY")
			}
			if keyHex == "" {
				return errors.New("the first address's key is required (--key or SUBMITTER_KEY)")
			}
			key, err := signature.ParseKey(keyHex)
			if err != nil {
				return err
			}

			body, err := merge(atts)
			if err != nil {
				return err
			}
			var receiverAddr id.Address
			if receiver != "" {
				if receiverAddr, err = id.ParseAddress(receiver); err != nil {
					return err
				}
				body.Receiver = receiverAddr.Hex()
			}
			var payloadBytes []byte
			if payload != "" {
				if payloadBytes, err = hexutil.Decode(payload); err != nil {
					return fmt.Errorf("--payload: %w", err)
				}
				body.Payload = payload
			}
			if err := submit(body, atts[0], receiverAddr, payloadBytes, key); err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), body)
		},
	}
	cmd.Flags().StringVar(&keyHex, "key", "", "private key of the first listed address, hex (defaults to $SUBMITTER_KEY)")
	cmd.Flags().StringVar(&receiver, "receiver", "", "address notified after a successful registration")
	cmd.Flags().StringVar(&payload, "payload", "", "0x-hex payload forwarded to the receiver")
	return cmd
}

func merge(atts []Attestation) (*handler.RegisterRequest, error) {
	first := atts[0]
	body := &handler.RegisterRequest{Addresses: make([]string, len(first.Addresses))}
	for i, a := range first.Addresses {
		body.Addresses[i] = a.Hex()
	}

	seen := make(map[id.Address]bool, len(atts))
	for i, a := range atts {
		if a.Context != first.Context {
			return nil, fmt.Errorf("attestation %d uses context %s, want %s", i, a.Context, first.Context)
		}
		if !slices.Equal(a.Addresses, first.Addresses) {
			return nil, fmt.Errorf("attestation %d covers a different address list", i)
		}
		if seen[a.Verifier] {
			return nil, fmt.Errorf("attestation %d repeats verifier %s", i, a.Verifier)
		}
		seen[a.Verifier] = true

		body.Timestamps = append(body.Timestamps, a.Timestamp)
		body.V = append(body.V, int(a.V))
		body.R = append(body.R, a.R.String())
		body.S = append(body.S, a.S.String())
	}
	return body, nil
}

// submit adds the caller signature. key must control the first address.
func submit(body *handler.RegisterRequest, first Attestation, receiver id.Address, payload []byte, key *ecdsa.PrivateKey) error {
	if signer := signature.AddressOf(key); signer != first.Addresses[0] {
		return fmt.Errorf("key controls %s, but the first listed address is %s", signer, first.Addresses[0])
	}
	req := &models.RegisterRequest{
		Addresses:  first.Addresses,
		Timestamps: body.Timestamps,
		Receiver:   receiver,
		Payload:    payload,
	}
	sig, err := signature.Submit(first.Context, req, key)
	if err != nil {
		return err
	}
	body.CallerSignature = &handler.SignatureBody{
		V: int(sig.V),
		R: hexutil.Encode(sig.R[:]),
		S: hexutil.Encode(sig.S[:]),
	}
	return nil
}
