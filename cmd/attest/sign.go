package main

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"idregistry/internal/registry/signature"
	id "idregistry/pkg/domain"
)

func newSignCmd() *cobra.Command {
	var (
		keyHex      string
		contextName string
		addresses   []string
		timestamp   uint64
	)
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Sign an attestation for an ordered address list",
		Long: `Sign (context, addresses, timestamp) with a verifier key.

The first address must be the one that will submit the registration. List
older addresses of the same person after it, newest first.

Examples:
  VERIFIER_KEY=0x... attest sign --address 0xNEW --address 0xOLD
  attest sign --key 0x... --context 1hive --timestamp 1600000000 --address 0xA`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if keyHex == "" {
				keyHex = os.Getenv("VERIFIER_KEY")
			}
			if keyHex == "" {
				return errors.New("a verifier key is required (--key or VERIFIER_KEY)")
			}
			key, err := signature.ParseKey(keyHex)
			if err != nil {
				return err
			}
			attCtx, err := parseContext(contextName)
			if err != nil {
				return err
			}
			addrs, err := id.ParseAddresses(addresses)
			if err != nil {
				return err
			}
			if len(addrs) == 0 {
				return errors.New("at least one --address is required")
			}
			if timestamp == 0 {
				timestamp = uint64(time.Now().Unix())
			}

			sig, err := signature.Attest(attCtx, addrs, timestamp, key)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), newAttestation(signature.AddressOf(key), attCtx, addrs, timestamp, sig))
		},
	}
	cmd.Flags().StringVar(&keyHex, "key", "", "verifier private key, hex (defaults to $VERIFIER_KEY)")
	cmd.Flags().StringVar(&contextName, "context", "1hive", "attestation context name or 0x-prefixed 32-byte hex")
	cmd.Flags().StringSliceVar(&addresses, "address", nil, "address to attest, repeat in order")
	cmd.Flags().Uint64Var(&timestamp, "timestamp", 0, "unix timestamp to sign (defaults to now)")
	return cmd
}

func parseContext(s string) (id.AttestationContext, error) {
	if strings.HasPrefix(s, "0x") {
		return id.ParseContext(s)
	}
	return id.ContextFromString(s)
}
