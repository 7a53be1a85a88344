package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"idregistry/internal/platform/admintoken"
	"idregistry/internal/registry/authz"
)

func newAdminTokenCmd() *cobra.Command {
	var (
		signingKey  string
		issuer      string
		audience    string
		subject     string
		permissions []string
		ttl         time.Duration
	)
	cmd := &cobra.Command{
		Use:   "admin-token",
		Short: "Mint an operator token for the admin endpoints",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if signingKey == "" {
				signingKey = os.Getenv("ADMIN_JWT_SIGNING_KEY")
			}
			if signingKey == "" {
				return errors.New("a signing key is required (--signing-key or ADMIN_JWT_SIGNING_KEY)")
			}
			if subject == "" {
				return errors.New("--subject is required")
			}
			token, err := admintoken.NewService(signingKey, issuer, audience).Generate(subject, permissions, ttl)
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&signingKey, "signing-key", "", "HMAC key shared with the server (defaults to $ADMIN_JWT_SIGNING_KEY)")
	cmd.Flags().StringVar(&issuer, "issuer", "idregistry", "token issuer")
	cmd.Flags().StringVar(&audience, "audience", "idregistry-admin", "token audience")
	cmd.Flags().StringVar(&subject, "subject", "", "operator identity recorded in audit events")
	cmd.Flags().StringSliceVar(&permissions, "permission", []string{string(authz.PermissionUpdateSettings)}, "granted permission, repeatable")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}
