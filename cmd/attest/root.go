package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "attest",
		Short:         "Sign and assemble identity registry attestations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newSignCmd(), newMergeCmd(), newAdminTokenCmd())
	return root
}
