// Command attest is the verifier and operator tool: it signs attestations,
// merges several verifiers' attestations into one registration body and mints
// admin tokens.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
