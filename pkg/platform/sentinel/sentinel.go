// Package sentinel holds the infrastructure errors registry stores return.
// Services translate them into domain errors; request validation failures use
// pkg/domain-errors directly.
package sentinel

import "errors"

var (
	// ErrNotFound means the address has no record, or no settings were saved.
	ErrNotFound = errors.New("not found")
	// ErrConflict means a settings save lost a version race.
	ErrConflict = errors.New("conflict")
	// ErrUnavailable wraps connection-level failures of a backing store.
	ErrUnavailable = errors.New("unavailable")
)
