// Package authz models the authorization capability that gates configuration
// changes. The registry only asks "may this caller do X"; policy lives with
// whoever builds the Capability.
package authz

import (
	"context"
	"slices"

	"idregistry/internal/registry/models"
)

// Permission names a gated operation.
type Permission string

const (
	// PermissionUpdateSettings covers verifier set, registration period and
	// timestamp variance changes.
	PermissionUpdateSettings Permission = "update_settings"
	// PermissionReadAudit covers reading the audit trail.
	PermissionReadAudit Permission = "read_audit"
)

// Capability answers authorization checks. A denial is an AUTH_FAILED error.
type Capability interface {
	Authorize(ctx context.Context, p Permission) error
}

// CapabilityFunc adapts a function to Capability.
type CapabilityFunc func(ctx context.Context, p Permission) error

func (f CapabilityFunc) Authorize(ctx context.Context, p Permission) error {
	return f(ctx, p)
}

// Granted allows everything. Used for startup initialization and tests.
func Granted() Capability {
	return CapabilityFunc(func(context.Context, Permission) error { return nil })
}

// Denied refuses everything.
func Denied() Capability {
	return CapabilityFunc(func(_ context.Context, p Permission) error {
		return denied(p)
	})
}

// Claims grants the permissions listed in a verified admin token.
type Claims struct {
	Subject     string
	Permissions []string
}

func (c Claims) Authorize(_ context.Context, p Permission) error {
	if c.Subject == "" || !slices.Contains(c.Permissions, string(p)) {
		return denied(p)
	}
	return nil
}

func denied(p Permission) error {
	return models.Fail(models.ReasonAuthFailed, "missing permission "+string(p))
}

type capabilityKey struct{}

// WithCapability attaches a capability to ctx. Transport middleware calls it
// after verifying credentials.
func WithCapability(ctx context.Context, c Capability) context.Context {
	return context.WithValue(ctx, capabilityKey{}, c)
}

// FromContext returns the attached capability, or Denied.
func FromContext(ctx context.Context) Capability {
	if c, ok := ctx.Value(capabilityKey{}).(Capability); ok && c != nil {
		return c
	}
	return Denied()
}
