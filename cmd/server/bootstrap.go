package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"idregistry/internal/platform/config"
	"idregistry/internal/registry/models"
	"idregistry/internal/registry/service"
	id "idregistry/pkg/domain"
)

// bootstrap restores persisted settings, or initializes the registry from
// configuration when nothing is persisted yet.
func bootstrap(ctx context.Context, svc *service.Service, cfg config.RegistryConfig, log *slog.Logger) error {
	if err := svc.Restore(ctx); err != nil {
		return fmt.Errorf("restore settings: %w", err)
	}
	if current, err := svc.Settings(ctx); err == nil {
		log.Info("registry settings restored", "version", current.Version, "verifiers", len(current.Verifiers))
		return nil
	}
	if len(cfg.Verifiers) == 0 {
		log.Warn("registry is not initialized and REGISTRY_VERIFIERS is empty; registrations are rejected until settings exist")
		return nil
	}

	params, err := initParams(cfg)
	if err != nil {
		return err
	}
	settings, err := svc.Initialize(ctx, params)
	if models.HasReason(err, models.ReasonAlreadyInitialized) {
		// Another replica initialized first.
		return svc.Restore(ctx)
	}
	if err != nil {
		return fmt.Errorf("initialize registry: %w", err)
	}
	log.Info("registry initialized",
		"context", settings.Context.String(),
		"verifiers", len(settings.Verifiers),
		"required_verifications", settings.RequiredVerifications,
	)
	return nil
}

func initParams(cfg config.RegistryConfig) (models.InitParams, error) {
	var (
		attCtx id.AttestationContext
		err    error
	)
	if strings.HasPrefix(cfg.Context, "0x") {
		attCtx, err = id.ParseContext(cfg.Context)
	} else {
		attCtx, err = id.ContextFromString(cfg.Context)
	}
	if err != nil {
		return models.InitParams{}, fmt.Errorf("REGISTRY_CONTEXT: %w", err)
	}
	verifiers, err := id.ParseAddresses(cfg.Verifiers)
	if err != nil {
		return models.InitParams{}, fmt.Errorf("REGISTRY_VERIFIERS: %w", err)
	}
	return models.InitParams{
		Context:               attCtx,
		Verifiers:             verifiers,
		RequiredVerifications: cfg.RequiredVerifications,
		RegistrationPeriod:    cfg.RegistrationPeriod,
		TimestampVariance:     cfg.TimestampVariance,
	}, nil
}
