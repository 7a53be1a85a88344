package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"idregistry/internal/audit"
	"idregistry/internal/registry/models"
	"idregistry/internal/registry/notifier"
	"idregistry/internal/registry/signature"
	id "idregistry/pkg/domain"
	dErrors "idregistry/pkg/domain-errors"
	"idregistry/pkg/requestcontext"
)

// errNotification marks an outbox failure so it is not re-wrapped as a store error.
type errNotification struct{ err error }

func (e errNotification) Error() string { return e.err.Error() }
func (e errNotification) Unwrap() error { return e.err }

// Register validates an attestation bundle and applies it.
//
// Order: the caller signature must recover to the first listed address, then
// the quorum check runs against the current settings, then the store plans and
// commits the record changes. A non-zero receiver gets an outbox entry written
// in the same commit. The entry is dispatched after the commit, so a
// registration is never undone by the receiver.
func (s *Service) Register(ctx context.Context, req *models.RegisterRequest) (*models.RegisterResult, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "registry.Register", trace.WithAttributes(
		attribute.Int("addresses", len(req.Addresses)),
		attribute.Int("attestations", len(req.Timestamps)),
	))
	defer span.End()

	result, err := s.register(ctx, req)
	if s.metrics != nil {
		s.metrics.ObserveRegistration(start)
	}
	if err != nil {
		s.recordOutcome(err)
		s.logger.InfoContext(ctx, "registration rejected",
			"first_address", firstAddress(req).Hex(),
			"reason", dErrors.ReasonOf(err),
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, s.fail(span, err)
	}
	s.recordOutcome(nil)
	span.SetAttributes(attribute.String("unique_user_id", result.Plan.UniqueUserID.Hex()))
	return result, nil
}

func (s *Service) register(ctx context.Context, req *models.RegisterRequest) (*models.RegisterResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings, err := s.current()
	if err != nil {
		return nil, err
	}
	caller, err := authenticateCaller(settings, req)
	if err != nil {
		return nil, err
	}
	ctx = requestcontext.WithCaller(ctx, caller)

	quorum, err := s.validator.Validate(requestcontext.Now(ctx), settings, req)
	if err != nil {
		return nil, err
	}
	s.recordSkipped(quorum)

	registerTime := time.Unix(int64(quorum.Earliest), 0).UTC()
	var eventID string
	hook := func(ctx context.Context, plan *models.RegistrationPlan) error {
		if req.Receiver.IsZero() || s.outbox == nil {
			return nil
		}
		queued, err := s.outbox.Enqueue(ctx, notifier.Notification{
			Receiver:     req.Receiver,
			Caller:       caller,
			UniqueUserID: plan.UniqueUserID,
			Payload:      req.Payload,
			RegisteredAt: registerTime,
		})
		if err != nil {
			return errNotification{err: err}
		}
		eventID = queued
		return nil
	}

	plan, err := s.registrations.Apply(ctx, req.Addresses, registerTime, hook)
	if err != nil {
		var notifyErr errNotification
		switch {
		case errors.As(err, &notifyErr):
			return nil, dErrors.Wrap(notifyErr.err, dErrors.CodeUnavailable, "failed to queue receiver notification")
		case dErrors.ReasonOf(err) != "":
			return nil, err
		default:
			return nil, storeError(err, "failed to apply registration")
		}
	}
	if eventID != "" {
		s.outbox.Wake()
	}

	s.afterRegister(ctx, req, plan, eventID)
	return &models.RegisterResult{
		Caller:         caller,
		Plan:           plan,
		Quorum:         quorum,
		Receiver:       req.Receiver,
		NotificationID: eventID,
	}, nil
}

// authenticateCaller recovers the submitter from the caller signature and
// requires it to be the first listed address.
func authenticateCaller(settings *models.Settings, req *models.RegisterRequest) (id.Address, error) {
	if len(req.Addresses) == 0 {
		return id.Address{}, models.Fail(models.ReasonSenderNotInVerification, "caller must be the first listed address")
	}
	hash := signature.SubmissionHash(settings.Context, req.Addresses, req.Timestamps, req.Receiver, req.Payload)
	caller, err := signature.Recover(hash, req.CallerSignature)
	if err != nil {
		return id.Address{}, err
	}
	if caller != req.Addresses[0] {
		return id.Address{}, models.Fail(models.ReasonSenderNotInVerification, "caller signature does not belong to the first listed address")
	}
	return caller, nil
}

func firstAddress(req *models.RegisterRequest) id.Address {
	if len(req.Addresses) == 0 {
		return id.Address{}
	}
	return req.Addresses[0]
}

func (s *Service) afterRegister(ctx context.Context, req *models.RegisterRequest, plan *models.RegistrationPlan, eventID string) {
	if s.metrics != nil {
		s.metrics.AddVoided(len(plan.Voided))
	}
	for _, voided := range plan.Voided {
		s.logAudit(ctx, audit.ActionAddressVoided, voided.Hex(),
			"detail", "superseded by "+plan.Subject.Hex(),
		)
	}
	s.logAudit(ctx, audit.ActionRegistrationAccepted, plan.Subject.Hex(),
		"unique_user_id", plan.UniqueUserID.Hex(),
		"voided", len(plan.Voided),
		"detail", plan.UniqueUserID.Hex(),
	)
	if eventID != "" {
		s.logAudit(ctx, audit.ActionNotificationQueued, plan.Subject.Hex(),
			"receiver", req.Receiver.Hex(),
			"unique_user_id", plan.UniqueUserID.Hex(),
			"event_id", eventID,
			"detail", req.Receiver.Hex(),
		)
	}
}

func (s *Service) recordOutcome(err error) {
	if s.metrics == nil {
		return
	}
	if err == nil {
		s.metrics.RecordRegistration("accepted")
		return
	}
	reason := dErrors.ReasonOf(err)
	if reason == "" {
		reason = string(dErrors.CodeOf(err))
	}
	s.metrics.RecordRegistration(reason)
}

func (s *Service) recordSkipped(result *models.QuorumResult) {
	if s.metrics == nil {
		return
	}
	for _, skip := range result.Skipped {
		s.metrics.RecordSkippedAttestation(string(skip.Cause))
	}
}
