// Package handler exposes the registry over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"idregistry/internal/audit"
	"idregistry/internal/registry/authz"
	"idregistry/internal/registry/models"
	id "idregistry/pkg/domain"
	dErrors "idregistry/pkg/domain-errors"
	"idregistry/pkg/platform/httputil"
	"idregistry/pkg/requestcontext"
)

// Service defines the registry operations the handler serves.
type Service interface {
	Register(ctx context.Context, req *models.RegisterRequest) (*models.RegisterResult, error)
	IsVerified(ctx context.Context, addr id.Address) (bool, error)
	UniqueUserID(ctx context.Context, addr id.Address) (id.Address, error)
	HasUniqueUserID(ctx context.Context, addr id.Address) (bool, error)
	UserRegistration(ctx context.Context, addr id.Address) (*models.Registration, error)
	Settings(ctx context.Context) (*models.Settings, error)
	SetVerifiers(ctx context.Context, capability authz.Capability, verifiers []id.Address, required int) (*models.Settings, error)
	SetRegistrationPeriod(ctx context.Context, capability authz.Capability, period time.Duration) (*models.Settings, error)
	SetVerificationTimestampVariance(ctx context.Context, capability authz.Capability, variance time.Duration) (*models.Settings, error)
}

// AuditReader lists the audit trail of a subject.
type AuditReader interface {
	List(ctx context.Context, subject string) ([]audit.Event, error)
}

// Handler wires registry endpoints to the registry service.
type Handler struct {
	service Service
	audit   AuditReader
	logger  *slog.Logger
}

// New constructs a registry handler. auditReader may be nil, in which case
// the audit endpoint is not mounted.
func New(service Service, auditReader AuditReader, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		audit:   auditReader,
		logger:  logger,
	}
}

// Register mounts the public endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/registrations", h.HandleRegister)
	r.Get("/v1/addresses/{address}", h.HandleUserRegistration)
	r.Get("/v1/addresses/{address}/verified", h.HandleIsVerified)
	r.Get("/v1/addresses/{address}/unique-id", h.HandleUniqueUserID)
	r.Get("/v1/addresses/{address}/has-unique-id", h.HandleHasUniqueUserID)
	r.Get("/v1/settings", h.HandleSettings)
}

// RegisterAdmin mounts the settings mutation endpoints. The router must
// already authenticate operators.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Put("/v1/admin/verifiers", h.HandleSetVerifiers)
	r.Put("/v1/admin/registration-period", h.HandleSetRegistrationPeriod)
	r.Put("/v1/admin/timestamp-variance", h.HandleSetTimestampVariance)
	if h.audit != nil {
		r.Get("/v1/admin/audit/{subject}", h.HandleAudit)
	}
}

// HandleRegister handles POST /v1/registrations.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[RegisterRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	result, err := h.service.Register(ctx, req.Domain())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "registration accepted",
		"request_id", requestID,
		"caller", result.Caller.Hex(),
		"unique_user_id", result.Plan.UniqueUserID.Hex(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusCreated, FromRegisterResult(result))
}

// HandleUserRegistration handles GET /v1/addresses/{address}.
func (h *Handler) HandleUserRegistration(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressParam(w, r)
	if !ok {
		return
	}
	record, err := h.service.UserRegistration(r.Context(), addr)
	if err != nil {
		h.writeQueryError(r.Context(), w, "user registration", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromRegistration(addr, record))
}

// HandleIsVerified handles GET /v1/addresses/{address}/verified.
func (h *Handler) HandleIsVerified(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressParam(w, r)
	if !ok {
		return
	}
	verified, err := h.service.IsVerified(r.Context(), addr)
	if err != nil {
		h.writeQueryError(r.Context(), w, "is verified", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, &VerifiedResponse{Address: addr, Verified: verified})
}

// HandleUniqueUserID handles GET /v1/addresses/{address}/unique-id.
func (h *Handler) HandleUniqueUserID(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressParam(w, r)
	if !ok {
		return
	}
	uid, err := h.service.UniqueUserID(r.Context(), addr)
	if err != nil {
		h.writeQueryError(r.Context(), w, "unique user id", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, &UniqueIDResponse{Address: addr, UniqueUserID: uid})
}

// HandleHasUniqueUserID handles GET /v1/addresses/{address}/has-unique-id.
func (h *Handler) HandleHasUniqueUserID(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressParam(w, r)
	if !ok {
		return
	}
	has, err := h.service.HasUniqueUserID(r.Context(), addr)
	if err != nil {
		h.writeQueryError(r.Context(), w, "has unique user id", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, &HasUniqueIDResponse{Address: addr, HasUniqueUserID: has})
}

// HandleSettings handles GET /v1/settings.
func (h *Handler) HandleSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.service.Settings(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromSettings(settings))
}

// HandleSetVerifiers handles PUT /v1/admin/verifiers.
func (h *Handler) HandleSetVerifiers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[SetVerifiersRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	settings, err := h.service.SetVerifiers(ctx, authz.FromContext(ctx), req.verifiers, req.RequiredVerifications)
	h.writeSettingsUpdate(ctx, w, "verifiers", settings, err)
}

// HandleSetRegistrationPeriod handles PUT /v1/admin/registration-period.
func (h *Handler) HandleSetRegistrationPeriod(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[DurationRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	settings, err := h.service.SetRegistrationPeriod(ctx, authz.FromContext(ctx), req.Duration())
	h.writeSettingsUpdate(ctx, w, "registration_period", settings, err)
}

// HandleSetTimestampVariance handles PUT /v1/admin/timestamp-variance.
func (h *Handler) HandleSetTimestampVariance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[DurationRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	settings, err := h.service.SetVerificationTimestampVariance(ctx, authz.FromContext(ctx), req.Duration())
	h.writeSettingsUpdate(ctx, w, "timestamp_variance", settings, err)
}

// HandleAudit handles GET /v1/admin/audit/{subject}. Address subjects are
// normalized so any hex casing finds the same trail.
func (h *Handler) HandleAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := authz.FromContext(ctx).Authorize(ctx, authz.PermissionReadAudit); err != nil {
		httputil.WriteError(w, err)
		return
	}
	subject := chi.URLParam(r, "subject")
	if addr, err := id.ParseAddress(subject); err == nil {
		subject = addr.Hex()
	}
	events, err := h.audit.List(ctx, subject)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list audit events",
			"subject", subject,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list audit events"))
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	httputil.WriteJSON(w, http.StatusOK, &AuditResponse{Subject: subject, Events: events})
}

func (h *Handler) writeSettingsUpdate(ctx context.Context, w http.ResponseWriter, field string, settings *models.Settings, err error) {
	if err != nil {
		h.logger.WarnContext(ctx, "settings update rejected",
			"field", field,
			"actor", requestcontext.Actor(ctx),
			"reason", dErrors.ReasonOf(err),
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromSettings(settings))
}

func (h *Handler) writeQueryError(ctx context.Context, w http.ResponseWriter, query string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "registry query failed",
			"query", query,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	httputil.WriteError(w, err)
}

func addressParam(w http.ResponseWriter, r *http.Request) (id.Address, bool) {
	addr, err := id.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.Address{}, false
	}
	return addr, true
}
