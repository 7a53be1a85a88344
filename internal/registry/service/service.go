package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"idregistry/internal/audit"
	"idregistry/internal/registry/authz"
	"idregistry/internal/registry/metrics"
	"idregistry/internal/registry/models"
	"idregistry/internal/registry/notifier"
	"idregistry/internal/registry/store"
	"idregistry/pkg/attrs"
	id "idregistry/pkg/domain"
	dErrors "idregistry/pkg/domain-errors"
	"idregistry/pkg/platform/sentinel"
	"idregistry/pkg/requestcontext"
)

type RegistrationStore interface {
	FindByAddress(ctx context.Context, addr id.Address) (*models.Registration, error)
	FindMany(ctx context.Context, addrs []id.Address) (map[id.Address]models.Registration, error)
	Apply(ctx context.Context, addrs []id.Address, registerTime time.Time, hook store.Hook) (*models.RegistrationPlan, error)
}

type SettingsStore interface {
	Load(ctx context.Context) (*models.Settings, error)
	Save(ctx context.Context, s *models.Settings) error
}

type QuorumValidator interface {
	Validate(now time.Time, settings *models.Settings, req *models.RegisterRequest) (*models.QuorumResult, error)
}

// Outbox queues receiver notifications inside the registration commit and
// dispatches them once woken.
type Outbox interface {
	Enqueue(ctx context.Context, n notifier.Notification) (string, error)
	Wake()
}

type AuditPublisher interface {
	Emit(ctx context.Context, base audit.Event) error
}

const tracerName = "idregistry/internal/registry/service"

// Service orchestrates registration, verifier configuration and queries.
//
// Mutating calls (Initialize, the Set* operations and Register) run one at a
// time. Queries read the current settings snapshot without locking.
type Service struct {
	mu       sync.Mutex
	settings atomic.Pointer[models.Settings]

	registrations  RegistrationStore
	settingsStore  SettingsStore
	validator      QuorumValidator
	outbox         Outbox
	auditPublisher AuditPublisher
	logger         *slog.Logger
	metrics        *metrics.Metrics
	tracer         trace.Tracer
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithOutbox sets where receiver notifications are queued. Without one they
// are dropped.
func WithOutbox(o Outbox) Option {
	return func(s *Service) {
		s.outbox = o
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

// New constructs a Service.
func New(registrations RegistrationStore, settings SettingsStore, validator QuorumValidator, opts ...Option) *Service {
	s := &Service{
		registrations: registrations,
		settingsStore: settings,
		validator:     validator,
		logger:        slog.Default(),
		tracer:        otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// storeError reports a store outage as unavailable so clients know to retry.
func storeError(err error, msg string) error {
	if errors.Is(err, sentinel.ErrUnavailable) {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, msg)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

// Restore loads persisted settings. A store with no settings leaves the
// service uninitialized.
func (s *Service) Restore(ctx context.Context) error {
	settings, err := s.settingsStore.Load(ctx)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil
	}
	if err != nil {
		return storeError(err, "failed to load settings")
	}
	s.settings.Store(settings)
	return nil
}

// Initialize sets the first configuration. It succeeds once.
func (s *Service) Initialize(ctx context.Context, p models.InitParams) (*models.Settings, error) {
	ctx, span := s.tracer.Start(ctx, "registry.Initialize")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.settings.Load() != nil {
		return nil, s.fail(span, models.Fail(models.ReasonAlreadyInitialized, "registry is already initialized"))
	}
	settings, err := models.NewSettings(p)
	if err != nil {
		return nil, s.fail(span, err)
	}
	if err := s.settingsStore.Save(ctx, settings); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, s.fail(span, models.Fail(models.ReasonAlreadyInitialized, "registry is already initialized"))
		}
		return nil, s.fail(span, storeError(err, "failed to save settings"))
	}
	s.settings.Store(settings)

	s.logAudit(ctx, audit.ActionSettingsInitialized, "settings",
		"version", settings.Version,
		"verifiers", len(settings.Verifiers),
		"required_verifications", settings.RequiredVerifications,
	)
	return settings.Clone(), nil
}

// Settings returns the current configuration.
func (s *Service) Settings(_ context.Context) (*models.Settings, error) {
	current, err := s.current()
	if err != nil {
		return nil, err
	}
	return current.Clone(), nil
}

// SetVerifiers replaces the trusted verifier set and the quorum threshold.
func (s *Service) SetVerifiers(ctx context.Context, capability authz.Capability, verifiers []id.Address, required int) (*models.Settings, error) {
	return s.updateSettings(ctx, capability, "verifiers", func(current *models.Settings) (*models.Settings, error) {
		return current.WithVerifiers(verifiers, required)
	})
}

// SetRegistrationPeriod changes how long a registration stays verified.
func (s *Service) SetRegistrationPeriod(ctx context.Context, capability authz.Capability, period time.Duration) (*models.Settings, error) {
	return s.updateSettings(ctx, capability, "registration_period", func(current *models.Settings) (*models.Settings, error) {
		return current.WithRegistrationPeriod(period)
	})
}

// SetVerificationTimestampVariance changes the maximum attestation age.
func (s *Service) SetVerificationTimestampVariance(ctx context.Context, capability authz.Capability, variance time.Duration) (*models.Settings, error) {
	return s.updateSettings(ctx, capability, "timestamp_variance", func(current *models.Settings) (*models.Settings, error) {
		return current.WithTimestampVariance(variance)
	})
}

func (s *Service) updateSettings(
	ctx context.Context,
	capability authz.Capability,
	setting string,
	change func(*models.Settings) (*models.Settings, error),
) (*models.Settings, error) {
	ctx, span := s.tracer.Start(ctx, "registry.UpdateSettings", trace.WithAttributes(attribute.String("setting", setting)))
	defer span.End()

	if capability == nil {
		capability = authz.Denied()
	}
	if err := capability.Authorize(ctx, authz.PermissionUpdateSettings); err != nil {
		return nil, s.fail(span, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.current()
	if err != nil {
		return nil, s.fail(span, err)
	}
	next, err := change(current)
	if err != nil {
		return nil, s.fail(span, err)
	}
	if err := s.settingsStore.Save(ctx, next); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, s.fail(span, dErrors.New(dErrors.CodeConflict, "settings were changed concurrently"))
		}
		return nil, s.fail(span, storeError(err, "failed to save settings"))
	}
	s.settings.Store(next)

	if s.metrics != nil {
		s.metrics.RecordSettingsUpdate(setting)
	}
	s.logAudit(ctx, audit.ActionSettingsUpdated, "settings",
		"setting", setting,
		"version", next.Version,
	)
	return next.Clone(), nil
}

func (s *Service) current() (*models.Settings, error) {
	current := s.settings.Load()
	if current == nil {
		return nil, models.Fail(models.ReasonNotInitialized, "registry is not initialized")
	}
	return current, nil
}

// fail records err on the span and returns it unchanged.
func (s *Service) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if reason := dErrors.ReasonOf(err); reason != "" {
		span.SetAttributes(attribute.String("reason", reason))
	}
	return err
}

// logAudit writes an audit log line and forwards the event to the publisher.
// Attributes are slog key/value pairs; "detail" is lifted into the event.
func (s *Service) logAudit(ctx context.Context, action audit.Action, subject string, attributes ...any) {
	requestID := requestcontext.RequestID(ctx)
	actor := requestcontext.Actor(ctx)
	if actor == "" {
		if caller := requestcontext.Caller(ctx); !caller.IsZero() {
			actor = caller.Hex()
		}
	}
	args := append(attributes,
		"subject", subject,
		"actor", actor,
		"request_id", requestID,
		"event", string(action),
		"log_type", "audit",
	)
	s.logger.InfoContext(ctx, string(action), args...)

	if s.auditPublisher == nil {
		return
	}
	event := audit.Event{
		Timestamp: requestcontext.Now(ctx),
		Action:    action,
		Subject:   subject,
		Actor:     actor,
		RequestID: requestID,
		Detail:    attrs.String(attributes, "detail"),
	}
	if err := s.auditPublisher.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to publish audit event",
			"event", string(action),
			"error", err,
		)
	}
}
