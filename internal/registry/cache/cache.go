// Package cache puts a Redis read-through cache in front of the registration store.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"idregistry/internal/registry/metrics"
	"idregistry/internal/registry/models"
	"idregistry/internal/registry/store"
	id "idregistry/pkg/domain"
)

const keyPrefix = "idregistry:reg:"

// DefaultTTL bounds how long a cached record may be served.
const DefaultTTL = 5 * time.Minute

type cachedRecord struct {
	UniqueUserID id.Address `json:"unique_user_id"`
	RegisterTime int64      `json:"register_time"`
	AddressVoid  bool       `json:"address_void"`
}

// Registrations decorates a store.Registrations with Redis. Redis failures
// are logged and counted, and the call falls through to the backing store.
//
// Readers only fill empty keys (SET NX) and writers overwrite after commit,
// so a read that loaded a record before a registration committed cannot put
// the old record back over the new one.
type Registrations struct {
	next    store.Registrations
	client  redis.Cmdable
	ttl     time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures the cache.
type Option func(*Registrations)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(r *Registrations) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithLogger sets the logger used for degraded-mode warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registrations) {
		r.logger = logger
	}
}

// WithMetrics enables hit/miss/error counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registrations) {
		r.metrics = m
	}
}

// New wraps next with a Redis cache.
func New(next store.Registrations, client redis.Cmdable, opts ...Option) *Registrations {
	r := &Registrations{
		next:   next,
		client: client,
		ttl:    DefaultTTL,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

func (r *Registrations) FindByAddress(ctx context.Context, addr id.Address) (*models.Registration, error) {
	if record, ok := r.get(ctx, addr); ok {
		return record, nil
	}
	record, err := r.next.FindByAddress(ctx, addr)
	if err != nil {
		return nil, err
	}
	r.fill(ctx, *record)
	return record, nil
}

// FindMany always reads through. It runs on the write path, where stale
// records must never be used for planning.
func (r *Registrations) FindMany(ctx context.Context, addrs []id.Address) (map[id.Address]models.Registration, error) {
	return r.next.FindMany(ctx, addrs)
}

// Apply delegates to the backing store and, once the registration has
// committed, overwrites every written record in the cache. If that fails the
// keys are dropped instead.
func (r *Registrations) Apply(ctx context.Context, addrs []id.Address, registerTime time.Time, hook store.Hook) (*models.RegistrationPlan, error) {
	plan, err := r.next.Apply(ctx, addrs, registerTime, hook)
	if err != nil {
		return nil, err
	}
	if err := r.overwrite(ctx, plan.Writes); err != nil {
		r.degraded(ctx, "set", err)
		r.invalidate(ctx, addrs)
	}
	return plan, nil
}

func (r *Registrations) get(ctx context.Context, addr id.Address) (*models.Registration, bool) {
	raw, err := r.client.Get(ctx, keyPrefix+addr.Key()).Bytes()
	if errors.Is(err, redis.Nil) {
		r.record("miss")
		return nil, false
	}
	if err != nil {
		r.degraded(ctx, "get", err)
		return nil, false
	}
	var c cachedRecord
	if err := json.Unmarshal(raw, &c); err != nil {
		r.degraded(ctx, "decode", err)
		return nil, false
	}
	r.record("hit")
	record := &models.Registration{
		Address:      addr,
		UniqueUserID: c.UniqueUserID,
		AddressVoid:  c.AddressVoid,
	}
	if c.RegisterTime != 0 {
		record.RegisterTime = time.Unix(c.RegisterTime, 0).UTC()
	}
	return record, true
}

// fill caches a record read from the backing store unless the key is already
// set.
func (r *Registrations) fill(ctx context.Context, record models.Registration) {
	raw, err := encode(record)
	if err != nil {
		r.degraded(ctx, "encode", err)
		return
	}
	if err := r.client.SetNX(ctx, keyPrefix+record.Address.Key(), raw, r.ttl).Err(); err != nil {
		r.degraded(ctx, "fill", err)
	}
}

func (r *Registrations) overwrite(ctx context.Context, records []models.Registration) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, record := range records {
			raw, err := encode(record)
			if err != nil {
				return err
			}
			pipe.Set(ctx, keyPrefix+record.Address.Key(), raw, r.ttl)
		}
		return nil
	})
	return err
}

func encode(record models.Registration) ([]byte, error) {
	c := cachedRecord{UniqueUserID: record.UniqueUserID, AddressVoid: record.AddressVoid}
	if !record.RegisterTime.IsZero() {
		c.RegisterTime = record.RegisterTime.Unix()
	}
	return json.Marshal(c)
}

func (r *Registrations) invalidate(ctx context.Context, addrs []id.Address) {
	keys := make([]string, len(addrs))
	for i, a := range addrs {
		keys[i] = keyPrefix + a.Key()
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		r.degraded(ctx, "invalidate", err)
	}
}

func (r *Registrations) degraded(ctx context.Context, op string, err error) {
	r.record("error")
	r.logger.WarnContext(ctx, "registration cache degraded",
		"op", op,
		"error", err,
	)
}

func (r *Registrations) record(result string) {
	if r.metrics != nil {
		r.metrics.RecordCacheLookup(result)
	}
}
