package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	_ "embed"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"

	"idregistry/internal/registry/models"
	id "idregistry/pkg/domain"
	"idregistry/pkg/platform/sentinel"
	"idregistry/pkg/platform/tx"
)

//go:embed schema.sql
var schema string

// registrationLockKey serializes registrations across processes sharing a database.
const registrationLockKey = 0x1d7e915

// Open connects to Postgres through the pgx database/sql driver.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Migrate creates the registry tables when missing.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate registry schema: %w", err)
	}
	return nil
}

// Postgres persists registrations in PostgreSQL.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed registration store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const selectRegistrations = `
	SELECT address, unique_user_id, register_time, address_void
	FROM registrations
	WHERE address = ANY($1)`

func (s *Postgres) FindByAddress(ctx context.Context, addr id.Address) (*models.Registration, error) {
	records, err := s.query(ctx, tx.QuerierFrom(ctx, s.db), selectRegistrations, []id.Address{addr})
	if err != nil {
		return nil, fmt.Errorf("find registration: %w", unavailable(err))
	}
	record, ok := records[addr]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &record, nil
}

func (s *Postgres) FindMany(ctx context.Context, addrs []id.Address) (map[id.Address]models.Registration, error) {
	records, err := s.query(ctx, tx.QuerierFrom(ctx, s.db), selectRegistrations, addrs)
	if err != nil {
		return nil, fmt.Errorf("find registrations: %w", unavailable(err))
	}
	return records, nil
}

// Apply runs inside one transaction guarded by an advisory lock. The existing
// rows are locked, the plan is computed, the writes are upserted and the hook
// runs with the transaction in its context. Any failure rolls everything back.
func (s *Postgres) Apply(ctx context.Context, addrs []id.Address, registerTime time.Time, hook Hook) (*models.RegistrationPlan, error) {
	var plan *models.RegistrationPlan
	err := tx.Run(ctx, s.db, func(ctx context.Context) error {
		q := tx.QuerierFrom(ctx, s.db)
		if _, err := q.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, registrationLockKey); err != nil {
			return fmt.Errorf("lock registrations: %w", err)
		}
		existing, err := s.query(ctx, q, selectRegistrations+` FOR UPDATE`, addrs)
		if err != nil {
			return fmt.Errorf("load registrations: %w", err)
		}
		plan, err = models.PlanRegistration(addrs, existing, registerTime)
		if err != nil {
			return err
		}
		for _, w := range plan.Writes {
			if err := upsert(ctx, q, w); err != nil {
				return err
			}
		}
		if hook != nil {
			return hook(ctx, plan)
		}
		return nil
	})
	if err != nil {
		return nil, unavailable(err)
	}
	return plan, nil
}

// unavailable marks errors that mean the database could not be reached, so
// callers can tell an outage from a bad row.
func unavailable(err error) error {
	var netErr net.Error
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sentinel.ErrUnavailable):
		return err
	case errors.Is(err, driver.ErrBadConn),
		errors.Is(err, sql.ErrConnDone),
		errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr):
		return fmt.Errorf("%w: %w", sentinel.ErrUnavailable, err)
	}
	return err
}

func upsert(ctx context.Context, q tx.Querier, r models.Registration) error {
	var registerTime sql.NullTime
	if !r.RegisterTime.IsZero() {
		registerTime = sql.NullTime{Time: r.RegisterTime.UTC(), Valid: true}
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO registrations (address, unique_user_id, register_time, address_void, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (address) DO UPDATE SET
			unique_user_id = EXCLUDED.unique_user_id,
			register_time = EXCLUDED.register_time,
			address_void = registrations.address_void OR EXCLUDED.address_void,
			updated_at = now()`,
		r.Address.Key(), r.UniqueUserID.Key(), registerTime, r.AddressVoid)
	if err != nil {
		return fmt.Errorf("upsert registration %s: %w", r.Address, err)
	}
	return nil
}

func (s *Postgres) query(ctx context.Context, q tx.Querier, query string, addrs []id.Address) (map[id.Address]models.Registration, error) {
	keys := make([]string, len(addrs))
	for i, a := range addrs {
		keys[i] = a.Key()
	}
	rows, err := q.QueryContext(ctx, query, pq.Array(keys))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[id.Address]models.Registration, len(addrs))
	for rows.Next() {
		var (
			address, uniqueUserID string
			registerTime          sql.NullTime
			void                  bool
		)
		if err := rows.Scan(&address, &uniqueUserID, &registerTime, &void); err != nil {
			return nil, err
		}
		record, err := toRegistration(address, uniqueUserID, registerTime, void)
		if err != nil {
			return nil, err
		}
		out[record.Address] = record
	}
	return out, rows.Err()
}

func toRegistration(address, uniqueUserID string, registerTime sql.NullTime, void bool) (models.Registration, error) {
	addr, err := id.ParseAddress(address)
	if err != nil {
		return models.Registration{}, fmt.Errorf("stored address %q: %w", address, err)
	}
	uid, err := id.ParseAddress(uniqueUserID)
	if err != nil {
		return models.Registration{}, fmt.Errorf("stored unique user id %q: %w", uniqueUserID, err)
	}
	record := models.Registration{Address: addr, UniqueUserID: uid, AddressVoid: void}
	if registerTime.Valid {
		record.RegisterTime = registerTime.Time
	}
	return record, nil
}

// PostgresSettings persists the verifier configuration as a single row.
type PostgresSettings struct {
	db *sql.DB
}

// NewPostgresSettings constructs a PostgreSQL-backed settings store.
func NewPostgresSettings(db *sql.DB) *PostgresSettings {
	return &PostgresSettings{db: db}
}

func (s *PostgresSettings) Load(ctx context.Context) (*models.Settings, error) {
	var (
		version             int64
		ctxHex              string
		verifiers           string
		required            int
		periodSec, variance int64
	)
	err := tx.QuerierFrom(ctx, s.db).QueryRowContext(ctx, `
		SELECT version, context, array_to_string(verifiers, ','), required_verifications,
		       registration_period_seconds, timestamp_variance_seconds
		FROM registry_settings WHERE id = 1`).
		Scan(&version, &ctxHex, &verifiers, &required, &periodSec, &variance)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", unavailable(err))
	}

	attCtx, err := id.ParseContext(ctxHex)
	if err != nil {
		return nil, fmt.Errorf("stored context: %w", err)
	}
	addrs, err := id.ParseAddresses(strings.Split(verifiers, ","))
	if err != nil {
		return nil, fmt.Errorf("stored verifiers: %w", err)
	}
	return &models.Settings{
		Version:               uint64(version),
		Context:               attCtx,
		Verifiers:             addrs,
		RequiredVerifications: required,
		RegistrationPeriod:    time.Duration(periodSec) * time.Second,
		TimestampVariance:     time.Duration(variance) * time.Second,
	}, nil
}

func (s *PostgresSettings) Save(ctx context.Context, settings *models.Settings) error {
	verifiers := make([]string, len(settings.Verifiers))
	for i, v := range settings.Verifiers {
		verifiers[i] = v.Key()
	}
	args := []any{
		int64(settings.Version),
		settings.Context.Hex(),
		pq.Array(verifiers),
		settings.RequiredVerifications,
		int64(settings.RegistrationPeriod / time.Second),
		int64(settings.TimestampVariance / time.Second),
	}

	q := tx.QuerierFrom(ctx, s.db)
	var (
		res sql.Result
		err error
	)
	if settings.Version == 1 {
		res, err = q.ExecContext(ctx, `
			INSERT INTO registry_settings (id, version, context, verifiers, required_verifications,
			                               registration_period_seconds, timestamp_variance_seconds)
			VALUES (1, $1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO NOTHING`, args...)
	} else {
		res, err = q.ExecContext(ctx, `
			UPDATE registry_settings SET
				version = $1, context = $2, verifiers = $3, required_verifications = $4,
				registration_period_seconds = $5, timestamp_variance_seconds = $6, updated_at = now()
			WHERE id = 1 AND version = $1 - 1`, args...)
	}
	if err != nil {
		return fmt.Errorf("save settings: %w", unavailable(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	if n == 0 {
		return sentinel.ErrConflict
	}
	return nil
}
