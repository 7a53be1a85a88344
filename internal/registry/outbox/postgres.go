package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"idregistry/internal/registry/notifier"
	id "idregistry/pkg/domain"
	"idregistry/pkg/platform/tx"
)

// Postgres keeps entries in the notification_outbox table created by the
// registry schema migration.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Add inserts with the transaction in ctx when there is one, so the entry
// commits or rolls back with the registration.
func (s *Postgres) Add(ctx context.Context, n notifier.Notification) error {
	_, err := tx.QuerierFrom(ctx, s.db).ExecContext(ctx, `
		INSERT INTO notification_outbox (event_id, receiver, caller, unique_user_id, payload, registered_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		n.EventID, n.Receiver.Key(), n.Caller.Key(), n.UniqueUserID.Key(), nonNil(n.Payload), n.RegisteredAt.UTC())
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

// Process locks the oldest pending rows with SKIP LOCKED so several relays can
// share one table. Published rows and the failed attempt commit together.
func (s *Postgres) Process(ctx context.Context, limit int, fn func(ctx context.Context, e Entry) error) (int, error) {
	published := 0
	var failure error
	err := tx.Run(ctx, s.db, func(ctx context.Context) error {
		q := tx.QuerierFrom(ctx, s.db)
		entries, err := s.pending(ctx, q, limit)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if err := fn(ctx, e); err != nil {
				failure = err
				_, updateErr := q.ExecContext(ctx, `
					UPDATE notification_outbox SET attempts = attempts + 1, last_error = $2
					WHERE seq = $1`, e.Seq, err.Error())
				if updateErr != nil {
					return fmt.Errorf("record outbox attempt: %w", updateErr)
				}
				return nil
			}
			if _, err := q.ExecContext(ctx, `
				UPDATE notification_outbox SET published_at = now(), attempts = attempts + 1
				WHERE seq = $1`, e.Seq); err != nil {
				return fmt.Errorf("mark outbox entry published: %w", err)
			}
			published++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return published, failure
}

func (s *Postgres) pending(ctx context.Context, q tx.Querier, limit int) ([]Entry, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT seq, event_id, receiver, caller, unique_user_id, payload, registered_at, created_at, attempts
		FROM notification_outbox
		WHERE published_at IS NULL
		ORDER BY seq
		LIMIT $1
		FOR UPDATE SKIP LOCKED`, limit)
	if err != nil {
		return nil, fmt.Errorf("select outbox entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e                          Entry
			receiver, caller, uniqueID string
			registeredAt               time.Time
		)
		if err := rows.Scan(&e.Seq, &e.Notification.EventID, &receiver, &caller, &uniqueID,
			&e.Notification.Payload, &registeredAt, &e.CreatedAt, &e.Attempts); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		if e.Notification.Receiver, err = id.ParseAddress(receiver); err != nil {
			return nil, fmt.Errorf("outbox entry %d receiver: %w", e.Seq, err)
		}
		if e.Notification.Caller, err = id.ParseAddress(caller); err != nil {
			return nil, fmt.Errorf("outbox entry %d caller: %w", e.Seq, err)
		}
		if e.Notification.UniqueUserID, err = id.ParseAddress(uniqueID); err != nil {
			return nil, fmt.Errorf("outbox entry %d unique user id: %w", e.Seq, err)
		}
		e.Notification.RegisteredAt = registeredAt.UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox entries: %w", err)
	}
	return entries, nil
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
