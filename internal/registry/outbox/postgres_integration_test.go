//go:build integration

package outbox_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"idregistry/internal/registry/models"
	"idregistry/internal/registry/notifier"
	"idregistry/internal/registry/outbox"
	"idregistry/internal/registry/store"
	id "idregistry/pkg/domain"
	"idregistry/pkg/testutil/containers"
)

type PostgresOutboxSuite struct {
	suite.Suite
	postgres      *containers.PostgresContainer
	registrations *store.Postgres
	outbox        *outbox.Postgres
}

func TestPostgresOutboxSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresOutboxSuite))
}

func (s *PostgresOutboxSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.Require().NoError(store.Migrate(context.Background(), s.postgres.DB))
	s.registrations = store.NewPostgres(s.postgres.DB)
	s.outbox = outbox.NewPostgres(s.postgres.DB)
}

func (s *PostgresOutboxSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(), "registrations", "notification_outbox")
	s.Require().NoError(err)
}

func (s *PostgresOutboxSuite) notification() notifier.Notification {
	return notifier.Notification{
		EventID:      uuid.NewString(),
		Receiver:     id.MustParseAddress("0x00000000000000000000000000000000000000cc"),
		Caller:       id.MustParseAddress("0x00000000000000000000000000000000000000aa"),
		UniqueUserID: id.MustParseAddress("0x00000000000000000000000000000000000000aa"),
		Payload:      []byte{0xde, 0xad},
		RegisteredAt: time.Unix(1_600_000_000, 0).UTC(),
	}
}

func (s *PostgresOutboxSuite) pending() []outbox.Entry {
	var entries []outbox.Entry
	_, err := s.outbox.Process(context.Background(), 100, func(_ context.Context, e outbox.Entry) error {
		entries = append(entries, e)
		return errors.New("peek only")
	})
	s.Require().Error(err)
	return entries
}

func (s *PostgresOutboxSuite) TestEntryCommitsWithRegistration() {
	ctx := context.Background()
	n := s.notification()
	user := n.Caller

	_, err := s.registrations.Apply(ctx, []id.Address{user}, n.RegisteredAt, func(ctx context.Context, _ *models.RegistrationPlan) error {
		return s.outbox.Add(ctx, n)
	})
	s.Require().NoError(err)

	entries := s.pending()
	s.Require().Len(entries, 1)
	s.Equal(n, entries[0].Notification)
}

func (s *PostgresOutboxSuite) TestEntryRollsBackWithRegistration() {
	ctx := context.Background()
	n := s.notification()
	user := n.Caller

	// A duplicate event id fails the insert and with it the registration.
	s.Require().NoError(s.outbox.Add(ctx, n))
	_, err := s.registrations.Apply(ctx, []id.Address{user}, n.RegisteredAt, func(ctx context.Context, _ *models.RegistrationPlan) error {
		return s.outbox.Add(ctx, n)
	})
	s.Require().Error(err)

	_, err = s.registrations.FindByAddress(ctx, user)
	s.Error(err, "registration must not commit without its outbox entry")
	s.Len(s.pending(), 1)
}

func (s *PostgresOutboxSuite) TestProcessMarksPublishedAndRecordsFailures() {
	ctx := context.Background()
	first, second := s.notification(), s.notification()
	s.Require().NoError(s.outbox.Add(ctx, first))
	s.Require().NoError(s.outbox.Add(ctx, second))

	calls := 0
	published, err := s.outbox.Process(ctx, 10, func(_ context.Context, e outbox.Entry) error {
		calls++
		if e.Notification.EventID == second.EventID {
			return errors.New("broker down")
		}
		return nil
	})
	s.Error(err)
	s.Equal(1, published)
	s.Equal(2, calls)

	entries := s.pending()
	s.Require().Len(entries, 1)
	s.Equal(second.EventID, entries[0].Notification.EventID)
	s.Equal(1, entries[0].Attempts)
}
