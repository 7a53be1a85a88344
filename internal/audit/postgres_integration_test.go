//go:build integration

package audit_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idregistry/internal/audit"
	"idregistry/pkg/testutil/containers"
)

func TestPostgresStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	pg := containers.GetManager().GetPostgres(t)
	ctx := context.Background()

	store := audit.NewPostgresStore(pg.DB)
	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, pg.TruncateTables(ctx, "audit_events"))

	ts := time.Unix(1_600_000_000, 0).UTC()
	publisher := audit.NewPublisher(store)
	require.NoError(t, publisher.Emit(ctx, audit.Event{Timestamp: ts, Action: audit.ActionRegistrationAccepted, Subject: "0xA", RequestID: "r1"}))
	require.NoError(t, publisher.Emit(ctx, audit.Event{Timestamp: ts, Action: audit.ActionAddressVoided, Subject: "0xB"}))
	require.NoError(t, publisher.Emit(ctx, audit.Event{Timestamp: ts.Add(time.Second), Action: audit.ActionNotificationQueued, Subject: "0xA", Detail: "receiver=0xC"}))

	events, err := publisher.List(ctx, "0xA")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, audit.ActionRegistrationAccepted, events[0].Action)
	assert.Equal(t, "r1", events[0].RequestID)
	assert.True(t, events[0].Timestamp.Equal(ts))
	assert.Equal(t, audit.ActionNotificationQueued, events[1].Action)
	assert.Equal(t, "receiver=0xC", events[1].Detail)

	events, err = publisher.List(ctx, "0xZ")
	require.NoError(t, err)
	assert.Empty(t, events)
}
