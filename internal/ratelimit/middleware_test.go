package ratelimit

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idregistry/pkg/platform/httputil"
	"idregistry/pkg/requestcontext"
)

func TestMiddleware(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	now := time.Unix(1_600_000_000, 0)
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	send := func(h http.Handler, ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/v1/settings", nil)
		ctx := requestcontext.WithClientIP(req.Context(), ip)
		ctx = requestcontext.WithTime(ctx, now)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req.WithContext(ctx))
		return rec
	}

	t.Run("limits each client address", func(t *testing.T) {
		store := NewInMemoryStore(WithMemoryClock(func() time.Time { return now }))
		l, err := New(store, 2, time.Minute)
		require.NoError(t, err)
		h := Middleware(l, logger)(ok)

		first := send(h, "10.0.0.1")
		assert.Equal(t, http.StatusNoContent, first.Code)
		assert.Equal(t, "2", first.Header().Get(HeaderLimit))
		assert.Equal(t, "1", first.Header().Get(HeaderRemaining))

		send(h, "10.0.0.1")
		blocked := send(h, "10.0.0.1")
		assert.Equal(t, http.StatusTooManyRequests, blocked.Code)
		assert.Equal(t, "60", blocked.Header().Get("Retry-After"))

		var body httputil.ErrorResponse
		require.NoError(t, json.NewDecoder(blocked.Body).Decode(&body))
		assert.Equal(t, "RATE_LIMITED", body.Reason)

		assert.Equal(t, http.StatusNoContent, send(h, "10.0.0.2").Code)
	})

	t.Run("limiter failure lets the request through", func(t *testing.T) {
		l, err := New(&failingStore{err: errors.New("down")}, 1, time.Minute)
		require.NoError(t, err)
		h := Middleware(l, logger)(ok)

		rec := send(h, "10.0.0.1")
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Empty(t, rec.Header().Get(HeaderLimit))
	})

	t.Run("fallback marks responses degraded", func(t *testing.T) {
		l, err := New(&failingStore{err: errors.New("down")}, 5, time.Minute,
			WithFallback(NewInMemoryStore()))
		require.NoError(t, err)
		h := Middleware(l, logger)(ok)

		rec := send(h, "10.0.0.1")
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "degraded", rec.Header().Get(HeaderStatus))
	})
}
