package main

import (
	"context"
	"net/http"
	"time"

	"idregistry/pkg/platform/httputil"
)

type healthCheck struct {
	name  string
	check func(context.Context) error
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// healthHandler reports 503 when any backing service fails its check.
func healthHandler(checks []healthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{Status: "ok", Checks: map[string]string{}}
		status := http.StatusOK
		for _, c := range checks {
			if err := c.check(ctx); err != nil {
				resp.Checks[c.name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[c.name] = "ok"
		}
		httputil.WriteJSON(w, status, resp)
	}
}
