package api

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JohanValero/research-agent/internal/log"
)

const readinessPingTimeout = 2 * time.Second

// health is a liveness endpoint for Docker/Kubernetes probes.
func health(logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{
			"status":    "ok",
			"service":   "research-agent",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		}, logger)
	}
}

// readiness reports whether the service can reach its database. A nil pool
// degrades to a plain liveness check.
func readiness(pool *pgxpool.Pool, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if pool == nil {
			WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"}, logger)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), readinessPingTimeout)
		defer cancel()

		if err := pool.Ping(ctx); err != nil {
			logger.Warn("readiness ping failed", "error", err)
			WriteError(w, http.StatusServiceUnavailable, "not_ready", "database unreachable", logger)
			return
		}

		WriteJSON(w, http.StatusOK, map[string]any{
			"status": "ok",
			"pool": map[string]int32{
				"total_conns": pool.Stat().TotalConns(),
				"idle_conns":  pool.Stat().IdleConns(),
			},
		}, logger)
	}
}
