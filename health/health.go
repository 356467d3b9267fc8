package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/alexliesenfeld/health"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// PoolAdmin is the scanner surface the operator endpoints act on.
type PoolAdmin interface {
	HaltedPools() []string
	Halted(poolID string) bool
	Acknowledge(poolID string)
}

// Router serves /health, /metrics, and the halted-pool operator endpoints.
func Router(logger zerolog.Logger, admin PoolAdmin, checks ...health.Check) http.Handler {
	options := []health.CheckerOption{
		health.WithCacheDuration(1 * time.Second),
		health.WithTimeout(10 * time.Second),
		// Runs when health status changes
		health.WithStatusListener(func(ctx context.Context, state health.CheckerState) {
			logger.
				Debug().
				Str("status", string(state.Status)).
				Msg("health status changed")
		}),
	}
	for _, check := range checks {
		// Run every minute with initial delay of 3 seconds. Not run each HTTP request
		options = append(options, health.WithPeriodicCheck(60*time.Second, 3*time.Second, check))
	}
	checker := health.NewChecker(options...)

	r := chi.NewRouter()
	r.Get("/health", health.NewHandler(checker))
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/pools/halted", func(w http.ResponseWriter, _ *http.Request) {
		halted := admin.HaltedPools()
		if halted == nil {
			halted = []string{}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string][]string{"halted": halted})
	})

	// acknowledging a halted pool resumes scanning it on the next tick
	r.Post("/pools/{poolID}/acknowledge", func(w http.ResponseWriter, req *http.Request) {
		poolID := chi.URLParam(req, "poolID")
		if !admin.Halted(poolID) {
			http.Error(w, "pool is not halted", http.StatusConflict)
			return
		}
		admin.Acknowledge(poolID)
		logger.Info().Str("pool", poolID).Msg("pool halt acknowledged by operator")
		w.WriteHeader(http.StatusNoContent)
	})

	return r
}

// StartServer runs the operator server until ctx is cancelled.
func StartServer(
	ctx context.Context,
	logger zerolog.Logger,
	listenAddr string,
	admin PoolAdmin,
	checks ...health.Check,
) {
	server := &http.Server{
		Addr:    listenAddr,
		Handler: Router(logger, admin, checks...),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	go func() {
		logger.
			Info().
			Msgf("operator server listening on %s", server.Addr)

		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("failed to start operator server")
		}
	}()
}
