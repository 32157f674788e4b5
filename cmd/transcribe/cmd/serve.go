package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/lexiqai/transcribe-client/internal/events"
	"github.com/lexiqai/transcribe-client/internal/jobs"
	"github.com/lexiqai/transcribe-client/internal/observability"
	"github.com/lexiqai/transcribe-client/internal/resilience"
	"github.com/lexiqai/transcribe-client/internal/session"
	"github.com/lexiqai/transcribe-client/internal/upload"
)

const (
	refreshMaxFailures = 3
	refreshCooldown    = time.Minute
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local companion server",
		Long: `Run the local companion server for an external UI.

Endpoints:
  /health   liveness
  /ready    checks the transcription service is reachable
  /metrics  Prometheus metrics (when METRICS_ENABLED)
  /state    current session, jobs and upload as JSON
  /events   websocket feed of state changes (?since=<seq> replays history)`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := opts.app
			if port == "" {
				port = a.cfg.Port
			}
			return serve(cmd.Context(), a, port)
		},
	}

	cmd.Flags().StringVar(&port, "port", "", "listen port (default from PORT)")
	return cmd
}

func serve(ctx context.Context, a *app, port string) error {
	logger := observability.WithComponent("server")
	logger.Info().
		Str("port", port).
		Str("api_url", a.cfg.APIBaseURL).
		Str("log_level", a.cfg.LogLevel).
		Bool("metrics_enabled", a.cfg.MetricsEnabled).
		Msg("Companion server starting")

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", port),
		Handler:      newServeMux(a),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	refreshCtx, stopRefresh := context.WithCancel(ctx)
	defer stopRefresh()
	if a.session.State().HasToken() {
		if _, err := a.session.FetchProfile(ctx); err != nil {
			logger.Warn().Err(err).Msg("Stored credential rejected; job refresh disabled until login")
		} else {
			breaker := resilience.NewBreaker("job_refresh", refreshMaxFailures, refreshCooldown)
			go a.jobs.Refresh(refreshCtx, a.cfg.RefreshIntervalDuration(), breaker)
		}
	} else {
		logger.Warn().Msg("Not logged in; job refresh disabled")
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info().
			Str("port", port).
			Str("endpoint", fmt.Sprintf("ws://localhost:%s/events", port)).
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed to start: %w", err)
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down server...")
	stopRefresh()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info().Msg("Server exited gracefully")
	return nil
}

func newServeMux(a *app) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", observability.HealthCheckHandler())
	mux.HandleFunc("/ready", observability.ReadinessHandler(map[string]observability.HealthCheckFunc{
		"transcription_api": func(ctx context.Context) (bool, error) {
			if err := a.client.Ping(ctx); err != nil {
				return false, err
			}
			return true, nil
		},
	}))
	if a.cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
	}
	mux.HandleFunc("/state", stateHandler(a))
	mux.HandleFunc("/events", events.Handler(a.bus))
	return mux
}

type stateView struct {
	Session session.State    `json:"session"`
	Jobs    jobs.State       `json:"jobs"`
	Upload  upload.Operation `json:"upload"`
	LastSeq int64            `json:"lastSeq"`
}

func stateHandler(a *app) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		view := stateView{
			Session: a.session.State(),
			Jobs:    a.jobs.Snapshot(),
			Upload:  a.uploads.Operation(),
			LastSeq: a.bus.LastSeq(),
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(view)
	}
}
