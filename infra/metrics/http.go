package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kilianp07/taskalloc/infra/logger"
)

// Handler returns the /metrics handler for g. A nil gatherer serves the
// default registry.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// StatusFunc reports service counters for the /status endpoint.
type StatusFunc func() map[string]any

// StatusHandler serves the output of fn as JSON.
func StatusHandler(fn StatusFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		body := map[string]any{}
		if fn != nil {
			body = fn()
		}
		_ = json.NewEncoder(w).Encode(body)
	})
}

// NewServeMux mounts /metrics for g and, when status is set, /status.
func NewServeMux(g prometheus.Gatherer, status StatusFunc) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(g))
	if status != nil {
		mux.Handle("/status", StatusHandler(status))
	}
	return mux
}

// StartPromServer serves the default registry on addr until ctx is
// canceled.
func StartPromServer(ctx context.Context, addr string, status StatusFunc) error {
	log := logger.New("prom-server")
	srv := &http.Server{Addr: addr, Handler: NewServeMux(nil, status), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Errorf("prom server shutdown: %v", err)
		}
	}()
	log.Infof("serving metrics on %s/metrics", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
