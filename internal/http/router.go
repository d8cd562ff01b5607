// Package httpapi exposes the operational endpoints of the catalogue:
// liveness, readiness against every backing store, and Prometheus metrics.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"sdcatalog/pkg/platform/httputil"
	"sdcatalog/pkg/platform/middleware/requesttime"
)

const checkTimeout = 2 * time.Second

// Checker reports whether one backing store is reachable.
type Checker func(ctx context.Context) error

// Handler serves the ops endpoints.
type Handler struct {
	checkers map[string]Checker
	metrics  http.Handler
	logger   *slog.Logger
}

func New(checkers map[string]Checker, metrics http.Handler, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{checkers: checkers, metrics: metrics, logger: logger}
}

// NewRouter mounts the ops endpoints on a fresh chi router.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requesttime.Middleware)
	h.Register(r)
	return r
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/healthz", h.HandleHealth)
	r.Get("/readyz", h.HandleReady)
	if h.metrics != nil {
		r.Handle("/metrics", h.metrics)
	}
}

// HandleHealth handles GET /healthz. It never touches a dependency.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type readyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// HandleReady handles GET /readyz, running every checker concurrently.
func (h *Handler) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		failed []string
	)
	checks := make(map[string]string, len(h.checkers))
	for name, check := range h.checkers {
		wg.Add(1)
		go func(name string, check Checker) {
			defer wg.Done()
			err := check(ctx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				checks[name] = err.Error()
				failed = append(failed, name)
				return
			}
			checks[name] = "ok"
		}(name, check)
	}
	wg.Wait()

	if len(failed) > 0 {
		sort.Strings(failed)
		h.logger.WarnContext(ctx, "readiness check failed", "failed", failed)
		httputil.WriteJSON(w, http.StatusServiceUnavailable, readyResponse{Status: "unavailable", Checks: checks})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, readyResponse{Status: "ok", Checks: checks})
}
