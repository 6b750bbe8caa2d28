package handlers

import (
	"log/slog"
	"net/http"
	"time"

	derrors "git.home.luguber.info/inful/reportbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/reportbuilder/internal/server/responses"
	"git.home.luguber.info/inful/reportbuilder/internal/version"
)

// MonitoringHandlers contains liveness and metrics handlers.
type MonitoringHandlers struct {
	started      time.Time
	metrics      http.Handler
	errorAdapter *derrors.HTTPErrorAdapter
}

// NewMonitoringHandlers creates monitoring handlers. metrics may be nil, in
// which case /metrics answers 404.
func NewMonitoringHandlers(started time.Time, metrics http.Handler) *MonitoringHandlers {
	return &MonitoringHandlers{
		started:      started,
		metrics:      metrics,
		errorAdapter: derrors.NewHTTPErrorAdapter(slog.Default()),
	}
}

// HandleHealthCheck handles the health check endpoint.
func (h *MonitoringHandlers) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	health := &responses.HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   version.Version,
		Uptime:    time.Since(h.started).Seconds(),
	}
	if err := writeJSONPretty(w, r, http.StatusOK, health); err != nil {
		internalErr := derrors.WrapError(err, derrors.CategoryInternal, "failed to write health response").Build()
		h.errorAdapter.WriteErrorResponse(w, r, internalErr)
	}
}

// HandleMetrics serves the Prometheus exposition.
func (h *MonitoringHandlers) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	if h.metrics == nil {
		h.errorAdapter.WriteErrorResponse(w, r, derrors.NotFoundError("metrics disabled").Build())
		return
	}
	h.metrics.ServeHTTP(w, r)
}
