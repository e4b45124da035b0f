// Package v0 provides the REST API handlers for the document sync service.
package v0

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/notluquis/bioalergia-sub006/internal/runs"
	"github.com/notluquis/bioalergia-sub006/internal/versions"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 100
)

// SyncService runs syncs and exposes run history.
type SyncService interface {
	RunSync(ctx context.Context, scope runs.Scope, trigger runs.TriggerSource, triggerUser string) (*runs.SyncRun, error)
	ListRuns(ctx context.Context, limit, offset int) ([]*runs.SyncRun, error)
}

// WebhookTrigger schedules an asynchronous sync in response to a push
// notification.
type WebhookTrigger interface {
	TriggerSyncNow()
}

// SyncRequest is the body of a manual sync request. All fields are optional;
// an empty body syncs the current period over the default units.
type SyncRequest struct {
	Period string   `json:"period,omitempty"`
	Units  []string `json:"units,omitempty"`
	User   string   `json:"user,omitempty"`
}

// RunsResponse wraps a page of run history.
type RunsResponse struct {
	Runs []*runs.SyncRun `json:"runs"`
}

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// Routes defines the routes for the sync API with dependency injection
type Routes struct {
	service SyncService
	trigger WebhookTrigger
	now     func() time.Time
}

// NewRoutes creates a new Routes instance with the provided services
func NewRoutes(svc SyncService, trigger WebhookTrigger) *Routes {
	return &Routes{
		service: svc,
		trigger: trigger,
		now:     time.Now,
	}
}

// Router creates a new router for the sync API
func Router(svc SyncService, trigger WebhookTrigger) http.Handler {
	routes := NewRoutes(svc, trigger)

	r := chi.NewRouter()

	r.Post("/sync", routes.postSync)
	r.Get("/runs", routes.getRuns)
	r.Post("/webhook/calendar", routes.postCalendarWebhook)

	return r
}

// postSync handles POST /api/v0/sync: it runs a full sync synchronously and
// returns the finished run.
func (rr *Routes) postSync(w http.ResponseWriter, r *http.Request) {
	var req SyncRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			rr.writeErrorResponse(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}

	scope := runs.Scope{
		Period: req.Period,
		Units:  req.Units,
	}
	if scope.Period == "" {
		scope.Period = rr.now().Format("200601")
	}

	run, err := rr.service.RunSync(r.Context(), scope, runs.TriggerManual, req.User)
	if err != nil {
		slog.Error("Manual sync failed", "error", err)
		rr.writeErrorResponse(w, "sync failed", http.StatusInternalServerError)
		return
	}

	rr.writeJSONResponse(w, run)
}

// getRuns handles GET /api/v0/runs with limit/offset pagination.
func (rr *Routes) getRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			rr.writeErrorResponse(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	if limit > maxRunsLimit {
		limit = maxRunsLimit
	}

	offset := 0
	if raw := r.URL.Query().Get("offset"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			rr.writeErrorResponse(w, "offset must be a non-negative integer", http.StatusBadRequest)
			return
		}
		offset = parsed
	}

	history, err := rr.service.ListRuns(r.Context(), limit, offset)
	if err != nil {
		slog.Error("Failed to list runs", "error", err)
		rr.writeErrorResponse(w, "failed to list runs", http.StatusInternalServerError)
		return
	}

	rr.writeJSONResponse(w, RunsResponse{Runs: history})
}

// postCalendarWebhook handles POST /api/v0/webhook/calendar. The provider
// delivers notification metadata in headers, not the body. The initial
// handshake ("sync" state) is acknowledged without triggering anything.
func (rr *Routes) postCalendarWebhook(w http.ResponseWriter, r *http.Request) {
	channelID := r.Header.Get("X-Goog-Channel-Id")
	resourceID := r.Header.Get("X-Goog-Resource-Id")
	state := r.Header.Get("X-Goog-Resource-State")

	if channelID == "" || resourceID == "" {
		rr.writeErrorResponse(w, "missing channel headers", http.StatusBadRequest)
		return
	}

	if state == "sync" {
		slog.Info("Watch channel handshake acknowledged", "channel_id", channelID)
		w.WriteHeader(http.StatusOK)
		return
	}

	slog.Info("Push notification received",
		"channel_id", channelID,
		"resource_id", resourceID,
		"state", state,
	)
	rr.trigger.TriggerSyncNow()

	w.WriteHeader(http.StatusAccepted)
}

// HealthRouter creates a router for health check endpoints
func HealthRouter() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", healthHandler)
	r.Get("/version", versionHandler)

	return r
}

// healthHandler handles health check requests
func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}

// versionHandler handles version information requests
func versionHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(versions.GetVersionInfo()); err != nil {
		slog.Error("Failed to encode version info", "error", err)
	}
}

// writeJSONResponse writes a JSON response with the given data
func (*Routes) writeJSONResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}

// writeErrorResponse writes a standardized error response
func (*Routes) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(ErrorResponse{Error: message}); err != nil {
		slog.Error("Failed to encode error response", "error", err)
	}
}
