// Package api exposes the activity store over HTTP.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	apperrors "mergington-activities/internal/common/errors"
	"mergington-activities/internal/common/logger"
	"mergington-activities/internal/common/metrics"
	"mergington-activities/internal/common/observability"
	"mergington-activities/internal/common/validation"
	"mergington-activities/internal/notifier"
	"mergington-activities/internal/store"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	RequestIDHeader = "X-Request-ID"
	indexPath       = "/static/index.html"
)

// Handler serves the activities API.
type Handler struct {
	store     store.Store
	notifier  notifier.Notifier
	logger    logger.Logger
	obs       *observability.Observability
	staticDir string
}

// NewHandler builds a Handler. A nil notifier disables notifications.
func NewHandler(st store.Store, n notifier.Notifier, log logger.Logger, obs *observability.Observability, staticDir string) *Handler {
	if n == nil {
		n = notifier.Noop{}
	}
	return &Handler{
		store:     st,
		notifier:  n,
		logger:    log.WithFields(map[string]interface{}{"component": "api"}),
		obs:       obs,
		staticDir: staticDir,
	}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.root)
	mux.HandleFunc("GET /activities", h.listActivities)
	mux.HandleFunc("POST /activities/{name}/signup", h.signup)
	mux.HandleFunc("DELETE /activities/{name}/unregister", h.unregister)
	mux.HandleFunc("GET /health", h.health)
	mux.HandleFunc("GET /ready", h.ready)
	mux.Handle("GET /metrics", promhttp.Handler())
	if h.staticDir != "" {
		mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir(h.staticDir))))
	}
}

// Routes returns the mux wrapped in request logging and metrics.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return h.instrument(mux)
}

func (h *Handler) root(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, indexPath, http.StatusTemporaryRedirect)
}

func (h *Handler) listActivities(w http.ResponseWriter, r *http.Request) {
	activities, err := h.store.ListActivities(r.Context())
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, activities)
}

func (h *Handler) signup(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	email, ok := h.requireEmail(w, r)
	if !ok {
		return
	}

	if err := h.store.Signup(r.Context(), name, email); err != nil {
		h.writeStoreError(w, r, err)
		return
	}

	h.notify(r.Context(), "signup", name, email, h.notifier.SignedUp)
	writeJSON(w, http.StatusOK, MessageResponse{
		Message: fmt.Sprintf("Signed up %s for %s", email, name),
	})
}

func (h *Handler) unregister(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	email, ok := h.requireEmail(w, r)
	if !ok {
		return
	}

	if err := h.store.Unregister(r.Context(), name, email); err != nil {
		h.writeStoreError(w, r, err)
		return
	}

	h.notify(r.Context(), "unregister", name, email, h.notifier.Unregistered)
	writeJSON(w, http.StatusOK, MessageResponse{
		Message: fmt.Sprintf("Unregistered %s from %s", email, name),
	})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (h *Handler) ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ready",
		"backend": h.store.Backend(),
	})
}

// requireEmail rejects only an absent parameter; "?email=" is a present,
// empty value and is passed through like any other string.
func (h *Handler) requireEmail(w http.ResponseWriter, r *http.Request) (string, bool) {
	query := r.URL.Query()
	if !query.Has("email") {
		h.writeError(w, r, apperrors.NewInvalidInputError("email query parameter is required"))
		return "", false
	}
	return validation.NormalizeEmail(query.Get("email")), true
}

// notify runs after the roster change is committed; its failure never
// changes the response.
func (h *Handler) notify(ctx context.Context, action, activity, email string, send func(context.Context, string, string) error) {
	if err := send(ctx, activity, email); err != nil {
		h.logger.WithError(err).Warn("notification failed", map[string]interface{}{
			"action":    action,
			"activity":  activity,
			"requestId": requestIDFrom(ctx),
		})
	}
}

func (h *Handler) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	h.writeError(w, r, apperrors.Normalize(err))
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, stdErr *apperrors.StandardError) {
	fields := map[string]interface{}{
		"code":      string(stdErr.Code),
		"category":  apperrors.GetErrorCategory(stdErr.Code),
		"path":      r.URL.Path,
		"requestId": requestIDFrom(r.Context()),
	}
	if apperrors.IsClientError(stdErr.Code) {
		h.logger.Debug("request rejected", fields)
	} else {
		fields["details"] = stdErr.Details
		h.logger.Error("request failed", fields)
	}
	writeJSON(w, apperrors.HTTPStatus(stdErr.Code), ErrorResponse{Detail: stdErr.Message})
}

// MessageResponse is returned by successful roster changes.
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse is returned for every failed request.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

type requestIDKey struct{}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// instrument tags each request with an id, then logs and counts it once the
// mux has matched a route.
func (h *Handler) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set(RequestIDHeader, requestID)
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey{}, requestID))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		duration := time.Since(start)

		metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		h.obs.RecordRequest(r.Context(), route, rec.status, duration)

		h.logger.Info("request handled", map[string]interface{}{
			"method":     r.Method,
			"path":       r.URL.Path,
			"route":      route,
			"status":     rec.status,
			"durationMs": duration.Milliseconds(),
			"requestId":  requestID,
		})
	})
}
