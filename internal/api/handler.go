package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"hookrelay/internal/domain"
	"hookrelay/internal/stats"
)

// Pagination defaults and limits.
const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// defaultStatsWindow is the attempt-count window when ?window= is absent.
const defaultStatsWindow = 24 * time.Hour

type Store interface {
	InsertRecord(ctx context.Context, rec domain.EventRecord) error
	GetRecord(ctx context.Context, id uuid.UUID) (domain.EventRecord, error)
	UpdateRecord(ctx context.Context, id uuid.UUID, eventType string, payload json.RawMessage) (old, updated domain.EventRecord, err error)
	ListAttemptsByRecord(ctx context.Context, recordID uuid.UUID, limit, offset int) ([]domain.DeliveryEntry, error)
}

// MutationEmitter announces persisted mutations to the delivery pipeline.
type MutationEmitter interface {
	RecordInserted(rec domain.EventRecord)
	RecordUpdated(old, rec domain.EventRecord)
}

// StatsProvider serves the /stats rollup.
type StatsProvider interface {
	Snapshot(ctx context.Context) (stats.Snapshot, error)
	Attempts(ctx context.Context, window time.Duration) (stats.AttemptCounts, error)
}

// HealthChecker provides database health status for the /health endpoint.
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

type Handler struct {
	store   Store
	emitter MutationEmitter
	stats   StatsProvider
	db      HealthChecker
}

func NewHandler(store Store, emitter MutationEmitter) *Handler {
	return &Handler{store: store, emitter: emitter}
}

// WithStats sets the aggregator backing the /stats endpoint.
func (h *Handler) WithStats(sp StatsProvider) *Handler {
	h.stats = sp
	return h
}

// WithHealthChecker sets the database health checker for verbose /health responses.
func (h *Handler) WithHealthChecker(db HealthChecker) *Handler {
	h.db = db
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	switch {
	case path == "/health" && r.Method == http.MethodGet:
		h.health(w, r)

	case path == "/stats" && r.Method == http.MethodGet:
		h.getStats(w, r)

	case path == "/events" && r.Method == http.MethodPost:
		h.createEvent(w, r)

	case strings.HasSuffix(path, "/attempts") && r.Method == http.MethodGet:
		h.listAttempts(w, r)

	case strings.HasPrefix(path, "/events/") && r.Method == http.MethodGet:
		h.getEvent(w, r)

	case strings.HasPrefix(path, "/events/") && r.Method == http.MethodPatch:
		h.updateEvent(w, r)

	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

// HealthResponse represents the /health endpoint response.
type HealthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	verbose := r.URL.Query().Get("verbose") == "true"

	if !verbose || h.db == nil {
		writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
		return
	}

	resp := HealthResponse{
		Status:     "ok",
		Components: make(map[string]string),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		resp.Status = "degraded"
		resp.Components["database"] = "unhealthy: " + err.Error()
	} else {
		resp.Components["database"] = "healthy"
	}

	statusCode := http.StatusOK
	if resp.Status == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, resp)
}

// StatsResponse represents the /stats endpoint response.
type StatsResponse struct {
	Events   stats.Snapshot      `json:"events"`
	Attempts stats.AttemptCounts `json:"attempts"`
}

func (h *Handler) getStats(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		writeError(w, http.StatusNotFound, "stats not enabled")
		return
	}

	window := defaultStatsWindow
	if windowStr := r.URL.Query().Get("window"); windowStr != "" {
		d, err := time.ParseDuration(windowStr)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, "invalid window")
			return
		}
		window = d
	}

	snapshot, err := h.stats.Snapshot(r.Context())
	if err != nil {
		log.Printf("api: stats snapshot error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to compute stats")
		return
	}

	attempts, err := h.stats.Attempts(r.Context(), window)
	if err != nil {
		log.Printf("api: stats attempts error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to compute stats")
		return
	}

	writeJSON(w, http.StatusOK, StatsResponse{Events: snapshot, Attempts: attempts})
}

// maxRequestBodySize is the maximum allowed request body size (1MB).
const maxRequestBodySize = 1 << 20

func (h *Handler) createEvent(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req CreateEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err.Error() == "http: request body too large" {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := validateCreateEvent(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec := domain.EventRecord{
		ID:            uuid.New(),
		EventType:     req.EventType,
		Payload:       req.Payload,
		WebhookStatus: domain.StatusPending,
		CreatedAt:     time.Now().UTC(),
	}

	if err := h.store.InsertRecord(r.Context(), rec); err != nil {
		log.Printf("api: create event error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create event")
		return
	}

	// The mutation is durable at this point; delivery happens async.
	h.emitter.RecordInserted(rec)

	writeJSON(w, http.StatusCreated, eventResponse(rec))
}

func (h *Handler) getEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := parseEventID(w, r, 2)
	if !ok {
		return
	}

	rec, err := h.store.GetRecord(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "event not found")
			return
		}
		log.Printf("api: get event error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to get event")
		return
	}

	writeJSON(w, http.StatusOK, eventResponse(rec))
}

func (h *Handler) updateEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := parseEventID(w, r, 2)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req UpdateEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err.Error() == "http: request body too large" {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := validateUpdateEvent(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	eventType := ""
	if req.EventType != nil {
		eventType = *req.EventType
	}

	old, updated, err := h.store.UpdateRecord(r.Context(), id, eventType, req.Payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "event not found")
			return
		}
		log.Printf("api: update event error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to update event")
		return
	}

	h.emitter.RecordUpdated(old, updated)

	writeJSON(w, http.StatusOK, eventResponse(updated))
}

func (h *Handler) listAttempts(w http.ResponseWriter, r *http.Request) {
	// Path shape: /events/{id}/attempts
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 3 || parts[0] != "events" || parts[2] != "attempts" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	recordID, err := uuid.Parse(parts[1])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid event id")
		return
	}

	limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := h.store.ListAttemptsByRecord(r.Context(), recordID, limit, offset)
	if err != nil {
		log.Printf("api: list attempts error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list attempts")
		return
	}

	resp := ListAttemptsResponse{Attempts: make([]AttemptResponse, len(entries))}
	for i, entry := range entries {
		resp.Attempts[i] = AttemptResponse{
			ID:           entry.ID.String(),
			RecordID:     entry.RecordID.String(),
			RequestID:    entry.RequestID,
			SubjectTable: entry.SubjectTable,
			Operation:    string(entry.Operation),
			Attempt:      entry.Attempt,
			Status:       string(entry.Status),
			ErrorMessage: entry.ErrorMessage,
			ResponseData: entry.ResponseData,
			AttemptAt:    formatTime(entry.AttemptAt),
			CreatedAt:    formatTime(entry.CreatedAt),
			UpdatedAt:    formatTime(entry.UpdatedAt),
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// parseEventID extracts the record id from a path of wantParts segments
// shaped /events/{id}. It writes the error response itself on failure.
func parseEventID(w http.ResponseWriter, r *http.Request, wantParts int) (uuid.UUID, bool) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != wantParts || parts[0] != "events" {
		writeError(w, http.StatusNotFound, "not found")
		return uuid.UUID{}, false
	}

	id, err := uuid.Parse(parts[1])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid event id")
		return uuid.UUID{}, false
	}
	return id, true
}

func eventResponse(rec domain.EventRecord) EventResponse {
	return EventResponse{
		ID:            rec.ID.String(),
		EventType:     rec.EventType,
		Payload:       rec.Payload,
		WebhookStatus: string(rec.WebhookStatus),
		LastAttemptAt: formatTimePtr(rec.LastAttemptAt),
		CreatedAt:     formatTime(rec.CreatedAt),
		ProcessedAt:   formatTimePtr(rec.ProcessedAt),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: json encode error: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// parsePagination extracts and validates limit/offset query parameters.
// Returns DefaultLimit if limit is not specified, and 0 for offset if not
// specified. Returns an error if limit exceeds MaxLimit or if values are
// negative/invalid.
func parsePagination(r *http.Request) (limit, offset int, err error) {
	limit = DefaultLimit
	offset = 0

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err = strconv.Atoi(limitStr)
		if err != nil {
			return 0, 0, err
		}
		if limit < 0 {
			return 0, 0, strconv.ErrRange
		}
		if limit > MaxLimit {
			return 0, 0, &limitExceededError{max: MaxLimit}
		}
		if limit == 0 {
			limit = DefaultLimit
		}
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		offset, err = strconv.Atoi(offsetStr)
		if err != nil {
			return 0, 0, err
		}
		if offset < 0 {
			return 0, 0, strconv.ErrRange
		}
	}

	return limit, offset, nil
}

type limitExceededError struct {
	max int
}

func (e *limitExceededError) Error() string {
	return "limit exceeds maximum of " + strconv.Itoa(e.max)
}
