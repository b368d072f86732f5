package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// IntentHandler serves persisted intents and the audit log.
type IntentHandler struct {
	intents domain.IntentStore
	audit   domain.AuditStore
	logger  *slog.Logger
}

// NewIntentHandler creates the handler. Either store may be nil, in which
// case its endpoints answer 503.
func NewIntentHandler(intents domain.IntentStore, audit domain.AuditStore, logger *slog.Logger) *IntentHandler {
	return &IntentHandler{intents: intents, audit: audit, logger: logger.With(slog.String("handler", "intents"))}
}

// GetIntent returns one intent by correlation id.
// GET /api/intents/{id}
func (h *IntentHandler) GetIntent(w http.ResponseWriter, r *http.Request) {
	if h.intents == nil {
		writeError(w, http.StatusServiceUnavailable, "intent store disabled")
		return
	}
	rec, err := h.intents.GetByCorrelationID(r.Context(), r.PathValue("id"))
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "intent not found")
		return
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "get intent failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to load intent")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// ListReconciled lists reconciled intents, oldest first.
// GET /api/intents?since=&limit=&offset=
func (h *IntentHandler) ListReconciled(w http.ResponseWriter, r *http.Request) {
	if h.intents == nil {
		writeError(w, http.StatusServiceUnavailable, "intent store disabled")
		return
	}
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "since must be RFC 3339")
		return
	}
	recs, err := h.intents.ListReconciled(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list intents failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list intents")
		return
	}
	if recs == nil {
		recs = []domain.IntentRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// ListAudit lists audit entries, newest first.
// GET /api/audit?since=&limit=&offset=
func (h *IntentHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		writeError(w, http.StatusServiceUnavailable, "audit log disabled")
		return
	}
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "since must be RFC 3339")
		return
	}
	entries, err := h.audit.List(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list audit failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list audit entries")
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
