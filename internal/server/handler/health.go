package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// ChainHealth reports one chain's sequencer status.
type ChainHealth interface {
	ChainHealth(chain domain.Chain) domain.SequencerStatus
}

// HealthHandler serves the liveness check and per-chain sequencer health.
type HealthHandler struct {
	health  ChainHealth
	chains  []domain.Chain
	started time.Time
}

// NewHealthHandler reports on the given chains. health may be nil.
func NewHealthHandler(health ChainHealth, chains []domain.Chain) *HealthHandler {
	return &HealthHandler{health: health, chains: chains, started: time.Now()}
}

// HealthCheck reports "ok" when no watched chain is down and "degraded"
// otherwise. It always answers 200 since the process itself is alive.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	chains := make(map[string]domain.SequencerStatus, len(h.chains))
	if h.health != nil {
		for _, c := range h.chains {
			s := h.health.ChainHealth(c)
			chains[string(c)] = s
			if s == domain.SequencerDown || s == domain.SequencerDegraded {
				status = "degraded"
			}
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    status,
		"chains":    chains,
		"uptime":    time.Since(h.started).Round(time.Second).String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
