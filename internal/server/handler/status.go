package handler

import (
	"net/http"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// StatusFunc returns a JSON-serialisable snapshot of runtime counters.
type StatusFunc func() any

// StatusHandler serves the mode, runtime counters and calibration state.
type StatusHandler struct {
	mode        string
	status      StatusFunc
	calibration func() *domain.CalibrationState
}

// NewStatusHandler creates a status handler. Either func may be nil.
func NewStatusHandler(mode string, status StatusFunc, calibration func() *domain.CalibrationState) *StatusHandler {
	return &StatusHandler{mode: mode, status: status, calibration: calibration}
}

// GetStatus responds with the mode and the current counters.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"mode": h.mode}
	if h.status != nil {
		body["stats"] = h.status()
	}
	writeJSON(w, http.StatusOK, body)
}

// GetCalibration responds with the live calibration state.
// GET /api/calibration
func (h *StatusHandler) GetCalibration(w http.ResponseWriter, r *http.Request) {
	if h.calibration == nil {
		writeError(w, http.StatusNotFound, "calibration unavailable")
		return
	}
	writeJSON(w, http.StatusOK, h.calibration())
}
