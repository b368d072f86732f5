package server_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/alanyoungcy/arbengine/internal/server"
	"github.com/alanyoungcy/arbengine/internal/server/handler"
)

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fixedHealth map[domain.Chain]domain.SequencerStatus

func (f fixedHealth) ChainHealth(c domain.Chain) domain.SequencerStatus {
	if s, ok := f[c]; ok {
		return s
	}
	return domain.SequencerUnknown
}

type memIntents struct {
	rec       domain.IntentRecord
	listOpts  domain.ListOpts
	reconcile []domain.IntentRecord
}

func (m *memIntents) Insert(context.Context, domain.TradeIntent, domain.EvaluationResult) error {
	return nil
}

func (m *memIntents) MarkReconciled(context.Context, string, domain.ExecutionReceipt) error {
	return nil
}

func (m *memIntents) GetByCorrelationID(_ context.Context, id string) (domain.IntentRecord, error) {
	if id != m.rec.Intent.CorrelationID {
		return domain.IntentRecord{}, domain.ErrNotFound
	}
	return m.rec, nil
}

func (m *memIntents) ListReconciled(_ context.Context, opts domain.ListOpts) ([]domain.IntentRecord, error) {
	m.listOpts = opts
	return m.reconcile, nil
}

type denyAll struct{}

func (denyAll) Allow(context.Context, string, int, time.Duration) (bool, error) { return false, nil }

func newServer(t *testing.T, cfg server.Config, intents domain.IntentStore) http.Handler {
	t.Helper()
	calib := domain.NewCalibrationState(0.9)
	calib.Version = 7
	srv := server.NewServer(cfg, server.Handlers{
		Health: handler.NewHealthHandler(fixedHealth{"base": domain.SequencerDown, "arbitrum": domain.SequencerHealthy},
			[]domain.Chain{"arbitrum", "base"}),
		Status: handler.NewStatusHandler("live",
			func() any { return map[string]int{"emitted": 3} },
			func() *domain.CalibrationState { return calib }),
		Intents: handler.NewIntentHandler(intents, nil, discardLogger()),
	}, discardLogger())
	return srv.Handler()
}

func get(h http.Handler, path string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealth_ReportsDegradedChains(t *testing.T) {
	h := newServer(t, server.Config{APIKey: "secret"}, nil)

	rec := get(h, "/api/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, map[string]any{"arbitrum": "healthy", "base": "down"}, body["chains"])
}

func TestAuth(t *testing.T) {
	h := newServer(t, server.Config{APIKey: "secret"}, nil)

	assert.Equal(t, http.StatusUnauthorized, get(h, "/api/status", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, get(h, "/api/status", map[string]string{"X-API-Key": "wrong"}).Code)

	rec := get(h, "/api/status", map[string]string{"Authorization": "Bearer secret"})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "live", body["mode"])
	assert.Equal(t, map[string]any{"emitted": float64(3)}, body["stats"])
}

func TestCalibration(t *testing.T) {
	h := newServer(t, server.Config{}, nil)
	rec := get(h, "/api/calibration", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.InDelta(t, 7, decode(t, rec)["version"], 0)
}

func TestIntents(t *testing.T) {
	intents := &memIntents{rec: domain.IntentRecord{Intent: domain.TradeIntent{CorrelationID: "abc", Strategy: "dex_arb"}}}
	h := newServer(t, server.Config{}, intents)

	rec := get(h, "/api/intents/abc", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"dex_arb"`)

	assert.Equal(t, http.StatusNotFound, get(h, "/api/intents/missing", nil).Code)

	rec = get(h, "/api/intents?limit=9999&offset=5&since=2026-03-02T00:00:00Z", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
	assert.Equal(t, 500, intents.listOpts.Limit)
	assert.Equal(t, 5, intents.listOpts.Offset)
	require.NotNil(t, intents.listOpts.Since)

	assert.Equal(t, http.StatusBadRequest, get(h, "/api/intents?since=yesterday", nil).Code)
}

func TestDisabledStores(t *testing.T) {
	h := newServer(t, server.Config{}, nil)
	assert.Equal(t, http.StatusServiceUnavailable, get(h, "/api/intents/abc", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(h, "/api/audit", nil).Code)
}

func TestRateLimitAndCORS(t *testing.T) {
	h := newServer(t, server.Config{Limiter: denyAll{}, RateLimit: 1, RateWindow: time.Second, CORSOrigins: []string{"https://ops.example"}}, nil)

	assert.Equal(t, http.StatusTooManyRequests, get(h, "/api/status", nil).Code)
	assert.Equal(t, http.StatusOK, get(h, "/api/health", nil).Code)

	rec := get(h, "/api/health", map[string]string{"Origin": "https://ops.example"})
	assert.Equal(t, "https://ops.example", rec.Header().Get("Access-Control-Allow-Origin"))
	rec = get(h, "/api/health", map[string]string{"Origin": "https://evil.example"})
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
