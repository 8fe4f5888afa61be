package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ghostmesh/core"
	"ghostmesh/detect"
	"ghostmesh/policy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type okEnforcer struct{}

func (okEnforcer) Apply(ctx context.Context, entityID string, target core.EntityState, action core.Action) error {
	return nil
}

func testServer(t *testing.T) (*Server, *detect.Store, *policy.Engine, *policy.Recorder) {
	t.Helper()
	logger := zap.NewNop().Sugar()

	store := detect.NewStore(detect.StoreConfig{
		Span:       120 * time.Second,
		MaxSamples: 100,
		MinSamples: 10,
	}, logger)
	classifier, err := detect.NewClassifier(detect.ClassifierConfig{
		MediumThreshold:   4.0,
		HighThreshold:     8.0,
		Debounce:          30 * time.Second,
		DebounceCacheSize: 64,
		Window:            120 * time.Second,
	}, logger)
	require.NoError(t, err)

	recorder := policy.NewRecorder(100, nil, logger)
	engine, err := policy.NewEngine(policy.EngineConfig{
		EnforcementTimeout: time.Second,
		CircuitBreaker:     core.DefaultCircuitBreakerConfig(),
	}, okEnforcer{}, recorder, logger)
	require.NoError(t, err)

	emitter := detect.NewEmitter(nopAlertPublisher{}, engine, logger)
	service := detect.NewService(store, classifier, emitter, logger)

	server := NewServer(ServerConfig{Host: "127.0.0.1", Port: 0}, service, engine, recorder, logger)
	return server, store, engine, recorder
}

type nopAlertPublisher struct{}

func (nopAlertPublisher) PublishAlert(alert *core.Alert) error { return nil }

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	server, _, _, _ := testServer(t)

	rec := get(t, server.Handler(), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	server, _, _, _ := testServer(t)

	rec := get(t, server.Handler(), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ghostmesh_")
}

func TestPolicyStatusEndpoint(t *testing.T) {
	server, _, engine, _ := testServer(t)

	engine.Apply(context.Background(), "press01", core.ActionIsolate, "operator_action", "")

	rec := get(t, server.Handler(), "/api/v1/policy/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Entities map[string]string `json:"entities"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "isolated", body.Entities["press01"])
}

func TestAuditEndpoint(t *testing.T) {
	server, _, engine, _ := testServer(t)

	engine.Apply(context.Background(), "press01", core.ActionThrottle, "operator_action", "")
	engine.Apply(context.Background(), "pump02", core.ActionIsolate, "operator_action", "")

	rec := get(t, server.Handler(), "/api/v1/audit?limit=1")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Count   int               `json:"count"`
		Entries []core.AuditEntry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
	require.Len(t, body.Entries, 1)
	assert.Equal(t, "pump02", body.Entries[0].EntityID)
}

func TestAuditEndpointRejectsBadLimit(t *testing.T) {
	server, _, _, _ := testServer(t)

	rec := get(t, server.Handler(), "/api/v1/audit?limit=zero")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = get(t, server.Handler(), "/api/v1/audit?limit=-3")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatsEndpoint(t *testing.T) {
	server, store, _, _ := testServer(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	rec := get(t, server.Handler(), "/api/v1/stats/press01/temperature")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	for i := 0; i < 12; i++ {
		store.Record("press01", "temperature", 50.0+float64(i%2), base.Add(time.Duration(i)*time.Second))
	}

	rec = get(t, server.Handler(), "/api/v1/stats/press01/temperature")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		EntityID string  `json:"entityId"`
		Metric   string  `json:"metric"`
		Mean     float64 `json:"mean"`
		Count    int     `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "press01", body.EntityID)
	assert.Equal(t, "temperature", body.Metric)
	assert.Equal(t, 12, body.Count)
	assert.InDelta(t, 50.5, body.Mean, 1e-9)
}
