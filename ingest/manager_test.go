package ingest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"ghostmesh/bus"
	"ghostmesh/core"
	"ghostmesh/detect"
	"ghostmesh/policy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type passEnforcer struct{}

func (passEnforcer) Apply(ctx context.Context, entityID string, target core.EntityState, action core.Action) error {
	return nil
}

type testPipeline struct {
	manager  *Manager
	engine   *policy.Engine
	recorder *policy.Recorder
	alerts   *bus.MockPublisher
	sub      *bus.MockSubscriber
}

func newTestPipeline(t *testing.T) *testPipeline {
	t.Helper()
	logger := zap.NewNop().Sugar()

	recorder := policy.NewRecorder(100, nil, logger)
	engine, err := policy.NewEngine(policy.EngineConfig{
		EnforcementTimeout: time.Second,
		CircuitBreaker:     core.DefaultCircuitBreakerConfig(),
	}, passEnforcer{}, recorder, logger)
	require.NoError(t, err)

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

	alerts := bus.NewMockPublisher()
	pub := &alertAdapter{pub: alerts}
	emitter := detect.NewEmitter(pub, engine, logger)
	service := detect.NewService(store, classifier, emitter, logger)

	manager, err := NewManager(ManagerConfig{
		TelemetryFilter: "factory/+/+/+",
		ControlFilter:   "control/#",
		Encoding:        "json",
		RateLimit:       10000,
		WorkerCount:     2,
		ShardBufferSize: 256,
	}, service, engine, logger)
	require.NoError(t, err)

	sub := bus.NewMockSubscriber()
	require.NoError(t, manager.Start(sub))

	return &testPipeline{
		manager:  manager,
		engine:   engine,
		recorder: recorder,
		alerts:   alerts,
		sub:      sub,
	}
}

// alertAdapter publishes alerts on the raw mock bus so the test can inspect
// topics without pulling in the full outward publisher.
type alertAdapter struct {
	pub *bus.MockPublisher
}

func (a *alertAdapter) PublishAlert(alert *core.Alert) error {
	topic := fmt.Sprintf("alerts/%s/%s", alert.EntityID, alert.Signal)
	return a.pub.Publish(topic, true, []byte(alert.AlertID))
}

func telemetryPayloadAt(value float64, ts time.Time) []byte {
	return []byte(fmt.Sprintf(`{"value": %g, "ts": %q}`, value, ts.Format(time.RFC3339)))
}

func TestManagerEndToEndSpikeIsolates(t *testing.T) {
	p := newTestPipeline(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Steady baseline, then a spike large enough to clear the high
	// threshold with the spike included in its own window statistics.
	for i := 0; i < 70; i++ {
		p.sub.Inject("factory/+/+/+", "factory/lineA/press01/temperature",
			telemetryPayloadAt(50.0, base.Add(time.Duration(i)*time.Second)))
	}
	p.sub.Inject("factory/+/+/+", "factory/lineA/press01/temperature",
		telemetryPayloadAt(500.0, base.Add(70*time.Second)))

	// Stop drains the shard workers so everything injected is processed.
	p.manager.Stop()

	assert.Equal(t, core.StateIsolated, p.engine.State("press01"))
	assert.Len(t, p.alerts.MessagesFor("alerts/press01/temperature"), 1)

	entries := p.recorder.Tail(0)
	require.Len(t, entries, 1)
	assert.Equal(t, core.ActionIsolate, entries[0].Action)
	assert.Equal(t, core.ResultSuccess, entries[0].Result)
}

func TestManagerRoutesCommands(t *testing.T) {
	p := newTestPipeline(t)
	defer p.manager.Stop()

	ok := p.sub.Inject("control/#", "control/press01/throttle", []byte(`{"reason": "maintenance"}`))
	require.True(t, ok)

	// Commands are handled synchronously on the bus callback.
	assert.Equal(t, core.StateThrottled, p.engine.State("press01"))
	assert.Equal(t, 1, p.recorder.Len())
}

func TestManagerDropsMalformedWithoutSideEffects(t *testing.T) {
	p := newTestPipeline(t)
	defer p.manager.Stop()

	p.sub.Inject("factory/+/+/+", "factory/lineA/press01/temperature", []byte(`not json`))
	p.sub.Inject("factory/+/+/+", "factory/press01/temperature", []byte(`{"value":1,"ts":1}`))
	p.sub.Inject("control/#", "control/press01", []byte(`{}`))

	assert.Equal(t, core.StateNormal, p.engine.State("press01"))
	assert.Equal(t, 0, p.recorder.Len())
	assert.Empty(t, p.alerts.Messages())
}

func TestManagerPreservesPerKeyOrder(t *testing.T) {
	p := newTestPipeline(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Interleave two keys; each key's observations must be processed in
	// order so the debounce and window semantics hold.
	for i := 0; i < 30; i++ {
		p.sub.Inject("factory/+/+/+", "factory/lineA/press01/temperature",
			telemetryPayloadAt(50.0+float64(i%3), base.Add(time.Duration(i)*time.Second)))
		p.sub.Inject("factory/+/+/+", "factory/lineA/pump02/vibration",
			telemetryPayloadAt(1.0, base.Add(time.Duration(i)*time.Second)))
	}

	p.manager.Stop()

	// Nothing anomalous was injected: both keys stay quiet and Normal.
	assert.Empty(t, p.alerts.Messages())
	assert.Equal(t, core.StateNormal, p.engine.State("press01"))
	assert.Equal(t, core.StateNormal, p.engine.State("pump02"))
}

func TestManagerStopIsIdempotent(t *testing.T) {
	p := newTestPipeline(t)

	p.manager.Stop()
	p.manager.Stop()

	// Callbacks after Stop are discarded, not a panic.
	p.sub.Inject("factory/+/+/+", "factory/lineA/press01/temperature",
		telemetryPayloadAt(50.0, time.Now()))
}
