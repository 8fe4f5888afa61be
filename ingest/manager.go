package ingest

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"

	"ghostmesh/bus"
	"ghostmesh/core"
	"ghostmesh/detect"
	"ghostmesh/metrics"
	"ghostmesh/policy"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ManagerConfig holds the ingest pipeline settings.
type ManagerConfig struct {
	// TelemetryFilter is the subscription filter for telemetry topics.
	TelemetryFilter string
	// ControlFilter is the subscription filter for control topics.
	ControlFilter string
	// Encoding selects the telemetry payload codec.
	Encoding string
	// RateLimit caps accepted observations per second across all keys.
	RateLimit int
	// WorkerCount is the number of shard workers. Observations for one
	// entity/signal key always land on the same shard, preserving per-key
	// order while keys spread across workers.
	WorkerCount int
	// ShardBufferSize is each shard channel's capacity. A full shard drops
	// the observation rather than blocking the bus callback.
	ShardBufferSize int
}

// Manager subscribes to the inbound topics, parses and validates messages,
// and dispatches them: observations to the detection service via sharded
// workers, commands directly to the policy engine.
type Manager struct {
	cfg     ManagerConfig
	decoder Decoder
	limiter *rate.Limiter

	service *detect.Service
	engine  *policy.Engine

	shards []chan core.Observation
	wg     sync.WaitGroup

	// stopMu fences bus callbacks against shard close during Stop.
	stopMu   sync.RWMutex
	stopped  atomic.Bool
	stopOnce sync.Once
	logger   *zap.SugaredLogger
}

// NewManager creates the ingest manager.
func NewManager(cfg ManagerConfig, service *detect.Service, engine *policy.Engine, logger *zap.SugaredLogger) (*Manager, error) {
	decoder, err := DecoderFor(cfg.Encoding)
	if err != nil {
		return nil, err
	}

	shards := make([]chan core.Observation, cfg.WorkerCount)
	for i := range shards {
		shards[i] = make(chan core.Observation, cfg.ShardBufferSize)
	}

	return &Manager{
		cfg:     cfg,
		decoder: decoder,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimit),
		service: service,
		engine:  engine,
		shards:  shards,
		logger:  logger,
	}, nil
}

// Start launches the shard workers and subscribes to the inbound topics.
func (m *Manager) Start(sub bus.Subscriber) error {
	for i, shard := range m.shards {
		m.wg.Add(1)
		go m.worker(i, shard)
	}

	if err := sub.Subscribe(m.cfg.TelemetryFilter, m.handleTelemetry); err != nil {
		return err
	}
	if err := sub.Subscribe(m.cfg.ControlFilter, m.handleControl); err != nil {
		return err
	}

	m.logger.Infow("Ingest started",
		"telemetry_filter", m.cfg.TelemetryFilter,
		"control_filter", m.cfg.ControlFilter,
		"encoding", m.cfg.Encoding,
		"workers", m.cfg.WorkerCount)
	return nil
}

// Stop closes the shards and waits for the workers to drain. Bus callbacks
// arriving after Stop are discarded.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		m.stopMu.Lock()
		m.stopped.Store(true)
		for _, shard := range m.shards {
			close(shard)
		}
		m.stopMu.Unlock()
	})
	m.wg.Wait()
}

func (m *Manager) worker(id int, shard <-chan core.Observation) {
	defer m.wg.Done()
	for obs := range shard {
		m.service.Process(obs)
	}
	m.logger.Debugw("Shard worker stopped", "worker", id)
}

// handleTelemetry runs on the bus client's callback goroutine; it must not
// block, so a full shard drops the observation with a metric.
func (m *Manager) handleTelemetry(topic string, payload []byte) {
	if m.stopped.Load() {
		return
	}
	obs, err := ParseTelemetry(topic, payload, m.decoder)
	if err != nil {
		metrics.MalformedMessages.WithLabelValues("telemetry").Inc()
		m.logger.Warnw("Dropped malformed telemetry", "topic", topic, "error", err)
		return
	}

	if obs.Quality != "" && obs.Quality != core.QualityGood {
		m.logger.Debugw("Observation with degraded quality",
			"entity", obs.EntityID, "signal", obs.Signal, "quality", obs.Quality)
	}

	if !m.limiter.Allow() {
		metrics.ObservationsDropped.WithLabelValues("rate_limited").Inc()
		return
	}

	metrics.ObservationsIngested.WithLabelValues(quality(obs.Quality)).Inc()

	m.stopMu.RLock()
	defer m.stopMu.RUnlock()
	if m.stopped.Load() {
		return
	}

	shard := m.shards[m.shardFor(obs.EntityID, obs.Signal)]
	select {
	case shard <- *obs:
	default:
		metrics.ObservationsDropped.WithLabelValues("queue_full").Inc()
		m.logger.Warnw("Dropped observation, shard queue full",
			"entity", obs.EntityID, "signal", obs.Signal)
	}
}

// handleControl applies operator commands synchronously: control traffic is
// rare and the audit trail must reflect arrival order.
func (m *Manager) handleControl(topic string, payload []byte) {
	if m.stopped.Load() {
		return
	}
	cmd, err := ParseCommand(topic, payload)
	if err != nil {
		metrics.MalformedMessages.WithLabelValues("control").Inc()
		m.logger.Warnw("Dropped malformed command", "topic", topic, "error", err)
		return
	}
	m.engine.HandleCommand(context.Background(), cmd)
}

func (m *Manager) shardFor(entityID, signal string) int {
	h := fnv.New32a()
	h.Write([]byte(entityID))
	h.Write([]byte{0})
	h.Write([]byte(signal))
	return int(h.Sum32() % uint32(len(m.shards)))
}

func quality(q string) string {
	if q == "" {
		return "unknown"
	}
	return q
}
