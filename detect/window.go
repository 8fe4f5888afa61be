// Package detect implements the streaming anomaly detector: a per-key
// windowed statistics store, a rolling z-score classifier with debounce,
// and the alert emitter that hands results to the policy engine.
package detect

import (
	"errors"
	"math"
	"sync"
	"time"

	"ghostmesh/core"

	"go.uber.org/zap"
)

// ErrInsufficientData is returned by Snapshot when a window holds fewer
// than the minimum sample count. Not an error condition for the pipeline;
// it suppresses alerting for that observation.
var ErrInsufficientData = errors.New("insufficient data in window")

// Key identifies one statistics window.
type Key struct {
	EntityID string
	Signal   string
}

type point struct {
	ts    time.Time
	value float64
}

// window is a time-ordered bounded sequence of observations. Each window
// has its own lock so different keys never block each other.
type window struct {
	mu     sync.Mutex
	points []point
	// latest is the newest timestamp ever seen for this key. Pruning is
	// relative to it, not to wall clock, so delayed delivery stays correct.
	latest time.Time
}

// StoreConfig bounds each window in time and in count.
type StoreConfig struct {
	// Span is the trailing time covered by a window (W).
	Span time.Duration
	// MaxSamples caps the number of retained points per key regardless of
	// arrival rate, bounding memory under flooding.
	MaxSamples int
	// MinSamples is the count below which Snapshot reports insufficient
	// data.
	MinSamples int
}

// Store owns every statistics window, keyed by (entity, signal). It is an
// explicit handle, not ambient state: independent Stores can coexist.
type Store struct {
	mu      sync.RWMutex
	windows map[Key]*window
	cfg     StoreConfig
	logger  *zap.SugaredLogger
}

// NewStore creates a window store.
func NewStore(cfg StoreConfig, logger *zap.SugaredLogger) *Store {
	return &Store{
		windows: make(map[Key]*window),
		cfg:     cfg,
		logger:  logger,
	}
}

func (s *Store) getOrCreate(key Key) *window {
	s.mu.RLock()
	w, ok := s.windows[key]
	s.mu.RUnlock()
	if ok {
		return w
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.windows[key]; ok {
		return w
	}
	w = &window{}
	s.windows[key] = w
	return w
}

// Record appends an observation to the key's window, prunes points that
// fell out of the trailing span and evicts the oldest points beyond the
// per-key cap. Observations older than the span relative to the newest
// seen timestamp are non-contributing and silently skipped.
func (s *Store) Record(entityID, signal string, value float64, ts time.Time) {
	w := s.getOrCreate(Key{EntityID: entityID, Signal: signal})

	w.mu.Lock()
	defer w.mu.Unlock()

	if ts.After(w.latest) {
		w.latest = ts
	}
	cutoff := w.latest.Add(-s.cfg.Span)
	if ts.Before(cutoff) {
		s.logger.Debugw("Observation outside window, not contributing",
			"entity", entityID, "signal", signal, "ts", ts)
		return
	}

	// Insert preserving time order; out-of-order arrivals within the span
	// are rare, so scanning from the back is cheap.
	i := len(w.points)
	for i > 0 && w.points[i-1].ts.After(ts) {
		i--
	}
	w.points = append(w.points, point{})
	copy(w.points[i+1:], w.points[i:])
	w.points[i] = point{ts: ts, value: value}

	w.prune(cutoff, s.cfg.MaxSamples)
}

// prune drops points older than cutoff, then enforces the count cap by
// evicting the oldest. Caller holds w.mu.
func (w *window) prune(cutoff time.Time, maxSamples int) {
	i := 0
	for i < len(w.points) && w.points[i].ts.Before(cutoff) {
		i++
	}
	if i > 0 {
		w.points = w.points[:copy(w.points, w.points[i:])]
	}
	if n := len(w.points); n > maxSamples {
		w.points = w.points[:copy(w.points, w.points[n-maxSamples:])]
	}
}

// Snapshot computes mean, sample standard deviation and count over the
// key's current window. Returns ErrInsufficientData below the minimum
// sample count. Stale entries never contribute.
func (s *Store) Snapshot(entityID, signal string) (core.Snapshot, error) {
	s.mu.RLock()
	w, ok := s.windows[Key{EntityID: entityID, Signal: signal}]
	s.mu.RUnlock()
	if !ok {
		return core.Snapshot{}, ErrInsufficientData
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	n := len(w.points)
	if n < s.cfg.MinSamples || n < 2 {
		return core.Snapshot{Count: n}, ErrInsufficientData
	}

	var sum float64
	for _, p := range w.points {
		sum += p.value
	}
	mean := sum / float64(n)

	var sq float64
	for _, p := range w.points {
		d := p.value - mean
		sq += d * d
	}
	// Sample standard deviation (n-1 divisor).
	stddev := math.Sqrt(sq / float64(n-1))

	return core.Snapshot{Mean: mean, StdDev: stddev, Count: n}, nil
}

// Keys returns the currently tracked window keys, for the status API.
func (s *Store) Keys() []Key {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]Key, 0, len(s.windows))
	for k := range s.windows {
		keys = append(keys, k)
	}
	return keys
}
