package detect

import (
	"fmt"
	"math"
	"time"

	"ghostmesh/core"
	"ghostmesh/metrics"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// Suppression reasons, used for logging and metrics labels.
const (
	suppressZeroVariance = "zero_variance"
	suppressDebounced    = "debounced"
)

// ClassifierConfig holds the severity thresholds and debounce settings.
type ClassifierConfig struct {
	MediumThreshold float64
	HighThreshold   float64
	// Debounce is the minimum event-time gap between alerts for one key.
	Debounce time.Duration
	// DebounceCacheSize bounds the number of remembered last-alert times.
	// Eviction of a cold key can at worst re-allow an alert early; it can
	// never suppress one that should fire.
	DebounceCacheSize int
	// Window is the statistics window span, echoed into alert records.
	Window time.Duration
}

// Classifier turns an observation plus its window statistics into an alert
// candidate, applying severity thresholds and per-key debounce.
type Classifier struct {
	cfg       ClassifierConfig
	lastAlert *lru.Cache[Key, time.Time]
	logger    *zap.SugaredLogger
}

// NewClassifier creates a classifier.
func NewClassifier(cfg ClassifierConfig, logger *zap.SugaredLogger) (*Classifier, error) {
	cache, err := lru.New[Key, time.Time](cfg.DebounceCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create debounce cache: %w", err)
	}
	return &Classifier{
		cfg:       cfg,
		lastAlert: cache,
		logger:    logger,
	}, nil
}

// Evaluate classifies one observation against its statistics snapshot.
// Returns nil when no alert should be emitted. The debounce record is
// mutated only on emission, never on suppression.
//
// The debounce is hard and non-escalating: a later high-severity event
// inside the window is dropped entirely, it does not upgrade anything.
// Downstream consumers depend on this suppression semantic.
func (c *Classifier) Evaluate(obs core.Observation, snap core.Snapshot) *core.Alert {
	key := Key{EntityID: obs.EntityID, Signal: obs.Signal}

	if snap.StdDev == 0 {
		c.logger.Debugw("Degenerate variance, alerting suppressed",
			"entity", obs.EntityID, "signal", obs.Signal, "count", snap.Count)
		metrics.AlertsSuppressed.WithLabelValues(suppressZeroVariance).Inc()
		return nil
	}

	z := (obs.Value - snap.Mean) / snap.StdDev
	severity, ok := c.severityFor(math.Abs(z))
	if !ok {
		return nil
	}

	if last, seen := c.lastAlert.Get(key); seen && obs.Timestamp.Sub(last) < c.cfg.Debounce {
		c.logger.Debugw("Alert debounced",
			"entity", obs.EntityID, "signal", obs.Signal,
			"zscore", z, "severity", severity, "last_alert", last)
		metrics.AlertsSuppressed.WithLabelValues(suppressDebounced).Inc()
		return nil
	}

	windowSeconds := int(c.cfg.Window / time.Second)
	alert := &core.Alert{
		EntityID:      obs.EntityID,
		Signal:        obs.Signal,
		Severity:      severity,
		ZScore:        z,
		Mean:          snap.Mean,
		StdDev:        snap.StdDev,
		WindowSeconds: windowSeconds,
		Current:       obs.Value,
		Reason: fmt.Sprintf("z-score %.1f vs mean %.1f±%.1f (%ds)",
			math.Abs(z), snap.Mean, snap.StdDev, windowSeconds),
	}

	c.lastAlert.Add(key, obs.Timestamp)

	c.logger.Infow("Anomaly detected",
		"entity", obs.EntityID, "signal", obs.Signal,
		"zscore", z, "severity", severity, "value", obs.Value)
	return alert
}

func (c *Classifier) severityFor(absZ float64) (core.Severity, bool) {
	switch {
	case absZ >= c.cfg.HighThreshold:
		return core.SeverityHigh, true
	case absZ >= c.cfg.MediumThreshold:
		return core.SeverityMedium, true
	default:
		return "", false
	}
}
