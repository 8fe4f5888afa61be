package detect

import (
	"errors"
	"time"

	"ghostmesh/core"
	"ghostmesh/metrics"

	"go.uber.org/zap"
)

// Service is the detection hot path: record an observation, snapshot its
// window, classify, and emit. No disk or network I/O happens here.
type Service struct {
	store      *Store
	classifier *Classifier
	emitter    *Emitter
	logger     *zap.SugaredLogger
}

// NewService wires the detection pipeline.
func NewService(store *Store, classifier *Classifier, emitter *Emitter, logger *zap.SugaredLogger) *Service {
	return &Service{
		store:      store,
		classifier: classifier,
		emitter:    emitter,
		logger:     logger,
	}
}

// Process runs one observation through the pipeline. Failures are local to
// the observation's key; nothing here can affect another key.
func (s *Service) Process(obs core.Observation) {
	start := time.Now()
	defer func() {
		metrics.EvaluationDuration.Observe(time.Since(start).Seconds())
	}()

	s.store.Record(obs.EntityID, obs.Signal, obs.Value, obs.Timestamp)

	snap, err := s.store.Snapshot(obs.EntityID, obs.Signal)
	if err != nil {
		if errors.Is(err, ErrInsufficientData) {
			s.logger.Debugw("Insufficient data for evaluation",
				"entity", obs.EntityID, "signal", obs.Signal, "count", snap.Count)
			metrics.AlertsSuppressed.WithLabelValues("insufficient_data").Inc()
		}
		return
	}

	if alert := s.classifier.Evaluate(obs, snap); alert != nil {
		s.emitter.Emit(alert)
	}
}

// Stats exposes the window store to the status API.
func (s *Service) Stats(entityID, signal string) (core.Snapshot, error) {
	return s.store.Snapshot(entityID, signal)
}
