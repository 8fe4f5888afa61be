package detect

import (
	"time"

	"ghostmesh/core"
	"ghostmesh/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AlertPublisher publishes an alert outward on the bus.
type AlertPublisher interface {
	PublishAlert(alert *core.Alert) error
}

// PolicyHandler receives alerts synchronously, in-process. The policy
// engine registers here so the classifier stays ignorant of policy rules.
type PolicyHandler interface {
	HandleAlert(alert *core.Alert)
}

// Emitter materializes alert records. The outward publish is best-effort:
// a broker failure must never block or fail the policy hand-off.
type Emitter struct {
	publisher AlertPublisher
	policy    PolicyHandler
	logger    *zap.SugaredLogger
}

// NewEmitter creates an alert emitter.
func NewEmitter(publisher AlertPublisher, policy PolicyHandler, logger *zap.SugaredLogger) *Emitter {
	return &Emitter{
		publisher: publisher,
		policy:    policy,
		logger:    logger,
	}
}

// Emit assigns the alert its identity and timestamp, publishes it outward
// and hands it to the policy engine. The in-process hand-off is guaranteed;
// outward delivery is not.
func (e *Emitter) Emit(alert *core.Alert) {
	alert.AlertID = "a-" + uuid.NewString()
	alert.Timestamp = time.Now().UTC()

	metrics.AlertsGenerated.WithLabelValues(string(alert.Severity)).Inc()

	if err := e.publisher.PublishAlert(alert); err != nil {
		metrics.AlertPublishFailures.Inc()
		e.logger.Errorw("Failed to publish alert outward",
			"alert_id", alert.AlertID, "entity", alert.EntityID, "error", err)
	}

	e.policy.HandleAlert(alert)
}
