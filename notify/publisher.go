// Package notify publishes the core's outward messages on the bus: alerts,
// audit entries and enforcement intents. All delivery here is best-effort;
// callers decide whether a publish failure matters.
package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"ghostmesh/bus"
	"ghostmesh/core"
)

// Topics names the outward topic layout.
type Topics struct {
	// AlertPrefix roots alerts/<asset>/<signal>.
	AlertPrefix string
	// Audit is the retained audit trail topic.
	Audit string
	// EnforcePrefix roots enforce/<asset> intent topics.
	EnforcePrefix string
}

// Publisher serializes and publishes alerts, audit entries and enforcement
// intents. Alerts and audit entries are retained so late subscribers (the
// dashboard, the explainer) see the latest state.
type Publisher struct {
	pub    bus.Publisher
	topics Topics
}

// NewPublisher creates an outward publisher.
func NewPublisher(pub bus.Publisher, topics Topics) *Publisher {
	return &Publisher{pub: pub, topics: topics}
}

// PublishAlert publishes an alert to alerts/<asset>/<signal>, retained.
func (p *Publisher) PublishAlert(alert *core.Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}
	topic := fmt.Sprintf("%s/%s/%s", p.topics.AlertPrefix, alert.EntityID, alert.Signal)
	return p.pub.Publish(topic, true, payload)
}

// PublishAudit forwards an audit entry to the retained audit topic.
func (p *Publisher) PublishAudit(entry core.AuditEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}
	return p.pub.Publish(p.topics.Audit, true, payload)
}

// intentMessage is the wire form of an enforcement intent.
type intentMessage struct {
	EntityID  string           `json:"entityId"`
	State     core.EntityState `json:"state"`
	Action    core.Action      `json:"action"`
	Timestamp time.Time        `json:"timestamp"`
}

// PublishIntent publishes the desired posture for an entity to
// enforce/<asset>, retained, so the gateway layer can apply it.
func (p *Publisher) PublishIntent(entityID string, target core.EntityState, action core.Action) error {
	payload, err := json.Marshal(intentMessage{
		EntityID:  entityID,
		State:     target,
		Action:    action,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal enforcement intent: %w", err)
	}
	topic := fmt.Sprintf("%s/%s", p.topics.EnforcePrefix, entityID)
	return p.pub.Publish(topic, true, payload)
}
