package policy

import (
	"context"
	"sync"

	"ghostmesh/core"

	"go.uber.org/zap"
)

// Enforcer is the enforcement side-effect hook: the mechanism that actually
// restricts an entity's traffic. The core only emits the decision; the
// physical mechanism (broker ACLs, nftables, traffic control) lives behind
// this interface. Implementations must honor the context deadline.
type Enforcer interface {
	Apply(ctx context.Context, entityID string, target core.EntityState, action core.Action) error
}

// IntentPublisher publishes a retained enforcement intent so the gateway
// layer (and late subscribers) can see the desired posture of each entity.
type IntentPublisher interface {
	PublishIntent(entityID string, target core.EntityState, action core.Action) error
}

// AppLayerEnforcer simulates the network restriction at the application
// layer and publishes the intent outward. This is the default hook for
// edge deployments where the broker's authorization layer performs the
// actual blocking based on the published intents.
type AppLayerEnforcer struct {
	mu      sync.RWMutex
	applied map[string]core.EntityState

	intents IntentPublisher
	logger  *zap.SugaredLogger
}

// NewAppLayerEnforcer creates the app-layer enforcer. intents may be nil
// when no gateway consumes them (tests, standalone runs).
func NewAppLayerEnforcer(intents IntentPublisher, logger *zap.SugaredLogger) *AppLayerEnforcer {
	return &AppLayerEnforcer{
		applied: make(map[string]core.EntityState),
		intents: intents,
		logger:  logger,
	}
}

// Apply records the restriction and publishes the intent. The intent
// publish participates in the hook outcome: an unreachable bus means the
// restriction cannot take effect, which must surface as a failed
// transition.
func (a *AppLayerEnforcer) Apply(ctx context.Context, entityID string, target core.EntityState, action core.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if a.intents != nil {
		if err := a.intents.PublishIntent(entityID, target, action); err != nil {
			return err
		}
	}

	a.mu.Lock()
	a.applied[entityID] = target
	a.mu.Unlock()

	switch target {
	case core.StateIsolated:
		a.logger.Infow("Entity isolated, all traffic blocked", "entity", entityID)
	case core.StateThrottled:
		a.logger.Infow("Entity throttled, traffic rate limited", "entity", entityID)
	case core.StateNormal:
		a.logger.Infow("Entity unblocked, normal traffic restored", "entity", entityID)
	}
	return nil
}

// Applied returns the last restriction applied for an entity, for tests
// and the status API.
func (a *AppLayerEnforcer) Applied(entityID string) (core.EntityState, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s, ok := a.applied[entityID]
	return s, ok
}
