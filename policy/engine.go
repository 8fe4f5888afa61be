// Package policy holds the enforcement state machine and its audit trail.
// Every entity has a posture (normal, throttled, isolated); alerts and
// operator commands funnel through one transition function that invokes the
// enforcement hook before committing state and audits every attempt.
package policy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ghostmesh/core"
	"ghostmesh/metrics"

	"go.uber.org/zap"
)

// EngineConfig holds the policy engine settings.
type EngineConfig struct {
	// EnforcementTimeout bounds each enforcement hook invocation. A timeout
	// is treated as a hook failure: state is not committed.
	EnforcementTimeout time.Duration
	// CircuitBreaker protects a persistently failing enforcement mechanism
	// from being hammered. An open circuit surfaces as a failed transition;
	// there is no automatic retry.
	CircuitBreaker core.CircuitBreakerConfig
}

// Result reports the outcome of one transition attempt.
type Result struct {
	Result   core.AuditResult
	Previous core.EntityState
	Current  core.EntityState
	Details  string
}

type entityRecord struct {
	mu    sync.Mutex
	state core.EntityState
}

// Engine is the single owner of per-entity enforcement state. Each entity
// record carries its own lock: same-entity operations serialize, different
// entities never block each other, and locks never nest across entities.
type Engine struct {
	mu       sync.RWMutex
	entities map[string]*entityRecord

	enforcer Enforcer
	recorder *Recorder
	breaker  *core.CircuitBreaker
	timeout  time.Duration
	logger   *zap.SugaredLogger
}

// NewEngine creates a policy engine.
func NewEngine(cfg EngineConfig, enforcer Enforcer, recorder *Recorder, logger *zap.SugaredLogger) (*Engine, error) {
	breaker, err := core.NewCircuitBreaker(cfg.CircuitBreaker)
	if err != nil {
		return nil, fmt.Errorf("failed to create enforcement circuit breaker: %w", err)
	}
	return &Engine{
		entities: make(map[string]*entityRecord),
		enforcer: enforcer,
		recorder: recorder,
		breaker:  breaker,
		timeout:  cfg.EnforcementTimeout,
		logger:   logger,
	}, nil
}

func (e *Engine) record(entityID string) *entityRecord {
	e.mu.RLock()
	rec, ok := e.entities[entityID]
	e.mu.RUnlock()
	if ok {
		return rec
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if rec, ok := e.entities[entityID]; ok {
		return rec
	}
	// Entities default to Normal on first reference and are never deleted,
	// only transitioned.
	rec = &entityRecord{state: core.StateNormal}
	e.entities[entityID] = rec
	return rec
}

// targetState maps an action applied in a given state to the resulting
// state. ok=false means the action verb itself is unsupported; errInvalid
// reports a structurally valid action that has no transition from the
// current state (isolated -> throttle: demotion passes through unblock).
func targetState(current core.EntityState, action core.Action) (target core.EntityState, ok bool, errInvalid error) {
	switch action {
	case core.ActionIsolate:
		return core.StateIsolated, true, nil
	case core.ActionThrottle:
		if current == core.StateIsolated {
			return current, true, fmt.Errorf("no isolated->throttled demotion: unblock first")
		}
		return core.StateThrottled, true, nil
	case core.ActionUnblock:
		return core.StateNormal, true, nil
	default:
		return current, false, nil
	}
}

// Apply attempts one transition. Exactly one audit entry is produced per
// call regardless of outcome. State is committed only after the enforcement
// hook succeeds; on failure or timeout the prior state stands.
func (e *Engine) Apply(ctx context.Context, entityID string, action core.Action, reason, refAlertID string) Result {
	rec := e.record(entityID)

	rec.mu.Lock()
	defer rec.mu.Unlock()

	current := rec.state
	target, ok, errInvalid := targetState(current, action)

	if !ok {
		details := fmt.Sprintf("unsupported action: %s", action)
		e.audit(entityID, action, core.ResultValidationError, details)
		e.logger.Warnw("Rejected command", "entity", entityID, "action", action, "reason", reason)
		return Result{Result: core.ResultValidationError, Previous: current, Current: current, Details: details}
	}
	if errInvalid != nil {
		details := errInvalid.Error()
		e.audit(entityID, action, core.ResultValidationError, details)
		e.logger.Warnw("Rejected transition", "entity", entityID, "action", action, "state", current, "details", details)
		return Result{Result: core.ResultValidationError, Previous: current, Current: current, Details: details}
	}

	if err := e.breaker.Allow(); err != nil {
		details := fmt.Sprintf("enforcement unavailable: %v", err)
		e.audit(entityID, action, core.ResultFailed, details)
		metrics.EnforcementFailures.Inc()
		e.logger.Errorw("Enforcement circuit open", "entity", entityID, "action", action)
		return Result{Result: core.ResultFailed, Previous: current, Current: current, Details: details}
	}

	// The hook is re-invoked even for no-op transitions so an idempotent
	// re-application re-asserts the restriction at the mechanism layer.
	hctx, cancel := context.WithTimeout(ctx, e.timeout)
	err := e.enforcer.Apply(hctx, entityID, target, action)
	cancel()

	if err != nil {
		e.breaker.RecordFailure()
		details := fmt.Sprintf("enforcement failed: %v", err)
		e.audit(entityID, action, core.ResultFailed, details)
		metrics.EnforcementFailures.Inc()
		metrics.PolicyTransitions.WithLabelValues(string(action), string(core.ResultFailed)).Inc()
		e.logger.Errorw("Enforcement hook failed",
			"entity", entityID, "action", action, "error", err)
		return Result{Result: core.ResultFailed, Previous: current, Current: current, Details: details}
	}

	e.breaker.RecordSuccess()
	rec.state = target

	details := fmt.Sprintf("action %s executed for %s (reason=%s", action, entityID, reason)
	if refAlertID != "" {
		details += ", ref=" + refAlertID
	}
	details += ")"

	e.audit(entityID, action, core.ResultSuccess, details)
	metrics.PolicyTransitions.WithLabelValues(string(action), string(core.ResultSuccess)).Inc()
	e.logger.Infow("Policy transition applied",
		"entity", entityID, "action", action, "from", current, "to", target, "reason", reason)
	return Result{Result: core.ResultSuccess, Previous: current, Current: target, Details: details}
}

// HandleAlert applies the auto-escalation rule: high severity isolates the
// entity automatically; medium is informational at the policy layer.
func (e *Engine) HandleAlert(alert *core.Alert) {
	if alert.Severity != core.SeverityHigh {
		e.logger.Infow("Informational alert, no policy action",
			"alert_id", alert.AlertID, "entity", alert.EntityID, "severity", alert.Severity)
		return
	}

	e.logger.Infow("High severity alert, auto-isolating",
		"alert_id", alert.AlertID, "entity", alert.EntityID)
	e.Apply(context.Background(), alert.EntityID, core.ActionIsolate, core.ReasonAutoPolicy, alert.AlertID)
}

// HandleCommand applies an operator command. Validation happens inside
// Apply so rejected commands still leave an audit trail.
func (e *Engine) HandleCommand(ctx context.Context, cmd *core.Command) Result {
	reason := cmd.Reason
	if reason == "" {
		reason = "operator_action"
	}
	return e.Apply(ctx, cmd.EntityID, cmd.Action, reason, cmd.RefAlertID)
}

// State returns the current posture of one entity, defaulting to Normal
// for entities never referenced.
func (e *Engine) State(entityID string) core.EntityState {
	e.mu.RLock()
	rec, ok := e.entities[entityID]
	e.mu.RUnlock()
	if !ok {
		return core.StateNormal
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.state
}

// Status returns a snapshot of every tracked entity's state.
func (e *Engine) Status() map[string]core.EntityState {
	e.mu.RLock()
	recs := make(map[string]*entityRecord, len(e.entities))
	for id, rec := range e.entities {
		recs[id] = rec
	}
	e.mu.RUnlock()

	out := make(map[string]core.EntityState, len(recs))
	for id, rec := range recs {
		rec.mu.Lock()
		out[id] = rec.state
		rec.mu.Unlock()
	}
	return out
}

func (e *Engine) audit(entityID string, action core.Action, result core.AuditResult, details string) {
	e.recorder.Append(core.AuditEntry{
		EntityID: entityID,
		Action:   action,
		Method:   core.MethodAppLayer,
		Result:   result,
		Details:  details,
	})
}
