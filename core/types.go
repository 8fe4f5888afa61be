package core

import "time"

// Severity classifies how far an observation deviates from its rolling
// baseline. Only two levels exist; anything below the medium threshold is
// not an anomaly at all.
type Severity string

const (
	// SeverityMedium is an informational anomaly (|z| >= medium threshold).
	SeverityMedium Severity = "medium"
	// SeverityHigh triggers automatic isolation (|z| >= high threshold).
	SeverityHigh Severity = "high"
)

// Action is an enforcement command verb. The set is fixed; anything else is
// rejected with an audit entry.
type Action string

const (
	ActionIsolate  Action = "isolate"
	ActionThrottle Action = "throttle"
	ActionUnblock  Action = "unblock"
)

// EntityState is the enforcement posture of a monitored entity.
type EntityState string

const (
	StateNormal    EntityState = "normal"
	StateThrottled EntityState = "throttled"
	StateIsolated  EntityState = "isolated"
)

// AuditResult is the outcome of a transition attempt.
type AuditResult string

const (
	ResultSuccess         AuditResult = "success"
	ResultFailed          AuditResult = "failed"
	ResultValidationError AuditResult = "validation_error"
)

// MethodAppLayer identifies the app-layer blocking mechanism in audit
// entries. It is the only enforcement method this core implements.
const MethodAppLayer = "app_layer_blocking"

// ReasonAutoPolicy marks transitions triggered by the auto-escalation rule
// rather than an operator command.
const ReasonAutoPolicy = "auto_policy"

// QualityGood is the telemetry quality value that needs no flagging. Other
// values are still recorded as normal observations but are counted
// separately so a later extension can discount them.
const QualityGood = "Good"

// Observation is a single telemetry reading. Ephemeral: consumed
// immediately, retained only inside the active statistics window.
type Observation struct {
	EntityID  string    `json:"entityId"`
	Signal    string    `json:"metric"`
	Value     float64   `json:"value"`
	Unit      string    `json:"unit,omitempty"`
	Quality   string    `json:"quality,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Snapshot holds rolling statistics derived from a window at a point in
// time. It is computed on demand and never stored.
type Snapshot struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	Count  int     `json:"count"`
}

// Alert is an anomaly record. Immutable once the emitter has stamped it;
// ownership passes to the policy engine and the outward publisher.
type Alert struct {
	AlertID       string    `json:"alertId"`
	EntityID      string    `json:"entityId"`
	Signal        string    `json:"metric"`
	Severity      Severity  `json:"severity"`
	ZScore        float64   `json:"zscore"`
	Mean          float64   `json:"mean"`
	StdDev        float64   `json:"stddev"`
	WindowSeconds int       `json:"windowSeconds"`
	Current       float64   `json:"currentValue"`
	Reason        string    `json:"reason"`
	Timestamp     time.Time `json:"timestamp"`
}

// Command is an operator instruction received from the bus. The action is
// validated by the policy engine, not at parse time, so that unsupported
// actions still produce an audit trail.
type Command struct {
	EntityID   string    `json:"entityId" validate:"required"`
	Action     Action    `json:"action" validate:"required"`
	Reason     string    `json:"reason,omitempty"`
	RefAlertID string    `json:"refAlertId,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// AuditEntry records one transition attempt, success or not. Append-only.
type AuditEntry struct {
	ActionID  string      `json:"actionId"`
	EntityID  string      `json:"entityId"`
	Action    Action      `json:"action"`
	Method    string      `json:"method"`
	Result    AuditResult `json:"result"`
	Timestamp time.Time   `json:"timestamp"`
	Details   string      `json:"details,omitempty"`
}
