// Package core defines the domain types shared across the GhostMesh
// pipeline: telemetry observations, rolling statistics snapshots, alerts,
// operator commands, enforcement states and audit entries, plus the circuit
// breaker protecting the enforcement hook.
//
// The package has no dependencies on the transport or on any other
// ghostmesh package so that every component can be constructed and tested
// in isolation.
package core
