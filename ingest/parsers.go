// Package ingest consumes the core's inbound bus traffic: telemetry
// observations and operator commands. Malformed messages are dropped with a
// logged warning and a metric; a bad payload on one key never affects
// processing for any other key.
package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"ghostmesh/core"

	"github.com/go-playground/validator/v10"
	"github.com/vmihailenco/msgpack/v5"
)

// Errors returned by the parsers.
var (
	ErrBadTopic       = errors.New("unexpected topic shape")
	ErrMissingField   = errors.New("missing required field")
	ErrBadTimestamp   = errors.New("invalid timestamp")
	ErrUnknownCodec   = errors.New("unknown telemetry encoding")
	ErrInvalidPayload = errors.New("invalid payload")
)

var validate = validator.New()

// Decoder turns a raw payload into a struct. JSON is the default; gateways
// that batch compactly may send MessagePack instead.
type Decoder func(payload []byte, v interface{}) error

// DecoderFor returns the decoder for a configured encoding name.
func DecoderFor(encoding string) (Decoder, error) {
	switch encoding {
	case "json":
		return func(p []byte, v interface{}) error { return json.Unmarshal(p, v) }, nil
	case "msgpack":
		return func(p []byte, v interface{}) error { return msgpack.Unmarshal(p, v) }, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, encoding)
	}
}

// telemetryPayload is the wire form of one reading. Value is a pointer so
// a missing field is distinguishable from a literal zero.
type telemetryPayload struct {
	Value   *float64    `json:"value" msgpack:"value" validate:"required"`
	Unit    string      `json:"unit" msgpack:"unit"`
	TS      interface{} `json:"ts" msgpack:"ts" validate:"required"`
	Quality string      `json:"quality" msgpack:"quality"`
}

// ParseTelemetry parses a telemetry message. The topic carries the routing:
// factory/<line>/<asset>/<signal>; the line segment is transport metadata
// and not part of the statistics key.
func ParseTelemetry(topic string, payload []byte, dec Decoder) (*core.Observation, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != "factory" {
		return nil, fmt.Errorf("%w: %s", ErrBadTopic, topic)
	}
	entityID, signal := parts[2], parts[3]
	if entityID == "" || signal == "" {
		return nil, fmt.Errorf("%w: %s", ErrBadTopic, topic)
	}

	var p telemetryPayload
	if err := dec(payload, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := validate.Struct(&p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingField, err)
	}

	ts, err := parseTimestamp(p.TS)
	if err != nil {
		return nil, err
	}

	return &core.Observation{
		EntityID:  entityID,
		Signal:    signal,
		Value:     *p.Value,
		Unit:      p.Unit,
		Quality:   p.Quality,
		Timestamp: ts,
	}, nil
}

// commandPayload is the wire form of an operator command. The action verb
// rides in the topic, matching the control/<asset>/<command> layout.
type commandPayload struct {
	Reason     string      `json:"reason"`
	RefAlertID string      `json:"refAlertId"`
	TS         interface{} `json:"ts"`
}

// ParseCommand parses a control message from control/<asset>/<action>.
// The action value is NOT validated here: unsupported actions must reach
// the policy engine so they produce a validation_error audit entry.
func ParseCommand(topic string, payload []byte) (*core.Command, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != "control" {
		return nil, fmt.Errorf("%w: %s", ErrBadTopic, topic)
	}
	entityID, action := parts[1], parts[2]
	if entityID == "" || action == "" {
		return nil, fmt.Errorf("%w: %s", ErrBadTopic, topic)
	}

	var p commandPayload
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
	}

	ts := time.Now().UTC()
	if p.TS != nil {
		parsed, err := parseTimestamp(p.TS)
		if err != nil {
			return nil, err
		}
		ts = parsed
	}

	cmd := &core.Command{
		EntityID:   entityID,
		Action:     core.Action(action),
		Reason:     p.Reason,
		RefAlertID: p.RefAlertID,
		Timestamp:  ts,
	}
	if err := validate.Struct(cmd); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingField, err)
	}
	return cmd, nil
}

// parseTimestamp accepts RFC3339 strings or unix epoch numbers with
// fractional seconds, as gateways emit both.
func parseTimestamp(v interface{}) (time.Time, error) {
	switch t := v.(type) {
	case string:
		parsed, err := time.Parse(time.RFC3339, t)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %v", ErrBadTimestamp, err)
		}
		return parsed, nil
	case float64:
		return unixFloat(t), nil
	case int64:
		return time.Unix(t, 0).UTC(), nil
	case uint64:
		return time.Unix(int64(t), 0).UTC(), nil
	case int:
		return time.Unix(int64(t), 0).UTC(), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %v", ErrBadTimestamp, err)
		}
		return unixFloat(f), nil
	default:
		return time.Time{}, fmt.Errorf("%w: unsupported type %T", ErrBadTimestamp, v)
	}
}

func unixFloat(f float64) time.Time {
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}
