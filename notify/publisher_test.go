package notify

import (
	"encoding/json"
	"testing"
	"time"

	"ghostmesh/bus"
	"ghostmesh/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTopics() Topics {
	return Topics{
		AlertPrefix:   "alerts",
		Audit:         "audit/actions",
		EnforcePrefix: "enforce",
	}
}

func TestPublishAlertTopicAndRetention(t *testing.T) {
	mock := bus.NewMockPublisher()
	p := NewPublisher(mock, testTopics())

	err := p.PublishAlert(&core.Alert{
		AlertID:  "a-1",
		EntityID: "press01",
		Signal:   "temperature",
		Severity: core.SeverityHigh,
		Current:  130,
	})
	require.NoError(t, err)

	msgs := mock.MessagesFor("alerts/press01/temperature")
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].Retain)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &decoded))
	assert.Equal(t, "a-1", decoded["alertId"])
	assert.Equal(t, "press01", decoded["entityId"])
	assert.Equal(t, "temperature", decoded["metric"])
	assert.Equal(t, "high", decoded["severity"])
	assert.Equal(t, 130.0, decoded["currentValue"])
}

func TestPublishAuditRetained(t *testing.T) {
	mock := bus.NewMockPublisher()
	p := NewPublisher(mock, testTopics())

	err := p.PublishAudit(core.AuditEntry{
		ActionID:  "act-1",
		EntityID:  "press01",
		Action:    core.ActionIsolate,
		Method:    core.MethodAppLayer,
		Result:    core.ResultSuccess,
		Timestamp: time.Now().UTC(),
	})
	require.NoError(t, err)

	msgs := mock.MessagesFor("audit/actions")
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].Retain)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &decoded))
	assert.Equal(t, "act-1", decoded["actionId"])
	assert.Equal(t, "app_layer_blocking", decoded["method"])
	assert.Equal(t, "success", decoded["result"])
}

func TestPublishIntent(t *testing.T) {
	mock := bus.NewMockPublisher()
	p := NewPublisher(mock, testTopics())

	err := p.PublishIntent("press01", core.StateIsolated, core.ActionIsolate)
	require.NoError(t, err)

	msgs := mock.MessagesFor("enforce/press01")
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].Retain)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &decoded))
	assert.Equal(t, "press01", decoded["entityId"])
	assert.Equal(t, "isolated", decoded["state"])
	assert.Equal(t, "isolate", decoded["action"])
}

func TestPublishFailurePropagates(t *testing.T) {
	mock := bus.NewMockPublisher()
	mock.ShouldFail = true
	p := NewPublisher(mock, testTopics())

	assert.Error(t, p.PublishAlert(&core.Alert{EntityID: "press01", Signal: "temperature"}))
	assert.Error(t, p.PublishAudit(core.AuditEntry{}))
	assert.Error(t, p.PublishIntent("press01", core.StateNormal, core.ActionUnblock))
}
