package policy

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"ghostmesh/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeForwarder struct {
	mu      sync.Mutex
	entries []core.AuditEntry
	fail    bool
}

func (f *fakeForwarder) PublishAudit(entry core.AuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	if f.fail {
		return fmt.Errorf("broker unreachable")
	}
	return nil
}

func TestAppendStampsIdentity(t *testing.T) {
	r := NewRecorder(10, nil, zap.NewNop().Sugar())

	entry := r.Append(core.AuditEntry{
		EntityID: "press01",
		Action:   core.ActionIsolate,
		Method:   core.MethodAppLayer,
		Result:   core.ResultSuccess,
	})

	assert.True(t, strings.HasPrefix(entry.ActionID, "act-"))
	assert.False(t, entry.Timestamp.IsZero())
}

func TestRingEvictsOldestAtCapacity(t *testing.T) {
	r := NewRecorder(5, nil, zap.NewNop().Sugar())

	for i := 0; i < 8; i++ {
		r.Append(core.AuditEntry{
			EntityID: fmt.Sprintf("entity-%d", i),
			Action:   core.ActionIsolate,
			Result:   core.ResultSuccess,
		})
	}

	assert.Equal(t, 5, r.Len())

	entries := r.Tail(0)
	require.Len(t, entries, 5)
	// Oldest first: 0..2 were evicted silently.
	assert.Equal(t, "entity-3", entries[0].EntityID)
	assert.Equal(t, "entity-7", entries[4].EntityID)
}

func TestTailLimitsToMostRecent(t *testing.T) {
	r := NewRecorder(10, nil, zap.NewNop().Sugar())

	for i := 0; i < 6; i++ {
		r.Append(core.AuditEntry{EntityID: fmt.Sprintf("entity-%d", i)})
	}

	entries := r.Tail(2)
	require.Len(t, entries, 2)
	assert.Equal(t, "entity-4", entries[0].EntityID)
	assert.Equal(t, "entity-5", entries[1].EntityID)
}

func TestEveryEntryIsForwarded(t *testing.T) {
	fwd := &fakeForwarder{}
	r := NewRecorder(3, fwd, zap.NewNop().Sugar())

	// Past ring capacity: eviction is local, the forward still happens for
	// every entry.
	for i := 0; i < 5; i++ {
		r.Append(core.AuditEntry{EntityID: fmt.Sprintf("entity-%d", i)})
	}

	assert.Len(t, fwd.entries, 5)
}

func TestForwardFailureDoesNotBlockAppend(t *testing.T) {
	fwd := &fakeForwarder{fail: true}
	r := NewRecorder(10, fwd, zap.NewNop().Sugar())

	entry := r.Append(core.AuditEntry{EntityID: "press01", Result: core.ResultSuccess})

	assert.NotEmpty(t, entry.ActionID)
	assert.Equal(t, 1, r.Len())
	assert.Len(t, fwd.entries, 1)
}
