package policy

import (
	"sync"
	"time"

	"ghostmesh/core"
	"ghostmesh/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AuditForwarder forwards an audit entry outward for durable, retained
// persistence on the bus.
type AuditForwarder interface {
	PublishAudit(entry core.AuditEntry) error
}

// Recorder keeps the local audit view in a bounded ring buffer and forwards
// every entry outward. The ring is a memory bound, not a durability
// guarantee: oldest entries are evicted silently at capacity, while outward
// delivery is attempted for every entry regardless of buffer pressure.
type Recorder struct {
	mu       sync.Mutex
	entries  []core.AuditEntry
	next     int
	size     int
	capacity int

	forward AuditForwarder
	logger  *zap.SugaredLogger
}

// NewRecorder creates an audit recorder with the given ring capacity.
func NewRecorder(capacity int, forward AuditForwarder, logger *zap.SugaredLogger) *Recorder {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Recorder{
		entries:  make([]core.AuditEntry, capacity),
		capacity: capacity,
		forward:  forward,
		logger:   logger,
	}
}

// Append stamps the entry with its action ID and timestamp if unset,
// pushes it into the ring (O(1), FIFO eviction) and forwards it outward.
func (r *Recorder) Append(entry core.AuditEntry) core.AuditEntry {
	if entry.ActionID == "" {
		entry.ActionID = "act-" + uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	r.mu.Lock()
	r.entries[r.next] = entry
	r.next = (r.next + 1) % r.capacity
	if r.size < r.capacity {
		r.size++
	}
	r.mu.Unlock()

	metrics.AuditEntriesRecorded.Inc()

	if r.forward != nil {
		if err := r.forward.PublishAudit(entry); err != nil {
			metrics.AuditForwardFailures.Inc()
			r.logger.Warnw("Failed to forward audit entry",
				"action_id", entry.ActionID, "entity", entry.EntityID, "error", err)
		}
	}

	return entry
}

// Len returns the number of retained entries.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Tail returns up to n most recent entries, oldest first.
func (r *Recorder) Tail(n int) []core.AuditEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n <= 0 || n > r.size {
		n = r.size
	}
	out := make([]core.AuditEntry, 0, n)
	start := (r.next - n + r.capacity) % r.capacity
	for i := 0; i < n; i++ {
		out = append(out, r.entries[(start+i)%r.capacity])
	}
	return out
}
