package entities

import (
	"sync"

	"github.com/vuongmanhnghia/discord-queue-engine/internal/errors"
)

// SnapshotSchemaVersion is the persisted queue format version. Snapshots with
// any other version are rejected on restore.
const SnapshotSchemaVersion = 1

// Snapshot is a point-in-time copy of a guild queue, used for persistence and
// for status views. The slices are owned by the caller.
type Snapshot struct {
	SchemaVersion int
	GuildID       string
	Current       *QueueEntry
	Pending       []*QueueEntry
	Revision      uint64
}

// GuildQueue holds the FIFO pending list and the currently-playing entry for
// one guild. All methods are safe for concurrent use; mutations are pure
// in-memory operations so callers can hold many queues without contention.
type GuildQueue struct {
	mu        sync.RWMutex
	guildID   string
	current   *QueueEntry
	pending   []*QueueEntry
	revision  uint64
	suspended bool
}

// NewGuildQueue creates an empty queue for a guild.
func NewGuildQueue(guildID string) *GuildQueue {
	return &GuildQueue{guildID: guildID}
}

// GuildID returns the owning guild.
func (q *GuildQueue) GuildID() string {
	return q.guildID
}

// Enqueue appends an entry and returns its 1-based queue position. Position
// counts the pending list only; the currently-playing entry is not pending.
func (q *GuildQueue) Enqueue(entry *QueueEntry) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, entry)
	q.revision++
	return len(q.pending)
}

// PeekNext returns the head of the pending list without consuming it, or nil
// when the queue is empty. Peeking never changes the revision.
func (q *GuildQueue) PeekNext() *QueueEntry {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if len(q.pending) == 0 {
		return nil
	}
	return q.pending[0]
}

// Advance pops the head of the pending list into the current slot and returns
// it along with the entry it displaced. Returns (nil, previous) when the
// pending list is empty; the current slot is cleared either way.
func (q *GuildQueue) Advance() (next *QueueEntry, finished *QueueEntry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	finished = q.current
	if len(q.pending) == 0 {
		q.current = nil
		if finished != nil {
			q.revision++
		}
		return nil, finished
	}
	next = q.pending[0]
	q.pending = q.pending[1:]
	q.current = next
	q.revision++
	return next, finished
}

// SkipCurrent clears the current slot and returns the entry that was playing,
// or nil when nothing is.
func (q *GuildQueue) SkipCurrent() *QueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	skipped := q.current
	if skipped == nil {
		return nil
	}
	q.current = nil
	q.revision++
	return skipped
}

// Current returns the currently-playing entry, or nil.
func (q *GuildQueue) Current() *QueueEntry {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.current
}

// RemoveAt removes the pending entry at the given 1-based position.
func (q *GuildQueue) RemoveAt(position int) (*QueueEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if position < 1 || position > len(q.pending) {
		return nil, errors.New(errors.KindOutOfRange, "queue.remove",
			"position %d out of range 1..%d", position, len(q.pending))
	}
	idx := position - 1
	removed := q.pending[idx]
	q.pending = append(q.pending[:idx], q.pending[idx+1:]...)
	q.revision++
	return removed, nil
}

// Clear drops every pending entry, leaving the current slot untouched, and
// returns the removed entries.
func (q *GuildQueue) Clear() []*QueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	removed := q.pending
	q.pending = nil
	if len(removed) > 0 {
		q.revision++
	}
	return removed
}

// Stop empties the whole queue, current entry included, and returns every
// removed entry with the current one first.
func (q *GuildQueue) Stop() []*QueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	var removed []*QueueEntry
	if q.current != nil {
		removed = append(removed, q.current)
		q.current = nil
	}
	removed = append(removed, q.pending...)
	q.pending = nil
	if len(removed) > 0 {
		q.revision++
	}
	return removed
}

// Len returns the number of pending entries.
func (q *GuildQueue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.pending)
}

// IsEmpty reports whether neither a current entry nor pending entries exist.
func (q *GuildQueue) IsEmpty() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.current == nil && len(q.pending) == 0
}

// Revision returns the mutation counter. Every enqueue, advance, skip,
// removal, clear, stop and restore bumps it exactly once.
func (q *GuildQueue) Revision() uint64 {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.revision
}

// SetSuspended flags playback as suspended by a voice transport loss.
func (q *GuildQueue) SetSuspended(suspended bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.suspended = suspended
}

// IsSuspended reports the suspension flag.
func (q *GuildQueue) IsSuspended() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.suspended
}

// Snapshot copies the queue state. Entry pointers are shared (entries are
// immutable), the slice is fresh.
func (q *GuildQueue) Snapshot() *Snapshot {
	q.mu.RLock()
	defer q.mu.RUnlock()
	pending := make([]*QueueEntry, len(q.pending))
	copy(pending, q.pending)
	return &Snapshot{
		SchemaVersion: SnapshotSchemaVersion,
		GuildID:       q.guildID,
		Current:       q.current,
		Pending:       pending,
		Revision:      q.revision,
	}
}

// Restore replaces the queue contents from a snapshot. Snapshots with an
// unknown schema version are rejected and leave the queue untouched.
func (q *GuildQueue) Restore(snap *Snapshot) error {
	if snap.SchemaVersion != SnapshotSchemaVersion {
		return errors.New(errors.KindSchemaMismatch, "queue.restore",
			"snapshot schema %d, want %d", snap.SchemaVersion, SnapshotSchemaVersion)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.current = snap.Current
	q.pending = make([]*QueueEntry, len(snap.Pending))
	copy(q.pending, snap.Pending)
	q.revision++
	return nil
}

// TotalPendingDuration sums the durations of all pending entries.
func (q *GuildQueue) TotalPendingDuration() int64 {
	q.mu.RLock()
	defer q.mu.RUnlock()
	var total int64
	for _, e := range q.pending {
		total += e.Track.DurationMS
	}
	return total
}
