package entities

import (
	"sync"

	"github.com/vuongmanhnghia/discord-queue-engine/internal/domain/valueobjects"
	"github.com/vuongmanhnghia/discord-queue-engine/internal/errors"
)

// FairnessMode selects how aggressively one user is kept from monopolizing
// playback.
type FairnessMode string

const (
	// FairnessStrict also blocks a user whose track is currently playing.
	FairnessStrict FairnessMode = "strict"
	// FairnessLenient only enforces the per-user pending cap.
	FairnessLenient FairnessMode = "lenient"
)

// TrackerConfig tunes admission control for one guild.
type TrackerConfig struct {
	// MaxPendingPerUser caps how many pending entries a user may hold.
	MaxPendingPerUser int
	// DuplicateThreshold exempts duplicates while the pending list is
	// shorter than this. Zero disables the exemption entirely.
	DuplicateThreshold int
	// Mode picks strict or lenient fairness.
	Mode FairnessMode
}

// Tracker enforces the admission rules for one guild: duplicate detection
// by track key, the per-user pending cap, and (in strict mode) the
// one-track-in-flight rule. It observes queue lifecycle transitions via the
// On* callbacks and keeps reference counts rather than sets, because the
// short-queue exemption legitimately admits the same key twice.
type Tracker struct {
	mu  sync.RWMutex
	cfg TrackerConfig

	// userKeys[user][key] counts how many in-flight entries (pending or
	// playing) the user holds for that track key.
	userKeys map[string]map[valueobjects.TrackKey]int
	// keyUsers[key][user] is the inverse index, used for duplicate lookup.
	keyUsers map[valueobjects.TrackKey]map[string]int

	// pendingCount[user] counts pending (not yet playing) entries.
	pendingCount map[string]int
	// pendingIDs holds the entry IDs currently counted as pending, so
	// OnFinished can tell a drained pending entry from a finished current.
	pendingIDs map[string]bool

	currentID   string
	playingUser string
}

// NewTracker builds a tracker with the given configuration. Non-positive
// MaxPendingPerUser falls back to 1; an unknown mode falls back to lenient.
func NewTracker(cfg TrackerConfig) *Tracker {
	if cfg.MaxPendingPerUser < 1 {
		cfg.MaxPendingPerUser = 1
	}
	if cfg.Mode != FairnessStrict {
		cfg.Mode = FairnessLenient
	}
	return &Tracker{
		cfg:          cfg,
		userKeys:     make(map[string]map[valueobjects.TrackKey]int),
		keyUsers:     make(map[valueobjects.TrackKey]map[string]int),
		pendingCount: make(map[string]int),
		pendingIDs:   make(map[string]bool),
	}
}

// CanAdmit checks the admission rules for a track requested by a user, given
// the current pending queue length. Rules apply in order: duplicate first
// (with the short-queue exemption), then the pending cap, then the strict
// playing rule. The exemption never weakens the fairness rules.
func (t *Tracker) CanAdmit(userID string, key valueobjects.TrackKey, pendingLen int) error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.userKeys[userID][key] > 0 {
		exempt := t.cfg.DuplicateThreshold > 0 && pendingLen < t.cfg.DuplicateThreshold
		if !exempt {
			return errors.New(errors.KindDuplicate, "tracker.admit",
				"user %s already has this track queued", userID)
		}
	}

	if t.pendingCount[userID] >= t.cfg.MaxPendingPerUser {
		return errors.New(errors.KindFairnessPending, "tracker.admit",
			"user %s already has %d pending track(s)", userID, t.pendingCount[userID])
	}

	if t.cfg.Mode == FairnessStrict && t.playingUser == userID {
		return errors.New(errors.KindFairnessPlaying, "tracker.admit",
			"user %s's track is currently playing", userID)
	}

	return nil
}

// OnEnqueued records an admitted entry as pending.
func (t *Tracker) OnEnqueued(entry *QueueEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := entry.Track.Key()
	t.incr(entry.RequesterID, key)
	t.pendingCount[entry.RequesterID]++
	t.pendingIDs[entry.ID] = true
}

// OnStartPlay moves an entry from pending to playing.
func (t *Tracker) OnStartPlay(entry *QueueEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pendingIDs[entry.ID] {
		delete(t.pendingIDs, entry.ID)
		t.decrPending(entry.RequesterID)
	}
	t.currentID = entry.ID
	t.playingUser = entry.RequesterID
}

// OnFinished releases an entry's accounting, whether it finished playing,
// was skipped, or was drained out of the pending list.
func (t *Tracker) OnFinished(entry *QueueEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pendingIDs[entry.ID] {
		delete(t.pendingIDs, entry.ID)
		t.decrPending(entry.RequesterID)
	}
	if t.currentID == entry.ID {
		t.currentID = ""
		t.playingUser = ""
	}
	t.decr(entry.RequesterID, entry.Track.Key())
}

// Reset drops all tracked state, for a full queue stop.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.userKeys = make(map[string]map[valueobjects.TrackKey]int)
	t.keyUsers = make(map[valueobjects.TrackKey]map[string]int)
	t.pendingCount = make(map[string]int)
	t.pendingIDs = make(map[string]bool)
	t.currentID = ""
	t.playingUser = ""
}

// TrackedKeyCount returns the number of tracked key references. Every
// in-flight entry, pending or playing, contributes exactly one.
func (t *Tracker) TrackedKeyCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, keys := range t.userKeys {
		for _, count := range keys {
			n += count
		}
	}
	return n
}

// PlayingUser returns the requester of the current track, or "".
func (t *Tracker) PlayingUser() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.playingUser
}

// PendingCount returns how many pending entries a user holds.
func (t *Tracker) PendingCount(userID string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.pendingCount[userID]
}

// CanAddMore reports whether a user is below the pending cap and, in strict
// mode, not currently playing.
func (t *Tracker) CanAddMore(userID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.pendingCount[userID] >= t.cfg.MaxPendingPerUser {
		return false
	}
	if t.cfg.Mode == FairnessStrict && t.playingUser == userID {
		return false
	}
	return true
}

// IsPlayingFor reports whether userID's track is the one currently playing.
func (t *Tracker) IsPlayingFor(userID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.playingUser == userID && t.playingUser != ""
}

func (t *Tracker) incr(userID string, key valueobjects.TrackKey) {
	if t.userKeys[userID] == nil {
		t.userKeys[userID] = make(map[valueobjects.TrackKey]int)
	}
	t.userKeys[userID][key]++
	if t.keyUsers[key] == nil {
		t.keyUsers[key] = make(map[string]int)
	}
	t.keyUsers[key][userID]++
}

func (t *Tracker) decr(userID string, key valueobjects.TrackKey) {
	if keys := t.userKeys[userID]; keys != nil {
		if keys[key]--; keys[key] <= 0 {
			delete(keys, key)
		}
		if len(keys) == 0 {
			delete(t.userKeys, userID)
		}
	}
	if users := t.keyUsers[key]; users != nil {
		if users[userID]--; users[userID] <= 0 {
			delete(users, userID)
		}
		if len(users) == 0 {
			delete(t.keyUsers, key)
		}
	}
}

func (t *Tracker) decrPending(userID string) {
	if t.pendingCount[userID]--; t.pendingCount[userID] <= 0 {
		delete(t.pendingCount, userID)
	}
}
