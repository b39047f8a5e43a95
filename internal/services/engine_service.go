package services

import (
	"context"
	"sync"
	"time"

	"github.com/vuongmanhnghia/discord-queue-engine/internal/domain/entities"
	"github.com/vuongmanhnghia/discord-queue-engine/internal/domain/repositories"
	"github.com/vuongmanhnghia/discord-queue-engine/internal/errors"
	"github.com/vuongmanhnghia/discord-queue-engine/pkg/logger"
)

// TrackSource extracts track metadata from URLs and resolves canonical URLs
// into playable stream URLs. The provider registry implements it.
type TrackSource interface {
	Extract(ctx context.Context, rawURL string) (*entities.Track, error)
	ResolvePlayable(ctx context.Context, track *entities.Track) (string, error)
}

// VoiceSession is the engine's voice transport. Play blocks until the stream
// ends, fails, or StopPlayback interrupts it.
type VoiceSession interface {
	Play(ctx context.Context, guildID, streamURL string) error
	StopPlayback(guildID string)
	Leave(guildID string) error
	IsConnected(guildID string) bool
	IsUserReachable(guildID, userID string) bool
}

// EventType names the notifications the engine emits. Rendering them is the
// caller's job; the engine never talks to text channels itself.
type EventType string

const (
	EventTrackStarted        EventType = "track_started"
	EventUpNext              EventType = "up_next"
	EventRequesterAbsentSkip EventType = "requester_absent_skip"
)

// Event is one engine notification.
type Event struct {
	Type    EventType
	GuildID string
	Entry   *entities.QueueEntry
}

// EventHandler receives engine events. Handlers must not block.
type EventHandler func(Event)

// EngineConfig tunes per-guild queue behaviour.
type EngineConfig struct {
	MaxPendingPerUser  int
	DuplicateThreshold int
	FairnessMode       entities.FairnessMode
	IdleDetach         time.Duration
	MaxTrackDuration   time.Duration
	MaxQueueLength     int
}

// DefaultEngineConfig returns the stock configuration.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MaxPendingPerUser:  1,
		DuplicateThreshold: 5,
		FairnessMode:       entities.FairnessStrict,
		IdleDetach:         5 * time.Minute,
		MaxTrackDuration:   time.Hour,
		MaxQueueLength:     100,
	}
}

// guildState bundles one guild's queue, tracker and pump bookkeeping. mu
// serializes admissions and pump transitions; it is only ever held for
// in-memory work, never across network or disk I/O.
type guildState struct {
	mu          sync.Mutex
	queue       *entities.GuildQueue
	tracker     *entities.Tracker
	pumpRunning bool
	wake        chan struct{}

	// persistMu serializes repository writes for this guild; lastSavedRev
	// is the revision of the snapshot last written under it. Together they
	// keep the stored snapshot moving forward even when the capturing
	// goroutines reach the repository out of order.
	persistMu    sync.Mutex
	lastSavedRev uint64
}

// Engine is the queue orchestration facade: admission control, per-guild
// FIFO playback, persistence and suspension, all behind one API.
type Engine struct {
	cfg    EngineConfig
	source TrackSource
	voice  VoiceSession
	repo   repositories.QueueRepository
	logger *logger.Logger

	handlerMu sync.RWMutex
	handler   EventHandler

	guildsMu sync.RWMutex
	guilds   map[string]*guildState

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEngine wires the engine together. The repository may be nil, in which
// case queues are memory-only.
func NewEngine(cfg EngineConfig, source TrackSource, voice VoiceSession, repo repositories.QueueRepository, log *logger.Logger) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		cfg:    cfg,
		source: source,
		voice:  voice,
		repo:   repo,
		logger: log,
		guilds: make(map[string]*guildState),
		ctx:    ctx,
		cancel: cancel,
	}
}

// OnEvent installs the notification handler.
func (e *Engine) OnEvent(handler EventHandler) {
	e.handlerMu.Lock()
	e.handler = handler
	e.handlerMu.Unlock()
}

func (e *Engine) emit(event Event) {
	e.handlerMu.RLock()
	handler := e.handler
	e.handlerMu.RUnlock()
	if handler != nil {
		handler(event)
	}
}

func (e *Engine) guildState(guildID string) *guildState {
	e.guildsMu.RLock()
	st, ok := e.guilds[guildID]
	e.guildsMu.RUnlock()
	if ok {
		return st
	}

	e.guildsMu.Lock()
	defer e.guildsMu.Unlock()
	if st, ok := e.guilds[guildID]; ok {
		return st
	}
	st = &guildState{
		queue:   entities.NewGuildQueue(guildID),
		tracker: entities.NewTracker(entities.TrackerConfig{
			MaxPendingPerUser:  e.cfg.MaxPendingPerUser,
			DuplicateThreshold: e.cfg.DuplicateThreshold,
			Mode:               e.cfg.FairnessMode,
		}),
		wake: make(chan struct{}, 1),
	}
	e.guilds[guildID] = st
	return st
}

// Submit extracts a track from a URL and admits it into the guild's queue.
// Extraction happens before any lock is taken; admission itself is a pure
// in-memory check. Returns the entry and its 1-based queue position.
func (e *Engine) Submit(ctx context.Context, guildID, rawURL, requesterID, requesterDisplay string) (*entities.QueueEntry, int, error) {
	track, err := e.source.Extract(ctx, rawURL)
	if err != nil {
		return nil, 0, err
	}

	if e.cfg.MaxTrackDuration > 0 && track.Duration() > e.cfg.MaxTrackDuration {
		return nil, 0, errors.New(errors.KindTrackTooLong, "engine.submit",
			"track runs %s, limit is %s", track.DurationFormatted(),
			entities.FormatDuration(e.cfg.MaxTrackDuration))
	}

	st := e.guildState(guildID)

	st.mu.Lock()
	if e.cfg.MaxQueueLength > 0 && st.queue.Len() >= e.cfg.MaxQueueLength {
		st.mu.Unlock()
		return nil, 0, errors.New(errors.KindQueueFull, "engine.submit",
			"queue holds %d tracks, limit is %d", e.cfg.MaxQueueLength, e.cfg.MaxQueueLength)
	}
	if err := st.tracker.CanAdmit(requesterID, track.Key(), st.queue.Len()); err != nil {
		st.mu.Unlock()
		return nil, 0, err
	}

	entry := entities.NewQueueEntry(*track, guildID, requesterID, requesterDisplay)
	position := st.queue.Enqueue(entry)
	st.tracker.OnEnqueued(entry)
	snapshot := st.queue.Snapshot()
	e.ensurePumpLocked(guildID, st)
	st.mu.Unlock()

	e.persist(st, snapshot)

	e.logger.WithFields(map[string]interface{}{
		"guild":    guildID,
		"title":    entry.Track.Title,
		"position": position,
	}).Info("Track enqueued")

	return entry, position, nil
}

// Skip interrupts the current track. The pump finalizes the skipped entry
// and starts the next one; the skipped entry is returned for display.
func (e *Engine) Skip(guildID string) (*entities.QueueEntry, error) {
	st := e.guildState(guildID)

	st.mu.Lock()
	current := st.queue.Current()
	st.mu.Unlock()

	if current == nil {
		return nil, errors.New(errors.KindNotPlaying, "engine.skip", "nothing is playing")
	}

	e.voice.StopPlayback(guildID)
	return current, nil
}

// Stop drains the whole queue, current track included, and interrupts
// playback. Returns how many entries were removed.
func (e *Engine) Stop(guildID string) int {
	st := e.guildState(guildID)

	st.mu.Lock()
	removed := st.queue.Stop()
	st.tracker.Reset()
	snapshot := st.queue.Snapshot()
	st.mu.Unlock()

	e.voice.StopPlayback(guildID)
	e.persist(st, snapshot)

	e.logger.WithFields(map[string]interface{}{
		"guild":   guildID,
		"removed": len(removed),
	}).Info("Queue stopped")

	return len(removed)
}

// Remove deletes the pending entry at a 1-based position.
func (e *Engine) Remove(guildID string, position int) (*entities.QueueEntry, error) {
	st := e.guildState(guildID)

	st.mu.Lock()
	entry, err := st.queue.RemoveAt(position)
	if err != nil {
		st.mu.Unlock()
		return nil, err
	}
	st.tracker.OnFinished(entry)
	snapshot := st.queue.Snapshot()
	st.mu.Unlock()

	e.persist(st, snapshot)
	return entry, nil
}

// Clear drops all pending entries, leaving the current track playing.
func (e *Engine) Clear(guildID string) int {
	st := e.guildState(guildID)

	st.mu.Lock()
	removed := st.queue.Clear()
	for _, entry := range removed {
		st.tracker.OnFinished(entry)
	}
	snapshot := st.queue.Snapshot()
	st.mu.Unlock()

	e.persist(st, snapshot)
	return len(removed)
}

// QueueStatus is the guild-level view returned by Status.
type QueueStatus struct {
	GuildID                string
	Current                *entities.QueueEntry
	Pending                []*entities.QueueEntry
	TotalDurationMS        int64
	TotalDurationFormatted string
	Suspended              bool
	Revision               uint64
}

// Status reports the guild's queue contents.
func (e *Engine) Status(guildID string) *QueueStatus {
	st := e.guildState(guildID)

	st.mu.Lock()
	snapshot := st.queue.Snapshot()
	suspended := st.queue.IsSuspended()
	total := st.queue.TotalPendingDuration()
	st.mu.Unlock()

	return &QueueStatus{
		GuildID:                guildID,
		Current:                snapshot.Current,
		Pending:                snapshot.Pending,
		TotalDurationMS:        total,
		TotalDurationFormatted: entities.FormatDuration(time.Duration(total) * time.Millisecond),
		Suspended:              suspended,
		Revision:               snapshot.Revision,
	}
}

// UserStatus is one user's view of their own queue standing.
type UserStatus struct {
	PendingCount  int
	PendingTitles []string
	IsPlaying     bool
	CanAddMore    bool
}

// MyStatus reports a user's pending tracks and whether they may add more.
func (e *Engine) MyStatus(guildID, userID string) *UserStatus {
	st := e.guildState(guildID)

	st.mu.Lock()
	snapshot := st.queue.Snapshot()
	status := &UserStatus{
		PendingCount: st.tracker.PendingCount(userID),
		IsPlaying:    st.tracker.IsPlayingFor(userID),
		CanAddMore:   st.tracker.CanAddMore(userID),
	}
	st.mu.Unlock()

	for _, entry := range snapshot.Pending {
		if entry.RequesterID == userID {
			status.PendingTitles = append(status.PendingTitles, entry.Track.Title)
		}
	}
	return status
}

// SuspendGuild parks the guild's pump after a voice transport loss. The
// queue contents survive; playback resumes on ResumeGuild.
func (e *Engine) SuspendGuild(guildID string) {
	st := e.guildState(guildID)
	st.queue.SetSuspended(true)
	e.voice.StopPlayback(guildID)
	e.logger.WithField("guild", guildID).Info("Guild playback suspended")
}

// ResumeGuild lifts a suspension and restarts the pump.
func (e *Engine) ResumeGuild(guildID string) {
	st := e.guildState(guildID)
	st.queue.SetSuspended(false)

	st.mu.Lock()
	if !st.queue.IsEmpty() {
		e.ensurePumpLocked(guildID, st)
	}
	st.mu.Unlock()

	e.logger.WithField("guild", guildID).Info("Guild playback resumed")
}

// Start restores persisted queues. Restored guilds stay parked until voice
// reattaches; a corrupt snapshot is logged and replaced with an empty queue.
func (e *Engine) Start(ctx context.Context) error {
	if e.repo == nil {
		return nil
	}

	guildIDs, err := e.repo.ListGuilds(ctx)
	if err != nil {
		return err
	}

	for _, guildID := range guildIDs {
		snapshot, err := e.repo.Load(ctx, guildID)
		if err != nil {
			if errors.IsKind(err, errors.KindCorruptSnapshot) {
				e.logger.WithError(err).WithField("guild", guildID).
					Warn("Corrupt queue snapshot, starting empty")
				e.repo.Clear(ctx, guildID)
				continue
			}
			return err
		}
		if snapshot == nil {
			continue
		}

		st := e.guildState(guildID)
		st.mu.Lock()
		if err := st.queue.Restore(snapshot); err != nil {
			st.mu.Unlock()
			e.logger.WithError(err).WithField("guild", guildID).
				Warn("Unusable queue snapshot, starting empty")
			continue
		}
		for _, entry := range snapshot.Pending {
			st.tracker.OnEnqueued(entry)
		}
		if snapshot.Current != nil {
			st.tracker.OnEnqueued(snapshot.Current)
			st.tracker.OnStartPlay(snapshot.Current)
		}
		st.queue.SetSuspended(true)
		st.mu.Unlock()

		e.logger.WithFields(map[string]interface{}{
			"guild":   guildID,
			"pending": len(snapshot.Pending),
		}).Info("Queue restored from snapshot")
	}
	return nil
}

// Shutdown stops all pumps and persists every queue.
func (e *Engine) Shutdown(ctx context.Context) {
	e.cancel()

	e.guildsMu.RLock()
	guilds := make(map[string]*guildState, len(e.guilds))
	for id, st := range e.guilds {
		guilds[id] = st
	}
	e.guildsMu.RUnlock()

	for guildID := range guilds {
		e.voice.StopPlayback(guildID)
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		e.logger.Warn("Shutdown timed out waiting for pumps")
	}

	for guildID, st := range guilds {
		st.mu.Lock()
		snapshot := st.queue.Snapshot()
		st.mu.Unlock()
		e.persistCtx(ctx, st, snapshot)
		e.voice.Leave(guildID)
	}

	e.logger.Info("Engine shut down")
}

// persist writes a snapshot outside the guild's state lock. Writes for one
// guild are serialized and snapshots older than the last written one are
// dropped, so a slow writer can never clobber a newer snapshot on disk.
func (e *Engine) persist(st *guildState, snapshot *entities.Snapshot) {
	e.persistCtx(context.Background(), st, snapshot)
}

func (e *Engine) persistCtx(ctx context.Context, st *guildState, snapshot *entities.Snapshot) {
	if e.repo == nil {
		return
	}
	st.persistMu.Lock()
	defer st.persistMu.Unlock()
	if snapshot.Revision < st.lastSavedRev {
		return
	}
	if err := e.repo.Save(ctx, snapshot); err != nil {
		e.logger.WithError(err).WithField("guild", snapshot.GuildID).
			Error("Failed to persist queue snapshot")
		return
	}
	st.lastSavedRev = snapshot.Revision
}
