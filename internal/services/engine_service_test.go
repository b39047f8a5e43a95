package services

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/vuongmanhnghia/discord-queue-engine/internal/domain/entities"
	"github.com/vuongmanhnghia/discord-queue-engine/internal/domain/valueobjects"
	"github.com/vuongmanhnghia/discord-queue-engine/internal/errors"
	"github.com/vuongmanhnghia/discord-queue-engine/internal/infrastructure/persistence"
	"github.com/vuongmanhnghia/discord-queue-engine/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "error", Output: io.Discard})
}

// fakeSource serves canned tracks keyed by URL.
type fakeSource struct {
	mu           sync.Mutex
	tracks       map[string]*entities.Track
	resolveErrs  []error
	resolveCalls int
}

func newFakeSource() *fakeSource {
	return &fakeSource{tracks: make(map[string]*entities.Track)}
}

func (s *fakeSource) add(url, title string, durationMS int64) {
	s.tracks[url] = &entities.Track{
		Title:        title,
		DurationMS:   durationMS,
		CanonicalURL: url,
		Source:       valueobjects.SourceYouTube,
	}
}

func (s *fakeSource) Extract(ctx context.Context, rawURL string) (*entities.Track, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	track, ok := s.tracks[rawURL]
	if !ok {
		return nil, errors.New(errors.KindUnsupported, "fake.extract", "no provider for %q", rawURL)
	}
	copied := *track
	return &copied, nil
}

func (s *fakeSource) ResolvePlayable(ctx context.Context, track *entities.Track) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolveCalls++
	if len(s.resolveErrs) > 0 {
		err := s.resolveErrs[0]
		s.resolveErrs = s.resolveErrs[1:]
		if err != nil {
			return "", err
		}
	}
	return "stream://" + track.CanonicalURL, nil
}

// fakeVoice simulates a voice transport. Each Play blocks until the test
// finishes it, stops it, or the context ends.
type fakeVoice struct {
	mu          sync.Mutex
	current     map[string]chan error
	unreachable map[string]bool
	leaves      int
	started     chan string
}

func newFakeVoice() *fakeVoice {
	return &fakeVoice{
		current:     make(map[string]chan error),
		unreachable: make(map[string]bool),
		started:     make(chan string, 32),
	}
}

func (v *fakeVoice) Play(ctx context.Context, guildID, streamURL string) error {
	ch := make(chan error, 1)
	v.mu.Lock()
	v.current[guildID] = ch
	v.mu.Unlock()
	v.started <- streamURL

	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return errors.Wrap(errors.KindCancelled, "fake.play", ctx.Err())
	}
}

func (v *fakeVoice) finish(guildID string) {
	v.mu.Lock()
	ch := v.current[guildID]
	delete(v.current, guildID)
	v.mu.Unlock()
	if ch != nil {
		ch <- nil
	}
}

func (v *fakeVoice) StopPlayback(guildID string) {
	v.mu.Lock()
	ch := v.current[guildID]
	delete(v.current, guildID)
	v.mu.Unlock()
	if ch != nil {
		ch <- errors.New(errors.KindCancelled, "fake.play", "playback stopped")
	}
}

func (v *fakeVoice) Leave(guildID string) error {
	v.mu.Lock()
	v.leaves++
	v.mu.Unlock()
	return nil
}

func (v *fakeVoice) IsConnected(guildID string) bool { return true }

func (v *fakeVoice) IsUserReachable(guildID, userID string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return !v.unreachable[userID]
}

func waitStarted(t *testing.T, voice *fakeVoice) string {
	t.Helper()
	select {
	case url := <-voice.started:
		return url
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for playback to start")
		return ""
	}
}

func waitCondition(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func testEngine(t *testing.T, cfg EngineConfig) (*Engine, *fakeSource, *fakeVoice) {
	t.Helper()
	source := newFakeSource()
	voice := newFakeVoice()
	engine := NewEngine(cfg, source, voice, nil, testLogger())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		engine.Shutdown(ctx)
	})
	return engine, source, voice
}

func lenientConfig() EngineConfig {
	cfg := DefaultEngineConfig()
	cfg.FairnessMode = entities.FairnessLenient
	cfg.MaxPendingPerUser = 10
	cfg.IdleDetach = time.Hour
	return cfg
}

func TestEngineSubmitAndPlayThrough(t *testing.T) {
	engine, source, voice := testEngine(t, lenientConfig())
	source.add("https://y/a", "Track A", 180000)
	source.add("https://y/b", "Track B", 180000)

	ctx := context.Background()
	_, pos, err := engine.Submit(ctx, "g1", "https://y/a", "u1", "User One")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if pos != 1 {
		t.Errorf("position = %d, want 1", pos)
	}
	if _, pos, err = engine.Submit(ctx, "g1", "https://y/b", "u2", "User Two"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if pos != 2 {
		t.Errorf("position = %d, want 2", pos)
	}

	if url := waitStarted(t, voice); url != "stream://https://y/a" {
		t.Errorf("first stream = %q, want Track A", url)
	}
	voice.finish("g1")

	if url := waitStarted(t, voice); url != "stream://https://y/b" {
		t.Errorf("second stream = %q, want Track B", url)
	}
	voice.finish("g1")

	waitCondition(t, "queue drained", func() bool {
		st := engine.Status("g1")
		return st.Current == nil && len(st.Pending) == 0
	})
}

func TestEngineUnsupportedURL(t *testing.T) {
	engine, _, _ := testEngine(t, lenientConfig())
	_, _, err := engine.Submit(context.Background(), "g1", "https://nope/x", "u1", "User")
	if !errors.IsKind(err, errors.KindUnsupported) {
		t.Errorf("kind = %q, want unsupported", errors.KindOf(err))
	}
}

func TestEngineDuplicateRejection(t *testing.T) {
	cfg := lenientConfig()
	cfg.DuplicateThreshold = 0 // exemption off, duplicates always rejected
	engine, source, voice := testEngine(t, cfg)
	source.add("https://y/a", "Track A", 180000)
	source.add("https://y/b", "Track B", 180000)

	ctx := context.Background()
	if _, _, err := engine.Submit(ctx, "g1", "https://y/b", "u1", "User"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitStarted(t, voice)

	if _, _, err := engine.Submit(ctx, "g1", "https://y/a", "u1", "User"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	_, _, err := engine.Submit(ctx, "g1", "https://y/a", "u1", "User")
	if !errors.IsKind(err, errors.KindDuplicate) {
		t.Errorf("kind = %q, want duplicate", errors.KindOf(err))
	}
}

func TestEngineFairnessPendingCap(t *testing.T) {
	cfg := lenientConfig()
	cfg.MaxPendingPerUser = 1
	engine, source, voice := testEngine(t, cfg)
	source.add("https://y/a", "Track A", 180000)
	source.add("https://y/b", "Track B", 180000)
	source.add("https://y/c", "Track C", 180000)

	ctx := context.Background()
	if _, _, err := engine.Submit(ctx, "g1", "https://y/a", "u1", "User"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitStarted(t, voice)

	// Track A is playing, so Track B is u1's single pending slot.
	if _, _, err := engine.Submit(ctx, "g1", "https://y/b", "u1", "User"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	_, _, err := engine.Submit(ctx, "g1", "https://y/c", "u1", "User")
	if !errors.IsKind(err, errors.KindFairnessPending) {
		t.Errorf("kind = %q, want fairness_pending", errors.KindOf(err))
	}
}

func TestEngineStrictModeBlocksWhilePlaying(t *testing.T) {
	cfg := DefaultEngineConfig()
	cfg.FairnessMode = entities.FairnessStrict
	cfg.MaxPendingPerUser = 5
	cfg.IdleDetach = time.Hour
	engine, source, voice := testEngine(t, cfg)
	source.add("https://y/a", "Track A", 180000)
	source.add("https://y/b", "Track B", 180000)

	ctx := context.Background()
	if _, _, err := engine.Submit(ctx, "g1", "https://y/a", "u1", "User"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitStarted(t, voice)
	waitCondition(t, "tracker sees playing", func() bool {
		return engine.MyStatus("g1", "u1").IsPlaying
	})

	_, _, err := engine.Submit(ctx, "g1", "https://y/b", "u1", "User")
	if !errors.IsKind(err, errors.KindFairnessPlaying) {
		t.Errorf("kind = %q, want fairness_playing", errors.KindOf(err))
	}

	// Another user is unaffected.
	if _, _, err := engine.Submit(ctx, "g1", "https://y/b", "u2", "User Two"); err != nil {
		t.Errorf("other user rejected: %v", err)
	}
}

func TestEngineQueueFull(t *testing.T) {
	cfg := lenientConfig()
	cfg.MaxQueueLength = 1
	engine, source, voice := testEngine(t, cfg)
	source.add("https://y/a", "Track A", 180000)
	source.add("https://y/b", "Track B", 180000)
	source.add("https://y/c", "Track C", 180000)

	ctx := context.Background()
	engine.Submit(ctx, "g1", "https://y/a", "u1", "User")
	waitStarted(t, voice)

	if _, _, err := engine.Submit(ctx, "g1", "https://y/b", "u2", "User"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	_, _, err := engine.Submit(ctx, "g1", "https://y/c", "u3", "User")
	if !errors.IsKind(err, errors.KindQueueFull) {
		t.Errorf("kind = %q, want queue_full", errors.KindOf(err))
	}
}

func TestEngineTrackTooLong(t *testing.T) {
	cfg := lenientConfig()
	cfg.MaxTrackDuration = time.Minute
	engine, source, _ := testEngine(t, cfg)
	source.add("https://y/long", "Long Track", int64((2 * time.Hour).Milliseconds()))

	_, _, err := engine.Submit(context.Background(), "g1", "https://y/long", "u1", "User")
	if !errors.IsKind(err, errors.KindTrackTooLong) {
		t.Errorf("kind = %q, want track_too_long", errors.KindOf(err))
	}
}

func TestEngineSkipAdvances(t *testing.T) {
	engine, source, voice := testEngine(t, lenientConfig())
	source.add("https://y/a", "Track A", 180000)
	source.add("https://y/b", "Track B", 180000)

	ctx := context.Background()
	engine.Submit(ctx, "g1", "https://y/a", "u1", "User")
	engine.Submit(ctx, "g1", "https://y/b", "u2", "User")
	waitStarted(t, voice)

	skipped, err := engine.Skip("g1")
	if err != nil {
		t.Fatalf("Skip: %v", err)
	}
	if skipped.Track.Title != "Track A" {
		t.Errorf("skipped %q, want Track A", skipped.Track.Title)
	}

	if url := waitStarted(t, voice); url != "stream://https://y/b" {
		t.Errorf("stream after skip = %q, want Track B", url)
	}
}

func TestEngineSkipNothingPlaying(t *testing.T) {
	engine, _, _ := testEngine(t, lenientConfig())
	_, err := engine.Skip("g1")
	if !errors.IsKind(err, errors.KindNotPlaying) {
		t.Errorf("kind = %q, want not_playing", errors.KindOf(err))
	}
}

func TestEngineStopDrainsAndFreesAdmission(t *testing.T) {
	cfg := lenientConfig()
	engine, source, voice := testEngine(t, cfg)
	source.add("https://y/a", "Track A", 180000)
	source.add("https://y/b", "Track B", 180000)

	ctx := context.Background()
	engine.Submit(ctx, "g1", "https://y/a", "u1", "User")
	waitStarted(t, voice)
	engine.Submit(ctx, "g1", "https://y/b", "u2", "User")

	removed := engine.Stop("g1")
	if removed != 2 {
		t.Errorf("Stop removed %d, want 2", removed)
	}

	waitCondition(t, "queue emptied", func() bool {
		st := engine.Status("g1")
		return st.Current == nil && len(st.Pending) == 0
	})

	// All admission state was released: the same tracks re-enter cleanly.
	if _, _, err := engine.Submit(ctx, "g1", "https://y/a", "u1", "User"); err != nil {
		t.Errorf("resubmit after stop rejected: %v", err)
	}
	waitStarted(t, voice)
}

func TestEngineRemoveAndClear(t *testing.T) {
	engine, source, voice := testEngine(t, lenientConfig())
	source.add("https://y/a", "Track A", 180000)
	source.add("https://y/b", "Track B", 180000)
	source.add("https://y/c", "Track C", 180000)

	ctx := context.Background()
	engine.Submit(ctx, "g1", "https://y/a", "u1", "User")
	waitStarted(t, voice)
	engine.Submit(ctx, "g1", "https://y/b", "u2", "User")
	engine.Submit(ctx, "g1", "https://y/c", "u3", "User")

	removed, err := engine.Remove("g1", 1)
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if removed.Track.Title != "Track B" {
		t.Errorf("removed %q, want Track B", removed.Track.Title)
	}

	if _, err := engine.Remove("g1", 5); !errors.IsKind(err, errors.KindOutOfRange) {
		t.Errorf("kind = %q, want out_of_range", errors.KindOf(err))
	}

	if cleared := engine.Clear("g1"); cleared != 1 {
		t.Errorf("Clear removed %d, want 1", cleared)
	}
	st := engine.Status("g1")
	if st.Current == nil {
		t.Error("Clear must keep the current track playing")
	}
	if len(st.Pending) != 0 {
		t.Errorf("pending after clear = %d, want 0", len(st.Pending))
	}
}

func TestEngineRequesterAbsentSkip(t *testing.T) {
	engine, source, voice := testEngine(t, lenientConfig())
	source.add("https://y/a", "Track A", 180000)
	source.add("https://y/b", "Track B", 180000)
	voice.unreachable["u1"] = true

	var mu sync.Mutex
	var events []Event
	engine.OnEvent(func(ev Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})

	ctx := context.Background()
	engine.Submit(ctx, "g1", "https://y/a", "u1", "Absent User")
	engine.Submit(ctx, "g1", "https://y/b", "u2", "Present User")

	// Track A is skipped without streaming; Track B plays.
	if url := waitStarted(t, voice); url != "stream://https://y/b" {
		t.Errorf("stream = %q, want Track B", url)
	}

	mu.Lock()
	defer mu.Unlock()
	var sawAbsent bool
	for _, ev := range events {
		if ev.Type == EventRequesterAbsentSkip && ev.Entry.Track.Title == "Track A" {
			sawAbsent = true
		}
	}
	if !sawAbsent {
		t.Error("expected a requester_absent_skip event for Track A")
	}
}

func TestEngineEventsOnStart(t *testing.T) {
	engine, source, voice := testEngine(t, lenientConfig())
	source.add("https://y/a", "Track A", 180000)
	source.add("https://y/b", "Track B", 180000)

	var mu sync.Mutex
	var events []Event
	engine.OnEvent(func(ev Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})

	ctx := context.Background()
	engine.Submit(ctx, "g1", "https://y/a", "u1", "User")
	engine.Submit(ctx, "g1", "https://y/b", "u2", "User")
	waitStarted(t, voice)

	waitCondition(t, "start events", func() bool {
		mu.Lock()
		defer mu.Unlock()
		var started, upNext bool
		for _, ev := range events {
			if ev.Type == EventTrackStarted && ev.Entry.Track.Title == "Track A" {
				started = true
			}
			if ev.Type == EventUpNext && ev.Entry.Track.Title == "Track B" {
				upNext = true
			}
		}
		return started && upNext
	})
}

func TestEngineExpiredStreamReResolvedOnce(t *testing.T) {
	engine, source, voice := testEngine(t, lenientConfig())
	source.add("https://y/a", "Track A", 180000)

	ctx := context.Background()
	engine.Submit(ctx, "g1", "https://y/a", "u1", "User")
	waitStarted(t, voice)

	// Fail the stream as expired: the pump re-resolves and replays.
	voice.mu.Lock()
	ch := voice.current["g1"]
	delete(voice.current, "g1")
	voice.mu.Unlock()
	ch <- errors.New(errors.KindExpired, "fake.play", "403 on stream")

	waitStarted(t, voice)
	voice.finish("g1")

	waitCondition(t, "queue drained", func() bool {
		return engine.Status("g1").Current == nil
	})
}

func TestEngineSuspendResume(t *testing.T) {
	engine, source, voice := testEngine(t, lenientConfig())
	source.add("https://y/a", "Track A", 180000)
	source.add("https://y/b", "Track B", 180000)

	ctx := context.Background()
	engine.Submit(ctx, "g1", "https://y/a", "u1", "User")
	waitStarted(t, voice)

	engine.SuspendGuild("g1")
	engine.Submit(ctx, "g1", "https://y/b", "u2", "User")

	// Parked: nothing new starts while suspended.
	select {
	case url := <-voice.started:
		t.Fatalf("playback started while suspended: %q", url)
	case <-time.After(100 * time.Millisecond):
	}
	if !engine.Status("g1").Suspended {
		t.Error("status should report suspended")
	}

	engine.ResumeGuild("g1")
	if url := waitStarted(t, voice); url != "stream://https://y/b" {
		t.Errorf("stream after resume = %q, want Track B", url)
	}
}

func TestEngineIdleDetach(t *testing.T) {
	cfg := lenientConfig()
	cfg.IdleDetach = 50 * time.Millisecond
	engine, source, voice := testEngine(t, cfg)
	source.add("https://y/a", "Track A", 180000)

	engine.Submit(context.Background(), "g1", "https://y/a", "u1", "User")
	waitStarted(t, voice)
	voice.finish("g1")

	waitCondition(t, "idle detach", func() bool {
		voice.mu.Lock()
		defer voice.mu.Unlock()
		return voice.leaves >= 1
	})

	// A fresh submit revives the pump.
	engine.Submit(context.Background(), "g1", "https://y/a", "u1", "User")
	waitStarted(t, voice)
}

func TestEngineGuildIsolation(t *testing.T) {
	engine, source, voice := testEngine(t, lenientConfig())
	source.add("https://y/a", "Track A", 180000)

	ctx := context.Background()
	if _, _, err := engine.Submit(ctx, "g1", "https://y/a", "u1", "User"); err != nil {
		t.Fatalf("Submit g1: %v", err)
	}
	// Same user, same track, different guild: independent admission state.
	if _, _, err := engine.Submit(ctx, "g2", "https://y/a", "u1", "User"); err != nil {
		t.Errorf("Submit g2 rejected: %v", err)
	}
	waitStarted(t, voice)
	waitStarted(t, voice)
}

func TestEnginePersistAndRestore(t *testing.T) {
	dir := t.TempDir()
	repo, err := persistence.NewFileQueueRepository(dir)
	if err != nil {
		t.Fatalf("NewFileQueueRepository: %v", err)
	}

	cfg := lenientConfig()
	source := newFakeSource()
	source.add("https://y/a", "Track A", 180000)
	source.add("https://y/b", "Track B", 180000)
	voice := newFakeVoice()
	engine := NewEngine(cfg, source, voice, repo, testLogger())

	ctx := context.Background()
	engine.Submit(ctx, "g1", "https://y/a", "u1", "User One")
	waitStarted(t, voice)
	engine.Submit(ctx, "g1", "https://y/b", "u2", "User Two")

	waitCondition(t, "snapshot written", func() bool {
		snap, err := repo.Load(ctx, "g1")
		return err == nil && snap != nil && snap.Current != nil && len(snap.Pending) == 1
	})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	engine.Shutdown(shutdownCtx)
	cancel()

	// A second engine restores the queue from disk.
	engine2 := NewEngine(cfg, source, newFakeVoice(), repo, testLogger())
	if err := engine2.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	st := engine2.Status("g1")
	if st.Current == nil || st.Current.Track.Title != "Track A" {
		t.Error("restored current mismatch")
	}
	if len(st.Pending) != 1 || st.Pending[0].Track.Title != "Track B" {
		t.Error("restored pending mismatch")
	}
	if !st.Suspended {
		t.Error("restored queue should start suspended")
	}

	shutdownCtx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	engine2.Shutdown(shutdownCtx2)
	cancel2()
}

func TestEngineCorruptSnapshotStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	repo, err := persistence.NewFileQueueRepository(dir)
	if err != nil {
		t.Fatalf("NewFileQueueRepository: %v", err)
	}
	if err := writeCorruptSnapshot(dir); err != nil {
		t.Fatalf("writeCorruptSnapshot: %v", err)
	}

	engine := NewEngine(lenientConfig(), newFakeSource(), newFakeVoice(), repo, testLogger())
	if err := engine.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	st := engine.Status("g1")
	if st.Current != nil || len(st.Pending) != 0 {
		t.Error("corrupt snapshot should yield an empty queue")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	engine.Shutdown(ctx)
	cancel()
}

func TestEngineMyStatus(t *testing.T) {
	cfg := lenientConfig()
	cfg.MaxPendingPerUser = 2
	engine, source, voice := testEngine(t, cfg)
	source.add("https://y/a", "Track A", 180000)
	source.add("https://y/b", "Track B", 180000)
	source.add("https://y/c", "Track C", 180000)

	ctx := context.Background()
	engine.Submit(ctx, "g1", "https://y/a", "u1", "User")
	waitStarted(t, voice)
	engine.Submit(ctx, "g1", "https://y/b", "u1", "User")
	engine.Submit(ctx, "g1", "https://y/c", "u1", "User")

	waitCondition(t, "my status settles", func() bool {
		st := engine.MyStatus("g1", "u1")
		return st.IsPlaying && st.PendingCount == 2
	})

	st := engine.MyStatus("g1", "u1")
	if len(st.PendingTitles) != 2 {
		t.Errorf("pending titles = %v, want 2", st.PendingTitles)
	}
	if st.CanAddMore {
		t.Error("CanAddMore should be false at the cap")
	}

	other := engine.MyStatus("g1", "u9")
	if other.PendingCount != 0 || other.IsPlaying || !other.CanAddMore {
		t.Errorf("fresh user status = %+v", other)
	}
}

func writeCorruptSnapshot(dataDir string) error {
	return os.WriteFile(filepath.Join(dataDir, "queues", "g1.json"), []byte("{broken"), 0644)
}

// recordingRepo logs every saved revision per guild. The short sleep holds
// each write open so overlapping writers would interleave visibly.
type recordingRepo struct {
	mu    sync.Mutex
	saved map[string][]uint64
}

func newRecordingRepo() *recordingRepo {
	return &recordingRepo{saved: make(map[string][]uint64)}
}

func (r *recordingRepo) Save(ctx context.Context, snapshot *entities.Snapshot) error {
	time.Sleep(200 * time.Microsecond)
	r.mu.Lock()
	r.saved[snapshot.GuildID] = append(r.saved[snapshot.GuildID], snapshot.Revision)
	r.mu.Unlock()
	return nil
}

func (r *recordingRepo) Load(ctx context.Context, guildID string) (*entities.Snapshot, error) {
	return nil, nil
}

func (r *recordingRepo) ListGuilds(ctx context.Context) ([]string, error) { return nil, nil }

func (r *recordingRepo) Clear(ctx context.Context, guildID string) error { return nil }

func (r *recordingRepo) revisions(guildID string) []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uint64(nil), r.saved[guildID]...)
}

func TestEngineSnapshotRevisionsNeverRegress(t *testing.T) {
	repo := newRecordingRepo()
	source := newFakeSource()
	voice := newFakeVoice()
	cfg := lenientConfig()
	cfg.MaxPendingPerUser = 100
	engine := NewEngine(cfg, source, voice, repo, testLogger())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		engine.Shutdown(ctx)
	})

	const submitters, perSubmitter = 4, 10
	for g := 0; g < submitters; g++ {
		for i := 0; i < perSubmitter; i++ {
			url := fmt.Sprintf("https://y/%d-%d", g, i)
			source.add(url, fmt.Sprintf("Track %d-%d", g, i), 60000)
		}
	}

	// Finish every track as soon as it starts, so pump advances race the
	// concurrent submits for the repository.
	drained := make(chan struct{})
	go func() {
		for {
			select {
			case <-voice.started:
				voice.finish("g1")
			case <-drained:
				return
			}
		}
	}()
	defer close(drained)

	var wg sync.WaitGroup
	for g := 0; g < submitters; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < perSubmitter; i++ {
				url := fmt.Sprintf("https://y/%d-%d", g, i)
				if _, _, err := engine.Submit(context.Background(), "g1", url, fmt.Sprintf("u%d", g), "User"); err != nil {
					t.Errorf("Submit(%s): %v", url, err)
				}
			}
		}(g)
	}
	wg.Wait()

	waitCondition(t, "queue drained", func() bool {
		st := engine.Status("g1")
		return st.Current == nil && len(st.Pending) == 0
	})

	revs := repo.revisions("g1")
	if len(revs) == 0 {
		t.Fatal("no snapshots were saved")
	}
	for i := 1; i < len(revs); i++ {
		if revs[i] < revs[i-1] {
			t.Fatalf("saved revision %d after %d: a stale snapshot overwrote a newer one", revs[i], revs[i-1])
		}
	}
}

func TestDefaultEngineConfig(t *testing.T) {
	cfg := DefaultEngineConfig()
	if cfg.DuplicateThreshold != 5 {
		t.Errorf("DuplicateThreshold = %d, want 5", cfg.DuplicateThreshold)
	}
	if cfg.MaxTrackDuration != time.Hour {
		t.Errorf("MaxTrackDuration = %s, want 1h", cfg.MaxTrackDuration)
	}
	if cfg.MaxPendingPerUser != 1 {
		t.Errorf("MaxPendingPerUser = %d, want 1", cfg.MaxPendingPerUser)
	}
	if cfg.FairnessMode != entities.FairnessStrict {
		t.Errorf("FairnessMode = %q, want strict", cfg.FairnessMode)
	}
}
