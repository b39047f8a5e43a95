package services

import (
	"time"

	"github.com/vuongmanhnghia/discord-queue-engine/internal/domain/entities"
	"github.com/vuongmanhnghia/discord-queue-engine/internal/errors"
)

// ensurePumpLocked starts the guild's pump, or wakes it if already running.
// Callers must hold st.mu, which is what makes create-or-wake race free.
func (e *Engine) ensurePumpLocked(guildID string, st *guildState) {
	if st.pumpRunning {
		select {
		case st.wake <- struct{}{}:
		default:
		}
		return
	}
	st.pumpRunning = true
	e.wg.Add(1)
	go e.runPump(guildID, st)
}

// runPump is the guild's single playback loop: advance, resolve, stream,
// repeat. Exactly one pump runs per guild; it exits after the idle-detach
// timeout with the queue empty, or on engine shutdown.
func (e *Engine) runPump(guildID string, st *guildState) {
	defer e.wg.Done()
	log := e.logger.WithField("guild", guildID)
	log.Debug("Pump started")

	exit := func() {
		st.mu.Lock()
		st.pumpRunning = false
		st.mu.Unlock()
		log.Debug("Pump stopped")
	}

	for {
		if e.ctx.Err() != nil {
			exit()
			return
		}

		// Park while suspended or detached from voice. ResumeGuild and
		// Submit wake us up.
		if st.queue.IsSuspended() || !e.voice.IsConnected(guildID) {
			select {
			case <-st.wake:
				continue
			case <-e.ctx.Done():
				exit()
				return
			}
		}

		st.mu.Lock()
		next, finished := st.queue.Advance()
		if finished != nil {
			st.tracker.OnFinished(finished)
		}
		if next != nil {
			st.tracker.OnStartPlay(next)
		}
		snapshot := st.queue.Snapshot()
		st.mu.Unlock()

		e.persist(st, snapshot)

		if next == nil {
			if e.idleWait(guildID, st) {
				continue
			}
			return
		}

		e.playEntry(guildID, st, next)
	}
}

// idleWait blocks on an empty queue. It returns true to keep pumping and
// false when the pump exited after the idle-detach timeout. The exit takes
// st.mu so a concurrent Submit either wakes us first or sees pumpRunning
// false and starts a fresh pump.
func (e *Engine) idleWait(guildID string, st *guildState) bool {
	idle := time.NewTimer(e.cfg.IdleDetach)
	defer idle.Stop()

	select {
	case <-st.wake:
		return true
	case <-e.ctx.Done():
		st.mu.Lock()
		st.pumpRunning = false
		st.mu.Unlock()
		return false
	case <-idle.C:
		st.mu.Lock()
		select {
		case <-st.wake:
			st.mu.Unlock()
			return true
		default:
		}
		if !st.queue.IsEmpty() {
			st.mu.Unlock()
			return true
		}
		st.pumpRunning = false
		st.mu.Unlock()

		e.voice.Leave(guildID)
		e.logger.WithField("guild", guildID).Info("Idle timeout, detached from voice")
		return false
	}
}

// playEntry streams one entry. The entry is already the queue's current
// track; the next Advance finalizes it whatever happens here.
func (e *Engine) playEntry(guildID string, st *guildState, entry *entities.QueueEntry) {
	log := e.logger.WithFields(map[string]interface{}{
		"guild": guildID,
		"title": entry.Track.Title,
	})

	if !e.voice.IsUserReachable(guildID, entry.RequesterID) {
		log.WithField("requester", entry.RequesterID).Info("Requester left voice, skipping track")
		e.emit(Event{Type: EventRequesterAbsentSkip, GuildID: guildID, Entry: entry})
		return
	}

	streamURL, err := e.resolveWithRetry(entry)
	if err != nil {
		log.WithError(err).Error("Failed to resolve stream URL, skipping track")
		return
	}

	e.emit(Event{Type: EventTrackStarted, GuildID: guildID, Entry: entry})
	if upNext := st.queue.PeekNext(); upNext != nil {
		e.emit(Event{Type: EventUpNext, GuildID: guildID, Entry: upNext})
	}

	log.Info("🎵 Playing track")

	err = e.voice.Play(e.ctx, guildID, streamURL)
	if err == nil {
		return
	}

	switch errors.KindOf(err) {
	case errors.KindCancelled:
		// Skip, stop or shutdown interrupted the stream.
		return
	case errors.KindExpired:
		// The resolved URL went stale mid-stream: resolve fresh once.
		log.Warn("Stream URL expired mid-play, re-resolving")
		streamURL, rerr := e.source.ResolvePlayable(e.ctx, &entry.Track)
		if rerr != nil {
			log.WithError(rerr).Error("Re-resolution failed, skipping track")
			return
		}
		if perr := e.voice.Play(e.ctx, guildID, streamURL); perr != nil &&
			!errors.IsKind(perr, errors.KindCancelled) {
			log.WithError(perr).Error("Playback failed after re-resolution, skipping track")
		}
	default:
		log.WithError(err).Error("Playback failed, skipping track")
	}
}

// resolveWithRetry resolves a playable URL, retrying once when the provider
// reports the canonical URL's cached resolution as expired.
func (e *Engine) resolveWithRetry(entry *entities.QueueEntry) (string, error) {
	streamURL, err := e.source.ResolvePlayable(e.ctx, &entry.Track)
	if err == nil {
		return streamURL, nil
	}
	if !errors.IsKind(err, errors.KindExpired) {
		return "", err
	}
	return e.source.ResolvePlayable(e.ctx, &entry.Track)
}
