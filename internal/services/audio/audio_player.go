package audio

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	apperrors "github.com/vuongmanhnghia/discord-queue-engine/internal/errors"
	"github.com/vuongmanhnghia/discord-queue-engine/pkg/logger"
)

var (
	// ErrNoVoiceConnection is returned when there's no voice connection
	ErrNoVoiceConnection = errors.New("no voice connection")
	// ErrAlreadyPlaying is returned when a play overlaps another
	ErrAlreadyPlaying = errors.New("already playing")
)

// AudioPlayer streams one guild's audio. Play blocks until the stream ends,
// fails, or Stop is called, so the caller's loop drives track transitions.
type AudioPlayer struct {
	guildID string
	vc      *VoiceConnection
	encoder *AudioEncoder
	logger  *logger.Logger

	isPlaying  atomic.Bool
	stopSignal chan struct{}

	mu sync.Mutex
}

// NewAudioPlayer creates a new audio player
func NewAudioPlayer(guildID string, vc *VoiceConnection, log *logger.Logger) *AudioPlayer {
	return &AudioPlayer{
		guildID:    guildID,
		vc:         vc,
		encoder:    NewAudioEncoder(log),
		logger:     log,
		stopSignal: make(chan struct{}),
	}
}

// Play streams a resolved URL to the voice channel and blocks until done.
// A nil return means the stream played to completion; a cancelled error
// means Stop interrupted it.
func (p *AudioPlayer) Play(ctx context.Context, streamURL string) error {
	p.mu.Lock()
	if p.isPlaying.Load() {
		p.mu.Unlock()
		return ErrAlreadyPlaying
	}
	if !p.vc.IsConnected() {
		p.mu.Unlock()
		return ErrNoVoiceConnection
	}
	p.stopSignal = make(chan struct{})
	stop := p.stopSignal
	p.isPlaying.Store(true)
	p.mu.Unlock()

	defer p.isPlaying.Store(false)

	if err := p.vc.Speaking(true); err != nil {
		p.logger.WithError(err).Error("Failed to set speaking status")
		return apperrors.Wrap(apperrors.KindTransport, "player", err)
	}
	defer p.vc.Speaking(false)

	encodeCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	frameChannel, errorChannel := p.encoder.EncodeStream(encodeCtx, streamURL, DefaultEncodeOptions())

	vc := p.vc.GetVoiceConnection()
	if vc == nil {
		return ErrNoVoiceConnection
	}

	p.logger.Info("📻 Streaming audio to Discord...")

	frameCount := 0
	for {
		select {
		case <-stop:
			p.logger.Info("⏹️ Playback stopped")
			return apperrors.New(apperrors.KindCancelled, "player", "playback stopped")

		case <-ctx.Done():
			return apperrors.Wrap(apperrors.KindCancelled, "player", ctx.Err())

		case err := <-errorChannel:
			if err != nil {
				p.logger.WithError(err).Error("Encoding error")
				return err
			}

		case frame, ok := <-frameChannel:
			if !ok {
				// Encoder may still report a startup failure after the
				// frame channel closes empty.
				select {
				case err := <-errorChannel:
					if err != nil {
						return err
					}
				default:
				}
				p.logger.WithField("frames", frameCount).Info("✅ Playback completed")
				return nil
			}

			select {
			case vc.OpusSend <- frame:
				frameCount++
			case <-stop:
				p.logger.Info("⏹️ Playback stopped during frame send")
				return apperrors.New(apperrors.KindCancelled, "player", "playback stopped")
			case <-ctx.Done():
				return apperrors.Wrap(apperrors.KindCancelled, "player", ctx.Err())
			}
		}
	}
}

// Stop interrupts the current playback. Stopping an idle player is a no-op.
func (p *AudioPlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.isPlaying.Load() {
		return
	}

	select {
	case <-p.stopSignal:
	default:
		close(p.stopSignal)
	}
}

// IsPlaying returns true if currently playing
func (p *AudioPlayer) IsPlaying() bool {
	return p.isPlaying.Load()
}
