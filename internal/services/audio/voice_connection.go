package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/vuongmanhnghia/discord-queue-engine/pkg/logger"
)

var (
	// ErrNotConnected is returned when not connected to a voice channel
	ErrNotConnected = errors.New("not connected to voice channel")
	// ErrConnectionFailed is returned when connection fails
	ErrConnectionFailed = errors.New("failed to connect to voice channel")
)

// VoiceConnection wraps one guild's discordgo voice connection.
type VoiceConnection struct {
	guildID   string
	channelID string
	vc        *discordgo.VoiceConnection
	logger    *logger.Logger
	mu        sync.RWMutex
}

// NewVoiceConnection creates a new voice connection
func NewVoiceConnection(guildID string, log *logger.Logger) *VoiceConnection {
	return &VoiceConnection{
		guildID: guildID,
		logger:  log,
	}
}

// Connect joins a voice channel, moving from the current one if needed.
// Connecting to the channel we are already in is a no-op.
func (v *VoiceConnection) Connect(session *discordgo.Session, channelID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.vc != nil && v.vc.Status == discordgo.VoiceConnectionStatusReady {
		if v.channelID == channelID {
			return nil
		}
		v.logger.Info("Disconnecting from current channel to move")
		v.disconnectLocked()
	}

	v.logger.WithField("channel", channelID).Info("Connecting to voice channel...")

	// mute=false, deaf=true
	joinCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	vc, err := session.ChannelVoiceJoin(joinCtx, v.guildID, channelID, false, true)
	if err != nil {
		v.logger.WithError(err).Error("Failed to join voice channel")
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	readyTimeout := time.After(10 * time.Second)
	readyTicker := time.NewTicker(100 * time.Millisecond)
	defer readyTicker.Stop()

	for vc.Status != discordgo.VoiceConnectionStatusReady {
		select {
		case <-readyTimeout:
			vc.Disconnect(context.Background())
			return fmt.Errorf("%w: connection not ready after 10s", ErrConnectionFailed)
		case <-readyTicker.C:
			continue
		}
	}

	v.vc = vc
	v.channelID = channelID

	v.logger.WithField("channel", channelID).Info("✅ Connected to voice channel")
	return nil
}

// Disconnect leaves the voice channel. Disconnecting while not connected is
// a no-op so idle-detach and gateway-driven teardown never race.
func (v *VoiceConnection) Disconnect() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.disconnectLocked()
}

func (v *VoiceConnection) disconnectLocked() error {
	if v.vc == nil {
		return nil
	}

	if err := v.vc.Disconnect(context.Background()); err != nil {
		v.logger.WithError(err).Error("Failed to disconnect")
		return err
	}

	v.vc = nil
	v.channelID = ""

	v.logger.Info("Disconnected from voice channel")
	return nil
}

// IsConnected returns true if connected and ready.
func (v *VoiceConnection) IsConnected() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.vc != nil && v.vc.Status == discordgo.VoiceConnectionStatusReady
}

// GetChannelID returns the current channel ID
func (v *VoiceConnection) GetChannelID() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.channelID
}

// GetVoiceConnection returns the underlying voice connection (for audio streaming)
func (v *VoiceConnection) GetVoiceConnection() *discordgo.VoiceConnection {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.vc
}

// Speaking sets the speaking state
func (v *VoiceConnection) Speaking(speaking bool) error {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.vc == nil {
		return ErrNotConnected
	}

	return v.vc.Speaking(speaking)
}
