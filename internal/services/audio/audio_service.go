package audio

import (
	"context"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/vuongmanhnghia/discord-queue-engine/pkg/logger"
)

// AudioService manages voice connections and audio players for all guilds.
// It is the engine's voice transport: join, stream, stop, leave, plus the
// requester-reachability check used before each track starts.
type AudioService struct {
	session *discordgo.Session
	logger  *logger.Logger

	voiceConnections map[string]*VoiceConnection // guildID -> voice connection
	audioPlayers     map[string]*AudioPlayer     // guildID -> audio player

	mu sync.RWMutex
}

// NewAudioService creates a new audio service
func NewAudioService(session *discordgo.Session, log *logger.Logger) *AudioService {
	return &AudioService{
		session:          session,
		logger:           log,
		voiceConnections: make(map[string]*VoiceConnection),
		audioPlayers:     make(map[string]*AudioPlayer),
	}
}

// Join connects to a voice channel, creating the guild's connection and
// player on first use.
func (s *AudioService) Join(ctx context.Context, guildID, channelID string) error {
	s.mu.Lock()
	vc, exists := s.voiceConnections[guildID]
	if !exists {
		vc = NewVoiceConnection(guildID, s.logger)
		s.voiceConnections[guildID] = vc
	}
	if _, exists := s.audioPlayers[guildID]; !exists {
		s.audioPlayers[guildID] = NewAudioPlayer(guildID, vc, s.logger)
	}
	s.mu.Unlock()

	return vc.Connect(s.session, channelID)
}

// Leave stops playback and disconnects from the guild's voice channel.
// Leaving a guild we never joined is a no-op.
func (s *AudioService) Leave(guildID string) error {
	s.mu.RLock()
	vc := s.voiceConnections[guildID]
	player := s.audioPlayers[guildID]
	s.mu.RUnlock()

	if player != nil {
		player.Stop()
	}
	if vc == nil {
		return nil
	}
	return vc.Disconnect()
}

// IsConnected reports whether the guild has a ready voice connection.
func (s *AudioService) IsConnected(guildID string) bool {
	s.mu.RLock()
	vc := s.voiceConnections[guildID]
	s.mu.RUnlock()
	return vc != nil && vc.IsConnected()
}

// Play streams a resolved URL into the guild's voice channel, blocking until
// the stream ends, fails, or StopPlayback interrupts it.
func (s *AudioService) Play(ctx context.Context, guildID, streamURL string) error {
	s.mu.RLock()
	player := s.audioPlayers[guildID]
	s.mu.RUnlock()

	if player == nil {
		return ErrNoVoiceConnection
	}
	return player.Play(ctx, streamURL)
}

// StopPlayback interrupts the guild's current stream without disconnecting.
func (s *AudioService) StopPlayback(guildID string) {
	s.mu.RLock()
	player := s.audioPlayers[guildID]
	s.mu.RUnlock()

	if player != nil {
		player.Stop()
	}
}

// IsUserReachable reports whether a user currently shares the bot's voice
// channel, per the gateway's cached voice states.
func (s *AudioService) IsUserReachable(guildID, userID string) bool {
	s.mu.RLock()
	vc := s.voiceConnections[guildID]
	s.mu.RUnlock()

	if vc == nil || !vc.IsConnected() {
		return false
	}
	botChannel := vc.GetChannelID()
	if botChannel == "" {
		return false
	}

	guild, err := s.session.State.Guild(guildID)
	if err != nil {
		return false
	}
	for _, vs := range guild.VoiceStates {
		if vs.UserID == userID && vs.ChannelID == botChannel {
			return true
		}
	}
	return false
}
