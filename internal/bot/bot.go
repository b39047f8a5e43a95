package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/vuongmanhnghia/discord-queue-engine/internal/config"
	"github.com/vuongmanhnghia/discord-queue-engine/internal/database"
	"github.com/vuongmanhnghia/discord-queue-engine/internal/domain/entities"
	"github.com/vuongmanhnghia/discord-queue-engine/internal/domain/repositories"
	apperrors "github.com/vuongmanhnghia/discord-queue-engine/internal/errors"
	"github.com/vuongmanhnghia/discord-queue-engine/internal/infrastructure/persistence"
	"github.com/vuongmanhnghia/discord-queue-engine/internal/providers"
	"github.com/vuongmanhnghia/discord-queue-engine/internal/services"
	"github.com/vuongmanhnghia/discord-queue-engine/internal/services/audio"
	"github.com/vuongmanhnghia/discord-queue-engine/internal/validation"
	"github.com/vuongmanhnghia/discord-queue-engine/pkg/logger"
)

// QueueBot wires the queue engine to a Discord gateway session. Command
// rendering lives outside; the bot exposes the engine API plus voice
// attachment and translates gateway voice events into suspend/resume.
type QueueBot struct {
	config       *config.Config
	logger       *logger.Logger
	session      *discordgo.Session
	db           *database.DB
	registry     *providers.Registry
	audioService *audio.AudioService
	engine       *services.Engine
}

// New creates a new QueueBot instance
func New(cfg *config.Config, log *logger.Logger) (*QueueBot, error) {
	session, err := discordgo.New("Bot " + cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildVoiceStates
	session.StateEnabled = true

	// Pick the snapshot store: Postgres when configured, JSON files otherwise.
	var (
		db   *database.DB
		repo repositories.QueueRepository
	)
	if cfg.UseDatabase {
		ctx := context.Background()
		db, err = database.Connect(ctx, database.DefaultConfig(cfg.DatabaseURL))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := db.RunMigrations(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run database migrations: %w", err)
		}
		repo = persistence.NewDatabaseQueueRepository(db)
	} else {
		repo, err = persistence.NewFileQueueRepository(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("failed to create queue store: %w", err)
		}
	}

	registry, err := buildRegistry(cfg, log)
	if err != nil {
		if db != nil {
			db.Close()
		}
		return nil, err
	}

	audioService := audio.NewAudioService(session, log)

	engineCfg := services.EngineConfig{
		MaxPendingPerUser:  cfg.MaxPendingPerUser,
		DuplicateThreshold: cfg.DuplicateThreshold,
		FairnessMode:       entities.FairnessMode(cfg.FairnessMode),
		IdleDetach:         time.Duration(cfg.IdleDetachSeconds) * time.Second,
		MaxTrackDuration:   time.Duration(cfg.MaxTrackDurationS) * time.Second,
		MaxQueueLength:     cfg.MaxQueueLength,
	}
	engine := services.NewEngine(engineCfg, registry, audioService, repo, log)

	bot := &QueueBot{
		config:       cfg,
		logger:       log,
		session:      session,
		db:           db,
		registry:     registry,
		audioService: audioService,
		engine:       engine,
	}

	session.AddHandler(bot.onReady)
	session.AddHandler(bot.onVoiceStateUpdate)

	return bot, nil
}

// buildRegistry registers every enabled provider in match-priority order.
func buildRegistry(cfg *config.Config, log *logger.Logger) (*providers.Registry, error) {
	registry := providers.NewRegistry(log)

	var runner *providers.YtDlpRunner
	needsRunner := cfg.ProviderEnabled["youtube"] || cfg.ProviderEnabled["bilibili"] ||
		cfg.ProviderEnabled["soundcloud"]
	if needsRunner {
		var err error
		runner, err = providers.NewYtDlpRunner(log)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize yt-dlp: %w", err)
		}
	}

	if cfg.ProviderEnabled["youtube"] {
		registry.Register(providers.NewYouTubeProvider(runner))
	}
	if cfg.ProviderEnabled["bilibili"] {
		registry.Register(providers.NewBilibiliProvider(runner))
	}
	if cfg.ProviderEnabled["soundcloud"] {
		registry.Register(providers.NewSoundCloudProvider(runner))
	}
	if cfg.ProviderEnabled["netease"] {
		client := providers.NewNetEaseClient(providers.NetEaseClientConfig{
			BaseURL:       cfg.NetEaseAPIBaseURL,
			MemberCookie:  cfg.NetEaseMemberCookie,
			ProxyHost:     cfg.NetEaseProxyHost,
			ProxyProtocol: cfg.NetEaseProxyProtocol,
		}, log)
		registry.Register(providers.NewNetEaseProvider(client))
	}
	if cfg.ProviderEnabled["catbox"] {
		registry.Register(providers.NewCatboxProvider(log))
	}
	// Generic goes last so platform providers always win the match.
	if cfg.ProviderEnabled["generic"] {
		registry.Register(providers.NewGenericFileProvider())
	}

	names := make([]string, 0, len(registry.Providers()))
	for _, p := range registry.Providers() {
		names = append(names, p.Name())
	}
	log.WithField("providers", strings.Join(names, ", ")).Info("Provider registry ready")

	return registry, nil
}

// Engine exposes the queue engine to the command/rendering layer.
func (b *QueueBot) Engine() *services.Engine {
	return b.engine
}

// Start opens the gateway session and restores persisted queues.
func (b *QueueBot) Start(ctx context.Context) error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}
	if err := b.engine.Start(ctx); err != nil {
		return fmt.Errorf("failed to restore queues: %w", err)
	}
	return nil
}

// Stop shuts the engine down, persists queues, and closes the session.
func (b *QueueBot) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	b.engine.Shutdown(ctx)
	b.session.Close()
	if b.db != nil {
		b.db.Close()
	}
}

// Play validates a URL, attaches to the requester's voice channel and
// submits the track, returning the admitted entry and its queue position.
func (b *QueueBot) Play(ctx context.Context, guildID, voiceChannelID, rawURL, userID, userDisplay string) (*entities.QueueEntry, int, error) {
	normalized, err := validation.NormalizeSubmission(rawURL)
	if err != nil {
		return nil, 0, err
	}
	if err := b.audioService.Join(ctx, guildID, voiceChannelID); err != nil {
		return nil, 0, err
	}
	entry, position, err := b.engine.Submit(ctx, guildID, normalized, userID, userDisplay)
	if err != nil {
		// Rejections are answers to the user, not faults.
		if apperrors.IsRejection(err) {
			b.logger.WithFields(map[string]interface{}{
				"guild": guildID,
				"user":  userID,
				"kind":  apperrors.KindOf(err),
			}).Info("Submission rejected")
		}
		return nil, 0, err
	}
	b.engine.ResumeGuild(guildID)
	return entry, position, nil
}

func (b *QueueBot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	b.logger.WithFields(map[string]interface{}{
		"username": r.User.Username,
		"guilds":   len(r.Guilds),
	}).Info("✅ Bot is ready")
}

// onVoiceStateUpdate suspends a guild's playback when the bot loses its
// voice channel and resumes it when the bot lands in one again.
func (b *QueueBot) onVoiceStateUpdate(s *discordgo.Session, v *discordgo.VoiceStateUpdate) {
	if v.UserID != s.State.User.ID {
		return
	}

	if v.ChannelID == "" {
		b.logger.WithField("guild", v.GuildID).Warn("Voice channel lost, suspending playback")
		b.engine.SuspendGuild(v.GuildID)
		return
	}

	if v.BeforeUpdate == nil || v.BeforeUpdate.ChannelID == "" {
		b.engine.ResumeGuild(v.GuildID)
	}
}
