package repositories

import (
	"context"

	"github.com/vuongmanhnghia/discord-queue-engine/internal/domain/entities"
)

// QueueRepository persists per-guild queue snapshots. Implementations must
// make Save atomic: a crash mid-write never leaves a partially-written
// snapshot behind. Load returns (nil, nil) when no snapshot exists and a
// corrupt_snapshot error when one exists but cannot be decoded.
type QueueRepository interface {
	Save(ctx context.Context, snapshot *entities.Snapshot) error
	Load(ctx context.Context, guildID string) (*entities.Snapshot, error)
	ListGuilds(ctx context.Context) ([]string, error)
	Clear(ctx context.Context, guildID string) error
}
