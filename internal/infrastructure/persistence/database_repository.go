package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vuongmanhnghia/discord-queue-engine/internal/database"
	"github.com/vuongmanhnghia/discord-queue-engine/internal/domain/entities"
	"github.com/vuongmanhnghia/discord-queue-engine/internal/domain/valueobjects"
	"github.com/vuongmanhnghia/discord-queue-engine/internal/errors"
)

// DatabaseQueueRepository stores queue snapshots as rows in Postgres. Each
// Save replaces the guild's row set inside one transaction, so readers never
// observe a half-written queue. The current entry is position 0 with
// is_current set; pending entries follow at positions 1..n.
type DatabaseQueueRepository struct {
	db *database.DB
}

// NewDatabaseQueueRepository creates a Postgres-backed snapshot store.
func NewDatabaseQueueRepository(db *database.DB) *DatabaseQueueRepository {
	return &DatabaseQueueRepository{db: db}
}

// Save replaces the guild's stored snapshot transactionally.
func (r *DatabaseQueueRepository) Save(ctx context.Context, snapshot *entities.Snapshot) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM queue_entries WHERE guild_id = $1`, snapshot.GuildID); err != nil {
		return fmt.Errorf("failed to delete old snapshot: %w", err)
	}

	const insert = `INSERT INTO queue_entries
		(guild_id, position, is_current, title, duration_ms, canonical_url,
		 uploader, source_tag, thumbnail_url, requester_id, requester_display,
		 enqueued_at_ms, schema_version)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`

	insertEntry := func(entry *entities.QueueEntry, position int, isCurrent bool) error {
		_, err := tx.Exec(ctx, insert,
			snapshot.GuildID, position, isCurrent,
			entry.Track.Title, entry.Track.DurationMS, entry.Track.CanonicalURL,
			entry.Track.Uploader, entry.Track.Source.String(), entry.Track.ThumbnailURL,
			entry.RequesterID, entry.RequesterDisplay,
			entry.EnqueuedAt.UnixMilli(), snapshot.SchemaVersion)
		return err
	}

	if snapshot.Current != nil {
		if err := insertEntry(snapshot.Current, 0, true); err != nil {
			return fmt.Errorf("failed to insert current entry: %w", err)
		}
	}
	for i, entry := range snapshot.Pending {
		if err := insertEntry(entry, i+1, false); err != nil {
			return fmt.Errorf("failed to insert pending entry: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return nil
}

// Load reads a guild's snapshot. No rows means no snapshot (nil, nil); rows
// with an unexpected schema version are reported as corrupt.
func (r *DatabaseQueueRepository) Load(ctx context.Context, guildID string) (*entities.Snapshot, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT position, is_current, title, duration_ms, canonical_url,
		        uploader, source_tag, thumbnail_url, requester_id,
		        requester_display, enqueued_at_ms, schema_version
		   FROM queue_entries
		  WHERE guild_id = $1
		  ORDER BY position`, guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}
	defer rows.Close()

	snapshot := &entities.Snapshot{
		SchemaVersion: entities.SnapshotSchemaVersion,
		GuildID:       guildID,
	}
	found := false

	for rows.Next() {
		var (
			position      int
			isCurrent     bool
			rec           entryRecord
			schemaVersion int
		)
		if err := rows.Scan(&position, &isCurrent, &rec.Title, &rec.DurationMS,
			&rec.CanonicalURL, &rec.Uploader, &rec.SourceTag, &rec.ThumbnailURL,
			&rec.RequesterID, &rec.RequesterDisplay, &rec.EnqueuedAtMS,
			&schemaVersion); err != nil {
			return nil, errors.Wrap(errors.KindCorruptSnapshot, "persistence.db.load", err)
		}
		if schemaVersion != entities.SnapshotSchemaVersion {
			return nil, errors.New(errors.KindCorruptSnapshot, "persistence.db.load",
				"unknown snapshot schema %d", schemaVersion)
		}
		found = true

		entry := &entities.QueueEntry{
			ID: uuid.New().String(),
			Track: entities.Track{
				Title:        rec.Title,
				DurationMS:   rec.DurationMS,
				CanonicalURL: rec.CanonicalURL,
				Uploader:     rec.Uploader,
				ThumbnailURL: rec.ThumbnailURL,
				Source:       valueobjects.SourceTag(rec.SourceTag),
			},
			GuildID:          guildID,
			RequesterID:      rec.RequesterID,
			RequesterDisplay: rec.RequesterDisplay,
			EnqueuedAt:       time.UnixMilli(rec.EnqueuedAtMS).UTC(),
		}
		if isCurrent {
			snapshot.Current = entry
		} else {
			snapshot.Pending = append(snapshot.Pending, entry)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read snapshot rows: %w", err)
	}
	if !found {
		return nil, nil
	}
	return snapshot, nil
}

// ListGuilds returns every guild with stored entries.
func (r *DatabaseQueueRepository) ListGuilds(ctx context.Context) ([]string, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT DISTINCT guild_id FROM queue_entries`)
	if err != nil {
		return nil, fmt.Errorf("failed to list guilds: %w", err)
	}
	defer rows.Close()

	var guilds []string
	for rows.Next() {
		var guildID string
		if err := rows.Scan(&guildID); err != nil {
			return nil, fmt.Errorf("failed to scan guild id: %w", err)
		}
		guilds = append(guilds, guildID)
	}
	return guilds, rows.Err()
}

// Clear deletes a guild's stored snapshot.
func (r *DatabaseQueueRepository) Clear(ctx context.Context, guildID string) error {
	if _, err := r.db.Pool.Exec(ctx,
		`DELETE FROM queue_entries WHERE guild_id = $1`, guildID); err != nil {
		return fmt.Errorf("failed to clear snapshot: %w", err)
	}
	return nil
}
