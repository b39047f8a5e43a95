package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vuongmanhnghia/discord-queue-engine/internal/domain/entities"
	"github.com/vuongmanhnghia/discord-queue-engine/internal/domain/valueobjects"
	"github.com/vuongmanhnghia/discord-queue-engine/internal/errors"
)

// entryRecord is the on-disk form of a queue entry.
type entryRecord struct {
	Title            string `json:"title"`
	DurationMS       int64  `json:"duration_ms"`
	CanonicalURL     string `json:"canonical_url"`
	Uploader         string `json:"uploader,omitempty"`
	SourceTag        string `json:"source_tag"`
	ThumbnailURL     string `json:"thumbnail_url,omitempty"`
	RequesterID      string `json:"requester_id"`
	RequesterDisplay string `json:"requester_display"`
	EnqueuedAtMS     int64  `json:"enqueued_at_ms"`
}

// snapshotRecord is the on-disk form of a guild queue snapshot.
type snapshotRecord struct {
	Schema  int            `json:"schema"`
	GuildID string         `json:"guild_id"`
	Current *entryRecord   `json:"current"`
	Pending []*entryRecord `json:"pending"`
}

// FileQueueRepository stores one JSON snapshot per guild under
// <basePath>/queues/. Writes go through a temp file, fsync and rename so a
// crash never leaves a half-written snapshot.
type FileQueueRepository struct {
	basePath string
	mu       sync.RWMutex
}

// NewFileQueueRepository creates the repository, making the queues directory
// if needed.
func NewFileQueueRepository(dataDir string) (*FileQueueRepository, error) {
	basePath := filepath.Join(dataDir, "queues")
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create queue directory: %w", err)
	}
	return &FileQueueRepository{basePath: basePath}, nil
}

// Save writes the snapshot atomically.
func (r *FileQueueRepository) Save(ctx context.Context, snapshot *entities.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record := &snapshotRecord{
		Schema:  snapshot.SchemaVersion,
		GuildID: snapshot.GuildID,
		Current: toRecord(snapshot.Current),
		Pending: make([]*entryRecord, 0, len(snapshot.Pending)),
	}
	for _, entry := range snapshot.Pending {
		record.Pending = append(record.Pending, toRecord(entry))
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	filePath := r.getFilePath(snapshot.GuildID)
	tempPath := filePath + ".tmp"

	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync snapshot: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tempPath, filePath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// Load reads a guild's snapshot. A missing file returns (nil, nil); a file
// that cannot be decoded, or carries an unknown schema version, returns a
// corrupt_snapshot error so the caller can fall back to an empty queue.
func (r *FileQueueRepository) Load(ctx context.Context, guildID string) (*entities.Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	data, err := os.ReadFile(r.getFilePath(guildID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var record snapshotRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, errors.Wrap(errors.KindCorruptSnapshot, "persistence.load", err)
	}
	if record.Schema != entities.SnapshotSchemaVersion {
		return nil, errors.New(errors.KindCorruptSnapshot, "persistence.load",
			"unknown snapshot schema %d", record.Schema)
	}

	snapshot := &entities.Snapshot{
		SchemaVersion: record.Schema,
		GuildID:       record.GuildID,
		Current:       fromRecord(record.Current, guildID),
		Pending:       make([]*entities.QueueEntry, 0, len(record.Pending)),
	}
	for _, rec := range record.Pending {
		snapshot.Pending = append(snapshot.Pending, fromRecord(rec, guildID))
	}
	return snapshot, nil
}

// ListGuilds returns the guild IDs with stored snapshots.
func (r *FileQueueRepository) ListGuilds(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	dirEntries, err := os.ReadDir(r.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read queue directory: %w", err)
	}
	var guilds []string
	for _, de := range dirEntries {
		name := de.Name()
		if de.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		guilds = append(guilds, strings.TrimSuffix(name, ".json"))
	}
	return guilds, nil
}

// Clear removes a guild's snapshot file. Missing files are not an error.
func (r *FileQueueRepository) Clear(ctx context.Context, guildID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.Remove(r.getFilePath(guildID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove snapshot: %w", err)
	}
	return nil
}

func (r *FileQueueRepository) getFilePath(guildID string) string {
	return filepath.Join(r.basePath, sanitizeFilename(guildID)+".json")
}

// sanitizeFilename keeps guild IDs from escaping the queues directory.
func sanitizeFilename(name string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", "..", "_", ":", "_")
	return replacer.Replace(name)
}

func toRecord(entry *entities.QueueEntry) *entryRecord {
	if entry == nil {
		return nil
	}
	return &entryRecord{
		Title:            entry.Track.Title,
		DurationMS:       entry.Track.DurationMS,
		CanonicalURL:     entry.Track.CanonicalURL,
		Uploader:         entry.Track.Uploader,
		SourceTag:        entry.Track.Source.String(),
		ThumbnailURL:     entry.Track.ThumbnailURL,
		RequesterID:      entry.RequesterID,
		RequesterDisplay: entry.RequesterDisplay,
		EnqueuedAtMS:     entry.EnqueuedAt.UnixMilli(),
	}
}

func fromRecord(rec *entryRecord, guildID string) *entities.QueueEntry {
	if rec == nil {
		return nil
	}
	return &entities.QueueEntry{
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
}
