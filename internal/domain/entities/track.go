package entities

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vuongmanhnghia/discord-queue-engine/internal/domain/valueobjects"
)

// Track is an immutable descriptor of a playable item. The canonical URL is
// the permanent, re-resolvable address of the track; playable stream URLs are
// resolved separately at stream time and never stored here.
type Track struct {
	Title        string
	DurationMS   int64
	CanonicalURL string
	Uploader     string
	ThumbnailURL string
	Source       valueobjects.SourceTag
}

// Key derives the identity key used for duplicate detection.
func (t Track) Key() valueobjects.TrackKey {
	return valueobjects.NewTrackKey(t.Title, t.DurationMS, t.CanonicalURL)
}

// Duration returns the track length as a time.Duration.
func (t Track) Duration() time.Duration {
	return time.Duration(t.DurationMS) * time.Millisecond
}

// DurationFormatted renders MM:SS, or HH:MM:SS for tracks an hour or longer.
func (t Track) DurationFormatted() string {
	return FormatDuration(t.Duration())
}

// FormatDuration renders a duration as MM:SS or HH:MM:SS.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60
	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}

// QueueEntry is a track placed in a specific guild's queue by a specific
// requester. Entries are immutable after admission.
type QueueEntry struct {
	ID               string
	Track            Track
	GuildID          string
	RequesterID      string
	RequesterDisplay string
	EnqueuedAt       time.Time
}

// NewQueueEntry stamps a track with requester identity and an admission ID.
func NewQueueEntry(track Track, guildID, requesterID, requesterDisplay string) *QueueEntry {
	return &QueueEntry{
		ID:               uuid.New().String(),
		Track:            track,
		GuildID:          guildID,
		RequesterID:      requesterID,
		RequesterDisplay: requesterDisplay,
		EnqueuedAt:       time.Now().UTC(),
	}
}
