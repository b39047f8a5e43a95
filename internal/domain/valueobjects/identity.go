package valueobjects

import (
	"net/url"
	"regexp"
	"strings"
)

// TrackKey uniquely identifies a track for duplicate detection. Two entries
// with the same key are "the same song" even when requested by different
// users.
//
// The normalization and extraction rules below are part of the on-disk
// contract: keys are rebuilt from persisted snapshots on start, so any change
// here requires a snapshot schema bump.
type TrackKey struct {
	NormalizedTitle string
	DurationMS      int64
	URLKey          string
}

var (
	bracketAnnotation = regexp.MustCompile(`(?i)\s*[(\[{]\s*(official (audio|video|mv)|lyrics?|hd|4k|remastered|m/?v)\s*[)\]}]`)
	redundantSpace    = regexp.MustCompile(`\s+`)
	bilibiliVideoID   = regexp.MustCompile(`(?i)/video/(bv[0-9a-z]+|av[0-9]+)`)
)

// NormalizeTitle lowercases a title and strips bracketed annotations such as
// "(Official Video)" or "[Lyrics]" so trivially re-uploaded variants collide.
func NormalizeTitle(title string) string {
	if title == "" {
		return ""
	}
	normalized := strings.ToLower(strings.TrimSpace(title))
	normalized = bracketAnnotation.ReplaceAllString(normalized, "")
	normalized = redundantSpace.ReplaceAllString(normalized, " ")
	return strings.TrimSpace(normalized)
}

// ExtractURLKey pulls the platform-level identifier out of a canonical URL:
// the YouTube video ID, the Bilibili BV/AV ID, the NetEase numeric song ID,
// or the Catbox filename. Unrecognized URLs fall back to the URL itself.
func ExtractURLKey(rawURL string) string {
	if rawURL == "" {
		return ""
	}

	fallback := strings.ToLower(strings.TrimSpace(rawURL))

	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || parsed.Host == "" {
		return fallback
	}
	host := strings.ToLower(parsed.Host)

	switch {
	case strings.Contains(host, "youtu.be"):
		return strings.Trim(parsed.Path, "/")
	case strings.Contains(host, "youtube.com"):
		if id := parsed.Query().Get("v"); id != "" {
			return id
		}
	case strings.Contains(host, "bilibili.com"):
		if m := bilibiliVideoID.FindStringSubmatch(parsed.Path); m != nil {
			return strings.ToLower(m[1])
		}
	case strings.Contains(host, "music.163.com"), strings.Contains(host, "music.126.net"):
		if id := parsed.Query().Get("id"); id != "" {
			return id
		}
		// Some share links carry the query after a fragment: /#/song?id=N
		if idx := strings.Index(parsed.Fragment, "id="); idx >= 0 {
			id := parsed.Fragment[idx+len("id="):]
			if amp := strings.IndexByte(id, '&'); amp >= 0 {
				id = id[:amp]
			}
			if id != "" {
				return id
			}
		}
	case strings.Contains(host, "catbox.moe"):
		segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
		if len(segments) > 0 && segments[len(segments)-1] != "" {
			return segments[len(segments)-1]
		}
	}

	return fallback
}

// NewTrackKey derives the identity key from descriptor fields.
func NewTrackKey(title string, durationMS int64, canonicalURL string) TrackKey {
	return TrackKey{
		NormalizedTitle: NormalizeTitle(title),
		DurationMS:      durationMS,
		URLKey:          ExtractURLKey(canonicalURL),
	}
}
