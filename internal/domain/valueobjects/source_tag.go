package valueobjects

// SourceTag identifies which provider family a track came from
type SourceTag string

const (
	SourceYouTube    SourceTag = "youtube"
	SourceCatbox     SourceTag = "catbox"
	SourceNetEase    SourceTag = "netease"
	SourceBilibili   SourceTag = "bilibili"
	SourceSoundCloud SourceTag = "soundcloud"
	SourceGeneric    SourceTag = "generic"
)

// String returns the string representation
func (s SourceTag) String() string {
	return string(s)
}

// IsValid checks if the source tag is valid
func (s SourceTag) IsValid() bool {
	switch s {
	case SourceYouTube, SourceCatbox, SourceNetEase,
		SourceBilibili, SourceSoundCloud, SourceGeneric:
		return true
	}
	return false
}

// IsCatalog reports whether the source has an ID-addressable catalog.
// Catalog sources store a permanent canonical URL and fetch a fresh
// playable URL at stream time; direct-file sources play the canonical
// URL as-is.
func (s SourceTag) IsCatalog() bool {
	switch s {
	case SourceYouTube, SourceNetEase, SourceBilibili, SourceSoundCloud:
		return true
	}
	return false
}
