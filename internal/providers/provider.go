package providers

import (
	"context"

	"github.com/vuongmanhnghia/discord-queue-engine/internal/domain/entities"
	"github.com/vuongmanhnghia/discord-queue-engine/internal/domain/valueobjects"
)

// Provider extracts track metadata from URLs of one source family and
// resolves canonical URLs into playable stream URLs.
//
// Extract returns an immutable track whose CanonicalURL is permanent and
// re-resolvable: a catalog page URL for catalog sources, the input URL
// itself for direct-file sources. ResolvePlayable turns a canonical URL into
// a URL ffmpeg can read right now; for direct-file sources it returns the
// canonical URL unchanged.
type Provider interface {
	Name() string
	Source() valueobjects.SourceTag
	Matches(url string) bool
	Extract(ctx context.Context, url string) (*entities.Track, error)
	ResolvePlayable(ctx context.Context, canonicalURL string) (string, error)
}
