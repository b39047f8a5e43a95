package providers

import (
	"context"
	"strings"

	"github.com/vuongmanhnghia/discord-queue-engine/internal/domain/entities"
	"github.com/vuongmanhnghia/discord-queue-engine/internal/domain/valueobjects"
	"github.com/vuongmanhnghia/discord-queue-engine/internal/errors"
	"github.com/vuongmanhnghia/discord-queue-engine/pkg/logger"
)

// Registry dispatches URLs to providers in registration order: the first
// provider whose Matches accepts the URL handles it. Resolution dispatches
// by source tag, so a restored snapshot entry finds its provider without
// re-matching the URL.
type Registry struct {
	providers []Provider
	bySource  map[valueobjects.SourceTag]Provider
	logger    *logger.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(log *logger.Logger) *Registry {
	return &Registry{
		bySource: make(map[valueobjects.SourceTag]Provider),
		logger:   log,
	}
}

// Register appends a provider. Registration order is match priority.
func (r *Registry) Register(p Provider) {
	r.providers = append(r.providers, p)
	r.bySource[p.Source()] = p
	r.logger.WithField("provider", p.Name()).Info("Provider registered")
}

// Providers returns the registered providers in match order.
func (r *Registry) Providers() []Provider {
	return r.providers
}

// Extract finds the provider for a URL and extracts the track. URLs no
// provider claims are rejected as unsupported; blank input is malformed.
func (r *Registry) Extract(ctx context.Context, rawURL string) (*entities.Track, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, errors.New(errors.KindMalformed, "registry.extract", "empty URL")
	}

	for _, p := range r.providers {
		if p.Matches(rawURL) {
			return p.Extract(ctx, rawURL)
		}
	}
	return nil, errors.New(errors.KindUnsupported, "registry.extract",
		"no provider accepts URL %q", rawURL)
}

// ResolvePlayable resolves a track's canonical URL into a playable stream
// URL via the provider that owns its source tag. Direct-file sources play
// their canonical URL as-is; only catalog sources are asked for a fresh one.
func (r *Registry) ResolvePlayable(ctx context.Context, track *entities.Track) (string, error) {
	p, ok := r.bySource[track.Source]
	if !ok {
		return "", errors.New(errors.KindUnsupported, "registry.resolve",
			"no provider for source %q", track.Source)
	}
	if !track.Source.IsCatalog() {
		return track.CanonicalURL, nil
	}
	return p.ResolvePlayable(ctx, track.CanonicalURL)
}
