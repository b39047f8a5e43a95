package providers

import (
	"context"
	"net/url"
	"path"
	"strings"

	"github.com/vuongmanhnghia/discord-queue-engine/internal/domain/entities"
	"github.com/vuongmanhnghia/discord-queue-engine/internal/domain/valueobjects"
	"github.com/vuongmanhnghia/discord-queue-engine/internal/errors"
)

// GenericFileProvider accepts any http(s) URL whose path ends in a known
// audio extension. It is registered last, so platform providers always win.
// No probe is performed; a dead link surfaces as a playback failure.
type GenericFileProvider struct{}

// NewGenericFileProvider creates the provider.
func NewGenericFileProvider() *GenericFileProvider {
	return &GenericFileProvider{}
}

func (p *GenericFileProvider) Name() string { return "generic" }

func (p *GenericFileProvider) Source() valueobjects.SourceTag { return valueobjects.SourceGeneric }

func (p *GenericFileProvider) Matches(rawURL string) bool {
	lower := strings.ToLower(strings.TrimSpace(rawURL))
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return false
	}
	return hasAudioExtension(rawURL)
}

func (p *GenericFileProvider) Extract(ctx context.Context, rawURL string) (*entities.Track, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || parsed.Host == "" {
		return nil, errors.New(errors.KindMalformed, "generic.extract", "unparseable URL %q", rawURL)
	}

	filename := path.Base(parsed.Path)
	title := strings.TrimSuffix(filename, path.Ext(filename))
	if title == "" || title == "/" || title == "." {
		title = parsed.Host
	}

	return &entities.Track{
		Title:        title,
		CanonicalURL: rawURL,
		Source:       valueobjects.SourceGeneric,
	}, nil
}

// ResolvePlayable returns the canonical URL unchanged.
func (p *GenericFileProvider) ResolvePlayable(ctx context.Context, canonicalURL string) (string, error) {
	return canonicalURL, nil
}
