package providers

import (
	"context"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/vuongmanhnghia/discord-queue-engine/internal/domain/entities"
	"github.com/vuongmanhnghia/discord-queue-engine/internal/domain/valueobjects"
	"github.com/vuongmanhnghia/discord-queue-engine/internal/errors"
	"github.com/vuongmanhnghia/discord-queue-engine/pkg/logger"
)

var catboxURLPattern = regexp.MustCompile(`^https?://(files\.)?catbox\.moe/`)

// audioExtensions lists the file extensions accepted as direct audio.
var audioExtensions = map[string]bool{
	".mp3": true, ".m4a": true, ".ogg": true, ".opus": true,
	".flac": true, ".wav": true, ".aac": true, ".wma": true,
}

// CatboxProvider handles direct file links on catbox.moe. The file URL is
// already permanent, so it doubles as both canonical and playable URL; a
// HEAD probe at extract time catches dead links early. Duration is unknown
// until playback and stays zero.
type CatboxProvider struct {
	httpClient *http.Client
	logger     *logger.Logger
}

// NewCatboxProvider creates the provider.
func NewCatboxProvider(log *logger.Logger) *CatboxProvider {
	return &CatboxProvider{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     log,
	}
}

func (p *CatboxProvider) Name() string { return "catbox" }

func (p *CatboxProvider) Source() valueobjects.SourceTag { return valueobjects.SourceCatbox }

func (p *CatboxProvider) Matches(rawURL string) bool {
	if !catboxURLPattern.MatchString(rawURL) {
		return false
	}
	return hasAudioExtension(rawURL)
}

func (p *CatboxProvider) Extract(ctx context.Context, rawURL string) (*entities.Track, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, errors.Wrap(errors.KindMalformed, "catbox.extract", err)
	}

	if err := p.probe(ctx, rawURL); err != nil {
		return nil, err
	}

	filename := path.Base(parsed.Path)
	title := strings.TrimSuffix(filename, path.Ext(filename))

	return &entities.Track{
		Title:        title,
		CanonicalURL: rawURL,
		Source:       valueobjects.SourceCatbox,
	}, nil
}

// ResolvePlayable returns the canonical URL unchanged: direct files never
// expire.
func (p *CatboxProvider) ResolvePlayable(ctx context.Context, canonicalURL string) (string, error) {
	return canonicalURL, nil
}

func (p *CatboxProvider) probe(ctx context.Context, rawURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return errors.Wrap(errors.KindMalformed, "catbox.probe", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return errors.Wrap(errors.KindCancelled, "catbox.probe", ctx.Err())
		}
		return errors.Wrap(errors.KindNetwork, "catbox.probe", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return errors.New(errors.KindNotFound, "catbox.probe", "file returned HTTP %d", resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		return errors.New(errors.KindRateLimited, "catbox.probe", "file host rate limited")
	case resp.StatusCode >= 400:
		return errors.New(errors.KindNetwork, "catbox.probe", "file returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func hasAudioExtension(rawURL string) bool {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return false
	}
	return audioExtensions[strings.ToLower(path.Ext(parsed.Path))]
}
