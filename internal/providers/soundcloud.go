package providers

import (
	"context"
	"regexp"

	"github.com/vuongmanhnghia/discord-queue-engine/internal/domain/entities"
	"github.com/vuongmanhnghia/discord-queue-engine/internal/domain/valueobjects"
)

var soundcloudURLPattern = regexp.MustCompile(`^https?://(www\.|m\.|on\.)?soundcloud\.com/[^/]+/[^/?#]+`)

// SoundCloudProvider extracts SoundCloud tracks through yt-dlp. The permalink
// reported by yt-dlp serves as the canonical URL.
type SoundCloudProvider struct {
	runner *YtDlpRunner
}

// NewSoundCloudProvider creates the provider on a shared yt-dlp runner.
func NewSoundCloudProvider(runner *YtDlpRunner) *SoundCloudProvider {
	return &SoundCloudProvider{runner: runner}
}

func (p *SoundCloudProvider) Name() string { return "soundcloud" }

func (p *SoundCloudProvider) Source() valueobjects.SourceTag { return valueobjects.SourceSoundCloud }

func (p *SoundCloudProvider) Matches(url string) bool {
	return soundcloudURLPattern.MatchString(url)
}

func (p *SoundCloudProvider) Extract(ctx context.Context, url string) (*entities.Track, error) {
	info, err := p.runner.ExtractInfo(ctx, url)
	if err != nil {
		return nil, err
	}
	canonical := info.WebpageURL
	if canonical == "" {
		canonical = url
	}
	return &entities.Track{
		Title:        info.Title,
		DurationMS:   int64(info.Duration * 1000),
		CanonicalURL: canonical,
		Uploader:     info.Uploader,
		ThumbnailURL: info.Thumbnail,
		Source:       valueobjects.SourceSoundCloud,
	}, nil
}

func (p *SoundCloudProvider) ResolvePlayable(ctx context.Context, canonicalURL string) (string, error) {
	return p.runner.ResolveStreamURL(ctx, canonicalURL)
}
