package providers

import (
	"context"
	"fmt"
	"regexp"

	"github.com/vuongmanhnghia/discord-queue-engine/internal/domain/entities"
	"github.com/vuongmanhnghia/discord-queue-engine/internal/domain/valueobjects"
	"github.com/vuongmanhnghia/discord-queue-engine/internal/errors"
)

var youtubeURLPattern = regexp.MustCompile(`^https?://(www\.|m\.|music\.)?(youtube\.com/watch\?|youtu\.be/)`)

// YouTubeProvider extracts YouTube videos through yt-dlp. The canonical URL
// is the permanent watch URL rebuilt from the video ID.
type YouTubeProvider struct {
	runner *YtDlpRunner
}

// NewYouTubeProvider creates the provider on a shared yt-dlp runner.
func NewYouTubeProvider(runner *YtDlpRunner) *YouTubeProvider {
	return &YouTubeProvider{runner: runner}
}

func (p *YouTubeProvider) Name() string { return "youtube" }

func (p *YouTubeProvider) Source() valueobjects.SourceTag { return valueobjects.SourceYouTube }

func (p *YouTubeProvider) Matches(url string) bool {
	return youtubeURLPattern.MatchString(url)
}

func (p *YouTubeProvider) Extract(ctx context.Context, url string) (*entities.Track, error) {
	info, err := p.runner.ExtractInfo(ctx, url)
	if err != nil {
		return nil, err
	}
	if info.ID == "" {
		return nil, errors.New(errors.KindMalformed, "youtube.extract", "yt-dlp returned no video ID")
	}
	return &entities.Track{
		Title:        info.Title,
		DurationMS:   int64(info.Duration * 1000),
		CanonicalURL: fmt.Sprintf("https://www.youtube.com/watch?v=%s", info.ID),
		Uploader:     info.Uploader,
		ThumbnailURL: info.Thumbnail,
		Source:       valueobjects.SourceYouTube,
	}, nil
}

func (p *YouTubeProvider) ResolvePlayable(ctx context.Context, canonicalURL string) (string, error) {
	return p.runner.ResolveStreamURL(ctx, canonicalURL)
}
