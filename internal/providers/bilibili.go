package providers

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/vuongmanhnghia/discord-queue-engine/internal/domain/entities"
	"github.com/vuongmanhnghia/discord-queue-engine/internal/domain/valueobjects"
	"github.com/vuongmanhnghia/discord-queue-engine/internal/errors"
)

var bilibiliURLPattern = regexp.MustCompile(`^https?://(www\.|m\.)?bilibili\.com/video/(BV[0-9A-Za-z]+|av[0-9]+)`)

// BilibiliProvider extracts Bilibili videos through yt-dlp. The canonical URL
// is rebuilt from the BV/AV identifier so share-link query junk never leaks
// into snapshots.
type BilibiliProvider struct {
	runner *YtDlpRunner
}

// NewBilibiliProvider creates the provider on a shared yt-dlp runner.
func NewBilibiliProvider(runner *YtDlpRunner) *BilibiliProvider {
	return &BilibiliProvider{runner: runner}
}

func (p *BilibiliProvider) Name() string { return "bilibili" }

func (p *BilibiliProvider) Source() valueobjects.SourceTag { return valueobjects.SourceBilibili }

func (p *BilibiliProvider) Matches(url string) bool {
	return bilibiliURLPattern.MatchString(url)
}

func (p *BilibiliProvider) Extract(ctx context.Context, url string) (*entities.Track, error) {
	m := bilibiliURLPattern.FindStringSubmatch(url)
	if m == nil {
		return nil, errors.New(errors.KindMalformed, "bilibili.extract", "no video ID in URL")
	}
	videoID := m[2]
	canonical := fmt.Sprintf("https://www.bilibili.com/video/%s", videoID)

	info, err := p.runner.ExtractInfo(ctx, canonical)
	if err != nil {
		return nil, err
	}
	if info.ID != "" && strings.HasPrefix(info.ID, "BV") {
		canonical = fmt.Sprintf("https://www.bilibili.com/video/%s", info.ID)
	}
	return &entities.Track{
		Title:        info.Title,
		DurationMS:   int64(info.Duration * 1000),
		CanonicalURL: canonical,
		Uploader:     info.Uploader,
		ThumbnailURL: info.Thumbnail,
		Source:       valueobjects.SourceBilibili,
	}, nil
}

func (p *BilibiliProvider) ResolvePlayable(ctx context.Context, canonicalURL string) (string, error) {
	return p.runner.ResolveStreamURL(ctx, canonicalURL)
}
