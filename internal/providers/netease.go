package providers

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/vuongmanhnghia/discord-queue-engine/internal/domain/entities"
	"github.com/vuongmanhnghia/discord-queue-engine/internal/domain/valueobjects"
	"github.com/vuongmanhnghia/discord-queue-engine/internal/errors"
)

var (
	neteaseHostPattern = regexp.MustCompile(`^https?://([a-z0-9-]+\.)*music\.(163\.com|126\.net)(/|$)`)
	neteaseIDPattern   = regexp.MustCompile(`id=(\d+)`)
)

// NetEaseProvider extracts NetEase Cloud Music songs through the native API
// client. The canonical URL is the permanent song page rebuilt from the
// numeric song ID, never the short-lived CDN stream URL.
type NetEaseProvider struct {
	client *NetEaseClient
}

// NewNetEaseProvider creates the provider over an API client.
func NewNetEaseProvider(client *NetEaseClient) *NetEaseProvider {
	return &NetEaseProvider{client: client}
}

func (p *NetEaseProvider) Name() string { return "netease" }

func (p *NetEaseProvider) Source() valueobjects.SourceTag { return valueobjects.SourceNetEase }

// Matches accepts any host under music.163.com or music.126.net carrying an
// id= parameter in the path, query or fragment.
func (p *NetEaseProvider) Matches(rawURL string) bool {
	lower := strings.ToLower(strings.TrimSpace(rawURL))
	return neteaseHostPattern.MatchString(lower) && strings.Contains(lower, "id=")
}

func (p *NetEaseProvider) Extract(ctx context.Context, rawURL string) (*entities.Track, error) {
	songID, err := neteaseSongID(rawURL)
	if err != nil {
		return nil, err
	}

	detail, err := p.client.GetSongDetail(ctx, songID)
	if err != nil {
		return nil, err
	}

	return &entities.Track{
		Title:        detail.Name,
		DurationMS:   detail.DurationMS,
		CanonicalURL: fmt.Sprintf("https://music.163.com/song?id=%s", songID),
		Uploader:     strings.Join(detail.Artists, ", "),
		ThumbnailURL: detail.PicURL,
		Source:       valueobjects.SourceNetEase,
	}, nil
}

func (p *NetEaseProvider) ResolvePlayable(ctx context.Context, canonicalURL string) (string, error) {
	songID, err := neteaseSongID(canonicalURL)
	if err != nil {
		return "", err
	}
	return p.client.GetSongURL(ctx, songID)
}

// neteaseSongID pulls the numeric song ID out of a song page or share URL.
// Share links sometimes hide the query behind a fragment (/#/song?id=N).
func neteaseSongID(rawURL string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", errors.Wrap(errors.KindMalformed, "netease.id", err)
	}
	if id := parsed.Query().Get("id"); id != "" && isDigits(id) {
		return id, nil
	}
	if m := neteaseIDPattern.FindStringSubmatch(parsed.Fragment); m != nil {
		return m[1], nil
	}
	if m := neteaseIDPattern.FindStringSubmatch(rawURL); m != nil {
		return m[1], nil
	}
	return "", errors.New(errors.KindMalformed, "netease.id", "no song ID in URL %q", rawURL)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
