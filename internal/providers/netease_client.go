package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/time/rate"

	"github.com/vuongmanhnghia/discord-queue-engine/internal/errors"
	"github.com/vuongmanhnghia/discord-queue-engine/pkg/logger"
)

// NetEaseClientConfig configures the NetEase Cloud Music API client.
type NetEaseClientConfig struct {
	// BaseURL of a NeteaseCloudMusicApi-compatible endpoint.
	BaseURL string
	// MemberCookie (MUSIC_U) unlocks lossless playback URLs. Empty means
	// anonymous standard quality.
	MemberCookie string
	// ProxyHost, when set, replaces the CDN host in playback URLs so
	// region-locked streams route through the proxy.
	ProxyHost string
	// ProxyProtocol is the scheme used with ProxyHost (default https).
	ProxyProtocol string
	// RequestsPerSecond throttles outbound API calls (default 2).
	RequestsPerSecond float64
}

// NetEaseClient talks to a NetEase Cloud Music API server. Calls are rate
// limited and retried with backoff on transient failures.
type NetEaseClient struct {
	cfg        NetEaseClientConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *logger.Logger
}

// neteaseSongDetail is the metadata the engine keeps from /song/detail.
type neteaseSongDetail struct {
	ID         int64
	Name       string
	Artists    []string
	AlbumName  string
	PicURL     string
	DurationMS int64
}

// NewNetEaseClient builds the client. BaseURL is required.
func NewNetEaseClient(cfg NetEaseClientConfig, log *logger.Logger) *NetEaseClient {
	if cfg.ProxyProtocol == "" {
		cfg.ProxyProtocol = "https"
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 2
	}
	return &NetEaseClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		logger:     log,
	}
}

// GetSongDetail fetches metadata for a song ID.
func (c *NetEaseClient) GetSongDetail(ctx context.Context, songID string) (*neteaseSongDetail, error) {
	endpoint := fmt.Sprintf("%s/song/detail?ids=%s", strings.TrimRight(c.cfg.BaseURL, "/"), url.QueryEscape(songID))

	var result struct {
		Songs []struct {
			ID      int64  `json:"id"`
			Name    string `json:"name"`
			Artists []struct {
				Name string `json:"name"`
			} `json:"ar"`
			Album struct {
				Name   string `json:"name"`
				PicURL string `json:"picUrl"`
			} `json:"al"`
			Duration int64 `json:"dt"`
		} `json:"songs"`
		Code int `json:"code"`
	}

	if err := c.getJSON(ctx, "netease.detail", endpoint, &result); err != nil {
		return nil, err
	}
	if result.Code != 200 {
		return nil, errors.New(errors.KindNotFound, "netease.detail",
			"API returned code %d for song %s", result.Code, songID)
	}
	if len(result.Songs) == 0 {
		return nil, errors.New(errors.KindNotFound, "netease.detail", "song %s not found", songID)
	}

	song := result.Songs[0]
	detail := &neteaseSongDetail{
		ID:         song.ID,
		Name:       song.Name,
		AlbumName:  song.Album.Name,
		PicURL:     song.Album.PicURL,
		DurationMS: song.Duration,
	}
	for _, a := range song.Artists {
		detail.Artists = append(detail.Artists, a.Name)
	}
	return detail, nil
}

// GetSongURL fetches a playable stream URL for a song ID. With a member
// cookie the lossless variant is requested; anonymous clients get standard
// quality. An empty URL in the response means the song is unavailable to
// this account or region.
func (c *NetEaseClient) GetSongURL(ctx context.Context, songID string) (string, error) {
	level := "standard"
	if c.cfg.MemberCookie != "" {
		level = "lossless"
	}
	endpoint := fmt.Sprintf("%s/song/url/v1?id=%s&level=%s",
		strings.TrimRight(c.cfg.BaseURL, "/"), url.QueryEscape(songID), level)

	var result struct {
		Data []struct {
			ID  int64  `json:"id"`
			URL string `json:"url"`
		} `json:"data"`
		Code int    `json:"code"`
		Msg  string `json:"msg,omitempty"`
	}

	if err := c.getJSON(ctx, "netease.url", endpoint, &result); err != nil {
		return "", err
	}
	if result.Code != 200 {
		return "", errors.New(errors.KindNotFound, "netease.url",
			"API returned code %d: %s", result.Code, result.Msg)
	}
	if len(result.Data) == 0 || result.Data[0].URL == "" {
		return "", errors.New(errors.KindNotFound, "netease.url",
			"no playable URL for song %s (copyright or membership restriction)", songID)
	}

	return c.applyProxy(result.Data[0].URL), nil
}

// applyProxy rewrites the CDN host of a playback URL to the configured
// proxy so geo-locked streams stay reachable.
func (c *NetEaseClient) applyProxy(streamURL string) string {
	if c.cfg.ProxyHost == "" {
		return streamURL
	}
	parsed, err := url.Parse(streamURL)
	if err != nil {
		return streamURL
	}
	parsed.Scheme = c.cfg.ProxyProtocol
	parsed.Host = c.cfg.ProxyHost
	return parsed.String()
}

// getJSON performs a rate-limited GET with retries and decodes the response.
func (c *NetEaseClient) getJSON(ctx context.Context, op, endpoint string, out interface{}) error {
	backoff := retry.WithMaxRetries(3, retry.NewExponential(500*time.Millisecond))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return errors.Wrap(errors.KindCancelled, op, err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return errors.Wrap(errors.KindMalformed, op, err)
		}
		// The os=pc cookie makes the API return desktop-quality URLs.
		req.AddCookie(&http.Cookie{Name: "os", Value: "pc"})
		if c.cfg.MemberCookie != "" {
			req.AddCookie(&http.Cookie{Name: "MUSIC_U", Value: c.cfg.MemberCookie})
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return errors.Wrap(errors.KindCancelled, op, ctx.Err())
			}
			return retry.RetryableError(errors.Wrap(errors.KindNetwork, op, err))
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			return retry.RetryableError(errors.New(errors.KindRateLimited, op,
				"API rate limited (HTTP 429)"))
		}
		if resp.StatusCode != http.StatusOK {
			return errors.New(errors.KindNetwork, op, "API returned HTTP %d", resp.StatusCode)
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return retry.RetryableError(errors.Wrap(errors.KindNetwork, op, err))
		}
		if err := json.Unmarshal(body, out); err != nil {
			return errors.Wrap(errors.KindMalformed, op, err)
		}
		return nil
	})
}
