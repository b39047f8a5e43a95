package providers

import (
	"context"
	"encoding/json"
	goerrors "errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/vuongmanhnghia/discord-queue-engine/internal/errors"
	"github.com/vuongmanhnghia/discord-queue-engine/internal/utils"
	"github.com/vuongmanhnghia/discord-queue-engine/pkg/logger"
)

// ErrYtDlpNotFound is returned when yt-dlp is not installed
var ErrYtDlpNotFound = goerrors.New("yt-dlp not found in PATH")

// ytdlpInfo is the subset of yt-dlp --dump-json output the engine needs.
type ytdlpInfo struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Duration   float64 `json:"duration"`
	Uploader   string  `json:"uploader"`
	Thumbnail  string  `json:"thumbnail"`
	WebpageURL string  `json:"webpage_url"`
}

// YtDlpRunner shells out to yt-dlp for metadata extraction and stream URL
// resolution, with an LRU+TTL cache in front of metadata calls. Stream URLs
// are never cached: they expire.
type YtDlpRunner struct {
	path   string
	cache  *utils.SmartCache
	logger *logger.Logger
}

// NewYtDlpRunner locates yt-dlp on PATH and prepares the metadata cache.
func NewYtDlpRunner(log *logger.Logger) (*YtDlpRunner, error) {
	path, err := exec.LookPath("yt-dlp")
	if err != nil {
		return nil, fmt.Errorf("%w: please install yt-dlp", ErrYtDlpNotFound)
	}

	log.WithField("ytdlp_path", path).Info("yt-dlp runner initialized")

	return &YtDlpRunner{
		path:   path,
		cache:  utils.NewSmartCache(500, 5*time.Minute),
		logger: log,
	}, nil
}

// ExtractInfo fetches metadata for a single video/track URL.
func (r *YtDlpRunner) ExtractInfo(ctx context.Context, url string) (*ytdlpInfo, error) {
	if cached, ok := r.cache.Get(url); ok {
		r.logger.Debug("Cache hit for URL")
		return cached.(*ytdlpInfo), nil
	}

	args := []string{
		"--dump-json",
		"--no-playlist",
		"--format", "bestaudio/best",
		"--no-check-certificate",
		url,
	}

	output, err := exec.CommandContext(ctx, r.path, args...).CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrap(errors.KindCancelled, "ytdlp.extract", ctx.Err())
		}
		r.logger.WithError(err).WithField("output", string(output)).Error("yt-dlp extraction failed")
		return nil, classifyYtDlpFailure("ytdlp.extract", string(output), err)
	}

	var info ytdlpInfo
	if err := json.Unmarshal(output, &info); err != nil {
		return nil, errors.Wrap(errors.KindMalformed, "ytdlp.extract",
			fmt.Errorf("failed to parse yt-dlp output: %w", err))
	}

	r.cache.Set(url, &info)
	return &info, nil
}

// ResolveStreamURL fetches a fresh playable URL for a canonical URL.
func (r *YtDlpRunner) ResolveStreamURL(ctx context.Context, url string) (string, error) {
	args := []string{
		"--get-url",
		"--no-playlist",
		"--format", "bestaudio/best",
		"--no-check-certificate",
		url,
	}

	output, err := exec.CommandContext(ctx, r.path, args...).CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return "", errors.Wrap(errors.KindCancelled, "ytdlp.resolve", ctx.Err())
		}
		r.logger.WithError(err).WithField("output", string(output)).Error("yt-dlp URL resolution failed")
		return "", classifyYtDlpFailure("ytdlp.resolve", string(output), err)
	}

	streamURL := strings.TrimSpace(strings.Split(strings.TrimSpace(string(output)), "\n")[0])
	if streamURL == "" {
		return "", errors.New(errors.KindNotFound, "ytdlp.resolve", "yt-dlp returned no stream URL")
	}
	return streamURL, nil
}

// classifyYtDlpFailure maps yt-dlp stderr text onto the engine's error kinds.
func classifyYtDlpFailure(op, output string, err error) error {
	lower := strings.ToLower(output)
	switch {
	case strings.Contains(lower, "429") || strings.Contains(lower, "too many requests") ||
		strings.Contains(lower, "rate-limit") || strings.Contains(lower, "rate limit"):
		return errors.Wrap(errors.KindRateLimited, op, err)
	case strings.Contains(lower, "drm"):
		return errors.Wrap(errors.KindDRMBlocked, op, err)
	case strings.Contains(lower, "not available in your country") ||
		strings.Contains(lower, "geo restriction") || strings.Contains(lower, "geo-restricted"):
		return errors.Wrap(errors.KindGeoBlocked, op, err)
	case strings.Contains(lower, "video unavailable") || strings.Contains(lower, "404") ||
		strings.Contains(lower, "does not exist") || strings.Contains(lower, "not found") ||
		strings.Contains(lower, "private video") || strings.Contains(lower, "removed"):
		return errors.Wrap(errors.KindNotFound, op, err)
	case strings.Contains(lower, "unsupported url") || strings.Contains(lower, "no extractor"):
		return errors.Wrap(errors.KindUnsupported, op, err)
	case strings.Contains(lower, "is not a valid url") || strings.Contains(lower, "invalid url"):
		return errors.Wrap(errors.KindMalformed, op, err)
	case strings.Contains(lower, "timed out") || strings.Contains(lower, "timeout") ||
		strings.Contains(lower, "connection") || strings.Contains(lower, "network") ||
		strings.Contains(lower, "temporary failure"):
		return errors.Wrap(errors.KindNetwork, op, err)
	default:
		return errors.Wrap(errors.KindNetwork, op, err)
	}
}
