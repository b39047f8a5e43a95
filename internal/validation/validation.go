package validation

import (
	"net/url"
	"strings"

	apperrors "github.com/vuongmanhnghia/discord-queue-engine/internal/errors"
)

// NormalizeSubmission trims a user-submitted URL and rejects input that is
// not an absolute http(s) URL before any provider sees it.
func NormalizeSubmission(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	// Chat clients often wrap links in angle brackets to suppress embeds.
	trimmed = strings.TrimPrefix(trimmed, "<")
	trimmed = strings.TrimSuffix(trimmed, ">")

	if trimmed == "" {
		return "", apperrors.New(apperrors.KindMalformed, "validation", "empty URL")
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindMalformed, "validation", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", apperrors.New(apperrors.KindMalformed, "validation",
			"unsupported scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", apperrors.New(apperrors.KindMalformed, "validation", "URL has no host")
	}
	return trimmed, nil
}
