package providers

import (
	"context"
	"io"
	"testing"

	"github.com/vuongmanhnghia/discord-queue-engine/internal/domain/entities"
	"github.com/vuongmanhnghia/discord-queue-engine/internal/domain/valueobjects"
	"github.com/vuongmanhnghia/discord-queue-engine/internal/errors"
	"github.com/vuongmanhnghia/discord-queue-engine/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "error", Output: io.Discard})
}

type fakeProvider struct {
	name     string
	source   valueobjects.SourceTag
	prefix   string
	resolved string
}

func (f *fakeProvider) Name() string                      { return f.name }
func (f *fakeProvider) Source() valueobjects.SourceTag    { return f.source }
func (f *fakeProvider) Matches(url string) bool           { return len(url) >= len(f.prefix) && url[:len(f.prefix)] == f.prefix }
func (f *fakeProvider) Extract(ctx context.Context, url string) (*entities.Track, error) {
	return &entities.Track{Title: f.name, CanonicalURL: url, Source: f.source}, nil
}
func (f *fakeProvider) ResolvePlayable(ctx context.Context, canonicalURL string) (string, error) {
	return f.resolved, nil
}

func TestRegistryDispatchOrder(t *testing.T) {
	r := NewRegistry(testLogger())
	first := &fakeProvider{name: "first", source: valueobjects.SourceYouTube, prefix: "https://a"}
	second := &fakeProvider{name: "second", source: valueobjects.SourceGeneric, prefix: "https://"}
	r.Register(first)
	r.Register(second)

	track, err := r.Extract(context.Background(), "https://a.example/x")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if track.Title != "first" {
		t.Errorf("dispatched to %q, want first-registered match", track.Title)
	}

	track, err = r.Extract(context.Background(), "https://b.example/x")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if track.Title != "second" {
		t.Errorf("dispatched to %q, want fallback provider", track.Title)
	}
}

func TestRegistryUnsupportedURL(t *testing.T) {
	r := NewRegistry(testLogger())
	_, err := r.Extract(context.Background(), "ftp://nope.example/file.mp3")
	if !errors.IsKind(err, errors.KindUnsupported) {
		t.Errorf("kind = %q, want unsupported", errors.KindOf(err))
	}
}

func TestRegistryEmptyURLMalformed(t *testing.T) {
	r := NewRegistry(testLogger())
	_, err := r.Extract(context.Background(), "   ")
	if !errors.IsKind(err, errors.KindMalformed) {
		t.Errorf("kind = %q, want malformed", errors.KindOf(err))
	}
}

func TestRegistryResolveBySource(t *testing.T) {
	r := NewRegistry(testLogger())
	r.Register(&fakeProvider{name: "yt", source: valueobjects.SourceYouTube, prefix: "https://", resolved: "https://stream.example/x"})

	url, err := r.ResolvePlayable(context.Background(), &entities.Track{
		CanonicalURL: "https://www.youtube.com/watch?v=abc",
		Source:       valueobjects.SourceYouTube,
	})
	if err != nil {
		t.Fatalf("ResolvePlayable: %v", err)
	}
	if url != "https://stream.example/x" {
		t.Errorf("resolved = %q", url)
	}

	_, err = r.ResolvePlayable(context.Background(), &entities.Track{Source: valueobjects.SourceNetEase})
	if !errors.IsKind(err, errors.KindUnsupported) {
		t.Errorf("kind = %q, want unsupported for unregistered source", errors.KindOf(err))
	}
}

func TestRegistryResolveDirectFileKeepsCanonical(t *testing.T) {
	r := NewRegistry(testLogger())
	// The provider offers a different URL; direct-file sources must still
	// play the canonical one.
	r.Register(&fakeProvider{name: "cb", source: valueobjects.SourceCatbox, prefix: "https://", resolved: "https://other.example/x"})

	url, err := r.ResolvePlayable(context.Background(), &entities.Track{
		CanonicalURL: "https://files.catbox.moe/abc123.mp3",
		Source:       valueobjects.SourceCatbox,
	})
	if err != nil {
		t.Fatalf("ResolvePlayable: %v", err)
	}
	if url != "https://files.catbox.moe/abc123.mp3" {
		t.Errorf("resolved = %q, want the canonical file URL", url)
	}
}

func TestProviderURLMatching(t *testing.T) {
	yt := &YouTubeProvider{}
	bili := &BilibiliProvider{}
	sc := &SoundCloudProvider{}
	ne := &NetEaseProvider{}
	cb := NewCatboxProvider(testLogger())
	gen := NewGenericFileProvider()

	tests := []struct {
		url     string
		matches func(string) bool
		want    bool
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", yt.Matches, true},
		{"https://youtu.be/dQw4w9WgXcQ", yt.Matches, true},
		{"https://music.youtube.com/watch?v=dQw4w9WgXcQ", yt.Matches, true},
		{"https://vimeo.com/12345", yt.Matches, false},
		{"https://www.bilibili.com/video/BV1xx411c7mD", bili.Matches, true},
		{"https://www.bilibili.com/video/av170001", bili.Matches, true},
		{"https://www.bilibili.com/read/cv123", bili.Matches, false},
		{"https://soundcloud.com/artist/track-name", sc.Matches, true},
		{"https://soundcloud.com/artist", sc.Matches, false},
		{"https://music.163.com/song?id=1901371647", ne.Matches, true},
		{"https://music.163.com/#/song?id=1901371647", ne.Matches, true},
		{"https://y.music.163.com/m/song?id=1901371647", ne.Matches, true},
		{"https://m701.music.126.net/song.mp3?id=1901371647", ne.Matches, true},
		{"https://music.163.com/discover/playlist", ne.Matches, false},
		{"https://music163.com/song?id=1", ne.Matches, false},
		{"https://files.catbox.moe/abc123.mp3", cb.Matches, true},
		{"https://files.catbox.moe/abc123.txt", cb.Matches, false},
		{"https://example.com/song.flac", gen.Matches, true},
		{"https://example.com/song.wma", gen.Matches, true},
		{"https://example.com/clip.webm", gen.Matches, false},
		{"https://example.com/page.html", gen.Matches, false},
	}
	for _, tt := range tests {
		if got := tt.matches(tt.url); got != tt.want {
			t.Errorf("Matches(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}

func TestNetEaseSongIDParsing(t *testing.T) {
	tests := []struct {
		url     string
		want    string
		wantErr bool
	}{
		{"https://music.163.com/song?id=1901371647", "1901371647", false},
		{"https://music.163.com/#/song?id=1901371647&userid=1", "1901371647", false},
		{"https://music.163.com/playlist", "", true},
	}
	for _, tt := range tests {
		id, err := neteaseSongID(tt.url)
		if tt.wantErr {
			if !errors.IsKind(err, errors.KindMalformed) {
				t.Errorf("neteaseSongID(%q) kind = %q, want malformed", tt.url, errors.KindOf(err))
			}
			continue
		}
		if err != nil {
			t.Errorf("neteaseSongID(%q): %v", tt.url, err)
			continue
		}
		if id != tt.want {
			t.Errorf("neteaseSongID(%q) = %q, want %q", tt.url, id, tt.want)
		}
	}
}

func TestClassifyYtDlpFailure(t *testing.T) {
	cause := io.ErrUnexpectedEOF
	tests := []struct {
		output string
		want   errors.Kind
	}{
		{"ERROR: HTTP Error 429: Too Many Requests", errors.KindRateLimited},
		{"ERROR: This video is DRM protected", errors.KindDRMBlocked},
		{"ERROR: The uploader has not made this video available in your country", errors.KindGeoBlocked},
		{"ERROR: Video unavailable", errors.KindNotFound},
		{"ERROR: Unsupported URL: https://example.com", errors.KindUnsupported},
		{"ERROR: 'xyz' is not a valid URL", errors.KindMalformed},
		{"ERROR: Connection timed out", errors.KindNetwork},
		{"something inscrutable", errors.KindNetwork},
	}
	for _, tt := range tests {
		err := classifyYtDlpFailure("ytdlp.extract", tt.output, cause)
		if got := errors.KindOf(err); got != tt.want {
			t.Errorf("classify(%q) = %q, want %q", tt.output, got, tt.want)
		}
	}
}
