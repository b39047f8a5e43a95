package audio

import (
	"context"
	"io"
	"testing"

	apperrors "github.com/vuongmanhnghia/discord-queue-engine/internal/errors"
	"github.com/vuongmanhnghia/discord-queue-engine/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "error", Output: io.Discard})
}

func TestClassifyStreamFailure(t *testing.T) {
	cause := io.ErrUnexpectedEOF
	tests := []struct {
		name   string
		output string
		want   apperrors.Kind
	}{
		{"http 403 means expired", "https://cdn.example/x: Server returned 403 Forbidden (access denied)", apperrors.KindExpired},
		{"http 404", "https://cdn.example/x: Server returned 404 Not Found", apperrors.KindNotFound},
		{"connection failure", "Connection to tcp://cdn.example:443 failed", apperrors.KindNetwork},
		{"timeout", "Connection timed out", apperrors.KindNetwork},
		{"unknown output", "Invalid data found when processing input", apperrors.KindTransport},
		{"empty output", "", apperrors.KindTransport},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyStreamFailure(tt.output, cause)
			if got := apperrors.KindOf(err); got != tt.want {
				t.Errorf("kind = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestVoiceConnectionDisconnectIdempotent(t *testing.T) {
	vc := NewVoiceConnection("guild-1", testLogger())
	if err := vc.Disconnect(); err != nil {
		t.Errorf("disconnect while not connected should be a no-op: %v", err)
	}
	if vc.IsConnected() {
		t.Error("fresh connection should not report connected")
	}
	if vc.GetChannelID() != "" {
		t.Error("fresh connection should have no channel")
	}
}

func TestPlayerRequiresConnection(t *testing.T) {
	vc := NewVoiceConnection("guild-1", testLogger())
	player := NewAudioPlayer("guild-1", vc, testLogger())

	err := player.Play(context.Background(), "https://cdn.example/stream")
	if err != ErrNoVoiceConnection {
		t.Errorf("err = %v, want ErrNoVoiceConnection", err)
	}
	if player.IsPlaying() {
		t.Error("player should not report playing after a refused start")
	}
}

func TestPlayerStopWhileIdleIsNoOp(t *testing.T) {
	vc := NewVoiceConnection("guild-1", testLogger())
	player := NewAudioPlayer("guild-1", vc, testLogger())
	player.Stop()
	player.Stop()
}

func TestFirstLine(t *testing.T) {
	if got := firstLine("one\ntwo"); got != "one" {
		t.Errorf("firstLine = %q", got)
	}
	if got := firstLine("single"); got != "single" {
		t.Errorf("firstLine = %q", got)
	}
}
