package audio

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/jonas747/ogg"
	apperrors "github.com/vuongmanhnghia/discord-queue-engine/internal/errors"
	"github.com/vuongmanhnghia/discord-queue-engine/pkg/logger"
)

// AudioEncoder turns a playable stream URL into 20ms Opus frames via an
// ffmpeg subprocess producing OGG/Opus on stdout.
type AudioEncoder struct {
	logger *logger.Logger
}

// NewAudioEncoder creates a new audio encoder
func NewAudioEncoder(log *logger.Logger) *AudioEncoder {
	return &AudioEncoder{
		logger: log,
	}
}

// EncodeOptions contains options for encoding
type EncodeOptions struct {
	Bitrate     int    // in kbps, default 128
	Application string // audio, voip, or lowdelay
	BufferSize  int    // frame channel capacity
}

// DefaultEncodeOptions returns default encoding options
func DefaultEncodeOptions() *EncodeOptions {
	return &EncodeOptions{
		Bitrate:     128,
		Application: "audio",
		BufferSize:  1024,
	}
}

// EncodeStream starts encoding a stream URL. It returns a frame channel that
// closes when encoding ends and an error channel that carries at most one
// classified error. Cancelling the context kills ffmpeg.
func (e *AudioEncoder) EncodeStream(ctx context.Context, streamURL string, options *EncodeOptions) (<-chan []byte, <-chan error) {
	if options == nil {
		options = DefaultEncodeOptions()
	}

	frameChannel := make(chan []byte, options.BufferSize)
	errorChannel := make(chan error, 1)

	go e.encode(ctx, streamURL, options, frameChannel, errorChannel)

	return frameChannel, errorChannel
}

func (e *AudioEncoder) encode(ctx context.Context, streamURL string, options *EncodeOptions, frameChannel chan []byte, errorChannel chan error) {
	defer close(frameChannel)
	defer close(errorChannel)

	// ffmpeg reads the resolved stream URL directly. The reconnect flags
	// ride out transient CDN drops; a hard 403 means the URL expired and
	// the caller must re-resolve.
	args := []string{
		"-reconnect", "1",
		"-reconnect_streamed", "1",
		"-reconnect_delay_max", "2",
		"-i", streamURL,
		"-map", "0:a",
		"-acodec", "libopus",
		"-f", "ogg",
		"-ar", "48000",
		"-ac", "2",
		"-b:a", fmt.Sprintf("%d", options.Bitrate*1000),
		"-application", options.Application,
		"-frame_duration", "20",
		"-vn",
		"-loglevel", "error",
		"pipe:1",
	}

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		errorChannel <- fmt.Errorf("failed to get ffmpeg stdout: %w", err)
		return
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		errorChannel <- fmt.Errorf("failed to get ffmpeg stderr: %w", err)
		return
	}

	// Collect stderr so a failed stream can be classified after exit.
	var stderrBuf strings.Builder
	var stderrMu sync.Mutex
	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			line := scanner.Text()
			stderrMu.Lock()
			stderrBuf.WriteString(line)
			stderrBuf.WriteByte('\n')
			stderrMu.Unlock()
			e.logger.WithField("ffmpeg", line).Warn("FFmpeg output")
		}
	}()

	if err := cmd.Start(); err != nil {
		errorChannel <- fmt.Errorf("failed to start ffmpeg: %w", err)
		return
	}
	defer func() {
		if cmd.Process != nil {
			cmd.Process.Kill()
			cmd.Wait()
		}
	}()

	decoder := ogg.NewPacketDecoder(ogg.NewDecoder(stdout))

	frameCount := 0
	frameInterval := 20 * time.Millisecond
	startTime := time.Now()

	// Skip the Opus header and comment packets.
	skipPackets := 2

	for {
		packet, _, err := decoder.Decode()
		if err != nil {
			if ctx.Err() != nil {
				errorChannel <- apperrors.Wrap(apperrors.KindCancelled, "encoder", ctx.Err())
				return
			}
			if err == io.EOF {
				if frameCount > 0 {
					e.logger.WithField("frames", frameCount).Info("✅ Encoding completed")
					return
				}
				// Nothing decoded at all: the stream never opened.
				stderrMu.Lock()
				output := stderrBuf.String()
				stderrMu.Unlock()
				errorChannel <- classifyStreamFailure(output, err)
				return
			}
			if frameCount > 0 {
				e.logger.WithError(err).WithField("frames", frameCount).Warn("Encoding ended mid-stream")
				return
			}
			stderrMu.Lock()
			output := stderrBuf.String()
			stderrMu.Unlock()
			errorChannel <- classifyStreamFailure(output, err)
			return
		}

		if skipPackets > 0 {
			skipPackets--
			continue
		}
		if len(packet) == 0 {
			continue
		}
		frameCount++

		// Throttle to playback rate so the frame buffer never overruns.
		expectedTime := startTime.Add(time.Duration(frameCount) * frameInterval)
		if now := time.Now(); now.Before(expectedTime) {
			time.Sleep(expectedTime.Sub(now))
		}

		select {
		case frameChannel <- packet:
		case <-ctx.Done():
			errorChannel <- apperrors.Wrap(apperrors.KindCancelled, "encoder", ctx.Err())
			return
		}
	}
}

// classifyStreamFailure maps ffmpeg stderr text onto engine error kinds. A
// 403 on a previously-resolved stream URL means the URL expired.
func classifyStreamFailure(output string, err error) error {
	lower := strings.ToLower(output)
	switch {
	case strings.Contains(lower, "403") || strings.Contains(lower, "forbidden"):
		return apperrors.New(apperrors.KindExpired, "encoder", "stream URL rejected: %s", firstLine(output))
	case strings.Contains(lower, "404") || strings.Contains(lower, "not found"):
		return apperrors.New(apperrors.KindNotFound, "encoder", "stream gone: %s", firstLine(output))
	case strings.Contains(lower, "connection") || strings.Contains(lower, "timed out") ||
		strings.Contains(lower, "network") || strings.Contains(lower, "unreachable"):
		return apperrors.New(apperrors.KindNetwork, "encoder", "stream network failure: %s", firstLine(output))
	default:
		return apperrors.Wrap(apperrors.KindTransport, "encoder", fmt.Errorf("%v: %s", err, firstLine(output)))
	}
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
