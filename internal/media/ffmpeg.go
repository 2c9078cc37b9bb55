package media

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// FFmpegExtractor shells out to ffprobe/ffmpeg. Both binaries are expected
// on PATH of the gateway container image.
type FFmpegExtractor struct {
	Log         *zap.SugaredLogger
	FFprobePath string
	FFmpegPath  string
}

func NewFFmpegExtractor(log *zap.SugaredLogger) *FFmpegExtractor {
	return &FFmpegExtractor{
		Log:         log,
		FFprobePath: "ffprobe",
		FFmpegPath:  "ffmpeg",
	}
}

// Probe reads the container-level duration of the clip.
func (e *FFmpegExtractor) Probe(ctx context.Context, path string) (time.Duration, error) {
	cmd := exec.CommandContext(ctx, e.FFprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("ffprobe: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	seconds, err := strconv.ParseFloat(strings.TrimSpace(stdout.String()), 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe returned unparseable duration %q", stdout.String())
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

// ExtractFrame decodes exactly one frame at the given offset and returns
// it as JPEG bytes.
func (e *FFmpegExtractor) ExtractFrame(ctx context.Context, path string, offset time.Duration) ([]byte, error) {
	cmd := exec.CommandContext(ctx, e.FFmpegPath,
		"-v", "error",
		"-ss", fmt.Sprintf("%.3f", offset.Seconds()),
		"-i", path,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-",
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg at %s: %w: %s", offset, err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("ffmpeg produced no frame at %s", offset)
	}
	return stdout.Bytes(), nil
}

// writeTempVideo stores the decoded container so ffmpeg can seek in it.
func writeTempVideo(data []byte) (string, func(), error) {
	f, err := os.CreateTemp("", "perfeval-clip-*.mp4")
	if err != nil {
		return "", nil, fmt.Errorf("create temp video: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", nil, fmt.Errorf("write temp video: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", nil, fmt.Errorf("close temp video: %w", err)
	}
	return f.Name(), func() { os.Remove(f.Name()) }, nil
}
