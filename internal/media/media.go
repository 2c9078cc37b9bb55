// Package media normalizes raw request media (image lists or a single
// video) into the ordered JPEG frame sequence every backend understands.
package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"time"

	"perfeval-api/internal/metrics"
	"perfeval-api/internal/shared"

	"go.uber.org/zap"
	"golang.org/x/image/draw"
)

// Frame is one still image, ordered within its sequence.
type Frame struct {
	Bytes    []byte
	MimeType string
}

// NormalizedContent is derived once per request and consumed read-only by
// every adapter invocation. Concurrent workers never race on it.
type NormalizedContent struct {
	Prompt string
	Frames []Frame
}

// FrameExtractor probes a video container and pulls single frames at
// offsets. The production implementation shells out to ffmpeg; tests
// substitute a fake.
type FrameExtractor interface {
	Probe(ctx context.Context, path string) (time.Duration, error)
	ExtractFrame(ctx context.Context, path string, offset time.Duration) ([]byte, error)
}

type Normalizer struct {
	Log        *zap.SugaredLogger
	extractor  FrameExtractor
	frameCount int
}

func NewNormalizer(log *zap.SugaredLogger, extractor FrameExtractor) *Normalizer {
	if extractor == nil {
		extractor = NewFFmpegExtractor(log)
	}
	return &Normalizer{
		Log:        log,
		extractor:  extractor,
		frameCount: shared.DefaultFrameCount,
	}
}

// Normalize converts the request media into NormalizedContent. It is
// synchronous and CPU/IO bound; callers must be able to block.
func (n *Normalizer) Normalize(ctx context.Context, req *shared.InferenceRequest) (*NormalizedContent, error) {
	switch req.MediaType {
	case shared.MediaTypeVideo:
		return n.normalizeVideo(ctx, req.Text, req.MediaBlobs())
	default:
		return n.normalizeImages(req.Text, req.MediaBlobs())
	}
}

func (n *Normalizer) normalizeImages(text string, blobs []string) (*NormalizedContent, error) {
	frames := make([]Frame, 0, len(blobs))
	for i, blob := range blobs {
		raw, err := base64.StdEncoding.DecodeString(blob)
		if err != nil {
			return nil, &shared.MediaError{
				Kind:  shared.ExtractionFailed,
				Cause: fmt.Errorf("decode image %d: %w", i, err),
			}
		}
		frames = append(frames, Frame{Bytes: raw, MimeType: "image/jpeg"})
	}
	return &NormalizedContent{Prompt: text, Frames: frames}, nil
}

func (n *Normalizer) normalizeVideo(ctx context.Context, text string, blobs []string) (*NormalizedContent, error) {
	if len(blobs) == 0 {
		return nil, &shared.MediaError{Kind: shared.NoMedia}
	}

	raw, err := base64.StdEncoding.DecodeString(blobs[0])
	if err != nil {
		return nil, &shared.MediaError{
			Kind:  shared.ExtractionFailed,
			Cause: fmt.Errorf("decode video blob: %w", err),
		}
	}

	path, cleanup, err := writeTempVideo(raw)
	if err != nil {
		return nil, &shared.MediaError{Kind: shared.ExtractionFailed, Cause: err}
	}
	defer cleanup()

	duration, err := n.extractor.Probe(ctx, path)
	if err != nil || duration <= 0 {
		// Best effort policy: an unprobeable container still gets sampled
		// against the fallback duration.
		n.Log.Warnw("Failed probing video duration, assuming fallback",
			"fallback", shared.FallbackClipDuration.String(),
			"error", err)
		metrics.ExtractionErrors.WithLabelValues("probe").Inc()
		duration = shared.FallbackClipDuration
	}

	interval := duration / time.Duration(n.frameCount)
	if interval < shared.MinFrameInterval {
		interval = shared.MinFrameInterval
	}

	const epsilon = 100 * time.Millisecond
	frames := make([]Frame, 0, n.frameCount)
	for i := 0; i < n.frameCount; i++ {
		offset := time.Duration(i) * interval
		if max := duration - epsilon; offset > max {
			offset = max
		}
		if offset < 0 {
			offset = 0
		}

		frameBytes, err := n.extractor.ExtractFrame(ctx, path, offset)
		if err != nil {
			// A single bad offset is skipped, not fatal.
			n.Log.Warnw("Keyframe extraction failed, skipping offset",
				"offset", offset.String(),
				"error", err)
			metrics.ExtractionErrors.WithLabelValues("extract").Inc()
			continue
		}

		resized, err := fitJPEG(frameBytes, shared.MaxFrameWidth, shared.MaxFrameHeight)
		if err != nil {
			n.Log.Warnw("Keyframe re-encode failed, skipping offset",
				"offset", offset.String(),
				"error", err)
			metrics.ExtractionErrors.WithLabelValues("encode").Inc()
			continue
		}
		frames = append(frames, Frame{Bytes: resized, MimeType: "image/jpeg"})
	}

	metrics.FramesExtracted.Observe(float64(len(frames)))
	if len(frames) == 0 {
		return nil, &shared.MediaError{
			Kind:  shared.ExtractionFailed,
			Cause: fmt.Errorf("no usable frames in %s clip", duration),
		}
	}

	n.Log.Infow("Video normalized",
		"duration", duration.String(),
		"interval", interval.String(),
		"frames", len(frames))

	return &NormalizedContent{
		Prompt: videoPrompt(len(frames), text),
		Frames: frames,
	}, nil
}

// videoPrompt tells the backend it is looking at ordered keyframes from
// one clip rather than unrelated images.
func videoPrompt(frameCount int, text string) string {
	return fmt.Sprintf(
		"The following %d images are keyframes sampled in chronological order from a single video. Treat them as one continuous clip when answering.\n\n%s",
		frameCount, text)
}

// fitJPEG downscales an image to fit the bounding box, preserving aspect
// ratio, and re-encodes it as JPEG to bound payload size.
func fitJPEG(data []byte, maxW, maxH int) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	scale := 1.0
	if sw := float64(maxW) / float64(w); sw < scale {
		scale = sw
	}
	if sh := float64(maxH) / float64(h); sh < scale {
		scale = sh
	}

	out := src
	if scale < 1.0 {
		dw, dh := int(float64(w)*scale), int(float64(h)*scale)
		if dw < 1 {
			dw = 1
		}
		if dh < 1 {
			dh = 1
		}
		dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
		out = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return buf.Bytes(), nil
}
