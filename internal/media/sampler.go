// Package media decodes video containers and extracts an evenly spaced,
// bounded subset of RGB frames via ffmpeg.
package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// ErrNoFrames is returned when no frame could be decoded from the source.
var ErrNoFrames = errors.New("unable to extract frames from video")

// Frame is a single decoded frame in packed RGB24 layout.
type Frame struct {
	Width  int
	Height int
	Pix    []byte
}

// Sampler extracts roughly one frame per second of source video, scaled to
// the backbone's input size.
type Sampler struct {
	FFMPEGPath  string
	FFProbePath string
	Size        int // output width and height in pixels
	log         zerolog.Logger
}

// NewSampler builds a Sampler targeting square frames of the given size.
func NewSampler(ffmpegPath, ffprobePath string, size int, logger zerolog.Logger) *Sampler {
	return &Sampler{
		FFMPEGPath:  ffmpegPath,
		FFProbePath: ffprobePath,
		Size:        size,
		log:         logger,
	}
}

// Sample reads the container at path and returns up to maxFrames frames,
// keeping every interval-th frame where interval = round(fps), min 1.
func (s *Sampler) Sample(ctx context.Context, path string, maxFrames int) ([]Frame, error) {
	fps, err := s.probeFrameRate(ctx, path)
	if err != nil {
		s.log.Warn().Err(err).Str("path", path).Msg("frame rate probe failed, sampling every frame")
		fps = 0
	}
	interval := sampleInterval(fps)

	args := []string{
		"-v", "error",
		"-i", path,
		"-vf", fmt.Sprintf("select=not(mod(n\\,%d)),scale=%d:%d", interval, s.Size, s.Size),
		"-vsync", "vfr",
		"-frames:v", strconv.Itoa(maxFrames),
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"pipe:1",
	}
	cmd := exec.CommandContext(ctx, s.FFMPEGPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg start: %w", err)
	}

	frames, readErr := readFrames(stdout, s.Size, s.Size, maxFrames)

	// Always reap the decoder, success or failure.
	waitErr := cmd.Wait()

	if len(frames) == 0 {
		detail := strings.TrimSpace(stderr.String())
		if readErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoFrames, readErr)
		}
		if waitErr != nil && detail != "" {
			return nil, fmt.Errorf("%w: %s", ErrNoFrames, detail)
		}
		return nil, ErrNoFrames
	}
	if waitErr != nil {
		s.log.Warn().Err(waitErr).Int("frames", len(frames)).Msg("ffmpeg exited abnormally after partial decode")
	}

	return frames, nil
}

// probeFrameRate reads the declared frame rate of the first video stream.
func (s *Sampler) probeFrameRate(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, s.FFProbePath,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=r_frame_rate",
		"-of", "json",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}

	var meta struct {
		Streams []struct {
			RFrameRate string `json:"r_frame_rate"`
		} `json:"streams"`
	}
	if err := json.Unmarshal(out, &meta); err != nil {
		return 0, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if len(meta.Streams) == 0 {
		return 0, errors.New("no video stream found")
	}
	return parseFrameRate(meta.Streams[0].RFrameRate)
}

// parseFrameRate parses ffprobe's rational frame rate, e.g. "30000/1001".
func parseFrameRate(value string) (float64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, errors.New("empty frame rate")
	}
	if num, den, ok := strings.Cut(value, "/"); ok {
		n, err := strconv.ParseFloat(num, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid frame rate %q", value)
		}
		d, err := strconv.ParseFloat(den, 64)
		if err != nil || d == 0 {
			return 0, fmt.Errorf("invalid frame rate %q", value)
		}
		return n / d, nil
	}
	n, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid frame rate %q", value)
	}
	return n, nil
}

// sampleInterval converts a frame rate into the keep-every-nth interval:
// one frame per second of source, never less than one.
func sampleInterval(fps float64) int {
	interval := int(math.Round(fps))
	if interval < 1 {
		interval = 1
	}
	return interval
}

// readFrames consumes packed rgb24 frames from r until maxFrames or EOF.
func readFrames(r io.Reader, width, height, maxFrames int) ([]Frame, error) {
	frameSize := width * height * 3
	var frames []Frame

	for len(frames) < maxFrames {
		buf := make([]byte, frameSize)
		_, err := io.ReadFull(r, buf)
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			// Trailing partial frame, drop it.
			break
		}
		if err != nil {
			return frames, err
		}
		frames = append(frames, Frame{Width: width, Height: height, Pix: buf})
	}
	return frames, nil
}
