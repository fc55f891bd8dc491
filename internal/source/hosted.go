package source

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// HostedDownloader resolves a playable progressive-format stream from a
// video-hosting site using the local yt-dlp binary, writing to a temporary
// file and reading it back.
type HostedDownloader struct {
	binaryPath string
	tempDir    string
	timeout    time.Duration
	log        zerolog.Logger
}

// NewHostedDownloader creates a downloader around the given yt-dlp binary.
func NewHostedDownloader(binaryPath, tempDir string, logger zerolog.Logger) *HostedDownloader {
	if binaryPath == "" {
		binaryPath = "yt-dlp"
	}
	return &HostedDownloader{
		binaryPath: binaryPath,
		tempDir:    tempDir,
		timeout:    5 * time.Minute,
		log:        logger,
	}
}

// Download fetches the video behind a hosting-site URL. The temporary file
// is removed on every exit path.
func (d *HostedDownloader) Download(ctx context.Context, videoURL string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	tmp, err := os.CreateTemp(d.tempDir, "deepscan-hosted-*.mp4")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	// Format 18 is the progressive mp4 stream; fall back to the best mp4,
	// then to whatever is available.
	cmd := exec.CommandContext(ctx, d.binaryPath,
		"-f", "18/best[ext=mp4]/best",
		"-o", tmpPath,
		"--no-playlist",
		"--no-warnings",
		"--force-overwrites",
		"--quiet",
		videoURL,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("yt-dlp failed: %w, stderr: %s", err, strings.TrimSpace(stderr.String()))
	}

	data, err := os.ReadFile(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("read downloaded file: %w", err)
	}

	d.log.Debug().Str("url", videoURL).Int("bytes", len(data)).Msg("hosted download complete")
	return data, nil
}
