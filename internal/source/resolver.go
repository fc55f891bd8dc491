// Package source turns a user-supplied video reference, either an uploaded
// byte stream or a URL, into validated bytes plus a normalized file name.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var (
	// ErrTooLarge rejects direct downloads above the configured cap.
	ErrTooLarge = errors.New("file is too big")
	// ErrBrokenDownload rejects empty or implausibly small payloads.
	ErrBrokenDownload = errors.New("downloaded video is too small, likely broken")
	// ErrBadExtension rejects anything that is not an accepted video container.
	ErrBadExtension = errors.New("file format is invalid, please use a .mp4 or .mov file")
)

var validExtensions = []string{".mp4", ".mov"}

// hostedDomains are video-hosting sites that need the specialized downloader
// instead of a direct GET.
var hostedDomains = []string{"youtube.com", "youtu.be"}

// Source is a reference to a video: either raw upload bytes with a caller
// supplied name, or a URL to fetch.
type Source struct {
	Data     []byte
	FileName string
	URL      string
}

// FromUpload wraps uploaded bytes.
func FromUpload(data []byte, fileName string) Source {
	return Source{Data: data, FileName: fileName}
}

// FromURL wraps a remote reference.
func FromURL(rawURL string) Source {
	return Source{URL: rawURL}
}

// Resolver validates and materializes sources.
type Resolver struct {
	client         *http.Client
	hosted         *HostedDownloader
	maxBytes       int64
	minHostedBytes int64
	log            zerolog.Logger
}

// New builds a Resolver. hosted may be nil, in which case hosting-site URLs
// are rejected.
func New(hosted *HostedDownloader, maxBytes, minHostedBytes int64, logger zerolog.Logger) *Resolver {
	return &Resolver{
		client:         &http.Client{Timeout: 10 * time.Minute},
		hosted:         hosted,
		maxBytes:       maxBytes,
		minHostedBytes: minHostedBytes,
		log:            logger,
	}
}

// Resolve returns the video bytes and the file name to store them under.
// Nothing is persisted on any failure path.
func (r *Resolver) Resolve(ctx context.Context, src Source) ([]byte, string, error) {
	data := src.Data
	fileName := src.FileName

	if src.URL != "" {
		var err error
		data, err = r.download(ctx, src.URL)
		if err != nil {
			return nil, "", err
		}
		fileName = FileNameFromURL(src.URL)
	}

	if !hasValidExtension(fileName) {
		return nil, "", fmt.Errorf("%w: %q", ErrBadExtension, fileName)
	}
	if len(data) == 0 {
		return nil, "", ErrBrokenDownload
	}
	return data, fileName, nil
}

func (r *Resolver) download(ctx context.Context, rawURL string) ([]byte, error) {
	if IsHostedURL(rawURL) {
		if r.hosted == nil {
			return nil, fmt.Errorf("no downloader configured for hosting-site url %q", rawURL)
		}
		data, err := r.hosted.Download(ctx, rawURL)
		if err != nil {
			return nil, err
		}
		if int64(len(data)) < r.minHostedBytes {
			return nil, fmt.Errorf("%w: got %d bytes", ErrBrokenDownload, len(data))
		}
		return data, nil
	}
	return r.directGet(ctx, rawURL)
}

func (r *Resolver) directGet(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download video: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download video: HTTP %d", resp.StatusCode)
	}
	if resp.ContentLength > r.maxBytes {
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, r.maxBytes)
	}

	// Read one byte past the cap so an unset Content-Length cannot smuggle
	// an oversize body through.
	data, err := io.ReadAll(io.LimitReader(resp.Body, r.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if int64(len(data)) > r.maxBytes {
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, r.maxBytes)
	}
	return data, nil
}

// IsHostedURL reports whether the URL points at a known video-hosting site.
func IsHostedURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, domain := range hostedDomains {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}

// FileNameFromURL derives a storable file name from a URL: the URL-decoded
// basename of the path with the query stripped, falling back to a .mp4
// suffix when the basename carries no accepted extension.
func FileNameFromURL(rawURL string) string {
	name := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		name = u.Path
	}
	if decoded, err := url.PathUnescape(name); err == nil {
		name = decoded
	}
	name = path.Base(name)
	if name == "." || name == "/" || name == "" {
		name = "video"
	}
	if !hasValidExtension(name) {
		name += ".mp4"
	}
	return name
}

func hasValidExtension(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range validExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
