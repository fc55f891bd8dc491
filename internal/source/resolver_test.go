package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestResolver(maxBytes int64) *Resolver {
	return New(nil, maxBytes, 100_000, zerolog.Nop())
}

func TestResolveUploadPassThrough(t *testing.T) {
	r := newTestResolver(1 << 20)

	data, name, err := r.Resolve(context.Background(), FromUpload([]byte("video-bytes"), "clip.MP4"))
	require.NoError(t, err)
	assert.Equal(t, []byte("video-bytes"), data)
	assert.Equal(t, "clip.MP4", name)
}

func TestResolveRejectsBadExtension(t *testing.T) {
	r := newTestResolver(1 << 20)

	_, _, err := r.Resolve(context.Background(), FromUpload([]byte("x"), "document.pdf"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBadExtension)
}

func TestResolveDirectGet(t *testing.T) {
	body := strings.Repeat("v", 2048)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	r := newTestResolver(1 << 20)
	data, name, err := r.Resolve(context.Background(), FromURL(srv.URL+"/media/sample%20clip.mp4?sig=abc"))
	require.NoError(t, err)
	assert.Len(t, data, 2048)
	assert.Equal(t, "sample clip.mp4", name)
}

func TestResolveRejectsNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	r := newTestResolver(1 << 20)
	_, _, err := r.Resolve(context.Background(), FromURL(srv.URL+"/clip.mp4"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 403")
}

func TestResolveRejectsZeroByteResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	defer srv.Close()

	r := newTestResolver(1 << 20)
	_, _, err := r.Resolve(context.Background(), FromURL(srv.URL+"/clip.mp4"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBrokenDownload)
}

func TestResolveRejectsOversizeBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(make([]byte, 4096))
	}))
	defer srv.Close()

	r := newTestResolver(1024)
	_, _, err := r.Resolve(context.Background(), FromURL(srv.URL+"/clip.mp4"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestResolveRejectsOversizeContentLength(t *testing.T) {
	// The declared size alone must reject the download before the body is read.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Length", "2048")
		_, _ = w.Write(make([]byte, 2048))
	}))
	defer srv.Close()

	r := newTestResolver(1024)
	_, _, err := r.Resolve(context.Background(), FromURL(srv.URL+"/clip.mp4"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestIsHostedURL(t *testing.T) {
	assert.True(t, IsHostedURL("https://www.youtube.com/watch?v=abc123"))
	assert.True(t, IsHostedURL("https://youtu.be/abc123"))
	assert.True(t, IsHostedURL("https://m.youtube.com/watch?v=abc123"))
	assert.False(t, IsHostedURL("https://example.com/clip.mp4"))
	assert.False(t, IsHostedURL("https://notyoutube.combo/clip.mp4"))
}

func TestFileNameFromURL(t *testing.T) {
	cases := map[string]string{
		"https://example.com/media/clip.mp4?sig=1":   "clip.mp4",
		"https://example.com/media/my%20clip.MOV":    "my clip.MOV",
		"https://www.youtube.com/watch?v=abc123":     "watch.mp4",
		"https://example.com/":                       "video.mp4",
		"https://example.com/download/video.webm":    "video.webm.mp4",
	}
	for rawURL, want := range cases {
		assert.Equal(t, want, FileNameFromURL(rawURL), rawURL)
	}
}
