package worker

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"

	"github.com/rs/zerolog"

	"github.com/imalyk/deepscan/internal/classify"
	"github.com/imalyk/deepscan/pkg/job"
)

const heatCell = 24

// ArtifactBlobs is the slice of object storage the renderer needs: staged
// frame thumbnails in, rendered artifacts out.
type ArtifactBlobs interface {
	UploadArtifact(ctx context.Context, object string, data []byte, contentType string) (string, error)
	FetchArtifact(ctx context.Context, object string) ([]byte, error)
}

// ArtifactRenderer produces the explanatory artifacts of the extended
// variant: a per-frame probability heat strip, a snapshot of the most-REAL
// and most-FAKE frames, and a sparse frame gallery.
type ArtifactRenderer struct {
	model         *classify.Model
	blobs         ArtifactBlobs
	galleryStride int
	log           zerolog.Logger
}

// NewArtifactRenderer builds a renderer. galleryStride <= 0 defaults to 5.
func NewArtifactRenderer(model *classify.Model, blobs ArtifactBlobs, galleryStride int, logger zerolog.Logger) *ArtifactRenderer {
	if galleryStride <= 0 {
		galleryStride = 5
	}
	return &ArtifactRenderer{
		model:         model,
		blobs:         blobs,
		galleryStride: galleryStride,
		log:           logger,
	}
}

// Render fills the artifact paths on result. Every step is best-effort: a
// failure is logged, the path stays empty, and classification is untouched.
func (r *ArtifactRenderer) Render(ctx context.Context, msg *job.Message, result *job.Result) {
	probs, err := r.model.FrameProbabilities(msg.Features)
	if err != nil {
		r.log.Warn().Err(err).Str("job_id", msg.JobID).Msg("per-frame scoring failed, skipping artifacts")
		return
	}

	if path, err := r.renderHeatStrip(ctx, msg.JobID, probs); err != nil {
		r.log.Warn().Err(err).Str("job_id", msg.JobID).Msg("heat strip rendering failed")
	} else {
		result.HeatmapPath = path
	}

	// The remaining artifacts need the staged thumbnails.
	if len(msg.FrameObjects) != len(probs) || len(probs) == 0 {
		return
	}

	if path, err := r.renderExtremes(ctx, msg, probs); err != nil {
		r.log.Warn().Err(err).Str("job_id", msg.JobID).Msg("extreme frames rendering failed")
	} else {
		result.ExtremePath = path
	}

	if path, err := r.renderGallery(ctx, msg); err != nil {
		r.log.Warn().Err(err).Str("job_id", msg.JobID).Msg("gallery rendering failed")
	} else {
		result.GalleryPath = path
	}
}

// renderHeatStrip draws one colored cell per frame, green for REAL-leaning
// and red for FAKE-leaning probabilities.
func (r *ArtifactRenderer) renderHeatStrip(ctx context.Context, jobID string, probs []float64) (string, error) {
	if len(probs) == 0 {
		return "", fmt.Errorf("no frame probabilities")
	}

	img := image.NewRGBA(image.Rect(0, 0, len(probs)*heatCell, heatCell))
	for i, p := range probs {
		cell := image.Rect(i*heatCell, 0, (i+1)*heatCell, heatCell)
		draw.Draw(img, cell, &image.Uniform{C: heatColor(p)}, image.Point{}, draw.Src)
	}

	return r.uploadPNG(ctx, fmt.Sprintf("artifacts/%s/heatmap.png", jobID), img)
}

// renderExtremes composes the single most-REAL and most-FAKE frame side by
// side.
func (r *ArtifactRenderer) renderExtremes(ctx context.Context, msg *job.Message, probs []float64) (string, error) {
	minIdx, maxIdx := 0, 0
	for i, p := range probs {
		if p < probs[minIdx] {
			minIdx = i
		}
		if p > probs[maxIdx] {
			maxIdx = i
		}
	}

	mostReal, err := r.fetchThumb(ctx, msg.FrameObjects[minIdx])
	if err != nil {
		return "", err
	}
	mostFake, err := r.fetchThumb(ctx, msg.FrameObjects[maxIdx])
	if err != nil {
		return "", err
	}

	img := composeRow([]image.Image{mostReal, mostFake}, 4)
	return r.uploadPNG(ctx, fmt.Sprintf("artifacts/%s/extremes.png", msg.JobID), img)
}

// renderGallery lines up every Nth sampled frame.
func (r *ArtifactRenderer) renderGallery(ctx context.Context, msg *job.Message) (string, error) {
	var thumbs []image.Image
	for i := 0; i < len(msg.FrameObjects); i += r.galleryStride {
		thumb, err := r.fetchThumb(ctx, msg.FrameObjects[i])
		if err != nil {
			return "", err
		}
		thumbs = append(thumbs, thumb)
	}
	if len(thumbs) == 0 {
		return "", fmt.Errorf("no frames for gallery")
	}

	img := composeRow(thumbs, 2)
	return r.uploadPNG(ctx, fmt.Sprintf("artifacts/%s/gallery.png", msg.JobID), img)
}

func (r *ArtifactRenderer) fetchThumb(ctx context.Context, object string) (image.Image, error) {
	data, err := r.blobs.FetchArtifact(ctx, object)
	if err != nil {
		return nil, err
	}
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode thumbnail %q: %w", object, err)
	}
	return img, nil
}

func (r *ArtifactRenderer) uploadPNG(ctx context.Context, object string, img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encode png: %w", err)
	}
	return r.blobs.UploadArtifact(ctx, object, buf.Bytes(), "image/png")
}

// composeRow draws images left to right with a uniform gap, top-aligned on
// a white background.
func composeRow(images []image.Image, gap int) *image.RGBA {
	width, height := 0, 0
	for _, img := range images {
		b := img.Bounds()
		width += b.Dx()
		if b.Dy() > height {
			height = b.Dy()
		}
	}
	width += gap * (len(images) - 1)

	out := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(out, out.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)

	x := 0
	for _, img := range images {
		b := img.Bounds()
		draw.Draw(out, image.Rect(x, 0, x+b.Dx(), b.Dy()), img, b.Min, draw.Src)
		x += b.Dx() + gap
	}
	return out
}

// heatColor blends green into red as the fake probability rises.
func heatColor(p float64) color.RGBA {
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	return color.RGBA{
		R: uint8(40 + 200*p),
		G: uint8(200 * (1 - p)),
		B: 40,
		A: 255,
	}
}
