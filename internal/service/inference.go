package service

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/imalyk/deepscan/internal/media"
	"github.com/imalyk/deepscan/internal/metrics"
	"github.com/imalyk/deepscan/internal/queue"
	"github.com/imalyk/deepscan/pkg/job"
)

// Inference is the boundary to the classification engine: submit a local
// video for analysis, poll for its result. The pipeline below is the only
// production implementation; tests substitute stubs.
type Inference interface {
	AnalyzeVideo(ctx context.Context, videoPath string) (string, error)
	GetResult(ctx context.Context, jobID string) (Status, error)
}

// BlobStore is the object-storage collaborator as seen by the service.
type BlobStore interface {
	UploadVideo(ctx context.Context, data []byte, name string) (string, error)
	UploadArtifact(ctx context.Context, object string, data []byte, contentType string) (string, error)
}

// FrameSampler extracts a bounded frame subset from a local video file.
type FrameSampler interface {
	Sample(ctx context.Context, path string, maxFrames int) ([]media.Frame, error)
}

// FrameEncoder turns frames into fixed-length embeddings.
type FrameEncoder interface {
	Encode(ctx context.Context, frames []media.Frame) ([][]float32, error)
}

// Pipeline is the concrete inference implementation: sample frames, encode
// them with the frozen backbone, and hand the embedding batch to the queue.
type Pipeline struct {
	sampler   FrameSampler
	encoder   FrameEncoder
	queue     *queue.Client
	blobs     BlobStore
	maxFrames int
	modelID   string
	log       zerolog.Logger
}

// NewPipeline wires the synchronous half of the pipeline.
func NewPipeline(sampler FrameSampler, encoder FrameEncoder, q *queue.Client, blobs BlobStore, maxFrames int, modelID string, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		sampler:   sampler,
		encoder:   encoder,
		queue:     q,
		blobs:     blobs,
		maxFrames: maxFrames,
		modelID:   modelID,
		log:       logger,
	}
}

// AnalyzeVideo runs sampling and encoding synchronously, dispatches the
// embeddings, and returns the job handle without waiting for the worker.
func (p *Pipeline) AnalyzeVideo(ctx context.Context, videoPath string) (string, error) {
	frames, err := p.sampler.Sample(ctx, videoPath, p.maxFrames)
	if err != nil {
		return "", err
	}
	metrics.FramesSampled.Observe(float64(len(frames)))

	start := time.Now()
	features, err := p.encoder.Encode(ctx, frames)
	if err != nil {
		return "", fmt.Errorf("encode frames: %w", err)
	}
	metrics.EncodeDuration.Observe(time.Since(start).Seconds())

	jobID := uuid.New().String()
	frameObjects := p.stageFrames(ctx, jobID, frames)

	msg := job.Message{
		JobID:        jobID,
		ModelID:      p.modelID,
		Features:     features,
		FrameObjects: frameObjects,
		SubmittedAt:  time.Now(),
	}
	if err := p.queue.Submit(ctx, msg); err != nil {
		return "", fmt.Errorf("dispatch job: %w", err)
	}

	metrics.AnalysesStarted.Inc()
	p.log.Info().Str("job_id", jobID).Int("frames", len(frames)).Msg("job dispatched")
	return jobID, nil
}

// stageFrames uploads frame thumbnails so the worker can render the extreme
// frames snapshot and the gallery. Staging is best-effort: on any failure
// the job is dispatched without frame objects and only the heat strip can
// be rendered.
func (p *Pipeline) stageFrames(ctx context.Context, jobID string, frames []media.Frame) []string {
	objects := make([]string, 0, len(frames))
	for i, frame := range frames {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, frame.ToImage(), &jpeg.Options{Quality: 75}); err != nil {
			p.log.Warn().Err(err).Str("job_id", jobID).Msg("frame staging aborted")
			return nil
		}
		object := fmt.Sprintf("frames/%s/%03d.jpg", jobID, i)
		if _, err := p.blobs.UploadArtifact(ctx, object, buf.Bytes(), "image/jpeg"); err != nil {
			p.log.Warn().Err(err).Str("job_id", jobID).Msg("frame staging aborted")
			return nil
		}
		objects = append(objects, object)
	}
	return objects
}

// GetResult maps the queue state to a domain status. One state read, at
// most one result fetch; never blocks on the job.
func (p *Pipeline) GetResult(ctx context.Context, jobID string) (Status, error) {
	state, reason, err := p.queue.State(ctx, jobID)
	if err != nil {
		return Status{}, err
	}

	status := Status{State: domainState(state), JobID: jobID}
	switch state {
	case job.StateSuccess:
		result, err := p.queue.Result(ctx, jobID)
		if err != nil {
			return Status{}, fmt.Errorf("fetch result for %s: %w", jobID, err)
		}
		status.Result = result
	case job.StateFailure:
		status.Info = reason
	case job.StatePending, job.StateStarted:
	default:
		status.Info = fmt.Sprintf("job state %q is not recognized", state)
	}
	return status, nil
}
