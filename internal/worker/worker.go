// Package worker is the out-of-process classifier: it drains the job queue,
// scores embedding batches, and reports verdicts through the result backend.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/imalyk/deepscan/internal/classify"
	"github.com/imalyk/deepscan/internal/metrics"
	"github.com/imalyk/deepscan/internal/queue"
	"github.com/imalyk/deepscan/pkg/job"
)

// Worker consumes classification jobs until its context is cancelled.
type Worker struct {
	queue       *queue.Client
	model       *classify.Model
	modelID     string            // id of the loaded weights; empty disables the check
	artifacts   *ArtifactRenderer // nil disables artifact rendering
	pollTimeout time.Duration
	log         zerolog.Logger
}

// New builds a Worker. The classifier weights are expected to be loaded
// once at process start and shared read-only; modelID names them so jobs
// dispatched for a different model fail instead of being scored silently.
func New(q *queue.Client, model *classify.Model, modelID string, artifacts *ArtifactRenderer, pollTimeout time.Duration, logger zerolog.Logger) *Worker {
	return &Worker{
		queue:       q,
		model:       model,
		modelID:     modelID,
		artifacts:   artifacts,
		pollTimeout: pollTimeout,
		log:         logger,
	}
}

// Run blocks on the queue until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msg, err := w.queue.Pop(ctx, w.pollTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			w.log.Error().Err(err).Msg("failed to pop from queue")
			time.Sleep(time.Second)
			continue
		}
		if msg == nil {
			continue
		}

		w.log.Info().
			Str("job_id", msg.JobID).
			Str("model_id", msg.ModelID).
			Int("frames", len(msg.Features)).
			Msg("received job")
		w.process(ctx, msg)
	}
}

// process runs one job through the terminal half of the state machine:
// STARTED, then SUCCESS with a stored verdict or FAILURE with the captured
// error.
func (w *Worker) process(ctx context.Context, msg *job.Message) {
	if err := w.queue.MarkStarted(ctx, msg.JobID); err != nil {
		w.log.Error().Err(err).Str("job_id", msg.JobID).Msg("failed to mark job started")
		return
	}

	if w.modelID != "" && msg.ModelID != "" && msg.ModelID != w.modelID {
		w.fail(ctx, msg.JobID, fmt.Errorf("job requests model %q, worker serves %q", msg.ModelID, w.modelID))
		return
	}

	p, err := w.model.Probability(msg.Features)
	if err != nil {
		w.fail(ctx, msg.JobID, err)
		return
	}

	result := classify.Verdict(p)

	// Artifact rendering is best-effort: a rendering failure leaves the
	// corresponding path empty and never fails the classification.
	if w.artifacts != nil {
		w.artifacts.Render(ctx, msg, &result)
	}

	if err := w.queue.StoreResult(ctx, msg.JobID, result); err != nil {
		w.log.Error().Err(err).Str("job_id", msg.JobID).Msg("failed to store result")
		return
	}

	metrics.Verdicts.WithLabelValues(result.Prediction).Inc()
	w.log.Info().
		Str("job_id", msg.JobID).
		Str("prediction", result.Prediction).
		Float64("confidence", result.Confidence).
		Msg("job completed")
}

func (w *Worker) fail(ctx context.Context, jobID string, cause error) {
	metrics.JobFailures.Inc()
	w.log.Error().Err(cause).Str("job_id", jobID).Msg("job failed")
	if err := w.queue.MarkFailed(ctx, jobID, cause); err != nil {
		w.log.Error().Err(err).Str("job_id", jobID).Msg("failed to mark job failure")
	}
}
