// Package service orchestrates the analysis pipeline: source resolution,
// storage, dispatch, and the polling state machine with its idempotent
// verdict write-back.
package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/imalyk/deepscan/internal/media"
	"github.com/imalyk/deepscan/internal/metrics"
	"github.com/imalyk/deepscan/internal/source"
	"github.com/imalyk/deepscan/internal/store"
)

// SourceResolver validates and materializes user-supplied video references.
type SourceResolver interface {
	Resolve(ctx context.Context, src source.Source) ([]byte, string, error)
}

// Analyzer exposes the two operations any front end needs: start an
// analysis, poll its status.
type Analyzer struct {
	resolver  SourceResolver
	blobs     BlobStore
	records   store.RecordStore
	inference Inference
	tempDir   string
	log       zerolog.Logger
}

// NewAnalyzer wires the orchestrator.
func NewAnalyzer(resolver SourceResolver, blobs BlobStore, records store.RecordStore, inference Inference, tempDir string, logger zerolog.Logger) *Analyzer {
	return &Analyzer{
		resolver:  resolver,
		blobs:     blobs,
		records:   records,
		inference: inference,
		tempDir:   tempDir,
		log:       logger,
	}
}

// Analyze resolves the source, persists the video, dispatches the
// classification job, and creates the pending analysis record. It returns
// as soon as the job is queued.
func (a *Analyzer) Analyze(ctx context.Context, userID int64, src source.Source) (Status, error) {
	data, fileName, err := a.resolver.Resolve(ctx, src)
	if err != nil {
		metrics.AnalysesRejected.WithLabelValues(rejectReason(err)).Inc()
		return Status{}, err
	}

	objectName := fmt.Sprintf("%d/%s", userID, fileName)
	fileURL, err := a.blobs.UploadVideo(ctx, data, objectName)
	if err != nil {
		return Status{}, fmt.Errorf("store video: %w", err)
	}

	videoID, err := a.records.CreateVideo(ctx, userID, fileURL, fileName)
	if err != nil {
		return Status{}, fmt.Errorf("create video record: %w", err)
	}

	tmpPath, err := a.writeTemp(data, fileName)
	if err != nil {
		return Status{}, err
	}
	defer os.Remove(tmpPath)

	jobID, err := a.inference.AnalyzeVideo(ctx, tmpPath)
	if err != nil {
		if errors.Is(err, media.ErrNoFrames) {
			metrics.AnalysesRejected.WithLabelValues("no_frames").Inc()
		}
		return Status{}, err
	}

	if _, err := a.records.CreateAnalysis(ctx, videoID, jobID); err != nil {
		return Status{}, fmt.Errorf("create analysis record: %w", err)
	}

	a.log.Info().Int64("user_id", userID).Int64("video_id", videoID).Str("job_id", jobID).Msg("analysis started")
	return Status{State: StatusPending, JobID: jobID}, nil
}

// GetStatus polls the job and, on the first successful observation, applies
// the one-time verdict write-back. The write is a conditional update
// against the still-pending record, so repeated and concurrent polls can
// never double-apply it or regress a finalized record.
func (a *Analyzer) GetStatus(ctx context.Context, jobID string) (Status, error) {
	status, err := a.inference.GetResult(ctx, jobID)
	if err != nil {
		return Status{}, err
	}

	if status.State == StatusSuccess && status.Result != nil {
		applied, err := a.records.FinalizeAnalysis(ctx, jobID, status.Result.Prediction, status.Result.Confidence)
		if err != nil {
			// The verdict itself is valid; surface it and retry the
			// write-back on the next poll.
			a.log.Warn().Err(err).Str("job_id", jobID).Msg("verdict write-back failed")
		} else if applied {
			a.log.Info().Str("job_id", jobID).Str("prediction", status.Result.Prediction).Msg("verdict recorded")
		}
	}
	return status, nil
}

func (a *Analyzer) writeTemp(data []byte, fileName string) (string, error) {
	ext := filepath.Ext(fileName)
	tmp, err := os.CreateTemp(a.tempDir, "deepscan-*"+ext)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close temp file: %w", err)
	}
	return tmp.Name(), nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, source.ErrTooLarge):
		return "too_large"
	case errors.Is(err, source.ErrBrokenDownload):
		return "broken_download"
	case errors.Is(err, source.ErrBadExtension):
		return "bad_extension"
	default:
		return "other"
	}
}
