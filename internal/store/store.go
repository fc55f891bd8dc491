// Package store is the record-store collaborator: video records, analysis
// records with their one-time pending -> verdict transition, and the
// per-user download log.
package store

import (
	"context"
	"errors"
	"time"
)

// PredictionPending marks an analysis record whose verdict has not been
// written back yet. A pending record carries no meaningful confidence.
const PredictionPending = "pending"

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// Video is a stored reference to an uploaded or downloaded video.
type Video struct {
	ID        int64
	UserID    int64
	FileURL   string
	FileName  string
	CreatedAt time.Time
}

// Analysis ties a video to its classification job and eventual verdict.
type Analysis struct {
	ID         int64
	VideoID    int64
	JobID      string
	Prediction string
	Confidence float64
	CreatedAt  time.Time
}

// HistoryEntry is one row of a user's analysis history.
type HistoryEntry struct {
	FileName   string    `json:"file_name"`
	Prediction string    `json:"prediction"`
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
}

// Download is one row of the per-user download log.
type Download struct {
	VideoID    int64     `json:"video_id"`
	Result     string    `json:"result"`
	Confidence float64   `json:"confidence"`
	FileName   string    `json:"file_name"`
	Count      int64     `json:"download_count"`
	Timestamp  time.Time `json:"timestamp"`
}

// RecordStore is the sole persistence boundary of the pipeline.
type RecordStore interface {
	CreateVideo(ctx context.Context, userID int64, fileURL, fileName string) (int64, error)
	CreateAnalysis(ctx context.Context, videoID int64, jobID string) (int64, error)

	// FinalizeAnalysis performs the one-time write-back: it sets the verdict
	// on the record for jobID only if the record is still pending, as a
	// single guarded update. It returns true when this call performed the
	// transition and false when the record was already finalized (or absent).
	FinalizeAnalysis(ctx context.Context, jobID, prediction string, confidence float64) (bool, error)

	AnalysisByJob(ctx context.Context, jobID string) (*Analysis, error)
	HistoryByUser(ctx context.Context, userID int64) ([]HistoryEntry, error)

	LogDownload(ctx context.Context, userID, videoID int64, result string, confidence float64, fileName string) error
	DownloadCount(ctx context.Context, userID int64) (int64, error)
	DownloadHistory(ctx context.Context, userID int64) ([]Download, error)
}
