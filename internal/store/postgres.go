package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres implements RecordStore on a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to the database behind connString.
func NewPostgres(ctx context.Context, connString string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close releases the pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

func (p *Postgres) CreateVideo(ctx context.Context, userID int64, fileURL, fileName string) (int64, error) {
	var id int64
	err := p.pool.QueryRow(ctx, `
		INSERT INTO videos (user_id, file_url, file_name)
		VALUES ($1, $2, $3)
		RETURNING id
	`, userID, fileURL, fileName).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create video record: %w", err)
	}
	return id, nil
}

func (p *Postgres) CreateAnalysis(ctx context.Context, videoID int64, jobID string) (int64, error) {
	var id int64
	err := p.pool.QueryRow(ctx, `
		INSERT INTO analysis_results (video_id, task_id, prediction, confidence)
		VALUES ($1, $2, $3, 0)
		RETURNING id
	`, videoID, jobID, PredictionPending).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create analysis record: %w", err)
	}
	return id, nil
}

// FinalizeAnalysis is a single conditional update so that concurrent pollers
// observing the same success cannot double-apply the write-back.
func (p *Postgres) FinalizeAnalysis(ctx context.Context, jobID, prediction string, confidence float64) (bool, error) {
	tag, err := p.pool.Exec(ctx, `
		UPDATE analysis_results
		SET prediction = $2, confidence = $3
		WHERE task_id = $1 AND prediction = $4
	`, jobID, prediction, confidence, PredictionPending)
	if err != nil {
		return false, fmt.Errorf("finalize analysis: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (p *Postgres) AnalysisByJob(ctx context.Context, jobID string) (*Analysis, error) {
	var a Analysis
	err := p.pool.QueryRow(ctx, `
		SELECT id, video_id, task_id, prediction, confidence, created_at
		FROM analysis_results
		WHERE task_id = $1
	`, jobID).Scan(&a.ID, &a.VideoID, &a.JobID, &a.Prediction, &a.Confidence, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("analysis by job: %w", err)
	}
	return &a, nil
}

func (p *Postgres) HistoryByUser(ctx context.Context, userID int64) ([]HistoryEntry, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT v.file_name, a.prediction, a.confidence, a.created_at
		FROM analysis_results a
		JOIN videos v ON v.id = a.video_id
		WHERE v.user_id = $1
		ORDER BY a.created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("history by user: %w", err)
	}
	defer rows.Close()

	var history []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.FileName, &e.Prediction, &e.Confidence, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		history = append(history, e)
	}
	return history, rows.Err()
}

func (p *Postgres) LogDownload(ctx context.Context, userID, videoID int64, result string, confidence float64, fileName string) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO downloads (user_id, video_id, result, confidence, file_name, download_count)
		VALUES ($1, $2, $3, $4, $5, 1)
		ON CONFLICT (user_id, video_id)
		DO UPDATE SET download_count = downloads.download_count + 1
	`, userID, videoID, result, confidence, fileName)
	if err != nil {
		return fmt.Errorf("log download: %w", err)
	}
	return nil
}

func (p *Postgres) DownloadCount(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := p.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM downloads WHERE user_id = $1
	`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("download count: %w", err)
	}
	return count, nil
}

func (p *Postgres) DownloadHistory(ctx context.Context, userID int64) ([]Download, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT video_id, result, confidence, file_name, download_count, timestamp
		FROM downloads
		WHERE user_id = $1
		ORDER BY timestamp DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("download history: %w", err)
	}
	defer rows.Close()

	var downloads []Download
	for rows.Next() {
		var d Download
		if err := rows.Scan(&d.VideoID, &d.Result, &d.Confidence, &d.FileName, &d.Count, &d.Timestamp); err != nil {
			return nil, fmt.Errorf("scan download row: %w", err)
		}
		downloads = append(downloads, d)
	}
	return downloads, rows.Err()
}
