package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process RecordStore used in tests and local development.
// The mutex makes the finalize check-then-write atomic per store, matching
// the guarded-update semantics of the Postgres implementation.
type Memory struct {
	mu        sync.Mutex
	nextID    int64
	videos    map[int64]*Video
	analyses  map[string]*Analysis // keyed by job id
	downloads map[int64][]*Download
}

// NewMemory builds an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		videos:    make(map[int64]*Video),
		analyses:  make(map[string]*Analysis),
		downloads: make(map[int64][]*Download),
	}
}

func (m *Memory) CreateVideo(_ context.Context, userID int64, fileURL, fileName string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	m.videos[m.nextID] = &Video{
		ID:        m.nextID,
		UserID:    userID,
		FileURL:   fileURL,
		FileName:  fileName,
		CreatedAt: time.Now(),
	}
	return m.nextID, nil
}

func (m *Memory) CreateAnalysis(_ context.Context, videoID int64, jobID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	m.analyses[jobID] = &Analysis{
		ID:         m.nextID,
		VideoID:    videoID,
		JobID:      jobID,
		Prediction: PredictionPending,
		CreatedAt:  time.Now(),
	}
	return m.nextID, nil
}

func (m *Memory) FinalizeAnalysis(_ context.Context, jobID, prediction string, confidence float64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.analyses[jobID]
	if !ok || a.Prediction != PredictionPending {
		return false, nil
	}
	a.Prediction = prediction
	a.Confidence = confidence
	return true, nil
}

func (m *Memory) AnalysisByJob(_ context.Context, jobID string) (*Analysis, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.analyses[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *Memory) HistoryByUser(_ context.Context, userID int64) ([]HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var history []HistoryEntry
	for _, a := range m.analyses {
		v, ok := m.videos[a.VideoID]
		if !ok || v.UserID != userID {
			continue
		}
		history = append(history, HistoryEntry{
			FileName:   v.FileName,
			Prediction: a.Prediction,
			Confidence: a.Confidence,
			CreatedAt:  a.CreatedAt,
		})
	}
	sort.Slice(history, func(i, j int) bool {
		return history[i].CreatedAt.After(history[j].CreatedAt)
	})
	return history, nil
}

func (m *Memory) LogDownload(_ context.Context, userID, videoID int64, result string, confidence float64, fileName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, d := range m.downloads[userID] {
		if d.VideoID == videoID {
			d.Count++
			return nil
		}
	}
	m.downloads[userID] = append(m.downloads[userID], &Download{
		VideoID:    videoID,
		Result:     result,
		Confidence: confidence,
		FileName:   fileName,
		Count:      1,
		Timestamp:  time.Now(),
	})
	return nil
}

func (m *Memory) DownloadCount(_ context.Context, userID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.downloads[userID])), nil
}

func (m *Memory) DownloadHistory(_ context.Context, userID int64) ([]Download, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Download, 0, len(m.downloads[userID]))
	for _, d := range m.downloads[userID] {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out, nil
}
