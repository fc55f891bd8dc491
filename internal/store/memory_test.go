package store

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imalyk/deepscan/pkg/job"
)

func TestFinalizeAnalysisIdempotent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	videoID, err := m.CreateVideo(ctx, 7, "http://minio/videos/clip.mp4", "clip.mp4")
	require.NoError(t, err)
	_, err = m.CreateAnalysis(ctx, videoID, "job-1")
	require.NoError(t, err)

	a, err := m.AnalysisByJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, PredictionPending, a.Prediction)

	applied, err := m.FinalizeAnalysis(ctx, "job-1", job.PredictionFake, 92.5)
	require.NoError(t, err)
	assert.True(t, applied)

	// The second write-back must be a no-op and must not alter the record.
	applied, err = m.FinalizeAnalysis(ctx, "job-1", job.PredictionReal, 60)
	require.NoError(t, err)
	assert.False(t, applied)

	a, err = m.AnalysisByJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, job.PredictionFake, a.Prediction)
	assert.InDelta(t, 92.5, a.Confidence, 1e-9)
}

func TestFinalizeAnalysisConcurrentPollers(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	videoID, _ := m.CreateVideo(ctx, 1, "u", "clip.mp4")
	_, err := m.CreateAnalysis(ctx, videoID, "job-race")
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	appliedCount := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			applied, err := m.FinalizeAnalysis(ctx, "job-race", job.PredictionFake, 88)
			assert.NoError(t, err)
			if applied {
				mu.Lock()
				appliedCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, appliedCount)
}

func TestFinalizeUnknownJob(t *testing.T) {
	m := NewMemory()

	applied, err := m.FinalizeAnalysis(context.Background(), "missing", job.PredictionReal, 70)
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestHistoryByUser(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	v1, _ := m.CreateVideo(ctx, 1, "u1", "a.mp4")
	v2, _ := m.CreateVideo(ctx, 2, "u2", "b.mp4")
	_, err := m.CreateAnalysis(ctx, v1, "job-a")
	require.NoError(t, err)
	_, err = m.CreateAnalysis(ctx, v2, "job-b")
	require.NoError(t, err)
	_, err = m.FinalizeAnalysis(ctx, "job-a", job.PredictionReal, 97.1)
	require.NoError(t, err)

	history, err := m.HistoryByUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "a.mp4", history[0].FileName)
	assert.Equal(t, job.PredictionReal, history[0].Prediction)
}

func TestDownloadLog(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.LogDownload(ctx, 1, 10, job.PredictionFake, 91, "clip.mp4"))
	require.NoError(t, m.LogDownload(ctx, 1, 10, job.PredictionFake, 91, "clip.mp4"))
	require.NoError(t, m.LogDownload(ctx, 1, 11, job.PredictionReal, 80, "other.mp4"))

	count, err := m.DownloadCount(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	history, err := m.DownloadHistory(ctx, 1)
	require.NoError(t, err)
	require.Len(t, history, 2)
	for _, d := range history {
		if d.VideoID == 10 {
			assert.Equal(t, int64(2), d.Count)
		}
	}
}
