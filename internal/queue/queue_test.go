package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imalyk/deepscan/pkg/job"
)

func setupQueue(t *testing.T) (*miniredis.Miniredis, *Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	return mr, New(rdb, "test:queue", time.Hour)
}

func testMessage(id string) job.Message {
	return job.Message{
		JobID:       id,
		ModelID:     "mlp-test",
		Features:    [][]float32{{1, 2}, {3, 4}},
		SubmittedAt: time.Now(),
	}
}

func TestSubmitAndPop(t *testing.T) {
	_, c := setupQueue(t)
	ctx := context.Background()

	require.NoError(t, c.Submit(ctx, testMessage("job-1")))

	state, reason, err := c.State(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, job.StatePending, state)
	assert.Empty(t, reason)

	msg, err := c.Pop(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "job-1", msg.JobID)
	assert.Equal(t, [][]float32{{1, 2}, {3, 4}}, msg.Features)
}

func TestPopTimeout(t *testing.T) {
	_, c := setupQueue(t)

	msg, err := c.Pop(context.Background(), 10*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, msg)
}

func TestStateTransitions(t *testing.T) {
	_, c := setupQueue(t)
	ctx := context.Background()

	require.NoError(t, c.Submit(ctx, testMessage("job-2")))
	require.NoError(t, c.MarkStarted(ctx, "job-2"))

	state, _, err := c.State(ctx, "job-2")
	require.NoError(t, err)
	assert.Equal(t, job.StateStarted, state)

	require.NoError(t, c.StoreResult(ctx, "job-2", job.Result{
		Prediction: job.PredictionFake,
		Confidence: 91.2,
	}))

	state, _, err = c.State(ctx, "job-2")
	require.NoError(t, err)
	assert.Equal(t, job.StateSuccess, state)
	assert.True(t, state.Terminal())

	res, err := c.Result(ctx, "job-2")
	require.NoError(t, err)
	assert.Equal(t, job.PredictionFake, res.Prediction)
	assert.InDelta(t, 91.2, res.Confidence, 1e-9)
}

func TestMarkFailedStoresReason(t *testing.T) {
	_, c := setupQueue(t)
	ctx := context.Background()

	require.NoError(t, c.Submit(ctx, testMessage("job-3")))
	require.NoError(t, c.MarkFailed(ctx, "job-3", assert.AnError))

	state, reason, err := c.State(ctx, "job-3")
	require.NoError(t, err)
	assert.Equal(t, job.StateFailure, state)
	assert.Equal(t, assert.AnError.Error(), reason)
}

func TestUnknownJob(t *testing.T) {
	_, c := setupQueue(t)
	ctx := context.Background()

	state, _, err := c.State(ctx, "missing")
	require.NoError(t, err)
	assert.Equal(t, job.StateUnknown, state)

	_, err = c.Result(ctx, "missing")
	assert.ErrorIs(t, err, ErrNoResult)
}

func TestStateWritesReapplyTTL(t *testing.T) {
	mr, c := setupQueue(t)
	ctx := context.Background()

	require.NoError(t, c.Submit(ctx, testMessage("job-ttl")))

	// Let the hash expire, then write a transition into the revived key.
	// Every state write must carry the retention TTL, or the key leaks.
	mr.FastForward(2 * time.Hour)
	require.NoError(t, c.MarkStarted(ctx, "job-ttl"))
	assert.Greater(t, mr.TTL(jobKey("job-ttl")), time.Duration(0))

	mr.FastForward(2 * time.Hour)
	require.NoError(t, c.StoreResult(ctx, "job-ttl", job.Result{Prediction: job.PredictionReal}))
	assert.Greater(t, mr.TTL(jobKey("job-ttl")), time.Duration(0))

	mr.FastForward(2 * time.Hour)
	require.NoError(t, c.MarkFailed(ctx, "job-ttl", assert.AnError))
	assert.Greater(t, mr.TTL(jobKey("job-ttl")), time.Duration(0))
}

func TestJobExpiryReadsAsUnknown(t *testing.T) {
	mr, c := setupQueue(t)
	ctx := context.Background()

	require.NoError(t, c.Submit(ctx, testMessage("job-4")))
	mr.FastForward(2 * time.Hour)

	state, _, err := c.State(ctx, "job-4")
	require.NoError(t, err)
	assert.Equal(t, job.StateUnknown, state)
}
