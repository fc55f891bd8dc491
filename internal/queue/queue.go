// Package queue is the Redis-backed job queue and result backend shared by
// the API server (dispatch, polling) and the classifier worker (consume,
// report). The client handle is injected everywhere; there is no package
// level connection.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/imalyk/deepscan/pkg/job"
)

// ErrNoResult is returned when a result is requested for a job that has not
// stored one.
var ErrNoResult = errors.New("no result stored for job")

// Client wraps a Redis connection with the queue's key layout: a list of
// pending payloads plus one hash per job carrying state, result, and error.
// Hash TTL is the queue's retention policy; expired jobs read back as
// UNKNOWN.
type Client struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

// New builds a Client over an injected Redis handle.
func New(rdb *redis.Client, queueKey string, jobTTL time.Duration) *Client {
	return &Client{rdb: rdb, key: queueKey, ttl: jobTTL}
}

func jobKey(id string) string {
	return fmt.Sprintf("deepscan:job:%s", id)
}

// Submit registers the job as PENDING and pushes its payload onto the work
// list. It returns as soon as Redis acknowledges; nothing waits for a worker.
func (c *Client) Submit(ctx context.Context, msg job.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal job payload: %w", err)
	}

	key := jobKey(msg.JobID)
	if err := c.rdb.HSet(ctx, key, map[string]interface{}{
		"state":        string(job.StatePending),
		"submitted_at": msg.SubmittedAt.UTC().Format(time.RFC3339Nano),
	}).Err(); err != nil {
		return fmt.Errorf("register job: %w", err)
	}
	if c.ttl > 0 {
		if err := c.rdb.Expire(ctx, key, c.ttl).Err(); err != nil {
			return fmt.Errorf("set job ttl: %w", err)
		}
	}
	if err := c.rdb.RPush(ctx, c.key, payload).Err(); err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}
	return nil
}

// Pop blocks up to timeout for the next payload. A nil message with nil
// error means the wait timed out.
func (c *Client) Pop(ctx context.Context, timeout time.Duration) (*job.Message, error) {
	res, err := c.rdb.BLPop(ctx, timeout, c.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	if len(res) < 2 {
		return nil, nil
	}

	var msg job.Message
	if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
		return nil, fmt.Errorf("invalid job payload: %w", err)
	}
	return &msg, nil
}

// State reads the job's lifecycle state plus the failure reason, if any.
// Jobs the backend no longer knows about report UNKNOWN.
func (c *Client) State(ctx context.Context, jobID string) (job.State, string, error) {
	fields, err := c.rdb.HMGet(ctx, jobKey(jobID), "state", "error").Result()
	if err != nil {
		return job.StateUnknown, "", fmt.Errorf("read job state: %w", err)
	}

	state := job.StateUnknown
	if s, ok := fields[0].(string); ok && s != "" {
		state = job.State(s)
	}
	reason := ""
	if r, ok := fields[1].(string); ok {
		reason = r
	}
	return state, reason, nil
}

// MarkStarted transitions the job to STARTED.
func (c *Client) MarkStarted(ctx context.Context, jobID string) error {
	return c.setFields(ctx, jobID, map[string]interface{}{
		"state": string(job.StateStarted),
	})
}

// MarkFailed transitions the job to the terminal FAILURE state with the
// captured error as payload.
func (c *Client) MarkFailed(ctx context.Context, jobID string, cause error) error {
	reason := cause.Error()
	if len(reason) > 1024 {
		reason = reason[:1024]
	}
	return c.setFields(ctx, jobID, map[string]interface{}{
		"state": string(job.StateFailure),
		"error": reason,
	})
}

// StoreResult writes the verdict and transitions the job to SUCCESS.
func (c *Client) StoreResult(ctx context.Context, jobID string, result job.Result) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	return c.setFields(ctx, jobID, map[string]interface{}{
		"state":  string(job.StateSuccess),
		"result": string(payload),
	})
}

// setFields writes job hash fields and reapplies the retention TTL. An HSET
// can recreate a hash that already expired; without the Expire that revived
// key would never be cleaned up.
func (c *Client) setFields(ctx context.Context, jobID string, fields map[string]interface{}) error {
	key := jobKey(jobID)
	if err := c.rdb.HSet(ctx, key, fields).Err(); err != nil {
		return err
	}
	if c.ttl > 0 {
		return c.rdb.Expire(ctx, key, c.ttl).Err()
	}
	return nil
}

// Result returns the stored verdict. Only valid once the job is SUCCESS.
func (c *Client) Result(ctx context.Context, jobID string) (*job.Result, error) {
	raw, err := c.rdb.HGet(ctx, jobKey(jobID), "result").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNoResult
		}
		return nil, fmt.Errorf("read result: %w", err)
	}

	var result job.Result
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("parse stored result: %w", err)
	}
	return &result, nil
}
