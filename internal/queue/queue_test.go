package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*Manager, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewManager(rdb), rdb
}

func TestEnqueueDeduplicatesByJobID(t *testing.T) {
	m, rdb := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.Enqueue(ctx, "routing", "evaluate", map[string]interface{}{"lead_id": 1}, "route:1"))
	require.NoError(t, m.Enqueue(ctx, "routing", "evaluate", map[string]interface{}{"lead_id": 1}, "route:1"))

	length, err := rdb.LLen(ctx, listKey("routing")).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), length, "a duplicate job_id must not be enqueued twice")
}

func TestEnqueueWithoutJobIDIsNeverDeduplicated(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.Enqueue(ctx, "events", "ingest", map[string]interface{}{}, ""))
	require.NoError(t, m.Enqueue(ctx, "events", "ingest", map[string]interface{}{}, ""))

	count, err := m.PendingCount(ctx, "events")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestExecuteSucceedsAndClearsDedupKey(t *testing.T) {
	m, rdb := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.Enqueue(ctx, "sync", "moco_sync", map[string]interface{}{}, "moco:1"))
	added, err := rdb.SIsMember(ctx, dedupKey("sync"), "moco:1").Result()
	require.NoError(t, err)
	assert.True(t, added)

	job := &Job{ID: "j1", JobID: "moco:1", Queue: "sync", Type: "moco_sync"}
	def := &QueueDef{Name: "sync", Handler: func(ctx context.Context, j *Job) error { return nil }}
	m.execute(ctx, def, job, "sync-1")

	stillMember, err := rdb.SIsMember(ctx, dedupKey("sync"), "moco:1").Result()
	require.NoError(t, err)
	assert.False(t, stillMember, "a successfully processed job must release its dedup key")
}

func TestExecuteMovesToFailedAfterMaxAttempts(t *testing.T) {
	m, rdb := newTestManager(t)
	ctx := context.Background()

	job := &Job{ID: "j2", Queue: "events", Type: "ingest", Attempts: maxAttempts - 1}
	def := &QueueDef{Name: "events", Handler: func(ctx context.Context, j *Job) error { return errors.New("boom") }}
	m.execute(ctx, def, job, "events-1")

	failedCount, err := m.FailedCount(ctx, "events")
	require.NoError(t, err)
	assert.Equal(t, int64(1), failedCount)

	_ = rdb
}

func TestCalculateBackoffDelayDoublesAndCaps(t *testing.T) {
	assert.Equal(t, 2*time.Second, calculateBackoffDelay(1))
	assert.Equal(t, 4*time.Second, calculateBackoffDelay(2))
	assert.Equal(t, 8*time.Second, calculateBackoffDelay(3))
	assert.Equal(t, 30*time.Second, calculateBackoffDelay(10), "delay must be capped at 30s")
}
