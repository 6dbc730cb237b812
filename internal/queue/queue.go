// Package queue is a multi-queue job system backed by Redis-list
// transport, with a per-worker retry loop. Jobs still waiting in Redis
// survive a process restart; a job a worker has already popped, including
// one waiting out its retry delay, is held only in memory and is not
// redelivered if the process dies.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"leadpipeline/internal/apperr"
	"leadpipeline/internal/config"
)

// Job is a unit of work enqueued onto a named queue. JobID is used for
// dedup (e.g. "route:{lead_id}") — enqueuing a job with an existing JobID
// is a no-op (spec.md §4.6 idempotent routing jobs).
type Job struct {
	ID        string                 `json:"id"`
	JobID     string                 `json:"job_id,omitempty"`
	Queue     string                 `json:"queue"`
	Type      string                 `json:"type"`
	Payload   map[string]interface{} `json:"payload"`
	Attempts  int                    `json:"attempts"`
	EnqueuedAt time.Time             `json:"enqueued_at"`
}

// Handler processes one job. A nil error marks it done. A *apperr.Error
// whose kind is not retryable moves the job straight to the failed set;
// any other error schedules a retry with exponential backoff until the
// job has used maxAttempts attempts, after which it moves to the failed set.
type Handler func(ctx context.Context, job *Job) error

// QueueDef is the runtime configuration for one named queue.
type QueueDef struct {
	Name       string
	Concurrency int
	Limiter    *rate.Limiter
	Deadline   time.Duration
	Handler    Handler
}

const maxAttempts = 3

// Manager runs a worker pool per named queue against Redis-backed lists.
type Manager struct {
	rdb    *redis.Client
	queues map[string]*QueueDef
	mu     sync.RWMutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewManager(rdb *redis.Client) *Manager {
	return &Manager{rdb: rdb, queues: make(map[string]*QueueDef)}
}

// Register wires a handler to a named queue using the QueueConfig from
// spec.md §5 / internal/config (concurrency, rate limit, deadline).
func (m *Manager) Register(name string, cfg config.QueueConfig, handler Handler) {
	def := &QueueDef{
		Name:        name,
		Concurrency: cfg.Concurrency,
		Deadline:    cfg.Deadline,
		Handler:     handler,
	}
	if cfg.RatePerSec > 0 {
		burst := int(cfg.RatePerSec)
		if burst < 1 {
			burst = 1
		}
		def.Limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst)
	}
	m.mu.Lock()
	m.queues[name] = def
	m.mu.Unlock()
}

// NewEventID mints an externally-visible id for an accepted ingestion
// request, independent of the eventual database row id (spec.md §4.1
// "assigns a new event id" before the worker has even run).
func NewEventID() string { return uuid.NewString() }

func listKey(queue string) string   { return "lp:queue:" + queue }
func dedupKey(queue string) string  { return "lp:queue:" + queue + ":dedup" }
func failedKey(queue string) string { return "lp:queue:" + queue + ":failed" }

// Enqueue pushes a job onto its queue. If job.JobID is set and already
// present in the queue's dedup set, the enqueue is silently skipped
// (spec.md §4.6 "routing jobs are deduplicated by lead").
func (m *Manager) Enqueue(ctx context.Context, queue, jobType string, payload map[string]interface{}, jobID string) error {
	if jobID != "" {
		added, err := m.rdb.SAdd(ctx, dedupKey(queue), jobID).Result()
		if err != nil {
			return err
		}
		if added == 0 {
			return nil
		}
	}

	job := &Job{
		ID:         uuid.NewString(),
		JobID:      jobID,
		Queue:      queue,
		Type:       jobType,
		Payload:    payload,
		EnqueuedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return m.rdb.LPush(ctx, listKey(queue), data).Err()
}

// Start launches the worker pool for every registered queue.
func (m *Manager) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, def := range m.queues {
		for i := 0; i < def.Concurrency; i++ {
			m.wg.Add(1)
			go m.runWorker(ctx, def, i+1)
		}
	}
	log.Printf("queue manager started: %d queues", len(m.queues))
}

// Shutdown stops accepting new work and waits up to grace for in-flight
// jobs to finish before returning (spec.md §5 "30s graceful shutdown on
// SIGTERM").
func (m *Manager) Shutdown(grace time.Duration) {
	if m.cancel != nil {
		m.cancel()
	}
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Println("queue manager stopped cleanly")
	case <-time.After(grace):
		log.Println("queue manager shutdown grace period elapsed, forcing exit")
	}
}

func (m *Manager) runWorker(ctx context.Context, def *QueueDef, workerNum int) {
	defer m.wg.Done()
	name := fmt.Sprintf("%s-%d", def.Name, workerNum)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if def.Limiter != nil {
			if err := def.Limiter.Wait(ctx); err != nil {
				return
			}
		}

		result, err := m.rdb.BRPop(ctx, 5*time.Second, listKey(def.Name)).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("queue %s worker %s: brpop error: %v", def.Name, name, err)
			time.Sleep(time.Second)
			continue
		}

		var job Job
		if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
			log.Printf("queue %s worker %s: malformed job dropped: %v", def.Name, name, err)
			continue
		}

		m.execute(ctx, def, &job, name)
	}
}

func (m *Manager) execute(ctx context.Context, def *QueueDef, job *Job, workerName string) {
	job.Attempts++

	runCtx := ctx
	var cancel context.CancelFunc
	if def.Deadline > 0 {
		runCtx, cancel = context.WithTimeout(ctx, def.Deadline)
		defer cancel()
	}

	err := def.Handler(runCtx, job)
	if err == nil {
		if job.JobID != "" {
			m.rdb.SRem(context.Background(), dedupKey(def.Name), job.JobID)
		}
		return
	}

	log.Printf("queue %s worker %s: job %s failed (attempt %d/%d): %v", def.Name, workerName, job.ID, job.Attempts, maxAttempts, err)

	if appErr, ok := apperr.As(err); ok && !appErr.Retryable() {
		m.moveToFailed(def.Name, job, err)
		return
	}
	if job.Attempts >= maxAttempts {
		m.moveToFailed(def.Name, job, err)
		return
	}

	delay := calculateBackoffDelay(job.Attempts)
	go func() {
		time.Sleep(delay)
		data, marshalErr := json.Marshal(job)
		if marshalErr != nil {
			return
		}
		m.rdb.LPush(context.Background(), listKey(def.Name), data)
	}()
}

// calculateBackoffDelay doubles the base delay per attempt, capped.
func calculateBackoffDelay(attempt int) time.Duration {
	base := 2 * time.Second
	delay := base * time.Duration(1<<uint(attempt-1))
	if delay > 30*time.Second {
		delay = 30 * time.Second
	}
	return delay
}

func (m *Manager) moveToFailed(queue string, job *Job, cause error) {
	if job.JobID != "" {
		m.rdb.SRem(context.Background(), dedupKey(queue), job.JobID)
	}
	record := map[string]interface{}{
		"job":      job,
		"error":    cause.Error(),
		"failed_at": time.Now().UTC(),
	}
	data, err := json.Marshal(record)
	if err != nil {
		return
	}
	m.rdb.LPush(context.Background(), failedKey(queue), data)
	log.Printf("queue %s: job %s moved to failed set after %d attempts", queue, job.ID, job.Attempts)
}

// FailedCount reports how many jobs landed in a queue's durable failed set,
// used by the /readyz and ops tooling.
func (m *Manager) FailedCount(ctx context.Context, queue string) (int64, error) {
	return m.rdb.LLen(ctx, failedKey(queue)).Result()
}

// PendingCount reports the current backlog depth of a queue.
func (m *Manager) PendingCount(ctx context.Context, queue string) (int64, error) {
	return m.rdb.LLen(ctx, listKey(queue)).Result()
}
