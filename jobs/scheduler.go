package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"meetsync/utils"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	dueKeyPrefix  = "jobs:due:"
	idemKeyPrefix = "jobs:idem:"
	idemTTL       = 7 * 24 * time.Hour
	maxAttempts   = 3
	retryBackoff  = time.Minute
)

// Job is one delayed unit of work on a named queue.
type Job struct {
	ID             string          `json:"id"`
	Queue          string          `json:"queue"`
	Payload        json.RawMessage `json:"payload"`
	RunAt          time.Time       `json:"run_at"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	Attempts       int             `json:"attempts"`
}

// Handler processes one due job payload. A returned error re-queues the job
// with backoff until the attempt budget runs out.
type Handler func(ctx context.Context, payload json.RawMessage) error

// FailureHook runs after a job's final failed attempt, so the owning queue
// can surface the failure instead of losing it to the log.
type FailureHook func(ctx context.Context, payload json.RawMessage, err error)

// Scheduler is a redis-backed delayed-job queue with at-least-once delivery.
// Due jobs live in a sorted set scored by run time; claiming a job is a ZREM
// so exactly one worker processes each delivery.
type Scheduler struct {
	rdb      *redis.Client
	logger   *log.Logger
	handlers map[string]Handler
	failures map[string]FailureHook
}

func NewScheduler(rdb *redis.Client, logger *log.Logger) *Scheduler {
	return &Scheduler{
		rdb:      rdb,
		logger:   logger,
		handlers: make(map[string]Handler),
		failures: make(map[string]FailureHook),
	}
}

// Handle registers the handler for a queue. Must be called before Start.
func (s *Scheduler) Handle(queue string, handler Handler) {
	s.handlers[queue] = handler
}

// OnFailure registers the hook invoked when a job on the queue exhausts its
// retries. Must be called before Start.
func (s *Scheduler) OnFailure(queue string, hook FailureHook) {
	s.failures[queue] = hook
}

// ScheduleAt enqueues a job to run at the given time. A duplicate
// idempotency key within the retention window returns the original job id
// without enqueueing again.
func (s *Scheduler) ScheduleAt(ctx context.Context, queue string, payload interface{}, runAt time.Time, idempotencyKey string) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job payload: %w", err)
	}

	job := Job{
		ID:             uuid.NewString(),
		Queue:          queue,
		Payload:        raw,
		RunAt:          runAt,
		IdempotencyKey: idempotencyKey,
	}

	if idempotencyKey != "" {
		key := idemKeyPrefix + queue + ":" + idempotencyKey
		set, err := s.rdb.SetNX(ctx, key, job.ID, idemTTL).Result()
		if err != nil {
			return "", fmt.Errorf("idempotency check failed: %w", err)
		}
		if !set {
			existing, err := s.rdb.Get(ctx, key).Result()
			if err != nil {
				return "", fmt.Errorf("failed to read existing job id: %w", err)
			}
			return existing, nil
		}
	}

	if err := s.push(ctx, job); err != nil {
		return "", err
	}
	return job.ID, nil
}

func (s *Scheduler) push(ctx context.Context, job Job) error {
	member, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	if err := s.rdb.ZAdd(ctx, dueKeyPrefix+job.Queue, &redis.Z{
		Score:  float64(job.RunAt.Unix()),
		Member: member,
	}).Err(); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}

// Start polls every queue with a registered handler until the context is
// cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Println("Job scheduler started")
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Println("Job scheduler shutting down...")
			return
		case <-ticker.C:
			for queue := range s.handlers {
				s.drainQueue(ctx, queue)
			}
		}
	}
}

func (s *Scheduler) drainQueue(ctx context.Context, queue string) {
	now := fmt.Sprintf("%d", time.Now().Unix())
	members, err := s.rdb.ZRangeByScore(ctx, dueKeyPrefix+queue, &redis.ZRangeBy{
		Min: "-inf", Max: now, Count: 50,
	}).Result()
	if err != nil {
		s.logger.Printf("Error polling queue %s: %v", queue, err)
		return
	}

	for _, member := range members {
		// ZRem is the claim: only the worker that removes the member runs it
		removed, err := s.rdb.ZRem(ctx, dueKeyPrefix+queue, member).Result()
		if err != nil || removed == 0 {
			continue
		}

		var job Job
		if err := json.Unmarshal([]byte(member), &job); err != nil {
			s.logger.Printf("Dropping undecodable job on queue %s: %v", queue, err)
			continue
		}
		s.runJob(ctx, job)
	}
}

func (s *Scheduler) runJob(ctx context.Context, job Job) {
	handler := s.handlers[job.Queue]
	if handler == nil {
		s.logger.Printf("No handler for queue %s - dropping job %s", job.Queue, job.ID)
		return
	}

	if err := handler(ctx, job.Payload); err != nil {
		job.Attempts++
		if job.Attempts >= maxAttempts {
			utils.LogError("job_exhausted", err, map[string]interface{}{
				"queue":    job.Queue,
				"job_id":   job.ID,
				"attempts": job.Attempts,
			})
			if hook := s.failures[job.Queue]; hook != nil {
				hook(ctx, job.Payload, err)
			}
			return
		}

		job.RunAt = time.Now().Add(retryBackoff * time.Duration(job.Attempts))
		if pushErr := s.push(ctx, job); pushErr != nil {
			s.logger.Printf("Failed to requeue job %s: %v", job.ID, pushErr)
		}
	}
}
