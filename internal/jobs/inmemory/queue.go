package inmemory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/artho/internal/jobs"
)

// DefaultMaxRetries applies to jobs published without MaxRetries.
const DefaultMaxRetries = 3

// Queue is an in-memory implementation of job publisher and consumer.
// It uses Go channels for job distribution and is safe for concurrent use.
// Jobs do not survive a restart.
type Queue struct {
	jobChan   chan *jobs.InsightJob
	closeChan chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	store     jobs.JobStore
	closed    bool
	log       zerolog.Logger

	workers    int
	newBackOff func() backoff.BackOff
	now        func() time.Time

	bmu      sync.Mutex
	backoffs map[string]backoff.BackOff
}

// Option configures a Queue.
type Option func(*Queue)

// WithWorkers sets the number of concurrent workers. The default of one
// keeps handlers that write shared state serialized.
func WithWorkers(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

// WithBackOff sets the retry delay policy. A fresh policy is created for
// each job on its first failure.
func WithBackOff(f func() backoff.BackOff) Option {
	return func(q *Queue) { q.newBackOff = f }
}

// WithClock overrides time.Now for job timestamps.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 5 * time.Minute
	return b
}

// NewQueue creates a new in-memory job queue.
// bufferSize determines how many jobs can be queued before PublishRefresh blocks.
func NewQueue(bufferSize int, store jobs.JobStore, log zerolog.Logger, opts ...Option) *Queue {
	q := &Queue{
		jobChan:    make(chan *jobs.InsightJob, bufferSize),
		closeChan:  make(chan struct{}),
		store:      store,
		log:        log,
		workers:    1,
		newBackOff: defaultBackOff,
		now:        time.Now,
		backoffs:   make(map[string]backoff.BackOff),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// PublishRefresh implements the Publisher interface.
// The lock is not held while waiting for buffer space, so Stop can always
// close the queue and release a blocked publisher.
func (q *Queue) PublishRefresh(ctx context.Context, job *jobs.InsightJob) error {
	q.mu.RLock()
	closed := q.closed
	q.mu.RUnlock()
	if closed {
		return jobs.ErrQueueClosed
	}

	if job.JobID == "" {
		job.JobID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = jobs.JobStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = q.now()
	}
	if job.MaxRetries == 0 {
		job.MaxRetries = DefaultMaxRetries
	}

	if q.store != nil {
		if err := q.store.SaveJob(ctx, job); err != nil {
			return fmt.Errorf("PublishRefresh: saving job: %w", err)
		}
	}

	select {
	case q.jobChan <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.closeChan:
		return jobs.ErrQueueClosed
	}
}

// Start implements the Consumer interface.
func (q *Queue) Start(ctx context.Context, handler jobs.JobHandler) error {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return jobs.ErrQueueClosed
	}
	q.mu.RUnlock()

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, handler)
	}
	q.log.Info().Int("workers", q.workers).Msg("Job queue started")
	return nil
}

// worker processes jobs from the queue.
func (q *Queue) worker(ctx context.Context, handler jobs.JobHandler) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			return
		case job := <-q.jobChan:
			if job == nil {
				return
			}
			q.processJob(ctx, job, handler)
		}
	}
}

// processJob executes a single job and schedules a retry on failure.
func (q *Queue) processJob(ctx context.Context, job *jobs.InsightJob, handler jobs.JobHandler) {
	log := q.log.With().Str("job_id", job.JobID).Str("trigger", string(job.Trigger)).Logger()

	job.Status = jobs.JobStatusRunning
	started := q.now()
	job.StartedAt = &started
	q.save(ctx, job)

	err := handler(ctx, job)

	completed := q.now()
	job.CompletedAt = &completed

	if err == nil {
		job.Status = jobs.JobStatusCompleted
		job.Error = ""
		q.forget(job.JobID)
		q.save(ctx, job)
		log.Debug().Dur("took", completed.Sub(started)).Msg("Job completed")
		return
	}

	job.Error = err.Error()
	delay := q.nextDelay(job.JobID)
	if job.RetryCount >= job.MaxRetries || delay == backoff.Stop {
		job.Status = jobs.JobStatusFailed
		q.forget(job.JobID)
		q.save(ctx, job)
		log.Error().Err(err).Int("retry_count", job.RetryCount).Msg("Job failed")
		return
	}

	job.RetryCount++
	job.Status = jobs.JobStatusRetrying
	q.save(ctx, job)
	log.Warn().Err(err).Int("retry_count", job.RetryCount).Dur("delay", delay).Msg("Job failed, retrying")

	time.AfterFunc(delay, func() {
		job.Status = jobs.JobStatusPending
		job.StartedAt = nil
		job.CompletedAt = nil
		if err := q.PublishRefresh(ctx, job); err != nil {
			log.Warn().Err(err).Msg("Dropping retry")
			if q.store == nil {
				return
			}
			msg := fmt.Sprintf("retry dropped: %v", err)
			if err := q.store.UpdateJobStatus(ctx, job.JobID, jobs.JobStatusFailed, msg); err != nil {
				log.Error().Err(err).Msg("Failed to mark dropped retry as failed")
			}
		}
	})
}

func (q *Queue) nextDelay(jobID string) time.Duration {
	q.bmu.Lock()
	defer q.bmu.Unlock()
	b, ok := q.backoffs[jobID]
	if !ok {
		b = q.newBackOff()
		b.Reset()
		q.backoffs[jobID] = b
	}
	return b.NextBackOff()
}

func (q *Queue) forget(jobID string) {
	q.bmu.Lock()
	delete(q.backoffs, jobID)
	q.bmu.Unlock()
}

func (q *Queue) save(ctx context.Context, job *jobs.InsightJob) {
	if q.store == nil {
		return
	}
	if err := q.store.SaveJob(ctx, job); err != nil {
		q.log.Error().Err(err).Str("job_id", job.JobID).Msg("Failed to save job state")
	}
}

// Stop implements the Consumer interface.
// It stops the queue and waits for all in-flight jobs to complete.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeChan)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements the Publisher interface.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

var _ jobs.Publisher = (*Queue)(nil)
var _ jobs.Consumer = (*Queue)(nil)
