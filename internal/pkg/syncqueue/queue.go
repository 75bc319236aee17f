package syncqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/asafgershon/esim-go-sub012/app/models"
	"github.com/asafgershon/esim-go-sub012/internal/pkg/metrics"
)

const (
	// Redis key layout
	JobKeyPrefix     = "catalog_sync:job:"
	JobQueueKey      = "catalog_sync:queue"
	JobProcessingKey = "catalog_sync:processing"
	JobStatsKey      = "catalog_sync:stats"
	PausedKey        = "catalog_sync:paused"

	// Jobs expire after 24 hours regardless of outcome
	JobTTL = 24 * time.Hour
)

// Stats reports queue occupancy per state.
type Stats struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Paused    bool  `json:"paused"`
}

// JobRecorder persists the durable audit record for each job the worker
// processes. Satisfied by repository.SyncJobRepository.
type JobRecorder interface {
	Create(ctx context.Context, job *models.SyncJob) error
	Update(ctx context.Context, job *models.SyncJob) error
	GetByID(ctx context.Context, id uint) (*models.SyncJob, error)
}

// Config tunes the queue's worker pool and sweeping behavior.
type Config struct {
	Workers              int
	Retry                RetryPolicy
	StalledAge           time.Duration
	StalledSweepInterval time.Duration
}

// Queue manages background sync jobs on Redis lists. Workers pull jobs
// through an atomic queue->processing move so a crashed worker leaves a
// traceable entry for the stalled sweeper.
type Queue struct {
	client     *redis.Client
	recorder   JobRecorder
	registry   *Registry
	retry      RetryPolicy
	stalledAge time.Duration
	sweepEvery time.Duration
	workers    int
	workerPool chan struct{}
	stopCh     chan struct{}
	wg         sync.WaitGroup
	mu         sync.Mutex
	running    bool
}

// NewQueue creates a job queue on the given Redis client.
func NewQueue(client *redis.Client, recorder JobRecorder, registry *Registry, cfg Config) *Queue {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 3
	}
	retry := cfg.Retry
	if retry.MaxRetries == 0 && retry.InitialDelay == 0 {
		retry = DefaultRetryPolicy()
	}
	stalledAge := cfg.StalledAge
	if stalledAge <= 0 {
		stalledAge = 10 * time.Minute
	}
	sweepEvery := cfg.StalledSweepInterval
	if sweepEvery <= 0 {
		sweepEvery = time.Minute
	}

	return &Queue{
		client:     client,
		recorder:   recorder,
		registry:   registry,
		retry:      retry,
		stalledAge: stalledAge,
		sweepEvery: sweepEvery,
		workers:    workers,
		workerPool: make(chan struct{}, workers),
		stopCh:     make(chan struct{}),
	}
}

// Start starts the queue workers and the stalled-job sweeper.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running {
		return
	}

	q.stopCh = make(chan struct{})
	q.running = true
	log.Infof("[SyncQueue] Starting %d workers", q.workers)

	q.workerPool = make(chan struct{}, q.workers)
	for i := 0; i < q.workers; i++ {
		q.workerPool <- struct{}{}
	}

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}

	// Recovers jobs whose worker died mid-processing
	q.wg.Add(1)
	go q.stalledSweeper()
}

// Stop stops the queue workers and waits for in-flight jobs.
func (q *Queue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.running {
		return
	}

	log.Info("[SyncQueue] Stopping workers...")
	close(q.stopCh)
	q.running = false
	q.wg.Wait()
	log.Info("[SyncQueue] All workers stopped")
}

// Pause stops consumption without dropping queued work.
func (q *Queue) Pause(ctx context.Context) error {
	return q.client.Set(ctx, PausedKey, "1", 0).Err()
}

// Resume re-enables consumption.
func (q *Queue) Resume(ctx context.Context) error {
	return q.client.Del(ctx, PausedKey).Err()
}

// IsPaused reports whether consumption is currently paused.
func (q *Queue) IsPaused(ctx context.Context) bool {
	paused, err := q.client.Exists(ctx, PausedKey).Result()
	return err == nil && paused > 0
}

// Enqueue adds a new job. Manual-priority jobs go to the consuming end of
// the list so they run before scheduled work.
func (q *Queue) Enqueue(ctx context.Context, jobType models.SyncJobType, priority Priority, payload map[string]interface{}) (*Job, error) {
	return q.EnqueueWithRecord(ctx, jobType, priority, payload, 0)
}

// EnqueueWithRecord adds a new job bound to an existing catalog_sync_jobs
// row. The worker reuses that row instead of creating one at dequeue time.
func (q *Queue) EnqueueWithRecord(ctx context.Context, jobType models.SyncJobType, priority Priority, payload map[string]interface{}, recordID uint) (*Job, error) {
	if priority == "" {
		priority = PriorityScheduled
	}

	job := &Job{
		ID:         uuid.New().String(),
		Type:       jobType,
		Priority:   priority,
		Status:     JobStatusPending,
		Payload:    payload,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
		MaxRetries: q.retry.MaxRetries,
		RecordID:   recordID,
	}

	jobData, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}

	jobKey := JobKeyPrefix + job.ID

	pipe := q.client.Pipeline()
	pipe.Set(ctx, jobKey, jobData, JobTTL)
	if priority == PriorityManual {
		// Workers pop from the right end of the list
		pipe.RPush(ctx, JobQueueKey, job.ID)
	} else {
		pipe.LPush(ctx, JobQueueKey, job.ID)
	}
	pipe.HIncrBy(ctx, JobStatsKey, string(JobStatusPending), 1)

	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	log.Infof("[SyncQueue] Enqueued job %s (type=%s priority=%s)", job.ID, job.Type, priority)
	return job, nil
}

// worker processes jobs from the queue
func (q *Queue) worker(id int) {
	defer q.wg.Done()
	log.Infof("[SyncQueue] Worker %d started", id)

	ctx := context.Background()

	for {
		select {
		case <-q.stopCh:
			log.Infof("[SyncQueue] Worker %d stopping", id)
			return
		default:
			if q.IsPaused(ctx) {
				time.Sleep(time.Second)
				continue
			}

			<-q.workerPool

			job, err := q.dequeueJob(ctx)
			if err != nil {
				if err != redis.Nil {
					log.Errorf("[SyncQueue] Worker %d: Error dequeuing job: %v", id, err)
				}
				q.workerPool <- struct{}{}
				time.Sleep(time.Second)
				continue
			}

			if job != nil {
				log.Infof("[SyncQueue] Worker %d processing job %s (type=%s)", id, job.ID, job.Type)
				q.processJob(ctx, job)
			}

			q.workerPool <- struct{}{}
		}
	}
}

// dequeueJob moves the next job id from the queue to the processing list
// atomically and loads its data.
func (q *Queue) dequeueJob(ctx context.Context) (*Job, error) {
	result, err := q.client.BRPopLPush(ctx, JobQueueKey, JobProcessingKey, time.Second).Result()
	if err != nil {
		return nil, err
	}

	jobID := result
	jobKey := JobKeyPrefix + jobID

	jobData, err := q.client.Get(ctx, jobKey).Result()
	if err != nil {
		q.client.LRem(ctx, JobProcessingKey, 1, jobID)
		return nil, fmt.Errorf("job data not found for ID %s", jobID)
	}

	var job Job
	if err := json.Unmarshal([]byte(jobData), &job); err != nil {
		q.client.LRem(ctx, JobProcessingKey, 1, jobID)
		return nil, fmt.Errorf("failed to unmarshal job %s: %w", jobID, err)
	}

	return &job, nil
}

// processJob runs one job through its registered handler and keeps both
// the Redis job state and the durable SyncJob record in step.
func (q *Queue) processJob(ctx context.Context, job *Job) {
	job.MarkAsProcessing()
	q.updateJob(ctx, job)

	record, err := q.ensureRecord(ctx, job)
	if err != nil {
		// Without an audit row the job still runs; the error is logged
		log.Errorf("[SyncQueue] Job %s: failed to create sync record: %v", job.ID, err)
	}

	result, err := q.dispatch(ctx, job)

	if err != nil {
		log.Errorf("[SyncQueue] Job %s failed: %v", job.ID, err)
		job.MarkAsFailed(err.Error())
		if record != nil {
			if job.IsRetryable() {
				// Failed is a terminal row state. While a retry is still
				// pending the row stays running so the active-job guard
				// keeps the scope occupied.
				record.ErrorMessage = err.Error()
			} else {
				record.MarkFailed(err.Error())
			}
			if uerr := q.recorder.Update(ctx, record); uerr != nil {
				log.Errorf("[SyncQueue] Job %s: failed to update sync record: %v", job.ID, uerr)
			}
		}

		if job.IsRetryable() {
			delay := q.retry.NextDelay(job.RetryCount)
			log.Infof("[SyncQueue] Retrying job %s in %s (attempt %d/%d)", job.ID, delay.Round(time.Second), job.RetryCount, job.MaxRetries)
			job.MarkAsRetrying()
			q.updateJob(ctx, job)

			time.AfterFunc(delay, func() {
				q.client.LPush(context.Background(), JobQueueKey, job.ID)
			})
		} else {
			log.Errorf("[SyncQueue] Job %s permanently failed after %d retries", job.ID, job.RetryCount)
			q.updateJobStats(ctx, JobStatusFailed, 1)
			metrics.IncJob(string(job.Type), string(JobStatusFailed))
		}
	} else {
		log.Infof("[SyncQueue] Job %s completed (processed=%d added=%d updated=%d)", job.ID, result.Processed, result.Added, result.Updated)
		job.MarkAsCompleted()
		if record != nil {
			record.MarkCompleted(result.Processed, result.Added, result.Updated)
			if uerr := q.recorder.Update(ctx, record); uerr != nil {
				log.Errorf("[SyncQueue] Job %s: failed to update sync record: %v", job.ID, uerr)
			}
		}
		q.updateJobStats(ctx, JobStatusCompleted, 1)
		metrics.IncJob(string(job.Type), string(JobStatusCompleted))
		// Remove completed job from Redis entirely
		q.removeCompletedJob(ctx, job.ID)
	}

	if job.Status != JobStatusCompleted {
		q.updateJob(ctx, job)
	}
	q.removeFromProcessing(ctx, job.ID)
}

// dispatch resolves the job's handler from the registry.
func (q *Queue) dispatch(ctx context.Context, job *Job) (*Result, error) {
	handler, ok := q.registry.Resolve(job.Type)
	if !ok {
		// Unroutable jobs burn their retries immediately
		job.RetryCount = job.MaxRetries
		return nil, fmt.Errorf("no handler registered for job type %s", job.Type)
	}
	result, err := handler(ctx, job)
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = &Result{}
	}
	return result, nil
}

// ensureRecord loads the durable SyncJob row bound at enqueue time, or
// creates one for jobs that entered the queue without a record.
func (q *Queue) ensureRecord(ctx context.Context, job *Job) (*models.SyncJob, error) {
	if q.recorder == nil {
		return nil, nil
	}

	if job.RecordID != 0 {
		record, err := q.recorder.GetByID(ctx, job.RecordID)
		if err == nil {
			record.MarkRunning()
			return record, q.recorder.Update(ctx, record)
		}
		// Fall through and create a fresh row
	}

	record := newPendingRecord(job.Type, job.Priority, job.Payload)
	if err := q.recorder.Create(ctx, record); err != nil {
		return nil, err
	}
	job.RecordID = record.ID
	q.updateJob(ctx, job)

	record.MarkRunning()
	return record, q.recorder.Update(ctx, record)
}

// newPendingRecord builds the durable audit row for a job scope.
func newPendingRecord(jobType models.SyncJobType, priority Priority, payload map[string]interface{}) *models.SyncJob {
	record := &models.SyncJob{
		JobType:  jobType,
		Status:   models.SyncJobStatusPending,
		Priority: string(priority),
	}
	if provider, ok := payload["provider"].(string); ok {
		record.Provider = provider
	}
	if group, ok := payload["bundle_group"].(string); ok {
		record.BundleGroup = group
	}
	if country, ok := payload["country_iso2"].(string); ok {
		record.CountryID = country
	}
	if payloadJSON, err := json.Marshal(payload); err == nil {
		blob := models.JSON(payloadJSON)
		record.Metadata = &blob
	}
	return record
}

// stalledSweeper periodically scans the processing list and requeues jobs
// stuck longer than the stalled age (worker crash, unclean shutdown).
func (q *Queue) stalledSweeper() {
	defer q.wg.Done()
	log.Infof("[SyncQueue] Stalled sweeper running (maxAge=%s, interval=%s)", q.stalledAge, q.sweepEvery)
	ticker := time.NewTicker(q.sweepEvery)
	defer ticker.Stop()
	ctx := context.Background()
	for {
		select {
		case <-q.stopCh:
			log.Info("[SyncQueue] Stalled sweeper stopping")
			return
		case <-ticker.C:
			q.sweepStalled(ctx)
		}
	}
}

// sweepStalled performs one pass over the processing list.
func (q *Queue) sweepStalled(ctx context.Context) {
	ids, err := q.client.LRange(ctx, JobProcessingKey, 0, -1).Result()
	if err != nil {
		log.Errorf("[SyncQueue] Sweeper LRange error: %v", err)
		return
	}
	now := time.Now()
	for _, id := range ids {
		jobKey := JobKeyPrefix + id
		data, err := q.client.Get(ctx, jobKey).Result()
		if err != nil {
			// Job data missing; remove from processing list
			if err != redis.Nil {
				log.Errorf("[SyncQueue] Sweeper Get error for %s: %v", id, err)
			}
			_ = q.client.LRem(ctx, JobProcessingKey, 1, id).Err()
			continue
		}
		var job Job
		if uerr := json.Unmarshal([]byte(data), &job); uerr != nil {
			log.Errorf("[SyncQueue] Sweeper unmarshal error for %s: %v", id, uerr)
			_ = q.client.LRem(ctx, JobProcessingKey, 1, id).Err()
			continue
		}
		if job.Status != JobStatusProcessing {
			// Clean up stray entry
			_ = q.client.LRem(ctx, JobProcessingKey, 1, id).Err()
			continue
		}
		started := job.ProcessedAt
		if started == nil || started.IsZero() {
			tmp := job.UpdatedAt
			if tmp.IsZero() {
				tmp = job.CreatedAt
			}
			started = &tmp
		}
		if now.Sub(*started) > q.stalledAge {
			log.Warnf("[SyncQueue] Recovering stalled job %s (type=%s), age=%s", job.ID, job.Type, now.Sub(*started))
			job.Status = JobStatusPending
			job.ErrorMsg = "recovered by stalled sweeper"
			job.UpdatedAt = now
			q.updateJob(ctx, &job)
			_ = q.client.LRem(ctx, JobProcessingKey, 1, id).Err()
			_ = q.client.RPush(ctx, JobQueueKey, id).Err()
		}
	}
}

// updateJob updates job data in Redis
func (q *Queue) updateJob(ctx context.Context, job *Job) {
	jobData, err := json.Marshal(job)
	if err != nil {
		log.Errorf("[SyncQueue] Failed to marshal job %s: %v", job.ID, err)
		return
	}

	jobKey := JobKeyPrefix + job.ID
	if err := q.client.Set(ctx, jobKey, jobData, JobTTL).Err(); err != nil {
		log.Errorf("[SyncQueue] Failed to update job %s: %v", job.ID, err)
	}
}

// removeFromProcessing removes a job from the processing list
func (q *Queue) removeFromProcessing(ctx context.Context, jobID string) {
	if err := q.client.LRem(ctx, JobProcessingKey, 1, jobID).Err(); err != nil {
		log.Errorf("[SyncQueue] Failed to remove job %s from processing list: %v", jobID, err)
	}
}

// removeCompletedJob completely removes a completed job from Redis
func (q *Queue) removeCompletedJob(ctx context.Context, jobID string) {
	jobKey := JobKeyPrefix + jobID
	if err := q.client.Del(ctx, jobKey).Err(); err != nil {
		log.Errorf("[SyncQueue] Failed to remove completed job %s: %v", jobID, err)
	}
}

// updateJobStats updates job statistics
func (q *Queue) updateJobStats(ctx context.Context, status JobStatus, delta int64) {
	if err := q.client.HIncrBy(ctx, JobStatsKey, string(status), delta).Err(); err != nil {
		log.Errorf("[SyncQueue] Failed to update job stats: %v", err)
	}
}

// GetJob retrieves a job by ID
func (q *Queue) GetJob(ctx context.Context, jobID string) (*Job, error) {
	jobKey := JobKeyPrefix + jobID
	jobData, err := q.client.Get(ctx, jobKey).Result()
	if err != nil {
		return nil, err
	}

	var job Job
	if err := json.Unmarshal([]byte(jobData), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}

	return &job, nil
}

// GetStats returns queue occupancy per state and refreshes the depth
// gauges.
func (q *Queue) GetStats(ctx context.Context) (*Stats, error) {
	waiting, err := q.client.LLen(ctx, JobQueueKey).Result()
	if err != nil {
		return nil, err
	}
	active, err := q.client.LLen(ctx, JobProcessingKey).Result()
	if err != nil {
		return nil, err
	}

	counters, err := q.client.HGetAll(ctx, JobStatsKey).Result()
	if err != nil {
		return nil, err
	}
	stats := &Stats{
		Waiting: waiting,
		Active:  active,
		Paused:  q.IsPaused(ctx),
	}
	for status, count := range counters {
		n, err := json.Number(count).Int64()
		if err != nil {
			continue
		}
		switch JobStatus(status) {
		case JobStatusCompleted:
			stats.Completed = n
		case JobStatusFailed:
			stats.Failed = n
		}
	}

	metrics.SetQueueDepth("waiting", stats.Waiting)
	metrics.SetQueueDepth("active", stats.Active)
	return stats, nil
}

// PruneHistory deletes terminal job keys older than the retention window.
// Queue lists are untouched; this only reclaims per-job hash keys left by
// failed jobs (completed jobs are removed eagerly).
func (q *Queue) PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error) {
	var pruned int64
	var cursor uint64
	cutoff := time.Now().Add(-olderThan)

	for {
		keys, next, err := q.client.Scan(ctx, cursor, JobKeyPrefix+"*", 500).Result()
		if err != nil {
			return pruned, err
		}
		for _, key := range keys {
			data, err := q.client.Get(ctx, key).Result()
			if err != nil {
				continue
			}
			var job Job
			if err := json.Unmarshal([]byte(data), &job); err != nil {
				continue
			}
			if (job.Status == JobStatusFailed || job.Status == JobStatusCompleted) && job.UpdatedAt.Before(cutoff) {
				if err := q.client.Del(ctx, key).Err(); err == nil {
					pruned++
				}
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return pruned, nil
}
