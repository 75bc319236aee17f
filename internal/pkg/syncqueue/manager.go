package syncqueue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/asafgershon/esim-go-sub012/app/models"
	"github.com/asafgershon/esim-go-sub012/app/repository"
	"github.com/asafgershon/esim-go-sub012/internal/pkg/env"
)

// ErrSyncInProgress is returned when a conflicting sync job is already
// pending or running.
var ErrSyncInProgress = errors.New("a sync job with this scope is already in progress")

// Maintainer performs the periodic housekeeping the scheduler drives. It
// is implemented by the catalog sync service.
type Maintainer interface {
	// DueProviders lists providers whose last full sync is older than the
	// due threshold.
	DueProviders(ctx context.Context) ([]string, error)
	// ProbeProviderHealth checks each provider API and records the result.
	ProbeProviderHealth(ctx context.Context)
	// CancelStuckJobs cancels jobs running past the stuck threshold.
	CancelStuckJobs(ctx context.Context) (int64, error)
	// CleanupJobHistory prunes terminal job records past retention.
	CleanupJobHistory(ctx context.Context) (int64, error)
}

// Manager wraps the queue with duplicate-job guards and drives the
// periodic scheduler loops.
type Manager struct {
	queue      *Queue
	jobRepo    repository.SyncJobRepository
	maintainer Maintainer

	dueTicker     *time.Ticker
	healthTicker  *time.Ticker
	stuckTicker   *time.Ticker
	cleanupTicker *time.Ticker
	statsTicker   *time.Ticker
	stopCh        chan struct{}
	wg            sync.WaitGroup
	mu            sync.Mutex
	running       bool
}

// NewManager creates a manager around an existing queue.
func NewManager(queue *Queue, jobRepo repository.SyncJobRepository, maintainer Maintainer) *Manager {
	return &Manager{
		queue:      queue,
		jobRepo:    jobRepo,
		maintainer: maintainer,
		stopCh:     make(chan struct{}),
	}
}

// GetQueue returns the managed job queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// Start starts the job queue and the scheduler loops.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so manager can be restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[SyncManager] Starting job queue and scheduler")

	m.queue.Start()

	m.dueTicker = time.NewTicker(time.Hour)
	m.wg.Add(1)
	go m.dueSyncWorker()

	m.healthTicker = time.NewTicker(5 * time.Minute)
	m.wg.Add(1)
	go m.healthWorker()

	m.stuckTicker = time.NewTicker(10 * time.Minute)
	m.wg.Add(1)
	go m.stuckJobWorker()

	m.cleanupTicker = time.NewTicker(24 * time.Hour)
	m.wg.Add(1)
	go m.cleanupWorker()

	m.statsTicker = time.NewTicker(30 * time.Minute)
	m.wg.Add(1)
	go m.statsWorker()

	log.Info("[SyncManager] Started successfully")
}

// Stop stops the scheduler loops and the job queue.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[SyncManager] Stopping scheduler and job queue...")

	for _, t := range []*time.Ticker{m.dueTicker, m.healthTicker, m.stuckTicker, m.cleanupTicker, m.statsTicker} {
		if t != nil {
			t.Stop()
		}
	}

	close(m.stopCh)
	m.running = false
	m.wg.Wait()

	m.queue.Stop()

	log.Info("[SyncManager] Stopped successfully")
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// AddFullSyncJob enqueues a full catalog sync for one provider. At most
// one full sync per provider may be pending or running at a time.
func (m *Manager) AddFullSyncJob(ctx context.Context, provider, triggeredBy string, priority Priority) (*Job, error) {
	payload := FullSyncPayload{Provider: provider, TriggeredBy: triggeredBy}
	return m.enqueueGuarded(ctx, models.SyncJobTypeFull, repository.ActiveJobQuery{
		JobType:  models.SyncJobTypeFull,
		Provider: provider,
	}, priority, payload.ToMap())
}

// AddGroupSyncJob enqueues a sync scoped to one bundle group.
func (m *Manager) AddGroupSyncJob(ctx context.Context, provider, bundleGroup string, priority Priority) (*Job, error) {
	payload := GroupSyncPayload{Provider: provider, BundleGroup: bundleGroup}
	return m.enqueueGuarded(ctx, models.SyncJobTypeGroup, repository.ActiveJobQuery{
		JobType:     models.SyncJobTypeGroup,
		Provider:    provider,
		BundleGroup: bundleGroup,
	}, priority, payload.ToMap())
}

// AddCountrySyncJob enqueues a sync scoped to one country.
func (m *Manager) AddCountrySyncJob(ctx context.Context, provider, countryISO2 string, priority Priority) (*Job, error) {
	payload := CountrySyncPayload{Provider: provider, CountryISO2: countryISO2}
	return m.enqueueGuarded(ctx, models.SyncJobTypeCountry, repository.ActiveJobQuery{
		JobType:   models.SyncJobTypeCountry,
		Provider:  provider,
		CountryID: countryISO2,
	}, priority, payload.ToMap())
}

// enqueueGuarded enqueues one job unless a pending or running job already
// occupies the same scope. The pending catalog_sync_jobs row is written
// before the job becomes visible to workers, so a second trigger in the
// enqueue-to-dequeue window hits the guard instead of slipping through.
func (m *Manager) enqueueGuarded(ctx context.Context, jobType models.SyncJobType, query repository.ActiveJobQuery, priority Priority, payload map[string]interface{}) (*Job, error) {
	active, err := m.jobRepo.HasActiveJob(ctx, query)
	if err != nil {
		return nil, err
	}
	if active {
		return nil, ErrSyncInProgress
	}

	if priority == "" {
		priority = PriorityScheduled
	}
	record := newPendingRecord(jobType, priority, payload)
	if err := m.jobRepo.Create(ctx, record); err != nil {
		return nil, err
	}

	job, err := m.queue.EnqueueWithRecord(ctx, jobType, priority, payload, record.ID)
	if err != nil {
		// The row must not block future triggers when the job never
		// reached the queue.
		record.MarkFailed("enqueue failed: " + err.Error())
		if uerr := m.jobRepo.Update(ctx, record); uerr != nil {
			log.Errorf("[SyncManager] Failed to mark orphaned sync record %d: %v", record.ID, uerr)
		}
		return nil, err
	}
	return job, nil
}

// Pause suspends queue consumption.
func (m *Manager) Pause(ctx context.Context) error {
	log.Info("[SyncManager] Pausing queue consumption")
	return m.queue.Pause(ctx)
}

// Resume re-enables queue consumption.
func (m *Manager) Resume(ctx context.Context) error {
	log.Info("[SyncManager] Resuming queue consumption")
	return m.queue.Resume(ctx)
}

// GetQueueStats returns current queue occupancy.
func (m *Manager) GetQueueStats(ctx context.Context) (*Stats, error) {
	return m.queue.GetStats(ctx)
}

// dueSyncWorker enqueues scheduled full syncs for providers whose catalog
// is older than the due threshold.
func (m *Manager) dueSyncWorker() {
	defer m.wg.Done()
	log.Info("[SyncManager] Started due-sync worker (interval: 1 hour)")
	for {
		select {
		case <-m.stopCh:
			log.Info("[SyncManager] Due-sync worker stopping")
			return
		case <-m.dueTicker.C:
			m.enqueueDueSyncs()
		}
	}
}

func (m *Manager) enqueueDueSyncs() {
	ctx := context.Background()
	providers, err := m.maintainer.DueProviders(ctx)
	if err != nil {
		log.Errorf("[SyncManager] Error checking due providers: %v", err)
		return
	}
	for _, provider := range providers {
		job, err := m.AddFullSyncJob(ctx, provider, "scheduler", PriorityScheduled)
		if err != nil {
			if errors.Is(err, ErrSyncInProgress) {
				log.Debugf("[SyncManager] Skipping due sync for %s: already in progress", provider)
				continue
			}
			log.Errorf("[SyncManager] Error enqueuing due sync for %s: %v", provider, err)
			continue
		}
		log.Infof("[SyncManager] Enqueued scheduled full sync for %s (job %s)", provider, job.ID)
	}
}

// healthWorker probes provider API health every 5 minutes.
func (m *Manager) healthWorker() {
	defer m.wg.Done()
	log.Info("[SyncManager] Started health worker (interval: 5 minutes)")
	for {
		select {
		case <-m.stopCh:
			log.Info("[SyncManager] Health worker stopping")
			return
		case <-m.healthTicker.C:
			m.maintainer.ProbeProviderHealth(context.Background())
		}
	}
}

// stuckJobWorker cancels jobs that have been running past the stuck
// threshold.
func (m *Manager) stuckJobWorker() {
	defer m.wg.Done()
	log.Info("[SyncManager] Started stuck-job worker (interval: 10 minutes)")
	for {
		select {
		case <-m.stopCh:
			log.Info("[SyncManager] Stuck-job worker stopping")
			return
		case <-m.stuckTicker.C:
			cancelled, err := m.maintainer.CancelStuckJobs(context.Background())
			if err != nil {
				log.Errorf("[SyncManager] Error cancelling stuck jobs: %v", err)
				continue
			}
			if cancelled > 0 {
				log.Warnf("[SyncManager] Cancelled %d stuck jobs", cancelled)
			}
		}
	}
}

// cleanupWorker prunes terminal job history once a day.
func (m *Manager) cleanupWorker() {
	defer m.wg.Done()
	log.Info("[SyncManager] Started cleanup worker (interval: 24 hours)")
	for {
		select {
		case <-m.stopCh:
			log.Info("[SyncManager] Cleanup worker stopping")
			return
		case <-m.cleanupTicker.C:
			ctx := context.Background()
			deleted, err := m.maintainer.CleanupJobHistory(ctx)
			if err != nil {
				log.Errorf("[SyncManager] Error cleaning up job history: %v", err)
			} else if deleted > 0 {
				log.Infof("[SyncManager] Deleted %d old job records", deleted)
			}

			retention := time.Duration(env.GetEnvInt("SYNC_JOB_RETENTION_DAYS", 7)) * 24 * time.Hour
			pruned, err := m.queue.PruneHistory(ctx, retention)
			if err != nil {
				log.Errorf("[SyncManager] Error pruning queue history: %v", err)
			} else if pruned > 0 {
				log.Infof("[SyncManager] Pruned %d queue job entries", pruned)
			}
		}
	}
}

// statsWorker logs queue depth every 30 minutes and refreshes the gauges.
func (m *Manager) statsWorker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			log.Info("[SyncManager] Stats worker stopping")
			return
		case <-m.statsTicker.C:
			stats, err := m.queue.GetStats(context.Background())
			if err != nil {
				log.Errorf("[SyncManager] Error reading queue stats: %v", err)
				continue
			}
			log.Infof("[SyncManager] Queue stats: waiting=%d active=%d completed=%d failed=%d paused=%v",
				stats.Waiting, stats.Active, stats.Completed, stats.Failed, stats.Paused)
		}
	}
}
