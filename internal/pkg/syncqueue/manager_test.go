package syncqueue

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/asafgershon/esim-go-sub012/app/models"
	"github.com/asafgershon/esim-go-sub012/app/repository"
)

func newTestManager(t *testing.T, cfg Config) (*Manager, *Registry, *repository.Repositories) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "catalog.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.SyncJob{}))

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repos := repository.NewRepositories(db)
	registry := NewRegistry()
	queue := NewQueue(client, repos.SyncJob, registry, cfg)
	return NewManager(queue, repos.SyncJob, nil), registry, repos
}

// A second trigger for the same scope must be rejected even before any
// worker has dequeued the first job.
func TestManagerRejectsDuplicateTriggerBeforeDequeue(t *testing.T) {
	m, _, repos := newTestManager(t, Config{})
	ctx := context.Background()

	job, err := m.AddFullSyncJob(ctx, "esimgo", "api", PriorityManual)
	require.NoError(t, err)
	require.NotZero(t, job.RecordID)

	_, err = m.AddFullSyncJob(ctx, "esimgo", "api", PriorityManual)
	assert.ErrorIs(t, err, ErrSyncInProgress)

	// A different provider occupies a different scope.
	_, err = m.AddFullSyncJob(ctx, "maya", "api", PriorityManual)
	require.NoError(t, err)

	jobs, err := repos.SyncJob.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	for _, row := range jobs {
		assert.Equal(t, models.SyncJobStatusPending, row.Status)
	}
}

func TestManagerScopedJobGuards(t *testing.T) {
	m, _, _ := newTestManager(t, Config{})
	ctx := context.Background()

	_, err := m.AddGroupSyncJob(ctx, "esimgo", "Standard Fixed", PriorityManual)
	require.NoError(t, err)
	_, err = m.AddGroupSyncJob(ctx, "esimgo", "Standard Fixed", PriorityManual)
	assert.ErrorIs(t, err, ErrSyncInProgress)
	_, err = m.AddGroupSyncJob(ctx, "esimgo", "Regional", PriorityManual)
	require.NoError(t, err)

	_, err = m.AddCountrySyncJob(ctx, "maya", "FR", PriorityManual)
	require.NoError(t, err)
	_, err = m.AddCountrySyncJob(ctx, "maya", "FR", PriorityScheduled)
	assert.ErrorIs(t, err, ErrSyncInProgress)
}

// The worker reuses the row created at trigger time instead of writing a
// second one, and finishing the job frees the scope for the next trigger.
func TestManagerTriggerRecordFollowsJobLifecycle(t *testing.T) {
	m, registry, repos := newTestManager(t, Config{})
	ctx := context.Background()

	registry.Register(models.SyncJobTypeFull, func(_ context.Context, _ *Job) (*Result, error) {
		return &Result{Processed: 5, Added: 5}, nil
	})

	job, err := m.AddFullSyncJob(ctx, "esimgo", "api", PriorityManual)
	require.NoError(t, err)

	dequeued, err := m.queue.dequeueJob(ctx)
	require.NoError(t, err)
	require.Equal(t, job.RecordID, dequeued.RecordID)
	m.queue.processJob(ctx, dequeued)

	record, err := repos.SyncJob.GetByID(ctx, job.RecordID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncJobStatusCompleted, record.Status)
	assert.Equal(t, 5, record.BundlesProcessed)
	assert.Equal(t, 5, record.BundlesAdded)

	history, err := repos.SyncJob.History(ctx, repository.SyncJobFilter{})
	require.NoError(t, err)
	assert.Len(t, history, 1)

	// The completed row no longer occupies the scope.
	_, err = m.AddFullSyncJob(ctx, "esimgo", "api", PriorityManual)
	require.NoError(t, err)
}
