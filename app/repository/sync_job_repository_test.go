package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asafgershon/esim-go-sub012/app/models"
)

func TestSyncJobLifecycle(t *testing.T) {
	db := newTestDB(t)
	repo := NewSyncJobRepository(db)
	ctx := context.Background()

	job := &models.SyncJob{
		JobType:  models.SyncJobTypeFull,
		Status:   models.SyncJobStatusPending,
		Provider: "esimgo",
		Priority: "manual",
	}
	require.NoError(t, repo.Create(ctx, job))
	require.NotZero(t, job.ID)

	job.MarkRunning()
	require.NoError(t, repo.Update(ctx, job))

	job.MarkCompleted(100, 80, 20)
	require.NoError(t, repo.Update(ctx, job))

	stored, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncJobStatusCompleted, stored.Status)
	assert.Equal(t, 100, stored.BundlesProcessed)
	assert.Equal(t, 80, stored.BundlesAdded)
	assert.Equal(t, 20, stored.BundlesUpdated)
	assert.NotNil(t, stored.StartedAt)
	assert.NotNil(t, stored.CompletedAt)
	assert.True(t, stored.IsTerminal())
}

// An active job of the same type/scope blocks a second enqueue.
func TestHasActiveJob(t *testing.T) {
	db := newTestDB(t)
	repo := NewSyncJobRepository(db)
	ctx := context.Background()

	active, err := repo.HasActiveJob(ctx, ActiveJobQuery{JobType: models.SyncJobTypeFull})
	require.NoError(t, err)
	assert.False(t, active)

	job := &models.SyncJob{JobType: models.SyncJobTypeFull, Status: models.SyncJobStatusPending, Provider: "esimgo"}
	require.NoError(t, repo.Create(ctx, job))

	active, err = repo.HasActiveJob(ctx, ActiveJobQuery{JobType: models.SyncJobTypeFull})
	require.NoError(t, err)
	assert.True(t, active)

	// A different scope is not blocked
	active, err = repo.HasActiveJob(ctx, ActiveJobQuery{JobType: models.SyncJobTypeGroup, BundleGroup: "Standard Fixed"})
	require.NoError(t, err)
	assert.False(t, active)

	// Terminal states free the scope
	job.MarkFailed("provider unreachable")
	require.NoError(t, repo.Update(ctx, job))
	active, err = repo.HasActiveJob(ctx, ActiveJobQuery{JobType: models.SyncJobTypeFull})
	require.NoError(t, err)
	assert.False(t, active)
}

// A job running for 45 minutes is cancelled with a 30-minute threshold,
// and no longer blocks the next full sync.
func TestCancelStuck(t *testing.T) {
	db := newTestDB(t)
	repo := NewSyncJobRepository(db)
	ctx := context.Background()

	stuck := &models.SyncJob{JobType: models.SyncJobTypeFull, Status: models.SyncJobStatusRunning, Provider: "esimgo"}
	require.NoError(t, repo.Create(ctx, stuck))
	started := time.Now().Add(-45 * time.Minute)
	require.NoError(t, db.Model(stuck).Update("started_at", started).Error)

	fresh := &models.SyncJob{JobType: models.SyncJobTypeGroup, Status: models.SyncJobStatusRunning, Provider: "esimgo"}
	require.NoError(t, repo.Create(ctx, fresh))
	require.NoError(t, db.Model(fresh).Update("started_at", time.Now()).Error)

	cancelled, err := repo.CancelStuck(ctx, 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), cancelled)

	stored, err := repo.GetByID(ctx, stuck.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncJobStatusCancelled, stored.Status)
	assert.Contains(t, stored.ErrorMessage, "stuck")

	// The fresh job is untouched
	stored, err = repo.GetByID(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncJobStatusRunning, stored.Status)

	// The cancelled job no longer blocks a full-sync trigger
	active, err := repo.HasActiveJob(ctx, ActiveJobQuery{JobType: models.SyncJobTypeFull})
	require.NoError(t, err)
	assert.False(t, active)
}

func TestDeleteCompletedBefore(t *testing.T) {
	db := newTestDB(t)
	repo := NewSyncJobRepository(db)
	ctx := context.Background()

	old := &models.SyncJob{JobType: models.SyncJobTypeFull, Status: models.SyncJobStatusCompleted}
	require.NoError(t, repo.Create(ctx, old))
	require.NoError(t, db.Model(old).Update("created_at", time.Now().Add(-10*24*time.Hour)).Error)

	recent := &models.SyncJob{JobType: models.SyncJobTypeFull, Status: models.SyncJobStatusCompleted}
	require.NoError(t, repo.Create(ctx, recent))

	running := &models.SyncJob{JobType: models.SyncJobTypeFull, Status: models.SyncJobStatusRunning}
	require.NoError(t, repo.Create(ctx, running))
	require.NoError(t, db.Model(running).Update("created_at", time.Now().Add(-10*24*time.Hour)).Error)

	deleted, err := repo.DeleteCompletedBefore(ctx, time.Now().Add(-7*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	// Running jobs are never pruned, no matter their age
	_, err = repo.GetByID(ctx, running.ID)
	assert.NoError(t, err)
}

func TestSyncJobStats(t *testing.T) {
	db := newTestDB(t)
	repo := NewSyncJobRepository(db)
	ctx := context.Background()

	for _, status := range []models.SyncJobStatus{
		models.SyncJobStatusPending,
		models.SyncJobStatusCompleted,
		models.SyncJobStatusCompleted,
		models.SyncJobStatusFailed,
	} {
		require.NoError(t, repo.Create(ctx, &models.SyncJob{JobType: models.SyncJobTypeFull, Status: status}))
	}

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Pending)
	assert.Equal(t, int64(2), stats.Completed)
	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, int64(0), stats.Running)
}

func TestSyncJobHistoryFilter(t *testing.T) {
	db := newTestDB(t)
	repo := NewSyncJobRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &models.SyncJob{JobType: models.SyncJobTypeFull, Status: models.SyncJobStatusCompleted}))
	require.NoError(t, repo.Create(ctx, &models.SyncJob{JobType: models.SyncJobTypeGroup, Status: models.SyncJobStatusFailed}))
	require.NoError(t, repo.Create(ctx, &models.SyncJob{JobType: models.SyncJobTypeFull, Status: models.SyncJobStatusFailed}))

	jobs, err := repo.History(ctx, SyncJobFilter{Status: models.SyncJobStatusFailed})
	require.NoError(t, err)
	assert.Len(t, jobs, 2)

	jobs, err = repo.History(ctx, SyncJobFilter{Status: models.SyncJobStatusFailed, JobType: models.SyncJobTypeGroup})
	require.NoError(t, err)
	assert.Len(t, jobs, 1)

	jobs, err = repo.History(ctx, SyncJobFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, jobs, 2)
}

func TestMetadataRepository(t *testing.T) {
	db := newTestDB(t)
	repo := NewCatalogMetadataRepository(db)
	ctx := context.Background()

	meta, err := repo.GetOrCreate(ctx, "esimgo")
	require.NoError(t, err)
	assert.Equal(t, models.APIHealthUnknown, meta.APIHealthStatus)
	assert.Nil(t, meta.LastFullSync)
	assert.True(t, meta.IsSyncDue(168*time.Hour), "never-synced provider is always due")

	require.NoError(t, repo.RecordFullSync(ctx, "esimgo", 1200, []string{"Standard Fixed", "Standard Unlimited"}))

	meta, err = repo.GetOrCreate(ctx, "esimgo")
	require.NoError(t, err)
	require.NotNil(t, meta.LastFullSync)
	assert.Equal(t, 1200, meta.TotalBundles)
	assert.Equal(t, models.APIHealthHealthy, meta.APIHealthStatus)
	assert.False(t, meta.IsSyncDue(168*time.Hour))

	require.NoError(t, repo.SetAPIHealth(ctx, "esimgo", models.APIHealthUnreachable))
	meta, err = repo.GetOrCreate(ctx, "esimgo")
	require.NoError(t, err)
	assert.Equal(t, models.APIHealthUnreachable, meta.APIHealthStatus)
	// Health updates never clobber sync bookkeeping
	assert.Equal(t, 1200, meta.TotalBundles)

	metas, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, metas, 1)
}
