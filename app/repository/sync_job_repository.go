package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/asafgershon/esim-go-sub012/app/models"
)

// syncJobRepository implements SyncJobRepository on GORM.
type syncJobRepository struct {
	db *gorm.DB
}

// NewSyncJobRepository creates a sync job repository backed by GORM.
func NewSyncJobRepository(db *gorm.DB) SyncJobRepository {
	return &syncJobRepository{db: db}
}

func (r *syncJobRepository) Create(ctx context.Context, job *models.SyncJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *syncJobRepository) Update(ctx context.Context, job *models.SyncJob) error {
	return r.db.WithContext(ctx).Save(job).Error
}

func (r *syncJobRepository) GetByID(ctx context.Context, id uint) (*models.SyncJob, error) {
	var job models.SyncJob
	if err := r.db.WithContext(ctx).First(&job, id).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// HasActiveJob reports whether a pending or running job matches the query.
// This is an advisory check: two callers can race it, which is accepted
// for the narrow-scope sync paths (the full-sync path holds a real lock).
func (r *syncJobRepository) HasActiveJob(ctx context.Context, query ActiveJobQuery) (bool, error) {
	tx := r.db.WithContext(ctx).Model(&models.SyncJob{}).
		Where("status IN ?", []models.SyncJobStatus{models.SyncJobStatusPending, models.SyncJobStatusRunning})
	if query.JobType != "" {
		tx = tx.Where("job_type = ?", query.JobType)
	}
	if query.Provider != "" {
		tx = tx.Where("provider = ?", query.Provider)
	}
	if query.BundleGroup != "" {
		tx = tx.Where("bundle_group = ?", query.BundleGroup)
	}
	if query.CountryID != "" {
		tx = tx.Where("country_id = ?", query.CountryID)
	}

	var count int64
	if err := tx.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *syncJobRepository) ListActive(ctx context.Context) ([]models.SyncJob, error) {
	var jobs []models.SyncJob
	err := r.db.WithContext(ctx).
		Where("status IN ?", []models.SyncJobStatus{models.SyncJobStatusPending, models.SyncJobStatusRunning}).
		Order("created_at DESC").
		Find(&jobs).Error
	return jobs, err
}

func (r *syncJobRepository) History(ctx context.Context, filter SyncJobFilter) ([]models.SyncJob, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	tx := r.db.WithContext(ctx).Model(&models.SyncJob{})
	if filter.Status != "" {
		tx = tx.Where("status = ?", filter.Status)
	}
	if filter.JobType != "" {
		tx = tx.Where("job_type = ?", filter.JobType)
	}

	var jobs []models.SyncJob
	err := tx.Order("created_at DESC").Limit(limit).Offset(filter.Offset).Find(&jobs).Error
	return jobs, err
}

// pendingJobTTL mirrors the queue's Redis job TTL. A pending row older
// than this has no queue entry left that could run it.
const pendingJobTTL = 24 * time.Hour

// CancelStuck marks running jobs older than the threshold as cancelled.
// This is bookkeeping only: whatever the job's worker is still doing is
// not interrupted, its eventual result is simply ignored. Pending rows
// whose queue entry expired are cancelled too, so they stop occupying
// their scope in the active-job guard.
func (r *syncJobRepository) CancelStuck(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	now := time.Now()

	tx := r.db.WithContext(ctx).Model(&models.SyncJob{}).
		Where("status = ? AND started_at < ?", models.SyncJobStatusRunning, cutoff).
		Updates(map[string]interface{}{
			"status":        models.SyncJobStatusCancelled,
			"error_message": "cancelled: exceeded stuck-job threshold",
			"completed_at":  now,
		})
	if tx.Error != nil {
		return tx.RowsAffected, tx.Error
	}
	cancelled := tx.RowsAffected

	tx = r.db.WithContext(ctx).Model(&models.SyncJob{}).
		Where("status = ? AND created_at < ?", models.SyncJobStatusPending, now.Add(-pendingJobTTL)).
		Updates(map[string]interface{}{
			"status":        models.SyncJobStatusCancelled,
			"error_message": "cancelled: queue entry expired before pickup",
			"completed_at":  now,
		})
	return cancelled + tx.RowsAffected, tx.Error
}

func (r *syncJobRepository) DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tx := r.db.WithContext(ctx).
		Where("status IN ? AND created_at < ?",
			[]models.SyncJobStatus{models.SyncJobStatusCompleted, models.SyncJobStatusFailed, models.SyncJobStatusCancelled},
			cutoff).
		Delete(&models.SyncJob{})
	return tx.RowsAffected, tx.Error
}

func (r *syncJobRepository) Stats(ctx context.Context) (*SyncStats, error) {
	type row struct {
		Status models.SyncJobStatus
		Count  int64
	}
	var rows []row
	err := r.db.WithContext(ctx).Model(&models.SyncJob{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	stats := &SyncStats{}
	for _, r := range rows {
		switch r.Status {
		case models.SyncJobStatusPending:
			stats.Pending = r.Count
		case models.SyncJobStatusRunning:
			stats.Running = r.Count
		case models.SyncJobStatusCompleted:
			stats.Completed = r.Count
		case models.SyncJobStatusFailed:
			stats.Failed = r.Count
		case models.SyncJobStatusCancelled:
			stats.Cancelled = r.Count
		}
	}
	return stats, nil
}
