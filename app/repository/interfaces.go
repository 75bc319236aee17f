package repository

import (
	"context"
	"time"

	"github.com/asafgershon/esim-go-sub012/app/models"
	"github.com/asafgershon/esim-go-sub012/internal/pkg/catalog"
	"gorm.io/gorm"
)

// UpsertResult reports what one batched upsert actually persisted. With
// best-effort chunking the counts reflect persisted rows, not input size.
type UpsertResult struct {
	Processed    int
	Added        int
	Updated      int
	Activated    int
	FailedChunks int
}

// BundleRepository writes canonical bundles, their provider linkage and
// country associations. UpsertBundles is idempotent and safe to re-invoke.
type BundleRepository interface {
	UpsertBundles(ctx context.Context, bundles []catalog.Bundle) (*UpsertResult, error)
	CountActive(ctx context.Context, providerName string) (int64, error)
	DistinctGroups(ctx context.Context, providerName string) ([]string, error)
}

// ActiveJobQuery scopes a HasActiveJob check. Empty fields match any value.
type ActiveJobQuery struct {
	JobType     models.SyncJobType
	Provider    string
	BundleGroup string
	CountryID   string
}

// SyncJobFilter narrows a history listing.
type SyncJobFilter struct {
	Status  models.SyncJobStatus
	JobType models.SyncJobType
	Limit   int
	Offset  int
}

// SyncStats aggregates job counters for the status surface.
type SyncStats struct {
	Pending   int64 `json:"pending"`
	Running   int64 `json:"running"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Cancelled int64 `json:"cancelled"`
}

// SyncJobRepository persists the audit trail of sync attempts. Rows are
// created when a job is triggered; the worker owns the transitions from
// there.
type SyncJobRepository interface {
	Create(ctx context.Context, job *models.SyncJob) error
	Update(ctx context.Context, job *models.SyncJob) error
	GetByID(ctx context.Context, id uint) (*models.SyncJob, error)
	HasActiveJob(ctx context.Context, query ActiveJobQuery) (bool, error)
	ListActive(ctx context.Context) ([]models.SyncJob, error)
	History(ctx context.Context, filter SyncJobFilter) ([]models.SyncJob, error)
	CancelStuck(ctx context.Context, olderThan time.Duration) (int64, error)
	DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	Stats(ctx context.Context) (*SyncStats, error)
}

// CatalogMetadataRepository tracks per-provider sync bookkeeping read by
// the scheduler.
type CatalogMetadataRepository interface {
	GetOrCreate(ctx context.Context, providerName string) (*models.CatalogMetadata, error)
	RecordFullSync(ctx context.Context, providerName string, totalBundles int, groups []string) error
	RefreshStats(ctx context.Context, providerName string, totalBundles int, groups []string) error
	SetAPIHealth(ctx context.Context, providerName, status string) error
	List(ctx context.Context) ([]models.CatalogMetadata, error)
}

// QueueRepository exposes raw Redis queue state for admin inspection and
// the daily queue-history cleanup.
type QueueRepository interface {
	GetListLength(key string) (int64, error)
	FindKeysByPatterns(patterns []string) ([]string, error)
	DeleteKeys(keys []string) (int64, error)
}

// Repositories struct holds all repository instances
type Repositories struct {
	Bundle   BundleRepository
	SyncJob  SyncJobRepository
	Metadata CatalogMetadataRepository
	Queue    QueueRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Bundle:   NewBundleRepository(db),
		SyncJob:  NewSyncJobRepository(db),
		Metadata: NewCatalogMetadataRepository(db),
		Queue:    NewQueueRepository(),
	}
}
