package repository

import (
	"sync"

	"gorm.io/gorm"
)

// Factory manages repository instances and ensures they are created once
// per injected DB handle. Construct one per process and pass it down;
// there is no package-level instance.
type Factory struct {
	db    *gorm.DB
	repos *Repositories
	once  sync.Once
}

// NewFactory creates a new repository factory
func NewFactory(db *gorm.DB) *Factory {
	return &Factory{
		db: db,
	}
}

// GetRepositories returns the factory's repositories, building them on
// first use.
func (f *Factory) GetRepositories() *Repositories {
	f.once.Do(func() {
		f.repos = NewRepositories(f.db)
	})
	return f.repos
}

// GetBundleRepository returns the bundle repository instance
func (f *Factory) GetBundleRepository() BundleRepository {
	return f.GetRepositories().Bundle
}

// GetSyncJobRepository returns the sync job repository instance
func (f *Factory) GetSyncJobRepository() SyncJobRepository {
	return f.GetRepositories().SyncJob
}

// GetMetadataRepository returns the catalog metadata repository instance
func (f *Factory) GetMetadataRepository() CatalogMetadataRepository {
	return f.GetRepositories().Metadata
}

// GetQueueRepository returns the queue repository instance
func (f *Factory) GetQueueRepository() QueueRepository {
	return f.GetRepositories().Queue
}
