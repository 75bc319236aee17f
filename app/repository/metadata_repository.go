package repository

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/asafgershon/esim-go-sub012/app/models"
)

// catalogMetadataRepository implements CatalogMetadataRepository on GORM.
type catalogMetadataRepository struct {
	db *gorm.DB
}

// NewCatalogMetadataRepository creates a metadata repository backed by GORM.
func NewCatalogMetadataRepository(db *gorm.DB) CatalogMetadataRepository {
	return &catalogMetadataRepository{db: db}
}

func (r *catalogMetadataRepository) GetOrCreate(ctx context.Context, providerName string) (*models.CatalogMetadata, error) {
	var meta models.CatalogMetadata
	err := r.db.WithContext(ctx).
		Where(models.CatalogMetadata{ProviderName: providerName}).
		Attrs(models.CatalogMetadata{APIHealthStatus: models.APIHealthUnknown}).
		FirstOrCreate(&meta).Error
	if err != nil {
		return nil, err
	}
	return &meta, nil
}

func (r *catalogMetadataRepository) RecordFullSync(ctx context.Context, providerName string, totalBundles int, groups []string) error {
	groupsJSON, err := json.Marshal(groups)
	if err != nil {
		return err
	}
	blob := models.JSON(groupsJSON)
	now := time.Now()

	meta := models.CatalogMetadata{
		ProviderName:    providerName,
		LastFullSync:    &now,
		TotalBundles:    totalBundles,
		BundleGroups:    &blob,
		APIHealthStatus: models.APIHealthHealthy,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "provider_name"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"last_full_sync",
			"total_bundles",
			"bundle_groups",
			"api_health_status",
			"updated_at",
		}),
	}).Create(&meta).Error
}

func (r *catalogMetadataRepository) RefreshStats(ctx context.Context, providerName string, totalBundles int, groups []string) error {
	groupsJSON, err := json.Marshal(groups)
	if err != nil {
		return err
	}
	blob := models.JSON(groupsJSON)

	meta := models.CatalogMetadata{
		ProviderName: providerName,
		TotalBundles: totalBundles,
		BundleGroups: &blob,
	}
	// Unlike RecordFullSync, the last-sync timestamp is left alone.
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "provider_name"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"total_bundles",
			"bundle_groups",
			"updated_at",
		}),
	}).Create(&meta).Error
}

func (r *catalogMetadataRepository) SetAPIHealth(ctx context.Context, providerName, status string) error {
	meta := models.CatalogMetadata{
		ProviderName:    providerName,
		APIHealthStatus: status,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "provider_name"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"api_health_status",
			"updated_at",
		}),
	}).Create(&meta).Error
}

func (r *catalogMetadataRepository) List(ctx context.Context) ([]models.CatalogMetadata, error) {
	var metas []models.CatalogMetadata
	err := r.db.WithContext(ctx).Order("provider_name").Find(&metas).Error
	return metas, err
}
