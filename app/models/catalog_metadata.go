package models

import (
	"time"
)

// API health states recorded per provider
const (
	APIHealthHealthy     = "healthy"
	APIHealthUnreachable = "unreachable"
	APIHealthUnknown     = "unknown"
)

// CatalogMetadata is a singleton-per-provider record the scheduler reads to
// decide when the next full sync is due.
type CatalogMetadata struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	ProviderName    string     `gorm:"type:varchar(50);uniqueIndex;not null" json:"provider_name"`
	LastFullSync    *time.Time `json:"last_full_sync,omitempty"`
	TotalBundles    int        `gorm:"default:0" json:"total_bundles"`
	BundleGroups    *JSON      `gorm:"type:json" json:"bundle_groups,omitempty"`
	APIHealthStatus string     `gorm:"type:varchar(16);default:unknown" json:"api_health_status"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (CatalogMetadata) TableName() string {
	return "catalog_metadata"
}

// IsSyncDue reports whether a full sync is overdue for this provider.
// A provider that has never synced is always due.
func (m *CatalogMetadata) IsSyncDue(threshold time.Duration) bool {
	if m.LastFullSync == nil {
		return true
	}
	return time.Since(*m.LastFullSync) > threshold
}
