package models

import (
	"time"
)

// CatalogBundle is a canonical bundle row. One row per (provider, external id);
// upserts key on that pair. A bundle only becomes active after at least one
// country link has been persisted for it, so is_active defaults to false and
// is flipped in a separate activation step.
type CatalogBundle struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	ProviderID  uint            `gorm:"uniqueIndex:idx_provider_external;not null" json:"provider_id"`
	Provider    CatalogProvider `gorm:"foreignKey:ProviderID" json:"provider,omitempty"`
	ExternalID  string          `gorm:"type:varchar(255);uniqueIndex:idx_provider_external;not null" json:"external_id"`
	Name        string          `gorm:"type:varchar(255);not null" json:"name"`
	Description string          `gorm:"type:text" json:"description"`
	// DataAmountMB is nil for unlimited bundles and for bundles whose
	// provider reports no quota.
	DataAmountMB       *int64  `gorm:"type:bigint" json:"data_amount_mb"`
	DataAmountReadable string  `gorm:"type:varchar(32)" json:"data_amount_readable"`
	ValidityDays       int     `gorm:"type:int;not null" json:"validity_days"`
	PriceUSD           float64 `gorm:"type:decimal(10,2);not null" json:"price_usd"`
	Unlimited          bool    `gorm:"default:false" json:"unlimited"`
	PlanType           string  `gorm:"type:varchar(50)" json:"plan_type"`
	GroupName          string  `gorm:"type:varchar(100);index" json:"group_name"`
	Region             string  `gorm:"type:varchar(100)" json:"region"`
	SpeedTags          string  `gorm:"type:varchar(255)" json:"speed_tags"`
	IsActive           bool    `gorm:"default:false;index" json:"is_active"`

	Countries []CatalogBundleCountry `gorm:"foreignKey:BundleID" json:"countries,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
	SyncedAt  time.Time `json:"synced_at"`
}

func (CatalogBundle) TableName() string {
	return "catalog_bundles"
}
