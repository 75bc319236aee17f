package models

import (
	"time"
)

// CatalogProvider is an upstream eSIM catalog source (esimgo, maya, airalo).
// Rows are created lazily on the first bundle referencing the provider.
type CatalogProvider struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(50);uniqueIndex;not null" json:"name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (CatalogProvider) TableName() string {
	return "catalog_providers"
}
