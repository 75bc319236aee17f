package models

// CatalogBundleCountry links a bundle to a supported country. Only
// ISO-3166 alpha-2 codes that survived validation are ever written here.
type CatalogBundleCountry struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	BundleID    uint   `gorm:"uniqueIndex:idx_bundle_country;not null" json:"bundle_id"`
	CountryISO2 string `gorm:"type:char(2);uniqueIndex:idx_bundle_country;index;not null" json:"country_iso2"`
}

func (CatalogBundleCountry) TableName() string {
	return "catalog_bundle_countries"
}
