package repository

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/asafgershon/esim-go-sub012/app/models"
	"github.com/asafgershon/esim-go-sub012/internal/pkg/catalog"
)

const bundleBatchSize = 100

// bundleRepository implements BundleRepository on GORM.
//
// The upsert pipeline is a saga of independently idempotent stages:
// providers -> bundle rows -> country links -> activation. A failed chunk
// is logged and skipped; re-running the whole pipeline converges to the
// correct end state. Cross-statement atomicity is deliberately not
// provided.
type bundleRepository struct {
	db *gorm.DB
}

// NewBundleRepository creates a bundle repository backed by GORM.
func NewBundleRepository(db *gorm.DB) BundleRepository {
	return &bundleRepository{db: db}
}

func (r *bundleRepository) UpsertBundles(ctx context.Context, bundles []catalog.Bundle) (*UpsertResult, error) {
	result := &UpsertResult{}
	if len(bundles) == 0 {
		return result, nil
	}

	// Stage 1: ensure provider rows exist, build name -> id map
	providerIDs, err := r.upsertProviders(ctx, bundles)
	if err != nil {
		return result, fmt.Errorf("upsert providers: %w", err)
	}

	// Stage 2: map bundles to rows; drop unresolvable entries. Duplicate
	// (provider, external_id) keys within one batch collapse to the last
	// occurrence, matching the on-conflict semantics across calls.
	rows := make([]models.CatalogBundle, 0, len(bundles))
	rowSource := make([]*catalog.Bundle, 0, len(bundles))
	rowIndex := make(map[string]int, len(bundles))
	for i := range bundles {
		b := &bundles[i]
		providerID, ok := providerIDs[b.Provider]
		if !ok || b.ExternalID == "" {
			log.Warnf("[BundleRepo] Skipping bundle %q: unresolved provider %q", b.ExternalID, b.Provider)
			continue
		}
		key := bundleKey(providerID, b.ExternalID)
		if idx, seen := rowIndex[key]; seen {
			rows[idx] = r.toRow(providerID, b)
			rowSource[idx] = b
			continue
		}
		rowIndex[key] = len(rows)
		rows = append(rows, r.toRow(providerID, b))
		rowSource = append(rowSource, b)
	}

	// Stage 3: chunked bundle upsert, rebuilding the id map from the DB
	// because ids may be newly assigned
	bundleIDs := make(map[string]uint, len(rows))
	for start := 0; start < len(rows); start += bundleBatchSize {
		end := start + bundleBatchSize
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]

		added, updated, err := r.upsertBundleChunk(ctx, chunk, bundleIDs)
		if err != nil {
			log.Errorf("[BundleRepo] catalog_bundles chunk %d-%d failed: %v", start, end, err)
			result.FailedChunks++
			continue
		}
		result.Added += added
		result.Updated += updated
		result.Processed += len(chunk)
	}

	// Stage 4: country links for every persisted bundle
	links := make([]models.CatalogBundleCountry, 0, len(rowSource)*2)
	activate := make(map[uint]struct{})
	for i, b := range rowSource {
		key := bundleKey(rows[i].ProviderID, b.ExternalID)
		bundleID, ok := bundleIDs[key]
		if !ok {
			// The bundle's chunk failed; its links wait for the next run
			continue
		}
		countries := dedupeCountries(b.Countries)
		if len(countries) == 0 {
			continue
		}
		for _, iso2 := range countries {
			links = append(links, models.CatalogBundleCountry{BundleID: bundleID, CountryISO2: iso2})
		}
		activate[bundleID] = struct{}{}
	}

	activated, linkFailures := r.upsertCountryLinks(ctx, links, activate)
	result.FailedChunks += linkFailures

	// Stage 5: single activation update for bundles with persisted links
	if len(activated) > 0 {
		tx := r.db.WithContext(ctx).
			Model(&models.CatalogBundle{}).
			Where("id IN ?", activated).
			Update("is_active", true)
		if tx.Error != nil {
			log.Errorf("[BundleRepo] activation update failed: %v", tx.Error)
			result.FailedChunks++
		} else {
			result.Activated = len(activated)
		}
	}

	return result, nil
}

// upsertProviders creates missing provider rows and returns name -> id.
func (r *bundleRepository) upsertProviders(ctx context.Context, bundles []catalog.Bundle) (map[string]uint, error) {
	seen := make(map[string]struct{})
	providers := make([]models.CatalogProvider, 0, 4)
	for i := range bundles {
		name := bundles[i].Provider
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		providers = append(providers, models.CatalogProvider{Name: name})
	}
	if len(providers) == 0 {
		return nil, fmt.Errorf("no resolvable providers in batch")
	}

	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(&providers).Error; err != nil {
		return nil, err
	}

	names := make([]string, 0, len(providers))
	for _, p := range providers {
		names = append(names, p.Name)
	}
	var stored []models.CatalogProvider
	if err := r.db.WithContext(ctx).Where("name IN ?", names).Find(&stored).Error; err != nil {
		return nil, err
	}

	ids := make(map[string]uint, len(stored))
	for _, p := range stored {
		ids[p.Name] = p.ID
	}
	return ids, nil
}

// upsertBundleChunk writes one chunk keyed on (provider_id, external_id),
// then re-selects the rows to populate idMap with their persisted ids.
// Returns how many rows were newly inserted vs updated.
func (r *bundleRepository) upsertBundleChunk(ctx context.Context, chunk []models.CatalogBundle, idMap map[string]uint) (added, updated int, err error) {
	providerIDs := make([]uint, 0, len(chunk))
	externalIDs := make([]string, 0, len(chunk))
	chunkKeys := make(map[string]struct{}, len(chunk))
	for _, row := range chunk {
		providerIDs = append(providerIDs, row.ProviderID)
		externalIDs = append(externalIDs, row.ExternalID)
		chunkKeys[bundleKey(row.ProviderID, row.ExternalID)] = struct{}{}
	}

	// The IN/IN filter is a superset match across providers, so the rows
	// are paired up in memory before counting.
	var prior []models.CatalogBundle
	if err := r.db.WithContext(ctx).
		Select("provider_id", "external_id").
		Where("provider_id IN ? AND external_id IN ?", providerIDs, externalIDs).
		Find(&prior).Error; err != nil {
		return 0, 0, err
	}
	existing := 0
	for _, row := range prior {
		if _, ok := chunkKeys[bundleKey(row.ProviderID, row.ExternalID)]; ok {
			existing++
		}
	}

	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider_id"},
			{Name: "external_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"name",
			"description",
			"data_amount_mb",
			"data_amount_readable",
			"validity_days",
			"price_usd",
			"unlimited",
			"plan_type",
			"group_name",
			"region",
			"speed_tags",
			"synced_at",
			"updated_at",
		}),
	}).Create(&chunk).Error; err != nil {
		return 0, 0, err
	}

	var stored []models.CatalogBundle
	if err := r.db.WithContext(ctx).
		Select("id", "provider_id", "external_id").
		Where("provider_id IN ? AND external_id IN ?", providerIDs, externalIDs).
		Find(&stored).Error; err != nil {
		return 0, 0, err
	}
	for _, row := range stored {
		idMap[bundleKey(row.ProviderID, row.ExternalID)] = row.ID
	}

	updated = existing
	added = len(chunk) - updated
	if added < 0 {
		added = 0
	}
	return added, updated, nil
}

// upsertCountryLinks writes link rows in chunks and returns the bundle ids
// whose links are confirmed persisted, plus the failed chunk count.
func (r *bundleRepository) upsertCountryLinks(ctx context.Context, links []models.CatalogBundleCountry, candidates map[uint]struct{}) ([]uint, int) {
	failures := 0
	failedBundles := make(map[uint]struct{})

	for start := 0; start < len(links); start += bundleBatchSize {
		end := start + bundleBatchSize
		if end > len(links) {
			end = len(links)
		}
		chunk := links[start:end]

		if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "bundle_id"},
				{Name: "country_iso2"},
			},
			DoNothing: true,
		}).Create(&chunk).Error; err != nil {
			log.Errorf("[BundleRepo] catalog_bundle_countries chunk %d-%d failed: %v", start, end, err)
			failures++
			for _, link := range chunk {
				failedBundles[link.BundleID] = struct{}{}
			}
		}
	}

	activated := make([]uint, 0, len(candidates))
	for id := range candidates {
		if _, failed := failedBundles[id]; failed {
			continue
		}
		activated = append(activated, id)
	}
	return activated, failures
}

func (r *bundleRepository) toRow(providerID uint, b *catalog.Bundle) models.CatalogBundle {
	speedTags := ""
	for i, tag := range b.SpeedTags {
		if i > 0 {
			speedTags += ","
		}
		speedTags += tag
	}
	return models.CatalogBundle{
		ProviderID:         providerID,
		ExternalID:         b.ExternalID,
		Name:               b.Name,
		Description:        b.Description,
		DataAmountMB:       b.DataAmountMB,
		DataAmountReadable: b.DataAmountReadable,
		ValidityDays:       b.ValidityDays,
		PriceUSD:           b.PriceUSD,
		Unlimited:          b.Unlimited,
		PlanType:           b.PlanType,
		GroupName:          b.GroupName,
		Region:             b.Region,
		SpeedTags:          speedTags,
		// Activation is a separate explicit step after country links commit
		IsActive: false,
		SyncedAt: b.SyncedAt,
	}
}

func (r *bundleRepository) CountActive(ctx context.Context, providerName string) (int64, error) {
	var count int64
	tx := r.db.WithContext(ctx).Model(&models.CatalogBundle{}).
		Joins("JOIN catalog_providers ON catalog_providers.id = catalog_bundles.provider_id").
		Where("catalog_bundles.is_active = ?", true)
	if providerName != "" {
		tx = tx.Where("catalog_providers.name = ?", providerName)
	}
	err := tx.Count(&count).Error
	return count, err
}

func (r *bundleRepository) DistinctGroups(ctx context.Context, providerName string) ([]string, error) {
	var groups []string
	tx := r.db.WithContext(ctx).Model(&models.CatalogBundle{}).
		Joins("JOIN catalog_providers ON catalog_providers.id = catalog_bundles.provider_id").
		Where("group_name <> ''").
		Distinct().
		Order("group_name")
	if providerName != "" {
		tx = tx.Where("catalog_providers.name = ?", providerName)
	}
	err := tx.Pluck("group_name", &groups).Error
	return groups, err
}

func bundleKey(providerID uint, externalID string) string {
	return fmt.Sprintf("%d|%s", providerID, externalID)
}

func dedupeCountries(countries []string) []string {
	seen := make(map[string]struct{}, len(countries))
	out := make([]string, 0, len(countries))
	for _, iso2 := range countries {
		if iso2 == "" {
			continue
		}
		if _, ok := seen[iso2]; ok {
			continue
		}
		seen[iso2] = struct{}{}
		out = append(out, iso2)
	}
	return out
}
