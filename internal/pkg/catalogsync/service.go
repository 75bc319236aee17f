package catalogsync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/asafgershon/esim-go-sub012/app/models"
	"github.com/asafgershon/esim-go-sub012/app/repository"
	"github.com/asafgershon/esim-go-sub012/internal/pkg/catalog"
	"github.com/asafgershon/esim-go-sub012/internal/pkg/env"
	"github.com/asafgershon/esim-go-sub012/internal/pkg/lock"
	"github.com/asafgershon/esim-go-sub012/internal/pkg/metrics"
	"github.com/asafgershon/esim-go-sub012/internal/pkg/provider"
)

const fullSyncLockPrefix = "catalog_sync:lock:full:"

// Archiver stores a point-in-time copy of a synced catalog, one object
// per fetched page so the sync never holds the whole catalog in memory.
// Archiving is best effort and never fails a sync.
type Archiver interface {
	ArchiveCatalogPage(ctx context.Context, providerName, runID string, page int, bundles []catalog.Bundle) error
}

// Config tunes sync timing behavior. All values come from the
// environment with sensible defaults.
type Config struct {
	LockTTL        time.Duration
	DueThreshold   time.Duration
	StuckThreshold time.Duration
	Retention      time.Duration
}

// ConfigFromEnv builds the sync config from environment variables.
func ConfigFromEnv() Config {
	return Config{
		LockTTL:        env.GetEnvDuration("SYNC_LOCK_TTL_MINUTES", 30, time.Minute),
		DueThreshold:   env.GetEnvDuration("SYNC_DUE_HOURS", 168, time.Hour),
		StuckThreshold: env.GetEnvDuration("SYNC_STUCK_THRESHOLD_MINUTES", 30, time.Minute),
		Retention:      env.GetEnvDuration("SYNC_JOB_RETENTION_DAYS", 7, 24*time.Hour),
	}
}

// Summary reports the outcome of one sync operation.
type Summary struct {
	Provider     string        `json:"provider"`
	Processed    int           `json:"processed"`
	Added        int           `json:"added"`
	Updated      int           `json:"updated"`
	Activated    int           `json:"activated"`
	FailedChunks int           `json:"failed_chunks"`
	Pages        int           `json:"pages"`
	Skipped      bool          `json:"skipped"`
	Duration     time.Duration `json:"duration"`
}

// Service orchestrates catalog synchronization across providers: fetch,
// transform, persist, and the bookkeeping around it.
type Service struct {
	clients     map[string]provider.Client
	transformer *catalog.Transformer
	bundles     repository.BundleRepository
	jobs        repository.SyncJobRepository
	metadata    repository.CatalogMetadataRepository
	redisClient *redis.Client
	archiver    Archiver
	cfg         Config
}

// NewService creates a sync service over the given provider clients.
func NewService(clients []provider.Client, transformer *catalog.Transformer, repos *repository.Repositories, redisClient *redis.Client, archiver Archiver, cfg Config) *Service {
	registry := make(map[string]provider.Client, len(clients))
	for _, c := range clients {
		registry[c.Name()] = c
	}
	return &Service{
		clients:     registry,
		transformer: transformer,
		bundles:     repos.Bundle,
		jobs:        repos.SyncJob,
		metadata:    repos.Metadata,
		redisClient: redisClient,
		archiver:    archiver,
		cfg:         cfg,
	}
}

// Client returns the registered client for a provider name.
func (s *Service) Client(name string) (provider.Client, bool) {
	c, ok := s.clients[name]
	return c, ok
}

// Providers returns the registered provider names, sorted.
func (s *Service) Providers() []string {
	names := make([]string, 0, len(s.clients))
	for name := range s.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SyncFullCatalog replaces the active catalog view for one provider. Only
// one full sync per provider runs at a time; a concurrent attempt is
// skipped, not failed.
func (s *Service) SyncFullCatalog(ctx context.Context, providerName string) (*Summary, error) {
	client, ok := s.Client(providerName)
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", providerName)
	}

	syncLock := lock.New(s.redisClient, fullSyncLockPrefix+providerName, s.cfg.LockTTL)
	res := syncLock.Acquire(ctx)
	if !res.Acquired {
		if errors.Is(res.Err, lock.ErrHeld) {
			log.Infof("[CatalogSync] Skipping full sync for %s: another sync holds the lock", providerName)
			return &Summary{Provider: providerName, Skipped: true}, nil
		}
		return nil, res.Err
	}
	defer func() {
		if err := res.Release(context.Background()); err != nil {
			log.Errorf("[CatalogSync] Failed to release sync lock for %s: %v", providerName, err)
		}
	}()

	start := time.Now()
	log.Infof("[CatalogSync] Starting full sync for %s", providerName)

	summary := &Summary{Provider: providerName}
	groupSet := make(map[string]struct{})
	runID := uuid.New().String()

	page := 1
	for {
		if err := ctx.Err(); err != nil {
			return summary, fmt.Errorf("full sync for %s aborted: %w", providerName, err)
		}

		catalogPage, err := client.FetchCatalogPage(ctx, provider.PageRequest{Page: page})
		if err != nil {
			s.recordHealth(ctx, providerName, models.APIHealthUnreachable)
			return summary, fmt.Errorf("fetch page %d from %s: %w", page, providerName, err)
		}

		bundles := s.transformer.TransformAll(catalogPage.Bundles)
		if err := s.persistPage(ctx, summary, bundles); err != nil {
			return summary, err
		}
		for i := range bundles {
			if bundles[i].GroupName != "" {
				groupSet[bundles[i].GroupName] = struct{}{}
			}
		}
		if s.archiver != nil && len(bundles) > 0 {
			if err := s.archiver.ArchiveCatalogPage(ctx, providerName, runID, page, bundles); err != nil {
				log.Errorf("[CatalogSync] Snapshot of page %d for %s failed: %v", page, providerName, err)
			}
		}

		summary.Pages++
		if !catalogPage.HasMore {
			break
		}
		page++
	}

	summary.Duration = time.Since(start)
	metrics.ObserveFullSync(providerName, summary.Duration)
	s.recordHealth(ctx, providerName, models.APIHealthHealthy)

	groups := make([]string, 0, len(groupSet))
	for g := range groupSet {
		groups = append(groups, g)
	}
	sort.Strings(groups)

	total, err := s.bundles.CountActive(ctx, providerName)
	if err != nil {
		log.Errorf("[CatalogSync] Failed to count active bundles for %s: %v", providerName, err)
		total = int64(summary.Processed)
	}
	if err := s.metadata.RecordFullSync(ctx, providerName, int(total), groups); err != nil {
		log.Errorf("[CatalogSync] Failed to record full sync for %s: %v", providerName, err)
	}

	log.Infof("[CatalogSync] Full sync for %s done: %d processed, %d added, %d updated in %s",
		providerName, summary.Processed, summary.Added, summary.Updated, summary.Duration.Round(time.Millisecond))
	return summary, nil
}

// SyncBundleGroup syncs only the bundles belonging to one bundle group.
// Group syncs do not take the full-sync lock.
func (s *Service) SyncBundleGroup(ctx context.Context, providerName, bundleGroup string) (*Summary, error) {
	if bundleGroup == "" {
		return nil, fmt.Errorf("bundle group must not be empty")
	}
	return s.syncFiltered(ctx, providerName, provider.PageRequest{BundleGroup: bundleGroup}, func(b *catalog.Bundle) bool {
		return strings.EqualFold(b.GroupName, bundleGroup)
	})
}

// SyncCountryBundles syncs only the bundles covering one country. The
// country is given as ISO2 or ISO3 and normalized before matching.
func (s *Service) SyncCountryBundles(ctx context.Context, providerName, country string) (*Summary, error) {
	iso2, ok := catalog.NormalizeCountryCode(country)
	if !ok {
		return nil, fmt.Errorf("invalid country code %q", country)
	}
	return s.syncFiltered(ctx, providerName, provider.PageRequest{CountryISO2: iso2}, func(b *catalog.Bundle) bool {
		for _, c := range b.Countries {
			if c == iso2 {
				return true
			}
		}
		return false
	})
}

// syncFiltered pages through a provider catalog keeping only bundles that
// match. The filter runs locally too because not every provider supports
// server-side filtering.
func (s *Service) syncFiltered(ctx context.Context, providerName string, req provider.PageRequest, keep func(*catalog.Bundle) bool) (*Summary, error) {
	client, ok := s.Client(providerName)
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", providerName)
	}

	start := time.Now()
	summary := &Summary{Provider: providerName}

	req.Page = 1
	for {
		if err := ctx.Err(); err != nil {
			return summary, fmt.Errorf("sync for %s aborted: %w", providerName, err)
		}

		catalogPage, err := client.FetchCatalogPage(ctx, req)
		if err != nil {
			s.recordHealth(ctx, providerName, models.APIHealthUnreachable)
			return summary, fmt.Errorf("fetch page %d from %s: %w", req.Page, providerName, err)
		}

		bundles := s.transformer.TransformAll(catalogPage.Bundles)
		matched := bundles[:0]
		for i := range bundles {
			if keep(&bundles[i]) {
				matched = append(matched, bundles[i])
			}
		}
		if err := s.persistPage(ctx, summary, matched); err != nil {
			return summary, err
		}

		summary.Pages++
		if !catalogPage.HasMore {
			break
		}
		req.Page++
	}

	summary.Duration = time.Since(start)
	s.recordHealth(ctx, providerName, models.APIHealthHealthy)
	log.Infof("[CatalogSync] Scoped sync for %s done: %d processed, %d added, %d updated",
		providerName, summary.Processed, summary.Added, summary.Updated)
	return summary, nil
}

// persistPage writes one transformed page and folds the result into the
// running summary.
func (s *Service) persistPage(ctx context.Context, summary *Summary, bundles []catalog.Bundle) error {
	if len(bundles) == 0 {
		return nil
	}
	result, err := s.bundles.UpsertBundles(ctx, bundles)
	if err != nil {
		return fmt.Errorf("persist bundles: %w", err)
	}
	summary.Processed += result.Processed
	summary.Added += result.Added
	summary.Updated += result.Updated
	summary.Activated += result.Activated
	summary.FailedChunks += result.FailedChunks
	metrics.AddBundlesProcessed(summary.Provider, result.Processed)
	return nil
}

func (s *Service) recordHealth(ctx context.Context, providerName, status string) {
	if err := s.metadata.SetAPIHealth(ctx, providerName, status); err != nil {
		log.Errorf("[CatalogSync] Failed to record API health for %s: %v", providerName, err)
	}
}

// SyncMetadata recomputes a provider's catalog bookkeeping (bundle count
// and group list) from the database and probes the provider API. It does
// not touch bundle rows or the last-sync timestamp.
func (s *Service) SyncMetadata(ctx context.Context, providerName string) (*Summary, error) {
	client, ok := s.Client(providerName)
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", providerName)
	}

	total, err := s.bundles.CountActive(ctx, providerName)
	if err != nil {
		return nil, fmt.Errorf("count active bundles for %s: %w", providerName, err)
	}
	groups, err := s.bundles.DistinctGroups(ctx, providerName)
	if err != nil {
		return nil, fmt.Errorf("list groups for %s: %w", providerName, err)
	}
	if err := s.metadata.RefreshStats(ctx, providerName, int(total), groups); err != nil {
		return nil, fmt.Errorf("refresh metadata for %s: %w", providerName, err)
	}

	status := models.APIHealthUnreachable
	if client.CheckHealth(ctx) {
		status = models.APIHealthHealthy
	}
	s.recordHealth(ctx, providerName, status)

	return &Summary{Provider: providerName, Processed: int(total)}, nil
}

// ProbeProviderHealth checks every provider API and stores the result.
func (s *Service) ProbeProviderHealth(ctx context.Context) {
	for name, client := range s.clients {
		status := models.APIHealthUnreachable
		if client.CheckHealth(ctx) {
			status = models.APIHealthHealthy
		} else {
			log.Warnf("[CatalogSync] Provider %s API is unreachable", name)
		}
		s.recordHealth(ctx, name, status)
	}
}

// DueProviders lists providers whose last full sync is older than the due
// threshold. Providers never synced are always due.
func (s *Service) DueProviders(ctx context.Context) ([]string, error) {
	var due []string
	for _, name := range s.Providers() {
		meta, err := s.metadata.GetOrCreate(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("load metadata for %s: %w", name, err)
		}
		if meta.IsSyncDue(s.cfg.DueThreshold) {
			due = append(due, name)
		}
	}
	return due, nil
}

// CancelStuckJobs cancels jobs running past the stuck threshold.
func (s *Service) CancelStuckJobs(ctx context.Context) (int64, error) {
	return s.jobs.CancelStuck(ctx, s.cfg.StuckThreshold)
}

// CleanupJobHistory prunes terminal job records older than the retention
// window.
func (s *Service) CleanupJobHistory(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-s.cfg.Retention)
	return s.jobs.DeleteCompletedBefore(ctx, cutoff)
}
