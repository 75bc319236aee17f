package catalogsync

import (
	"context"
	"fmt"

	"github.com/asafgershon/esim-go-sub012/app/models"
	"github.com/asafgershon/esim-go-sub012/internal/pkg/syncqueue"
)

// RegisterHandlers binds the sync operations to their queue job types.
func (s *Service) RegisterHandlers(registry *syncqueue.Registry) {
	registry.Register(models.SyncJobTypeFull, s.handleFullSync)
	registry.Register(models.SyncJobTypeGroup, s.handleGroupSync)
	registry.Register(models.SyncJobTypeCountry, s.handleCountrySync)
	registry.Register(models.SyncJobTypeMetadata, s.handleMetadataSync)
}

func (s *Service) handleFullSync(ctx context.Context, job *syncqueue.Job) (*syncqueue.Result, error) {
	payload, err := syncqueue.FullSyncPayloadFromMap(job.Payload)
	if err != nil {
		return nil, fmt.Errorf("invalid full sync payload: %w", err)
	}
	if payload.Provider == "" {
		return nil, fmt.Errorf("full sync payload is missing a provider")
	}

	summary, err := s.SyncFullCatalog(ctx, payload.Provider)
	if err != nil {
		return nil, err
	}
	return summaryResult(summary), nil
}

func (s *Service) handleGroupSync(ctx context.Context, job *syncqueue.Job) (*syncqueue.Result, error) {
	payload, err := syncqueue.GroupSyncPayloadFromMap(job.Payload)
	if err != nil {
		return nil, fmt.Errorf("invalid group sync payload: %w", err)
	}

	summary, err := s.SyncBundleGroup(ctx, payload.Provider, payload.BundleGroup)
	if err != nil {
		return nil, err
	}
	return summaryResult(summary), nil
}

func (s *Service) handleCountrySync(ctx context.Context, job *syncqueue.Job) (*syncqueue.Result, error) {
	payload, err := syncqueue.CountrySyncPayloadFromMap(job.Payload)
	if err != nil {
		return nil, fmt.Errorf("invalid country sync payload: %w", err)
	}

	summary, err := s.SyncCountryBundles(ctx, payload.Provider, payload.CountryISO2)
	if err != nil {
		return nil, err
	}
	return summaryResult(summary), nil
}

func (s *Service) handleMetadataSync(ctx context.Context, job *syncqueue.Job) (*syncqueue.Result, error) {
	providerName, _ := job.Payload["provider"].(string)
	if providerName == "" {
		return nil, fmt.Errorf("metadata sync payload is missing a provider")
	}

	summary, err := s.SyncMetadata(ctx, providerName)
	if err != nil {
		return nil, err
	}
	return summaryResult(summary), nil
}

func summaryResult(summary *Summary) *syncqueue.Result {
	return &syncqueue.Result{
		Processed: summary.Processed,
		Added:     summary.Added,
		Updated:   summary.Updated,
	}
}
