package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gofiber/fiber/v2/log"

	"github.com/asafgershon/esim-go-sub012/internal/pkg/catalog"
)

// Archiver stores point-in-time catalog snapshots in S3-compatible object
// storage. Snapshots exist for auditing and offline diffing; uploads are
// best effort and callers must not fail a sync on archive errors.
type Archiver struct {
	s3Client *s3.Client
	config   *Config
}

// snapshotDocument is the JSON layout of one archived catalog page. A
// full run is the set of page objects sharing one run id prefix.
type snapshotDocument struct {
	Provider   string           `json:"provider"`
	RunID      string           `json:"run_id"`
	Page       int              `json:"page"`
	CapturedAt time.Time        `json:"captured_at"`
	Count      int              `json:"count"`
	Bundles    []catalog.Bundle `json:"bundles"`
}

// NewArchiver creates an archiver from the given config.
func NewArchiver(cfg *Config) (*Archiver, error) {
	if !cfg.IsEnabled() {
		return nil, fmt.Errorf("catalog snapshots are disabled")
	}

	awsConfig, err := config.LoadDefaultConfig(context.TODO(),
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			// S3-compatible services need path-style URLs
			o.UsePathStyle = true
			o.UseAccelerate = false
		}
	})

	log.Infof("[Snapshot] Initialized S3 client for bucket: %s", cfg.BucketName)
	return &Archiver{s3Client: s3Client, config: cfg}, nil
}

// ArchiveCatalogPage uploads one catalog page as its own object under the
// run's key prefix. Empty pages are not archived.
func (a *Archiver) ArchiveCatalogPage(ctx context.Context, providerName, runID string, page int, bundles []catalog.Bundle) error {
	if len(bundles) == 0 {
		return nil
	}

	now := time.Now().UTC()
	doc := snapshotDocument{
		Provider:   providerName,
		RunID:      runID,
		Page:       page,
		CapturedAt: now,
		Count:      len(bundles),
		Bundles:    bundles,
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal snapshot for %s: %w", providerName, err)
	}

	key := a.config.ObjectKey(providerName, now, runID, page)
	_, err = a.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.config.BucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("upload snapshot %s: %w", key, err)
	}

	log.Infof("[Snapshot] Archived %d bundles for %s to s3://%s/%s", len(bundles), providerName, a.config.BucketName, key)
	return nil
}
