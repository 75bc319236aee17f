package snapshot

import (
	"errors"
	"fmt"
	"time"

	"github.com/asafgershon/esim-go-sub012/internal/pkg/env"
)

// Config holds catalog snapshot storage configuration
type Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	BucketName      string
	EndpointURL     string // Optional for S3-compatible services
	Enabled         bool
}

// LoadConfig loads snapshot configuration from environment variables
func LoadConfig() (*Config, error) {
	config := &Config{
		AccessKeyID:     env.GetEnv("S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: env.GetEnv("S3_SECRET_ACCESS_KEY", ""),
		Region:          env.GetEnv("S3_REGION", "us-east-1"),
		BucketName:      env.GetEnv("S3_BUCKET_NAME", ""),
		EndpointURL:     env.GetEnv("S3_ENDPOINT_URL", ""),
		Enabled:         env.GetEnvBool("CATALOG_SNAPSHOT_ENABLED", false),
	}

	if config.Enabled {
		if config.AccessKeyID == "" {
			return nil, errors.New("S3_ACCESS_KEY_ID is required when catalog snapshots are enabled")
		}
		if config.SecretAccessKey == "" {
			return nil, errors.New("S3_SECRET_ACCESS_KEY is required when catalog snapshots are enabled")
		}
		if config.BucketName == "" {
			return nil, errors.New("S3_BUCKET_NAME is required when catalog snapshots are enabled")
		}
	}

	return config, nil
}

// IsEnabled returns true if catalog snapshots are enabled
func (c *Config) IsEnabled() bool {
	return c.Enabled
}

// ObjectKey builds the S3 key for one catalog snapshot page.
// Format: catalogs/<provider>/YYYY/MM/DD/run-<id>/page-NNNN.json
func (c *Config) ObjectKey(providerName string, at time.Time, runID string, page int) string {
	return fmt.Sprintf("catalogs/%s/%04d/%02d/%02d/run-%s/page-%04d.json",
		providerName, at.Year(), at.Month(), at.Day(), runID, page)
}
