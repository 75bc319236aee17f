package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// JSON stores raw JSON payloads in the database
type JSON json.RawMessage

// Value implements the driver.Valuer interface
func (j JSON) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return string(j), nil
}

// Scan implements the sql.Scanner interface
func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = JSON("{}")
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("invalid scan source")
	}
	*j = JSON(bytes)
	return nil
}

// MarshalJSON implements the json.Marshaler interface
func (j JSON) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return j, nil
}

// UnmarshalJSON implements the json.Unmarshaler interface
func (j *JSON) UnmarshalJSON(data []byte) error {
	*j = JSON(data)
	return nil
}

// SyncJobType defines what scope a sync job covers
type SyncJobType string

const (
	SyncJobTypeFull     SyncJobType = "full_sync"
	SyncJobTypeGroup    SyncJobType = "group_sync"
	SyncJobTypeCountry  SyncJobType = "country_sync"
	SyncJobTypeMetadata SyncJobType = "metadata_sync"
)

// SyncJobStatus defines the lifecycle state of a sync job
type SyncJobStatus string

const (
	SyncJobStatusPending   SyncJobStatus = "pending"
	SyncJobStatusRunning   SyncJobStatus = "running"
	SyncJobStatusCompleted SyncJobStatus = "completed"
	SyncJobStatusFailed    SyncJobStatus = "failed"
	SyncJobStatusCancelled SyncJobStatus = "cancelled"
)

// SyncJob is the durable audit record of one sync attempt. The row is
// created when the job is triggered; the worker owns the lifecycle
// transitions from there.
type SyncJob struct {
	ID          uint          `gorm:"primaryKey" json:"id"`
	JobType     SyncJobType   `gorm:"type:varchar(32);index;not null" json:"job_type"`
	Status      SyncJobStatus `gorm:"type:varchar(16);index;not null;default:pending" json:"status"`
	Priority    string        `gorm:"type:varchar(16);default:normal" json:"priority"`
	Provider    string        `gorm:"type:varchar(50);index" json:"provider"`
	BundleGroup string        `gorm:"type:varchar(100)" json:"bundle_group,omitempty"`
	CountryID   string        `gorm:"type:char(2)" json:"country_id,omitempty"`

	BundlesProcessed int    `gorm:"default:0" json:"bundles_processed"`
	BundlesAdded     int    `gorm:"default:0" json:"bundles_added"`
	BundlesUpdated   int    `gorm:"default:0" json:"bundles_updated"`
	ErrorMessage     string `gorm:"type:text" json:"error_message,omitempty"`
	Metadata         *JSON  `gorm:"type:json" json:"metadata,omitempty"`

	CreatedAt   time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func (SyncJob) TableName() string {
	return "catalog_sync_jobs"
}

// IsTerminal reports whether the job reached a final state
func (j *SyncJob) IsTerminal() bool {
	switch j.Status {
	case SyncJobStatusCompleted, SyncJobStatusFailed, SyncJobStatusCancelled:
		return true
	}
	return false
}

// MarkRunning transitions the job to running and stamps the start time
func (j *SyncJob) MarkRunning() {
	now := time.Now()
	j.Status = SyncJobStatusRunning
	j.StartedAt = &now
}

// MarkCompleted records final counters and stamps completion
func (j *SyncJob) MarkCompleted(processed, added, updated int) {
	now := time.Now()
	j.Status = SyncJobStatusCompleted
	j.BundlesProcessed = processed
	j.BundlesAdded = added
	j.BundlesUpdated = updated
	j.ErrorMessage = ""
	j.CompletedAt = &now
}

// MarkFailed records the error and stamps completion
func (j *SyncJob) MarkFailed(errorMsg string) {
	now := time.Now()
	j.Status = SyncJobStatusFailed
	j.ErrorMessage = errorMsg
	j.CompletedAt = &now
}
