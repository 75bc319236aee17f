package syncqueue

import (
	"encoding/json"
	"time"

	"github.com/asafgershon/esim-go-sub012/app/models"
)

// Priority orders jobs in the queue. Manual triggers jump ahead of
// scheduled ones.
type Priority string

const (
	PriorityManual    Priority = "manual"
	PriorityScheduled Priority = "scheduled"
)

// JobStatus defines the queue-level status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"
)

// Job represents one queued sync task. The queue-level status here is
// distinct from the durable SyncJob row the worker maintains in the
// database; this struct lives only in Redis for the job's lifetime.
type Job struct {
	ID          string                 `json:"id"`
	Type        models.SyncJobType     `json:"type"`
	Priority    Priority               `json:"priority"`
	Status      JobStatus              `json:"status"`
	Payload     map[string]interface{} `json:"payload"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	ProcessedAt *time.Time             `json:"processed_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	ErrorMsg    string                 `json:"error_msg,omitempty"`
	RetryCount  int                    `json:"retry_count"`
	MaxRetries  int                    `json:"max_retries"`
	// RecordID is the catalog_sync_jobs row bound to this job at enqueue
	// time, so retries keep appending to the same audit record.
	RecordID uint `json:"record_id,omitempty"`
}

// FullSyncPayload scopes a full catalog sync to one provider.
type FullSyncPayload struct {
	Provider    string `json:"provider"`
	TriggeredBy string `json:"triggered_by"`
}

// ToMap converts the payload to a map for storage
func (p FullSyncPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"provider":     p.Provider,
		"triggered_by": p.TriggeredBy,
	}
}

// FromMap creates a payload from a map
func FullSyncPayloadFromMap(data map[string]interface{}) (*FullSyncPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload FullSyncPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// GroupSyncPayload scopes a sync to one bundle group.
type GroupSyncPayload struct {
	Provider    string `json:"provider"`
	BundleGroup string `json:"bundle_group"`
}

// ToMap converts the payload to a map for storage
func (p GroupSyncPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"provider":     p.Provider,
		"bundle_group": p.BundleGroup,
	}
}

// FromMap creates a payload from a map
func GroupSyncPayloadFromMap(data map[string]interface{}) (*GroupSyncPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload GroupSyncPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// CountrySyncPayload scopes a sync to one country.
type CountrySyncPayload struct {
	Provider    string `json:"provider"`
	CountryISO2 string `json:"country_iso2"`
}

// ToMap converts the payload to a map for storage
func (p CountrySyncPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"provider":     p.Provider,
		"country_iso2": p.CountryISO2,
	}
}

// FromMap creates a payload from a map
func CountrySyncPayloadFromMap(data map[string]interface{}) (*CountrySyncPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload CountrySyncPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// IsRetryable checks if the job can be retried
func (j *Job) IsRetryable() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// MarkAsProcessing updates the job status to processing
func (j *Job) MarkAsProcessing() {
	now := time.Now()
	j.Status = JobStatusProcessing
	j.UpdatedAt = now
	j.ProcessedAt = &now
}

// MarkAsCompleted updates the job status to completed
func (j *Job) MarkAsCompleted() {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.UpdatedAt = now
	j.CompletedAt = &now
	j.ErrorMsg = ""
}

// MarkAsFailed updates the job status to failed
func (j *Job) MarkAsFailed(errorMsg string) {
	j.Status = JobStatusFailed
	j.UpdatedAt = time.Now()
	j.ErrorMsg = errorMsg
	j.RetryCount++
}

// MarkAsRetrying updates the job status to retrying
func (j *Job) MarkAsRetrying() {
	j.Status = JobStatusRetrying
	j.UpdatedAt = time.Now()
}
