package model

import "time"

// EntityType identifies which internal entity a sync record tracks.
type EntityType string

const (
	EntityDeviation EntityType = "deviation"
	EntitySJA       EntityType = "sja"
)

// ProviderDalux is the only external provider currently supported.
const ProviderDalux = "dalux"

// SyncStatus is the outcome of the most recent sync attempt.
type SyncStatus string

const (
	SyncSuccess SyncStatus = "success"
	SyncError   SyncStatus = "error"
	SyncPending SyncStatus = "pending"
)

// SyncRecord maps an internal entity to its external counterpart and the
// outcome of the last sync attempt. At most one record exists per
// (source_id, entity_type, provider); the row is updated in place on every
// attempt and never duplicated.
type SyncRecord struct {
	ID         int64      `json:"id" db:"id"`
	SourceID   string     `json:"sourceId" db:"source_id"`
	TargetID   string     `json:"targetId" db:"target_id"`
	ProjectID  string     `json:"projectId" db:"project_id"`
	EntityType EntityType `json:"entityType" db:"entity_type"`
	Provider   string     `json:"provider" db:"provider"`
	LastSync   time.Time  `json:"lastSync" db:"last_sync"`
	Status     SyncStatus `json:"status" db:"status"`
	Error      *string    `json:"error,omitempty" db:"error"`
}

// SyncResult is returned by the sync service. Expected failures (network,
// API rejection) are reported here instead of as errors, so queue-level
// retries stay a deliberate choice of the caller.
type SyncResult struct {
	Status   SyncStatus `json:"status"`
	TargetID string     `json:"targetId,omitempty"`
	Error    string     `json:"error,omitempty"`
}

// BatchResult counts enqueue outcomes of a batch sync fan-out. It says
// nothing about whether the individual syncs later succeed.
type BatchResult struct {
	Success int `json:"success"`
	Errors  int `json:"errors"`
	Total   int `json:"total"`
}
