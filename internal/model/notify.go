package model

// Push event types sent to websocket subscribers.
const (
	EventSyncCompleted  = "sync.completed"
	EventSyncFailed     = "sync.failed"
	EventImageProcessed = "image.processed"
	EventNotice         = "notice"
)

// SyncEvent is broadcast to a project's subscribers after a sync attempt
// or image job finishes. Delivery is fire-and-forget.
type SyncEvent struct {
	Type       string     `json:"type"`
	ProjectID  string     `json:"projectId"`
	EntityType EntityType `json:"entityType,omitempty"`
	EntityID   string     `json:"entityId,omitempty"`
	TargetID   string     `json:"targetId,omitempty"`
	Status     SyncStatus `json:"status,omitempty"`
	Message    string     `json:"message,omitempty"`
}
