// Package queue owns job dispatch: named durable queues over asynq with a
// degraded-mode fallback that never blocks the caller when the broker is
// down.
package queue

import "time"

// Queue names. Each queue is served by its own consumer with its own
// concurrency and rate limits.
const (
	QueueSync   = "sync"   // deviation/SJA entity sync
	QueueDalux  = "dalux"  // direct Dalux API jobs (attachment uploads)
	QueueImages = "images" // image transforms, CPU/memory heavy
	QueueFiles  = "files"  // SJA file processing
)

// Task types. The type string doubles as the payload discriminator: the
// worker mux dispatches on it, so the payload union per queue is closed.
const (
	TaskSyncDeviation  = "sync:deviation"
	TaskSyncSJA        = "sync:sja"
	TaskUploadImage    = "dalux:upload_image"
	TaskImageTransform = "image:transform"
	TaskFileProcess    = "file:process"
)

// routes maps each task type to its home queue.
var routes = map[string]string{
	TaskSyncDeviation:  QueueSync,
	TaskSyncSJA:        QueueSync,
	TaskUploadImage:    QueueDalux,
	TaskImageTransform: QueueImages,
	TaskFileProcess:    QueueFiles,
}

// Route returns the queue a task type is dispatched to, defaulting to the
// sync queue for unknown types.
func Route(taskType string) string {
	if q, ok := routes[taskType]; ok {
		return q
	}
	return QueueSync
}

// Default retry policy applied unless the caller overrides it. Completed
// tasks are dropped immediately; exhausted ones are archived by the broker.
const (
	DefaultMaxRetry = 3
	BackoffBase     = 1 * time.Second
)

// RetryDelay implements exponential backoff starting at BackoffBase.
// Installed as the RetryDelayFunc of every queue server.
func RetryDelay(n int) time.Duration {
	d := BackoffBase
	for i := 0; i < n; i++ {
		d *= 2
	}
	return d
}
