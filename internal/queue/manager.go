package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Enqueuer is the job submission surface handed to services. Enqueue is
// always non-blocking from the caller's perspective and never fails on
// broker outage.
type Enqueuer interface {
	Enqueue(ctx context.Context, taskType string, payload any, opts ...asynq.Option) (string, error)
}

// Manager dispatches typed jobs to their queues. When the broker is
// unreachable (or fallback mode is configured) it degrades instead of
// failing: the payload is logged for forensics and a synthetic job id is
// returned so the calling request path completes normally.
type Manager struct {
	client   *asynq.Client // nil in fallback mode
	fallback bool
	logger   *slog.Logger
}

// NewManager creates a queue manager. With fallback true no broker
// connection is made and every enqueue takes the degraded path.
func NewManager(redisOpt asynq.RedisClientOpt, fallback bool, logger *slog.Logger) *Manager {
	m := &Manager{fallback: fallback, logger: logger}
	if !fallback {
		m.client = asynq.NewClient(redisOpt)
	}
	return m
}

// Enqueue submits a job to the task type's home queue under the default
// retry policy. The returned id is synthetic when the broker was skipped.
func (m *Manager) Enqueue(ctx context.Context, taskType string, payload any, opts ...asynq.Option) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload for %s: %w", taskType, err)
	}

	if m.fallback || m.client == nil {
		return m.degrade(taskType, data, nil), nil
	}

	task := asynq.NewTask(taskType, data)

	info, err := m.client.EnqueueContext(ctx, task, append(defaultOptions(taskType), opts...)...)
	if err != nil {
		// Degrade, don't fail: job loss under broker outage is accepted in
		// exchange for not blocking user-facing requests.
		return m.degrade(taskType, data, err), nil
	}

	m.logger.Debug("job enqueued",
		"task", taskType,
		"queue", info.Queue,
		"job_id", info.ID,
	)
	return info.ID, nil
}

// defaultOptions routes the task and caps its retries. No retention is
// requested: completed tasks vanish immediately, and tasks that exhaust
// their retries are archived by the broker on its own.
func defaultOptions(taskType string) []asynq.Option {
	return []asynq.Option{
		asynq.Queue(Route(taskType)),
		asynq.MaxRetry(DefaultMaxRetry),
	}
}

// degrade logs the dropped payload and mints a local synthetic id.
func (m *Manager) degrade(taskType string, payload []byte, cause error) string {
	id := syntheticID()
	m.logger.Warn("job broker unavailable, dropping job",
		"task", taskType,
		"job_id", id,
		"payload", string(payload),
		"error", cause,
	)
	return id
}

func syntheticID() string {
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}

// Close releases the broker connection.
func (m *Manager) Close() error {
	if m.client == nil {
		return nil
	}
	return m.client.Close()
}
