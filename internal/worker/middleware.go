package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/time/rate"
)

// rateLimited blocks job starts until the queue's limiter admits them.
// A nil limiter disables throttling for the queue.
func rateLimited(limiter *rate.Limiter, next asynq.Handler) asynq.Handler {
	if limiter == nil {
		return next
	}
	return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		return next.ProcessTask(ctx, t)
	})
}

// logged wraps a handler with structured start/finish logging.
func logged(logger *slog.Logger, next asynq.Handler) asynq.Handler {
	return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
		taskID, _ := asynq.GetTaskID(ctx)
		queueName, _ := asynq.GetQueueName(ctx)
		retried, _ := asynq.GetRetryCount(ctx)

		log := logger.With(
			"task", t.Type(),
			"job_id", taskID,
			"queue", queueName,
		)
		if retried > 0 {
			log = log.With("retry", retried)
		}

		start := time.Now()
		log.Debug("job started")

		err := next.ProcessTask(ctx, t)

		if err != nil {
			log.Error("job failed", "duration", time.Since(start), "error", err)
		} else {
			log.Info("job completed", "duration", time.Since(start))
		}
		return err
	})
}
