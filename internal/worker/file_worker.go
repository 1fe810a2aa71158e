package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"

	"github.com/hseguard/syncd/internal/model"
	"github.com/hseguard/syncd/internal/queue"
	"github.com/hseguard/syncd/internal/service"
	"github.com/hseguard/syncd/internal/store"
	"github.com/hseguard/syncd/internal/websocket"
)

// FileWorker consumes the files queue: SJA file fan-out, re-sync triggers
// and subscriber notifications.
type FileWorker struct {
	sjas     service.SJASource
	records  service.SyncRecords
	queue    queue.Enqueuer
	hub      *websocket.Hub
	validate *validator.Validate
	logger   *slog.Logger
}

// NewFileWorker creates a file worker.
func NewFileWorker(sjas service.SJASource, records service.SyncRecords, q queue.Enqueuer, hub *websocket.Hub, validate *validator.Validate, logger *slog.Logger) *FileWorker {
	return &FileWorker{
		sjas:     sjas,
		records:  records,
		queue:    q,
		hub:      hub,
		validate: validate,
		logger:   logger,
	}
}

// HandleFileJob dispatches on the payload's action.
func (w *FileWorker) HandleFileJob(ctx context.Context, t *asynq.Task) error {
	var p model.FileJobPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("malformed payload: %v: %w", err, asynq.SkipRetry)
	}
	if err := w.validate.Struct(p); err != nil {
		return fmt.Errorf("invalid payload: %v: %w", err, asynq.SkipRetry)
	}

	switch p.Action {
	case model.FileActionUploadFiles:
		return w.uploadFiles(ctx, &p)
	case model.FileActionProcess:
		return w.process(ctx, &p)
	case model.FileActionNotify:
		return w.notify(&p)
	default:
		return fmt.Errorf("unknown action %q: %w", p.Action, asynq.SkipRetry)
	}
}

// uploadFiles enqueues one attachment-upload job per SJA attachment. The
// SJA must already be synced; without a target issue there is nothing to
// attach to, so a full sync is enqueued instead.
func (w *FileWorker) uploadFiles(ctx context.Context, p *model.FileJobPayload) error {
	rec, err := w.records.GetBySource(ctx, p.SJAID, model.EntitySJA, model.ProviderDalux)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return w.process(ctx, p)
		}
		return err
	}
	if rec.TargetID == "" {
		return w.process(ctx, p)
	}

	sja, err := w.sjas.GetWithRelations(ctx, p.SJAID)
	if err != nil {
		return err
	}

	for _, att := range sja.Attachments {
		payload := model.UploadImagePayload{
			ProjectID: rec.ProjectID,
			IssueID:   rec.TargetID,
			ImageURL:  att.URL,
			FileName:  att.FileName,
			SJAID:     sja.ID,
		}
		if _, err := w.queue.Enqueue(ctx, queue.TaskUploadImage, payload); err != nil {
			w.logger.Warn("failed to enqueue attachment upload",
				"sja_id", sja.ID,
				"file", att.FileName,
				"error", err,
			)
		}
	}

	w.logger.Info("sja attachments fanned out",
		"sja_id", sja.ID,
		"count", len(sja.Attachments),
	)
	return nil
}

// process re-enqueues a full SJA sync. The project id comes from the sync
// record, or from the payload for a first-time sync.
func (w *FileWorker) process(ctx context.Context, p *model.FileJobPayload) error {
	projectID := p.AdditionalData["projectId"]
	if rec, err := w.records.GetBySource(ctx, p.SJAID, model.EntitySJA, model.ProviderDalux); err == nil {
		projectID = rec.ProjectID
	}
	if projectID == "" {
		return fmt.Errorf("no project id for sja %s: %w", p.SJAID, asynq.SkipRetry)
	}

	payload := model.SyncSJAPayload{SJAID: p.SJAID, ProjectID: projectID}
	_, err := w.queue.Enqueue(ctx, queue.TaskSyncSJA, payload)
	return err
}

// notify pushes a notice to the project's websocket subscribers.
func (w *FileWorker) notify(p *model.FileJobPayload) error {
	w.hub.Publish(model.SyncEvent{
		Type:       model.EventNotice,
		ProjectID:  p.AdditionalData["projectId"],
		EntityType: model.EntitySJA,
		EntityID:   p.SJAID,
		Message:    p.AdditionalData["message"],
	})
	return nil
}
