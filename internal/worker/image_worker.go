package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path"

	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"

	"github.com/hseguard/syncd/internal/client"
	"github.com/hseguard/syncd/internal/imaging"
	"github.com/hseguard/syncd/internal/model"
	"github.com/hseguard/syncd/internal/websocket"
)

// ImageWorker consumes the images queue and runs the transform pipeline.
// Failures are rethrown to the broker so its backoff policy applies.
type ImageWorker struct {
	pipeline *imaging.Pipeline
	storage  client.StorageClient // nil keeps derivatives local
	hub      *websocket.Hub
	validate *validator.Validate
	logger   *slog.Logger
}

// NewImageWorker creates an image worker.
func NewImageWorker(pipeline *imaging.Pipeline, storage client.StorageClient, hub *websocket.Hub, validate *validator.Validate, logger *slog.Logger) *ImageWorker {
	return &ImageWorker{
		pipeline: pipeline,
		storage:  storage,
		hub:      hub,
		validate: validate,
		logger:   logger,
	}
}

// HandleTransform processes one image transform job.
func (w *ImageWorker) HandleTransform(ctx context.Context, t *asynq.Task) error {
	var p model.ImageTransformPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("malformed payload: %v: %w", err, asynq.SkipRetry)
	}
	if err := w.validate.Struct(p); err != nil {
		return fmt.Errorf("invalid payload: %v: %w", err, asynq.SkipRetry)
	}

	derivatives, err := w.pipeline.Transform(ctx, &p)
	if err != nil {
		return err
	}

	if w.storage != nil {
		if err := w.upload(ctx, p.ImageID, derivatives); err != nil {
			return err
		}
	}

	w.logger.Info("image processed",
		"image_id", p.ImageID,
		"derivatives", len(derivatives),
	)

	if projectID := p.Metadata["projectId"]; projectID != "" {
		w.hub.Publish(model.SyncEvent{
			Type:      model.EventImageProcessed,
			ProjectID: projectID,
			EntityID:  p.ImageID,
		})
	}
	return nil
}

// upload moves derivatives to object storage and fills in their URLs.
func (w *ImageWorker) upload(ctx context.Context, imageID string, derivatives []model.Derivative) error {
	for i, d := range derivatives {
		f, err := os.Open(d.Path)
		if err != nil {
			return fmt.Errorf("failed to open derivative %s: %w", d.Path, err)
		}

		key := fmt.Sprintf("derivatives/%s/%s", imageID, path.Base(d.Path))
		url, err := w.storage.Upload(ctx, key, f, contentTypeFor(d.Format))
		f.Close()
		if err != nil {
			return fmt.Errorf("failed to upload derivative %s: %w", key, err)
		}

		derivatives[i].URL = url
	}
	return nil
}

func contentTypeFor(format model.ImageFormat) string {
	switch format {
	case model.FormatJPEG:
		return "image/jpeg"
	case model.FormatPNG:
		return "image/png"
	case model.FormatWebP:
		return "image/webp"
	case model.FormatAVIF:
		return "image/avif"
	default:
		return "application/octet-stream"
	}
}
