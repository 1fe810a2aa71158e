package worker

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"

	"github.com/hseguard/syncd/internal/client"
	"github.com/hseguard/syncd/internal/model"
	"github.com/hseguard/syncd/internal/service"
	"github.com/hseguard/syncd/internal/websocket"
)

// maxAttachmentSize caps downloaded attachment bodies.
const maxAttachmentSize = 20 << 20 // 20MB

// SyncWorker consumes the sync and dalux queues: entity upserts and
// attachment uploads. Sync outcomes land on the SyncRecord, so sync
// handlers report success to the broker even when the sync itself failed;
// upload handlers rethrow so the broker's backoff governs retries.
type SyncWorker struct {
	service    *service.SyncService
	dalux      client.IssueAPI
	hub        *websocket.Hub
	validate   *validator.Validate
	httpClient *http.Client
	logger     *slog.Logger
}

// NewSyncWorker creates a sync worker.
func NewSyncWorker(svc *service.SyncService, dalux client.IssueAPI, hub *websocket.Hub, validate *validator.Validate, logger *slog.Logger) *SyncWorker {
	return &SyncWorker{
		service:    svc,
		dalux:      dalux,
		hub:        hub,
		validate:   validate,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger,
	}
}

// HandleSyncDeviation processes a deviation sync job.
func (w *SyncWorker) HandleSyncDeviation(ctx context.Context, t *asynq.Task) error {
	var p model.SyncDeviationPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("malformed payload: %v: %w", err, asynq.SkipRetry)
	}
	if err := w.validate.Struct(p); err != nil {
		return fmt.Errorf("invalid payload: %v: %w", err, asynq.SkipRetry)
	}

	result := w.service.SyncDeviation(ctx, p.DeviationID, p.ProjectID)
	w.publish(p.ProjectID, model.EntityDeviation, p.DeviationID, result)
	return nil
}

// HandleSyncSJA processes an SJA sync job.
func (w *SyncWorker) HandleSyncSJA(ctx context.Context, t *asynq.Task) error {
	var p model.SyncSJAPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("malformed payload: %v: %w", err, asynq.SkipRetry)
	}
	if err := w.validate.Struct(p); err != nil {
		return fmt.Errorf("invalid payload: %v: %w", err, asynq.SkipRetry)
	}

	result := w.service.SyncSJA(ctx, p.SJAID, p.ProjectID)
	w.publish(p.ProjectID, model.EntitySJA, p.SJAID, result)
	return nil
}

// HandleUploadImage downloads one attachment and posts it to its Dalux
// issue as a base64 file. Errors bubble up to the broker for retry.
func (w *SyncWorker) HandleUploadImage(ctx context.Context, t *asynq.Task) error {
	var p model.UploadImagePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("malformed payload: %v: %w", err, asynq.SkipRetry)
	}
	if err := w.validate.Struct(p); err != nil {
		return fmt.Errorf("invalid payload: %v: %w", err, asynq.SkipRetry)
	}

	data, contentType, err := w.download(ctx, p.ImageURL)
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", p.ImageURL, err)
	}

	req := &client.AttachFileRequest{
		FileName:    p.FileName,
		ContentType: contentType,
		Data:        base64.StdEncoding.EncodeToString(data),
	}
	if err := w.dalux.AttachFile(ctx, p.ProjectID, p.IssueID, req); err != nil {
		return err
	}

	w.logger.Info("attachment uploaded",
		"issue_id", p.IssueID,
		"file", p.FileName,
		"bytes", len(data),
	)
	return nil
}

func (w *SyncWorker) download(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("fetch returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAttachmentSize))
	if err != nil {
		return nil, "", err
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return data, contentType, nil
}

func (w *SyncWorker) publish(projectID string, entityType model.EntityType, entityID string, result model.SyncResult) {
	event := model.SyncEvent{
		Type:       model.EventSyncCompleted,
		ProjectID:  projectID,
		EntityType: entityType,
		EntityID:   entityID,
		TargetID:   result.TargetID,
		Status:     result.Status,
	}
	if result.Status == model.SyncError {
		event.Type = model.EventSyncFailed
		event.Message = result.Error
	}
	w.hub.Publish(event)
}
