package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hseguard/syncd/internal/client"
	"github.com/hseguard/syncd/internal/mapper"
	"github.com/hseguard/syncd/internal/model"
	"github.com/hseguard/syncd/internal/queue"
	"github.com/hseguard/syncd/internal/store"
)

// DeviationSource loads deviations for syncing.
type DeviationSource interface {
	GetWithRelations(ctx context.Context, id string) (*model.Deviation, error)
	ListForSync(ctx context.Context, companyID string, filters store.SyncFilters) ([]model.Deviation, error)
}

// SJASource loads safety job analyses for syncing.
type SJASource interface {
	GetWithRelations(ctx context.Context, id string) (*model.SafetyJobAnalysis, error)
	ListForSync(ctx context.Context, companyID string, filters store.SyncFilters) ([]model.SafetyJobAnalysis, error)
}

// SyncRecords persists sync outcomes.
type SyncRecords interface {
	GetBySource(ctx context.Context, sourceID string, entityType model.EntityType, provider string) (*model.SyncRecord, error)
	Upsert(ctx context.Context, rec *model.SyncRecord) error
}

// SyncService upserts internal entities into Dalux. Expected failures
// (transport, API rejection) are recorded on the sync record and returned
// as a result, never raised: a queue-level retry stays the caller's call.
type SyncService struct {
	deviations DeviationSource
	sjas       SJASource
	records    SyncRecords
	dalux      client.IssueAPI
	queue      queue.Enqueuer
	logger     *slog.Logger
	now        func() time.Time
}

// NewSyncService creates a sync service.
func NewSyncService(
	deviations DeviationSource,
	sjas SJASource,
	records SyncRecords,
	dalux client.IssueAPI,
	q queue.Enqueuer,
	logger *slog.Logger,
) *SyncService {
	return &SyncService{
		deviations: deviations,
		sjas:       sjas,
		records:    records,
		dalux:      dalux,
		queue:      q,
		logger:     logger,
		now:        time.Now,
	}
}

// SyncDeviation upserts one deviation into the given Dalux project.
func (s *SyncService) SyncDeviation(ctx context.Context, deviationID, projectID string) model.SyncResult {
	d, err := s.deviations.GetWithRelations(ctx, deviationID)
	if err != nil {
		return s.fail(ctx, deviationID, projectID, model.EntityDeviation, "", err)
	}

	return s.upsert(ctx, upsertInput{
		sourceID:    d.ID,
		projectID:   projectID,
		entityType:  model.EntityDeviation,
		issue:       mapper.DeviationToIssue(d),
		attachments: d.Attachments,
		deviationID: d.ID,
	})
}

// SyncSJA upserts one safety job analysis into the given Dalux project.
func (s *SyncService) SyncSJA(ctx context.Context, sjaID, projectID string) model.SyncResult {
	sja, err := s.sjas.GetWithRelations(ctx, sjaID)
	if err != nil {
		return s.fail(ctx, sjaID, projectID, model.EntitySJA, "", err)
	}

	return s.upsert(ctx, upsertInput{
		sourceID:    sja.ID,
		projectID:   projectID,
		entityType:  model.EntitySJA,
		issue:       mapper.SJAToIssue(sja),
		attachments: sja.Attachments,
		sjaID:       sja.ID,
	})
}

type upsertInput struct {
	sourceID    string
	projectID   string
	entityType  model.EntityType
	issue       *client.IssueRequest
	attachments []model.Attachment
	deviationID string
	sjaID       string
}

// upsert is the create-or-update rule that guarantees idempotency:
// re-running a sync for the same entity never creates a second Dalux issue.
func (s *SyncService) upsert(ctx context.Context, in upsertInput) model.SyncResult {
	existing, err := s.records.GetBySource(ctx, in.sourceID, in.entityType, model.ProviderDalux)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return s.fail(ctx, in.sourceID, in.projectID, in.entityType, "", err)
	}

	knownTargetID := ""
	if existing != nil {
		knownTargetID = existing.TargetID
	}

	var issue *client.Issue
	if knownTargetID != "" {
		issue, err = s.dalux.UpdateIssue(ctx, in.projectID, knownTargetID, in.issue)
		// Dalux keeps the original id on update; fall back to the known one
		// if the response omits it.
		if err == nil && issue.IssueID == "" {
			issue.IssueID = knownTargetID
		}
	} else {
		issue, err = s.dalux.CreateIssue(ctx, in.projectID, in.issue)
	}
	if err != nil {
		return s.fail(ctx, in.sourceID, in.projectID, in.entityType, knownTargetID, err)
	}

	// Attachments go out as secondary fire-and-forget jobs so the primary
	// sync stays bounded and per-attachment failures stay isolated.
	for _, att := range in.attachments {
		payload := model.UploadImagePayload{
			ProjectID:   in.projectID,
			IssueID:     issue.IssueID,
			ImageURL:    att.URL,
			FileName:    att.FileName,
			DeviationID: in.deviationID,
			SJAID:       in.sjaID,
		}
		if _, err := s.queue.Enqueue(ctx, queue.TaskUploadImage, payload); err != nil {
			s.logger.Warn("failed to enqueue attachment upload",
				"entity_id", in.sourceID,
				"file", att.FileName,
				"error", err,
			)
		}
	}

	rec := &model.SyncRecord{
		SourceID:   in.sourceID,
		TargetID:   issue.IssueID,
		ProjectID:  in.projectID,
		EntityType: in.entityType,
		Provider:   model.ProviderDalux,
		LastSync:   s.now(),
		Status:     model.SyncSuccess,
		Error:      nil,
	}
	if err := s.records.Upsert(ctx, rec); err != nil {
		s.logger.Error("failed to persist sync record",
			"entity_id", in.sourceID,
			"project_id", in.projectID,
			"error", err,
		)
	}

	return model.SyncResult{Status: model.SyncSuccess, TargetID: issue.IssueID}
}

// fail records the failed attempt and returns an error result without
// propagating the error itself. knownTargetID carries the target captured
// earlier in the attempt, so the record keeps pointing at the external
// issue and the next attempt still takes the update path.
func (s *SyncService) fail(ctx context.Context, sourceID, projectID string, entityType model.EntityType, knownTargetID string, cause error) model.SyncResult {
	s.logger.Error("sync failed",
		"entity_id", sourceID,
		"entity_type", entityType,
		"project_id", projectID,
		"error", cause,
	)

	msg := cause.Error()
	rec := &model.SyncRecord{
		SourceID:   sourceID,
		TargetID:   knownTargetID,
		ProjectID:  projectID,
		EntityType: entityType,
		Provider:   model.ProviderDalux,
		LastSync:   s.now(),
		Status:     model.SyncError,
		Error:      &msg,
	}

	// When this attempt never read the record, look the target up before
	// writing. If the lookup itself fails we cannot tell whether a target
	// exists, and writing an empty one would split the entity across two
	// external issues on the next run, so skip the bookkeeping write.
	if knownTargetID == "" {
		existing, err := s.records.GetBySource(ctx, sourceID, entityType, model.ProviderDalux)
		switch {
		case err == nil:
			rec.TargetID = existing.TargetID
		case errors.Is(err, store.ErrNotFound):
			// First attempt for this entity; nothing to preserve.
		default:
			s.logger.Error("failed to read sync record, skipping error bookkeeping",
				"entity_id", sourceID,
				"project_id", projectID,
				"error", err,
			)
			return model.SyncResult{Status: model.SyncError, Error: msg}
		}
	}

	if err := s.records.Upsert(ctx, rec); err != nil {
		s.logger.Error("failed to persist sync record",
			"entity_id", sourceID,
			"project_id", projectID,
			"error", err,
		)
	}

	return model.SyncResult{Status: model.SyncError, Error: msg}
}

// SyncAll enqueues one sync job per candidate entity of a company. The
// returned counts cover enqueue outcomes only, not the eventual syncs:
// fan-out is decoupled from whatever request triggered it.
func (s *SyncService) SyncAll(ctx context.Context, companyID, projectID string, filters store.SyncFilters) model.BatchResult {
	var result model.BatchResult

	deviations, err := s.deviations.ListForSync(ctx, companyID, filters)
	if err != nil {
		s.logger.Error("failed to list deviations for sync", "company_id", companyID, "error", err)
	}
	for _, d := range deviations {
		result.Total++
		payload := model.SyncDeviationPayload{DeviationID: d.ID, ProjectID: projectID}
		if _, err := s.queue.Enqueue(ctx, queue.TaskSyncDeviation, payload); err != nil {
			result.Errors++
			continue
		}
		result.Success++
	}

	sjas, err := s.sjas.ListForSync(ctx, companyID, filters)
	if err != nil {
		s.logger.Error("failed to list sjas for sync", "company_id", companyID, "error", err)
	}
	for _, sja := range sjas {
		result.Total++
		payload := model.SyncSJAPayload{SJAID: sja.ID, ProjectID: projectID}
		if _, err := s.queue.Enqueue(ctx, queue.TaskSyncSJA, payload); err != nil {
			result.Errors++
			continue
		}
		result.Success++
	}

	s.logger.Info("batch sync enqueued",
		"company_id", companyID,
		"project_id", projectID,
		"total", result.Total,
		"success", result.Success,
		"errors", result.Errors,
	)
	return result
}
