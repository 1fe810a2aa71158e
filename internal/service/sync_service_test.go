package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hseguard/syncd/internal/client"
	"github.com/hseguard/syncd/internal/model"
	"github.com/hseguard/syncd/internal/queue"
	"github.com/hseguard/syncd/internal/store"
)

type fakeDeviations struct {
	byID map[string]*model.Deviation
	list []model.Deviation
	err  error
}

func (f *fakeDeviations) GetWithRelations(ctx context.Context, id string) (*model.Deviation, error) {
	if f.err != nil {
		return nil, f.err
	}
	d, ok := f.byID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return d, nil
}

func (f *fakeDeviations) ListForSync(ctx context.Context, companyID string, filters store.SyncFilters) ([]model.Deviation, error) {
	return f.list, f.err
}

type fakeSJAs struct {
	byID map[string]*model.SafetyJobAnalysis
	list []model.SafetyJobAnalysis
	err  error
}

func (f *fakeSJAs) GetWithRelations(ctx context.Context, id string) (*model.SafetyJobAnalysis, error) {
	if f.err != nil {
		return nil, f.err
	}
	s, ok := f.byID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return s, nil
}

func (f *fakeSJAs) ListForSync(ctx context.Context, companyID string, filters store.SyncFilters) ([]model.SafetyJobAnalysis, error) {
	return f.list, f.err
}

type fakeRecords struct {
	recs   map[string]*model.SyncRecord
	getErr error
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{recs: make(map[string]*model.SyncRecord)}
}

func recordKey(sourceID string, entityType model.EntityType, provider string) string {
	return sourceID + "|" + string(entityType) + "|" + provider
}

func (f *fakeRecords) GetBySource(ctx context.Context, sourceID string, entityType model.EntityType, provider string) (*model.SyncRecord, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	rec, ok := f.recs[recordKey(sourceID, entityType, provider)]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeRecords) Upsert(ctx context.Context, rec *model.SyncRecord) error {
	key := recordKey(rec.SourceID, rec.EntityType, rec.Provider)
	if existing, ok := f.recs[key]; ok {
		rec.ID = existing.ID
	} else {
		rec.ID = int64(len(f.recs) + 1)
	}
	cp := *rec
	f.recs[key] = &cp
	return nil
}

type fakeIssueAPI struct {
	createCalls int
	updateCalls int
	lastCreate  *client.IssueRequest
	lastUpdate  *client.IssueRequest
	lastTarget  string
	createErr   error
	updateErr   error
}

func (f *fakeIssueAPI) ListProjects(ctx context.Context) ([]client.Project, error) { return nil, nil }

func (f *fakeIssueAPI) GetProject(ctx context.Context, projectID string) (*client.Project, error) {
	return nil, nil
}

func (f *fakeIssueAPI) ListIssues(ctx context.Context, projectID string) ([]client.Issue, error) {
	return nil, nil
}

func (f *fakeIssueAPI) GetIssue(ctx context.Context, projectID, issueID string) (*client.Issue, error) {
	return nil, nil
}

func (f *fakeIssueAPI) CreateIssue(ctx context.Context, projectID string, req *client.IssueRequest) (*client.Issue, error) {
	f.createCalls++
	f.lastCreate = req
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &client.Issue{IssueID: fmt.Sprintf("DLX-%d", f.createCalls), Title: req.Title}, nil
}

func (f *fakeIssueAPI) UpdateIssue(ctx context.Context, projectID, issueID string, req *client.IssueRequest) (*client.Issue, error) {
	f.updateCalls++
	f.lastUpdate = req
	f.lastTarget = issueID
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	return &client.Issue{IssueID: issueID, Title: req.Title}, nil
}

func (f *fakeIssueAPI) AttachFile(ctx context.Context, projectID, issueID string, req *client.AttachFileRequest) error {
	return nil
}

type enqueued struct {
	taskType string
	payload  any
}

type fakeEnqueuer struct {
	jobs     []enqueued
	failType string
}

func (f *fakeEnqueuer) Enqueue(ctx context.Context, taskType string, payload any, opts ...asynq.Option) (string, error) {
	if f.failType != "" && taskType == f.failType {
		return "", errors.New("broker down")
	}
	f.jobs = append(f.jobs, enqueued{taskType: taskType, payload: payload})
	return fmt.Sprintf("job-%d", len(f.jobs)), nil
}

func (f *fakeEnqueuer) byType(taskType string) []enqueued {
	var out []enqueued
	for _, j := range f.jobs {
		if j.taskType == taskType {
			out = append(out, j)
		}
	}
	return out
}

func testDeviation() *model.Deviation {
	return &model.Deviation{
		ID:          "dev-1",
		CompanyID:   "comp-1",
		Title:       "Oil spill near loading dock",
		Description: "Approximately 5 liters of hydraulic oil.",
		Location:    "Dock 3",
		Status:      model.StatusOpen,
		Severity:    model.SeverityHigh,
		ReportedAt:  time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC),
		ReportedBy:  &model.User{ID: "user-1", Name: "Per Olsen"},
		Attachments: []model.Attachment{
			{ID: "att-1", FileName: "spill-1.jpg", URL: "https://files.example.com/spill-1.jpg", ContentType: "image/jpeg"},
			{ID: "att-2", FileName: "spill-2.jpg", URL: "https://files.example.com/spill-2.jpg", ContentType: "image/jpeg"},
		},
	}
}

type serviceFixture struct {
	svc        *SyncService
	deviations *fakeDeviations
	sjas       *fakeSJAs
	records    *fakeRecords
	dalux      *fakeIssueAPI
	enqueuer   *fakeEnqueuer
}

func newFixture() *serviceFixture {
	f := &serviceFixture{
		deviations: &fakeDeviations{byID: make(map[string]*model.Deviation)},
		sjas:       &fakeSJAs{byID: make(map[string]*model.SafetyJobAnalysis)},
		records:    newFakeRecords(),
		dalux:      &fakeIssueAPI{},
		enqueuer:   &fakeEnqueuer{},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.svc = NewSyncService(f.deviations, f.sjas, f.records, f.dalux, f.enqueuer, logger)
	return f
}

func TestSyncDeviationCreatesIssueOnFirstSync(t *testing.T) {
	f := newFixture()
	f.deviations.byID["dev-1"] = testDeviation()

	result := f.svc.SyncDeviation(context.Background(), "dev-1", "proj-1")

	assert.Equal(t, model.SyncSuccess, result.Status)
	assert.Equal(t, "DLX-1", result.TargetID)

	assert.Equal(t, 1, f.dalux.createCalls)
	assert.Equal(t, 0, f.dalux.updateCalls)
	require.NotNil(t, f.dalux.lastCreate)
	assert.Equal(t, "created", f.dalux.lastCreate.Status)
	assert.Equal(t, "high", f.dalux.lastCreate.Severity)
	assert.Equal(t, "dev-1", f.dalux.lastCreate.CustomFields[client.FieldInternalID])

	rec, err := f.records.GetBySource(context.Background(), "dev-1", model.EntityDeviation, model.ProviderDalux)
	require.NoError(t, err)
	assert.Equal(t, "DLX-1", rec.TargetID)
	assert.Equal(t, model.SyncSuccess, rec.Status)
	assert.Nil(t, rec.Error)

	// One secondary upload job per attachment, addressed to the new issue.
	uploads := f.enqueuer.byType(queue.TaskUploadImage)
	require.Len(t, uploads, 2)
	for _, job := range uploads {
		payload, ok := job.payload.(model.UploadImagePayload)
		require.True(t, ok)
		assert.Equal(t, "DLX-1", payload.IssueID)
		assert.Equal(t, "proj-1", payload.ProjectID)
	}
}

func TestSyncDeviationSecondRunUpdatesInPlace(t *testing.T) {
	f := newFixture()
	f.deviations.byID["dev-1"] = testDeviation()

	first := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return first }
	f.svc.SyncDeviation(context.Background(), "dev-1", "proj-1")

	// Entity changed since the first sync.
	f.deviations.byID["dev-1"].Status = model.StatusResolved

	second := first.Add(time.Hour)
	f.svc.now = func() time.Time { return second }
	result := f.svc.SyncDeviation(context.Background(), "dev-1", "proj-1")

	assert.Equal(t, model.SyncSuccess, result.Status)
	assert.Equal(t, "DLX-1", result.TargetID)

	assert.Equal(t, 1, f.dalux.createCalls, "re-sync must not create a second issue")
	assert.Equal(t, 1, f.dalux.updateCalls)
	assert.Equal(t, "DLX-1", f.dalux.lastTarget)
	assert.Equal(t, "resolved", f.dalux.lastUpdate.Status)

	// Still exactly one record, now with the later sync time.
	assert.Len(t, f.records.recs, 1)
	rec, err := f.records.GetBySource(context.Background(), "dev-1", model.EntityDeviation, model.ProviderDalux)
	require.NoError(t, err)
	assert.Equal(t, second, rec.LastSync)
}

func TestSyncDeviationRecordsAPIErrorWithoutRaising(t *testing.T) {
	f := newFixture()
	f.deviations.byID["dev-1"] = testDeviation()
	f.dalux.createErr = &client.APIError{StatusCode: 422, Body: `{"message":"invalid status"}`}

	result := f.svc.SyncDeviation(context.Background(), "dev-1", "proj-1")

	assert.Equal(t, model.SyncError, result.Status)
	assert.Contains(t, result.Error, "422")

	rec, err := f.records.GetBySource(context.Background(), "dev-1", model.EntityDeviation, model.ProviderDalux)
	require.NoError(t, err)
	assert.Equal(t, model.SyncError, rec.Status)
	require.NotNil(t, rec.Error)
	assert.Contains(t, *rec.Error, "422")

	// No attachment jobs when the primary sync failed.
	assert.Empty(t, f.enqueuer.byType(queue.TaskUploadImage))
}

func TestSyncFailurePreservesKnownTargetID(t *testing.T) {
	f := newFixture()
	f.deviations.byID["dev-1"] = testDeviation()

	f.svc.SyncDeviation(context.Background(), "dev-1", "proj-1")

	f.dalux.updateErr = &client.TimeoutError{Endpoint: "/projects/proj-1/issues/DLX-1", Limit: 30 * time.Second}
	result := f.svc.SyncDeviation(context.Background(), "dev-1", "proj-1")

	assert.Equal(t, model.SyncError, result.Status)

	// The mapping to the external issue survives the failed attempt, so the
	// next retry still takes the update path.
	rec, err := f.records.GetBySource(context.Background(), "dev-1", model.EntityDeviation, model.ProviderDalux)
	require.NoError(t, err)
	assert.Equal(t, "DLX-1", rec.TargetID)
	assert.Equal(t, model.SyncError, rec.Status)
}

func TestSyncFailureWithUnreadableRecordLeavesTargetIntact(t *testing.T) {
	f := newFixture()
	f.deviations.byID["dev-1"] = testDeviation()

	f.svc.SyncDeviation(context.Background(), "dev-1", "proj-1")
	require.Len(t, f.records.recs, 1)
	before := *f.records.recs[recordKey("dev-1", model.EntityDeviation, model.ProviderDalux)]
	require.Equal(t, "DLX-1", before.TargetID)

	// Record reads fail transiently while writes would still go through.
	// The failed attempt must not write a record with an empty target: the
	// next run would take the create path and mint a second external issue.
	f.records.getErr = errors.New("read timeout")
	result := f.svc.SyncDeviation(context.Background(), "dev-1", "proj-1")
	assert.Equal(t, model.SyncError, result.Status)

	f.records.getErr = nil
	rec, err := f.records.GetBySource(context.Background(), "dev-1", model.EntityDeviation, model.ProviderDalux)
	require.NoError(t, err)
	assert.Equal(t, "DLX-1", rec.TargetID)
	assert.Equal(t, before, *rec, "failed attempt must not rewrite the record it could not read")

	// With reads healthy again the entity updates in place.
	f.svc.SyncDeviation(context.Background(), "dev-1", "proj-1")
	assert.Equal(t, 1, f.dalux.createCalls)
	assert.Len(t, f.records.recs, 1)
}

func TestSyncDeviationLoadFailureRecorded(t *testing.T) {
	f := newFixture()
	f.deviations.err = errors.New("connection refused")

	result := f.svc.SyncDeviation(context.Background(), "dev-404", "proj-1")

	assert.Equal(t, model.SyncError, result.Status)
	assert.Contains(t, result.Error, "connection refused")

	rec, err := f.records.GetBySource(context.Background(), "dev-404", model.EntityDeviation, model.ProviderDalux)
	require.NoError(t, err)
	assert.Equal(t, model.SyncError, rec.Status)
	assert.Equal(t, 0, f.dalux.createCalls)
}

func TestSyncSJADerivesSeverityFromHazards(t *testing.T) {
	f := newFixture()
	f.sjas.byID["sja-1"] = &model.SafetyJobAnalysis{
		ID:        "sja-1",
		CompanyID: "comp-1",
		Title:     "Crane lift over walkway",
		Status:    model.StatusOpen,
		CreatedAt: time.Date(2026, 4, 2, 6, 0, 0, 0, time.UTC),
		Hazards: []model.HazardEntry{
			{Activity: "Lifting", Hazard: "Dropped load", RiskScore: 20},
			{Activity: "Rigging", Hazard: "Pinch points", RiskScore: 6},
		},
	}

	result := f.svc.SyncSJA(context.Background(), "sja-1", "proj-1")

	assert.Equal(t, model.SyncSuccess, result.Status)
	require.NotNil(t, f.dalux.lastCreate)
	assert.Equal(t, "critical", f.dalux.lastCreate.Severity)
	assert.Contains(t, f.dalux.lastCreate.Description, "Dropped load")

	rec, err := f.records.GetBySource(context.Background(), "sja-1", model.EntitySJA, model.ProviderDalux)
	require.NoError(t, err)
	assert.Equal(t, model.EntitySJA, rec.EntityType)
}

func TestSyncAllCountsEnqueueOutcomes(t *testing.T) {
	f := newFixture()
	f.deviations.list = []model.Deviation{{ID: "dev-1"}, {ID: "dev-2"}}
	f.sjas.list = []model.SafetyJobAnalysis{{ID: "sja-1"}}
	f.enqueuer.failType = queue.TaskSyncSJA

	result := f.svc.SyncAll(context.Background(), "comp-1", "proj-1", store.SyncFilters{})

	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 2, result.Success)
	assert.Equal(t, 1, result.Errors)

	devJobs := f.enqueuer.byType(queue.TaskSyncDeviation)
	require.Len(t, devJobs, 2)
	payload, ok := devJobs[0].payload.(model.SyncDeviationPayload)
	require.True(t, ok)
	assert.Equal(t, "dev-1", payload.DeviationID)
	assert.Equal(t, "proj-1", payload.ProjectID)
}
