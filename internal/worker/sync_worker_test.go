package worker

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hseguard/syncd/internal/client"
	"github.com/hseguard/syncd/internal/model"
	"github.com/hseguard/syncd/internal/queue"
	"github.com/hseguard/syncd/internal/websocket"
)

type fakeIssueAPI struct {
	attached  []*client.AttachFileRequest
	attachErr error
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
	return &client.Issue{IssueID: "DLX-1"}, nil
}

func (f *fakeIssueAPI) UpdateIssue(ctx context.Context, projectID, issueID string, req *client.IssueRequest) (*client.Issue, error) {
	return &client.Issue{IssueID: issueID}, nil
}

func (f *fakeIssueAPI) AttachFile(ctx context.Context, projectID, issueID string, req *client.AttachFileRequest) error {
	if f.attachErr != nil {
		return f.attachErr
	}
	f.attached = append(f.attached, req)
	return nil
}

func newSyncWorker(dalux client.IssueAPI) *SyncWorker {
	hub := websocket.NewHub(testLogger())
	return NewSyncWorker(nil, dalux, hub, validator.New(), testLogger())
}

func TestHandleSyncDeviationRejectsMalformedPayload(t *testing.T) {
	w := newSyncWorker(&fakeIssueAPI{})

	err := w.HandleSyncDeviation(context.Background(), asynq.NewTask(queue.TaskSyncDeviation, []byte("{broken")))
	require.Error(t, err)
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestHandleSyncDeviationRejectsIncompletePayload(t *testing.T) {
	w := newSyncWorker(&fakeIssueAPI{})

	data, err := json.Marshal(model.SyncDeviationPayload{DeviationID: "dev-1"})
	require.NoError(t, err)

	err = w.HandleSyncDeviation(context.Background(), asynq.NewTask(queue.TaskSyncDeviation, data))
	require.Error(t, err)
	assert.True(t, errors.Is(err, asynq.SkipRetry), "missing project id must not be retried")
}

func TestHandleSyncSJARejectsIncompletePayload(t *testing.T) {
	w := newSyncWorker(&fakeIssueAPI{})

	data, err := json.Marshal(model.SyncSJAPayload{ProjectID: "proj-1"})
	require.NoError(t, err)

	err = w.HandleSyncSJA(context.Background(), asynq.NewTask(queue.TaskSyncSJA, data))
	require.Error(t, err)
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestHandleUploadImageAttachesDownloadedFile(t *testing.T) {
	fileBody := []byte("fake-jpeg-bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(fileBody)
	}))
	defer srv.Close()

	dalux := &fakeIssueAPI{}
	w := newSyncWorker(dalux)

	data, err := json.Marshal(model.UploadImagePayload{
		ProjectID: "proj-1",
		IssueID:   "DLX-7",
		ImageURL:  srv.URL + "/photo.jpg",
		FileName:  "photo.jpg",
	})
	require.NoError(t, err)

	err = w.HandleUploadImage(context.Background(), asynq.NewTask(queue.TaskUploadImage, data))
	require.NoError(t, err)

	require.Len(t, dalux.attached, 1)
	att := dalux.attached[0]
	assert.Equal(t, "photo.jpg", att.FileName)
	assert.Equal(t, "image/jpeg", att.ContentType)
	assert.Equal(t, base64.StdEncoding.EncodeToString(fileBody), att.Data)
}

func TestHandleUploadImageRethrowsDownloadFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	w := newSyncWorker(&fakeIssueAPI{})

	data, err := json.Marshal(model.UploadImagePayload{
		ProjectID: "proj-1",
		IssueID:   "DLX-7",
		ImageURL:  srv.URL + "/gone.jpg",
		FileName:  "gone.jpg",
	})
	require.NoError(t, err)

	err = w.HandleUploadImage(context.Background(), asynq.NewTask(queue.TaskUploadImage, data))
	require.Error(t, err)
	assert.False(t, errors.Is(err, asynq.SkipRetry), "transient download failures stay retryable")
}

func TestHandleUploadImageRethrowsAPIFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte("bytes"))
	}))
	defer srv.Close()

	dalux := &fakeIssueAPI{attachErr: &client.APIError{StatusCode: 503, Body: "unavailable"}}
	w := newSyncWorker(dalux)

	data, err := json.Marshal(model.UploadImagePayload{
		ProjectID: "proj-1",
		IssueID:   "DLX-7",
		ImageURL:  srv.URL + "/photo.jpg",
		FileName:  "photo.jpg",
	})
	require.NoError(t, err)

	err = w.HandleUploadImage(context.Background(), asynq.NewTask(queue.TaskUploadImage, data))
	require.Error(t, err)

	var apiErr *client.APIError
	assert.ErrorAs(t, err, &apiErr)
}
