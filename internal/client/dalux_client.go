package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hseguard/syncd/internal/config"
)

// requestTimeout is the fixed ceiling on any single Dalux API call.
const requestTimeout = 30 * time.Second

// IssueAPI is the Dalux surface consumed by the sync service.
type IssueAPI interface {
	ListProjects(ctx context.Context) ([]Project, error)
	GetProject(ctx context.Context, projectID string) (*Project, error)
	ListIssues(ctx context.Context, projectID string) ([]Issue, error)
	GetIssue(ctx context.Context, projectID, issueID string) (*Issue, error)
	CreateIssue(ctx context.Context, projectID string, req *IssueRequest) (*Issue, error)
	UpdateIssue(ctx context.Context, projectID, issueID string, req *IssueRequest) (*Issue, error)
	AttachFile(ctx context.Context, projectID, issueID string, req *AttachFileRequest) error
}

// DaluxClient implements IssueAPI over the Dalux Field REST API. It is a
// pure transport layer; upsert semantics live in the sync service.
type DaluxClient struct {
	httpClient *http.Client
	baseURL    string
	tokens     TokenProvider
	logger     *slog.Logger
}

// NewDaluxClient creates a Dalux API client.
func NewDaluxClient(cfg *config.DaluxConfig, tokens TokenProvider, logger *slog.Logger) *DaluxClient {
	return &DaluxClient{
		httpClient: &http.Client{Timeout: requestTimeout},
		baseURL:    cfg.BaseURL,
		tokens:     tokens,
		logger:     logger,
	}
}

// ListProjects returns the projects visible to the service credentials.
func (c *DaluxClient) ListProjects(ctx context.Context) ([]Project, error) {
	var result struct {
		Projects []Project `json:"projects"`
	}
	if err := c.do(ctx, http.MethodGet, "/projects", nil, &result); err != nil {
		return nil, err
	}
	return result.Projects, nil
}

// GetProject fetches a single project.
func (c *DaluxClient) GetProject(ctx context.Context, projectID string) (*Project, error) {
	var result Project
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/projects/%s", projectID), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListIssues returns all issues under a project.
func (c *DaluxClient) ListIssues(ctx context.Context, projectID string) ([]Issue, error) {
	var result struct {
		Issues []Issue `json:"issues"`
	}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/projects/%s/issues", projectID), nil, &result); err != nil {
		return nil, err
	}
	return result.Issues, nil
}

// GetIssue fetches a single issue.
func (c *DaluxClient) GetIssue(ctx context.Context, projectID, issueID string) (*Issue, error) {
	var result Issue
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/projects/%s/issues/%s", projectID, issueID), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CreateIssue creates a new issue and returns it with its assigned id.
func (c *DaluxClient) CreateIssue(ctx context.Context, projectID string, req *IssueRequest) (*Issue, error) {
	var result Issue
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/projects/%s/issues", projectID), req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// UpdateIssue updates an existing issue in place.
func (c *DaluxClient) UpdateIssue(ctx context.Context, projectID, issueID string, req *IssueRequest) (*Issue, error) {
	var result Issue
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/projects/%s/issues/%s", projectID, issueID), req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// AttachFile uploads a base64-encoded file to an issue.
func (c *DaluxClient) AttachFile(ctx context.Context, projectID, issueID string, req *AttachFileRequest) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/projects/%s/issues/%s/files", projectID, issueID), req, nil)
}

// do executes an authenticated JSON request against the API. Non-2xx
// responses become *APIError with the body captured; deadline overruns
// become *TimeoutError.
func (c *DaluxClient) do(ctx context.Context, method, endpoint string, body, result interface{}) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("dalux request", "method", method, "endpoint", endpoint)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			c.logger.Error("dalux request timed out", "method", method, "endpoint", endpoint)
			return &TimeoutError{Endpoint: endpoint, Limit: requestTimeout}
		}
		c.logger.Error("dalux request failed", "method", method, "endpoint", endpoint, "error", err)
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("dalux request rejected",
			"method", method,
			"endpoint", endpoint,
			"status", resp.StatusCode,
			"body", string(respBody),
		)
		return &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}

	return nil
}
