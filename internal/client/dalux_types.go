package client

// Wire types for the Dalux Field API. Status and severity use Dalux's
// vocabulary ("created", "inprogress", ...), not the internal enums; the
// mapper package owns the translation.

// Project is a Dalux project the client credentials have access to.
type Project struct {
	ProjectID string `json:"projectId"`
	Name      string `json:"name"`
}

// IssueRequest is the create/update body for an issue.
type IssueRequest struct {
	Title        string            `json:"title"`
	Description  string            `json:"description"`
	Status       string            `json:"status"`
	Severity     string            `json:"severity"`
	Location     string            `json:"location,omitempty"`
	CustomFields map[string]string `json:"customFields,omitempty"`
}

// Issue is an issue as returned by Dalux.
type Issue struct {
	IssueID      string            `json:"issueId"`
	Title        string            `json:"title"`
	Description  string            `json:"description"`
	Status       string            `json:"status"`
	Severity     string            `json:"severity"`
	Location     string            `json:"location,omitempty"`
	CustomFields map[string]string `json:"customFields,omitempty"`
	CreatedAt    string            `json:"createdAt,omitempty"`
	UpdatedAt    string            `json:"updatedAt,omitempty"`
}

// AttachFileRequest attaches a base64-encoded file to an issue.
type AttachFileRequest struct {
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	Data        string `json:"data"`
}

// Custom field keys carried on every synced issue for traceability.
const (
	FieldInternalID   = "internal_id"
	FieldReportedBy   = "reportedBy"
	FieldReportedAt   = "reportedAt"
	FieldCreatedBy    = "createdBy"
	FieldCreatedAt    = "createdAt"
	FieldSourceSystem = "sourceSystem"
)

// SourceSystemName identifies this platform in Dalux custom fields.
const SourceSystemName = "Internal HSE System"
