package model

// Job payloads. Each queue carries a closed set of payload types; the asynq
// task type string is the discriminator and the worker mux dispatches on it,
// so adding a job kind is a compile-time-checked change.

// SyncDeviationPayload asks the sync worker to upsert a deviation into Dalux.
type SyncDeviationPayload struct {
	DeviationID string `json:"deviationId" validate:"required"`
	ProjectID   string `json:"projectId" validate:"required"`
}

// SyncSJAPayload asks the sync worker to upsert an SJA into Dalux.
type SyncSJAPayload struct {
	SJAID     string `json:"sjaId" validate:"required"`
	ProjectID string `json:"projectId" validate:"required"`
}

// UploadImagePayload attaches one image to an already-synced Dalux issue.
// Enqueued as a secondary job by the sync service so attachment failures
// stay isolated from the primary sync.
type UploadImagePayload struct {
	ProjectID   string `json:"projectId" validate:"required"`
	IssueID     string `json:"issueId" validate:"required"`
	ImageURL    string `json:"imageUrl" validate:"required,url"`
	FileName    string `json:"fileName" validate:"required"`
	DeviationID string `json:"deviationId,omitempty"`
	SJAID       string `json:"sjaId,omitempty"`
}

// ImageSize describes one resize target. Height 0 means preserve aspect.
type ImageSize struct {
	Width  int    `json:"width" validate:"required,gt=0"`
	Height int    `json:"height,omitempty" validate:"gte=0"`
	Suffix string `json:"suffix" validate:"required"`
}

// ImageTransformPayload produces one derivative per (format × size) pair.
// With no sizes, one derivative per format at original dimensions.
type ImageTransformPayload struct {
	ImageID   string            `json:"imageId" validate:"required"`
	SourceURL string            `json:"sourceUrl" validate:"required"`
	Formats   []ImageFormat     `json:"formats" validate:"required,min=1,dive,oneof=webp jpeg png avif"`
	Sizes     []ImageSize       `json:"sizes,omitempty" validate:"dive"`
	Quality   int               `json:"quality,omitempty" validate:"gte=0,lte=100"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// FileAction selects what the file worker does with an SJA's files.
type FileAction string

const (
	FileActionUploadFiles FileAction = "upload-files"
	FileActionProcess     FileAction = "process"
	FileActionNotify      FileAction = "notify"
)

// FileJobPayload drives SJA file processing.
type FileJobPayload struct {
	SJAID          string            `json:"sjaId" validate:"required"`
	CompanyID      string            `json:"companyId" validate:"required"`
	Action         FileAction        `json:"action" validate:"required,oneof=upload-files process notify"`
	AdditionalData map[string]string `json:"additionalData,omitempty"`
}
