package model

import "time"

// EntityStatus is the internal workflow status shared by deviations and
// safety job analyses.
type EntityStatus string

const (
	StatusOpen       EntityStatus = "OPEN"
	StatusInProgress EntityStatus = "IN_PROGRESS"
	StatusResolved   EntityStatus = "RESOLVED"
	StatusClosed     EntityStatus = "CLOSED"
)

// Severity levels for deviations
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// User is the subset of account data carried on synced entities.
type User struct {
	ID    string `json:"id" db:"id"`
	Name  string `json:"name" db:"name"`
	Email string `json:"email" db:"email"`
}

// Attachment is an image or document linked to a deviation or SJA.
type Attachment struct {
	ID          string `json:"id" db:"id"`
	FileName    string `json:"fileName" db:"file_name"`
	URL         string `json:"url" db:"url"`
	ContentType string `json:"contentType" db:"content_type"`
}

// Deviation is an HSE deviation report (incident, near miss, observation).
type Deviation struct {
	ID           string       `json:"id" db:"id"`
	CompanyID    string       `json:"companyId" db:"company_id"`
	Title        string       `json:"title" db:"title"`
	Description  string       `json:"description" db:"description"`
	Location     string       `json:"location" db:"location"`
	Status       EntityStatus `json:"status" db:"status"`
	Severity     Severity     `json:"severity" db:"severity"`
	ReportedByID string       `json:"reportedById" db:"reported_by_id"`
	ReportedAt   time.Time    `json:"reportedAt" db:"reported_at"`
	UpdatedAt    time.Time    `json:"updatedAt" db:"updated_at"`

	ReportedBy  *User        `json:"reportedBy,omitempty" db:"-"`
	Attachments []Attachment `json:"attachments,omitempty" db:"-"`
}
