package mapper

import (
	"time"

	"github.com/hseguard/syncd/internal/client"
	"github.com/hseguard/syncd/internal/model"
)

// DeviationToIssue maps a deviation onto a Dalux issue request.
func DeviationToIssue(d *model.Deviation) *client.IssueRequest {
	reportedBy := d.ReportedByID
	if d.ReportedBy != nil && d.ReportedBy.Name != "" {
		reportedBy = d.ReportedBy.Name
	}

	return &client.IssueRequest{
		Title:       d.Title,
		Description: d.Description,
		Status:      MapStatus(d.Status),
		Severity:    MapSeverity(d.Severity),
		Location:    d.Location,
		CustomFields: map[string]string{
			client.FieldInternalID:   d.ID,
			client.FieldReportedBy:   reportedBy,
			client.FieldReportedAt:   d.ReportedAt.Format(time.RFC3339),
			client.FieldSourceSystem: client.SourceSystemName,
		},
	}
}
