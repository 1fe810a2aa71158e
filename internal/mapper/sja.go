package mapper

import (
	"fmt"
	"strings"
	"time"

	"github.com/hseguard/syncd/internal/client"
	"github.com/hseguard/syncd/internal/model"
)

// SJAToIssue maps a safety job analysis onto a Dalux issue request.
// Severity is derived from the highest hazard risk score; the description
// is synthesized from the free text plus one line per hazard entry.
func SJAToIssue(s *model.SafetyJobAnalysis) *client.IssueRequest {
	createdBy := s.CreatedByID
	if s.CreatedBy != nil && s.CreatedBy.Name != "" {
		createdBy = s.CreatedBy.Name
	}

	return &client.IssueRequest{
		Title:       s.Title,
		Description: synthesizeDescription(s),
		Status:      MapStatus(s.Status),
		Severity:    SeverityFromRisk(s.MaxRiskScore()),
		CustomFields: map[string]string{
			client.FieldInternalID:   s.ID,
			client.FieldCreatedBy:    createdBy,
			client.FieldCreatedAt:    s.CreatedAt.Format(time.RFC3339),
			client.FieldSourceSystem: client.SourceSystemName,
		},
	}
}

func synthesizeDescription(s *model.SafetyJobAnalysis) string {
	var b strings.Builder
	b.WriteString(s.Description)

	for _, h := range s.Hazards {
		b.WriteString("\n")
		fmt.Fprintf(&b, "%s – %s (risk: %d)", h.Activity, h.Hazard, h.RiskScore)
	}

	return b.String()
}
