package mapper

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hseguard/syncd/internal/client"
	"github.com/hseguard/syncd/internal/model"
)

func testSJA() *model.SafetyJobAnalysis {
	return &model.SafetyJobAnalysis{
		ID:          "sja-17",
		Title:       "Hot work on tank roof",
		Description: "Welding repairs on tank T-201.",
		Status:      model.StatusOpen,
		CreatedByID: "user-3",
		CreatedAt:   time.Date(2026, 5, 20, 7, 0, 0, 0, time.UTC),
		CreatedBy:   &model.User{ID: "user-3", Name: "Ola Hansen"},
		Hazards: []model.HazardEntry{
			{Activity: "Welding", Hazard: "Fire", RiskScore: 12, Mitigation: "Fire watch"},
			{Activity: "Roof access", Hazard: "Fall from height", RiskScore: 20, Mitigation: "Harness"},
			{Activity: "Grinding", Hazard: "Flying sparks", RiskScore: 3, Mitigation: "Screens"},
		},
	}
}

func TestSJAToIssue(t *testing.T) {
	issue := SJAToIssue(testSJA())
	require.NotNil(t, issue)

	assert.Equal(t, "Hot work on tank roof", issue.Title)
	assert.Equal(t, "created", issue.Status)

	// Severity follows the worst hazard, score 20 here.
	assert.Equal(t, "critical", issue.Severity)

	assert.Equal(t, "sja-17", issue.CustomFields[client.FieldInternalID])
	assert.Equal(t, "Ola Hansen", issue.CustomFields[client.FieldCreatedBy])
	assert.Equal(t, "2026-05-20T07:00:00Z", issue.CustomFields[client.FieldCreatedAt])
	assert.Equal(t, client.SourceSystemName, issue.CustomFields[client.FieldSourceSystem])
}

func TestSJAToIssueDescriptionIncludesHazards(t *testing.T) {
	issue := SJAToIssue(testSJA())

	assert.Contains(t, issue.Description, "Welding repairs on tank T-201.")
	assert.Contains(t, issue.Description, "Welding – Fire (risk: 12)")
	assert.Contains(t, issue.Description, "Roof access – Fall from height (risk: 20)")
	assert.Contains(t, issue.Description, "Grinding – Flying sparks (risk: 3)")
}

func TestSJAToIssueWithoutHazards(t *testing.T) {
	sja := testSJA()
	sja.Hazards = nil

	issue := SJAToIssue(sja)

	// Score 0 lands in the lowest band and the description stays untouched.
	assert.Equal(t, "low", issue.Severity)
	assert.Equal(t, "Welding repairs on tank T-201.", issue.Description)
}

func TestMaxRiskScore(t *testing.T) {
	sja := testSJA()
	assert.Equal(t, 20, sja.MaxRiskScore())

	sja.Hazards = nil
	assert.Equal(t, 0, sja.MaxRiskScore())
}
