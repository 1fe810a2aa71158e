package model

import "time"

// HazardEntry is a single row in an SJA's hazard assessment: an activity,
// the hazard it exposes, and the assessed risk score (probability × impact).
type HazardEntry struct {
	ID         string `json:"id" db:"id"`
	Activity   string `json:"activity" db:"activity"`
	Hazard     string `json:"hazard" db:"hazard"`
	RiskScore  int    `json:"riskScore" db:"risk_score"`
	Mitigation string `json:"mitigation" db:"mitigation"`
}

// SafetyJobAnalysis is a pre-job risk assessment (SJA). Unlike deviations it
// has no stored severity; severity is derived from the hazard risk scores.
type SafetyJobAnalysis struct {
	ID          string       `json:"id" db:"id"`
	CompanyID   string       `json:"companyId" db:"company_id"`
	Title       string       `json:"title" db:"title"`
	Description string       `json:"description" db:"description"`
	Status      EntityStatus `json:"status" db:"status"`
	CreatedByID string       `json:"createdById" db:"created_by_id"`
	CreatedAt   time.Time    `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time    `json:"updatedAt" db:"updated_at"`

	CreatedBy   *User         `json:"createdBy,omitempty" db:"-"`
	Hazards     []HazardEntry `json:"hazards,omitempty" db:"-"`
	Attachments []Attachment  `json:"attachments,omitempty" db:"-"`
}

// MaxRiskScore returns the highest risk score across all hazard entries,
// or 0 when the SJA has none.
func (s *SafetyJobAnalysis) MaxRiskScore() int {
	max := 0
	for _, h := range s.Hazards {
		if h.RiskScore > max {
			max = h.RiskScore
		}
	}
	return max
}
