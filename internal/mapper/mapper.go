// Package mapper translates internal HSE entities into Dalux wire shapes.
// All functions are pure; vocabulary translation happens through fixed
// lookup tables so an unknown internal value can never fail a sync.
package mapper

import (
	"github.com/hseguard/syncd/internal/model"
)

// statusTable maps internal workflow statuses to the Dalux vocabulary.
var statusTable = map[model.EntityStatus]string{
	model.StatusOpen:       "created",
	model.StatusInProgress: "inprogress",
	model.StatusResolved:   "resolved",
	model.StatusClosed:     "closed",
}

// severityTable maps stored deviation severities to Dalux levels.
var severityTable = map[model.Severity]string{
	model.SeverityLow:      "low",
	model.SeverityMedium:   "medium",
	model.SeverityHigh:     "high",
	model.SeverityCritical: "critical",
}

// MapStatus translates an internal status. Unknown statuses default to
// "created" rather than failing.
func MapStatus(s model.EntityStatus) string {
	if mapped, ok := statusTable[s]; ok {
		return mapped
	}
	return "created"
}

// MapSeverity translates a stored severity, defaulting to "medium" when the
// value is absent or unknown.
func MapSeverity(s model.Severity) string {
	if mapped, ok := severityTable[s]; ok {
		return mapped
	}
	return "medium"
}

// SeverityFromRisk derives a severity level from a hazard risk score.
// Thresholds follow the 5x5 risk matrix used on the assessment forms.
func SeverityFromRisk(score int) string {
	switch {
	case score <= 4:
		return "low"
	case score <= 9:
		return "medium"
	case score <= 16:
		return "high"
	default:
		return "critical"
	}
}
