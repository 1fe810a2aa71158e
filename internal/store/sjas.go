package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/hseguard/syncd/internal/model"
)

// SJAStore reads safety job analyses and their related collections.
type SJAStore struct {
	db *sqlx.DB
	ql queryLogger
}

// NewSJAStore creates an SJA store.
func NewSJAStore(db *sqlx.DB, queryLog bool, logger *slog.Logger) *SJAStore {
	return &SJAStore{
		db: db,
		ql: queryLogger{enabled: queryLog, logger: logger},
	}
}

// GetWithRelations loads an SJA with its creator, hazard entries and
// attachments.
func (s *SJAStore) GetWithRelations(ctx context.Context, id string) (*model.SafetyJobAnalysis, error) {
	query := `
		SELECT id, company_id, title, description, status, created_by_id, created_at, updated_at
		FROM safety_job_analyses
		WHERE id = $1 AND deleted_at IS NULL
	`
	s.ql.log(query, id)

	var sja model.SafetyJobAnalysis
	if err := s.db.GetContext(ctx, &sja, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get sja: %w", err)
	}

	var creator model.User
	userQuery := `SELECT id, name, email FROM users WHERE id = $1`
	s.ql.log(userQuery, sja.CreatedByID)
	if err := s.db.GetContext(ctx, &creator, userQuery, sja.CreatedByID); err == nil {
		sja.CreatedBy = &creator
	}

	hazardQuery := `
		SELECT id, activity, hazard, risk_score, mitigation
		FROM sja_hazards
		WHERE sja_id = $1
		ORDER BY position
	`
	s.ql.log(hazardQuery, sja.ID)
	if err := s.db.SelectContext(ctx, &sja.Hazards, hazardQuery, sja.ID); err != nil {
		return nil, fmt.Errorf("failed to list hazards: %w", err)
	}

	attachQuery := `
		SELECT id, file_name, url, content_type
		FROM attachments
		WHERE owner_type = 'sja' AND owner_id = $1
		ORDER BY created_at
	`
	s.ql.log(attachQuery, sja.ID)
	if err := s.db.SelectContext(ctx, &sja.Attachments, attachQuery, sja.ID); err != nil {
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}

	return &sja, nil
}

// ListForSync selects candidate SJAs for a batch sync fan-out.
func (s *SJAStore) ListForSync(ctx context.Context, companyID string, filters SyncFilters) ([]model.SafetyJobAnalysis, error) {
	query := `
		SELECT id, company_id, title, description, status, created_by_id, created_at, updated_at
		FROM safety_job_analyses
		WHERE company_id = $1 AND deleted_at IS NULL
	`
	args := []any{companyID}

	if len(filters.Statuses) > 0 {
		query += fmt.Sprintf(" AND status = ANY($%d)", len(args)+1)
		statuses := make([]string, len(filters.Statuses))
		for i, st := range filters.Statuses {
			statuses[i] = string(st)
		}
		args = append(args, pq.Array(statuses))
	}
	if filters.Since != nil {
		query += fmt.Sprintf(" AND updated_at >= $%d", len(args)+1)
		args = append(args, *filters.Since)
	}
	query += " ORDER BY created_at"
	s.ql.log(query, args...)

	var sjas []model.SafetyJobAnalysis
	if err := s.db.SelectContext(ctx, &sjas, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list sjas: %w", err)
	}
	return sjas, nil
}
