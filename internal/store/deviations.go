package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/hseguard/syncd/internal/model"
)

// SyncFilters narrows the candidate set of a batch sync.
type SyncFilters struct {
	Statuses []model.EntityStatus
	Since    *time.Time
}

// DeviationStore reads deviations and their related collections.
type DeviationStore struct {
	db *sqlx.DB
	ql queryLogger
}

// NewDeviationStore creates a deviation store.
func NewDeviationStore(db *sqlx.DB, queryLog bool, logger *slog.Logger) *DeviationStore {
	return &DeviationStore{
		db: db,
		ql: queryLogger{enabled: queryLog, logger: logger},
	}
}

// GetWithRelations loads a deviation with its reporter and attachments.
func (s *DeviationStore) GetWithRelations(ctx context.Context, id string) (*model.Deviation, error) {
	query := `
		SELECT id, company_id, title, description, location, status, severity,
		       reported_by_id, reported_at, updated_at
		FROM deviations
		WHERE id = $1 AND deleted_at IS NULL
	`
	s.ql.log(query, id)

	var d model.Deviation
	if err := s.db.GetContext(ctx, &d, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get deviation: %w", err)
	}

	var reporter model.User
	userQuery := `SELECT id, name, email FROM users WHERE id = $1`
	s.ql.log(userQuery, d.ReportedByID)
	if err := s.db.GetContext(ctx, &reporter, userQuery, d.ReportedByID); err == nil {
		d.ReportedBy = &reporter
	}

	attachments, err := s.attachments(ctx, "deviation", d.ID)
	if err != nil {
		return nil, err
	}
	d.Attachments = attachments

	return &d, nil
}

// ListForSync selects candidate deviations for a batch sync fan-out.
func (s *DeviationStore) ListForSync(ctx context.Context, companyID string, filters SyncFilters) ([]model.Deviation, error) {
	query := `
		SELECT id, company_id, title, description, location, status, severity,
		       reported_by_id, reported_at, updated_at
		FROM deviations
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
	query += " ORDER BY reported_at"
	s.ql.log(query, args...)

	var deviations []model.Deviation
	if err := s.db.SelectContext(ctx, &deviations, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list deviations: %w", err)
	}
	return deviations, nil
}

func (s *DeviationStore) attachments(ctx context.Context, ownerType, ownerID string) ([]model.Attachment, error) {
	query := `
		SELECT id, file_name, url, content_type
		FROM attachments
		WHERE owner_type = $1 AND owner_id = $2
		ORDER BY created_at
	`
	s.ql.log(query, ownerType, ownerID)

	var attachments []model.Attachment
	if err := s.db.SelectContext(ctx, &attachments, query, ownerType, ownerID); err != nil {
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}
	return attachments, nil
}
