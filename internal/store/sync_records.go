package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/hseguard/syncd/internal/model"
)

// SyncRecordStore persists sync bookkeeping rows. The unique index on
// (source_id, entity_type, provider) is the idempotency key: concurrent
// retries of the same entity race into a single row via ON CONFLICT.
type SyncRecordStore struct {
	db *sqlx.DB
	ql queryLogger
}

// NewSyncRecordStore creates a sync record store.
func NewSyncRecordStore(db *sqlx.DB, queryLog bool, logger *slog.Logger) *SyncRecordStore {
	return &SyncRecordStore{
		db: db,
		ql: queryLogger{enabled: queryLog, logger: logger},
	}
}

// GetBySource looks up the record for an internal entity, returning
// ErrNotFound when the entity has never been synced.
func (s *SyncRecordStore) GetBySource(ctx context.Context, sourceID string, entityType model.EntityType, provider string) (*model.SyncRecord, error) {
	query := `
		SELECT id, source_id, target_id, project_id, entity_type, provider, last_sync, status, error
		FROM sync_records
		WHERE source_id = $1 AND entity_type = $2 AND provider = $3
	`
	s.ql.log(query, sourceID, entityType, provider)

	var rec model.SyncRecord
	if err := s.db.GetContext(ctx, &rec, query, sourceID, entityType, provider); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get sync record: %w", err)
	}
	return &rec, nil
}

// Upsert inserts the record or updates the existing row for the same
// (source_id, entity_type, provider) tuple. Last write wins.
func (s *SyncRecordStore) Upsert(ctx context.Context, rec *model.SyncRecord) error {
	query := `
		INSERT INTO sync_records (source_id, target_id, project_id, entity_type, provider, last_sync, status, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (source_id, entity_type, provider)
		DO UPDATE SET
			target_id = EXCLUDED.target_id,
			project_id = EXCLUDED.project_id,
			last_sync = EXCLUDED.last_sync,
			status = EXCLUDED.status,
			error = EXCLUDED.error
		RETURNING id
	`
	s.ql.log(query, rec.SourceID, rec.EntityType, rec.Provider, rec.Status)

	if err := s.db.QueryRowxContext(ctx, query,
		rec.SourceID, rec.TargetID, rec.ProjectID, rec.EntityType,
		rec.Provider, rec.LastSync, rec.Status, rec.Error,
	).Scan(&rec.ID); err != nil {
		return fmt.Errorf("failed to upsert sync record: %w", err)
	}
	return nil
}
