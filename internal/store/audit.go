package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lumilearn/lumilearn-backend/internal/domain"
)

// RecordAudit appends one audit record. Admin overrides and credit
// adjustments are always audited with actor and reason.
func (s *Store) RecordAudit(ctx context.Context, r *domain.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == "" {
		r.ID = newID()
	}
	now := nowMs()
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO audit_log (id, actor_id, action, entity_type, entity_id, detail, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ActorID, r.Action, r.EntityType, r.EntityID,
		sql.NullString{String: r.Detail, Valid: r.Detail != ""},
		now)
	if err != nil {
		return fmt.Errorf("failed to record audit entry: %w", err)
	}
	r.CreatedAt = msToTime(now)
	return nil
}

// ListAuditRecords returns audit records for one entity, newest first.
func (s *Store) ListAuditRecords(ctx context.Context, entityType, entityID string) ([]*domain.AuditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
	SELECT id, actor_id, action, entity_type, entity_id, detail, created_at
	FROM audit_log WHERE entity_type = ? AND entity_id = ?
	ORDER BY created_at DESC`, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit records: %w", err)
	}
	defer rows.Close()

	var records []*domain.AuditRecord
	for rows.Next() {
		r := &domain.AuditRecord{}
		var detail sql.NullString
		var created int64
		if err := rows.Scan(&r.ID, &r.ActorID, &r.Action, &r.EntityType, &r.EntityID, &detail, &created); err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		r.Detail = detail.String
		r.CreatedAt = msToTime(created)
		records = append(records, r)
	}
	return records, rows.Err()
}
