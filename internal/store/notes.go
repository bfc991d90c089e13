package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lumilearn/lumilearn-backend/internal/domain"
	apperr "github.com/lumilearn/lumilearn-backend/internal/errors"
)

// CreateNote inserts a note owned by a user.
func (s *Store) CreateNote(ctx context.Context, n *domain.Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n.ID == "" {
		n.ID = newID()
	}
	now := nowMs()
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO notes (id, user_id, title, body, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)`,
		n.ID, n.UserID, n.Title, n.Body, now, now)
	if err != nil {
		return fmt.Errorf("failed to create note: %w", err)
	}
	n.CreatedAt = msToTime(now)
	n.UpdatedAt = msToTime(now)
	return nil
}

// GetNote retrieves a note owned by userID. Returns NOT_FOUND for notes that
// do not exist or belong to someone else.
func (s *Store) GetNote(ctx context.Context, id, userID string) (*domain.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := &domain.Note{}
	var created, updated int64
	err := s.db.QueryRowContext(ctx, `
	SELECT id, user_id, title, body, created_at, updated_at
	FROM notes WHERE id = ? AND user_id = ?`, id, userID).
		Scan(&n.ID, &n.UserID, &n.Title, &n.Body, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, apperr.E(apperr.KindNotFound, "note not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get note: %w", err)
	}
	n.CreatedAt = msToTime(created)
	n.UpdatedAt = msToTime(updated)
	return n, nil
}

// ListNotes returns a user's notes, newest first.
func (s *Store) ListNotes(ctx context.Context, userID string) ([]*domain.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
	SELECT id, user_id, title, body, created_at, updated_at
	FROM notes WHERE user_id = ? ORDER BY updated_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	defer rows.Close()

	var notes []*domain.Note
	for rows.Next() {
		n := &domain.Note{}
		var created, updated int64
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Body, &created, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		n.CreatedAt = msToTime(created)
		n.UpdatedAt = msToTime(updated)
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// UpdateNote updates a note's title and body, scoped to the owner.
func (s *Store) UpdateNote(ctx context.Context, n *domain.Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := nowMs()
	res, err := s.db.ExecContext(ctx, `
	UPDATE notes SET title = ?, body = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		n.Title, n.Body, now, n.ID, n.UserID)
	if err != nil {
		return fmt.Errorf("failed to update note: %w", err)
	}
	if cnt, _ := res.RowsAffected(); cnt == 0 {
		return apperr.E(apperr.KindNotFound, "note not found")
	}
	n.UpdatedAt = msToTime(now)
	return nil
}

// DeleteNote removes a note, scoped to the owner.
func (s *Store) DeleteNote(ctx context.Context, id, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM notes WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete note: %w", err)
	}
	if cnt, _ := res.RowsAffected(); cnt == 0 {
		return apperr.E(apperr.KindNotFound, "note not found")
	}
	return nil
}
