package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lumilearn/lumilearn-backend/internal/domain"
	apperr "github.com/lumilearn/lumilearn-backend/internal/errors"
)

// CreateUser inserts a new user account.
func (s *Store) CreateUser(ctx context.Context, u *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !u.Role.Valid() {
		return apperr.Ef(apperr.KindValidation, "invalid role: %s", u.Role)
	}
	if u.ID == "" {
		u.ID = newID()
	}

	now := nowMs()
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO users (id, email, display_name, role, parent_id, created_at)
	VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.DisplayName, string(u.Role),
		sql.NullString{String: u.ParentID, Valid: u.ParentID != ""},
		now)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	u.CreatedAt = msToTime(now)
	return nil
}

// GetUser retrieves a user by ID.
func (s *Store) GetUser(ctx context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u := &domain.User{}
	var role string
	var parentID sql.NullString
	var created int64
	err := s.db.QueryRowContext(ctx, `
	SELECT id, email, display_name, role, parent_id, created_at FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Email, &u.DisplayName, &role, &parentID, &created)
	if err == sql.ErrNoRows {
		return nil, apperr.E(apperr.KindNotFound, "user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	u.Role = domain.Role(role)
	u.ParentID = parentID.String
	u.CreatedAt = msToTime(created)
	return u, nil
}

// ListChildren returns the student accounts linked to a parent.
func (s *Store) ListChildren(ctx context.Context, parentID string) ([]*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
	SELECT id, email, display_name, role, parent_id, created_at
	FROM users WHERE parent_id = ? ORDER BY created_at`, parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list children: %w", err)
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		u := &domain.User{}
		var role string
		var pid sql.NullString
		var created int64
		if err := rows.Scan(&u.ID, &u.Email, &u.DisplayName, &role, &pid, &created); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		u.Role = domain.Role(role)
		u.ParentID = pid.String
		u.CreatedAt = msToTime(created)
		users = append(users, u)
	}
	return users, rows.Err()
}

// IsParentOf reports whether childID is a student account linked to parentID.
func (s *Store) IsParentOf(ctx context.Context, parentID, childID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE id = ? AND parent_id = ?`, childID, parentID).
		Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check family link: %w", err)
	}
	return count > 0, nil
}
