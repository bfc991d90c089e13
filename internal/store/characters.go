package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lumilearn/lumilearn-backend/internal/domain"
	apperr "github.com/lumilearn/lumilearn-backend/internal/errors"
)

const characterColumns = `id, name, persona, voice_id, avatar_url, is_active, created_at, updated_at`

func scanCharacter(row interface{ Scan(...any) error }) (*domain.Character, error) {
	c := &domain.Character{}
	var voiceID, avatarURL sql.NullString
	var isActive int
	var created, updated int64
	err := row.Scan(&c.ID, &c.Name, &c.Persona, &voiceID, &avatarURL, &isActive, &created, &updated)
	if err != nil {
		return nil, err
	}
	c.VoiceID = voiceID.String
	c.AvatarURL = avatarURL.String
	c.IsActive = isActive != 0
	c.CreatedAt = msToTime(created)
	c.UpdatedAt = msToTime(updated)
	return c, nil
}

// CreateCharacter inserts a new AI persona.
func (s *Store) CreateCharacter(ctx context.Context, c *domain.Character) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = newID()
	}
	now := nowMs()
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO characters (id, name, persona, voice_id, avatar_url, is_active, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, 1, ?, ?)`,
		c.ID, c.Name, c.Persona,
		sql.NullString{String: c.VoiceID, Valid: c.VoiceID != ""},
		sql.NullString{String: c.AvatarURL, Valid: c.AvatarURL != ""},
		now, now)
	if err != nil {
		return fmt.Errorf("failed to create character: %w", err)
	}
	c.IsActive = true
	c.CreatedAt = msToTime(now)
	c.UpdatedAt = msToTime(now)
	return nil
}

// GetCharacter retrieves a character by ID.
func (s *Store) GetCharacter(ctx context.Context, id string) (*domain.Character, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+characterColumns+` FROM characters WHERE id = ?`, id)
	c, err := scanCharacter(row)
	if err == sql.ErrNoRows {
		return nil, apperr.E(apperr.KindNotFound, "character not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get character: %w", err)
	}
	return c, nil
}

// ListCharacters returns characters; when activeOnly is set, soft-deleted
// personas are excluded.
func (s *Store) ListCharacters(ctx context.Context, activeOnly bool) ([]*domain.Character, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + characterColumns + ` FROM characters`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list characters: %w", err)
	}
	defer rows.Close()

	var chars []*domain.Character
	for rows.Next() {
		c, err := scanCharacter(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan character: %w", err)
		}
		chars = append(chars, c)
	}
	return chars, rows.Err()
}

// UpdateCharacter updates a persona's mutable fields.
func (s *Store) UpdateCharacter(ctx context.Context, c *domain.Character) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := nowMs()
	res, err := s.db.ExecContext(ctx, `
	UPDATE characters SET name = ?, persona = ?, voice_id = ?, avatar_url = ?, updated_at = ?
	WHERE id = ?`,
		c.Name, c.Persona,
		sql.NullString{String: c.VoiceID, Valid: c.VoiceID != ""},
		sql.NullString{String: c.AvatarURL, Valid: c.AvatarURL != ""},
		now, c.ID)
	if err != nil {
		return fmt.Errorf("failed to update character: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.E(apperr.KindNotFound, "character not found")
	}
	c.UpdatedAt = msToTime(now)
	return nil
}

// DeactivateCharacter soft-deletes a persona. Characters referenced by chat
// history are never hard-deleted.
func (s *Store) DeactivateCharacter(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE characters SET is_active = 0, updated_at = ? WHERE id = ?`, nowMs(), id)
	if err != nil {
		return fmt.Errorf("failed to deactivate character: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.E(apperr.KindNotFound, "character not found")
	}
	return nil
}
