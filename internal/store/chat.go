package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lumilearn/lumilearn-backend/internal/domain"
	apperr "github.com/lumilearn/lumilearn-backend/internal/errors"
)

// CreateChatThread starts a conversation between a user and a character.
func (s *Store) CreateChatThread(ctx context.Context, t *domain.ChatThread) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.ID == "" {
		t.ID = newID()
	}
	now := nowMs()
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO chat_threads (id, user_id, character_id, title, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.CharacterID,
		sql.NullString{String: t.Title, Valid: t.Title != ""},
		now, now)
	if err != nil {
		return fmt.Errorf("failed to create chat thread: %w", err)
	}
	t.CreatedAt = msToTime(now)
	t.UpdatedAt = msToTime(now)
	return nil
}

// GetChatThread retrieves a thread owned by userID. Returns NOT_FOUND for
// threads that do not exist or belong to someone else.
func (s *Store) GetChatThread(ctx context.Context, id, userID string) (*domain.ChatThread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t := &domain.ChatThread{}
	var title sql.NullString
	var created, updated int64
	err := s.db.QueryRowContext(ctx, `
	SELECT id, user_id, character_id, title, created_at, updated_at
	FROM chat_threads WHERE id = ? AND user_id = ?`, id, userID).
		Scan(&t.ID, &t.UserID, &t.CharacterID, &title, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, apperr.E(apperr.KindNotFound, "chat thread not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chat thread: %w", err)
	}
	t.Title = title.String
	t.CreatedAt = msToTime(created)
	t.UpdatedAt = msToTime(updated)
	return t, nil
}

// ListChatThreads returns a user's chat threads, most recently used first.
func (s *Store) ListChatThreads(ctx context.Context, userID string) ([]*domain.ChatThread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
	SELECT id, user_id, character_id, title, created_at, updated_at
	FROM chat_threads WHERE user_id = ? ORDER BY updated_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat threads: %w", err)
	}
	defer rows.Close()

	var threads []*domain.ChatThread
	for rows.Next() {
		t := &domain.ChatThread{}
		var title sql.NullString
		var created, updated int64
		if err := rows.Scan(&t.ID, &t.UserID, &t.CharacterID, &title, &created, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan chat thread: %w", err)
		}
		t.Title = title.String
		t.CreatedAt = msToTime(created)
		t.UpdatedAt = msToTime(updated)
		threads = append(threads, t)
	}
	return threads, rows.Err()
}

// AppendChatMessage stores one message and bumps the thread's updated_at.
func (s *Store) AppendChatMessage(ctx context.Context, m *domain.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.ID == "" {
		m.ID = newID()
	}
	now := nowMs()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
	INSERT INTO chat_messages (id, thread_id, role, content, created_at)
	VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.ThreadID, m.Role, m.Content, now)
	if err != nil {
		return fmt.Errorf("failed to append chat message: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE chat_threads SET updated_at = ? WHERE id = ?`, now, m.ThreadID)
	if err != nil {
		return fmt.Errorf("failed to touch chat thread: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chat message: %w", err)
	}
	m.CreatedAt = msToTime(now)
	return nil
}

// ListChatMessages returns the most recent limit messages of a thread in
// chronological order.
func (s *Store) ListChatMessages(ctx context.Context, threadID string, limit int) ([]*domain.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > 500 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
	SELECT id, thread_id, role, content, created_at FROM (
		SELECT id, thread_id, role, content, created_at, rowid AS rid
		FROM chat_messages WHERE thread_id = ?
		ORDER BY created_at DESC, rowid DESC LIMIT ?
	) ORDER BY created_at ASC, rid ASC`, threadID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat messages: %w", err)
	}
	defer rows.Close()

	var msgs []*domain.ChatMessage
	for rows.Next() {
		m := &domain.ChatMessage{}
		var created int64
		if err := rows.Scan(&m.ID, &m.ThreadID, &m.Role, &m.Content, &created); err != nil {
			return nil, fmt.Errorf("failed to scan chat message: %w", err)
		}
		m.CreatedAt = msToTime(created)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
