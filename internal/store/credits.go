package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lumilearn/lumilearn-backend/internal/domain"
	apperr "github.com/lumilearn/lumilearn-backend/internal/errors"
)

// GetBalance returns the balance row for a user, lazily creating a zero
// balance on first read. The insert is conflict-tolerant: if a concurrent
// first-read wins the race, the losing insert is a no-op and the row is
// simply re-read.
func (s *Store) GetBalance(ctx context.Context, userID string) (*domain.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
	INSERT INTO balances (user_id, amount, updated_at) VALUES (?, 0, ?)
	ON CONFLICT(user_id) DO NOTHING`, userID, nowMs())
	if err != nil {
		return nil, fmt.Errorf("failed to init balance: %w", err)
	}

	return s.readBalance(ctx, userID)
}

func (s *Store) readBalance(ctx context.Context, userID string) (*domain.Balance, error) {
	b := &domain.Balance{UserID: userID}
	var updated int64
	err := s.db.QueryRowContext(ctx,
		`SELECT amount, updated_at FROM balances WHERE user_id = ?`, userID).
		Scan(&b.Amount, &updated)
	if err != nil {
		return nil, fmt.Errorf("failed to read balance: %w", err)
	}
	b.UpdatedAt = msToTime(updated)
	return b, nil
}

// appendLedgerTx inserts one append-only ledger entry and applies its amount
// to the materialized balance as an atomic in-database increment. Never
// read-modify-write: concurrent callers cannot lose updates.
func appendLedgerTx(ctx context.Context, tx *sql.Tx, e *domain.LedgerEntry, now int64) error {
	if !e.Operation.Valid() {
		return apperr.Ef(apperr.KindValidation, "invalid operation type: %s", e.Operation)
	}

	_, err := tx.ExecContext(ctx, `
	INSERT INTO credit_ledger (id, user_id, amount, operation, reference_id, description, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.Amount, string(e.Operation),
		sql.NullString{String: e.ReferenceID, Valid: e.ReferenceID != ""},
		sql.NullString{String: e.Description, Valid: e.Description != ""},
		now)
	if err != nil {
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
	INSERT INTO balances (user_id, amount, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		amount = amount + excluded.amount,
		updated_at = excluded.updated_at`,
		e.UserID, e.Amount, now)
	if err != nil {
		return fmt.Errorf("failed to apply balance delta: %w", err)
	}
	return nil
}

// AppendLedgerEntry writes one ledger entry and returns the resulting balance.
func (s *Store) AppendLedgerEntry(ctx context.Context, e *domain.LedgerEntry) (*domain.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ID == "" {
		e.ID = newID()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := nowMs()
	if err := appendLedgerTx(ctx, tx, e, now); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit ledger entry: %w", err)
	}
	e.CreatedAt = msToTime(now)
	return s.readBalance(ctx, e.UserID)
}

// Transfer moves amount from one user to another as a TRANSFER_OUT /
// TRANSFER_IN pair in a single transaction. The debit is gated on sufficient
// funds via a conditional update, so concurrent transfers cannot overdraw.
func (s *Store) Transfer(ctx context.Context, fromUserID, toUserID string, amount int64, description string) error {
	if amount <= 0 {
		return apperr.E(apperr.KindValidation, "transfer amount must be positive")
	}
	if fromUserID == toUserID {
		return apperr.E(apperr.KindValidation, "cannot transfer credits to yourself")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := nowMs()
	res, err := tx.ExecContext(ctx, `
	UPDATE balances SET amount = amount - ?, updated_at = ?
	WHERE user_id = ? AND amount >= ?`,
		amount, now, fromUserID, amount)
	if err != nil {
		return fmt.Errorf("failed to debit sender: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.E(apperr.KindInvalidState, "insufficient credit balance")
	}

	refID := newID()
	_, err = tx.ExecContext(ctx, `
	INSERT INTO credit_ledger (id, user_id, amount, operation, reference_id, description, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`,
		newID(), fromUserID, -amount, string(domain.OpTransferOut), refID, description, now)
	if err != nil {
		return fmt.Errorf("failed to record transfer out: %w", err)
	}

	if err := appendLedgerTx(ctx, tx, &domain.LedgerEntry{
		ID:          newID(),
		UserID:      toUserID,
		Amount:      amount,
		Operation:   domain.OpTransferIn,
		ReferenceID: refID,
		Description: description,
	}, now); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transfer: %w", err)
	}
	return nil
}

// LedgerHistory returns a user's ledger entries, newest first.
func (s *Store) LedgerHistory(ctx context.Context, userID string, limit, offset int) ([]*domain.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > 200 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
	SELECT id, user_id, amount, operation, reference_id, description, created_at
	FROM credit_ledger WHERE user_id = ?
	ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []*domain.LedgerEntry
	for rows.Next() {
		e := &domain.LedgerEntry{}
		var op string
		var ref, desc sql.NullString
		var created int64
		if err := rows.Scan(&e.ID, &e.UserID, &e.Amount, &op, &ref, &desc, &created); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		e.Operation = domain.OperationType(op)
		e.ReferenceID = ref.String
		e.Description = desc.String
		e.CreatedAt = msToTime(created)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// markEventTx claims a provider webhook event ID inside tx. Returns false
// when the event was already settled. The claim commits or rolls back with
// the settlement it guards, so a failed settlement leaves the event open for
// redelivery.
func markEventTx(ctx context.Context, tx *sql.Tx, eventID string, now int64) (bool, error) {
	res, err := tx.ExecContext(ctx, `
	INSERT INTO processed_events (event_id, processed_at) VALUES (?, ?)
	ON CONFLICT(event_id) DO NOTHING`, eventID, now)
	if err != nil {
		return false, fmt.Errorf("failed to claim event: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// SettleTopUp credits a confirmed top-up exactly once per provider event.
// Returns false without writing when the event was already settled.
func (s *Store) SettleTopUp(ctx context.Context, eventID string, e *domain.LedgerEntry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ID == "" {
		e.ID = newID()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := nowMs()
	fresh, err := markEventTx(ctx, tx, eventID, now)
	if err != nil {
		return false, err
	}
	if !fresh {
		return false, nil
	}
	if err := appendLedgerTx(ctx, tx, e, now); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit top-up: %w", err)
	}
	e.CreatedAt = msToTime(now)
	return true, nil
}
