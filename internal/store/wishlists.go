package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/lumilearn/lumilearn-backend/internal/domain"
	apperr "github.com/lumilearn/lumilearn-backend/internal/errors"
)

// AddWishlistItem links a product to a user's wishlist. Adding the same
// product twice is a VALIDATION error.
func (s *Store) AddWishlistItem(ctx context.Context, w *domain.WishlistItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if w.ID == "" {
		w.ID = newID()
	}
	now := nowMs()
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO wishlist_items (id, user_id, product_id, created_at)
	VALUES (?, ?, ?, ?)`,
		w.ID, w.UserID, w.ProductID, now)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return apperr.E(apperr.KindValidation, "product is already on the wishlist")
		}
		return fmt.Errorf("failed to add wishlist item: %w", err)
	}
	w.CreatedAt = msToTime(now)
	return nil
}

// ListWishlist returns a user's wishlist items, newest first.
func (s *Store) ListWishlist(ctx context.Context, userID string) ([]*domain.WishlistItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
	SELECT id, user_id, product_id, created_at
	FROM wishlist_items WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list wishlist: %w", err)
	}
	defer rows.Close()

	var items []*domain.WishlistItem
	for rows.Next() {
		w := &domain.WishlistItem{}
		var created int64
		if err := rows.Scan(&w.ID, &w.UserID, &w.ProductID, &created); err != nil {
			return nil, fmt.Errorf("failed to scan wishlist item: %w", err)
		}
		w.CreatedAt = msToTime(created)
		items = append(items, w)
	}
	return items, rows.Err()
}

// RemoveWishlistItem deletes a wishlist item, scoped to the owner.
func (s *Store) RemoveWishlistItem(ctx context.Context, id, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM wishlist_items WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to remove wishlist item: %w", err)
	}
	if cnt, _ := res.RowsAffected(); cnt == 0 {
		return apperr.E(apperr.KindNotFound, "wishlist item not found")
	}
	return nil
}
