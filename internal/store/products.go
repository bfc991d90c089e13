package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lumilearn/lumilearn-backend/internal/domain"
	apperr "github.com/lumilearn/lumilearn-backend/internal/errors"
)

const productColumns = `id, name, description, amount, credit_price, stock, is_active, created_at, updated_at`

func scanProduct(row interface{ Scan(...any) error }) (*domain.Product, error) {
	p := &domain.Product{}
	var desc sql.NullString
	var isActive int
	var created, updated int64
	err := row.Scan(&p.ID, &p.Name, &desc, &p.Amount, &p.CreditPrice, &p.Stock, &isActive, &created, &updated)
	if err != nil {
		return nil, err
	}
	p.Description = desc.String
	p.IsActive = isActive != 0
	p.CreatedAt = msToTime(created)
	p.UpdatedAt = msToTime(updated)
	return p, nil
}

// CreateProduct inserts a new catalog item.
func (s *Store) CreateProduct(ctx context.Context, p *domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = newID()
	}
	now := nowMs()
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO products (id, name, description, amount, credit_price, stock, is_active, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		p.ID, p.Name,
		sql.NullString{String: p.Description, Valid: p.Description != ""},
		p.Amount, p.CreditPrice, p.Stock, now, now)
	if err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}
	p.IsActive = true
	p.CreatedAt = msToTime(now)
	p.UpdatedAt = msToTime(now)
	return nil
}

// GetProduct retrieves a product by ID.
func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ?`, id)
	p, err := scanProduct(row)
	if err == sql.ErrNoRows {
		return nil, apperr.E(apperr.KindNotFound, "product not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return p, nil
}

// ListProducts returns catalog items; when activeOnly is set, retired items
// are excluded.
func (s *Store) ListProducts(ctx context.Context, activeOnly bool) ([]*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + productColumns + ` FROM products`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var products []*domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// UpdateProduct updates a product's mutable fields.
func (s *Store) UpdateProduct(ctx context.Context, p *domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := nowMs()
	res, err := s.db.ExecContext(ctx, `
	UPDATE products SET name = ?, description = ?, amount = ?, credit_price = ?, stock = ?, updated_at = ?
	WHERE id = ?`,
		p.Name,
		sql.NullString{String: p.Description, Valid: p.Description != ""},
		p.Amount, p.CreditPrice, p.Stock, now, p.ID)
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.E(apperr.KindNotFound, "product not found")
	}
	p.UpdatedAt = msToTime(now)
	return nil
}

// DeactivateProduct retires a catalog item without deleting it.
func (s *Store) DeactivateProduct(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE products SET is_active = 0, updated_at = ? WHERE id = ?`, nowMs(), id)
	if err != nil {
		return fmt.Errorf("failed to deactivate product: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.E(apperr.KindNotFound, "product not found")
	}
	return nil
}
