package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lumilearn/lumilearn-backend/internal/domain"
	apperr "github.com/lumilearn/lumilearn-backend/internal/errors"
)

// CreateOrder inserts an order and its line items in one transaction.
func (s *Store) CreateOrder(ctx context.Context, o *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !o.Status.Valid() {
		return apperr.Ef(apperr.KindValidation, "invalid order status: %s", o.Status)
	}
	if o.Fulfillment == "" {
		o.Fulfillment = domain.FulfillmentPending
	}
	if o.ID == "" {
		o.ID = newID()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := nowMs()
	_, err = tx.ExecContext(ctx, `
	INSERT INTO orders (id, buyer_id, total_amount, paid_with_credit, status,
		fulfillment, tracking_number, notes, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.BuyerID, o.TotalAmount, boolToInt(o.PaidWithCredit),
		string(o.Status), string(o.Fulfillment),
		sql.NullString{String: o.TrackingNumber, Valid: o.TrackingNumber != ""},
		sql.NullString{String: o.Notes, Valid: o.Notes != ""},
		now, now)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}

	for _, item := range o.Items {
		_, err = tx.ExecContext(ctx, `
		INSERT INTO order_items (order_id, product_id, name, quantity, unit_amount)
		VALUES (?, ?, ?, ?, ?)`,
			o.ID, item.ProductID, item.Name, item.Quantity, item.UnitAmount)
		if err != nil {
			return fmt.Errorf("failed to create order item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit order: %w", err)
	}
	o.CreatedAt = msToTime(now)
	o.UpdatedAt = msToTime(now)
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

const orderColumns = `id, buyer_id, total_amount, paid_with_credit, status,
	fulfillment, tracking_number, notes, created_at, updated_at`

func scanOrder(row interface{ Scan(...any) error }) (*domain.Order, error) {
	o := &domain.Order{}
	var paidWithCredit int
	var status, fulfillment string
	var tracking, notes sql.NullString
	var created, updated int64
	err := row.Scan(&o.ID, &o.BuyerID, &o.TotalAmount, &paidWithCredit,
		&status, &fulfillment, &tracking, &notes, &created, &updated)
	if err != nil {
		return nil, err
	}
	o.PaidWithCredit = paidWithCredit != 0
	o.Status = domain.OrderStatus(status)
	o.Fulfillment = domain.FulfillmentStatus(fulfillment)
	o.TrackingNumber = tracking.String
	o.Notes = notes.String
	o.CreatedAt = msToTime(created)
	o.UpdatedAt = msToTime(updated)
	return o, nil
}

// GetOrder retrieves an order with its line items. Returns nil, nil when absent.
func (s *Store) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, err := s.getOrderLocked(ctx, id)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, apperr.E(apperr.KindNotFound, "order not found")
	}
	return o, nil
}

func (s *Store) getOrderLocked(ctx context.Context, id string) (*domain.Order, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)
	o, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
	SELECT product_id, name, quantity, unit_amount FROM order_items WHERE order_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list order items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ProductID, &item.Name, &item.Quantity, &item.UnitAmount); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		o.Items = append(o.Items, item)
	}
	return o, rows.Err()
}

// ListOrdersByBuyer returns a buyer's orders, newest first.
func (s *Store) ListOrdersByBuyer(ctx context.Context, buyerID string) ([]*domain.Order, error) {
	return s.listOrders(ctx, `WHERE buyer_id = ?`, buyerID)
}

// ListOrders returns all orders, newest first (admin use).
func (s *Store) ListOrders(ctx context.Context) ([]*domain.Order, error) {
	return s.listOrders(ctx, ``)
}

func (s *Store) listOrders(ctx context.Context, where string, args ...any) ([]*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders `+where+` ORDER BY created_at DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// SetOrderSession records the payment provider checkout session on an order.
func (s *Store) SetOrderSession(ctx context.Context, orderID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE orders SET provider_session_id = ?, updated_at = ? WHERE id = ?`,
		sessionID, nowMs(), orderID)
	if err != nil {
		return fmt.Errorf("failed to set order session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.E(apperr.KindNotFound, "order not found")
	}
	return nil
}

// GetOrderBySession retrieves an order by provider session ID.
func (s *Store) GetOrderBySession(ctx context.Context, sessionID string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM orders WHERE provider_session_id = ?`, sessionID).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, apperr.E(apperr.KindNotFound, "order not found for session")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up order by session: %w", err)
	}
	return s.getOrderLocked(ctx, id)
}

// TransitionOrderStatus moves the payment axis of an order. The transition is
// validated against the reachable-state table unless override is set; an
// override is the admin correction path and must be audited by the caller.
func (s *Store) TransitionOrderStatus(ctx context.Context, orderID string, to domain.OrderStatus, override bool) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !to.Valid() {
		return nil, apperr.Ef(apperr.KindValidation, "invalid order status: %s", to)
	}

	o, err := s.getOrderLocked(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, apperr.E(apperr.KindNotFound, "order not found")
	}

	if !override && !domain.CanTransitionOrder(o.Status, to) {
		return nil, apperr.Ef(apperr.KindInvalidState,
			"order cannot move from %s to %s", o.Status, to)
	}

	now := nowMs()
	res, err := s.db.ExecContext(ctx,
		`UPDATE orders SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(to), now, orderID, string(o.Status))
	if err != nil {
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, apperr.E(apperr.KindInvalidState, "order status changed concurrently, retry")
	}

	o.Status = to
	o.UpdatedAt = msToTime(now)
	return o, nil
}

// TransitionFulfillment moves the fulfillment axis of an order, with the same
// table-or-override rule as the payment axis. Tracking number and notes are
// updated when non-empty.
func (s *Store) TransitionFulfillment(ctx context.Context, orderID string, to domain.FulfillmentStatus, trackingNumber, notes string, override bool) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !to.Valid() {
		return nil, apperr.Ef(apperr.KindValidation, "invalid fulfillment status: %s", to)
	}

	o, err := s.getOrderLocked(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, apperr.E(apperr.KindNotFound, "order not found")
	}

	if !override && !domain.CanTransitionFulfillment(o.Fulfillment, to) {
		return nil, apperr.Ef(apperr.KindInvalidState,
			"order fulfillment cannot move from %s to %s", o.Fulfillment, to)
	}

	now := nowMs()
	if trackingNumber == "" {
		trackingNumber = o.TrackingNumber
	}
	if notes == "" {
		notes = o.Notes
	}
	res, err := s.db.ExecContext(ctx, `
	UPDATE orders SET fulfillment = ?, tracking_number = ?, notes = ?, updated_at = ?
	WHERE id = ? AND fulfillment = ?`,
		string(to),
		sql.NullString{String: trackingNumber, Valid: trackingNumber != ""},
		sql.NullString{String: notes, Valid: notes != ""},
		now, orderID, string(o.Fulfillment))
	if err != nil {
		return nil, fmt.Errorf("failed to update fulfillment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, apperr.E(apperr.KindInvalidState, "order fulfillment changed concurrently, retry")
	}

	o.Fulfillment = to
	o.TrackingNumber = trackingNumber
	o.Notes = notes
	o.UpdatedAt = msToTime(now)
	return o, nil
}

// SettleOrderPayment moves a paid-for order PENDING_PAYMENT → PAID exactly
// once per provider event. The event claim and the transition share a
// transaction, so a delivery that arrives before the order is ready fails
// without consuming the event and redelivery can settle it.
func (s *Store) SettleOrderPayment(ctx context.Context, eventID, orderID string) (bool, *domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, err := s.getOrderLocked(ctx, orderID)
	if err != nil {
		return false, nil, err
	}
	if o == nil {
		return false, nil, apperr.E(apperr.KindNotFound, "order not found")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := nowMs()
	fresh, err := markEventTx(ctx, tx, eventID, now)
	if err != nil {
		return false, nil, err
	}
	if !fresh {
		return false, o, nil
	}

	if !domain.CanTransitionOrder(o.Status, domain.OrderPaid) {
		return false, nil, apperr.Ef(apperr.KindInvalidState,
			"order cannot move from %s to %s", o.Status, domain.OrderPaid)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE orders SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(domain.OrderPaid), now, orderID, string(o.Status))
	if err != nil {
		return false, nil, fmt.Errorf("failed to update order status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil, apperr.E(apperr.KindInvalidState, "order status changed concurrently, retry")
	}

	if err := tx.Commit(); err != nil {
		return false, nil, fmt.Errorf("failed to commit settlement: %w", err)
	}

	o.Status = domain.OrderPaid
	o.UpdatedAt = msToTime(now)
	return true, o, nil
}

// ApproveCreditOrder transitions a credit-paid order
// PENDING_PARENT_APPROVAL → PARENT_APPROVED and debits the buyer's credit
// balance with a PURCHASE ledger entry, all in one transaction.
func (s *Store) ApproveCreditOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, err := s.getOrderLocked(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, apperr.E(apperr.KindNotFound, "order not found")
	}
	if o.Status != domain.OrderPendingParentApproval {
		return nil, apperr.Ef(apperr.KindInvalidState,
			"order cannot be approved: current status is %s", o.Status)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := nowMs()
	res, err := tx.ExecContext(ctx, `
	UPDATE balances SET amount = amount - ?, updated_at = ?
	WHERE user_id = ? AND amount >= ?`,
		o.TotalAmount, now, o.BuyerID, o.TotalAmount)
	if err != nil {
		return nil, fmt.Errorf("failed to debit buyer: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, apperr.E(apperr.KindInvalidState, "insufficient credit balance for this order")
	}

	_, err = tx.ExecContext(ctx, `
	INSERT INTO credit_ledger (id, user_id, amount, operation, reference_id, description, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`,
		newID(), o.BuyerID, -o.TotalAmount, string(domain.OpPurchase), o.ID, "order purchase", now)
	if err != nil {
		return nil, fmt.Errorf("failed to record purchase: %w", err)
	}

	res, err = tx.ExecContext(ctx,
		`UPDATE orders SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(domain.OrderParentApproved), now, orderID, string(domain.OrderPendingParentApproval))
	if err != nil {
		return nil, fmt.Errorf("failed to approve order: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, apperr.E(apperr.KindInvalidState, "order status changed concurrently, retry")
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit approval: %w", err)
	}

	o.Status = domain.OrderParentApproved
	o.UpdatedAt = msToTime(now)
	return o, nil
}
