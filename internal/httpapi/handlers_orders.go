package httpapi

import (
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/lumilearn/lumilearn-backend/internal/domain"
	apperr "github.com/lumilearn/lumilearn-backend/internal/errors"
	"github.com/lumilearn/lumilearn-backend/internal/payments"
)

// CreateOrder handles POST /api/v1/orders. Credit purchases wait for
// parent approval; money purchases go straight to a hosted checkout.
func (h *Handlers) CreateOrder(c *fiber.Ctx) error {
	var req createOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return failMsg(c, h.logger, apperr.KindValidation, "Invalid request body: "+err.Error())
	}
	if len(req.Items) == 0 {
		return failMsg(c, h.logger, apperr.KindValidation, "Order must contain at least one item")
	}

	var (
		items []domain.OrderItem
		total int64
	)
	for _, item := range req.Items {
		if item.Quantity < 1 {
			return failMsg(c, h.logger, apperr.KindValidation, "Item quantity must be at least 1")
		}
		product, err := h.store.GetProduct(c.Context(), item.ProductID)
		if err != nil {
			return fail(c, h.logger, err)
		}
		if !product.IsActive {
			return failMsg(c, h.logger, apperr.KindNotFound, "Product not found: "+item.ProductID)
		}

		unit := product.Amount
		if req.PayWithCredits {
			if product.CreditPrice <= 0 {
				return failMsg(c, h.logger, apperr.KindValidation,
					"Product cannot be purchased with credits: "+product.Name)
			}
			unit = product.CreditPrice
		}
		items = append(items, domain.OrderItem{
			ProductID:  product.ID,
			Name:       product.Name,
			Quantity:   item.Quantity,
			UnitAmount: unit,
		})
		total += unit * int64(item.Quantity)
	}

	// Money orders need the provider before any row is written, or a
	// misconfigured deployment strands inert PENDING orders.
	if !req.PayWithCredits && h.payments == nil {
		return failMsg(c, h.logger, apperr.KindUpstream, "Payments are not available")
	}

	order := &domain.Order{
		BuyerID:        callerID(c),
		Items:          items,
		TotalAmount:    total,
		PaidWithCredit: req.PayWithCredits,
		Status:         domain.OrderPending,
		Fulfillment:    domain.FulfillmentPending,
	}
	if err := h.store.CreateOrder(c.Context(), order); err != nil {
		return fail(c, h.logger, err)
	}

	if req.PayWithCredits {
		order, err := h.store.TransitionOrderStatus(c.Context(), order.ID, domain.OrderPendingParentApproval, false)
		if err != nil {
			return fail(c, h.logger, err)
		}
		if h.metrics != nil {
			h.metrics.RecordTransition("order", string(order.Status))
		}
		return c.Status(fiber.StatusCreated).JSON(dataMessageResponse{
			Success: true, Data: order, Message: "Order awaiting parent approval",
		})
	}

	ctx, cancel := h.providerContext(c)
	defer cancel()
	sess, err := h.payments.CreateCheckoutSession(ctx, payments.CheckoutRequest{
		AmountMinor: total,
		Currency:    creditCurrency,
		SuccessURL:  h.cfg.CheckoutSuccessURL,
		CancelURL:   h.cfg.CheckoutCancelURL,
		Metadata: map[string]string{
			"order_id":  order.ID,
			"operation": string(domain.OpPurchase),
			"amount":    strconv.FormatInt(total, 10),
		},
	})
	if err != nil {
		if h.metrics != nil {
			h.metrics.RecordProviderError("payments")
		}
		// No checkout session means the order can never be paid.
		if _, cerr := h.store.TransitionOrderStatus(c.Context(), order.ID, domain.OrderCancelled, false); cerr != nil {
			h.logger.Error().Err(cerr).Str("order_id", order.ID).
				Msg("failed to cancel order after checkout failure")
		}
		return fail(c, h.logger, err)
	}

	if err := h.store.SetOrderSession(c.Context(), order.ID, sess.ID); err != nil {
		return fail(c, h.logger, err)
	}
	order, err = h.store.TransitionOrderStatus(c.Context(), order.ID, domain.OrderPendingPayment, false)
	if err != nil {
		return fail(c, h.logger, err)
	}

	if h.metrics != nil {
		h.metrics.RecordTransition("order", string(order.Status))
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success":    true,
		"data":       order,
		"url":        sess.URL,
		"session_id": sess.ID,
	})
}

// ListOrders handles GET /api/v1/orders. Parents additionally see their
// children's orders.
func (h *Handlers) ListOrders(c *fiber.Ctx) error {
	orders, err := h.store.ListOrdersByBuyer(c.Context(), callerID(c))
	if err != nil {
		return fail(c, h.logger, err)
	}

	if callerRole(c) == domain.RoleParent {
		children, err := h.store.ListChildren(c.Context(), callerID(c))
		if err != nil {
			return fail(c, h.logger, err)
		}
		for _, child := range children {
			childOrders, err := h.store.ListOrdersByBuyer(c.Context(), child.ID)
			if err != nil {
				return fail(c, h.logger, err)
			}
			orders = append(orders, childOrders...)
		}
	}

	if orders == nil {
		orders = []*domain.Order{}
	}
	return c.JSON(dataResponse{Success: true, Data: orders})
}

// GetOrder handles GET /api/v1/orders/:id.
func (h *Handlers) GetOrder(c *fiber.Ctx) error {
	order, err := h.store.GetOrder(c.Context(), c.Params("id"))
	if err != nil {
		return fail(c, h.logger, err)
	}
	if !h.canSeeOrder(c, order) {
		return failMsg(c, h.logger, apperr.KindNotFound, "Order not found")
	}
	return c.JSON(dataResponse{Success: true, Data: order})
}

func (h *Handlers) canSeeOrder(c *fiber.Ctx, order *domain.Order) bool {
	if callerRole(c) == domain.RoleAdmin {
		return true
	}
	if order.BuyerID == callerID(c) {
		return true
	}
	if callerRole(c) == domain.RoleParent {
		ok, err := h.store.IsParentOf(c.Context(), callerID(c), order.BuyerID)
		return err == nil && ok
	}
	return false
}

// requireParentOfBuyer rejects callers who are not the buyer's parent.
func (h *Handlers) requireParentOfBuyer(c *fiber.Ctx, order *domain.Order) error {
	if callerRole(c) == domain.RoleAdmin {
		return nil
	}
	ok, err := h.store.IsParentOf(c.Context(), callerID(c), order.BuyerID)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.E(apperr.KindForbidden, "Only the buyer's parent may decide this order")
	}
	return nil
}

// ApproveOrder handles POST /api/v1/orders/:id/approve. The credit debit
// and the status transition commit in one transaction.
func (h *Handlers) ApproveOrder(c *fiber.Ctx) error {
	order, err := h.store.GetOrder(c.Context(), c.Params("id"))
	if err != nil {
		return fail(c, h.logger, err)
	}
	if err := h.requireParentOfBuyer(c, order); err != nil {
		return fail(c, h.logger, err)
	}

	order, err = h.store.ApproveCreditOrder(c.Context(), order.ID)
	if err != nil {
		return fail(c, h.logger, err)
	}

	if h.metrics != nil {
		h.metrics.RecordTransition("order", string(order.Status))
		h.metrics.RecordLedgerWrite(string(domain.OpPurchase))
	}
	return c.JSON(dataMessageResponse{Success: true, Data: order, Message: "Order approved"})
}

// RejectOrder handles POST /api/v1/orders/:id/reject.
func (h *Handlers) RejectOrder(c *fiber.Ctx) error {
	order, err := h.store.GetOrder(c.Context(), c.Params("id"))
	if err != nil {
		return fail(c, h.logger, err)
	}
	if err := h.requireParentOfBuyer(c, order); err != nil {
		return fail(c, h.logger, err)
	}

	order, err = h.store.TransitionOrderStatus(c.Context(), order.ID, domain.OrderRejected, false)
	if err != nil {
		return fail(c, h.logger, err)
	}

	if h.metrics != nil {
		h.metrics.RecordTransition("order", string(order.Status))
	}
	return c.JSON(dataMessageResponse{Success: true, Data: order, Message: "Order rejected"})
}

// AdminListOrders handles GET /api/v1/admin/orders.
func (h *Handlers) AdminListOrders(c *fiber.Ctx) error {
	orders, err := h.store.ListOrders(c.Context())
	if err != nil {
		return fail(c, h.logger, err)
	}
	if orders == nil {
		orders = []*domain.Order{}
	}
	return c.JSON(dataResponse{Success: true, Data: orders})
}

// AdminUpdateOrderStatus handles PUT /api/v1/admin/orders/:id/status.
// PROCESSING, SHIPPED and DELIVERED move the fulfillment axis; the rest
// move the payment axis. Illegal jumps are rejected unless the admin sets
// override with a reason, which is audited.
func (h *Handlers) AdminUpdateOrderStatus(c *fiber.Ctx) error {
	var req orderStatusUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return failMsg(c, h.logger, apperr.KindValidation, "Invalid request body: "+err.Error())
	}

	if !domain.IsAdminOrderStatus(req.Status) {
		return fail(c, h.logger, apperr.Ef(apperr.KindValidation,
			"invalid status %q: allowed values are %s", req.Status, domain.AdminOrderStatusList()))
	}
	if req.Override && req.Reason == "" {
		return failMsg(c, h.logger, apperr.KindValidation, "Override requires a reason")
	}

	orderID := c.Params("id")
	var (
		order *domain.Order
		err   error
	)
	if fulfillment, ok := domain.FulfillmentAxisValue(req.Status); ok {
		order, err = h.store.TransitionFulfillment(c.Context(), orderID,
			fulfillment, req.TrackingNumber, req.Notes, req.Override)
	} else {
		order, err = h.store.TransitionOrderStatus(c.Context(), orderID,
			domain.OrderStatus(req.Status), req.Override)
	}
	if err != nil {
		return fail(c, h.logger, err)
	}

	if req.Override {
		if err := h.store.RecordAudit(c.Context(), &domain.AuditRecord{
			ActorID:    callerID(c),
			Action:     "order.status.override",
			EntityType: "order",
			EntityID:   order.ID,
			Detail:     fmt.Sprintf("status=%s reason=%s", req.Status, req.Reason),
		}); err != nil {
			return fail(c, h.logger, err)
		}
	}

	if h.metrics != nil {
		h.metrics.RecordTransition("order", req.Status)
	}
	return c.JSON(dataMessageResponse{Success: true, Data: order, Message: "Order updated"})
}
