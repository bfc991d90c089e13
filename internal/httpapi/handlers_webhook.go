package httpapi

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/lumilearn/lumilearn-backend/internal/domain"
	apperr "github.com/lumilearn/lumilearn-backend/internal/errors"
	"github.com/lumilearn/lumilearn-backend/internal/payments"
)

// PaymentsWebhook handles POST /api/v1/webhooks/payments. Deliveries are
// authenticated by HMAC signature and deduplicated by event ID. The event
// claim commits in the same transaction as the settlement it triggers, so a
// failed settlement leaves the event open and the provider's redelivery can
// still land it.
func (h *Handlers) PaymentsWebhook(c *fiber.Ctx) error {
	if h.payments == nil {
		return failMsg(c, h.logger, apperr.KindUpstream, "Payments are not available")
	}

	evt, err := h.payments.VerifyWebhook(c.Body(), c.Get("X-Webhook-Signature"))
	if err != nil {
		return fail(c, h.logger, err)
	}

	if evt.Type != payments.EventCheckoutCompleted {
		h.logger.Debug().Str("event_type", evt.Type).Msg("ignoring webhook event")
		return c.JSON(fiber.Map{"received": true})
	}

	switch evt.Meta["operation"] {
	case string(domain.OpCreditTopUp):
		return h.settleTopUp(c, evt)
	case string(domain.OpPurchase):
		return h.settleOrderPayment(c, evt)
	default:
		h.logger.Warn().Str("event_id", evt.ID).
			Str("operation", evt.Meta["operation"]).
			Msg("webhook event with unknown operation")
		return c.JSON(fiber.Map{"received": true})
	}
}

func (h *Handlers) duplicateDelivery(c *fiber.Ctx, eventID string) error {
	h.logger.Info().Str("event_id", eventID).Msg("duplicate webhook delivery ignored")
	return c.JSON(fiber.Map{"received": true, "duplicate": true})
}

// settleTopUp writes the CREDIT_TOPUP ledger entry for a confirmed
// checkout.
func (h *Handlers) settleTopUp(c *fiber.Ctx, evt *payments.Event) error {
	userID := evt.Meta["user_id"]
	amount, _ := strconv.ParseInt(evt.Meta["amount"], 10, 64)
	if userID == "" || amount <= 0 {
		return failMsg(c, h.logger, apperr.KindValidation, "Webhook metadata missing user_id or amount")
	}

	fresh, err := h.store.SettleTopUp(c.Context(), evt.ID, &domain.LedgerEntry{
		UserID:      userID,
		Amount:      amount,
		Operation:   domain.OpCreditTopUp,
		ReferenceID: evt.Session.ID,
		Description: "Credit top-up",
	})
	if err != nil {
		return fail(c, h.logger, err)
	}
	if !fresh {
		return h.duplicateDelivery(c, evt.ID)
	}

	if h.metrics != nil {
		h.metrics.RecordLedgerWrite(string(domain.OpCreditTopUp))
	}
	h.logger.Info().Str("user_id", userID).Int64("amount", amount).Msg("top-up settled")
	return c.JSON(fiber.Map{"received": true})
}

// settleOrderPayment moves a money order from PENDING_PAYMENT to PAID.
func (h *Handlers) settleOrderPayment(c *fiber.Ctx, evt *payments.Event) error {
	orderID := evt.Meta["order_id"]
	if orderID == "" {
		// Fall back to the session the checkout was created with.
		order, err := h.store.GetOrderBySession(c.Context(), evt.Session.ID)
		if err != nil {
			return fail(c, h.logger, err)
		}
		orderID = order.ID
	}

	fresh, order, err := h.store.SettleOrderPayment(c.Context(), evt.ID, orderID)
	if err != nil {
		return fail(c, h.logger, err)
	}
	if !fresh {
		return h.duplicateDelivery(c, evt.ID)
	}

	if h.metrics != nil {
		h.metrics.RecordTransition("order", string(order.Status))
	}
	h.logger.Info().Str("order_id", order.ID).Msg("order payment settled")
	return c.JSON(fiber.Map{"received": true})
}
