package httpapi

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/lumilearn/lumilearn-backend/internal/domain"
	apperr "github.com/lumilearn/lumilearn-backend/internal/errors"
	"github.com/lumilearn/lumilearn-backend/internal/payments"
)

const creditCurrency = "USD"

// InternalBalance handles GET /api/v1/credits/internal-balance. A user
// with no balance row gets one created lazily with amount 0.
func (h *Handlers) InternalBalance(c *fiber.Ctx) error {
	bal, err := h.store.GetBalance(c.Context(), callerID(c))
	if err != nil {
		return fail(c, h.logger, err)
	}

	return c.JSON(balanceResponse{
		Balance:          bal.Amount,
		BalanceInDollars: fmt.Sprintf("%.2f", float64(bal.Amount)/100),
		Currency:         creditCurrency,
		UpdatedAt:        bal.UpdatedAt.UTC().Format(time.RFC3339),
	})
}

// TopUp handles POST /api/v1/credits/top-up. It creates a hosted checkout
// session and returns the redirect URL. The ledger is only written when the
// confirmation webhook arrives; an abandoned checkout credits nothing.
func (h *Handlers) TopUp(c *fiber.Ctx) error {
	var req topUpRequest
	if err := c.BodyParser(&req); err != nil {
		return failMsg(c, h.logger, apperr.KindValidation, "Invalid request body: "+err.Error())
	}
	if req.Amount < 1 || req.Amount > 500 {
		return failMsg(c, h.logger, apperr.KindValidation, "Amount must be between 1 and 500 dollars")
	}

	recipientID := callerID(c)
	switch req.RecipientType {
	case "", "self":
	case "child":
		if req.RecipientID == "" {
			return failMsg(c, h.logger, apperr.KindValidation, "recipient_id is required for child top-ups")
		}
		ok, err := h.store.IsParentOf(c.Context(), callerID(c), req.RecipientID)
		if err != nil {
			return fail(c, h.logger, err)
		}
		if !ok {
			return failMsg(c, h.logger, apperr.KindNotFound, "Recipient not found")
		}
		recipientID = req.RecipientID
	default:
		return failMsg(c, h.logger, apperr.KindValidation, "recipient_type must be self or child")
	}

	if h.payments == nil {
		return failMsg(c, h.logger, apperr.KindUpstream, "Payments are not available")
	}

	amountMinor := int64(math.Round(req.Amount * 100))
	ctx, cancel := h.providerContext(c)
	defer cancel()

	sess, err := h.payments.CreateCheckoutSession(ctx, payments.CheckoutRequest{
		AmountMinor: amountMinor,
		Currency:    creditCurrency,
		SuccessURL:  h.cfg.CheckoutSuccessURL,
		CancelURL:   h.cfg.CheckoutCancelURL,
		Metadata: map[string]string{
			"user_id":   recipientID,
			"operation": string(domain.OpCreditTopUp),
			"amount":    strconv.FormatInt(amountMinor, 10),
		},
	})
	if err != nil {
		if h.metrics != nil {
			h.metrics.RecordProviderError("payments")
		}
		return fail(c, h.logger, err)
	}

	return c.JSON(topUpResponse{URL: sess.URL, SessionID: sess.ID})
}

// Transfer handles POST /api/v1/credits/transfer. Parents move credits to
// their own children only.
func (h *Handlers) Transfer(c *fiber.Ctx) error {
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return failMsg(c, h.logger, apperr.KindValidation, "Invalid request body: "+err.Error())
	}
	if req.RecipientID == "" {
		return failMsg(c, h.logger, apperr.KindValidation, "recipient_id is required")
	}

	if callerRole(c) != domain.RoleAdmin {
		ok, err := h.store.IsParentOf(c.Context(), callerID(c), req.RecipientID)
		if err != nil {
			return fail(c, h.logger, err)
		}
		if !ok {
			return failMsg(c, h.logger, apperr.KindNotFound, "Recipient not found")
		}
	}

	if err := h.store.Transfer(c.Context(), callerID(c), req.RecipientID, req.Amount, req.Description); err != nil {
		return fail(c, h.logger, err)
	}

	if h.metrics != nil {
		h.metrics.RecordLedgerWrite(string(domain.OpTransferOut))
		h.metrics.RecordLedgerWrite(string(domain.OpTransferIn))
	}

	bal, err := h.store.GetBalance(c.Context(), callerID(c))
	if err != nil {
		return fail(c, h.logger, err)
	}
	return c.JSON(dataMessageResponse{Success: true, Data: bal, Message: "Transfer complete"})
}

// CreditHistory handles GET /api/v1/credits/history.
func (h *Handlers) CreditHistory(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	offset := c.QueryInt("offset", 0)

	entries, err := h.store.LedgerHistory(c.Context(), callerID(c), limit, offset)
	if err != nil {
		return fail(c, h.logger, err)
	}
	if entries == nil {
		entries = []*domain.LedgerEntry{}
	}
	return c.JSON(dataResponse{Success: true, Data: entries})
}

// AdminAdjustCredits handles POST /api/v1/admin/credits/adjust. Every
// adjustment is recorded in the audit log with the actor and reason.
func (h *Handlers) AdminAdjustCredits(c *fiber.Ctx) error {
	var req adjustCreditsRequest
	if err := c.BodyParser(&req); err != nil {
		return failMsg(c, h.logger, apperr.KindValidation, "Invalid request body: "+err.Error())
	}
	if req.UserID == "" {
		return failMsg(c, h.logger, apperr.KindValidation, "user_id is required")
	}
	if req.Amount == 0 {
		return failMsg(c, h.logger, apperr.KindValidation, "Amount must not be zero")
	}
	if req.Reason == "" {
		return failMsg(c, h.logger, apperr.KindValidation, "Reason is required")
	}

	if _, err := h.store.GetUser(c.Context(), req.UserID); err != nil {
		return fail(c, h.logger, err)
	}

	bal, err := h.store.AppendLedgerEntry(c.Context(), &domain.LedgerEntry{
		UserID:      req.UserID,
		Amount:      req.Amount,
		Operation:   domain.OpBalanceAdjustment,
		Description: req.Reason,
	})
	if err != nil {
		return fail(c, h.logger, err)
	}

	if err := h.store.RecordAudit(c.Context(), &domain.AuditRecord{
		ActorID:    callerID(c),
		Action:     "credits.adjust",
		EntityType: "user",
		EntityID:   req.UserID,
		Detail:     fmt.Sprintf("amount=%d reason=%s", req.Amount, req.Reason),
	}); err != nil {
		return fail(c, h.logger, err)
	}

	if h.metrics != nil {
		h.metrics.RecordLedgerWrite(string(domain.OpBalanceAdjustment))
	}
	return c.JSON(dataMessageResponse{Success: true, Data: bal, Message: "Balance adjusted"})
}
