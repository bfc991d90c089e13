package httpapi

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/lumilearn/lumilearn-backend/internal/domain"
	apperr "github.com/lumilearn/lumilearn-backend/internal/errors"
	"github.com/lumilearn/lumilearn-backend/internal/health"
)

// Me handles GET /api/v1/me.
func (h *Handlers) Me(c *fiber.Ctx) error {
	user, err := h.store.GetUser(c.Context(), callerID(c))
	if err != nil {
		return fail(c, h.logger, err)
	}
	return c.JSON(dataResponse{Success: true, Data: user})
}

// Logout handles POST /api/v1/auth/logout. The session's token ID goes on
// the denylist for the remainder of its validity.
func (h *Handlers) Logout(c *fiber.Ctx) error {
	claims, _ := c.Locals("claims").(*Claims)
	if claims == nil || h.denylist == nil {
		// Nothing to revoke in header-trust mode.
		return c.JSON(dataMessageResponse{Success: true, Data: nil, Message: "Logged out"})
	}

	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl > 0 {
		if err := h.denylist.Revoke(c.Context(), claims.ID, ttl); err != nil {
			return fail(c, h.logger, err)
		}
	}
	return c.JSON(dataMessageResponse{Success: true, Data: nil, Message: "Logged out"})
}

// DevToken handles POST /api/v1/auth/dev-token. Only registered in the
// development environment; production tokens come from the auth provider.
func (h *Handlers) DevToken(c *fiber.Ctx) error {
	var req devTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return failMsg(c, h.logger, apperr.KindValidation, "Invalid request body: "+err.Error())
	}
	user, err := h.store.GetUser(c.Context(), req.UserID)
	if err != nil {
		return fail(c, h.logger, err)
	}

	ttl := h.cfg.SessionTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	token, err := IssueToken(h.cfg.JWTSecret, user.ID, user.Role, ttl)
	if err != nil {
		return fail(c, h.logger, apperr.Wrap(apperr.KindInternal, "failed to issue token", err))
	}
	return c.JSON(dataResponse{Success: true, Data: fiber.Map{"token": token, "user": user}})
}

// ListChildren handles GET /api/v1/users/children.
func (h *Handlers) ListChildren(c *fiber.Ctx) error {
	children, err := h.store.ListChildren(c.Context(), callerID(c))
	if err != nil {
		return fail(c, h.logger, err)
	}
	if children == nil {
		children = []*domain.User{}
	}
	return c.JSON(dataResponse{Success: true, Data: children})
}

// AdminCreateUser handles POST /api/v1/admin/users.
func (h *Handlers) AdminCreateUser(c *fiber.Ctx) error {
	var req createUserRequest
	if err := c.BodyParser(&req); err != nil {
		return failMsg(c, h.logger, apperr.KindValidation, "Invalid request body: "+err.Error())
	}
	if req.Email == "" {
		return failMsg(c, h.logger, apperr.KindValidation, "Email is required")
	}
	role := domain.Role(req.Role)
	if !role.Valid() {
		return failMsg(c, h.logger, apperr.KindValidation, "Role must be one of parent, student, teacher, admin")
	}
	if role == domain.RoleStudent && req.ParentID == "" {
		return failMsg(c, h.logger, apperr.KindValidation, "Student accounts require a parent_id")
	}
	if req.ParentID != "" {
		parent, err := h.store.GetUser(c.Context(), req.ParentID)
		if err != nil {
			return fail(c, h.logger, err)
		}
		if parent.Role != domain.RoleParent {
			return failMsg(c, h.logger, apperr.KindValidation, "parent_id must reference a parent account")
		}
	}

	user := &domain.User{
		Email:       req.Email,
		DisplayName: req.DisplayName,
		Role:        role,
		ParentID:    req.ParentID,
	}
	if err := h.store.CreateUser(c.Context(), user); err != nil {
		return fail(c, h.logger, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dataResponse{Success: true, Data: user})
}

// AdminListAudit handles GET /api/v1/admin/audit/:entityType/:entityId.
func (h *Handlers) AdminListAudit(c *fiber.Ctx) error {
	records, err := h.store.ListAuditRecords(c.Context(), c.Params("entityType"), c.Params("entityId"))
	if err != nil {
		return fail(c, h.logger, err)
	}
	if records == nil {
		records = []*domain.AuditRecord{}
	}
	return c.JSON(dataResponse{Success: true, Data: records})
}

// GetRefTable handles GET /api/v1/refdata/:table.
func (h *Handlers) GetRefTable(c *fiber.Ctx) error {
	if h.refdata == nil {
		return failMsg(c, h.logger, apperr.KindNotFound, "Reference data is not configured")
	}
	table := h.refdata.Table(c.Params("table"))
	if table == nil {
		return failMsg(c, h.logger, apperr.KindNotFound, "Unknown reference table")
	}
	return c.JSON(dataResponse{Success: true, Data: table})
}

// AdminReloadRefData handles POST /api/v1/admin/refdata/reload. The whole
// snapshot is swapped atomically; in-flight readers keep the old one.
func (h *Handlers) AdminReloadRefData(c *fiber.Ctx) error {
	if h.refdata == nil {
		return failMsg(c, h.logger, apperr.KindNotFound, "Reference data is not configured")
	}
	if err := h.refdata.Reload(); err != nil {
		return fail(c, h.logger, apperr.Wrap(apperr.KindInternal, "reference data reload failed", err))
	}
	return c.JSON(dataMessageResponse{Success: true, Data: h.refdata.TableNames(), Message: "Reference data reloaded"})
}

// Liveness handles GET /healthz.
func (h *Handlers) Liveness(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// Readiness handles GET /readyz.
func (h *Handlers) Readiness(c *fiber.Ctx) error {
	if h.checker != nil {
		results := h.checker.RunAll(c.Context())
		if health.Overall(results) == health.StatusDown {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "not_ready"})
		}
	}
	return c.JSON(fiber.Map{"status": "ready"})
}

// HealthDetail handles GET /api/v1/health.
func (h *Handlers) HealthDetail(c *fiber.Ctx) error {
	integrations := map[string]string{}
	overall := health.StatusOK
	if h.checker != nil {
		results := h.checker.RunAll(c.Context())
		for name, status := range results {
			integrations[name] = string(status)
		}
		overall = health.Overall(results)
	}

	status := "ok"
	if overall != health.StatusOK {
		status = "degraded"
	}
	return c.JSON(healthDetailResponse{
		Status:       status,
		Integrations: integrations,
		Uptime:       time.Since(h.startTime).Round(time.Second).String(),
		Version:      "1.0.0",
	})
}
