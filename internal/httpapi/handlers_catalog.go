package httpapi

import (
	"github.com/gofiber/fiber/v2"

	"github.com/lumilearn/lumilearn-backend/internal/domain"
	apperr "github.com/lumilearn/lumilearn-backend/internal/errors"
)

// ListProducts handles GET /api/v1/products. Admins may include retired
// items with ?all=true.
func (h *Handlers) ListProducts(c *fiber.Ctx) error {
	activeOnly := true
	if callerRole(c) == domain.RoleAdmin && c.QueryBool("all", false) {
		activeOnly = false
	}
	products, err := h.store.ListProducts(c.Context(), activeOnly)
	if err != nil {
		return fail(c, h.logger, err)
	}
	if products == nil {
		products = []*domain.Product{}
	}
	return c.JSON(dataResponse{Success: true, Data: products})
}

// GetProduct handles GET /api/v1/products/:id.
func (h *Handlers) GetProduct(c *fiber.Ctx) error {
	product, err := h.store.GetProduct(c.Context(), c.Params("id"))
	if err != nil {
		return fail(c, h.logger, err)
	}
	if !product.IsActive && callerRole(c) != domain.RoleAdmin {
		return failMsg(c, h.logger, apperr.KindNotFound, "Product not found")
	}
	return c.JSON(dataResponse{Success: true, Data: product})
}

// AdminCreateProduct handles POST /api/v1/admin/products.
func (h *Handlers) AdminCreateProduct(c *fiber.Ctx) error {
	var req productRequest
	if err := c.BodyParser(&req); err != nil {
		return failMsg(c, h.logger, apperr.KindValidation, "Invalid request body: "+err.Error())
	}
	if req.Name == "" {
		return failMsg(c, h.logger, apperr.KindValidation, "Name is required")
	}
	if req.Amount < 0 || req.CreditPrice < 0 {
		return failMsg(c, h.logger, apperr.KindValidation, "Prices must not be negative")
	}

	product := &domain.Product{
		Name:        req.Name,
		Description: req.Description,
		Amount:      req.Amount,
		CreditPrice: req.CreditPrice,
		Stock:       req.Stock,
		IsActive:    true,
	}
	if err := h.store.CreateProduct(c.Context(), product); err != nil {
		return fail(c, h.logger, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dataResponse{Success: true, Data: product})
}

// AdminUpdateProduct handles PUT /api/v1/admin/products/:id.
func (h *Handlers) AdminUpdateProduct(c *fiber.Ctx) error {
	product, err := h.store.GetProduct(c.Context(), c.Params("id"))
	if err != nil {
		return fail(c, h.logger, err)
	}

	var req productRequest
	if err := c.BodyParser(&req); err != nil {
		return failMsg(c, h.logger, apperr.KindValidation, "Invalid request body: "+err.Error())
	}
	if req.Name != "" {
		product.Name = req.Name
	}
	if req.Description != "" {
		product.Description = req.Description
	}
	if req.Amount > 0 {
		product.Amount = req.Amount
	}
	if req.CreditPrice > 0 {
		product.CreditPrice = req.CreditPrice
	}
	if req.Stock >= 0 {
		product.Stock = req.Stock
	}

	if err := h.store.UpdateProduct(c.Context(), product); err != nil {
		return fail(c, h.logger, err)
	}
	return c.JSON(dataResponse{Success: true, Data: product})
}

// AdminDeactivateProduct handles DELETE /api/v1/admin/products/:id.
func (h *Handlers) AdminDeactivateProduct(c *fiber.Ctx) error {
	if err := h.store.DeactivateProduct(c.Context(), c.Params("id")); err != nil {
		return fail(c, h.logger, err)
	}
	return c.JSON(dataMessageResponse{Success: true, Data: nil, Message: "Product retired"})
}

// ListNotes handles GET /api/v1/notes.
func (h *Handlers) ListNotes(c *fiber.Ctx) error {
	notes, err := h.store.ListNotes(c.Context(), callerID(c))
	if err != nil {
		return fail(c, h.logger, err)
	}
	if notes == nil {
		notes = []*domain.Note{}
	}
	return c.JSON(dataResponse{Success: true, Data: notes})
}

// CreateNote handles POST /api/v1/notes.
func (h *Handlers) CreateNote(c *fiber.Ctx) error {
	var req noteRequest
	if err := c.BodyParser(&req); err != nil {
		return failMsg(c, h.logger, apperr.KindValidation, "Invalid request body: "+err.Error())
	}
	if req.Title == "" {
		return failMsg(c, h.logger, apperr.KindValidation, "Title is required")
	}

	note := &domain.Note{
		UserID: callerID(c),
		Title:  req.Title,
		Body:   req.Body,
	}
	if err := h.store.CreateNote(c.Context(), note); err != nil {
		return fail(c, h.logger, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dataResponse{Success: true, Data: note})
}

// GetNote handles GET /api/v1/notes/:id.
func (h *Handlers) GetNote(c *fiber.Ctx) error {
	note, err := h.store.GetNote(c.Context(), c.Params("id"), callerID(c))
	if err != nil {
		return fail(c, h.logger, err)
	}
	return c.JSON(dataResponse{Success: true, Data: note})
}

// UpdateNote handles PUT /api/v1/notes/:id.
func (h *Handlers) UpdateNote(c *fiber.Ctx) error {
	note, err := h.store.GetNote(c.Context(), c.Params("id"), callerID(c))
	if err != nil {
		return fail(c, h.logger, err)
	}

	var req noteRequest
	if err := c.BodyParser(&req); err != nil {
		return failMsg(c, h.logger, apperr.KindValidation, "Invalid request body: "+err.Error())
	}
	if req.Title != "" {
		note.Title = req.Title
	}
	note.Body = req.Body

	if err := h.store.UpdateNote(c.Context(), note); err != nil {
		return fail(c, h.logger, err)
	}
	return c.JSON(dataResponse{Success: true, Data: note})
}

// DeleteNote handles DELETE /api/v1/notes/:id.
func (h *Handlers) DeleteNote(c *fiber.Ctx) error {
	if err := h.store.DeleteNote(c.Context(), c.Params("id"), callerID(c)); err != nil {
		return fail(c, h.logger, err)
	}
	return c.JSON(dataMessageResponse{Success: true, Data: nil, Message: "Note deleted"})
}

// ListWishlist handles GET /api/v1/wishlist.
func (h *Handlers) ListWishlist(c *fiber.Ctx) error {
	items, err := h.store.ListWishlist(c.Context(), callerID(c))
	if err != nil {
		return fail(c, h.logger, err)
	}
	if items == nil {
		items = []*domain.WishlistItem{}
	}
	return c.JSON(dataResponse{Success: true, Data: items})
}

// AddWishlistItem handles POST /api/v1/wishlist.
func (h *Handlers) AddWishlistItem(c *fiber.Ctx) error {
	var req wishlistRequest
	if err := c.BodyParser(&req); err != nil {
		return failMsg(c, h.logger, apperr.KindValidation, "Invalid request body: "+err.Error())
	}
	if req.ProductID == "" {
		return failMsg(c, h.logger, apperr.KindValidation, "product_id is required")
	}

	product, err := h.store.GetProduct(c.Context(), req.ProductID)
	if err != nil {
		return fail(c, h.logger, err)
	}
	if !product.IsActive {
		return failMsg(c, h.logger, apperr.KindNotFound, "Product not found")
	}

	item := &domain.WishlistItem{
		UserID:    callerID(c),
		ProductID: product.ID,
	}
	if err := h.store.AddWishlistItem(c.Context(), item); err != nil {
		return fail(c, h.logger, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dataResponse{Success: true, Data: item})
}

// RemoveWishlistItem handles DELETE /api/v1/wishlist/:id.
func (h *Handlers) RemoveWishlistItem(c *fiber.Ctx) error {
	if err := h.store.RemoveWishlistItem(c.Context(), c.Params("id"), callerID(c)); err != nil {
		return fail(c, h.logger, err)
	}
	return c.JSON(dataMessageResponse{Success: true, Data: nil, Message: "Item removed"})
}
