package httpapi

import (
	"encoding/base64"

	"github.com/gofiber/fiber/v2"

	"github.com/lumilearn/lumilearn-backend/internal/domain"
	apperr "github.com/lumilearn/lumilearn-backend/internal/errors"
	"github.com/lumilearn/lumilearn-backend/internal/llm"
	"github.com/lumilearn/lumilearn-backend/internal/tts"
)

// chatHistoryWindow is how many prior messages are replayed to the model.
const chatHistoryWindow = 20

// activeCharacter resolves a character through the LRU cache, rejecting
// soft-deleted characters.
func (h *Handlers) activeCharacter(c *fiber.Ctx, id string) (*domain.Character, error) {
	if ch, ok := h.characters.Get(id); ok {
		if !ch.IsActive {
			return nil, apperr.E(apperr.KindNotFound, "Character not found")
		}
		return ch, nil
	}

	ch, err := h.store.GetCharacter(c.Context(), id)
	if err != nil {
		return nil, err
	}
	h.characters.Add(id, ch)
	if !ch.IsActive {
		return nil, apperr.E(apperr.KindNotFound, "Character not found")
	}
	return ch, nil
}

// ListCharacters handles GET /api/v1/characters. Admins may list inactive
// characters with ?all=true.
func (h *Handlers) ListCharacters(c *fiber.Ctx) error {
	activeOnly := true
	if callerRole(c) == domain.RoleAdmin && c.QueryBool("all", false) {
		activeOnly = false
	}
	chars, err := h.store.ListCharacters(c.Context(), activeOnly)
	if err != nil {
		return fail(c, h.logger, err)
	}
	if chars == nil {
		chars = []*domain.Character{}
	}
	return c.JSON(dataResponse{Success: true, Data: chars})
}

// GetCharacter handles GET /api/v1/characters/:id.
func (h *Handlers) GetCharacter(c *fiber.Ctx) error {
	ch, err := h.activeCharacter(c, c.Params("id"))
	if err != nil {
		return fail(c, h.logger, err)
	}
	return c.JSON(dataResponse{Success: true, Data: ch})
}

// AdminCreateCharacter handles POST /api/v1/admin/characters.
func (h *Handlers) AdminCreateCharacter(c *fiber.Ctx) error {
	var req characterRequest
	if err := c.BodyParser(&req); err != nil {
		return failMsg(c, h.logger, apperr.KindValidation, "Invalid request body: "+err.Error())
	}
	if req.Name == "" || req.Persona == "" {
		return failMsg(c, h.logger, apperr.KindValidation, "Name and persona are required")
	}

	ch := &domain.Character{
		Name:      req.Name,
		Persona:   req.Persona,
		VoiceID:   req.VoiceID,
		AvatarURL: req.AvatarURL,
		IsActive:  true,
	}
	if err := h.store.CreateCharacter(c.Context(), ch); err != nil {
		return fail(c, h.logger, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dataResponse{Success: true, Data: ch})
}

// AdminUpdateCharacter handles PUT /api/v1/admin/characters/:id.
func (h *Handlers) AdminUpdateCharacter(c *fiber.Ctx) error {
	ch, err := h.store.GetCharacter(c.Context(), c.Params("id"))
	if err != nil {
		return fail(c, h.logger, err)
	}

	var req characterRequest
	if err := c.BodyParser(&req); err != nil {
		return failMsg(c, h.logger, apperr.KindValidation, "Invalid request body: "+err.Error())
	}
	if req.Name != "" {
		ch.Name = req.Name
	}
	if req.Persona != "" {
		ch.Persona = req.Persona
	}
	if req.VoiceID != "" {
		ch.VoiceID = req.VoiceID
	}
	if req.AvatarURL != "" {
		ch.AvatarURL = req.AvatarURL
	}

	if err := h.store.UpdateCharacter(c.Context(), ch); err != nil {
		return fail(c, h.logger, err)
	}
	h.characters.Remove(ch.ID)
	return c.JSON(dataResponse{Success: true, Data: ch})
}

// AdminDeactivateCharacter handles DELETE /api/v1/admin/characters/:id.
// Characters referenced by chat history are never hard-deleted.
func (h *Handlers) AdminDeactivateCharacter(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := h.store.DeactivateCharacter(c.Context(), id); err != nil {
		return fail(c, h.logger, err)
	}
	h.characters.Remove(id)
	return c.JSON(dataMessageResponse{Success: true, Data: nil, Message: "Character deactivated"})
}

// Speak handles POST /api/v1/characters/:id/speak.
func (h *Handlers) Speak(c *fiber.Ctx) error {
	ch, err := h.activeCharacter(c, c.Params("id"))
	if err != nil {
		return fail(c, h.logger, err)
	}
	if ch.VoiceID == "" {
		return failMsg(c, h.logger, apperr.KindValidation, "Character has no voice configured")
	}

	var req speakRequest
	if err := c.BodyParser(&req); err != nil {
		return failMsg(c, h.logger, apperr.KindValidation, "Invalid request body: "+err.Error())
	}
	if req.Text == "" {
		return failMsg(c, h.logger, apperr.KindValidation, "Text is required")
	}

	if h.tts == nil {
		return failMsg(c, h.logger, apperr.KindUpstream, "Speech synthesis is not available")
	}

	ctx, cancel := h.providerContext(c)
	defer cancel()
	res, err := h.tts.Synthesize(ctx, tts.SynthesisRequest{
		Text:    req.Text,
		VoiceID: ch.VoiceID,
	})
	if err != nil {
		if h.metrics != nil {
			h.metrics.RecordProviderError("tts")
		}
		return fail(c, h.logger, err)
	}

	return c.JSON(speakResponse{
		Audio:       base64.StdEncoding.EncodeToString(res.Audio),
		ContentType: res.ContentType,
	})
}

// CreateChatThread handles POST /api/v1/chat/threads.
func (h *Handlers) CreateChatThread(c *fiber.Ctx) error {
	var req chatThreadRequest
	if err := c.BodyParser(&req); err != nil {
		return failMsg(c, h.logger, apperr.KindValidation, "Invalid request body: "+err.Error())
	}
	if req.CharacterID == "" {
		return failMsg(c, h.logger, apperr.KindValidation, "character_id is required")
	}

	ch, err := h.activeCharacter(c, req.CharacterID)
	if err != nil {
		return fail(c, h.logger, err)
	}

	thread := &domain.ChatThread{
		UserID:      callerID(c),
		CharacterID: ch.ID,
		Title:       req.Title,
	}
	if err := h.store.CreateChatThread(c.Context(), thread); err != nil {
		return fail(c, h.logger, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dataResponse{Success: true, Data: thread})
}

// ListChatThreads handles GET /api/v1/chat/threads.
func (h *Handlers) ListChatThreads(c *fiber.Ctx) error {
	threads, err := h.store.ListChatThreads(c.Context(), callerID(c))
	if err != nil {
		return fail(c, h.logger, err)
	}
	if threads == nil {
		threads = []*domain.ChatThread{}
	}
	return c.JSON(dataResponse{Success: true, Data: threads})
}

// ListChatMessages handles GET /api/v1/chat/threads/:id/messages.
func (h *Handlers) ListChatMessages(c *fiber.Ctx) error {
	thread, err := h.store.GetChatThread(c.Context(), c.Params("id"), callerID(c))
	if err != nil {
		return fail(c, h.logger, err)
	}

	msgs, err := h.store.ListChatMessages(c.Context(), thread.ID, c.QueryInt("limit", 100))
	if err != nil {
		return fail(c, h.logger, err)
	}
	if msgs == nil {
		msgs = []*domain.ChatMessage{}
	}
	return c.JSON(dataResponse{Success: true, Data: msgs})
}

// PostChatMessage handles POST /api/v1/chat/threads/:id/messages. The user
// turn is persisted first; the persona reply is generated from the thread
// history and persisted as the assistant turn.
func (h *Handlers) PostChatMessage(c *fiber.Ctx) error {
	var req chatMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return failMsg(c, h.logger, apperr.KindValidation, "Invalid request body: "+err.Error())
	}
	if req.Content == "" {
		return failMsg(c, h.logger, apperr.KindValidation, "Content is required")
	}

	thread, err := h.store.GetChatThread(c.Context(), c.Params("id"), callerID(c))
	if err != nil {
		return fail(c, h.logger, err)
	}
	ch, err := h.activeCharacter(c, thread.CharacterID)
	if err != nil {
		return fail(c, h.logger, err)
	}
	if h.llm == nil {
		return failMsg(c, h.logger, apperr.KindUpstream, "Chat is not available")
	}

	userMsg := &domain.ChatMessage{
		ThreadID: thread.ID,
		Role:     llm.RoleUser,
		Content:  req.Content,
	}
	if err := h.store.AppendChatMessage(c.Context(), userMsg); err != nil {
		return fail(c, h.logger, err)
	}

	history, err := h.store.ListChatMessages(c.Context(), thread.ID, chatHistoryWindow)
	if err != nil {
		return fail(c, h.logger, err)
	}
	msgs := make([]llm.Message, 0, len(history))
	for _, m := range history {
		msgs = append(msgs, llm.Message{Role: m.Role, Content: m.Content})
	}

	ctx, cancel := h.providerContext(c)
	defer cancel()
	resp, err := h.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: ch.Persona,
		Messages:     msgs,
	})
	if err != nil {
		if h.metrics != nil {
			h.metrics.RecordProviderError("llm")
		}
		return fail(c, h.logger, err)
	}

	reply := &domain.ChatMessage{
		ThreadID: thread.ID,
		Role:     llm.RoleAssistant,
		Content:  resp.Text,
	}
	if err := h.store.AppendChatMessage(c.Context(), reply); err != nil {
		return fail(c, h.logger, err)
	}

	return c.JSON(chatReplyResponse{Success: true, Message: userMsg, Reply: reply})
}
