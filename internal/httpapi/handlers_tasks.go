package httpapi

import (
	"encoding/json"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/lumilearn/lumilearn-backend/internal/domain"
	apperr "github.com/lumilearn/lumilearn-backend/internal/errors"
	"github.com/lumilearn/lumilearn-backend/internal/llm"
)

// CreateTask handles POST /api/v1/tasks.
func (h *Handlers) CreateTask(c *fiber.Ctx) error {
	var req createTaskRequest
	if err := c.BodyParser(&req); err != nil {
		return failMsg(c, h.logger, apperr.KindValidation, "Invalid request body: "+err.Error())
	}
	if req.Name == "" {
		return failMsg(c, h.logger, apperr.KindValidation, "Task name is required")
	}
	if req.AssigneeID == "" {
		return failMsg(c, h.logger, apperr.KindValidation, "Assignee is required")
	}
	if req.CreditReward < 0 {
		return failMsg(c, h.logger, apperr.KindValidation, "Credit reward must not be negative")
	}
	recurrence := domain.RecurrenceFrequency(req.Recurrence)
	if !recurrence.Valid() {
		return failMsg(c, h.logger, apperr.KindValidation, "Recurrence must be one of DAILY, WEEKLY, MONTHLY")
	}

	task := &domain.Task{
		Name:          req.Name,
		CreatorID:     callerID(c),
		AssigneeID:    req.AssigneeID,
		Subject:       req.Subject,
		RequiredScore: req.RequiredScore,
		CreditReward:  req.CreditReward,
		Recurrence:    recurrence,
		Status:        domain.TaskOpen,
	}
	if err := h.store.CreateTask(c.Context(), task); err != nil {
		return fail(c, h.logger, err)
	}

	return c.Status(fiber.StatusCreated).JSON(dataResponse{Success: true, Data: task})
}

// ListTasks handles GET /api/v1/tasks. Students see tasks assigned to them,
// everyone else sees tasks they created.
func (h *Handlers) ListTasks(c *fiber.Ctx) error {
	var (
		tasks []*domain.Task
		err   error
	)
	if callerRole(c) == domain.RoleStudent {
		tasks, err = h.store.ListTasksByAssignee(c.Context(), callerID(c))
	} else {
		tasks, err = h.store.ListTasksByCreator(c.Context(), callerID(c))
	}
	if err != nil {
		return fail(c, h.logger, err)
	}
	if tasks == nil {
		tasks = []*domain.Task{}
	}
	return c.JSON(dataResponse{Success: true, Data: tasks})
}

// GetTask handles GET /api/v1/tasks/:id.
func (h *Handlers) GetTask(c *fiber.Ctx) error {
	task, err := h.store.GetTask(c.Context(), c.Params("id"))
	if err != nil {
		return fail(c, h.logger, err)
	}
	if !h.canSeeTask(c, task) {
		return failMsg(c, h.logger, apperr.KindNotFound, "Task not found")
	}
	return c.JSON(dataResponse{Success: true, Data: task})
}

// canSeeTask hides tasks from users who are neither party to them.
func (h *Handlers) canSeeTask(c *fiber.Ctx, task *domain.Task) bool {
	if callerRole(c) == domain.RoleAdmin {
		return true
	}
	id := callerID(c)
	return task.CreatorID == id || task.AssigneeID == id
}

// CloseTask handles POST /api/v1/tasks/:id/close. Only the creator may
// close, and only from OPEN.
func (h *Handlers) CloseTask(c *fiber.Ctx) error {
	task, err := h.store.CloseTask(c.Context(), c.Params("id"), callerID(c))
	if err != nil {
		return fail(c, h.logger, err)
	}

	if h.metrics != nil {
		h.metrics.RecordTransition("task", string(domain.TaskClosed))
	}
	return c.JSON(taskTransitionResponse{
		Success: true,
		Message: "Task closed",
		Task:    taskSummary{ID: task.ID, Name: task.Name, Status: task.Status},
	})
}

// StartTask handles POST /api/v1/tasks/:id/start. Only the assignee may
// start, and only from OPEN.
func (h *Handlers) StartTask(c *fiber.Ctx) error {
	task, err := h.store.StartTask(c.Context(), c.Params("id"), callerID(c))
	if err != nil {
		return fail(c, h.logger, err)
	}

	if h.metrics != nil {
		h.metrics.RecordTransition("task", string(domain.TaskInProgress))
	}
	return c.JSON(taskTransitionResponse{
		Success: true,
		Message: "Task started",
		Task:    taskSummary{ID: task.ID, Name: task.Name, Status: task.Status},
	})
}

// ListThreads handles GET /api/v1/tasks/:id/threads.
func (h *Handlers) ListThreads(c *fiber.Ctx) error {
	task, err := h.store.GetTask(c.Context(), c.Params("id"))
	if err != nil {
		return fail(c, h.logger, err)
	}
	if !h.canSeeTask(c, task) {
		return failMsg(c, h.logger, apperr.KindNotFound, "Task not found")
	}

	threads, err := h.store.ListThreadsByTask(c.Context(), task.ID)
	if err != nil {
		return fail(c, h.logger, err)
	}
	if threads == nil {
		threads = []*domain.TaskThread{}
	}
	return c.JSON(dataResponse{Success: true, Data: threads})
}

// CreateThread handles POST /api/v1/tasks/:id/threads. A new occurrence is
// seeded with generated quiz content when the AI provider is configured.
func (h *Handlers) CreateThread(c *fiber.Ctx) error {
	task, err := h.store.GetTask(c.Context(), c.Params("id"))
	if err != nil {
		return fail(c, h.logger, err)
	}
	if task.CreatorID != callerID(c) && callerRole(c) != domain.RoleAdmin {
		return failMsg(c, h.logger, apperr.KindForbidden, "Only the task creator may create occurrences")
	}
	if task.Status.IsTerminal() {
		return fail(c, h.logger, apperr.Ef(apperr.KindInvalidState,
			"cannot create an occurrence for a task in status %s", task.Status))
	}

	thread := &domain.TaskThread{
		TaskID: task.ID,
		Status: domain.ThreadOpen,
	}
	if content := h.generateQuizContent(c, task); content != nil {
		thread.GeneratedContent = content
	}

	if err := h.store.CreateThread(c.Context(), thread); err != nil {
		return fail(c, h.logger, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dataResponse{Success: true, Data: thread})
}

// generateQuizContent asks the AI provider for quiz questions for the
// task's subject. A provider failure degrades to an empty occurrence
// rather than failing the request.
func (h *Handlers) generateQuizContent(c *fiber.Ctx, task *domain.Task) json.RawMessage {
	if h.llm == nil {
		return nil
	}

	prompt := fmt.Sprintf(
		"Generate a short quiz of 5 questions on the subject %q for a student. "+
			"Respond with a JSON object of the form "+
			`{"questions":[{"question":"...","options":["..."],"answer":0}]}`+
			" and nothing else.", task.Subject)

	resp, err := h.llm.Complete(c.Context(), llm.CompletionRequest{
		SystemPrompt: "You are a tutor generating quiz content for children. Output only valid JSON.",
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: prompt}},
	})
	if err != nil {
		h.logger.Warn().Err(err).Str("task_id", task.ID).Msg("quiz generation failed")
		if h.metrics != nil {
			h.metrics.RecordProviderError("llm")
		}
		return nil
	}

	if !json.Valid([]byte(resp.Text)) {
		h.logger.Warn().Str("task_id", task.ID).Msg("quiz generation returned invalid JSON")
		return nil
	}
	return json.RawMessage(resp.Text)
}

// CompleteThread handles POST /api/v1/tasks/complete/:threadId. The credit
// reward is written to the ledger in the same transaction as the status
// transition, so a retried call can never double-credit.
func (h *Handlers) CompleteThread(c *fiber.Ctx) error {
	reward, err := h.store.CompleteThread(c.Context(), c.Params("threadId"), callerID(c))
	if err != nil {
		return fail(c, h.logger, err)
	}

	if h.metrics != nil {
		h.metrics.RecordTransition("task_thread", string(domain.ThreadCompleted))
		h.metrics.RecordLedgerWrite(string(domain.OpTaskReward))
	}
	return c.JSON(completeThreadResponse{
		Success:       true,
		Message:       "Task completed",
		CreditsEarned: reward,
	})
}

// UpdateGeneration handles PUT /api/v1/tasks/update-generation/:threadId.
func (h *Handlers) UpdateGeneration(c *fiber.Ctx) error {
	var req updateGenerationRequest
	if err := c.BodyParser(&req); err != nil {
		return failMsg(c, h.logger, apperr.KindValidation, "Invalid request body: "+err.Error())
	}
	if len(req.GeneratedContent) == 0 {
		return failMsg(c, h.logger, apperr.KindValidation, "generated_content is required")
	}
	if !json.Valid(req.GeneratedContent) {
		return failMsg(c, h.logger, apperr.KindValidation, "generated_content must be valid JSON")
	}

	thread, err := h.store.UpdateThreadContent(c.Context(), c.Params("threadId"), req.GeneratedContent)
	if err != nil {
		return fail(c, h.logger, err)
	}
	return c.JSON(dataResponse{Success: true, Data: thread})
}
