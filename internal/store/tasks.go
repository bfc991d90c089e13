package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lumilearn/lumilearn-backend/internal/domain"
	apperr "github.com/lumilearn/lumilearn-backend/internal/errors"
)

// CreateTask inserts a new task template with status OPEN.
func (s *Store) CreateTask(ctx context.Context, t *domain.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !t.Status.Valid() {
		return apperr.Ef(apperr.KindValidation, "invalid task status: %s", t.Status)
	}
	if !t.Recurrence.Valid() {
		return apperr.Ef(apperr.KindValidation, "invalid recurrence: %s", t.Recurrence)
	}
	if t.ID == "" {
		t.ID = newID()
	}

	now := nowMs()
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO tasks (id, name, creator_id, assignee_id, subject, required_score,
		credit_reward, recurrence, status, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.CreatorID, t.AssigneeID, t.Subject, t.RequiredScore,
		t.CreditReward, string(t.Recurrence), string(t.Status), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	t.CreatedAt = msToTime(now)
	t.UpdatedAt = msToTime(now)
	return nil
}

func scanTask(row interface{ Scan(...any) error }) (*domain.Task, error) {
	t := &domain.Task{}
	var created, updated int64
	var recurrence, status string
	err := row.Scan(&t.ID, &t.Name, &t.CreatorID, &t.AssigneeID, &t.Subject,
		&t.RequiredScore, &t.CreditReward, &recurrence, &status, &created, &updated)
	if err != nil {
		return nil, err
	}
	t.Recurrence = domain.RecurrenceFrequency(recurrence)
	t.Status = domain.TaskStatus(status)
	t.CreatedAt = msToTime(created)
	t.UpdatedAt = msToTime(updated)
	return t, nil
}

const taskColumns = `id, name, creator_id, assignee_id, subject, required_score,
	credit_reward, recurrence, status, created_at, updated_at`

// GetTask retrieves a task by ID.
func (s *Store) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, apperr.E(apperr.KindNotFound, "task not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return t, nil
}

// ListTasksByCreator returns tasks created by the given user.
func (s *Store) ListTasksByCreator(ctx context.Context, creatorID string) ([]*domain.Task, error) {
	return s.listTasks(ctx, `creator_id = ?`, creatorID)
}

// ListTasksByAssignee returns tasks assigned to the given user.
func (s *Store) ListTasksByAssignee(ctx context.Context, assigneeID string) ([]*domain.Task, error) {
	return s.listTasks(ctx, `assignee_id = ?`, assigneeID)
}

func (s *Store) listTasks(ctx context.Context, where string, args ...any) ([]*domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE `+where+` ORDER BY created_at DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// CloseTask transitions a task OPEN → CLOSED. Only the creator may close.
// The task must currently be OPEN; any other status is reported back in the
// INVALID_STATE error.
func (s *Store) CloseTask(ctx context.Context, taskID, callerID string) (*domain.Task, error) {
	return s.transitionTask(ctx, taskID, callerID, "creator_id", domain.TaskOpen, domain.TaskClosed)
}

// StartTask transitions a task OPEN → IN_PROGRESS. Only the assignee may start.
func (s *Store) StartTask(ctx context.Context, taskID, callerID string) (*domain.Task, error) {
	return s.transitionTask(ctx, taskID, callerID, "assignee_id", domain.TaskOpen, domain.TaskInProgress)
}

// transitionTask performs a conditional single-row status update gated on the
// current status. The status is re-read inside the write path rather than
// trusted from the client.
func (s *Store) transitionTask(ctx context.Context, taskID, callerID, ownerCol string, from, to domain.TaskStatus) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = ? AND `+ownerCol+` = ?`, taskID, callerID)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, apperr.E(apperr.KindNotFound, "task not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load task: %w", err)
	}

	if t.Status != from {
		return nil, apperr.Ef(apperr.KindInvalidState,
			"task cannot transition to %s: current status is %s", to, t.Status)
	}

	now := nowMs()
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(to), now, taskID, string(from))
	if err != nil {
		return nil, fmt.Errorf("failed to update task status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Lost a race with a concurrent transition; report the fresh status.
		fresh, ferr := scanTask(s.db.QueryRowContext(ctx,
			`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, taskID))
		if ferr == nil {
			return nil, apperr.Ef(apperr.KindInvalidState,
				"task cannot transition to %s: current status is %s", to, fresh.Status)
		}
		return nil, apperr.Ef(apperr.KindInvalidState, "task is no longer %s", from)
	}

	t.Status = to
	t.UpdatedAt = msToTime(now)
	return t, nil
}

// ExpireOverdueTasks marks OPEN tasks older than cutoffMs as EXPIRED.
// Returns the number of tasks transitioned.
func (s *Store) ExpireOverdueTasks(ctx context.Context, cutoffMs int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, updated_at = ? WHERE status = ? AND created_at < ?`,
		string(domain.TaskExpired), nowMs(), string(domain.TaskOpen), cutoffMs)
	if err != nil {
		return 0, fmt.Errorf("failed to expire tasks: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// --- Task threads ---

// CreateThread inserts a new thread for a task with status OPEN.
func (s *Store) CreateThread(ctx context.Context, th *domain.TaskThread) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if th.ID == "" {
		th.ID = newID()
	}
	now := nowMs()
	var content sql.NullString
	if len(th.GeneratedContent) > 0 {
		content = sql.NullString{String: string(th.GeneratedContent), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO task_threads (id, task_id, generated_content, status, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)`,
		th.ID, th.TaskID, content, string(domain.ThreadOpen), now, now)
	if err != nil {
		return fmt.Errorf("failed to create thread: %w", err)
	}
	th.Status = domain.ThreadOpen
	th.CreatedAt = msToTime(now)
	th.UpdatedAt = msToTime(now)
	return nil
}

func scanThread(row interface{ Scan(...any) error }) (*domain.TaskThread, error) {
	th := &domain.TaskThread{}
	var content sql.NullString
	var status string
	var created, updated int64
	var completed sql.NullInt64
	err := row.Scan(&th.ID, &th.TaskID, &content, &status, &created, &updated, &completed)
	if err != nil {
		return nil, err
	}
	if content.Valid {
		th.GeneratedContent = json.RawMessage(content.String)
	}
	th.Status = domain.ThreadStatus(status)
	th.CreatedAt = msToTime(created)
	th.UpdatedAt = msToTime(updated)
	if completed.Valid {
		t := msToTime(completed.Int64)
		th.CompletedAt = &t
	}
	return th, nil
}

const threadColumns = `id, task_id, generated_content, status, created_at, updated_at, completed_at`

// GetThread retrieves a thread by ID.
func (s *Store) GetThread(ctx context.Context, id string) (*domain.TaskThread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+threadColumns+` FROM task_threads WHERE id = ?`, id)
	th, err := scanThread(row)
	if err == sql.ErrNoRows {
		return nil, apperr.E(apperr.KindNotFound, "task thread not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get thread: %w", err)
	}
	return th, nil
}

// ListThreadsByTask returns all threads for a task, newest first.
func (s *Store) ListThreadsByTask(ctx context.Context, taskID string) ([]*domain.TaskThread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+threadColumns+` FROM task_threads WHERE task_id = ? ORDER BY created_at DESC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}
	defer rows.Close()

	var threads []*domain.TaskThread
	for rows.Next() {
		th, err := scanThread(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan thread: %w", err)
		}
		threads = append(threads, th)
	}
	return threads, rows.Err()
}

// UpdateThreadContent replaces the generated content payload of a thread.
func (s *Store) UpdateThreadContent(ctx context.Context, threadID string, content json.RawMessage) (*domain.TaskThread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := nowMs()
	res, err := s.db.ExecContext(ctx,
		`UPDATE task_threads SET generated_content = ?, updated_at = ? WHERE id = ?`,
		string(content), now, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to update thread content: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, apperr.E(apperr.KindNotFound, "task thread not found")
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+threadColumns+` FROM task_threads WHERE id = ?`, threadID)
	th, err := scanThread(row)
	if err != nil {
		return nil, fmt.Errorf("failed to reload thread: %w", err)
	}
	return th, nil
}

// CompleteThread transitions a thread OPEN → COMPLETED and, in the same
// transaction, credits the parent task's reward to the assignee's ledger.
// Only the assignee of the parent task may complete. Completing an already
// COMPLETED thread is an INVALID_STATE error, not a no-op.
func (s *Store) CompleteThread(ctx context.Context, threadID, callerID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRowContext(ctx, `
	SELECT th.id, th.status, t.assignee_id, t.credit_reward
	FROM task_threads th JOIN tasks t ON t.id = th.task_id
	WHERE th.id = ?`, threadID)

	var id, status, assigneeID string
	var reward int64
	err := row.Scan(&id, &status, &assigneeID, &reward)
	if err == sql.ErrNoRows {
		return 0, apperr.E(apperr.KindNotFound, "task thread not found")
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load thread: %w", err)
	}

	if callerID != assigneeID {
		return 0, apperr.E(apperr.KindForbidden, "only the task assignee may complete this thread")
	}
	if domain.ThreadStatus(status) != domain.ThreadOpen {
		return 0, apperr.Ef(apperr.KindInvalidState,
			"thread cannot be completed: current status is %s", status)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := nowMs()
	res, err := tx.ExecContext(ctx,
		`UPDATE task_threads SET status = ?, updated_at = ?, completed_at = ? WHERE id = ? AND status = ?`,
		string(domain.ThreadCompleted), now, now, threadID, string(domain.ThreadOpen))
	if err != nil {
		return 0, fmt.Errorf("failed to complete thread: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, apperr.E(apperr.KindInvalidState, "thread is no longer OPEN")
	}

	if reward > 0 {
		if err := appendLedgerTx(ctx, tx, &domain.LedgerEntry{
			ID:          newID(),
			UserID:      assigneeID,
			Amount:      reward,
			Operation:   domain.OpTaskReward,
			ReferenceID: threadID,
			Description: "task completion reward",
		}, now); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit completion: %w", err)
	}
	return reward, nil
}

// ExpireOverdueThreads marks OPEN threads older than cutoffMs as EXPIRED.
func (s *Store) ExpireOverdueThreads(ctx context.Context, cutoffMs int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE task_threads SET status = ?, updated_at = ? WHERE status = ? AND created_at < ?`,
		string(domain.ThreadExpired), nowMs(), string(domain.ThreadOpen), cutoffMs)
	if err != nil {
		return 0, fmt.Errorf("failed to expire threads: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
