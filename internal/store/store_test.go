package store

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumilearn/lumilearn-backend/internal/domain"
	apperr "github.com/lumilearn/lumilearn-backend/internal/errors"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	logger := zerolog.New(os.Stderr)
	s, err := New(dbPath, logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedUser(t *testing.T, s *Store, role domain.Role, parentID string) *domain.User {
	t.Helper()
	u := &domain.User{
		ID:          uuid.New().String(),
		Email:       uuid.New().String() + "@example.com",
		DisplayName: "user",
		Role:        role,
		ParentID:    parentID,
	}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

func seedTask(t *testing.T, s *Store, creatorID, assigneeID string, reward int64) *domain.Task {
	t.Helper()
	task := &domain.Task{
		ID:           uuid.New().String(),
		Name:         "math drills",
		CreatorID:    creatorID,
		AssigneeID:   assigneeID,
		Subject:      "math",
		CreditReward: reward,
		Recurrence:   domain.RecurWeekly,
		Status:       domain.TaskOpen,
	}
	require.NoError(t, s.CreateTask(context.Background(), task))
	return task
}

func TestNew_CreatesTables(t *testing.T) {
	s := newTestStore(t)

	tables := []string{
		"users", "tasks", "task_threads", "characters", "products",
		"orders", "order_items", "credit_ledger", "balances",
		"notes", "wishlist_items", "chat_threads", "chat_messages",
		"audit_log", "processed_events",
	}
	for _, table := range tables {
		var count int
		err := s.db.QueryRow(
			"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 1, count, "table %s should exist", table)
	}
}

func TestCloseTask_OnlyFromOpenByCreator(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	parent := seedUser(t, s, domain.RoleParent, "")
	student := seedUser(t, s, domain.RoleStudent, parent.ID)
	task := seedTask(t, s, parent.ID, student.ID, 100)

	// Non-creator cannot see the task through the close path.
	_, err := s.CloseTask(ctx, task.ID, student.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	closed, err := s.CloseTask(ctx, task.ID, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskClosed, closed.Status)

	// Closing again is INVALID_STATE and reports the current status.
	_, err = s.CloseTask(ctx, task.ID, parent.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "CLOSED")
}

func TestStartTask_AssigneeOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	parent := seedUser(t, s, domain.RoleParent, "")
	student := seedUser(t, s, domain.RoleStudent, parent.ID)
	task := seedTask(t, s, parent.ID, student.ID, 100)

	_, err := s.StartTask(ctx, task.ID, parent.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	started, err := s.StartTask(ctx, task.ID, student.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskInProgress, started.Status)

	_, err = s.StartTask(ctx, task.ID, student.ID)
	assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))
}

func TestCompleteThread_ForbiddenForNonAssignee(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	parent := seedUser(t, s, domain.RoleParent, "")
	student := seedUser(t, s, domain.RoleStudent, parent.ID)
	task := seedTask(t, s, parent.ID, student.ID, 250)

	th := &domain.TaskThread{ID: uuid.New().String(), TaskID: task.ID}
	require.NoError(t, s.CreateThread(ctx, th))

	// FORBIDDEN regardless of thread status.
	_, err := s.CompleteThread(ctx, th.ID, parent.ID)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
}

func TestCompleteThread_CreditsOnceAndRejectsSecondCall(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	parent := seedUser(t, s, domain.RoleParent, "")
	student := seedUser(t, s, domain.RoleStudent, parent.ID)
	task := seedTask(t, s, parent.ID, student.ID, 250)

	th := &domain.TaskThread{ID: uuid.New().String(), TaskID: task.ID}
	require.NoError(t, s.CreateThread(ctx, th))

	earned, err := s.CompleteThread(ctx, th.ID, student.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(250), earned)

	// Completion is not idempotent: the second call fails and must not
	// double-credit.
	_, err = s.CompleteThread(ctx, th.ID, student.ID)
	assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))

	b, err := s.GetBalance(ctx, student.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(250), b.Amount)

	entries, err := s.LedgerHistory(ctx, student.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.OpTaskReward, entries[0].Operation)
	assert.Equal(t, th.ID, entries[0].ReferenceID)
}

func TestGetBalance_LazyInitSingleRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	user := seedUser(t, s, domain.RoleStudent, "")

	b, err := s.GetBalance(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), b.Amount)

	// A second read must not create a second row.
	_, err = s.GetBalance(ctx, user.ID)
	require.NoError(t, err)

	var count int
	err = s.db.QueryRow(`SELECT COUNT(*) FROM balances WHERE user_id = ?`, user.ID).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestAppendLedgerEntry_AccumulatesAtomically(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	user := seedUser(t, s, domain.RoleStudent, "")

	_, err := s.AppendLedgerEntry(ctx, &domain.LedgerEntry{
		UserID: user.ID, Amount: 500, Operation: domain.OpCreditTopUp,
	})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := s.AppendLedgerEntry(ctx, &domain.LedgerEntry{
			UserID: user.ID, Amount: 250, Operation: domain.OpBalanceAdjustment,
		})
		require.NoError(t, err)
	}

	b, err := s.GetBalance(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), b.Amount)
}

func TestAppendLedgerEntry_RejectsUnknownOperation(t *testing.T) {
	s := newTestStore(t)
	_, err := s.AppendLedgerEntry(context.Background(), &domain.LedgerEntry{
		UserID: "u1", Amount: 10, Operation: domain.OperationType("TOPUP"),
	})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestTransfer(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	parent := seedUser(t, s, domain.RoleParent, "")
	student := seedUser(t, s, domain.RoleStudent, parent.ID)

	_, err := s.AppendLedgerEntry(ctx, &domain.LedgerEntry{
		UserID: parent.ID, Amount: 1000, Operation: domain.OpCreditTopUp,
	})
	require.NoError(t, err)

	require.NoError(t, s.Transfer(ctx, parent.ID, student.ID, 400, "allowance"))

	pb, _ := s.GetBalance(ctx, parent.ID)
	sb, _ := s.GetBalance(ctx, student.ID)
	assert.Equal(t, int64(600), pb.Amount)
	assert.Equal(t, int64(400), sb.Amount)

	// Overdraw is rejected and nothing moves.
	err = s.Transfer(ctx, parent.ID, student.ID, 999999, "too much")
	assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))
	pb, _ = s.GetBalance(ctx, parent.ID)
	assert.Equal(t, int64(600), pb.Amount)

	assert.Equal(t, apperr.KindValidation,
		apperr.KindOf(s.Transfer(ctx, parent.ID, student.ID, -5, "negative")))
	assert.Equal(t, apperr.KindValidation,
		apperr.KindOf(s.Transfer(ctx, parent.ID, parent.ID, 10, "self")))
}

func TestOrderLifecycle_CreditPurchase(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	parent := seedUser(t, s, domain.RoleParent, "")
	student := seedUser(t, s, domain.RoleStudent, parent.ID)

	_, err := s.AppendLedgerEntry(ctx, &domain.LedgerEntry{
		UserID: student.ID, Amount: 500, Operation: domain.OpCreditTopUp,
	})
	require.NoError(t, err)

	order := &domain.Order{
		ID:             uuid.New().String(),
		BuyerID:        student.ID,
		Items:          []domain.OrderItem{{ProductID: "p1", Name: "stickers", Quantity: 1, UnitAmount: 300}},
		TotalAmount:    300,
		PaidWithCredit: true,
		Status:         domain.OrderPendingParentApproval,
	}
	require.NoError(t, s.CreateOrder(ctx, order))

	approved, err := s.ApproveCreditOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderParentApproved, approved.Status)

	b, _ := s.GetBalance(ctx, student.ID)
	assert.Equal(t, int64(200), b.Amount)

	entries, _ := s.LedgerHistory(ctx, student.ID, 10, 0)
	require.Len(t, entries, 2)
	assert.Equal(t, domain.OpPurchase, entries[0].Operation)
	assert.Equal(t, int64(-300), entries[0].Amount)

	// Approving twice is INVALID_STATE, no double debit.
	_, err = s.ApproveCreditOrder(ctx, order.ID)
	assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))
	b, _ = s.GetBalance(ctx, student.ID)
	assert.Equal(t, int64(200), b.Amount)
}

func TestTransitionOrderStatus_TableAndOverride(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	buyer := seedUser(t, s, domain.RoleParent, "")

	order := &domain.Order{
		ID:      uuid.New().String(),
		BuyerID: buyer.ID,
		Status:  domain.OrderPendingPayment,
	}
	require.NoError(t, s.CreateOrder(ctx, order))

	// Legal transition.
	updated, err := s.TransitionOrderStatus(ctx, order.ID, domain.OrderPaid, false)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPaid, updated.Status)

	// Illegal jump without override.
	_, err = s.TransitionOrderStatus(ctx, order.ID, domain.OrderPending, false)
	assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))

	// Override allows the correction.
	updated, err = s.TransitionOrderStatus(ctx, order.ID, domain.OrderPending, true)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPending, updated.Status)
}

func TestTransitionFulfillment(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	buyer := seedUser(t, s, domain.RoleParent, "")

	order := &domain.Order{ID: uuid.New().String(), BuyerID: buyer.ID, Status: domain.OrderPaid}
	require.NoError(t, s.CreateOrder(ctx, order))

	updated, err := s.TransitionFulfillment(ctx, order.ID, domain.FulfillmentProcessing, "", "", false)
	require.NoError(t, err)
	assert.Equal(t, domain.FulfillmentProcessing, updated.Fulfillment)

	updated, err = s.TransitionFulfillment(ctx, order.ID, domain.FulfillmentShipped, "TRK-42", "left warehouse", false)
	require.NoError(t, err)
	assert.Equal(t, "TRK-42", updated.TrackingNumber)

	_, err = s.TransitionFulfillment(ctx, order.ID, domain.FulfillmentProcessing, "", "", false)
	assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))
}

func TestSettleTopUp_CreditsOncePerEvent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	user := seedUser(t, s, domain.RoleParent, "")

	entry := func() *domain.LedgerEntry {
		return &domain.LedgerEntry{
			UserID:      user.ID,
			Amount:      250,
			Operation:   domain.OpCreditTopUp,
			ReferenceID: "cs_1",
		}
	}

	fresh, err := s.SettleTopUp(ctx, "evt_123", entry())
	require.NoError(t, err)
	assert.True(t, fresh)

	fresh, err = s.SettleTopUp(ctx, "evt_123", entry())
	require.NoError(t, err)
	assert.False(t, fresh)

	bal, err := s.GetBalance(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(250), bal.Amount)
}

func TestSettleOrderPayment_FailedSettlementReleasesEvent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	buyer := seedUser(t, s, domain.RoleParent, "")

	order := &domain.Order{
		BuyerID:     buyer.ID,
		Items:       []domain.OrderItem{{ProductID: "p1", Name: "Poster", Quantity: 1, UnitAmount: 500}},
		TotalAmount: 500,
		Status:      domain.OrderPending,
	}
	require.NoError(t, s.CreateOrder(ctx, order))

	// Delivery racing ahead of checkout: PENDING cannot jump to PAID.
	_, _, err := s.SettleOrderPayment(ctx, "evt_9", order.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))

	_, err = s.TransitionOrderStatus(ctx, order.ID, domain.OrderPendingPayment, false)
	require.NoError(t, err)

	// The failed settlement left the event open, so redelivery lands it.
	fresh, settled, err := s.SettleOrderPayment(ctx, "evt_9", order.ID)
	require.NoError(t, err)
	assert.True(t, fresh)
	assert.Equal(t, domain.OrderPaid, settled.Status)

	fresh, _, err = s.SettleOrderPayment(ctx, "evt_9", order.ID)
	require.NoError(t, err)
	assert.False(t, fresh)
}

func TestAppendLedgerEntry_ConcurrentIncrements(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	user := seedUser(t, s, domain.RoleParent, "")

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.AppendLedgerEntry(ctx, &domain.LedgerEntry{
				UserID:    user.ID,
				Amount:    125,
				Operation: domain.OpCreditTopUp,
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	bal, err := s.GetBalance(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(workers*125), bal.Amount)

	var rows int
	require.NoError(t, s.db.QueryRow(
		`SELECT COUNT(*) FROM balances WHERE user_id = ?`, user.ID).Scan(&rows))
	assert.Equal(t, 1, rows)
}

func TestGetBalance_ConcurrentFirstReadsCreateOneRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	user := seedUser(t, s, domain.RoleStudent, "")

	const readers = 8
	var wg sync.WaitGroup
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bal, err := s.GetBalance(ctx, user.ID)
			assert.NoError(t, err)
			if err == nil {
				assert.Equal(t, int64(0), bal.Amount)
			}
		}()
	}
	wg.Wait()

	var rows int
	require.NoError(t, s.db.QueryRow(
		`SELECT COUNT(*) FROM balances WHERE user_id = ?`, user.ID).Scan(&rows))
	assert.Equal(t, 1, rows)
}

func TestExpireOverdueTasksAndThreads(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	parent := seedUser(t, s, domain.RoleParent, "")
	student := seedUser(t, s, domain.RoleStudent, parent.ID)
	task := seedTask(t, s, parent.ID, student.ID, 10)

	th := &domain.TaskThread{ID: uuid.New().String(), TaskID: task.ID}
	require.NoError(t, s.CreateThread(ctx, th))

	cutoff := nowMs() + 1000 // everything is older than this
	n, err := s.ExpireOverdueTasks(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.ExpireOverdueThreads(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, _ := s.GetTask(ctx, task.ID)
	assert.Equal(t, domain.TaskExpired, got.Status)

	// EXPIRED is terminal: close must fail reporting the status.
	_, err = s.CloseTask(ctx, task.ID, parent.ID)
	assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "EXPIRED")
}

func TestNotesOwnership(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	owner := seedUser(t, s, domain.RoleStudent, "")
	other := seedUser(t, s, domain.RoleStudent, "")

	n := &domain.Note{ID: uuid.New().String(), UserID: owner.ID, Title: "spelling", Body: "practice list"}
	require.NoError(t, s.CreateNote(ctx, n))

	_, err := s.GetNote(ctx, n.ID, other.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	got, err := s.GetNote(ctx, n.ID, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, "spelling", got.Title)

	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(s.DeleteNote(ctx, n.ID, other.ID)))
	require.NoError(t, s.DeleteNote(ctx, n.ID, owner.ID))
}

func TestCharacterSoftDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := &domain.Character{ID: uuid.New().String(), Name: "Professor Hoot", Persona: "a wise owl tutor"}
	require.NoError(t, s.CreateCharacter(ctx, c))
	require.NoError(t, s.DeactivateCharacter(ctx, c.ID))

	active, err := s.ListCharacters(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, active)

	// Row still exists for chat history references.
	got, err := s.GetCharacter(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.False(t, got.IsActive)
}
