package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumilearn/lumilearn-backend/internal/config"
	"github.com/lumilearn/lumilearn-backend/internal/domain"
	"github.com/lumilearn/lumilearn-backend/internal/metrics"
	"github.com/lumilearn/lumilearn-backend/internal/payments"
	"github.com/lumilearn/lumilearn-backend/internal/session"
	"github.com/lumilearn/lumilearn-backend/internal/store"
)

const testSecret = "test-secret"

type testEnv struct {
	server   *Server
	store    *store.Store
	payments *payments.Client
}

func newTestEnv(t *testing.T, opts ...func(*Deps)) *testEnv {
	t.Helper()

	st, err := store.New(filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	deps := Deps{
		Store:    st,
		Metrics:  metrics.New(),
		Denylist: session.NewMemoryDenylist(),
	}
	for _, o := range opts {
		o(&deps)
	}

	cfg := &config.Config{
		Environment:        "development",
		AuthMode:           "jwt",
		JWTSecret:          testSecret,
		SessionTTL:         time.Hour,
		ProviderTimeout:    5 * time.Second,
		CheckoutSuccessURL: "https://app.example.com/success",
		CheckoutCancelURL:  "https://app.example.com/cancel",
	}

	return &testEnv{
		server:   NewServer(cfg, deps, zerolog.Nop()),
		store:    st,
		payments: deps.Payments,
	}
}

func (e *testEnv) seedUser(t *testing.T, role domain.Role, parentID string) *domain.User {
	t.Helper()
	u := &domain.User{
		Email:       fmt.Sprintf("%s@example.com", uuid.NewString()),
		DisplayName: "Test " + string(role),
		Role:        role,
		ParentID:    parentID,
	}
	require.NoError(t, e.store.CreateUser(context.Background(), u))
	return u
}

func (e *testEnv) seedTask(t *testing.T, creatorID, assigneeID string, reward int64) *domain.Task {
	t.Helper()
	task := &domain.Task{
		Name:         "Math practice",
		CreatorID:    creatorID,
		AssigneeID:   assigneeID,
		Subject:      "fractions",
		CreditReward: reward,
		Recurrence:   domain.RecurDaily,
		Status:       domain.TaskOpen,
	}
	require.NoError(t, e.store.CreateTask(context.Background(), task))
	return task
}

func (e *testEnv) request(t *testing.T, method, path string, body any, user *domain.User) *http.Response {
	t.Helper()

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != nil {
		tok, err := IssueToken(testSecret, user.ID, user.Role, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := e.server.App().Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestAuth_MissingAndInvalidToken(t *testing.T) {
	env := newTestEnv(t)

	resp := env.request(t, http.MethodGet, "/api/v1/me", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	body := decode(t, resp)
	assert.NotEmpty(t, body["statusMessage"])

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.Header.Set("Authorization", "Bearer not.a.token")
	resp, err := env.server.App().Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLogout_RevokesSession(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, domain.RoleParent, "")

	tok, err := IssueToken(testSecret, user.ID, user.Role, time.Hour)
	require.NoError(t, err)

	do := func(method, path string) *http.Response {
		req := httptest.NewRequest(method, path, nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		resp, err := env.server.App().Test(req, -1)
		require.NoError(t, err)
		return resp
	}

	resp := do(http.MethodGet, "/api/v1/me")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(http.MethodPost, "/api/v1/auth/logout")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Same token is dead now.
	resp = do(http.MethodGet, "/api/v1/me")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestDevToken_IssuesUsableToken(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, domain.RoleParent, "")

	resp := env.request(t, http.MethodPost, "/api/v1/auth/dev-token",
		map[string]any{"user_id": user.ID}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	data := body["data"].(map[string]any)
	token, ok := data["token"].(string)
	require.True(t, ok)
	require.NotEmpty(t, token)

	// The issued token authenticates a regular request.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	authed, err := env.server.App().Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, authed.StatusCode)

	// Unknown users get nothing.
	resp = env.request(t, http.MethodPost, "/api/v1/auth/dev-token",
		map[string]any{"user_id": "nope"}, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCloseTask_LifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	parent := env.seedUser(t, domain.RoleParent, "")
	student := env.seedUser(t, domain.RoleStudent, parent.ID)
	task := env.seedTask(t, parent.ID, student.ID, 100)

	// The assignee is not the creator: the task is invisible to close.
	resp := env.request(t, http.MethodPost, "/api/v1/tasks/"+task.ID+"/close", nil, student)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.request(t, http.MethodPost, "/api/v1/tasks/"+task.ID+"/close", nil, parent)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, true, body["success"])
	taskBody := body["task"].(map[string]any)
	assert.Equal(t, "CLOSED", taskBody["status"])

	// Closing again is an error reporting the current status.
	resp = env.request(t, http.MethodPost, "/api/v1/tasks/"+task.ID+"/close", nil, parent)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body = decode(t, resp)
	assert.Contains(t, body["statusMessage"], "CLOSED")
}

func TestCompleteThread_OverHTTP(t *testing.T) {
	env := newTestEnv(t)
	parent := env.seedUser(t, domain.RoleParent, "")
	student := env.seedUser(t, domain.RoleStudent, parent.ID)
	other := env.seedUser(t, domain.RoleStudent, parent.ID)
	task := env.seedTask(t, parent.ID, student.ID, 250)

	thread := &domain.TaskThread{TaskID: task.ID}
	require.NoError(t, env.store.CreateThread(context.Background(), thread))

	// Not the assignee.
	resp := env.request(t, http.MethodPost, "/api/v1/tasks/complete/"+thread.ID, nil, other)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.request(t, http.MethodPost, "/api/v1/tasks/complete/"+thread.ID, nil, student)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, float64(250), body["creditsEarned"])

	// Completion is idempotent-reject: no second credit.
	resp = env.request(t, http.MethodPost, "/api/v1/tasks/complete/"+thread.ID, nil, student)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.request(t, http.MethodGet, "/api/v1/credits/internal-balance", nil, student)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body = decode(t, resp)
	assert.Equal(t, float64(250), body["balance"])
	assert.Equal(t, "2.50", body["balanceInDollars"])
	assert.Equal(t, "USD", body["currency"])
}

func TestInternalBalance_ZeroLazyInit(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, domain.RoleStudent, "")

	resp := env.request(t, http.MethodGet, "/api/v1/credits/internal-balance", nil, user)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, float64(0), body["balance"])
	assert.Equal(t, "0.00", body["balanceInDollars"])
	assert.NotEmpty(t, body["updatedAt"])
}

func TestTopUp_Validation(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, domain.RoleParent, "")

	for _, amount := range []any{0, 501, -5, "abc"} {
		resp := env.request(t, http.MethodPost, "/api/v1/credits/top-up",
			map[string]any{"amount": amount}, user)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "amount %v", amount)
	}
}

func TestTopUp_CreatesCheckoutSession(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "50000", r.PostFormValue("amount"))
		assert.Equal(t, "CREDIT_TOPUP", r.PostFormValue("metadata[operation]"))
		json.NewEncoder(w).Encode(map[string]string{"id": "cs_123", "url": "https://pay.example.com/cs_123"})
	}))
	defer provider.Close()

	env := newTestEnv(t, func(d *Deps) {
		d.Payments = payments.New("sk_test", "whsec", payments.WithBaseURL(provider.URL))
	})
	user := env.seedUser(t, domain.RoleParent, "")

	resp := env.request(t, http.MethodPost, "/api/v1/credits/top-up",
		map[string]any{"amount": 500}, user)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, "https://pay.example.com/cs_123", body["url"])
	assert.Equal(t, "cs_123", body["session_id"])

	// Session creation alone never writes the ledger.
	resp = env.request(t, http.MethodGet, "/api/v1/credits/internal-balance", nil, user)
	body = decode(t, resp)
	assert.Equal(t, float64(0), body["balance"])
}

func TestPaymentsWebhook_CreditsOnceAndDeduplicates(t *testing.T) {
	client := payments.New("sk_test", "whsec")
	env := newTestEnv(t, func(d *Deps) { d.Payments = client })
	user := env.seedUser(t, domain.RoleParent, "")

	payload, err := json.Marshal(map[string]any{
		"id":      "evt_1",
		"type":    payments.EventCheckoutCompleted,
		"session": map[string]string{"id": "cs_1", "url": ""},
		"metadata": map[string]string{
			"user_id":   user.ID,
			"operation": "CREDIT_TOPUP",
			"amount":    "250",
		},
	})
	require.NoError(t, err)

	deliver := func(sig string) *http.Response {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payments", bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Webhook-Signature", sig)
		resp, err := env.server.App().Test(req, -1)
		require.NoError(t, err)
		return resp
	}

	// Unsigned deliveries are rejected.
	resp := deliver("")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = deliver(client.Sign(payload))
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Redelivery of the same event credits nothing.
	resp = deliver(client.Sign(payload))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, true, body["duplicate"])

	resp = env.request(t, http.MethodGet, "/api/v1/credits/internal-balance", nil, user)
	body = decode(t, resp)
	assert.Equal(t, float64(250), body["balance"])
}

func TestPaymentsWebhook_EarlyDeliveryDoesNotConsumeEvent(t *testing.T) {
	client := payments.New("sk_test", "whsec")
	env := newTestEnv(t, func(d *Deps) { d.Payments = client })
	buyer := env.seedUser(t, domain.RoleParent, "")

	order := &domain.Order{
		BuyerID:     buyer.ID,
		Items:       []domain.OrderItem{{ProductID: "p1", Name: "Poster", Quantity: 1, UnitAmount: 500}},
		TotalAmount: 500,
		Status:      domain.OrderPending,
	}
	require.NoError(t, env.store.CreateOrder(context.Background(), order))

	payload, err := json.Marshal(map[string]any{
		"id":      "evt_ord_1",
		"type":    payments.EventCheckoutCompleted,
		"session": map[string]string{"id": "cs_9", "url": ""},
		"metadata": map[string]string{
			"order_id":  order.ID,
			"operation": "PURCHASE",
			"amount":    "500",
		},
	})
	require.NoError(t, err)

	deliver := func() *http.Response {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payments", bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Webhook-Signature", client.Sign(payload))
		resp, err := env.server.App().Test(req, -1)
		require.NoError(t, err)
		return resp
	}

	// The delivery races ahead of checkout: the order is still PENDING,
	// which cannot jump to PAID.
	resp := deliver()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	_, err = env.store.TransitionOrderStatus(context.Background(), order.ID, domain.OrderPendingPayment, false)
	require.NoError(t, err)

	// The failed delivery did not consume the event, so the provider's
	// redelivery settles the order.
	resp = deliver()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.Nil(t, body["duplicate"])

	got, err := env.store.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPaid, got.Status)

	// Only now is redelivery a duplicate.
	resp = deliver()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body = decode(t, resp)
	assert.Equal(t, true, body["duplicate"])
}

func TestCreateOrder_CancelledWhenCheckoutFails(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"boom"}`, http.StatusBadRequest)
	}))
	defer provider.Close()

	env := newTestEnv(t, func(d *Deps) {
		d.Payments = payments.New("sk_test", "whsec", payments.WithBaseURL(provider.URL))
	})
	buyer := env.seedUser(t, domain.RoleParent, "")
	product := &domain.Product{Name: "Poster", Amount: 1500, Stock: 3, IsActive: true}
	require.NoError(t, env.store.CreateProduct(context.Background(), product))

	resp := env.request(t, http.MethodPost, "/api/v1/orders", map[string]any{
		"items": []map[string]any{{"product_id": product.ID, "quantity": 1}},
	}, buyer)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	// The order is not left dangling in PENDING.
	orders, err := env.store.ListOrdersByBuyer(context.Background(), buyer.ID)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, domain.OrderCancelled, orders[0].Status)
}

func TestCreateOrder_MoneyOrderNeedsPaymentsProvider(t *testing.T) {
	env := newTestEnv(t)
	buyer := env.seedUser(t, domain.RoleParent, "")
	product := &domain.Product{Name: "Poster", Amount: 1500, Stock: 3, IsActive: true}
	require.NoError(t, env.store.CreateProduct(context.Background(), product))

	resp := env.request(t, http.MethodPost, "/api/v1/orders", map[string]any{
		"items": []map[string]any{{"product_id": product.ID, "quantity": 1}},
	}, buyer)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	// No row was written at all.
	orders, err := env.store.ListOrdersByBuyer(context.Background(), buyer.ID)
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestTransfer_ParentToChild(t *testing.T) {
	env := newTestEnv(t)
	parent := env.seedUser(t, domain.RoleParent, "")
	child := env.seedUser(t, domain.RoleStudent, parent.ID)
	stranger := env.seedUser(t, domain.RoleStudent, "")

	_, err := env.store.AppendLedgerEntry(context.Background(), &domain.LedgerEntry{
		UserID: parent.ID, Amount: 500, Operation: domain.OpCreditTopUp,
	})
	require.NoError(t, err)

	resp := env.request(t, http.MethodPost, "/api/v1/credits/transfer",
		map[string]any{"recipient_id": child.ID, "amount": 200}, parent)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Not the parent's child.
	resp = env.request(t, http.MethodPost, "/api/v1/credits/transfer",
		map[string]any{"recipient_id": stranger.ID, "amount": 100}, parent)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Overdraw.
	resp = env.request(t, http.MethodPost, "/api/v1/credits/transfer",
		map[string]any{"recipient_id": child.ID, "amount": 10000}, parent)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Students cannot transfer at all.
	resp = env.request(t, http.MethodPost, "/api/v1/credits/transfer",
		map[string]any{"recipient_id": parent.ID, "amount": 10}, child)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.request(t, http.MethodGet, "/api/v1/credits/internal-balance", nil, child)
	body := decode(t, resp)
	assert.Equal(t, float64(200), body["balance"])
}

func TestAdminUpdateOrderStatus_ValidationAndAxes(t *testing.T) {
	env := newTestEnv(t)
	admin := env.seedUser(t, domain.RoleAdmin, "")
	buyer := env.seedUser(t, domain.RoleParent, "")

	order := &domain.Order{
		BuyerID:     buyer.ID,
		Items:       []domain.OrderItem{{ProductID: "p1", Name: "Poster", Quantity: 1, UnitAmount: 500}},
		TotalAmount: 500,
		Status:      domain.OrderPending,
	}
	require.NoError(t, env.store.CreateOrder(context.Background(), order))

	path := "/api/v1/admin/orders/" + order.ID + "/status"

	// Typo'd status is rejected listing the allowed set verbatim.
	resp := env.request(t, http.MethodPut, path, map[string]any{"status": "SHIPPPED"}, admin)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decode(t, resp)
	assert.Contains(t, body["statusMessage"], "PENDING, PROCESSING, SHIPPED, DELIVERED, CANCELLED, REFUNDED")

	// Non-admins cannot touch the endpoint.
	resp = env.request(t, http.MethodPut, path, map[string]any{"status": "SHIPPED"}, buyer)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// SHIPPED from PENDING_FULFILLMENT is an illegal jump on the
	// fulfillment axis.
	resp = env.request(t, http.MethodPut, path, map[string]any{"status": "SHIPPED"}, admin)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.request(t, http.MethodPut, path, map[string]any{"status": "PROCESSING"}, admin)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.request(t, http.MethodPut, path,
		map[string]any{"status": "SHIPPED", "tracking_number": "TRK-9"}, admin)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body = decode(t, resp)
	data := body["data"].(map[string]any)
	assert.Equal(t, "SHIPPED", data["fulfillment"])
	assert.Equal(t, "TRK-9", data["tracking_number"])

	// Override requires a reason and is audited.
	resp = env.request(t, http.MethodPut, path,
		map[string]any{"status": "DELIVERED", "override": true}, admin)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.request(t, http.MethodPut, path,
		map[string]any{"status": "REFUNDED", "override": true, "reason": "chargeback"}, admin)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	records, err := env.store.ListAuditRecords(context.Background(), "order", order.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, admin.ID, records[0].ActorID)
	assert.Contains(t, records[0].Detail, "chargeback")
}

func TestCreditOrder_ApprovalFlow(t *testing.T) {
	env := newTestEnv(t)
	admin := env.seedUser(t, domain.RoleAdmin, "")
	parent := env.seedUser(t, domain.RoleParent, "")
	child := env.seedUser(t, domain.RoleStudent, parent.ID)

	product := &domain.Product{Name: "Plush owl", Amount: 1500, CreditPrice: 300, Stock: 5, IsActive: true}
	require.NoError(t, env.store.CreateProduct(context.Background(), product))

	_, err := env.store.AppendLedgerEntry(context.Background(), &domain.LedgerEntry{
		UserID: child.ID, Amount: 500, Operation: domain.OpCreditTopUp,
	})
	require.NoError(t, err)

	resp := env.request(t, http.MethodPost, "/api/v1/orders", map[string]any{
		"items":            []map[string]any{{"product_id": product.ID, "quantity": 1}},
		"pay_with_credits": true,
	}, child)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	body := decode(t, resp)
	data := body["data"].(map[string]any)
	orderID := data["id"].(string)
	assert.Equal(t, "PENDING_PARENT_APPROVAL", data["status"])

	// A stranger parent cannot approve.
	other := env.seedUser(t, domain.RoleParent, "")
	resp = env.request(t, http.MethodPost, "/api/v1/orders/"+orderID+"/approve", nil, other)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.request(t, http.MethodPost, "/api/v1/orders/"+orderID+"/approve", nil, parent)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body = decode(t, resp)
	data = body["data"].(map[string]any)
	assert.Equal(t, "PARENT_APPROVED", data["status"])

	// The debit happened exactly once.
	resp = env.request(t, http.MethodGet, "/api/v1/credits/internal-balance", nil, child)
	body = decode(t, resp)
	assert.Equal(t, float64(200), body["balance"])

	// Approving twice is an invalid state.
	resp = env.request(t, http.MethodPost, "/api/v1/orders/"+orderID+"/approve", nil, parent)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Admin sees the order.
	resp = env.request(t, http.MethodGet, "/api/v1/admin/orders", nil, admin)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUpdateGeneration(t *testing.T) {
	env := newTestEnv(t)
	parent := env.seedUser(t, domain.RoleParent, "")
	student := env.seedUser(t, domain.RoleStudent, parent.ID)
	task := env.seedTask(t, parent.ID, student.ID, 100)

	thread := &domain.TaskThread{TaskID: task.ID}
	require.NoError(t, env.store.CreateThread(context.Background(), thread))

	resp := env.request(t, http.MethodPut, "/api/v1/tasks/update-generation/"+thread.ID,
		map[string]any{"generated_content": map[string]any{"questions": []any{}}}, parent)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.request(t, http.MethodPut, "/api/v1/tasks/update-generation/"+thread.ID,
		map[string]any{}, parent)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAdminAdjustCredits_Audited(t *testing.T) {
	env := newTestEnv(t)
	admin := env.seedUser(t, domain.RoleAdmin, "")
	user := env.seedUser(t, domain.RoleParent, "")

	resp := env.request(t, http.MethodPost, "/api/v1/admin/credits/adjust",
		map[string]any{"user_id": user.ID, "amount": -50, "reason": "correction"}, admin)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Reason is mandatory.
	resp = env.request(t, http.MethodPost, "/api/v1/admin/credits/adjust",
		map[string]any{"user_id": user.ID, "amount": 10}, admin)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	records, err := env.store.ListAuditRecords(context.Background(), "user", user.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)

	resp = env.request(t, http.MethodGet, "/api/v1/credits/internal-balance", nil, user)
	body := decode(t, resp)
	assert.Equal(t, float64(-50), body["balance"])
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	resp, err := env.server.App().Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/readyz", nil)
	resp, err = env.server.App().Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
