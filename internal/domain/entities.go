package domain

import (
	"encoding/json"
	"time"
)

// User is a platform account. Families link students to a parent account.
type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Role        Role      `json:"role"`
	ParentID    string    `json:"parent_id,omitempty"` // set for student accounts
	CreatedAt   time.Time `json:"created_at"`
}

// Task is a recurring assignment template linking an assignee to a
// subject and a per-completion credit reward.
type Task struct {
	ID            string              `json:"id"`
	Name          string              `json:"name"`
	CreatorID     string              `json:"creator_id"`
	AssigneeID    string              `json:"assignee_id"`
	Subject       string              `json:"subject"`
	RequiredScore int                 `json:"required_score"`
	CreditReward  int64               `json:"credit_reward"` // minor units per completion
	Recurrence    RecurrenceFrequency `json:"recurrence"`
	Status        TaskStatus          `json:"status"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// TaskThread is one instantiated, completable occurrence of a Task.
type TaskThread struct {
	ID               string          `json:"id"`
	TaskID           string          `json:"task_id"`
	GeneratedContent json.RawMessage `json:"generated_content,omitempty"`
	Status           ThreadStatus    `json:"status"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
}

// OrderItem is one product line on an order.
type OrderItem struct {
	ProductID  string `json:"product_id"`
	Name       string `json:"name"`
	Quantity   int    `json:"quantity"`
	UnitAmount int64  `json:"unit_amount"` // minor units
}

// Order is a purchase record. Status (payment) and Fulfillment are
// independent axes.
type Order struct {
	ID             string            `json:"id"`
	BuyerID        string            `json:"buyer_id"`
	Items          []OrderItem       `json:"items"`
	TotalAmount    int64             `json:"total_amount"` // minor units
	PaidWithCredit bool              `json:"paid_with_credit"`
	Status         OrderStatus       `json:"status"`
	Fulfillment    FulfillmentStatus `json:"fulfillment"`
	TrackingNumber string            `json:"tracking_number,omitempty"`
	Notes          string            `json:"notes,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// LedgerEntry is a single append-only row in the credit ledger. Entries are
// never mutated or deleted once written; a user's balance is the running sum
// of their entries.
type LedgerEntry struct {
	ID          string        `json:"id"`
	UserID      string        `json:"user_id"`
	Amount      int64         `json:"amount"` // signed, minor units
	Operation   OperationType `json:"operation"`
	ReferenceID string        `json:"reference_id,omitempty"` // task thread, order or provider session
	Description string        `json:"description,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

// Balance is the materialized running sum for one user, maintained in the
// same transaction as every ledger insert.
type Balance struct {
	UserID    string    `json:"user_id"`
	Amount    int64     `json:"amount"` // minor units
	UpdatedAt time.Time `json:"updated_at"`
}

// Character is an AI persona. Once referenced by chat history it is
// soft-deleted via IsActive rather than removed.
type Character struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Persona      string    `json:"persona"` // system prompt for the LLM
	VoiceID      string    `json:"voice_id,omitempty"`
	AvatarURL    string    `json:"avatar_url,omitempty"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Product is a purchasable catalog item.
type Product struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Amount      int64     `json:"amount"`       // money price, minor units
	CreditPrice int64     `json:"credit_price"` // credit price, minor units (0 = not buyable with credits)
	Stock       int       `json:"stock"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Note is a free-form user note.
type Note struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// WishlistItem links a user to a product they want.
type WishlistItem struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	ProductID string    `json:"product_id"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatThread is a conversation between a user and a character.
type ChatThread struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	CharacterID string    `json:"character_id"`
	Title       string    `json:"title,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ChatMessage is one turn in a chat thread.
type ChatMessage struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id"`
	Role      string    `json:"role"` // user | assistant
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// AuditRecord captures who changed what, for admin overrides and credit
// adjustments.
type AuditRecord struct {
	ID         string    `json:"id"`
	ActorID    string    `json:"actor_id"`
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Detail     string    `json:"detail,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
