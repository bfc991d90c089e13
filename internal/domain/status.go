// Package domain defines the core entities and status taxonomy shared by the
// store and HTTP handlers. Statuses are closed enumerations: every write path
// validates against these sets and rejects free-form values.
package domain

// TaskStatus represents the lifecycle state of a task template.
type TaskStatus string

const (
	TaskOpen       TaskStatus = "OPEN"
	TaskInProgress TaskStatus = "IN_PROGRESS"
	TaskClosed     TaskStatus = "CLOSED"
	TaskExpired    TaskStatus = "EXPIRED"
)

// IsTerminal returns true if no further task transitions are possible.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskClosed || s == TaskExpired
}

// Valid reports whether s is a member of the task status enumeration.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskOpen, TaskInProgress, TaskClosed, TaskExpired:
		return true
	}
	return false
}

// ThreadStatus represents the lifecycle state of one task occurrence.
type ThreadStatus string

const (
	ThreadOpen      ThreadStatus = "OPEN"
	ThreadCompleted ThreadStatus = "COMPLETED"
	ThreadExpired   ThreadStatus = "EXPIRED"
)

// Valid reports whether s is a member of the thread status enumeration.
func (s ThreadStatus) Valid() bool {
	switch s {
	case ThreadOpen, ThreadCompleted, ThreadExpired:
		return true
	}
	return false
}

// OrderStatus represents the payment axis of an order.
type OrderStatus string

const (
	OrderPending               OrderStatus = "PENDING"
	OrderPaid                  OrderStatus = "PAID"
	OrderConfirmed             OrderStatus = "CONFIRMED"
	OrderCancelled             OrderStatus = "CANCELLED"
	OrderRefunded              OrderStatus = "REFUNDED"
	OrderPendingParentApproval OrderStatus = "PENDING_PARENT_APPROVAL"
	OrderPendingPayment        OrderStatus = "PENDING_PAYMENT"
	OrderParentApproved        OrderStatus = "PARENT_APPROVED"
	OrderRejected              OrderStatus = "REJECTED"
)

// Valid reports whether s is a member of the order status enumeration.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderPaid, OrderConfirmed, OrderCancelled, OrderRefunded,
		OrderPendingParentApproval, OrderPendingPayment, OrderParentApproved, OrderRejected:
		return true
	}
	return false
}

// FulfillmentStatus represents the fulfillment axis of an order. It is
// independent of OrderStatus: both axes move on their own.
type FulfillmentStatus string

const (
	FulfillmentPending    FulfillmentStatus = "PENDING_FULFILLMENT"
	FulfillmentProcessing FulfillmentStatus = "PROCESSING"
	FulfillmentShipped    FulfillmentStatus = "SHIPPED"
	FulfillmentDelivered  FulfillmentStatus = "DELIVERED"
	FulfillmentFailed     FulfillmentStatus = "FAILED"
	FulfillmentCancelled  FulfillmentStatus = "CANCELLED"
)

// Valid reports whether s is a member of the fulfillment status enumeration.
func (s FulfillmentStatus) Valid() bool {
	switch s {
	case FulfillmentPending, FulfillmentProcessing, FulfillmentShipped,
		FulfillmentDelivered, FulfillmentFailed, FulfillmentCancelled:
		return true
	}
	return false
}

// OperationType classifies a credit ledger entry.
type OperationType string

const (
	OpCreditTopUp       OperationType = "CREDIT_TOPUP"
	OpTransferOut       OperationType = "TRANSFER_OUT"
	OpTransferIn        OperationType = "TRANSFER_IN"
	OpBalanceAdjustment OperationType = "BALANCE_ADJUSTMENT"
	OpPurchase          OperationType = "PURCHASE"
	OpTaskReward        OperationType = "TASK_REWARD"
)

// Valid reports whether t is a member of the operation type enumeration.
func (t OperationType) Valid() bool {
	switch t {
	case OpCreditTopUp, OpTransferOut, OpTransferIn, OpBalanceAdjustment, OpPurchase, OpTaskReward:
		return true
	}
	return false
}

// RecurrenceFrequency describes how often a task template spawns threads.
type RecurrenceFrequency string

const (
	RecurDaily   RecurrenceFrequency = "DAILY"
	RecurWeekly  RecurrenceFrequency = "WEEKLY"
	RecurMonthly RecurrenceFrequency = "MONTHLY"
)

// Valid reports whether f is a member of the recurrence enumeration.
func (f RecurrenceFrequency) Valid() bool {
	switch f {
	case RecurDaily, RecurWeekly, RecurMonthly:
		return true
	}
	return false
}

// Role is the access level of an authenticated user.
type Role string

const (
	RoleParent  Role = "parent"
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// Valid reports whether r is a member of the role enumeration.
func (r Role) Valid() bool {
	switch r {
	case RoleParent, RoleStudent, RoleTeacher, RoleAdmin:
		return true
	}
	return false
}
