package domain

import "strings"

// AdminOrderStatuses is the exact value set accepted by the admin order
// status update endpoint. Values on the fulfillment axis (PROCESSING,
// SHIPPED, DELIVERED) are applied to Order.Fulfillment; the rest are applied
// to Order.Status.
var AdminOrderStatuses = []string{
	"PENDING", "PROCESSING", "SHIPPED", "DELIVERED", "CANCELLED", "REFUNDED",
}

// IsAdminOrderStatus reports whether v is in the admin allowed set.
func IsAdminOrderStatus(v string) bool {
	for _, s := range AdminOrderStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// AdminOrderStatusList returns the allowed set as a display string for
// validation error messages.
func AdminOrderStatusList() string {
	return strings.Join(AdminOrderStatuses, ", ")
}

// orderTransitions is the reachable-state table for the payment axis.
// Terminal states (CANCELLED, REFUNDED, REJECTED) have no outgoing edges.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:               {OrderPendingPayment, OrderPendingParentApproval, OrderCancelled},
	OrderPendingPayment:        {OrderPaid, OrderCancelled},
	OrderPaid:                  {OrderConfirmed, OrderRefunded, OrderCancelled},
	OrderConfirmed:             {OrderRefunded},
	OrderPendingParentApproval: {OrderParentApproved, OrderRejected, OrderCancelled},
	OrderParentApproved:        {OrderConfirmed},
}

// fulfillmentTransitions is the reachable-state table for the fulfillment axis.
var fulfillmentTransitions = map[FulfillmentStatus][]FulfillmentStatus{
	FulfillmentPending:    {FulfillmentProcessing, FulfillmentCancelled},
	FulfillmentProcessing: {FulfillmentShipped, FulfillmentFailed, FulfillmentCancelled},
	FulfillmentShipped:    {FulfillmentDelivered, FulfillmentFailed},
	FulfillmentFailed:     {FulfillmentProcessing},
}

// CanTransitionOrder reports whether the payment axis may move from→to.
func CanTransitionOrder(from, to OrderStatus) bool {
	for _, s := range orderTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CanTransitionFulfillment reports whether the fulfillment axis may move from→to.
func CanTransitionFulfillment(from, to FulfillmentStatus) bool {
	for _, s := range fulfillmentTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// FulfillmentAxisValue maps an admin status-update value to the fulfillment
// axis. Returns false for values that belong to the payment axis.
func FulfillmentAxisValue(v string) (FulfillmentStatus, bool) {
	switch v {
	case "PROCESSING":
		return FulfillmentProcessing, true
	case "SHIPPED":
		return FulfillmentShipped, true
	case "DELIVERED":
		return FulfillmentDelivered, true
	}
	return "", false
}
