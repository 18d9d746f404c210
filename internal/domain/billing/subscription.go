package billing

import (
	"github.com/cloudmeter/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// Subscription is an append-only snapshot of an order's quantity and state at
// a point in time. One is written on every creation and resize event; the
// latest snapshot feeds price recomputation.
type Subscription struct {
	shared.BaseEntity
	OrderID  uuid.UUID
	Type     OrderStatus
	Quantity int64
}

// NewSubscription records a quantity/state snapshot for an order
func NewSubscription(orderID uuid.UUID, status OrderStatus, quantity int64) (*Subscription, error) {
	if orderID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_ORDER", "Order ID cannot be empty")
	}
	if !status.IsValid() {
		return nil, shared.NewDomainError("INVALID_STATUS", "Invalid order status")
	}
	if quantity < 0 {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Quantity cannot be negative")
	}
	return &Subscription{
		BaseEntity: shared.NewBaseEntity(),
		OrderID:    orderID,
		Type:       status,
		Quantity:   quantity,
	}, nil
}
