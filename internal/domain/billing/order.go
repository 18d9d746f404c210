// Package billing holds the metering domain model: orders (billable resource
// subscriptions), bills (accounting intervals), subscriptions (quantity
// snapshots) and the product catalog entries that price them.
package billing

import (
	"time"

	"github.com/cloudmeter/backend/internal/domain/shared"
	"github.com/cloudmeter/backend/internal/domain/shared/valueobject"
)

// OrderStatus represents the subscription state of a billable resource
type OrderStatus string

const (
	OrderStatusRunning  OrderStatus = "running"
	OrderStatusStopped  OrderStatus = "stopped"
	OrderStatusChanging OrderStatus = "changing"
	OrderStatusDeleted  OrderStatus = "deleted"
)

// IsValid checks if the status is a valid OrderStatus
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusRunning, OrderStatusStopped, OrderStatusChanging, OrderStatusDeleted:
		return true
	}
	return false
}

// String returns the string representation of OrderStatus
func (s OrderStatus) String() string {
	return string(s)
}

// CanTransitionTo checks if the status can transition to the target status.
// Deleted is terminal; every other transition between live states is allowed
// because the backend, not this system, owns the resource state machine.
func (s OrderStatus) CanTransitionTo(target OrderStatus) bool {
	if !target.IsValid() {
		return false
	}
	return s != OrderStatusDeleted
}

// BillingUnit is the cadence a resource is billed at
type BillingUnit string

const (
	BillingUnitHour  BillingUnit = "hour"
	BillingUnitMonth BillingUnit = "month"
	BillingUnitYear  BillingUnit = "year"
)

// IsValid checks if the unit is a known billing cadence
func (u BillingUnit) IsValid() bool {
	switch u {
	case BillingUnitHour, BillingUnitMonth, BillingUnitYear:
		return true
	}
	return false
}

// Seconds returns the length of one billing unit in seconds.
// Months are billed as 30 days and years as 365 days; partial units are
// prorated as a continuous fraction, so calendar drift does not accumulate.
func (u BillingUnit) Seconds() int64 {
	switch u {
	case BillingUnitMonth:
		return 30 * 24 * 3600
	case BillingUnitYear:
		return 365 * 24 * 3600
	default:
		return 3600
	}
}

// Order is a billable resource subscription. Exactly one Order exists per
// resource ID at any time; an Order is never removed, only marked deleted.
type Order struct {
	shared.BaseEntity
	ResourceID   string
	ResourceName string
	ResourceType ResourceType
	Status       OrderStatus
	UnitPrice    valueobject.Money
	Unit         BillingUnit
	ProjectID    string
	UserID       string
	// StartedAt is the originating timestamp of the create event. The
	// order's bills partition the time from StartedAt onward.
	StartedAt time.Time
	// LastEventAt is the originating timestamp of the last lifecycle event
	// applied to this order. Duplicate deliveries of the same event carry
	// the same timestamp and are dropped.
	LastEventAt time.Time
}

// NewOrder creates an order for a newly observed billable resource
func NewOrder(
	facts ResourceFacts,
	status OrderStatus,
	unitPrice valueobject.Money,
	unit BillingUnit,
	at time.Time,
) (*Order, error) {
	if facts.ResourceID == "" {
		return nil, shared.NewDomainError("INVALID_RESOURCE", "Resource ID cannot be empty")
	}
	if !status.IsValid() {
		return nil, shared.NewDomainError("INVALID_STATUS", "Invalid order status")
	}
	if !unit.IsValid() {
		return nil, shared.NewDomainError("INVALID_UNIT", "Invalid billing unit")
	}
	if unitPrice.IsNegative() {
		return nil, shared.NewDomainError("INVALID_PRICE", "Unit price cannot be negative")
	}

	return &Order{
		BaseEntity:   shared.NewBaseEntity(),
		ResourceID:   facts.ResourceID,
		ResourceName: facts.ResourceName,
		ResourceType: facts.ResourceType,
		Status:       status,
		UnitPrice:    unitPrice.Quantize(),
		Unit:         unit,
		ProjectID:    facts.ProjectID,
		UserID:       facts.UserID,
		StartedAt:    at,
		LastEventAt:  at,
	}, nil
}

// IsDeleted reports whether the order is in the terminal state
func (o *Order) IsDeleted() bool {
	return o.Status == OrderStatusDeleted
}

// SeenEvent reports whether an event with the given originating timestamp
// has already been applied. Used to make duplicate delivery a no-op.
func (o *Order) SeenEvent(at time.Time) bool {
	return !o.LastEventAt.Before(at)
}

// ChangeStatus moves the order to a new subscription state
func (o *Order) ChangeStatus(target OrderStatus, at time.Time) error {
	if !o.Status.CanTransitionTo(target) {
		return shared.ErrInvalidState
	}
	o.Status = target
	o.LastEventAt = at
	o.UpdatedAt = time.Now()
	return nil
}

// Reprice sets the unit price in effect from the given event time
func (o *Order) Reprice(unitPrice valueobject.Money, at time.Time) error {
	if unitPrice.IsNegative() {
		return shared.NewDomainError("INVALID_PRICE", "Unit price cannot be negative")
	}
	o.UnitPrice = unitPrice.Quantize()
	o.LastEventAt = at
	o.UpdatedAt = time.Now()
	return nil
}

// MarkDeleted moves the order to the terminal state. A deleted order's
// notional price is zero and no further bills are opened for it.
func (o *Order) MarkDeleted(at time.Time) error {
	if err := o.ChangeStatus(OrderStatusDeleted, at); err != nil {
		return err
	}
	o.UnitPrice = valueobject.ZeroMoney()
	return nil
}
