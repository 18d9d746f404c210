package billing

import (
	"time"

	"github.com/cloudmeter/backend/internal/domain/shared"
	"github.com/cloudmeter/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BillStatus represents the settlement state of a bill
type BillStatus string

const (
	BillStatusPayed BillStatus = "payed"
	BillStatusOwed  BillStatus = "owed"
)

// Bill is one accounting interval of an order's lifetime. Bills are
// append-only: at most one bill per order is open (EndTime nil) and closed
// bills form a contiguous, non-overlapping partition of elapsed time.
type Bill struct {
	shared.BaseEntity
	OrderID    uuid.UUID
	StartTime  time.Time
	EndTime    *time.Time
	UnitPrice  valueobject.Money
	TotalPrice valueobject.Money
	Status     BillStatus
}

// NewBill opens a new accounting interval at startTime with the unit price
// copied from the order.
func NewBill(orderID uuid.UUID, unitPrice valueobject.Money, startTime time.Time) (*Bill, error) {
	if orderID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_ORDER", "Order ID cannot be empty")
	}
	if unitPrice.IsNegative() {
		return nil, shared.NewDomainError("INVALID_PRICE", "Unit price cannot be negative")
	}
	return &Bill{
		BaseEntity: shared.NewBaseEntity(),
		OrderID:    orderID,
		StartTime:  startTime,
		UnitPrice:  unitPrice.Quantize(),
		TotalPrice: valueobject.ZeroMoney().Quantize(),
		Status:     BillStatusPayed,
	}, nil
}

// IsOpen reports whether the bill's accounting interval is still running
func (b *Bill) IsOpen() bool {
	return b.EndTime == nil
}

// Close ends the interval at endTime and computes the total as the elapsed
// fraction of the billing unit times the unit price, quantized once.
// An endTime at or before StartTime clamps the elapsed time to zero rather
// than producing a negative charge; out-of-order delivery and clock skew
// must never corrupt the ledger.
func (b *Bill) Close(endTime time.Time, unit BillingUnit) error {
	if !b.IsOpen() {
		return shared.ErrInvalidState
	}
	b.TotalPrice = b.UnitPrice.Mul(elapsedUnits(b.StartTime, endTime, unit)).Quantize()
	b.EndTime = &endTime
	b.UpdatedAt = time.Now()
	return nil
}

// elapsedUnits returns the continuous fraction of the billing unit between
// start and end, clamped at zero.
func elapsedUnits(start, end time.Time, unit BillingUnit) decimal.Decimal {
	elapsed := end.Sub(start)
	if elapsed <= 0 {
		return decimal.Zero
	}
	seconds := decimal.NewFromInt(int64(elapsed / time.Second))
	return seconds.Div(decimal.NewFromInt(unit.Seconds()))
}

// VerifyPartition checks that the bills of one order form a contiguous,
// non-overlapping partition of the time elapsed since start, the order's
// creation event. Bills must be sorted by start time and only the last may
// be open. Reconciliation uses this to detect ledger drift.
func VerifyPartition(start time.Time, bills []*Bill) error {
	if len(bills) == 0 {
		return shared.NewDomainError("LEDGER_GAP", "No bills cover the order's lifetime")
	}
	if !bills[0].StartTime.Equal(start) {
		return shared.NewDomainError("LEDGER_GAP", "First bill does not start at the order's creation time")
	}
	for i, bill := range bills {
		if bill.IsOpen() {
			if i != len(bills)-1 {
				return shared.NewDomainError("LEDGER_GAP", "Open bill is not the last interval")
			}
			continue
		}
		if bill.EndTime.Before(bill.StartTime) {
			return shared.NewDomainError("LEDGER_GAP", "Bill interval ends before it starts")
		}
		if i+1 < len(bills) && !bills[i+1].StartTime.Equal(*bill.EndTime) {
			return shared.NewDomainError("LEDGER_GAP", "Gap or overlap between adjacent bill intervals")
		}
	}
	return nil
}
