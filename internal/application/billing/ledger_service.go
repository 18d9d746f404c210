// Package billing contains the application services driving the order/bill
// lifecycle: the billing ledger (accounting intervals) and the order
// lifecycle state machine, plus the worker client used by the gateway to
// reach them in-process or over the network.
package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/cloudmeter/backend/internal/domain/billing"
	"github.com/cloudmeter/backend/internal/domain/shared"
	"github.com/cloudmeter/backend/internal/domain/shared/valueobject"
	"go.uber.org/zap"
)

// LedgerService owns bill creation and closure for orders. Its methods take
// the store they operate on so callers can pass a transaction-bound store;
// a close-then-open sequence must never interleave with a concurrent caller
// touching the same order.
type LedgerService struct {
	logger *zap.Logger
}

// NewLedgerService creates a ledger service
func NewLedgerService(logger *zap.Logger) *LedgerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LedgerService{logger: logger}
}

// Open starts a new accounting interval for the order. Fails with
// ErrInvalidState when the order already has an open bill.
func (s *LedgerService) Open(ctx context.Context, store domain.Store, order *domain.Order, startTime time.Time) (*domain.Bill, error) {
	existing, err := store.Bills().GetOpenByOrderID(ctx, order.ID)
	if err != nil && !isNotFound(err) {
		return nil, fmt.Errorf("checking for open bill: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: order %s already has an open bill", shared.ErrInvalidState, order.ResourceID)
	}

	bill, err := domain.NewBill(order.ID, order.UnitPrice, startTime)
	if err != nil {
		return nil, err
	}
	if err := store.Bills().Create(ctx, bill); err != nil {
		return nil, fmt.Errorf("creating bill: %w", err)
	}

	s.logger.Debug("opened bill",
		zap.String("order_id", order.ID.String()),
		zap.String("resource_id", order.ResourceID),
		zap.String("unit_price", order.UnitPrice.StringFixed()),
		zap.Time("start_time", startTime),
	)
	return bill, nil
}

// Close ends the currently open interval at endTime, computing the total as
// the elapsed fraction of the billing unit at the bill's unit price. Fails
// with ErrNotFound when no bill is open.
func (s *LedgerService) Close(ctx context.Context, store domain.Store, order *domain.Order, endTime time.Time) (*domain.Bill, error) {
	bill, err := store.Bills().GetOpenByOrderID(ctx, order.ID)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: order %s has no open bill", shared.ErrNotFound, order.ResourceID)
		}
		return nil, fmt.Errorf("loading open bill: %w", err)
	}

	if err := bill.Close(endTime, order.Unit); err != nil {
		return nil, err
	}
	if err := store.Bills().Close(ctx, bill); err != nil {
		return nil, fmt.Errorf("closing bill: %w", err)
	}

	s.logger.Debug("closed bill",
		zap.String("order_id", order.ID.String()),
		zap.String("resource_id", order.ResourceID),
		zap.String("total_price", bill.TotalPrice.StringFixed()),
		zap.Time("end_time", endTime),
	)
	return bill, nil
}

// ReopenAtNewPrice closes the open bill at atTime and opens a new one at the
// new unit price starting at the same instant, so no interval spans a price
// change. The caller must hold a transaction over the order's rows.
func (s *LedgerService) ReopenAtNewPrice(
	ctx context.Context,
	store domain.Store,
	order *domain.Order,
	newUnitPrice valueobject.Money,
	atTime time.Time,
) (closed, opened *domain.Bill, err error) {
	closed, err = s.Close(ctx, store, order, atTime)
	if err != nil {
		return nil, nil, err
	}

	if err := order.Reprice(newUnitPrice, atTime); err != nil {
		return nil, nil, err
	}
	opened, err = s.Open(ctx, store, order, atTime)
	if err != nil {
		return nil, nil, err
	}
	return closed, opened, nil
}

// ZeroOut closes the open bill at atTime and leaves the order permanently
// non-billing. Called on deletion; tolerates an already-settled order so a
// duplicate delete stays a no-op.
func (s *LedgerService) ZeroOut(ctx context.Context, store domain.Store, order *domain.Order, atTime time.Time) error {
	_, err := s.Close(ctx, store, order, atTime)
	if err != nil && !isNotFound(err) {
		return err
	}
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, shared.ErrNotFound)
}
