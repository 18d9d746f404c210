package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/cloudmeter/backend/internal/domain/billing"
	"github.com/cloudmeter/backend/internal/domain/shared"
	"github.com/cloudmeter/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// LifecycleConfig carries the billing policy knobs the lifecycle needs.
// It is an explicit value passed into the constructor; there is no ambient
// global configuration.
type LifecycleConfig struct {
	// StoppedPriceFactor scales the unit price while a resource is stopped.
	// Zero means stopped resources are free.
	StoppedPriceFactor decimal.Decimal
}

// DefaultLifecycleConfig bills stopped resources at zero
func DefaultLifecycleConfig() LifecycleConfig {
	return LifecycleConfig{StoppedPriceFactor: decimal.Zero}
}

// OrderService is the order lifecycle state machine. Every transition runs in
// a single store transaction with the order row locked, writes its
// subscription snapshots, and drives the ledger so billing periods never span
// a price change. Transitions are idempotent under duplicate delivery: an
// event whose timestamp was already applied, or any event on a deleted
// order, is a no-op.
type OrderService struct {
	store    domain.Store
	ledger   *LedgerService
	items    domain.ProductItemRegistry
	products domain.ProductSource
	cfg      LifecycleConfig
	logger   *zap.Logger
}

// NewOrderService creates the lifecycle service
func NewOrderService(
	store domain.Store,
	ledger *LedgerService,
	items domain.ProductItemRegistry,
	products domain.ProductSource,
	cfg LifecycleConfig,
	logger *zap.Logger,
) *OrderService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if products == nil {
		products = store.Products()
	}
	return &OrderService{
		store:    store,
		ledger:   ledger,
		items:    items,
		products: products,
		cfg:      cfg,
		logger:   logger,
	}
}

// Create opens an order for a newly observed billable resource: price is
// computed from the product catalog, a subscription snapshot is written and
// the first bill opened. Observing the same resource again is a no-op.
func (s *OrderService) Create(ctx context.Context, facts domain.ResourceFacts, status domain.OrderStatus, startTime time.Time) error {
	if facts.IsZero() {
		return fmt.Errorf("%w: resource facts carry no resource ID", shared.ErrInvalidParameter)
	}

	return s.store.InTransaction(ctx, func(tx domain.Store) error {
		existing, err := tx.Orders().GetByResourceID(ctx, facts.ResourceID)
		if err != nil && !errors.Is(err, shared.ErrNotFound) {
			return fmt.Errorf("looking up order: %w", err)
		}
		if existing != nil {
			s.logger.Debug("order already exists, skipping create",
				zap.String("resource_id", facts.ResourceID))
			return nil
		}

		item, err := s.items.Lookup(facts.ResourceType)
		if err != nil {
			return err
		}
		quantity, err := item.ResourceVolume(facts)
		if err != nil {
			return err
		}
		product, err := s.products.GetByName(ctx, item.ProductName())
		if err != nil {
			return fmt.Errorf("loading product %q: %w", item.ProductName(), err)
		}

		unitPrice, err := s.priceFor(product, quantity, status)
		if err != nil {
			return err
		}

		order, err := domain.NewOrder(facts, status, unitPrice, product.Unit, startTime)
		if err != nil {
			return err
		}
		if err := tx.Orders().Create(ctx, order); err != nil {
			return fmt.Errorf("creating order: %w", err)
		}

		sub, err := domain.NewSubscription(order.ID, status, quantity)
		if err != nil {
			return err
		}
		if err := tx.Subscriptions().Create(ctx, sub); err != nil {
			return fmt.Errorf("creating subscription: %w", err)
		}

		if _, err := s.ledger.Open(ctx, tx, order, startTime); err != nil {
			return err
		}

		s.logger.Info("order created",
			zap.String("resource_id", facts.ResourceID),
			zap.String("resource_type", string(facts.ResourceType)),
			zap.Int64("quantity", quantity),
			zap.String("unit_price", unitPrice.StringFixed()),
		)
		return nil
	})
}

// Resize recomputes the order's price for a new quantity, writes a new
// subscription snapshot and rolls the billing period. The order's status is
// unchanged by a pure resize.
func (s *OrderService) Resize(ctx context.Context, resourceID string, newQuantity int64, atTime time.Time) error {
	return s.store.InTransaction(ctx, func(tx domain.Store) error {
		order, skip, err := s.lockLiveOrder(ctx, tx, resourceID, atTime)
		if err != nil || skip {
			return err
		}

		product, err := s.productFor(ctx, order)
		if err != nil {
			return err
		}
		unitPrice, err := s.priceFor(product, newQuantity, order.Status)
		if err != nil {
			return err
		}

		sub, err := domain.NewSubscription(order.ID, order.Status, newQuantity)
		if err != nil {
			return err
		}
		if err := tx.Subscriptions().Create(ctx, sub); err != nil {
			return fmt.Errorf("creating subscription: %w", err)
		}

		if _, _, err := s.ledger.ReopenAtNewPrice(ctx, tx, order, unitPrice, atTime); err != nil {
			return err
		}
		if err := tx.Orders().Update(ctx, order); err != nil {
			return fmt.Errorf("updating order: %w", err)
		}

		s.logger.Info("order resized",
			zap.String("resource_id", resourceID),
			zap.Int64("quantity", newQuantity),
			zap.String("unit_price", unitPrice.StringFixed()),
		)
		return nil
	})
}

// ChangeStatus moves the order to a new subscription state, repricing it for
// that state's rate and rolling the billing period at the transition instant.
func (s *OrderService) ChangeStatus(ctx context.Context, resourceID string, target domain.OrderStatus, atTime time.Time) error {
	if !target.IsValid() || target == domain.OrderStatusDeleted {
		return fmt.Errorf("%w: invalid target status %q", shared.ErrInvalidParameter, target)
	}

	return s.store.InTransaction(ctx, func(tx domain.Store) error {
		order, skip, err := s.lockLiveOrder(ctx, tx, resourceID, atTime)
		if err != nil || skip {
			return err
		}
		if order.Status == target {
			return nil
		}

		quantity, err := s.currentQuantity(ctx, tx, order)
		if err != nil {
			return err
		}
		product, err := s.productFor(ctx, order)
		if err != nil {
			return err
		}
		unitPrice, err := s.priceFor(product, quantity, target)
		if err != nil {
			return err
		}

		if err := order.ChangeStatus(target, atTime); err != nil {
			return err
		}
		if _, _, err := s.ledger.ReopenAtNewPrice(ctx, tx, order, unitPrice, atTime); err != nil {
			return err
		}
		if err := tx.Orders().Update(ctx, order); err != nil {
			return fmt.Errorf("updating order: %w", err)
		}

		s.logger.Info("order status changed",
			zap.String("resource_id", resourceID),
			zap.String("status", string(target)),
			zap.String("unit_price", unitPrice.StringFixed()),
		)
		return nil
	})
}

// Delete moves the order to its terminal state and closes billing
// permanently. Deleting an already-deleted order is a no-op.
func (s *OrderService) Delete(ctx context.Context, resourceID string, atTime time.Time) error {
	return s.store.InTransaction(ctx, func(tx domain.Store) error {
		order, err := tx.Orders().GetByResourceIDForUpdate(ctx, resourceID)
		if err != nil {
			return fmt.Errorf("locking order: %w", err)
		}
		if order.IsDeleted() {
			return nil
		}

		if err := order.MarkDeleted(atTime); err != nil {
			return err
		}
		if err := s.ledger.ZeroOut(ctx, tx, order, atTime); err != nil {
			return err
		}
		if err := tx.Orders().Update(ctx, order); err != nil {
			return fmt.Errorf("updating order: %w", err)
		}

		s.logger.Info("order deleted", zap.String("resource_id", resourceID))
		return nil
	})
}

// VerifyLedger checks the bill partition invariant for one order.
// A reconciliation pass uses this to detect drift.
func (s *OrderService) VerifyLedger(ctx context.Context, resourceID string) error {
	order, err := s.store.Orders().GetByResourceID(ctx, resourceID)
	if err != nil {
		return err
	}
	bills, err := s.store.Bills().ListByOrderID(ctx, order.ID)
	if err != nil {
		return err
	}
	return domain.VerifyPartition(order.StartedAt, bills)
}

// lockLiveOrder locks the order row and decides whether the event should be
// applied. skip is true for events on deleted orders and duplicate
// deliveries, which are no-ops rather than errors.
func (s *OrderService) lockLiveOrder(ctx context.Context, tx domain.Store, resourceID string, atTime time.Time) (order *domain.Order, skip bool, err error) {
	order, err = tx.Orders().GetByResourceIDForUpdate(ctx, resourceID)
	if err != nil {
		return nil, false, fmt.Errorf("locking order: %w", err)
	}
	if order.IsDeleted() {
		s.logger.Debug("event on deleted order ignored", zap.String("resource_id", resourceID))
		return order, true, nil
	}
	if order.SeenEvent(atTime) {
		s.logger.Debug("duplicate or stale event ignored",
			zap.String("resource_id", resourceID),
			zap.Time("event_time", atTime))
		return order, true, nil
	}
	return order, false, nil
}

func (s *OrderService) productFor(ctx context.Context, order *domain.Order) (*domain.Product, error) {
	item, err := s.items.Lookup(order.ResourceType)
	if err != nil {
		return nil, err
	}
	product, err := s.products.GetByName(ctx, item.ProductName())
	if err != nil {
		return nil, fmt.Errorf("loading product %q: %w", item.ProductName(), err)
	}
	return product, nil
}

// currentQuantity reads the latest subscription snapshot for the order
func (s *OrderService) currentQuantity(ctx context.Context, tx domain.Store, order *domain.Order) (int64, error) {
	sub, err := tx.Subscriptions().GetLatestByOrderID(ctx, order.ID)
	if err != nil {
		return 0, fmt.Errorf("loading latest subscription: %w", err)
	}
	return sub.Quantity, nil
}

// priceFor computes the unit price for quantity units in the given state,
// applying the stopped-rate factor where the state calls for it.
func (s *OrderService) priceFor(product *domain.Product, quantity int64, status domain.OrderStatus) (valueobject.Money, error) {
	price, err := product.PriceFor(quantity)
	if err != nil {
		return valueobject.Money{}, err
	}
	if status == domain.OrderStatusStopped {
		price = price.Mul(s.cfg.StoppedPriceFactor).Quantize()
	}
	return price, nil
}
