package billing

import (
	"context"

	"github.com/google/uuid"
)

// OrderRepository persists orders. GetByResourceIDForUpdate must take a
// row-level lock so concurrent lifecycle events for the same resource
// serialize; unrelated orders proceed unimpeded.
type OrderRepository interface {
	Create(ctx context.Context, order *Order) error
	Update(ctx context.Context, order *Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	GetByResourceID(ctx context.Context, resourceID string) (*Order, error)
	GetByResourceIDForUpdate(ctx context.Context, resourceID string) (*Order, error)
}

// BillRepository persists the append-only bill ledger
type BillRepository interface {
	Create(ctx context.Context, bill *Bill) error
	// Close persists the end time and total of a bill closed in memory
	Close(ctx context.Context, bill *Bill) error
	GetOpenByOrderID(ctx context.Context, orderID uuid.UUID) (*Bill, error)
	GetLatestByOrderID(ctx context.Context, orderID uuid.UUID) (*Bill, error)
	ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]*Bill, error)
}

// SubscriptionRepository persists append-only quantity snapshots
type SubscriptionRepository interface {
	Create(ctx context.Context, sub *Subscription) error
	GetLatestByOrderID(ctx context.Context, orderID uuid.UUID) (*Subscription, error)
	ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]*Subscription, error)
}

// ProductRepository persists the product catalog
type ProductRepository interface {
	Save(ctx context.Context, product *Product) error
	GetByName(ctx context.Context, name string) (*Product, error)
}

// ProductSource is the read-mostly catalog lookup path the lifecycle uses.
// Implemented by the product repository directly and by the caches wrapping it.
type ProductSource interface {
	GetByName(ctx context.Context, name string) (*Product, error)
}

// Store aggregates the billing repositories behind a single transactional
// boundary. InTransaction runs fn against repositories bound to one database
// transaction; open-close-write sequences inside fn never interleave with a
// concurrent caller touching the same order.
type Store interface {
	Orders() OrderRepository
	Bills() BillRepository
	Subscriptions() SubscriptionRepository
	Products() ProductRepository
	InTransaction(ctx context.Context, fn func(Store) error) error
}
