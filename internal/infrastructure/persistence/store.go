package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudmeter/backend/internal/domain/billing"
	"github.com/cloudmeter/backend/internal/domain/shared"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store implements billing.Store over a GORM connection or transaction
type Store struct {
	db *gorm.DB
}

// NewStore creates the billing store
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the billing tables
func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&OrderModel{}, &BillModel{}, &SubscriptionModel{}, &ProductModel{})
}

// Orders returns the order repository
func (s *Store) Orders() billing.OrderRepository {
	return &orderRepository{db: s.db}
}

// Bills returns the bill repository
func (s *Store) Bills() billing.BillRepository {
	return &billRepository{db: s.db}
}

// Subscriptions returns the subscription repository
func (s *Store) Subscriptions() billing.SubscriptionRepository {
	return &subscriptionRepository{db: s.db}
}

// Products returns the product repository
func (s *Store) Products() billing.ProductRepository {
	return &productRepository{db: s.db}
}

// InTransaction runs fn against a store bound to one database transaction.
// Row locks taken inside fn are held until it returns, so open-close-write
// sequences for one order never interleave.
func (s *Store) InTransaction(ctx context.Context, fn func(billing.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// translateError maps GORM errors onto domain errors
func translateError(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", shared.ErrNotFound, what)
	}
	return err
}

type orderRepository struct {
	db *gorm.DB
}

func (r *orderRepository) Create(ctx context.Context, order *billing.Order) error {
	return r.db.WithContext(ctx).Create(OrderModelFromEntity(order)).Error
}

func (r *orderRepository) Update(ctx context.Context, order *billing.Order) error {
	return r.db.WithContext(ctx).Save(OrderModelFromEntity(order)).Error
}

func (r *orderRepository) GetByID(ctx context.Context, id uuid.UUID) (*billing.Order, error) {
	var model OrderModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, translateError(err, "order "+id.String())
	}
	return model.ToEntity(), nil
}

func (r *orderRepository) GetByResourceID(ctx context.Context, resourceID string) (*billing.Order, error) {
	var model OrderModel
	if err := r.db.WithContext(ctx).First(&model, "resource_id = ?", resourceID).Error; err != nil {
		return nil, translateError(err, "order for resource "+resourceID)
	}
	return model.ToEntity(), nil
}

func (r *orderRepository) GetByResourceIDForUpdate(ctx context.Context, resourceID string) (*billing.Order, error) {
	tx := r.db.WithContext(ctx)
	// sqlite has no row locks; its single-writer model already serializes
	if r.db.Dialector.Name() != "sqlite" {
		tx = tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var model OrderModel
	err := tx.First(&model, "resource_id = ?", resourceID).Error
	if err != nil {
		return nil, translateError(err, "order for resource "+resourceID)
	}
	return model.ToEntity(), nil
}

type billRepository struct {
	db *gorm.DB
}

func (r *billRepository) Create(ctx context.Context, bill *billing.Bill) error {
	return r.db.WithContext(ctx).Create(BillModelFromEntity(bill)).Error
}

func (r *billRepository) Close(ctx context.Context, bill *billing.Bill) error {
	result := r.db.WithContext(ctx).
		Model(&BillModel{}).
		Where("id = ? AND end_time IS NULL", bill.ID).
		Updates(map[string]any{
			"end_time":    bill.EndTime,
			"total_price": bill.TotalPrice,
			"status":      string(bill.Status),
			"updated_at":  bill.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: open bill %s", shared.ErrNotFound, bill.ID)
	}
	return nil
}

func (r *billRepository) GetOpenByOrderID(ctx context.Context, orderID uuid.UUID) (*billing.Bill, error) {
	var model BillModel
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND end_time IS NULL", orderID).
		First(&model).Error
	if err != nil {
		return nil, translateError(err, "open bill for order "+orderID.String())
	}
	return model.ToEntity(), nil
}

func (r *billRepository) GetLatestByOrderID(ctx context.Context, orderID uuid.UUID) (*billing.Bill, error) {
	var model BillModel
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("start_time DESC").
		First(&model).Error
	if err != nil {
		return nil, translateError(err, "latest bill for order "+orderID.String())
	}
	return model.ToEntity(), nil
}

func (r *billRepository) ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]*billing.Bill, error) {
	var models []BillModel
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("start_time ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	bills := make([]*billing.Bill, len(models))
	for i := range models {
		bills[i] = models[i].ToEntity()
	}
	return bills, nil
}

type subscriptionRepository struct {
	db *gorm.DB
}

func (r *subscriptionRepository) Create(ctx context.Context, sub *billing.Subscription) error {
	return r.db.WithContext(ctx).Create(SubscriptionModelFromEntity(sub)).Error
}

func (r *subscriptionRepository) GetLatestByOrderID(ctx context.Context, orderID uuid.UUID) (*billing.Subscription, error) {
	var model SubscriptionModel
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at DESC").
		First(&model).Error
	if err != nil {
		return nil, translateError(err, "latest subscription for order "+orderID.String())
	}
	return model.ToEntity(), nil
}

func (r *subscriptionRepository) ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]*billing.Subscription, error) {
	var models []SubscriptionModel
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	subs := make([]*billing.Subscription, len(models))
	for i := range models {
		subs[i] = models[i].ToEntity()
	}
	return subs, nil
}

type productRepository struct {
	db *gorm.DB
}

func (r *productRepository) Save(ctx context.Context, product *billing.Product) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"unit_price", "unit", "policy_json", "updated_at"}),
		}).
		Create(ProductModelFromEntity(product)).Error
}

func (r *productRepository) GetByName(ctx context.Context, name string) (*billing.Product, error) {
	var model ProductModel
	if err := r.db.WithContext(ctx).First(&model, "name = ?", name).Error; err != nil {
		return nil, translateError(err, "product "+name)
	}
	return model.ToEntity(), nil
}
