package persistence

import (
	"time"

	"github.com/cloudmeter/backend/internal/domain/billing"
	"github.com/cloudmeter/backend/internal/domain/shared"
	"github.com/cloudmeter/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// OrderModel is the GORM model for orders
type OrderModel struct {
	ID           uuid.UUID         `gorm:"type:uuid;primaryKey"`
	ResourceID   string            `gorm:"type:varchar(255);uniqueIndex;not null"`
	ResourceName string            `gorm:"type:varchar(255)"`
	ResourceType string            `gorm:"type:varchar(50);not null"`
	Status       string            `gorm:"type:varchar(20);not null"`
	UnitPrice    valueobject.Money `gorm:"type:numeric(20,4);not null"`
	Unit         string            `gorm:"type:varchar(10);not null"`
	ProjectID    string            `gorm:"type:varchar(255);index"`
	UserID       string            `gorm:"type:varchar(255)"`
	StartedAt    time.Time         `gorm:"not null"`
	LastEventAt  time.Time         `gorm:"not null"`
	CreatedAt    time.Time         `gorm:"autoCreateTime"`
	UpdatedAt    time.Time         `gorm:"autoUpdateTime"`
}

// TableName returns the table name for the model
func (OrderModel) TableName() string {
	return "orders"
}

// ToEntity converts the model to a domain entity
func (m *OrderModel) ToEntity() *billing.Order {
	return &billing.Order{
		BaseEntity: shared.BaseEntity{
			ID:        m.ID,
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ResourceID:   m.ResourceID,
		ResourceName: m.ResourceName,
		ResourceType: billing.ResourceType(m.ResourceType),
		Status:       billing.OrderStatus(m.Status),
		UnitPrice:    m.UnitPrice,
		Unit:         billing.BillingUnit(m.Unit),
		ProjectID:    m.ProjectID,
		UserID:       m.UserID,
		StartedAt:    m.StartedAt,
		LastEventAt:  m.LastEventAt,
	}
}

// OrderModelFromEntity creates a model from a domain entity
func OrderModelFromEntity(e *billing.Order) *OrderModel {
	return &OrderModel{
		ID:           e.ID,
		ResourceID:   e.ResourceID,
		ResourceName: e.ResourceName,
		ResourceType: string(e.ResourceType),
		Status:       string(e.Status),
		UnitPrice:    e.UnitPrice,
		Unit:         string(e.Unit),
		ProjectID:    e.ProjectID,
		UserID:       e.UserID,
		StartedAt:    e.StartedAt,
		LastEventAt:  e.LastEventAt,
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	}
}

// BillModel is the GORM model for bills
type BillModel struct {
	ID         uuid.UUID         `gorm:"type:uuid;primaryKey"`
	OrderID    uuid.UUID         `gorm:"type:uuid;index;not null"`
	StartTime  time.Time         `gorm:"not null"`
	EndTime    *time.Time        `gorm:"index"`
	UnitPrice  valueobject.Money `gorm:"type:numeric(20,4);not null"`
	TotalPrice valueobject.Money `gorm:"type:numeric(20,4);not null"`
	Status     string            `gorm:"type:varchar(20);not null"`
	CreatedAt  time.Time         `gorm:"autoCreateTime"`
	UpdatedAt  time.Time         `gorm:"autoUpdateTime"`
}

// TableName returns the table name for the model
func (BillModel) TableName() string {
	return "bills"
}

// ToEntity converts the model to a domain entity
func (m *BillModel) ToEntity() *billing.Bill {
	return &billing.Bill{
		BaseEntity: shared.BaseEntity{
			ID:        m.ID,
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		OrderID:    m.OrderID,
		StartTime:  m.StartTime,
		EndTime:    m.EndTime,
		UnitPrice:  m.UnitPrice,
		TotalPrice: m.TotalPrice,
		Status:     billing.BillStatus(m.Status),
	}
}

// BillModelFromEntity creates a model from a domain entity
func BillModelFromEntity(e *billing.Bill) *BillModel {
	return &BillModel{
		ID:         e.ID,
		OrderID:    e.OrderID,
		StartTime:  e.StartTime,
		EndTime:    e.EndTime,
		UnitPrice:  e.UnitPrice,
		TotalPrice: e.TotalPrice,
		Status:     string(e.Status),
		CreatedAt:  e.CreatedAt,
		UpdatedAt:  e.UpdatedAt,
	}
}

// SubscriptionModel is the GORM model for subscription snapshots
type SubscriptionModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	OrderID   uuid.UUID `gorm:"type:uuid;index;not null"`
	Type      string    `gorm:"type:varchar(20);not null"`
	Quantity  int64     `gorm:"not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// TableName returns the table name for the model
func (SubscriptionModel) TableName() string {
	return "subscriptions"
}

// ToEntity converts the model to a domain entity
func (m *SubscriptionModel) ToEntity() *billing.Subscription {
	return &billing.Subscription{
		BaseEntity: shared.BaseEntity{
			ID:        m.ID,
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		OrderID:  m.OrderID,
		Type:     billing.OrderStatus(m.Type),
		Quantity: m.Quantity,
	}
}

// SubscriptionModelFromEntity creates a model from a domain entity
func SubscriptionModelFromEntity(e *billing.Subscription) *SubscriptionModel {
	return &SubscriptionModel{
		ID:        e.ID,
		OrderID:   e.OrderID,
		Type:      string(e.Type),
		Quantity:  e.Quantity,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
}

// ProductModel is the GORM model for catalog products
type ProductModel struct {
	ID         uuid.UUID         `gorm:"type:uuid;primaryKey"`
	Name       string            `gorm:"type:varchar(255);uniqueIndex;not null"`
	UnitPrice  valueobject.Money `gorm:"type:numeric(20,4);not null"`
	Unit       string            `gorm:"type:varchar(10);not null"`
	PolicyJSON string            `gorm:"type:text"`
	CreatedAt  time.Time         `gorm:"autoCreateTime"`
	UpdatedAt  time.Time         `gorm:"autoUpdateTime"`
}

// TableName returns the table name for the model
func (ProductModel) TableName() string {
	return "products"
}

// ToEntity converts the model to a domain entity
func (m *ProductModel) ToEntity() *billing.Product {
	return &billing.Product{
		BaseEntity: shared.BaseEntity{
			ID:        m.ID,
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		Name:       m.Name,
		UnitPrice:  m.UnitPrice,
		Unit:       billing.BillingUnit(m.Unit),
		PolicyJSON: m.PolicyJSON,
	}
}

// ProductModelFromEntity creates a model from a domain entity
func ProductModelFromEntity(e *billing.Product) *ProductModel {
	return &ProductModel{
		ID:         e.ID,
		Name:       e.Name,
		UnitPrice:  e.UnitPrice,
		Unit:       string(e.Unit),
		PolicyJSON: e.PolicyJSON,
		CreatedAt:  e.CreatedAt,
		UpdatedAt:  e.UpdatedAt,
	}
}
