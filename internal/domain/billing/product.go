package billing

import (
	"sync"

	"github.com/cloudmeter/backend/internal/domain/pricing"
	"github.com/cloudmeter/backend/internal/domain/shared"
	"github.com/cloudmeter/backend/internal/domain/shared/valueobject"
)

// Product is a catalog entry pricing one resource family. The pricing policy
// is stored as an opaque JSON string and parsed lazily; it is validated when
// the product is saved, so billing-time parses cannot fail on valid data.
type Product struct {
	shared.BaseEntity
	Name      string
	UnitPrice valueobject.Money
	Unit      BillingUnit
	// PolicyJSON is the wire-format pricing policy, empty for flat pricing
	PolicyJSON string

	policyOnce sync.Once
	policy     *pricing.Policy
	policyErr  error
}

// NewProduct creates a catalog entry, validating the pricing policy up front.
// Malformed policies are rejected here, at configuration time.
func NewProduct(name string, unitPrice valueobject.Money, unit BillingUnit, policyJSON string) (*Product, error) {
	if name == "" {
		return nil, shared.NewDomainError("INVALID_PRODUCT_NAME", "Product name cannot be empty")
	}
	if unitPrice.IsNegative() {
		return nil, shared.NewDomainError("INVALID_PRICE", "Unit price cannot be negative")
	}
	if !unit.IsValid() {
		return nil, shared.NewDomainError("INVALID_UNIT", "Invalid billing unit")
	}
	if _, err := pricing.ParsePolicy(policyJSON); err != nil {
		return nil, err
	}
	return &Product{
		BaseEntity: shared.NewBaseEntity(),
		Name:       name,
		UnitPrice:  unitPrice.Quantize(),
		Unit:       unit,
		PolicyJSON: policyJSON,
	}, nil
}

// PriceData parses the stored pricing policy on first use and memoizes the
// result. Returns nil for flat-priced products.
func (p *Product) PriceData() (*pricing.Policy, error) {
	p.policyOnce.Do(func() {
		p.policy, p.policyErr = pricing.ParsePolicy(p.PolicyJSON)
	})
	return p.policy, p.policyErr
}

// PriceFor computes the price of quantity units under this product's policy
func (p *Product) PriceFor(quantity int64) (valueobject.Money, error) {
	policy, err := p.PriceData()
	if err != nil {
		return valueobject.Money{}, err
	}
	return pricing.Price(quantity, p.UnitPrice, policy), nil
}
