package pricing

import (
	"github.com/cloudmeter/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// UnitPrice returns quantity * unitPrice quantized to the money precision.
func UnitPrice(quantity int64, unitPrice valueobject.Money) valueobject.Money {
	return unitPrice.MulInt(quantity).Quantize()
}

// SegmentedPrice walks the tiers from highest threshold to lowest and charges
// the portion of quantity strictly above each threshold at that tier's unit
// price. Tiers must be normalized (descending thresholds, lowest exactly 0),
// which ParsePolicy guarantees. The result is quantized once.
func SegmentedPrice(quantity int64, tiers []Tier) valueobject.Money {
	return valueobject.NewMoney(segmentedTotal(quantity, tiers)).Quantize()
}

// segmentedTotal carries full precision so callers can fold the total into a
// larger expression before the single rounding step.
func segmentedTotal(quantity int64, tiers []Tier) decimal.Decimal {
	total := decimal.Zero
	remaining := quantity
	for _, tier := range tiers {
		if remaining > tier.Threshold {
			billed := remaining - tier.Threshold
			total = total.Add(tier.UnitPrice.Amount().Mul(decimal.NewFromInt(billed)))
			remaining = tier.Threshold
		}
	}
	return total
}

// Price computes the cost of quantity billing units. With a segmented policy
// the tiers plus the policy's base price apply; otherwise the flat unit price
// does. A policy without tiers always falls back to plain unit pricing.
// Rounding happens exactly once, after the full expression is evaluated.
func Price(quantity int64, unitPrice valueobject.Money, policy *Policy) valueobject.Money {
	if policy.IsSegmented() {
		total := segmentedTotal(quantity, policy.Tiers).Add(policy.BasePrice.Amount())
		return valueobject.NewMoney(total).Quantize()
	}
	return UnitPrice(quantity, unitPrice)
}
