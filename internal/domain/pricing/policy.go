// Package pricing implements the deterministic price computation core:
// pricing policy parsing and validation, flat and segmented price
// calculation, and raw-attribute to billing-unit conversion.
package pricing

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/cloudmeter/backend/internal/domain/shared"
	"github.com/cloudmeter/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// PolicyType discriminates pricing policy variants
type PolicyType string

const (
	// PolicyTypeSegmented prices quantity segments crossing configured
	// thresholds at different unit prices (volume pricing)
	PolicyTypeSegmented PolicyType = "segmented"
)

// Tier is one segment of a segmented pricing policy: quantity strictly above
// Threshold (and below the next higher tier's threshold) is charged at UnitPrice.
type Tier struct {
	Threshold int64
	UnitPrice valueobject.Money
}

// Policy is a validated, normalized pricing policy. Tiers are sorted by
// threshold descending and the lowest threshold is always 0. A nil *Policy
// means flat unit pricing.
type Policy struct {
	Type      PolicyType
	BasePrice valueobject.Money
	Tiers     []Tier
}

// rawPolicy matches the wire format stored on a product record:
//
//	{"type":"segmented","base_price":"5.0","segmented":[[10,"0.1"],[0,"0.3"]]}
type rawPolicy struct {
	Type      *string         `json:"type"`
	BasePrice *string         `json:"base_price"`
	Segmented json.RawMessage `json:"segmented"`
}

// ParsePolicy parses and validates a pricing policy from its wire format.
// An empty string means the product has no policy and bills flat.
// Malformed policies fail with ErrInvalidPolicy; they are rejected at
// configuration time and must never reach billing time.
func ParsePolicy(raw string) (*Policy, error) {
	if raw == "" {
		return nil, nil
	}

	var rp rawPolicy
	if err := json.Unmarshal([]byte(raw), &rp); err != nil {
		return nil, fmt.Errorf("%w: policy is not a JSON mapping: %v", shared.ErrInvalidPolicy, err)
	}
	if rp.Type == nil {
		return nil, fmt.Errorf("%w: missing type discriminator", shared.ErrInvalidPolicy)
	}
	if PolicyType(*rp.Type) != PolicyTypeSegmented {
		return nil, fmt.Errorf("%w: unsupported policy type %q", shared.ErrInvalidPolicy, *rp.Type)
	}

	basePrice, err := parseBasePrice(rp.BasePrice)
	if err != nil {
		return nil, err
	}

	tiers, err := parseTiers(rp.Segmented)
	if err != nil {
		return nil, err
	}

	return &Policy{
		Type:      PolicyTypeSegmented,
		BasePrice: basePrice,
		Tiers:     tiers,
	}, nil
}

// parseBasePrice normalizes the optional base_price field, defaulting to "0".
func parseBasePrice(s *string) (valueobject.Money, error) {
	if s == nil {
		return valueobject.ZeroMoney(), nil
	}
	m, err := valueobject.NewMoneyFromString(*s)
	if err != nil {
		return valueobject.Money{}, fmt.Errorf("%w: base_price %q is not a decimal", shared.ErrInvalidPolicy, *s)
	}
	if m.IsNegative() {
		return valueobject.Money{}, fmt.Errorf("%w: base_price %q is negative", shared.ErrInvalidPolicy, *s)
	}
	return m, nil
}

// parseTiers decodes, validates and normalizes the segmented tier list.
// Returned tiers are sorted by threshold descending; the lowest threshold
// must be exactly 0 and thresholds must be unique.
func parseTiers(raw json.RawMessage) ([]Tier, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: segmented policy without segmented tiers", shared.ErrInvalidPolicy)
	}

	var pairs []json.RawMessage
	if err := json.Unmarshal(raw, &pairs); err != nil {
		return nil, fmt.Errorf("%w: segmented is not a list: %v", shared.ErrInvalidPolicy, err)
	}
	if len(pairs) == 0 {
		return nil, fmt.Errorf("%w: segmented tier list is empty", shared.ErrInvalidPolicy)
	}

	tiers := make([]Tier, 0, len(pairs))
	seen := make(map[int64]struct{}, len(pairs))
	for i, pair := range pairs {
		var elems []json.RawMessage
		if err := json.Unmarshal(pair, &elems); err != nil || len(elems) != 2 {
			return nil, fmt.Errorf("%w: tier %d is not a [threshold, price] pair", shared.ErrInvalidPolicy, i)
		}

		var threshold int64
		if err := json.Unmarshal(elems[0], &threshold); err != nil {
			return nil, fmt.Errorf("%w: tier %d threshold is not an integer", shared.ErrInvalidPolicy, i)
		}
		if threshold < 0 {
			return nil, fmt.Errorf("%w: tier %d threshold is negative", shared.ErrInvalidPolicy, i)
		}
		if _, dup := seen[threshold]; dup {
			return nil, fmt.Errorf("%w: duplicate tier threshold %d", shared.ErrInvalidPolicy, threshold)
		}
		seen[threshold] = struct{}{}

		var priceStr string
		if err := json.Unmarshal(elems[1], &priceStr); err != nil {
			return nil, fmt.Errorf("%w: tier %d price is not a decimal string", shared.ErrInvalidPolicy, i)
		}
		price, err := decimal.NewFromString(priceStr)
		if err != nil {
			return nil, fmt.Errorf("%w: tier %d price %q is not a decimal", shared.ErrInvalidPolicy, i, priceStr)
		}
		if price.IsNegative() {
			return nil, fmt.Errorf("%w: tier %d price %q is negative", shared.ErrInvalidPolicy, i, priceStr)
		}

		tiers = append(tiers, Tier{
			Threshold: threshold,
			UnitPrice: valueobject.NewMoney(price),
		})
	}

	sort.Slice(tiers, func(i, j int) bool {
		return tiers[i].Threshold > tiers[j].Threshold
	})

	if tiers[len(tiers)-1].Threshold != 0 {
		return nil, fmt.Errorf("%w: lowest tier threshold must be 0, got %d",
			shared.ErrInvalidPolicy, tiers[len(tiers)-1].Threshold)
	}

	return tiers, nil
}

// IsSegmented reports whether the policy carries a usable segmented tier list
func (p *Policy) IsSegmented() bool {
	return p != nil && p.Type == PolicyTypeSegmented && len(p.Tiers) > 0
}
