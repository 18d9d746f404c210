package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudmeter/backend/internal/domain/shared/valueobject"
)

const tieredPolicy = `{"type":"segmented","segmented":[[10,"0.1"],[4,"0.2"],[0,"0.3"]]}`

func mustPolicy(t *testing.T, raw string) *Policy {
	t.Helper()
	p, err := ParsePolicy(raw)
	require.NoError(t, err)
	return p
}

func TestUnitPrice(t *testing.T) {
	t.Run("quantity times unit price", func(t *testing.T) {
		got := UnitPrice(3, valueobject.MustMoneyFromString("0.06"))
		assert.Equal(t, "0.18", got.String())
	})

	t.Run("zero quantity", func(t *testing.T) {
		got := UnitPrice(0, valueobject.MustMoneyFromString("0.06"))
		assert.True(t, got.IsZero())
	})

	t.Run("result is quantized", func(t *testing.T) {
		got := UnitPrice(3, valueobject.MustMoneyFromString("0.00005"))
		assert.Equal(t, "0.0002", got.String())
	})
}

func TestSegmentedPrice(t *testing.T) {
	policy := mustPolicy(t, tieredPolicy)

	tests := []struct {
		name     string
		quantity int64
		want     string
	}{
		{"within lowest tier", 1, "0.3"},
		{"fills lowest tier", 4, "1.2"},
		{"crosses into middle tier", 5, "1.4"},
		{"fills middle tier", 10, "2.4"},
		{"crosses into top tier", 11, "2.5"},
		{"zero quantity", 0, "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SegmentedPrice(tt.quantity, policy.Tiers)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestPrice(t *testing.T) {
	t.Run("flat pricing without policy", func(t *testing.T) {
		got := Price(5, valueobject.MustMoneyFromString("0.2"), nil)
		assert.Equal(t, "1", got.String())
	})

	t.Run("segmented with base price", func(t *testing.T) {
		policy := mustPolicy(t, `{"type":"segmented","base_price":"5.0","segmented":[[10,"0.1"],[4,"0.2"],[0,"0.3"]]}`)

		got := Price(1, valueobject.ZeroMoney(), policy)
		assert.Equal(t, "5.3", got.String())

		got = Price(11, valueobject.ZeroMoney(), policy)
		assert.Equal(t, "7.5", got.String())
	})

	t.Run("segmented ignores flat unit price", func(t *testing.T) {
		policy := mustPolicy(t, tieredPolicy)
		got := Price(4, valueobject.MustMoneyFromString("99"), policy)
		assert.Equal(t, "1.2", got.String())
	})
}
