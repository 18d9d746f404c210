package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudmeter/backend/internal/domain/shared"
)

func TestParsePolicy(t *testing.T) {
	t.Run("empty string means flat pricing", func(t *testing.T) {
		p, err := ParsePolicy("")
		require.NoError(t, err)
		assert.Nil(t, p)
	})

	t.Run("valid segmented policy normalizes tiers descending", func(t *testing.T) {
		p, err := ParsePolicy(`{"type":"segmented","segmented":[[0,"0.3"],[10,"0.1"],[4,"0.2"]]}`)
		require.NoError(t, err)
		require.Len(t, p.Tiers, 3)
		assert.Equal(t, int64(10), p.Tiers[0].Threshold)
		assert.Equal(t, int64(4), p.Tiers[1].Threshold)
		assert.Equal(t, int64(0), p.Tiers[2].Threshold)
		assert.True(t, p.IsSegmented())
	})

	t.Run("base_price defaults to zero", func(t *testing.T) {
		p, err := ParsePolicy(`{"type":"segmented","segmented":[[0,"0.3"]]}`)
		require.NoError(t, err)
		assert.True(t, p.BasePrice.IsZero())
	})

	t.Run("base_price is parsed", func(t *testing.T) {
		p, err := ParsePolicy(`{"type":"segmented","base_price":"5.0","segmented":[[0,"0.3"]]}`)
		require.NoError(t, err)
		assert.Equal(t, "5", p.BasePrice.String())
	})

	invalid := []struct {
		name string
		raw  string
	}{
		{"not json", `{{`},
		{"missing type", `{"segmented":[[0,"0.3"]]}`},
		{"unknown type", `{"type":"linear","segmented":[[0,"0.3"]]}`},
		{"missing tiers", `{"type":"segmented"}`},
		{"empty tier list", `{"type":"segmented","segmented":[]}`},
		{"tier not a pair", `{"type":"segmented","segmented":[[0]]}`},
		{"threshold not an integer", `{"type":"segmented","segmented":[["x","0.3"]]}`},
		{"negative threshold", `{"type":"segmented","segmented":[[-1,"0.3"],[0,"0.2"]]}`},
		{"duplicate thresholds", `{"type":"segmented","segmented":[[0,"0.3"],[0,"0.2"]]}`},
		{"lowest threshold not zero", `{"type":"segmented","segmented":[[10,"0.1"],[4,"0.2"]]}`},
		{"price not a decimal", `{"type":"segmented","segmented":[[0,"abc"]]}`},
		{"negative price", `{"type":"segmented","segmented":[[0,"-0.3"]]}`},
		{"negative base_price", `{"type":"segmented","base_price":"-1","segmented":[[0,"0.3"]]}`},
		{"base_price not a decimal", `{"type":"segmented","base_price":"x","segmented":[[0,"0.3"]]}`},
	}
	for _, tt := range invalid {
		t.Run("rejects "+tt.name, func(t *testing.T) {
			_, err := ParsePolicy(tt.raw)
			assert.ErrorIs(t, err, shared.ErrInvalidPolicy)
		})
	}
}

func TestPolicyIsSegmented(t *testing.T) {
	t.Run("nil policy", func(t *testing.T) {
		var p *Policy
		assert.False(t, p.IsSegmented())
	})

	t.Run("policy without tiers", func(t *testing.T) {
		p := &Policy{Type: PolicyTypeSegmented}
		assert.False(t, p.IsSegmented())
	})
}
