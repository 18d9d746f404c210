package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudmeter/backend/internal/domain/shared"
)

func TestRateLimitToUnit(t *testing.T) {
	tests := []struct {
		name      string
		rateLimit int64
		want      int64
	}{
		{"zero bills minimum unit", 0, 1},
		{"below boundary bills minimum unit", 1023, 1},
		{"exactly one unit", 1024, 1},
		{"just above boundary truncates", 1025, 1},
		{"two units", 2048, 2},
		{"partial unit truncates", 3000, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RateLimitToUnit(tt.rateLimit)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("negative rate limit is rejected", func(t *testing.T) {
		_, err := RateLimitToUnit(-1)
		assert.ErrorIs(t, err, shared.ErrInvalidParameter)
	})
}
