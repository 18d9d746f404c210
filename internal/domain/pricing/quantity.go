package pricing

import (
	"fmt"

	"github.com/cloudmeter/backend/internal/domain/shared"
)

// rateLimitBoundary is the bandwidth granularity sold as one billing unit.
const rateLimitBoundary = 1024

// RateLimitToUnit converts a raw bandwidth rate limit to billable units.
// Anything below one boundary counts as a full unit; above that, partial
// units are truncated. Negative input is a caller bug.
func RateLimitToUnit(rateLimit int64) (int64, error) {
	if rateLimit < 0 {
		return 0, fmt.Errorf("%w: rate limit %d is negative", shared.ErrInvalidParameter, rateLimit)
	}
	if rateLimit < rateLimitBoundary {
		return 1, nil
	}
	return rateLimit / rateLimitBoundary, nil
}
