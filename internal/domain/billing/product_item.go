package billing

import (
	"fmt"

	"github.com/cloudmeter/backend/internal/domain/pricing"
	"github.com/cloudmeter/backend/internal/domain/shared"
)

// ProductItem maps a resource family to its product catalog entry and derives
// the billable volume from extracted resource facts. One static variant
// exists per resource family; the registry below is the complete set.
type ProductItem interface {
	// ProductName is the catalog name the family's prices are configured under
	ProductName() string
	// ResourceVolume converts raw resource attributes to billing units
	ResourceVolume(facts ResourceFacts) (int64, error)
}

// ProductItemRegistry dispatches resource types to their product item
type ProductItemRegistry map[ResourceType]ProductItem

// DefaultProductItems returns the compile-time table of supported resource
// families.
func DefaultProductItems() ProductItemRegistry {
	return ProductItemRegistry{
		ResourceTypeInstance:     instanceItem{},
		ResourceTypeVolume:       volumeItem{},
		ResourceTypeFloatingIP:   floatingIPItem{},
		ResourceTypeLoadBalancer: loadBalancerItem{},
		ResourceTypeListener:     listenerItem{},
	}
}

// Lookup returns the product item for a resource type
func (r ProductItemRegistry) Lookup(t ResourceType) (ProductItem, error) {
	item, ok := r[t]
	if !ok {
		return nil, fmt.Errorf("%w: no product item for resource type %q", shared.ErrNotFound, t)
	}
	return item, nil
}

// instanceItem bills compute instances per instance
type instanceItem struct{}

func (instanceItem) ProductName() string { return "compute.instance" }

func (instanceItem) ResourceVolume(ResourceFacts) (int64, error) { return 1, nil }

// volumeItem bills block storage by its size attribute
type volumeItem struct{}

func (volumeItem) ProductName() string { return "storage.volume" }

func (volumeItem) ResourceVolume(facts ResourceFacts) (int64, error) {
	size, ok := facts.IntAttribute("size")
	if !ok {
		return 0, fmt.Errorf("%w: volume %q has no size attribute", shared.ErrInvalidParameter, facts.ResourceID)
	}
	if size <= 0 {
		return 0, fmt.Errorf("%w: volume size %d must be positive", shared.ErrInvalidParameter, size)
	}
	return size, nil
}

// floatingIPItem bills floating IPs by bandwidth units derived from the
// configured rate limit
type floatingIPItem struct{}

func (floatingIPItem) ProductName() string { return "network.floatingip" }

func (floatingIPItem) ResourceVolume(facts ResourceFacts) (int64, error) {
	rateLimit, ok := facts.IntAttribute("rate_limit")
	if !ok {
		return 0, fmt.Errorf("%w: floating IP %q has no rate_limit attribute", shared.ErrInvalidParameter, facts.ResourceID)
	}
	return pricing.RateLimitToUnit(rateLimit)
}

// loadBalancerItem bills load balancers per balancer
type loadBalancerItem struct{}

func (loadBalancerItem) ProductName() string { return "network.loadbalancer" }

func (loadBalancerItem) ResourceVolume(ResourceFacts) (int64, error) { return 1, nil }

// listenerItem bills listeners by their connection limit bucket
type listenerItem struct{}

func (listenerItem) ProductName() string { return "network.listener" }

func (listenerItem) ResourceVolume(facts ResourceFacts) (int64, error) {
	limit, ok := facts.IntAttribute("connection_limit")
	if !ok {
		// Listeners without an explicit limit bill as one unit
		return 1, nil
	}
	if limit < 0 {
		return 0, fmt.Errorf("%w: connection limit %d is negative", shared.ErrInvalidParameter, limit)
	}
	// One unit per thousand allowed connections, minimum one
	units := limit / 1000
	if units < 1 {
		units = 1
	}
	return units, nil
}
