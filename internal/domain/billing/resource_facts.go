package billing

// ResourceType identifies a billable resource family
type ResourceType string

const (
	ResourceTypeInstance     ResourceType = "instance"
	ResourceTypeVolume       ResourceType = "volume"
	ResourceTypeFloatingIP   ResourceType = "floatingip"
	ResourceTypeLoadBalancer ResourceType = "loadbalancer"
	ResourceTypeListener     ResourceType = "listener"
)

// IsValid checks if the resource type is known
func (t ResourceType) IsValid() bool {
	switch t {
	case ResourceTypeInstance, ResourceTypeVolume, ResourceTypeFloatingIP,
		ResourceTypeLoadBalancer, ResourceTypeListener:
		return true
	}
	return false
}

// ResourceFacts is the canonical identity and attributes of a backend
// resource, extracted from a backend response. An empty ResourceID means
// nothing was extracted and nothing is billed.
type ResourceFacts struct {
	ResourceID   string       `json:"resource_id"`
	ResourceName string       `json:"resource_name"`
	ResourceType ResourceType `json:"resource_type"`
	ProjectID    string       `json:"project_id"`
	UserID       string       `json:"user_id"`
	// Attributes carries raw backend attributes the product item needs to
	// derive a billable volume (e.g. "size", "rate_limit").
	Attributes map[string]any `json:"attributes,omitempty"`
	// ChildResourceIDs lists dependent resources that disappear with this
	// one (e.g. a load balancer's listeners), captured before a cascading
	// delete is forwarded.
	ChildResourceIDs []string `json:"child_resource_ids,omitempty"`
}

// IsZero reports whether no resource identity was extracted
func (f ResourceFacts) IsZero() bool {
	return f.ResourceID == ""
}

// IntAttribute reads an integer attribute, tolerating the numeric types JSON
// decoding produces.
func (f ResourceFacts) IntAttribute(key string) (int64, bool) {
	v, ok := f.Attributes[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	}
	return 0, false
}
