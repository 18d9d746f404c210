package middleware

import (
	"encoding/json"
	"fmt"
	"regexp"

	domain "github.com/cloudmeter/backend/internal/domain/billing"
	"github.com/cloudmeter/backend/internal/domain/pricing"
)

// BillingAction is the outcome of classifying an inbound request.
type BillingAction int

const (
	// ActionPassThrough marks a request that carries no billing consequence.
	ActionPassThrough BillingAction = iota
	// ActionExcluded marks a request that matches a metered resource pattern
	// but is explicitly blacklisted from billing (e.g. an attach action that
	// carries no separate charge).
	ActionExcluded
	ActionCreate
	ActionResize
	ActionStatusChange
	ActionDelete
)

func (a BillingAction) String() string {
	switch a {
	case ActionExcluded:
		return "excluded"
	case ActionCreate:
		return "create"
	case ActionResize:
		return "resize"
	case ActionStatusChange:
		return "status_change"
	case ActionDelete:
		return "delete"
	default:
		return "pass_through"
	}
}

// Billable reports whether the action drives an order lifecycle transition.
func (a BillingAction) Billable() bool {
	switch a {
	case ActionCreate, ActionResize, ActionStatusChange, ActionDelete:
		return true
	default:
		return false
	}
}

// Rule is one entry in the declarative classification table. Rules are
// evaluated in order, first match wins, so blacklist entries must precede
// the broader patterns they carve out of.
type Rule struct {
	// Method is the exact HTTP method the rule applies to.
	Method string
	// Path matches the request path. A named group (?P<id>...) captures the
	// resource ID for resize/status-change/delete rules.
	Path *regexp.Regexp
	// BodyKey, when non-empty, requires the request body to be a JSON object
	// carrying this top-level key. Disambiguates generic action endpoints.
	BodyKey string
	Action  BillingAction
	// ResourceType names the metered product family the rule belongs to.
	ResourceType domain.ResourceType
	// TargetStatus is the order status a create or status-change rule drives
	// the resource towards.
	TargetStatus domain.OrderStatus
	// Quantity extracts the new billable quantity from the request body for
	// resize rules.
	Quantity func(body []byte) (int64, error)
	// ChildrenPath, when non-empty, is a sprintf template producing the
	// backend path that lists the children of the matched composite
	// resource. Deletes of such resources cascade to the children's orders.
	ChildrenPath string
}

// Match is a classified request.
type Match struct {
	Rule *Rule
	// ResourceID is the path-captured resource ID; empty for create rules,
	// where the ID only exists once the backend has responded.
	ResourceID string
}

// Action is a shorthand that tolerates the zero Match.
func (m Match) Action() BillingAction {
	if m.Rule == nil {
		return ActionPassThrough
	}
	return m.Rule.Action
}

// ChildrenPath renders the rule's children listing path for this match.
func (m Match) ChildrenPath() string {
	if m.Rule == nil || m.Rule.ChildrenPath == "" {
		return ""
	}
	return fmt.Sprintf(m.Rule.ChildrenPath, m.ResourceID)
}

// Classifier evaluates the rule table against inbound requests.
type Classifier struct {
	rules []Rule
}

func NewClassifier(rules []Rule) *Classifier {
	return &Classifier{rules: rules}
}

// Classify matches (method, path, body) against the table. The bool result
// is false when no rule matched, meaning the request passes through.
func (c *Classifier) Classify(method, path string, body []byte) (Match, bool) {
	for i := range c.rules {
		rule := &c.rules[i]
		if rule.Method != method {
			continue
		}
		groups := rule.Path.FindStringSubmatch(path)
		if groups == nil {
			continue
		}
		if rule.BodyKey != "" && !hasBodyKey(body, rule.BodyKey) {
			continue
		}
		match := Match{Rule: rule}
		if idx := rule.Path.SubexpIndex("id"); idx >= 0 && idx < len(groups) {
			match.ResourceID = groups[idx]
		}
		return match, true
	}
	return Match{}, false
}

func hasBodyKey(body []byte, key string) bool {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return false
	}
	_, ok := envelope[key]
	return ok
}

// DefaultRules is the classification table for the compute, block storage
// and network APIs the gateway fronts. Action-style endpoints share a single
// URL per resource, so the body key picks the rule.
func DefaultRules() []Rule {
	return []Rule{
		// Volume attach carries no separate charge; it must precede the
		// generic server action rules.
		{
			Method:       "POST",
			Path:         regexp.MustCompile(`^/v2(?:\.\d+)?/[^/]+/servers/(?P<id>[^/]+)/os-volume_attachments$`),
			Action:       ActionExcluded,
			ResourceType: domain.ResourceTypeInstance,
		},

		// Compute instances.
		{
			Method:       "POST",
			Path:         regexp.MustCompile(`^/v2(?:\.\d+)?/[^/]+/servers$`),
			BodyKey:      "server",
			Action:       ActionCreate,
			ResourceType: domain.ResourceTypeInstance,
			TargetStatus: domain.OrderStatusRunning,
		},
		{
			Method:       "POST",
			Path:         regexp.MustCompile(`^/v2(?:\.\d+)?/[^/]+/servers/(?P<id>[^/]+)/action$`),
			BodyKey:      "os-stop",
			Action:       ActionStatusChange,
			ResourceType: domain.ResourceTypeInstance,
			TargetStatus: domain.OrderStatusStopped,
		},
		{
			Method:       "POST",
			Path:         regexp.MustCompile(`^/v2(?:\.\d+)?/[^/]+/servers/(?P<id>[^/]+)/action$`),
			BodyKey:      "os-start",
			Action:       ActionStatusChange,
			ResourceType: domain.ResourceTypeInstance,
			TargetStatus: domain.OrderStatusRunning,
		},
		{
			Method:       "POST",
			Path:         regexp.MustCompile(`^/v2(?:\.\d+)?/[^/]+/servers/(?P<id>[^/]+)/action$`),
			BodyKey:      "resize",
			Action:       ActionResize,
			ResourceType: domain.ResourceTypeInstance,
			Quantity:     func([]byte) (int64, error) { return 1, nil },
		},
		{
			Method:       "DELETE",
			Path:         regexp.MustCompile(`^/v2(?:\.\d+)?/[^/]+/servers/(?P<id>[^/]+)$`),
			Action:       ActionDelete,
			ResourceType: domain.ResourceTypeInstance,
		},

		// Block storage volumes.
		{
			Method:       "POST",
			Path:         regexp.MustCompile(`^/v2(?:\.\d+)?/[^/]+/volumes$`),
			BodyKey:      "volume",
			Action:       ActionCreate,
			ResourceType: domain.ResourceTypeVolume,
			TargetStatus: domain.OrderStatusRunning,
		},
		{
			Method:       "POST",
			Path:         regexp.MustCompile(`^/v2(?:\.\d+)?/[^/]+/volumes/(?P<id>[^/]+)/action$`),
			BodyKey:      "os-extend",
			Action:       ActionResize,
			ResourceType: domain.ResourceTypeVolume,
			Quantity:     volumeExtendQuantity,
		},
		{
			Method:       "DELETE",
			Path:         regexp.MustCompile(`^/v2(?:\.\d+)?/[^/]+/volumes/(?P<id>[^/]+)$`),
			Action:       ActionDelete,
			ResourceType: domain.ResourceTypeVolume,
		},

		// Floating IPs bill by bandwidth units derived from rate_limit.
		{
			Method:       "POST",
			Path:         regexp.MustCompile(`^/v2\.0/floatingips$`),
			BodyKey:      "floatingip",
			Action:       ActionCreate,
			ResourceType: domain.ResourceTypeFloatingIP,
			TargetStatus: domain.OrderStatusRunning,
		},
		{
			Method:       "PUT",
			Path:         regexp.MustCompile(`^/v2\.0/floatingips/(?P<id>[^/]+)$`),
			BodyKey:      "floatingip",
			Action:       ActionResize,
			ResourceType: domain.ResourceTypeFloatingIP,
			Quantity:     floatingIPQuantity,
		},
		{
			Method:       "DELETE",
			Path:         regexp.MustCompile(`^/v2\.0/floatingips/(?P<id>[^/]+)$`),
			Action:       ActionDelete,
			ResourceType: domain.ResourceTypeFloatingIP,
		},

		// Load balancers. Deleting one cascades to its listeners' orders.
		{
			Method:       "POST",
			Path:         regexp.MustCompile(`^/v2\.0/lbaas/loadbalancers$`),
			BodyKey:      "loadbalancer",
			Action:       ActionCreate,
			ResourceType: domain.ResourceTypeLoadBalancer,
			TargetStatus: domain.OrderStatusRunning,
		},
		{
			Method:       "DELETE",
			Path:         regexp.MustCompile(`^/v2\.0/lbaas/loadbalancers/(?P<id>[^/]+)$`),
			Action:       ActionDelete,
			ResourceType: domain.ResourceTypeLoadBalancer,
			ChildrenPath: "/v2.0/lbaas/listeners?loadbalancer_id=%s",
		},
		{
			Method:       "POST",
			Path:         regexp.MustCompile(`^/v2\.0/lbaas/listeners$`),
			BodyKey:      "listener",
			Action:       ActionCreate,
			ResourceType: domain.ResourceTypeListener,
			TargetStatus: domain.OrderStatusRunning,
		},
		{
			Method:       "DELETE",
			Path:         regexp.MustCompile(`^/v2\.0/lbaas/listeners/(?P<id>[^/]+)$`),
			Action:       ActionDelete,
			ResourceType: domain.ResourceTypeListener,
		},
	}
}

func volumeExtendQuantity(body []byte) (int64, error) {
	var req struct {
		Extend struct {
			NewSize int64 `json:"new_size"`
		} `json:"os-extend"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return 0, err
	}
	return req.Extend.NewSize, nil
}

func floatingIPQuantity(body []byte) (int64, error) {
	var req struct {
		FloatingIP struct {
			RateLimit int64 `json:"rate_limit"`
		} `json:"floatingip"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return 0, err
	}
	return pricing.RateLimitToUnit(req.FloatingIP.RateLimit)
}
