package middleware

import (
	"encoding/json"

	domain "github.com/cloudmeter/backend/internal/domain/billing"
)

// ExtractFacts parses a backend response body into the resource identity and
// attributes the order lifecycle needs. Parse failures yield the zero fact
// set: extraction fails open so the user-visible response is never blocked
// by a body shape the gateway does not understand.
func ExtractFacts(resourceType domain.ResourceType, projectID string, body []byte) domain.ResourceFacts {
	switch resourceType {
	case domain.ResourceTypeInstance:
		return instanceFacts(projectID, body)
	case domain.ResourceTypeVolume:
		return volumeFacts(projectID, body)
	case domain.ResourceTypeFloatingIP:
		return floatingIPFacts(projectID, body)
	case domain.ResourceTypeLoadBalancer:
		return loadBalancerFacts(projectID, body)
	case domain.ResourceTypeListener:
		return listenerFacts(projectID, body)
	default:
		return domain.ResourceFacts{}
	}
}

func instanceFacts(projectID string, body []byte) domain.ResourceFacts {
	var resp struct {
		Server struct {
			ID       string `json:"id"`
			Name     string `json:"name"`
			TenantID string `json:"tenant_id"`
			UserID   string `json:"user_id"`
		} `json:"server"`
	}
	if err := json.Unmarshal(body, &resp); err != nil || resp.Server.ID == "" {
		return domain.ResourceFacts{}
	}
	return domain.ResourceFacts{
		ResourceID:   resp.Server.ID,
		ResourceName: resp.Server.Name,
		ResourceType: domain.ResourceTypeInstance,
		ProjectID:    firstNonEmpty(resp.Server.TenantID, projectID),
		UserID:       resp.Server.UserID,
	}
}

func volumeFacts(projectID string, body []byte) domain.ResourceFacts {
	var resp struct {
		Volume struct {
			ID     string `json:"id"`
			Name   string `json:"name"`
			Size   int64  `json:"size"`
			UserID string `json:"user_id"`
		} `json:"volume"`
	}
	if err := json.Unmarshal(body, &resp); err != nil || resp.Volume.ID == "" {
		return domain.ResourceFacts{}
	}
	return domain.ResourceFacts{
		ResourceID:   resp.Volume.ID,
		ResourceName: resp.Volume.Name,
		ResourceType: domain.ResourceTypeVolume,
		ProjectID:    projectID,
		UserID:       resp.Volume.UserID,
		Attributes:   map[string]any{"size": resp.Volume.Size},
	}
}

func floatingIPFacts(projectID string, body []byte) domain.ResourceFacts {
	var resp struct {
		FloatingIP struct {
			ID        string `json:"id"`
			Address   string `json:"floating_ip_address"`
			TenantID  string `json:"tenant_id"`
			RateLimit int64  `json:"rate_limit"`
		} `json:"floatingip"`
	}
	if err := json.Unmarshal(body, &resp); err != nil || resp.FloatingIP.ID == "" {
		return domain.ResourceFacts{}
	}
	return domain.ResourceFacts{
		ResourceID:   resp.FloatingIP.ID,
		ResourceName: resp.FloatingIP.Address,
		ResourceType: domain.ResourceTypeFloatingIP,
		ProjectID:    firstNonEmpty(resp.FloatingIP.TenantID, projectID),
		Attributes:   map[string]any{"rate_limit": resp.FloatingIP.RateLimit},
	}
}

func loadBalancerFacts(projectID string, body []byte) domain.ResourceFacts {
	var resp struct {
		LoadBalancer struct {
			ID        string `json:"id"`
			Name      string `json:"name"`
			TenantID  string `json:"tenant_id"`
			Listeners []struct {
				ID string `json:"id"`
			} `json:"listeners"`
		} `json:"loadbalancer"`
	}
	if err := json.Unmarshal(body, &resp); err != nil || resp.LoadBalancer.ID == "" {
		return domain.ResourceFacts{}
	}
	facts := domain.ResourceFacts{
		ResourceID:   resp.LoadBalancer.ID,
		ResourceName: resp.LoadBalancer.Name,
		ResourceType: domain.ResourceTypeLoadBalancer,
		ProjectID:    firstNonEmpty(resp.LoadBalancer.TenantID, projectID),
	}
	for _, l := range resp.LoadBalancer.Listeners {
		facts.ChildResourceIDs = append(facts.ChildResourceIDs, l.ID)
	}
	return facts
}

func listenerFacts(projectID string, body []byte) domain.ResourceFacts {
	var resp struct {
		Listener struct {
			ID              string `json:"id"`
			Name            string `json:"name"`
			TenantID        string `json:"tenant_id"`
			ConnectionLimit int64  `json:"connection_limit"`
		} `json:"listener"`
	}
	if err := json.Unmarshal(body, &resp); err != nil || resp.Listener.ID == "" {
		return domain.ResourceFacts{}
	}
	return domain.ResourceFacts{
		ResourceID:   resp.Listener.ID,
		ResourceName: resp.Listener.Name,
		ResourceType: domain.ResourceTypeListener,
		ProjectID:    firstNonEmpty(resp.Listener.TenantID, projectID),
		Attributes:   map[string]any{"connection_limit": resp.Listener.ConnectionLimit},
	}
}

// ExtractChildIDs parses a listeners listing into the child resource IDs a
// cascading delete must settle. Parse failures fail open to no children.
func ExtractChildIDs(body []byte) []string {
	var resp struct {
		Listeners []struct {
			ID string `json:"id"`
		} `json:"listeners"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil
	}
	ids := make([]string, 0, len(resp.Listeners))
	for _, l := range resp.Listeners {
		if l.ID != "" {
			ids = append(ids, l.ID)
		}
	}
	return ids
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
