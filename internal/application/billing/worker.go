package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	domain "github.com/cloudmeter/backend/internal/domain/billing"
	"github.com/cloudmeter/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// WorkerClient is how the gateway drives order lifecycle transitions. Two
// variants exist: LocalWorkerClient calls the lifecycle service in-process,
// RemoteWorkerClient calls a worker deployment over HTTP. The variant is
// chosen once at composition time.
type WorkerClient interface {
	CreateOrder(ctx context.Context, facts domain.ResourceFacts, status domain.OrderStatus, at time.Time) error
	ResizeOrder(ctx context.Context, resourceID string, newQuantity int64, at time.Time) error
	ChangeOrderStatus(ctx context.Context, resourceID string, status domain.OrderStatus, at time.Time) error
	DeleteOrder(ctx context.Context, resourceID string, at time.Time) error
}

// LocalWorkerClient applies lifecycle transitions in-process
type LocalWorkerClient struct {
	orders *OrderService
}

// NewLocalWorkerClient wraps the lifecycle service as a worker client
func NewLocalWorkerClient(orders *OrderService) *LocalWorkerClient {
	return &LocalWorkerClient{orders: orders}
}

func (c *LocalWorkerClient) CreateOrder(ctx context.Context, facts domain.ResourceFacts, status domain.OrderStatus, at time.Time) error {
	return c.orders.Create(ctx, facts, status, at)
}

func (c *LocalWorkerClient) ResizeOrder(ctx context.Context, resourceID string, newQuantity int64, at time.Time) error {
	return c.orders.Resize(ctx, resourceID, newQuantity, at)
}

func (c *LocalWorkerClient) ChangeOrderStatus(ctx context.Context, resourceID string, status domain.OrderStatus, at time.Time) error {
	return c.orders.ChangeStatus(ctx, resourceID, status, at)
}

func (c *LocalWorkerClient) DeleteOrder(ctx context.Context, resourceID string, at time.Time) error {
	return c.orders.Delete(ctx, resourceID, at)
}

// orderEvent is the wire format of a lifecycle event sent to a remote worker
type orderEvent struct {
	Kind       string                `json:"kind"`
	ResourceID string                `json:"resource_id,omitempty"`
	Facts      *domain.ResourceFacts `json:"facts,omitempty"`
	Status     domain.OrderStatus    `json:"status,omitempty"`
	Quantity   int64                 `json:"quantity,omitempty"`
	EventTime  time.Time             `json:"event_time"`
}

// RemoteWorkerClient ships lifecycle events to a worker deployment over HTTP
type RemoteWorkerClient struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewRemoteWorkerClient creates a worker client talking to baseURL with the
// given request timeout.
func NewRemoteWorkerClient(baseURL string, timeout time.Duration, logger *zap.Logger) *RemoteWorkerClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RemoteWorkerClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

func (c *RemoteWorkerClient) CreateOrder(ctx context.Context, facts domain.ResourceFacts, status domain.OrderStatus, at time.Time) error {
	return c.post(ctx, orderEvent{Kind: "create", Facts: &facts, Status: status, EventTime: at})
}

func (c *RemoteWorkerClient) ResizeOrder(ctx context.Context, resourceID string, newQuantity int64, at time.Time) error {
	return c.post(ctx, orderEvent{Kind: "resize", ResourceID: resourceID, Quantity: newQuantity, EventTime: at})
}

func (c *RemoteWorkerClient) ChangeOrderStatus(ctx context.Context, resourceID string, status domain.OrderStatus, at time.Time) error {
	return c.post(ctx, orderEvent{Kind: "change_status", ResourceID: resourceID, Status: status, EventTime: at})
}

func (c *RemoteWorkerClient) DeleteOrder(ctx context.Context, resourceID string, at time.Time) error {
	return c.post(ctx, orderEvent{Kind: "delete", ResourceID: resourceID, EventTime: at})
}

func (c *RemoteWorkerClient) post(ctx context.Context, event orderEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding order event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/order-events", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building worker request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: worker call failed: %v", shared.ErrServiceError, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return shared.ErrNotFound
	case resp.StatusCode >= 400:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: worker returned %d: %s", shared.ErrServiceError, resp.StatusCode, detail)
	}
	return nil
}
