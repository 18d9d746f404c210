package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appbilling "github.com/cloudmeter/backend/internal/application/billing"
	domain "github.com/cloudmeter/backend/internal/domain/billing"
	"github.com/cloudmeter/backend/internal/domain/shared"
)

// orderEventRequest mirrors the wire format RemoteWorkerClient emits.
type orderEventRequest struct {
	Kind       string                `json:"kind" binding:"required,oneof=create resize change_status delete"`
	ResourceID string                `json:"resource_id"`
	Facts      *domain.ResourceFacts `json:"facts"`
	Status     domain.OrderStatus    `json:"status"`
	Quantity   int64                 `json:"quantity"`
	EventTime  time.Time             `json:"event_time" binding:"required"`
}

// OrderEventHandler is the receiving side of the remote worker protocol: a
// worker deployment exposes it and gateways ship lifecycle events to it.
type OrderEventHandler struct {
	orders *appbilling.OrderService
	logger *zap.Logger
}

func NewOrderEventHandler(orders *appbilling.OrderService, logger *zap.Logger) *OrderEventHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderEventHandler{orders: orders, logger: logger}
}

// RegisterRoutes mounts the handler under the given group.
func (h *OrderEventHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/order-events", h.Apply)
}

// Apply applies one lifecycle event.
func (h *OrderEventHandler) Apply(c *gin.Context) {
	var req orderEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	var err error
	switch req.Kind {
	case "create":
		if req.Facts == nil || req.Facts.IsZero() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "create event requires resource facts"})
			return
		}
		err = h.orders.Create(ctx, *req.Facts, req.Status, req.EventTime)
	case "resize":
		err = h.orders.Resize(ctx, req.ResourceID, req.Quantity, req.EventTime)
	case "change_status":
		err = h.orders.ChangeStatus(ctx, req.ResourceID, req.Status, req.EventTime)
	case "delete":
		err = h.orders.Delete(ctx, req.ResourceID, req.EventTime)
	}
	if err != nil {
		h.respondError(c, req, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "applied"})
}

func (h *OrderEventHandler) respondError(c *gin.Context, req orderEventRequest, err error) {
	h.logger.Error("order event failed",
		zap.String("kind", req.Kind),
		zap.String("resource_id", req.ResourceID),
		zap.Error(err))
	switch {
	case errors.Is(err, shared.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
	case errors.Is(err, shared.ErrInvalidParameter), errors.Is(err, shared.ErrInvalidState):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
