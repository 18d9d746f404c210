package middleware

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appbilling "github.com/cloudmeter/backend/internal/application/billing"
	domain "github.com/cloudmeter/backend/internal/domain/billing"
	"github.com/cloudmeter/backend/internal/domain/shared"
	"github.com/cloudmeter/backend/internal/domain/shared/valueobject"
	"github.com/cloudmeter/backend/internal/infrastructure/account"
	"github.com/cloudmeter/backend/internal/infrastructure/config"
	"github.com/cloudmeter/backend/internal/infrastructure/telemetry"
)

// Fixed rejection bodies. Internal error detail is logged, never leaked.
const (
	bodyUnauthorized        = "unauthorized"
	bodyInsufficientBalance = "insufficient balance"
	bodyAccountNotFound     = "account not found"
	bodyBillingError        = "billing service error"
)

// BalanceChecker is the account-balance collaborator the gateway consults
// before admitting spend-increasing requests.
type BalanceChecker interface {
	GetBalance(ctx context.Context, projectID string) (*account.Balance, error)
	RefreshCredentials(ctx context.Context) error
}

// ChildLister fetches a composite resource's children from the backend so a
// cascading delete can settle their orders too.
type ChildLister interface {
	Fetch(ctx context.Context, path string, header http.Header) ([]byte, error)
}

// Gateway intercepts inbound requests, classifies them against the rule
// table, checks solvency for spend-increasing actions, and after the backend
// has answered drives the matching order lifecycle transition.
type Gateway struct {
	cfg        config.BillingConfig
	classifier *Classifier
	accounts   BalanceChecker
	worker     appbilling.WorkerClient
	children   ChildLister
	metrics    *telemetry.GatewayMetrics
	logger     *zap.Logger
	minBalance valueobject.Money
}

func NewGateway(
	cfg config.BillingConfig,
	classifier *Classifier,
	accounts BalanceChecker,
	worker appbilling.WorkerClient,
	children ChildLister,
	metrics *telemetry.GatewayMetrics,
	logger *zap.Logger,
) (*Gateway, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	minBalance := valueobject.ZeroMoney()
	if cfg.MinBalance != "" {
		m, err := valueobject.NewMoneyFromString(cfg.MinBalance)
		if err != nil {
			return nil, err
		}
		minBalance = m
	}
	return &Gateway{
		cfg:        cfg,
		classifier: classifier,
		accounts:   accounts,
		worker:     worker,
		children:   children,
		metrics:    metrics,
		logger:     logger,
		minBalance: minBalance,
	}, nil
}

// Handler returns the enforcement middleware. It runs before the reverse
// proxy handler: classification and the solvency check happen first, then
// the request is forwarded, then the lifecycle is synchronized from the
// backend's response.
func (g *Gateway) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !g.cfg.Enabled {
			c.Next()
			return
		}

		reqBody := readRequestBody(c)
		match, ok := g.classifier.Classify(c.Request.Method, c.Request.URL.Path, reqBody)
		g.metrics.RecordClassified(c.Request.Context(), match.Action().String())
		if !ok || !match.Action().Billable() {
			c.Next()
			return
		}

		projectID := g.projectID(c)

		if g.needsSolvency(match) {
			if status, body := g.checkSolvency(c.Request.Context(), projectID); status != 0 {
				g.metrics.RecordRejection(c.Request.Context(), status)
				c.String(status, body)
				c.Abort()
				return
			}
		}

		// Children must be captured before the delete destroys them.
		var childIDs []string
		if match.Action() == ActionDelete && match.ChildrenPath() != "" {
			childIDs = g.listChildren(c, match)
		}

		// The backend mutation and the billing side effect must survive a
		// client disconnect once we commit to forwarding, so the forwarded
		// request itself is detached from the client's context.
		syncCtx := context.WithoutCancel(c.Request.Context())
		c.Request = c.Request.WithContext(syncCtx)

		capture := &bodyCapture{ResponseWriter: c.Writer}
		c.Writer = capture

		eventTime := time.Now().UTC()
		c.Next()

		if c.Writer.Status() >= http.StatusMultipleChoices {
			return
		}

		g.synchronize(syncCtx, match, projectID, reqBody, capture.body.Bytes(), childIDs, eventTime)
	}
}

func (g *Gateway) needsSolvency(match Match) bool {
	switch match.Action() {
	case ActionCreate, ActionResize:
		return true
	case ActionStatusChange:
		// Only unfreezing can increase spend.
		return match.Rule.TargetStatus == domain.OrderStatusRunning
	default:
		return false
	}
}

// checkSolvency returns (0, "") when the request may proceed, otherwise the
// rejection status and its fixed body. An authorization failure (including a
// balance-check timeout) gets exactly one retry after refreshing
// credentials.
func (g *Gateway) checkSolvency(ctx context.Context, projectID string) (int, string) {
	balance, err := g.accounts.GetBalance(ctx, projectID)
	if errors.Is(err, shared.ErrUnauthorized) {
		if refreshErr := g.accounts.RefreshCredentials(ctx); refreshErr != nil {
			g.logger.Warn("credential refresh failed", zap.Error(refreshErr))
			return http.StatusUnauthorized, bodyUnauthorized
		}
		balance, err = g.accounts.GetBalance(ctx, projectID)
	}
	switch {
	case errors.Is(err, shared.ErrUnauthorized):
		return http.StatusUnauthorized, bodyUnauthorized
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound, bodyAccountNotFound
	case err != nil:
		g.logger.Error("balance check failed",
			zap.String("project_id", projectID),
			zap.Error(err))
		return http.StatusInternalServerError, bodyBillingError
	}

	if balance.Level >= g.cfg.ExemptLevel {
		return 0, ""
	}
	if balance.Balance.Cmp(g.minBalance) <= 0 {
		g.logger.Info("request rejected for insufficient balance",
			zap.String("project_id", projectID),
			zap.String("balance", balance.Balance.String()))
		return http.StatusPaymentRequired, bodyInsufficientBalance
	}
	return 0, ""
}

func (g *Gateway) listChildren(c *gin.Context, match Match) []string {
	body, err := g.children.Fetch(c.Request.Context(), match.ChildrenPath(), c.Request.Header)
	if err != nil {
		g.logger.Warn("children listing failed before cascade delete",
			zap.String("resource_id", match.ResourceID),
			zap.Error(err))
		return nil
	}
	return ExtractChildIDs(body)
}

// synchronize drives the order lifecycle from the already-delivered backend
// response. Failures here are logged and counted, never surfaced: the
// backend resource has mutated and the client has its answer.
func (g *Gateway) synchronize(ctx context.Context, match Match, projectID string, reqBody, respBody []byte, childIDs []string, at time.Time) {
	var err error
	switch match.Action() {
	case ActionCreate:
		facts := ExtractFacts(match.Rule.ResourceType, projectID, respBody)
		if facts.IsZero() {
			g.logger.Warn("no resource facts in backend response, skipping billing",
				zap.String("resource_type", string(match.Rule.ResourceType)))
			return
		}
		err = g.worker.CreateOrder(ctx, facts, match.Rule.TargetStatus, at)
	case ActionResize:
		var quantity int64
		quantity, err = match.Rule.Quantity(reqBody)
		if err == nil {
			err = g.worker.ResizeOrder(ctx, match.ResourceID, quantity, at)
		}
	case ActionStatusChange:
		err = g.worker.ChangeOrderStatus(ctx, match.ResourceID, match.Rule.TargetStatus, at)
	case ActionDelete:
		err = g.worker.DeleteOrder(ctx, match.ResourceID, at)
		for _, childID := range childIDs {
			if childErr := g.worker.DeleteOrder(ctx, childID, at); childErr != nil {
				g.metrics.RecordSyncFailure(ctx, match.Action().String())
				g.logger.Error("child order delete failed",
					zap.String("resource_id", childID),
					zap.Error(childErr))
			}
		}
	}
	if err != nil {
		g.metrics.RecordSyncFailure(ctx, match.Action().String())
		g.logger.Error("order synchronization failed",
			zap.String("action", match.Action().String()),
			zap.String("resource_id", match.ResourceID),
			zap.Error(err))
	}
}

// projectID resolves the owning project from the X-Project-Id header, or
// falls back to the tenant segment of versioned compute/volume paths
// (/v2/{tenant}/...).
func (g *Gateway) projectID(c *gin.Context) string {
	if id := c.GetHeader("X-Project-Id"); id != "" {
		return id
	}
	parts := strings.Split(strings.Trim(c.Request.URL.Path, "/"), "/")
	if len(parts) >= 2 && strings.HasPrefix(parts[0], "v2") && parts[0] != "v2.0" {
		return parts[1]
	}
	return ""
}

// readRequestBody buffers the request body so both classification and the
// forwarded request can consume it.
func readRequestBody(c *gin.Context) []byte {
	if c.Request.Body == nil {
		return nil
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return nil
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(body))
	return body
}

// bodyCapture tees the response body written by the proxy so the gateway
// can extract resource facts after the fact.
type bodyCapture struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *bodyCapture) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyCapture) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}
