// Package account talks to the account-balance collaborator the gateway
// consults before admitting spend-increasing requests.
package account

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/cloudmeter/backend/internal/domain/shared"
	"github.com/cloudmeter/backend/internal/domain/shared/valueobject"
	"go.uber.org/zap"
)

// Balance is an account's solvency snapshot
type Balance struct {
	// Level is the account privilege tier; the top tier is exempt from
	// solvency checks
	Level   int
	Balance valueobject.Money
}

// Client fetches account balances. Authorization failures, unknown accounts
// and service errors are distinguishable via shared.ErrUnauthorized,
// shared.ErrNotFound and shared.ErrServiceError.
type Client struct {
	baseURL string
	client  *http.Client
	tokens  *TokenSource
	logger  *zap.Logger
}

// Config holds the balance collaborator settings
type Config struct {
	URL     string
	Timeout time.Duration
	// AuthURL, User and Password configure the credential refresh path
	AuthURL  string
	User     string
	Password string
}

// NewClient creates a balance client with its own credential source
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: cfg.URL,
		client:  &http.Client{Timeout: timeout},
		tokens:  NewTokenSource(cfg.AuthURL, cfg.User, cfg.Password, timeout),
		logger:  logger.Named("account"),
	}
}

// balanceResponse is the collaborator's wire format
type balanceResponse struct {
	Level   int    `json:"level"`
	Balance string `json:"balance"`
}

// GetBalance fetches the owning project's balance. A timeout is reported as
// an authorization failure so the caller's single credential-refresh retry
// applies to it; only genuinely unexpected failures surface as service errors.
func (c *Client) GetBalance(ctx context.Context, projectID string) (*Balance, error) {
	if projectID == "" {
		return nil, fmt.Errorf("%w: project ID is empty", shared.ErrInvalidParameter)
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: acquiring credentials: %v", shared.ErrUnauthorized, err)
	}

	url := fmt.Sprintf("%s/v1/accounts/%s/balance", c.baseURL, projectID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building balance request: %v", shared.ErrServiceError, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: balance check timed out: %v", shared.ErrUnauthorized, err)
		}
		return nil, fmt.Errorf("%w: balance check failed: %v", shared.ErrServiceError, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
		// fall through to decode
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, fmt.Errorf("%w: balance service rejected credentials", shared.ErrUnauthorized)
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: account %s", shared.ErrNotFound, projectID)
	default:
		return nil, fmt.Errorf("%w: balance service returned %d", shared.ErrServiceError, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return nil, fmt.Errorf("%w: reading balance response: %v", shared.ErrServiceError, err)
	}

	var br balanceResponse
	if err := json.Unmarshal(body, &br); err != nil {
		return nil, fmt.Errorf("%w: unexpected balance response shape: %v", shared.ErrServiceError, err)
	}
	balance, err := valueobject.NewMoneyFromString(br.Balance)
	if err != nil {
		return nil, fmt.Errorf("%w: unexpected balance value %q", shared.ErrServiceError, br.Balance)
	}

	return &Balance{Level: br.Level, Balance: balance}, nil
}

// RefreshCredentials forces a new service token before the caller retries
func (c *Client) RefreshCredentials(ctx context.Context) error {
	c.logger.Debug("refreshing balance service credentials")
	return c.tokens.Refresh(ctx)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
