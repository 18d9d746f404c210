package account

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenSource caches the service token for the balance API and refreshes it
// on demand. Expiry is read from the token's own claims so a stale token is
// replaced before it is ever sent.
type TokenSource struct {
	authURL  string
	user     string
	password string
	client   *http.Client

	mu     sync.Mutex
	token  string
	expiry time.Time
}

// NewTokenSource creates a token source against the credential issuer
func NewTokenSource(authURL, user, password string, timeout time.Duration) *TokenSource {
	return &TokenSource{
		authURL:  authURL,
		user:     user,
		password: password,
		client:   &http.Client{Timeout: timeout},
	}
}

// Token returns the cached token, refreshing it when missing or expired
func (ts *TokenSource) Token(ctx context.Context) (string, error) {
	ts.mu.Lock()
	token, expiry := ts.token, ts.expiry
	ts.mu.Unlock()

	if token != "" && (expiry.IsZero() || time.Now().Before(expiry.Add(-30*time.Second))) {
		return token, nil
	}
	if err := ts.Refresh(ctx); err != nil {
		return "", err
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.token, nil
}

// tokenResponse is the credential issuer's wire format
type tokenResponse struct {
	Token string `json:"token"`
}

// Refresh obtains a fresh service token from the issuer
func (ts *TokenSource) Refresh(ctx context.Context) error {
	payload, err := json.Marshal(map[string]string{
		"user":     ts.user,
		"password": ts.password,
	})
	if err != nil {
		return fmt.Errorf("encoding credential request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ts.authURL+"/v1/tokens", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building credential request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := ts.client.Do(req)
	if err != nil {
		return fmt.Errorf("credential refresh failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("credential issuer returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return fmt.Errorf("reading credential response: %w", err)
	}
	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return fmt.Errorf("unexpected credential response shape: %w", err)
	}
	if tr.Token == "" {
		return fmt.Errorf("credential issuer returned an empty token")
	}

	ts.mu.Lock()
	ts.token = tr.Token
	ts.expiry = tokenExpiry(tr.Token)
	ts.mu.Unlock()
	return nil
}

// tokenExpiry reads the exp claim without verifying the signature; the
// issuer is trusted, the claim only schedules the proactive refresh.
// A token without a readable expiry is refreshed only on rejection.
func tokenExpiry(token string) time.Time {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
