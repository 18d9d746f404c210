package account

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudmeter/backend/internal/domain/shared"
)

// newAuthServer issues an opaque token for every credential request
func newAuthServer(t *testing.T) (*httptest.Server, *int) {
	t.Helper()
	var issued int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/tokens", r.URL.Path)
		var creds map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
		assert.Equal(t, "metering", creds["user"])
		issued++
		_ = json.NewEncoder(w).Encode(map[string]string{"token": "tok-1"})
	}))
	return srv, &issued
}

func newBalanceClient(t *testing.T, balanceURL, authURL string) *Client {
	t.Helper()
	return NewClient(Config{
		URL:      balanceURL,
		Timeout:  2 * time.Second,
		AuthURL:  authURL,
		User:     "metering",
		Password: "secret",
	}, nil)
}

func TestClientGetBalance(t *testing.T) {
	auth, _ := newAuthServer(t)
	defer auth.Close()

	t.Run("decodes level and balance", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/accounts/proj-1/balance", r.URL.Path)
			assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
			_ = json.NewEncoder(w).Encode(map[string]any{"level": 9, "balance": "-9.9"})
		}))
		defer srv.Close()

		balance, err := newBalanceClient(t, srv.URL, auth.URL).GetBalance(context.Background(), "proj-1")
		require.NoError(t, err)
		assert.Equal(t, 9, balance.Level)
		assert.Equal(t, "-9.9", balance.Balance.String())
	})

	t.Run("empty project ID is a caller bug", func(t *testing.T) {
		_, err := newBalanceClient(t, "http://unused", auth.URL).GetBalance(context.Background(), "")
		assert.ErrorIs(t, err, shared.ErrInvalidParameter)
	})

	t.Run("401 maps to ErrUnauthorized", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()

		_, err := newBalanceClient(t, srv.URL, auth.URL).GetBalance(context.Background(), "proj-1")
		assert.ErrorIs(t, err, shared.ErrUnauthorized)
	})

	t.Run("404 maps to ErrNotFound", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		_, err := newBalanceClient(t, srv.URL, auth.URL).GetBalance(context.Background(), "proj-1")
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("500 maps to ErrServiceError", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		_, err := newBalanceClient(t, srv.URL, auth.URL).GetBalance(context.Background(), "proj-1")
		assert.ErrorIs(t, err, shared.ErrServiceError)
	})

	t.Run("timeout maps to ErrUnauthorized for the retry path", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			time.Sleep(200 * time.Millisecond)
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		client := NewClient(Config{
			URL:      srv.URL,
			Timeout:  50 * time.Millisecond,
			AuthURL:  auth.URL,
			User:     "metering",
			Password: "secret",
		}, nil)
		_, err := client.GetBalance(context.Background(), "proj-1")
		assert.ErrorIs(t, err, shared.ErrUnauthorized)
	})

	t.Run("malformed balance maps to ErrServiceError", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{"level": 1, "balance": "lots"})
		}))
		defer srv.Close()

		_, err := newBalanceClient(t, srv.URL, auth.URL).GetBalance(context.Background(), "proj-1")
		assert.ErrorIs(t, err, shared.ErrServiceError)
	})
}

func TestClientRefreshCredentials(t *testing.T) {
	auth, issued := newAuthServer(t)
	defer auth.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"level": 1, "balance": "10"})
	}))
	defer srv.Close()

	client := newBalanceClient(t, srv.URL, auth.URL)
	_, err := client.GetBalance(context.Background(), "proj-1")
	require.NoError(t, err)
	assert.Equal(t, 1, *issued)

	// The cached token would normally be reused; an explicit refresh forces
	// a new one.
	require.NoError(t, client.RefreshCredentials(context.Background()))
	assert.Equal(t, 2, *issued)
}

func TestTokenSource(t *testing.T) {
	t.Run("caches the token across calls", func(t *testing.T) {
		auth, issued := newAuthServer(t)
		defer auth.Close()

		ts := NewTokenSource(auth.URL, "metering", "secret", time.Second)
		for i := 0; i < 3; i++ {
			token, err := ts.Token(context.Background())
			require.NoError(t, err)
			assert.Equal(t, "tok-1", token)
		}
		assert.Equal(t, 1, *issued)
	})

	t.Run("issuer failure surfaces", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}))
		defer srv.Close()

		ts := NewTokenSource(srv.URL, "metering", "secret", time.Second)
		_, err := ts.Token(context.Background())
		assert.Error(t, err)
	})

	t.Run("empty token is rejected", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]string{"token": ""})
		}))
		defer srv.Close()

		ts := NewTokenSource(srv.URL, "metering", "secret", time.Second)
		_, err := ts.Token(context.Background())
		assert.Error(t, err)
	})
}
