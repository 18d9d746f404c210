package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	appbilling "github.com/cloudmeter/backend/internal/application/billing"
	domain "github.com/cloudmeter/backend/internal/domain/billing"
	"github.com/cloudmeter/backend/internal/domain/shared/valueobject"
	"github.com/cloudmeter/backend/internal/infrastructure/persistence"
)

func setupHandler(t *testing.T) (*gin.Engine, *persistence.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	store := persistence.NewStore(db)
	require.NoError(t, store.Migrate())

	product, err := domain.NewProduct("compute.instance",
		valueobject.MustMoneyFromString("0.06"), domain.BillingUnitHour, "")
	require.NoError(t, err)
	require.NoError(t, store.Products().Save(context.Background(), product))

	orders := appbilling.NewOrderService(store, appbilling.NewLedgerService(nil),
		domain.DefaultProductItems(), nil, appbilling.DefaultLifecycleConfig(), nil)

	engine := gin.New()
	NewOrderEventHandler(orders, nil).RegisterRoutes(engine.Group("/v1"))
	return engine, store
}

func postEvent(engine *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/v1/order-events", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestOrderEventHandler(t *testing.T) {
	engine, store := setupHandler(t)
	ctx := context.Background()
	t0 := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	t.Run("create opens an order", func(t *testing.T) {
		w := postEvent(engine, `{
			"kind": "create",
			"facts": {
				"resource_id": "srv-1",
				"resource_name": "web-1",
				"resource_type": "instance",
				"project_id": "proj-1",
				"user_id": "user-1"
			},
			"status": "running",
			"event_time": "`+t0.Format(time.RFC3339)+`"
		}`)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		order, err := store.Orders().GetByResourceID(ctx, "srv-1")
		require.NoError(t, err)
		assert.Equal(t, domain.OrderStatusRunning, order.Status)
	})

	t.Run("change_status transitions the order", func(t *testing.T) {
		w := postEvent(engine, `{
			"kind": "change_status",
			"resource_id": "srv-1",
			"status": "stopped",
			"event_time": "`+t0.Add(time.Hour).Format(time.RFC3339)+`"
		}`)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		order, err := store.Orders().GetByResourceID(ctx, "srv-1")
		require.NoError(t, err)
		assert.Equal(t, domain.OrderStatusStopped, order.Status)
	})

	t.Run("delete settles the order", func(t *testing.T) {
		w := postEvent(engine, `{
			"kind": "delete",
			"resource_id": "srv-1",
			"event_time": "`+t0.Add(2*time.Hour).Format(time.RFC3339)+`"
		}`)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		order, err := store.Orders().GetByResourceID(ctx, "srv-1")
		require.NoError(t, err)
		assert.Equal(t, domain.OrderStatusDeleted, order.Status)

		bills, err := store.Bills().ListByOrderID(ctx, order.ID)
		require.NoError(t, err)
		assert.NoError(t, domain.VerifyPartition(order.StartedAt, bills))
	})
}

func TestOrderEventHandlerErrors(t *testing.T) {
	engine, _ := setupHandler(t)
	t0 := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	t.Run("unknown kind is rejected", func(t *testing.T) {
		w := postEvent(engine, `{"kind":"explode","event_time":"`+t0.Format(time.RFC3339)+`"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing event time is rejected", func(t *testing.T) {
		w := postEvent(engine, `{"kind":"delete","resource_id":"srv-1"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("create without facts is rejected", func(t *testing.T) {
		w := postEvent(engine, `{"kind":"create","status":"running","event_time":"`+t0.Format(time.RFC3339)+`"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("resize of an unknown order maps to 404", func(t *testing.T) {
		w := postEvent(engine, `{"kind":"resize","resource_id":"ghost","quantity":2,"event_time":"`+t0.Format(time.RFC3339)+`"}`)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("malformed body is rejected", func(t *testing.T) {
		w := postEvent(engine, `not json`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
