package billing

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudmeter/backend/internal/domain/shared"
	"github.com/cloudmeter/backend/internal/domain/shared/valueobject"
)

func TestNewBill(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("opens with no end time", func(t *testing.T) {
		bill, err := NewBill(uuid.New(), valueobject.MustMoneyFromString("0.06"), start)
		require.NoError(t, err)
		assert.True(t, bill.IsOpen())
		assert.Equal(t, BillStatusPayed, bill.Status)
		assert.Equal(t, "0.0000", bill.TotalPrice.StringFixed())
	})

	t.Run("rejects nil order ID", func(t *testing.T) {
		_, err := NewBill(uuid.Nil, valueobject.ZeroMoney(), start)
		assert.Error(t, err)
	})

	t.Run("rejects negative unit price", func(t *testing.T) {
		_, err := NewBill(uuid.New(), valueobject.MustMoneyFromString("-0.1"), start)
		assert.Error(t, err)
	})
}

func TestBillClose(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("full hour at hourly cadence", func(t *testing.T) {
		bill, err := NewBill(uuid.New(), valueobject.MustMoneyFromString("0.06"), start)
		require.NoError(t, err)
		require.NoError(t, bill.Close(start.Add(time.Hour), BillingUnitHour))
		assert.False(t, bill.IsOpen())
		assert.Equal(t, "0.0600", bill.TotalPrice.StringFixed())
	})

	t.Run("half hour prorates continuously", func(t *testing.T) {
		bill, err := NewBill(uuid.New(), valueobject.MustMoneyFromString("0.06"), start)
		require.NoError(t, err)
		require.NoError(t, bill.Close(start.Add(30*time.Minute), BillingUnitHour))
		assert.Equal(t, "0.0300", bill.TotalPrice.StringFixed())
	})

	t.Run("zero duration closes at zero", func(t *testing.T) {
		bill, err := NewBill(uuid.New(), valueobject.MustMoneyFromString("0.06"), start)
		require.NoError(t, err)
		require.NoError(t, bill.Close(start, BillingUnitHour))
		assert.Equal(t, "0.0000", bill.TotalPrice.StringFixed())
	})

	t.Run("end before start clamps to zero", func(t *testing.T) {
		bill, err := NewBill(uuid.New(), valueobject.MustMoneyFromString("0.06"), start)
		require.NoError(t, err)
		require.NoError(t, bill.Close(start.Add(-time.Hour), BillingUnitHour))
		assert.Equal(t, "0.0000", bill.TotalPrice.StringFixed())
		assert.False(t, bill.TotalPrice.IsNegative())
	})

	t.Run("monthly cadence prorates against thirty days", func(t *testing.T) {
		bill, err := NewBill(uuid.New(), valueobject.MustMoneyFromString("30"), start)
		require.NoError(t, err)
		require.NoError(t, bill.Close(start.Add(24*time.Hour), BillingUnitMonth))
		assert.Equal(t, "1.0000", bill.TotalPrice.StringFixed())
	})

	t.Run("closing twice fails", func(t *testing.T) {
		bill, err := NewBill(uuid.New(), valueobject.MustMoneyFromString("0.06"), start)
		require.NoError(t, err)
		require.NoError(t, bill.Close(start.Add(time.Hour), BillingUnitHour))
		assert.ErrorIs(t, bill.Close(start.Add(2*time.Hour), BillingUnitHour), shared.ErrInvalidState)
	})
}

func TestVerifyPartition(t *testing.T) {
	orderID := uuid.New()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	price := valueobject.MustMoneyFromString("0.06")

	closedBill := func(start, end time.Time) *Bill {
		bill, err := NewBill(orderID, price, start)
		require.NoError(t, err)
		require.NoError(t, bill.Close(end, BillingUnitHour))
		return bill
	}
	openBill := func(start time.Time) *Bill {
		bill, err := NewBill(orderID, price, start)
		require.NoError(t, err)
		return bill
	}

	t.Run("contiguous intervals pass", func(t *testing.T) {
		bills := []*Bill{
			closedBill(t0, t0.Add(time.Hour)),
			closedBill(t0.Add(time.Hour), t0.Add(2*time.Hour)),
			openBill(t0.Add(2 * time.Hour)),
		}
		assert.NoError(t, VerifyPartition(t0, bills))
	})

	t.Run("gap between intervals fails", func(t *testing.T) {
		bills := []*Bill{
			closedBill(t0, t0.Add(time.Hour)),
			closedBill(t0.Add(90*time.Minute), t0.Add(2*time.Hour)),
		}
		assert.Error(t, VerifyPartition(t0, bills))
	})

	t.Run("missing first interval fails", func(t *testing.T) {
		bills := []*Bill{
			closedBill(t0.Add(time.Hour), t0.Add(2*time.Hour)),
		}
		assert.Error(t, VerifyPartition(t0, bills))
	})

	t.Run("open bill not last fails", func(t *testing.T) {
		bills := []*Bill{
			openBill(t0),
			closedBill(t0.Add(time.Hour), t0.Add(2*time.Hour)),
		}
		assert.Error(t, VerifyPartition(t0, bills))
	})

	t.Run("empty ledger fails", func(t *testing.T) {
		assert.Error(t, VerifyPartition(t0, nil))
	})
}
