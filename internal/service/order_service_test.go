package service

import (
	"strings"
	"testing"

	"commerce-core/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCheckoutLine(t *testing.T) {
	base := func() *models.Product {
		return &models.Product{ID: 7, Price: 500, InventoryCount: 10, InStock: true, IsActive: true}
	}

	t.Run("ok", func(t *testing.T) {
		assert.Nil(t, validateCheckoutLine(base(), 10))
	})

	t.Run("inactive wins over stock checks", func(t *testing.T) {
		p := base()
		p.IsActive = false
		p.InStock = false
		p.InventoryCount = 0

		err := validateCheckoutLine(p, 1)
		require.NotNil(t, err)
		assert.Equal(t, models.StockReasonProductUnavailable, err.Reason)
	})

	t.Run("out of stock", func(t *testing.T) {
		p := base()
		p.InStock = false
		p.InventoryCount = 0

		err := validateCheckoutLine(p, 1)
		require.NotNil(t, err)
		assert.Equal(t, models.StockReasonOutOfStock, err.Reason)
	})

	t.Run("insufficient stock", func(t *testing.T) {
		p := base()
		p.InventoryCount = 3

		err := validateCheckoutLine(p, 4)
		require.NotNil(t, err)
		assert.Equal(t, models.StockReasonInsufficientStock, err.Reason)
		assert.Equal(t, 3, err.Available)
		assert.Equal(t, 4, err.Requested)
	})
}

func TestValidateCheckoutInput(t *testing.T) {
	addr := models.Address{
		Name:       "Jo Smith",
		Line1:      "1 Main St",
		City:       "Springfield",
		PostalCode: "12345",
		Country:    "US",
	}
	payment := models.PaymentInfo{Method: "card", LastFour: "4242"}

	assert.NoError(t, validateCheckoutInput(&addr, &payment))

	t.Run("missing fields reported per field", func(t *testing.T) {
		bad := models.Address{}
		err := validateCheckoutInput(&bad, &models.PaymentInfo{})
		require.Error(t, err)

		var verr *models.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Fields, "shipping_address.name")
		assert.Contains(t, verr.Fields, "shipping_address.line1")
		assert.Contains(t, verr.Fields, "payment_info.method")
	})

	t.Run("last four length", func(t *testing.T) {
		p := payment
		p.LastFour = "42"
		err := validateCheckoutInput(&addr, &p)
		require.Error(t, err)

		var verr *models.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Fields, "payment_info.last_four")
	})
}

func TestNewOrderNumber(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		n := NewOrderNumber()
		assert.True(t, strings.HasPrefix(n, "ORD-"))
		assert.Len(t, n, len("ORD-")+26)
		assert.False(t, seen[n], "order numbers must not repeat")
		seen[n] = true
	}
}

func TestSnapshotLineTotals(t *testing.T) {
	items := []models.OrderItem{
		{ProductID: 1, Price: 5000, Quantity: 2, TotalPrice: 10000},
		{ProductID: 2, Price: 333, Quantity: 3, TotalPrice: 999},
	}

	for _, item := range items {
		assert.Equal(t, item.Price*int64(item.Quantity), item.TotalPrice)
	}

	lines := pricedLines(items)
	assert.Equal(t, int64(5000), lines[0].Price)
	assert.Equal(t, 3, lines[1].Quantity)

	data := eventItems(items)
	assert.Equal(t, int64(333), data[1].UnitPrice)
	assert.Equal(t, int64(1), data[0].ProductID)
}
