package service

import (
	"testing"

	"commerce-core/config"

	"github.com/stretchr/testify/assert"
)

func testEngine() *PricingEngine {
	return NewPricingEngine(config.BusinessConfig{
		TaxRate:               0.08,
		ShippingFlatCents:     999,
		FreeShippingOverCents: 10000,
	})
}

func TestComputeSummarySave10(t *testing.T) {
	e := testEngine()

	// Two units at $100.00 each: over the free-shipping threshold.
	summary := e.ComputeSummary([]PricedLine{{Price: 10000, Quantity: 2}}, "SAVE10")

	assert.Equal(t, int64(20000), summary.Subtotal)
	assert.Equal(t, int64(1600), summary.Tax)
	assert.Equal(t, int64(0), summary.Shipping)
	assert.Equal(t, int64(2000), summary.Discount)
	assert.Equal(t, int64(19600), summary.Total)
}

func TestComputeSummaryWelcome20(t *testing.T) {
	e := testEngine()

	summary := e.ComputeSummary([]PricedLine{{Price: 5000, Quantity: 1}}, "WELCOME20")

	assert.Equal(t, int64(5000), summary.Subtotal)
	assert.Equal(t, int64(400), summary.Tax)
	assert.Equal(t, int64(999), summary.Shipping)
	assert.Equal(t, int64(1000), summary.Discount)
	assert.Equal(t, int64(5399), summary.Total)
}

func TestComputeSummaryUnknownPromoIsNotAnError(t *testing.T) {
	e := testEngine()

	summary := e.ComputeSummary([]PricedLine{{Price: 5000, Quantity: 1}}, "BOGUS50")

	assert.Equal(t, int64(0), summary.Discount)
	assert.Equal(t, summary.Subtotal+summary.Tax+summary.Shipping, summary.Total)
}

func TestComputeSummaryShippingBoundaryIsStrictlyGreater(t *testing.T) {
	e := testEngine()

	// Exactly at the threshold: not strictly greater, so shipping applies.
	at := e.ComputeSummary([]PricedLine{{Price: 5000, Quantity: 2}}, "")
	assert.Equal(t, int64(10000), at.Subtotal)
	assert.Equal(t, int64(999), at.Shipping)

	// One cent over: free.
	over := e.ComputeSummary([]PricedLine{{Price: 10001, Quantity: 1}}, "")
	assert.Equal(t, int64(10001), over.Subtotal)
	assert.Equal(t, int64(0), over.Shipping)
}

func TestComputeSummaryRoundsEachFieldToCents(t *testing.T) {
	e := testEngine()

	// 333 * 0.08 = 26.64, rounds to 27 cents.
	summary := e.ComputeSummary([]PricedLine{{Price: 333, Quantity: 1}}, "SAVE10")

	assert.Equal(t, int64(333), summary.Subtotal)
	assert.Equal(t, int64(27), summary.Tax)
	// 333 * 0.10 = 33.3, rounds to 33 cents.
	assert.Equal(t, int64(33), summary.Discount)
	assert.Equal(t, int64(333+27+999-33), summary.Total)
}

func TestComputeSummaryEmptyCart(t *testing.T) {
	e := testEngine()

	summary := e.ComputeSummary(nil, "")

	assert.Equal(t, int64(0), summary.Subtotal)
	assert.Equal(t, int64(0), summary.Tax)
	assert.Equal(t, int64(999), summary.Shipping)
	assert.Equal(t, int64(999), summary.Total)
}

func TestComputeSummaryTotalIdentity(t *testing.T) {
	e := testEngine()

	for _, code := range []string{"", "SAVE10", "WELCOME20", "NOPE"} {
		summary := e.ComputeSummary([]PricedLine{
			{Price: 1299, Quantity: 3},
			{Price: 450, Quantity: 7},
		}, code)
		assert.Equal(t, summary.Subtotal+summary.Tax+summary.Shipping-summary.Discount, summary.Total,
			"total identity must hold for promo %q", code)
	}
}
