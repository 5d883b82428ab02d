package service

import (
	"math"

	"commerce-core/config"
	"commerce-core/internal/models"
)

// promoTable maps promo codes to a fraction of the subtotal. Unknown codes
// are worth zero and are never an error.
var promoTable = map[string]float64{
	"WELCOME20": 0.20,
	"SAVE10":    0.10,
}

// PricedLine is the minimal input the pricing engine needs per line.
type PricedLine struct {
	Price    int64
	Quantity int
}

// PricingEngine is a pure computation from line items and a promo code to a
// monetary breakdown. It carries no state across calls.
type PricingEngine struct {
	taxRate          float64
	shippingFlat     int64
	freeShippingOver int64
}

// NewPricingEngine creates a pricing engine from business config
func NewPricingEngine(cfg config.BusinessConfig) *PricingEngine {
	return &PricingEngine{
		taxRate:          cfg.TaxRate,
		shippingFlat:     cfg.ShippingFlatCents,
		freeShippingOver: cfg.FreeShippingOverCents,
	}
}

// ComputeSummary prices a set of lines. Each output field is rounded to
// whole cents independently. Shipping is free only when the subtotal is
// strictly greater than the threshold.
func (e *PricingEngine) ComputeSummary(lines []PricedLine, promoCode string) models.PricingSummary {
	var subtotal int64
	for _, line := range lines {
		subtotal += line.Price * int64(line.Quantity)
	}

	tax := roundCents(float64(subtotal) * e.taxRate)

	shipping := e.shippingFlat
	if subtotal > e.freeShippingOver {
		shipping = 0
	}

	var discount int64
	if pct, ok := promoTable[promoCode]; ok {
		discount = roundCents(float64(subtotal) * pct)
	}

	return models.PricingSummary{
		Subtotal: subtotal,
		Tax:      tax,
		Shipping: shipping,
		Discount: discount,
		Total:    subtotal + tax + shipping - discount,
	}
}

func roundCents(v float64) int64 {
	return int64(math.Round(v))
}
