package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Product is the catalog document shared with the product read path.
// This core owns inventory_count, in_stock, rating and review_count;
// everything else is written by the catalog.
type Product struct {
	ID             int64     `db:"id" json:"id"`
	Name           string    `db:"name" json:"name"`
	Price          int64     `db:"price" json:"price"` // cents
	InventoryCount int       `db:"inventory_count" json:"inventory_count"`
	InStock        bool      `db:"in_stock" json:"in_stock"`
	IsActive       bool      `db:"is_active" json:"is_active"`
	Rating         float64   `db:"rating" json:"rating"`
	ReviewCount    int       `db:"review_count" json:"review_count"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// CartItem is one draft line of a user's cart, unique per (user_id, product_id).
// PriceAtAdd is the price snapshot taken when the line was first created; it is
// a display fallback only and is never the price charged at checkout.
type CartItem struct {
	ID         int64     `db:"id" json:"id"`
	UserID     int64     `db:"user_id" json:"user_id"`
	ProductID  int64     `db:"product_id" json:"product_id"`
	Quantity   int       `db:"quantity" json:"quantity"`
	PriceAtAdd int64     `db:"price_at_add" json:"price_at_add"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// Cart quantity bounds.
const (
	MinLineQuantity = 1
	MaxLineQuantity = 99
)

// CartLineView is a cart line joined with live product data for display.
type CartLineView struct {
	ProductID      int64  `json:"product_id"`
	Name           string `json:"name"`
	Price          int64  `json:"price"`
	PriceAtAdd     int64  `json:"price_at_add"`
	Quantity       int    `json:"quantity"`
	LineTotal      int64  `json:"line_total"`
	InStock        bool   `json:"in_stock"`
	ProductMissing bool   `json:"product_missing,omitempty"`
}

// CartSummary is the display view of a cart. The pricing here is an
// estimate over live prices; checkout re-prices from scratch.
type CartSummary struct {
	Items   []CartLineView `json:"items"`
	Pricing PricingSummary `json:"pricing"`
}

// PricingSummary is the monetary breakdown of an order. All fields are cents,
// each rounded independently.
type PricingSummary struct {
	Subtotal int64 `json:"subtotal"`
	Tax      int64 `json:"tax"`
	Shipping int64 `json:"shipping"`
	Discount int64 `json:"discount"`
	Total    int64 `json:"total"`
}

// Address is a shipping destination, stored as a JSONB document on the order.
type Address struct {
	Name       string `json:"name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

// PaymentInfo is recorded verbatim from the payment collaborator.
// No charge logic lives in this service.
type PaymentInfo struct {
	Method        string `json:"method"`
	Status        string `json:"status"`
	TransactionID string `json:"transaction_id,omitempty"`
	LastFour      string `json:"last_four,omitempty"`
}

// Tracking carries shipment progress, attached when an order ships.
type Tracking struct {
	TrackingNumber    string     `json:"tracking_number,omitempty"`
	Carrier           string     `json:"carrier,omitempty"`
	EstimatedDelivery *time.Time `json:"estimated_delivery,omitempty"`
	ActualDelivery    *time.Time `json:"actual_delivery,omitempty"`
}

// Order is the durable aggregate produced by checkout. Items and pricing are
// immutable once created; only status, tracking and the status history move.
type Order struct {
	ID              int64          `db:"id" json:"id"`
	OrderNumber     string         `db:"order_number" json:"order_number"`
	CustomerID      int64          `db:"customer_id" json:"customer_id"`
	Status          Status         `db:"status" json:"status"`
	Pricing         PricingSummary `db:"pricing" json:"pricing"`
	ShippingAddress Address        `db:"shipping_address" json:"shipping_address"`
	PaymentInfo     PaymentInfo    `db:"payment_info" json:"payment_info"`
	Tracking        Tracking       `db:"tracking" json:"tracking"`
	Notes           string         `db:"notes" json:"notes,omitempty"`
	IdempotencyKey  string         `db:"idempotency_key" json:"idempotency_key,omitempty"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`
}

// OrderItem is an immutable snapshot line captured at checkout time.
// TotalPrice is always Price * Quantity.
type OrderItem struct {
	ID         int64  `db:"id" json:"id"`
	OrderID    int64  `db:"order_id" json:"order_id"`
	ProductID  int64  `db:"product_id" json:"product_id"`
	Name       string `db:"name" json:"name"`
	Price      int64  `db:"price" json:"price"`
	Quantity   int    `db:"quantity" json:"quantity"`
	TotalPrice int64  `db:"total_price" json:"total_price"`
}

// StatusHistoryEntry is one row of an order's append-only status log.
type StatusHistoryEntry struct {
	ID        int64     `db:"id" json:"id"`
	OrderID   int64     `db:"order_id" json:"order_id"`
	Status    Status    `db:"status" json:"status"`
	ActorID   int64     `db:"actor_id" json:"actor_id"`
	Notes     string    `db:"notes" json:"notes,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// OrderDetail aggregates an order with its items and history for responses.
type OrderDetail struct {
	Order   *Order               `json:"order"`
	Items   []OrderItem          `json:"items"`
	History []StatusHistoryEntry `json:"status_history"`
}

// Review feeds the product rating aggregate. Only active+approved reviews
// count toward a product's rating and review_count.
type Review struct {
	ID         int64     `db:"id" json:"id"`
	ProductID  int64     `db:"product_id" json:"product_id"`
	UserID     int64     `db:"user_id" json:"user_id"`
	Rating     int       `db:"rating" json:"rating"`
	Title      string    `db:"title" json:"title,omitempty"`
	Comment    string    `db:"comment" json:"comment,omitempty"`
	IsActive   bool      `db:"is_active" json:"is_active"`
	IsApproved bool      `db:"is_approved" json:"is_approved"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// Roles supplied by the authentication collaborator.
const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

// jsonbValue / jsonbScan back the JSONB document columns on orders.

func jsonbValue(v interface{}) (driver.Value, error) {
	return json.Marshal(v)
}

func jsonbScan(dst interface{}, src interface{}) error {
	switch s := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(s, dst)
	case string:
		return json.Unmarshal([]byte(s), dst)
	default:
		return fmt.Errorf("unsupported jsonb source type %T", src)
	}
}

func (a Address) Value() (driver.Value, error)        { return jsonbValue(a) }
func (a *Address) Scan(src interface{}) error         { return jsonbScan(a, src) }
func (p PaymentInfo) Value() (driver.Value, error)    { return jsonbValue(p) }
func (p *PaymentInfo) Scan(src interface{}) error     { return jsonbScan(p, src) }
func (t Tracking) Value() (driver.Value, error)       { return jsonbValue(t) }
func (t *Tracking) Scan(src interface{}) error        { return jsonbScan(t, src) }
func (s PricingSummary) Value() (driver.Value, error) { return jsonbValue(s) }
func (s *PricingSummary) Scan(src interface{}) error  { return jsonbScan(s, src) }
