package store

import (
	"context"
	"database/sql"
	"strconv"

	"commerce-core/internal/models"

	"github.com/jmoiron/sqlx"
)

// InsertOrder persists a new order row. The order_number unique constraint is
// the last line of defense against a duplicate number.
func (t *Tx) InsertOrder(ctx context.Context, order *models.Order) error {
	err := t.tx.QueryRowxContext(ctx, `
		INSERT INTO orders (order_number, customer_id, status, pricing,
		                    shipping_address, payment_info, tracking, notes, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`,
		order.OrderNumber, order.CustomerID, order.Status, order.Pricing,
		order.ShippingAddress, order.PaymentInfo, order.Tracking, order.Notes,
		order.IdempotencyKey).
		Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	if isUniqueViolation(err) {
		return &models.ConflictError{Message: "duplicate order number or idempotency key"}
	}
	return err
}

// InsertOrderItems persists the immutable item snapshot for an order.
func (t *Tx) InsertOrderItems(ctx context.Context, orderID int64, items []models.OrderItem) error {
	for i := range items {
		items[i].OrderID = orderID
		err := t.tx.QueryRowxContext(ctx, `
			INSERT INTO order_items (order_id, product_id, name, price, quantity, total_price)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id`,
			orderID, items[i].ProductID, items[i].Name, items[i].Price,
			items[i].Quantity, items[i].TotalPrice).
			Scan(&items[i].ID)
		if err != nil {
			return err
		}
	}
	return nil
}

// AppendStatusHistory adds one entry to the order's append-only status log.
// History rows are never updated or deleted.
func (t *Tx) AppendStatusHistory(ctx context.Context, orderID int64, status models.Status, actorID int64, notes string) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO order_status_history (order_id, status, actor_id, notes)
		VALUES ($1, $2, $3, $4)`,
		orderID, status, actorID, notes)
	return err
}

// UpdateOrderStatusFrom moves an order's status with a compare-and-set on the
// expected current status. Returns false when the order changed underneath
// the caller, which keeps concurrent transitions from both applying.
func (t *Tx) UpdateOrderStatusFrom(ctx context.Context, orderID int64, from, to models.Status) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE orders SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3`,
		to, orderID, from)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	return affected == 1, err
}

// UpdateOrderTracking replaces the order's tracking document.
func (t *Tx) UpdateOrderTracking(ctx context.Context, orderID int64, tracking models.Tracking) error {
	_, err := t.tx.ExecContext(ctx,
		"UPDATE orders SET tracking = $1, updated_at = NOW() WHERE id = $2",
		tracking, orderID)
	return err
}

func getOrderByID(ctx context.Context, q sqlx.QueryerContext, id int64) (*models.Order, error) {
	var order models.Order
	err := sqlx.GetContext(ctx, q, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, &models.NotFoundError{Resource: "order", ID: strconv.FormatInt(id, 10)}
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	return getOrderByID(ctx, s.db, id)
}

// GetOrderByID retrieves an order within the transaction
func (t *Tx) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	return getOrderByID(ctx, t.tx, id)
}

// GetOrderByNumber retrieves an order by its order number
func (s *Store) GetOrderByNumber(ctx context.Context, orderNumber string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE order_number = $1", orderNumber)
	if err == sql.ErrNoRows {
		return nil, &models.NotFoundError{Resource: "order", ID: orderNumber}
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderByIdempotencyKey retrieves a previously created order for a
// repeated checkout request. Scoped to the customer: keys are
// client-supplied, so one user's key must never replay another user's
// order. Returns nil, nil when no order matches.
func (s *Store) GetOrderByIdempotencyKey(ctx context.Context, customerID int64, key string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order,
		"SELECT * FROM orders WHERE idempotency_key = $1 AND customer_id = $2", key, customerID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func getOrderItems(ctx context.Context, q sqlx.QueryerContext, orderID int64) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := sqlx.SelectContext(ctx, q, &items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY id", orderID)
	return items, err
}

// GetOrderItems retrieves the immutable item snapshot for an order
func (s *Store) GetOrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	return getOrderItems(ctx, s.db, orderID)
}

// GetOrderItems retrieves the snapshot within the transaction. Cancellation
// restores stock from exactly these rows, never from live cart or product state.
func (t *Tx) GetOrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	return getOrderItems(ctx, t.tx, orderID)
}

// GetStatusHistory retrieves the append-only status log for an order,
// oldest first.
func (s *Store) GetStatusHistory(ctx context.Context, orderID int64) ([]models.StatusHistoryEntry, error) {
	var entries []models.StatusHistoryEntry
	err := s.db.SelectContext(ctx, &entries,
		"SELECT * FROM order_status_history WHERE order_id = $1 ORDER BY id", orderID)
	return entries, err
}

// GetOrdersByCustomer retrieves a customer's orders, newest first
func (s *Store) GetOrdersByCustomer(ctx context.Context, customerID int64) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE customer_id = $1 ORDER BY created_at DESC", customerID)
	return orders, err
}
