package store

import (
	"context"

	"commerce-core/internal/models"

	"github.com/jmoiron/sqlx"
)

// UpsertCartItem adds quantity to an existing (user, product) line or creates
// one with the given price snapshot. The ON CONFLICT upsert is what makes two
// concurrent adds collapse into a single row instead of two.
func (s *Store) UpsertCartItem(ctx context.Context, userID, productID int64, quantity int, priceAtAdd int64) (*models.CartItem, error) {
	var item models.CartItem
	err := s.db.GetContext(ctx, &item, `
		INSERT INTO cart_items (user_id, product_id, quantity, price_at_add)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, product_id)
		DO UPDATE SET quantity = LEAST(cart_items.quantity + EXCLUDED.quantity, $5),
		              updated_at = NOW()
		RETURNING *`,
		userID, productID, quantity, priceAtAdd, models.MaxLineQuantity)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// SetCartItemQuantity overwrites a line's quantity. Returns false when the
// line does not exist.
func (s *Store) SetCartItemQuantity(ctx context.Context, userID, productID int64, quantity int) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE cart_items SET quantity = $3, updated_at = NOW()
		WHERE user_id = $1 AND product_id = $2`,
		userID, productID, quantity)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	return affected == 1, err
}

// DeleteCartItem removes a single line. Returns false when the line does not exist.
func (s *Store) DeleteCartItem(ctx context.Context, userID, productID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM cart_items WHERE user_id = $1 AND product_id = $2",
		userID, productID)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	return affected == 1, err
}

func clearCart(ctx context.Context, q sqlx.ExecerContext, userID int64) error {
	_, err := q.ExecContext(ctx, "DELETE FROM cart_items WHERE user_id = $1", userID)
	return err
}

// ClearCart deletes every line of a user's cart.
func (s *Store) ClearCart(ctx context.Context, userID int64) error {
	return clearCart(ctx, s.db, userID)
}

// ClearCart deletes the user's cart within the transaction, the final
// checkout step before commit.
func (t *Tx) ClearCart(ctx context.Context, userID int64) error {
	return clearCart(ctx, t.tx, userID)
}

func getCartItems(ctx context.Context, q sqlx.QueryerContext, userID int64) ([]models.CartItem, error) {
	var items []models.CartItem
	err := sqlx.SelectContext(ctx, q, &items,
		"SELECT * FROM cart_items WHERE user_id = $1 ORDER BY id", userID)
	return items, err
}

// GetCartItems retrieves all lines of a user's cart
func (s *Store) GetCartItems(ctx context.Context, userID int64) ([]models.CartItem, error) {
	return getCartItems(ctx, s.db, userID)
}

// GetCartItems retrieves the cart within the transaction
func (t *Tx) GetCartItems(ctx context.Context, userID int64) ([]models.CartItem, error) {
	return getCartItems(ctx, t.tx, userID)
}
