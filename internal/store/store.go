package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"commerce-core/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Tx is a transaction-scoped view of the store. Checkout and status
// transitions run all their writes through one Tx.
type Tx struct {
	tx *sqlx.Tx
}

// BeginTx starts a transaction
func (s *Store) BeginTx(ctx context.Context) (*Tx, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &Tx{tx: tx}, nil
}

func (t *Tx) Commit() error   { return t.tx.Commit() }
func (t *Tx) Rollback() error { return t.tx.Rollback() }

// isUniqueViolation reports a Postgres unique-constraint failure.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func getProductByID(ctx context.Context, q sqlx.QueryerContext, id int64) (*models.Product, error) {
	var product models.Product
	err := sqlx.GetContext(ctx, q, &product, "SELECT * FROM products WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, &models.NotFoundError{Resource: "product", ID: strconv.FormatInt(id, 10)}
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// GetProductByID retrieves a product by ID
func (s *Store) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	return getProductByID(ctx, s.db, id)
}

// GetProductByID retrieves a product by ID within the transaction. Checkout
// uses this to reload each product fresh instead of trusting the cart's
// cached snapshot.
func (t *Tx) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	return getProductByID(ctx, t.tx, id)
}

// GetProducts retrieves all products
func (s *Store) GetProducts(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	err := s.db.SelectContext(ctx, &products, "SELECT * FROM products ORDER BY id")
	return products, err
}

// GetProductsByIDs retrieves multiple products by IDs
func (s *Store) GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}

	query, args, err := sqlx.In("SELECT * FROM products WHERE id IN (?)", ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var products []models.Product
	err = s.db.SelectContext(ctx, &products, query, args...)
	return products, err
}

// adjustStockQuery applies a delta to inventory_count clamped at zero and
// derives in_stock in the same statement. Never a read-then-write.
const adjustStockQuery = `
	UPDATE products
	SET inventory_count = GREATEST(inventory_count + $1, 0),
	    in_stock = GREATEST(inventory_count + $1, 0) > 0,
	    updated_at = NOW()
	WHERE id = $2
	RETURNING inventory_count, in_stock`

func adjustStock(ctx context.Context, q sqlx.QueryerContext, productID int64, delta int) (int, bool, error) {
	var count int
	var inStock bool
	err := q.QueryRowxContext(ctx, adjustStockQuery, delta, productID).Scan(&count, &inStock)
	if err == sql.ErrNoRows {
		return 0, false, &models.NotFoundError{Resource: "product", ID: strconv.FormatInt(productID, 10)}
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to adjust stock for product %d: %w", productID, err)
	}
	return count, inStock, nil
}

// AdjustStock atomically applies a stock delta, clamped at zero, and returns
// the resulting count and in_stock flag.
func (s *Store) AdjustStock(ctx context.Context, productID int64, delta int) (int, bool, error) {
	return adjustStock(ctx, s.db, productID, delta)
}

// AdjustStock applies a stock delta within the transaction. Cancellation
// restores use this with the order's immutable item quantities.
func (t *Tx) AdjustStock(ctx context.Context, productID int64, delta int) (int, bool, error) {
	return adjustStock(ctx, t.tx, productID, delta)
}

// DecrementStock conditionally removes quantity units of stock. It succeeds
// only when inventory_count is still at least quantity at execution time, so
// two concurrent checkouts can never both pass the same perceived count.
// Returns false when the condition fails.
func (t *Tx) DecrementStock(ctx context.Context, productID int64, quantity int) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE products
		SET inventory_count = inventory_count - $1,
		    in_stock = (inventory_count - $1) > 0,
		    updated_at = NOW()
		WHERE id = $2 AND inventory_count >= $1`,
		quantity, productID)
	if err != nil {
		return false, fmt.Errorf("failed to decrement stock for product %d: %w", productID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}
