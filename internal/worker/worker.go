package worker

import (
	"context"

	"commerce-core/internal/broker"
	"commerce-core/internal/models"
	"commerce-core/internal/redisclient"
	"commerce-core/internal/store"
	"commerce-core/internal/util"

	"go.uber.org/zap"
)

// StockCacheWorker reconciles the Redis stock cache with the database. It
// consumes stock and cancellation events and writes the absolute database
// value into the cache, so replays and retries are harmless.
type StockCacheWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	store        *store.Store
	redis        *redisclient.Client
	logger       *zap.Logger
}

// NewStockCacheWorker creates a new stock cache worker
func NewStockCacheWorker(
	consumer *broker.Consumer,
	st *store.Store,
	redis *redisclient.Client,
) *StockCacheWorker {
	w := &StockCacheWorker{
		consumer: consumer,
		store:    st,
		redis:    redis,
		logger:   util.NamedLogger("stock-cache-worker"),
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnStockAdjusted(w.handleStockAdjusted)
	eventHandler.OnOrderCancelled(w.handleOrderCancelled)
	w.eventHandler = eventHandler

	return w
}

// Start starts the worker
func (w *StockCacheWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting stock cache worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *StockCacheWorker) Stop() error {
	w.logger.Info("Stopping stock cache worker")
	return w.consumer.Close()
}

func (w *StockCacheWorker) handleStockAdjusted(ctx context.Context, event *models.StockAdjustedEvent) error {
	return w.refresh(ctx, event.ProductID)
}

func (w *StockCacheWorker) handleOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error {
	for _, item := range event.RestoredItems {
		if err := w.refresh(ctx, item.ProductID); err != nil {
			return err
		}
	}
	return nil
}

// refresh overwrites the cached count with the database's authoritative
// value. Idempotent by construction.
func (w *StockCacheWorker) refresh(ctx context.Context, productID int64) error {
	product, err := w.store.GetProductByID(ctx, productID)
	if err != nil {
		w.logger.Error("Failed to load product for cache refresh",
			zap.Int64("product_id", productID),
			zap.Error(err))
		return err
	}

	if err := w.redis.SetStock(ctx, productID, product.InventoryCount, product.InStock); err != nil {
		util.ReconciliationWarningsTotal.Inc()
		w.logger.Error("Failed to refresh stock cache",
			zap.Int64("product_id", productID),
			zap.Error(err))
		return err
	}

	w.logger.Debug("Stock cache refreshed",
		zap.Int64("product_id", productID),
		zap.Int("count", product.InventoryCount))
	return nil
}

// SyncAll seeds the cache for every product, run once at startup.
func (w *StockCacheWorker) SyncAll(ctx context.Context) error {
	products, err := w.store.GetProducts(ctx)
	if err != nil {
		return err
	}

	for _, product := range products {
		if err := w.redis.SetStock(ctx, product.ID, product.InventoryCount, product.InStock); err != nil {
			w.logger.Error("Failed to seed stock cache",
				zap.Int64("product_id", product.ID),
				zap.Error(err))
		}
	}

	w.logger.Info("Stock cache seeded", zap.Int("count", len(products)))
	return nil
}
