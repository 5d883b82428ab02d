package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"commerce-core/internal/broker"
	"commerce-core/internal/models"
	"commerce-core/internal/redisclient"
	"commerce-core/internal/store"
	"commerce-core/internal/util"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// OrderService is the order lifecycle controller: the only writer of orders
// and the only caller of stock mutations during checkout and cancellation.
type OrderService struct {
	store     *store.Store
	redis     *redisclient.Client
	publisher *broker.EventPublisher
	pricing   *PricingEngine
	logger    *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(
	st *store.Store,
	redis *redisclient.Client,
	publisher *broker.EventPublisher,
	pricing *PricingEngine,
) *OrderService {
	return &OrderService{
		store:     st,
		redis:     redis,
		publisher: publisher,
		pricing:   pricing,
		logger:    util.NamedLogger("orders"),
	}
}

// CreateOrderRequest carries checkout input. Payment fields come from the
// payment collaborator and are recorded verbatim.
type CreateOrderRequest struct {
	ShippingAddress models.Address     `json:"shipping_address"`
	PaymentInfo     models.PaymentInfo `json:"payment_info"`
	PromoCode       string             `json:"promo_code,omitempty"`
	Notes           string             `json:"notes,omitempty"`
	IdempotencyKey  string             `json:"idempotency_key,omitempty"`
}

// StatusUpdate carries a requested status transition.
type StatusUpdate struct {
	Status            models.Status
	ActorID           int64
	Notes             string
	TrackingNumber    string
	Carrier           string
	EstimatedDelivery *time.Time
}

// BulkResult is the per-order outcome of a bulk status update.
type BulkResult struct {
	OrderID int64         `json:"order_id"`
	OK      bool          `json:"ok"`
	Status  models.Status `json:"status,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// NewOrderNumber generates a collision-resistant order number. A ULID rather
// than a sequential counter: two near-simultaneous checkouts can never mint
// the same number, and the unique constraint on orders.order_number backs
// the guarantee at the storage layer.
func NewOrderNumber() string {
	return "ORD-" + ulid.Make().String()
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}

// CreateOrder converts the user's cart into a durable order. Validation,
// snapshot, order persistence, stock decrement and cart clearing all run in
// one database transaction: any failing line aborts the whole checkout with
// zero side effects. Only the cache refresh and event publication happen
// after commit, and those are best-effort.
func (s *OrderService) CreateOrder(ctx context.Context, customerID int64, req *CreateOrderRequest) (*models.OrderDetail, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder")
	defer span.End()

	start := time.Now()
	defer func() {
		util.CheckoutLatency.Observe(time.Since(start).Seconds())
	}()

	if err := validateCheckoutInput(&req.ShippingAddress, &req.PaymentInfo); err != nil {
		util.CheckoutFailedTotal.WithLabelValues("validation").Inc()
		return nil, err
	}

	if req.IdempotencyKey != "" {
		existing, err := s.store.GetOrderByIdempotencyKey(ctx, customerID, req.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("failed to check idempotency: %w", err)
		}
		if existing != nil {
			s.logger.Info("Duplicate checkout request detected",
				zap.String("idempotency_key", req.IdempotencyKey),
				zap.String("order_number", existing.OrderNumber))
			return s.loadDetail(ctx, existing)
		}
	}

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	lines, err := tx.GetCartItems(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	if len(lines) == 0 {
		util.CheckoutFailedTotal.WithLabelValues("empty_cart").Inc()
		return nil, models.ErrEmptyCart
	}

	// Reload every product fresh and snapshot at the current price, never
	// the cart's cached price_at_add.
	items := make([]models.OrderItem, 0, len(lines))
	for _, line := range lines {
		product, err := tx.GetProductByID(ctx, line.ProductID)
		if err != nil {
			var notFound *models.NotFoundError
			if errors.As(err, &notFound) {
				util.CheckoutFailedTotal.WithLabelValues("product_unavailable").Inc()
				return nil, &models.StockError{
					Reason:    models.StockReasonProductUnavailable,
					ProductID: line.ProductID,
					Requested: line.Quantity,
				}
			}
			return nil, err
		}

		if stockErr := validateCheckoutLine(product, line.Quantity); stockErr != nil {
			util.CheckoutFailedTotal.WithLabelValues(string(stockErr.Reason)).Inc()
			return nil, stockErr
		}

		items = append(items, models.OrderItem{
			ProductID:  product.ID,
			Name:       product.Name,
			Price:      product.Price,
			Quantity:   line.Quantity,
			TotalPrice: product.Price * int64(line.Quantity),
		})
	}

	pricing := s.pricing.ComputeSummary(pricedLines(items), req.PromoCode)

	payment := req.PaymentInfo
	if payment.Status == "" {
		payment.Status = "recorded"
	}

	order := &models.Order{
		OrderNumber:     NewOrderNumber(),
		CustomerID:      customerID,
		Status:          models.StatusPending,
		Pricing:         pricing,
		ShippingAddress: req.ShippingAddress,
		PaymentInfo:     payment,
		Notes:           req.Notes,
		IdempotencyKey:  req.IdempotencyKey,
	}

	if err := tx.InsertOrder(ctx, order); err != nil {
		// A retry racing its original request loses to the idempotency
		// index only after the original commits, so the winner's order is
		// visible here and the retry replays it instead of erroring.
		var conflict *models.ConflictError
		if errors.As(err, &conflict) && req.IdempotencyKey != "" {
			_ = tx.Rollback()
			winner, lerr := s.store.GetOrderByIdempotencyKey(ctx, customerID, req.IdempotencyKey)
			if lerr == nil && winner != nil {
				s.logger.Info("Checkout retry lost the race, replaying winner",
					zap.String("idempotency_key", req.IdempotencyKey),
					zap.String("order_number", winner.OrderNumber))
				return s.loadDetail(ctx, winner)
			}
		}
		util.CheckoutFailedTotal.WithLabelValues("db_error").Inc()
		return nil, err
	}
	if err := tx.InsertOrderItems(ctx, order.ID, items); err != nil {
		return nil, fmt.Errorf("failed to persist order items: %w", err)
	}
	if err := tx.AppendStatusHistory(ctx, order.ID, models.StatusPending, customerID, ""); err != nil {
		return nil, fmt.Errorf("failed to append status history: %w", err)
	}

	for _, item := range items {
		ok, err := tx.DecrementStock(ctx, item.ProductID, item.Quantity)
		if err != nil {
			return nil, err
		}
		if !ok {
			// Validation passed but a concurrent checkout took the stock
			// first. The conditional update is the arbiter.
			available := 0
			if product, perr := tx.GetProductByID(ctx, item.ProductID); perr == nil {
				available = product.InventoryCount
			}
			util.CheckoutFailedTotal.WithLabelValues(string(models.StockReasonInsufficientStock)).Inc()
			return nil, &models.StockError{
				Reason:    models.StockReasonInsufficientStock,
				ProductID: item.ProductID,
				Requested: item.Quantity,
				Available: available,
			}
		}
	}

	if err := tx.ClearCart(ctx, customerID); err != nil {
		return nil, fmt.Errorf("failed to clear cart: %w", err)
	}

	if err := tx.Commit(); err != nil {
		util.CheckoutFailedTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("failed to commit checkout: %w", err)
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.String("order_number", order.OrderNumber),
		zap.Int64("customer_id", customerID),
		zap.Int64("total", order.Pricing.Total))

	for _, item := range items {
		util.StockAdjustmentsTotal.WithLabelValues("decrement").Inc()
		s.syncStockCache(ctx, item.ProductID, -item.Quantity)
	}

	event := &models.OrderCreatedEvent{
		BaseEvent:   newBaseEvent(models.EventTypeOrderCreated),
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		CustomerID:  order.CustomerID,
		Total:       order.Pricing.Total,
		Items:       eventItems(items),
	}
	if err := s.publisher.PublishOrderCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCreated event", zap.Error(err))
	}

	return &models.OrderDetail{
		Order: order,
		Items: items,
		History: []models.StatusHistoryEntry{{
			OrderID:   order.ID,
			Status:    models.StatusPending,
			ActorID:   customerID,
			CreatedAt: order.CreatedAt,
		}},
	}, nil
}

// UpdateStatus applies one forward transition from the table. On entry into
// cancelled it restores stock from the order's immutable item snapshot, in
// the same transaction as the status change.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID int64, upd StatusUpdate) (*models.OrderDetail, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdateStatus")
	defer span.End()

	if !upd.Status.Valid() {
		return nil, models.NewValidationError("status", fmt.Sprintf("unknown status %q", upd.Status))
	}

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	order, err := tx.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	from := order.Status
	if !from.CanTransitionTo(upd.Status) {
		util.InvalidTransitionsTotal.Inc()
		return nil, &models.InvalidTransitionError{
			From:    from,
			To:      upd.Status,
			Allowed: from.AllowedTransitions(),
		}
	}

	// Compare-and-set on the status read above. If a concurrent transition
	// got there first, nothing is applied.
	ok, err := tx.UpdateOrderStatusFrom(ctx, orderID, from, upd.Status)
	if err != nil {
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}
	if !ok {
		return nil, &models.ConflictError{Message: "order status changed concurrently"}
	}

	if err := tx.AppendStatusHistory(ctx, orderID, upd.Status, upd.ActorID, upd.Notes); err != nil {
		return nil, fmt.Errorf("failed to append status history: %w", err)
	}

	var restored []models.OrderItem
	if upd.Status == models.StatusCancelled {
		items, err := tx.GetOrderItems(ctx, orderID)
		if err != nil {
			return nil, fmt.Errorf("failed to load order items: %w", err)
		}
		for _, item := range items {
			if _, _, err := tx.AdjustStock(ctx, item.ProductID, item.Quantity); err != nil {
				return nil, err
			}
		}
		restored = items
	}

	switch upd.Status {
	case models.StatusShipped:
		if upd.TrackingNumber != "" || upd.Carrier != "" || upd.EstimatedDelivery != nil {
			order.Tracking.TrackingNumber = upd.TrackingNumber
			order.Tracking.Carrier = upd.Carrier
			order.Tracking.EstimatedDelivery = upd.EstimatedDelivery
			if err := tx.UpdateOrderTracking(ctx, orderID, order.Tracking); err != nil {
				return nil, fmt.Errorf("failed to update tracking: %w", err)
			}
		}
	case models.StatusDelivered:
		now := time.Now()
		order.Tracking.ActualDelivery = &now
		if err := tx.UpdateOrderTracking(ctx, orderID, order.Tracking); err != nil {
			return nil, fmt.Errorf("failed to update tracking: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit status update: %w", err)
	}

	util.OrderTransitionsTotal.WithLabelValues(string(from), string(upd.Status)).Inc()
	s.logger.Info("Order status updated",
		zap.String("order_number", order.OrderNumber),
		zap.String("from", string(from)),
		zap.String("to", string(upd.Status)))

	if upd.Status == models.StatusCancelled {
		util.OrdersCancelledTotal.Inc()
		for _, item := range restored {
			util.StockAdjustmentsTotal.WithLabelValues("restore").Inc()
			s.syncStockCache(ctx, item.ProductID, item.Quantity)
		}

		cancelEvent := &models.OrderCancelledEvent{
			BaseEvent:     newBaseEvent(models.EventTypeOrderCancelled),
			OrderID:       order.ID,
			OrderNumber:   order.OrderNumber,
			ActorID:       upd.ActorID,
			RestoredItems: eventItems(restored),
		}
		if err := s.publisher.PublishOrderCancelled(ctx, cancelEvent); err != nil {
			s.logger.Error("Failed to publish OrderCancelled event", zap.Error(err))
		}
	}

	statusEvent := &models.OrderStatusChangedEvent{
		BaseEvent:   newBaseEvent(models.EventTypeOrderStatusChanged),
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		From:        from,
		To:          upd.Status,
		ActorID:     upd.ActorID,
	}
	if err := s.publisher.PublishOrderStatusChanged(ctx, statusEvent); err != nil {
		s.logger.Error("Failed to publish OrderStatusChanged event", zap.Error(err))
	}

	fresh, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return s.loadDetail(ctx, fresh)
}

// CancelOrder cancels an order, restoring its reserved stock. Idempotent: a
// second cancellation of the same order is a no-op, never a double restore.
func (s *OrderService) CancelOrder(ctx context.Context, orderID, actorID int64) error {
	ctx, span := util.StartSpan(ctx, "OrderService.CancelOrder")
	defer span.End()

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return err
	}

	if order.Status == models.StatusCancelled {
		return nil
	}
	if !order.Status.CanTransitionTo(models.StatusCancelled) {
		util.InvalidTransitionsTotal.Inc()
		return &models.InvalidTransitionError{
			From:    order.Status,
			To:      models.StatusCancelled,
			Allowed: order.Status.AllowedTransitions(),
		}
	}

	_, err = s.UpdateStatus(ctx, orderID, StatusUpdate{Status: models.StatusCancelled, ActorID: actorID})
	if err != nil {
		// A concurrent request may have cancelled it first; that still
		// counts as success for this caller.
		var conflict *models.ConflictError
		var invalid *models.InvalidTransitionError
		if errors.As(err, &conflict) || errors.As(err, &invalid) {
			if current, cerr := s.store.GetOrderByID(ctx, orderID); cerr == nil && current.Status == models.StatusCancelled {
				return nil
			}
		}
		return err
	}
	return nil
}

// BulkUpdateStatus applies the transition independently to each order. One
// order's failure never aborts the others.
func (s *OrderService) BulkUpdateStatus(ctx context.Context, orderIDs []int64, status models.Status, actorID int64, notes string) []BulkResult {
	ctx, span := util.StartSpan(ctx, "OrderService.BulkUpdateStatus")
	defer span.End()

	results := make([]BulkResult, 0, len(orderIDs))
	for _, orderID := range orderIDs {
		detail, err := s.UpdateStatus(ctx, orderID, StatusUpdate{Status: status, ActorID: actorID, Notes: notes})
		if err != nil {
			results = append(results, BulkResult{OrderID: orderID, OK: false, Error: err.Error()})
			continue
		}
		results = append(results, BulkResult{OrderID: orderID, OK: true, Status: detail.Order.Status})
	}
	return results
}

// GetOrder retrieves an order, enforcing owner-or-admin access.
func (s *OrderService) GetOrder(ctx context.Context, orderID, requesterID int64, requesterRole string) (*models.OrderDetail, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetOrder")
	defer span.End()

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if requesterRole != models.RoleAdmin && order.CustomerID != requesterID {
		return nil, models.ErrForbidden
	}

	return s.loadDetail(ctx, order)
}

// ListOrders returns a customer's orders, newest first.
func (s *OrderService) ListOrders(ctx context.Context, customerID int64) ([]models.Order, error) {
	return s.store.GetOrdersByCustomer(ctx, customerID)
}

func (s *OrderService) loadDetail(ctx context.Context, order *models.Order) (*models.OrderDetail, error) {
	items, err := s.store.GetOrderItems(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order items: %w", err)
	}
	history, err := s.store.GetStatusHistory(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load status history: %w", err)
	}
	return &models.OrderDetail{Order: order, Items: items, History: history}, nil
}

// syncStockCache pushes a stock delta into the Redis cache and announces the
// change for the reconciliation worker. Both are best-effort: the committed
// order is the source of truth and a failure here is an operator signal,
// never a rollback.
func (s *OrderService) syncStockCache(ctx context.Context, productID int64, delta int) {
	if _, err := s.redis.AdjustStock(ctx, productID, delta); err != nil {
		util.ReconciliationWarningsTotal.Inc()
		s.logger.Warn("Stock cache adjustment failed, needs reconciliation",
			zap.Int64("product_id", productID),
			zap.Int("delta", delta),
			zap.Error(err))
	}

	event := &models.StockAdjustedEvent{
		BaseEvent: newBaseEvent(models.EventTypeStockAdjusted),
		ProductID: productID,
		Delta:     delta,
	}
	if err := s.publisher.PublishStockAdjusted(ctx, event); err != nil {
		util.ReconciliationWarningsTotal.Inc()
		s.logger.Warn("Failed to publish StockAdjusted event",
			zap.Int64("product_id", productID),
			zap.Error(err))
	}
}

// validateCheckoutLine checks a fresh product read against a requested
// quantity, in the order the checkout contract specifies.
func validateCheckoutLine(product *models.Product, quantity int) *models.StockError {
	if !product.IsActive {
		return &models.StockError{Reason: models.StockReasonProductUnavailable, ProductID: product.ID, Requested: quantity}
	}
	if !product.InStock {
		return &models.StockError{Reason: models.StockReasonOutOfStock, ProductID: product.ID, Requested: quantity}
	}
	if product.InventoryCount < quantity {
		return &models.StockError{
			Reason:    models.StockReasonInsufficientStock,
			ProductID: product.ID,
			Requested: quantity,
			Available: product.InventoryCount,
		}
	}
	return nil
}

func validateCheckoutInput(addr *models.Address, payment *models.PaymentInfo) error {
	verr := &models.ValidationError{}
	if addr.Name == "" {
		verr.Add("shipping_address.name", "required")
	}
	if addr.Line1 == "" {
		verr.Add("shipping_address.line1", "required")
	}
	if addr.City == "" {
		verr.Add("shipping_address.city", "required")
	}
	if addr.PostalCode == "" {
		verr.Add("shipping_address.postal_code", "required")
	}
	if addr.Country == "" {
		verr.Add("shipping_address.country", "required")
	}
	if payment.Method == "" {
		verr.Add("payment_info.method", "required")
	}
	if payment.LastFour != "" && len(payment.LastFour) != 4 {
		verr.Add("payment_info.last_four", "must be exactly 4 digits")
	}
	if verr.Empty() {
		return nil
	}
	return verr
}

func pricedLines(items []models.OrderItem) []PricedLine {
	lines := make([]PricedLine, len(items))
	for i, item := range items {
		lines[i] = PricedLine{Price: item.Price, Quantity: item.Quantity}
	}
	return lines
}

func eventItems(items []models.OrderItem) []models.OrderItemData {
	data := make([]models.OrderItemData, len(items))
	for i, item := range items {
		data[i] = models.OrderItemData{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.Price,
		}
	}
	return data
}
