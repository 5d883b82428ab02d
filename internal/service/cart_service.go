package service

import (
	"context"
	"fmt"

	"commerce-core/internal/models"
	"commerce-core/internal/store"
	"commerce-core/internal/util"

	"go.uber.org/zap"
)

// CartService manages per-user draft carts.
type CartService struct {
	store   *store.Store
	pricing *PricingEngine
	logger  *zap.Logger
}

// NewCartService creates a new cart service
func NewCartService(st *store.Store, pricing *PricingEngine) *CartService {
	return &CartService{
		store:   st,
		pricing: pricing,
		logger:  util.NamedLogger("cart"),
	}
}

// AddToCart adds quantity of a product to the user's cart, creating the line
// with a price snapshot or folding into the existing line capped at the
// maximum quantity.
func (s *CartService) AddToCart(ctx context.Context, userID, productID int64, quantity int) (*models.CartSummary, error) {
	ctx, span := util.StartSpan(ctx, "CartService.AddToCart")
	defer span.End()

	if quantity < models.MinLineQuantity || quantity > models.MaxLineQuantity {
		return nil, models.NewValidationError("quantity",
			fmt.Sprintf("must be between %d and %d", models.MinLineQuantity, models.MaxLineQuantity))
	}

	product, err := s.store.GetProductByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !product.IsActive {
		return nil, &models.StockError{Reason: models.StockReasonProductUnavailable, ProductID: productID, Requested: quantity}
	}
	if !product.InStock {
		return nil, &models.StockError{Reason: models.StockReasonOutOfStock, ProductID: productID, Requested: quantity}
	}

	if _, err := s.store.UpsertCartItem(ctx, userID, productID, quantity, product.Price); err != nil {
		return nil, fmt.Errorf("failed to upsert cart item: %w", err)
	}

	util.CartOperationsTotal.WithLabelValues("add").Inc()
	return s.GetCart(ctx, userID)
}

// UpdateCartItem overwrites a line's quantity. A quantity of zero or less
// deletes the line; anything else is clamped into the allowed range.
func (s *CartService) UpdateCartItem(ctx context.Context, userID, productID int64, quantity int) (*models.CartSummary, error) {
	ctx, span := util.StartSpan(ctx, "CartService.UpdateCartItem")
	defer span.End()

	if quantity <= 0 {
		if err := s.RemoveFromCart(ctx, userID, productID); err != nil {
			return nil, err
		}
		return s.GetCart(ctx, userID)
	}

	if quantity > models.MaxLineQuantity {
		quantity = models.MaxLineQuantity
	}

	ok, err := s.store.SetCartItemQuantity(ctx, userID, productID, quantity)
	if err != nil {
		return nil, fmt.Errorf("failed to update cart item: %w", err)
	}
	if !ok {
		return nil, &models.NotFoundError{Resource: "cart item", ID: fmt.Sprintf("%d/%d", userID, productID)}
	}

	util.CartOperationsTotal.WithLabelValues("update").Inc()
	return s.GetCart(ctx, userID)
}

// RemoveFromCart deletes a single line from the user's cart.
func (s *CartService) RemoveFromCart(ctx context.Context, userID, productID int64) error {
	ctx, span := util.StartSpan(ctx, "CartService.RemoveFromCart")
	defer span.End()

	ok, err := s.store.DeleteCartItem(ctx, userID, productID)
	if err != nil {
		return fmt.Errorf("failed to remove cart item: %w", err)
	}
	if !ok {
		return &models.NotFoundError{Resource: "cart item", ID: fmt.Sprintf("%d/%d", userID, productID)}
	}

	util.CartOperationsTotal.WithLabelValues("remove").Inc()
	return nil
}

// ClearCart deletes every line of the user's cart.
func (s *CartService) ClearCart(ctx context.Context, userID int64) error {
	ctx, span := util.StartSpan(ctx, "CartService.ClearCart")
	defer span.End()

	if err := s.store.ClearCart(ctx, userID); err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}

	util.CartOperationsTotal.WithLabelValues("clear").Inc()
	return nil
}

// GetCart returns the cart joined with live product data. Line prices use
// the live product price, falling back to the add-time snapshot only when
// the product no longer exists. This is a display estimate; checkout
// re-prices against the authoritative current price.
func (s *CartService) GetCart(ctx context.Context, userID int64) (*models.CartSummary, error) {
	ctx, span := util.StartSpan(ctx, "CartService.GetCart")
	defer span.End()

	items, err := s.store.GetCartItems(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}

	ids := make([]int64, len(items))
	for i, item := range items {
		ids[i] = item.ProductID
	}

	products, err := s.store.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart products: %w", err)
	}

	productMap := make(map[int64]*models.Product, len(products))
	for i := range products {
		productMap[products[i].ID] = &products[i]
	}

	summary := &models.CartSummary{Items: make([]models.CartLineView, 0, len(items))}
	lines := make([]PricedLine, 0, len(items))

	for _, item := range items {
		view := models.CartLineView{
			ProductID:  item.ProductID,
			Quantity:   item.Quantity,
			PriceAtAdd: item.PriceAtAdd,
		}

		if product, ok := productMap[item.ProductID]; ok {
			view.Name = product.Name
			view.Price = product.Price
			view.InStock = product.InStock
		} else {
			view.Price = item.PriceAtAdd
			view.ProductMissing = true
		}

		view.LineTotal = view.Price * int64(item.Quantity)
		summary.Items = append(summary.Items, view)
		lines = append(lines, PricedLine{Price: view.Price, Quantity: item.Quantity})
	}

	summary.Pricing = s.pricing.ComputeSummary(lines, "")
	return summary, nil
}
