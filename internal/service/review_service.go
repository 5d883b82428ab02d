package service

import (
	"context"

	"commerce-core/internal/models"
	"commerce-core/internal/store"
	"commerce-core/internal/util"

	"go.uber.org/zap"
)

// ReviewService manages reviews and keeps the product rating aggregate
// (rating, review_count) in step with them. The recompute is a single atomic
// statement touching only those two fields, so it never clobbers concurrent
// stock writes to the same product row.
type ReviewService struct {
	store  *store.Store
	logger *zap.Logger
}

// NewReviewService creates a new review service
func NewReviewService(st *store.Store) *ReviewService {
	return &ReviewService{
		store:  st,
		logger: util.NamedLogger("reviews"),
	}
}

// CreateReview adds a review and synchronously recomputes the product's
// rating aggregate.
func (s *ReviewService) CreateReview(ctx context.Context, userID, productID int64, rating int, title, comment string) (*models.Review, error) {
	ctx, span := util.StartSpan(ctx, "ReviewService.CreateReview")
	defer span.End()

	if rating < 1 || rating > 5 {
		return nil, models.NewValidationError("rating", "must be between 1 and 5")
	}

	if _, err := s.store.GetProductByID(ctx, productID); err != nil {
		return nil, err
	}

	review := &models.Review{
		ProductID:  productID,
		UserID:     userID,
		Rating:     rating,
		Title:      title,
		Comment:    comment,
		IsActive:   true,
		IsApproved: true,
	}
	if err := s.store.InsertReview(ctx, review); err != nil {
		return nil, err
	}

	if err := s.recompute(ctx, productID); err != nil {
		return nil, err
	}
	return review, nil
}

// UpdateReview overwrites an existing review (owner or admin) and recomputes
// the aggregate.
func (s *ReviewService) UpdateReview(ctx context.Context, reviewID, requesterID int64, requesterRole string, rating int, title, comment string) (*models.Review, error) {
	ctx, span := util.StartSpan(ctx, "ReviewService.UpdateReview")
	defer span.End()

	if rating < 1 || rating > 5 {
		return nil, models.NewValidationError("rating", "must be between 1 and 5")
	}

	review, err := s.store.GetReviewByID(ctx, reviewID)
	if err != nil {
		return nil, err
	}
	if requesterRole != models.RoleAdmin && review.UserID != requesterID {
		return nil, models.ErrForbidden
	}

	if err := s.store.UpdateReview(ctx, reviewID, rating, title, comment); err != nil {
		return nil, err
	}
	if err := s.recompute(ctx, review.ProductID); err != nil {
		return nil, err
	}

	return s.store.GetReviewByID(ctx, reviewID)
}

// DeleteReview removes a review (owner or admin) and recomputes the aggregate.
func (s *ReviewService) DeleteReview(ctx context.Context, reviewID, requesterID int64, requesterRole string) error {
	ctx, span := util.StartSpan(ctx, "ReviewService.DeleteReview")
	defer span.End()

	review, err := s.store.GetReviewByID(ctx, reviewID)
	if err != nil {
		return err
	}
	if requesterRole != models.RoleAdmin && review.UserID != requesterID {
		return models.ErrForbidden
	}

	if err := s.store.DeleteReview(ctx, reviewID); err != nil {
		return err
	}
	return s.recompute(ctx, review.ProductID)
}

func (s *ReviewService) recompute(ctx context.Context, productID int64) error {
	if err := s.store.RecomputeProductRating(ctx, productID); err != nil {
		s.logger.Error("Failed to recompute product rating",
			zap.Int64("product_id", productID),
			zap.Error(err))
		return err
	}
	util.RatingRecomputesTotal.Inc()
	return nil
}
