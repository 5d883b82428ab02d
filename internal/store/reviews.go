package store

import (
	"context"
	"database/sql"
	"strconv"

	"commerce-core/internal/models"
)

// InsertReview creates a review. A user may review a product once.
func (s *Store) InsertReview(ctx context.Context, review *models.Review) error {
	err := s.db.GetContext(ctx, review, `
		INSERT INTO reviews (product_id, user_id, rating, title, comment, is_active, is_approved)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING *`,
		review.ProductID, review.UserID, review.Rating, review.Title,
		review.Comment, review.IsActive, review.IsApproved)
	if isUniqueViolation(err) {
		return &models.ConflictError{Message: "user already reviewed this product"}
	}
	return err
}

// GetReviewByID retrieves a review by ID
func (s *Store) GetReviewByID(ctx context.Context, id int64) (*models.Review, error) {
	var review models.Review
	err := s.db.GetContext(ctx, &review, "SELECT * FROM reviews WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, &models.NotFoundError{Resource: "review", ID: strconv.FormatInt(id, 10)}
	}
	if err != nil {
		return nil, err
	}
	return &review, nil
}

// UpdateReview overwrites a review's rating, title and comment.
func (s *Store) UpdateReview(ctx context.Context, id int64, rating int, title, comment string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE reviews SET rating = $2, title = $3, comment = $4, updated_at = NOW()
		WHERE id = $1`,
		id, rating, title, comment)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return &models.NotFoundError{Resource: "review", ID: strconv.FormatInt(id, 10)}
	}
	return nil
}

// DeleteReview removes a review.
func (s *Store) DeleteReview(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM reviews WHERE id = $1", id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return &models.NotFoundError{Resource: "review", ID: strconv.FormatInt(id, 10)}
	}
	return nil
}

// RecomputeProductRating replaces a product's rating and review_count from
// its active, approved reviews in one statement. Touching only those two
// fields keeps concurrent stock writes to the same row from being clobbered.
func (s *Store) RecomputeProductRating(ctx context.Context, productID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE products SET
			rating = COALESCE(
				(SELECT AVG(rating)::float8 FROM reviews
				 WHERE product_id = $1 AND is_active AND is_approved), 0),
			review_count =
				(SELECT COUNT(*) FROM reviews
				 WHERE product_id = $1 AND is_active AND is_approved),
			updated_at = NOW()
		WHERE id = $1`,
		productID)
	return err
}
