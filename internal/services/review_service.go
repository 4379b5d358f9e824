package services

import (
	"context"
	"errors"
	"math"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"marketplace/internal/apperror"
	"marketplace/internal/logging"
	"marketplace/internal/models"
	"marketplace/internal/repositories"
)

// ReviewSummary is the computed rating of a product.
type ReviewSummary struct {
	Reviews       []models.Review `json:"reviews"`
	AverageRating float64         `json:"averageRating"`
	Count         int             `json:"count"`
}

// ReviewService aggregates and records product reviews.
type ReviewService struct {
	reviews  repositories.ReviewRepository
	products repositories.ProductRepository
	cache    CacheInvalidator
	logger   *zap.Logger
}

// NewReviewService creates a new ReviewService.
func NewReviewService(
	reviews repositories.ReviewRepository,
	products repositories.ProductRepository,
	cache CacheInvalidator,
	logger *zap.Logger,
) *ReviewService {
	if cache == nil {
		cache = noopInvalidator{}
	}
	return &ReviewService{
		reviews:  reviews,
		products: products,
		cache:    cache,
		logger:   logging.OrNop(logger).Named("reviews"),
	}
}

// Summary lists a product's live reviews newest first with their average rounded to one decimal.
func (s *ReviewService) Summary(ctx context.Context, productID string) (ReviewSummary, error) {
	reviews, err := s.reviews.ListByProduct(ctx, productID)
	if err != nil {
		return ReviewSummary{}, err
	}
	return summarize(reviews), nil
}

func summarize(reviews []models.Review) ReviewSummary {
	summary := ReviewSummary{Reviews: reviews, Count: len(reviews)}
	if len(reviews) == 0 {
		return summary
	}
	total := 0
	for _, r := range reviews {
		total += r.Rating
	}
	avg := float64(total) / float64(len(reviews))
	summary.AverageRating = math.Round(avg*10) / 10
	return summary
}

// CreateReviewInput is the body of a new review.
type CreateReviewInput struct {
	Rating  int    `json:"rating" validate:"required,min=1,max=5"`
	Comment string `json:"comment" validate:"max=2000"`
}

// CreateReview records a user's single review of an active product.
func (s *ReviewService) CreateReview(ctx context.Context, userID, productID string, input CreateReviewInput) (*models.Review, error) {
	if _, err := uuid.Parse(productID); err != nil {
		return nil, apperror.Invalid("Invalid product ID")
	}
	if input.Rating < 1 || input.Rating > 5 {
		return nil, apperror.Invalid("Rating must be between 1 and 5")
	}

	product, err := s.products.GetByID(ctx, productID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, apperror.NotFound("Product not found")
		}
		return nil, err
	}
	if product.IsDeleted() {
		return nil, apperror.NotFound("Product not found")
	}

	exists, err := s.reviews.ExistsForUser(ctx, userID, productID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperror.Conflict("You have already reviewed this product")
	}

	review := &models.Review{
		ProductID: productID,
		UserID:    userID,
		Rating:    input.Rating,
		Comment:   input.Comment,
	}
	if err := s.reviews.Create(ctx, review); err != nil {
		return nil, err
	}

	s.logger.Info("review created", zap.String("product_id", productID), zap.Int("rating", input.Rating))
	s.cache.InvalidateSpecificProduct(ctx, productID)
	return review, nil
}
