package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"marketplace/internal/apperror"
	"marketplace/internal/logging"
	"marketplace/internal/models"
	"marketplace/internal/repositories"
)

// CouponInput is the body of a new coupon.
type CouponInput struct {
	Code       string           `json:"code" validate:"required,min=3,max=64"`
	Type       string           `json:"type" validate:"required,oneof=percentage fixed"`
	Value      decimal.Decimal  `json:"value"`
	MinAmount  *decimal.Decimal `json:"minAmount"`
	UsageLimit *int             `json:"usageLimit" validate:"omitempty,min=1"`
	ExpiresAt  *time.Time       `json:"expiresAt"`
}

// CouponService lets admins manage discount codes.
type CouponService struct {
	coupons repositories.CouponRepository
	logger  *zap.Logger
}

func NewCouponService(coupons repositories.CouponRepository, logger *zap.Logger) *CouponService {
	return &CouponService{coupons: coupons, logger: logging.OrNop(logger).Named("coupons")}
}

// CreateCoupon stores an active coupon. Codes are upper-cased and unique.
func (s *CouponService) CreateCoupon(ctx context.Context, input CouponInput) (*models.Coupon, error) {
	code := strings.ToUpper(strings.TrimSpace(input.Code))
	if code == "" {
		return nil, apperror.Invalid("Coupon code is required")
	}

	couponType := models.CouponType(input.Type)
	switch couponType {
	case models.CouponPercentage:
		if input.Value.GreaterThan(decimal.NewFromInt(100)) {
			return nil, apperror.Invalid("Percentage coupons cannot exceed 100")
		}
	case models.CouponFixed:
	default:
		return nil, apperror.Invalid("Coupon type must be percentage or fixed")
	}
	if !input.Value.IsPositive() {
		return nil, apperror.Invalid("Coupon value must be greater than 0")
	}
	if input.MinAmount != nil && input.MinAmount.IsNegative() {
		return nil, apperror.Invalid("Minimum amount must not be negative")
	}
	if input.UsageLimit != nil && *input.UsageLimit < 1 {
		return nil, apperror.Invalid("Usage limit must be at least 1")
	}

	exists, err := s.coupons.CodeExists(ctx, code)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperror.Conflict("Coupon code already exists: %s", code)
	}

	coupon := &models.Coupon{
		Code:       code,
		Type:       couponType,
		Value:      input.Value.Round(2),
		UsageLimit: input.UsageLimit,
		ExpiresAt:  input.ExpiresAt,
		IsActive:   true,
	}
	if input.MinAmount != nil {
		coupon.MinAmount = decimal.NewNullDecimal(input.MinAmount.Round(2))
	}
	if err := s.coupons.Create(ctx, coupon); err != nil {
		return nil, err
	}

	s.logger.Info("coupon created", zap.String("code", code), zap.String("type", input.Type))
	return coupon, nil
}

func (s *CouponService) ListCoupons(ctx context.Context) ([]models.Coupon, error) {
	coupons, err := s.coupons.List(ctx)
	if err != nil {
		return nil, err
	}
	if coupons == nil {
		coupons = []models.Coupon{}
	}
	return coupons, nil
}

// SetCouponActive switches a coupon on or off. Inactive coupons cannot be applied.
func (s *CouponService) SetCouponActive(ctx context.Context, id string, active bool) (*models.Coupon, error) {
	if err := s.coupons.SetActive(ctx, id, active); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, apperror.NotFound("Coupon not found")
		}
		return nil, err
	}
	return s.coupons.GetByID(ctx, id)
}
