package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"marketplace/internal/models"
)

// CouponRepository defines the interface for coupons and their redemptions.
type CouponRepository interface {
	Create(ctx context.Context, coupon *models.Coupon) error
	List(ctx context.Context) ([]models.Coupon, error)
	GetByID(ctx context.Context, id string) (*models.Coupon, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	SetActive(ctx context.Context, id string, active bool) error
	// GetActiveByCode finds an active coupon by its exact code.
	GetActiveByCode(ctx context.Context, code string) (*models.Coupon, error)

	// LockForRedemption holds the coupon row until the surrounding transaction
	// ends, serialising usage-limit checks. A no-op on SQLite.
	LockForRedemption(ctx context.Context, couponID string) error
	HasRedeemed(ctx context.Context, userID, couponID string) (bool, error)
	// CountRedemptions counts redemptions of a coupon across all users.
	CountRedemptions(ctx context.Context, couponID string) (int64, error)
	CreateRedemptions(ctx context.Context, redemptions []models.UserCoupon) error
	DeleteRedemption(ctx context.Context, userID, couponID string) error

	CreateOrderCoupons(ctx context.Context, applied []models.OrderCoupon) error
	OrderCoupons(ctx context.Context, orderID string) ([]models.OrderCoupon, error)
	DeleteOrderCoupons(ctx context.Context, orderID string) error
}

// GORMCouponRepository is a GORM implementation of CouponRepository.
type GORMCouponRepository struct {
	db *gorm.DB
}

// NewGORMCouponRepository creates a new instance of GORMCouponRepository.
func NewGORMCouponRepository(db *gorm.DB) *GORMCouponRepository {
	return &GORMCouponRepository{db: db}
}

func (r *GORMCouponRepository) Create(ctx context.Context, coupon *models.Coupon) error {
	if coupon.ID == "" {
		coupon.ID = uuid.New().String()
	}
	if err := r.db.WithContext(ctx).Create(coupon).Error; err != nil {
		return fmt.Errorf("failed to create coupon: %w", err)
	}
	return nil
}

func (r *GORMCouponRepository) List(ctx context.Context) ([]models.Coupon, error) {
	var coupons []models.Coupon
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&coupons).Error; err != nil {
		return nil, fmt.Errorf("failed to list coupons: %w", err)
	}
	return coupons, nil
}

func (r *GORMCouponRepository) GetByID(ctx context.Context, id string) (*models.Coupon, error) {
	var coupon models.Coupon
	if err := r.db.WithContext(ctx).First(&coupon, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("coupon with ID %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get coupon by ID %s: %w", id, err)
	}
	return &coupon, nil
}

func (r *GORMCouponRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Coupon{}).Where("code = ?", code).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check coupon code %s: %w", code, err)
	}
	return count > 0, nil
}

func (r *GORMCouponRepository) SetActive(ctx context.Context, id string, active bool) error {
	res := r.db.WithContext(ctx).Model(&models.Coupon{}).Where("id = ?", id).Update("is_active", active)
	if res.Error != nil {
		return fmt.Errorf("failed to update coupon %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("coupon with ID %s: %w", id, ErrNotFound)
	}
	return nil
}

func (r *GORMCouponRepository) GetActiveByCode(ctx context.Context, code string) (*models.Coupon, error) {
	var coupon models.Coupon
	if err := r.db.WithContext(ctx).First(&coupon, "code = ? AND is_active = ?", code, true).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("coupon %s: %w", code, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get coupon %s: %w", code, err)
	}
	return &coupon, nil
}

func (r *GORMCouponRepository) LockForRedemption(ctx context.Context, couponID string) error {
	var coupon models.Coupon
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		First(&coupon, "id = ?", couponID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("coupon with ID %s: %w", couponID, ErrNotFound)
		}
		return fmt.Errorf("failed to lock coupon %s: %w", couponID, err)
	}
	return nil
}

func (r *GORMCouponRepository) HasRedeemed(ctx context.Context, userID, couponID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.UserCoupon{}).
		Where("user_id = ? AND coupon_id = ?", userID, couponID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check redemption of coupon %s: %w", couponID, err)
	}
	return count > 0, nil
}

func (r *GORMCouponRepository) CountRedemptions(ctx context.Context, couponID string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.UserCoupon{}).Where("coupon_id = ?", couponID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count redemptions of coupon %s: %w", couponID, err)
	}
	return count, nil
}

func (r *GORMCouponRepository) CreateRedemptions(ctx context.Context, redemptions []models.UserCoupon) error {
	if len(redemptions) == 0 {
		return nil
	}
	for i := range redemptions {
		if redemptions[i].ID == "" {
			redemptions[i].ID = uuid.New().String()
		}
	}
	if err := r.db.WithContext(ctx).Create(&redemptions).Error; err != nil {
		return fmt.Errorf("failed to record coupon redemptions: %w", err)
	}
	return nil
}

// DeleteRedemption frees every redemption of the coupon by the user.
func (r *GORMCouponRepository) DeleteRedemption(ctx context.Context, userID, couponID string) error {
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND coupon_id = ?", userID, couponID).
		Delete(&models.UserCoupon{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete redemption of coupon %s: %w", couponID, err)
	}
	return nil
}

func (r *GORMCouponRepository) CreateOrderCoupons(ctx context.Context, applied []models.OrderCoupon) error {
	if len(applied) == 0 {
		return nil
	}
	for i := range applied {
		if applied[i].ID == "" {
			applied[i].ID = uuid.New().String()
		}
	}
	if err := r.db.WithContext(ctx).Create(&applied).Error; err != nil {
		return fmt.Errorf("failed to record order coupons: %w", err)
	}
	return nil
}

func (r *GORMCouponRepository) OrderCoupons(ctx context.Context, orderID string) ([]models.OrderCoupon, error) {
	var applied []models.OrderCoupon
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Order("created_at ASC").Find(&applied).Error; err != nil {
		return nil, fmt.Errorf("failed to get coupons of order %s: %w", orderID, err)
	}
	return applied, nil
}

func (r *GORMCouponRepository) DeleteOrderCoupons(ctx context.Context, orderID string) error {
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Delete(&models.OrderCoupon{}).Error; err != nil {
		return fmt.Errorf("failed to delete coupons of order %s: %w", orderID, err)
	}
	return nil
}
