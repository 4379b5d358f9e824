package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CouponType selects how a coupon's value is applied.
type CouponType string

const (
	CouponPercentage CouponType = "percentage"
	CouponFixed      CouponType = "fixed"
)

// Coupon is a discount code. Code is unique.
type Coupon struct {
	ID         string              `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Code       string              `json:"code" gorm:"type:varchar(64);uniqueIndex;not null"`
	Type       CouponType          `json:"type" gorm:"type:varchar(16);not null"`
	Value      decimal.Decimal     `json:"value" gorm:"type:decimal(12,2);not null"`
	MinAmount  decimal.NullDecimal `json:"minAmount" gorm:"type:decimal(12,2)"`
	UsageLimit *int                `json:"usageLimit,omitempty"`
	ExpiresAt  *time.Time          `json:"expiresAt,omitempty"`
	IsActive   bool                `json:"isActive"`
	CreatedAt  time.Time           `json:"createdAt"`
	UpdatedAt  time.Time           `json:"updatedAt"`
}

// Expired reports whether the coupon has an expiry that is not after now.
func (c Coupon) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && !c.ExpiresAt.After(now)
}

// UserCoupon records that a user redeemed a coupon.
type UserCoupon struct {
	ID       string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID   string    `json:"userId" gorm:"type:varchar(36);index:idx_user_coupon;not null"`
	CouponID string    `json:"couponId" gorm:"type:varchar(36);index:idx_user_coupon;index;not null"`
	UsedAt   time.Time `json:"usedAt"`
}

// OrderCoupon records a coupon applied to an order and the discount it produced.
type OrderCoupon struct {
	ID        string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	OrderID   string          `json:"orderId" gorm:"type:varchar(36);index;not null"`
	CouponID  string          `json:"couponId" gorm:"type:varchar(36);index;not null"`
	Code      string          `json:"code" gorm:"type:varchar(64)"`
	Discount  decimal.Decimal `json:"discount" gorm:"type:decimal(12,2);not null"`
	CreatedAt time.Time       `json:"createdAt"`
}
