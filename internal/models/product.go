package models

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Money goes over the wire as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

// ValidationStatus is the moderation state of a product.
type ValidationStatus string

const (
	ValidationPending  ValidationStatus = "pending"
	ValidationApproved ValidationStatus = "approved"
	ValidationRejected ValidationStatus = "rejected"
)

// Product represents a seller-owned item in the catalog.
type Product struct {
	ID               string           `json:"id" gorm:"primaryKey;type:varchar(36)"`
	SellerID         string           `json:"sellerId" gorm:"type:varchar(36);index;not null"`
	Title            string           `json:"title" gorm:"type:varchar(200);not null"`
	Slug             string           `json:"slug" gorm:"type:varchar(220);uniqueIndex"`
	Description      string           `json:"description" gorm:"type:text"`
	Price            decimal.Decimal  `json:"price" gorm:"type:decimal(12,2);not null"`
	Stock            int              `json:"stock" gorm:"not null;index"`
	IsVisible        bool             `json:"isVisible"`
	IsAvailable      bool             `json:"isAvailable"`
	ValidationStatus ValidationStatus `json:"validationStatus" gorm:"type:varchar(16);index"`
	RejectionReason  *string          `json:"rejectionReason,omitempty"`
	ValidatedAt      *time.Time       `json:"validatedAt,omitempty"`
	DeletedAt        *time.Time       `json:"deletedAt,omitempty" gorm:"index"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

// ProductState is the lifecycle of a product: either Active or Deleted.
type ProductState interface {
	productState()
}

// Active is the state of a product that can be browsed and ordered.
type Active struct{}

// Deleted is the state of a soft-deleted product.
type Deleted struct {
	At time.Time
}

func (Active) productState()  {}
func (Deleted) productState() {}

// State derives the lifecycle from the stored deletion marker.
func (p Product) State() ProductState {
	if p.DeletedAt != nil {
		return Deleted{At: *p.DeletedAt}
	}
	return Active{}
}

// IsDeleted reports whether the product has been soft-deleted.
func (p Product) IsDeleted() bool {
	switch p.State().(type) {
	case Deleted:
		return true
	default:
		return false
	}
}

// MarkDeleted moves the product into the Deleted state.
func (p *Product) MarkDeleted(at time.Time) {
	p.DeletedAt = &at
}

// Category groups products.
type Category struct {
	ID          string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Name        string    `json:"name" gorm:"type:varchar(100);uniqueIndex;not null"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ProductCategory links a product to one of its categories.
type ProductCategory struct {
	ID         string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	ProductID  string     `json:"productId" gorm:"type:varchar(36);index;not null"`
	CategoryID string     `json:"categoryId" gorm:"type:varchar(36);index;not null"`
	Category   Category   `json:"category" gorm:"foreignKey:CategoryID"`
	DeletedAt  *time.Time `json:"-" gorm:"index"`
}

// ProductImage is an image record attached to a product.
type ProductImage struct {
	ID        string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	ProductID string     `json:"productId" gorm:"type:varchar(36);index;not null"`
	ImageURL  string     `json:"imageUrl" gorm:"not null"`
	IsPrimary bool       `json:"isPrimary"`
	DeletedAt *time.Time `json:"-" gorm:"index"`
	CreatedAt time.Time  `json:"createdAt"`
}
