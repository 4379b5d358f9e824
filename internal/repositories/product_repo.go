package repositories

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"marketplace/internal/models"
)

// ProductFilter narrows and orders a product listing. Soft-deleted products are always excluded.
type ProductFilter struct {
	Search     string
	ProductIDs []string // nil means no restriction
	MinPrice   *decimal.Decimal
	MaxPrice   *decimal.Decimal
	InStock    bool
	SellerID   string
	SortField  string // "price" or "created_at"
	SortAsc    bool
	Offset     int
	Limit      int // 0 means unbounded
}

// ProductRepository defines the interface for product data access.
type ProductRepository interface {
	List(ctx context.Context, filter ProductFilter) ([]models.Product, int64, error)
	ListPending(ctx context.Context) ([]models.Product, error)
	GetByID(ctx context.Context, id string) (*models.Product, error)
	GetBySlug(ctx context.Context, slug string) (*models.Product, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	Create(ctx context.Context, product *models.Product) error
	Update(ctx context.Context, product *models.Product) error

	// DecrementStock atomically removes qty units, failing with ErrInsufficientStock
	// when fewer than qty remain.
	DecrementStock(ctx context.Context, id string, qty int) error
	IncrementStock(ctx context.Context, id string, qty int) error

	Categories(ctx context.Context, productID string) ([]models.Category, error)
	ReplaceCategories(ctx context.Context, productID string, categoryIDs []string) error
	SoftDeleteCategories(ctx context.Context, productID string, at time.Time) error
	ProductIDsInCategory(ctx context.Context, categoryID string) ([]string, error)

	Images(ctx context.Context, productID string) ([]models.ProductImage, error)
	AddImages(ctx context.Context, images []models.ProductImage) error
}
