package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"marketplace/internal/models"
)

// GORMProductRepository is a GORM implementation of ProductRepository.
type GORMProductRepository struct {
	db *gorm.DB
}

// NewGORMProductRepository creates a new instance of GORMProductRepository.
func NewGORMProductRepository(db *gorm.DB) *GORMProductRepository {
	return &GORMProductRepository{
		db: db,
	}
}

// List returns one page of products matching filter, plus the total match count.
func (r *GORMProductRepository) List(ctx context.Context, f ProductFilter) ([]models.Product, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.Product{}).Where("deleted_at IS NULL")

	if f.SellerID != "" {
		q = q.Where("seller_id = ?", f.SellerID)
	}
	if search := strings.TrimSpace(f.Search); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		q = q.Where("(LOWER(title) LIKE ? OR LOWER(description) LIKE ?)", like, like)
	}
	if f.MinPrice != nil {
		q = q.Where("price >= ?", *f.MinPrice)
	}
	if f.MaxPrice != nil {
		q = q.Where("price <= ?", *f.MaxPrice)
	}
	if f.InStock {
		q = q.Where("stock > ?", 0)
	}
	if f.ProductIDs != nil {
		q = q.Where("id IN ?", f.ProductIDs)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count products: %w", err)
	}

	column := "created_at"
	if f.SortField == "price" {
		column = "price"
	}
	listing := q.Order(clause.OrderByColumn{Column: clause.Column{Name: column}, Desc: !f.SortAsc})
	if f.Limit > 0 {
		listing = listing.Offset(f.Offset).Limit(f.Limit)
	}

	var products []models.Product
	if err := listing.Find(&products).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list products: %w", err)
	}
	return products, total, nil
}

// ListPending returns products awaiting moderation.
func (r *GORMProductRepository) ListPending(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	err := r.db.WithContext(ctx).
		Where("validation_status = ? AND deleted_at IS NULL", models.ValidationPending).
		Order("created_at ASC").
		Find(&products).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list pending products: %w", err)
	}
	return products, nil
}

// GetByID retrieves a single product by its ID, deleted or not.
func (r *GORMProductRepository) GetByID(ctx context.Context, id string) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).First(&product, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("product with ID %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get product by ID %s: %w", id, err)
	}
	return &product, nil
}

// GetBySlug retrieves a non-deleted product by slug.
func (r *GORMProductRepository) GetBySlug(ctx context.Context, slug string) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).First(&product, "slug = ? AND deleted_at IS NULL", slug).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("product with slug %s: %w", slug, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get product by slug %s: %w", slug, err)
	}
	return &product, nil
}

// SlugExists reports whether any product, deleted or not, already uses slug.
func (r *GORMProductRepository) SlugExists(ctx context.Context, slug string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Product{}).Where("slug = ?", slug).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check slug %s: %w", slug, err)
	}
	return count > 0, nil
}

// Create creates a new product in the database.
func (r *GORMProductRepository) Create(ctx context.Context, product *models.Product) error {
	if product.ID == "" {
		product.ID = uuid.New().String()
	}
	if err := r.db.WithContext(ctx).Create(product).Error; err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}
	return nil
}

// Update writes every column of product.
func (r *GORMProductRepository) Update(ctx context.Context, product *models.Product) error {
	res := r.db.WithContext(ctx).Save(product)
	if res.Error != nil {
		return fmt.Errorf("failed to update product: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("product with ID %s: %w", product.ID, ErrNotFound)
	}
	return nil
}

// DecrementStock removes qty units in a single conditional update.
func (r *GORMProductRepository) DecrementStock(ctx context.Context, id string, qty int) error {
	res := r.db.WithContext(ctx).Model(&models.Product{}).
		Where("id = ? AND stock >= ?", id, qty).
		UpdateColumn("stock", gorm.Expr("stock - ?", qty))
	if res.Error != nil {
		return fmt.Errorf("failed to decrement stock of product %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("product %s: %w", id, ErrInsufficientStock)
	}
	return nil
}

// IncrementStock puts qty units back.
func (r *GORMProductRepository) IncrementStock(ctx context.Context, id string, qty int) error {
	res := r.db.WithContext(ctx).Model(&models.Product{}).
		Where("id = ?", id).
		UpdateColumn("stock", gorm.Expr("stock + ?", qty))
	if res.Error != nil {
		return fmt.Errorf("failed to increment stock of product %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("product with ID %s: %w", id, ErrNotFound)
	}
	return nil
}

// Categories returns the categories currently linked to a product.
func (r *GORMProductRepository) Categories(ctx context.Context, productID string) ([]models.Category, error) {
	var categories []models.Category
	err := r.db.WithContext(ctx).
		Joins("JOIN product_categories pc ON pc.category_id = categories.id").
		Where("pc.product_id = ? AND pc.deleted_at IS NULL", productID).
		Order("categories.name ASC").
		Find(&categories).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get categories of product %s: %w", productID, err)
	}
	return categories, nil
}

// ReplaceCategories drops every link of the product and inserts the given ones.
func (r *GORMProductRepository) ReplaceCategories(ctx context.Context, productID string, categoryIDs []string) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("product_id = ?", productID).Delete(&models.ProductCategory{}).Error; err != nil {
		return fmt.Errorf("failed to clear categories of product %s: %w", productID, err)
	}
	if len(categoryIDs) == 0 {
		return nil
	}
	links := make([]models.ProductCategory, 0, len(categoryIDs))
	for _, categoryID := range categoryIDs {
		links = append(links, models.ProductCategory{
			ID:         uuid.New().String(),
			ProductID:  productID,
			CategoryID: categoryID,
		})
	}
	if err := db.Omit(clause.Associations).Create(&links).Error; err != nil {
		return fmt.Errorf("failed to link categories of product %s: %w", productID, err)
	}
	return nil
}

// SoftDeleteCategories marks every category link of the product deleted.
func (r *GORMProductRepository) SoftDeleteCategories(ctx context.Context, productID string, at time.Time) error {
	err := r.db.WithContext(ctx).Model(&models.ProductCategory{}).
		Where("product_id = ? AND deleted_at IS NULL", productID).
		Update("deleted_at", at).Error
	if err != nil {
		return fmt.Errorf("failed to unlink categories of product %s: %w", productID, err)
	}
	return nil
}

// ProductIDsInCategory lists products linked to a category.
func (r *GORMProductRepository) ProductIDsInCategory(ctx context.Context, categoryID string) ([]string, error) {
	ids := []string{}
	err := r.db.WithContext(ctx).Model(&models.ProductCategory{}).
		Where("category_id = ? AND deleted_at IS NULL", categoryID).
		Pluck("product_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list products of category %s: %w", categoryID, err)
	}
	return ids, nil
}

// Images returns live image records, primary first then oldest first.
func (r *GORMProductRepository) Images(ctx context.Context, productID string) ([]models.ProductImage, error) {
	var images []models.ProductImage
	err := r.db.WithContext(ctx).
		Where("product_id = ? AND deleted_at IS NULL", productID).
		Order("is_primary DESC").Order("created_at ASC").
		Find(&images).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get images of product %s: %w", productID, err)
	}
	return images, nil
}

// AddImages stores image records.
func (r *GORMProductRepository) AddImages(ctx context.Context, images []models.ProductImage) error {
	if len(images) == 0 {
		return nil
	}
	for i := range images {
		if images[i].ID == "" {
			images[i].ID = uuid.New().String()
		}
	}
	if err := r.db.WithContext(ctx).Create(&images).Error; err != nil {
		return fmt.Errorf("failed to add product images: %w", err)
	}
	return nil
}
