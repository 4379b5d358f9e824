package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"marketplace/internal/apperror"
	"marketplace/internal/logging"
	"marketplace/internal/models"
	"marketplace/internal/pagination"
	"marketplace/internal/repositories"
)

const (
	// DefaultProductLimit is the catalog page size when the client sends none.
	DefaultProductLimit = 8
	enrichParallelism   = 4
)

// ProductView is a product with its categories, images and review aggregate.
type ProductView struct {
	models.Product
	Categories []models.Category     `json:"categories"`
	Images     []models.ProductImage `json:"images"`
	Rating     ReviewSummary         `json:"rating"`
}

// ProductQuery is a catalog search. Empty fields do not filter.
type ProductQuery struct {
	Search   string
	Category string // id or name
	MinPrice *decimal.Decimal
	MaxPrice *decimal.Decimal
	InStock  bool
	SellerID string
	SortBy   string // price, date or rating
	Order    string // asc or desc
	Page     pagination.Params
}

// ProductPage is one page of the catalog.
type ProductPage struct {
	Products []ProductView
	Metadata pagination.Metadata
}

// ProductInput is the body of a new product.
type ProductInput struct {
	Title       string          `json:"title" validate:"required,min=2,max=200"`
	Description string          `json:"description" validate:"required"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock" validate:"min=0"`
	CategoryIDs []string        `json:"categoryIds" validate:"required,min=1"`
	ImageURLs   []string        `json:"imageUrls" validate:"omitempty,dive,required"`
}

// ProductUpdate is a partial edit. Nil fields are left unchanged.
type ProductUpdate struct {
	Title       *string          `json:"title" validate:"omitempty,min=2,max=200"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	Stock       *int             `json:"stock" validate:"omitempty,min=0"`
	CategoryIDs []string         `json:"categoryIds"`
	ImageURLs   []string         `json:"imageUrls" validate:"omitempty,dive,required"`
}

// ProductService handles business logic related to products.
type ProductService struct {
	uow        repositories.UnitOfWork
	products   repositories.ProductRepository
	categories repositories.CategoryRepository
	reviews    *ReviewService
	notifier   Notifier
	cache      CacheInvalidator
	logger     *zap.Logger
	now        func() time.Time
}

// NewProductService creates a new ProductService.
func NewProductService(
	uow repositories.UnitOfWork,
	products repositories.ProductRepository,
	categories repositories.CategoryRepository,
	reviews *ReviewService,
	notifier Notifier,
	cache CacheInvalidator,
	logger *zap.Logger,
) *ProductService {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	if cache == nil {
		cache = noopInvalidator{}
	}
	return &ProductService{
		uow:        uow,
		products:   products,
		categories: categories,
		reviews:    reviews,
		notifier:   notifier,
		cache:      cache,
		logger:     logging.OrNop(logger).Named("products"),
		now:        time.Now,
	}
}

// ListProducts searches the live catalog. Sorting by rating needs the
// aggregate of every match, so that path enriches first and pages after.
func (s *ProductService) ListProducts(ctx context.Context, q ProductQuery) (*ProductPage, error) {
	page := pagination.Must(q.Page)
	filter := repositories.ProductFilter{
		Search:    q.Search,
		MinPrice:  q.MinPrice,
		MaxPrice:  q.MaxPrice,
		InStock:   q.InStock,
		SellerID:  q.SellerID,
		SortField: "created_at",
		SortAsc:   strings.EqualFold(q.Order, "asc"),
	}
	if q.SortBy == "price" {
		filter.SortField = "price"
	}

	ids, err := s.resolveCategory(ctx, q.Category)
	if err != nil {
		return nil, err
	}
	filter.ProductIDs = ids

	byRating := q.SortBy == "rating"
	if !byRating {
		filter.Offset = page.Offset()
		filter.Limit = page.Limit
	}

	products, total, err := s.products.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	views, err := s.Enrich(ctx, products)
	if err != nil {
		return nil, err
	}

	if byRating {
		asc := filter.SortAsc
		sort.SliceStable(views, func(i, j int) bool {
			if asc {
				return views[i].Rating.AverageRating < views[j].Rating.AverageRating
			}
			return views[i].Rating.AverageRating > views[j].Rating.AverageRating
		})
		start := min(page.Offset(), len(views))
		end := min(start+page.Limit, len(views))
		views = views[start:end]
	}

	return &ProductPage{Products: views, Metadata: pagination.NewMetadata(total, page)}, nil
}

// resolveCategory maps a category id or name to the ids of its products.
// A nil result leaves the listing unrestricted.
func (s *ProductService) resolveCategory(ctx context.Context, category string) ([]string, error) {
	category = strings.TrimSpace(category)
	if category == "" {
		return nil, nil
	}

	categoryID := category
	if _, err := uuid.Parse(category); err != nil {
		found, err := s.categories.FindByName(ctx, category)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return nil, nil
			}
			return nil, err
		}
		categoryID = found.ID
	}
	return s.products.ProductIDsInCategory(ctx, categoryID)
}

// Enrich loads categories, images and reviews for each product in parallel.
func (s *ProductService) Enrich(ctx context.Context, products []models.Product) ([]ProductView, error) {
	views := make([]ProductView, len(products))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(enrichParallelism)

	for i := range products {
		g.Go(func() error {
			view, err := s.enrichOne(gctx, products[i])
			if err != nil {
				return err
			}
			views[i] = view
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return views, nil
}

func (s *ProductService) enrichOne(ctx context.Context, product models.Product) (ProductView, error) {
	categories, err := s.products.Categories(ctx, product.ID)
	if err != nil {
		return ProductView{}, err
	}
	images, err := s.products.Images(ctx, product.ID)
	if err != nil {
		return ProductView{}, err
	}
	rating, err := s.reviews.Summary(ctx, product.ID)
	if err != nil {
		return ProductView{}, err
	}
	if categories == nil {
		categories = []models.Category{}
	}
	if images == nil {
		images = []models.ProductImage{}
	}
	return ProductView{Product: product, Categories: categories, Images: images, Rating: rating}, nil
}

// GetProduct returns a live product by id.
func (s *ProductService) GetProduct(ctx context.Context, id string) (*ProductView, error) {
	product, err := s.liveProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	view, err := s.enrichOne(ctx, *product)
	if err != nil {
		return nil, err
	}
	return &view, nil
}

// GetProductBySlug returns a live product by slug.
func (s *ProductService) GetProductBySlug(ctx context.Context, slug string) (*ProductView, error) {
	product, err := s.products.GetBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, apperror.NotFound("Product not found")
		}
		return nil, err
	}
	view, err := s.enrichOne(ctx, *product)
	if err != nil {
		return nil, err
	}
	return &view, nil
}

// CreateProduct stores a pending product with its category links and images.
func (s *ProductService) CreateProduct(ctx context.Context, actor Actor, input ProductInput) (*models.Product, error) {
	if strings.TrimSpace(input.Title) == "" || strings.TrimSpace(input.Description) == "" {
		return nil, apperror.Invalid("Title, description, price, stock and categories are required")
	}
	if input.Price.IsNegative() {
		return nil, apperror.Invalid("Price must not be negative")
	}
	if input.Stock < 0 {
		return nil, apperror.Invalid("Stock must not be negative")
	}
	if len(input.CategoryIDs) == 0 {
		return nil, apperror.Invalid("At least one category is required")
	}
	if err := s.checkCategories(ctx, input.CategoryIDs); err != nil {
		return nil, err
	}

	product := &models.Product{
		SellerID:         actor.UserID,
		Title:            strings.TrimSpace(input.Title),
		Description:      input.Description,
		Price:            input.Price.Round(2),
		Stock:            input.Stock,
		IsVisible:        true,
		IsAvailable:      true,
		ValidationStatus: models.ValidationPending,
	}

	err := s.uow.RunInTx(ctx, func(repos repositories.Repositories) error {
		slug, err := uniqueSlug(ctx, repos.Products, product.Title)
		if err != nil {
			return err
		}
		product.Slug = slug
		if err := repos.Products.Create(ctx, product); err != nil {
			return err
		}
		if err := repos.Products.ReplaceCategories(ctx, product.ID, input.CategoryIDs); err != nil {
			return err
		}
		return repos.Products.AddImages(ctx, imageRecords(product.ID, input.ImageURLs, true))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("product created", zap.String("product_id", product.ID), zap.String("seller_id", actor.UserID))
	s.cache.InvalidateProducts(ctx)
	return product, nil
}

// UpdateProduct applies a partial edit. Sellers may only edit their own products.
func (s *ProductService) UpdateProduct(ctx context.Context, actor Actor, id string, input ProductUpdate) (*models.Product, error) {
	if input.CategoryIDs != nil {
		if err := s.checkCategories(ctx, input.CategoryIDs); err != nil {
			return nil, err
		}
	}
	product, err := s.ownedProduct(ctx, actor, id, "Cannot update a deleted product")
	if err != nil {
		return nil, err
	}

	if input.Title != nil && strings.TrimSpace(*input.Title) != "" {
		product.Title = strings.TrimSpace(*input.Title)
	}
	if input.Description != nil && *input.Description != "" {
		product.Description = *input.Description
	}
	if input.Price != nil {
		if input.Price.IsNegative() {
			return nil, apperror.Invalid("Price must not be negative")
		}
		product.Price = input.Price.Round(2)
	}
	if input.Stock != nil {
		if *input.Stock < 0 {
			return nil, apperror.Invalid("Stock must not be negative")
		}
		product.Stock = *input.Stock
	}

	err = s.uow.RunInTx(ctx, func(repos repositories.Repositories) error {
		if err := repos.Products.Update(ctx, product); err != nil {
			return err
		}
		if input.CategoryIDs != nil {
			if err := repos.Products.ReplaceCategories(ctx, product.ID, input.CategoryIDs); err != nil {
				return err
			}
		}
		return repos.Products.AddImages(ctx, imageRecords(product.ID, input.ImageURLs, false))
	})
	if err != nil {
		return nil, err
	}

	s.cache.InvalidateSpecificProduct(ctx, product.ID)
	return product, nil
}

// DeleteProduct soft-deletes a product and its category links.
func (s *ProductService) DeleteProduct(ctx context.Context, actor Actor, id string) error {
	product, err := s.ownedProduct(ctx, actor, id, "Product already deleted")
	if err != nil {
		return err
	}

	now := s.now()
	product.MarkDeleted(now)
	err = s.uow.RunInTx(ctx, func(repos repositories.Repositories) error {
		if err := repos.Products.Update(ctx, product); err != nil {
			return err
		}
		return repos.Products.SoftDeleteCategories(ctx, product.ID, now)
	})
	if err != nil {
		return err
	}

	s.logger.Info("product deleted", zap.String("product_id", product.ID))
	s.cache.InvalidateSpecificProduct(ctx, product.ID)
	return nil
}

// SetVisibility shows or hides a live product.
func (s *ProductService) SetVisibility(ctx context.Context, actor Actor, id string, visible bool) (*models.Product, error) {
	product, err := s.liveProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorizeSeller(actor, product); err != nil {
		return nil, err
	}
	product.IsVisible = visible
	if err := s.products.Update(ctx, product); err != nil {
		return nil, err
	}
	s.cache.InvalidateSpecificProduct(ctx, product.ID)
	return product, nil
}

// ListPending returns live products awaiting moderation, oldest first.
func (s *ProductService) ListPending(ctx context.Context) ([]ProductView, error) {
	products, err := s.products.ListPending(ctx)
	if err != nil {
		return nil, err
	}
	return s.Enrich(ctx, products)
}

// ValidateProduct approves and publishes a product.
func (s *ProductService) ValidateProduct(ctx context.Context, id string) (*models.Product, error) {
	product, err := s.liveProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	product.ValidationStatus = models.ValidationApproved
	product.IsVisible = true
	product.IsAvailable = true
	product.RejectionReason = nil
	product.ValidatedAt = &now
	if err := s.products.Update(ctx, product); err != nil {
		return nil, err
	}

	s.logger.Info("product approved", zap.String("product_id", product.ID))
	s.notifier.EmitPublishProduct(ctx, *product)
	s.cache.InvalidateProducts(ctx)
	return product, nil
}

// RejectProduct hides a product and records why.
func (s *ProductService) RejectProduct(ctx context.Context, id, reason string) (*models.Product, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperror.Invalid("Rejection reason is required")
	}
	product, err := s.liveProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	product.ValidationStatus = models.ValidationRejected
	product.IsVisible = false
	product.IsAvailable = false
	product.RejectionReason = &reason
	product.ValidatedAt = &now
	if err := s.products.Update(ctx, product); err != nil {
		return nil, err
	}

	s.logger.Info("product rejected", zap.String("product_id", product.ID))
	s.cache.InvalidateProducts(ctx)
	return product, nil
}

func (s *ProductService) findProduct(ctx context.Context, id string) (*models.Product, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperror.Invalid("Invalid product ID")
	}
	product, err := s.products.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, apperror.NotFound("Product not found")
		}
		return nil, err
	}
	return product, nil
}

func (s *ProductService) liveProduct(ctx context.Context, id string) (*models.Product, error) {
	product, err := s.findProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	switch product.State().(type) {
	case models.Deleted:
		return nil, apperror.NotFound("Product not found")
	default:
		return product, nil
	}
}

// ownedProduct loads a live product the actor may edit. deletedMsg is the
// 400 message returned when the product is already deleted.
func (s *ProductService) ownedProduct(ctx context.Context, actor Actor, id, deletedMsg string) (*models.Product, error) {
	product, err := s.findProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, deleted := product.State().(models.Deleted); deleted {
		return nil, apperror.Invalid("%s", deletedMsg)
	}
	if err := authorizeSeller(actor, product); err != nil {
		return nil, err
	}
	return product, nil
}

func authorizeSeller(actor Actor, product *models.Product) error {
	if !actor.IsAdmin() && product.SellerID != actor.UserID {
		return apperror.Forbidden("You are not authorized to modify this product")
	}
	return nil
}

func (s *ProductService) checkCategories(ctx context.Context, ids []string) error {
	unique := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			return apperror.Invalid("Invalid category ID")
		}
		unique[id] = struct{}{}
	}
	if len(unique) == 0 {
		return nil
	}
	keys := make([]string, 0, len(unique))
	for id := range unique {
		keys = append(keys, id)
	}
	count, err := s.categories.CountExisting(ctx, keys)
	if err != nil {
		return err
	}
	if count != int64(len(keys)) {
		return apperror.NotFound("Category not found")
	}
	return nil
}

func imageRecords(productID string, urls []string, firstIsPrimary bool) []models.ProductImage {
	images := make([]models.ProductImage, 0, len(urls))
	for i, url := range urls {
		url = strings.TrimSpace(url)
		if url == "" {
			continue
		}
		images = append(images, models.ProductImage{
			ProductID: productID,
			ImageURL:  url,
			IsPrimary: firstIsPrimary && i == 0,
		})
	}
	return images
}

// Slugify lowercases title, strips accents and joins words with hyphens.
func Slugify(title string) string {
	stripped, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), title)
	if err != nil {
		stripped = title
	}

	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(stripped) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.TrimSuffix(b.String(), "-")
	if slug == "" {
		slug = "product"
	}
	return slug
}

func uniqueSlug(ctx context.Context, products repositories.ProductRepository, title string) (string, error) {
	base := Slugify(title)
	slug := base
	for n := 1; ; n++ {
		exists, err := products.SlugExists(ctx, slug)
		if err != nil {
			return "", err
		}
		if !exists {
			return slug, nil
		}
		slug = fmt.Sprintf("%s-%d", base, n)
	}
}
