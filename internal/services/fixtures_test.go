package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"marketplace/internal/database/databasetest"
	"marketplace/internal/models"
	"marketplace/internal/repositories"
	"marketplace/internal/services"
)

// MockNotifier is a mock implementation of services.Notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) EmitOrderUpdated(ctx context.Context, order models.Order) {
	m.Called(order)
}

func (m *MockNotifier) EmitPublishProduct(ctx context.Context, product models.Product) {
	m.Called(product)
}

// MockInvalidator is a mock implementation of services.CacheInvalidator
type MockInvalidator struct {
	mock.Mock
}

func (m *MockInvalidator) InvalidateProducts(ctx context.Context) {
	m.Called()
}

func (m *MockInvalidator) InvalidateSpecificProduct(ctx context.Context, productID string) {
	m.Called(productID)
}

func (m *MockInvalidator) InvalidateUserOrders(ctx context.Context, userID string) {
	m.Called(userID)
}

func newMockNotifier() *MockNotifier {
	n := new(MockNotifier)
	n.On("EmitOrderUpdated", mock.Anything).Return().Maybe()
	n.On("EmitPublishProduct", mock.Anything).Return().Maybe()
	return n
}

func newMockInvalidator() *MockInvalidator {
	c := new(MockInvalidator)
	c.On("InvalidateProducts").Return().Maybe()
	c.On("InvalidateSpecificProduct", mock.Anything).Return().Maybe()
	c.On("InvalidateUserOrders", mock.Anything).Return().Maybe()
	return c
}

// store is a migrated sqlite database with every repository bound to it.
type store struct {
	db         *gorm.DB
	repos      repositories.Repositories
	users      *repositories.GORMUserRepository
	categories *repositories.GORMCategoryRepository
	reviews    *repositories.GORMReviewRepository
	uow        *repositories.GORMUnitOfWork
}

func newStore(t *testing.T) *store {
	t.Helper()
	db := databasetest.Open(t)
	return &store{
		db:         db,
		repos:      repositories.NewRepositories(db),
		users:      repositories.NewGORMUserRepository(db),
		categories: repositories.NewGORMCategoryRepository(db),
		reviews:    repositories.NewGORMReviewRepository(db),
		uow:        repositories.NewGORMUnitOfWork(db),
	}
}

func (s *store) user(t *testing.T, name string, role models.Role) *models.User {
	t.Helper()
	u := &models.User{Username: name, Email: name + "@example.com", FullName: name, Password: "x", Role: role}
	require.NoError(t, s.users.Create(context.Background(), u))
	return u
}

func (s *store) product(t *testing.T, sellerID, title string, price string, stock int) *models.Product {
	t.Helper()
	p := &models.Product{
		SellerID:         sellerID,
		Title:            title,
		Slug:             services.Slugify(title) + "-" + uuid.NewString()[:8],
		Description:      title + " description",
		Price:            decimal.RequireFromString(price),
		Stock:            stock,
		IsVisible:        true,
		IsAvailable:      true,
		ValidationStatus: models.ValidationApproved,
	}
	require.NoError(t, s.repos.Products.Create(context.Background(), p))
	return p
}

func (s *store) category(t *testing.T, name string) *models.Category {
	t.Helper()
	c := &models.Category{Name: name}
	require.NoError(t, s.categories.Create(context.Background(), c))
	return c
}

func (s *store) addToCart(t *testing.T, userID string, product *models.Product, qty int) {
	t.Helper()
	ctx := context.Background()
	cart, err := s.repos.Carts.GetOrCreate(ctx, userID)
	require.NoError(t, err)
	require.NoError(t, s.repos.Carts.SaveItem(ctx, &models.CartItem{CartID: cart.ID, ProductID: product.ID, Quantity: qty}))
}

func (s *store) coupon(t *testing.T, code string, typ models.CouponType, value string, opts ...func(*models.Coupon)) *models.Coupon {
	t.Helper()
	c := &models.Coupon{Code: code, Type: typ, Value: decimal.RequireFromString(value), IsActive: true}
	for _, opt := range opts {
		opt(c)
	}
	require.NoError(t, s.repos.Coupons.Create(context.Background(), c))
	return c
}

func (s *store) stock(t *testing.T, productID string) int {
	t.Helper()
	p, err := s.repos.Products.GetByID(context.Background(), productID)
	require.NoError(t, err)
	return p.Stock
}

func (s *store) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, s.db.Model(model).Count(&n).Error)
	return n
}

func withUsageLimit(limit int) func(*models.Coupon) {
	return func(c *models.Coupon) { c.UsageLimit = &limit }
}

func withMinAmount(min string) func(*models.Coupon) {
	return func(c *models.Coupon) { c.MinAmount = decimal.NewNullDecimal(decimal.RequireFromString(min)) }
}

func expiringAt(at time.Time) func(*models.Coupon) {
	return func(c *models.Coupon) { c.ExpiresAt = &at }
}
