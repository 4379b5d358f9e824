package handlers_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"marketplace/internal/cache"
	"marketplace/internal/database/databasetest"
	"marketplace/internal/handlers"
	"marketplace/internal/models"
	"marketplace/internal/repositories"
	"marketplace/internal/services"
)

type testServer struct {
	t     *testing.T
	app   *fiber.App
	db    *gorm.DB
	redis *miniredis.Miniredis
}

// setupApp wires the whole API against in-memory SQLite and miniredis.
func setupApp(t *testing.T) *testServer {
	t.Helper()
	db := databasetest.Open(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := cache.New(client, nil)
	invalidator := cache.NewInvalidator(store, nil, nil)

	repos := repositories.NewRepositories(db)
	uow := repositories.NewGORMUnitOfWork(db)
	users := repositories.NewGORMUserRepository(db)
	categories := repositories.NewGORMCategoryRepository(db)

	reviews := services.NewReviewService(repositories.NewGORMReviewRepository(db), repos.Products, invalidator, nil)
	app := handlers.NewRouter(handlers.Deps{
		Auth:       services.NewAuthService(users, "test_jwt_secret", time.Hour, nil),
		Products:   services.NewProductService(uow, repos.Products, categories, reviews, nil, invalidator, nil),
		Reviews:    reviews,
		Categories: services.NewCategoryService(categories, invalidator),
		Carts:      services.NewCartService(repos.Carts, repos.Products),
		Coupons:    services.NewCouponService(repos.Coupons, nil),
		Orders:     services.NewOrderService(uow, repos.Orders, nil, invalidator, nil),
		Cache:      store,
		CacheTTL:   time.Minute,
		HealthChecks: map[string]handlers.HealthCheck{
			"cache": store.Ping,
		},
	})
	return &testServer{t: t, app: app, db: db, redis: mr}
}

// do sends a JSON request and decodes the JSON envelope of the answer.
func (s *testServer) do(method, path, token string, body any) (int, map[string]any) {
	s.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.app.Test(req, -1)
	require.NoError(s.t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	require.NoError(s.t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp.StatusCode, decoded
}

func (s *testServer) register(username string, role models.Role) {
	s.t.Helper()
	status, _ := s.do(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": "password123",
		"role":     string(role),
	})
	require.Equal(s.t, http.StatusCreated, status)
}

func (s *testServer) login(username string) string {
	s.t.Helper()
	status, body := s.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": username,
		"password": "password123",
	})
	require.Equal(s.t, http.StatusOK, status)
	token, _ := data(body)["token"].(string)
	require.NotEmpty(s.t, token)
	return token
}

// admin registers a regular user and promotes it; self-registration cannot pick admin.
func (s *testServer) admin(username string) string {
	s.t.Helper()
	s.register(username, models.RoleUser)
	require.NoError(s.t, s.db.Model(&models.User{}).Where("username = ?", username).Update("role", models.RoleAdmin).Error)
	return s.login(username)
}

func data(body map[string]any) map[string]any {
	d, _ := body["data"].(map[string]any)
	return d
}

func field(body map[string]any, key string) map[string]any {
	m, _ := data(body)[key].(map[string]any)
	return m
}

func TestAuthRegisterAndLogin(t *testing.T) {
	s := setupApp(t)

	status, body := s.do(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"username": "testuser",
		"email":    "test@example.com",
		"password": "password123",
	})
	assert.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "User registered successfully", body["message"])
	user := field(body, "user")
	assert.Equal(t, "user", user["role"])
	assert.NotContains(t, user, "password")

	// duplicate username
	status, body = s.do(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"username": "testuser",
		"email":    "other@example.com",
		"password": "password123",
	})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, false, body["success"])

	// admin cannot be self-assigned
	status, body = s.do(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"username": "sneaky",
		"email":    "sneaky@example.com",
		"password": "password123",
		"role":     "admin",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Validation failed", body["message"])
	assert.Contains(t, body["errors"], "Role")

	assert.NotEmpty(t, s.login("testuser"))

	status, body = s.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "testuser",
		"password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "invalid credentials", body["message"])
}

func TestProtectedRoutesWithoutAuth(t *testing.T) {
	s := setupApp(t)

	status, body := s.do(http.MethodGet, "/api/v1/cart", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Authorization header is required", body["message"])

	status, _ = s.do(http.MethodPost, "/api/v1/products", "", map[string]any{"title": "Nope"})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = s.do(http.MethodGet, "/api/v1/orders", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	// the public catalog needs no token
	status, body = s.do(http.MethodGet, "/api/v1/products", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["success"])
}

func TestRoleGating(t *testing.T) {
	s := setupApp(t)
	s.register("buyer", models.RoleUser)
	token := s.login("buyer")

	status, body := s.do(http.MethodPost, "/api/v1/products", token, map[string]any{
		"title": "Mug", "description": "d", "price": 1, "stock": 1, "categoryIds": []string{"x"},
	})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "Access denied", body["message"])

	status, _ = s.do(http.MethodGet, "/api/v1/coupons", token, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = s.do(http.MethodGet, "/api/v1/admin/products/pending", token, nil)
	assert.Equal(t, http.StatusForbidden, status)
}

// TestMarketplaceFlow walks a product from listing to a cancelled order.
func TestMarketplaceFlow(t *testing.T) {
	s := setupApp(t)
	adminToken := s.admin("root")
	s.register("sam", models.RoleSeller)
	sellerToken := s.login("sam")
	s.register("ann", models.RoleUser)
	buyerToken := s.login("ann")

	status, body := s.do(http.MethodPost, "/api/v1/categories", adminToken, map[string]string{"name": "Kitchen"})
	require.Equal(t, http.StatusCreated, status)
	categoryID := field(body, "category")["id"].(string)

	status, body = s.do(http.MethodPost, "/api/v1/products", sellerToken, map[string]any{
		"title":       "Blue Mug",
		"description": "A mug that is blue",
		"price":       25,
		"stock":       5,
		"categoryIds": []string{categoryID},
		"imageUrls":   []string{"https://img.example.com/mug.png"},
	})
	require.Equal(t, http.StatusCreated, status)
	product := field(body, "product")
	productID := product["id"].(string)
	assert.Equal(t, "blue-mug", product["slug"])
	assert.Equal(t, "pending", product["validationStatus"])

	// catalog reads are cached until a write invalidates them
	status, body = s.do(http.MethodGet, "/api/v1/products?search=mug", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Nil(t, body["fromCache"])
	assert.EqualValues(t, 1, body["metadata"].(map[string]any)["total"])
	_, body = s.do(http.MethodGet, "/api/v1/products?search=mug", "", nil)
	assert.Equal(t, true, body["fromCache"])

	status, body = s.do(http.MethodGet, "/api/v1/admin/products/pending", adminToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, data(body)["products"], 1)

	status, body = s.do(http.MethodPatch, "/api/v1/admin/products/"+productID+"/validate", adminToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "approved", field(body, "product")["validationStatus"])

	_, body = s.do(http.MethodGet, "/api/v1/products?search=mug", "", nil)
	assert.Nil(t, body["fromCache"], "validation must invalidate product listings")

	status, body = s.do(http.MethodGet, "/api/v1/products/slug/blue-mug", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, field(body, "product")["images"], 1)
	assert.Len(t, field(body, "product")["categories"], 1)

	status, _ = s.do(http.MethodPost, "/api/v1/coupons", adminToken, map[string]any{
		"code": "save10", "type": "percentage", "value": 10,
	})
	require.Equal(t, http.StatusCreated, status)

	status, body = s.do(http.MethodPost, "/api/v1/cart/items", buyerToken, map[string]any{
		"productId": productID, "quantity": 2,
	})
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 50, field(body, "cart")["subtotal"])

	status, body = s.do(http.MethodPost, "/api/v1/orders", buyerToken, map[string]any{
		"couponCodes": []string{"SAVE10"},
	})
	require.Equal(t, http.StatusCreated, status)
	order := field(body, "order")
	orderID := order["id"].(string)
	assert.EqualValues(t, 50, order["subtotal"])
	assert.EqualValues(t, 5, order["discount"])
	assert.EqualValues(t, 45, order["total"])
	assert.Equal(t, "pending", order["status"])

	_, body = s.do(http.MethodGet, "/api/v1/products/"+productID, "", nil)
	assert.EqualValues(t, 3, field(body, "product")["stock"])

	status, body = s.do(http.MethodGet, "/api/v1/cart", buyerToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, field(body, "cart")["items"])

	status, body = s.do(http.MethodGet, "/api/v1/orders?page=1&limit=5", buyerToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, data(body)["orders"], 1)
	meta := body["metadata"].(map[string]any)
	assert.EqualValues(t, 1, meta["total"])
	assert.EqualValues(t, 5, meta["pageSize"])
	assert.Equal(t, false, meta["hasNextPage"])

	status, _ = s.do(http.MethodGet, "/api/v1/orders/"+orderID, sellerToken, nil)
	assert.Equal(t, http.StatusForbidden, status)
	status, body = s.do(http.MethodGet, "/api/v1/orders/not-a-uuid", buyerToken, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Invalid order ID", body["message"])

	status, _ = s.do(http.MethodPatch, "/api/v1/orders/"+orderID+"/status", buyerToken, map[string]string{"status": "paid"})
	assert.Equal(t, http.StatusForbidden, status)
	status, body = s.do(http.MethodPatch, "/api/v1/orders/"+orderID+"/status", adminToken, map[string]string{"status": "bogus"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Invalid status", body["message"])
	status, body = s.do(http.MethodPatch, "/api/v1/orders/"+orderID+"/status", adminToken, map[string]string{"status": "paid"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "paid", field(body, "order")["status"])

	status, body = s.do(http.MethodPost, "/api/v1/orders/"+orderID+"/cancel", buyerToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "cancelled", field(body, "order")["status"])

	_, body = s.do(http.MethodGet, "/api/v1/products/"+productID, "", nil)
	assert.EqualValues(t, 5, field(body, "product")["stock"])

	status, body = s.do(http.MethodPost, "/api/v1/orders/"+orderID+"/cancel", buyerToken, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Cannot cancel cancelled order", body["message"])

	// the cancelled order released the coupon
	s.do(http.MethodPost, "/api/v1/cart/items", buyerToken, map[string]any{"productId": productID, "quantity": 1})
	status, _ = s.do(http.MethodPost, "/api/v1/orders", buyerToken, map[string]any{"couponCodes": []string{"SAVE10"}})
	assert.Equal(t, http.StatusCreated, status)
}

func TestOrderFailures(t *testing.T) {
	s := setupApp(t)
	s.register("ann", models.RoleUser)
	token := s.login("ann")

	status, body := s.do(http.MethodPost, "/api/v1/orders", token, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Cart not found", body["message"])

	status, body = s.do(http.MethodPost, "/api/v1/orders", token, map[string]any{"couponCodes": []string{""}})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Validation failed", body["message"])

	status, body = s.do(http.MethodPost, "/api/v1/cart/items", token, map[string]any{"productId": "nope", "quantity": 1})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body["errors"], "ProductID")
}

func TestReviews(t *testing.T) {
	s := setupApp(t)
	adminToken := s.admin("root")
	s.register("ann", models.RoleUser)
	token := s.login("ann")

	_, body := s.do(http.MethodPost, "/api/v1/categories", adminToken, map[string]string{"name": "Books"})
	categoryID := field(body, "category")["id"].(string)
	status, body := s.do(http.MethodPost, "/api/v1/products", adminToken, map[string]any{
		"title": "Go Book", "description": "Learn Go", "price": 40, "stock": 2, "categoryIds": []string{categoryID},
	})
	require.Equal(t, http.StatusCreated, status)
	productID := field(body, "product")["id"].(string)

	status, _ = s.do(http.MethodPost, "/api/v1/products/"+productID+"/reviews", token, map[string]any{"rating": 4, "comment": "good"})
	require.Equal(t, http.StatusCreated, status)
	status, body = s.do(http.MethodPost, "/api/v1/products/"+productID+"/reviews", token, map[string]any{"rating": 5})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "You have already reviewed this product", body["message"])

	status, body = s.do(http.MethodGet, "/api/v1/products/"+productID+"/reviews", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 4, data(body)["averageRating"])
	assert.EqualValues(t, 1, data(body)["count"])
}

func TestHealthAndPerformance(t *testing.T) {
	s := setupApp(t)
	adminToken := s.admin("root")

	status, body := s.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", data(body)["status"])

	s.do(http.MethodGet, "/api/v1/products", "", nil)
	s.do(http.MethodGet, "/api/v1/products", "", nil)

	status, body = s.do(http.MethodGet, "/api/v1/performance/stats", adminToken, nil)
	require.Equal(t, http.StatusOK, status)
	hits := data(body)["cache"].(map[string]any)
	assert.EqualValues(t, 1, hits["hits"])
	assert.EqualValues(t, 1, hits["misses"])

	status, _ = s.do(http.MethodPost, "/api/v1/performance/cache/reset", adminToken, nil)
	assert.Equal(t, http.StatusOK, status)
	n, err := s.redis.Get("cache:hits")
	require.NoError(t, err)
	assert.Equal(t, "0", n)

	s.redis.Close()
	status, body = s.do(http.MethodGet, "/api/v1/performance/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "degraded", data(body)["status"])
}
