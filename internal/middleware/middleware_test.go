package middleware_test

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"marketplace/internal/apperror"
	"marketplace/internal/middleware"
	"marketplace/internal/models"
	"marketplace/internal/services"
)

type MockValidator struct {
	mock.Mock
}

func (m *MockValidator) ValidateToken(token string) (*services.TokenClaims, error) {
	args := m.Called(token)
	claims, _ := args.Get(0).(*services.TokenClaims)
	return claims, args.Error(1)
}

func newApp(v middleware.TokenValidator, roles ...models.Role) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.Status(apperror.StatusOf(err)).SendString(err.Error())
		},
	})
	handlers := []fiber.Handler{middleware.RequestLogger(nil), middleware.AuthRequired(v)}
	if len(roles) > 0 {
		handlers = append(handlers, middleware.RequireRole(roles...))
	}
	handlers = append(handlers, func(c *fiber.Ctx) error {
		actor := middleware.Actor(c)
		return c.SendString(actor.UserID + "/" + string(actor.Role))
	})
	app.Get("/me", handlers...)
	return app
}

func call(t *testing.T, app *fiber.App, header string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodGet, "/me", nil)
	if header != "" {
		req.Header.Set(fiber.HeaderAuthorization, header)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	buf := make([]byte, 256)
	n, _ := resp.Body.Read(buf)
	return resp.StatusCode, string(buf[:n])
}

func TestAuthRequired(t *testing.T) {
	v := new(MockValidator)
	v.On("ValidateToken", "good").Return(&services.TokenClaims{UserID: "u1", Username: "ann", Role: models.RoleSeller}, nil)
	v.On("ValidateToken", "bad").Return(nil, apperror.Unauthorized("invalid token"))
	app := newApp(v)

	status, body := call(t, app, "Bearer good")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "u1/seller", body)

	status, body = call(t, app, "")
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "Authorization header is required", body)

	status, _ = call(t, app, "Token good")
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, body = call(t, app, "Bearer bad")
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "invalid token", body)
}

func TestRequireRole(t *testing.T) {
	v := new(MockValidator)
	v.On("ValidateToken", "admin").Return(&services.TokenClaims{UserID: "a1", Role: models.RoleAdmin}, nil)
	v.On("ValidateToken", "user").Return(&services.TokenClaims{UserID: "u1", Role: models.RoleUser}, nil)
	app := newApp(v, models.RoleAdmin, models.RoleSeller)

	status, _ := call(t, app, "Bearer admin")
	assert.Equal(t, fiber.StatusOK, status)

	status, body := call(t, app, "Bearer user")
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, "Access denied", body)
}
