package services_test

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"marketplace/internal/apperror"
	"marketplace/internal/models"
	"marketplace/internal/repositories"
	"marketplace/internal/services"
)

const testJWTSecret = "test_jwt_secret"

// MockUserRepository is a mock implementation of repositories.UserRepository
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) error {
	args := m.Called(user)
	return args.Error(0)
}

func (m *MockUserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return m.user(m.Called(username))
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return m.user(m.Called(email))
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return m.user(m.Called(id))
}

func (m *MockUserRepository) user(args mock.Arguments) (*models.User, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func notFound(what string) error {
	return fmt.Errorf("%s: %w", what, repositories.ErrNotFound)
}

func TestAuthService_RegisterUser(t *testing.T) {
	ctx := context.Background()
	mockRepo := new(MockUserRepository)
	authService := services.NewAuthService(mockRepo, testJWTSecret, time.Hour, nil)

	input := services.RegisterInput{
		Username: "testuser",
		Email:    "test@example.com",
		Password: "password123",
		Role:     "seller",
	}

	mockRepo.On("GetByUsername", input.Username).Return(nil, notFound("user")).Once()
	mockRepo.On("GetByEmail", input.Email).Return(nil, notFound("user")).Once()
	mockRepo.On("Create", mock.AnythingOfType("*models.User")).Return(nil).Once()

	user, err := authService.RegisterUser(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, models.RoleSeller, user.Role)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.Password), []byte("password123")))
	mockRepo.AssertExpectations(t)

	// username already taken
	mockRepo.On("GetByUsername", input.Username).Return(&models.User{ID: "1"}, nil).Once()
	_, err = authService.RegisterUser(ctx, input)
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, apperror.StatusOf(err))
	assert.Contains(t, err.Error(), "username 'testuser' already taken")

	// email already registered
	mockRepo.On("GetByUsername", input.Username).Return(nil, notFound("user")).Once()
	mockRepo.On("GetByEmail", input.Email).Return(&models.User{ID: "1"}, nil).Once()
	_, err = authService.RegisterUser(ctx, input)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "email 'test@example.com' already registered")
	mockRepo.AssertExpectations(t)
}

func TestAuthService_RegisterUserRejectsAdminRole(t *testing.T) {
	mockRepo := new(MockUserRepository)
	authService := services.NewAuthService(mockRepo, testJWTSecret, time.Hour, nil)

	_, err := authService.RegisterUser(context.Background(), services.RegisterInput{
		Username: "root", Email: "root@example.com", Password: "password123", Role: "admin",
	})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, apperror.StatusOf(err))
	mockRepo.AssertNotCalled(t, "Create", mock.Anything)
}

func TestAuthService_LoginUser(t *testing.T) {
	ctx := context.Background()
	mockRepo := new(MockUserRepository)
	authService := services.NewAuthService(mockRepo, testJWTSecret, time.Hour, nil)

	hashedPassword, _ := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.DefaultCost)
	user := &models.User{
		ID:       "user-123",
		Username: "testuser",
		Email:    "test@example.com",
		Password: string(hashedPassword),
		Role:     models.RoleAdmin,
	}

	mockRepo.On("GetByUsername", user.Username).Return(user, nil).Once()
	token, err := authService.LoginUser(ctx, "testuser", "password123")
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	parsedToken, err := jwt.Parse(token, func(token *jwt.Token) (interface{}, error) {
		return []byte(testJWTSecret), nil
	})
	require.NoError(t, err)
	claims, ok := parsedToken.Claims.(jwt.MapClaims)
	require.True(t, ok)
	assert.Equal(t, user.ID, claims["user_id"])
	assert.Equal(t, user.Username, claims["username"])
	assert.Equal(t, "admin", claims["role"])

	// wrong password
	mockRepo.On("GetByUsername", user.Username).Return(user, nil).Once()
	_, err = authService.LoginUser(ctx, "testuser", "wrongpassword")
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, apperror.StatusOf(err))
	assert.Contains(t, err.Error(), "invalid credentials")

	// unknown user gets the same answer
	mockRepo.On("GetByUsername", "nonexistentuser").Return(nil, notFound("user")).Once()
	_, err = authService.LoginUser(ctx, "nonexistentuser", "password123")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid credentials")
	mockRepo.AssertExpectations(t)
}

func TestAuthService_ValidateToken(t *testing.T) {
	authService := services.NewAuthService(new(MockUserRepository), testJWTSecret, time.Hour, nil)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":  "user-123",
		"username": "testuser",
		"role":     "seller",
		"exp":      jwt.TimeFunc().Add(time.Hour).Unix(),
	})
	validTokenString, _ := token.SignedString([]byte(testJWTSecret))

	claims, err := authService.ValidateToken(validTokenString)
	require.NoError(t, err)
	assert.Equal(t, "user-123", claims.UserID)
	assert.Equal(t, "testuser", claims.Username)
	assert.Equal(t, models.RoleSeller, claims.Role)
	assert.Equal(t, services.Actor{UserID: "user-123", Role: models.RoleSeller}, claims.Actor())

	_, err = authService.ValidateToken("invalid.token.string")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid token")

	expiredToken := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":  "user-123",
		"username": "testuser",
		"exp":      jwt.TimeFunc().Add(-time.Hour).Unix(),
	})
	expiredTokenString, _ := expiredToken.SignedString([]byte(testJWTSecret))
	_, err = authService.ValidateToken(expiredTokenString)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid token")

	otherSecret, _ := token.SignedString([]byte("someone-else"))
	_, err = authService.ValidateToken(otherSecret)
	assert.Error(t, err)
}

func TestAuthService_EnsureAdmin(t *testing.T) {
	ctx := context.Background()
	mockRepo := new(MockUserRepository)
	authService := services.NewAuthService(mockRepo, testJWTSecret, time.Hour, nil)

	mockRepo.On("GetByUsername", "root").Return(nil, notFound("user")).Once()
	mockRepo.On("Create", mock.MatchedBy(func(u *models.User) bool {
		return u.Role == models.RoleAdmin && u.Email == "root@example.com" &&
			bcrypt.CompareHashAndPassword([]byte(u.Password), []byte("changeme")) == nil
	})).Return(nil).Once()

	created, err := authService.EnsureAdmin(ctx, "root", "Root@Example.com", "changeme")
	require.NoError(t, err)
	assert.True(t, created)

	mockRepo.On("GetByUsername", "root").Return(&models.User{Username: "root", Role: models.RoleAdmin}, nil).Once()
	created, err = authService.EnsureAdmin(ctx, "root", "root@example.com", "changeme")
	require.NoError(t, err)
	assert.False(t, created)

	mockRepo.AssertExpectations(t)
}
