package services

import (
	"context"
	"errors"
	"strings"

	"marketplace/internal/apperror"
	"marketplace/internal/models"
	"marketplace/internal/repositories"
)

// CategoryInput is the body of a new category.
type CategoryInput struct {
	Name        string `json:"name" validate:"required,min=2,max=100"`
	Description string `json:"description" validate:"max=500"`
}

// CategoryService manages product categories.
type CategoryService struct {
	categories repositories.CategoryRepository
	cache      CacheInvalidator
}

func NewCategoryService(categories repositories.CategoryRepository, cache CacheInvalidator) *CategoryService {
	if cache == nil {
		cache = noopInvalidator{}
	}
	return &CategoryService{categories: categories, cache: cache}
}

func (s *CategoryService) ListCategories(ctx context.Context) ([]models.Category, error) {
	categories, err := s.categories.List(ctx)
	if err != nil {
		return nil, err
	}
	if categories == nil {
		categories = []models.Category{}
	}
	return categories, nil
}

// CreateCategory stores a category whose name is not already taken, ignoring case.
func (s *CategoryService) CreateCategory(ctx context.Context, input CategoryInput) (*models.Category, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperror.Invalid("Category name is required")
	}

	existing, err := s.categories.FindByName(ctx, name)
	switch {
	case err == nil && strings.EqualFold(existing.Name, name):
		return nil, apperror.Conflict("Category already exists: %s", name)
	case err != nil && !errors.Is(err, repositories.ErrNotFound):
		return nil, err
	}

	category := &models.Category{Name: name, Description: strings.TrimSpace(input.Description)}
	if err := s.categories.Create(ctx, category); err != nil {
		return nil, err
	}
	s.cache.InvalidateProducts(ctx)
	return category, nil
}
