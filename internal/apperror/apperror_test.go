package apperror_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"marketplace/internal/apperror"
)

func TestConstructors(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, apperror.NotFound("Cart not found").Status)
	assert.Equal(t, http.StatusBadRequest, apperror.Invalid("Coupon expired: %s", "OLD").Status)
	assert.Equal(t, "Coupon expired: OLD", apperror.Invalid("Coupon expired: %s", "OLD").Error())
	assert.Equal(t, http.StatusForbidden, apperror.Forbidden("not allowed").Status)
	assert.Equal(t, http.StatusConflict, apperror.Conflict("taken").Status)
	assert.Equal(t, http.StatusUnauthorized, apperror.Unauthorized("no token").Status)
}

func TestStatusOf(t *testing.T) {
	wrapped := fmt.Errorf("create order: %w", apperror.Invalid("Cart is empty"))
	assert.Equal(t, http.StatusBadRequest, apperror.StatusOf(wrapped))
	assert.Equal(t, http.StatusInternalServerError, apperror.StatusOf(errors.New("boom")))

	appErr, ok := apperror.As(wrapped)
	assert.True(t, ok)
	assert.Equal(t, "Cart is empty", appErr.Message)
}
