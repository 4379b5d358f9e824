package repositories_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace/internal/database/databasetest"
	"marketplace/internal/models"
	"marketplace/internal/repositories"
)

func TestCartRepository_GetOrCreateIsIdempotent(t *testing.T) {
	db := databasetest.Open(t)
	carts := repositories.NewGORMCartRepository(db)
	ctx := context.Background()

	first, err := carts.GetOrCreate(ctx, "user-1")
	require.NoError(t, err)
	again, err := carts.GetOrCreate(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	other, err := carts.GetOrCreate(ctx, "user-2")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestCartRepository_ConcurrentGetOrCreateSharesOneCart(t *testing.T) {
	db := databasetest.Open(t)
	carts := repositories.NewGORMCartRepository(db)
	ctx := context.Background()

	const callers = 8
	ids := make([]string, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cart, err := carts.GetOrCreate(ctx, "user-1")
			errs[i] = err
			if err == nil {
				ids[i] = cart.ID
			}
		}(i)
	}
	wg.Wait()

	for i := range errs {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	var count int64
	require.NoError(t, db.Model(&models.Cart{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
