package cache

import (
	"context"

	"go.uber.org/zap"

	"marketplace/internal/logging"
)

// Invalidator drops cached reads after writes. Deletions run in the background
// when a Submitter is configured.
type Invalidator struct {
	cache  *Cache
	submit Submitter
	logger *zap.Logger
}

func NewInvalidator(cache *Cache, submit Submitter, logger *zap.Logger) *Invalidator {
	return &Invalidator{cache: cache, submit: submit, logger: logging.OrNop(logger).Named("cache")}
}

// InvalidateProducts clears every product listing and product detail.
func (i *Invalidator) InvalidateProducts(ctx context.Context) {
	i.drop(ctx, "invalidate products", "products:*", "product:*")
}

// InvalidateSpecificProduct clears one product and the listings that may show it.
func (i *Invalidator) InvalidateSpecificProduct(ctx context.Context, productID string) {
	i.drop(ctx, "invalidate product", "product:"+productID+":*", "products:*")
}

// InvalidateUserOrders clears the cached order reads of one user.
func (i *Invalidator) InvalidateUserOrders(ctx context.Context, userID string) {
	i.drop(ctx, "invalidate user orders", "orders:"+userID+":*")
}

func (i *Invalidator) drop(ctx context.Context, name string, patterns ...string) {
	job := func(ctx context.Context) error {
		for _, pattern := range patterns {
			n, err := i.cache.DeletePattern(ctx, pattern)
			if err != nil {
				return err
			}
			i.logger.Debug("cache invalidated", zap.String("pattern", pattern), zap.Int("keys", n))
		}
		return nil
	}
	if i.submit != nil {
		i.submit.Submit(name, job)
		return
	}
	if err := job(context.WithoutCancel(ctx)); err != nil {
		i.logger.Warn("cache invalidation failed", zap.String("job", name), zap.Error(err))
	}
}
