package repositories

import (
	"context"

	"gorm.io/gorm"
)

// Repositories bundles the stores touched by a multi-entity workflow. Inside
// UnitOfWork.RunInTx every member is bound to the same transaction.
type Repositories struct {
	Products ProductRepository
	Carts    CartRepository
	Orders   OrderRepository
	Coupons  CouponRepository
}

// UnitOfWork runs fn atomically: either every write fn makes commits or none does.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(repos Repositories) error) error
}

// NewRepositories binds every repository to db, which may be a transaction.
func NewRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Products: NewGORMProductRepository(db),
		Carts:    NewGORMCartRepository(db),
		Orders:   NewGORMOrderRepository(db),
		Coupons:  NewGORMCouponRepository(db),
	}
}

// GORMUnitOfWork is a UnitOfWork backed by gorm.DB.Transaction.
type GORMUnitOfWork struct {
	db *gorm.DB
}

// NewGORMUnitOfWork creates a new instance of GORMUnitOfWork.
func NewGORMUnitOfWork(db *gorm.DB) *GORMUnitOfWork {
	return &GORMUnitOfWork{db: db}
}

// RunInTx commits when fn returns nil and rolls back otherwise, releasing the connection either way.
func (u *GORMUnitOfWork) RunInTx(ctx context.Context, fn func(repos Repositories) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepositories(tx))
	})
}
