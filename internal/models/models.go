package models

// All lists every persisted entity, in migration order.
func All() []any {
	return []any{
		&User{},
		&Category{},
		&Product{},
		&ProductCategory{},
		&ProductImage{},
		&Review{},
		&Cart{},
		&CartItem{},
		&Coupon{},
		&Order{},
		&OrderItem{},
		&UserCoupon{},
		&OrderCoupon{},
	}
}
