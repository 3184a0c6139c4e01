package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// LowStockThreshold is the quantity at or below which a product needs reordering.
const LowStockThreshold = 5

// Product is a single inventory record.
type Product struct {
	ID        int64
	Name      string
	Category  string
	Quantity  int
	Price     decimal.Decimal
	Image     string // stored filename, empty when the product has no image
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Value is the stock valuation of the product: quantity x price.
func (p Product) Value() decimal.Decimal {
	return p.Price.Mul(decimal.NewFromInt(int64(p.Quantity)))
}

// LowStock reports whether the product is at or below the reorder threshold.
func (p Product) LowStock() bool {
	return p.Quantity <= LowStockThreshold
}

// ProductInput carries raw form values for creating a product.
type ProductInput struct {
	Name     string
	Category string
	Quantity string
	Price    string
	Image    string
}

// ProductUpdate carries the fields supplied by an edit; nil fields are left untouched.
type ProductUpdate struct {
	Name     *string
	Category *string
	Quantity *string
	Price    *string
	Image    *string
}

// Report is the valuation summary over all products.
type Report struct {
	Products   []Product
	TotalValue decimal.Decimal
}
