package repository

import (
	"context"

	"stock-tracker/internal/domain"
)

// ProductRepository exposes persistence operations for Product records.
type ProductRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, product *domain.Product) (int64, error)
	Get(ctx context.Context, id int64) (*domain.Product, error)
	List(ctx context.Context) ([]domain.Product, error)
	ListByMaxQuantity(ctx context.Context, maxQuantity int) ([]domain.Product, error)
	Update(ctx context.Context, product *domain.Product) error
	Delete(ctx context.Context, id int64) error
}
