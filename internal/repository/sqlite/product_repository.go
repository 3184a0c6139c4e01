package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"stock-tracker/internal/domain"
	"stock-tracker/internal/repository"
)

// price is stored as TEXT so decimal values round-trip exactly.
const createProductsTable = `
CREATE TABLE IF NOT EXISTS products (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	category TEXT NOT NULL DEFAULT '',
	quantity INTEGER NOT NULL DEFAULT 0,
	price TEXT NOT NULL DEFAULT '0',
	image TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_products_quantity ON products(quantity);
`

const selectProductColumns = `SELECT id, name, category, quantity, price, image, created_at, updated_at FROM products`

type ProductRepository struct {
	db *sql.DB
}

func NewProductRepository(db *sql.DB) repository.ProductRepository {
	return &ProductRepository{db: db}
}

func (r *ProductRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createProductsTable); err != nil {
		return fmt.Errorf("create products table: %w", err)
	}
	return nil
}

func (r *ProductRepository) Create(ctx context.Context, product *domain.Product) (int64, error) {
	now := time.Now().UTC()
	product.CreatedAt = now
	product.UpdatedAt = now

	res, err := r.db.ExecContext(ctx, `
INSERT INTO products (name, category, quantity, price, image, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		product.Name,
		product.Category,
		product.Quantity,
		product.Price.String(),
		product.Image,
		product.CreatedAt,
		product.UpdatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert product: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("product last insert id: %w", err)
	}
	product.ID = id
	return id, nil
}

func (r *ProductRepository) Get(ctx context.Context, id int64) (*domain.Product, error) {
	row := r.db.QueryRowContext(ctx, selectProductColumns+` WHERE id = ?`, id)
	product, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("product %d: %w", id, repository.ErrNotFound)
		}
		return nil, err
	}
	return product, nil
}

func (r *ProductRepository) List(ctx context.Context) ([]domain.Product, error) {
	return r.query(ctx, selectProductColumns+` ORDER BY id ASC`)
}

func (r *ProductRepository) ListByMaxQuantity(ctx context.Context, maxQuantity int) ([]domain.Product, error) {
	return r.query(ctx, selectProductColumns+` WHERE quantity <= ? ORDER BY id ASC`, maxQuantity)
}

func (r *ProductRepository) Update(ctx context.Context, product *domain.Product) error {
	product.UpdatedAt = time.Now().UTC()

	res, err := r.db.ExecContext(ctx, `
UPDATE products
SET name = ?, category = ?, quantity = ?, price = ?, image = ?, updated_at = ?
WHERE id = ?`,
		product.Name,
		product.Category,
		product.Quantity,
		product.Price.String(),
		product.Image,
		product.UpdatedAt,
		product.ID,
	)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	return expectAffected(res, product.ID)
}

func (r *ProductRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	return expectAffected(res, id)
}

func (r *ProductRepository) query(ctx context.Context, query string, args ...any) ([]domain.Product, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	var products []domain.Product
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *product)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return products, nil
}

func expectAffected(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("product rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("product %d: %w", id, repository.ErrNotFound)
	}
	return nil
}

func scanProduct(row interface {
	Scan(dest ...any) error
}) (*domain.Product, error) {
	var product domain.Product
	if err := row.Scan(
		&product.ID,
		&product.Name,
		&product.Category,
		&product.Quantity,
		&product.Price,
		&product.Image,
		&product.CreatedAt,
		&product.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan product: %w", err)
	}
	return &product, nil
}
