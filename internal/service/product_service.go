package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"stock-tracker/internal/domain"
	"stock-tracker/internal/repository"
)

var (
	// ErrProductNotFound is returned when the requested product id does not exist.
	ErrProductNotFound = errors.New("product not found")
	// ErrInvalidProduct wraps every product validation failure.
	ErrInvalidProduct = errors.New("invalid product")
)

// ProductService coordinates inventory operations backed by the product repository.
type ProductService interface {
	List(ctx context.Context) ([]domain.Product, error)
	Get(ctx context.Context, id int64) (*domain.Product, error)
	Create(ctx context.Context, in domain.ProductInput) (*domain.Product, error)
	Update(ctx context.Context, id int64, upd domain.ProductUpdate) (*domain.Product, error)
	Delete(ctx context.Context, id int64) error
	LowStock(ctx context.Context) ([]domain.Product, error)
	Report(ctx context.Context) (*domain.Report, error)
}

type productService struct {
	products repository.ProductRepository
}

func NewProductService(products repository.ProductRepository) ProductService {
	return &productService{products: products}
}

func (s *productService) List(ctx context.Context) ([]domain.Product, error) {
	return s.products.List(ctx)
}

func (s *productService) Get(ctx context.Context, id int64) (*domain.Product, error) {
	product, err := s.products.Get(ctx, id)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return product, nil
}

func (s *productService) Create(ctx context.Context, in domain.ProductInput) (*domain.Product, error) {
	product, err := parseInput(in)
	if err != nil {
		return nil, err
	}
	if _, err := s.products.Create(ctx, product); err != nil {
		return nil, err
	}
	return product, nil
}

func (s *productService) Update(ctx context.Context, id int64, upd domain.ProductUpdate) (*domain.Product, error) {
	product, err := s.products.Get(ctx, id)
	if err != nil {
		return nil, mapNotFound(err)
	}

	if err := applyUpdate(product, upd); err != nil {
		return nil, err
	}

	if err := s.products.Update(ctx, product); err != nil {
		return nil, mapNotFound(err)
	}
	return product, nil
}

func (s *productService) Delete(ctx context.Context, id int64) error {
	return mapNotFound(s.products.Delete(ctx, id))
}

func (s *productService) LowStock(ctx context.Context) ([]domain.Product, error) {
	return s.products.ListByMaxQuantity(ctx, domain.LowStockThreshold)
}

func (s *productService) Report(ctx context.Context) (*domain.Report, error) {
	products, err := s.products.List(ctx)
	if err != nil {
		return nil, err
	}

	total := decimal.Zero
	for _, p := range products {
		total = total.Add(p.Value())
	}
	return &domain.Report{Products: products, TotalValue: total}, nil
}

// ValidateProductInput reports the first problem with in, if any.
func ValidateProductInput(in domain.ProductInput) error {
	_, err := parseInput(in)
	return err
}

// ValidateProductUpdate reports the first problem with the supplied fields of upd, if any.
func ValidateProductUpdate(upd domain.ProductUpdate) error {
	return applyUpdate(&domain.Product{}, upd)
}

func parseInput(in domain.ProductInput) (*domain.Product, error) {
	name, err := parseName(in.Name)
	if err != nil {
		return nil, err
	}
	quantity, err := ParseQuantity(in.Quantity)
	if err != nil {
		return nil, err
	}
	price, err := ParsePrice(in.Price)
	if err != nil {
		return nil, err
	}
	return &domain.Product{
		Name:     name,
		Category: strings.TrimSpace(in.Category),
		Quantity: quantity,
		Price:    price,
		Image:    in.Image,
	}, nil
}

// applyUpdate overwrites the supplied fields of product. An empty image keeps the current one.
func applyUpdate(product *domain.Product, upd domain.ProductUpdate) error {
	var err error
	if upd.Name != nil {
		if product.Name, err = parseName(*upd.Name); err != nil {
			return err
		}
	}
	if upd.Category != nil {
		product.Category = strings.TrimSpace(*upd.Category)
	}
	if upd.Quantity != nil {
		if product.Quantity, err = ParseQuantity(*upd.Quantity); err != nil {
			return err
		}
	}
	if upd.Price != nil {
		if product.Price, err = ParsePrice(*upd.Price); err != nil {
			return err
		}
	}
	if upd.Image != nil && *upd.Image != "" {
		product.Image = *upd.Image
	}
	return nil
}

func parseName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", fmt.Errorf("%w: name is required", ErrInvalidProduct)
	}
	return name, nil
}

// ParseQuantity parses a form quantity into a non-negative integer.
func ParseQuantity(raw string) (int, error) {
	quantity, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: quantity must be a whole number", ErrInvalidProduct)
	}
	if quantity < 0 {
		return 0, fmt.Errorf("%w: quantity must not be negative", ErrInvalidProduct)
	}
	return quantity, nil
}

const (
	// maxPriceIntegerDigits bounds the whole part of a price.
	maxPriceIntegerDigits = 15
	// maxPriceDecimalPlaces is the finest price granularity (cents).
	maxPriceDecimalPlaces = 2
)

// ParsePrice parses a form price into a non-negative decimal with at most
// two decimal places and fifteen integer digits.
func ParsePrice(raw string) (decimal.Decimal, error) {
	price, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: price must be a number", ErrInvalidProduct)
	}
	if price.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: price must not be negative", ErrInvalidProduct)
	}
	// Checked on exponent and coefficient only, so scientific notation
	// like 1e100000 is rejected without ever being expanded.
	exp := int64(price.Exponent())
	if exp > maxPriceIntegerDigits || int64(price.NumDigits())+exp > maxPriceIntegerDigits {
		return decimal.Zero, fmt.Errorf("%w: price is too large", ErrInvalidProduct)
	}
	if exp < -maxPriceDecimalPlaces-maxPriceIntegerDigits ||
		(exp < -maxPriceDecimalPlaces && !price.Equal(price.Truncate(maxPriceDecimalPlaces))) {
		return decimal.Zero, fmt.Errorf("%w: price must have at most %d decimal places", ErrInvalidProduct, maxPriceDecimalPlaces)
	}
	return price, nil
}

func mapNotFound(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrProductNotFound
	}
	return err
}
