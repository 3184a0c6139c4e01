package http

import (
	"net/url"
	"time"

	"stock-tracker/internal/domain"
)

type ProductResponse struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Category  string `json:"category"`
	Quantity  int    `json:"quantity"`
	Price     string `json:"price"`
	Value     string `json:"value"`
	LowStock  bool   `json:"low_stock"`
	Image     string `json:"image,omitempty"`
	ImageURL  string `json:"image_url,omitempty"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func productToResponse(p domain.Product) ProductResponse {
	resp := ProductResponse{
		ID:        p.ID,
		Name:      p.Name,
		Category:  p.Category,
		Quantity:  p.Quantity,
		Price:     p.Price.StringFixed(2),
		Value:     p.Value().StringFixed(2),
		LowStock:  p.LowStock(),
		Image:     p.Image,
		CreatedAt: p.CreatedAt.Format(time.RFC3339),
		UpdatedAt: p.UpdatedAt.Format(time.RFC3339),
	}
	if p.Image != "" {
		resp.ImageURL = "/uploads/" + url.PathEscape(p.Image)
	}
	return resp
}

func productsToResponse(products []domain.Product) []ProductResponse {
	resp := make([]ProductResponse, len(products))
	for i := range products {
		resp[i] = productToResponse(products[i])
	}
	return resp
}
