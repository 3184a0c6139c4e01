package http

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"stock-tracker/internal/auth"
	"stock-tracker/internal/domain"
	"stock-tracker/internal/service"
	"stock-tracker/internal/session"
	"stock-tracker/internal/storage"
)

func (h *Handler) index(c *gin.Context) {
	products, err := h.products.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}

	id, _ := auth.CurrentIdentity(c)
	h.render(c, gin.H{
		"user":     id.Username,
		"products": productsToResponse(products),
	})
}

func (h *Handler) addForm(c *gin.Context) {
	h.render(c, gin.H{"max_upload_bytes": h.uploads.MaxBytes()})
}

func (h *Handler) addProduct(c *gin.Context) {
	in := domain.ProductInput{
		Name:     c.PostForm("name"),
		Category: c.PostForm("category"),
		Quantity: c.PostForm("quantity"),
		Price:    c.PostForm("price"),
	}
	if err := service.ValidateProductInput(in); err != nil {
		h.redirect(c, "/add", session.FlashError, err.Error())
		return
	}

	image, err := h.acceptImage(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	in.Image = image

	if _, err := h.products.Create(c.Request.Context(), in); err != nil {
		h.fail(c, err)
		return
	}
	h.redirect(c, "/", session.FlashSuccess, "Product added successfully!")
}

func (h *Handler) updateForm(c *gin.Context) {
	id, ok := productID(c)
	if !ok {
		notFound(c)
		return
	}

	product, err := h.products.Get(c.Request.Context(), id)
	if err != nil {
		if isNotFound(err) {
			notFound(c)
			return
		}
		h.fail(c, err)
		return
	}
	h.render(c, gin.H{"product": productToResponse(*product)})
}

func (h *Handler) updateProduct(c *gin.Context) {
	id, ok := productID(c)
	if !ok {
		notFound(c)
		return
	}
	if _, err := h.products.Get(c.Request.Context(), id); err != nil {
		if isNotFound(err) {
			notFound(c)
			return
		}
		h.fail(c, err)
		return
	}

	formPath := fmt.Sprintf("/update/%d", id)
	upd := domain.ProductUpdate{
		Name:     postFormPtr(c, "name"),
		Category: postFormPtr(c, "category"),
		Quantity: postFormPtr(c, "quantity"),
		Price:    postFormPtr(c, "price"),
	}
	if err := service.ValidateProductUpdate(upd); err != nil {
		h.redirect(c, formPath, session.FlashError, err.Error())
		return
	}

	image, err := h.acceptImage(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	upd.Image = &image

	if _, err := h.products.Update(c.Request.Context(), id, upd); err != nil {
		if isNotFound(err) {
			notFound(c)
			return
		}
		h.fail(c, err)
		return
	}
	h.redirect(c, "/", session.FlashSuccess, "Product updated successfully!")
}

func (h *Handler) deleteProduct(c *gin.Context) {
	id, ok := productID(c)
	if !ok {
		notFound(c)
		return
	}

	if err := h.products.Delete(c.Request.Context(), id); err != nil {
		if isNotFound(err) {
			notFound(c)
			return
		}
		h.fail(c, err)
		return
	}
	h.redirect(c, "/", session.FlashSuccess, "Product deleted successfully!")
}

func (h *Handler) lowStock(c *gin.Context) {
	products, err := h.products.LowStock(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	h.render(c, gin.H{
		"threshold": domain.LowStockThreshold,
		"products":  productsToResponse(products),
	})
}

func (h *Handler) report(c *gin.Context) {
	report, err := h.products.Report(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	h.render(c, gin.H{
		"products":    productsToResponse(report.Products),
		"total_value": report.TotalValue.StringFixed(2),
	})
}

func (h *Handler) image(c *gin.Context) {
	name := c.Param("filename")
	body, err := h.images.Open(c.Request.Context(), name)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "image not found"})
			return
		}
		h.fail(c, err)
		return
	}
	defer body.Close()

	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(name)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.DataFromReader(http.StatusOK, -1, contentType, body, nil)
}

// acceptImage hands the optional "image" file to the upload handler. A missing
// or rejected file yields an empty name.
func (h *Handler) acceptImage(c *gin.Context) (string, error) {
	file, err := c.FormFile("image")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return "", nil
		}
		h.logger.WithError(err).Info("image skipped: unreadable form")
		return "", nil
	}
	// FormFile has parsed the whole multipart body, so the count is final.
	return h.uploads.Accept(c.Request.Context(), file, requestSize(c))
}

func postFormPtr(c *gin.Context, key string) *string {
	if v, ok := c.GetPostForm(key); ok {
		return &v
	}
	return nil
}
