// Package upload validates optional product images and hands accepted ones to
// an image store. Rejected files are skipped, never reported as errors.
package upload

import (
	"context"
	"fmt"
	"mime"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/unicode/norm"

	"stock-tracker/internal/storage"
)

// DefaultMaxBytes caps the size of a request that may carry an image.
const DefaultMaxBytes int64 = 2 * 1024 * 1024

var allowedExtensions = map[string]struct{}{
	"png":  {},
	"jpg":  {},
	"jpeg": {},
	"gif":  {},
}

// Allowed reports whether filename carries one of the permitted image extensions.
func Allowed(filename string) bool {
	idx := strings.LastIndex(filename, ".")
	if idx < 0 {
		return false
	}
	_, ok := allowedExtensions[strings.ToLower(filename[idx+1:])]
	return ok
}

// SecureFilename reduces a client supplied filename to a flat ASCII name that
// is safe to use as a storage key. It returns "" when nothing usable remains.
func SecureFilename(name string) string {
	name = norm.NFKD.String(name)

	var b strings.Builder
	for _, r := range name {
		switch {
		case r == '/' || r == '\\':
			b.WriteByte(' ')
		case r < 0x80:
			b.WriteRune(r)
		}
	}

	joined := strings.Join(strings.Fields(b.String()), "_")

	b.Reset()
	for _, r := range joined {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_' || r == '.' || r == '-' {
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), "._")
}

// Handler accepts product images.
type Handler struct {
	store    storage.ImageStore
	maxBytes int64
	logger   *logrus.Logger
}

func NewHandler(store storage.ImageStore, maxBytes int64, logger *logrus.Logger) *Handler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Handler{store: store, maxBytes: maxBytes, logger: logger}
}

func (h *Handler) MaxBytes() int64 {
	return h.maxBytes
}

// Accept stores file when it passes validation and returns the stored name.
// An empty name with a nil error means the image was skipped. requestSize is
// the Content-Length of the carrying request, or -1 when unknown.
func (h *Handler) Accept(ctx context.Context, file *multipart.FileHeader, requestSize int64) (string, error) {
	if file == nil || file.Filename == "" {
		return "", nil
	}

	entry := h.logger.WithField("filename", file.Filename)
	if requestSize > h.maxBytes || file.Size > h.maxBytes {
		entry.WithField("size", file.Size).Info("image skipped: too large")
		return "", nil
	}
	if !Allowed(file.Filename) {
		entry.Info("image skipped: extension not allowed")
		return "", nil
	}
	name := SecureFilename(file.Filename)
	if name == "" || !Allowed(name) {
		entry.Info("image skipped: unusable filename")
		return "", nil
	}

	src, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(name)))
	if err := h.store.Save(ctx, name, src, contentType); err != nil {
		return "", fmt.Errorf("store image: %w", err)
	}
	entry.WithField("stored_as", name).Info("image stored")
	return name, nil
}
