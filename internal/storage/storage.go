package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// ErrObjectNotFound is returned by Open when no image is stored under the name.
var ErrObjectNotFound = errors.New("object not found")

// ImageStore persists uploaded product images addressed by filename only.
// Saving an existing name overwrites it.
type ImageStore interface {
	Save(ctx context.Context, name string, body io.Reader, contentType string) error
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

func validateName(name string) error {
	if name == "" || name == "." || name == ".." {
		return fmt.Errorf("invalid object name %q", name)
	}
	if strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return fmt.Errorf("object name %q must not contain path separators", name)
	}
	return nil
}
