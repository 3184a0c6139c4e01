package service

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"stock-tracker/internal/repository/sqlite"
)

func newServices(t *testing.T) (UserService, ProductService) {
	t.Helper()
	ctx := context.Background()

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "stock.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	users := sqlite.NewUserRepository(db)
	products := sqlite.NewProductRepository(db)
	require.NoError(t, users.Init(ctx))
	require.NoError(t, products.Init(ctx))

	return NewUserService(users, bcrypt.MinCost), NewProductService(products)
}
