package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"stock-tracker/internal/auth"
	"stock-tracker/internal/repository/sqlite"
	"stock-tracker/internal/service"
	"stock-tracker/internal/session"
	"stock-tracker/internal/storage"
	"stock-tracker/internal/upload"
)

type testApp struct {
	router    *gin.Engine
	uploadDir string
}

func newTestApp(t *testing.T, maxUpload int64) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "stock.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	userRepo := sqlite.NewUserRepository(db)
	productRepo := sqlite.NewProductRepository(db)
	require.NoError(t, userRepo.Init(ctx))
	require.NoError(t, productRepo.Init(ctx))

	sessions, err := session.NewStore(session.Options{Secret: []byte("test-secret")})
	require.NoError(t, err)

	uploadDir := filepath.Join(t.TempDir(), "uploads")
	images, err := storage.NewLocalStore(uploadDir)
	require.NoError(t, err)

	logger, _ := test.NewNullLogger()
	handler := NewHandler(
		auth.NewAuthenticator(service.NewUserService(userRepo, bcrypt.MinCost), sessions),
		sessions,
		service.NewProductService(productRepo),
		upload.NewHandler(images, maxUpload, logger),
		images,
		logger,
	)

	router := gin.New()
	handler.RegisterRoutes(router)
	return &testApp{router: router, uploadDir: uploadDir}
}

// browser replays cookies between requests like a user agent would.
type browser struct {
	t       *testing.T
	app     *testApp
	cookies map[string]*http.Cookie
}

func (a *testApp) browser(t *testing.T) *browser {
	return &browser{t: t, app: a, cookies: map[string]*http.Cookie{}}
}

func (b *browser) do(req *http.Request) *httptest.ResponseRecorder {
	b.t.Helper()
	for _, c := range b.cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	b.app.router.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		if c.MaxAge < 0 || c.Value == "" {
			delete(b.cookies, c.Name)
			continue
		}
		b.cookies[c.Name] = c
	}
	return rec
}

func (b *browser) get(path string) *httptest.ResponseRecorder {
	return b.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (b *browser) postForm(path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return b.do(req)
}

func (b *browser) postMultipart(path string, fields map[string]string, filename string, content []byte) *httptest.ResponseRecorder {
	b.t.Helper()
	body, contentType := b.multipartBody(fields, filename, content)
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", contentType)
	return b.do(req)
}

// postMultipartChunked sends the form without a Content-Length, as a
// chunked upload would arrive.
func (b *browser) postMultipartChunked(path string, fields map[string]string, filename string, content []byte) *httptest.ResponseRecorder {
	b.t.Helper()
	body, contentType := b.multipartBody(fields, filename, content)
	req := httptest.NewRequest(http.MethodPost, path, io.MultiReader(body))
	req.Header.Set("Content-Type", contentType)
	require.Equal(b.t, int64(-1), req.ContentLength)
	return b.do(req)
}

func (b *browser) multipartBody(fields map[string]string, filename string, content []byte) (*bytes.Buffer, string) {
	b.t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(b.t, w.WriteField(k, v))
	}
	if filename != "" {
		part, err := w.CreateFormFile("image", filename)
		require.NoError(b.t, err)
		_, err = part.Write(content)
		require.NoError(b.t, err)
	}
	require.NoError(b.t, w.Close())
	return &buf, w.FormDataContentType()
}

type viewBody struct {
	Flashes    []session.Flash   `json:"flashes"`
	User       string            `json:"user"`
	Products   []ProductResponse `json:"products"`
	Product    *ProductResponse  `json:"product"`
	TotalValue string            `json:"total_value"`
	Error      string            `json:"error"`
}

func (b *browser) view(path string) viewBody {
	b.t.Helper()
	rec := b.get(path)
	require.Equal(b.t, http.StatusOK, rec.Code, rec.Body.String())
	var body viewBody
	require.NoError(b.t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func messages(flashes []session.Flash) []string {
	out := make([]string, 0, len(flashes))
	for _, f := range flashes {
		out = append(out, f.Message)
	}
	return out
}

func assertRedirect(t *testing.T, rec *httptest.ResponseRecorder, location string) {
	t.Helper()
	assert.Equal(t, http.StatusFound, rec.Code, rec.Body.String())
	assert.Equal(t, location, rec.Header().Get("Location"))
}

func register(b *browser, username, email, password string) *httptest.ResponseRecorder {
	return b.postForm("/register", url.Values{"username": {username}, "email": {email}, "password": {password}})
}

func loggedIn(t *testing.T, app *testApp) *browser {
	t.Helper()
	b := app.browser(t)
	assertRedirect(t, register(b, "alice", "alice@example.com", "secret"), "/login")
	assertRedirect(t, b.postForm("/login", url.Values{"username": {"alice"}, "password": {"secret"}}), "/")
	b.view("/")
	return b
}

func addProduct(t *testing.T, b *browser, name, quantity, price string) {
	t.Helper()
	rec := b.postForm("/add", url.Values{"name": {name}, "category": {"General"}, "quantity": {quantity}, "price": {price}})
	assertRedirect(t, rec, "/")
}

func TestRegister_DuplicateUsernameAndEmail(t *testing.T) {
	app := newTestApp(t, 0)
	b := app.browser(t)

	assertRedirect(t, register(b, "alice", "alice@example.com", "secret"), "/login")
	assert.Equal(t, []string{"Registration successful! Please login."}, messages(b.view("/login").Flashes))

	assertRedirect(t, register(b, "alice", "new@example.com", "secret"), "/register")
	assert.Equal(t, []string{"Username already exists!"}, messages(b.view("/register").Flashes))

	assertRedirect(t, register(b, "bob", "alice@example.com", "secret"), "/register")
	assert.Equal(t, []string{"Email already registered!"}, messages(b.view("/register").Flashes))

	assert.Empty(t, b.view("/register").Flashes, "flashes are shown once")
}

func TestLogin(t *testing.T) {
	app := newTestApp(t, 0)
	b := app.browser(t)
	assertRedirect(t, register(b, "alice", "alice@example.com", "secret"), "/login")
	b.view("/login")

	assertRedirect(t, b.postForm("/login", url.Values{"username": {"alice"}, "password": {"wrong"}}), "/login")
	assertRedirect(t, b.get("/"), "/login")
	assert.Equal(t, []string{"Invalid username or password!", "Please login first!"}, messages(b.view("/login").Flashes))

	assertRedirect(t, b.postForm("/login", url.Values{"username": {"ghost"}, "password": {"secret"}}), "/login")
	assert.Equal(t, []string{"Invalid username or password!"}, messages(b.view("/login").Flashes))

	assertRedirect(t, b.postForm("/login", url.Values{"username": {"alice"}, "password": {"secret"}}), "/")
	index := b.view("/")
	assert.Equal(t, "alice", index.User)
	assert.Equal(t, []string{"Welcome, alice!"}, messages(index.Flashes))
	assert.Empty(t, index.Products)
}

func TestProtectedRoutesRedirectToLogin(t *testing.T) {
	app := newTestApp(t, 0)

	for _, path := range []string{"/", "/add", "/update/1", "/delete/1", "/low-stock", "/report", "/uploads/a.png"} {
		b := app.browser(t)
		assertRedirect(t, b.get(path), "/login")
		assert.Equal(t, []string{"Please login first!"}, messages(b.view("/login").Flashes), path)
	}

	b := app.browser(t)
	assertRedirect(t, b.postForm("/add", url.Values{"name": {"x"}, "quantity": {"1"}, "price": {"1"}}), "/login")
	assertRedirect(t, b.postForm("/update/1", url.Values{"name": {"x"}}), "/login")
}

func TestLogout(t *testing.T) {
	app := newTestApp(t, 0)
	b := loggedIn(t, app)

	assertRedirect(t, b.get("/logout"), "/login")
	assert.Equal(t, []string{"Logged out successfully!"}, messages(b.view("/login").Flashes))
	assertRedirect(t, b.get("/"), "/login")
}

func TestLowStock(t *testing.T) {
	app := newTestApp(t, 0)
	b := loggedIn(t, app)

	addProduct(t, b, "scarce", "3", "1.00")
	addProduct(t, b, "plenty", "6", "1.00")

	low := b.view("/low-stock").Products
	require.Len(t, low, 1)
	assert.Equal(t, "scarce", low[0].Name)
	assert.True(t, low[0].LowStock)

	all := b.view("/").Products
	assert.Len(t, all, 2)
}

func TestReport(t *testing.T) {
	app := newTestApp(t, 0)
	b := loggedIn(t, app)

	addProduct(t, b, "a", "2", "10.00")
	addProduct(t, b, "b", "1", "5.00")

	report := b.view("/report")
	assert.Equal(t, "25.00", report.TotalValue)
	require.Len(t, report.Products, 2)
	assert.Equal(t, "20.00", report.Products[0].Value)
	assert.Equal(t, "10.00", report.Products[0].Price)
}

func TestAdd_RejectsNonNumeric(t *testing.T) {
	app := newTestApp(t, 0)
	b := loggedIn(t, app)

	rec := b.postForm("/add", url.Values{"name": {"x"}, "quantity": {"lots"}, "price": {"1"}})
	assertRedirect(t, rec, "/add")
	flashes := messages(b.view("/add").Flashes)
	require.Len(t, flashes, 1)
	assert.Contains(t, flashes[0], "quantity")
	assert.Empty(t, b.view("/").Products)
}

func TestDelete(t *testing.T) {
	app := newTestApp(t, 0)
	b := loggedIn(t, app)

	rec := b.get("/delete/999")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "product not found")

	assert.Equal(t, http.StatusNotFound, b.get("/delete/abc").Code)

	addProduct(t, b, "doomed", "1", "1")
	products := b.view("/").Products
	require.Len(t, products, 1)

	assertRedirect(t, b.get("/delete/"+itoa(products[0].ID)), "/")
	index := b.view("/")
	assert.Empty(t, index.Products)
	assert.Equal(t, []string{"Product deleted successfully!"}, messages(index.Flashes))
}

func TestUpload_DisallowedExtensionStillCreatesProduct(t *testing.T) {
	app := newTestApp(t, 0)
	b := loggedIn(t, app)

	rec := b.postMultipart("/add", map[string]string{
		"name": "Gadget", "category": "Tech", "quantity": "2", "price": "9.99",
	}, "payload.exe", []byte("MZ"))
	assertRedirect(t, rec, "/")

	products := b.view("/").Products
	require.Len(t, products, 1)
	assert.Equal(t, "Gadget", products[0].Name)
	assert.Empty(t, products[0].Image)

	entries, err := os.ReadDir(app.uploadDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUpload_StoresAndServesImage(t *testing.T) {
	app := newTestApp(t, 0)
	b := loggedIn(t, app)

	rec := b.postMultipart("/add", map[string]string{
		"name": "Gadget", "quantity": "2", "price": "9.99",
	}, "../shiny gadget.png", []byte("png-bytes"))
	assertRedirect(t, rec, "/")

	products := b.view("/").Products
	require.Len(t, products, 1)
	assert.Equal(t, "shiny_gadget.png", products[0].Image)
	assert.Equal(t, "/uploads/shiny_gadget.png", products[0].ImageURL)

	img := b.get(products[0].ImageURL)
	assert.Equal(t, http.StatusOK, img.Code)
	assert.Equal(t, "image/png", img.Header().Get("Content-Type"))
	body, err := io.ReadAll(img.Body)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(body))

	assert.Equal(t, http.StatusNotFound, b.get("/uploads/missing.png").Code)
}

func TestUpload_OversizedRequestSkipsImage(t *testing.T) {
	app := newTestApp(t, 64)
	b := loggedIn(t, app)

	rec := b.postMultipart("/add", map[string]string{
		"name": "Poster", "quantity": "1", "price": "3",
	}, "poster.jpg", bytes.Repeat([]byte("x"), 512))
	assertRedirect(t, rec, "/")

	products := b.view("/").Products
	require.Len(t, products, 1)
	assert.Empty(t, products[0].Image)
}

func TestUpload_OversizedChunkedRequestSkipsImage(t *testing.T) {
	app := newTestApp(t, 256)
	b := loggedIn(t, app)

	rec := b.postMultipartChunked("/add", map[string]string{
		"name": "Poster", "quantity": "1", "price": "3", "notes": strings.Repeat("n", 4096),
	}, "poster.png", []byte("png!"))
	assertRedirect(t, rec, "/")

	products := b.view("/").Products
	require.Len(t, products, 1)
	assert.Empty(t, products[0].Image)

	rec = b.postMultipartChunked("/update/"+itoa(products[0].ID), map[string]string{
		"notes": strings.Repeat("n", 4096),
	}, "poster.png", []byte("png!"))
	assertRedirect(t, rec, "/")
	assert.Empty(t, b.view("/").Products[0].Image)
}

func TestUpload_SmallChunkedRequestStoresImage(t *testing.T) {
	app := newTestApp(t, 0)
	b := loggedIn(t, app)

	rec := b.postMultipartChunked("/add", map[string]string{
		"name": "Poster", "quantity": "1", "price": "3",
	}, "poster.png", []byte("png!"))
	assertRedirect(t, rec, "/")

	products := b.view("/").Products
	require.Len(t, products, 1)
	assert.Equal(t, "poster.png", products[0].Image)
}

func TestUpdate(t *testing.T) {
	app := newTestApp(t, 0)
	b := loggedIn(t, app)

	assert.Equal(t, http.StatusNotFound, b.get("/update/42").Code)
	assert.Equal(t, http.StatusNotFound, b.postForm("/update/42", url.Values{"name": {"x"}}).Code)

	assertRedirect(t, b.postMultipart("/add", map[string]string{
		"name": "Lamp", "category": "Home", "quantity": "8", "price": "12.50",
	}, "lamp.gif", []byte("gif")), "/")
	id := itoa(b.view("/").Products[0].ID)

	form := b.view("/update/" + id)
	require.NotNil(t, form.Product)
	assert.Equal(t, "Lamp", form.Product.Name)

	assertRedirect(t, b.postMultipart("/update/"+id, map[string]string{
		"name": "Desk Lamp", "category": "Home", "quantity": "4", "price": "15.00",
	}, "notes.txt", []byte("text")), "/")

	updated := b.view("/update/" + id).Product
	assert.Equal(t, "Desk Lamp", updated.Name)
	assert.Equal(t, 4, updated.Quantity)
	assert.Equal(t, "15.00", updated.Price)
	assert.Equal(t, "lamp.gif", updated.Image, "rejected upload keeps the old image")

	assertRedirect(t, b.postMultipart("/update/"+id, map[string]string{
		"name": "Desk Lamp", "category": "Home", "quantity": "4", "price": "15.00",
	}, "lamp-v2.jpeg", []byte("jpeg")), "/")
	assert.Equal(t, "lamp-v2.jpeg", b.view("/update/"+id).Product.Image)

	assertRedirect(t, b.postForm("/update/"+id, url.Values{"quantity": {"-3"}}), "/update/"+id)
	flashes := messages(b.view("/update/" + id).Flashes)
	require.Len(t, flashes, 1)
	assert.Contains(t, flashes[0], "negative")
}

func TestHealth(t *testing.T) {
	app := newTestApp(t, 0)
	rec := app.browser(t).get("/health")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
