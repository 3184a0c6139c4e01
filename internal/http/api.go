package http

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"stock-tracker/internal/auth"
	"stock-tracker/internal/service"
	"stock-tracker/internal/session"
	"stock-tracker/internal/storage"
	"stock-tracker/internal/upload"
)

const loginPath = "/login"

// Handler wires HTTP routes to the authentication gate and inventory services.
type Handler struct {
	auth     auth.Authenticator
	sessions *session.Store
	products service.ProductService
	uploads  *upload.Handler
	images   storage.ImageStore
	logger   *logrus.Logger
}

func NewHandler(
	authenticator auth.Authenticator,
	sessions *session.Store,
	products service.ProductService,
	uploads *upload.Handler,
	images storage.ImageStore,
	logger *logrus.Logger,
) *Handler {
	if logger == nil {
		logger = logrus.New()
	}
	return &Handler{
		auth:     authenticator,
		sessions: sessions,
		products: products,
		uploads:  uploads,
		images:   images,
		logger:   logger,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(requestLogger(h.logger))

	router.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"ok": "ok"})
	})

	router.GET("/register", h.registerForm)
	router.POST("/register", h.register)
	router.GET(loginPath, h.loginForm)
	router.POST(loginPath, h.login)
	router.GET("/logout", h.logout)

	protected := router.Group("/", auth.RequireLogin(h.auth, h.sessions, loginPath))
	{
		protected.GET("/", h.index)
		protected.GET("/add", h.addForm)
		protected.POST("/add", countBody(), h.addProduct)
		protected.GET("/update/:id", h.updateForm)
		protected.POST("/update/:id", countBody(), h.updateProduct)
		protected.GET("/delete/:id", h.deleteProduct)
		protected.GET("/low-stock", h.lowStock)
		protected.GET("/report", h.report)
		protected.GET("/uploads/:filename", h.image)
	}
}

func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := logger.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
			"client":  c.ClientIP(),
		})
		if len(c.Errors) > 0 {
			entry.WithField("errors", c.Errors.String()).Warn("request failed")
			return
		}
		entry.Info("request")
	}
}

const bodySizeKey = "body_size"

// countingBody tallies the bytes consumed from a request body.
type countingBody struct {
	io.ReadCloser
	n int64
}

func (b *countingBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	b.n += int64(n)
	return n, err
}

// countBody tracks the bytes read from bodies sent without a Content-Length
// (chunked transfer) so upload limits apply to them too.
func countBody() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength < 0 && c.Request.Body != nil {
			body := &countingBody{ReadCloser: c.Request.Body}
			c.Request.Body = body
			c.Set(bodySizeKey, body)
		}
		c.Next()
	}
}

// requestSize reports the declared body length, or the bytes read so far
// when none was declared.
func requestSize(c *gin.Context) int64 {
	if c.Request.ContentLength >= 0 {
		return c.Request.ContentLength
	}
	if v, ok := c.Get(bodySizeKey); ok {
		if body, ok := v.(*countingBody); ok {
			return body.n
		}
	}
	return c.Request.ContentLength
}

// render writes a view model together with the pending flashes of the session.
func (h *Handler) render(c *gin.Context, data gin.H) {
	sess := h.sessions.Load(c)
	if data == nil {
		data = gin.H{}
	}
	data["flashes"] = sess.PopFlashes()
	if err := h.sessions.Save(c, sess); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, data)
}

// redirect queues a flash and sends the browser to location.
func (h *Handler) redirect(c *gin.Context, location, category, message string) {
	sess := h.sessions.Load(c)
	if message != "" {
		sess.AddFlash(category, message)
	}
	if err := h.sessions.Save(c, sess); err != nil {
		h.fail(c, err)
		return
	}
	c.Redirect(http.StatusFound, location)
}

func (h *Handler) fail(c *gin.Context, err error) {
	_ = c.Error(err)
	h.logger.WithError(err).WithField("path", c.Request.URL.Path).Error("unhandled error")
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func notFound(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": service.ErrProductNotFound.Error()})
}

// productID parses the :id path parameter; ids that are not positive integers match no product.
func productID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func isNotFound(err error) bool {
	return errors.Is(err, service.ErrProductNotFound)
}
