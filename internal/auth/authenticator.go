package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"stock-tracker/internal/domain"
	"stock-tracker/internal/service"
	"stock-tracker/internal/session"
)

// ErrUnauthenticated is reported by Verify when no user is bound to the request.
var ErrUnauthenticated = errors.New("unauthenticated")

const (
	ctxUserID   = "user_id"
	ctxUsername = "username"
)

// Identity is the authenticated principal of a request.
type Identity struct {
	UserID   int64
	Username string
}

// Authenticator is the session-based authentication gate.
type Authenticator interface {
	Register(ctx context.Context, username, email, password string) (*domain.User, error)
	Login(c *gin.Context, username, password string) (*domain.User, error)
	Logout(c *gin.Context) error
	Verify(c *gin.Context) (Identity, error)
}

type gate struct {
	users    service.UserService
	sessions *session.Store
}

func NewAuthenticator(users service.UserService, sessions *session.Store) Authenticator {
	return &gate{users: users, sessions: sessions}
}

func (g *gate) Register(ctx context.Context, username, email, password string) (*domain.User, error) {
	return g.users.Register(ctx, username, email, password)
}

func (g *gate) Login(c *gin.Context, username, password string) (*domain.User, error) {
	user, err := g.users.Authenticate(c.Request.Context(), username, password)
	if err != nil {
		return nil, err
	}

	sess := g.sessions.Load(c)
	sess.Bind(user.ID, user.Username)
	if err := g.sessions.Save(c, sess); err != nil {
		return nil, err
	}
	return user, nil
}

func (g *gate) Logout(c *gin.Context) error {
	sess := g.sessions.Load(c)
	sess.Clear()
	return g.sessions.Save(c, sess)
}

func (g *gate) Verify(c *gin.Context) (Identity, error) {
	sess := g.sessions.Load(c)
	if !sess.Authenticated() {
		return Identity{}, ErrUnauthenticated
	}
	return Identity{UserID: sess.UserID, Username: sess.Username}, nil
}

// RequireLogin rejects requests without a session by redirecting to loginPath
// with a flash; otherwise the identity is stored on the gin context.
func RequireLogin(a Authenticator, sessions *session.Store, loginPath string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := a.Verify(c)
		if err != nil {
			sess := sessions.Load(c)
			sess.AddFlash(session.FlashError, "Please login first!")
			if err := sessions.Save(c, sess); err != nil {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			c.Redirect(http.StatusFound, loginPath)
			c.Abort()
			return
		}

		c.Set(ctxUserID, id.UserID)
		c.Set(ctxUsername, id.Username)
		c.Next()
	}
}

// CurrentIdentity returns the identity RequireLogin stored on the context.
func CurrentIdentity(c *gin.Context) (Identity, bool) {
	id, ok := c.Get(ctxUserID)
	if !ok {
		return Identity{}, false
	}
	return Identity{UserID: id.(int64), Username: c.GetString(ctxUsername)}, true
}
