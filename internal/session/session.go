// Package session keeps per-browser state in an HS256-signed cookie: the logged
// in identity and any pending flash notifications.
package session

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	DefaultCookieName = "stock_session"
	DefaultTTL        = 24 * time.Hour

	contextKey = "session"

	// maxFlashes keeps the cookie well under browser size limits when
	// redirects are never followed.
	maxFlashes = 5
)

// Flash categories.
const (
	FlashSuccess = "success"
	FlashError   = "error"
)

// Flash is a one-shot notification shown on the next rendered view.
type Flash struct {
	Category string `json:"category"`
	Message  string `json:"message"`
}

// Session is the decoded cookie state of one browser.
type Session struct {
	ID       string
	UserID   int64
	Username string
	Flashes  []Flash
}

// Authenticated reports whether a user is bound to the session.
func (s *Session) Authenticated() bool {
	return s.UserID > 0
}

// Bind attaches a user to the session under a fresh session id.
func (s *Session) Bind(userID int64, username string) {
	s.ID = ""
	s.UserID = userID
	s.Username = username
}

// Clear drops the identity and all pending flashes.
func (s *Session) Clear() {
	*s = Session{}
}

// AddFlash queues a flash, dropping the oldest once maxFlashes are pending.
func (s *Session) AddFlash(category, message string) {
	s.Flashes = append(s.Flashes, Flash{Category: category, Message: message})
	if extra := len(s.Flashes) - maxFlashes; extra > 0 {
		s.Flashes = append([]Flash(nil), s.Flashes[extra:]...)
	}
}

// PopFlashes returns the pending flashes and removes them from the session.
func (s *Session) PopFlashes() []Flash {
	flashes := s.Flashes
	s.Flashes = nil
	if flashes == nil {
		flashes = []Flash{}
	}
	return flashes
}

func (s *Session) empty() bool {
	return !s.Authenticated() && len(s.Flashes) == 0
}

// Options configures a Store.
type Options struct {
	Secret     []byte
	TTL        time.Duration
	CookieName string
	Secure     bool
}

// Store encodes sessions into cookies and back.
type Store struct {
	secret     []byte
	ttl        time.Duration
	cookieName string
	secure     bool
}

type claims struct {
	UserID   int64   `json:"uid,omitempty"`
	Username string  `json:"usr,omitempty"`
	Flashes  []Flash `json:"fl,omitempty"`
	jwt.RegisteredClaims
}

func NewStore(opts Options) (*Store, error) {
	if len(opts.Secret) == 0 {
		return nil, errors.New("session secret is required")
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.CookieName == "" {
		opts.CookieName = DefaultCookieName
	}
	return &Store{
		secret:     opts.Secret,
		ttl:        opts.TTL,
		cookieName: opts.CookieName,
		secure:     opts.Secure,
	}, nil
}

// Load returns the session of the current request. A missing, tampered or
// expired cookie yields an empty session. Repeated calls within one request
// return the same value.
func (s *Store) Load(c *gin.Context) *Session {
	if v, ok := c.Get(contextKey); ok {
		if sess, ok := v.(*Session); ok {
			return sess
		}
	}

	sess := &Session{}
	if raw, err := c.Cookie(s.cookieName); err == nil && raw != "" {
		if decoded, err := s.Decode(raw); err == nil {
			sess = decoded
		}
	}
	c.Set(contextKey, sess)
	return sess
}

// Save writes the session back as a cookie, or expires the cookie when the
// session holds nothing.
func (s *Store) Save(c *gin.Context, sess *Session) error {
	c.Set(contextKey, sess)
	c.SetSameSite(http.SameSiteLaxMode)
	s.dropPendingCookie(c)

	if sess.empty() {
		c.SetCookie(s.cookieName, "", -1, "/", "", s.secure, true)
		return nil
	}

	token, err := s.Encode(sess)
	if err != nil {
		return err
	}
	c.SetCookie(s.cookieName, token, int(s.ttl.Seconds()), "/", "", s.secure, true)
	return nil
}

// dropPendingCookie removes a session cookie queued earlier in the same
// response so only the last Save reaches the client.
func (s *Store) dropPendingCookie(c *gin.Context) {
	header := c.Writer.Header()
	prefix := s.cookieName + "="

	var kept []string
	for _, v := range header.Values("Set-Cookie") {
		if !strings.HasPrefix(v, prefix) {
			kept = append(kept, v)
		}
	}
	header.Del("Set-Cookie")
	for _, v := range kept {
		header.Add("Set-Cookie", v)
	}
}

// Encode signs the session into a compact token, assigning an id when it has none.
func (s *Store) Encode(sess *Session) (string, error) {
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		UserID:   sess.UserID,
		Username: sess.Username,
		Flashes:  sess.Flashes,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sess.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign session: %w", err)
	}
	return signed, nil
}

func (s *Store) Decode(raw string) (*Session, error) {
	var parsed claims
	token, err := jwt.ParseWithClaims(raw, &parsed, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("parse session: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid session")
	}
	return &Session{
		ID:       parsed.ID,
		UserID:   parsed.UserID,
		Username: parsed.Username,
		Flashes:  parsed.Flashes,
	}, nil
}
