package http

import (
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"

	"stock-tracker/internal/service"
	"stock-tracker/internal/session"
)

func (h *Handler) registerForm(c *gin.Context) {
	h.render(c, nil)
}

func (h *Handler) register(c *gin.Context) {
	_, err := h.auth.Register(c.Request.Context(), c.PostForm("username"), c.PostForm("email"), c.PostForm("password"))
	switch {
	case err == nil:
		h.redirect(c, loginPath, session.FlashSuccess, "Registration successful! Please login.")
	case errors.Is(err, service.ErrUsernameTaken):
		h.redirect(c, "/register", session.FlashError, "Username already exists!")
	case errors.Is(err, service.ErrEmailTaken):
		h.redirect(c, "/register", session.FlashError, "Email already registered!")
	case errors.Is(err, service.ErrInvalidRegistration):
		h.redirect(c, "/register", session.FlashError, err.Error())
	default:
		h.fail(c, err)
	}
}

func (h *Handler) loginForm(c *gin.Context) {
	h.render(c, nil)
}

func (h *Handler) login(c *gin.Context) {
	user, err := h.auth.Login(c, c.PostForm("username"), c.PostForm("password"))
	switch {
	case err == nil:
		h.logger.WithField("user_id", user.ID).Info("user logged in")
		h.redirect(c, "/", session.FlashSuccess, fmt.Sprintf("Welcome, %s!", user.Username))
	case errors.Is(err, service.ErrInvalidCredentials):
		h.redirect(c, loginPath, session.FlashError, "Invalid username or password!")
	default:
		h.fail(c, err)
	}
}

func (h *Handler) logout(c *gin.Context) {
	if err := h.auth.Logout(c); err != nil {
		h.fail(c, err)
		return
	}
	h.redirect(c, loginPath, session.FlashSuccess, "Logged out successfully!")
}
