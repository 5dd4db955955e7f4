package handler

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/court-booking/internal/middleware"
	"github.com/iliyamo/court-booking/internal/utils"
)

// AuthHandler issues admin access tokens. There is a single admin account
// configured through the environment.
type AuthHandler struct {
	AdminEmail   string
	PasswordHash string
	Secret       string
	TTL          time.Duration
	Log          logrus.FieldLogger
}

type loginReq struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type loginResp struct {
	Role   string            `json:"role"`
	Access utils.AccessToken `json:"access"`
}

// Login handles POST /v1/admin/login.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := bind(c, &req); err != nil {
		return respondError(c, h.Log, err)
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	want := strings.ToLower(strings.TrimSpace(h.AdminEmail))
	emailOK := subtle.ConstantTimeCompare([]byte(email), []byte(want)) == 1
	// Always run bcrypt so a wrong email costs the same as a wrong password.
	passOK := utils.VerifyPassword(h.PasswordHash, req.Password)
	if !emailOK || !passOK {
		h.Log.WithField("client_ip", c.RealIP()).Warn("admin login failed")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}

	tok, err := utils.NewAccessToken(h.Secret, email, middleware.RoleAdmin, h.TTL)
	if err != nil {
		h.Log.WithError(err).Error("issue access token")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue access failed"})
	}
	return c.JSON(http.StatusOK, loginResp{Role: middleware.RoleAdmin, Access: tok})
}
