package api

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/relaycore/core/internal/auth"
)

const (
	refreshTokenCookie = "relaycore_refresh_token"
	refreshCookiePath  = "/api/v1/auth"
)

// AuthHandler exposes login/refresh/logout for both principals the system
// recognizes: operators (dashboard Users) and end-users (mobile-client
// EndUsers). There is no OIDC or SSO flow here — credentials are always
// email/password or org-scoped username/password, verified by AuthService.
type AuthHandler struct {
	svc    *auth.AuthService
	logger *zap.Logger
	secure bool
}

// NewAuthHandler creates an AuthHandler. secure controls the Secure flag on
// the refresh-token cookie; it should be true everywhere except local
// plaintext-HTTP development.
func NewAuthHandler(svc *auth.AuthService, logger *zap.Logger, secure bool) *AuthHandler {
	return &AuthHandler{svc: svc, logger: logger.Named("auth_handler"), secure: secure}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type endUserLoginRequest struct {
	OrganizationID string `json:"organization_id"`
	Username       string `json:"username"`
	Password       string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
}

// Login authenticates an operator via email/password.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	pair, err := h.svc.LoginLocal(r.Context(), auth.LoginRequest{Email: req.Email, Password: req.Password})
	if err != nil {
		h.handleLoginError(w, err)
		return
	}

	h.setRefreshCookie(w, pair.RefreshToken, pair.RefreshTokenExpiresAt)
	Ok(w, loginResponse{AccessToken: pair.AccessToken})
}

// LoginEndUser authenticates a mobile-client end-user via an
// organization-scoped username/password.
func (h *AuthHandler) LoginEndUser(w http.ResponseWriter, r *http.Request) {
	var req endUserLoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	pair, err := h.svc.LoginEndUser(r.Context(), auth.EndUserLoginRequest{
		OrganizationID: req.OrganizationID,
		Username:       req.Username,
		Password:       req.Password,
	})
	if err != nil {
		h.handleLoginError(w, err)
		return
	}

	h.setRefreshCookie(w, pair.RefreshToken, pair.RefreshTokenExpiresAt)
	Ok(w, loginResponse{AccessToken: pair.AccessToken})
}

func (h *AuthHandler) handleLoginError(w http.ResponseWriter, err error) {
	if errors.Is(err, auth.ErrInvalidCredentials) || errors.Is(err, auth.ErrUserDisabled) || errors.Is(err, auth.ErrUserNotFound) {
		ErrUnauthorized(w)
		return
	}
	h.logger.Error("login failed", zap.Error(err))
	ErrInternal(w)
}

// Logout revokes the refresh token carried in the cookie, for whichever
// principal kind made the request.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	kind := refreshKind(r)

	cookie, err := r.Cookie(refreshTokenCookie)
	if err == nil {
		if logoutErr := h.svc.Logout(r.Context(), kind, cookie.Value); logoutErr != nil {
			h.logger.Warn("logout failed", zap.Error(logoutErr))
		}
	}

	h.clearRefreshCookie(w)
	NoContent(w)
}

// Refresh rotates the refresh token carried in the cookie and returns a
// fresh access token.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	kind := refreshKind(r)

	cookie, err := r.Cookie(refreshTokenCookie)
	if err != nil {
		ErrUnauthorized(w)
		return
	}

	pair, err := h.svc.RefreshToken(r.Context(), kind, cookie.Value)
	if err != nil {
		h.clearRefreshCookie(w)
		ErrUnauthorized(w)
		return
	}

	h.setRefreshCookie(w, pair.RefreshToken, pair.RefreshTokenExpiresAt)
	Ok(w, loginResponse{AccessToken: pair.AccessToken})
}

// refreshKind reads the principal kind from the "kind" query parameter,
// defaulting to operator. The refresh cookie itself carries no kind marker,
// so the caller (the dashboard vs the mobile client) must say which
// provider issued the token it is refreshing or revoking.
func refreshKind(r *http.Request) string {
	if r.URL.Query().Get("kind") == auth.ClaimKindEndUser {
		return auth.ClaimKindEndUser
	}
	return auth.ClaimKindOperator
}

func (h *AuthHandler) setRefreshCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshTokenCookie,
		Value:    token,
		Path:     refreshCookiePath,
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *AuthHandler) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshTokenCookie,
		Value:    "",
		Path:     refreshCookiePath,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteStrictMode,
	})
}
