package auth

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/relaycore/core/internal/repository"
)

// AuthService is the entry point for all authentication operations. It
// holds both the operator and end-user providers and delegates to the
// appropriate one based on the operation requested.
//
// The REST and WS layers depend on AuthService, never on individual
// providers directly.
type AuthService struct {
	local      *LocalAuthProvider
	endUser    *EndUserAuthProvider
	tokenRepo  repository.RefreshTokenRepository
	jwtManager *JWTManager
}

// NewAuthService creates an AuthService with the given providers and dependencies.
func NewAuthService(
	local *LocalAuthProvider,
	endUser *EndUserAuthProvider,
	tokenRepo repository.RefreshTokenRepository,
	jwtManager *JWTManager,
) *AuthService {
	return &AuthService{
		local:      local,
		endUser:    endUser,
		tokenRepo:  tokenRepo,
		jwtManager: jwtManager,
	}
}

// LoginLocal authenticates an operator via email and password.
func (s *AuthService) LoginLocal(ctx context.Context, req LoginRequest) (*TokenPair, error) {
	return s.local.Login(ctx, req)
}

// LoginEndUser authenticates a mobile-client end-user via an
// organization-scoped username and password.
func (s *AuthService) LoginEndUser(ctx context.Context, req EndUserLoginRequest) (*TokenPair, error) {
	return s.endUser.LoginEndUser(ctx, req)
}

// RefreshToken validates and rotates a refresh token issued by either
// provider. Refresh tokens carry no provider marker, so the caller must
// know which kind of principal it is refreshing; pass kind to route to the
// matching provider.
func (s *AuthService) RefreshToken(ctx context.Context, kind, rawToken string) (*TokenPair, error) {
	switch kind {
	case ClaimKindEndUser:
		return s.endUser.RefreshToken(ctx, rawToken)
	default:
		return s.local.RefreshToken(ctx, rawToken)
	}
}

// Logout invalidates the given refresh token.
func (s *AuthService) Logout(ctx context.Context, kind, rawToken string) error {
	switch kind {
	case ClaimKindEndUser:
		return s.endUser.Logout(ctx, rawToken)
	default:
		return s.local.Logout(ctx, rawToken)
	}
}

// LogoutAllSessions revokes all active refresh tokens for a principal.
// Called on password change or security events (e.g. compromised account).
func (s *AuthService) LogoutAllSessions(ctx context.Context, userID uuid.UUID) error {
	if err := s.tokenRepo.RevokeAllForUser(ctx, userID); err != nil {
		return fmt.Errorf("auth: revoking all sessions for user %s: %w", userID, err)
	}
	return nil
}

// ValidateAccessToken parses and verifies a JWT access token. Used by the
// HTTP middleware and the WS handshake to authenticate incoming connections.
func (s *AuthService) ValidateAccessToken(tokenString string) (*Claims, error) {
	return s.jwtManager.ValidateAccessToken(tokenString)
}

// JWTManager exposes the underlying JWTManager for cases where the caller
// needs direct access, e.g. to serve a JWKS endpoint.
func (s *AuthService) JWTManager() *JWTManager {
	return s.jwtManager
}
