package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/relaycore/core/internal/db"
	"github.com/relaycore/core/internal/repository"
)

// EndUserAuthProvider authenticates mobile-client EndUsers via an
// organization-scoped username and password. It mirrors LocalAuthProvider's
// Argon2id/refresh-token machinery; the two providers are kept separate
// because EndUser lookups are always organization-scoped while operator
// lookups are not.
type EndUserAuthProvider struct {
	endUserRepo repository.EndUserRepository
	tokenRepo   repository.RefreshTokenRepository
	jwtManager  *JWTManager
}

// NewEndUserAuthProvider creates an EndUserAuthProvider with the given dependencies.
func NewEndUserAuthProvider(
	endUserRepo repository.EndUserRepository,
	tokenRepo repository.RefreshTokenRepository,
	jwtManager *JWTManager,
) *EndUserAuthProvider {
	return &EndUserAuthProvider{
		endUserRepo: endUserRepo,
		tokenRepo:   tokenRepo,
		jwtManager:  jwtManager,
	}
}

// ProviderType implements AuthProvider.
func (p *EndUserAuthProvider) ProviderType() string {
	return "end_user"
}

// LoginEndUser validates an org-scoped username/password pair and returns a
// token pair on success.
func (p *EndUserAuthProvider) LoginEndUser(ctx context.Context, req EndUserLoginRequest) (*TokenPair, error) {
	orgID, err := uuid.Parse(req.OrganizationID)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	u, err := p.endUserRepo.GetByOrgUsername(ctx, orgID, req.Username)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("auth: fetching end user by org username: %w", err)
	}

	if !u.IsActive {
		return nil, ErrUserDisabled
	}

	if !verifyPassword(req.Password, string(u.PasswordHash)) {
		return nil, ErrInvalidCredentials
	}

	return p.issueTokenPair(ctx, u.ID, u.OrganizationID, u.Username)
}

// RefreshToken validates and rotates a refresh token issued to an end-user.
func (p *EndUserAuthProvider) RefreshToken(ctx context.Context, rawToken string) (*TokenPair, error) {
	tokenHash := hashRefreshToken(rawToken)

	stored, err := p.tokenRepo.GetByHash(ctx, tokenHash)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrRefreshTokenNotFound
		}
		return nil, fmt.Errorf("auth: fetching refresh token: %w", err)
	}

	if err := p.tokenRepo.DeleteByHash(ctx, tokenHash); err != nil {
		return nil, fmt.Errorf("auth: deleting old refresh token: %w", err)
	}

	if time.Now().After(stored.ExpiresAt) {
		return nil, ErrTokenExpired
	}

	u, err := p.endUserRepo.GetByID(ctx, stored.UserID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("auth: fetching end user for token refresh: %w", err)
	}

	if !u.IsActive {
		return nil, ErrUserDisabled
	}

	return p.issueTokenPair(ctx, u.ID, u.OrganizationID, u.Username)
}

// Login satisfies AuthProvider; end-user logins always go through
// LoginEndUser since they require an OrganizationID the base LoginRequest
// does not carry.
func (p *EndUserAuthProvider) Login(ctx context.Context, req LoginRequest) (*TokenPair, error) {
	return nil, fmt.Errorf("auth: end_user provider requires LoginEndUser, not Login")
}

// Logout invalidates the given refresh token.
func (p *EndUserAuthProvider) Logout(ctx context.Context, rawToken string) error {
	tokenHash := hashRefreshToken(rawToken)
	if err := p.tokenRepo.DeleteByHash(ctx, tokenHash); err != nil && !isNotFound(err) {
		return fmt.Errorf("auth: revoking refresh token on logout: %w", err)
	}
	return nil
}

func (p *EndUserAuthProvider) issueTokenPair(ctx context.Context, endUserID, orgID uuid.UUID, username string) (*TokenPair, error) {
	accessToken, err := p.jwtManager.GenerateEndUserAccessToken(endUserID.String(), orgID.String(), username)
	if err != nil {
		return nil, err
	}

	rawRefresh, err := generateRefreshToken()
	if err != nil {
		return nil, fmt.Errorf("auth: generating refresh token: %w", err)
	}

	expiresAt := time.Now().Add(refreshTokenDuration)

	if err := p.tokenRepo.Create(ctx, &db.RefreshToken{
		UserID:    endUserID,
		TokenHash: hashRefreshToken(rawRefresh),
		ExpiresAt: expiresAt,
	}); err != nil {
		return nil, fmt.Errorf("auth: persisting refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:           accessToken,
		RefreshToken:          rawRefresh,
		RefreshTokenExpiresAt: expiresAt,
	}, nil
}
