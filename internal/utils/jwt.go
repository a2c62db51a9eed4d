package utils

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Kyz7/chainverse/internal/config"
	"github.com/Kyz7/chainverse/internal/role"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid or expired token")

type TokenKind string

const (
	AccessTokenKind  TokenKind = "access"
	RefreshTokenKind TokenKind = "refresh"
)

type Claims struct {
	Role role.Surface `json:"role"`
	Kind TokenKind    `json:"typ"`
	jwt.RegisteredClaims
}

// IdentityID returns the numeric subject of the token.
func (c *Claims) IdentityID() (uint, error) {
	id, err := strconv.ParseUint(c.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid subject %q: %w", c.Subject, err)
	}
	return uint(id), nil
}

type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// TokenIssuer signs and verifies access and refresh tokens. Every surface
// signs each token kind with its own secret, so a token minted for one
// surface never verifies on another.
type TokenIssuer struct {
	secrets    map[role.Surface]config.SurfaceSecrets
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewTokenIssuer(cfg *config.Config) *TokenIssuer {
	return &TokenIssuer{
		secrets: map[role.Surface]config.SurfaceSecrets{
			role.User:           cfg.UserSecrets,
			role.Admin:          cfg.AdminSecrets,
			role.CommunityAdmin: cfg.CommunityAdminSecrets,
		},
		accessTTL:  cfg.AccessTokenTTL,
		refreshTTL: cfg.RefreshTokenTTL,
		now:        time.Now,
	}
}

// WithClock replaces the time source used for issuing and verifying.
func (t *TokenIssuer) WithClock(now func() time.Time) *TokenIssuer {
	t.now = now
	return t
}

// Now is the issuer's clock; everything comparing against token lifetimes
// should use it.
func (t *TokenIssuer) Now() time.Time { return t.now().UTC() }

func (t *TokenIssuer) AccessTTL() time.Duration { return t.accessTTL }
func (t *TokenIssuer) RefreshTTL() time.Duration { return t.refreshTTL }

func (t *TokenIssuer) IssueTokens(identityID uint, surface role.Surface) (TokenPair, error) {
	access, accessExp, err := t.IssueAccess(identityID, surface)
	if err != nil {
		return TokenPair{}, err
	}

	refreshExp := t.now().Add(t.refreshTTL)
	refresh, err := t.sign(identityID, surface, RefreshTokenKind, refreshExp)
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (t *TokenIssuer) IssueAccess(identityID uint, surface role.Surface) (string, time.Time, error) {
	exp := t.now().Add(t.accessTTL)
	token, err := t.sign(identityID, surface, AccessTokenKind, exp)
	return token, exp, err
}

func (t *TokenIssuer) VerifyAccess(tokenStr string, surface role.Surface) (*Claims, error) {
	return t.verify(tokenStr, surface, AccessTokenKind)
}

func (t *TokenIssuer) VerifyRefresh(tokenStr string, surface role.Surface) (*Claims, error) {
	return t.verify(tokenStr, surface, RefreshTokenKind)
}

// AccessSurfaceOf reports which surface, if any, a valid access token was
// minted for.
func (t *TokenIssuer) AccessSurfaceOf(tokenStr string) (role.Surface, bool) {
	for _, surface := range role.Surfaces() {
		if _, err := t.VerifyAccess(tokenStr, surface); err == nil {
			return surface, true
		}
	}
	return "", false
}

func (t *TokenIssuer) sign(identityID uint, surface role.Surface, kind TokenKind, exp time.Time) (string, error) {
	key, err := t.key(surface, kind)
	if err != nil {
		return "", err
	}

	now := t.now()
	claims := Claims{
		Role: surface,
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatUint(uint64(identityID), 10),
			Audience:  jwt.ClaimStrings{string(surface)},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(key)
}

func (t *TokenIssuer) verify(tokenStr string, surface role.Surface, kind TokenKind) (*Claims, error) {
	key, err := t.key(surface, kind)
	if err != nil {
		return nil, err
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
		jwt.WithAudience(string(surface)),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims.Kind != kind || claims.Role != surface {
		return nil, fmt.Errorf("%w: unexpected %s token for %s", ErrInvalidToken, claims.Kind, claims.Role)
	}

	if _, err := claims.IdentityID(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	return claims, nil
}

func (t *TokenIssuer) key(surface role.Surface, kind TokenKind) ([]byte, error) {
	secrets, ok := t.secrets[surface]
	if !ok {
		return nil, fmt.Errorf("no secrets configured for surface %q", surface)
	}
	if kind == RefreshTokenKind {
		return []byte(secrets.Refresh), nil
	}
	return []byte(secrets.Access), nil
}
