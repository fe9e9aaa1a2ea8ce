package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"qrattend/internal/model"
)

const (
	kindAccess  = "access"
	kindRefresh = "refresh"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrWrongKind    = errors.New("wrong token kind")
)

// TokenPair holds access and refresh tokens.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	AccessExp    time.Time `json:"access_expires_at"`
	RefreshExp   time.Time `json:"refresh_expires_at"`
	refreshID    string
}

// Claims represents JWT payload. Kind separates access from refresh tokens
// so one cannot stand in for the other.
type Claims struct {
	Subject string     `json:"sub"`
	Email   string     `json:"email,omitempty"`
	Role    model.Role `json:"role"`
	Kind    string     `json:"kind"`
	jwt.RegisteredClaims
}

// Identity returns the caller the claims describe.
func (c Claims) Identity() model.Identity {
	return model.Identity{UID: c.Subject, Email: c.Email, Role: c.Role}
}

// Issue issues signed access and refresh tokens. The refresh token carries a
// fresh jti so it can be registered and consumed once.
func Issue(id model.Identity, issuer, key string, accessTTL, refreshTTL time.Duration) (TokenPair, error) {
	now := time.Now()
	accessExp := now.Add(accessTTL)
	refreshExp := now.Add(refreshTTL)
	refreshID := uuid.NewString()

	accessClaims := Claims{
		Subject: id.UID,
		Email:   id.Email,
		Role:    id.Role,
		Kind:    kindAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   id.UID,
			ExpiresAt: jwt.NewNumericDate(accessExp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	refreshClaims := Claims{
		Subject: id.UID,
		Email:   id.Email,
		Role:    id.Role,
		Kind:    kindRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        refreshID,
			Issuer:    issuer,
			Subject:   id.UID,
			ExpiresAt: jwt.NewNumericDate(refreshExp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims).SignedString([]byte(key))
	if err != nil {
		return TokenPair{}, err
	}

	refreshToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, refreshClaims).SignedString([]byte(key))
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		AccessExp:    accessExp,
		RefreshExp:   refreshExp,
		refreshID:    refreshID,
	}, nil
}

// Parse validates a token and returns claims.
func Parse(tokenStr, key, issuer string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(key), nil
	})
	if err != nil {
		return Claims{}, errors.Join(ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}
	if issuer != "" && claims.Issuer != issuer {
		return Claims{}, errors.Join(ErrInvalidToken, errors.New("issuer mismatch"))
	}
	if !claims.Role.Valid() || claims.Subject == "" {
		return Claims{}, errors.Join(ErrInvalidToken, errors.New("missing subject or role"))
	}
	return *claims, nil
}

// ParseAccess validates an access token.
func ParseAccess(tokenStr, key, issuer string) (Claims, error) {
	claims, err := Parse(tokenStr, key, issuer)
	if err != nil {
		return Claims{}, err
	}
	if claims.Kind != kindAccess {
		return Claims{}, ErrWrongKind
	}
	return claims, nil
}
