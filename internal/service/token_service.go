package service

import (
	"errors"
	"fmt"
	"time"

	"offline-wallet/internal/core/ports"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// JWTTokenService implements ports.TokenService using HS256 JWT.
// The subject is the wallet UID the local API acts for.
type JWTTokenService struct {
	secret []byte
	expiry time.Duration
	issuer string
}

// NewJWTTokenService creates a new JWT token service.
func NewJWTTokenService(secret string, expiry time.Duration, issuer string) *JWTTokenService {
	return &JWTTokenService{
		secret: []byte(secret),
		expiry: expiry,
		issuer: issuer,
	}
}

// Generate creates a signed JWT for the wallet.
func (s *JWTTokenService) Generate(walletUID string) (string, time.Time, error) {
	if len(s.secret) == 0 {
		return "", time.Time{}, errors.New("jwt secret is not configured")
	}

	now := time.Now()
	expiresAt := now.Add(s.expiry)

	claims := jwt.RegisteredClaims{
		Subject:   walletUID,
		Issuer:    s.issuer,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing token: %w", err)
	}

	return tokenString, expiresAt, nil
}

// Validate parses and validates a JWT token, returning the claims.
func (s *JWTTokenService) Validate(tokenString string) (*ports.TokenClaims, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("missing subject claim")
	}

	return &ports.TokenClaims{
		WalletUID: claims.Subject,
		TokenID:   claims.ID,
	}, nil
}
