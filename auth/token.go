package auth

import (
	"fmt"
	"strings"
	"time"

	"nexchat/domain"
	"nexchat/errors"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "nexchat"

// CustomClaims defines the structure of the data stored inside the JWT.
type CustomClaims struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// JWTService signs and verifies session tokens. It is the TokenVerifier used
// by the connection gate and the REST middleware.
type JWTService struct {
	secret   []byte
	duration time.Duration
}

func NewJWTService(secret string, duration time.Duration) *JWTService {
	return &JWTService{secret: []byte(secret), duration: duration}
}

// GenerateToken creates a signed JWT carrying the user's identity.
// A non-positive duration issues a token without expiry.
func (s *JWTService) GenerateToken(identity domain.Identity) (string, error) {
	if len(s.secret) == 0 || !identity.Valid() {
		return "", errors.ErrTokenGeneration
	}
	now := time.Now()
	claims := &CustomClaims{
		UserID:   identity.UserID,
		Username: identity.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  identity.UserID,
			IssuedAt: jwt.NewNumericDate(now),
			Issuer:   issuer,
		},
	}
	if s.duration > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(s.duration))
	}

	// HS256 (HMAC with SHA256).
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errors.ErrTokenGeneration, err)
	}
	return signed, nil
}

// Verify parses and validates the signature and expiration of a token.
func (s *JWTService) Verify(tokenString string) (domain.Identity, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return domain.Identity{}, errors.ErrMissingToken
	}
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return domain.Identity{}, errors.ErrInvalidToken
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid || claims.UserID == "" {
		return domain.Identity{}, errors.ErrInvalidToken
	}
	return domain.Identity{UserID: claims.UserID, Username: claims.Username}, nil
}
