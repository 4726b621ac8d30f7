package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var ErrInvalidToken = errors.New("invalid token")

// Identity is the authenticated caller carried by a bearer token.
type Identity struct {
	UserID   int
	Username string
}

// TokenValidator resolves a bearer token to an identity.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (Identity, error)
}

// JWT validates and issues HS256 tokens with user_id and username claims.
type JWT struct {
	secret []byte
	now    func() time.Time
}

func NewJWT(secret string) *JWT {
	return &JWT{secret: []byte(secret), now: time.Now}
}

// ValidateToken checks the signature and expiry and extracts the identity.
func (j *JWT) ValidateToken(ctx context.Context, tokenStr string) (Identity, error) {
	if tokenStr == "" {
		return Identity{}, ErrInvalidToken
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := jwt.MapClaims{}
	token, err := parser.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return j.secret, nil
	})
	if err != nil || !token.Valid {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	raw, ok := claims["user_id"].(float64)
	if !ok || raw <= 0 {
		return Identity{}, fmt.Errorf("%w: missing user_id claim", ErrInvalidToken)
	}
	username, _ := claims["username"].(string)
	return Identity{UserID: int(raw), Username: username}, nil
}

// Sign issues a token for id valid for ttl. Used by the token CLI command and tests.
func (j *JWT) Sign(id Identity, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":  id.UserID,
		"username": id.Username,
		"exp":      j.now().Add(ttl).Unix(),
	})
	return token.SignedString(j.secret)
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header value.
func BearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
