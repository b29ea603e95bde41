package session

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"roomchat-service/internal/models"
)

// Claims carries the verified identity of a bearer token.
type Claims struct {
	UserID  int
	TokenID string
}

// Tokens mints and verifies session tokens.
type Tokens struct {
	secret []byte
}

// NewTokens constructs a Tokens helper with the signing secret.
func NewTokens(secret string) *Tokens {
	return &Tokens{secret: []byte(secret)}
}

// Mint signs a token for the user. Tokens expire after 24 hours and carry a
// unique id so individual sessions can be revoked on sign-out.
func (t *Tokens) Mint(user models.User) (string, error) {
	claims := jwt.MapClaims{
		"sub":  user.ID,
		"name": user.DisplayName,
		"jti":  uuid.NewString(),
		"exp":  time.Now().Add(24 * time.Hour).Unix(),
		"iat":  time.Now().Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Verify parses and validates a raw token string.
func (t *Tokens) Verify(raw string) (Claims, error) {
	token, err := jwt.Parse(raw, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return t.secret, nil
	})
	if err != nil {
		return Claims{}, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Claims{}, errors.New("invalid token claims")
	}

	sub, ok := claims["sub"].(float64)
	if !ok || sub == 0 {
		return Claims{}, errors.New("user id missing from token")
	}
	tokenID, _ := claims["jti"].(string)

	return Claims{UserID: int(sub), TokenID: tokenID}, nil
}
