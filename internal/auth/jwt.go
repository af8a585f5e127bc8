package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidCredential = errors.New("invalid credential")
	ErrMissingSecret     = errors.New("jwt secret is not configured")
)

// Claims mirrors the access token issued by the auth service.
type Claims struct {
	jwt.RegisteredClaims
	Id          string   `json:"id"`
	Username    string   `json:"username"`
	Email       string   `json:"email"`
	Permissions []string `json:"permissions"`
}

// UserID is the token's subject, falling back to the id claim for tokens
// that predate the sub field.
func (c *Claims) UserID() string {
	if c.Subject != "" {
		return c.Subject
	}
	return c.Id
}

type JWTService struct {
	secretKey []byte
}

func NewJWTService(jwtSecret string) *JWTService {
	return &JWTService{
		secretKey: []byte(jwtSecret),
	}
}

func (s *JWTService) VerifyToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&Claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			if len(s.secretKey) == 0 {
				return nil, ErrMissingSecret
			}
			return s.secretKey, nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCredential, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: invalid token claims", ErrInvalidCredential)
	}
	return claims, nil
}

// Verify checks that token is valid and was issued to userID.
func (s *JWTService) Verify(token, userID string) error {
	claims, err := s.VerifyToken(token)
	if err != nil {
		return err
	}
	if claims.UserID() != userID {
		return fmt.Errorf("%w: token issued to a different user", ErrInvalidCredential)
	}
	return nil
}
