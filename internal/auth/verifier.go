package auth

import (
	"context"
	"errors"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// Identity is the user a bearer token was issued to
type Identity struct {
	UserID  string
	Email   string
	Name    string
	Picture string
}

// Verifier checks tokens issued by the external auth store
type Verifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}
