// Package auth resolves opaque bearer tokens into verified identity claims.
//
// The Verifier is the seam to the external identity provider. It is
// constructed explicitly and injected into the HTTP layer; there is no
// package-level client state.
package auth

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/ovenbird/recipebook/internal/common"
)

// Claim is the verified identity attached to a request. Subject is the
// stable external key used to join to the local User record.
type Claim struct {
	Subject string
	Name    string
	Email   string
	Picture string
}

// Verifier validates a bearer token and returns the identity claim it
// carries. Implementations must return common.ErrInvalidToken (possibly
// wrapped) for any token that fails verification.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Claim, error)
}

type idTokenClaims struct {
	jwt.RegisteredClaims
	Name    string `json:"name"`
	Email   string `json:"email"`
	Picture string `json:"picture"`
}

// JWTVerifier verifies HS256-signed identity tokens issued by the provider.
type JWTVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret []byte) *JWTVerifier {
	return &JWTVerifier{secret: secret}
}

func (v *JWTVerifier) Verify(ctx context.Context, tokenString string) (*Claim, error) {
	claims := &idTokenClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}

	if !token.Valid || claims.Subject == "" {
		return nil, common.ErrInvalidToken
	}

	return &Claim{
		Subject: claims.Subject,
		Name:    claims.Name,
		Email:   claims.Email,
		Picture: claims.Picture,
	}, nil
}
