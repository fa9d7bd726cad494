package models

import "github.com/golang-jwt/jwt/v5"

// TokenClaims are the JWT claims issued after a successful directory login
type TokenClaims struct {
	Username string   `json:"username"`
	Groups   []string `json:"groups,omitempty"`
	jwt.RegisteredClaims
}
