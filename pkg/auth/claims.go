package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	TenantID string
	ActorUID string
	JTI      string
}

// AccessTokenClaims represents the typed JWT issued to merchant backends.
// Every payment operation is scoped to the tenant baked into the token.
type AccessTokenClaims struct {
	TenantID string `json:"tenant_id"`
	ActorUID string `json:"actor_uid"`
	jwt.RegisteredClaims
}
