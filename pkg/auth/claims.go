package auth

import (
	"github.com/angelmondragon/shipwallet-backend/pkg/enums"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID   uuid.UUID
	WalletID *uuid.UUID
	Role     enums.MemberRole
	JTI      string
}

// AccessTokenClaims represents the typed JWT issued to clients.
type AccessTokenClaims struct {
	UserID   uuid.UUID        `json:"user_id"`
	WalletID *uuid.UUID       `json:"wallet_id,omitempty"`
	Role     enums.MemberRole `json:"role"`
	jwt.RegisteredClaims
}

// IsAdmin reports whether the token grants operator access.
func (c *AccessTokenClaims) IsAdmin() bool {
	return c != nil && c.Role == enums.MemberRoleAdmin
}
