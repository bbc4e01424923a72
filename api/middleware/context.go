package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/shipwallet-backend/pkg/db/models"
)

type contextKey string

const (
	ctxUserID   contextKey = "user_id"
	ctxRole     contextKey = "actor_role"
	ctxWalletID contextKey = "wallet_id"
	ctxPartner  contextKey = "partner"
)

func UserIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxUserID).(string); ok {
		return v
	}
	return ""
}

func RoleFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxRole).(string); ok {
		return v
	}
	return ""
}

// WalletIDFromContext returns the wallet bound to the access token, if any.
func WalletIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	if ctx == nil {
		return uuid.Nil, false
	}
	v, ok := ctx.Value(ctxWalletID).(uuid.UUID)
	return v, ok && v != uuid.Nil
}

// PartnerFromContext returns the partner resolved by PartnerAuth.
func PartnerFromContext(ctx context.Context) *models.Partner {
	if ctx == nil {
		return nil
	}
	if v, ok := ctx.Value(ctxPartner).(*models.Partner); ok {
		return v
	}
	return nil
}

// WithUserID injects the user identifier into the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxUserID, userID)
}

// WithRole injects the actor role into the context.
func WithRole(ctx context.Context, role string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxRole, role)
}

// WithWalletID injects the token's wallet into the context for downstream handlers.
func WithWalletID(ctx context.Context, walletID uuid.UUID) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxWalletID, walletID)
}

// WithPartner injects an authenticated partner into the context.
func WithPartner(ctx context.Context, partner *models.Partner) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxPartner, partner)
}
