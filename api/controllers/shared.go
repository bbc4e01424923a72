package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/shipwallet-backend/api/middleware"
	"github.com/angelmondragon/shipwallet-backend/pkg/db/models"
	"github.com/angelmondragon/shipwallet-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shipwallet-backend/pkg/errors"
)

// WalletDirectory resolves wallets for authenticated callers.
type WalletDirectory interface {
	Get(ctx context.Context, walletID uuid.UUID) (*models.Wallet, error)
	GetByOwner(ctx context.Context, ownerID uuid.UUID, ownerType enums.WalletOwnerType, currency enums.Currency) (*models.Wallet, error)
}

func parseUserID(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	return id, nil
}

// callerWallet returns the wallet named by the access token, or the user's
// default-currency wallet. A token wallet owned by someone else is rejected.
func callerWallet(r *http.Request, wallets WalletDirectory) (*models.Wallet, error) {
	userID, err := parseUserID(r)
	if err != nil {
		return nil, err
	}
	if walletID, ok := middleware.WalletIDFromContext(r.Context()); ok {
		wallet, err := wallets.Get(r.Context(), walletID)
		if err != nil {
			return nil, err
		}
		if wallet.OwnerType != enums.WalletOwnerUser || wallet.OwnerID != userID {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "wallet does not belong to user")
		}
		return wallet, nil
	}
	return wallets.GetByOwner(r.Context(), userID, enums.WalletOwnerUser, "")
}

func chiParam(r *http.Request, name string) string {
	return strings.TrimSpace(chi.URLParam(r, name))
}

func parseUUIDParam(r *http.Request, name string) (uuid.UUID, error) {
	raw := chiParam(r, name)
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, name+" is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+name)
	}
	return id, nil
}
