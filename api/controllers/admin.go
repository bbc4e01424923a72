package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/shipwallet-backend/api/middleware"
	"github.com/angelmondragon/shipwallet-backend/api/responses"
	"github.com/angelmondragon/shipwallet-backend/api/validators"
	"github.com/angelmondragon/shipwallet-backend/internal/partnertx"
	"github.com/angelmondragon/shipwallet-backend/internal/wallet"
	"github.com/angelmondragon/shipwallet-backend/internal/withdrawals"
	"github.com/angelmondragon/shipwallet-backend/pkg/db/models"
	"github.com/angelmondragon/shipwallet-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shipwallet-backend/pkg/errors"
	"github.com/angelmondragon/shipwallet-backend/pkg/logger"
	"github.com/angelmondragon/shipwallet-backend/pkg/outbox"
)

// WalletAdmin is the operator surface of the wallet service.
type WalletAdmin interface {
	Freeze(ctx context.Context, walletID uuid.UUID, reason string) (*models.Wallet, error)
	Unfreeze(ctx context.Context, walletID uuid.UUID, actor *outbox.ActorRef) (*wallet.UnfreezeResult, error)
}

// WalletChecker recomputes one wallet's balance from its ledger.
type WalletChecker interface {
	Check(ctx context.Context, walletID uuid.UUID) (*wallet.CheckResult, error)
}

// PartnerProvisioner registers partners and issues their credentials.
type PartnerProvisioner interface {
	Provision(ctx context.Context, name string, currency enums.Currency) (*partnertx.ProvisionResult, error)
}

type freezeRequest struct {
	Reason string `json:"reason" validate:"required,max=512"`
}

type walletStateResponse struct {
	ID              uuid.UUID          `json:"id"`
	Status          enums.WalletStatus `json:"status"`
	FrozenReason    *string            `json:"frozen_reason,omitempty"`
	FrozenAt        *time.Time         `json:"frozen_at,omitempty"`
	ReplayedCredits int                `json:"replayed_credits,omitempty"`
	ReplayedMinor   int64              `json:"replayed_minor,omitempty"`
}

type provisionPartnerRequest struct {
	Name     string `json:"name" validate:"required,max=128"`
	Currency string `json:"currency" validate:"omitempty,len=3"`
}

type provisionPartnerResponse struct {
	PartnerID uuid.UUID `json:"partner_id"`
	WalletID  uuid.UUID `json:"wallet_id"`
	Name      string    `json:"name"`
	APIKey    string    `json:"api_key"`
	APISecret string    `json:"api_secret"`
}

// AdminStuckWithdrawals lists dispatched withdrawals still waiting on a callback.
func AdminStuckWithdrawals(svc withdrawals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "withdrawal service unavailable"))
			return
		}
		var olderThan time.Duration
		if raw := strings.TrimSpace(r.URL.Query().Get("older_than")); raw != "" {
			parsed, err := time.ParseDuration(raw)
			if err != nil || parsed <= 0 {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "older_than must be a positive duration").WithDetails(map[string]any{"field": "older_than"}))
				return
			}
			olderThan = parsed
		}
		stuck, err := svc.ListStuck(r.Context(), olderThan)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"withdrawals": stuck, "count": len(stuck)})
	}
}

// AdminFreezeWallet freezes a wallet; freezing a frozen wallet is a no-op.
func AdminFreezeWallet(svc WalletAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "wallet service unavailable"))
			return
		}
		walletID, err := parseUUIDParam(r, "walletId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req freezeRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		frozen, err := svc.Freeze(r.Context(), walletID, validators.SanitizeString(req.Reason, 512))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, walletStateResponse{
			ID:           frozen.ID,
			Status:       frozen.Status,
			FrozenReason: frozen.FrozenReason,
			FrozenAt:     frozen.FrozenAt,
		})
	}
}

// AdminUnfreezeWallet reactivates a wallet and replays its queued credits.
func AdminUnfreezeWallet(svc WalletAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "wallet service unavailable"))
			return
		}
		walletID, err := parseUUIDParam(r, "walletId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		actor := &outbox.ActorRef{
			ID:   middleware.UserIDFromContext(r.Context()),
			Kind: "user",
			Role: middleware.RoleFromContext(r.Context()),
		}
		result, err := svc.Unfreeze(r.Context(), walletID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, walletStateResponse{
			ID:              result.Wallet.ID,
			Status:          result.Wallet.Status,
			ReplayedCredits: result.ReplayedCredits,
			ReplayedMinor:   result.ReplayedMinor,
		})
	}
}

// AdminReconcileWallet runs the detective balance check for one wallet on demand.
func AdminReconcileWallet(checker WalletChecker, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reconciler unavailable"))
			return
		}
		walletID, err := parseUUIDParam(r, "walletId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := checker.Check(r.Context(), walletID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// AdminProvisionPartner registers a partner. The secret is returned only here.
func AdminProvisionPartner(provisioner PartnerProvisioner, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if provisioner == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "partner provisioning unavailable"))
			return
		}
		var req provisionPartnerRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := provisioner.Provision(r.Context(), req.Name, enums.Currency(strings.ToUpper(req.Currency)))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, provisionPartnerResponse{
			PartnerID: result.Partner.ID,
			WalletID:  result.Partner.WalletID,
			Name:      result.Partner.Name,
			APIKey:    result.APIKey,
			APISecret: result.Secret,
		})
	}
}
