package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/shipwallet-backend/api/responses"
	"github.com/angelmondragon/shipwallet-backend/api/validators"
	"github.com/angelmondragon/shipwallet-backend/internal/ledger"
	"github.com/angelmondragon/shipwallet-backend/internal/wallet"
	"github.com/angelmondragon/shipwallet-backend/internal/withdrawals"
	"github.com/angelmondragon/shipwallet-backend/pkg/db/models"
	"github.com/angelmondragon/shipwallet-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shipwallet-backend/pkg/errors"
	"github.com/angelmondragon/shipwallet-backend/pkg/logger"
	"github.com/angelmondragon/shipwallet-backend/pkg/pagination"
)

// WalletReader is the read side of the wallet service used by user endpoints.
type WalletReader interface {
	WalletDirectory
	Open(ctx context.Context, ownerID uuid.UUID, ownerType enums.WalletOwnerType, currency enums.Currency) (*models.Wallet, error)
	Balance(ctx context.Context, walletID uuid.UUID) (*wallet.BalanceView, error)
}

type openWalletRequest struct {
	Currency string `json:"currency" validate:"omitempty,len=3"`
}

type walletResponse struct {
	ID        uuid.UUID          `json:"id"`
	Currency  enums.Currency     `json:"currency"`
	Status    enums.WalletStatus `json:"status"`
	CreatedAt time.Time          `json:"created_at"`
}

type ledgerEntryResponse struct {
	ID          uuid.UUID             `json:"id"`
	Seq         int64                 `json:"seq"`
	AmountMinor int64                 `json:"amount_minor"`
	Kind        enums.LedgerEntryKind `json:"kind"`
	Category    enums.LedgerCategory  `json:"category"`
	ReferenceID string                `json:"reference_id"`
	Description string                `json:"description"`
	CreatedAt   time.Time             `json:"created_at"`
}

type ledgerPageResponse struct {
	Entries    []ledgerEntryResponse `json:"entries"`
	NextCursor string                `json:"next_cursor,omitempty"`
}

// WalletOpen creates the caller's wallet on signup; repeated calls return the same wallet.
func WalletOpen(svc WalletReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "wallet service unavailable"))
			return
		}
		userID, err := parseUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req openWalletRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &req); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		opened, err := svc.Open(r.Context(), userID, enums.WalletOwnerUser, enums.Currency(strings.ToUpper(req.Currency)))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, walletResponse{
			ID:        opened.ID,
			Currency:  opened.Currency,
			Status:    opened.Status,
			CreatedAt: opened.CreatedAt,
		})
	}
}

// WalletMe returns the caller's balance and status.
func WalletMe(svc WalletReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "wallet service unavailable"))
			return
		}
		owned, err := callerWallet(r, svc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.Balance(r.Context(), owned.ID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// WalletEntries returns the caller's ledger history in sequence order. Refund
// causes stay internal; owners see the generic failure message.
func WalletEntries(wallets WalletDirectory, history ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if wallets == nil || history == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}
		owned, err := callerWallet(r, wallets)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := history.History(r.Context(), owned.ID, pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := ledgerPageResponse{
			Entries:    make([]ledgerEntryResponse, 0, len(page.Entries)),
			NextCursor: page.NextCursor,
		}
		for _, entry := range page.Entries {
			description := entry.Description
			if entry.Category == enums.LedgerCategoryRefund {
				description = withdrawals.FailedUserMessage
			}
			out.Entries = append(out.Entries, ledgerEntryResponse{
				ID:          entry.ID,
				Seq:         entry.Seq,
				AmountMinor: entry.AmountMinor,
				Kind:        entry.Kind,
				Category:    entry.Category,
				ReferenceID: entry.ReferenceID,
				Description: description,
				CreatedAt:   entry.CreatedAt,
			})
		}
		responses.WriteSuccess(w, out)
	}
}
