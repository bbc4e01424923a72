package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/shipwallet-backend/api/middleware"
	"github.com/angelmondragon/shipwallet-backend/api/responses"
	"github.com/angelmondragon/shipwallet-backend/api/validators"
	"github.com/angelmondragon/shipwallet-backend/internal/fraud"
	"github.com/angelmondragon/shipwallet-backend/internal/withdrawals"
	"github.com/angelmondragon/shipwallet-backend/pkg/db/models"
	"github.com/angelmondragon/shipwallet-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shipwallet-backend/pkg/errors"
	"github.com/angelmondragon/shipwallet-backend/pkg/logger"
)

// RiskAssessor runs the request-time fraud guards for withdrawals.
type RiskAssessor interface {
	AssessIP(ctx context.Context, subject fraud.Subject, addr string) (*fraud.IPDecision, error)
	ObserveLocation(ctx context.Context, subject fraud.Subject, sample fraud.Sample) (*fraud.Decision, error)
}

type locationRequest struct {
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lng float64 `json:"lng" validate:"gte=-180,lte=180"`
}

type createWithdrawalRequest struct {
	AmountMinor   int64            `json:"amount_minor"`
	BankCode      string           `json:"bank_code" validate:"required,max=32"`
	AccountNumber string           `json:"account_number" validate:"required,max=64"`
	AccountName   string           `json:"account_name" validate:"required,max=128"`
	Location      *locationRequest `json:"location,omitempty"`
}

type createWithdrawalResponse struct {
	ID          uuid.UUID              `json:"id"`
	Status      enums.WithdrawalStatus `json:"status"`
	AmountMinor int64                  `json:"amount_minor"`
}

// WithdrawalCreate reserves funds and dispatches a payout for the caller's wallet.
func WithdrawalCreate(svc withdrawals.Service, wallets WalletDirectory, risk RiskAssessor, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || wallets == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "withdrawal service unavailable"))
			return
		}

		owned, err := callerWallet(r, wallets)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req createWithdrawalRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if risk != nil {
			if err := screenWithdrawal(r, risk, owned, req.Location); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		result, err := svc.Create(r.Context(), withdrawals.CreateInput{
			WalletID:    owned.ID,
			AmountMinor: req.AmountMinor,
			Destination: models.Destination{
				BankCode:      req.BankCode,
				AccountNumber: req.AccountNumber,
				AccountName:   req.AccountName,
			},
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, createWithdrawalResponse{
			ID:          result.Withdrawal.ID,
			Status:      result.Withdrawal.Status,
			AmountMinor: result.Withdrawal.AmountMinor,
		})
	}
}

func screenWithdrawal(r *http.Request, risk RiskAssessor, owned *models.Wallet, loc *locationRequest) error {
	subject := fraud.Subject{ID: owned.OwnerID.String(), Type: enums.SubjectUser}

	ipDecision, err := risk.AssessIP(r.Context(), subject, middleware.ClientIP(r))
	if err != nil {
		return err
	}
	if ipDecision.Blocked {
		return pkgerrors.New(pkgerrors.CodeForbidden, "request blocked by risk policy")
	}

	if loc == nil {
		return nil
	}
	travel, err := risk.ObserveLocation(r.Context(), subject, fraud.Sample{
		Lat: loc.Lat,
		Lng: loc.Lng,
		At:  time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	if travel.Blocked {
		return pkgerrors.New(pkgerrors.CodeForbidden, "request blocked by risk policy")
	}
	return nil
}

// WithdrawalDetail returns the owner view of a withdrawal.
func WithdrawalDetail(svc withdrawals.Service, wallets WalletDirectory, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || wallets == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "withdrawal service unavailable"))
			return
		}

		id, err := parseUUIDParam(r, "withdrawalId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		owned, err := callerWallet(r, wallets)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if view.WalletID != owned.ID {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "withdrawal not found"))
			return
		}
		responses.WriteSuccess(w, view)
	}
}
