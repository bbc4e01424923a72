package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/shipwallet-backend/api/middleware"
	"github.com/angelmondragon/shipwallet-backend/api/responses"
	"github.com/angelmondragon/shipwallet-backend/api/validators"
	"github.com/angelmondragon/shipwallet-backend/internal/partnertx"
	pkgerrors "github.com/angelmondragon/shipwallet-backend/pkg/errors"
	"github.com/angelmondragon/shipwallet-backend/pkg/logger"
)

// PartnerCharger bills a partner wallet once per ref_id.
type PartnerCharger interface {
	Charge(ctx context.Context, input partnertx.ChargeInput) (*partnertx.SubmitResult, error)
}

type partnerTransactionRequest struct {
	RefID            string `json:"ref_id" validate:"required,max=128"`
	ServiceCode      string `json:"service_code" validate:"required,max=64"`
	Target           string `json:"target" validate:"required,max=256"`
	ClientPriceMinor *int64 `json:"client_price_minor,omitempty" validate:"omitempty,gte=0"`
}

// PartnerTransactionCreate runs a partner charge. A repeated ref_id returns
// the recorded outcome with 409 and never repeats the side effect.
func PartnerTransactionCreate(charger PartnerCharger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if charger == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "partner service unavailable"))
			return
		}
		partner := middleware.PartnerFromContext(r.Context())
		if partner == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "partner context missing"))
			return
		}

		var req partnerTransactionRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := charger.Charge(r.Context(), partnertx.ChargeInput{
			Partner:          partner,
			RefID:            strings.TrimSpace(req.RefID),
			ServiceCode:      strings.TrimSpace(req.ServiceCode),
			Target:           strings.TrimSpace(req.Target),
			ClientPriceMinor: req.ClientPriceMinor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status := result.StatusCode
		if result.Replayed {
			status = http.StatusConflict
		}
		if status == 0 {
			status = http.StatusCreated
		}
		responses.WriteSuccessStatus(w, status, result)
	}
}

// PartnerTransactionDetail returns the recorded outcome for a ref_id.
func PartnerTransactionDetail(svc partnertx.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "partner service unavailable"))
			return
		}
		partner := middleware.PartnerFromContext(r.Context())
		if partner == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "partner context missing"))
			return
		}

		result, err := svc.Get(r.Context(), partner.ID, chiParam(r, "refId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
