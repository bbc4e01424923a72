package partnertx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/shipwallet-backend/internal/fraud"
	"github.com/angelmondragon/shipwallet-backend/internal/wallet"
	"github.com/angelmondragon/shipwallet-backend/pkg/db/models"
	"github.com/angelmondragon/shipwallet-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shipwallet-backend/pkg/errors"
)

// Pricer returns the authoritative price for a service.
type Pricer interface {
	VerifyPrice(ctx context.Context, subject fraud.Subject, serviceCode string, clientPriceMinor *int64) (*fraud.PriceDecision, error)
}

// ChargeInput is a partner request to bill a service against its wallet.
type ChargeInput struct {
	Partner          *models.Partner
	RefID            string
	ServiceCode      string
	Target           string
	ClientPriceMinor *int64
}

// ChargeResponse is recorded as the partner transaction's response payload.
type ChargeResponse struct {
	TransactionID     uuid.UUID      `json:"transaction_id"`
	ServiceCode       string         `json:"service_code"`
	Target            string         `json:"target"`
	AmountMinor       int64          `json:"amount_minor"`
	Currency          enums.Currency `json:"currency"`
	BalanceAfterMinor int64          `json:"balance_after_minor"`
	PriceAdjusted     bool           `json:"price_adjusted"`
}

// Charger debits a partner wallet for a catalog service, once per ref_id.
type Charger struct {
	transactions Service
	guard        wallet.BalanceGuard
	pricer       Pricer
}

func NewCharger(transactions Service, guard wallet.BalanceGuard, pricer Pricer) (*Charger, error) {
	if transactions == nil || guard == nil || pricer == nil {
		return nil, fmt.Errorf("partner transactions, balance guard and pricer are required")
	}
	return &Charger{transactions: transactions, guard: guard, pricer: pricer}, nil
}

func (c *Charger) Charge(ctx context.Context, input ChargeInput) (*SubmitResult, error) {
	if input.Partner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "partner required")
	}
	if prior, err := c.transactions.Get(ctx, input.Partner.ID, input.RefID); err == nil {
		prior.Replayed = true
		return prior, nil
	} else if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) && !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		return nil, err
	}

	// Pricing records its own audit trail, so it runs before the claim transaction.
	subject := fraud.Subject{ID: input.Partner.ID.String(), Type: enums.SubjectPartner}
	price, err := c.pricer.VerifyPrice(ctx, subject, input.ServiceCode, input.ClientPriceMinor)
	if err != nil && !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		return nil, err
	}
	priceErr := err

	payload, err := json.Marshal(map[string]any{
		"ref_id":             input.RefID,
		"service_code":       input.ServiceCode,
		"target":             input.Target,
		"client_price_minor": input.ClientPriceMinor,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode partner request")
	}

	op := func(ctx context.Context, tx *gorm.DB, claim *models.PartnerTransaction) (*OperationResult, error) {
		if priceErr != nil {
			return nil, priceErr
		}
		if price.Blocked {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "client price rejected").
				WithDetails(map[string]any{"server_price_minor": price.ServerPriceMinor})
		}

		response := ChargeResponse{
			TransactionID: claim.ID,
			ServiceCode:   claim.ServiceCode,
			Target:        claim.Target,
			AmountMinor:   price.EffectivePriceMinor,
			Currency:      price.Currency,
			PriceAdjusted: price.Flagged,
		}
		result := &OperationResult{StatusCode: http.StatusCreated, AmountMinor: price.EffectivePriceMinor, Response: &response}
		if price.EffectivePriceMinor == 0 {
			return result, nil
		}

		adjusted, err := c.guard.TryAdjustBalanceTx(ctx, tx, wallet.AdjustInput{
			WalletID:    input.Partner.WalletID,
			DeltaMinor:  -price.EffectivePriceMinor,
			Category:    enums.LedgerCategoryPartnerCharge,
			ReferenceID: claim.ID.String(),
			Description: fmt.Sprintf("%s for %s (ref %s)", claim.ServiceCode, claim.Target, claim.RefID),
			DedupeKey:   "partner:" + claim.ID.String(),
		})
		if err != nil {
			return nil, err
		}
		response.BalanceAfterMinor = adjusted.NewBalance
		result.LedgerEntryID = &adjusted.Entry.ID
		return result, nil
	}

	return c.transactions.Submit(ctx, SubmitInput{
		PartnerID:   input.Partner.ID,
		RefID:       input.RefID,
		ServiceCode: input.ServiceCode,
		Target:      input.Target,
		Payload:     payload,
	}, op)
}
