package partnertx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/shipwallet-backend/pkg/db"
	"github.com/angelmondragon/shipwallet-backend/pkg/db/models"
	"github.com/angelmondragon/shipwallet-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shipwallet-backend/pkg/errors"
	"github.com/angelmondragon/shipwallet-backend/pkg/logger"
	"github.com/angelmondragon/shipwallet-backend/pkg/outbox"
	"github.com/angelmondragon/shipwallet-backend/pkg/outbox/payloads"
)

const (
	operationSavepoint = "partner_tx_operation"
	maxRefIDLength     = 128

	replayPollInterval = 50 * time.Millisecond
	replayPollAttempts = 40
)

// SubmitInput is one partner request keyed by (PartnerID, RefID).
type SubmitInput struct {
	PartnerID   uuid.UUID
	RefID       string
	ServiceCode string
	Target      string
	Payload     json.RawMessage
}

// OperationResult is what a successful side effect reports back for recording.
type OperationResult struct {
	StatusCode    int
	AmountMinor   int64
	LedgerEntryID *uuid.UUID
	Response      any
}

// Operation performs the side effect inside the claim's transaction.
type Operation func(ctx context.Context, tx *gorm.DB, claim *models.PartnerTransaction) (*OperationResult, error)

// SubmitResult is returned for first submissions and replays alike.
type SubmitResult struct {
	TransactionID uuid.UUID             `json:"transaction_id"`
	RefID         string                `json:"ref_id"`
	Status        enums.PartnerTxStatus `json:"status"`
	StatusCode    int                   `json:"status_code"`
	ErrorCode     string                `json:"error_code,omitempty"`
	Response      json.RawMessage       `json:"response,omitempty"`
	Replayed      bool                  `json:"replayed"`
}

// Service is the partner idempotency layer: each (partner, ref_id) runs its
// side effect at most once and every retry observes the recorded outcome.
type Service interface {
	Submit(ctx context.Context, input SubmitInput, op Operation) (*SubmitResult, error)
	Get(ctx context.Context, partnerID uuid.UUID, refID string) (*SubmitResult, error)
}

type ServiceParams struct {
	DB     *gorm.DB
	Repo   Repository
	Outbox outbox.Emitter
	Logger *logger.Logger
}

type service struct {
	db     *gorm.DB
	repo   Repository
	outbox outbox.Emitter
	logg   *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("db required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("partner repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &service{db: params.DB, repo: params.Repo, outbox: params.Outbox, logg: params.Logger}, nil
}

func (s *service) Submit(ctx context.Context, input SubmitInput, op Operation) (*SubmitResult, error) {
	if err := validateSubmit(input); err != nil {
		return nil, err
	}
	if op == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "operation required")
	}

	existing, err := s.repo.FindByRef(ctx, input.PartnerID, input.RefID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup partner transaction")
	}
	if existing != nil {
		return s.replay(ctx, existing)
	}

	var (
		result   *SubmitResult
		lostRace bool
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		claim := &models.PartnerTransaction{
			ID:             uuid.New(),
			PartnerID:      input.PartnerID,
			RefID:          input.RefID,
			ServiceCode:    input.ServiceCode,
			Target:         input.Target,
			RequestPayload: input.Payload,
		}
		if err := repo.CreateClaim(ctx, claim); err != nil {
			lostRace = db.IsUniqueViolation(err, "")
			return err
		}

		if err := tx.SavePoint(operationSavepoint).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "savepoint")
		}
		opResult, opErr := op(ctx, tx, claim)
		if opErr != nil {
			if !isBusinessFailure(opErr) {
				return opErr
			}
			if err := tx.RollbackTo(operationSavepoint).Error; err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rollback to savepoint")
			}
			recordFailure(claim, opErr)
		} else {
			if err := recordSuccess(claim, opResult); err != nil {
				return err
			}
		}

		if err := repo.Complete(ctx, claim); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record partner transaction outcome")
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPartnerTxRecorded,
			AggregateType: enums.AggregatePartnerTransaction,
			AggregateID:   claim.ID,
			Actor:         &outbox.ActorRef{ID: claim.PartnerID.String(), Kind: "partner"},
			Data: payloads.PartnerTransactionRecordedEvent{
				TransactionID: claim.ID,
				PartnerID:     claim.PartnerID,
				RefID:         claim.RefID,
				ServiceCode:   claim.ServiceCode,
				AmountMinor:   claim.AmountMinor,
				Status:        claim.Status,
				StatusCode:    claim.StatusCode,
			},
		}); err != nil {
			return err
		}
		result = toResult(claim, false)
		return nil
	})
	if err != nil {
		if lostRace {
			return s.awaitWinner(ctx, input)
		}
		return nil, err
	}

	s.logOutcome(ctx, result)
	return result, nil
}

// awaitWinner resolves a lost claim race. On Postgres the losing insert only
// fails once the winner committed; the short poll covers other datastores.
func (s *service) awaitWinner(ctx context.Context, input SubmitInput) (*SubmitResult, error) {
	for attempt := 0; attempt < replayPollAttempts; attempt++ {
		existing, err := s.repo.FindByRef(ctx, input.PartnerID, input.RefID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup partner transaction")
		}
		if existing != nil && existing.Status.IsTerminal() {
			return s.replay(ctx, existing)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(replayPollInterval):
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeConflict, "partner transaction is still processing")
}

func (s *service) replay(ctx context.Context, existing *models.PartnerTransaction) (*SubmitResult, error) {
	if !existing.Status.IsTerminal() {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "partner transaction is still processing")
	}
	result := toResult(existing, true)
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"transaction_id": existing.ID.String(),
			"ref_id":         existing.RefID,
			"status":         existing.Status,
		})
		s.logg.Info(logCtx, "partner transaction replayed")
	}
	return result, nil
}

func (s *service) Get(ctx context.Context, partnerID uuid.UUID, refID string) (*SubmitResult, error) {
	refID = strings.TrimSpace(refID)
	if partnerID == uuid.Nil || refID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "partner id and ref id are required")
	}
	existing, err := s.repo.FindByRef(ctx, partnerID, refID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup partner transaction")
	}
	if existing == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "partner transaction not found")
	}
	return toResult(existing, false), nil
}

func (s *service) logOutcome(ctx context.Context, result *SubmitResult) {
	if s.logg == nil || result == nil {
		return
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"transaction_id": result.TransactionID.String(),
		"ref_id":         result.RefID,
		"status":         result.Status,
		"status_code":    result.StatusCode,
	})
	s.logg.Info(logCtx, "partner transaction recorded")
}

func validateSubmit(input SubmitInput) error {
	if input.PartnerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "partner id is required")
	}
	if strings.TrimSpace(input.RefID) == "" || len(input.RefID) > maxRefIDLength {
		return pkgerrors.New(pkgerrors.CodeValidation, "ref_id is required and must be at most 128 characters")
	}
	if strings.TrimSpace(input.ServiceCode) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "service_code is required")
	}
	if strings.TrimSpace(input.Target) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "target is required")
	}
	return nil
}

// isBusinessFailure separates definitive outcomes, which are recorded, from
// infrastructure faults, which abort the claim so the partner can retry.
func isBusinessFailure(err error) bool {
	typed := pkgerrors.As(err)
	if typed == nil {
		return false
	}
	switch typed.Code() {
	case pkgerrors.CodeInternal, pkgerrors.CodeDependency, pkgerrors.CodeGatewayUnavailable:
		return false
	}
	return !pkgerrors.MetadataFor(typed.Code()).Retryable
}

func recordFailure(claim *models.PartnerTransaction, opErr error) {
	typed := pkgerrors.As(opErr)
	code := string(typed.Code())
	meta := pkgerrors.MetadataFor(typed.Code())
	body, _ := json.Marshal(map[string]any{
		"code":    code,
		"message": meta.PublicMessage,
	})
	claim.Status = enums.PartnerTxFailed
	claim.StatusCode = meta.HTTPStatus
	claim.ErrorCode = &code
	claim.ResponsePayload = body
	claim.LedgerEntryID = nil
}

func recordSuccess(claim *models.PartnerTransaction, opResult *OperationResult) error {
	if opResult == nil {
		opResult = &OperationResult{}
	}
	body, err := json.Marshal(opResult.Response)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode partner response")
	}
	claim.Status = enums.PartnerTxSucceeded
	claim.StatusCode = opResult.StatusCode
	if claim.StatusCode == 0 {
		claim.StatusCode = http.StatusCreated
	}
	claim.AmountMinor = opResult.AmountMinor
	claim.LedgerEntryID = opResult.LedgerEntryID
	claim.ResponsePayload = body
	return nil
}

func toResult(row *models.PartnerTransaction, replayed bool) *SubmitResult {
	result := &SubmitResult{
		TransactionID: row.ID,
		RefID:         row.RefID,
		Status:        row.Status,
		StatusCode:    row.StatusCode,
		Response:      row.ResponsePayload,
		Replayed:      replayed,
	}
	if row.ErrorCode != nil {
		result.ErrorCode = *row.ErrorCode
	}
	return result
}
