package withdrawals

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/shipwallet-backend/internal/wallet"
	"github.com/angelmondragon/shipwallet-backend/pkg/config"
	"github.com/angelmondragon/shipwallet-backend/pkg/db/models"
	"github.com/angelmondragon/shipwallet-backend/pkg/disbursement"
	"github.com/angelmondragon/shipwallet-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shipwallet-backend/pkg/errors"
	"github.com/angelmondragon/shipwallet-backend/pkg/logger"
	"github.com/angelmondragon/shipwallet-backend/pkg/metrics"
	"github.com/angelmondragon/shipwallet-backend/pkg/outbox"
	"github.com/angelmondragon/shipwallet-backend/pkg/outbox/payloads"
)

// FailedUserMessage is the only failure detail a wallet owner ever sees.
const FailedUserMessage = "processing failed, funds returned"

const (
	processingUserMessage = "processing"
	completedUserMessage  = "completed"
	stuckListLimit        = 500
	defaultRetryBatch     = 50
)

var settleable = []enums.WithdrawalStatus{enums.WithdrawalStatusReserved, enums.WithdrawalStatusDispatched}

// Gateway submits payouts to the disbursement provider.
type Gateway interface {
	Disburse(ctx context.Context, req disbursement.Request) (*disbursement.Response, error)
}

// WalletLookup resolves the wallet a withdrawal draws from.
type WalletLookup interface {
	Get(ctx context.Context, walletID uuid.UUID) (*models.Wallet, error)
}

type CreateInput struct {
	WalletID    uuid.UUID
	AmountMinor int64
	Destination models.Destination
}

type CreateResult struct {
	Withdrawal *models.Withdrawal
	Dispatched bool
}

type ReconcileInput struct {
	ExternalRef string
	Outcome     string
	Reason      string
	Payload     json.RawMessage
}

// View is the owner-facing projection of a withdrawal.
type View struct {
	ID          uuid.UUID              `json:"id"`
	WalletID    uuid.UUID              `json:"wallet_id"`
	AmountMinor int64                  `json:"amount_minor"`
	Status      enums.WithdrawalStatus `json:"status"`
	Message     string                 `json:"message"`
	BankCode    string                 `json:"bank_code"`
	AccountMask string                 `json:"account_number"`
	CreatedAt   time.Time              `json:"created_at"`
	ProcessedAt *time.Time             `json:"processed_at,omitempty"`
}

// StuckWithdrawal is a dispatched request still waiting on its gateway callback.
type StuckWithdrawal struct {
	ID           uuid.UUID `json:"id"`
	WalletID     uuid.UUID `json:"wallet_id"`
	ExternalRef  string    `json:"external_ref"`
	AmountMinor  int64     `json:"amount_minor"`
	Attempts     int       `json:"dispatch_attempts"`
	DispatchedAt time.Time `json:"dispatched_at"`
	Age          string    `json:"age"`
}

// Audit is the operator view of a withdrawal and every gateway callback
// recorded against its external reference.
type Audit struct {
	Withdrawal      models.Withdrawal
	Reconciliations []models.WebhookReconciliation
}

type RetrySummary struct {
	Attempted  int
	Dispatched int
	Failed     int
	Pending    int
}

// Service drives withdrawals from reservation to a terminal state.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*CreateResult, error)
	Reconcile(ctx context.Context, input ReconcileInput) (enums.ReconcileResult, error)
	Get(ctx context.Context, id uuid.UUID) (*View, error)
	Audit(ctx context.Context, id uuid.UUID) (*Audit, error)
	ListStuck(ctx context.Context, olderThan time.Duration) ([]StuckWithdrawal, error)
	RetryDispatch(ctx context.Context, olderThan time.Duration, limit int) (RetrySummary, error)
}

type ServiceParams struct {
	DB             *gorm.DB
	Repo           Repository
	Wallets        WalletLookup
	Guard          wallet.BalanceGuard
	Gateway        Gateway
	Outbox         outbox.Emitter
	Config         config.WithdrawalConfig
	GatewayTimeout time.Duration
	Metrics        *metrics.LedgerMetrics
	Logger         *logger.Logger
	Now            func() time.Time
}

type service struct {
	db             *gorm.DB
	repo           Repository
	wallets        WalletLookup
	guard          wallet.BalanceGuard
	gateway        Gateway
	outbox         outbox.Emitter
	cfg            config.WithdrawalConfig
	gatewayTimeout time.Duration
	metrics        *metrics.LedgerMetrics
	logg           *logger.Logger
	now            func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("db required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("withdrawal repository required")
	}
	if params.Wallets == nil {
		return nil, fmt.Errorf("wallet lookup required")
	}
	if params.Guard == nil {
		return nil, fmt.Errorf("balance guard required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("disbursement gateway required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	timeout := params.GatewayTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		db:             params.DB,
		repo:           params.Repo,
		wallets:        params.Wallets,
		guard:          params.Guard,
		gateway:        params.Gateway,
		outbox:         params.Outbox,
		cfg:            params.Config,
		gatewayTimeout: timeout,
		metrics:        params.Metrics,
		logg:           params.Logger,
		now:            now,
	}, nil
}

// Create reserves the funds and records the request in one transaction, then
// hands it to the gateway. A failed debit leaves no request behind.
func (s *service) Create(ctx context.Context, input CreateInput) (*CreateResult, error) {
	if err := s.validateCreate(input); err != nil {
		return nil, err
	}
	w, err := s.wallets.Get(ctx, input.WalletID)
	if err != nil {
		return nil, err
	}

	id := uuid.New()
	withdrawal := &models.Withdrawal{
		ID:          id,
		WalletID:    input.WalletID,
		AmountMinor: input.AmountMinor,
		Destination: normalizeDestination(input.Destination),
		Status:      enums.WithdrawalStatusReserved,
		ExternalRef: externalRefFor(id),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.guard.TryAdjustBalanceTx(ctx, tx, wallet.AdjustInput{
			WalletID:    input.WalletID,
			DeltaMinor:  -input.AmountMinor,
			Category:    enums.LedgerCategoryWithdrawal,
			ReferenceID: id.String(),
			Description: fmt.Sprintf("withdrawal to %s %s", withdrawal.Destination.BankCode, maskAccount(withdrawal.Destination.AccountNumber)),
			DedupeKey:   "withdrawal:" + id.String(),
		}); err != nil {
			return err
		}
		if err := s.repo.WithTx(tx).Create(ctx, withdrawal); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create withdrawal")
		}
		return s.emit(ctx, tx, enums.EventWithdrawalReserved, withdrawal, "", nil)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncTransition(string(enums.WithdrawalStatusReserved))
	s.logInfo(ctx, withdrawal, "withdrawal reserved")

	// Funds are reserved from here on: bookkeeping failures are logged and the
	// request is left for the dispatch retry job instead of being surfaced.
	dispatched, err := s.dispatch(ctx, withdrawal, w.Currency)
	if err != nil {
		s.logError(ctx, withdrawal, "withdrawal dispatch bookkeeping failed", err)
		dispatched = false
	}
	current, err := s.repo.FindByID(ctx, id)
	if err != nil {
		s.logError(ctx, withdrawal, "reload withdrawal after dispatch", err)
		current = nil
	}
	if current == nil {
		current = withdrawal
	}
	return &CreateResult{Withdrawal: current, Dispatched: dispatched}, nil
}

func (s *service) validateCreate(input CreateInput) error {
	if input.WalletID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "wallet id is required")
	}
	if input.AmountMinor <= 0 {
		return pkgerrors.New(pkgerrors.CodeInvalidAmount, "amount must be positive")
	}
	if s.cfg.MinAmountMinor > 0 && input.AmountMinor < s.cfg.MinAmountMinor {
		return pkgerrors.New(pkgerrors.CodeInvalidAmount, "amount below minimum withdrawal").
			WithDetails(map[string]any{"min_amount_minor": s.cfg.MinAmountMinor})
	}
	if s.cfg.MaxAmountMinor > 0 && input.AmountMinor > s.cfg.MaxAmountMinor {
		return pkgerrors.New(pkgerrors.CodeInvalidAmount, "amount above maximum withdrawal").
			WithDetails(map[string]any{"max_amount_minor": s.cfg.MaxAmountMinor})
	}
	dest := normalizeDestination(input.Destination)
	if dest.BankCode == "" || dest.AccountNumber == "" || dest.AccountName == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "destination bank code, account number and account name are required")
	}
	return nil
}

// dispatch sends a RESERVED withdrawal to the gateway. Unavailability keeps it
// RESERVED for the retry job; a definitive rejection settles it as FAILED.
func (s *service) dispatch(ctx context.Context, withdrawal *models.Withdrawal, currency enums.Currency) (bool, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	resp, err := s.gateway.Disburse(callCtx, disbursement.Request{
		ExternalRef:   withdrawal.ExternalRef,
		AmountMinor:   withdrawal.AmountMinor,
		Currency:      string(currency),
		BankCode:      withdrawal.Destination.BankCode,
		AccountNumber: withdrawal.Destination.AccountNumber,
		AccountName:   withdrawal.Destination.AccountName,
	})
	cancel()

	if err != nil {
		if disbursement.IsRejection(err) {
			if recErr := s.repo.RecordDispatchAttempt(ctx, withdrawal.ID, stringPtr(err.Error())); recErr != nil {
				return false, pkgerrors.Wrap(pkgerrors.CodeDependency, recErr, "record dispatch attempt")
			}
			if _, settleErr := s.settle(ctx, withdrawal.ExternalRef, enums.GatewayOutcomeFailed, "REJECTED", err.Error(), nil); settleErr != nil {
				return false, settleErr
			}
			return false, nil
		}
		if recErr := s.repo.RecordDispatchAttempt(ctx, withdrawal.ID, stringPtr(err.Error())); recErr != nil {
			return false, pkgerrors.Wrap(pkgerrors.CodeDependency, recErr, "record dispatch attempt")
		}
		if s.logg != nil {
			logCtx := s.logg.WithFields(ctx, map[string]any{
				"withdrawal_id": withdrawal.ID.String(),
				"external_ref":  withdrawal.ExternalRef,
			})
			s.logg.Warn(logCtx, "withdrawal dispatch deferred: "+err.Error())
		}
		return false, nil
	}

	now := s.now().UTC()
	if err := s.repo.RecordDispatchAttempt(ctx, withdrawal.ID, nil); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record dispatch attempt")
	}
	rows, err := s.repo.Transition(ctx, withdrawal.ID,
		[]enums.WithdrawalStatus{enums.WithdrawalStatusReserved},
		enums.WithdrawalStatusDispatched,
		map[string]any{"dispatched_at": now})
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark withdrawal dispatched")
	}
	if rows == 0 {
		// the gateway callback already settled it
		return true, nil
	}
	withdrawal.Status = enums.WithdrawalStatusDispatched
	withdrawal.DispatchedAt = &now
	s.metrics.IncTransition(string(enums.WithdrawalStatusDispatched))
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"withdrawal_id": withdrawal.ID.String(),
			"external_ref":  withdrawal.ExternalRef,
			"gateway_id":    resp.GatewayID,
		})
		s.logg.Info(logCtx, "withdrawal dispatched")
	}
	return true, nil
}

// Reconcile applies a gateway outcome. Unknown references are audited and
// logged but never returned as errors.
func (s *service) Reconcile(ctx context.Context, input ReconcileInput) (enums.ReconcileResult, error) {
	ref := strings.TrimSpace(input.ExternalRef)
	if ref == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "external reference is required")
	}
	outcome := enums.NormalizeGatewayOutcome(input.Outcome)
	return s.settle(ctx, ref, outcome, input.Outcome, input.Reason, input.Payload)
}

func (s *service) settle(ctx context.Context, ref string, outcome enums.GatewayOutcome, rawOutcome, reason string, payload json.RawMessage) (enums.ReconcileResult, error) {
	var (
		result     enums.ReconcileResult
		withdrawal *models.Withdrawal
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		found, err := repo.FindByExternalRefForUpdate(ctx, ref)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load withdrawal")
		}
		withdrawal = found

		switch {
		case found == nil:
			result = enums.ReconcileUnknown
			if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventReconciliationUnknown,
				AggregateType: enums.AggregateWithdrawal,
				AggregateID:   uuid.NewSHA1(uuid.NameSpaceURL, []byte("withdrawal:"+ref)),
				Data:          payloads.ReconciliationUnknownEvent{ExternalRef: ref, Outcome: rawOutcome},
			}); err != nil {
				return err
			}
		case found.Status.IsTerminal():
			result = enums.ReconcileDuplicate
		case outcome == enums.GatewayOutcomeCompleted:
			result = enums.ReconcileProcessed
			if err := s.complete(ctx, tx, found); err != nil {
				return err
			}
		case outcome == enums.GatewayOutcomeFailed:
			result = enums.ReconcileProcessed
			if err := s.fail(ctx, tx, found, rawOutcome, reason); err != nil {
				return err
			}
		default:
			result = enums.ReconcileIgnored
		}

		record := &models.WebhookReconciliation{
			ExternalRef: ref,
			Outcome:     rawOutcome,
			Result:      result,
			Payload:     payload,
		}
		if found != nil {
			record.WithdrawalID = &found.ID
		}
		if err := repo.AppendReconciliation(ctx, record); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append reconciliation audit")
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	s.metrics.IncWebhook(string(result))
	s.logReconcile(ctx, ref, rawOutcome, result, withdrawal)
	return result, nil
}

func (s *service) complete(ctx context.Context, tx *gorm.DB, withdrawal *models.Withdrawal) error {
	now := s.now().UTC()
	rows, err := s.repo.WithTx(tx).Transition(ctx, withdrawal.ID, settleable, enums.WithdrawalStatusCompleted,
		map[string]any{"processed_at": now})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete withdrawal")
	}
	if rows == 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "withdrawal already settled")
	}
	withdrawal.Status = enums.WithdrawalStatusCompleted
	withdrawal.ProcessedAt = &now
	s.metrics.IncTransition(string(enums.WithdrawalStatusCompleted))
	return s.emit(ctx, tx, enums.EventWithdrawalCompleted, withdrawal, "", nil)
}

// fail moves the withdrawal to FAILED and credits the reserved amount back in
// the same transaction. The refund dedupe key allows one refund per withdrawal.
func (s *service) fail(ctx context.Context, tx *gorm.DB, withdrawal *models.Withdrawal, rawOutcome, reason string) error {
	now := s.now().UTC()
	cause := strings.TrimSpace(reason)
	if cause == "" {
		cause = "gateway reported " + strings.ToUpper(strings.TrimSpace(rawOutcome))
	}
	rows, err := s.repo.WithTx(tx).Transition(ctx, withdrawal.ID, settleable, enums.WithdrawalStatusFailed,
		map[string]any{"processed_at": now, "failure_reason": cause})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fail withdrawal")
	}
	if rows == 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "withdrawal already settled")
	}

	var refundEntry *uuid.UUID
	adjusted, err := s.guard.TryAdjustBalanceTx(ctx, tx, wallet.AdjustInput{
		WalletID:    withdrawal.WalletID,
		DeltaMinor:  withdrawal.AmountMinor,
		Category:    enums.LedgerCategoryRefund,
		ReferenceID: withdrawal.ID.String(),
		Description: fmt.Sprintf("refund for failed withdrawal %s: %s", withdrawal.ExternalRef, cause),
		DedupeKey:   "refund:" + withdrawal.ID.String(),
	})
	switch {
	case err == nil:
		refundEntry = &adjusted.Entry.ID
	case wallet.IsQueuedCredit(adjusted, err):
		// applied when the wallet is unfrozen
	default:
		return err
	}

	withdrawal.Status = enums.WithdrawalStatusFailed
	withdrawal.ProcessedAt = &now
	withdrawal.FailureReason = &cause
	s.metrics.IncTransition(string(enums.WithdrawalStatusFailed))
	return s.emit(ctx, tx, enums.EventWithdrawalFailed, withdrawal, cause, refundEntry)
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*View, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "withdrawal id is required")
	}
	withdrawal, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load withdrawal")
	}
	if withdrawal == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "withdrawal not found")
	}
	return toView(withdrawal), nil
}

func (s *service) Audit(ctx context.Context, id uuid.UUID) (*Audit, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "withdrawal id is required")
	}
	withdrawal, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load withdrawal")
	}
	if withdrawal == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "withdrawal not found")
	}
	attempts, err := s.repo.ListReconciliations(ctx, withdrawal.ExternalRef)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list reconciliations")
	}
	return &Audit{Withdrawal: *withdrawal, Reconciliations: attempts}, nil
}

// ListStuck returns DISPATCHED requests older than the threshold. They are
// surfaced for operators and never failed automatically.
func (s *service) ListStuck(ctx context.Context, olderThan time.Duration) ([]StuckWithdrawal, error) {
	if olderThan <= 0 {
		olderThan = s.cfg.StuckAfter
	}
	now := s.now().UTC()
	rows, err := s.repo.ListDispatchedBefore(ctx, now.Add(-olderThan), stuckListLimit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stuck withdrawals")
	}
	out := make([]StuckWithdrawal, 0, len(rows))
	for _, row := range rows {
		if row.DispatchedAt == nil {
			continue
		}
		out = append(out, StuckWithdrawal{
			ID:           row.ID,
			WalletID:     row.WalletID,
			ExternalRef:  row.ExternalRef,
			AmountMinor:  row.AmountMinor,
			Attempts:     row.DispatchAttempts,
			DispatchedAt: *row.DispatchedAt,
			Age:          now.Sub(*row.DispatchedAt).Truncate(time.Second).String(),
		})
	}
	return out, nil
}

// RetryDispatch re-sends RESERVED requests whose last attempt is older than
// the threshold. The debit is never repeated; the external reference keeps
// the gateway call idempotent.
func (s *service) RetryDispatch(ctx context.Context, olderThan time.Duration, limit int) (RetrySummary, error) {
	var summary RetrySummary
	if olderThan <= 0 {
		olderThan = s.cfg.RetryAfter
	}
	if limit <= 0 {
		limit = defaultRetryBatch
	}
	rows, err := s.repo.ListReservedBefore(ctx, s.now().UTC().Add(-olderThan), limit)
	if err != nil {
		return summary, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list reserved withdrawals")
	}
	for i := range rows {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		row := &rows[i]
		w, err := s.wallets.Get(ctx, row.WalletID)
		if err != nil {
			return summary, err
		}
		summary.Attempted++
		dispatched, err := s.dispatch(ctx, row, w.Currency)
		if err != nil {
			return summary, err
		}
		switch {
		case dispatched:
			summary.Dispatched++
		default:
			current, err := s.repo.FindByID(ctx, row.ID)
			if err != nil {
				return summary, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload withdrawal")
			}
			if current != nil && current.Status == enums.WithdrawalStatusFailed {
				summary.Failed++
			} else {
				summary.Pending++
			}
		}
	}
	return summary, nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, withdrawal *models.Withdrawal, reason string, refundEntry *uuid.UUID) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateWithdrawal,
		AggregateID:   withdrawal.ID,
		Data: payloads.WithdrawalEvent{
			WithdrawalID: withdrawal.ID,
			WalletID:     withdrawal.WalletID,
			ExternalRef:  withdrawal.ExternalRef,
			AmountMinor:  withdrawal.AmountMinor,
			Status:       withdrawal.Status,
			Reason:       reason,
			RefundEntry:  refundEntry,
			OccurredAt:   s.now().UTC(),
		},
	})
}

func (s *service) logInfo(ctx context.Context, withdrawal *models.Withdrawal, msg string) {
	if s.logg == nil {
		return
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"withdrawal_id": withdrawal.ID.String(),
		"wallet_id":     withdrawal.WalletID.String(),
		"amount_minor":  withdrawal.AmountMinor,
		"status":        string(withdrawal.Status),
	})
	s.logg.Info(logCtx, msg)
}

func (s *service) logError(ctx context.Context, withdrawal *models.Withdrawal, msg string, err error) {
	if s.logg == nil {
		return
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"withdrawal_id": withdrawal.ID.String(),
		"external_ref":  withdrawal.ExternalRef,
	})
	s.logg.Error(logCtx, msg, err)
}

func (s *service) logReconcile(ctx context.Context, ref, outcome string, result enums.ReconcileResult, withdrawal *models.Withdrawal) {
	if s.logg == nil {
		return
	}
	fields := map[string]any{
		"external_ref": ref,
		"outcome":      outcome,
		"result":       string(result),
	}
	if withdrawal != nil {
		fields["withdrawal_id"] = withdrawal.ID.String()
		fields["status"] = string(withdrawal.Status)
	}
	logCtx := s.logg.WithFields(ctx, fields)
	switch result {
	case enums.ReconcileUnknown:
		s.logg.Error(logCtx, "gateway callback for unknown withdrawal",
			pkgerrors.New(pkgerrors.CodeReconciliationMismatch, "unknown external reference"))
	case enums.ReconcileIgnored, enums.ReconcileDuplicate:
		s.logg.Warn(logCtx, "gateway callback not applied")
	default:
		s.logg.Info(logCtx, "gateway callback reconciled")
	}
}

func toView(w *models.Withdrawal) *View {
	view := &View{
		ID:          w.ID,
		WalletID:    w.WalletID,
		AmountMinor: w.AmountMinor,
		Status:      w.Status,
		BankCode:    w.Destination.BankCode,
		AccountMask: maskAccount(w.Destination.AccountNumber),
		CreatedAt:   w.CreatedAt,
		ProcessedAt: w.ProcessedAt,
	}
	switch w.Status {
	case enums.WithdrawalStatusFailed:
		view.Message = FailedUserMessage
	case enums.WithdrawalStatusCompleted:
		view.Message = completedUserMessage
	default:
		view.Message = processingUserMessage
	}
	return view
}

func normalizeDestination(d models.Destination) models.Destination {
	return models.Destination{
		BankCode:      strings.ToUpper(strings.TrimSpace(d.BankCode)),
		AccountNumber: strings.TrimSpace(d.AccountNumber),
		AccountName:   strings.TrimSpace(d.AccountName),
	}
}

func externalRefFor(id uuid.UUID) string {
	return "wd_" + strings.ReplaceAll(id.String(), "-", "")
}

func maskAccount(number string) string {
	if len(number) <= 4 {
		return number
	}
	return strings.Repeat("*", len(number)-4) + number[len(number)-4:]
}

func stringPtr(v string) *string {
	return &v
}
