package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/shipwallet-backend/api/responses"
	"github.com/angelmondragon/shipwallet-backend/api/validators"
	"github.com/angelmondragon/shipwallet-backend/internal/fraud"
	"github.com/angelmondragon/shipwallet-backend/internal/withdrawals"
	"github.com/angelmondragon/shipwallet-backend/pkg/db/models"
	"github.com/angelmondragon/shipwallet-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shipwallet-backend/pkg/errors"
	"github.com/angelmondragon/shipwallet-backend/pkg/logger"
)

// WithdrawalAuditor loads a withdrawal with its callback history.
type WithdrawalAuditor interface {
	Audit(ctx context.Context, id uuid.UUID) (*withdrawals.Audit, error)
}

// ReferenceLedger finds the ledger entries written for a request.
type ReferenceLedger interface {
	ByReference(ctx context.Context, referenceID string) ([]models.LedgerEntry, error)
}

// ActivityReader lists recorded fraud signals for a subject.
type ActivityReader interface {
	Activity(ctx context.Context, subject fraud.Subject, limit int) ([]models.SuspiciousActivity, error)
}

type reconciliationResponse struct {
	ID        uuid.UUID             `json:"id"`
	Outcome   string                `json:"outcome"`
	Result    enums.ReconcileResult `json:"result"`
	Payload   json.RawMessage       `json:"payload,omitempty"`
	CreatedAt time.Time             `json:"created_at"`
}

type withdrawalAuditResponse struct {
	ID               uuid.UUID                `json:"id"`
	WalletID         uuid.UUID                `json:"wallet_id"`
	AmountMinor      int64                    `json:"amount_minor"`
	Status           enums.WithdrawalStatus   `json:"status"`
	ExternalRef      string                   `json:"external_ref"`
	FailureReason    *string                  `json:"failure_reason,omitempty"`
	DispatchAttempts int                      `json:"dispatch_attempts"`
	Reconciliations  []reconciliationResponse `json:"reconciliations"`
	LedgerEntries    []ledgerEntryResponse    `json:"ledger_entries"`
}

type suspiciousActivityResponse struct {
	ID          uuid.UUID        `json:"id"`
	Guard       enums.FraudGuard `json:"guard"`
	RiskValue   float64          `json:"risk_value"`
	Flagged     bool             `json:"flagged"`
	Explanation string           `json:"explanation"`
	Inputs      json.RawMessage  `json:"inputs,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

// AdminWithdrawalAudit shows the operator everything recorded for one
// withdrawal: state, every gateway callback and its ledger entries.
func AdminWithdrawalAudit(auditor WithdrawalAuditor, entries ReferenceLedger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if auditor == nil || entries == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "withdrawal audit unavailable"))
			return
		}
		id, err := parseUUIDParam(r, "withdrawalId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		audit, err := auditor.Audit(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := entries.ByReference(r.Context(), id.String())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := withdrawalAuditResponse{
			ID:               audit.Withdrawal.ID,
			WalletID:         audit.Withdrawal.WalletID,
			AmountMinor:      audit.Withdrawal.AmountMinor,
			Status:           audit.Withdrawal.Status,
			ExternalRef:      audit.Withdrawal.ExternalRef,
			FailureReason:    audit.Withdrawal.FailureReason,
			DispatchAttempts: audit.Withdrawal.DispatchAttempts,
			Reconciliations:  make([]reconciliationResponse, 0, len(audit.Reconciliations)),
			LedgerEntries:    make([]ledgerEntryResponse, 0, len(rows)),
		}
		for _, attempt := range audit.Reconciliations {
			out.Reconciliations = append(out.Reconciliations, reconciliationResponse{
				ID:        attempt.ID,
				Outcome:   attempt.Outcome,
				Result:    attempt.Result,
				Payload:   attempt.Payload,
				CreatedAt: attempt.CreatedAt,
			})
		}
		for _, entry := range rows {
			out.LedgerEntries = append(out.LedgerEntries, ledgerEntryResponse{
				ID:          entry.ID,
				Seq:         entry.Seq,
				AmountMinor: entry.AmountMinor,
				Kind:        entry.Kind,
				Category:    entry.Category,
				ReferenceID: entry.ReferenceID,
				Description: entry.Description,
				CreatedAt:   entry.CreatedAt,
			})
		}
		responses.WriteSuccess(w, out)
	}
}

// AdminSuspiciousActivity lists the newest fraud signals for a subject.
func AdminSuspiciousActivity(reader ActivityReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if reader == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "fraud audit unavailable"))
			return
		}
		query := r.URL.Query()
		subject := fraud.Subject{
			ID:   strings.TrimSpace(query.Get("subject_id")),
			Type: enums.SubjectType(strings.ToLower(strings.TrimSpace(query.Get("subject_type")))),
		}
		if subject.ID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "subject_id is required").WithDetails(map[string]any{"field": "subject_id"}))
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 200)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		records, err := reader.Activity(r.Context(), subject, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]suspiciousActivityResponse, 0, len(records))
		for _, record := range records {
			out = append(out, suspiciousActivityResponse{
				ID:          record.ID,
				Guard:       record.Guard,
				RiskValue:   record.RiskValue,
				Flagged:     record.Flagged,
				Explanation: record.Explanation,
				Inputs:      record.Inputs,
				CreatedAt:   record.CreatedAt,
			})
		}
		responses.WriteSuccess(w, map[string]any{"records": out, "count": len(out)})
	}
}
