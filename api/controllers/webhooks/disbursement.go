package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/angelmondragon/shipwallet-backend/api/responses"
	"github.com/angelmondragon/shipwallet-backend/internal/withdrawals"
	"github.com/angelmondragon/shipwallet-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shipwallet-backend/pkg/errors"
	"github.com/angelmondragon/shipwallet-backend/pkg/logger"
	"github.com/angelmondragon/shipwallet-backend/pkg/security"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw request body.
const SignatureHeader = "X-Disbursement-Signature"

const maxWebhookBody = 64 << 10

type disbursementReconciler interface {
	Reconcile(ctx context.Context, input withdrawals.ReconcileInput) (enums.ReconcileResult, error)
}

type disbursementEvent struct {
	ExternalReference string `json:"external_reference"`
	Outcome           string `json:"outcome"`
	Reason            string `json:"reason"`
}

// DisbursementWebhook settles withdrawals from gateway callbacks. Unknown and
// repeated references are acknowledged with 200 so the gateway stops retrying;
// only infrastructure failures return an error status.
func DisbursementWebhook(svc disbursementReconciler, secret string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if strings.TrimSpace(secret) == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook secret not configured"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		sigHeader := r.Header.Get(SignatureHeader)
		if sigHeader == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "signature missing"))
			return
		}
		if !security.VerifySignature(secret, payload, sigHeader) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "signature mismatch"))
			return
		}

		var event disbursementEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid webhook payload"))
			return
		}

		result, err := svc.Reconcile(ctx, withdrawals.ReconcileInput{
			ExternalRef: strings.TrimSpace(event.ExternalReference),
			Outcome:     event.Outcome,
			Reason:      event.Reason,
			Payload:     payload,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logCtx := logg.WithFields(ctx, map[string]any{
				"external_ref": event.ExternalReference,
				"outcome":      event.Outcome,
				"result":       result,
			})
			logg.Info(logCtx, "disbursement webhook handled")
		}
		responses.WriteSuccess(w, map[string]any{"result": result})
	}
}
