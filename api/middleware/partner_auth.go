package middleware

import (
	"context"
	"net/http"

	"github.com/angelmondragon/shipwallet-backend/api/responses"
	"github.com/angelmondragon/shipwallet-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/shipwallet-backend/pkg/errors"
	"github.com/angelmondragon/shipwallet-backend/pkg/logger"
)

const (
	partnerKeyHeader    = "X-API-Key"
	partnerSecretHeader = "X-API-Secret"
)

type partnerAuthenticator interface {
	Authenticate(ctx context.Context, apiKey, secret string) (*models.Partner, error)
}

// PartnerAuth resolves partner API credentials into the request context.
func PartnerAuth(authn partnerAuthenticator, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if authn == nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "partner authenticator unavailable"))
				return
			}
			partner, err := authn.Authenticate(r.Context(), r.Header.Get(partnerKeyHeader), r.Header.Get(partnerSecretHeader))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}

			ctx := WithPartner(r.Context(), partner)
			if logg != nil {
				ctx = logg.WithFields(ctx, map[string]any{
					"partner_id": partner.ID.String(),
					"wallet_id":  partner.WalletID.String(),
				})
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
