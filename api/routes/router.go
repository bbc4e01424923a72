package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/shipwallet-backend/api/controllers"
	webhookcontrollers "github.com/angelmondragon/shipwallet-backend/api/controllers/webhooks"
	"github.com/angelmondragon/shipwallet-backend/api/middleware"
	"github.com/angelmondragon/shipwallet-backend/internal/ledger"
	"github.com/angelmondragon/shipwallet-backend/internal/partnertx"
	"github.com/angelmondragon/shipwallet-backend/internal/withdrawals"
	"github.com/angelmondragon/shipwallet-backend/pkg/config"
	"github.com/angelmondragon/shipwallet-backend/pkg/db/models"
	"github.com/angelmondragon/shipwallet-backend/pkg/enums"
	"github.com/angelmondragon/shipwallet-backend/pkg/logger"
)

// RequestStore backs request idempotency, rate limits and readiness.
type RequestStore interface {
	middleware.IdempotencyStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
	Ping(ctx context.Context) error
}

type partnerAccess interface {
	Authenticate(ctx context.Context, apiKey, secret string) (*models.Partner, error)
	Provision(ctx context.Context, name string, currency enums.Currency) (*partnertx.ProvisionResult, error)
}

type riskService interface {
	controllers.RiskAssessor
	controllers.ActivityReader
}

type walletService interface {
	controllers.WalletReader
	controllers.WalletAdmin
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	store RequestStore,
	metricsHandler http.Handler,
	walletSvc walletService,
	walletChecker controllers.WalletChecker,
	ledgerSvc ledger.Service,
	withdrawalSvc withdrawals.Service,
	risk riskService,
	partners partnerAccess,
	partnerCharger controllers.PartnerCharger,
	partnerTxSvc partnertx.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	withdrawalPolicy := middleware.NewRateLimitPolicy(
		"withdrawals",
		cfg.RateLimit.WithdrawalWindow,
		cfg.RateLimit.WithdrawalLimit,
	)
	partnerPolicy := middleware.NewRateLimitPolicy(
		"partner",
		cfg.RateLimit.PartnerWindow,
		cfg.RateLimit.PartnerLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, store))
	})
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/disbursement", webhookcontrollers.DisbursementWebhook(withdrawalSvc, cfg.Gateway.WebhookSecret, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(store, logg))

		r.Route("/wallets", func(r chi.Router) {
			r.Post("/", controllers.WalletOpen(walletSvc, logg))
			r.Get("/me", controllers.WalletMe(walletSvc, logg))
			r.Get("/me/entries", controllers.WalletEntries(walletSvc, ledgerSvc, logg))
		})
		r.Route("/withdrawals", func(r chi.Router) {
			r.With(middleware.RateLimit(withdrawalPolicy, store, logg)).Post("/", controllers.WithdrawalCreate(withdrawalSvc, walletSvc, risk, logg))
			r.Get("/{withdrawalId}", controllers.WithdrawalDetail(withdrawalSvc, walletSvc, logg))
		})
	})

	r.Route("/api/partner/v1", func(r chi.Router) {
		r.Use(middleware.PartnerAuth(partners, logg))
		r.Use(middleware.RateLimit(partnerPolicy, store, logg))
		r.Post("/transactions", controllers.PartnerTransactionCreate(partnerCharger, logg))
		r.Get("/transactions/{refId}", controllers.PartnerTransactionDetail(partnerTxSvc, logg))
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(enums.MemberRoleAdmin, logg))
		r.Use(middleware.Idempotency(store, logg))
		r.Get("/withdrawals/stuck", controllers.AdminStuckWithdrawals(withdrawalSvc, logg))
		r.Get("/withdrawals/{withdrawalId}/audit", controllers.AdminWithdrawalAudit(withdrawalSvc, ledgerSvc, logg))
		r.Get("/suspicious-activity", controllers.AdminSuspiciousActivity(risk, logg))
		r.Route("/wallets/{walletId}", func(r chi.Router) {
			r.Post("/freeze", controllers.AdminFreezeWallet(walletSvc, logg))
			r.Post("/unfreeze", controllers.AdminUnfreezeWallet(walletSvc, logg))
			r.Post("/reconcile", controllers.AdminReconcileWallet(walletChecker, logg))
		})
		r.Post("/partners", controllers.AdminProvisionPartner(partners, logg))
	})

	return r
}
