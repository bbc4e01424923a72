package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/shipwallet-backend/api/routes"
	"github.com/angelmondragon/shipwallet-backend/internal/fraud"
	"github.com/angelmondragon/shipwallet-backend/internal/ledger"
	"github.com/angelmondragon/shipwallet-backend/internal/partnertx"
	"github.com/angelmondragon/shipwallet-backend/internal/wallet"
	"github.com/angelmondragon/shipwallet-backend/internal/withdrawals"
	"github.com/angelmondragon/shipwallet-backend/pkg/config"
	"github.com/angelmondragon/shipwallet-backend/pkg/db"
	"github.com/angelmondragon/shipwallet-backend/pkg/disbursement"
	"github.com/angelmondragon/shipwallet-backend/pkg/enums"
	"github.com/angelmondragon/shipwallet-backend/pkg/instance"
	"github.com/angelmondragon/shipwallet-backend/pkg/logger"
	"github.com/angelmondragon/shipwallet-backend/pkg/metrics"
	"github.com/angelmondragon/shipwallet-backend/pkg/migrate"
	"github.com/angelmondragon/shipwallet-backend/pkg/outbox"
	"github.com/angelmondragon/shipwallet-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	ledgerMetrics := metrics.NewLedgerMetrics(prometheus.DefaultRegisterer)
	emitter := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	walletRepo := wallet.NewRepository(dbClient.DB())
	entryRepo := ledger.NewRepository(dbClient.DB())

	guard, err := wallet.NewGuard(wallet.GuardParams{
		DB:      dbClient.DB(),
		Wallets: walletRepo,
		Entries: entryRepo,
		Metrics: ledgerMetrics,
		Logger:  logg,
	})
	requireService(logg, "balance guard", err)

	walletService, err := wallet.NewService(wallet.ServiceParams{
		DB:              dbClient.DB(),
		Repo:            walletRepo,
		Guard:           guard,
		Outbox:          emitter,
		Metrics:         ledgerMetrics,
		Logger:          logg,
		DefaultCurrency: enums.Currency(cfg.Wallet.DefaultCurrency),
	})
	requireService(logg, "wallet service", err)

	reconciler, err := wallet.NewReconciler(wallet.ReconcilerParams{
		DB:        dbClient.DB(),
		Wallets:   walletRepo,
		Entries:   entryRepo,
		Service:   walletService,
		Outbox:    emitter,
		Metrics:   ledgerMetrics,
		Logger:    logg,
		BatchSize: cfg.Wallet.ReconcileBatchSize,
	})
	requireService(logg, "wallet reconciler", err)

	ledgerService, err := ledger.NewService(entryRepo)
	requireService(logg, "ledger service", err)

	fraudService, err := fraud.NewService(fraud.ServiceParams{
		DB:        dbClient.DB(),
		Repo:      fraud.NewRepository(dbClient.DB()),
		Locations: redisClient,
		Outbox:    emitter,
		Config:    cfg.Fraud,
		Metrics:   ledgerMetrics,
		Logger:    logg,
	})
	requireService(logg, "fraud service", err)

	partnerRepo := partnertx.NewRepository(dbClient.DB())
	partnerTxService, err := partnertx.NewService(partnertx.ServiceParams{
		DB:     dbClient.DB(),
		Repo:   partnerRepo,
		Outbox: emitter,
		Logger: logg,
	})
	requireService(logg, "partner transaction service", err)

	partnerAuth, err := partnertx.NewAuthenticator(partnerRepo, walletService, cfg.SecretHash)
	requireService(logg, "partner authenticator", err)

	charger, err := partnertx.NewCharger(partnerTxService, guard, fraudService)
	requireService(logg, "partner charger", err)

	gateway, err := disbursement.NewClient(cfg.Gateway, disbursement.WithLogger(logg))
	requireService(logg, "disbursement client", err)

	withdrawalService, err := withdrawals.NewService(withdrawals.ServiceParams{
		DB:             dbClient.DB(),
		Repo:           withdrawals.NewRepository(dbClient.DB()),
		Wallets:        walletService,
		Guard:          guard,
		Gateway:        gateway,
		Outbox:         emitter,
		Config:         cfg.Withdrawal,
		GatewayTimeout: cfg.Gateway.Timeout,
		Metrics:        ledgerMetrics,
		Logger:         logg,
	})
	requireService(logg, "withdrawal service", err)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			promhttp.Handler(),
			walletService,
			reconciler,
			ledgerService,
			withdrawalService,
			fraudService,
			partnerAuth,
			charger,
			partnerTxService,
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
		logg.Info(ctx, "api server stopped")
	}
}

func requireService(logg *logger.Logger, name string, err error) {
	if err == nil {
		return
	}
	logg.Error(context.Background(), "failed to create "+name, err)
	os.Exit(1)
}
