package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/shipwallet-backend/internal/cron"
	"github.com/angelmondragon/shipwallet-backend/internal/ledger"
	"github.com/angelmondragon/shipwallet-backend/internal/wallet"
	"github.com/angelmondragon/shipwallet-backend/internal/withdrawals"
	"github.com/angelmondragon/shipwallet-backend/pkg/config"
	"github.com/angelmondragon/shipwallet-backend/pkg/db"
	"github.com/angelmondragon/shipwallet-backend/pkg/disbursement"
	"github.com/angelmondragon/shipwallet-backend/pkg/enums"
	"github.com/angelmondragon/shipwallet-backend/pkg/idempotency"
	"github.com/angelmondragon/shipwallet-backend/pkg/instance"
	"github.com/angelmondragon/shipwallet-backend/pkg/logger"
	"github.com/angelmondragon/shipwallet-backend/pkg/metrics"
	"github.com/angelmondragon/shipwallet-backend/pkg/migrate"
	"github.com/angelmondragon/shipwallet-backend/pkg/outbox"
	"github.com/angelmondragon/shipwallet-backend/pkg/redis"
)

const (
	lockKeyFormat     = "sw:cron-worker:lock:%s"
	stuckRealertAfter = 24 * time.Hour
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
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

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	ledgerMetrics := metrics.NewLedgerMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	registry, err := buildRegistry(cfg, logg, dbClient, redisClient, ledgerMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to register cron jobs", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metricsCollector,
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}

func buildRegistry(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, ledgerMetrics *metrics.LedgerMetrics) (*cron.Registry, error) {
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
	if err != nil {
		return nil, err
	}
	walletService, err := wallet.NewService(wallet.ServiceParams{
		DB:              dbClient.DB(),
		Repo:            walletRepo,
		Guard:           guard,
		Outbox:          emitter,
		Metrics:         ledgerMetrics,
		Logger:          logg,
		DefaultCurrency: enums.Currency(cfg.Wallet.DefaultCurrency),
	})
	if err != nil {
		return nil, err
	}
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
	if err != nil {
		return nil, err
	}

	gateway, err := disbursement.NewClient(cfg.Gateway, disbursement.WithLogger(logg))
	if err != nil {
		return nil, err
	}
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
	if err != nil {
		return nil, err
	}

	reconcileJob, err := cron.NewWalletReconcileJob(cron.WalletReconcileJobParams{
		Logger:     logg,
		Reconciler: reconciler,
	})
	if err != nil {
		return nil, err
	}
	alertMarks, err := idempotency.NewManager(redisClient, stuckRealertAfter)
	if err != nil {
		return nil, err
	}
	stuckJob, err := cron.NewWithdrawalStuckJob(cron.WithdrawalStuckJobParams{
		Logger:      logg,
		DB:          dbClient,
		Withdrawals: withdrawalService,
		Outbox:      emitter,
		Alerts:      alertMarks,
		Metrics:     ledgerMetrics,
		StuckAfter:  cfg.Withdrawal.StuckAfter,
	})
	if err != nil {
		return nil, err
	}
	retryJob, err := cron.NewWithdrawalRetryJob(cron.WithdrawalRetryJobParams{
		Logger:      logg,
		Withdrawals: withdrawalService,
		RetryAfter:  cfg.Withdrawal.RetryAfter,
		BatchSize:   cfg.Withdrawal.RetryBatchSize,
	})
	if err != nil {
		return nil, err
	}
	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outbox.NewRepository(dbClient.DB()),
		Retention:  cfg.Outbox.RetentionDays,
	})
	if err != nil {
		return nil, err
	}

	return cron.NewRegistry(reconcileJob, stuckJob, retryJob, retentionJob), nil
}
