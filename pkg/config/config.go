package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	SecretHash   SecretHashConfig
	RateLimit    RateLimitConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	Wallet       WalletConfig
	Withdrawal   WithdrawalConfig
	Gateway      GatewayConfig
	Fraud        FraudConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"SHIPWALLET_APP_ENV" required:"true"`
	Port         string `envconfig:"SHIPWALLET_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"SHIPWALLET_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SHIPWALLET_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"SHIPWALLET_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"SHIPWALLET_DB_DSN"`
	Driver string `envconfig:"SHIPWALLET_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"SHIPWALLET_DB_HOST"`
	LegacyPort     int    `envconfig:"SHIPWALLET_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SHIPWALLET_DB_USER"`
	LegacyPassword string `envconfig:"SHIPWALLET_DB_PASSWORD"`
	LegacyName     string `envconfig:"SHIPWALLET_DB_NAME"`
	LegacySSLMode  string `envconfig:"SHIPWALLET_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SHIPWALLET_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SHIPWALLET_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SHIPWALLET_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SHIPWALLET_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SHIPWALLET_REDIS_URL" required:"true"`
	Address      string        `envconfig:"SHIPWALLET_REDIS_ADDR"`
	Password     string        `envconfig:"SHIPWALLET_REDIS_PASSWORD"`
	DB           int           `envconfig:"SHIPWALLET_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SHIPWALLET_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SHIPWALLET_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SHIPWALLET_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SHIPWALLET_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SHIPWALLET_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"SHIPWALLET_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"SHIPWALLET_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"SHIPWALLET_JWT_EXPIRATION_MINUTES" required:"true"`
}

// Expiration returns the access token lifetime.
func (j JWTConfig) Expiration() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

// SecretHashConfig tunes the Argon2id parameters used for partner API secrets.
type SecretHashConfig struct {
	ArgonMemoryKB    int `envconfig:"SHIPWALLET_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"SHIPWALLET_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"SHIPWALLET_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"SHIPWALLET_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"SHIPWALLET_ARGON_KEY_LEN" default:"32"`
}

type RateLimitConfig struct {
	PartnerWindow    time.Duration `envconfig:"SHIPWALLET_RATE_LIMIT_PARTNER_WINDOW" default:"1m"`
	PartnerLimit     int           `envconfig:"SHIPWALLET_RATE_LIMIT_PARTNER_LIMIT" default:"600"`
	WithdrawalWindow time.Duration `envconfig:"SHIPWALLET_RATE_LIMIT_WITHDRAWAL_WINDOW" default:"10m"`
	WithdrawalLimit  int           `envconfig:"SHIPWALLET_RATE_LIMIT_WITHDRAWAL_LIMIT" default:"5"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"SHIPWALLET_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	IdempotencyTTL time.Duration `envconfig:"SHIPWALLET_EVENTING_IDEMPOTENCY_TTL" default:"24h"`
}

type WalletConfig struct {
	DefaultCurrency    string `envconfig:"SHIPWALLET_WALLET_DEFAULT_CURRENCY" default:"IDR"`
	ReconcileBatchSize int    `envconfig:"SHIPWALLET_WALLET_RECONCILE_BATCH_SIZE" default:"500"`
}

type WithdrawalConfig struct {
	MinAmountMinor int64         `envconfig:"SHIPWALLET_WITHDRAWAL_MIN_AMOUNT_MINOR" default:"10000"`
	MaxAmountMinor int64         `envconfig:"SHIPWALLET_WITHDRAWAL_MAX_AMOUNT_MINOR" default:"0"`
	StuckAfter     time.Duration `envconfig:"SHIPWALLET_WITHDRAWAL_STUCK_AFTER" default:"24h"`
	RetryAfter     time.Duration `envconfig:"SHIPWALLET_WITHDRAWAL_RETRY_AFTER" default:"2m"`
	RetryBatchSize int           `envconfig:"SHIPWALLET_WITHDRAWAL_RETRY_BATCH_SIZE" default:"50"`
}

type GatewayConfig struct {
	BaseURL       string        `envconfig:"SHIPWALLET_GATEWAY_BASE_URL"`
	APIKey        string        `envconfig:"SHIPWALLET_GATEWAY_API_KEY"`
	WebhookSecret string        `envconfig:"SHIPWALLET_GATEWAY_WEBHOOK_SECRET"`
	Timeout       time.Duration `envconfig:"SHIPWALLET_GATEWAY_TIMEOUT" default:"10s"`
}

type FraudConfig struct {
	PriceToleranceMinor int64         `envconfig:"SHIPWALLET_FRAUD_PRICE_TOLERANCE_MINOR" default:"1000"`
	EnforceServerPrice  bool          `envconfig:"SHIPWALLET_FRAUD_ENFORCE_SERVER_PRICE" default:"true"`
	MaxSpeedKmh         float64       `envconfig:"SHIPWALLET_FRAUD_MAX_SPEED_KMH" default:"900"`
	MinDistanceKm       float64       `envconfig:"SHIPWALLET_FRAUD_MIN_DISTANCE_KM" default:"50"`
	LocationTTL         time.Duration `envconfig:"SHIPWALLET_FRAUD_LOCATION_TTL" default:"72h"`
	BlockScore          int           `envconfig:"SHIPWALLET_FRAUD_BLOCK_SCORE" default:"0"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"SHIPWALLET_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"SHIPWALLET_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"SHIPWALLET_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	SettlementTopic string `envconfig:"SHIPWALLET_PUBSUB_SETTLEMENT_TOPIC" default:"sw-settlement-events"`
	AlertsTopic     string `envconfig:"SHIPWALLET_PUBSUB_ALERTS_TOPIC" default:"sw-operator-alerts"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"SHIPWALLET_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"SHIPWALLET_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"SHIPWALLET_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"SHIPWALLET_OUTBOX_RETENTION_DAYS" default:"30"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"SHIPWALLET_CRON_INTERVAL" default:"5m"`
	LockTTL  time.Duration `envconfig:"SHIPWALLET_CRON_LOCK_TTL" default:"10m"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
