package config

// EnvPrefix is passed to envconfig; every field also carries its full variable name.
const EnvPrefix = "SHIPWALLET"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv    = "SHIPWALLET_APP_ENV"
	EnvPort      = "SHIPWALLET_APP_PORT"
	EnvLogLevel  = "SHIPWALLET_LOG_LEVEL"
	EnvDBDSN     = "SHIPWALLET_DB_DSN"
	EnvDBHost    = "SHIPWALLET_DB_HOST"
	EnvDBPort    = "SHIPWALLET_DB_PORT"
	EnvDBUser    = "SHIPWALLET_DB_USER"
	EnvDBPass    = "SHIPWALLET_DB_PASSWORD"
	EnvDBName    = "SHIPWALLET_DB_NAME"
	EnvRedisURL  = "SHIPWALLET_REDIS_URL"
	EnvJWTSecret = "SHIPWALLET_JWT_SECRET"
	EnvJWTIssuer = "SHIPWALLET_JWT_ISSUER"
	EnvJWTExpMin = "SHIPWALLET_JWT_EXPIRATION_MINUTES"

	EnvGatewayTimeout       = "SHIPWALLET_GATEWAY_TIMEOUT"
	EnvGatewayWebhookSecret = "SHIPWALLET_GATEWAY_WEBHOOK_SECRET"
	EnvFraudTolerance       = "SHIPWALLET_FRAUD_PRICE_TOLERANCE_MINOR"
	EnvWithdrawalStuckAfter = "SHIPWALLET_WITHDRAWAL_STUCK_AFTER"
	EnvPubSubAlertsTopic    = "SHIPWALLET_PUBSUB_ALERTS_TOPIC"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
