package config

// EnvPrefix is passed to envconfig; the explicit tags above already carry it.
const EnvPrefix = "BOXOFFICE"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	defaultSQLiteDSN = "file:boxoffice.db?cache=shared"
)

const (
	EnvAppEnv   = "BOXOFFICE_APP_ENV"
	EnvPort     = "BOXOFFICE_APP_PORT"
	EnvLogLevel = "BOXOFFICE_LOG_LEVEL"

	EnvDBDSN     = "BOXOFFICE_DB_DSN"
	EnvDBHost    = "BOXOFFICE_DB_HOST"
	EnvDBUser    = "BOXOFFICE_DB_USER"
	EnvDBName    = "BOXOFFICE_DB_NAME"
	EnvUseSQLite = "BOXOFFICE_USE_SQLITE"

	EnvRedisURL = "BOXOFFICE_REDIS_URL"

	EnvPaymentsProviderTimeout = "BOXOFFICE_PAYMENTS_PROVIDER_TIMEOUT"
	EnvPaymentsEnabledMethods  = "BOXOFFICE_PAYMENTS_ENABLED_METHODS"

	EnvStripeAPIKey      = "BOXOFFICE_STRIPE_API_KEY"
	EnvSquareAccessToken = "BOXOFFICE_SQUARE_ACCESS_TOKEN"

	EnvSecurityEmbedOrigins = "BOXOFFICE_SECURITY_EMBED_ORIGINS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
