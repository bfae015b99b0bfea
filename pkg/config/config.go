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
	Payments     PaymentsConfig
	Stripe       StripeConfig
	Square       SquareConfig
	Security     SecurityConfig
	SPA          SPAConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Reconcile    ReconcileConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"BOXOFFICE_APP_ENV" required:"true"`
	Port         string `envconfig:"BOXOFFICE_APP_PORT" required:"true"`
	BaseURL      string `envconfig:"BOXOFFICE_APP_BASE_URL" default:"http://localhost:8080"`
	LogLevel     string `envconfig:"BOXOFFICE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"BOXOFFICE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"BOXOFFICE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"BOXOFFICE_DB_DSN"`
	Driver string `envconfig:"BOXOFFICE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"BOXOFFICE_DB_HOST"`
	LegacyPort     int    `envconfig:"BOXOFFICE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"BOXOFFICE_DB_USER"`
	LegacyPassword string `envconfig:"BOXOFFICE_DB_PASSWORD"`
	LegacyName     string `envconfig:"BOXOFFICE_DB_NAME"`
	LegacySSLMode  string `envconfig:"BOXOFFICE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"BOXOFFICE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"BOXOFFICE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"BOXOFFICE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"BOXOFFICE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// IsSQLite reports whether the configured driver targets the embedded sqlite engine.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"BOXOFFICE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"BOXOFFICE_REDIS_ADDR"`
	Password     string        `envconfig:"BOXOFFICE_REDIS_PASSWORD"`
	DB           int           `envconfig:"BOXOFFICE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"BOXOFFICE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"BOXOFFICE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"BOXOFFICE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"BOXOFFICE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"BOXOFFICE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// PaymentsConfig controls the transaction orchestrator.
type PaymentsConfig struct {
	ProviderTimeout    time.Duration `envconfig:"BOXOFFICE_PAYMENTS_PROVIDER_TIMEOUT" default:"10s"`
	InitClaimTTL       time.Duration `envconfig:"BOXOFFICE_PAYMENTS_INIT_CLAIM_TTL" default:"30s"`
	StatusCacheTTL     time.Duration `envconfig:"BOXOFFICE_PAYMENTS_STATUS_CACHE_TTL" default:"5s"`
	WebhookEventTTL    time.Duration `envconfig:"BOXOFFICE_PAYMENTS_WEBHOOK_EVENT_TTL" default:"24h"`
	EnabledMethods     []string      `envconfig:"BOXOFFICE_PAYMENTS_ENABLED_METHODS" default:"CREDIT_CARD,BANK_TRANSFER,ON_SITE,EXTERNAL"`
	DefaultCurrency    string        `envconfig:"BOXOFFICE_PAYMENTS_DEFAULT_CURRENCY" default:"USD"`
	BankTransferIBAN   string        `envconfig:"BOXOFFICE_PAYMENTS_BANK_TRANSFER_IBAN"`
	BankTransferHolder string        `envconfig:"BOXOFFICE_PAYMENTS_BANK_TRANSFER_HOLDER"`
}

type StripeConfig struct {
	APIKey string `envconfig:"BOXOFFICE_STRIPE_API_KEY"`
	Secret string `envconfig:"BOXOFFICE_STRIPE_SECRET"`
	Env    string `envconfig:"BOXOFFICE_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

// Enabled reports whether Stripe credentials were supplied.
func (s StripeConfig) Enabled() bool {
	return strings.TrimSpace(s.APIKey) != ""
}

type SquareConfig struct {
	AccessToken   string `envconfig:"BOXOFFICE_SQUARE_ACCESS_TOKEN"`
	WebhookSecret string `envconfig:"BOXOFFICE_SQUARE_WEBHOOK_SECRET"`
	LocationID    string `envconfig:"BOXOFFICE_SQUARE_LOCATION_ID"`
	Env           string `envconfig:"BOXOFFICE_SQUARE_ENV" default:"sandbox"`
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

// Enabled reports whether Square credentials were supplied.
func (s SquareConfig) Enabled() bool {
	return strings.TrimSpace(s.AccessToken) != ""
}

// SecurityConfig drives the content security policy sent with the SPA shell.
type SecurityConfig struct {
	CSPReportURI       string   `envconfig:"BOXOFFICE_SECURITY_CSP_REPORT_URI" default:"/report-csp-violation"`
	CSPReportEnabled   bool     `envconfig:"BOXOFFICE_SECURITY_CSP_REPORT_ENABLED" default:"true"`
	EmbedAllowed       bool     `envconfig:"BOXOFFICE_SECURITY_EMBED_ALLOWED" default:"false"`
	EmbedOrigins       []string `envconfig:"BOXOFFICE_SECURITY_EMBED_ORIGINS"`
	CORSAllowedOrigins []string `envconfig:"BOXOFFICE_SECURITY_CORS_ORIGINS" default:"http://localhost:3000"`
}

type SPAConfig struct {
	IndexPath string `envconfig:"BOXOFFICE_SPA_INDEX_PATH" default:"web/index.html"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"BOXOFFICE_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"BOXOFFICE_AUTO_MIGRATE" default:"false"`
	LocalClaims bool `envconfig:"BOXOFFICE_LOCAL_CLAIMS" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"BOXOFFICE_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"BOXOFFICE_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"BOXOFFICE_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	ReservationsTopic string `envconfig:"BOXOFFICE_PUBSUB_RESERVATIONS_TOPIC" default:"boxoffice-reservation-events"`
	PaymentsTopic     string `envconfig:"BOXOFFICE_PUBSUB_PAYMENTS_TOPIC" default:"boxoffice-payment-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"BOXOFFICE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"BOXOFFICE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"BOXOFFICE_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"BOXOFFICE_OUTBOX_RETENTION_DAYS" default:"30"`
}

// ReconcileConfig tunes the worker that re-checks payments still awaiting provider confirmation.
type ReconcileConfig struct {
	Interval  time.Duration `envconfig:"BOXOFFICE_RECONCILE_INTERVAL" default:"5m"`
	StaleAge  time.Duration `envconfig:"BOXOFFICE_RECONCILE_STALE_AGE" default:"10m"`
	BatchSize int           `envconfig:"BOXOFFICE_RECONCILE_BATCH_SIZE" default:"100"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if useSQLite && db.DSN == "" {
		db.Driver = DriverSQLite
		db.DSN = defaultSQLiteDSN
		return nil
	}
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
