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
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Stripe       StripeConfig
	Crypto       CryptoConfig
	Quote        QuoteConfig
	Webhooks     WebhooksConfig
	Outbox       OutboxConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Kafka        KafkaConfig
	Cron         CronConfig
	Tracing      TracingConfig
	RateLimit    RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if !cfg.FeatureFlags.UseSQLite {
		if err := cfg.DB.ensureDSN(); err != nil {
			return nil, err
		}
	}
	if err := cfg.Eventing.validate(); err != nil {
		return nil, err
	}
	if _, err := cfg.Quote.ShippingMethods(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env           string `envconfig:"STOREFRONT_APP_ENV" required:"true"`
	Port          string `envconfig:"STOREFRONT_APP_PORT" required:"true"`
	PublicBaseURL string `envconfig:"STOREFRONT_PUBLIC_BASE_URL" default:"http://localhost:8080"`
	LogLevel      string `envconfig:"STOREFRONT_LOG_LEVEL" default:"info"`
	LogWarnStack  bool   `envconfig:"STOREFRONT_LOG_WARN_STACK" default:"false"`

	// CORSAllowedOrigins is a comma separated list of browser origins.
	CORSAllowedOrigins []string `envconfig:"STOREFRONT_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN        string `envconfig:"STOREFRONT_DB_DSN"`
	SQLitePath string `envconfig:"STOREFRONT_DB_SQLITE_PATH" default:"file:storefront.db?cache=shared"`

	LegacyHost     string `envconfig:"STOREFRONT_DB_HOST"`
	LegacyPort     int    `envconfig:"STOREFRONT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"STOREFRONT_DB_USER"`
	LegacyPassword string `envconfig:"STOREFRONT_DB_PASSWORD"`
	LegacyName     string `envconfig:"STOREFRONT_DB_NAME"`
	LegacySSLMode  string `envconfig:"STOREFRONT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STOREFRONT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STOREFRONT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"STOREFRONT_REDIS_URL" required:"true"`
	PoolSize     int           `envconfig:"STOREFRONT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOREFRONT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOREFRONT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret    string        `envconfig:"STOREFRONT_JWT_SECRET" required:"true"`
	Issuer    string        `envconfig:"STOREFRONT_JWT_ISSUER" required:"true"`
	AccessTTL time.Duration `envconfig:"STOREFRONT_JWT_ACCESS_TTL" default:"1h"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"STOREFRONT_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"STOREFRONT_AUTO_MIGRATE" default:"false"`
}

type StripeConfig struct {
	APIKey string `envconfig:"STOREFRONT_STRIPE_API_KEY"`
	Secret string `envconfig:"STOREFRONT_STRIPE_WEBHOOK_SECRET"`
	Env    string `envconfig:"STOREFRONT_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

// CryptoConfig configures the NOWPayments-compatible invoice rail.
type CryptoConfig struct {
	APIKey      string        `envconfig:"STOREFRONT_CRYPTO_API_KEY"`
	IPNSecret   string        `envconfig:"STOREFRONT_CRYPTO_IPN_SECRET"`
	BaseURL     string        `envconfig:"STOREFRONT_CRYPTO_BASE_URL" default:"https://api.nowpayments.io"`
	PayCurrency string        `envconfig:"STOREFRONT_CRYPTO_PAY_CURRENCY" default:"btc"`
	Timeout     time.Duration `envconfig:"STOREFRONT_CRYPTO_TIMEOUT" default:"10s"`
}

type QuoteConfig struct {
	Currency                   string `envconfig:"STOREFRONT_QUOTE_CURRENCY" default:"usd"`
	TaxRate                    string `envconfig:"STOREFRONT_QUOTE_TAX_RATE" default:"0"`
	DefaultMethod              string `envconfig:"STOREFRONT_QUOTE_DEFAULT_METHOD" default:"standard"`
	Methods                    string `envconfig:"STOREFRONT_QUOTE_SHIPPING_METHODS" default:"standard:800,express:2500"`
	FreeShippingThresholdCents int    `envconfig:"STOREFRONT_QUOTE_FREE_SHIPPING_THRESHOLD_CENTS" default:"0"`
}

// ShippingMethods parses the "name:cents,name:cents" method table.
func (q QuoteConfig) ShippingMethods() (map[string]int, error) {
	methods := map[string]int{}
	for _, raw := range strings.Split(q.Methods, ",") {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}
		name, cents, ok := strings.Cut(entry, ":")
		if !ok {
			return nil, fmt.Errorf("shipping method %q must be name:cents", entry)
		}
		var value int
		if _, err := fmt.Sscanf(strings.TrimSpace(cents), "%d", &value); err != nil || value < 0 {
			return nil, fmt.Errorf("shipping method %q has invalid cost", entry)
		}
		methods[strings.ToLower(strings.TrimSpace(name))] = value
	}
	if len(methods) == 0 {
		return nil, fmt.Errorf("at least one shipping method is required")
	}
	if _, ok := methods[strings.ToLower(q.DefaultMethod)]; !ok {
		return nil, fmt.Errorf("default shipping method %q is not configured", q.DefaultMethod)
	}
	return methods, nil
}

// RateLimitConfig throttles checkout. A zero limit disables that dimension.
type RateLimitConfig struct {
	CheckoutWindow    time.Duration `envconfig:"STOREFRONT_RATE_LIMIT_CHECKOUT_WINDOW" default:"1m"`
	CheckoutIPLimit   int           `envconfig:"STOREFRONT_RATE_LIMIT_CHECKOUT_IP" default:"30"`
	CheckoutUserLimit int           `envconfig:"STOREFRONT_RATE_LIMIT_CHECKOUT_USER" default:"10"`
}

type WebhooksConfig struct {
	DedupeTTL time.Duration `envconfig:"STOREFRONT_WEBHOOK_DEDUPE_TTL" default:"168h"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"STOREFRONT_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"STOREFRONT_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"STOREFRONT_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type EventingConfig struct {
	Broker string `envconfig:"STOREFRONT_EVENTING_BROKER" default:"pubsub"`
	Topic  string `envconfig:"STOREFRONT_EVENTING_TOPIC" default:"storefront-order-events"`
}

func (e EventingConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(e.Broker)) {
	case BrokerPubSub, BrokerKafka:
		return nil
	default:
		return fmt.Errorf("eventing broker must be %q or %q", BrokerPubSub, BrokerKafka)
	}
}

type GCPConfig struct {
	ProjectID string `envconfig:"STOREFRONT_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	PublishTimeout time.Duration `envconfig:"STOREFRONT_PUBSUB_PUBLISH_TIMEOUT" default:"15s"`
}

type KafkaConfig struct {
	Brokers  []string `envconfig:"STOREFRONT_KAFKA_BROKERS" default:"localhost:9092"`
	ClientID string   `envconfig:"STOREFRONT_KAFKA_CLIENT_ID" default:"storefront-outbox"`
}

type CronConfig struct {
	Interval        time.Duration `envconfig:"STOREFRONT_CRON_INTERVAL" default:"15m"`
	LockTTL         time.Duration `envconfig:"STOREFRONT_CRON_LOCK_TTL" default:"10m"`
	DriftJobEnabled bool          `envconfig:"STOREFRONT_CRON_DRIFT_JOB_ENABLED" default:"true"`
	DriftGrace      time.Duration `envconfig:"STOREFRONT_CRON_DRIFT_GRACE" default:"5m"`
}

type TracingConfig struct {
	Enabled     bool    `envconfig:"STOREFRONT_TRACING_ENABLED" default:"false"`
	Endpoint    string  `envconfig:"STOREFRONT_TRACING_OTLP_ENDPOINT" default:"localhost:4318"`
	URLPath     string  `envconfig:"STOREFRONT_TRACING_OTLP_PATH" default:"/v1/traces"`
	AuthHeader  string  `envconfig:"STOREFRONT_TRACING_AUTH_HEADER"`
	Insecure    bool    `envconfig:"STOREFRONT_TRACING_INSECURE" default:"true"`
	SampleRatio float64 `envconfig:"STOREFRONT_TRACING_SAMPLE_RATIO" default:"1"`
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
