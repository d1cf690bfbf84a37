package config

// EnvPrefix namespaces every variable read by Load.
const EnvPrefix = "STOREFRONT"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv        = "STOREFRONT_APP_ENV"
	EnvPort          = "STOREFRONT_APP_PORT"
	EnvPublicBaseURL = "STOREFRONT_PUBLIC_BASE_URL"
	EnvLogLevel      = "STOREFRONT_LOG_LEVEL"

	EnvDBDSN  = "STOREFRONT_DB_DSN"
	EnvDBHost = "STOREFRONT_DB_HOST"
	EnvDBUser = "STOREFRONT_DB_USER"
	EnvDBName = "STOREFRONT_DB_NAME"

	EnvRedisURL  = "STOREFRONT_REDIS_URL"
	EnvUseSQLite = "STOREFRONT_USE_SQLITE"

	EnvJWTSecret = "STOREFRONT_JWT_SECRET"
	EnvJWTIssuer = "STOREFRONT_JWT_ISSUER"

	EnvStripeAPIKey = "STOREFRONT_STRIPE_API_KEY"
	EnvStripeSecret = "STOREFRONT_STRIPE_WEBHOOK_SECRET"
	EnvStripeEnv    = "STOREFRONT_STRIPE_ENV"

	EnvCryptoAPIKey    = "STOREFRONT_CRYPTO_API_KEY"
	EnvCryptoIPNSecret = "STOREFRONT_CRYPTO_IPN_SECRET"

	EnvQuoteTaxRate = "STOREFRONT_QUOTE_TAX_RATE"

	EnvEventingBroker = "STOREFRONT_EVENTING_BROKER"
	EnvEventingTopic  = "STOREFRONT_EVENTING_TOPIC"
	EnvKafkaBrokers   = "STOREFRONT_KAFKA_BROKERS"
	EnvGCPProjectID   = "STOREFRONT_GCP_PROJECT_ID"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

const (
	BrokerPubSub = "pubsub"
	BrokerKafka  = "kafka"
)
