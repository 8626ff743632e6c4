package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "HOMESERVE"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv      = "HOMESERVE_APP_ENV"
	EnvPort        = "HOMESERVE_APP_PORT"
	EnvDBDSN       = "HOMESERVE_DB_DSN"
	EnvDBHost      = "HOMESERVE_DB_HOST"
	EnvDBUser      = "HOMESERVE_DB_USER"
	EnvDBName      = "HOMESERVE_DB_NAME"
	EnvRedisURL    = "HOMESERVE_REDIS_URL"
	EnvJWTSecret   = "HOMESERVE_JWT_SECRET"
	EnvJWTIssuer   = "HOMESERVE_JWT_ISSUER"
	EnvJWTExpMins  = "HOMESERVE_JWT_EXPIRATION_MINUTES"
	EnvBusURL      = "HOMESERVE_BUS_URL"
	EnvBusExchange = "HOMESERVE_BUS_EXCHANGE"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Bus          BusConfig
	Gateway      GatewayConfig
	Scheduler    SchedulerConfig
	Billing      BillingConfig
	Payments     PaymentsConfig
	RateLimit    RateLimitConfig
	API          APIConfig
	Eventing     EventingConfig
	Outbox       OutboxConfig
	FeatureFlags FeatureFlagsConfig
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
	Env          string `envconfig:"HOMESERVE_APP_ENV" required:"true"`
	Port         string `envconfig:"HOMESERVE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"HOMESERVE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"HOMESERVE_LOG_WARN_STACK" default:"false"`
	InstanceID   string `envconfig:"HOMESERVE_INSTANCE_ID"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"HOMESERVE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"HOMESERVE_DB_DSN"`
	Driver string `envconfig:"HOMESERVE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"HOMESERVE_DB_HOST"`
	LegacyPort     int    `envconfig:"HOMESERVE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"HOMESERVE_DB_USER"`
	LegacyPassword string `envconfig:"HOMESERVE_DB_PASSWORD"`
	LegacyName     string `envconfig:"HOMESERVE_DB_NAME"`
	LegacySSLMode  string `envconfig:"HOMESERVE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"HOMESERVE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"HOMESERVE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"HOMESERVE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"HOMESERVE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"HOMESERVE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"HOMESERVE_REDIS_ADDR"`
	Password     string        `envconfig:"HOMESERVE_REDIS_PASSWORD"`
	DB           int           `envconfig:"HOMESERVE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"HOMESERVE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"HOMESERVE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"HOMESERVE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"HOMESERVE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"HOMESERVE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret                 string        `envconfig:"HOMESERVE_JWT_SECRET" required:"true"`
	Issuer                 string        `envconfig:"HOMESERVE_JWT_ISSUER" required:"true"`
	ExpirationMinutes      int           `envconfig:"HOMESERVE_JWT_EXPIRATION_MINUTES" required:"true"`
	RefreshTokenTTLMinutes int           `envconfig:"HOMESERVE_REFRESH_TOKEN_TTL_MINUTES" default:"43200"`
	RealtimeTicketTTL      time.Duration `envconfig:"HOMESERVE_REALTIME_TICKET_TTL" default:"12h"`
}

// RefreshTokenTTL returns the refresh token TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

type BusConfig struct {
	URL              string        `envconfig:"HOMESERVE_BUS_URL" required:"true"`
	Exchange         string        `envconfig:"HOMESERVE_BUS_EXCHANGE" default:"homeserve.events"`
	BookingQueue     string        `envconfig:"HOMESERVE_BUS_BOOKING_QUEUE" default:"booking-service"`
	PartnerQueue     string        `envconfig:"HOMESERVE_BUS_PARTNER_QUEUE" default:"partner-service"`
	GatewayQueue     string        `envconfig:"HOMESERVE_BUS_GATEWAY_QUEUE" default:"gateway"`
	Prefetch         int           `envconfig:"HOMESERVE_BUS_PREFETCH" default:"20"`
	PublishTimeout   time.Duration `envconfig:"HOMESERVE_BUS_PUBLISH_TIMEOUT" default:"10s"`
	ReconnectBackoff time.Duration `envconfig:"HOMESERVE_BUS_RECONNECT_BACKOFF" default:"2s"`
}

type GatewayConfig struct {
	Port            string        `envconfig:"HOMESERVE_GATEWAY_PORT" default:"8090"`
	PingInterval    time.Duration `envconfig:"HOMESERVE_GATEWAY_PING_INTERVAL" default:"20s"`
	EvictInterval   time.Duration `envconfig:"HOMESERVE_GATEWAY_EVICT_INTERVAL" default:"30s"`
	MaxMissedPings  int           `envconfig:"HOMESERVE_GATEWAY_MAX_MISSED_PINGS" default:"3"`
	WriteTimeout    time.Duration `envconfig:"HOMESERVE_GATEWAY_WRITE_TIMEOUT" default:"10s"`
	SendBuffer      int           `envconfig:"HOMESERVE_GATEWAY_SEND_BUFFER" default:"64"`
	MaxMessageBytes int64         `envconfig:"HOMESERVE_GATEWAY_MAX_MESSAGE_BYTES" default:"65536"`
	OfflineTTL      time.Duration `envconfig:"HOMESERVE_GATEWAY_OFFLINE_TTL" default:"24h"`
	OfflineMax      int64         `envconfig:"HOMESERVE_GATEWAY_OFFLINE_MAX" default:"100"`
	PresenceTTL     time.Duration `envconfig:"HOMESERVE_GATEWAY_PRESENCE_TTL" default:"2h"`
	AllowedOrigins  []string      `envconfig:"HOMESERVE_GATEWAY_ALLOWED_ORIGINS"`
}

type SchedulerConfig struct {
	PromotionInterval  time.Duration `envconfig:"HOMESERVE_SCHEDULER_PROMOTION_INTERVAL" default:"5m"`
	PromotionLookahead time.Duration `envconfig:"HOMESERVE_SCHEDULER_PROMOTION_LOOKAHEAD" default:"60m"`
	RecurringInterval  time.Duration `envconfig:"HOMESERVE_SCHEDULER_RECURRING_INTERVAL" default:"1h"`
	BatchSize          int           `envconfig:"HOMESERVE_SCHEDULER_BATCH_SIZE" default:"200"`
}

type BillingConfig struct {
	OverageRatePerMinute int64  `envconfig:"HOMESERVE_BILLING_OVERAGE_RATE_PER_MINUTE" default:"3"`
	Currency             string `envconfig:"HOMESERVE_BILLING_CURRENCY" default:"INR"`
}

type PaymentsConfig struct {
	WebhookSecret  string        `envconfig:"HOMESERVE_PAYMENTS_WEBHOOK_SECRET"`
	IdempotencyTTL time.Duration `envconfig:"HOMESERVE_PAYMENTS_IDEMPOTENCY_TTL" default:"168h"`
}

type RateLimitConfig struct {
	TicketWindow   time.Duration `envconfig:"HOMESERVE_RATE_LIMIT_TICKET_WINDOW" default:"1m"`
	TicketLimit    int           `envconfig:"HOMESERVE_RATE_LIMIT_TICKET_LIMIT" default:"10"`
	WebhookWindow  time.Duration `envconfig:"HOMESERVE_RATE_LIMIT_WEBHOOK_WINDOW" default:"1m"`
	WebhookIPLimit int           `envconfig:"HOMESERVE_RATE_LIMIT_WEBHOOK_IP_LIMIT" default:"600"`
}

type APIConfig struct {
	AllowedOrigins []string `envconfig:"HOMESERVE_API_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

type EventingConfig struct {
	IdempotencyTTL time.Duration `envconfig:"HOMESERVE_EVENTING_IDEMPOTENCY_TTL" default:"72h"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"HOMESERVE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"HOMESERVE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"HOMESERVE_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"HOMESERVE_AUTO_MIGRATE" default:"false"`
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
