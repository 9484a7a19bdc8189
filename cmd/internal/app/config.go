package app

import (
	"strings"
	"time"

	"pairgate/cmd/internal/broadcast"
	"pairgate/cmd/internal/linkapi"
	"pairgate/cmd/internal/pairing"
)

// Credential backends accepted by PAIRGATE_CRED_STORE.
const (
	CredStoreMemory   = "memory"
	CredStoreFile     = "file"
	CredStorePostgres = "postgres"
	CredStoreRedis    = "redis"
)

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	ShutdownTimeout   time.Duration

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// If true:
	// - /readyz returns 503 unless DB is configured and reachable.
	ReadinessRequireDB bool

	CredStore     string
	CredDir       string
	CredSchema    string
	CredSealKey   string
	RequireSealed bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	LinkWindow       time.Duration
	SettleInterval   time.Duration
	VersionURL       string
	VersionTimeout   time.Duration
	CodeTimeout      time.Duration
	DeliveryTimeout  time.Duration
	Browser          string
	NotifyRegistered bool

	ProtocolDriver string
	SimQRInterval  time.Duration
	SimLinkAfter   time.Duration

	// Link is the JSON API; Link.StreamPath is also where Stream is mounted.
	Link   linkapi.Config
	Stream broadcast.GatewayConfig
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("PAIRGATE_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("PAIRGATE_LOG_LEVEL", "info"),
		LogFormat: EnvString("PAIRGATE_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("PAIRGATE_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("PAIRGATE_HTTP_READ_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("PAIRGATE_HTTP_IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    EnvInt("PAIRGATE_HTTP_MAX_HEADER_BYTES", 1<<20),
		ShutdownTimeout:   EnvDuration("PAIRGATE_SHUTDOWN_TIMEOUT", 10*time.Second),

		DatabaseURL: EnvString("PAIRGATE_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("PAIRGATE_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("PAIRGATE_DB_MIN_CONNS", 0),

		ReadinessRequireDB: EnvBool("PAIRGATE_READINESS_REQUIRE_DB", false),

		CredStore:     strings.ToLower(EnvString("PAIRGATE_CRED_STORE", CredStoreMemory)),
		CredDir:       EnvString("PAIRGATE_CRED_DIR", "temp"),
		CredSchema:    EnvString("PAIRGATE_CRED_SCHEMA", "pairgate"),
		CredSealKey:   EnvString("PAIRGATE_CRED_SEAL_KEY", ""),
		RequireSealed: EnvBool("PAIRGATE_REQUIRE_SEALED_CREDS", false),

		RedisAddr:     EnvString("PAIRGATE_REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: EnvString("PAIRGATE_REDIS_PASSWORD", ""),
		RedisDB:       EnvIntAllowZero("PAIRGATE_REDIS_DB", 0),

		LinkWindow:       EnvDuration("PAIRGATE_LINK_WINDOW", pairing.DefaultWindow),
		SettleInterval:   EnvDuration("PAIRGATE_SETTLE_INTERVAL", pairing.DefaultSettleInterval),
		VersionURL:       EnvString("PAIRGATE_VERSION_URL", ""),
		VersionTimeout:   EnvDuration("PAIRGATE_VERSION_TIMEOUT", pairing.DefaultVersionTimeout),
		CodeTimeout:      EnvDuration("PAIRGATE_CODE_TIMEOUT", pairing.DefaultCodeTimeout),
		DeliveryTimeout:  EnvDuration("PAIRGATE_DELIVERY_TIMEOUT", pairing.DefaultDeliveryTimeout),
		Browser:          EnvString("PAIRGATE_BROWSER", ""),
		NotifyRegistered: EnvBool("PAIRGATE_NOTIFY_REGISTERED", true),

		ProtocolDriver: EnvString("PAIRGATE_PROTOCOL_DRIVER", "sim"),
		SimQRInterval:  EnvDuration("PAIRGATE_SIM_QR_INTERVAL", 20*time.Second),
		SimLinkAfter:   EnvDuration("PAIRGATE_SIM_LINK_AFTER", 0),

		Link: linkapi.Config{
			MaxBodyBytes:   EnvInt64("PAIRGATE_LINK_MAX_BODY_BYTES", linkapi.DefaultMaxBodyBytes),
			StreamPath:     EnvString("PAIRGATE_LINK_STREAM_PATH", linkapi.DefaultStreamPath),
			LegacyGenerate: EnvBool("PAIRGATE_LINK_LEGACY_GENERATE", true),
		},
		Stream: broadcast.GatewayConfig{
			DevInsecure:    EnvBool("PAIRGATE_WS_DEV_INSECURE", false),
			OriginRequired: EnvBool("PAIRGATE_WS_ORIGIN_REQUIRED", true),
			AllowedOrigins: EnvCSV("PAIRGATE_WS_ALLOWED_ORIGINS", broadcast.DefaultAllowedOrigins),
			WriteTimeout:   EnvDuration("PAIRGATE_WS_WRITE_TIMEOUT", broadcast.DefaultWriteTimeout),
			HeartbeatEvery: EnvDuration("PAIRGATE_WS_HEARTBEAT_INTERVAL", broadcast.DefaultHeartbeatInterval),
			QueueSize:      EnvInt("PAIRGATE_WS_SEND_QUEUE", broadcast.DefaultQueueSize),
		},
	}
}
