package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	AuthModeSigned = "signed"
	AuthModeHeader = "header"
	AuthModeOpen   = "open"
)

// DefaultKeySetURL publishes x509 certificates keyed by kid.
const DefaultKeySetURL = "https://www.googleapis.com/robot/v1/metadata/x509/securetoken@system.gserviceaccount.com"

const issuerPrefix = "https://securetoken.google.com/"

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
	Metrics   MetricsConfig
	Tracing   TracingConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	ReadBufferSize int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	// 0 keeps one goroutine per connection with no cap
	MaxConnections int
	// map application errors to 4xx instead of the legacy 200
	StrictStatus   bool
	HealthGRPCPort int
}

type DatabaseConfig struct {
	URL            string
	MaxConnections int
	MigrateOnStart bool
}

type AuthConfig struct {
	Mode               string
	ProjectID          string
	KeySetURL          string
	KeySetCacheTTL     time.Duration
	KeySetFetchTimeout time.Duration
	IdentityHeader     string
	OpenSubject        string
}

// Issuer is the iss value tokens for ProjectID must carry.
func (a AuthConfig) Issuer() string {
	return issuerPrefix + a.ProjectID
}

type RateLimitConfig struct {
	PerSecond float64
	Burst     int
}

type LoggingConfig struct {
	Level  string
	Format string
}

type MetricsConfig struct {
	Addr string
}

type TracingConfig struct {
	Enabled      bool
	Exporter     string
	ServiceName  string
	OTLPEndpoint string
	SampleRate   float64
}

// Load reads .env files (missing files are fine) and then the environment.
func Load(envFiles ...string) (Config, error) {
	_ = godotenv.Load(envFiles...)

	cfg := Config{
		Server: ServerConfig{
			Host:           getEnv("HOST", "0.0.0.0"),
			Port:           getEnvInt("PORT", 8080),
			ReadBufferSize: getEnvInt("READ_BUFFER_SIZE", 2048),
			ReadTimeout:    getEnvDuration("READ_TIMEOUT", 10*time.Second),
			WriteTimeout:   getEnvDuration("WRITE_TIMEOUT", 10*time.Second),
			MaxConnections: getEnvInt("MAX_CONNECTIONS", 0),
			StrictStatus:   getEnvBool("STRICT_STATUS", false),
			HealthGRPCPort: getEnvInt("HEALTH_GRPC_PORT", 0),
		},
		Database: databaseFromEnv(),
		Auth: AuthConfig{
			Mode:               strings.ToLower(getEnv("AUTH_MODE", AuthModeSigned)),
			ProjectID:          getEnv("FIREBASE_PROJECT_ID", ""),
			KeySetURL:          getEnv("KEYSET_URL", DefaultKeySetURL),
			KeySetCacheTTL:     getEnvDuration("KEYSET_CACHE_TTL", time.Hour),
			KeySetFetchTimeout: getEnvDuration("KEYSET_FETCH_TIMEOUT", 5*time.Second),
			IdentityHeader:     getEnv("IDENTITY_HEADER", "X-User-Id"),
			OpenSubject:        getEnv("OPEN_SUBJECT", "anonymous"),
		},
		RateLimit: RateLimitConfig{
			PerSecond: getEnvFloat("RATE_LIMIT_RPS", 0),
			Burst:     getEnvInt("RATE_LIMIT_BURST", 10),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Metrics: MetricsConfig{
			Addr: getEnv("METRICS_ADDR", ""),
		},
		Tracing: TracingConfig{
			Enabled:      getEnvBool("TRACING_ENABLED", false),
			Exporter:     getEnv("TRACING_EXPORTER", "stdout"),
			ServiceName:  getEnv("TRACING_SERVICE_NAME", "tonight-api"),
			OTLPEndpoint: getEnv("OTLP_ENDPOINT", "localhost:4317"),
			SampleRate:   getEnvFloat("TRACING_SAMPLE_RATE", 1.0),
		},
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadDatabase reads only the database settings, for commands that never
// serve requests.
func LoadDatabase(envFiles ...string) (DatabaseConfig, error) {
	_ = godotenv.Load(envFiles...)

	db := databaseFromEnv()
	if db.URL == "" {
		return DatabaseConfig{}, fmt.Errorf("DATABASE_URL is required")
	}
	return db, nil
}

func databaseFromEnv() DatabaseConfig {
	return DatabaseConfig{
		URL:            getEnv("DATABASE_URL", ""),
		MaxConnections: getEnvInt("DATABASE_MAX_CONNECTIONS", 10),
		MigrateOnStart: getEnvBool("MIGRATE_ON_START", true),
	}
}

func (c Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	switch c.Auth.Mode {
	case AuthModeSigned:
		if c.Auth.ProjectID == "" {
			return fmt.Errorf("FIREBASE_PROJECT_ID is required when AUTH_MODE=%s", AuthModeSigned)
		}
	case AuthModeHeader:
		if c.Auth.IdentityHeader == "" {
			return fmt.Errorf("IDENTITY_HEADER is required when AUTH_MODE=%s", AuthModeHeader)
		}
	case AuthModeOpen:
	default:
		return fmt.Errorf("unknown AUTH_MODE %q (want signed, header or open)", c.Auth.Mode)
	}
	if c.Server.MaxConnections < 0 {
		return fmt.Errorf("MAX_CONNECTIONS must be >= 0")
	}
	return nil
}

// Addr is the listen address of the raw HTTP acceptor.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// accepts Go durations ("90s") or plain seconds ("90")
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
