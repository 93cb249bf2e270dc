package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig
	Queue    QueueConfig
	Store    StoreConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	SQLite   SQLiteConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	Display  DisplayConfig
	Archive  ArchiveConfig
	Announce AnnounceConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// QueueConfig sizes the queue engine.
type QueueConfig struct {
	ModuleCount     int
	CallHistorySize int
	WriteRetries    int
}

// StoreConfig selects the shared state backend.
type StoreConfig struct {
	Backend        string
	RedisKey       string
	RedisChannel   string
	PostgresNotify string
	PollIntervalMs int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// SQLiteConfig points at the database file.
type SQLiteConfig struct {
	Path string
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines authentication parameters and the operators seeded at
// startup.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	BcryptCost            int
	Seeds                 []OperatorSeed
}

// OperatorSeed is one entry of AUTH_SEED_OPERATORS.
type OperatorSeed struct {
	Username string
	Password string
	Role     string
	ModuleID int
}

// DisplayConfig is the public display websocket listener.
type DisplayConfig struct {
	Host string
	Port string
}

// ArchiveConfig selects where snapshots go before a reset.
type ArchiveConfig struct {
	Driver       string
	Dir          string
	Bucket       string
	Prefix       string
	Region       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

// AnnounceConfig holds the optional call announcement webhook.
type AnnounceConfig struct {
	WebhookURL     string
	TimeoutSeconds int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	seeds, err := parseSeeds(getEnv("AUTH_SEED_OPERATORS", "admin:admin:admin"))
	if err != nil {
		return nil, fmt.Errorf("invalid AUTH_SEED_OPERATORS: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "queue-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Queue: QueueConfig{
			ModuleCount:     positive(getEnvAsInt("QUEUE_MODULE_COUNT", 4), 4),
			CallHistorySize: positive(getEnvAsInt("QUEUE_CALL_HISTORY_SIZE", 10), 10),
			WriteRetries:    positive(getEnvAsInt("QUEUE_WRITE_RETRIES", 5), 5),
		},
		Store: StoreConfig{
			Backend:        strings.ToLower(getEnv("STORE_BACKEND", "memory")),
			RedisKey:       getEnv("STORE_REDIS_KEY", "queue:state"),
			RedisChannel:   getEnv("STORE_REDIS_CHANNEL", "queue:state:changed"),
			PostgresNotify: getEnv("STORE_POSTGRES_CHANNEL", "queue_state_changed"),
			PollIntervalMs: positive(getEnvAsInt("STORE_POLL_INTERVAL_MS", 500), 500),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		SQLite: SQLiteConfig{
			Path: getEnv("SQLITE_PATH", "queue.db"),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 720),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
			Seeds:                 seeds,
		},
		Display: DisplayConfig{
			Host: getEnv("DISPLAY_HOST", "0.0.0.0"),
			Port: getEnv("DISPLAY_PORT", "8081"),
		},
		Archive: ArchiveConfig{
			Driver:       strings.ToLower(getEnv("ARCHIVE_DRIVER", "none")),
			Dir:          getEnv("ARCHIVE_DIR", "archive"),
			Bucket:       os.Getenv("ARCHIVE_S3_BUCKET"),
			Prefix:       getEnv("ARCHIVE_S3_PREFIX", "snapshots"),
			Region:       getEnv("ARCHIVE_S3_REGION", "us-east-1"),
			Endpoint:     os.Getenv("ARCHIVE_S3_ENDPOINT"),
			AccessKey:    os.Getenv("ARCHIVE_S3_ACCESS_KEY"),
			SecretKey:    os.Getenv("ARCHIVE_S3_SECRET_KEY"),
			UsePathStyle: getEnvAsBool("ARCHIVE_S3_PATH_STYLE", false),
		},
		Announce: AnnounceConfig{
			WebhookURL:     getEnv("ANNOUNCE_WEBHOOK_URL", ""),
			TimeoutSeconds: getEnvAsInt("ANNOUNCE_WEBHOOK_TIMEOUT_SECONDS", 5),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// Addr returns the display websocket bind address.
func (d DisplayConfig) Addr() string {
	return fmt.Sprintf("%s:%s", d.Host, d.Port)
}

// PollInterval returns the polling period of backends without push notifications.
func (s StoreConfig) PollInterval() time.Duration {
	return time.Duration(s.PollIntervalMs) * time.Millisecond
}

// parseSeeds reads "user:password:role[:module],..." entries.
func parseSeeds(raw string) ([]OperatorSeed, error) {
	var seeds []OperatorSeed
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) < 3 || len(parts) > 4 {
			return nil, fmt.Errorf("entry %q: expected user:password:role[:module]", entry)
		}
		seed := OperatorSeed{Username: parts[0], Password: parts[1], Role: parts[2]}
		if len(parts) == 4 {
			id, err := strconv.Atoi(parts[3])
			if err != nil || id <= 0 {
				return nil, fmt.Errorf("entry %q: invalid module id", entry)
			}
			seed.ModuleID = id
		}
		seeds = append(seeds, seed)
	}
	return seeds, nil
}

func positive(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
