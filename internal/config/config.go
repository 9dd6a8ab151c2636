package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Storage backends selectable through STORE_BACKEND / TOKEN_BACKEND.
const (
	BackendDynamo = "dynamo"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort        string
	AppEnv         string
	LogLevel       string
	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string
	DynamoTables   DynamoTables
	StoreBackend   string
	TokenBackend   string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int

	// TokenTTL is the lifetime given to freshly issued scan codes.
	TokenTTL           time.Duration
	LedgerMaxAttempts  int
	RequestTimeout     time.Duration
	ScanRateLimitRPS   float64
	ScanRateLimitBurst int

	JWTPrivateKeyPath string
	JWTPublicKeyPath  string
	JWTExpiry         time.Duration

	AttendanceTopicARN string
	AllowedOrigins     []string // CORS allowed origins
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	Tokens          string
	Bindings        string
	AttendanceHeads string
	AttendanceLogs  string
	Profiles        string
}

// Load reads all configuration from environment variables.
func Load() *Config {
	storeBackend := getEnv("STORE_BACKEND", BackendDynamo)
	return &Config{
		AppPort:        getEnv("APP_PORT", "3000"),
		AppEnv:         getEnv("APP_ENV", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		DynamoTables: DynamoTables{
			Tokens:          getEnv("DYNAMO_TABLE_TOKENS", "scan_tokens"),
			Bindings:        getEnv("DYNAMO_TABLE_BINDINGS", "device_bindings"),
			AttendanceHeads: getEnv("DYNAMO_TABLE_ATTENDANCE_HEADS", "attendance_heads"),
			AttendanceLogs:  getEnv("DYNAMO_TABLE_ATTENDANCE_LOGS", "attendance_logs"),
			Profiles:        getEnv("DYNAMO_TABLE_PROFILES", "profiles"),
		},
		StoreBackend:  storeBackend,
		TokenBackend:  getEnv("TOKEN_BACKEND", storeBackend),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		TokenTTL:           getEnvDuration("TOKEN_TTL", 15*time.Second),
		LedgerMaxAttempts:  getEnvInt("LEDGER_MAX_ATTEMPTS", 64),
		RequestTimeout:     getEnvDuration("REQUEST_TIMEOUT", 10*time.Second),
		ScanRateLimitRPS:   getEnvFloat("SCAN_RATE_LIMIT_RPS", 5),
		ScanRateLimitBurst: getEnvInt("SCAN_RATE_LIMIT_BURST", 10),

		JWTPrivateKeyPath: getEnv("JWT_PRIVATE_KEY_PATH", ""),
		JWTPublicKeyPath:  getEnv("JWT_PUBLIC_KEY_PATH", "./public_key.pem"),
		JWTExpiry:         getEnvDuration("JWT_EXPIRY", 7*24*time.Hour),

		AttendanceTopicARN: getEnv("ATTENDANCE_TOPIC_ARN", ""),
		AllowedOrigins:     strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
	}
}

// IsProduction reports whether the service runs with APP_ENV=production.
func (c *Config) IsProduction() bool { return c.AppEnv == "production" }

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// getEnvDuration accepts Go duration strings ("15s") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
