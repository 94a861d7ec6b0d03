package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	CarpoolDB  DatabaseConfig // enterprise mega-carpool mappings live in a second database
	Mongo      MongoConfig
	Redis      RedisConfig
	JWT        JWTConfig
	NATS       NATSConfig
	Stripe     StripeConfig
	Firebase   FirebaseConfig
	Bytemark   BytemarkConfig
	ParkMobile ParkMobileConfig
	Survey     SurveyConfig
	Wallet     WalletConfig
	RateLimit  RateLimitConfig
	Resilience ResilienceConfig
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port         string
	Environment  string
	ServiceName  string
	ReadTimeout  int
	WriteTimeout int
	CORSOrigins  string // Comma-separated list of allowed origins
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
}

// MongoConfig holds the document-store configuration (ticket caches,
// parking histories, trajectories)
type MongoConfig struct {
	URI      string
	Database string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// JWTConfig holds the dual signing keys. Both are base64-encoded symmetric
// secrets; only the primary signs, both are accepted on verify.
type JWTConfig struct {
	Key               string
	RotateKey         string
	RefreshWindowDays int
	LifetimeDays      int
}

// NATSConfig holds queue connection settings
type NATSConfig struct {
	URL        string
	StreamName string
}

// StripeConfig holds payment configuration for wallet auto-refill
type StripeConfig struct {
	APIKey  string
	Enabled bool
}

// FirebaseConfig holds Firebase configuration
type FirebaseConfig struct {
	ProjectID       string
	CredentialsPath string
	Enabled         bool
}

// BytemarkConfig holds the transit ticketing upstream settings
type BytemarkConfig struct {
	BaseURL        string
	TimeoutSeconds int
	CacheMaxAgeMin int
}

// ParkMobileConfig holds the parking upstream settings
type ParkMobileConfig struct {
	AuthURL            string
	ClientID           string
	ClientSecret       string
	TimeoutSeconds     int
	TokenTimeoutSecond int
}

// SurveyConfig drives the microsurvey orchestrator
type SurveyConfig struct {
	LLMBaseURL      string
	LLMAPIKey       string
	LLMModel        string
	RewardPoints    float64
	ActorCap        int
	DefaultTimezone string
	CipherKey       string // base64 AES key for form-response identifiers
}

// WalletConfig holds ledger policy knobs
type WalletConfig struct {
	DailyRefillLimitUSD float64
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled           bool
	WindowSeconds     int
	DefaultLimit      int
	DefaultBurst      int
	AnonymousLimit    int
	AnonymousBurst    int
	RedisPrefix       string
	EndpointOverrides map[string]EndpointRateLimitConfig
}

// EndpointRateLimitConfig allows customizing limits per endpoint
type EndpointRateLimitConfig struct {
	AuthenticatedLimit int `json:"authenticated_limit"`
	AuthenticatedBurst int `json:"authenticated_burst"`
	AnonymousLimit     int `json:"anonymous_limit"`
	AnonymousBurst     int `json:"anonymous_burst"`
	WindowSeconds      int `json:"window_seconds"`
}

// ResilienceConfig groups runtime resilience controls
type ResilienceConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

// CircuitBreakerConfig captures default and per-service breaker tuning
type CircuitBreakerConfig struct {
	Enabled          bool
	FailureThreshold int
	SuccessThreshold int
	TimeoutSeconds   int
	IntervalSeconds  int
	ServiceOverrides map[string]CircuitBreakerSettings
}

// CircuitBreakerSettings overrides defaults for a specific upstream service
type CircuitBreakerSettings struct {
	FailureThreshold int `json:"failure_threshold"`
	SuccessThreshold int `json:"success_threshold"`
	TimeoutSeconds   int `json:"timeout_seconds"`
	IntervalSeconds  int `json:"interval_seconds"`
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			Environment:  getEnv("ENVIRONMENT", "development"),
			ServiceName:  serviceName,
			ReadTimeout:  getEnvAsInt("READ_TIMEOUT", 10),
			WriteTimeout: getEnvAsInt("WRITE_TIMEOUT", 10),
			CORSOrigins:  getEnv("CORS_ORIGINS", "http://localhost:3000"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "portal"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns: getEnvAsInt("DB_MIN_CONNS", 5),
		},
		CarpoolDB: DatabaseConfig{
			Host:     getEnv("CARPOOL_DB_HOST", "localhost"),
			Port:     getEnv("CARPOOL_DB_PORT", "5432"),
			User:     getEnv("CARPOOL_DB_USER", "postgres"),
			Password: getEnv("CARPOOL_DB_PASSWORD", "postgres"),
			DBName:   getEnv("CARPOOL_DB_NAME", "carpooling"),
			SSLMode:  getEnv("CARPOOL_DB_SSLMODE", "disable"),
			MaxConns: getEnvAsInt("CARPOOL_DB_MAX_CONNS", 10),
			MinConns: getEnvAsInt("CARPOOL_DB_MIN_CONNS", 2),
		},
		Mongo: MongoConfig{
			URI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
			Database: getEnv("MONGO_DB", "maas_cache"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Key:               getEnv("JWT_KEY", ""),
			RotateKey:         getEnv("JWT_ROTATE_KEY", ""),
			RefreshWindowDays: getEnvAsInt("JWT_REFRESH_WINDOW_DAYS", 7),
			LifetimeDays:      getEnvAsInt("JWT_LIFETIME_DAYS", 30),
		},
		NATS: NATSConfig{
			URL:        getEnv("NATS_URL", "nats://localhost:4222"),
			StreamName: getEnv("NATS_STREAM", "MAAS"),
		},
		Stripe: StripeConfig{
			APIKey:  getEnv("STRIPE_API_KEY", ""),
			Enabled: getEnvAsBool("STRIPE_ENABLED", false),
		},
		Firebase: FirebaseConfig{
			ProjectID:       getEnv("FIREBASE_PROJECT_ID", ""),
			CredentialsPath: getEnv("FIREBASE_CREDENTIALS_PATH", ""),
			Enabled:         getEnvAsBool("FIREBASE_ENABLED", false),
		},
		Bytemark: BytemarkConfig{
			BaseURL:        getEnv("BYTEMARK_BASE_URL", "https://overture.bytemark.co"),
			TimeoutSeconds: getEnvAsInt("BYTEMARK_TIMEOUT_SECONDS", 10),
			CacheMaxAgeMin: getEnvAsInt("BYTEMARK_CACHE_MAX_AGE_MIN", 60),
		},
		ParkMobile: ParkMobileConfig{
			AuthURL:            getEnv("PARKMOBILE_AUTH_URL", "https://auth.parkmobile.io"),
			ClientID:           getEnv("PARKMOBILE_CLIENT_ID", ""),
			ClientSecret:       getEnv("PARKMOBILE_CLIENT_SECRET", ""),
			TimeoutSeconds:     getEnvAsInt("PARKMOBILE_TIMEOUT_SECONDS", 10),
			TokenTimeoutSecond: getEnvAsInt("PARKMOBILE_TOKEN_TIMEOUT_SECONDS", 30),
		},
		Survey: SurveyConfig{
			LLMBaseURL:      getEnv("SURVEY_LLM_BASE_URL", "https://api.openai.com"),
			LLMAPIKey:       getEnv("SURVEY_LLM_API_KEY", ""),
			LLMModel:        getEnv("SURVEY_LLM_MODEL", "gpt-4o-mini"),
			RewardPoints:    getEnvAsFloat("SURVEY_REWARD_POINTS", 5),
			ActorCap:        getEnvAsInt("SURVEY_ACTOR_CAP", 10000),
			DefaultTimezone: getEnv("SURVEY_DEFAULT_TIMEZONE", "America/Chicago"),
			CipherKey:       getEnv("SURVEY_CIPHER_KEY", ""),
		},
		Wallet: WalletConfig{
			DailyRefillLimitUSD: getEnvAsFloat("WALLET_DAILY_REFILL_LIMIT_USD", 100),
		},
		RateLimit: RateLimitConfig{
			Enabled:        getEnvAsBool("RATE_LIMIT_ENABLED", false),
			WindowSeconds:  getEnvAsInt("RATE_LIMIT_WINDOW_SECONDS", 60),
			DefaultLimit:   getEnvAsInt("RATE_LIMIT_DEFAULT_LIMIT", 120),
			DefaultBurst:   getEnvAsInt("RATE_LIMIT_DEFAULT_BURST", 40),
			AnonymousLimit: getEnvAsInt("RATE_LIMIT_ANON_LIMIT", 60),
			AnonymousBurst: getEnvAsInt("RATE_LIMIT_ANON_BURST", 20),
			RedisPrefix:    getEnv("RATE_LIMIT_REDIS_PREFIX", "rate-limit"),
		},
		Resilience: ResilienceConfig{
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:          getEnvAsBool("CB_ENABLED", false),
				FailureThreshold: getEnvAsInt("CB_FAILURE_THRESHOLD", 5),
				SuccessThreshold: getEnvAsInt("CB_SUCCESS_THRESHOLD", 1),
				TimeoutSeconds:   getEnvAsInt("CB_TIMEOUT_SECONDS", 30),
				IntervalSeconds:  getEnvAsInt("CB_INTERVAL_SECONDS", 60),
			},
		},
	}

	if overrides := getEnv("RATE_LIMIT_ENDPOINTS", ""); overrides != "" {
		var endpointConfig map[string]EndpointRateLimitConfig
		if err := json.Unmarshal([]byte(overrides), &endpointConfig); err != nil {
			return nil, fmt.Errorf("invalid RATE_LIMIT_ENDPOINTS value: %w", err)
		}
		cfg.RateLimit.EndpointOverrides = endpointConfig
	}

	if breakerOverrides := getEnv("CB_SERVICE_OVERRIDES", ""); breakerOverrides != "" {
		var serviceConfig map[string]CircuitBreakerSettings
		if err := json.Unmarshal([]byte(breakerOverrides), &serviceConfig); err != nil {
			return nil, fmt.Errorf("invalid CB_SERVICE_OVERRIDES value: %w", err)
		}
		cfg.Resilience.CircuitBreaker.ServiceOverrides = serviceConfig
	}

	if cfg.RateLimit.WindowSeconds <= 0 {
		cfg.RateLimit.WindowSeconds = int((time.Minute).Seconds())
	}

	if cfg.Resilience.CircuitBreaker.TimeoutSeconds <= 0 {
		cfg.Resilience.CircuitBreaker.TimeoutSeconds = 30
	}

	if cfg.Resilience.CircuitBreaker.IntervalSeconds <= 0 {
		cfg.Resilience.CircuitBreaker.IntervalSeconds = 60
	}

	if cfg.Resilience.CircuitBreaker.FailureThreshold <= 0 {
		cfg.Resilience.CircuitBreaker.FailureThreshold = 5
	}

	if cfg.Resilience.CircuitBreaker.SuccessThreshold <= 0 {
		cfg.Resilience.CircuitBreaker.SuccessThreshold = 1
	}

	return cfg, nil
}

// AuthBypassPrefixes returns path prefixes that skip token verification.
func AuthBypassPrefixes() []string {
	return splitEnvList("AUTH_BYPASS_PREFIXES", "/auth,/public,/webhooks,/guest,/healthz,/metrics")
}

// AuthForwardPrefixes returns path prefixes whose auth is delegated to the
// legacy service downstream.
func AuthForwardPrefixes() []string {
	return splitEnvList("AUTH_FORWARD_PREFIXES", "")
}

func splitEnvList(key, fallback string) []string {
	raw := getEnv(key, fallback)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// SettingsFor returns effective breaker settings for a specific upstream service name
func (c CircuitBreakerConfig) SettingsFor(service string) CircuitBreakerSettings {
	settings := CircuitBreakerSettings{
		FailureThreshold: c.FailureThreshold,
		SuccessThreshold: c.SuccessThreshold,
		TimeoutSeconds:   c.TimeoutSeconds,
		IntervalSeconds:  c.IntervalSeconds,
	}

	if c.ServiceOverrides != nil {
		if override, ok := c.ServiceOverrides[service]; ok {
			if override.FailureThreshold > 0 {
				settings.FailureThreshold = override.FailureThreshold
			}
			if override.SuccessThreshold > 0 {
				settings.SuccessThreshold = override.SuccessThreshold
			}
			if override.TimeoutSeconds > 0 {
				settings.TimeoutSeconds = override.TimeoutSeconds
			}
			if override.IntervalSeconds > 0 {
				settings.IntervalSeconds = override.IntervalSeconds
			}
		}
	}

	if settings.SuccessThreshold <= 0 {
		settings.SuccessThreshold = 1
	}
	if settings.FailureThreshold <= 0 {
		settings.FailureThreshold = 5
	}
	if settings.TimeoutSeconds <= 0 {
		settings.TimeoutSeconds = 30
	}
	if settings.IntervalSeconds <= 0 {
		settings.IntervalSeconds = 60
	}

	return settings
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// RedisAddr returns the Redis address
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// Timeout returns the upstream request timeout
func (c *BytemarkConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// CacheMaxAge returns the staleness threshold of ticket cache rows
func (c *BytemarkConfig) CacheMaxAge() time.Duration {
	return time.Duration(c.CacheMaxAgeMin) * time.Minute
}

// Timeout returns the upstream request timeout
func (c *ParkMobileConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// TokenTimeout returns the OAuth token mint timeout
func (c *ParkMobileConfig) TokenTimeout() time.Duration {
	return time.Duration(c.TokenTimeoutSecond) * time.Second
}

// RefreshWindow returns the duration before expiry in which tokens are reissued
func (c *JWTConfig) RefreshWindow() time.Duration {
	return time.Duration(c.RefreshWindowDays) * 24 * time.Hour
}

// Lifetime returns the max lifetime of freshly minted tokens
func (c *JWTConfig) Lifetime() time.Duration {
	return time.Duration(c.LifetimeDays) * 24 * time.Hour
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// Window returns the configured rate limit window duration
func (c RateLimitConfig) Window() time.Duration {
	if c.WindowSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.WindowSeconds) * time.Second
}
