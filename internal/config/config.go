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
	App            AppConfig
	Postgres       PostgresConfig
	Redis          RedisConfig
	Logger         LoggerConfig
	Auth           AuthConfig
	Notification   NotificationConfig
	AI             AIConfig
	Classification ClassificationConfig
	Intake         IntakeConfig
	Bus            BusConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
	TenantID              int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
	TimeoutSeconds int
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines staff authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	BcryptCost            int

	// BootstrapAdminEmail, when set with a password, seeds the first admin.
	BootstrapAdminEmail    string
	BootstrapAdminPassword string
}

// NotificationConfig holds the side-channel targets.
type NotificationConfig struct {
	RedisChannel string
	WebhookURL   string
	QueueSize    int
	Workers      int
}

// ProviderConfig configures one AI backend. An empty APIKey means unavailable.
type ProviderConfig struct {
	Name    string
	APIKey  string
	Model   string
	BaseURL string
}

// AIConfig configures the provider façade.
type AIConfig struct {
	Priority       []string
	Providers      map[string]ProviderConfig
	TimeoutSeconds int
	MaxTokens      int
	Temperature    float64
	TopP           float64
}

// ClassificationConfig holds the blending cut points and catalog source.
type ClassificationConfig struct {
	ProviderThreshold float64
	KeywordThreshold  float64
	CategoriesFile    string
}

// IntakeConfig configures conversation handling.
type IntakeConfig struct {
	ConversationStore    string
	ConversationTTLHours int
	SourceChannel        string
}

// BusConfig configures the inter-agent message bus.
type BusConfig struct {
	QueueCapacity int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "citizen-intake"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
			TenantID:              getEnvAsInt("TENANT_ID", 1),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
			TimeoutSeconds: getEnvAsInt("STORAGE_TIMEOUT_SECONDS", 5),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:              getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes:  getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			BcryptCost:             getEnvAsInt("AUTH_BCRYPT_COST", 12),
			BootstrapAdminEmail:    os.Getenv("AUTH_BOOTSTRAP_ADMIN_EMAIL"),
			BootstrapAdminPassword: os.Getenv("AUTH_BOOTSTRAP_ADMIN_PASSWORD"),
		},
		Notification: NotificationConfig{
			RedisChannel: getEnv("NOTIFY_REDIS_CHANNEL", "citizen-intake:events"),
			WebhookURL:   getEnv("NOTIFY_WEBHOOK_URL", ""),
			QueueSize:    getEnvAsInt("NOTIFY_QUEUE_SIZE", 256),
			Workers:      getEnvAsInt("NOTIFY_WORKERS", 2),
		},
		AI: AIConfig{
			Priority: getEnvAsList("AI_PROVIDER_PRIORITY", []string{"groq", "openai", "anthropic"}),
			Providers: map[string]ProviderConfig{
				"groq": {
					Name:    "groq",
					APIKey:  os.Getenv("GROQ_API_KEY"),
					Model:   getEnv("GROQ_MODEL", "llama-3.1-8b-instant"),
					BaseURL: getEnv("GROQ_BASE_URL", "https://api.groq.com/openai/v1"),
				},
				"openai": {
					Name:    "openai",
					APIKey:  os.Getenv("OPENAI_API_KEY"),
					Model:   getEnv("OPENAI_MODEL", "gpt-3.5-turbo"),
					BaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
				},
				"anthropic": {
					Name:    "anthropic",
					APIKey:  os.Getenv("ANTHROPIC_API_KEY"),
					Model:   getEnv("ANTHROPIC_MODEL", "claude-3-sonnet-20240229"),
					BaseURL: getEnv("ANTHROPIC_BASE_URL", "https://api.anthropic.com/v1"),
				},
			},
			TimeoutSeconds: getEnvAsInt("AI_TIMEOUT_SECONDS", 15),
			MaxTokens:      getEnvAsInt("AI_MAX_TOKENS", 300),
			Temperature:    getEnvAsFloat("AI_TEMPERATURE", 0.7),
			TopP:           getEnvAsFloat("AI_TOP_P", 0.9),
		},
		Classification: ClassificationConfig{
			ProviderThreshold: getEnvAsFloat("CLASSIFY_PROVIDER_THRESHOLD", 0.7),
			KeywordThreshold:  getEnvAsFloat("CLASSIFY_KEYWORD_THRESHOLD", 0.6),
			CategoriesFile:    os.Getenv("CATEGORIES_FILE"),
		},
		Intake: IntakeConfig{
			ConversationStore:    strings.ToLower(getEnv("CONVERSATION_STORE", "memory")),
			ConversationTTLHours: getEnvAsInt("CONVERSATION_TTL_HOURS", 24),
			SourceChannel:        getEnv("INTAKE_SOURCE_CHANNEL", "whatsapp"),
		},
		Bus: BusConfig{
			QueueCapacity: getEnvAsInt("BUS_QUEUE_CAPACITY", 1000),
		},
	}

	if cfg.Intake.ConversationStore != "memory" && cfg.Intake.ConversationStore != "redis" {
		return nil, fmt.Errorf("invalid CONVERSATION_STORE %q", cfg.Intake.ConversationStore)
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

// Timeout bounds a single storage call.
func (p PostgresConfig) Timeout() time.Duration {
	if p.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// Timeout bounds a single completion call.
func (a AIConfig) Timeout() time.Duration {
	if a.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// ConversationTTL is how long an idle conversation state is retained by external stores.
func (i IntakeConfig) ConversationTTL() time.Duration {
	return time.Duration(i.ConversationTTLHours) * time.Hour
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

func getEnvAsFloat(key string, fallback float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(val, 64)
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

func getEnvAsList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
