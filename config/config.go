// Package config loads service configuration from an optional JSON file
// with environment variable overrides on top. Environment always wins.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"trading-decision-engine/internal/combiner"
	"trading-decision-engine/internal/engine"
	"trading-decision-engine/internal/logging"
)

type Config struct {
	Server       ServerConfig       `json:"server"`
	Auth         AuthConfig         `json:"auth"`
	Database     DatabaseConfig     `json:"database"`
	Redis        RedisConfig        `json:"redis"`
	Vault        VaultConfig        `json:"vault"`
	Scheduler    SchedulerConfig    `json:"scheduler"`
	Notification NotificationConfig `json:"notification"`
	Logging      logging.Config     `json:"logging"`
	Engine       engine.Config      `json:"engine"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int    `json:"port" default:"8080" validate:"min=1,max=65535"`
	Host            string `json:"host" default:"0.0.0.0"`
	AllowedOrigins  string `json:"allowed_origins" default:"*"`
	ReadTimeout     int    `json:"read_timeout" default:"30"`     // seconds
	WriteTimeout    int    `json:"write_timeout" default:"30"`    // seconds
	ShutdownTimeout int    `json:"shutdown_timeout" default:"30"` // seconds
}

// AuthConfig holds authentication configuration. The engine runs with a
// single operator account; its credential comes from here or from Vault.
type AuthConfig struct {
	Enabled              bool          `json:"enabled"`
	JWTSecret            string        `json:"jwt_secret"`
	AccessTokenDuration  time.Duration `json:"access_token_duration"`
	RefreshTokenDuration time.Duration `json:"refresh_token_duration"`
	MinPasswordLength    int           `json:"min_password_length" default:"8" validate:"min=4"`
	MaxLoginAttempts     int           `json:"max_login_attempts" default:"5"`
	LockoutDuration      time.Duration `json:"lockout_duration"`
	OperatorEmail        string        `json:"operator_email" default:"operator@local"`
	OperatorPassword     string        `json:"operator_password"`
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Enabled  bool   `json:"enabled"`
	URL      string `json:"url"`
	MaxConns int32  `json:"max_conns" default:"10"`
	MinConns int32  `json:"min_conns" default:"2"`
}

// RedisConfig holds Redis configuration for market data caching.
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address" default:"localhost:6379"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size" default:"10"`
}

// VaultConfig holds HashiCorp Vault configuration.
type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address" default:"http://localhost:8200"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path" default:"secret"`
	SecretPath string `json:"secret_path" default:"decision-engine"`
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
}

// NotificationConfig holds the decision alert channels.
type NotificationConfig struct {
	Enabled  bool           `json:"enabled"`
	Telegram TelegramConfig `json:"telegram"`
	Discord  DiscordConfig  `json:"discord"`
}

// TelegramConfig holds Telegram bot credentials.
type TelegramConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"`
	ChatID   string `json:"chat_id"`
}

// DiscordConfig holds the Discord webhook target.
type DiscordConfig struct {
	Enabled    bool   `json:"enabled"`
	WebhookURL string `json:"webhook_url"`
}

// SchedulerConfig holds the daily decision run schedule.
type SchedulerConfig struct {
	Enabled bool `json:"enabled"`
	// Spec is a cron expression with a seconds field.
	Spec         string   `json:"spec" default:"0 5 0 * * *"`
	Symbols      []string `json:"symbols"`
	LookbackDays int      `json:"lookback_days" default:"365" validate:"min=2"`
	// MetricsWindowDays bounds the rolling window used to grade strategies.
	MetricsWindowDays int `json:"metrics_window_days" default:"365" validate:"min=2"`
}

var validate = validator.New()

// Load reads .env, then config.json when present, then the environment.
func Load() (*Config, error) {
	godotenv.Load()

	cfg, err := loadFromFile("config.json")
	if err != nil {
		cfg = &Config{}
	}

	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("applying config defaults: %w", err)
	}

	applyEnvOverrides(cfg)
	fillEngineDefaults(&cfg.Engine)

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	// Server
	cfg.Server.Port = getEnvIntOrDefault("SERVER_PORT", cfg.Server.Port)
	cfg.Server.Host = getEnvOrDefault("SERVER_HOST", cfg.Server.Host)
	cfg.Server.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", cfg.Server.AllowedOrigins)
	cfg.Server.ReadTimeout = getEnvIntOrDefault("SERVER_READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = getEnvIntOrDefault("SERVER_WRITE_TIMEOUT", cfg.Server.WriteTimeout)
	cfg.Server.ShutdownTimeout = getEnvIntOrDefault("SERVER_SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout)

	// Auth
	cfg.Auth.Enabled = getEnvBoolOrDefault("AUTH_ENABLED", cfg.Auth.Enabled)
	cfg.Auth.JWTSecret = getEnvOrDefault("AUTH_JWT_SECRET", cfg.Auth.JWTSecret)
	cfg.Auth.AccessTokenDuration = getEnvDurationOrDefault("AUTH_ACCESS_TOKEN_DURATION", orDuration(cfg.Auth.AccessTokenDuration, 15*time.Minute))
	cfg.Auth.RefreshTokenDuration = getEnvDurationOrDefault("AUTH_REFRESH_TOKEN_DURATION", orDuration(cfg.Auth.RefreshTokenDuration, 7*24*time.Hour))
	cfg.Auth.MinPasswordLength = getEnvIntOrDefault("AUTH_MIN_PASSWORD_LENGTH", cfg.Auth.MinPasswordLength)
	cfg.Auth.MaxLoginAttempts = getEnvIntOrDefault("AUTH_MAX_LOGIN_ATTEMPTS", cfg.Auth.MaxLoginAttempts)
	cfg.Auth.LockoutDuration = getEnvDurationOrDefault("AUTH_LOCKOUT_DURATION", orDuration(cfg.Auth.LockoutDuration, 15*time.Minute))
	cfg.Auth.OperatorEmail = getEnvOrDefault("AUTH_OPERATOR_EMAIL", cfg.Auth.OperatorEmail)
	cfg.Auth.OperatorPassword = getEnvOrDefault("AUTH_OPERATOR_PASSWORD", cfg.Auth.OperatorPassword)

	// Database
	cfg.Database.URL = getEnvOrDefault("DATABASE_URL", cfg.Database.URL)
	if cfg.Database.URL != "" {
		cfg.Database.Enabled = true
	}
	cfg.Database.Enabled = getEnvBoolOrDefault("DATABASE_ENABLED", cfg.Database.Enabled)

	// Redis
	cfg.Redis.Enabled = getEnvBoolOrDefault("REDIS_ENABLED", cfg.Redis.Enabled)
	cfg.Redis.Address = getEnvOrDefault("REDIS_ADDRESS", cfg.Redis.Address)
	cfg.Redis.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvIntOrDefault("REDIS_DB", cfg.Redis.DB)

	// Vault
	cfg.Vault.Enabled = getEnvBoolOrDefault("VAULT_ENABLED", cfg.Vault.Enabled)
	cfg.Vault.Address = getEnvOrDefault("VAULT_ADDR", cfg.Vault.Address)
	cfg.Vault.Token = getEnvOrDefault("VAULT_TOKEN", cfg.Vault.Token)
	cfg.Vault.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", cfg.Vault.MountPath)
	cfg.Vault.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", cfg.Vault.SecretPath)
	cfg.Vault.TLSEnabled = getEnvBoolOrDefault("VAULT_TLS_ENABLED", cfg.Vault.TLSEnabled)

	// Notifications
	cfg.Notification.Enabled = getEnvBoolOrDefault("NOTIFY_ENABLED", cfg.Notification.Enabled)
	cfg.Notification.Telegram.Enabled = getEnvBoolOrDefault("NOTIFY_TELEGRAM_ENABLED", cfg.Notification.Telegram.Enabled)
	cfg.Notification.Telegram.BotToken = getEnvOrDefault("NOTIFY_TELEGRAM_BOT_TOKEN", cfg.Notification.Telegram.BotToken)
	cfg.Notification.Telegram.ChatID = getEnvOrDefault("NOTIFY_TELEGRAM_CHAT_ID", cfg.Notification.Telegram.ChatID)
	cfg.Notification.Discord.Enabled = getEnvBoolOrDefault("NOTIFY_DISCORD_ENABLED", cfg.Notification.Discord.Enabled)
	cfg.Notification.Discord.WebhookURL = getEnvOrDefault("NOTIFY_DISCORD_WEBHOOK_URL", cfg.Notification.Discord.WebhookURL)

	// Scheduler
	cfg.Scheduler.Enabled = getEnvBoolOrDefault("SCHEDULER_ENABLED", cfg.Scheduler.Enabled)
	cfg.Scheduler.Spec = getEnvOrDefault("SCHEDULER_SPEC", cfg.Scheduler.Spec)
	if symbols := os.Getenv("SCHEDULER_SYMBOLS"); symbols != "" {
		cfg.Scheduler.Symbols = splitAndTrim(symbols)
	}
	cfg.Scheduler.LookbackDays = getEnvIntOrDefault("SCHEDULER_LOOKBACK_DAYS", cfg.Scheduler.LookbackDays)
	cfg.Scheduler.MetricsWindowDays = getEnvIntOrDefault("SCHEDULER_METRICS_WINDOW_DAYS", cfg.Scheduler.MetricsWindowDays)

	// Logging
	cfg.Logging.Level = getEnvOrDefault("LOG_LEVEL", orString(cfg.Logging.Level, "info"))
	cfg.Logging.Output = getEnvOrDefault("LOG_OUTPUT", orString(cfg.Logging.Output, "stdout"))
	cfg.Logging.Pretty = getEnvBoolOrDefault("LOG_PRETTY", cfg.Logging.Pretty)

	// Engine knobs that operators commonly tune.
	cfg.Engine.Sizer.Capital = getEnvFloatOrDefault("ENGINE_CAPITAL", cfg.Engine.Sizer.Capital)
	cfg.Engine.Sizer.RiskPct = getEnvFloatOrDefault("ENGINE_RISK_PCT", cfg.Engine.Sizer.RiskPct)
	if method := os.Getenv("ENGINE_COMBINER_METHOD"); method != "" {
		cfg.Engine.Combiner.Method = combiner.Method(strings.ToLower(method))
	}
}

// fillEngineDefaults backfills any engine section left zero by the file,
// so a partial config still yields a runnable engine.
func fillEngineDefaults(cfg *engine.Config) {
	def := engine.DefaultConfig()
	if cfg.Combiner.Method == "" {
		cfg.Combiner = def.Combiner
	}
	if cfg.Ranking.Transform == "" {
		cfg.Ranking = def.Ranking
	}
	if cfg.Entry.Beta == 0 {
		cfg.Entry = def.Entry
	}
	if cfg.TpSl.Method == "" {
		cfg.TpSl = def.TpSl
	}
	if cfg.Sizer.Capital == 0 {
		cfg.Sizer = def.Sizer
	}
	if cfg.Confidence.SharpeCeil == 0 {
		cfg.Confidence = def.Confidence
	}
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return &config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func orString(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

func orDuration(value, fallback time.Duration) time.Duration {
	if value != 0 {
		return value
	}
	return fallback
}

func splitAndTrim(csv string) []string {
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// GenerateSampleConfig writes a starter configuration file.
func GenerateSampleConfig(filename string) error {
	cfg := Config{
		Server: ServerConfig{
			Port:            8080,
			Host:            "0.0.0.0",
			AllowedOrigins:  "*",
			ReadTimeout:     30,
			WriteTimeout:    30,
			ShutdownTimeout: 30,
		},
		Scheduler: SchedulerConfig{
			Enabled:           true,
			Spec:              "0 5 0 * * *",
			Symbols:           []string{"BTCUSDT", "ETHUSDT"},
			LookbackDays:      365,
			MetricsWindowDays: 365,
		},
		Logging: logging.Config{
			Level:  "info",
			Output: "stdout",
		},
		Engine: engine.DefaultConfig(),
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0644)
}
