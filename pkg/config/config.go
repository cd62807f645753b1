package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database    DatabaseConfig
	Redis       RedisConfig
	CORS        CORSConfig
	Log         LogConfig
	Cache       CacheConfig
	Maintenance MaintenanceConfig
	Binding     BindingConfig
	ZeroCost    ZeroCostConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// CacheConfig tunes the Redis-backed read cache.
type CacheConfig struct {
	Enabled  bool
	StatsTTL time.Duration
}

// MaintenanceConfig controls the scheduled reconciliation sweep.
type MaintenanceConfig struct {
	Enabled  bool
	CronSpec string
	Timeout  time.Duration
}

// ZeroCostConfig identifies the complimentary account type. The policy's
// on/off switch and uniform expiry live in the settings table so operators
// can change them without a restart; only the label is deploy-time.
type ZeroCostConfig struct {
	TypeLabel string
}

// BindingConfig groups binding-engine tunables.
type BindingConfig struct {
	Operator         string
	ExportDir        string
	MonthlyAmount    float64
	YearlyAmount     float64
	ProcessBatchSize int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Cache = CacheConfig{
		Enabled:  v.GetBool("ENABLE_CACHE"),
		StatsTTL: parseDuration(v.GetString("CACHE_STATS_TTL"), 5*time.Minute),
	}

	cfg.Maintenance = MaintenanceConfig{
		Enabled:  v.GetBool("ENABLE_MAINTENANCE_CRON"),
		CronSpec: v.GetString("MAINTENANCE_CRON_SPEC"),
		Timeout:  parseDuration(v.GetString("MAINTENANCE_TIMEOUT"), 10*time.Minute),
	}

	cfg.Binding = BindingConfig{
		Operator:         v.GetString("BINDING_OPERATOR"),
		ExportDir:        v.GetString("BINDING_EXPORT_DIR"),
		MonthlyAmount:    v.GetFloat64("BINDING_MONTHLY_AMOUNT"),
		YearlyAmount:     v.GetFloat64("BINDING_YEARLY_AMOUNT"),
		ProcessBatchSize: v.GetInt("BINDING_PROCESS_BATCH_SIZE"),
	}

	cfg.ZeroCost = ZeroCostConfig{TypeLabel: v.GetString("ZERO_COST_TYPE_LABEL")}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "campus_net")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENABLE_CACHE", false)
	v.SetDefault("CACHE_STATS_TTL", "5m")

	v.SetDefault("ENABLE_MAINTENANCE_CRON", false)
	v.SetDefault("MAINTENANCE_CRON_SPEC", "0 3 * * *")
	v.SetDefault("MAINTENANCE_TIMEOUT", "10m")

	v.SetDefault("BINDING_OPERATOR", "system")
	v.SetDefault("BINDING_EXPORT_DIR", "./exports")
	v.SetDefault("BINDING_MONTHLY_AMOUNT", 30)
	v.SetDefault("BINDING_YEARLY_AMOUNT", 300)
	v.SetDefault("BINDING_PROCESS_BATCH_SIZE", 200)

	v.SetDefault("ZERO_COST_TYPE_LABEL", "ZERO_COST")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
