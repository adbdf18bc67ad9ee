/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables and an optional
 * .env file, providing a centralized way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log/slog"
	"os"
	"strings"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

const (
	defaultAuditSchedule = "@every 1h"
	maxPerMinuteLimit    = 10000
)

// Config holds all the configuration variables for the ledger-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort                   string `mapstructure:"SERVER_PORT"`
	ServiceName                  string `mapstructure:"SERVICE_NAME"`
	DatabaseURL                  string `mapstructure:"DATABASE_URL"`
	DBMaxConns                   int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns                   int32  `mapstructure:"DB_MIN_CONNS"`
	RedisURL                     string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix         string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL                  string `mapstructure:"RABBITMQ_URL"`
	LedgerEventsExchange         string `mapstructure:"LEDGER_EVENTS_EXCHANGE"`
	LedgerCommandsExchange       string `mapstructure:"LEDGER_COMMANDS_EXCHANGE"`
	LedgerCommandQueue           string `mapstructure:"LEDGER_COMMAND_QUEUE"`
	JWTSigningKey                string `mapstructure:"JWT_SIGNING_KEY"`
	CORSAllowedOrigins           string `mapstructure:"CORS_ALLOWED_ORIGINS"`
	RedemptionRateLimitPerMinute int    `mapstructure:"REDEMPTION_RATE_LIMIT_PER_MINUTE"`
	TransferRateLimitPerMinute   int    `mapstructure:"TRANSFER_RATE_LIMIT_PER_MINUTE"`
	LedgerAuditSchedule          string `mapstructure:"LEDGER_AUDIT_SCHEDULE"`
	OTELExporterOTLPEndpoint     string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// AllowedOrigins splits CORS_ALLOWED_ORIGINS on commas.
func (c Config) AllowedOrigins() []string {
	out := make([]string, 0)
	for _, origin := range strings.Split(c.CORSAllowedOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			out = append(out, origin)
		}
	}
	return out
}

// LoadConfig reads configuration from environment variables and an optional .env
// file in path.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("SERVICE_NAME", "ledger-service")
	viper.SetDefault("DB_MAX_CONNS", 50)
	viper.SetDefault("DB_MIN_CONNS", 5)
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "ledger:rate_limit")
	viper.SetDefault("LEDGER_EVENTS_EXCHANGE", "ledger.events")
	viper.SetDefault("LEDGER_COMMANDS_EXCHANGE", "ledger.commands")
	viper.SetDefault("LEDGER_COMMAND_QUEUE", "ledger_service.flag_commands")
	viper.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:3000")
	viper.SetDefault("REDEMPTION_RATE_LIMIT_PER_MINUTE", 10)
	viper.SetDefault("TRANSFER_RATE_LIMIT_PER_MINUTE", 20)
	viper.SetDefault("LEDGER_AUDIT_SCHEDULE", defaultAuditSchedule)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("SERVICE_NAME", "SERVICE_NAME", "OTEL_SERVICE_NAME")
	_ = viper.BindEnv("DATABASE_URL", "DATABASE_URL", "LEDGER_DATABASE_URL")
	_ = viper.BindEnv("DB_MAX_CONNS")
	_ = viper.BindEnv("DB_MIN_CONNS")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "LEDGER_REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("LEDGER_EVENTS_EXCHANGE")
	_ = viper.BindEnv("LEDGER_COMMANDS_EXCHANGE")
	_ = viper.BindEnv("LEDGER_COMMAND_QUEUE")
	_ = viper.BindEnv("JWT_SIGNING_KEY")
	_ = viper.BindEnv("CORS_ALLOWED_ORIGINS")
	_ = viper.BindEnv("REDEMPTION_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("TRANSFER_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("LEDGER_AUDIT_SCHEDULE")
	_ = viper.BindEnv("OTEL_EXPORTER_OTLP_ENDPOINT")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("failed to read config file; using environment values", "component", "config", "error", err)
		}
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.ServerPort = strings.TrimPrefix(strings.TrimSpace(config.ServerPort), ":")
	config.DatabaseURL = strings.TrimSpace(config.DatabaseURL)
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RabbitMQURL = strings.TrimSpace(config.RabbitMQURL)
	config.JWTSigningKey = strings.TrimSpace(config.JWTSigningKey)
	config.OTELExporterOTLPEndpoint = strings.TrimSpace(config.OTELExporterOTLPEndpoint)
	config.RedisRateLimitPrefix = strings.TrimSuffix(strings.TrimSpace(config.RedisRateLimitPrefix), ":")
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "ledger:rate_limit"
	}

	if config.DBMaxConns <= 0 {
		config.DBMaxConns = 50
	}
	if config.DBMinConns < 0 {
		config.DBMinConns = 0
	}
	if config.DBMinConns > config.DBMaxConns {
		slog.Warn("DB_MIN_CONNS above DB_MAX_CONNS; capping", "component", "config", "min", config.DBMinConns, "max", config.DBMaxConns)
		config.DBMinConns = config.DBMaxConns
	}

	config.RedemptionRateLimitPerMinute = clampLimit("REDEMPTION_RATE_LIMIT_PER_MINUTE", config.RedemptionRateLimitPerMinute)
	config.TransferRateLimitPerMinute = clampLimit("TRANSFER_RATE_LIMIT_PER_MINUTE", config.TransferRateLimitPerMinute)

	config.LedgerAuditSchedule = strings.TrimSpace(config.LedgerAuditSchedule)
	if config.LedgerAuditSchedule != "" && config.LedgerAuditSchedule != "off" {
		if _, parseErr := cron.ParseStandard(config.LedgerAuditSchedule); parseErr != nil {
			slog.Warn("invalid LEDGER_AUDIT_SCHEDULE; using default", "component", "config", "value", config.LedgerAuditSchedule, "error", parseErr)
			config.LedgerAuditSchedule = defaultAuditSchedule
		}
	}
	if config.LedgerAuditSchedule == "off" {
		config.LedgerAuditSchedule = ""
	}

	return
}

// clampLimit keeps a per-minute limit in [0, maxPerMinuteLimit]. Zero disables it.
func clampLimit(key string, value int) int {
	if value < 0 {
		slog.Warn("negative rate limit configured; disabling", "component", "config", "key", key, "value", value)
		return 0
	}
	if value > maxPerMinuteLimit {
		slog.Warn("rate limit too high; capping", "component", "config", "key", key, "value", value)
		return maxPerMinuteLimit
	}
	return value
}
