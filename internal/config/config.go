package config

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// EngineConfig holds the platform-wide constants consumed by the ledger engine.
type EngineConfig struct {
	FeeRate               decimal.Decimal
	MaxSharesPerOffer     int64
	MaxWorksPerCreator    int
	ActionsPerOpportunity int
	SubscriptionPeriod    time.Duration
}

type Config struct {
	Port                 string
	LogLevel             string
	JWTSecret            string
	ServiceToken         string
	Engine               EngineConfig
	ExportSchedule       string
	ExportBatchSize      int
	ExportQueue          string
	AMQPURL              string
	AMQPExchange         string
	DividendScanSchedule string
	IdempotencyTTL       time.Duration
}

func setDefaults() {
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("engine.fee_rate", "0.10")
	viper.SetDefault("engine.max_shares_per_offer", 10000)
	viper.SetDefault("engine.max_works_per_creator", 20)
	viper.SetDefault("engine.actions_per_opportunity", 5)
	viper.SetDefault("engine.subscription_period", 30*24*time.Hour)
	viper.SetDefault("export.schedule", "@every 1m")
	viper.SetDefault("export.batch_size", 500)
	viper.SetDefault("export.queue", "ledger_export")
	viper.SetDefault("export.amqp_exchange", "ledger.events")
	viper.SetDefault("dividends.scan_schedule", "0 6 * * *")
	viper.SetDefault("idempotency.ttl", 24*time.Hour)
}

func bindEnv() {
	viper.BindEnv("server.port", "PORT")
	viper.BindEnv("log.level", "LOG_LEVEL")
	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	viper.BindEnv("service.token", "SERVICE_TOKEN")
	viper.BindEnv("engine.fee_rate", "FEE_RATE")
	viper.BindEnv("engine.max_shares_per_offer", "MAX_SHARES_PER_OFFER")
	viper.BindEnv("engine.max_works_per_creator", "MAX_WORKS_PER_CREATOR")
	viper.BindEnv("engine.actions_per_opportunity", "ACTIONS_PER_OPPORTUNITY")
	viper.BindEnv("engine.subscription_period", "SUBSCRIPTION_PERIOD")
	viper.BindEnv("export.schedule", "EXPORT_SCHEDULE")
	viper.BindEnv("export.batch_size", "EXPORT_BATCH_SIZE")
	viper.BindEnv("export.queue", "EXPORT_QUEUE")
	viper.BindEnv("export.amqp_url", "RABBITMQ_URL")
	viper.BindEnv("export.amqp_exchange", "EXPORT_EXCHANGE")
	viper.BindEnv("dividends.scan_schedule", "DIVIDEND_SCAN_SCHEDULE")
	viper.BindEnv("idempotency.ttl", "IDEMPOTENCY_TTL")
}

// Load builds the configuration from viper defaults and environment overrides.
func Load() (*Config, error) {
	setDefaults()
	bindEnv()

	feeRate, err := decimal.NewFromString(viper.GetString("engine.fee_rate"))
	if err != nil {
		return nil, fmt.Errorf("invalid FEE_RATE: %w", err)
	}
	if feeRate.IsNegative() || feeRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("FEE_RATE must be in [0, 1), got %s", feeRate)
	}

	cfg := &Config{
		Port:         viper.GetString("server.port"),
		LogLevel:     viper.GetString("log.level"),
		JWTSecret:    viper.GetString("jwt.secret_key"),
		ServiceToken: viper.GetString("service.token"),
		Engine: EngineConfig{
			FeeRate:               feeRate,
			MaxSharesPerOffer:     viper.GetInt64("engine.max_shares_per_offer"),
			MaxWorksPerCreator:    viper.GetInt("engine.max_works_per_creator"),
			ActionsPerOpportunity: viper.GetInt("engine.actions_per_opportunity"),
			SubscriptionPeriod:    viper.GetDuration("engine.subscription_period"),
		},
		ExportSchedule:       viper.GetString("export.schedule"),
		ExportBatchSize:      viper.GetInt("export.batch_size"),
		ExportQueue:          viper.GetString("export.queue"),
		AMQPURL:              viper.GetString("export.amqp_url"),
		AMQPExchange:         viper.GetString("export.amqp_exchange"),
		DividendScanSchedule: viper.GetString("dividends.scan_schedule"),
		IdempotencyTTL:       viper.GetDuration("idempotency.ttl"),
	}

	if cfg.Engine.MaxSharesPerOffer <= 0 {
		return nil, fmt.Errorf("MAX_SHARES_PER_OFFER must be positive")
	}
	if cfg.Engine.ActionsPerOpportunity <= 0 {
		return nil, fmt.Errorf("ACTIONS_PER_OPPORTUNITY must be positive")
	}

	return cfg, nil
}

// DefaultEngine returns the engine constants with platform defaults.
func DefaultEngine() EngineConfig {
	return EngineConfig{
		FeeRate:               decimal.RequireFromString("0.10"),
		MaxSharesPerOffer:     10000,
		MaxWorksPerCreator:    20,
		ActionsPerOpportunity: 5,
		SubscriptionPeriod:    30 * 24 * time.Hour,
	}
}
