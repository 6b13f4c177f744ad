package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		viper.Reset()
		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "8080", cfg.Port)
		assert.Equal(t, "0.1", cfg.Engine.FeeRate.String())
		assert.Equal(t, int64(10000), cfg.Engine.MaxSharesPerOffer)
		assert.Equal(t, 5, cfg.Engine.ActionsPerOpportunity)
		assert.Equal(t, 30*24*time.Hour, cfg.Engine.SubscriptionPeriod)
		assert.Equal(t, "ledger_export", cfg.ExportQueue)
		assert.Equal(t, "ledger.events", cfg.AMQPExchange)
		assert.Empty(t, cfg.AMQPURL)
		assert.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
	})

	t.Run("environment overrides", func(t *testing.T) {
		viper.Reset()
		t.Setenv("FEE_RATE", "0.15")
		t.Setenv("MAX_SHARES_PER_OFFER", "250")
		t.Setenv("PORT", "9090")
		t.Setenv("SUBSCRIPTION_PERIOD", "720h")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "0.15", cfg.Engine.FeeRate.String())
		assert.Equal(t, int64(250), cfg.Engine.MaxSharesPerOffer)
		assert.Equal(t, "9090", cfg.Port)
		assert.Equal(t, 720*time.Hour, cfg.Engine.SubscriptionPeriod)
	})

	t.Run("invalid fee rate", func(t *testing.T) {
		viper.Reset()
		t.Setenv("FEE_RATE", "1.5")
		_, err := Load()
		assert.Error(t, err)

		viper.Reset()
		t.Setenv("FEE_RATE", "ten percent")
		_, err = Load()
		assert.Error(t, err)
	})

	t.Run("invalid share cap", func(t *testing.T) {
		viper.Reset()
		t.Setenv("MAX_SHARES_PER_OFFER", "0")
		_, err := Load()
		assert.Error(t, err)
	})
}

func TestDefaultEngine(t *testing.T) {
	e := DefaultEngine()
	assert.Equal(t, "0.1", e.FeeRate.String())
	assert.Equal(t, 20, e.MaxWorksPerCreator)
}
