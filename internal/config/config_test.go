package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("SQLITE_PATH", "/tmp/bot.db")
	t.Setenv("WA_API_URL", "https://api.green-api.com")
	t.Setenv("WA_API_TOKEN", "token")
	t.Setenv("TG_BOT_TOKEN", "123:abc")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "gorodbot", cfg.MetricsNamespace)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, int64(10), cfg.TaxiCommission)
	assert.Equal(t, int64(5), cfg.CafeCommissionPct)
	assert.Equal(t, int64(50), cfg.PharmacyDeliveryFee)
	assert.Equal(t, int64(100), cfg.TaxiBaseFare)
	assert.Equal(t, 30*time.Second, cfg.SweepInterval)
	assert.Equal(t, 2*time.Minute, cfg.CafeTimeout)
	assert.Equal(t, 3*time.Minute, cfg.PharmacyTimeout)
	assert.Equal(t, time.Minute, cfg.TaxiTimeout)
	assert.Equal(t, 30*time.Second, cfg.CancelRefundWindow)
	assert.False(t, cfg.PromoMode)
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("TAXI_COMMISSION", "25")
	t.Setenv("PROMO_MODE", "true")
	t.Setenv("CAFE_TIMEOUT", "5m")
	t.Setenv("TAXI_GROUP_ID", "-1001234567890")
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, int64(25), cfg.TaxiCommission)
	assert.True(t, cfg.PromoMode)
	assert.Equal(t, 5*time.Minute, cfg.CafeTimeout)
	assert.Equal(t, int64(-1001234567890), cfg.TaxiGroupID)
}

func TestLoadMissingRequired(t *testing.T) {
	t.Setenv("SQLITE_PATH", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("WA_API_URL", "")
	t.Setenv("WA_API_TOKEN", "token")
	t.Setenv("TG_BOT_TOKEN", "123:abc")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL or SQLITE_PATH")
	assert.Contains(t, err.Error(), "WA_API_URL")
}

func TestLoadRejectsMalformedNumbers(t *testing.T) {
	setRequired(t)
	t.Setenv("TAXI_COMMISSION", "many")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TAXI_COMMISSION")
}
