package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaults(t *testing.T) {
	assert.Equal(t, "binance", GetString("crypto_provider"))
	assert.Equal(t, 9090, GetInt("metrics_port"))
	assert.Equal(t, 600*time.Second, GetDuration("stock_cache_ttl"))
	assert.Equal(t, 150*time.Minute, GetDuration("calendar_interval"))
	assert.False(t, GetBool("debug"))
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("ALERT_INTERVAL", "90s")
	t.Setenv("ALERT_RETRIES", "5")
	t.Setenv("CRYPTO_PROVIDER", "coinpaprika")

	assert.Equal(t, 90*time.Second, GetDuration("alert_interval"))
	assert.Equal(t, 5, GetInt("alert_retries"))
	assert.Equal(t, "coinpaprika", GetString("crypto_provider"))
}
