package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, StoreDriverPostgres, cfg.StoreDriver)
	assert.Equal(t, GatewayMock, cfg.GatewayProvider)
	assert.Equal(t, 30*time.Minute, cfg.DBConnMaxLifetime)
	assert.Equal(t, 14*24*time.Hour, cfg.HoldingPeriod())
	assert.Equal(t, 14*24*time.Hour, cfg.PayoutInterval())
	assert.Equal(t, "500", cfg.PayoutThreshold().String())
	assert.Equal(t, "10", cfg.AffiliateDiscount().String())
	assert.Equal(t, "order.events", cfg.RabbitMQ().Exchange)
}

func TestLoadEnvironmentOverridesFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("STORE_DRIVER=memory\nPAYOUT_THRESHOLD=750\nSERVER_PORT=9000\n"), 0o600))

	t.Setenv("SERVER_PORT", "9100")
	t.Setenv("GATEWAY_TIMEOUT", "3s")

	cfg, err := Load(envFile)
	require.NoError(t, err)

	assert.Equal(t, StoreDriverMemory, cfg.StoreDriver)
	assert.Equal(t, "750", cfg.PayoutThreshold().String())
	assert.Equal(t, "9100", cfg.ServerPort)
	assert.Equal(t, 3*time.Second, cfg.GatewayTimeout)
}

func TestLoadMissingFileIsFine(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	assert.NoError(t, err)
}

func TestValidate(t *testing.T) {
	base, err := Load("")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"store driver", func(c *Config) { c.StoreDriver = "sqlite" }, "STORE_DRIVER"},
		{"notifier", func(c *Config) { c.NotifierDriver = "smtp" }, "NOTIFIER_DRIVER"},
		{"cashfree credentials", func(c *Config) { c.GatewayProvider = GatewayCashfree }, "CASHFREE_CLIENT_ID"},
		{"holding too short", func(c *Config) { c.CommissionHoldingDays = 3 }, "COMMISSION_HOLDING_DAYS"},
		{"holding too long", func(c *Config) { c.CommissionHoldingDays = 30 }, "COMMISSION_HOLDING_DAYS"},
		{"payout interval", func(c *Config) { c.PayoutIntervalDays = 0 }, "PAYOUT_INTERVAL_DAYS"},
		{"threshold", func(c *Config) { c.PayoutThresholdRaw = "lots" }, "PAYOUT_THRESHOLD"},
		{"return url", func(c *Config) { c.ReturnURLTemplate = "http://shop/return" }, "RETURN_URL_TEMPLATE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := *base
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
