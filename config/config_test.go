package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestGetDefaults(t *testing.T) {
	unsetEnv(t, "PORT", "CORS_ORIGINS", "METADATA_TIMEOUT", "METADATA_RETRIES", "METADATA_CACHE_TTL", "WATCH_EVENTS")

	cfg := Get()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, []string{"*"}, cfg.CorsOrigins)
	assert.Equal(t, 10*time.Second, cfg.Metadata.Timeout)
	assert.Equal(t, 0, cfg.Metadata.Retries)
	assert.Equal(t, time.Duration(0), cfg.Metadata.CacheTTL)
	assert.False(t, cfg.WatchEvents)
}

func TestGetFromEnvironment(t *testing.T) {
	t.Setenv("RPC_URL", "https://rpc.example")
	t.Setenv("TOKEN_ADDRESS", "0x00000000000000000000000000000000000000aa")
	t.Setenv("MARKET_ADDRESS", "0x00000000000000000000000000000000000000bb")
	t.Setenv("METADATA_RETRIES", "3")
	t.Setenv("METADATA_CACHE_TTL", "5m")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("DEBUG", "true")

	cfg := Get()

	assert.Equal(t, "https://rpc.example", cfg.Chain.RpcUrl)
	assert.Equal(t, 3, cfg.Metadata.Retries)
	assert.Equal(t, 5*time.Minute, cfg.Metadata.CacheTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CorsOrigins)
	assert.True(t, cfg.Debug)
	require.NoError(t, cfg.Validate())
}

func TestGetIgnoresMalformedValues(t *testing.T) {
	t.Setenv("METADATA_RETRIES", "many")
	t.Setenv("METADATA_TIMEOUT", "soon")

	cfg := Get()

	assert.Equal(t, 0, cfg.Metadata.Retries)
	assert.Equal(t, 10*time.Second, cfg.Metadata.Timeout)
}

func TestValidateReportsMissingValues(t *testing.T) {
	cfg := &Config{}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RPC_URL")
	assert.Contains(t, err.Error(), "TOKEN_ADDRESS")
	assert.Contains(t, err.Error(), "MARKET_ADDRESS")
}

func TestHttpBuyDisabledByDefault(t *testing.T) {
	unsetEnv(t, "ENABLE_HTTP_BUY", "HTTP_BUY_TOKEN")

	cfg := Get()
	assert.False(t, cfg.HttpBuy.Enabled)
}

func TestValidateRequiresBuyTokenWhenEnabled(t *testing.T) {
	cfg := &Config{
		Chain:   ChainConfig{RpcUrl: "https://rpc.example", TokenAddress: "0xaa", MarketAddress: "0xbb"},
		HttpBuy: HttpBuyConfig{Enabled: true},
	}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP_BUY_TOKEN")

	cfg.HttpBuy.Token = "secret"
	assert.NoError(t, cfg.Validate())
}

func TestListenAddr(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"no key listens on all interfaces", Config{Port: "8080"}, ":8080"},
		{"private key binds localhost", Config{Port: "8080", Wallet: WalletConfig{PrivateKey: "0x01"}}, "127.0.0.1:8080"},
		{"keystore binds localhost", Config{Port: "9000", Wallet: WalletConfig{KeystorePath: "/tmp/key"}}, "127.0.0.1:9000"},
		{"explicit host wins", Config{Host: "0.0.0.0", Port: "8080", Wallet: WalletConfig{PrivateKey: "0x01"}}, "0.0.0.0:8080"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.ListenAddr())
		})
	}
}
