package config

import (
	"errors"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Debug   bool
	LogPath string
	Host    string
	Port    string

	CorsOrigins []string
	WatchEvents bool

	Chain    ChainConfig
	Metadata MetadataConfig
	Wallet   WalletConfig
	HttpBuy  HttpBuyConfig
}

// HttpBuyConfig はHTTP経由の購入を許可するかどうか。サーバーの鍵で署名するため既定は無効
type HttpBuyConfig struct {
	Enabled bool
	Token   string
}

type ChainConfig struct {
	RpcUrl        string
	WsUrl         string
	TokenAddress  string
	MarketAddress string
}

type MetadataConfig struct {
	Timeout     time.Duration
	Retries     int
	CacheTTL    time.Duration
	Concurrency int
	IpfsGateway string
}

type WalletConfig struct {
	PrivateKey       string
	KeystorePath     string
	KeystorePassword string
}

// Load は .env があれば読み込み、環境変数から設定を組み立てる
func Load() *Config {
	// .env が無い場合は環境変数のみを使う
	_ = godotenv.Load()

	return Get()
}

func Get() *Config {
	return &Config{
		Debug:       getBool("DEBUG", false),
		LogPath:     getString("LOG_PATH", ""),
		Host:        getString("HOST", ""),
		Port:        getString("PORT", "8080"),
		CorsOrigins: getSlice("CORS_ORIGINS", []string{"*"}, ","),
		WatchEvents: getBool("WATCH_EVENTS", false),
		Chain: ChainConfig{
			RpcUrl:        getString("RPC_URL", ""),
			WsUrl:         getString("RPC_WS_URL", ""),
			TokenAddress:  getString("TOKEN_ADDRESS", ""),
			MarketAddress: getString("MARKET_ADDRESS", ""),
		},
		Metadata: MetadataConfig{
			Timeout:     getDuration("METADATA_TIMEOUT", 10*time.Second),
			Retries:     getInt("METADATA_RETRIES", 0),
			CacheTTL:    getDuration("METADATA_CACHE_TTL", 0),
			Concurrency: getInt("METADATA_CONCURRENCY", 0),
			IpfsGateway: getString("IPFS_GATEWAY", "https://ipfs.io/ipfs/"),
		},
		Wallet: WalletConfig{
			PrivateKey:       getString("WALLET_PRIVATE_KEY", ""),
			KeystorePath:     getString("WALLET_KEYSTORE_PATH", ""),
			KeystorePassword: getString("WALLET_KEYSTORE_PASSWORD", ""),
		},
		HttpBuy: HttpBuyConfig{
			Enabled: getBool("ENABLE_HTTP_BUY", false),
			Token:   getString("HTTP_BUY_TOKEN", ""),
		},
	}
}

// Validate は必須の接続先が揃っているかを確認する
func (c *Config) Validate() error {
	var errs []error
	if c.Chain.RpcUrl == "" {
		errs = append(errs, errors.New("RPC_URL environment variable not set"))
	}
	if c.Chain.TokenAddress == "" {
		errs = append(errs, errors.New("TOKEN_ADDRESS environment variable not set"))
	}
	if c.Chain.MarketAddress == "" {
		errs = append(errs, errors.New("MARKET_ADDRESS environment variable not set"))
	}
	if c.HttpBuy.Enabled && c.HttpBuy.Token == "" {
		errs = append(errs, errors.New("HTTP_BUY_TOKEN must be set when ENABLE_HTTP_BUY is true"))
	}
	if c.Metadata.Retries < 0 {
		errs = append(errs, errors.New("METADATA_RETRIES must not be negative"))
	}
	return errors.Join(errs...)
}

// HasWalletKey は署名用の鍵が設定されているか
func (c *Config) HasWalletKey() bool {
	return c.Wallet.PrivateKey != "" || c.Wallet.KeystorePath != ""
}

// ListenAddr は待ち受けアドレスを返す。
// HOST 未指定で鍵が設定されている場合はローカルホストのみで待ち受ける
func (c *Config) ListenAddr() string {
	host := c.Host
	if host == "" && c.HasWalletKey() {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, c.Port)
}

func getString(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}

	return defaultValue
}

func getInt(key string, defaultValue int) int {
	val, err := strconv.Atoi(getString(key, ""))
	if err != nil {
		return defaultValue
	}

	return val
}

func getBool(key string, defaultValue bool) bool {
	if val, err := strconv.ParseBool(getString(key, "")); err == nil {
		return val
	}

	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if val, err := time.ParseDuration(getString(key, "")); err == nil {
		return val
	}

	return defaultValue
}

func getSlice(key string, defaultVal []string, sep string) []string {
	valStr := getString(key, "")
	if valStr == "" {
		return defaultVal
	}

	parts := strings.Split(valStr, sep)
	cleaned := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	return cleaned
}
