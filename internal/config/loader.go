package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const envPrefix = "ORBITFLASH_"

// Load merges the TOML file at path over Defaults and applies environment
// overrides, including any found in a local .env file. A missing file is
// not an error so deployments can configure through the environment alone.
// The result is not validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Chain.RPCURL, "CHAIN_RPC_URL")
	setInt64(&cfg.Chain.ChainID, "CHAIN_ID")
	setBool(&cfg.Chain.ArbGasInfo, "CHAIN_ARB_GAS_INFO")

	setBool(&cfg.Redis.Enabled, "REDIS_ENABLED")
	setStr(&cfg.Redis.URL, "REDIS_URL")
	setStr(&cfg.Redis.Addr, "REDIS_ADDR")
	setStr(&cfg.Redis.Password, "REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "REDIS_POOL_SIZE")
	setBool(&cfg.Redis.TLSEnabled, "REDIS_TLS_ENABLED")

	setBool(&cfg.Postgres.Enabled, "POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL")
	setStr(&cfg.Postgres.Host, "POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "POSTGRES_SSL_MODE")
	setBool(&cfg.Postgres.RunMigrations, "POSTGRES_RUN_MIGRATIONS")

	setStr(&cfg.S3.Endpoint, "S3_ENDPOINT")
	setStr(&cfg.S3.Region, "S3_REGION")
	setStr(&cfg.S3.Bucket, "S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "S3_SECRET_KEY")
	setBool(&cfg.S3.ForcePathStyle, "S3_FORCE_PATH_STYLE")

	setFloat64(&cfg.Detector.MinProfitEth, "DETECTOR_MIN_PROFIT_ETH")
	setFloat64(&cfg.Detector.GasPriceGwei, "DETECTOR_GAS_PRICE_GWEI")
	setDuration(&cfg.Detector.ObservationTTL, "DETECTOR_OBSERVATION_TTL")

	setFloat64(&cfg.Risk.MinProfitEth, "RISK_MIN_PROFIT_ETH")
	setFloat64(&cfg.Risk.MaxSlippage, "RISK_MAX_SLIPPAGE")
	setFloat64(&cfg.Risk.MaxGasPriceGwei, "RISK_MAX_GAS_PRICE_GWEI")
	setStringSlice(&cfg.Risk.BlockedTokens, "RISK_BLOCKED_TOKENS")
	setStringSlice(&cfg.Risk.BlockedVenues, "RISK_BLOCKED_VENUES")

	setDuration(&cfg.Queue.MaxAge, "QUEUE_MAX_AGE")
	setInt(&cfg.Queue.MaxRetries, "QUEUE_MAX_RETRIES")
	setDuration(&cfg.Queue.DrainInterval, "QUEUE_DRAIN_INTERVAL")

	setFloat64(&cfg.Gas.MaxGasPriceGwei, "GAS_MAX_GAS_PRICE_GWEI")
	setDuration(&cfg.Gas.FeeTimeout, "GAS_FEE_TIMEOUT")

	setStr(&cfg.Dispatch.ContractAddress, "CONTRACT_ADDRESS")
	setStr(&cfg.Dispatch.ContractAddress, "DISPATCH_CONTRACT_ADDRESS")
	setBool(&cfg.Dispatch.EstimateGas, "DISPATCH_ESTIMATE_GAS")
	setStr(&cfg.Dispatch.SenderAddress, "DISPATCH_SENDER_ADDRESS")
	setStr(&cfg.Dispatch.SenderKey, "DISPATCH_SENDER_KEY")
	setStr(&cfg.Dispatch.SenderKeyFile, "DISPATCH_SENDER_KEY_FILE")
	setStr(&cfg.Dispatch.SenderKeyPassword, "DISPATCH_SENDER_KEY_PASSWORD")

	setBool(&cfg.Feed.Enabled, "FEED_ENABLED")
	setDuration(&cfg.Feed.Interval, "FEED_INTERVAL")
	setFloat64(&cfg.Feed.RequestsPerSec, "FEED_REQUESTS_PER_SEC")

	setBool(&cfg.Server.Enabled, "SERVER_ENABLED")
	setInt(&cfg.Server.Port, "SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "SERVER_API_KEY")
	setStr(&cfg.Server.APIKeyHash, "SERVER_API_KEY_HASH")
	setInt(&cfg.Server.RateLimit, "SERVER_RATE_LIMIT")

	setStr(&cfg.Notify.TelegramToken, "NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "NOTIFY_DISCORD_WEBHOOK_URL")
	setStr(&cfg.Notify.MinLevel, "NOTIFY_MIN_LEVEL")

	setBool(&cfg.Archive.Enabled, "ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "ARCHIVE_RETENTION_DAYS")

	setStr(&cfg.Mode, "MODE")
	setStr(&cfg.LogLevel, "LOG_LEVEL")
	setStr(&cfg.CatalogPath, "CATALOG_PATH")
}

// lookup returns the value of ORBITFLASH_<key> when set and non-empty.
func lookup(key string) (string, bool) {
	v := os.Getenv(envPrefix + key)
	return v, v != ""
}

func setStr(dst *string, key string) {
	if v, ok := lookup(key); ok {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := lookup(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v, ok := lookup(key); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v, ok := lookup(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v, ok := lookup(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v, ok := lookup(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	v, ok := lookup(key)
	if !ok {
		return
	}
	var cleaned []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	if len(cleaned) > 0 {
		*dst = cleaned
	}
}
