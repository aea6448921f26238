// Package config defines the orbitflash configuration file and its
// validation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration. Fields come from a TOML file and are
// then overridden by ORBITFLASH_* environment variables.
type Config struct {
	Chain       ChainConfig    `toml:"chain"`
	Redis       RedisConfig    `toml:"redis"`
	Postgres    PostgresConfig `toml:"postgres"`
	S3          S3Config       `toml:"s3"`
	Detector    DetectorConfig `toml:"detector"`
	Risk        RiskConfig     `toml:"risk"`
	Scorer      ScorerConfig   `toml:"scorer"`
	Queue       QueueConfig    `toml:"queue"`
	Gas         GasConfig      `toml:"gas"`
	Dispatch    DispatchConfig `toml:"dispatch"`
	Feed        FeedConfig     `toml:"feed"`
	Server      ServerConfig   `toml:"server"`
	Notify      NotifyConfig   `toml:"notify"`
	Archive     ArchiveConfig  `toml:"archive"`
	Mode        string         `toml:"mode"`
	LogLevel    string         `toml:"log_level"`
	CatalogPath string         `toml:"catalog_path"`
}

// ChainConfig points at the JSON-RPC endpoint of the target chain.
type ChainConfig struct {
	RPCURL  string `toml:"rpc_url"`
	ChainID int64  `toml:"chain_id"`
	// ArbGasInfo enables the Arbitrum precompile fee source.
	ArbGasInfo bool `toml:"arb_gas_info"`
}

// RedisConfig holds Redis connection parameters. With Enabled false the
// full mode runs on an in-process bus and cache.
type RedisConfig struct {
	Enabled      bool   `toml:"enabled"`
	URL          string `toml:"url"`
	Addr         string `toml:"addr"`
	Password     string `toml:"password"`
	DB           int    `toml:"db"`
	PoolSize     int    `toml:"pool_size"`
	MaxRetries   int    `toml:"max_retries"`
	TLSEnabled   bool   `toml:"tls_enabled"`
	StreamMaxLen int64  `toml:"stream_max_len"`
}

// PostgresConfig holds audit database parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// S3Config holds object storage parameters for the audit archive.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// DetectorConfig holds the fee model and observation handling.
type DetectorConfig struct {
	FlashLoanFee       float64            `toml:"flash_loan_fee"`
	VenueFees          map[string]float64 `toml:"venue_fees"`
	DefaultVenueFee    float64            `toml:"default_venue_fee"`
	GasPriceGwei       float64            `toml:"gas_price_gwei"`
	GasLimit           uint64             `toml:"gas_limit"`
	SlippageTolerance  float64            `toml:"slippage_tolerance"`
	MinProfitEth       float64            `toml:"min_profit_eth"`
	TradeFraction      float64            `toml:"trade_fraction"`
	ReferenceLiquidity float64            `toml:"reference_liquidity"`
	DefaultLiquidity   float64            `toml:"default_liquidity"`
	ObservationTTL     duration           `toml:"observation_ttl"`
	OpportunityTTL     duration           `toml:"opportunity_ttl"`
	BufferSize         int                `toml:"buffer_size"`
	BufferWindow       duration           `toml:"buffer_window"`
}

// RiskConfig holds admission thresholds.
type RiskConfig struct {
	MinProfitEth          float64            `toml:"min_profit_eth"`
	MaxSlippage           float64            `toml:"max_slippage"`
	MaxPositionEth        map[string]float64 `toml:"max_position_eth"`
	DefaultMaxPositionEth float64            `toml:"default_max_position_eth"`
	MaxGasPriceGwei       float64            `toml:"max_gas_price_gwei"`
	ReferenceGasLimit     int64              `toml:"reference_gas_limit"`
	MaxPoolShare          float64            `toml:"max_pool_share"`
	BlockedTokens         []string           `toml:"blocked_tokens"`
	BlockedVenues         []string           `toml:"blocked_venues"`
}

// ScorerConfig holds priority weights.
type ScorerConfig struct {
	ProfitWeight      float64 `toml:"profit_weight"`
	RiskWeight        float64 `toml:"risk_weight"`
	CompetitionWeight float64 `toml:"competition_weight"`
	MinProfitEth      float64 `toml:"min_profit_eth"`
	MaxSlippage       float64 `toml:"max_slippage"`
}

// QueueConfig holds scheduling queue and drain loop settings.
type QueueConfig struct {
	MaxAge          duration `toml:"max_age"`
	MaxRetries      int      `toml:"max_retries"`
	DrainInterval   duration `toml:"drain_interval"`
	CleanupInterval duration `toml:"cleanup_interval"`
}

// GasConfig holds the fee optimizer settings.
type GasConfig struct {
	BaseFeePremium   float64  `toml:"base_fee_premium"`
	LowMultiplier    float64  `toml:"low_multiplier"`
	MediumMultiplier float64  `toml:"medium_multiplier"`
	HighMultiplier   float64  `toml:"high_multiplier"`
	MaxGasPriceGwei  float64  `toml:"max_gas_price_gwei"`
	MinGasPriceGwei  float64  `toml:"min_gas_price_gwei"`
	GasLimitBuffer   float64  `toml:"gas_limit_buffer"`
	MaxGasLimit      uint64   `toml:"max_gas_limit"`
	FeeTimeout       duration `toml:"fee_timeout"`
	BreakerFailures  uint32   `toml:"breaker_failures"`
	BreakerCooldown  duration `toml:"breaker_cooldown"`
}

// DispatchConfig holds transaction preparation settings.
type DispatchConfig struct {
	ContractAddress string   `toml:"contract_address"`
	DedupTTL        duration `toml:"dedup_ttl"`
	LockTTL         duration `toml:"lock_ttl"`
	EstimateGas     bool     `toml:"estimate_gas"`
	GasBufferPct    int64    `toml:"gas_buffer_pct"`
	// Sender of gas estimates: a plain address, a raw key, or an
	// encrypted key file.
	SenderAddress     string `toml:"sender_address"`
	SenderKey         string `toml:"sender_key"`
	SenderKeyFile     string `toml:"sender_key_file"`
	SenderKeyPassword string `toml:"sender_key_password"`
}

// FeedConfig holds the on-chain pool poller settings.
type FeedConfig struct {
	Enabled        bool     `toml:"enabled"`
	Interval       duration `toml:"interval"`
	RequestsPerSec float64  `toml:"requests_per_sec"`
	Burst          int      `toml:"burst"`
	Concurrency    int      `toml:"concurrency"`
	CallTimeout    duration `toml:"call_timeout"`
}

// ServerConfig holds control plane parameters. APIKeyHash is a bcrypt
// hash and wins over APIKey when both are set.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	APIKeyHash  string   `toml:"api_key_hash"`
	RateLimit   int      `toml:"rate_limit"`
	RateWindow  duration `toml:"rate_window"`
}

// NotifyConfig holds alert channel credentials.
type NotifyConfig struct {
	TelegramToken     string `toml:"telegram_token"`
	TelegramChatID    string `toml:"telegram_chat_id"`
	DiscordWebhookURL string `toml:"discord_webhook_url"`
	MinLevel          string `toml:"min_level"`
	Service           string `toml:"service"`
}

// ArchiveConfig controls moving old audit rows to S3.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	RetentionDays int      `toml:"retention_days"`
	Interval      duration `toml:"interval"`
	Prefix        string   `toml:"prefix"`
}

// duration decodes TOML strings such as "5m" or "100ms".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns the configuration used when the file leaves a value out.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			RPCURL:     "http://localhost:8545",
			ChainID:    42161,
			ArbGasInfo: true,
		},
		Redis: RedisConfig{
			Enabled:      true,
			Addr:         "localhost:6379",
			PoolSize:     20,
			MaxRetries:   3,
			StreamMaxLen: 10000,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "orbitflash",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "orbitflash-archive",
			ForcePathStyle: true,
		},
		Detector: DetectorConfig{
			FlashLoanFee: 0.0009,
			VenueFees: map[string]float64{
				"uniswap-v3": 0.003,
				"sushiswap":  0.003,
				"curve":      0.0004,
				"balancer":   0.0025,
			},
			DefaultVenueFee:    0.003,
			GasPriceGwei:       20,
			GasLimit:           500_000,
			SlippageTolerance:  0.005,
			MinProfitEth:       0.01,
			TradeFraction:      0.1,
			ReferenceLiquidity: 1_000_000,
			DefaultLiquidity:   1_000_000,
			ObservationTTL:     duration{100 * time.Millisecond},
			OpportunityTTL:     duration{5 * time.Minute},
			BufferSize:         10,
			BufferWindow:       duration{time.Minute},
		},
		Risk: RiskConfig{
			MinProfitEth:          0.01,
			MaxSlippage:           0.02,
			MaxPositionEth:        map[string]float64{},
			DefaultMaxPositionEth: 10,
			MaxGasPriceGwei:       50,
			ReferenceGasLimit:     500_000,
			MaxPoolShare:          0.1,
		},
		Scorer: ScorerConfig{
			ProfitWeight:      0.5,
			RiskWeight:        0.3,
			CompetitionWeight: 0.2,
			MinProfitEth:      0.01,
			MaxSlippage:       0.02,
		},
		Queue: QueueConfig{
			MaxAge:          duration{30 * time.Second},
			MaxRetries:      3,
			DrainInterval:   duration{100 * time.Millisecond},
			CleanupInterval: duration{30 * time.Second},
		},
		Gas: GasConfig{
			BaseFeePremium:   1.1,
			LowMultiplier:    1.0,
			MediumMultiplier: 1.5,
			HighMultiplier:   2.0,
			MaxGasPriceGwei:  100,
			MinGasPriceGwei:  0.1,
			GasLimitBuffer:   0.2,
			MaxGasLimit:      2_000_000,
			FeeTimeout:       duration{2 * time.Second},
			BreakerFailures:  5,
			BreakerCooldown:  duration{30 * time.Second},
		},
		Dispatch: DispatchConfig{
			DedupTTL:     duration{2 * time.Minute},
			LockTTL:      duration{30 * time.Second},
			EstimateGas:  true,
			GasBufferPct: 20,
		},
		Feed: FeedConfig{
			Interval:       duration{time.Second},
			RequestsPerSec: 20,
			Burst:          5,
			Concurrency:    4,
			CallTimeout:    duration{3 * time.Second},
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8080,
			CORSOrigins: []string{"http://localhost:3000"},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
		},
		Notify: NotifyConfig{
			MinLevel: "warning",
			Service:  "orbitflash",
		},
		Archive: ArchiveConfig{
			RetentionDays: 30,
			Interval:      duration{24 * time.Hour},
			Prefix:        "archive",
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

var validModes = map[string]bool{
	"detector": true,
	"strategy": true,
	"gas":      true,
	"full":     true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validAlertLevels = map[string]bool{
	"info":     true,
	"warning":  true,
	"error":    true,
	"critical": true,
}

// NeedsChain reports whether the mode talks to the RPC node.
func (c *Config) NeedsChain() bool {
	m := strings.ToLower(c.Mode)
	return m == "gas" || m == "full" || (m == "detector" && c.Feed.Enabled)
}

// NeedsDispatch reports whether the mode runs the gas dispatcher.
func (c *Config) NeedsDispatch() bool {
	m := strings.ToLower(c.Mode)
	return m == "gas" || m == "full"
}

// Validate reports every problem found in one error.
func (c *Config) Validate() error {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	mode := strings.ToLower(c.Mode)
	if !validModes[mode] {
		add("unknown mode %q (valid: detector, strategy, gas, full)", c.Mode)
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		add("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel)
	}

	if c.NeedsChain() && c.Chain.RPCURL == "" {
		add("chain: rpc_url is required for mode %s", c.Mode)
	}
	if c.NeedsDispatch() {
		switch {
		case c.Dispatch.ContractAddress == "":
			add("dispatch: contract_address is required for mode %s", c.Mode)
		case !common.IsHexAddress(c.Dispatch.ContractAddress):
			add("dispatch: contract_address %q is not a hex address", c.Dispatch.ContractAddress)
		}
	}
	if a := c.Dispatch.SenderAddress; a != "" && !common.IsHexAddress(a) {
		add("dispatch: sender_address %q is not a hex address", a)
	}
	if c.Dispatch.SenderKeyFile != "" && c.Dispatch.SenderKeyPassword == "" {
		add("dispatch: sender_key_password is required with sender_key_file")
	}
	if c.Dispatch.GasBufferPct < 0 {
		add("dispatch: gas_buffer_pct must be >= 0")
	}

	// Only full mode can share an in-process bus.
	if !c.Redis.Enabled && mode != "full" {
		add("redis: must be enabled for mode %s", c.Mode)
	}
	if c.Redis.Enabled && c.Redis.URL == "" && c.Redis.Addr == "" {
		add("redis: url or addr must be set")
	}

	if c.Postgres.Enabled && strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			add("postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			add("postgres: port must be 1-65535, got %d", c.Postgres.Port)
		}
		if c.Postgres.Database == "" {
			add("postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		add("postgres: pool_min_conns must not exceed pool_max_conns")
	}

	if c.Archive.Enabled {
		if !c.Postgres.Enabled {
			add("archive: requires postgres.enabled")
		}
		if c.S3.Bucket == "" {
			add("s3: bucket must not be empty when archive is enabled")
		}
		if c.Archive.RetentionDays < 1 {
			add("archive: retention_days must be >= 1")
		}
		if c.Archive.Interval.Duration <= 0 {
			add("archive: interval must be positive")
		}
	}

	if c.Detector.ObservationTTL.Duration <= 0 {
		add("detector: observation_ttl must be positive")
	}
	if c.Detector.BufferSize < 1 {
		add("detector: buffer_size must be >= 1")
	}
	if c.Detector.TradeFraction <= 0 || c.Detector.TradeFraction > 1 {
		add("detector: trade_fraction must be in (0, 1]")
	}
	if c.Queue.DrainInterval.Duration <= 0 {
		add("queue: drain_interval must be positive")
	}
	if c.Queue.MaxRetries < 0 {
		add("queue: max_retries must be >= 0")
	}

	if c.Feed.Enabled {
		if c.Feed.Interval.Duration <= 0 {
			add("feed: interval must be positive")
		}
		if c.Feed.RequestsPerSec <= 0 {
			add("feed: requests_per_sec must be > 0")
		}
	}

	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		add("server: port must be 1-65535, got %d", c.Server.Port)
	}
	if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
		add("server: rate_window must be positive when rate_limit is set")
	}

	if !validAlertLevels[strings.ToLower(c.Notify.MinLevel)] {
		add("notify: unknown min_level %q (valid: info, warning, error, critical)", c.Notify.MinLevel)
	}
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		add("notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
