package config

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Environment
	IsProd bool `json:"is_prod"`

	// Insider scan pipeline
	Scan ScanConfig `json:"scan"`

	// Postgres persistence
	Postgres PostgresConfig `json:"postgres"`

	// Polymarket API
	Polymarket PolymarketConfig `json:"polymarket"`

	// Discord alerting
	Discord DiscordConfig `json:"discord"`

	// Telegram alerting
	Telegram TelegramConfig `json:"telegram"`

	// Trigger HTTP server
	Server ServerConfig `json:"server"`
}

// ScanConfig holds insider scan pipeline configuration.
type ScanConfig struct {
	JobName string `json:"job_name"` // advisory lock key and audit record name

	DaysBack           int     `json:"days_back"`            // recency window for discovery
	MinTradeSize       float64 `json:"min_trade_size"`       // USD floor for candidate trades
	MaxTrades          int     `json:"max_trades"`           // in-window trades per wallet ceiling
	MaxTotalTrades     int     `json:"max_total_trades"`     // full-history ceiling before a wallet is skipped
	MaxTradesToScan    int     `json:"max_trades_to_scan"`   // hard cap on feed records examined
	MaxNewWallets      int     `json:"max_new_wallets"`      // candidate wallets per run
	MaxExistingUpdates int     `json:"max_existing_updates"` // tracked wallets refreshed per run

	Timeout       time.Duration `json:"timeout"`         // wall-clock budget for one run
	FeedCallDelay time.Duration `json:"feed_call_delay"` // fixed delay between feed calls

	// Badge rule thresholds
	FreshWalletMaxAge      time.Duration `json:"fresh_wallet_max_age"`       // max wallet age for fresh-wallet badge
	HighWinRate            float64       `json:"high_win_rate"`              // win rate floor (e.g. 0.80)
	HighWinRateMinResolved int           `json:"high_win_rate_min_resolved"` // sample-size guard
	BigBetVolumeShare      float64       `json:"big_bet_volume_share"`       // share of total volume (e.g. 0.50)
	LongShotMaxPrice       float64       `json:"long_shot_max_price"`        // entry price ceiling (e.g. 0.25)
	PreMoveMinDelta        float64       `json:"pre_move_min_delta"`         // price move floor (e.g. 0.20)
	LateWinnerMaxDays      int           `json:"late_winner_max_days"`       // days-to-resolution ceiling
	FirstMoverMaxRank      int           `json:"first_mover_max_rank"`       // trader rank ceiling
}

// PostgresConfig holds database connection configuration.
type PostgresConfig struct {
	DSN             string        `json:"-"` // Excluded - env var only
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	QueryTimeout    time.Duration `json:"query_timeout"`
}

// PolymarketConfig holds Polymarket API configuration.
type PolymarketConfig struct {
	GammaAPIURL string `json:"gamma_api_url"`
	DataAPIURL  string `json:"data_api_url"`
}

// DiscordConfig holds Discord-related configuration.
type DiscordConfig struct {
	BotToken      string `json:"-"` // Excluded - env var only
	ProdChannelID string `json:"prod_channel_id"`
	BetaChannelID string `json:"beta_channel_id"`
}

// TelegramConfig holds Telegram-related configuration.
type TelegramConfig struct {
	BotToken   string `json:"-"` // Excluded - env var only
	ProdChatID string `json:"prod_chat_id"`
	BetaChatID string `json:"beta_chat_id"`
}

// ServerConfig holds trigger server configuration.
type ServerConfig struct {
	Enabled bool `json:"enabled"`
	Port    int  `json:"port"`
}

// Clone creates a deep copy of the config.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// ToJSON serializes the config to JSON.
func (c *Config) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// Defaults returns a config with hardcoded default values.
func Defaults() *Config {
	return &Config{
		IsProd: false,
		Scan: ScanConfig{
			JobName:            "insider-scan",
			DaysBack:           7,
			MinTradeSize:       500.0,
			MaxTrades:          10,
			MaxTotalTrades:     50,
			MaxTradesToScan:    2000,
			MaxNewWallets:      20,
			MaxExistingUpdates: 25,
			Timeout:            50 * time.Second,
			FeedCallDelay:      200 * time.Millisecond,

			FreshWalletMaxAge:      7 * 24 * time.Hour,
			HighWinRate:            0.80,
			HighWinRateMinResolved: 2,
			BigBetVolumeShare:      0.50,
			LongShotMaxPrice:       0.25,
			PreMoveMinDelta:        0.20,
			LateWinnerMaxDays:      7,
			FirstMoverMaxRank:      10,
		},
		Postgres: PostgresConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			QueryTimeout:    30 * time.Second,
		},
		Polymarket: PolymarketConfig{
			GammaAPIURL: "https://gamma-api.polymarket.com",
			DataAPIURL:  "https://data-api.polymarket.com",
		},
		Discord:  DiscordConfig{},
		Telegram: TelegramConfig{},
		Server: ServerConfig{
			Enabled: true,
			Port:    8080,
		},
	}
}

// Load loads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		IsProd: envBool("STAGE", "PROD"),

		Scan: ScanConfig{
			JobName:            envString("SCAN_JOB_NAME", "insider-scan"),
			DaysBack:           envInt("SCAN_DAYS_BACK", 7),
			MinTradeSize:       envFloat("SCAN_MIN_TRADE_SIZE", 500.0),
			MaxTrades:          envInt("SCAN_MAX_TRADES", 10),
			MaxTotalTrades:     envInt("SCAN_MAX_TOTAL_TRADES", 50),
			MaxTradesToScan:    envInt("SCAN_MAX_TRADES_TO_SCAN", 2000),
			MaxNewWallets:      envInt("SCAN_MAX_NEW_WALLETS", 20),
			MaxExistingUpdates: envInt("SCAN_MAX_EXISTING_UPDATES", 25),
			Timeout:            envDuration("SCAN_TIMEOUT", 50*time.Second),
			FeedCallDelay:      envDuration("SCAN_FEED_CALL_DELAY", 200*time.Millisecond),

			FreshWalletMaxAge:      envDuration("BADGE_FRESH_WALLET_MAX_AGE", 7*24*time.Hour),
			HighWinRate:            envFloat("BADGE_HIGH_WIN_RATE", 0.80),
			HighWinRateMinResolved: envInt("BADGE_HIGH_WIN_RATE_MIN_RESOLVED", 2),
			BigBetVolumeShare:      envFloat("BADGE_BIG_BET_VOLUME_SHARE", 0.50),
			LongShotMaxPrice:       envFloat("BADGE_LONG_SHOT_MAX_PRICE", 0.25),
			PreMoveMinDelta:        envFloat("BADGE_PRE_MOVE_MIN_DELTA", 0.20),
			LateWinnerMaxDays:      envInt("BADGE_LATE_WINNER_MAX_DAYS", 7),
			FirstMoverMaxRank:      envInt("BADGE_FIRST_MOVER_MAX_RANK", 10),
		},

		Postgres: PostgresConfig{
			DSN:             envString("PG_DSN", ""),
			MaxOpenConns:    envInt("PG_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    envInt("PG_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("PG_CONN_MAX_LIFETIME", 30*time.Minute),
			QueryTimeout:    envDuration("PG_QUERY_TIMEOUT", 30*time.Second),
		},

		Polymarket: PolymarketConfig{
			GammaAPIURL: envString("POLYMARKET_GAMMA_API_URL", "https://gamma-api.polymarket.com"),
			DataAPIURL:  envString("POLYMARKET_DATA_API_URL", "https://data-api.polymarket.com"),
		},

		Discord: DiscordConfig{
			BotToken:      envString("DISCORD_BOT_TOKEN", ""),
			ProdChannelID: envString("DISCORD_PROD_CHANNEL_ID", ""),
			BetaChannelID: envString("DISCORD_BETA_CHANNEL_ID", ""),
		},

		Telegram: TelegramConfig{
			BotToken:   envString("TELEGRAM_BOT_KEY", ""),
			ProdChatID: envString("TELEGRAM_PROD_CHAT_ID", ""),
			BetaChatID: envString("TELEGRAM_BETA_CHAT_ID", ""),
		},

		Server: ServerConfig{
			Enabled: envBoolDefault("SERVER_ENABLED", true),
			Port:    envInt("SERVER_PORT", 8080),
		},
	}
}

// Helper functions for parsing environment variables

func envString(key, defaultVal string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func envFloat(key string, defaultVal float64) float64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func envBool(key, trueValue string) bool {
	return strings.EqualFold(strings.TrimSpace(os.Getenv(key)), trueValue)
}

func envBoolDefault(key string, defaultVal bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	return strings.EqualFold(v, "true") || strings.EqualFold(v, "1") || strings.EqualFold(v, "yes")
}
