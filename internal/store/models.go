package store

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Wallet is a tracked prediction-market wallet. The address is the natural
// key; rows are created on first discovery and never deleted.
type Wallet struct {
	ID             int64           `db:"id"`
	Address        string          `db:"address"`
	FirstTradeAt   time.Time       `db:"first_trade_at"`
	LastTradeAt    time.Time       `db:"last_trade_at"`
	TotalTrades    int             `db:"total_trades"`
	TotalVolume    float64         `db:"total_volume"`
	ResolvedTrades int             `db:"resolved_trades"`
	WonTrades      int             `db:"won_trades"`
	WinRate        sql.NullFloat64 `db:"win_rate"`
	IsTracked      bool            `db:"is_tracked"`
	CreatedAt      time.Time       `db:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at"`
}

// Trade is one persisted execution. The natural key is
// (wallet_id, market_id, tx_hash), with an empty string standing in for a
// missing transaction hash. Financial fields are immutable once written;
// question/slug/category may be refreshed from the feed.
type Trade struct {
	ID       int64  `db:"id"`
	WalletID int64  `db:"wallet_id"`
	MarketID string `db:"market_id"`

	Question string `db:"question"`
	Slug     string `db:"slug"`
	Category string `db:"category"`

	Outcome      string    `db:"outcome"`
	Side         string    `db:"side"`
	Size         float64   `db:"size"`
	Price        float64   `db:"price"`
	UsdValue     float64   `db:"usd_value"`
	TradedAt     time.Time `db:"traded_at"`
	PriceAtTrade float64   `db:"price_at_trade"`

	Resolved         bool            `db:"resolved"`
	ResolvedAt       sql.NullTime    `db:"resolved_at"`
	Won              sql.NullBool    `db:"won"`
	Pnl              sql.NullFloat64 `db:"pnl"`
	DaysToResolution sql.NullInt64   `db:"days_to_resolution"`

	TraderRank sql.NullInt64 `db:"trader_rank"`
	TxHash     string        `db:"tx_hash"`
	CreatedAt  time.Time     `db:"created_at"`
}

// Metadata holds the numeric evidence that triggered a badge, stored as JSONB.
type Metadata map[string]float64

// Value implements driver.Valuer.
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner.
func (m *Metadata) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*m = nil
		return nil
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("cannot scan %T into Metadata", src)
	}
}

// Badge is an evidence-backed behavioral flag on a wallet or on one of its
// trades (TradeID null = wallet-level evidence). Badges are append-only per
// (wallet, trade, type): re-evaluation refreshes reason and metadata, never
// duplicates.
type Badge struct {
	ID       int64         `db:"id"`
	WalletID int64         `db:"wallet_id"`
	TradeID  sql.NullInt64 `db:"trade_id"`
	Type     string        `db:"badge_type"`
	Reason   string        `db:"reason"`
	Metadata Metadata      `db:"metadata"`
	EarnedAt time.Time     `db:"earned_at"`
}

// ScanRun is the audit record written around each pipeline invocation.
type ScanRun struct {
	ID         int64           `db:"id"`
	JobName    string          `db:"job_name"`
	Status     string          `db:"status"`
	StartedAt  time.Time       `db:"started_at"`
	FinishedAt sql.NullTime    `db:"finished_at"`
	Details    json.RawMessage `db:"details"`
}
