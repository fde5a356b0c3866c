package app

import (
	"context"
	"database/sql"
	"time"

	"insiderscan/clients/polymarketapi"
	"insiderscan/internal/store"
)

// MarketFeed is the slice of the Polymarket client the pipeline consumes.
type MarketFeed interface {
	RecentTrades(ctx context.Context, maxScan int) ([]polymarketapi.Trade, error)
	WalletHistory(ctx context.Context, wallet string) ([]polymarketapi.Trade, error)
	MarketResolution(ctx context.Context, conditionID string) (*polymarketapi.Resolution, error)
	LatestPrices(ctx context.Context, conditionID string) (map[string]float64, error)
}

// Repository is the persistence surface the pipeline consumes. One
// implementation is opened per run and closed when the run finishes.
type Repository interface {
	UpsertWallet(ctx context.Context, address string, firstTradeAt, lastTradeAt time.Time, totalTrades int) (int64, bool, error)
	GetWalletByID(ctx context.Context, id int64) (*store.Wallet, error)
	RecomputeWalletStats(ctx context.Context, walletID int64, trueTotalTrades int, trueFirstTradeAt time.Time) error
	TrackedWallets(ctx context.Context, limit int) ([]store.Wallet, error)

	UpsertTrade(ctx context.Context, rec store.TradeRecord) (int64, bool, error)
	UnresolvedTrades(ctx context.Context, walletID int64) ([]store.Trade, error)
	TradesByWallet(ctx context.Context, walletID int64) ([]store.Trade, error)
	MarkResolved(ctx context.Context, tradeID int64, won bool, pnl float64, resolvedAt time.Time, daysToResolution int) (bool, error)

	UpsertBadge(ctx context.Context, walletID int64, tradeID sql.NullInt64, badgeType, reason string, metadata store.Metadata) (bool, error)
}

// RunStore is the full per-run persistence handle: the pipeline's repository
// plus the run lock, the audit trail, and the close that releases both.
type RunStore interface {
	Repository

	AcquireRunLock(ctx context.Context, jobName string) (bool, error)
	ReleaseRunLock(ctx context.Context, jobName string) error
	StartRun(ctx context.Context, jobName string) (int64, error)
	FinishRun(ctx context.Context, runID int64, status string, details any) error
	Close() error
}
