package store

import (
	"context"
	"fmt"
	"time"
)

// TradeRecord carries the fields written on trade creation.
type TradeRecord struct {
	WalletID     int64
	MarketID     string
	Question     string
	Slug         string
	Category     string
	Outcome      string
	Side         string
	Size         float64
	Price        float64
	UsdValue     float64
	TradedAt     time.Time
	PriceAtTrade float64
	TraderRank   int
	TxHash       string
}

// UpsertTrade inserts the trade, or on natural-key conflict refreshes only
// the descriptive fields. Financial fields and resolution state on an
// existing row are never touched, so later presentation changes in the feed
// cannot corrupt what was recorded at trade time. Returns the trade row id
// and whether a new row was created.
func (s *Store) UpsertTrade(ctx context.Context, rec TradeRecord) (int64, bool, error) {
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	var rank any
	if rec.TraderRank > 0 {
		rank = rec.TraderRank
	}

	query := `
		INSERT INTO trades (
			wallet_id, market_id, question, slug, category, outcome, side,
			size, price, usd_value, traded_at, price_at_trade, trader_rank, tx_hash
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (wallet_id, market_id, tx_hash) DO UPDATE SET
			question = EXCLUDED.question,
			slug     = EXCLUDED.slug,
			category = EXCLUDED.category
		RETURNING id, (xmax = 0) AS inserted`

	var id int64
	var inserted bool
	err := s.db.QueryRowxContext(ctx, query,
		rec.WalletID, rec.MarketID, rec.Question, rec.Slug, rec.Category,
		rec.Outcome, rec.Side, rec.Size, rec.Price, rec.UsdValue,
		rec.TradedAt, rec.PriceAtTrade, rank, rec.TxHash,
	).Scan(&id, &inserted)
	if err != nil {
		return 0, false, fmt.Errorf("upsert trade (wallet %d, market %s): %w", rec.WalletID, rec.MarketID, err)
	}

	return id, inserted, nil
}

// UnresolvedTrades returns the wallet's trades still awaiting resolution.
func (s *Store) UnresolvedTrades(ctx context.Context, walletID int64) ([]Trade, error) {
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	var trades []Trade
	err := s.db.SelectContext(ctx, &trades, `
		SELECT * FROM trades
		WHERE wallet_id = $1 AND NOT resolved
		ORDER BY traded_at ASC`, walletID)
	if err != nil {
		return nil, fmt.Errorf("list unresolved trades for wallet %d: %w", walletID, err)
	}

	return trades, nil
}

// TradesByWallet returns all persisted trades for the wallet.
func (s *Store) TradesByWallet(ctx context.Context, walletID int64) ([]Trade, error) {
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	var trades []Trade
	err := s.db.SelectContext(ctx, &trades, `
		SELECT * FROM trades
		WHERE wallet_id = $1
		ORDER BY traded_at ASC`, walletID)
	if err != nil {
		return nil, fmt.Errorf("list trades for wallet %d: %w", walletID, err)
	}

	return trades, nil
}

// MarkResolved transitions a trade from unresolved to resolved exactly once.
// Returns false if the trade was already resolved (or does not exist); the
// guard in the WHERE clause makes the transition terminal.
func (s *Store) MarkResolved(ctx context.Context, tradeID int64, won bool, pnl float64, resolvedAt time.Time, daysToResolution int) (bool, error) {
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `
		UPDATE trades SET
			resolved           = TRUE,
			resolved_at        = $2,
			won                = $3,
			pnl                = $4,
			days_to_resolution = $5
		WHERE id = $1 AND NOT resolved`,
		tradeID, resolvedAt, won, pnl, daysToResolution)
	if err != nil {
		return false, fmt.Errorf("mark trade %d resolved: %w", tradeID, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark trade %d resolved: %w", tradeID, err)
	}

	return rows == 1, nil
}
