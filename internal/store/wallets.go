package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// UpsertWallet creates the wallet on first discovery or widens its trade-time
// bounds on a later scan. The stored first_trade_at only ever moves earlier
// and last_trade_at only ever moves later; totals never shrink. Returns the
// wallet row id and whether it was created.
func (s *Store) UpsertWallet(ctx context.Context, address string, firstTradeAt, lastTradeAt time.Time, totalTrades int) (int64, bool, error) {
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	query := `
		INSERT INTO wallets (address, first_trade_at, last_trade_at, total_trades, is_tracked)
		VALUES ($1, $2, $3, $4, TRUE)
		ON CONFLICT (address) DO UPDATE SET
			first_trade_at = LEAST(wallets.first_trade_at, EXCLUDED.first_trade_at),
			last_trade_at  = GREATEST(wallets.last_trade_at, EXCLUDED.last_trade_at),
			total_trades   = GREATEST(wallets.total_trades, EXCLUDED.total_trades),
			updated_at     = NOW()
		RETURNING id, (xmax = 0) AS inserted`

	var id int64
	var inserted bool
	err := s.db.QueryRowxContext(ctx, query, address, firstTradeAt, lastTradeAt, totalTrades).Scan(&id, &inserted)
	if err != nil {
		return 0, false, fmt.Errorf("upsert wallet %s: %w", address, err)
	}

	return id, inserted, nil
}

// GetWallet fetches a wallet by address, or nil if unknown.
func (s *Store) GetWallet(ctx context.Context, address string) (*Wallet, error) {
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	var w Wallet
	err := s.db.GetContext(ctx, &w, `SELECT * FROM wallets WHERE address = $1`, address)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get wallet %s: %w", address, err)
	}

	return &w, nil
}

// GetWalletByID fetches a wallet by row id.
func (s *Store) GetWalletByID(ctx context.Context, id int64) (*Wallet, error) {
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	var w Wallet
	err := s.db.GetContext(ctx, &w, `SELECT * FROM wallets WHERE id = $1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get wallet id %d: %w", id, err)
	}

	return &w, nil
}

// RecomputeWalletStats re-derives the wallet's aggregate columns from its
// persisted trades. trueTotalTrades and trueFirstTradeAt come from full
// history reconstruction and take precedence over what the persisted subset
// shows; pass 0 and the zero time on refresh passes that skip the history
// refetch, and the existing values are kept as floors.
func (s *Store) RecomputeWalletStats(ctx context.Context, walletID int64, trueTotalTrades int, trueFirstTradeAt time.Time) error {
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	var trueFirst sql.NullTime
	if !trueFirstTradeAt.IsZero() {
		trueFirst = sql.NullTime{Time: trueFirstTradeAt, Valid: true}
	}

	query := `
		WITH s AS (
			SELECT
				COUNT(*)                                  AS cnt,
				COALESCE(SUM(usd_value), 0)               AS vol,
				COUNT(*) FILTER (WHERE resolved)          AS resolved_cnt,
				COUNT(*) FILTER (WHERE resolved AND won)  AS won_cnt,
				MIN(traded_at)                            AS first_at,
				MAX(traded_at)                            AS last_at
			FROM trades
			WHERE wallet_id = $1
		)
		UPDATE wallets w SET
			total_trades    = GREATEST(s.cnt, $2, w.total_trades),
			total_volume    = s.vol,
			resolved_trades = s.resolved_cnt,
			won_trades      = s.won_cnt,
			win_rate        = CASE WHEN s.resolved_cnt > 0
			                       THEN s.won_cnt::DOUBLE PRECISION / s.resolved_cnt
			                       ELSE NULL END,
			first_trade_at  = LEAST(
				COALESCE(s.first_at, w.first_trade_at),
				COALESCE($3, w.first_trade_at),
				w.first_trade_at),
			last_trade_at   = GREATEST(COALESCE(s.last_at, w.last_trade_at), w.last_trade_at),
			updated_at      = NOW()
		FROM s
		WHERE w.id = $1`

	res, err := s.db.ExecContext(ctx, query, walletID, trueTotalTrades, trueFirst)
	if err != nil {
		return fmt.Errorf("recompute wallet stats %d: %w", walletID, err)
	}

	rows, err := res.RowsAffected()
	if err == nil && rows == 0 {
		return fmt.Errorf("recompute wallet stats %d: wallet not found", walletID)
	}

	return nil
}

// TrackedWallets returns up to limit tracked wallets, oldest-updated first,
// for the refresh pass.
func (s *Store) TrackedWallets(ctx context.Context, limit int) ([]Wallet, error) {
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	var wallets []Wallet
	err := s.db.SelectContext(ctx, &wallets, `
		SELECT * FROM wallets
		WHERE is_tracked
		ORDER BY updated_at ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list tracked wallets: %w", err)
	}

	return wallets, nil
}
