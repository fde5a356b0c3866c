package store

import (
	"context"
	"database/sql"
	"fmt"
)

// UpsertBadge awards or refreshes a badge. The natural key is
// (wallet_id, badge_type, trade_id-or-null); an existing badge gets its
// reason and metadata refreshed but keeps its original earned_at, so
// re-evaluation never duplicates or re-dates evidence. Returns whether the
// badge is newly awarded.
func (s *Store) UpsertBadge(ctx context.Context, walletID int64, tradeID sql.NullInt64, badgeType, reason string, metadata Metadata) (bool, error) {
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	query := `
		INSERT INTO badges (wallet_id, trade_id, badge_type, reason, metadata)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (wallet_id, badge_type, COALESCE(trade_id, 0::BIGINT)) DO UPDATE SET
			reason   = EXCLUDED.reason,
			metadata = EXCLUDED.metadata
		RETURNING (xmax = 0) AS inserted`

	var inserted bool
	err := s.db.QueryRowxContext(ctx, query, walletID, tradeID, badgeType, reason, metadata).Scan(&inserted)
	if err != nil {
		return false, fmt.Errorf("upsert badge %s for wallet %d: %w", badgeType, walletID, err)
	}

	return inserted, nil
}

// BadgesByWallet returns all badges for a wallet, oldest first.
func (s *Store) BadgesByWallet(ctx context.Context, walletID int64) ([]Badge, error) {
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	var badges []Badge
	err := s.db.SelectContext(ctx, &badges, `
		SELECT * FROM badges
		WHERE wallet_id = $1
		ORDER BY earned_at ASC, id ASC`, walletID)
	if err != nil {
		return nil, fmt.Errorf("list badges for wallet %d: %w", walletID, err)
	}

	return badges, nil
}
