package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Aggregator recomputes a wallet's derived statistics from its persisted
// trades. It must run after recording and reconciliation commit, since it
// reads their durable output.
type Aggregator struct {
	logger *zap.Logger
	repo   Repository
}

// NewAggregator creates a new Aggregator.
func NewAggregator(logger *zap.Logger, repo Repository) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{logger: logger, repo: repo}
}

// Refresh recomputes totals, win rate, and trade-time bounds. history may be
// nil on refresh passes that skip the full-history refetch; when present,
// its true total and first-trade timestamp are reconciled into the stored
// stats so the wallet reflects the full external history rather than the
// persisted subset.
func (a *Aggregator) Refresh(ctx context.Context, walletID int64, history *HistoryResult) error {
	trueTotal := 0
	var trueFirst time.Time
	if history != nil {
		trueTotal = history.TotalTrades
		trueFirst = history.FirstTradeAt
	}

	if err := a.repo.RecomputeWalletStats(ctx, walletID, trueTotal, trueFirst); err != nil {
		return fmt.Errorf("refresh stats for wallet %d: %w", walletID, err)
	}

	a.logger.Debug("wallet stats refreshed", zap.Int64("walletID", walletID))
	return nil
}
