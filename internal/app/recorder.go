package app

import (
	"context"
	"fmt"
	"strings"

	"insiderscan/clients/polymarketapi"
	"insiderscan/internal/store"

	"go.uber.org/zap"
)

// Recorder idempotently persists a wallet's in-window trades.
type Recorder struct {
	logger *zap.Logger
	repo   Repository
}

// NewRecorder creates a new Recorder.
func NewRecorder(logger *zap.Logger, repo Repository) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{logger: logger, repo: repo}
}

// Record upserts each trade by (wallet, market, tx hash). New rows get a
// price_at_trade snapshot; rows that already exist only have their
// descriptive fields refreshed. Per-trade failures are collected and do not
// stop the batch. Returns the number of newly created rows.
func (r *Recorder) Record(ctx context.Context, walletID int64, trades []polymarketapi.Trade) (int, []string) {
	created := 0
	var errs []string

	for _, t := range trades {
		rec := store.TradeRecord{
			WalletID:     walletID,
			MarketID:     t.ConditionID,
			Question:     t.Title,
			Slug:         t.Slug,
			Category:     t.Category,
			Outcome:      t.Outcome,
			Side:         strings.ToUpper(t.Side),
			Size:         t.Size,
			Price:        t.Price,
			UsdValue:     t.UsdValue(),
			TradedAt:     t.TradedAt(),
			PriceAtTrade: t.Price,
			TraderRank:   t.TraderRank,
			TxHash:       t.TransactionHash,
		}

		_, inserted, err := r.repo.UpsertTrade(ctx, rec)
		if err != nil {
			errs = append(errs, fmt.Sprintf("record trade %s/%s: %v", shortID(t.ProxyWallet), t.ConditionID, err))
			continue
		}
		if inserted {
			created++
		}
	}

	if len(trades) > 0 {
		r.logger.Debug("trades recorded",
			zap.Int64("walletID", walletID),
			zap.Int("seen", len(trades)),
			zap.Int("created", created),
			zap.Int("failed", len(errs)),
		)
	}

	return created, errs
}
