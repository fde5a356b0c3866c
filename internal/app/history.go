package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ErrTooActive marks a wallet whose full history exceeds the trade-count
// threshold. It is a distinct outcome from an error: the wallet is simply
// too active to be insider-like, and is excluded from all further stages.
var ErrTooActive = errors.New("wallet too active")

// Reconstructor fetches a candidate's complete trade history to correct its
// first-trade date and filter out high-frequency traders the scan window
// could not see.
type Reconstructor struct {
	logger *zap.Logger
	feed   MarketFeed
}

// NewReconstructor creates a new Reconstructor.
func NewReconstructor(logger *zap.Logger, feed MarketFeed) *Reconstructor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconstructor{logger: logger, feed: feed}
}

// HistoryResult holds the truth derived from a wallet's full history.
type HistoryResult struct {
	FirstTradeAt time.Time // true historical minimum, may predate the scan window
	LastTradeAt  time.Time
	TotalTrades  int // full external history, not the in-window subset
}

// Reconstruct fetches the wallet's entire history. Every candidate has at
// least one in-window trade by construction, so an empty history is an
// error, not a pass. A total count above maxTotalTrades returns ErrTooActive
// wrapped with the count.
func (r *Reconstructor) Reconstruct(ctx context.Context, address string, maxTotalTrades int) (*HistoryResult, error) {
	history, err := r.feed.WalletHistory(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("fetch history for %s: %w", shortID(address), err)
	}

	if len(history) == 0 {
		return nil, fmt.Errorf("empty history for %s: candidate has in-window trades", shortID(address))
	}

	first := history[0].TradedAt()
	last := first
	for _, t := range history[1:] {
		at := t.TradedAt()
		if at.Before(first) {
			first = at
		}
		if at.After(last) {
			last = at
		}
	}

	result := &HistoryResult{
		FirstTradeAt: first,
		LastTradeAt:  last,
		TotalTrades:  len(history),
	}

	if len(history) > maxTotalTrades {
		return result, fmt.Errorf("%w: %d trades exceeds limit %d", ErrTooActive, len(history), maxTotalTrades)
	}

	r.logger.Debug("history reconstructed",
		zap.String("wallet", shortID(address)),
		zap.Int("totalTrades", result.TotalTrades),
		zap.Time("firstTradeAt", result.FirstTradeAt),
	)

	return result, nil
}
