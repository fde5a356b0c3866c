package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"insiderscan/clients/polymarketapi"

	"go.uber.org/zap"
)

// Reconciler resolves pending trades against market outcomes as they become
// known.
type Reconciler struct {
	logger *zap.Logger
	feed   MarketFeed
	repo   Repository

	now func() time.Time
}

// NewReconciler creates a new Reconciler.
func NewReconciler(logger *zap.Logger, feed MarketFeed, repo Repository) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		logger: logger,
		feed:   feed,
		repo:   repo,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Reconcile checks every unresolved trade of the wallet against its market's
// resolution. Unresolved markets are a no-op; a lookup failure for one trade
// is collected and does not block the wallet's other trades. Settlement is
// binary: a share bought at price settles at 1.0 when correct and 0.0
// otherwise, independent of any later price path. The resolved transition
// happens at most once per trade. Returns the number of trades resolved.
func (r *Reconciler) Reconcile(ctx context.Context, walletID int64) (int, []string) {
	pending, err := r.repo.UnresolvedTrades(ctx, walletID)
	if err != nil {
		return 0, []string{fmt.Sprintf("list unresolved trades for wallet %d: %v", walletID, err)}
	}
	if len(pending) == 0 {
		return 0, nil
	}

	// One resolution lookup per market, not per trade.
	resolutions := make(map[string]*polymarketapi.Resolution)

	resolved := 0
	var errs []string

	for _, t := range pending {
		res, ok := resolutions[t.MarketID]
		if !ok {
			var err error
			res, err = r.feed.MarketResolution(ctx, t.MarketID)
			if err != nil {
				errs = append(errs, fmt.Sprintf("resolution lookup for market %s: %v", t.MarketID, err))
				r.logger.Warn("resolution lookup failed, trade stays unresolved",
					zap.String("market", t.MarketID),
					zap.Int64("tradeID", t.ID),
					zap.Error(err),
				)
				continue
			}
			resolutions[t.MarketID] = res
		}

		if res == nil || !res.Resolved {
			continue
		}

		won := strings.EqualFold(t.Outcome, res.WinningOutcome)
		var pnl float64
		if won {
			pnl = t.Size * (1 - t.Price)
		} else {
			pnl = -t.Size * t.Price
		}

		resolvedAt := r.now()
		days := int(resolvedAt.Sub(t.TradedAt).Hours() / 24)

		applied, err := r.repo.MarkResolved(ctx, t.ID, won, pnl, resolvedAt, days)
		if err != nil {
			errs = append(errs, fmt.Sprintf("mark trade %d resolved: %v", t.ID, err))
			continue
		}
		if applied {
			resolved++
		}
	}

	if resolved > 0 {
		r.logger.Info("trades reconciled",
			zap.Int64("walletID", walletID),
			zap.Int("resolved", resolved),
			zap.Int("stillPending", len(pending)-resolved),
		)
	}

	return resolved, errs
}
