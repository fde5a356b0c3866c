package app

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"insiderscan/config"
	"insiderscan/internal/metrics"
	"insiderscan/internal/store"
)

// Badge types. These are persisted values; renaming one orphans existing rows.
const (
	BadgeFreshWallet  = "fresh_wallet"
	BadgeSingleMarket = "single_market"
	BadgeHighWinRate  = "high_win_rate"
	BadgeBigBet       = "big_bet"
	BadgeLongShot     = "long_shot"
	BadgePreMove      = "pre_move"
	BadgeLateWinner   = "late_winner"
	BadgeFirstMover   = "first_mover"
)

// BadgeCandidate is one rule match before persistence. TradeID is null for
// wallet-level evidence.
type BadgeCandidate struct {
	TradeID  sql.NullInt64
	Type     string
	Reason   string
	Metadata store.Metadata
}

// ruleInput is the read-only snapshot every rule evaluates against. prices
// holds the latest outcome probabilities per market, populated only for
// unresolved markets whose trades are old enough for the pre-move rule.
type ruleInput struct {
	wallet *store.Wallet
	trades []store.Trade
	prices map[string]map[string]float64
	now    time.Time
	cfg    config.ScanConfig
}

type badgeRule struct {
	name string
	eval func(in ruleInput) []BadgeCandidate
}

// badgeRules is the fixed rule table. Rules are pure functions over the
// snapshot; adding a heuristic means adding a row here, nothing else.
var badgeRules = []badgeRule{
	{BadgeFreshWallet, evalFreshWallet},
	{BadgeSingleMarket, evalSingleMarket},
	{BadgeHighWinRate, evalHighWinRate},
	{BadgeBigBet, evalBigBet},
	{BadgeLongShot, evalLongShot},
	{BadgePreMove, evalPreMove},
	{BadgeLateWinner, evalLateWinner},
	{BadgeFirstMover, evalFirstMover},
}

func tradeRef(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: true}
}

func evalFreshWallet(in ruleInput) []BadgeCandidate {
	if in.wallet.FirstTradeAt.IsZero() {
		return nil
	}
	age := in.now.Sub(in.wallet.FirstTradeAt)
	if age < 0 || age > in.cfg.FreshWalletMaxAge {
		return nil
	}
	ageDays := age.Hours() / 24
	return []BadgeCandidate{{
		Type:   BadgeFreshWallet,
		Reason: fmt.Sprintf("first trade only %.1f days ago", ageDays),
		Metadata: store.Metadata{
			"age_days":       ageDays,
			"threshold_days": in.cfg.FreshWalletMaxAge.Hours() / 24,
		},
	}}
}

func evalSingleMarket(in ruleInput) []BadgeCandidate {
	if len(in.trades) == 0 {
		return nil
	}
	market := in.trades[0].MarketID
	for _, t := range in.trades[1:] {
		if t.MarketID != market {
			return nil
		}
	}
	return []BadgeCandidate{{
		Type:     BadgeSingleMarket,
		Reason:   fmt.Sprintf("all %d recorded trades target a single market", len(in.trades)),
		Metadata: store.Metadata{"trade_count": float64(len(in.trades))},
	}}
}

func evalHighWinRate(in ruleInput) []BadgeCandidate {
	w := in.wallet
	if !w.WinRate.Valid || w.WinRate.Float64 < in.cfg.HighWinRate {
		return nil
	}
	if w.ResolvedTrades < in.cfg.HighWinRateMinResolved {
		return nil
	}
	return []BadgeCandidate{{
		Type:   BadgeHighWinRate,
		Reason: fmt.Sprintf("%.0f%% win rate over %d resolved trades", w.WinRate.Float64*100, w.ResolvedTrades),
		Metadata: store.Metadata{
			"win_rate":        w.WinRate.Float64,
			"resolved_trades": float64(w.ResolvedTrades),
			"won_trades":      float64(w.WonTrades),
		},
	}}
}

func evalBigBet(in ruleInput) []BadgeCandidate {
	total := in.wallet.TotalVolume
	if total <= 0 {
		return nil
	}
	var out []BadgeCandidate
	for _, t := range in.trades {
		share := t.UsdValue / total
		if share <= in.cfg.BigBetVolumeShare {
			continue
		}
		out = append(out, BadgeCandidate{
			TradeID: tradeRef(t.ID),
			Type:    BadgeBigBet,
			Reason:  fmt.Sprintf("$%.0f bet is %.0f%% of the wallet's $%.0f total volume", t.UsdValue, share*100, total),
			Metadata: store.Metadata{
				"usd_value":    t.UsdValue,
				"total_volume": total,
				"share":        share,
			},
		})
	}
	return out
}

func evalLongShot(in ruleInput) []BadgeCandidate {
	var out []BadgeCandidate
	for _, t := range in.trades {
		if t.Price >= in.cfg.LongShotMaxPrice {
			continue
		}
		if !t.Won.Valid || !t.Won.Bool {
			continue
		}
		out = append(out, BadgeCandidate{
			TradeID: tradeRef(t.ID),
			Type:    BadgeLongShot,
			Reason:  fmt.Sprintf("won a position entered at %.0f%% implied probability", t.Price*100),
			Metadata: store.Metadata{
				"entry_price": t.Price,
				"pnl":         t.Pnl.Float64,
			},
		})
	}
	return out
}

func evalPreMove(in ruleInput) []BadgeCandidate {
	var out []BadgeCandidate
	for _, t := range in.trades {
		if t.Resolved {
			continue
		}
		byOutcome, ok := in.prices[t.MarketID]
		if !ok {
			continue
		}
		latest, ok := outcomePrice(byOutcome, t.Outcome)
		if !ok {
			continue
		}
		delta := latest - t.PriceAtTrade
		if math.Abs(delta) < in.cfg.PreMoveMinDelta {
			continue
		}
		out = append(out, BadgeCandidate{
			TradeID: tradeRef(t.ID),
			Type:    BadgePreMove,
			Reason:  fmt.Sprintf("price moved %+.0f points since entry at %.0f%%", delta*100, t.PriceAtTrade*100),
			Metadata: store.Metadata{
				"price_at_trade": t.PriceAtTrade,
				"latest_price":   latest,
				"delta":          delta,
			},
		})
	}
	return out
}

func evalLateWinner(in ruleInput) []BadgeCandidate {
	var out []BadgeCandidate
	for _, t := range in.trades {
		if !t.Won.Valid || !t.Won.Bool || !t.DaysToResolution.Valid {
			continue
		}
		days := t.DaysToResolution.Int64
		if days > int64(in.cfg.LateWinnerMaxDays) {
			continue
		}
		out = append(out, BadgeCandidate{
			TradeID: tradeRef(t.ID),
			Type:    BadgeLateWinner,
			Reason:  fmt.Sprintf("entered %d days before the market resolved in their favor", days),
			Metadata: store.Metadata{
				"days_to_resolution": float64(days),
				"pnl":                t.Pnl.Float64,
			},
		})
	}
	return out
}

func evalFirstMover(in ruleInput) []BadgeCandidate {
	var out []BadgeCandidate
	for _, t := range in.trades {
		if !t.TraderRank.Valid || t.TraderRank.Int64 <= 0 {
			continue
		}
		rank := t.TraderRank.Int64
		if rank > int64(in.cfg.FirstMoverMaxRank) {
			continue
		}
		out = append(out, BadgeCandidate{
			TradeID: tradeRef(t.ID),
			Type:    BadgeFirstMover,
			Reason:  fmt.Sprintf("trader #%d into the market", rank),
			Metadata: store.Metadata{
				"trader_rank": float64(rank),
			},
		})
	}
	return out
}

func outcomePrice(byOutcome map[string]float64, outcome string) (float64, bool) {
	if p, ok := byOutcome[outcome]; ok {
		return p, true
	}
	for name, p := range byOutcome {
		if strings.EqualFold(name, outcome) {
			return p, true
		}
	}
	return 0, false
}

// BadgeEngine runs the rule table over a wallet's current state and persists
// matches. It re-runs after every recording and reconciliation pass since
// several rules only become true post-resolution.
type BadgeEngine struct {
	logger *zap.Logger
	feed   MarketFeed
	repo   Repository
	cfg    config.ScanConfig
	alerts AlertSink
	now    func() time.Time
}

// NewBadgeEngine creates a new BadgeEngine. alerts may be nil.
func NewBadgeEngine(logger *zap.Logger, feed MarketFeed, repo Repository, cfg config.ScanConfig, alerts AlertSink) *BadgeEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BadgeEngine{
		logger: logger,
		feed:   feed,
		repo:   repo,
		cfg:    cfg,
		alerts: alerts,
		now:    time.Now,
	}
}

// Evaluate loads the wallet snapshot, runs every rule, and upserts the
// matches. It returns the number of newly created badges; refreshed badges
// (same natural key, updated evidence) do not count. Price lookup failures
// only suppress the pre-move rule and are collected, not fatal.
func (e *BadgeEngine) Evaluate(ctx context.Context, walletID int64) (int, []string) {
	var errs []string

	wallet, err := e.repo.GetWalletByID(ctx, walletID)
	if err != nil {
		return 0, []string{fmt.Sprintf("load wallet %d: %v", walletID, err)}
	}
	trades, err := e.repo.TradesByWallet(ctx, walletID)
	if err != nil {
		return 0, []string{fmt.Sprintf("load trades for wallet %d: %v", walletID, err)}
	}

	now := e.now()
	in := ruleInput{
		wallet: wallet,
		trades: trades,
		prices: e.fetchLatestPrices(ctx, wallet, trades, now, &errs),
		now:    now,
		cfg:    e.cfg,
	}

	awarded := 0
	for _, rule := range badgeRules {
		for _, c := range rule.eval(in) {
			created, err := e.repo.UpsertBadge(ctx, walletID, c.TradeID, c.Type, c.Reason, c.Metadata)
			if err != nil {
				errs = append(errs, fmt.Sprintf("badge %s wallet %d: %v", c.Type, walletID, err))
				continue
			}
			if !created {
				continue
			}
			awarded++
			metrics.BadgesAwarded.WithLabelValues(c.Type).Inc()
			e.logger.Info("badge awarded",
				zap.String("wallet", shortID(wallet.Address)),
				zap.String("badge", c.Type),
				zap.String("reason", c.Reason))
			if e.alerts != nil {
				e.alerts.SendBadgeAlert(badgeAlert(wallet, c, now))
			}
		}
	}
	return awarded, errs
}

// fetchLatestPrices gathers current outcome probabilities for the markets the
// pre-move rule will look at. Only unresolved trades at least a day old
// qualify, so a position opened this morning cannot badge off ordinary
// volatility.
func (e *BadgeEngine) fetchLatestPrices(ctx context.Context, wallet *store.Wallet, trades []store.Trade, now time.Time, errs *[]string) map[string]map[string]float64 {
	const minAge = 24 * time.Hour

	prices := make(map[string]map[string]float64)
	for _, t := range trades {
		if t.Resolved || now.Sub(t.TradedAt) < minAge {
			continue
		}
		if _, done := prices[t.MarketID]; done {
			continue
		}
		byOutcome, err := e.feed.LatestPrices(ctx, t.MarketID)
		if err != nil {
			*errs = append(*errs, fmt.Sprintf("latest prices %s: %v", t.MarketID, err))
			e.logger.Warn("latest price lookup failed",
				zap.String("wallet", shortID(wallet.Address)),
				zap.String("market", t.MarketID),
				zap.Error(err))
			prices[t.MarketID] = nil
			continue
		}
		prices[t.MarketID] = byOutcome
	}
	return prices
}
