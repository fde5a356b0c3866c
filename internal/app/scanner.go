package app

import (
	"context"
	"fmt"
	"time"

	"insiderscan/clients/polymarketapi"

	"go.uber.org/zap"
)

// Scanner discovers candidate wallets from recent, size-filtered feed trades.
type Scanner struct {
	logger *zap.Logger
	feed   MarketFeed
}

// NewScanner creates a new Scanner.
func NewScanner(logger *zap.Logger, feed MarketFeed) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scanner{logger: logger, feed: feed}
}

// ScanParams bound one discovery pass.
type ScanParams struct {
	DaysBack           int     // recency window
	MinTradeSize       float64 // USD floor per trade
	MaxTradesPerWallet int     // in-window ceiling; more is assumed high-frequency
	MaxTradesToScan    int     // hard cap on feed records examined
	MaxWallets         int     // candidate cap
}

// Candidate is a wallet discovered in the scan window along with its
// in-window trades.
type Candidate struct {
	Address string
	Trades  []polymarketapi.Trade
}

// Scan examines at most MaxTradesToScan recent feed records, keeps trades
// inside the recency window at or above the size floor, groups them by
// wallet, and drops wallets whose in-window count exceeds MaxTradesPerWallet.
// That ceiling is a cheap proxy that excludes obvious high-frequency traders
// before the expensive full-history check. A feed error here is fatal for
// the run: a partial candidate set would silently bias discovery.
func (s *Scanner) Scan(ctx context.Context, p ScanParams) ([]Candidate, error) {
	trades, err := s.feed.RecentTrades(ctx, p.MaxTradesToScan)
	if err != nil {
		return nil, fmt.Errorf("feed discovery: %w", err)
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -p.DaysBack)

	grouped := make(map[string][]polymarketapi.Trade)
	var order []string
	for _, t := range trades {
		if t.ProxyWallet == "" {
			continue
		}
		if t.TradedAt().Before(cutoff) {
			continue
		}
		if t.UsdValue() < p.MinTradeSize {
			continue
		}
		if _, seen := grouped[t.ProxyWallet]; !seen {
			order = append(order, t.ProxyWallet)
		}
		grouped[t.ProxyWallet] = append(grouped[t.ProxyWallet], t)
	}

	var candidates []Candidate
	dropped := 0
	for _, addr := range order {
		ts := grouped[addr]
		if len(ts) > p.MaxTradesPerWallet {
			dropped++
			continue
		}
		candidates = append(candidates, Candidate{Address: addr, Trades: ts})
		if len(candidates) >= p.MaxWallets {
			break
		}
	}

	s.logger.Info("scan complete",
		zap.Int("recordsExamined", len(trades)),
		zap.Int("walletsInWindow", len(order)),
		zap.Int("droppedHighFrequency", dropped),
		zap.Int("candidates", len(candidates)),
	)

	return candidates, nil
}
