package app

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"insiderscan/clients/polymarketapi"
	"insiderscan/internal/store"

	"go.uber.org/zap"
)

func seedTrade(t *testing.T, repo *fakeRepo, walletID int64, market, tx, outcome string, size, price float64, at time.Time) int64 {
	t.Helper()
	id, _, err := repo.UpsertTrade(context.Background(), store.TradeRecord{
		WalletID:     walletID,
		MarketID:     market,
		Outcome:      outcome,
		Side:         "BUY",
		Size:         size,
		Price:        price,
		UsdValue:     size * price,
		TradedAt:     at,
		PriceAtTrade: price,
		TxHash:       tx,
	})
	if err != nil {
		t.Fatalf("seed trade: %v", err)
	}
	return id
}

func TestReconcile_BinarySettlement(t *testing.T) {
	now := time.Now().UTC()
	repo := newFakeRepo()
	feed := newFakeFeed()

	winID := seedTrade(t, repo, 1, "m1", "tx1", "Yes", 100, 0.30, now.Add(-72*time.Hour))
	loseID := seedTrade(t, repo, 1, "m2", "tx2", "No", 50, 0.60, now.Add(-26*time.Hour))

	feed.resolutions["m1"] = &polymarketapi.Resolution{Resolved: true, WinningOutcome: "Yes"}
	feed.resolutions["m2"] = &polymarketapi.Resolution{Resolved: true, WinningOutcome: "Yes"}

	r := NewReconciler(zap.NewNop(), feed, repo)
	r.now = func() time.Time { return now }

	resolved, errs := r.Reconcile(context.Background(), 1)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if resolved != 2 {
		t.Fatalf("expected 2 resolved, got %d", resolved)
	}

	win := repo.tradesByID[winID]
	if !win.Won.Bool {
		t.Error("Yes trade on a Yes market should win")
	}
	// 100 shares bought at 0.30 settle at 1.0: pnl = 100 * 0.70.
	if math.Abs(win.Pnl.Float64-70.0) > 1e-9 {
		t.Errorf("expected winner pnl 70, got %f", win.Pnl.Float64)
	}
	if win.DaysToResolution.Int64 != 3 {
		t.Errorf("expected 3 days to resolution, got %d", win.DaysToResolution.Int64)
	}

	lose := repo.tradesByID[loseID]
	if lose.Won.Bool {
		t.Error("No trade on a Yes market should lose")
	}
	// 50 shares bought at 0.60 settle at 0: pnl = -50 * 0.60.
	if math.Abs(lose.Pnl.Float64-(-30.0)) > 1e-9 {
		t.Errorf("expected loser pnl -30, got %f", lose.Pnl.Float64)
	}
	if lose.DaysToResolution.Int64 != 1 {
		t.Errorf("expected floor(26h/24h)=1 day, got %d", lose.DaysToResolution.Int64)
	}
}

func TestReconcile_UnresolvedMarketIsNoop(t *testing.T) {
	now := time.Now().UTC()
	repo := newFakeRepo()
	feed := newFakeFeed()
	id := seedTrade(t, repo, 1, "m1", "tx1", "Yes", 100, 0.30, now.Add(-time.Hour))

	r := NewReconciler(zap.NewNop(), feed, repo)
	resolved, errs := r.Reconcile(context.Background(), 1)
	if resolved != 0 || len(errs) != 0 {
		t.Fatalf("expected no-op, got resolved=%d errs=%v", resolved, errs)
	}
	if repo.tradesByID[id].Resolved {
		t.Error("trade must stay unresolved")
	}
}

func TestReconcile_TransitionHappensOnce(t *testing.T) {
	now := time.Now().UTC()
	repo := newFakeRepo()
	feed := newFakeFeed()
	seedTrade(t, repo, 1, "m1", "tx1", "Yes", 100, 0.30, now.Add(-time.Hour))
	feed.resolutions["m1"] = &polymarketapi.Resolution{Resolved: true, WinningOutcome: "Yes"}

	r := NewReconciler(zap.NewNop(), feed, repo)
	if resolved, _ := r.Reconcile(context.Background(), 1); resolved != 1 {
		t.Fatalf("expected first pass to resolve 1, got %d", resolved)
	}
	if resolved, _ := r.Reconcile(context.Background(), 1); resolved != 0 {
		t.Fatalf("expected second pass to resolve 0, got %d", resolved)
	}
}

func TestReconcile_PerTradeLookupIsolation(t *testing.T) {
	now := time.Now().UTC()
	repo := newFakeRepo()
	feed := newFakeFeed()
	seedTrade(t, repo, 1, "mbad", "tx1", "Yes", 100, 0.30, now.Add(-time.Hour))
	okID := seedTrade(t, repo, 1, "mok", "tx2", "Yes", 100, 0.30, now.Add(-time.Hour))

	feed.resolutionErr["mbad"] = errors.New("gamma 500")
	feed.resolutions["mok"] = &polymarketapi.Resolution{Resolved: true, WinningOutcome: "Yes"}

	r := NewReconciler(zap.NewNop(), feed, repo)
	resolved, errs := r.Reconcile(context.Background(), 1)
	if resolved != 1 {
		t.Fatalf("expected the healthy market to still resolve, got %d", resolved)
	}
	if len(errs) != 1 {
		t.Fatalf("expected 1 collected error, got %v", errs)
	}
	if !repo.tradesByID[okID].Resolved {
		t.Error("healthy trade should be resolved despite sibling failure")
	}
}

func TestReconcile_OneLookupPerMarket(t *testing.T) {
	now := time.Now().UTC()
	repo := newFakeRepo()
	feed := newFakeFeed()
	seedTrade(t, repo, 1, "m1", "tx1", "Yes", 100, 0.30, now.Add(-time.Hour))
	seedTrade(t, repo, 1, "m1", "tx2", "No", 100, 0.70, now.Add(-time.Hour))
	seedTrade(t, repo, 1, "m1", "tx3", "Yes", 100, 0.40, now.Add(-time.Hour))
	feed.resolutions["m1"] = &polymarketapi.Resolution{Resolved: true, WinningOutcome: "Yes"}

	r := NewReconciler(zap.NewNop(), feed, repo)
	if resolved, _ := r.Reconcile(context.Background(), 1); resolved != 3 {
		t.Fatalf("expected 3 resolved, got %d", resolved)
	}
	if feed.resolutionCalls != 1 {
		t.Errorf("expected a single resolution lookup for the market, got %d", feed.resolutionCalls)
	}
}
