package polymarketapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"insiderscan/config"

	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*PolymarketApiClient, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := config.Defaults()
	cfg.Polymarket.GammaAPIURL = server.URL
	cfg.Polymarket.DataAPIURL = server.URL
	cfg.Scan.FeedCallDelay = 0 // no throttling in tests

	return NewPolymarketApiClient(zap.NewNop(), cfg), server
}

func TestRecentTrades_Paginates(t *testing.T) {
	requests := 0
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
		limit := r.URL.Query().Get("limit")

		var trades []Trade
		n := pageSize
		if limit == "100" {
			n = 100
		}
		for i := 0; i < n; i++ {
			trades = append(trades, Trade{ProxyWallet: "0xabc", Size: 1, Price: 0.5, Timestamp: time.Now().Unix()})
		}
		json.NewEncoder(w).Encode(trades)
	})

	trades, err := client.RecentTrades(context.Background(), 600)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(trades) != 600 {
		t.Errorf("expected exactly 600 trades, got %d", len(trades))
	}
	if requests != 2 {
		t.Errorf("expected 2 page fetches (500 + 100), got %d", requests)
	}
}

func TestRecentTrades_StopsOnShortPage(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		trades := []Trade{{ProxyWallet: "0xabc"}, {ProxyWallet: "0xdef"}}
		json.NewEncoder(w).Encode(trades)
	})

	trades, err := client.RecentTrades(context.Background(), 2000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(trades) != 2 {
		t.Errorf("expected 2 trades, got %d", len(trades))
	}
}

func TestWalletHistory_FiltersToWallet(t *testing.T) {
	var gotUser string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotUser = r.URL.Query().Get("user")
		json.NewEncoder(w).Encode([]Trade{{ProxyWallet: "0xabc"}})
	})

	history, err := client.WalletHistory(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotUser != "0xabc" {
		t.Errorf("expected user query param, got %q", gotUser)
	}
	if len(history) != 1 {
		t.Errorf("expected 1 trade, got %d", len(history))
	}
}

func TestWalletHistory_EmptyWallet(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	if _, err := client.WalletHistory(context.Background(), "  "); err == nil {
		t.Fatal("expected error for empty wallet")
	}
}

func TestMarketResolution_OpenMarket(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]GammaMarket{{
			ConditionID: "m1",
			Closed:      false,
			Outcomes:    json.RawMessage(`"[\"Yes\", \"No\"]"`),
		}})
	})

	res, err := client.MarketResolution(context.Background(), "m1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Resolved {
		t.Error("open market must not be resolved")
	}
}

func TestMarketResolution_WinnerFromPrices(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]GammaMarket{{
			ConditionID:   "m1",
			Closed:        true,
			Outcomes:      json.RawMessage(`"[\"Yes\", \"No\"]"`),
			OutcomePrices: json.RawMessage(`"[\"0.02\", \"0.98\"]"`),
		}})
	})

	res, err := client.MarketResolution(context.Background(), "m1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Resolved {
		t.Fatal("closed market with settled prices should be resolved")
	}
	if res.WinningOutcome != "No" {
		t.Errorf("expected winner No, got %q", res.WinningOutcome)
	}
}

func TestMarketResolution_ExplicitWinner(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]GammaMarket{{
			ConditionID:    "m1",
			Closed:         true,
			Outcomes:       json.RawMessage(`["Yes", "No"]`),
			WinningOutcome: "Yes",
		}})
	})

	res, err := client.MarketResolution(context.Background(), "m1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Resolved || res.WinningOutcome != "Yes" {
		t.Errorf("expected explicit winner Yes, got %+v", res)
	}
}

func TestMarketResolution_ClosedButUnsettled(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]GammaMarket{{
			ConditionID:   "m1",
			Closed:        true,
			Outcomes:      json.RawMessage(`["Yes", "No"]`),
			OutcomePrices: json.RawMessage(`["0.60", "0.40"]`),
		}})
	})

	res, err := client.MarketResolution(context.Background(), "m1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Resolved {
		t.Error("no outcome at 0.95 yet, must stay unresolved")
	}
}

func TestLatestPrices(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("condition_id") != "m1" {
			t.Errorf("expected condition_id=m1, got %s", r.URL.RawQuery)
		}
		json.NewEncoder(w).Encode([]GammaMarket{{
			ConditionID:   "m1",
			Outcomes:      json.RawMessage(`["Yes", "No"]`),
			OutcomePrices: json.RawMessage(`["0.72", "0.28"]`),
		}})
	})

	prices, err := client.LatestPrices(context.Background(), "m1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if prices["Yes"] != 0.72 || prices["No"] != 0.28 {
		t.Errorf("unexpected prices: %v", prices)
	}
}

func TestDoGet_NonOKStatus(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	})

	if _, err := client.RecentTrades(context.Background(), 10); err == nil {
		t.Fatal("expected error on 429 response")
	}
}

func TestBreaker_TripsAfterConsecutiveFailures(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	for i := 0; i < 5; i++ {
		client.RecentTrades(context.Background(), 10)
	}

	_, err := client.RecentTrades(context.Background(), 10)
	if err == nil {
		t.Fatal("expected error from tripped breaker")
	}
}

func TestTradeHelpers(t *testing.T) {
	tr := Trade{Size: 200, Price: 0.25, Timestamp: 1700000000}
	if tr.UsdValue() != 50 {
		t.Errorf("expected usd value 50, got %f", tr.UsdValue())
	}
	if got := tr.TradedAt(); got != time.Unix(1700000000, 0).UTC() {
		t.Errorf("unexpected traded at: %v", got)
	}
}

func TestGetOutcomePrices_Formats(t *testing.T) {
	cases := []struct {
		raw  string
		want []float64
	}{
		{`[0.3, 0.7]`, []float64{0.3, 0.7}},
		{`["0.3", "0.7"]`, []float64{0.3, 0.7}},
		{`"[\"0.3\", \"0.7\"]"`, []float64{0.3, 0.7}},
	}

	for _, tc := range cases {
		m := GammaMarket{OutcomePrices: json.RawMessage(tc.raw)}
		got := m.GetOutcomePrices()
		if fmt.Sprint(got) != fmt.Sprint(tc.want) {
			t.Errorf("GetOutcomePrices(%s) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}
