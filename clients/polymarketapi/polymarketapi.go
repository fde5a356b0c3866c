package polymarketapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"insiderscan/config"
	"insiderscan/internal/metrics"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const pageSize = 500

// PolymarketApiClient talks to the Gamma API (market metadata, resolutions)
// and the Data API (trades, wallet history).
type PolymarketApiClient struct {
	logger       *zap.Logger
	httpClient   *http.Client
	gammaBaseURL string
	dataBaseURL  string

	// Feed calls are throttled with a fixed inter-call delay and guarded by a
	// circuit breaker; a tripped breaker surfaces as a feed error upstream.
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

func NewPolymarketApiClient(logger *zap.Logger, cfg *config.Config) *PolymarketApiClient {
	if logger == nil {
		logger = zap.NewNop()
	}

	delay := cfg.Scan.FeedCallDelay
	limiter := rate.NewLimiter(rate.Inf, 1)
	if delay > 0 {
		limiter = rate.NewLimiter(rate.Every(delay), 1)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "polymarket-feed",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("feed breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &PolymarketApiClient{
		logger: logger,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		gammaBaseURL: cfg.Polymarket.GammaAPIURL,
		dataBaseURL:  cfg.Polymarket.DataAPIURL,
		limiter:      limiter,
		breaker:      breaker,
	}
}

// ---- Gamma API types ----

type GammaMarket struct {
	ID          string `json:"id"`
	Slug        string `json:"slug"`
	Question    string `json:"question"`
	Category    string `json:"category"`
	ConditionID string `json:"conditionId"`

	Outcomes      json.RawMessage `json:"outcomes"`
	OutcomePrices json.RawMessage `json:"outcomePrices"`

	Active bool `json:"active"`
	Closed bool `json:"closed"`

	WinningOutcome string `json:"winningOutcome,omitempty"`
	ClosedTime     string `json:"closedTime,omitempty"`
}

// GetOutcomes parses the Outcomes field and returns the outcome names.
func (m *GammaMarket) GetOutcomes() []string {
	if len(m.Outcomes) == 0 {
		return nil
	}

	// Try parsing as direct array
	var outcomes []string
	if err := json.Unmarshal(m.Outcomes, &outcomes); err == nil {
		return outcomes
	}

	// Try parsing as JSON string containing an array (e.g., "[\"Yes\", \"No\"]")
	var jsonStr string
	if err := json.Unmarshal(m.Outcomes, &jsonStr); err == nil {
		if err := json.Unmarshal([]byte(jsonStr), &outcomes); err == nil {
			return outcomes
		}
	}

	return nil
}

// GetOutcomePrices parses the OutcomePrices field and returns prices.
func (m *GammaMarket) GetOutcomePrices() []float64 {
	if len(m.OutcomePrices) == 0 {
		return nil
	}

	parseStrings := func(strs []string) []float64 {
		prices := make([]float64, len(strs))
		for i, s := range strs {
			fmt.Sscanf(s, "%f", &prices[i])
		}
		return prices
	}

	// Try parsing as array of floats
	var prices []float64
	if err := json.Unmarshal(m.OutcomePrices, &prices); err == nil {
		return prices
	}

	// Try parsing as array of strings (sometimes prices are strings)
	var priceStrs []string
	if err := json.Unmarshal(m.OutcomePrices, &priceStrs); err == nil {
		return parseStrings(priceStrs)
	}

	// Try parsing as JSON string containing an array (e.g., "[\"0\", \"1\"]")
	var jsonStr string
	if err := json.Unmarshal(m.OutcomePrices, &jsonStr); err == nil {
		if err := json.Unmarshal([]byte(jsonStr), &prices); err == nil {
			return prices
		}
		if err := json.Unmarshal([]byte(jsonStr), &priceStrs); err == nil {
			return parseStrings(priceStrs)
		}
	}

	return nil
}

// GetWinningOutcome determines which outcome won.
// For resolved markets without an explicit winner, the winning outcome is
// inferred from prices (the winner settles at ~1.0).
// Returns the outcome name and its index, or empty string and -1.
func (m *GammaMarket) GetWinningOutcome() (string, int) {
	if !m.Closed {
		return "", -1
	}

	if m.WinningOutcome != "" {
		outcomes := m.GetOutcomes()
		for i, o := range outcomes {
			if o == m.WinningOutcome {
				return o, i
			}
		}
		return m.WinningOutcome, 0
	}

	prices := m.GetOutcomePrices()
	outcomes := m.GetOutcomes()
	if len(prices) == 0 || len(outcomes) == 0 || len(prices) != len(outcomes) {
		return "", -1
	}

	winnerIdx := -1
	for i, p := range prices {
		if p >= 0.95 {
			winnerIdx = i
			break
		}
	}

	if winnerIdx >= 0 && winnerIdx < len(outcomes) {
		return outcomes[winnerIdx], winnerIdx
	}

	return "", -1
}

// Resolution is the settled state of a market.
type Resolution struct {
	Resolved       bool
	WinningOutcome string
}

// ---- Data API types ----

// Trade represents a trade from the data API.
type Trade struct {
	ID              string  `json:"id"`
	ProxyWallet     string  `json:"proxyWallet"`
	Side            string  `json:"side"` // BUY or SELL
	Size            float64 `json:"size"`
	Price           float64 `json:"price"`
	Timestamp       int64   `json:"timestamp"`
	ConditionID     string  `json:"conditionId"`
	TransactionHash string  `json:"transactionHash"`

	// Market metadata
	Title    string `json:"title"`
	Slug     string `json:"slug"`
	Category string `json:"category,omitempty"`
	Outcome  string `json:"outcome"`

	// Rank of this trader among the market's entrants, when the feed
	// provides it. Zero means unknown.
	TraderRank int `json:"traderRank,omitempty"`
}

// UsdValue returns the notional value of the trade.
func (t Trade) UsdValue() float64 {
	return t.Size * t.Price
}

// TradedAt returns the trade timestamp as a time.Time.
func (t Trade) TradedAt() time.Time {
	return time.Unix(t.Timestamp, 0).UTC()
}

// RecentTrades fetches the most recent trades from the feed, newest first,
// examining at most maxScan records. This cap is the only bound on discovery
// call volume, so it is enforced here rather than by the caller.
func (c *PolymarketApiClient) RecentTrades(ctx context.Context, maxScan int) ([]Trade, error) {
	if maxScan <= 0 {
		return nil, fmt.Errorf("maxScan must be positive")
	}

	var all []Trade
	for offset := 0; len(all) < maxScan; offset += pageSize {
		limit := pageSize
		if remaining := maxScan - len(all); remaining < limit {
			limit = remaining
		}

		page, err := c.fetchTradesPage(ctx, "", limit, offset)
		if err != nil {
			return nil, fmt.Errorf("recent trades page at offset %d: %w", offset, err)
		}
		if len(page) == 0 {
			break
		}

		all = append(all, page...)
		if len(page) < limit {
			break
		}
	}

	return all, nil
}

// WalletHistory fetches the complete trade history for a wallet, not limited
// to any scan window.
func (c *PolymarketApiClient) WalletHistory(ctx context.Context, wallet string) ([]Trade, error) {
	wallet = strings.TrimSpace(wallet)
	if wallet == "" {
		return nil, fmt.Errorf("wallet is empty")
	}

	// Safety cap well above any wallet we'd still consider insider-like.
	const historyCap = 5000

	var all []Trade
	for offset := 0; len(all) < historyCap; offset += pageSize {
		page, err := c.fetchTradesPage(ctx, wallet, pageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("wallet history page at offset %d: %w", offset, err)
		}
		if len(page) == 0 {
			break
		}

		all = append(all, page...)
		if len(page) < pageSize {
			break
		}
	}

	return all, nil
}

// MarketResolution fetches the resolution state of a market by condition ID.
// Returns Resolved=false while the market is still open, or when a closed
// market's winner cannot be determined yet.
func (c *PolymarketApiClient) MarketResolution(ctx context.Context, conditionID string) (*Resolution, error) {
	market, err := c.getMarketByConditionID(ctx, conditionID)
	if err != nil {
		return nil, err
	}

	if !market.Closed {
		return &Resolution{Resolved: false}, nil
	}

	winner, idx := market.GetWinningOutcome()
	if idx < 0 && winner == "" {
		return &Resolution{Resolved: false}, nil
	}

	return &Resolution{Resolved: true, WinningOutcome: winner}, nil
}

// LatestPrices fetches the current outcome prices for a market as a map of
// outcome name to probability.
func (c *PolymarketApiClient) LatestPrices(ctx context.Context, conditionID string) (map[string]float64, error) {
	market, err := c.getMarketByConditionID(ctx, conditionID)
	if err != nil {
		return nil, err
	}

	outcomes := market.GetOutcomes()
	prices := market.GetOutcomePrices()
	if len(outcomes) == 0 || len(outcomes) != len(prices) {
		return nil, fmt.Errorf("market %s has no usable outcome prices", conditionID)
	}

	result := make(map[string]float64, len(outcomes))
	for i, o := range outcomes {
		result[o] = prices[i]
	}

	return result, nil
}

// getMarketByConditionID fetches a specific market by its condition ID.
func (c *PolymarketApiClient) getMarketByConditionID(ctx context.Context, conditionID string) (*GammaMarket, error) {
	conditionID = strings.TrimSpace(conditionID)
	if conditionID == "" {
		return nil, fmt.Errorf("conditionID is empty")
	}

	u, err := url.Parse(c.gammaBaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid gammaBaseURL: %w", err)
	}
	u.Path = "/markets"

	q := u.Query()
	q.Set("condition_id", conditionID)
	q.Set("limit", "1")
	u.RawQuery = q.Encode()

	var markets []GammaMarket
	if err := c.doGet(ctx, u.String(), &markets); err != nil {
		return nil, fmt.Errorf("get market by condition: %w", err)
	}

	if len(markets) == 0 {
		return nil, fmt.Errorf("market not found: %s", conditionID)
	}

	return &markets[0], nil
}

// fetchTradesPage fetches one page of the data API /trades endpoint,
// optionally filtered to one wallet.
func (c *PolymarketApiClient) fetchTradesPage(ctx context.Context, wallet string, limit, offset int) ([]Trade, error) {
	u, err := url.Parse(c.dataBaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid dataBaseURL: %w", err)
	}
	u.Path = "/trades"

	q := u.Query()
	if wallet != "" {
		q.Set("user", wallet)
	}
	q.Set("limit", fmt.Sprintf("%d", limit))
	if offset > 0 {
		q.Set("offset", fmt.Sprintf("%d", offset))
	}
	u.RawQuery = q.Encode()

	var trades []Trade
	if err := c.doGet(ctx, u.String(), &trades); err != nil {
		return nil, fmt.Errorf("get trades: %w", err)
	}

	return trades, nil
}

// doGet performs a rate-limited GET through the breaker and decodes the JSON
// response into dest.
func (c *PolymarketApiClient) doGet(ctx context.Context, url string, dest any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	metrics.FeedRequests.Inc()

	body, err := c.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}

		if resp.StatusCode/100 != 2 {
			return nil, fmt.Errorf("status=%d body=%s", resp.StatusCode, string(raw))
		}

		return raw, nil
	})
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body.([]byte), dest); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}

	return nil
}
