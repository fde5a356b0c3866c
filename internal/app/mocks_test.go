package app

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"insiderscan/clients/notifier"
	"insiderscan/clients/polymarketapi"
	"insiderscan/internal/store"
)

// fakeFeed is an in-memory MarketFeed for testing.
type fakeFeed struct {
	mu sync.Mutex

	recent    []polymarketapi.Trade
	recentErr error

	histories  map[string][]polymarketapi.Trade
	historyErr map[string]error

	resolutions   map[string]*polymarketapi.Resolution
	resolutionErr map[string]error

	prices   map[string]map[string]float64
	priceErr map[string]error

	historyCalls    []string
	resolutionCalls int

	// onHistory runs before each history fetch; used to simulate slow wallets.
	onHistory func()
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{
		histories:     make(map[string][]polymarketapi.Trade),
		historyErr:    make(map[string]error),
		resolutions:   make(map[string]*polymarketapi.Resolution),
		resolutionErr: make(map[string]error),
		prices:        make(map[string]map[string]float64),
		priceErr:      make(map[string]error),
	}
}

func (f *fakeFeed) RecentTrades(ctx context.Context, maxScan int) ([]polymarketapi.Trade, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recentErr != nil {
		return nil, f.recentErr
	}
	if len(f.recent) > maxScan {
		return f.recent[:maxScan], nil
	}
	return f.recent, nil
}

func (f *fakeFeed) WalletHistory(ctx context.Context, wallet string) ([]polymarketapi.Trade, error) {
	f.mu.Lock()
	cb := f.onHistory
	f.historyCalls = append(f.historyCalls, wallet)
	err := f.historyErr[wallet]
	history := f.histories[wallet]
	f.mu.Unlock()

	if cb != nil {
		cb()
	}
	if err != nil {
		return nil, err
	}
	return history, nil
}

func (f *fakeFeed) MarketResolution(ctx context.Context, conditionID string) (*polymarketapi.Resolution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolutionCalls++
	if err := f.resolutionErr[conditionID]; err != nil {
		return nil, err
	}
	if res, ok := f.resolutions[conditionID]; ok {
		return res, nil
	}
	return &polymarketapi.Resolution{Resolved: false}, nil
}

func (f *fakeFeed) LatestPrices(ctx context.Context, conditionID string) (map[string]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.priceErr[conditionID]; err != nil {
		return nil, err
	}
	return f.prices[conditionID], nil
}

// fakeRepo is an in-memory Repository/RunStore mirroring the Postgres upsert
// semantics: natural-key conflicts refresh descriptive fields only, wallet
// merges keep the earliest first trade and the largest totals.
type fakeRepo struct {
	mu sync.Mutex

	nextID      int64
	wallets     map[string]*store.Wallet
	walletsByID map[int64]*store.Wallet
	trades      map[string]*store.Trade
	tradesByID  map[int64]*store.Trade
	badges      map[string]*store.Badge

	lockHeld    bool
	lockRefused bool
	runsStarted int
	finished    []string
	closed      bool

	upsertWalletErr error
	upsertTradeErr  error
	markResolvedErr error
	upsertBadgeErr  error
	trackedErr      error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		wallets:     make(map[string]*store.Wallet),
		walletsByID: make(map[int64]*store.Wallet),
		trades:      make(map[string]*store.Trade),
		tradesByID:  make(map[int64]*store.Trade),
		badges:      make(map[string]*store.Badge),
	}
}

func (r *fakeRepo) id() int64 {
	r.nextID++
	return r.nextID
}

func (r *fakeRepo) UpsertWallet(ctx context.Context, address string, firstTradeAt, lastTradeAt time.Time, totalTrades int) (int64, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.upsertWalletErr != nil {
		return 0, false, r.upsertWalletErr
	}
	if w, ok := r.wallets[address]; ok {
		if firstTradeAt.Before(w.FirstTradeAt) {
			w.FirstTradeAt = firstTradeAt
		}
		if lastTradeAt.After(w.LastTradeAt) {
			w.LastTradeAt = lastTradeAt
		}
		if totalTrades > w.TotalTrades {
			w.TotalTrades = totalTrades
		}
		w.UpdatedAt = time.Now()
		return w.ID, false, nil
	}
	w := &store.Wallet{
		ID:           r.id(),
		Address:      address,
		FirstTradeAt: firstTradeAt,
		LastTradeAt:  lastTradeAt,
		TotalTrades:  totalTrades,
		IsTracked:    true,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	r.wallets[address] = w
	r.walletsByID[w.ID] = w
	return w.ID, true, nil
}

func (r *fakeRepo) GetWalletByID(ctx context.Context, id int64) (*store.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.walletsByID[id]
	if !ok {
		return nil, fmt.Errorf("wallet %d not found", id)
	}
	cp := *w
	return &cp, nil
}

func (r *fakeRepo) RecomputeWalletStats(ctx context.Context, walletID int64, trueTotalTrades int, trueFirstTradeAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.walletsByID[walletID]
	if !ok {
		return fmt.Errorf("wallet %d not found", walletID)
	}

	var (
		count    int
		volume   float64
		resolved int
		won      int
		first    time.Time
		last     time.Time
	)
	for _, t := range r.tradesByID {
		if t.WalletID != walletID {
			continue
		}
		count++
		volume += t.UsdValue
		if t.Resolved {
			resolved++
			if t.Won.Valid && t.Won.Bool {
				won++
			}
		}
		if first.IsZero() || t.TradedAt.Before(first) {
			first = t.TradedAt
		}
		if t.TradedAt.After(last) {
			last = t.TradedAt
		}
	}

	total := count
	if trueTotalTrades > total {
		total = trueTotalTrades
	}
	if w.TotalTrades > total {
		total = w.TotalTrades
	}
	w.TotalTrades = total
	w.TotalVolume = volume
	w.ResolvedTrades = resolved
	w.WonTrades = won
	if resolved > 0 {
		w.WinRate = sql.NullFloat64{Float64: float64(won) / float64(resolved), Valid: true}
	} else {
		w.WinRate = sql.NullFloat64{}
	}
	if !trueFirstTradeAt.IsZero() && (first.IsZero() || trueFirstTradeAt.Before(first)) {
		first = trueFirstTradeAt
	}
	if !first.IsZero() && (w.FirstTradeAt.IsZero() || first.Before(w.FirstTradeAt)) {
		w.FirstTradeAt = first
	}
	if last.After(w.LastTradeAt) {
		w.LastTradeAt = last
	}
	w.UpdatedAt = time.Now()
	return nil
}

func (r *fakeRepo) TrackedWallets(ctx context.Context, limit int) ([]store.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.trackedErr != nil {
		return nil, r.trackedErr
	}
	var out []store.Wallet
	for _, w := range r.walletsByID {
		if w.IsTracked {
			out = append(out, *w)
		}
	}
	// Oldest updated first.
	for i := range out {
		for j := i + 1; j < len(out); j++ {
			if out[j].UpdatedAt.Before(out[i].UpdatedAt) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func tradeKey(walletID int64, marketID, txHash string) string {
	return fmt.Sprintf("%d|%s|%s", walletID, marketID, txHash)
}

func (r *fakeRepo) UpsertTrade(ctx context.Context, rec store.TradeRecord) (int64, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.upsertTradeErr != nil {
		return 0, false, r.upsertTradeErr
	}
	key := tradeKey(rec.WalletID, rec.MarketID, rec.TxHash)
	if t, ok := r.trades[key]; ok {
		// Conflict refreshes descriptive fields only.
		t.Question = rec.Question
		t.Slug = rec.Slug
		t.Category = rec.Category
		return t.ID, false, nil
	}
	t := &store.Trade{
		ID:           r.id(),
		WalletID:     rec.WalletID,
		MarketID:     rec.MarketID,
		Question:     rec.Question,
		Slug:         rec.Slug,
		Category:     rec.Category,
		Outcome:      rec.Outcome,
		Side:         rec.Side,
		Size:         rec.Size,
		Price:        rec.Price,
		UsdValue:     rec.UsdValue,
		TradedAt:     rec.TradedAt,
		PriceAtTrade: rec.PriceAtTrade,
		TxHash:       rec.TxHash,
		CreatedAt:    time.Now(),
	}
	if rec.TraderRank > 0 {
		t.TraderRank = sql.NullInt64{Int64: int64(rec.TraderRank), Valid: true}
	}
	r.trades[key] = t
	r.tradesByID[t.ID] = t
	return t.ID, true, nil
}

func (r *fakeRepo) UnresolvedTrades(ctx context.Context, walletID int64) ([]store.Trade, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []store.Trade
	for _, t := range r.tradesByID {
		if t.WalletID == walletID && !t.Resolved {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (r *fakeRepo) TradesByWallet(ctx context.Context, walletID int64) ([]store.Trade, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []store.Trade
	for _, t := range r.tradesByID {
		if t.WalletID == walletID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (r *fakeRepo) MarkResolved(ctx context.Context, tradeID int64, won bool, pnl float64, resolvedAt time.Time, daysToResolution int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.markResolvedErr != nil {
		return false, r.markResolvedErr
	}
	t, ok := r.tradesByID[tradeID]
	if !ok {
		return false, fmt.Errorf("trade %d not found", tradeID)
	}
	if t.Resolved {
		return false, nil
	}
	t.Resolved = true
	t.ResolvedAt = sql.NullTime{Time: resolvedAt, Valid: true}
	t.Won = sql.NullBool{Bool: won, Valid: true}
	t.Pnl = sql.NullFloat64{Float64: pnl, Valid: true}
	t.DaysToResolution = sql.NullInt64{Int64: int64(daysToResolution), Valid: true}
	return true, nil
}

func badgeKey(walletID int64, tradeID sql.NullInt64, badgeType string) string {
	tid := int64(0)
	if tradeID.Valid {
		tid = tradeID.Int64
	}
	return fmt.Sprintf("%d|%d|%s", walletID, tid, badgeType)
}

func (r *fakeRepo) UpsertBadge(ctx context.Context, walletID int64, tradeID sql.NullInt64, badgeType, reason string, metadata store.Metadata) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.upsertBadgeErr != nil {
		return false, r.upsertBadgeErr
	}
	key := badgeKey(walletID, tradeID, badgeType)
	if b, ok := r.badges[key]; ok {
		b.Reason = reason
		b.Metadata = metadata
		return false, nil
	}
	r.badges[key] = &store.Badge{
		ID:       r.id(),
		WalletID: walletID,
		TradeID:  tradeID,
		Type:     badgeType,
		Reason:   reason,
		Metadata: metadata,
		EarnedAt: time.Now(),
	}
	return true, nil
}

func (r *fakeRepo) AcquireRunLock(ctx context.Context, jobName string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lockRefused || r.lockHeld {
		return false, nil
	}
	r.lockHeld = true
	return true, nil
}

func (r *fakeRepo) ReleaseRunLock(ctx context.Context, jobName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lockHeld = false
	return nil
}

func (r *fakeRepo) StartRun(ctx context.Context, jobName string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runsStarted++
	return int64(r.runsStarted), nil
}

func (r *fakeRepo) FinishRun(ctx context.Context, runID int64, status string, details any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, status)
	return nil
}

func (r *fakeRepo) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeRepo) badgeTypes(walletID int64) map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int)
	for _, b := range r.badges {
		if b.WalletID == walletID {
			out[b.Type]++
		}
	}
	return out
}

// fakeAlerts records badge alerts.
type fakeAlerts struct {
	mu     sync.Mutex
	alerts []notifier.BadgeAlert
}

func (f *fakeAlerts) SendBadgeAlert(alert notifier.BadgeAlert) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, alert)
}

func (f *fakeAlerts) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.alerts)
}

// fakeClock is a manually advanced clock for budget tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// feedTrade builds a feed trade with sane defaults.
func feedTrade(wallet, market, txHash string, size, price float64, at time.Time) polymarketapi.Trade {
	return polymarketapi.Trade{
		ProxyWallet:     wallet,
		ConditionID:     market,
		TransactionHash: txHash,
		Side:            "BUY",
		Outcome:         "Yes",
		Size:            size,
		Price:           price,
		Timestamp:       at.Unix(),
		Title:           "Test market " + market,
		Slug:            "test-" + market,
		Category:        "Test",
	}
}
