package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"insiderscan/config"
	"insiderscan/internal/metrics"
)

// State is the orchestrator's position in a run.
type State string

const (
	StateIdle       State = "IDLE"
	StateScanning   State = "SCANNING"
	StateProcessing State = "PROCESSING_CANDIDATES"
	StateRefreshing State = "REFRESHING_TRACKED"
	StateTimedOut   State = "TIMED_OUT"
	StateDone       State = "DONE"
)

// maxReportedErrors bounds the error list carried in a summary. The full
// count is preserved; only the strings are truncated.
const maxReportedErrors = 20

// RunSummary is the structured outcome of one pipeline run. A timed-out run
// is a partial success, not a failure: Success stays true and TimedOut
// records the early stop, with completed vs discovered counts telling the
// caller how far the run got.
type RunSummary struct {
	Success  bool `json:"success"`
	TimedOut bool `json:"timed_out"`

	WalletsScanned    int `json:"wallets_scanned"`
	WalletsQualified  int `json:"wallets_qualified"`
	WalletsCreated    int `json:"wallets_created"`
	WalletsUpdated    int `json:"wallets_updated"`
	WalletsSkipped    int `json:"wallets_skipped"`
	WalletsCompleted  int `json:"wallets_completed"`
	WalletsDiscovered int `json:"wallets_discovered"`
	TrackedRefreshed  int `json:"tracked_refreshed"`

	TradesRecorded int `json:"trades_recorded"`
	TradesResolved int `json:"trades_resolved"`
	BadgesAwarded  int `json:"badges_awarded"`

	ElapsedMs  int64    `json:"elapsed_ms"`
	ErrorCount int      `json:"error_count"`
	Errors     []string `json:"errors,omitempty"`
}

func (s *RunSummary) addError(format string, args ...any) {
	s.ErrorCount++
	if len(s.Errors) < maxReportedErrors {
		s.Errors = append(s.Errors, fmt.Sprintf(format, args...))
	}
}

func (s *RunSummary) addErrors(errs []string) {
	for _, e := range errs {
		s.addError("%s", e)
	}
}

// Pipeline sequences discovery, history reconstruction, recording,
// reconciliation, stats aggregation, and badge evaluation under a wall-clock
// budget. Wallets run strictly one at a time; the only cancellation
// granularity is between wallets.
type Pipeline struct {
	logger *zap.Logger
	cfg    config.ScanConfig
	repo   Repository

	scanner    *Scanner
	history    *Reconstructor
	recorder   *Recorder
	reconciler *Reconciler
	stats      *Aggregator
	badges     *BadgeEngine

	now   func() time.Time
	state State
}

// NewPipeline wires the pipeline stages against one feed, one repository,
// and one optional alert sink.
func NewPipeline(logger *zap.Logger, feed MarketFeed, repo Repository, cfg config.ScanConfig, alerts AlertSink) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		logger:     logger,
		cfg:        cfg,
		repo:       repo,
		scanner:    NewScanner(logger, feed),
		history:    NewReconstructor(logger, feed),
		recorder:   NewRecorder(logger, repo),
		reconciler: NewReconciler(logger, feed, repo),
		stats:      NewAggregator(logger, repo),
		badges:     NewBadgeEngine(logger, feed, repo, cfg, alerts),
		now:        time.Now,
		state:      StateIdle,
	}
}

// State reports the orchestrator's current state.
func (p *Pipeline) State() State {
	return p.state
}

// Run executes one full pass within budget. budget must already carry the
// caller's safety margin below any hard execution deadline. Only a discovery
// failure aborts the run; every later failure is isolated to its wallet or
// trade and accumulated in the summary.
func (p *Pipeline) Run(ctx context.Context, budget time.Duration) *RunSummary {
	start := p.now()
	deadline := start.Add(budget)
	sum := &RunSummary{Success: true}

	defer func() {
		sum.ElapsedMs = p.now().Sub(start).Milliseconds()
		metrics.RunDuration.Observe(float64(sum.ElapsedMs) / 1000)
		p.state = StateDone
	}()

	p.state = StateScanning
	candidates, err := p.scanner.Scan(ctx, ScanParams{
		DaysBack:           p.cfg.DaysBack,
		MinTradeSize:       p.cfg.MinTradeSize,
		MaxTradesPerWallet: p.cfg.MaxTrades,
		MaxTradesToScan:    p.cfg.MaxTradesToScan,
		MaxWallets:         p.cfg.MaxNewWallets,
	})
	if err != nil {
		// Feed discovery failure is the one fatal outcome.
		sum.Success = false
		sum.addError("%v", err)
		p.logger.Error("run aborted, feed unavailable", zap.Error(err))
		return sum
	}

	sum.WalletsScanned = len(candidates)
	sum.WalletsDiscovered = len(candidates)
	metrics.WalletsScanned.Add(float64(len(candidates)))

	p.state = StateProcessing
	var perWallet time.Duration
	for i, cand := range candidates {
		if p.outOfBudget(deadline, perWallet) {
			p.timeOut(sum, len(candidates)-i)
			return sum
		}
		walletStart := p.now()
		p.processCandidate(ctx, cand, sum)
		perWallet = observeUnit(perWallet, p.now().Sub(walletStart))
	}

	p.state = StateRefreshing
	tracked, err := p.repo.TrackedWallets(ctx, p.cfg.MaxExistingUpdates)
	if err != nil {
		sum.addError("list tracked wallets: %v", err)
		return sum
	}
	var perRefresh time.Duration
	for i, w := range tracked {
		if p.outOfBudget(deadline, perRefresh) {
			p.timeOut(sum, len(tracked)-i)
			return sum
		}
		refreshStart := p.now()
		p.refreshTracked(ctx, w.ID, w.Address, sum)
		perRefresh = observeUnit(perRefresh, p.now().Sub(refreshStart))
	}

	p.logger.Info("run complete",
		zap.Int("discovered", sum.WalletsDiscovered),
		zap.Int("completed", sum.WalletsCompleted),
		zap.Int("skipped", sum.WalletsSkipped),
		zap.Int("refreshed", sum.TrackedRefreshed),
		zap.Int("tradesRecorded", sum.TradesRecorded),
		zap.Int("badgesAwarded", sum.BadgesAwarded),
		zap.Int("errors", sum.ErrorCount),
	)
	return sum
}

// outOfBudget decides whether to start another wallet. Past the deadline the
// answer is always yes; short of it, a wallet is not started unless the
// remaining budget covers the running average cost of one unit, so the run
// stops between wallets rather than overshooting mid-wallet.
func (p *Pipeline) outOfBudget(deadline time.Time, unitCost time.Duration) bool {
	now := p.now()
	if !now.Before(deadline) {
		return true
	}
	return unitCost > 0 && now.Add(unitCost).After(deadline)
}

// observeUnit keeps an exponential-ish running average of wallet cost. The
// first observation seeds it directly.
func observeUnit(avg, sample time.Duration) time.Duration {
	if avg == 0 {
		return sample
	}
	return (avg + sample) / 2
}

func (p *Pipeline) timeOut(sum *RunSummary, remaining int) {
	p.state = StateTimedOut
	sum.TimedOut = true
	metrics.RunsTimedOut.Inc()
	p.logger.Warn("budget exhausted, stopping between wallets",
		zap.Int("completed", sum.WalletsCompleted),
		zap.Int("remaining", remaining),
	)
}

// processCandidate runs the full stage chain for one discovered wallet. A
// wallet that fails history reconstruction leaves no Wallet row behind;
// skipped and errored are distinct outcomes.
func (p *Pipeline) processCandidate(ctx context.Context, cand Candidate, sum *RunSummary) {
	hist, err := p.history.Reconstruct(ctx, cand.Address, p.cfg.MaxTotalTrades)
	if errors.Is(err, ErrTooActive) {
		sum.WalletsSkipped++
		metrics.WalletsSkipped.Inc()
		p.logger.Info("wallet skipped as too active",
			zap.String("wallet", shortID(cand.Address)),
			zap.Int("totalTrades", hist.TotalTrades),
		)
		return
	}
	if err != nil {
		sum.addError("%v", err)
		metrics.WalletErrors.Inc()
		return
	}

	sum.WalletsQualified++
	metrics.WalletsQualified.Inc()

	walletID, created, err := p.repo.UpsertWallet(ctx, cand.Address, hist.FirstTradeAt, hist.LastTradeAt, hist.TotalTrades)
	if err != nil {
		sum.addError("upsert wallet %s: %v", shortID(cand.Address), err)
		metrics.WalletErrors.Inc()
		return
	}
	if created {
		sum.WalletsCreated++
	} else {
		sum.WalletsUpdated++
	}

	recorded, errs := p.recorder.Record(ctx, walletID, cand.Trades)
	sum.TradesRecorded += recorded
	sum.addErrors(errs)
	metrics.TradesRecorded.Add(float64(recorded))

	resolved, errs := p.reconciler.Reconcile(ctx, walletID)
	sum.TradesResolved += resolved
	sum.addErrors(errs)
	metrics.TradesResolved.Add(float64(resolved))

	if err := p.stats.Refresh(ctx, walletID, hist); err != nil {
		sum.addError("%v", err)
	}

	awarded, errs := p.badges.Evaluate(ctx, walletID)
	sum.BadgesAwarded += awarded
	sum.addErrors(errs)

	sum.WalletsCompleted++
}

// refreshTracked reruns reconciliation, stats, and badge evaluation for a
// previously tracked wallet. No rediscovery and no history refetch: the
// point is catching resolutions that landed since the last run.
func (p *Pipeline) refreshTracked(ctx context.Context, walletID int64, address string, sum *RunSummary) {
	resolved, errs := p.reconciler.Reconcile(ctx, walletID)
	sum.TradesResolved += resolved
	sum.addErrors(errs)
	metrics.TradesResolved.Add(float64(resolved))

	if err := p.stats.Refresh(ctx, walletID, nil); err != nil {
		sum.addError("%v", err)
	}

	awarded, errs := p.badges.Evaluate(ctx, walletID)
	sum.BadgesAwarded += awarded
	sum.addErrors(errs)

	sum.TrackedRefreshed++
	p.logger.Debug("tracked wallet refreshed",
		zap.String("wallet", shortID(address)),
		zap.Int("resolved", resolved),
		zap.Int("badges", awarded),
	)
}
