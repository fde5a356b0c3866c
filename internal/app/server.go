package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"insiderscan/config"
	"insiderscan/internal/metrics"
	"insiderscan/internal/store"
)

// Server exposes the scan trigger over HTTP. Each POST /scan opens its own
// store, takes the run lock, executes one pipeline run, and closes the
// store; nothing persists between triggers except the feed client.
type Server struct {
	logger *zap.Logger
	cfg    *config.Config
	feed   MarketFeed
	alerts AlertSink

	openStore func(logger *zap.Logger, cfg config.PostgresConfig) (RunStore, error)
	httpSrv   *http.Server
}

// NewServer creates a new Server.
func NewServer(logger *zap.Logger, cfg *config.Config, feed MarketFeed, alerts AlertSink) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		logger: logger,
		cfg:    cfg,
		feed:   feed,
		alerts: alerts,
		openStore: func(logger *zap.Logger, pg config.PostgresConfig) (RunStore, error) {
			return store.Open(logger, pg)
		},
	}
}

// scanRequest carries per-invocation overrides. Zero values fall back to the
// configured defaults.
type scanRequest struct {
	DaysBack           int     `json:"daysBack"`
	MinTradeSize       float64 `json:"minTradeSize"`
	MaxTrades          int     `json:"maxTrades"`
	MaxTotalTrades     int     `json:"maxTotalTrades"`
	MaxTradesToScan    int     `json:"maxTradesToScan"`
	MaxNewWallets      int     `json:"maxNewWallets"`
	MaxExistingUpdates int     `json:"maxExistingUpdates"`
	TimeoutMs          int64   `json:"timeoutMs"`
}

// apply merges the overrides into a copy of the base scan config.
func (r scanRequest) apply(base config.ScanConfig) config.ScanConfig {
	out := base
	if r.DaysBack > 0 {
		out.DaysBack = r.DaysBack
	}
	if r.MinTradeSize > 0 {
		out.MinTradeSize = r.MinTradeSize
	}
	if r.MaxTrades > 0 {
		out.MaxTrades = r.MaxTrades
	}
	if r.MaxTotalTrades > 0 {
		out.MaxTotalTrades = r.MaxTotalTrades
	}
	if r.MaxTradesToScan > 0 {
		out.MaxTradesToScan = r.MaxTradesToScan
	}
	if r.MaxNewWallets > 0 {
		out.MaxNewWallets = r.MaxNewWallets
	}
	if r.MaxExistingUpdates > 0 {
		out.MaxExistingUpdates = r.MaxExistingUpdates
	}
	if r.TimeoutMs > 0 {
		out.Timeout = time.Duration(r.TimeoutMs) * time.Millisecond
	}
	return out
}

// Routes builds the HTTP mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/scan", s.handleScan)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

// Start blocks serving HTTP until Shutdown or a listener error.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Server.Port)
	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      s.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Minute,
	}
	s.logger.Info("trigger server listening", zap.String("addr", addr))
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// RunOnce executes a single scan with the configured defaults, bypassing
// HTTP. Used when the binary runs under an external scheduler.
func (s *Server) RunOnce(ctx context.Context) *RunSummary {
	summary, _ := s.runScan(ctx, s.cfg.Scan)
	return summary
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, "ok")
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{
			"success": false,
			"errors":  []string{"POST required"},
		})
		return
	}

	var req scanRequest
	if body, err := io.ReadAll(io.LimitReader(r.Body, 1<<16)); err == nil && len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"success": false,
				"errors":  []string{fmt.Sprintf("bad request body: %v", err)},
			})
			return
		}
	}

	scanCfg := req.apply(s.cfg.Scan)
	summary, status := s.runScan(r.Context(), scanCfg)
	writeJSON(w, status, summary)
}

// runScan executes one full pipeline invocation: open store, take the run
// lock, write the audit row, run within budget, record the outcome. The
// budget keeps a tenth of the timeout as safety margin so the summary and
// audit write land inside the caller's hard deadline.
func (s *Server) runScan(ctx context.Context, scanCfg config.ScanConfig) (*RunSummary, int) {
	st, err := s.openStore(s.logger, s.cfg.Postgres)
	if err != nil {
		s.logger.Error("store open failed", zap.Error(err))
		sum := &RunSummary{}
		sum.addError("open store: %v", err)
		return sum, http.StatusServiceUnavailable
	}
	defer st.Close()

	acquired, err := st.AcquireRunLock(ctx, scanCfg.JobName)
	if err != nil {
		sum := &RunSummary{}
		sum.addError("acquire run lock: %v", err)
		return sum, http.StatusServiceUnavailable
	}
	if !acquired {
		s.logger.Warn("scan already running, rejecting trigger", zap.String("job", scanCfg.JobName))
		sum := &RunSummary{}
		sum.addError("a %s run is already in progress", scanCfg.JobName)
		return sum, http.StatusConflict
	}
	defer st.ReleaseRunLock(context.WithoutCancel(ctx), scanCfg.JobName)

	runID, err := st.StartRun(ctx, scanCfg.JobName)
	if err != nil {
		sum := &RunSummary{}
		sum.addError("start run audit: %v", err)
		return sum, http.StatusServiceUnavailable
	}

	budget := scanCfg.Timeout - scanCfg.Timeout/10
	runCtx, cancel := context.WithTimeout(ctx, scanCfg.Timeout)
	defer cancel()

	pipeline := NewPipeline(s.logger, s.feed, st, scanCfg, s.alerts)
	summary := pipeline.Run(runCtx, budget)

	status := store.RunStatusCompleted
	switch {
	case !summary.Success:
		status = store.RunStatusFailed
	case summary.TimedOut:
		status = store.RunStatusPartial
	}

	// The run context may already be expired here; the audit write must
	// still land.
	if err := st.FinishRun(context.WithoutCancel(ctx), runID, status, summary); err != nil {
		s.logger.Error("finish run audit failed", zap.Int64("runID", runID), zap.Error(err))
		summary.addError("finish run audit: %v", err)
	}

	return summary, http.StatusOK
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
