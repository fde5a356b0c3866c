package config

import (
	"time"
)

// ValidationError represents a validation error for a specific field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationResult holds the result of config validation.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// Validate checks the config for invalid values.
func (c *Config) Validate() ValidationResult {
	var errors []ValidationError

	errors = append(errors, validateScan(&c.Scan)...)
	errors = append(errors, validatePostgres(&c.Postgres)...)
	errors = append(errors, validateServer(&c.Server)...)

	return ValidationResult{
		Valid:  len(errors) == 0,
		Errors: errors,
	}
}

func validateScan(s *ScanConfig) []ValidationError {
	var errors []ValidationError

	if s.JobName == "" {
		errors = append(errors, ValidationError{
			Field:   "scan.job_name",
			Message: "must not be empty",
		})
	}

	if s.DaysBack < 1 {
		errors = append(errors, ValidationError{
			Field:   "scan.days_back",
			Message: "must be at least 1",
		})
	}

	if s.MinTradeSize < 0 {
		errors = append(errors, ValidationError{
			Field:   "scan.min_trade_size",
			Message: "must be non-negative",
		})
	}

	if s.MaxTrades < 1 {
		errors = append(errors, ValidationError{
			Field:   "scan.max_trades",
			Message: "must be at least 1",
		})
	}

	if s.MaxTotalTrades < s.MaxTrades {
		errors = append(errors, ValidationError{
			Field:   "scan.max_total_trades",
			Message: "must be at least scan.max_trades",
		})
	}

	if s.MaxTradesToScan < 1 {
		errors = append(errors, ValidationError{
			Field:   "scan.max_trades_to_scan",
			Message: "must be at least 1",
		})
	}

	if s.MaxNewWallets < 0 {
		errors = append(errors, ValidationError{
			Field:   "scan.max_new_wallets",
			Message: "must be non-negative",
		})
	}

	if s.MaxExistingUpdates < 0 {
		errors = append(errors, ValidationError{
			Field:   "scan.max_existing_updates",
			Message: "must be non-negative",
		})
	}

	if s.Timeout < 1*time.Second {
		errors = append(errors, ValidationError{
			Field:   "scan.timeout",
			Message: "must be at least 1 second",
		})
	}

	if s.FeedCallDelay < 0 {
		errors = append(errors, ValidationError{
			Field:   "scan.feed_call_delay",
			Message: "must be non-negative",
		})
	}

	if s.HighWinRate < 0 || s.HighWinRate > 1 {
		errors = append(errors, ValidationError{
			Field:   "scan.high_win_rate",
			Message: "must be between 0 and 1",
		})
	}

	if s.HighWinRateMinResolved < 1 {
		errors = append(errors, ValidationError{
			Field:   "scan.high_win_rate_min_resolved",
			Message: "must be at least 1",
		})
	}

	if s.BigBetVolumeShare <= 0 || s.BigBetVolumeShare > 1 {
		errors = append(errors, ValidationError{
			Field:   "scan.big_bet_volume_share",
			Message: "must be between 0 (exclusive) and 1",
		})
	}

	if s.LongShotMaxPrice <= 0 || s.LongShotMaxPrice >= 1 {
		errors = append(errors, ValidationError{
			Field:   "scan.long_shot_max_price",
			Message: "must be between 0 and 1 exclusive",
		})
	}

	if s.PreMoveMinDelta <= 0 || s.PreMoveMinDelta >= 1 {
		errors = append(errors, ValidationError{
			Field:   "scan.pre_move_min_delta",
			Message: "must be between 0 and 1 exclusive",
		})
	}

	if s.LateWinnerMaxDays < 0 {
		errors = append(errors, ValidationError{
			Field:   "scan.late_winner_max_days",
			Message: "must be non-negative",
		})
	}

	if s.FirstMoverMaxRank < 1 {
		errors = append(errors, ValidationError{
			Field:   "scan.first_mover_max_rank",
			Message: "must be at least 1",
		})
	}

	return errors
}

func validatePostgres(p *PostgresConfig) []ValidationError {
	var errors []ValidationError

	if p.MaxOpenConns < 1 {
		errors = append(errors, ValidationError{
			Field:   "postgres.max_open_conns",
			Message: "must be at least 1",
		})
	}

	if p.MaxIdleConns < 0 {
		errors = append(errors, ValidationError{
			Field:   "postgres.max_idle_conns",
			Message: "must be non-negative",
		})
	}

	if p.QueryTimeout < 1*time.Second {
		errors = append(errors, ValidationError{
			Field:   "postgres.query_timeout",
			Message: "must be at least 1 second",
		})
	}

	return errors
}

func validateServer(s *ServerConfig) []ValidationError {
	var errors []ValidationError

	if s.Enabled && (s.Port < 1 || s.Port > 65535) {
		errors = append(errors, ValidationError{
			Field:   "server.port",
			Message: "must be a valid port number",
		})
	}

	return errors
}
