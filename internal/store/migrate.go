package store

import (
	"context"
	"fmt"
)

// schema is applied idempotently at Open.
const schema = `
CREATE TABLE IF NOT EXISTS wallets (
	id              BIGSERIAL PRIMARY KEY,
	address         TEXT NOT NULL UNIQUE,
	first_trade_at  TIMESTAMPTZ NOT NULL,
	last_trade_at   TIMESTAMPTZ NOT NULL,
	total_trades    INTEGER NOT NULL DEFAULT 0,
	total_volume    DOUBLE PRECISION NOT NULL DEFAULT 0,
	resolved_trades INTEGER NOT NULL DEFAULT 0,
	won_trades      INTEGER NOT NULL DEFAULT 0,
	win_rate        DOUBLE PRECISION,
	is_tracked      BOOLEAN NOT NULL DEFAULT TRUE,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS trades (
	id                 BIGSERIAL PRIMARY KEY,
	wallet_id          BIGINT NOT NULL REFERENCES wallets(id),
	market_id          TEXT NOT NULL,
	question           TEXT NOT NULL DEFAULT '',
	slug               TEXT NOT NULL DEFAULT '',
	category           TEXT NOT NULL DEFAULT '',
	outcome            TEXT NOT NULL DEFAULT '',
	side               TEXT NOT NULL DEFAULT '',
	size               DOUBLE PRECISION NOT NULL,
	price              DOUBLE PRECISION NOT NULL,
	usd_value          DOUBLE PRECISION NOT NULL,
	traded_at          TIMESTAMPTZ NOT NULL,
	price_at_trade     DOUBLE PRECISION NOT NULL,
	resolved           BOOLEAN NOT NULL DEFAULT FALSE,
	resolved_at        TIMESTAMPTZ,
	won                BOOLEAN,
	pnl                DOUBLE PRECISION,
	days_to_resolution BIGINT,
	trader_rank        BIGINT,
	tx_hash            TEXT NOT NULL DEFAULT '',
	created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (wallet_id, market_id, tx_hash)
);

CREATE INDEX IF NOT EXISTS trades_wallet_unresolved_idx
	ON trades (wallet_id) WHERE NOT resolved;

CREATE TABLE IF NOT EXISTS badges (
	id         BIGSERIAL PRIMARY KEY,
	wallet_id  BIGINT NOT NULL REFERENCES wallets(id),
	trade_id   BIGINT REFERENCES trades(id),
	badge_type TEXT NOT NULL,
	reason     TEXT NOT NULL,
	metadata   JSONB NOT NULL DEFAULT '{}',
	earned_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS badges_natural_key
	ON badges (wallet_id, badge_type, COALESCE(trade_id, 0::BIGINT));

CREATE TABLE IF NOT EXISTS scan_runs (
	id          BIGSERIAL PRIMARY KEY,
	job_name    TEXT NOT NULL,
	status      TEXT NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	finished_at TIMESTAMPTZ,
	details     JSONB NOT NULL DEFAULT '{}'
);
`

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("exec schema: %w", err)
	}
	return nil
}
