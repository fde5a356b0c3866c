package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"insiderscan/config"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	"go.uber.org/zap"
)

// Store is a per-run handle on the Postgres persistence layer. Callers open
// one Store per pipeline run and Close it when the run finishes; there is no
// process-wide singleton.
type Store struct {
	logger  *zap.Logger
	db      *sqlx.DB
	timeout time.Duration

	// Advisory locks are session-scoped, so the lock has to live on a
	// dedicated connection rather than the pool.
	lockConn *sql.Conn
}

// Open connects to Postgres, configures the pool, and applies the schema.
func Open(logger *zap.Logger, cfg config.PostgresConfig) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{
		logger:  logger,
		db:      db,
		timeout: cfg.QueryTimeout,
	}

	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return s, nil
}

// Close releases the run lock if held and closes the connection pool.
func (s *Store) Close() error {
	if s.lockConn != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		_, _ = s.lockConn.ExecContext(ctx, `SELECT pg_advisory_unlock_all()`)
		cancel()
		_ = s.lockConn.Close()
		s.lockConn = nil
	}
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// AcquireRunLock takes the advisory lock for the named job. Returns false
// without error if another run already holds it.
func (s *Store) AcquireRunLock(ctx context.Context, jobName string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	conn, err := s.db.DB.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("lock connection: %w", err)
	}

	var acquired bool
	err = conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock(hashtext($1))`, jobName).Scan(&acquired)
	if err != nil {
		conn.Close()
		return false, fmt.Errorf("try advisory lock: %w", err)
	}

	if !acquired {
		conn.Close()
		return false, nil
	}

	s.lockConn = conn
	return true, nil
}

// ReleaseRunLock releases the advisory lock taken by AcquireRunLock.
func (s *Store) ReleaseRunLock(ctx context.Context, jobName string) error {
	if s.lockConn == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.lockConn.ExecContext(ctx, `SELECT pg_advisory_unlock(hashtext($1))`, jobName)
	closeErr := s.lockConn.Close()
	s.lockConn = nil

	if err != nil {
		return fmt.Errorf("advisory unlock: %w", err)
	}
	return closeErr
}

// queryCtx derives the per-query timeout context.
func (s *Store) queryCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}
