package app

import (
	"context"
	"fmt"
	"time"

	"relay/cmd/identity"

	"github.com/jackc/pgx/v5/pgxpool"
)

// newRepository opens the account store selected by cfg.DBDriver and
// applies pending migrations. persistent is false for the memory driver.
func newRepository(ctx context.Context, cfg Config, log Logger) (repo identity.Repository, persistent bool, err error) {
	switch cfg.DBDriver {
	case DriverMemory:
		log.Info("db.enabled.memory_store")
		return identity.NewMemoryRepository(), false, nil

	case DriverSQLite:
		repo, err := identity.OpenSQLite(ctx, cfg.DBDSN)
		if err != nil {
			return nil, false, fmt.Errorf("open sqlite %q: %w", cfg.DBDSN, err)
		}
		log.Info("db.enabled.sqlite_store", "path", cfg.DBDSN)
		return repo, true, nil

	case DriverMySQL:
		repo, err := identity.OpenMySQL(ctx, cfg.DBDSN)
		if err != nil {
			return nil, false, fmt.Errorf("open mysql: %w", err)
		}
		log.Info("db.enabled.mysql_store")
		return repo, true, nil

	case DriverPostgres:
		pool, err := NewDBPool(ctx, cfg)
		if err != nil {
			return nil, false, fmt.Errorf("open postgres: %w", err)
		}
		if err := identity.MigratePostgres(ctx, pool); err != nil {
			pool.Close()
			return nil, false, err
		}
		repo, err := identity.NewPostgresRepository(pool)
		if err != nil {
			pool.Close()
			return nil, false, err
		}
		log.Info("db.enabled.postgres_store")
		return pgStore{PostgresRepository: repo, pool: pool}, true, nil

	default:
		return nil, false, fmt.Errorf("unknown db driver %q", cfg.DBDriver)
	}
}

// pgStore hands pool ownership to the repository's Close.
type pgStore struct {
	*identity.PostgresRepository
	pool *pgxpool.Pool
}

func (s pgStore) Close() error {
	s.pool.Close()
	return nil
}

// NewDBPool builds a pgxpool with sane defaults and validates connectivity.
func NewDBPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DBDSN)
	if err != nil {
		return nil, err
	}

	if cfg.DBMaxConns > 0 {
		pcfg.MaxConns = cfg.DBMaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}

	if err := PingDB(ctx, pool, 3*time.Second); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}

// PingDB checks if we can acquire a connection within timeout.
func PingDB(parent context.Context, pool *pgxpool.Pool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}
	conn.Release()
	return nil
}
