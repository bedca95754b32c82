// Package repository persists prescription files and scan jobs. It
// speaks Postgres through a pgx pool and SQLite through modernc's
// driver, picked apart by the DSN scheme.
package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/osoji/rxscan/internal/common"
)

type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// DB wraps database/sql with the dialect it was opened for. The pgx
// pool is retained so it can be closed after the wrapping *sql.DB.
type DB struct {
	*sql.DB
	dialect Dialect
	pool    *pgxpool.Pool
	logger  *slog.Logger
}

func (d *DB) Dialect() Dialect { return d.dialect }

// Open connects using cfg.DSN and runs migrations. A postgres:// or
// postgresql:// DSN selects pgx; anything else is treated as a SQLite
// file path.
func Open(ctx context.Context, cfg common.DatabaseConfig, logger *slog.Logger) (*DB, error) {
	logger.Info("connecting to database", "dsn", cfg.DSN)

	var db *DB
	var err error
	if strings.HasPrefix(cfg.DSN, "postgres://") || strings.HasPrefix(cfg.DSN, "postgresql://") {
		db, err = openPostgres(ctx, cfg, logger)
	} else {
		db, err = openSQLite(cfg, logger)
	}
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return nil, err
	}

	if err := db.migrate(ctx); err != nil {
		logger.Error("failed to migrate database", "error", err)
		db.Close()
		return nil, err
	}

	logger.Info("successfully connected to database", "dialect", db.dialect)
	return db, nil
}

func openPostgres(ctx context.Context, cfg common.DatabaseConfig, logger *slog.Logger) (*DB, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, err
	}

	pc.MaxConns = cfg.MaxConns
	pc.MinConns = cfg.MinConns
	pc.MaxConnLifetime = cfg.MaxConnLifetime
	pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	pc.ConnConfig.RuntimeParams["application_name"] = "rxscan"
	if cfg.StatementTimeout > 0 {
		pc.ConnConfig.RuntimeParams["statement_timeout"] = cfg.StatementTimeout.String()
	}

	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, err
	}

	return &DB{
		DB:      stdlib.OpenDBFromPool(pool),
		dialect: DialectPostgres,
		pool:    pool,
		logger:  logger,
	}, nil
}

func openSQLite(cfg common.DatabaseConfig, logger *slog.Logger) (*DB, error) {
	dsn := cfg.DSN
	if !strings.Contains(dsn, "?") {
		// _time_format keeps TIMESTAMP columns round-trippable.
		params := "_time_format=sqlite"
		if !strings.Contains(dsn, ":memory:") {
			params = "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&" + params
		}
		dsn += "?" + params
	}
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// SQLite allows one writer; serializing through a single
	// connection avoids SQLITE_BUSY under concurrent scans.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	return &DB{
		DB:      conn,
		dialect: DialectSQLite,
		logger:  logger,
	}, nil
}

// Close closes the wrapped *sql.DB and, for Postgres, the pgx pool
// behind it.
func (d *DB) Close() error {
	d.logger.Info("closing database connections")
	err := d.DB.Close()
	if d.pool != nil {
		d.pool.Close()
	}
	return err
}

// HealthCheck pings using database/sql to catch DSN issues early.
func (d *DB) HealthCheck(ctx context.Context, timeout time.Duration) error {
	d.logger.Debug("pinging database")
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := d.DB.PingContext(ctx); err != nil {
		return err
	}
	d.logger.Debug("database ping successful")
	return nil
}

// rebind rewrites ? placeholders to $1..$n for Postgres. Queries in
// this package are written against the SQLite form.
func (d *DB) rebind(query string) string {
	if d.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
