package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/joseph-ayodele/survey-extractor/internal/common"
)

// DB is an open ledger database: an ent SQL driver over either a pgx pool
// (Postgres) or modernc SQLite.
type DB struct {
	drv     *entsql.Driver
	pool    *pgxpool.Pool
	dialect string
	logger  *slog.Logger
}

// Open connects using cfg.Driver ("postgres" or "sqlite"). The DSN is logged
// without credentials.
func Open(ctx context.Context, cfg common.DatabaseConfig, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DSN == "" {
		return nil, common.NewAppError("CONFIG_ERROR", "database.dsn is empty", common.ErrInvalidInput)
	}
	logger.Info("connecting to database", "driver", cfg.Driver, "dsn", redact(cfg.DSN))

	switch cfg.Driver {
	case "postgres", "pgx":
		return openPostgres(ctx, cfg, logger)
	case "sqlite", "sqlite3":
		db, err := sql.Open("sqlite", cfg.DSN)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			return nil, err
		}
		// one writer; also keeps ":memory:" databases alive across calls
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			logger.Error("failed to enable sqlite foreign keys", "error", err)
			_ = db.Close()
			return nil, err
		}
		logger.Info("successfully connected to database")
		return &DB{drv: entsql.OpenDB(dialect.SQLite, db), dialect: dialect.SQLite, logger: logger}, nil
	default:
		return nil, common.NewAppError("CONFIG_ERROR", fmt.Sprintf("unknown database driver %q", cfg.Driver), common.ErrInvalidInput)
	}
}

func openPostgres(ctx context.Context, cfg common.DatabaseConfig, logger *slog.Logger) (*DB, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return nil, err
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	pc.MinConns = cfg.MinConns
	pc.MaxConnLifetime = cfg.MaxConnLifetime
	pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	pc.ConnConfig.RuntimeParams["application_name"] = "survey-extractor"

	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return nil, err
	}

	// Wrap pool as *sql.DB for ent
	db := stdlib.OpenDBFromPool(pool)
	logger.Info("successfully connected to database")
	return &DB{drv: entsql.OpenDB(dialect.Postgres, db), pool: pool, dialect: dialect.Postgres, logger: logger}, nil
}

// Dialect returns the ent dialect name.
func (d *DB) Dialect() string { return d.dialect }

// Close closes the database connections gracefully
func (d *DB) Close() {
	d.logger.Info("closing database connections")
	if err := d.drv.Close(); err != nil {
		d.logger.Error("failed to close ent driver", "error", err)
	}
	if d.pool != nil {
		d.pool.Close()
	}
	d.logger.Info("database connections closed")
}

// HealthCheck pings the database to catch DSN issues early.
func (d *DB) HealthCheck(ctx context.Context, timeout time.Duration) error {
	d.logger.Debug("pinging database")
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	var err error
	if d.pool != nil {
		err = d.pool.Ping(ctx)
	} else {
		err = d.drv.DB().PingContext(ctx)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	d.logger.Debug("database ping successful")
	return nil
}

func redact(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	scheme := strings.Index(dsn, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return dsn
	}
	return dsn[:scheme+3] + "***" + dsn[at:]
}
