package main

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

//go:embed migrations
var migrations embed.FS

type Database struct {
	db     *sql.DB
	driver string
	log    *zap.Logger
}

func NewDatabase(driver, dsn string, log *zap.Logger) (*Database, error) {
	switch driver {
	case DriverSQLite:
		dsn = sqliteDSN(dsn)
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}

	// SQLite allows a single writer; one connection also keeps
	// ":memory:" databases shared across calls.
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	return &Database{db: db, driver: driver, log: log}, nil
}

func sqliteDSN(dsn string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_foreign_keys=on&_busy_timeout=5000"
}

// Migrate applies the embedded goose migrations for the active driver.
func (d *Database) Migrate(ctx context.Context) error {
	dialect, dir := "sqlite3", "migrations/sqlite3"
	if d.driver == DriverPostgres {
		dialect, dir = "postgres", "migrations/postgres"
	}

	goose.SetBaseFS(migrations)
	goose.SetLogger(gooseLogger{d.log.Sugar()})
	if err := goose.SetDialect(dialect); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, d.db, dir); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Queries returns queries bound to the connection pool.
func (d *Database) Queries() *Queries {
	return &Queries{db: d.db}
}

// WithTx runs fn with queries bound to a single transaction. fn must not use
// the pool-bound Queries: with SQLite that would wait on the open transaction.
func (d *Database) WithTx(ctx context.Context, fn func(q *Queries) error) error {
	return WithTx(ctx, d.db, func(ctx context.Context, tx DBTX) error {
		return fn(&Queries{db: tx})
	})
}

func (d *Database) Close() error {
	return d.db.Close()
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

type gooseLogger struct {
	s *zap.SugaredLogger
}

func (l gooseLogger) Fatalf(format string, v ...interface{}) {
	l.s.Fatalf(strings.TrimSpace(format), v...)
}

func (l gooseLogger) Printf(format string, v ...interface{}) {
	l.s.Infof(strings.TrimSpace(format), v...)
}
