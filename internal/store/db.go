package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite3"
)

// DB wraps sql.DB with the driver name so repositories can adapt placeholders.
type DB struct {
	Client *sql.DB
	Driver string
}

// NewDB opens Postgres (pgx) or SQLite and creates the schema if missing.
func NewDB(ctx context.Context, driver, dsn string) (*DB, error) {
	switch driver {
	case "", "postgres", DriverPostgres:
		driver = DriverPostgres
	case "sqlite", DriverSQLite:
		driver = DriverSQLite
		if dir := filepath.Dir(dsn); dir != "." && dsn != ":memory:" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create db dir: %w", err)
			}
		}
		dsn += "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
	default:
		return nil, fmt.Errorf("unsupported db driver %q", driver)
	}

	client, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if driver == DriverSQLite {
		client.SetMaxOpenConns(1)
	} else {
		client.SetMaxOpenConns(10)
		client.SetMaxIdleConns(5)
		client.SetConnMaxLifetime(time.Hour)
	}
	db := &DB{Client: client, Driver: driver}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.PingContext(pingCtx); err != nil {
		return db, fmt.Errorf("ping db: %w", err)
	}
	if err := db.migrate(ctx); err != nil {
		return db, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

var placeholder = regexp.MustCompile(`\$\d+`)

// Rebind rewrites $N placeholders for drivers that want '?'.
// Queries must reference each placeholder once, in order.
func (d *DB) Rebind(query string) string {
	if d.Driver != DriverSQLite {
		return query
	}
	return placeholder.ReplaceAllString(query, "?")
}

// Healthy pings the database.
func (d *DB) Healthy(ctx context.Context) bool {
	if d == nil || d.Client == nil {
		return false
	}
	return d.Client.PingContext(ctx) == nil
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}

func (d *DB) migrate(ctx context.Context) error {
	stmts := postgresSchema
	if d.Driver == DriverSQLite {
		stmts = sqliteSchema
	}
	for _, stmt := range stmts {
		if _, err := d.Client.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
