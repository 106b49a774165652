// Package sqlstore persists the device identity in SQLite (on-device) or
// PostgreSQL (device fleets sharing a database) via sqlx.
//
// Statements live in embedded .sql files and are loaded by name with dotsql;
// sqlx Rebind converts ? placeholders for PostgreSQL.
package sqlstore

import (
	"fmt"
	"net/url"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// A device client holds a handful of connections at most.
const (
	maxOpenConns    = 4
	maxIdleConns    = 1
	connMaxIdleTime = 5 * time.Minute
	connMaxLifetime = 30 * time.Minute
)

// Open establishes a database connection from a URL.
// Supported URL schemes: sqlite://, postgres://
// SQLite URLs: sqlite://path/to/file.db, sqlite:///absolute/path or sqlite::memory:
func Open(dbURL string) (*sqlx.DB, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return nil, fmt.Errorf("invalid database URL: %w", err)
	}

	var driverName string
	var dataSource string

	switch u.Scheme {
	case "sqlite":
		driverName = "sqlite3"
		if u.Host != "" {
			dataSource = u.Host + u.Path
		} else {
			dataSource = u.Path
		}
		if u.Opaque != "" {
			dataSource = u.Opaque
		}
	case "postgres", "postgresql":
		driverName = "postgres"
		dataSource = dbURL
	default:
		return nil, fmt.Errorf("unsupported database scheme: %s (expected sqlite or postgres)", u.Scheme)
	}

	db, err := sqlx.Open(driverName, dataSource)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// :memory: databases are per-connection in sqlite3
	if dataSource == ":memory:" {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(maxOpenConns)
	}
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxIdleTime(connMaxIdleTime)
	db.SetConnMaxLifetime(connMaxLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
