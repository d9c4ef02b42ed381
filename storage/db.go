package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"mailcopy/config"
)

// DB wraps the relational store shared by all storages. SQL is written with
// ? placeholders and rebound for drivers that use numbered parameters.
type DB struct {
	*sql.DB
	driver string
}

// InitDB opens the database named by the configuration and creates the schema
func InitDB(cfg config.DatabaseConfig) (*DB, error) {
	switch cfg.Driver {
	case "sqlite", "sqlite3":
		if cfg.DSN != ":memory:" && !strings.HasPrefix(cfg.DSN, "file:") {
			if err := os.MkdirAll(filepath.Dir(cfg.DSN), 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	case "postgres":
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	sqlDB, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &DB{DB: sqlDB, driver: cfg.Driver}
	if db.isSQLite() {
		// A single connection serializes writers and keeps :memory: databases alive.
		sqlDB.SetMaxOpenConns(1)
		for _, pragma := range []string{
			"PRAGMA journal_mode=WAL",
			"PRAGMA busy_timeout=5000",
			"PRAGMA foreign_keys=ON",
		} {
			if _, err := sqlDB.Exec(pragma); err != nil {
				sqlDB.Close()
				return nil, fmt.Errorf("failed to set %q: %w", pragma, err)
			}
		}
	} else if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	if err := db.createSchema(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return db, nil
}

func (db *DB) isSQLite() bool {
	return db.driver == "sqlite" || db.driver == "sqlite3"
}

// rebind converts ? placeholders to $1, $2, ... for PostgreSQL
func (db *DB) rebind(query string) string {
	if db.isSQLite() {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// forUpdate returns the row locking clause for read-modify-write transactions
// on the emails table (aliased e). SQLite has no row locks; the single
// connection already serializes writers.
func (db *DB) forUpdate() string {
	if db.isSQLite() {
		return ""
	}
	return " FOR UPDATE OF e"
}

// inTx runs fn in a transaction, rolling back when fn fails
func (db *DB) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (db *DB) createSchema() error {
	schema := sqliteSchema
	if !db.isSQLite() {
		schema = postgresSchema
	}
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS accounts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	email TEXT NOT NULL UNIQUE,
	first_name TEXT NOT NULL DEFAULT '',
	last_name TEXT NOT NULL DEFAULT '',
	password_hash TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS emails (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	message_id TEXT NOT NULL,
	owner_id INTEGER NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
	sender_id INTEGER NOT NULL REFERENCES accounts(id),
	subject TEXT NOT NULL DEFAULT '',
	body TEXT NOT NULL DEFAULT '',
	sent_at DATETIME NOT NULL,
	is_read BOOLEAN NOT NULL DEFAULT 0,
	is_archived BOOLEAN NOT NULL DEFAULT 0,
	is_deleted BOOLEAN NOT NULL DEFAULT 0,
	previous_mailbox TEXT
);

CREATE INDEX IF NOT EXISTS emails_owner_sent_at ON emails(owner_id, sent_at);

CREATE TABLE IF NOT EXISTS email_recipients (
	email_id INTEGER NOT NULL REFERENCES emails(id) ON DELETE CASCADE,
	account_id INTEGER NOT NULL REFERENCES accounts(id),
	PRIMARY KEY (email_id, account_id)
);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS accounts (
	id BIGSERIAL PRIMARY KEY,
	email VARCHAR(255) NOT NULL UNIQUE,
	first_name VARCHAR(150) NOT NULL DEFAULT '',
	last_name VARCHAR(150) NOT NULL DEFAULT '',
	password_hash VARCHAR(255) NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS emails (
	id BIGSERIAL PRIMARY KEY,
	message_id VARCHAR(36) NOT NULL,
	owner_id BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
	sender_id BIGINT NOT NULL REFERENCES accounts(id),
	subject VARCHAR(255) NOT NULL DEFAULT '',
	body TEXT NOT NULL DEFAULT '',
	sent_at TIMESTAMPTZ NOT NULL,
	is_read BOOLEAN NOT NULL DEFAULT FALSE,
	is_archived BOOLEAN NOT NULL DEFAULT FALSE,
	is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
	previous_mailbox VARCHAR(32)
);

CREATE INDEX IF NOT EXISTS emails_owner_sent_at ON emails(owner_id, sent_at);

CREATE TABLE IF NOT EXISTS email_recipients (
	email_id BIGINT NOT NULL REFERENCES emails(id) ON DELETE CASCADE,
	account_id BIGINT NOT NULL REFERENCES accounts(id),
	PRIMARY KEY (email_id, account_id)
);
`
