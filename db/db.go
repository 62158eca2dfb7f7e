// Package db keeps the exchange audit log in SQLite.
package db

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schema string

// schemaVersion is stored in PRAGMA user_version once schema.sql is applied.
const schemaVersion = 1

var pragmas = url.Values{
	"_journal_mode": {"WAL"},
	"_busy_timeout": {"5000"},
}

type DB struct {
	*sql.DB
}

// Open creates the file and its directory when missing and brings the schema
// up to date. Reopening an existing log keeps its rows.
func Open(path string) (*DB, error) {
	if path == "" {
		return nil, errors.New("db: path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("db: create %s: %w", dir, err)
		}
	}

	sqlDB, err := sql.Open("sqlite3", "file:"+path+"?"+pragmas.Encode())
	if err != nil {
		return nil, fmt.Errorf("db: open %s: %w", path, err)
	}
	if err := migrate(sqlDB); err != nil {
		sqlDB.Close()
		return nil, err
	}

	slog.Info("exchange log opened", "path", path, "schema", schemaVersion)
	return &DB{sqlDB}, nil
}

func migrate(sqlDB *sql.DB) error {
	var version int
	if err := sqlDB.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
		return fmt.Errorf("db: read schema version: %w", err)
	}
	if version >= schemaVersion {
		return nil
	}

	tx, err := sqlDB.Begin()
	if err != nil {
		return fmt.Errorf("db: begin migration: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(schema); err != nil {
		return fmt.Errorf("db: apply schema: %w", err)
	}
	if _, err := tx.Exec(fmt.Sprintf(`PRAGMA user_version = %d`, schemaVersion)); err != nil {
		return fmt.Errorf("db: set schema version: %w", err)
	}
	return tx.Commit()
}
