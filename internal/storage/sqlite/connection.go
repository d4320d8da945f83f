// -----------------------------------------------------------------------
// Last Modified: Thursday, 14th November 2025 12:00:00 pm
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ternarybob/arbor"
	_ "modernc.org/sqlite"

	"github.com/foundryhq/jobengine/internal/common"
)

// SQLiteDB manages the pure-Go SQLite connection backing the Job
// Repository, Session store and Settings/Credit stores.
type SQLiteDB struct {
	db          *sql.DB
	logger      arbor.ILogger
	config      *common.SQLiteConfig
	busyTimeout time.Duration
}

// NewSQLiteDB opens the database file, applies pragmas and runs migrations.
func NewSQLiteDB(logger arbor.ILogger, config *common.SQLiteConfig) (*SQLiteDB, error) {
	dir := filepath.Dir(config.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	if config.ResetOnStartup {
		if config.Environment != "development" {
			logger.Warn().
				Str("environment", config.Environment).
				Msg("reset_on_startup is enabled but environment is not 'development' - ignoring reset request for safety")
		} else if err := resetDatabase(logger, config.Path); err != nil {
			return nil, fmt.Errorf("failed to reset database: %w", err)
		}
	}

	busyTimeout, err := time.ParseDuration(config.BusyTimeout)
	if err != nil || busyTimeout <= 0 {
		busyTimeout = 5 * time.Second
	}

	logger.Debug().Str("path", config.Path).Msg("opening database connection")

	// modernc.org/sqlite registers under the driver name "sqlite" (not "sqlite3").
	db, err := sql.Open("sqlite", config.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serializes writers; a single connection avoids SQLITE_BUSY churn
	// between Go's own connection pool and the engine's own per-table mutexes.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteDB{
		db:          db,
		logger:      logger,
		config:      config,
		busyTimeout: busyTimeout,
	}

	if err := s.configure(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info().Str("path", config.Path).Msg("sqlite database initialized")
	return s, nil
}

func (s *SQLiteDB) configure() error {
	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", s.busyTimeout.Milliseconds()),
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = NORMAL",
	}
	if s.config.WAL {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}

	for _, pragma := range pragmas {
		if _, err := s.db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}

	if s.config.WAL {
		var journalMode string
		if err := s.db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
			s.logger.Warn().Err(err).Msg("failed to verify journal mode")
		} else {
			s.logger.Info().Str("journal_mode", journalMode).Dur("busy_timeout", s.busyTimeout).Msg("sqlite configuration applied")
		}
	}
	return nil
}

// DB returns the underlying database connection.
func (s *SQLiteDB) DB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *SQLiteDB) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// BeginTx starts a new transaction.
func (s *SQLiteDB) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, nil)
}

// Ping verifies the database connection.
func (s *SQLiteDB) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// resetDatabase deletes the database file and its WAL/SHM siblings. Only
// ever called in the development environment.
func resetDatabase(logger arbor.ILogger, dbPath string) error {
	logger.Warn().Str("path", dbPath).Msg("resetting database (deleting all data)")

	if err := os.Remove(dbPath); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to delete database file: %w", err)
		}
	} else {
		logger.Info().Str("path", dbPath).Msg("deleted database file")
	}

	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Remove(dbPath + suffix); err != nil && !os.IsNotExist(err) {
			logger.Warn().Err(err).Str("path", dbPath+suffix).Msg("failed to delete sidecar file")
		}
	}

	logger.Info().Msg("database reset complete")
	return nil
}
