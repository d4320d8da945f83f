// -----------------------------------------------------------------------
// Last Modified: Thursday, 14th November 2025 12:00:00 pm
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/foundryhq/jobengine/internal/interfaces"
)

// ErrSettingNotFound is returned by Get when the key has never been set.
var ErrSettingNotFound = errors.New("setting not found")

// SettingsStorage implements interfaces.SettingsStore against
// application_settings, adapted from
// the teacher's KVStorage.
type SettingsStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
	mu     sync.Mutex
}

func NewSettingsStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.SettingsStore {
	return &SettingsStorage{db: db, logger: logger}
}

func (s *SettingsStorage) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.db.QueryRowContext(ctx, `SELECT value FROM application_settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrSettingNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get setting: %w", err)
	}
	return value, nil
}

func (s *SettingsStorage) Set(ctx context.Context, key string, value string) error {
	return retryWithExponentialBackoff(ctx, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		now := time.Now().Unix()
		_, err := s.db.db.ExecContext(ctx, `
			INSERT INTO application_settings (key, value, created_at, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
		`, key, value, now, now)
		return err
	}, 5, 50*time.Millisecond, s.logger)
}

func (s *SettingsStorage) Delete(ctx context.Context, key string) error {
	res, err := s.db.db.ExecContext(ctx, `DELETE FROM application_settings WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("delete setting: %w", err)
	}
	return checkRowsAffected(res, ErrSettingNotFound)
}

func (s *SettingsStorage) GetAll(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.db.QueryContext(ctx, `SELECT key, value FROM application_settings`)
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		out[key] = value
	}
	return out, rows.Err()
}
