package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/foundryhq/jobengine/internal/interfaces"
	"github.com/foundryhq/jobengine/internal/models"
)

// ErrSessionNotFound is returned when a session row does not exist.
var ErrSessionNotFound = errors.New("session not found")

// SessionStorage implements interfaces.SessionStore against sessions.
type SessionStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
	mu     sync.Mutex
}

func NewSessionStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.SessionStore {
	return &SessionStorage{db: db, logger: logger}
}

func (s *SessionStorage) Create(ctx context.Context, session *models.Session) error {
	includedJSON, err := marshalIncludedFiles(session.IncludedFiles)
	if err != nil {
		return err
	}
	return retryWithExponentialBackoff(ctx, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		_, err := s.db.db.ExecContext(ctx, `
			INSERT INTO sessions (id, project_directory, project_hash, name, included_files_json, regex_summary_explanation, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, session.ID, session.ProjectDirectory, session.ProjectHash, session.Name, includedJSON, session.RegexSummaryExplanation, session.UpdatedAt)
		return err
	}, 5, 50*time.Millisecond, s.logger)
}

func (s *SessionStorage) GetByID(ctx context.Context, sessionID string) (*models.Session, error) {
	row := s.db.db.QueryRowContext(ctx, `
		SELECT id, project_directory, project_hash, name, included_files_json, regex_summary_explanation, updated_at
		FROM sessions WHERE id = ?
	`, sessionID)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	return session, err
}

func (s *SessionStorage) Update(ctx context.Context, session *models.Session) error {
	includedJSON, err := marshalIncludedFiles(session.IncludedFiles)
	if err != nil {
		return err
	}
	return retryWithExponentialBackoff(ctx, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		res, err := s.db.db.ExecContext(ctx, `
			UPDATE sessions SET project_directory = ?, project_hash = ?, name = ?, included_files_json = ?, regex_summary_explanation = ?, updated_at = ?
			WHERE id = ?
		`, session.ProjectDirectory, session.ProjectHash, session.Name, includedJSON, session.RegexSummaryExplanation, session.UpdatedAt, session.ID)
		if err != nil {
			return err
		}
		return checkRowsAffected(res, ErrSessionNotFound)
	}, 5, 50*time.Millisecond, s.logger)
}

func (s *SessionStorage) Delete(ctx context.Context, sessionID string) error {
	return retryWithExponentialBackoff(ctx, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		res, err := s.db.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID)
		if err != nil {
			return err
		}
		return checkRowsAffected(res, ErrSessionNotFound)
	}, 5, 50*time.Millisecond, s.logger)
}

func (s *SessionStorage) List(ctx context.Context) ([]*models.Session, error) {
	rows, err := s.db.db.QueryContext(ctx, `
		SELECT id, project_directory, project_hash, name, included_files_json, regex_summary_explanation, updated_at
		FROM sessions ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

func scanSession(row rowScanner) (*models.Session, error) {
	var sess models.Session
	var includedJSON string
	if err := row.Scan(&sess.ID, &sess.ProjectDirectory, &sess.ProjectHash, &sess.Name, &includedJSON, &sess.RegexSummaryExplanation, &sess.UpdatedAt); err != nil {
		return nil, err
	}
	if includedJSON != "" {
		if err := json.Unmarshal([]byte(includedJSON), &sess.IncludedFiles); err != nil {
			return nil, fmt.Errorf("unmarshal included_files: %w", err)
		}
	}
	return &sess, nil
}

func marshalIncludedFiles(files []string) (string, error) {
	if files == nil {
		return "[]", nil
	}
	b, err := json.Marshal(files)
	if err != nil {
		return "", fmt.Errorf("marshal included_files: %w", err)
	}
	return string(b), nil
}
