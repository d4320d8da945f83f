// -----------------------------------------------------------------------
// Last Modified: Monday, 3rd November 2025 7:35:40 am
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/foundryhq/jobengine/internal/interfaces"
	"github.com/foundryhq/jobengine/internal/models"
)

// ErrJobNotFound is returned when a job row does not exist.
var ErrJobNotFound = errors.New("job not found")

var terminalStatuses = []models.JobStatus{models.StatusCompleted, models.StatusFailed, models.StatusCanceled}

// JobStorage implements interfaces.JobRepository against background_jobs.
type JobStorage struct {
	db                 *SQLiteDB
	logger             arbor.ILogger
	mu                 sync.Mutex
	defaultHistoryDays int
}

// NewJobStorage creates a job repository. defaultHistoryDays backs the
// ClearHistory(0) sentinel.
func NewJobStorage(db *SQLiteDB, logger arbor.ILogger, defaultHistoryDays int) interfaces.JobRepository {
	if defaultHistoryDays <= 0 {
		defaultHistoryDays = 90
	}
	return &JobStorage{db: db, logger: logger, defaultHistoryDays: defaultHistoryDays}
}

// retryWithExponentialBackoff retries op while the underlying error looks
// like a transient SQLITE_BUSY, grounded on the teacher's helper of the
// same name.
func retryWithExponentialBackoff(ctx context.Context, op func() error, maxAttempts int, initialDelay time.Duration, logger arbor.ILogger) error {
	delay := initialDelay
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		msg := lastErr.Error()
		if !strings.Contains(msg, "database is locked") && !strings.Contains(msg, "SQLITE_BUSY") {
			return lastErr
		}
		if attempt < maxAttempts {
			logger.Warn().Int("attempt", attempt).Str("delay", delay.String()).Err(lastErr).Msg("database locked, retrying")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
	}
	return lastErr
}

func marshalJSON(v interface{}) (string, error) {
	if v == nil {
		return "{}", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (s *JobStorage) Create(ctx context.Context, job *models.Job) error {
	payloadJSON, err := marshalJSON(job.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	metadataJSON, err := marshalJSON(job.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	return retryWithExponentialBackoff(ctx, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		_, err := s.db.db.ExecContext(ctx, `
			INSERT INTO background_jobs (
				id, session_id, workflow_id, stage_name, task_type, payload_json, priority,
				status, system_prompt_template, prompt, response, error_message,
				tokens_sent, tokens_received, cache_read_tokens, cache_write_tokens,
				model_used, actual_cost, metadata_json, created_at, updated_at,
				start_time, end_time, is_finalized, visible, cleared
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			job.ID, job.SessionID, nullableString(job.WorkflowID), nullableString(job.StageName),
			string(job.TaskType), payloadJSON, job.Priority,
			string(job.Status), job.SystemPromptTemplate, job.Prompt, job.Response, job.ErrorMessage,
			job.TokensSent, job.TokensReceived, job.CacheReadTokens, job.CacheWriteTokens,
			job.ModelUsed, job.ActualCost, metadataJSON, job.CreatedAt, job.UpdatedAt,
			nullableInt64(job.StartTime), nullableInt64(job.EndTime), boolToInt(job.IsFinalized), 1, boolToInt(job.Cleared),
		)
		return err
	}, 5, 50*time.Millisecond, s.logger)
}

func (s *JobStorage) GetByID(ctx context.Context, jobID string) (*models.Job, error) {
	row := s.db.db.QueryRowContext(ctx, jobRowColumns+" FROM background_jobs WHERE id = ?", jobID)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	return job, err
}

func (s *JobStorage) List(ctx context.Context, opts *interfaces.JobListOptions) ([]*models.Job, error) {
	query := jobRowColumns + " FROM background_jobs WHERE 1=1"
	var args []interface{}

	if opts != nil {
		if opts.SessionID != "" {
			query += " AND session_id = ?"
			args = append(args, opts.SessionID)
		}
		if opts.WorkflowID != "" {
			query += " AND workflow_id = ?"
			args = append(args, opts.WorkflowID)
		}
		if opts.Status != "" {
			query += " AND status = ?"
			args = append(args, string(opts.Status))
		}
		if opts.TaskType != "" {
			query += " AND task_type = ?"
			args = append(args, string(opts.TaskType))
		}

		orderBy := "created_at"
		if opts.OrderBy == "updated_at" {
			orderBy = "updated_at"
		}
		dir := "DESC"
		if strings.EqualFold(opts.OrderDir, "asc") {
			dir = "ASC"
		}
		query += fmt.Sprintf(" ORDER BY %s %s", orderBy, dir)

		if opts.Limit > 0 {
			query += " LIMIT ?"
			args = append(args, opts.Limit)
			if opts.Offset > 0 {
				query += " OFFSET ?"
				args = append(args, opts.Offset)
			}
		}
	} else {
		query += " ORDER BY created_at DESC"
	}

	rows, err := s.db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (s *JobStorage) UpdateStatus(ctx context.Context, jobID string, status models.JobStatus) error {
	return retryWithExponentialBackoff(ctx, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		res, err := s.db.db.ExecContext(ctx,
			`UPDATE background_jobs SET status = ?, updated_at = ? WHERE id = ?`,
			string(status), models.NowMillis(), jobID)
		if err != nil {
			return err
		}
		return checkRowsAffected(res, ErrJobNotFound)
	}, 5, 50*time.Millisecond, s.logger)
}

func (s *JobStorage) MarkRunning(ctx context.Context, jobID string) error {
	now := models.NowMillis()
	return retryWithExponentialBackoff(ctx, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		res, err := s.db.db.ExecContext(ctx,
			`UPDATE background_jobs SET status = ?, start_time = ?, updated_at = ? WHERE id = ?`,
			string(models.StatusRunning), now, now, jobID)
		if err != nil {
			return err
		}
		return checkRowsAffected(res, ErrJobNotFound)
	}, 5, 50*time.Millisecond, s.logger)
}

func (s *JobStorage) SetPrompt(ctx context.Context, jobID, systemPromptTemplate, prompt string) error {
	return retryWithExponentialBackoff(ctx, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		res, err := s.db.db.ExecContext(ctx,
			`UPDATE background_jobs SET system_prompt_template = ?, prompt = ?, updated_at = ? WHERE id = ?`,
			systemPromptTemplate, prompt, models.NowMillis(), jobID)
		if err != nil {
			return err
		}
		return checkRowsAffected(res, ErrJobNotFound)
	}, 5, 50*time.Millisecond, s.logger)
}

func (s *JobStorage) UpdateMetadata(ctx context.Context, jobID string, patch map[string]interface{}) (map[string]interface{}, error) {
	var merged map[string]interface{}
	err := retryWithExponentialBackoff(ctx, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()

		tx, err := s.db.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		var currentJSON string
		if err := tx.QueryRowContext(ctx, `SELECT metadata_json FROM background_jobs WHERE id = ?`, jobID).Scan(&currentJSON); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrJobNotFound
			}
			return err
		}

		var current map[string]interface{}
		if err := json.Unmarshal([]byte(currentJSON), &current); err != nil {
			return fmt.Errorf("unmarshal current metadata: %w", err)
		}

		merged = models.DeepMergeJSON(current, patch)
		mergedJSON, err := marshalJSON(merged)
		if err != nil {
			return fmt.Errorf("marshal merged metadata: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `UPDATE background_jobs SET metadata_json = ?, updated_at = ? WHERE id = ?`,
			mergedJSON, models.NowMillis(), jobID); err != nil {
			return err
		}

		return tx.Commit()
	}, 5, 50*time.Millisecond, s.logger)
	if err != nil {
		return nil, err
	}
	return merged, nil
}

func (s *JobStorage) Finalize(ctx context.Context, jobID string, result *interfaces.JobFinalizeResult) error {
	return retryWithExponentialBackoff(ctx, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()

		tx, err := s.db.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		var isFinalized int
		if err := tx.QueryRowContext(ctx, `SELECT is_finalized FROM background_jobs WHERE id = ?`, jobID).Scan(&isFinalized); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrJobNotFound
			}
			return err
		}
		if isFinalized != 0 {
			return interfaces.ErrAlreadyFinalized
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE background_jobs SET
				response = ?, error_message = ?, status = ?,
				tokens_sent = ?, tokens_received = ?, cache_read_tokens = ?, cache_write_tokens = ?,
				model_used = ?, actual_cost = ?, end_time = ?, is_finalized = 1, updated_at = ?
			WHERE id = ?
		`,
			result.Response, result.ErrorMessage, string(result.Status),
			result.TokensSent, result.TokensReceived, result.CacheReadTokens, result.CacheWriteTokens,
			result.ModelUsed, result.ActualCost, result.EndTime, models.NowMillis(), jobID,
		); err != nil {
			return err
		}

		return tx.Commit()
	}, 5, 50*time.Millisecond, s.logger)
}

// ClaimQueuedForWorker atomically moves up to limit Queued jobs to
// AcknowledgedByWorker, ordered by priority DESC then created_at ASC
//. The single-connection pool plus s.mu makes the
// select-then-update sequence race-free across concurrent callers.
func (s *JobStorage) ClaimQueuedForWorker(ctx context.Context, limit int) ([]*models.Job, error) {
	if limit <= 0 {
		return nil, nil
	}

	var claimed []*models.Job
	err := retryWithExponentialBackoff(ctx, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		claimed = nil

		tx, err := s.db.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		rows, err := tx.QueryContext(ctx, `
			SELECT id FROM background_jobs
			WHERE status = ?
			ORDER BY priority DESC, created_at ASC
			LIMIT ?
		`, string(models.StatusQueued), limit)
		if err != nil {
			return err
		}
		var ids []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			ids = append(ids, id)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()

		if len(ids) == 0 {
			return tx.Commit()
		}

		now := models.NowMillis()
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
		args := make([]interface{}, 0, len(ids)+2)
		args = append(args, string(models.StatusAcknowledgedByWorker), now)
		for _, id := range ids {
			args = append(args, id)
		}
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`UPDATE background_jobs SET status = ?, updated_at = ? WHERE id IN (%s)`, placeholders),
			args...); err != nil {
			return err
		}

		for _, id := range ids {
			row := tx.QueryRowContext(ctx, jobRowColumns+" FROM background_jobs WHERE id = ?", id)
			job, err := scanJob(row)
			if err != nil {
				return err
			}
			claimed = append(claimed, job)
		}

		return tx.Commit()
	}, 5, 50*time.Millisecond, s.logger)
	return claimed, err
}

func (s *JobStorage) ResetStaleAcknowledged(ctx context.Context, thresholdSeconds int64) (int, error) {
	cutoff := models.NowMillis() - thresholdSeconds*1000
	var count int
	err := retryWithExponentialBackoff(ctx, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		res, err := s.db.db.ExecContext(ctx,
			`UPDATE background_jobs SET status = ?, updated_at = ? WHERE status = ? AND updated_at <= ?`,
			string(models.StatusQueued), models.NowMillis(), string(models.StatusAcknowledgedByWorker), cutoff)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		count = int(affected)
		return nil
	}, 5, 50*time.Millisecond, s.logger)
	return count, err
}

func (s *JobStorage) ClearHistory(ctx context.Context, daysToKeep int) (int, error) {
	if daysToKeep == -2 {
		return 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(terminalStatuses)), ",")
	args := make([]interface{}, 0, len(terminalStatuses)+1)
	for _, st := range terminalStatuses {
		args = append(args, string(st))
	}

	query := fmt.Sprintf(`DELETE FROM background_jobs WHERE status IN (%s)`, placeholders)
	if daysToKeep != -1 {
		days := daysToKeep
		if days == 0 {
			days = s.defaultHistoryDays
		}
		cutoff := models.NowMillis() - int64(days)*24*60*60*1000
		query += " AND created_at < ?"
		args = append(args, cutoff)
	}

	var count int
	err := retryWithExponentialBackoff(ctx, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		res, err := s.db.db.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		count = int(affected)
		return nil
	}, 5, 50*time.Millisecond, s.logger)
	return count, err
}

// CancelJob is a no-op on an already-terminal job.
func (s *JobStorage) CancelJob(ctx context.Context, jobID string) error {
	job, err := s.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return nil
	}
	now := models.NowMillis()
	return retryWithExponentialBackoff(ctx, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		_, err := s.db.db.ExecContext(ctx,
			`UPDATE background_jobs SET status = ?, end_time = ?, updated_at = ? WHERE id = ? AND status NOT IN (?, ?, ?)`,
			string(models.StatusCanceled), now, now, jobID,
			string(models.StatusCompleted), string(models.StatusFailed), string(models.StatusCanceled))
		return err
	}, 5, 50*time.Millisecond, s.logger)
}

func (s *JobStorage) CancelSessionJobs(ctx context.Context, sessionID string) (int, error) {
	now := models.NowMillis()
	var count int
	err := retryWithExponentialBackoff(ctx, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		res, err := s.db.db.ExecContext(ctx,
			`UPDATE background_jobs SET status = ?, end_time = ?, updated_at = ? WHERE session_id = ? AND status NOT IN (?, ?, ?)`,
			string(models.StatusCanceled), now, now, sessionID,
			string(models.StatusCompleted), string(models.StatusFailed), string(models.StatusCanceled))
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		count = int(affected)
		return nil
	}, 5, 50*time.Millisecond, s.logger)
	return count, err
}

const jobRowColumns = `SELECT
	id, session_id, workflow_id, stage_name, task_type, payload_json, priority,
	status, system_prompt_template, prompt, response, error_message,
	tokens_sent, tokens_received, cache_read_tokens, cache_write_tokens,
	model_used, actual_cost, metadata_json, created_at, updated_at,
	start_time, end_time, is_finalized, cleared`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*models.Job, error) {
	var j models.Job
	var workflowID, stageName sql.NullString
	var payloadJSON, metadataJSON string
	var taskType, status string
	var startTime, endTime sql.NullInt64
	var isFinalized, cleared int

	if err := row.Scan(
		&j.ID, &j.SessionID, &workflowID, &stageName, &taskType, &payloadJSON, &j.Priority,
		&status, &j.SystemPromptTemplate, &j.Prompt, &j.Response, &j.ErrorMessage,
		&j.TokensSent, &j.TokensReceived, &j.CacheReadTokens, &j.CacheWriteTokens,
		&j.ModelUsed, &j.ActualCost, &metadataJSON, &j.CreatedAt, &j.UpdatedAt,
		&startTime, &endTime, &isFinalized, &cleared,
	); err != nil {
		return nil, err
	}

	j.TaskType = models.TaskType(taskType)
	j.Status = models.JobStatus(status)
	j.IsFinalized = isFinalized != 0
	j.Cleared = cleared != 0
	if workflowID.Valid {
		v := workflowID.String
		j.WorkflowID = &v
	}
	if stageName.Valid {
		v := stageName.String
		j.StageName = &v
	}
	if startTime.Valid {
		v := startTime.Int64
		j.StartTime = &v
	}
	if endTime.Valid {
		v := endTime.Int64
		j.EndTime = &v
	}

	if err := json.Unmarshal([]byte(payloadJSON), &j.Payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	if err := json.Unmarshal([]byte(metadataJSON), &j.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}

	return &j, nil
}

func checkRowsAffected(res sql.Result, notFound error) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return notFound
	}
	return nil
}

func nullableString(v *string) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullableInt64(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
