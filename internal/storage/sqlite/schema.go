// -----------------------------------------------------------------------
// Last Modified: Wednesday, 5th November 2025 6:44:16 pm
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package sqlite

// schemaSQL is the full schema, applied by migrateV1. Later
// migrations ALTER TABLE or CREATE INDEX rather than rewriting this block,
// so it stays a historical record of what v1 looked like.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS background_jobs (
	id                     TEXT PRIMARY KEY,
	session_id             TEXT NOT NULL,
	workflow_id            TEXT,
	stage_name             TEXT,
	task_type              TEXT NOT NULL,
	payload_json           TEXT NOT NULL DEFAULT '{}',
	priority               INTEGER NOT NULL DEFAULT 0,
	status                 TEXT NOT NULL,
	system_prompt_template TEXT NOT NULL DEFAULT '',
	prompt                 TEXT NOT NULL DEFAULT '',
	response               TEXT NOT NULL DEFAULT '',
	error_message          TEXT NOT NULL DEFAULT '',
	tokens_sent            INTEGER NOT NULL DEFAULT 0,
	tokens_received        INTEGER NOT NULL DEFAULT 0,
	cache_read_tokens      INTEGER NOT NULL DEFAULT 0,
	cache_write_tokens     INTEGER NOT NULL DEFAULT 0,
	model_used             TEXT NOT NULL DEFAULT '',
	actual_cost            NUMERIC NOT NULL DEFAULT 0,
	metadata_json          TEXT NOT NULL DEFAULT '{}',
	created_at             INTEGER NOT NULL,
	updated_at             INTEGER NOT NULL,
	start_time             INTEGER,
	end_time               INTEGER,
	is_finalized           INTEGER NOT NULL DEFAULT 0,
	visible                INTEGER NOT NULL DEFAULT 1,
	cleared                INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_background_jobs_status_priority ON background_jobs(status, priority DESC, created_at ASC);
CREATE INDEX IF NOT EXISTS idx_background_jobs_session ON background_jobs(session_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_background_jobs_workflow ON background_jobs(workflow_id);
CREATE INDEX IF NOT EXISTS idx_background_jobs_cleanup ON background_jobs(status, cleared, updated_at);

CREATE TABLE IF NOT EXISTS sessions (
	id                        TEXT PRIMARY KEY,
	project_directory         TEXT NOT NULL DEFAULT '',
	project_hash              TEXT NOT NULL DEFAULT '',
	name                      TEXT NOT NULL DEFAULT '',
	included_files_json       TEXT NOT NULL DEFAULT '[]',
	regex_summary_explanation TEXT NOT NULL DEFAULT '',
	updated_at                INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_updated_at ON sessions(updated_at DESC);

-- JSON values keyed by namespace: settings, per-project-per-task overrides
-- (models.ProjectTaskSettingKey) and active-session tracking all share this
-- single namespaced table.
CREATE TABLE IF NOT EXISTS application_settings (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

-- Append-only terminal transcript, capped at 1 MiB of output_log per row by
-- the caller before insert; the store itself does not truncate.
CREATE TABLE IF NOT EXISTS terminal_sessions (
	id          TEXT PRIMARY KEY,
	session_id  TEXT NOT NULL,
	command     TEXT NOT NULL,
	output_log  TEXT NOT NULL DEFAULT '',
	exit_code   INTEGER,
	created_at  INTEGER NOT NULL,
	updated_at  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_terminal_sessions_session ON terminal_sessions(session_id, created_at DESC);

CREATE TABLE IF NOT EXISTS credit_balances (
	user_id          TEXT PRIMARY KEY,
	paid_balance     NUMERIC NOT NULL DEFAULT 0,
	free_balance     NUMERIC NOT NULL DEFAULT 0,
	free_expires_at  INTEGER,
	updated_at       INTEGER NOT NULL
);

-- Append-only ledger; a row is written exactly once per finalize_charge.
-- fail_charge writes no row.
CREATE TABLE IF NOT EXISTS credit_transactions (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	request_id TEXT NOT NULL,
	amount     NUMERIC NOT NULL,
	reason     TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_credit_transactions_user ON credit_transactions(user_id, created_at DESC);
CREATE UNIQUE INDEX IF NOT EXISTS idx_credit_transactions_request ON credit_transactions(request_id);
`
