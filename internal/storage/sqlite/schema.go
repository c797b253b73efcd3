package sqlite

const schemaSQL = `
-- Workflows: one row per named workflow, actions stored as a JSON array
CREATE TABLE IF NOT EXISTS workflows (
	name TEXT PRIMARY KEY,
	actions_json TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

-- Templates: reusable action sequences, same JSON array payload
CREATE TABLE IF NOT EXISTS templates (
	name TEXT PRIMARY KEY,
	actions_json TEXT NOT NULL,
	created_at INTEGER NOT NULL
);

-- Credentials: password column holds the encoded hash, never plaintext
CREATE TABLE IF NOT EXISTS credentials (
	name TEXT PRIMARY KEY,
	username TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);

-- Execution logs: append-only record of workflow runs
CREATE TABLE IF NOT EXISTS execution_logs (
	id TEXT PRIMARY KEY,
	workflow_name TEXT NOT NULL,
	start_time INTEGER NOT NULL,
	end_time INTEGER NOT NULL,
	duration_seconds REAL NOT NULL,
	final_status TEXT NOT NULL,
	error_message TEXT,
	results_json TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_logs_workflow ON execution_logs(workflow_name, start_time DESC);
CREATE INDEX IF NOT EXISTS idx_logs_start ON execution_logs(start_time DESC);
`
