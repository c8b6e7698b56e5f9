package journal

// migrations is the ordered list of SQL migration statements.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS attempts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		request_id TEXT NOT NULL,
		provider TEXT NOT NULL,
		model TEXT,
		attempt INTEGER NOT NULL,
		fallback INTEGER NOT NULL DEFAULT 0,
		outcome TEXT NOT NULL,
		error_type TEXT,
		error_message TEXT,
		status_code INTEGER,
		latency_ms INTEGER NOT NULL,
		prompt_tokens INTEGER,
		completion_tokens INTEGER,
		created_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_attempts_request ON attempts(request_id, id)`,
	`CREATE INDEX IF NOT EXISTS idx_attempts_provider ON attempts(provider, created_at)`,
}
