package journal

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const defaultRecentLimit = 50

// SQLiteJournal implements Journal using SQLite.
type SQLiteJournal struct {
	db *sql.DB
}

// NewSQLiteJournal opens (or creates) a SQLite database at the given path.
func NewSQLiteJournal(dbPath string) (*SQLiteJournal, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}

	j := &SQLiteJournal{db: db}
	if err := j.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

func (j *SQLiteJournal) migrate() error {
	for _, stmt := range migrations {
		if _, err := j.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (j *SQLiteJournal) Record(ctx context.Context, a Attempt) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO attempts (request_id, provider, model, attempt, fallback, outcome,
			error_type, error_message, status_code, latency_ms, prompt_tokens, completion_tokens, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.RequestID, a.Provider, nullString(a.Model), a.Attempt, a.Fallback, a.Outcome,
		nullString(a.ErrorType), nullString(a.ErrorMessage), nullInt(a.StatusCode), a.LatencyMS,
		nullInt(a.PromptTokens), nullInt(a.CompletionTokens), a.CreatedAt.UTC(),
	)
	return err
}

// Recent returns the newest attempts matching q, newest first.
func (j *SQLiteJournal) Recent(ctx context.Context, q Query) ([]Attempt, error) {
	var (
		where []string
		args  []any
	)
	if q.RequestID != "" {
		where = append(where, "request_id = ?")
		args = append(args, q.RequestID)
	}
	if q.Provider != "" {
		where = append(where, "provider = ?")
		args = append(args, q.Provider)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultRecentLimit
	}

	query := `SELECT id, request_id, provider, model, attempt, fallback, outcome, error_type,
		error_message, status_code, latency_ms, prompt_tokens, completion_tokens, created_at
		FROM attempts`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []Attempt
	for rows.Next() {
		var (
			a                                Attempt
			model, errType, errMsg           sql.NullString
			status, promptTok, completionTok sql.NullInt64
		)
		if err := rows.Scan(&a.ID, &a.RequestID, &a.Provider, &model, &a.Attempt, &a.Fallback,
			&a.Outcome, &errType, &errMsg, &status, &a.LatencyMS, &promptTok, &completionTok,
			&a.CreatedAt); err != nil {
			return nil, err
		}
		a.Model = model.String
		a.ErrorType = errType.String
		a.ErrorMessage = errMsg.String
		a.StatusCode = int(status.Int64)
		a.PromptTokens = int(promptTok.Int64)
		a.CompletionTokens = int(completionTok.Int64)
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// Stats aggregates attempts recorded at or after since, per provider.
func (j *SQLiteJournal) Stats(ctx context.Context, since time.Time) ([]ProviderStats, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT provider, COUNT(*),
			SUM(CASE WHEN outcome = ? THEN 1 ELSE 0 END),
			AVG(latency_ms)
		FROM attempts WHERE created_at >= ?
		GROUP BY provider ORDER BY provider`,
		OutcomeFailure, since.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []ProviderStats
	for rows.Next() {
		var s ProviderStats
		if err := rows.Scan(&s.Provider, &s.Attempts, &s.Failures, &s.AvgLatencyMS); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

func (j *SQLiteJournal) Close() error {
	if j == nil || j.db == nil {
		return errors.New("journal not open")
	}
	return j.db.Close()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(n int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(n), Valid: n != 0}
}
