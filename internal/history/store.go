package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"
	"unsubscribe-agent/internal/entity"
	"unsubscribe-agent/pkg/apperr"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS unsubscribe_attempts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	email_id TEXT,
	target_url TEXT NOT NULL,
	user_email TEXT,
	success INTEGER NOT NULL DEFAULT 0,
	strategy TEXT,
	reason TEXT,
	evidence TEXT,
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_attempts_email_id ON unsubscribe_attempts(email_id);
CREATE INDEX IF NOT EXISTS idx_attempts_created_at ON unsubscribe_attempts(created_at);
`

// Store keeps one row per unsubscribe attempt in a local SQLite file.
type Store struct {
	db *sql.DB
}

func NewStore(dbPath string) (*Store, error) {
	const op = "NewStore"

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "mkdir_failed",
			apperr.MetaStage:  apperr.StageHistory,
		})
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, apperr.Wrap(op, apperr.CodeUnavailable, err, map[string]any{
			apperr.MetaReason: "open_failed",
			apperr.MetaStage:  apperr.StageHistory,
		})
	}

	// A single connection serializes writers from concurrent attempts.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		_ = db.Close()

		return nil, err
	}

	return store, nil
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(schema); err != nil {
		return apperr.Wrap("migrate", apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "migrate_failed",
			apperr.MetaStage:  apperr.StageHistory,
		})
	}

	return nil
}

// Record inserts rec and sets its ID. A zero CreatedAt is stamped with now.
func (s *Store) Record(ctx context.Context, rec *entity.HistoryRecord) error {
	const op = "Record"

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	result, err := s.db.ExecContext(ctx, `
	INSERT INTO unsubscribe_attempts (email_id, target_url, user_email, success, strategy, reason, evidence, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.EmailID,
		rec.TargetURL,
		rec.UserEmail,
		boolToInt(rec.Success),
		rec.Strategy,
		rec.Reason,
		rec.Evidence,
		rec.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "insert_failed",
			apperr.MetaStage:  apperr.StageHistory,
		})
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	rec.ID = id

	return nil
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]entity.HistoryRecord, error) {
	const op = "Recent"

	if limit <= 0 {
		return nil, apperr.InvalidReqError(op, "limit", fmt.Errorf("limit must be positive, got %d", limit))
	}

	rows, err := s.db.QueryContext(ctx, `
	SELECT id, email_id, target_url, user_email, success, strategy, reason, evidence, created_at
	FROM unsubscribe_attempts ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "query_failed",
			apperr.MetaStage:  apperr.StageHistory,
		})
	}
	defer rows.Close()

	var records []entity.HistoryRecord

	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}

		records = append(records, *rec)
	}

	return records, rows.Err()
}

// Stats returns the number of recorded attempts and how many succeeded.
func (s *Store) Stats(ctx context.Context) (total, succeeded int, err error) {
	var succeededNull sql.NullInt64

	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), SUM(success) FROM unsubscribe_attempts`).Scan(&total, &succeededNull)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to get stats: %w", err)
	}

	return total, int(succeededNull.Int64), nil
}

func (s *Store) Close() error { return s.db.Close() }

func scanRecord(scanner interface{ Scan(...any) error }) (*entity.HistoryRecord, error) {
	var rec entity.HistoryRecord
	var emailID, userEmail, strategy, reason, evidence sql.NullString
	var success int
	var createdAt int64

	err := scanner.Scan(&rec.ID, &emailID, &rec.TargetURL, &userEmail, &success,
		&strategy, &reason, &evidence, &createdAt)
	if err != nil {
		return nil, err
	}

	rec.EmailID = emailID.String
	rec.UserEmail = userEmail.String
	rec.Success = success == 1
	rec.Strategy = strategy.String
	rec.Reason = reason.String
	rec.Evidence = evidence.String
	rec.CreatedAt = time.UnixMilli(createdAt)

	return &rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}

	return 0
}
