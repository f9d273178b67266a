package record

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"gatekeeper/internal/verification/models"
	"gatekeeper/pkg/platform/sentinel"
)

// SQLiteStore keeps records in the single-file database the bot has always
// used (table users, verified as 0/1, join_time as epoch seconds).
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens path, creating it when needed, and applies migrations.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := "file:" + filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// A single writer avoids SQLITE_BUSY under concurrent lanes.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := migrate(ctx, db, goose.DialectSQLite3, "sqlite"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Get(ctx context.Context, key models.Key) (*models.VerificationRecord, error) {
	var verified, joinTime sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT verified, join_time FROM users WHERE chat_id = ? AND user_id = ?`,
		key.ChatID, key.UserID,
	).Scan(&verified, &joinTime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, unavailable("get record", err)
	}
	return &models.VerificationRecord{
		ChatID:   key.ChatID,
		UserID:   key.UserID,
		Verified: verified.Int64 == 1,
		JoinTime: joinTimeFromEpoch(joinTime.Int64),
	}, nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, record models.VerificationRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (chat_id, user_id, verified, join_time) VALUES (?, ?, ?, ?)
		ON CONFLICT (chat_id, user_id) DO UPDATE SET
			verified = excluded.verified,
			join_time = excluded.join_time`,
		record.ChatID, record.UserID, boolToInt(record.Verified), record.JoinTime.Unix(),
	)
	if err != nil {
		return unavailable("upsert record", err)
	}
	return nil
}

func (s *SQLiteStore) SetVerified(ctx context.Context, key models.Key, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (chat_id, user_id, verified, join_time) VALUES (?, ?, 1, ?)
		ON CONFLICT (chat_id, user_id) DO UPDATE SET verified = 1`,
		key.ChatID, key.UserID, at.Unix(),
	)
	if err != nil {
		return unavailable("set verified", err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, key models.Key) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE chat_id = ? AND user_id = ?`, key.ChatID, key.UserID); err != nil {
		return unavailable("delete record", err)
	}
	return nil
}

func (s *SQLiteStore) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN verified = 1 THEN 1 ELSE 0 END), 0) FROM users`,
	).Scan(&c.Total, &c.Verified)
	if err != nil {
		return Counts{}, unavailable("count records", err)
	}
	return c, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
