package record

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"gatekeeper/internal/verification/models"
	"gatekeeper/pkg/platform/sentinel"
)

// PostgresStore persists records in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres connects to dsn and applies migrations.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	store, err := NewPostgresStore(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewPostgresStore wraps an existing connection pool and applies migrations.
func NewPostgresStore(ctx context.Context, db *sql.DB) (*PostgresStore, error) {
	if err := migrate(ctx, db, goose.DialectPostgres, "postgres"); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Get(ctx context.Context, key models.Key) (*models.VerificationRecord, error) {
	record := models.VerificationRecord{ChatID: key.ChatID, UserID: key.UserID}
	var joinTime int64
	err := s.db.QueryRowContext(ctx,
		`SELECT verified, join_time FROM verification_records WHERE chat_id = $1 AND user_id = $2`,
		key.ChatID, key.UserID,
	).Scan(&record.Verified, &joinTime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, unavailable("get record", err)
	}
	record.JoinTime = joinTimeFromEpoch(joinTime)
	return &record, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, record models.VerificationRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO verification_records (chat_id, user_id, verified, join_time)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (chat_id, user_id) DO UPDATE SET
			verified = EXCLUDED.verified,
			join_time = EXCLUDED.join_time`,
		record.ChatID, record.UserID, record.Verified, record.JoinTime.Unix(),
	)
	if err != nil {
		return unavailable("upsert record", err)
	}
	return nil
}

func (s *PostgresStore) SetVerified(ctx context.Context, key models.Key, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO verification_records (chat_id, user_id, verified, join_time)
		VALUES ($1, $2, TRUE, $3)
		ON CONFLICT (chat_id, user_id) DO UPDATE SET verified = TRUE`,
		key.ChatID, key.UserID, at.Unix(),
	)
	if err != nil {
		return unavailable("set verified", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, key models.Key) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM verification_records WHERE chat_id = $1 AND user_id = $2`,
		key.ChatID, key.UserID,
	)
	if err != nil {
		return unavailable("delete record", err)
	}
	return nil
}

func (s *PostgresStore) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE verified) FROM verification_records`,
	).Scan(&c.Total, &c.Verified)
	if err != nil {
		return Counts{}, unavailable("count records", err)
	}
	return c, nil
}
