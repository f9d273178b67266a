// Package record holds the VerificationRecord stores. Every implementation
// returns sentinel.ErrNotFound for absent records and wraps driver failures
// with sentinel.ErrUnavailable.
package record

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"time"

	"github.com/pressly/goose/v3"

	"gatekeeper/pkg/platform/sentinel"
)

//go:embed migrations
var migrationsFS embed.FS

// Counts summarizes the stored records.
type Counts struct {
	Total    int64 `json:"total"`
	Verified int64 `json:"verified"`
}

// migrate applies the embedded migrations of one dialect.
func migrate(ctx context.Context, db *sql.DB, dialect goose.Dialect, dir string) error {
	sub, err := fs.Sub(migrationsFS, "migrations/"+dir)
	if err != nil {
		return fmt.Errorf("open %s migrations: %w", dir, err)
	}
	provider, err := goose.NewProvider(dialect, db, sub)
	if err != nil {
		return fmt.Errorf("create migration provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("apply %s migrations: %w", dir, err)
	}
	return nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, sentinel.ErrUnavailable, err)
}

// joinTimeFromEpoch reads the persisted epoch-seconds join time.
func joinTimeFromEpoch(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}
