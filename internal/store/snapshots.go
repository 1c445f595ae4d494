package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Snapshots persists last-known query results so a restart can show
// standings before the first poll completes.
type Snapshots struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewSnapshots(db *sql.DB, logger zerolog.Logger) *Snapshots {
	return &Snapshots{db: db, logger: logger}
}

func (s *Snapshots) Save(ctx context.Context, kind string, tournamentID int, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot %s/%d: %w", kind, tournamentID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots (kind, tournament_id, payload, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (kind, tournament_id) DO UPDATE SET
			payload = excluded.payload,
			updated_at = excluded.updated_at`,
		kind, tournamentID, string(body), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save snapshot %s/%d: %w", kind, tournamentID, err)
	}
	return nil
}

// Load unmarshals the stored payload into out and returns when it was saved.
// A missing row surfaces as sql.ErrNoRows.
func (s *Snapshots) Load(ctx context.Context, kind string, tournamentID int, out any) (time.Time, error) {
	var body string
	var updatedAt time.Time
	err := s.db.QueryRowContext(ctx, `
		SELECT payload, updated_at FROM snapshots
		WHERE kind = ? AND tournament_id = ?`,
		kind, tournamentID).Scan(&body, &updatedAt)
	if err != nil {
		return time.Time{}, err
	}
	if err := json.Unmarshal([]byte(body), out); err != nil {
		return time.Time{}, fmt.Errorf("failed to unmarshal snapshot %s/%d: %w", kind, tournamentID, err)
	}
	return updatedAt, nil
}

// Prune drops rows older than maxAge; stale tournaments are not worth
// warm-starting from.
func (s *Snapshots) Prune(ctx context.Context, maxAge time.Duration) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE updated_at < ?`,
		time.Now().UTC().Add(-maxAge))
	if err != nil {
		return fmt.Errorf("failed to prune snapshots: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		s.logger.Info().Int64("rows", n).Msg("pruned stale snapshots")
	}
	return nil
}
