package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// ErrRevisionConflict is returned by Put when the expected revision does not
// match the stored one. Callers retry with a fresh Get or log and move on;
// the store never silently overwrites.
var ErrRevisionConflict = errors.New("revision conflict")

// ErrKeyNotFound is returned by Get when no blob exists for the key.
var ErrKeyNotFound = errors.New("key not found")

// Store is the versioned key/blob persistence collaborator. It mirrors
// conversation memory, orders, and catalog state with optimistic
// concurrency on a per-key revision counter.
type Store interface {
	// Get returns the value and current revision for key, or ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, int64, error)

	// Put writes value under key. expectedRevision 0 means "create"; a
	// mismatch with the stored revision yields ErrRevisionConflict. The new
	// revision is returned on success.
	Put(ctx context.Context, key string, value []byte, expectedRevision int64) (int64, error)

	// RunSQLMaintenance performs database maintenance like VACUUM.
	RunSQLMaintenance(ctx context.Context) error

	// Ping checks the database connection.
	Ping(ctx context.Context) error
}

type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a Store implementation backed by sqlx.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type blobRow struct {
	Key       string    `db:"key"`
	Value     []byte    `db:"value"`
	Revision  int64     `db:"revision"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (s *sqlxStore) Get(ctx context.Context, key string) ([]byte, int64, error) {
	if key == "" {
		return nil, 0, fmt.Errorf("key cannot be empty")
	}

	var row blobRow
	err := s.db.GetContext(ctx, &row, `SELECT key, value, revision, updated_at FROM blobs WHERE key = ?;`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, ErrKeyNotFound
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "Error reading blob", "key", key, "error", err)
		return nil, 0, fmt.Errorf("failed to read blob %q: %w", key, err)
	}

	return row.Value, row.Revision, nil
}

func (s *sqlxStore) Put(ctx context.Context, key string, value []byte, expectedRevision int64) (int64, error) {
	if key == "" {
		return 0, fmt.Errorf("key cannot be empty")
	}

	now := time.Now().UTC()

	if expectedRevision == 0 {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO blobs (key, value, revision, updated_at) VALUES (?, ?, 1, ?);`,
			key, value, now)
		if err != nil {
			// A unique-constraint failure means the key already exists, which
			// is a conflict from the caller's point of view.
			if _, rev, getErr := s.Get(ctx, key); getErr == nil {
				s.logger.DebugContext(ctx, "Create conflict on existing key", "key", key, "revision", rev)
				return 0, ErrRevisionConflict
			}
			s.logger.ErrorContext(ctx, "Error creating blob", "key", key, "error", err)
			return 0, fmt.Errorf("failed to create blob %q: %w", key, err)
		}
		return 1, nil
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE blobs SET value = ?, revision = revision + 1, updated_at = ? WHERE key = ? AND revision = ?;`,
		value, now, key, expectedRevision)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error updating blob", "key", key, "error", err)
		return 0, fmt.Errorf("failed to update blob %q: %w", key, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check update result for %q: %w", key, err)
	}
	if affected == 0 {
		s.logger.DebugContext(ctx, "Revision conflict on blob update", "key", key, "expected_revision", expectedRevision)
		return 0, ErrRevisionConflict
	}

	return expectedRevision + 1, nil
}

func (s *sqlxStore) RunSQLMaintenance(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "VACUUM;"); err != nil {
		return fmt.Errorf("vacuum failed: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA optimize;"); err != nil {
		return fmt.Errorf("pragma optimize failed: %w", err)
	}
	s.logger.InfoContext(ctx, "SQL maintenance completed")
	return nil
}

// PutLatest writes value under key regardless of the stored revision, using
// a read-then-write cycle with one conflict retry. Mirroring paths use it
// where the in-process state is authoritative.
func PutLatest(ctx context.Context, store Store, key string, value []byte) error {
	for attempt := 0; attempt < 2; attempt++ {
		_, rev, err := store.Get(ctx, key)
		if errors.Is(err, ErrKeyNotFound) {
			rev = 0
		} else if err != nil {
			return err
		}

		_, err = store.Put(ctx, key, value, rev)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrRevisionConflict) {
			return err
		}
	}
	return fmt.Errorf("giving up after revision conflicts on %q: %w", key, ErrRevisionConflict)
}
