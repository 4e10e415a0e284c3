package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS local_state (
		key        TEXT PRIMARY KEY,
		value      BLOB,
		deleted    INTEGER NOT NULL DEFAULT 0,
		origin     TEXT NOT NULL,
		version    INTEGER NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_local_state_version ON local_state(version);
`

// SQLiteOptions tunes the sqlite backend
type SQLiteOptions struct {
	// PollInterval is how often Watch looks for writes from other handles
	PollInterval time.Duration
	BusyTimeout  time.Duration
	Logger       *log.Logger
}

// SQLiteKV stores the local profile in a single sqlite file.
// Other processes opening the same file see each other's writes through Watch.
type SQLiteKV struct {
	db     *sql.DB
	origin uuid.UUID
	opts   SQLiteOptions
	owner  bool
}

// OpenSQLiteKV opens (or creates) the profile database at path.
// ":memory:" opens a private in-memory database.
func OpenSQLiteKV(path string, opts SQLiteOptions) (*SQLiteKV, error) {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 500 * time.Millisecond
	}
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = 5 * time.Second
	}

	memory := path == ":memory:"
	if !memory {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create profile directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// One connection: pragmas apply to it and an in-memory database stays a single database
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	pragmas := []string{fmt.Sprintf("PRAGMA busy_timeout=%d", opts.BusyTimeout.Milliseconds())}
	if !memory {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL", "PRAGMA synchronous=NORMAL")
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", p, err)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return &SQLiteKV{db: db, origin: uuid.New(), opts: opts, owner: true}, nil
}

// Attach returns another handle on the same database with its own origin
func (s *SQLiteKV) Attach() *SQLiteKV {
	return &SQLiteKV{db: s.db, origin: uuid.New(), opts: s.opts}
}

// Origin identifies writes made through this handle
func (s *SQLiteKV) Origin() uuid.UUID {
	return s.origin
}

// Get returns the stored value for key
func (s *SQLiteKV) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM local_state WHERE key = ? AND deleted = 0`, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	if value == nil {
		value = []byte{}
	}
	return value, nil
}

// Set stores value under key and bumps the global version
func (s *SQLiteKV) Set(ctx context.Context, key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO local_state (key, value, deleted, origin, version, updated_at)
		VALUES (?, ?, 0, ?, (SELECT COALESCE(MAX(version), 0) + 1 FROM local_state), ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			deleted = 0,
			origin = excluded.origin,
			version = excluded.version,
			updated_at = excluded.updated_at
	`, key, value, s.origin.String(), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Delete leaves a tombstone so watchers learn about the removal
func (s *SQLiteKV) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE local_state SET
			value = NULL,
			deleted = 1,
			origin = ?,
			version = (SELECT COALESCE(MAX(version), 0) + 1 FROM local_state),
			updated_at = ?
		WHERE key = ? AND deleted = 0
	`, s.origin.String(), time.Now().UTC().Format(time.RFC3339Nano), key)
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Watch polls for rows written by other handles since the call
func (s *SQLiteKV) Watch(ctx context.Context) (<-chan Change, error) {
	var last int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM local_state`,
	).Scan(&last); err != nil {
		return nil, fmt.Errorf("read version: %w", err)
	}

	out := make(chan Change)
	go func() {
		defer close(out)

		ticker := time.NewTicker(s.opts.PollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			changes, newest, err := s.changesSince(ctx, last)
			if err != nil {
				if ctx.Err() == nil && s.opts.Logger != nil {
					s.opts.Logger.Warn("local state poll failed", "err", err)
				}
				continue
			}
			last = newest

			for _, c := range changes {
				select {
				case out <- c:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

func (s *SQLiteKV) changesSince(ctx context.Context, version int64) ([]Change, int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, value, deleted, origin, version
		FROM local_state
		WHERE version > ?
		ORDER BY version
	`, version)
	if err != nil {
		return nil, version, err
	}
	defer rows.Close()

	var changes []Change
	newest := version
	for rows.Next() {
		var (
			c       Change
			origin  string
			deleted int
			v       int64
		)
		if err := rows.Scan(&c.Key, &c.Value, &deleted, &origin, &v); err != nil {
			return nil, version, err
		}
		newest = v
		if origin == s.origin.String() {
			continue
		}
		c.Deleted = deleted == 1
		c.Origin, _ = uuid.Parse(origin)
		changes = append(changes, c)
	}
	return changes, newest, rows.Err()
}

// Health pings the database file
func (s *SQLiteKV) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	return s.db.PingContext(ctx)
}

// Close closes the database when called on the handle that opened it
func (s *SQLiteKV) Close() error {
	if !s.owner {
		return nil
	}
	return s.db.Close()
}
