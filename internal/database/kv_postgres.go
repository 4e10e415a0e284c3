package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const localStateChannel = "reeldeck_local_state"

// changeNotice is the NOTIFY / PUBLISH payload; values are loaded separately
type changeNotice struct {
	Key     string    `json:"key"`
	Origin  uuid.UUID `json:"origin"`
	Deleted bool      `json:"deleted"`
}

// PostgresKV keeps the local profile in the local_state table.
// Writes notify listeners on the same database through LISTEN/NOTIFY.
type PostgresKV struct {
	db     *DB
	origin uuid.UUID
	logger *log.Logger
	owner  bool
}

// NewPostgresKV creates a KV on a migrated database; Close closes db
func NewPostgresKV(db *DB, logger *log.Logger) *PostgresKV {
	return &PostgresKV{db: db, origin: uuid.New(), logger: logger.WithPrefix("pgkv"), owner: true}
}

// Attach returns another handle on the same pool with its own origin
func (p *PostgresKV) Attach() *PostgresKV {
	return &PostgresKV{db: p.db, origin: uuid.New(), logger: p.logger}
}

// Origin identifies writes made through this handle
func (p *PostgresKV) Origin() uuid.UUID {
	return p.origin
}

// Get returns the stored value for key
func (p *PostgresKV) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := p.db.QueryRow(ctx,
		`SELECT value FROM local_state WHERE key = $1 AND NOT deleted`, key,
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
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

// Set upserts key and notifies listeners when the transaction commits
func (p *PostgresKV) Set(ctx context.Context, key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	err := pgx.BeginFunc(ctx, p.db.Pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO local_state (key, value, deleted, origin, version, updated_at)
			VALUES ($1, $2, FALSE, $3, nextval('local_state_version_seq'), $4)
			ON CONFLICT (key) DO UPDATE SET
				value = EXCLUDED.value,
				deleted = FALSE,
				origin = EXCLUDED.origin,
				version = EXCLUDED.version,
				updated_at = EXCLUDED.updated_at
		`, key, value, p.origin, time.Now().UTC())
		if err != nil {
			return err
		}
		return p.notify(ctx, tx, changeNotice{Key: key, Origin: p.origin})
	})
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Delete marks key deleted and notifies listeners
func (p *PostgresKV) Delete(ctx context.Context, key string) error {
	err := pgx.BeginFunc(ctx, p.db.Pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE local_state SET
				value = NULL,
				deleted = TRUE,
				origin = $2,
				version = nextval('local_state_version_seq'),
				updated_at = $3
			WHERE key = $1 AND NOT deleted
		`, key, p.origin, time.Now().UTC())
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		return p.notify(ctx, tx, changeNotice{Key: key, Origin: p.origin, Deleted: true})
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (p *PostgresKV) notify(ctx context.Context, tx pgx.Tx, n changeNotice) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `SELECT pg_notify($1, $2)`, localStateChannel, string(payload))
	return err
}

// Watch holds a pooled connection in LISTEN until ctx is done
func (p *PostgresKV) Watch(ctx context.Context) (<-chan Change, error) {
	conn, err := p.db.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire listen connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+localStateChannel); err != nil {
		conn.Release()
		return nil, fmt.Errorf("listen: %w", err)
	}

	out := make(chan Change)
	go func() {
		defer close(out)
		defer func() {
			unlistenCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if _, err := conn.Exec(unlistenCtx, "UNLISTEN *"); err != nil {
				// Drop the connection rather than return a listening one to the pool
				conn.Hijack().Close(unlistenCtx)
				return
			}
			conn.Release()
		}()

		for {
			n, err := conn.Conn().WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() == nil {
					p.logger.Error("local state listener stopped", "err", err)
				}
				return
			}

			var notice changeNotice
			if err := json.Unmarshal([]byte(n.Payload), &notice); err != nil {
				p.logger.Warn("ignoring malformed notification", "payload", n.Payload, "err", err)
				continue
			}
			if notice.Origin == p.origin {
				continue
			}

			change := Change{Key: notice.Key, Deleted: notice.Deleted, Origin: notice.Origin}
			if !notice.Deleted {
				value, err := p.Get(ctx, notice.Key)
				if errors.Is(err, ErrKeyNotFound) {
					change.Deleted = true
				} else if err != nil {
					p.logger.Warn("failed to load changed key", "key", notice.Key, "err", err)
					continue
				}
				change.Value = value
			}

			select {
			case out <- change:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// Health pings the postgres pool
func (p *PostgresKV) Health(ctx context.Context) error {
	return p.db.Health(ctx)
}

// Close closes the pool when called on the handle that created it
func (p *PostgresKV) Close() error {
	if p.owner {
		p.db.Close()
	}
	return nil
}
