package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/rcliao/affect-matrix/internal/apperr"
)

// SQLiteCatalog implements Catalog using SQLite.
type SQLiteCatalog struct {
	db   *sql.DB
	path string

	entropyMu sync.Mutex
	entropy   *rand.Rand
}

// NewSQLiteCatalog opens or creates a SQLite catalog at the given path.
func NewSQLiteCatalog(dbPath string) (*SQLiteCatalog, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	c := &SQLiteCatalog{
		db:      db,
		path:    dbPath,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	if err := c.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return c, nil
}

// NewID returns a fresh, time-sortable NPC id.
func (c *SQLiteCatalog) NewID() string {
	c.entropyMu.Lock()
	defer c.entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), c.entropy).String()
}

// Path returns the database file.
func (c *SQLiteCatalog) Path() string { return c.path }

func (c *SQLiteCatalog) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS npcs (
		id            TEXT PRIMARY KEY,
		name          TEXT NOT NULL,
		background    TEXT NOT NULL DEFAULT '',
		valence       REAL NOT NULL,
		arousal       REAL NOT NULL,
		memory_config TEXT NOT NULL,
		created_at    TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_npcs_created ON npcs(created_at);
	`
	_, err := c.db.Exec(schema)
	return err
}

// Put inserts a new NPC. An existing id fails with AlreadyExists.
func (c *SQLiteCatalog) Put(ctx context.Context, e NpcEntry) error {
	const op = "catalog put"
	memCfg, err := json.Marshal(e.Config.MemoryConfig)
	if err != nil {
		return apperr.E(apperr.ConfigInvalid, op, err)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.E(apperr.PersistenceFailed, op, err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM npcs WHERE id = ?`, e.ID).Scan(&exists)
	switch {
	case err == nil:
		return apperr.Errorf(apperr.AlreadyExists, op, "npc %q already exists", e.ID)
	case !errors.Is(err, sql.ErrNoRows):
		return apperr.E(apperr.PersistenceFailed, op, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO npcs (id, name, background, valence, arousal, memory_config, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Config.Identity.Name, e.Config.Identity.Background,
		e.Config.Personality.Valence, e.Config.Personality.Arousal,
		string(memCfg), e.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return apperr.E(apperr.PersistenceFailed, op, fmt.Errorf("insert npc: %w", err))
	}
	if err := tx.Commit(); err != nil {
		return apperr.E(apperr.PersistenceFailed, op, err)
	}
	return nil
}

// Get returns one NPC or NotFound.
func (c *SQLiteCatalog) Get(ctx context.Context, id string) (*NpcEntry, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT id, name, background, valence, arousal, memory_config, created_at
		FROM npcs WHERE id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.Errorf(apperr.NotFound, "catalog get", "npc %q", id)
	}
	if err != nil {
		return nil, apperr.E(apperr.PersistenceFailed, "catalog get", err)
	}
	return &e, nil
}

// List returns every NPC, oldest first.
func (c *SQLiteCatalog) List(ctx context.Context) ([]NpcEntry, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, name, background, valence, arousal, memory_config, created_at
		FROM npcs ORDER BY created_at, id`)
	if err != nil {
		return nil, apperr.E(apperr.PersistenceFailed, "catalog list", err)
	}
	defer rows.Close()

	var out []NpcEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, apperr.E(apperr.PersistenceFailed, "catalog list", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.E(apperr.PersistenceFailed, "catalog list", err)
	}
	return out, nil
}

// Delete removes an NPC and reports whether it existed.
func (c *SQLiteCatalog) Delete(ctx context.Context, id string) (bool, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM npcs WHERE id = ?`, id)
	if err != nil {
		return false, apperr.E(apperr.PersistenceFailed, "catalog delete", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Close closes the database connection.
func (c *SQLiteCatalog) Close() error {
	return c.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (NpcEntry, error) {
	var (
		e         NpcEntry
		memCfg    string
		createdAt string
	)
	err := s.Scan(&e.ID, &e.Config.Identity.Name, &e.Config.Identity.Background,
		&e.Config.Personality.Valence, &e.Config.Personality.Arousal,
		&memCfg, &createdAt)
	if err != nil {
		return e, err
	}
	if err := json.Unmarshal([]byte(memCfg), &e.Config.MemoryConfig); err != nil {
		return e, fmt.Errorf("decode memory_config for %s: %w", e.ID, err)
	}
	e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return e, nil
}

var _ Catalog = (*SQLiteCatalog)(nil)

