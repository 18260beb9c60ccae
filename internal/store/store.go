// Package store persists NPC memory logs (one JSON file per NPC) and the
// catalog of NPC configs (SQLite).
package store

import (
	"context"
	"time"

	"github.com/rcliao/affect-matrix/internal/model"
)

// Retention bounds an NPC's memory log on every write.
type Retention struct {
	MaxRecords int
	Eviction   string
	HalfLife   time.Duration
	Now        time.Time
}

// RetentionFor derives the write-time retention from an NPC's memory config.
func RetentionFor(cfg model.MemoryConfig, now time.Time) Retention {
	return Retention{
		MaxRecords: cfg.MaxRecords,
		Eviction:   cfg.Eviction,
		HalfLife:   cfg.DecayHalfLife.Std(),
		Now:        now,
	}
}

// NpcEntry is one catalog row.
type NpcEntry struct {
	ID        string          `json:"npc_id"`
	Config    model.NpcConfig `json:"config"`
	CreatedAt time.Time       `json:"created_at"`
}

// Catalog persists the immutable config of every known NPC.
type Catalog interface {
	NewID() string
	Put(ctx context.Context, e NpcEntry) error
	Get(ctx context.Context, id string) (*NpcEntry, error)
	List(ctx context.Context) ([]NpcEntry, error)
	Delete(ctx context.Context, id string) (bool, error)
	Count(ctx context.Context) (int, error)
	Close() error
}
