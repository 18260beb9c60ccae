package store

import (
	"context"
	"os"

	"github.com/rcliao/affect-matrix/internal/apperr"
)

// Stats holds memory store statistics.
type Stats struct {
	MemoryRoot   string     `json:"memory_root"`
	TotalBytes   int64      `json:"total_bytes"`
	TotalRecords int        `json:"total_records"`
	NPCs         []NpcStats `json:"npcs"`
}

// NpcStats holds per-NPC counts.
type NpcStats struct {
	NpcID   string `json:"npc_id"`
	Records int    `json:"records"`
	Bytes   int64  `json:"bytes"`
}

// Stats returns per-NPC record counts and file sizes.
func (s *MemoryStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{MemoryRoot: s.root, NPCs: []NpcStats{}}

	ids, err := s.ids()
	if err != nil {
		return nil, apperr.E(apperr.PersistenceFailed, "memory stats", err)
	}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ns := NpcStats{NpcID: id}
		if info, err := os.Stat(s.path(id)); err == nil {
			ns.Bytes = info.Size()
		}
		recs, err := s.All(ctx, id)
		if err != nil {
			// a corrupt file still shows up with its size
			recs = nil
		}
		ns.Records = len(recs)

		st.TotalBytes += ns.Bytes
		st.TotalRecords += ns.Records
		st.NPCs = append(st.NPCs, ns)
	}
	return st, nil
}

// Count returns the number of cataloged NPCs.
func (c *SQLiteCatalog) Count(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM npcs`).Scan(&n); err != nil {
		return 0, apperr.E(apperr.PersistenceFailed, "catalog count", err)
	}
	return n, nil
}
