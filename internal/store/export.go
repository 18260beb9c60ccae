package store

import (
	"context"

	"github.com/rcliao/affect-matrix/internal/apperr"
	"github.com/rcliao/affect-matrix/internal/model"
)

// ExportAll returns every NPC's memory log keyed by NPC id, optionally
// filtered to one NPC.
func (s *MemoryStore) ExportAll(ctx context.Context, npcID string) (map[string][]model.MemoryRecord, error) {
	var ids []string
	if npcID != "" {
		ids = []string{npcID}
	} else {
		var err error
		if ids, err = s.ids(); err != nil {
			return nil, apperr.E(apperr.PersistenceFailed, "export memory", err)
		}
	}

	out := make(map[string][]model.MemoryRecord, len(ids))
	for _, id := range ids {
		recs, err := s.All(ctx, id)
		if err != nil {
			return nil, err
		}
		out[id] = recs
	}
	return out, nil
}

// ImportAll replaces the logs of every NPC in dump. retention supplies the
// per-NPC bounds. It stops at the first failure and returns how many NPCs
// were imported.
func (s *MemoryStore) ImportAll(ctx context.Context, dump map[string][]model.MemoryRecord, retention func(npcID string) (Retention, error)) (int, error) {
	imported := 0
	for id, recs := range dump {
		ret, err := retention(id)
		if err != nil {
			return imported, err
		}
		if err := s.Import(ctx, id, recs, ret); err != nil {
			return imported, err
		}
		imported++
	}
	return imported, nil
}
