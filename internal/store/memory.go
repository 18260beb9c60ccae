package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/rcliao/affect-matrix/internal/apperr"
	"github.com/rcliao/affect-matrix/internal/logging"
	"github.com/rcliao/affect-matrix/internal/model"
)

const (
	fileExt = ".json"
	tmpExt  = ".tmp"
)

// MemoryStore keeps each NPC's memory log in <root>/<npc_id>.json and an
// in-memory copy that always matches the last committed file.
type MemoryStore struct {
	root    string
	workers int

	mu    sync.Mutex
	units map[string]*unit
}

// unit is one NPC's log. Its lock serializes writers; readers share it.
type unit struct {
	mu      sync.RWMutex
	loaded  bool
	removed bool
	records []model.MemoryRecord
}

// LoadReport summarizes a startup scan.
type LoadReport struct {
	Loaded  int           `json:"loaded"`
	Skipped []SkippedUnit `json:"skipped,omitempty"`
}

// SkippedUnit is a memory file that could not be read.
type SkippedUnit struct {
	NpcID  string `json:"npc_id"`
	Reason string `json:"reason"`
}

// NewMemoryStore opens (creating if needed) the memory root. workers bounds
// parallel file reads in LoadAllFromDisk.
func NewMemoryStore(root string, workers int) (*MemoryStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, apperr.E(apperr.PersistenceFailed, "open memory store", fmt.Errorf("create memory root: %w", err))
	}
	if workers <= 0 {
		workers = 1
	}
	return &MemoryStore{
		root:    root,
		workers: workers,
		units:   make(map[string]*unit),
	}, nil
}

// Root returns the memory directory.
func (s *MemoryStore) Root() string { return s.root }

func (s *MemoryStore) path(npcID string) string {
	return filepath.Join(s.root, npcID+fileExt)
}

func (s *MemoryStore) unitFor(npcID string) *unit {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.units[npcID]
	if !ok {
		u = &unit{}
		s.units[npcID] = u
	}
	return u
}

// lock returns npcID's unit write-locked. With load set, the file is read
// on first use.
func (s *MemoryStore) lock(npcID string, load bool) (*unit, error) {
	for {
		u := s.unitFor(npcID)
		u.mu.Lock()
		if u.removed {
			u.mu.Unlock()
			continue
		}
		if load && !u.loaded {
			recs, err := s.readFile(npcID)
			if err != nil {
				u.mu.Unlock()
				return nil, err
			}
			u.records = recs
			u.loaded = true
		}
		return u, nil
	}
}

// Append adds rec to npcID's log, evicting per ret, and returns a copy of
// the log once it is on disk. On error nothing changes.
func (s *MemoryStore) Append(ctx context.Context, npcID string, rec model.MemoryRecord, ret Retention) ([]model.MemoryRecord, error) {
	const op = "append memory"
	if err := model.ValidateNpcID(npcID); err != nil {
		return nil, err
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	u, err := s.lock(npcID, true)
	if err != nil {
		return nil, err
	}
	defer u.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, apperr.E(apperr.PersistenceFailed, op, err)
	}

	next := make([]model.MemoryRecord, len(u.records), len(u.records)+1)
	copy(next, u.records)
	next = append(next, rec)
	next, evicted := evict(next, ret)

	if err := s.writeFile(npcID, next); err != nil {
		return nil, apperr.E(apperr.PersistenceFailed, op, err)
	}
	u.records = next
	if evicted > 0 {
		logging.With("npc_id", npcID).Debugf("evicted %d memory records (%s)", evicted, ret.Eviction)
	}
	return cloneRecords(next), nil
}

// All returns npcID's records in insertion order. No history yields an
// empty slice.
func (s *MemoryStore) All(ctx context.Context, npcID string) ([]model.MemoryRecord, error) {
	if err := model.ValidateNpcID(npcID); err != nil {
		return nil, err
	}

	u := s.unitFor(npcID)
	u.mu.RLock()
	if u.loaded && !u.removed {
		out := cloneRecords(u.records)
		u.mu.RUnlock()
		return out, nil
	}
	u.mu.RUnlock()

	// first read of this NPC: load under the write lock
	u, err := s.lock(npcID, true)
	if err != nil {
		return nil, err
	}
	defer u.mu.Unlock()
	return cloneRecords(u.records), nil
}

func cloneRecords(records []model.MemoryRecord) []model.MemoryRecord {
	out := make([]model.MemoryRecord, len(records))
	copy(out, records)
	return out
}

// Import validates every record, then atomically replaces npcID's log.
func (s *MemoryStore) Import(ctx context.Context, npcID string, records []model.MemoryRecord, ret Retention) error {
	const op = "import memory"
	if err := model.ValidateNpcID(npcID); err != nil {
		return err
	}
	if err := model.ValidateRecords(records); err != nil {
		return apperr.Wrap(apperr.ConfigInvalid, op, err)
	}

	next := slices.Clone(records)
	for i := range next {
		next[i].Timestamp = next[i].Timestamp.UTC()
	}
	next, evicted := evict(next, ret)

	u, err := s.lock(npcID, false)
	if err != nil {
		return err
	}
	defer u.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return apperr.E(apperr.PersistenceFailed, op, err)
	}
	if err := s.writeFile(npcID, next); err != nil {
		return apperr.E(apperr.PersistenceFailed, op, err)
	}
	u.records = next
	u.loaded = true
	logging.With("npc_id", npcID).Infof("imported %d memory records (%d evicted)", len(next), evicted)
	return nil
}

// Clear empties npcID's log in memory and on disk. Clearing an NPC with
// no history is a no-op.
func (s *MemoryStore) Clear(ctx context.Context, npcID string) error {
	const op = "clear memory"
	if err := model.ValidateNpcID(npcID); err != nil {
		return err
	}
	u, err := s.lock(npcID, false)
	if err != nil {
		return err
	}
	defer u.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return apperr.E(apperr.PersistenceFailed, op, err)
	}
	if _, err := os.Stat(s.path(npcID)); err == nil {
		if err := s.writeFile(npcID, nil); err != nil {
			return apperr.E(apperr.PersistenceFailed, op, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return apperr.E(apperr.PersistenceFailed, op, err)
	}
	u.records = nil
	u.loaded = true
	return nil
}

// RemoveNPC deletes npcID's file and in-memory log. Unknown ids are a no-op.
func (s *MemoryStore) RemoveNPC(ctx context.Context, npcID string) error {
	const op = "remove npc memory"
	if err := model.ValidateNpcID(npcID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.units[npcID]
	if u != nil {
		u.mu.Lock()
		defer u.mu.Unlock()
	}
	if err := os.Remove(s.path(npcID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return apperr.E(apperr.PersistenceFailed, op, err)
	}
	if u != nil {
		u.removed = true
		u.records = nil
		delete(s.units, npcID)
	}
	return nil
}

// Exists reports whether npcID has a memory file or a loaded log.
func (s *MemoryStore) Exists(npcID string) bool {
	if model.ValidateNpcID(npcID) != nil {
		return false
	}
	if _, err := os.Stat(s.path(npcID)); err == nil {
		return true
	}
	s.mu.Lock()
	u := s.units[npcID]
	s.mu.Unlock()
	if u == nil {
		return false
	}
	u.mu.RLock()
	defer u.mu.RUnlock()
	return len(u.records) > 0
}

// LoadAllFromDisk reads every memory file under the root in parallel.
// Unreadable files are skipped, logged and reported; they never abort the
// scan. Logs already loaded in memory are left alone.
func (s *MemoryStore) LoadAllFromDisk(ctx context.Context) (LoadReport, error) {
	const op = "load memory"
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return LoadReport{}, os.MkdirAll(s.root, 0o755)
		}
		return LoadReport{}, apperr.E(apperr.PersistenceFailed, op, err)
	}

	var (
		mu     sync.Mutex
		report LoadReport
	)
	skip := func(id, reason string) {
		mu.Lock()
		report.Skipped = append(report.Skipped, SkippedUnit{NpcID: id, Reason: reason})
		mu.Unlock()
		logging.With("npc_id", id, "path", s.path(id)).Warnf("skipping memory file: %s", reason)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(name, tmpExt) {
			// leftover from an interrupted write; the committed file is intact
			os.Remove(filepath.Join(s.root, name))
			continue
		}
		if !strings.HasSuffix(name, fileExt) {
			continue
		}
		id := strings.TrimSuffix(name, fileExt)
		if model.ValidateNpcID(id) != nil {
			skip(id, "file name is not a valid npc id")
			continue
		}

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			recs, err := s.readFile(id)
			if err != nil {
				skip(id, err.Error())
				return nil
			}
			u := s.unitFor(id)
			u.mu.Lock()
			if !u.loaded && !u.removed {
				u.records = recs
				u.loaded = true
			}
			u.mu.Unlock()

			mu.Lock()
			report.Loaded++
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, apperr.E(apperr.PersistenceFailed, op, err)
	}

	slices.SortFunc(report.Skipped, func(a, b SkippedUnit) int { return strings.Compare(a.NpcID, b.NpcID) })
	logging.With("root", s.root).Infof("loaded %d npc memory files, skipped %d", report.Loaded, len(report.Skipped))
	return report, nil
}

// ids lists NPCs with a file on disk or a loaded log.
func (s *MemoryStore) ids() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	seen := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, fileExt) {
			continue
		}
		id := strings.TrimSuffix(name, fileExt)
		if model.ValidateNpcID(id) == nil {
			seen[id] = true
		}
	}
	s.mu.Lock()
	for id, u := range s.units {
		if u.loaded {
			seen[id] = true
		}
	}
	s.mu.Unlock()

	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	slices.Sort(out)
	return out, nil
}

func (s *MemoryStore) readFile(npcID string) ([]model.MemoryRecord, error) {
	const op = "read memory"
	b, err := os.ReadFile(s.path(npcID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, apperr.E(apperr.PersistenceFailed, op, err)
	}
	var recs []model.MemoryRecord
	if err := json.Unmarshal(b, &recs); err != nil {
		return nil, apperr.E(apperr.PersistenceFailed, op, fmt.Errorf("corrupt memory file %s: %w", s.path(npcID), err))
	}
	if err := model.ValidateRecords(recs); err != nil {
		return nil, apperr.E(apperr.PersistenceFailed, op, fmt.Errorf("invalid memory file %s: %w", s.path(npcID), err))
	}
	return recs, nil
}

// writeFile commits records with write-to-temp, fsync, rename.
func (s *MemoryStore) writeFile(npcID string, records []model.MemoryRecord) error {
	if records == nil {
		records = []model.MemoryRecord{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode memory: %w", err)
	}

	tmp, err := os.CreateTemp(s.root, npcID+".*"+tmpExt)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write memory: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync memory: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close memory: %w", err)
	}
	if err := os.Rename(tmpName, s.path(npcID)); err != nil {
		cleanup()
		return fmt.Errorf("commit memory: %w", err)
	}
	return nil
}

// evict trims records to ret.MaxRecords and returns how many were dropped.
func evict(records []model.MemoryRecord, ret Retention) ([]model.MemoryRecord, int) {
	if ret.MaxRecords <= 0 || len(records) <= ret.MaxRecords {
		return records, 0
	}
	n := len(records) - ret.MaxRecords

	if ret.Eviction != model.EvictLowestWeight || ret.HalfLife <= 0 {
		return slices.Clone(records[n:]), n
	}

	// Drop the n smallest decay weights; ties go to the earliest record.
	weight := func(r model.MemoryRecord) float64 {
		age := ret.Now.Sub(r.Timestamp)
		if age < 0 {
			age = 0
		}
		return math.Pow(0.5, age.Seconds()/ret.HalfLife.Seconds())
	}
	order := make([]int, len(records))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		wa, wb := weight(records[a]), weight(records[b])
		switch {
		case wa < wb:
			return -1
		case wa > wb:
			return 1
		}
		return 0
	})
	drop := make(map[int]bool, n)
	for _, i := range order[:n] {
		drop[i] = true
	}
	kept := make([]model.MemoryRecord, 0, ret.MaxRecords)
	for i, r := range records {
		if !drop[i] {
			kept = append(kept, r)
		}
	}
	return kept, n
}
