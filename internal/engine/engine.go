// Package engine wires the predictor, memory store, NPC catalog and session
// registry into the operations callers drive: NPC lifecycle, interaction
// evaluation, emotion queries and memory introspection.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rcliao/affect-matrix/internal/affect"
	"github.com/rcliao/affect-matrix/internal/apperr"
	"github.com/rcliao/affect-matrix/internal/config"
	"github.com/rcliao/affect-matrix/internal/evaluator"
	"github.com/rcliao/affect-matrix/internal/logging"
	"github.com/rcliao/affect-matrix/internal/model"
	"github.com/rcliao/affect-matrix/internal/session"
	"github.com/rcliao/affect-matrix/internal/store"
)

// Engine owns every shared component. Build it with Open and release it
// with Close.
type Engine struct {
	cfg      config.Config
	defaults model.MemoryConfig
	now      func() time.Time

	model     *affect.ModelCache
	predictor affect.Predictor
	memory    *store.MemoryStore
	catalog   store.Catalog
	sessions  *session.Registry
	metrics   *Metrics

	loadReport store.LoadReport
}

// Option customizes Open.
type Option func(*Engine)

// WithModelCache replaces the predictor built from cfg.Predictor.
func WithModelCache(c *affect.ModelCache) Option {
	return func(e *Engine) { e.model = c }
}

// WithClock sets the time source for new records and decay.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// CreateRequest is the caller's NPC creation payload. Config and Memory are
// raw JSON decoded strictly; an empty ID asks for a generated one.
type CreateRequest struct {
	ID     string          `json:"npc_id,omitempty"`
	Config json.RawMessage `json:"config"`
	Memory json.RawMessage `json:"memory,omitempty"`
}

// NpcSummary is one row of ListNPCs.
type NpcSummary struct {
	NpcID     string          `json:"npc_id"`
	Config    model.NpcConfig `json:"config"`
	CreatedAt time.Time       `json:"created_at"`
	Live      bool            `json:"live"`
	Records   int             `json:"records"`
}

// MemorySnapshot is an NPC's full memory log.
type MemorySnapshot struct {
	NpcID   string               `json:"npc_id"`
	Count   int                  `json:"count"`
	Records []model.MemoryRecord `json:"records"`
}

// Stats describes the engine's state.
type Stats struct {
	Backend      string             `json:"backend"`
	ModelReady   bool               `json:"model_ready"`
	NPCs         int                `json:"npcs"`
	LiveSessions int                `json:"live_sessions"`
	CatalogPath  string             `json:"catalog_path"`
	Memory       *store.Stats       `json:"memory"`
	LastLoad     store.LoadReport   `json:"last_load"`
	Metrics      map[string]float64 `json:"metrics,omitempty"`
}

// Open builds the engine from cfg and reloads every persisted memory log.
// The predictor is not loaded; call Initialize.
func Open(ctx context.Context, cfg config.Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, apperr.E(apperr.ConfigInvalid, "open engine", err)
	}
	e := &Engine{
		cfg:      cfg,
		defaults: cfg.Defaults.MemoryConfig(),
		now:      time.Now,
		sessions: session.NewRegistry(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.model == nil {
		mc, err := affect.NewFromConfig(cfg.Predictor)
		if err != nil {
			return nil, apperr.E(apperr.ConfigInvalid, "open engine", err)
		}
		e.model = mc
	}

	mem, err := store.NewMemoryStore(cfg.MemoryRoot(), cfg.LoadWorkers)
	if err != nil {
		return nil, err
	}
	e.memory = mem

	cat, err := store.NewSQLiteCatalog(cfg.CatalogFile())
	if err != nil {
		return nil, apperr.E(apperr.PersistenceFailed, "open engine", err)
	}
	e.catalog = cat

	e.metrics = newMetrics(func() float64 { return float64(e.sessions.Len()) })
	e.predictor = timedPredictor{inner: e.model, hist: e.metrics.predictSeconds}

	ctx, cancel := e.opContext(ctx)
	defer cancel()
	report, err := e.memory.LoadAllFromDisk(ctx)
	if err != nil {
		cat.Close()
		return nil, err
	}
	e.loadReport = report

	logging.With("home", cfg.Home, "backend", e.model.Backend()).
		Infof("engine open: %d memory logs loaded, %d skipped", report.Loaded, len(report.Skipped))
	return e, nil
}

// Close releases the predictor backend and the catalog.
func (e *Engine) Close() error {
	return errors.Join(e.model.Close(), e.catalog.Close())
}

// Metrics returns the engine's instruments.
func (e *Engine) Metrics() *Metrics { return e.metrics }

// LoadReport returns the outcome of the startup memory scan.
func (e *Engine) LoadReport() store.LoadReport { return e.loadReport }

func (e *Engine) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if d := e.cfg.Timeouts.Operation; d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}

// Initialize loads the predictor. Repeated and concurrent calls load once.
func (e *Engine) Initialize(ctx context.Context) error {
	if d := e.cfg.Timeouts.Initialize; d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	return e.model.Initialize(ctx)
}

// Ready reports whether the predictor is loaded.
func (e *Engine) Ready() bool { return e.model.Ready() }

// CreateNPC validates and registers a new NPC, optionally seeding its
// memory, and returns its id. Nothing is left behind on failure.
func (e *Engine) CreateNPC(ctx context.Context, req CreateRequest) (string, error) {
	const op = "create npc"
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	cfg, err := model.DecodeNpcConfig(req.Config, e.defaults)
	if err != nil {
		return "", err
	}
	records, err := model.DecodeRecords(req.Memory)
	if err != nil {
		return "", err
	}
	id := req.ID
	if id == "" {
		id = e.catalog.NewID()
	}
	if err := model.ValidateNpcID(id); err != nil {
		return "", err
	}

	now := e.now()
	ev, err := e.newEvaluator(id, cfg, now)
	if err != nil {
		return "", err
	}

	if err := e.catalog.Put(ctx, store.NpcEntry{ID: id, Config: cfg, CreatedAt: now}); err != nil {
		return "", err
	}
	rollback := func() {
		// a fresh context: the caller's may be what just failed
		rctx, rcancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer rcancel()
		if err := e.memory.RemoveNPC(rctx, id); err != nil {
			logging.With("npc_id", id).Errorf("rollback memory: %v", err)
		}
		if _, err := e.catalog.Delete(rctx, id); err != nil {
			logging.With("npc_id", id).Errorf("rollback catalog: %v", err)
		}
	}

	// Always write the log, so a stale file from an earlier NPC with
	// this id never leaks into the new one.
	if err := e.memory.Import(ctx, id, records, store.RetentionFor(cfg.MemoryConfig, now)); err != nil {
		rollback()
		return "", err
	}
	if err := e.sessions.Create(id, ev); err != nil {
		rollback()
		return "", apperr.Wrap(apperr.AlreadyExists, op, err)
	}

	logging.With("npc_id", id, "records", len(records)).Infof("created npc %q", cfg.Identity.Name)
	return id, nil
}

func (e *Engine) newEvaluator(id string, cfg model.NpcConfig, createdAt time.Time) (*evaluator.Evaluator, error) {
	return evaluator.New(id, cfg, e.memory, e.predictor,
		evaluator.WithClock(e.now),
		evaluator.WithCreatedAt(createdAt),
	)
}

// entry looks id up in the catalog.
func (e *Engine) entry(ctx context.Context, id string) (*store.NpcEntry, error) {
	if err := model.ValidateNpcID(id); err != nil {
		return nil, err
	}
	return e.catalog.Get(ctx, id)
}

// resolve returns id's live evaluator, recreating it from the catalog
// after a restart or EndSession.
func (e *Engine) resolve(ctx context.Context, id string) (*evaluator.Evaluator, error) {
	if err := model.ValidateNpcID(id); err != nil {
		return nil, err
	}
	return e.sessions.GetOrCreate(id, func() (*evaluator.Evaluator, error) {
		ent, err := e.catalog.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		cfg := ent.Config
		cfg.MemoryConfig = cfg.MemoryConfig.WithDefaults(e.defaults)
		ev, err := e.newEvaluator(id, cfg, ent.CreatedAt)
		if err != nil {
			return nil, err
		}
		logging.With("npc_id", id).Debugf("session restored from catalog")
		return ev, nil
	})
}

// ListNPCs returns every cataloged NPC with its record count and whether
// it has a live session.
func (e *Engine) ListNPCs(ctx context.Context) ([]NpcSummary, error) {
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	entries, err := e.catalog.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]NpcSummary, 0, len(entries))
	for _, ent := range entries {
		_, live := e.sessions.Get(ent.ID)
		sum := NpcSummary{NpcID: ent.ID, Config: ent.Config, CreatedAt: ent.CreatedAt, Live: live}
		if recs, err := e.memory.All(ctx, ent.ID); err == nil {
			sum.Records = len(recs)
		} else {
			logging.With("npc_id", ent.ID).Warnf("count memory: %v", err)
		}
		out = append(out, sum)
	}
	return out, nil
}

// RemoveNPC deletes an NPC entirely: catalog entry, live session and
// memory log, in that order, so nothing can restore the session or write
// the log back once it returns. Evaluations still in flight fail with
// NotFound. It fails with NotFound only when none of them existed.
func (e *Engine) RemoveNPC(ctx context.Context, id string) error {
	const op = "remove npc"
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	if err := model.ValidateNpcID(id); err != nil {
		return err
	}
	cataloged, err := e.catalog.Delete(ctx, id)
	if err != nil {
		return err
	}
	ev, err := e.sessions.Take(id)
	live := err == nil
	if live {
		ev.Close()
	}
	onDisk := e.memory.Exists(id)
	if err := e.memory.RemoveNPC(ctx, id); err != nil {
		return err
	}
	if !cataloged && !live && !onDisk {
		return apperr.Errorf(apperr.NotFound, op, "npc %q", id)
	}
	logging.With("npc_id", id).Infof("removed npc")
	return nil
}

// EndSession drops id's live evaluator and keeps its memory and catalog
// entry. The next operation on id recreates it.
func (e *Engine) EndSession(id string) error {
	return e.sessions.Remove(id)
}

// Evaluate records an interaction with id and returns its new emotion.
func (e *Engine) Evaluate(ctx context.Context, id, text, sourceID string) (model.EmotionPrediction, error) {
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	out, err := e.evaluate(ctx, id, text, sourceID)
	e.metrics.observeEvaluation(err)
	return out, err
}

func (e *Engine) evaluate(ctx context.Context, id, text, sourceID string) (model.EmotionPrediction, error) {
	ev, err := e.resolve(ctx, id)
	if err != nil {
		return model.EmotionPrediction{}, err
	}
	return ev.EvaluateInteraction(ctx, text, strings.TrimSpace(sourceID))
}

// CurrentEmotion returns id's emotion blended over its whole history.
func (e *Engine) CurrentEmotion(ctx context.Context, id string) (model.EmotionPrediction, error) {
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	ev, err := e.resolve(ctx, id)
	if err != nil {
		return model.EmotionPrediction{}, err
	}
	return ev.CalculateCurrentEmotion(ctx)
}

// EmotionTowards returns id's emotion towards one interaction source.
func (e *Engine) EmotionTowards(ctx context.Context, id, sourceID string) (model.EmotionPrediction, error) {
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	sourceID = strings.TrimSpace(sourceID)
	if sourceID == "" {
		return model.EmotionPrediction{}, apperr.Errorf(apperr.ConfigInvalid, "emotion towards", "source id is required")
	}
	ev, err := e.resolve(ctx, id)
	if err != nil {
		return model.EmotionPrediction{}, err
	}
	return ev.CalculateCurrentEmotionTowardsSource(ctx, sourceID)
}

// Memory returns id's full memory log.
func (e *Engine) Memory(ctx context.Context, id string) (MemorySnapshot, error) {
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	if _, err := e.entry(ctx, id); err != nil {
		return MemorySnapshot{}, err
	}
	recs, err := e.memory.All(ctx, id)
	if err != nil {
		return MemorySnapshot{}, err
	}
	return MemorySnapshot{NpcID: id, Count: len(recs), Records: recs}, nil
}

// ClearMemory empties id's memory log. The NPC itself remains.
func (e *Engine) ClearMemory(ctx context.Context, id string) error {
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	if _, err := e.entry(ctx, id); err != nil {
		return err
	}
	if err := e.memory.Clear(ctx, id); err != nil {
		return err
	}
	logging.With("npc_id", id).Infof("memory cleared")
	return nil
}

// ImportMemory replaces id's memory log with the records in raw and
// returns how many were kept after retention.
func (e *Engine) ImportMemory(ctx context.Context, id string, raw json.RawMessage) (int, error) {
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	ent, err := e.entry(ctx, id)
	if err != nil {
		return 0, err
	}
	records, err := model.DecodeRecords(raw)
	if err != nil {
		return 0, err
	}
	cfg := ent.Config.MemoryConfig.WithDefaults(e.defaults)
	if err := e.memory.Import(ctx, id, records, store.RetentionFor(cfg, e.now())); err != nil {
		return 0, err
	}
	kept, err := e.memory.All(ctx, id)
	if err != nil {
		return 0, err
	}
	return len(kept), nil
}

// ExportMemory returns memory logs keyed by NPC id: every NPC when id is
// empty, otherwise just id.
func (e *Engine) ExportMemory(ctx context.Context, id string) (map[string][]model.MemoryRecord, error) {
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	if id != "" {
		if _, err := e.entry(ctx, id); err != nil {
			return nil, err
		}
	}
	return e.memory.ExportAll(ctx, id)
}

// Stats reports catalog, memory and predictor state plus metric values.
func (e *Engine) Stats(ctx context.Context) (*Stats, error) {
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	n, err := e.catalog.Count(ctx)
	if err != nil {
		return nil, err
	}
	mem, err := e.memory.Stats(ctx)
	if err != nil {
		return nil, err
	}
	snap, err := e.metrics.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("gather metrics: %w", err)
	}
	return &Stats{
		Backend:      e.model.Backend(),
		ModelReady:   e.model.Ready(),
		NPCs:         n,
		LiveSessions: e.sessions.Len(),
		CatalogPath:  e.cfg.CatalogFile(),
		Memory:       mem,
		LastLoad:     e.loadReport,
		Metrics:      snap,
	}, nil
}
