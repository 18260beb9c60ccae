// Package evaluator turns interactions into an NPC's current emotion.
//
// Each Evaluator is bound to one NPC. Evaluating an interaction predicts
// its affect, appends a record to the NPC's memory log and returns the
// recomputed current emotion: the personality baseline blended with the
// decay-weighted history.
package evaluator

import (
	"context"
	"sync"
	"time"

	"github.com/rcliao/affect-matrix/internal/affect"
	"github.com/rcliao/affect-matrix/internal/apperr"
	"github.com/rcliao/affect-matrix/internal/logging"
	"github.com/rcliao/affect-matrix/internal/model"
	"github.com/rcliao/affect-matrix/internal/store"
)

// MemoryLog is the slice of the memory store an evaluator needs.
type MemoryLog interface {
	Append(ctx context.Context, npcID string, rec model.MemoryRecord, ret store.Retention) ([]model.MemoryRecord, error)
	All(ctx context.Context, npcID string) ([]model.MemoryRecord, error)
}

// Snapshot describes a live evaluator.
type Snapshot struct {
	NpcID     string          `json:"npc_id"`
	Config    model.NpcConfig `json:"config"`
	CreatedAt time.Time       `json:"created_at"`
}

// Evaluator computes one NPC's emotional state.
type Evaluator struct {
	id        string
	cfg       model.NpcConfig
	memory    MemoryLog
	predictor affect.Predictor
	now       func() time.Time
	createdAt time.Time

	// mu serializes EvaluateInteraction; reads do not take it.
	mu sync.Mutex

	// life guards closed. Held across the append so Close waits for a
	// write in progress but never for a prediction.
	life   sync.Mutex
	closed bool
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithPredictor replaces the shared predictor for this NPC only.
func WithPredictor(p affect.Predictor) Option {
	return func(e *Evaluator) {
		if p != nil {
			e.predictor = p
		}
	}
}

// WithClock sets the time source used for record timestamps and decay.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) { e.now = now }
}

// WithCreatedAt sets the creation time reported by Snapshot.
func WithCreatedAt(t time.Time) Option {
	return func(e *Evaluator) { e.createdAt = t }
}

// New binds an evaluator to npcID. cfg must already carry resolved memory
// defaults. Memory is not loaded here.
func New(npcID string, cfg model.NpcConfig, memory MemoryLog, predictor affect.Predictor, opts ...Option) (*Evaluator, error) {
	const op = "new evaluator"
	if err := model.ValidateNpcID(npcID); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if memory == nil {
		return nil, apperr.Errorf(apperr.ConfigInvalid, op, "memory log is required")
	}

	e := &Evaluator{
		id:        npcID,
		cfg:       cfg,
		memory:    memory,
		predictor: predictor,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.predictor == nil {
		return nil, apperr.Errorf(apperr.ConfigInvalid, op, "predictor is required")
	}
	if e.createdAt.IsZero() {
		e.createdAt = e.now().UTC()
	}
	return e, nil
}

// ID returns the NPC id.
func (e *Evaluator) ID() string { return e.id }

// Config returns the NPC config.
func (e *Evaluator) Config() model.NpcConfig { return e.cfg }

// Snapshot returns the evaluator's identity for listing.
func (e *Evaluator) Snapshot() Snapshot {
	return Snapshot{NpcID: e.id, Config: e.cfg, CreatedAt: e.createdAt}
}

// Close retires the evaluator. Evaluations still predicting when it
// returns fail with NotFound and record nothing.
func (e *Evaluator) Close() {
	e.life.Lock()
	e.closed = true
	e.life.Unlock()
}

// EvaluateInteraction predicts text's affect, records it against sourceID
// (may be empty) and returns the NPC's new current emotion. Calls for the
// same NPC run one at a time. On error no record is kept.
func (e *Evaluator) EvaluateInteraction(ctx context.Context, text, sourceID string) (model.EmotionPrediction, error) {
	const op = "evaluate interaction"
	e.mu.Lock()
	defer e.mu.Unlock()

	pred, err := e.predictor.Predict(ctx, text)
	if err != nil {
		return model.EmotionPrediction{}, apperr.Wrap(apperr.PredictionFailed, op, err)
	}

	e.life.Lock()
	defer e.life.Unlock()
	if e.closed {
		return model.EmotionPrediction{}, apperr.Errorf(apperr.NotFound, op, "npc %q was removed", e.id)
	}

	now := e.now()
	rec := model.NewRecord(sourceID, text, pred, now)
	records, err := e.memory.Append(ctx, e.id, rec, store.RetentionFor(e.cfg.MemoryConfig, now))
	if err != nil {
		return model.EmotionPrediction{}, apperr.Wrap(apperr.PersistenceFailed, op, err)
	}
	current := Blend(e.cfg.Personality.Baseline(), records, e.cfg.MemoryConfig, now)
	logging.With("npc_id", e.id, "source_id", sourceID).
		Debugf("interaction %+v moved emotion to %+v (%d records)", pred, current, len(records))
	return current, nil
}

// CalculateCurrentEmotion blends the baseline with the whole history.
func (e *Evaluator) CalculateCurrentEmotion(ctx context.Context) (model.EmotionPrediction, error) {
	records, err := e.memory.All(ctx, e.id)
	if err != nil {
		return model.EmotionPrediction{}, apperr.Wrap(apperr.PersistenceFailed, "current emotion", err)
	}
	return Blend(e.cfg.Personality.Baseline(), records, e.cfg.MemoryConfig, e.now()), nil
}

// CalculateCurrentEmotionTowardsSource blends the baseline with the records
// from sourceID only. With none, it is the baseline.
func (e *Evaluator) CalculateCurrentEmotionTowardsSource(ctx context.Context, sourceID string) (model.EmotionPrediction, error) {
	records, err := e.memory.All(ctx, e.id)
	if err != nil {
		return model.EmotionPrediction{}, apperr.Wrap(apperr.PersistenceFailed, "emotion towards source", err)
	}
	matching := records[:0:0]
	for _, r := range records {
		if r.SourceID == sourceID {
			matching = append(matching, r)
		}
	}
	return Blend(e.cfg.Personality.Baseline(), matching, e.cfg.MemoryConfig, e.now()), nil
}
