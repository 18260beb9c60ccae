package affect

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/rcliao/affect-matrix/internal/apperr"
	"github.com/rcliao/affect-matrix/internal/logging"
	"github.com/rcliao/affect-matrix/internal/model"
)

// ModelCache owns the process-wide predictor. The backend is loaded at
// most once; readers never see a partially loaded model.
type ModelCache struct {
	backend  string
	load     Loader
	maxChars int
	memoSize int64

	// sem serializes loads; a channel so waiters can give up on ctx.
	sem     chan struct{}
	current atomic.Pointer[loadedModel]
}

type loadedModel struct {
	backend Predictor
	guard   *guarded
}

// CacheOption configures a ModelCache.
type CacheOption func(*ModelCache)

// WithMaxInputChars sets the per-call input limit.
func WithMaxInputChars(n int) CacheOption {
	return func(c *ModelCache) { c.maxChars = n }
}

// WithMemo enables a prediction cache holding up to entries results.
func WithMemo(entries int64) CacheOption {
	return func(c *ModelCache) { c.memoSize = entries }
}

// NewModelCache returns an uninitialized cache for the named backend.
func NewModelCache(backend string, load Loader, opts ...CacheOption) *ModelCache {
	c := &ModelCache{
		backend:  backend,
		load:     load,
		maxChars: DefaultMaxInputChars,
		sem:      make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Backend names the configured predictor backend.
func (c *ModelCache) Backend() string { return c.backend }

// Ready reports whether Initialize has completed successfully.
func (c *ModelCache) Ready() bool { return c.current.Load() != nil }

// Initialize loads the backend. Concurrent callers wait for the first load;
// later calls return immediately. A failed load may be retried.
func (c *ModelCache) Initialize(ctx context.Context) error {
	const op = "initialize model"
	if c.Ready() {
		return nil
	}

	select {
	case c.sem <- struct{}{}:
	case <-ctx.Done():
		return apperr.E(apperr.ModelNotReady, op, ctx.Err())
	}
	defer func() { <-c.sem }()

	if c.Ready() {
		return nil
	}

	log := logging.With("backend", c.backend)
	start := time.Now()
	p, err := c.load(ctx)
	if err != nil {
		log.Warnf("model load failed: %v", err)
		return apperr.Wrap(apperr.ModelNotReady, op, err)
	}
	if p == nil {
		return apperr.Errorf(apperr.ModelNotReady, op, "backend %q returned no predictor", c.backend)
	}

	m, err := newMemo(c.memoSize)
	if err != nil {
		closeBackend(p)
		return apperr.E(apperr.ModelNotReady, op, err)
	}
	c.current.Store(&loadedModel{
		backend: p,
		guard:   &guarded{inner: p, maxChars: c.maxChars, memo: m},
	})
	log.Infof("model ready in %s", time.Since(start).Round(time.Millisecond))
	return nil
}

// WithPredictor runs fn against the loaded predictor. It fails with
// ModelNotReady before Initialize succeeds and never blocks on a load.
func (c *ModelCache) WithPredictor(fn func(Predictor) error) error {
	m := c.current.Load()
	if m == nil {
		return apperr.Errorf(apperr.ModelNotReady, "use model", "backend %q is not initialized", c.backend)
	}
	return fn(m.guard)
}

// Predict runs one prediction through the loaded model.
func (c *ModelCache) Predict(ctx context.Context, text string) (model.EmotionPrediction, error) {
	var out model.EmotionPrediction
	err := c.WithPredictor(func(p Predictor) error {
		var err error
		out, err = p.Predict(ctx, text)
		return err
	})
	return out, err
}

// Close releases the backend. It must not race with in-flight predictions.
func (c *ModelCache) Close() error {
	c.sem <- struct{}{}
	defer func() { <-c.sem }()

	m := c.current.Swap(nil)
	if m == nil {
		return nil
	}
	m.guard.memo.close()
	return closeBackend(m.backend)
}

func closeBackend(p Predictor) error {
	if cl, ok := p.(io.Closer); ok {
		if err := cl.Close(); err != nil {
			return fmt.Errorf("close predictor backend: %w", err)
		}
	}
	return nil
}
