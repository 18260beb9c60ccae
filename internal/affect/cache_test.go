package affect

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/affect-matrix/internal/apperr"
	"github.com/rcliao/affect-matrix/internal/model"
)

type countingPredictor struct {
	calls  atomic.Int32
	out    model.EmotionPrediction
	err    error
	closed atomic.Bool
}

func (p *countingPredictor) Predict(ctx context.Context, text string) (model.EmotionPrediction, error) {
	p.calls.Add(1)
	return p.out, p.err
}

func (p *countingPredictor) Close() error {
	p.closed.Store(true)
	return nil
}

func TestModelCacheNotReady(t *testing.T) {
	c := NewModelCache("stub", Static(&countingPredictor{}))

	_, err := c.Predict(context.Background(), "hello")
	require.Error(t, err)
	assert.Equal(t, apperr.ModelNotReady, apperr.KindOf(err))
	assert.False(t, c.Ready())

	called := false
	err = c.WithPredictor(func(Predictor) error { called = true; return nil })
	assert.ErrorIs(t, err, apperr.ErrModelNotReady)
	assert.False(t, called)
}

func TestModelCacheConcurrentInitializeLoadsOnce(t *testing.T) {
	var loads atomic.Int32
	release := make(chan struct{})
	p := &countingPredictor{out: model.EmotionPrediction{Valence: 0.5, Arousal: 0.1}}

	c := NewModelCache("stub", func(ctx context.Context) (Predictor, error) {
		loads.Add(1)
		<-release
		return p, nil
	})

	const callers = 16
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- c.Initialize(context.Background())
		}()
	}

	// Readers during the load see not-ready, never a partial model.
	err := c.WithPredictor(func(Predictor) error { return nil })
	assert.Equal(t, apperr.ModelNotReady, apperr.KindOf(err))

	close(release)
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), loads.Load())
	assert.True(t, c.Ready())

	require.NoError(t, c.Initialize(context.Background()))
	assert.Equal(t, int32(1), loads.Load())

	got, err := c.Predict(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, model.EmotionPrediction{Valence: 0.5, Arousal: 0.1}, got)
}

func TestModelCacheRetryAfterFailedLoad(t *testing.T) {
	attempts := 0
	c := NewModelCache("stub", func(ctx context.Context) (Predictor, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("model file missing")
		}
		return &countingPredictor{}, nil
	})

	err := c.Initialize(context.Background())
	require.Error(t, err)
	assert.Equal(t, apperr.ModelNotReady, apperr.KindOf(err))
	assert.False(t, c.Ready())

	require.NoError(t, c.Initialize(context.Background()))
	assert.True(t, c.Ready())
	assert.Equal(t, 2, attempts)
}

func TestModelCacheInitializeHonorsContext(t *testing.T) {
	release := make(chan struct{})
	c := NewModelCache("stub", func(ctx context.Context) (Predictor, error) {
		<-release
		return &countingPredictor{}, nil
	})
	go c.Initialize(context.Background())
	defer close(release)

	// wait until the first loader holds the slot
	require.Eventually(t, func() bool { return len(c.sem) == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := c.Initialize(ctx)
	assert.Equal(t, apperr.ModelNotReady, apperr.KindOf(err))
}

func TestModelCacheInputValidation(t *testing.T) {
	p := &countingPredictor{}
	c := NewModelCache("stub", Static(p), WithMaxInputChars(10))
	require.NoError(t, c.Initialize(context.Background()))

	_, err := c.Predict(context.Background(), "   ")
	assert.Equal(t, apperr.ConfigInvalid, apperr.KindOf(err))

	_, err = c.Predict(context.Background(), strings.Repeat("a", 11))
	assert.Equal(t, apperr.ConfigInvalid, apperr.KindOf(err))
	assert.Equal(t, int32(0), p.calls.Load(), "over-long input must not reach the backend")

	_, err = c.Predict(context.Background(), strings.Repeat("é", 10))
	assert.NoError(t, err)
}

func TestModelCacheClassifiesBackendErrors(t *testing.T) {
	c := NewModelCache("stub", Static(&countingPredictor{err: errors.New("tensor shape mismatch")}))
	require.NoError(t, c.Initialize(context.Background()))

	_, err := c.Predict(context.Background(), "hello")
	assert.Equal(t, apperr.PredictionFailed, apperr.KindOf(err))
}

func TestModelCacheClampsBackendOutput(t *testing.T) {
	c := NewModelCache("stub", Static(&countingPredictor{out: model.EmotionPrediction{Valence: 4, Arousal: -3}}))
	require.NoError(t, c.Initialize(context.Background()))

	got, err := c.Predict(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, model.EmotionPrediction{Valence: 1, Arousal: -1}, got)
}

func TestModelCacheMemo(t *testing.T) {
	p := &countingPredictor{out: model.EmotionPrediction{Valence: 0.3}}
	c := NewModelCache("stub", Static(p), WithMemo(100))
	require.NoError(t, c.Initialize(context.Background()))

	_, err := c.Predict(context.Background(), "same words")
	require.NoError(t, err)
	c.current.Load().guard.memo.wait()

	got, err := c.Predict(context.Background(), "same words")
	require.NoError(t, err)
	assert.Equal(t, 0.3, got.Valence)
	assert.Equal(t, int32(1), p.calls.Load())
}

func TestModelCacheClose(t *testing.T) {
	p := &countingPredictor{}
	c := NewModelCache("stub", Static(p), WithMemo(10))
	require.NoError(t, c.Initialize(context.Background()))

	require.NoError(t, c.Close())
	assert.True(t, p.closed.Load())
	assert.False(t, c.Ready())
	require.NoError(t, c.Close())
}
