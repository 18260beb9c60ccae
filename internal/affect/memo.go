package affect

import (
	"fmt"

	"github.com/dgraph-io/ristretto"

	"github.com/rcliao/affect-matrix/internal/model"
)

// memo caches predictions by exact input text. A nil *memo is a valid,
// always-missing cache.
type memo struct {
	cache *ristretto.Cache
}

func newMemo(entries int64) (*memo, error) {
	if entries <= 0 {
		return nil, nil
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: entries * 10,
		MaxCost:     entries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create prediction cache: %w", err)
	}
	return &memo{cache: c}, nil
}

func (m *memo) get(text string) (model.EmotionPrediction, bool) {
	if m == nil {
		return model.EmotionPrediction{}, false
	}
	v, ok := m.cache.Get(text)
	if !ok {
		return model.EmotionPrediction{}, false
	}
	e, ok := v.(model.EmotionPrediction)
	return e, ok
}

func (m *memo) set(text string, e model.EmotionPrediction) {
	if m == nil {
		return
	}
	m.cache.Set(text, e, 1)
}

// wait blocks until buffered writes are applied.
func (m *memo) wait() {
	if m != nil {
		m.cache.Wait()
	}
}

func (m *memo) close() {
	if m != nil {
		m.cache.Close()
	}
}
