package affect

import (
	"context"
	"fmt"

	"github.com/rcliao/affect-matrix/internal/chunker"
	"github.com/rcliao/affect-matrix/internal/model"
)

// Windowed splits long text into windows, predicts each, and returns the
// length-weighted mean.
type Windowed struct {
	inner Predictor
	opts  chunker.Options
}

// NewWindowed wraps p so inputs are fed to it one window at a time.
func NewWindowed(p Predictor, opts chunker.Options) *Windowed {
	return &Windowed{inner: p, opts: opts}
}

func (w *Windowed) Predict(ctx context.Context, text string) (model.EmotionPrediction, error) {
	chunks := chunker.Chunk(text, w.opts)
	if len(chunks) <= 1 {
		return w.inner.Predict(ctx, text)
	}

	var sumV, sumA, total float64
	for _, c := range chunks {
		if err := ctx.Err(); err != nil {
			return model.EmotionPrediction{}, err
		}
		e, err := w.inner.Predict(ctx, c.Text)
		if err != nil {
			return model.EmotionPrediction{}, fmt.Errorf("window %d: %w", c.Seq, err)
		}
		n := float64(c.Runes())
		sumV += e.Valence * n
		sumA += e.Arousal * n
		total += n
	}
	return model.EmotionPrediction{Valence: sumV / total, Arousal: sumA / total}, nil
}

// Close closes the wrapped predictor when it holds resources.
func (w *Windowed) Close() error {
	return closeBackend(w.inner)
}
