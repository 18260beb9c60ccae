// Package affect maps interaction text to a valence/arousal prediction.
package affect

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/rcliao/affect-matrix/internal/apperr"
	"github.com/rcliao/affect-matrix/internal/model"
)

// DefaultMaxInputChars bounds a single prediction input.
const DefaultMaxInputChars = 4096

// Predictor maps text to an affect point. Implementations must be safe
// for concurrent use.
type Predictor interface {
	Predict(ctx context.Context, text string) (model.EmotionPrediction, error)
}

// Func adapts a plain function to Predictor.
type Func func(ctx context.Context, text string) (model.EmotionPrediction, error)

func (f Func) Predict(ctx context.Context, text string) (model.EmotionPrediction, error) {
	return f(ctx, text)
}

// Loader builds a predictor backend. It runs at most once per successful
// ModelCache initialization.
type Loader func(ctx context.Context) (Predictor, error)

// CheckInput rejects empty text and text longer than maxChars runes.
// Over-long input is never truncated.
func CheckInput(text string, maxChars int) error {
	const op = "predict"
	if strings.TrimSpace(text) == "" {
		return apperr.Errorf(apperr.ConfigInvalid, op, "text is empty")
	}
	if maxChars > 0 {
		if n := utf8.RuneCountInString(text); n > maxChars {
			return apperr.Errorf(apperr.ConfigInvalid, op, "text has %d characters, limit is %d", n, maxChars)
		}
	}
	return nil
}

// Guard wraps p with input validation, error classification and clamping.
func Guard(p Predictor, maxChars int) Predictor {
	return &guarded{inner: p, maxChars: maxChars}
}

type guarded struct {
	inner    Predictor
	maxChars int
	memo     *memo
}

func (g *guarded) Predict(ctx context.Context, text string) (model.EmotionPrediction, error) {
	if err := CheckInput(text, g.maxChars); err != nil {
		return model.EmotionPrediction{}, err
	}
	if e, ok := g.memo.get(text); ok {
		return e, nil
	}
	if err := ctx.Err(); err != nil {
		return model.EmotionPrediction{}, apperr.E(apperr.PredictionFailed, "predict", err)
	}

	e, err := g.inner.Predict(ctx, text)
	if err != nil {
		return model.EmotionPrediction{}, apperr.Wrap(apperr.PredictionFailed, "predict", err)
	}
	if !finite(e) {
		return model.EmotionPrediction{}, apperr.E(apperr.PredictionFailed, "predict", fmt.Errorf("backend returned non-finite affect %+v", e))
	}
	e = e.Clamp()
	g.memo.set(text, e)
	return e, nil
}

func finite(e model.EmotionPrediction) bool {
	return !math.IsNaN(e.Valence) && !math.IsInf(e.Valence, 0) &&
		!math.IsNaN(e.Arousal) && !math.IsInf(e.Arousal, 0)
}
