package evaluator

import (
	"math"
	"time"

	"github.com/rcliao/affect-matrix/internal/model"
)

// DecayWeight is 0.5^(age/halfLife). Records from the future count as new.
func DecayWeight(age, halfLife time.Duration) float64 {
	if age < 0 {
		age = 0
	}
	if halfLife <= 0 {
		return 1
	}
	return math.Pow(0.5, age.Seconds()/halfLife.Seconds())
}

// Blend mixes the baseline, weighted by cfg.BaselineWeight, with the
// decay-weighted records, per axis, and clamps the result. No records
// yields the baseline unchanged.
func Blend(baseline model.EmotionPrediction, records []model.MemoryRecord, cfg model.MemoryConfig, now time.Time) model.EmotionPrediction {
	if len(records) == 0 {
		return baseline
	}
	halfLife := cfg.DecayHalfLife.Std()
	bw := cfg.BaselineWeight

	sumW := bw
	v := bw * baseline.Valence
	a := bw * baseline.Arousal
	for _, r := range records {
		w := DecayWeight(now.Sub(r.Timestamp), halfLife)
		sumW += w
		v += w * r.Valence
		a += w * r.Arousal
	}
	if sumW == 0 {
		return baseline.Clamp()
	}
	return model.EmotionPrediction{Valence: v / sumW, Arousal: a / sumW}.Clamp()
}
