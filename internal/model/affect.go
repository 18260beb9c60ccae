package model

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rcliao/affect-matrix/internal/apperr"
)

// Affect axes are bounded to [MinAffect, MaxAffect].
const (
	MinAffect = -1.0
	MaxAffect = 1.0
)

// EmotionPrediction is a point on the valence/arousal plane.
type EmotionPrediction struct {
	Valence float64 `json:"valence"`
	Arousal float64 `json:"arousal"`
}

// Clamp bounds both axes. NaN collapses to 0.
func (e EmotionPrediction) Clamp() EmotionPrediction {
	return EmotionPrediction{Valence: clamp(e.Valence), Arousal: clamp(e.Arousal)}
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < MinAffect:
		return MinAffect
	case v > MaxAffect:
		return MaxAffect
	}
	return v
}

// MemoryRecord is one remembered interaction, persisted with exactly
// these JSON field names.
type MemoryRecord struct {
	SourceID  string    `json:"source_id,omitempty"`
	Text      string    `json:"text"`
	Valence   float64   `json:"valence"`
	Arousal   float64   `json:"arousal"`
	Timestamp time.Time `json:"timestamp"`
}

// NewRecord builds a record from a prediction, clamping it first.
func NewRecord(sourceID, text string, e EmotionPrediction, at time.Time) MemoryRecord {
	e = e.Clamp()
	return MemoryRecord{
		SourceID:  sourceID,
		Text:      text,
		Valence:   e.Valence,
		Arousal:   e.Arousal,
		Timestamp: at.UTC(),
	}
}

// Emotion returns the record's affect point.
func (r MemoryRecord) Emotion() EmotionPrediction {
	return EmotionPrediction{Valence: r.Valence, Arousal: r.Arousal}
}

// Validate checks a record supplied from outside the engine.
func (r MemoryRecord) Validate() error {
	const op = "validate memory record"
	if strings.TrimSpace(r.Text) == "" {
		return apperr.Errorf(apperr.ConfigInvalid, op, "text is required")
	}
	if err := checkAxis("valence", r.Valence); err != nil {
		return apperr.E(apperr.ConfigInvalid, op, err)
	}
	if err := checkAxis("arousal", r.Arousal); err != nil {
		return apperr.E(apperr.ConfigInvalid, op, err)
	}
	if r.Timestamp.IsZero() {
		return apperr.Errorf(apperr.ConfigInvalid, op, "timestamp is required")
	}
	return nil
}

// ValidateRecords checks every record and reports the first bad index.
func ValidateRecords(records []MemoryRecord) error {
	for i, r := range records {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
	}
	return nil
}
