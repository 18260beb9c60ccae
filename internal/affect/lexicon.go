package affect

import (
	"context"
	"strings"
	"unicode"

	"github.com/rcliao/affect-matrix/internal/model"
)

// Lexicon is a deterministic word-list predictor. It needs no model files
// and is the default backend.
type Lexicon struct {
	words        map[string]model.EmotionPrediction
	negators     map[string]bool
	intensifiers map[string]float64
}

// NewLexicon returns a predictor over the built-in affect word list.
func NewLexicon() *Lexicon {
	return &Lexicon{
		words:        affectWords,
		negators:     negators,
		intensifiers: intensifiers,
	}
}

const (
	negationScope   = 3
	negatedValence  = -0.6
	negatedArousal  = 0.8
	exclaimArousal  = 0.1
	maxExclaimBoost = 0.3
	shoutArousal    = 0.1
	maxShoutBoost   = 0.2
)

// Predict averages the affect of every matched word. Negators flip the
// valence of the next affect word within a short window; intensifiers
// scale it. Exclamation marks and shouted words raise arousal.
func (l *Lexicon) Predict(ctx context.Context, text string) (model.EmotionPrediction, error) {
	if err := ctx.Err(); err != nil {
		return model.EmotionPrediction{}, err
	}

	var sumV, sumA float64
	matched := 0
	negateFor := 0
	scale := 1.0
	shouted := 0

	for _, raw := range tokenize(text) {
		if len([]rune(raw)) > 2 && isUpper(raw) {
			shouted++
		}
		w := strings.ToLower(raw)

		if l.negators[w] {
			negateFor = negationScope
			continue
		}
		if m, ok := l.intensifiers[w]; ok {
			scale *= m
			continue
		}

		e, ok := l.words[w]
		if !ok {
			if negateFor > 0 {
				negateFor--
			}
			continue
		}
		v, a := e.Valence*scale, e.Arousal*scale
		if negateFor > 0 {
			v *= negatedValence
			a *= negatedArousal
		}
		sumV += v
		sumA += a
		matched++
		negateFor = 0
		scale = 1.0
	}

	var out model.EmotionPrediction
	if matched > 0 {
		out = model.EmotionPrediction{Valence: sumV / float64(matched), Arousal: sumA / float64(matched)}
	}
	out.Arousal += min(float64(strings.Count(text, "!"))*exclaimArousal, maxExclaimBoost)
	out.Arousal += min(float64(shouted)*shoutArousal, maxShoutBoost)
	return out.Clamp(), nil
}

// tokenize splits on anything that is not a letter, digit or apostrophe.
func tokenize(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

func isUpper(s string) bool {
	hasLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			hasLetter = true
			if !unicode.IsUpper(r) {
				return false
			}
		}
	}
	return hasLetter
}
