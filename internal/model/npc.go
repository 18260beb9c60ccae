// Package model defines the NPC affect data types and their validation.
package model

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/rcliao/affect-matrix/internal/apperr"
)

const (
	DefaultMaxRecords     = 1000
	DefaultDecayHalfLife  = 24 * time.Hour
	DefaultBaselineWeight = 1.0

	EvictFIFO         = "fifo"
	EvictLowestWeight = "lowest_weight"
)

// ValidEvictions are the allowed eviction policies.
var ValidEvictions = map[string]bool{
	EvictFIFO:         true,
	EvictLowestWeight: true,
}

var npcIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// ValidateNpcID rejects ids that cannot safely name a memory file.
func ValidateNpcID(id string) error {
	if !npcIDPattern.MatchString(id) {
		return apperr.Errorf(apperr.ConfigInvalid, "validate npc id", "invalid npc id %q: want 1-128 of [A-Za-z0-9_-]", id)
	}
	return nil
}

// Identity is the descriptive part of an NPC.
type Identity struct {
	Name       string `json:"name"`
	Background string `json:"background"`
}

// PersonalityTraits is the resting affect an NPC returns to.
type PersonalityTraits struct {
	Valence float64 `json:"valence"`
	Arousal float64 `json:"arousal"`
}

// Baseline returns the traits as an affect point.
func (p PersonalityTraits) Baseline() EmotionPrediction {
	return EmotionPrediction{Valence: p.Valence, Arousal: p.Arousal}
}

// MemoryConfig tunes retention and decay for one NPC.
type MemoryConfig struct {
	MaxRecords     int      `json:"max_records,omitempty"`
	DecayHalfLife  Duration `json:"decay_half_life,omitempty"`
	BaselineWeight float64  `json:"baseline_weight,omitempty"`
	Eviction       string   `json:"eviction,omitempty"`
}

// DefaultMemoryConfig returns the built-in retention settings.
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		MaxRecords:     DefaultMaxRecords,
		DecayHalfLife:  Duration(DefaultDecayHalfLife),
		BaselineWeight: DefaultBaselineWeight,
		Eviction:       EvictFIFO,
	}
}

// WithDefaults fills zero fields from d.
func (c MemoryConfig) WithDefaults(d MemoryConfig) MemoryConfig {
	if c.MaxRecords == 0 {
		c.MaxRecords = d.MaxRecords
	}
	if c.DecayHalfLife == 0 {
		c.DecayHalfLife = d.DecayHalfLife
	}
	if c.BaselineWeight == 0 {
		c.BaselineWeight = d.BaselineWeight
	}
	if c.Eviction == "" {
		c.Eviction = d.Eviction
	}
	return c
}

// Validate checks a fully resolved memory config.
func (c MemoryConfig) Validate() error {
	const op = "validate memory config"
	if c.MaxRecords <= 0 {
		return apperr.Errorf(apperr.ConfigInvalid, op, "max_records must be positive, got %d", c.MaxRecords)
	}
	if c.DecayHalfLife <= 0 {
		return apperr.Errorf(apperr.ConfigInvalid, op, "decay_half_life must be positive, got %s", c.DecayHalfLife)
	}
	if math.IsNaN(c.BaselineWeight) || math.IsInf(c.BaselineWeight, 0) || c.BaselineWeight <= 0 {
		return apperr.Errorf(apperr.ConfigInvalid, op, "baseline_weight must be a positive number, got %v", c.BaselineWeight)
	}
	if !ValidEvictions[c.Eviction] {
		return apperr.Errorf(apperr.ConfigInvalid, op, "unknown eviction policy %q", c.Eviction)
	}
	return nil
}

// NpcConfig is fixed at NPC creation.
type NpcConfig struct {
	Identity     Identity          `json:"identity"`
	Personality  PersonalityTraits `json:"personality"`
	MemoryConfig MemoryConfig      `json:"memory_config"`
}

// Validate checks identity, personality ranges and the memory config.
// Call it after WithDefaults has resolved zero values.
func (c NpcConfig) Validate() error {
	const op = "validate npc config"
	if strings.TrimSpace(c.Identity.Name) == "" {
		return apperr.Errorf(apperr.ConfigInvalid, op, "identity.name is required")
	}
	if err := checkAxis("personality.valence", c.Personality.Valence); err != nil {
		return apperr.E(apperr.ConfigInvalid, op, err)
	}
	if err := checkAxis("personality.arousal", c.Personality.Arousal); err != nil {
		return apperr.E(apperr.ConfigInvalid, op, err)
	}
	return c.MemoryConfig.Validate()
}

func checkAxis(name string, v float64) error {
	if math.IsNaN(v) || v < MinAffect || v > MaxAffect {
		return fmt.Errorf("%s must be within [%g, %g], got %v", name, MinAffect, MaxAffect, v)
	}
	return nil
}

// Duration is a time.Duration that reads either a Go duration string
// ("90m") or a number of seconds from JSON.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch x := v.(type) {
	case float64:
		*d = Duration(x * float64(time.Second))
	case string:
		parsed, err := time.ParseDuration(x)
		if err != nil {
			return fmt.Errorf("parse duration %q: %w", x, err)
		}
		*d = Duration(parsed)
	case nil:
		*d = 0
	default:
		return fmt.Errorf("duration must be a string or seconds, got %T", v)
	}
	return nil
}
