// Package thresholds resolves per-family confidence thresholds and filters
// concerns that fall below them.
package thresholds

import (
	"encoding/json"

	"github.com/JaimeStill/vigil/internal/concerns"
)

// AlwaysFlag is the confidence at or above which a concern is never discarded.
const AlwaysFlag = 95

// Level is a family's overall sensitivity preset.
type Level string

const (
	LevelSensitive Level = "sensitive"
	LevelBalanced  Level = "balanced"
	LevelRelaxed   Level = "relaxed"
)

var levelThresholds = map[Level]int{
	LevelSensitive: 60,
	LevelBalanced:  75,
	LevelRelaxed:   90,
}

// Value returns the threshold for l, falling back to balanced for unknown levels.
func (l Level) Value() int {
	if v, ok := levelThresholds[l]; ok {
		return v
	}
	return levelThresholds[LevelBalanced]
}

// Valid reports whether l is a known level.
func (l Level) Valid() bool {
	_, ok := levelThresholds[l]
	return ok
}

// UnmarshalJSON rejects unknown level values.
func (l *Level) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	v := Level(raw)
	if !v.Valid() {
		return ErrInvalidLevel
	}
	*l = v
	return nil
}

// Settings is a family's threshold configuration.
type Settings struct {
	Level             Level          `json:"level"`
	CategoryOverrides map[string]int `json:"categoryOverrides"`
}

// DefaultSettings returns the settings used for families without a stored row.
func DefaultSettings() Settings {
	return Settings{Level: LevelBalanced, CategoryOverrides: map[string]int{}}
}

// Threshold returns the effective threshold for category: its override if
// set, else the level value.
func (s Settings) Threshold(category string) int {
	if v, ok := s.CategoryOverrides[category]; ok {
		return concerns.Clamp(v)
	}
	return s.Level.Value()
}

// Survives reports whether a concern with confidence passes threshold.
func Survives(confidence, threshold int) bool {
	return confidence >= AlwaysFlag || confidence >= threshold
}

// Discarded is a concern removed by Filter along with the threshold it missed.
type Discarded struct {
	Concern   concerns.Concern
	Threshold int
}

// Filter splits cs into surviving and discarded concerns, preserving order.
func Filter(s Settings, cs []concerns.Concern) ([]concerns.Concern, []Discarded) {
	kept := make([]concerns.Concern, 0, len(cs))
	var dropped []Discarded

	for _, c := range cs {
		threshold := s.Threshold(c.Category)
		if Survives(c.Confidence, threshold) {
			kept = append(kept, c)
			continue
		}
		dropped = append(dropped, Discarded{Concern: c, Threshold: threshold})
	}

	return kept, dropped
}
