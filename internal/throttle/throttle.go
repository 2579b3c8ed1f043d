// Package throttle enforces a daily per-child notification quota with a
// severity bump rule.
package throttle

import (
	"encoding/json"
	"slices"
	"time"

	"github.com/JaimeStill/vigil/internal/concerns"
)

// DateLayout is the UTC calendar-date format keying daily state.
const DateLayout = "2006-01-02"

// Level is a family's notification volume preference.
type Level string

const (
	LevelMinimal  Level = "minimal"
	LevelStandard Level = "standard"
	LevelDetailed Level = "detailed"
	LevelAll      Level = "all"
)

var levelMaxAlerts = map[Level]int{
	LevelMinimal:  1,
	LevelStandard: 3,
	LevelDetailed: 5,
}

// MaxAlerts returns the daily alert limit for l. Unknown levels use the
// standard limit; LevelAll is unbounded and reports ok=false.
func (l Level) MaxAlerts() (limit int, bounded bool) {
	if l == LevelAll {
		return 0, false
	}
	if v, ok := levelMaxAlerts[l]; ok {
		return v, true
	}
	return levelMaxAlerts[LevelStandard], true
}

// Valid reports whether l is a known level.
func (l Level) Valid() bool {
	_, ok := levelMaxAlerts[l]
	return ok || l == LevelAll
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

// SeverityCounts tallies alerted flags by severity for one day.
type SeverityCounts struct {
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
}

// State is one child's notification state for a single UTC day.
type State struct {
	Date            string         `json:"date"`
	AlertsSentToday int            `json:"alertsSentToday"`
	ThrottledToday  int            `json:"throttledToday"`
	AlertedFlagIDs  []string       `json:"alertedFlagIds"`
	SeverityCounts  SeverityCounts `json:"severityCounts"`
}

// Today returns the UTC date key for t.
func Today(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// ForDate returns s if it belongs to date, otherwise a zero state for date.
// Counters from a stale day are never carried or subtracted.
func (s State) ForDate(date string) State {
	if s.Date != date {
		return State{Date: date, AlertedFlagIDs: []string{}}
	}
	if s.AlertedFlagIDs == nil {
		s.AlertedFlagIDs = []string{}
	}
	s.AlertsSentToday = max(0, s.AlertsSentToday)
	s.ThrottledToday = max(0, s.ThrottledToday)
	s.SeverityCounts.High = max(0, s.SeverityCounts.High)
	s.SeverityCounts.Medium = max(0, s.SeverityCounts.Medium)
	s.SeverityCounts.Low = max(0, s.SeverityCounts.Low)
	return s
}

// Reason explains a notification decision.
type Reason string

const (
	ReasonUnbounded  Reason = "unbounded"
	ReasonDuplicate  Reason = "duplicate"
	ReasonUnderLimit Reason = "under_limit"
	ReasonBump       Reason = "bump"
	ReasonThrottled  Reason = "throttled"
	ReasonFailOpen   Reason = "fail_open"
)

// Decision is the outcome of ShouldAlert.
type Decision struct {
	Alert  bool   `json:"alert"`
	Reason Reason `json:"reason"`
}

// Decide applies the quota rules to a flag against today's state.
//
// Unbounded levels always alert. A flag already alerted today never alerts
// again. Under the limit alerts. At or over the limit, a high or medium
// flag alerts by bumping an earlier low alert if one was sent today;
// anything else is throttled.
func Decide(level Level, s State, severity concerns.Severity, flagID string) Decision {
	limit, bounded := level.MaxAlerts()
	if !bounded {
		return Decision{Alert: true, Reason: ReasonUnbounded}
	}
	if slices.Contains(s.AlertedFlagIDs, flagID) {
		return Decision{Alert: false, Reason: ReasonDuplicate}
	}
	if s.AlertsSentToday < limit {
		return Decision{Alert: true, Reason: ReasonUnderLimit}
	}
	if (severity == concerns.SeverityHigh || severity == concerns.SeverityMedium) && s.SeverityCounts.Low > 0 {
		return Decision{Alert: true, Reason: ReasonBump}
	}
	return Decision{Alert: false, Reason: ReasonThrottled}
}

// Delta is the per-severity change an alert applies to SeverityCounts.
// A bump does not consume the low alert it outranks: the low count keeps
// counting low alerts actually sent today.
func Delta(severity concerns.Severity) SeverityCounts {
	var d SeverityCounts
	switch severity {
	case concerns.SeverityHigh:
		d.High = 1
	case concerns.SeverityMedium:
		d.Medium = 1
	default:
		d.Low = 1
	}
	return d
}
