// Package concerns defines the concern model shared by every stage of the
// classification pipeline.
package concerns

import (
	"math"
	"slices"
	"time"
)

// Severity ranks how serious a detected concern is.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	}
	return false
}

// Status is the visibility state of a flag.
type Status string

const (
	StatusPending       Status = "pending"
	StatusSensitiveHold Status = "sensitive_hold"
	StatusReviewed      Status = "reviewed"
	StatusDismissed     Status = "dismissed"
)

// Valid reports whether s is a known flag status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusSensitiveHold, StatusReviewed, StatusDismissed:
		return true
	}
	return false
}

const (
	CategoryViolence        = "Violence"
	CategoryAdultContent    = "Adult Content"
	CategoryBullying        = "Bullying"
	CategorySelfHarm        = "Self-Harm Indicators"
	CategoryExplicitLang    = "Explicit Language"
	CategoryUnknownContacts = "Unknown Contacts"
)

// ConcernCategories lists every category the concern detector may report.
var ConcernCategories = []string{
	CategoryViolence,
	CategoryAdultContent,
	CategoryBullying,
	CategorySelfHarm,
	CategoryExplicitLang,
	CategoryUnknownContacts,
}

// CategoryOther is the basic category used for low-confidence classifications.
const CategoryOther = "Other"

// BasicCategories lists the content categories a screenshot can be classified as.
var BasicCategories = []string{
	"Homework",
	"Educational",
	"Social Media",
	"Gaming",
	"Entertainment",
	"Communication",
	"Creative",
	"Shopping",
	"News",
	CategoryOther,
}

// IsConcernCategory reports whether c is a known concern category.
func IsConcernCategory(c string) bool {
	return slices.Contains(ConcernCategories, c)
}

// IsBasicCategory reports whether c is a known basic content category.
func IsBasicCategory(c string) bool {
	return slices.Contains(BasicCategories, c)
}

// IsSelfHarm reports whether c is the self-harm concern category.
func IsSelfHarm(c string) bool {
	return c == CategorySelfHarm
}

// Concern is a single content signal reported by the concern detector.
// Only Confidence changes as the concern moves through adjustment stages.
type Concern struct {
	Category   string   `json:"category"`
	Severity   Severity `json:"severity"`
	Confidence int      `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
}

// Flag is a concern that survived filtering, with its suppression and
// notification decisions attached.
type Flag struct {
	Concern
	DetectedAt        time.Time  `json:"detectedAt"`
	Status            Status     `json:"status"`
	SuppressionReason string     `json:"suppressionReason,omitempty"`
	ReleasableAfter   *time.Time `json:"releasableAfter,omitempty"`
	Throttled         bool       `json:"throttled"`
	ThrottledAt       *time.Time `json:"throttledAt,omitempty"`
}

// NewFlag wraps c as a pending flag detected at t.
func NewFlag(c Concern, t time.Time) Flag {
	return Flag{
		Concern:    c,
		DetectedAt: t,
		Status:     StatusPending,
	}
}

const (
	MinConfidence = 0
	MaxConfidence = 100
)

// Clamp bounds a confidence value to [0, 100].
func Clamp(v int) int {
	return max(MinConfidence, min(MaxConfidence, v))
}

// ClampFloat rounds v and bounds it to [0, 100]. NaN and infinities
// that are not representable confidences become 0 or the nearest bound.
func ClampFloat(v float64) int {
	if math.IsNaN(v) {
		return MinConfidence
	}
	if math.IsInf(v, 1) {
		return MaxConfidence
	}
	if math.IsInf(v, -1) {
		return MinConfidence
	}
	return Clamp(int(math.Round(max(-1, min(101, v)))))
}
