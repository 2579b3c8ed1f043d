package flags

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/JaimeStill/vigil/internal/concerns"
)

// Feedback is a guardian's verdict on a reviewed flag.
type Feedback string

const (
	FeedbackAccurate       Feedback = "accurate"
	FeedbackFalsePositive  Feedback = "false_positive"
	FeedbackMissingContext Feedback = "missed_context"
)

// Valid reports whether f is a known feedback value.
func (f Feedback) Valid() bool {
	switch f {
	case FeedbackAccurate, FeedbackFalsePositive, FeedbackMissingContext:
		return true
	}
	return false
}

// UnmarshalJSON rejects unknown feedback values.
func (f *Feedback) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	v := Feedback(raw)
	if !v.Valid() {
		return ErrInvalidFeedback
	}
	*f = v
	return nil
}

// Flag is a persisted, child-scoped concern flag. Only review fields and
// the held-to-pending release change after creation.
type Flag struct {
	ID           string `json:"id"`
	ChildID      string `json:"childId"`
	FamilyID     string `json:"familyId"`
	ScreenshotID string `json:"screenshotId"`
	concerns.Flag
	ReviewedAt *time.Time `json:"reviewedAt,omitempty"`
	ReviewedBy *string    `json:"reviewedBy,omitempty"`
	Feedback   *Feedback  `json:"feedback,omitempty"`
	ReleasedAt *time.Time `json:"releasedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// ReviewCommand records a guardian review.
type ReviewCommand struct {
	Status     concerns.Status `json:"status"`
	Feedback   *Feedback       `json:"feedback,omitempty"`
	ReviewedBy string          `json:"reviewedBy"`
}

func (c ReviewCommand) validate() error {
	if c.Status != concerns.StatusReviewed && c.Status != concerns.StatusDismissed {
		return ErrInvalidTransition
	}
	if c.Feedback != nil && !c.Feedback.Valid() {
		return ErrInvalidFeedback
	}
	return nil
}

// GenerateID returns a flag id of the form
// {screenshotId}_{category}_{timestampMs}_{suffix} with the category slugged.
func GenerateID(screenshotID, category string, t time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s_%s_%d_%s", screenshotID, Slug(category), t.UnixMilli(), suffix)
}

// Slug lowercases s and joins its alphanumeric runs with hyphens.
func Slug(s string) string {
	var b strings.Builder
	pending := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pending && b.Len() > 0 {
				b.WriteByte('-')
			}
			pending = false
			b.WriteRune(r)
			continue
		}
		pending = true
	}
	return b.String()
}
