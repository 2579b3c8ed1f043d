package flags

import (
	"database/sql"
	"net/url"
	"time"

	"github.com/JaimeStill/vigil/internal/concerns"
	"github.com/JaimeStill/vigil/pkg/query"
	"github.com/JaimeStill/vigil/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "flags", "f").
	Project("id", "ID").
	Project("child_id", "ChildID").
	Project("family_id", "FamilyID").
	Project("screenshot_id", "ScreenshotID").
	Project("category", "Category").
	Project("severity", "Severity").
	Project("confidence", "Confidence").
	Project("reasoning", "Reasoning").
	Project("status", "Status").
	Project("detected_at", "DetectedAt").
	Project("suppression_reason", "SuppressionReason").
	Project("releasable_after", "ReleasableAfter").
	Project("throttled", "Throttled").
	Project("throttled_at", "ThrottledAt").
	Project("reviewed_at", "ReviewedAt").
	Project("reviewed_by", "ReviewedBy").
	Project("feedback", "Feedback").
	Project("released_at", "ReleasedAt").
	Project("created_at", "CreatedAt")

var defaultSort = []query.SortField{
	{Field: "CreatedAt", Descending: true},
	{Field: "ID", Descending: true},
}

// Filters narrows flag queries. Nil fields are ignored.
type Filters struct {
	Status        *concerns.Status   `json:"status,omitempty"`
	Severity      *concerns.Severity `json:"severity,omitempty"`
	CreatedAfter  *time.Time         `json:"createdAfter,omitempty"`
	CreatedBefore *time.Time         `json:"createdBefore,omitempty"`
}

// Apply adds filter conditions to a query builder.
func (f Filters) Apply(b *query.Builder) *query.Builder {
	return b.
		WhereEquals("Status", f.Status).
		WhereEquals("Severity", f.Severity).
		WhereGreaterOrEqual("CreatedAt", f.CreatedAfter).
		WhereLess("CreatedAt", f.CreatedBefore)
}

// FiltersFromQuery extracts filter values from URL query parameters.
// Times are RFC 3339.
func FiltersFromQuery(values url.Values) Filters {
	var f Filters

	if s := concerns.Status(values.Get("status")); s.Valid() {
		f.Status = &s
	}
	if s := concerns.Severity(values.Get("severity")); s.Valid() {
		f.Severity = &s
	}
	if t, err := time.Parse(time.RFC3339, values.Get("created_after")); err == nil {
		f.CreatedAfter = &t
	}
	if t, err := time.Parse(time.RFC3339, values.Get("created_before")); err == nil {
		f.CreatedBefore = &t
	}

	return f
}

func scanFlag(s repository.Scanner) (Flag, error) {
	var (
		f                                                 Flag
		severity, status                                  string
		reason, reviewedBy, feedback                      sql.NullString
		releasableAfter, throttledAt, reviewedAt, release sql.NullTime
	)

	err := s.Scan(
		&f.ID,
		&f.ChildID,
		&f.FamilyID,
		&f.ScreenshotID,
		&f.Category,
		&severity,
		&f.Confidence,
		&f.Reasoning,
		&status,
		&f.DetectedAt,
		&reason,
		&releasableAfter,
		&f.Throttled,
		&throttledAt,
		&reviewedAt,
		&reviewedBy,
		&feedback,
		&release,
		&f.CreatedAt,
	)
	if err != nil {
		return f, err
	}

	f.Severity = concerns.Severity(severity)
	f.Status = concerns.Status(status)
	f.SuppressionReason = reason.String
	f.ReleasableAfter = timePtr(releasableAfter)
	f.ThrottledAt = timePtr(throttledAt)
	f.ReviewedAt = timePtr(reviewedAt)
	f.ReleasedAt = timePtr(release)
	if reviewedBy.Valid {
		f.ReviewedBy = &reviewedBy.String
	}
	if feedback.Valid {
		fb := Feedback(feedback.String)
		f.Feedback = &fb
	}
	return f, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	return &t.Time
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
