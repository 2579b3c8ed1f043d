package screenshots

import (
	"database/sql"
	"net/url"
	"strconv"

	"github.com/JaimeStill/vigil/pkg/query"
	"github.com/JaimeStill/vigil/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "screenshots", "s").
	Project("id", "ID").
	Project("child_id", "ChildID").
	Project("family_id", "FamilyID").
	Project("storage_path", "StoragePath").
	Project("url", "URL").
	Project("title", "Title").
	Project("app_name", "AppName").
	Project("status", "Status").
	Project("category", "Category").
	Project("confidence", "Confidence").
	Project("secondary_categories", "SecondaryCategories").
	Project("is_low_confidence", "IsLowConfidence").
	Project("needs_review", "NeedsReview").
	Project("crisis_protected", "CrisisProtected").
	Project("flag_ids", "FlagIDs").
	Project("error", "Error").
	Project("retry_count", "RetryCount").
	Project("classified_at", "ClassifiedAt").
	Project("created_at", "CreatedAt").
	Project("updated_at", "UpdatedAt")

var defaultSort = query.SortField{Field: "CreatedAt", Descending: true}

// Filters narrows screenshot queries. Nil fields are ignored.
type Filters struct {
	ChildID         *string `json:"childId,omitempty"`
	Status          *Status `json:"status,omitempty"`
	Category        *string `json:"category,omitempty"`
	CrisisProtected *bool   `json:"crisisProtected,omitempty"`
}

// Apply adds filter conditions to a query builder.
func (f Filters) Apply(b *query.Builder) *query.Builder {
	return b.
		WhereEquals("ChildID", f.ChildID).
		WhereEquals("Status", f.Status).
		WhereEquals("Category", f.Category).
		WhereEquals("CrisisProtected", f.CrisisProtected)
}

// FiltersFromQuery extracts filter values from URL query parameters.
func FiltersFromQuery(values url.Values) Filters {
	var f Filters

	if v := values.Get("child_id"); v != "" {
		f.ChildID = &v
	}
	if s := Status(values.Get("status")); s.Valid() {
		f.Status = &s
	}
	if v := values.Get("category"); v != "" {
		f.Category = &v
	}
	if v, err := strconv.ParseBool(values.Get("crisis_protected")); err == nil {
		f.CrisisProtected = &v
	}

	return f
}

func scanScreenshot(s repository.Scanner) (Screenshot, error) {
	var (
		sc                     Screenshot
		status                 string
		rawURL, title, appName sql.NullString
		category, errMsg       sql.NullString
		confidence             sql.NullInt64
		secondaries, flagIDs   []byte
		classifiedAt           sql.NullTime
	)

	err := s.Scan(
		&sc.ID,
		&sc.ChildID,
		&sc.FamilyID,
		&sc.StoragePath,
		&rawURL,
		&title,
		&appName,
		&status,
		&category,
		&confidence,
		&secondaries,
		&sc.IsLowConfidence,
		&sc.NeedsReview,
		&sc.CrisisProtected,
		&flagIDs,
		&errMsg,
		&sc.RetryCount,
		&classifiedAt,
		&sc.CreatedAt,
		&sc.UpdatedAt,
	)
	if err != nil {
		return sc, err
	}

	sc.Status = Status(status)
	sc.URL = stringPtr(rawURL)
	sc.Title = stringPtr(title)
	sc.AppName = stringPtr(appName)
	sc.Category = stringPtr(category)
	sc.Error = stringPtr(errMsg)
	if confidence.Valid {
		c := int(confidence.Int64)
		sc.Confidence = &c
	}
	if classifiedAt.Valid {
		sc.ClassifiedAt = &classifiedAt.Time
	}

	sc.SecondaryCategories = []Secondary{}
	if err := repository.ScanJSON(secondaries, &sc.SecondaryCategories); err != nil {
		return sc, err
	}
	sc.FlagIDs = []string{}
	if err := repository.ScanJSON(flagIDs, &sc.FlagIDs); err != nil {
		return sc, err
	}

	return sc, nil
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return &s.String
}
