// Package screenshots stores screenshot records and their classification
// job state.
package screenshots

import (
	"encoding/json"
	"time"
)

// Status is the classification job state of a screenshot.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Valid reports whether s is a known job state.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Secondary is an additional content category with its confidence.
type Secondary struct {
	Category   string `json:"category"`
	Confidence int    `json:"confidence"`
}

// Screenshot is a captured screenshot and its classification result.
type Screenshot struct {
	ID                  string      `json:"id"`
	ChildID             string      `json:"childId"`
	FamilyID            string      `json:"familyId"`
	StoragePath         string      `json:"storagePath"`
	URL                 *string     `json:"url,omitempty"`
	Title               *string     `json:"title,omitempty"`
	AppName             *string     `json:"appName,omitempty"`
	Status              Status      `json:"status"`
	Category            *string     `json:"category,omitempty"`
	Confidence          *int        `json:"confidence,omitempty"`
	SecondaryCategories []Secondary `json:"secondaryCategories"`
	IsLowConfidence     bool        `json:"isLowConfidence"`
	NeedsReview         bool        `json:"needsReview"`
	CrisisProtected     bool        `json:"crisisProtected"`
	FlagIDs             []string    `json:"flagIds"`
	Error               *string     `json:"error,omitempty"`
	RetryCount          int         `json:"retryCount"`
	ClassifiedAt        *time.Time  `json:"classifiedAt,omitempty"`
	CreatedAt           time.Time   `json:"createdAt"`
	UpdatedAt           time.Time   `json:"updatedAt"`
}

// Result is the primary classification outcome written on completion.
type Result struct {
	Category            string
	Confidence          int
	SecondaryCategories []Secondary
	IsLowConfidence     bool
	NeedsReview         bool
	CrisisProtected     bool
	RetryCount          int
	ClassifiedAt        time.Time
}

// DebugRecord captures intermediate pipeline output for one stage.
type DebugRecord struct {
	ScreenshotID string
	Stage        string
	Payload      json.RawMessage
}
