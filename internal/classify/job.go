// Package classify runs a screenshot through the concern pipeline and
// records the outcome.
package classify

import (
	"encoding/json"
	"fmt"

	"github.com/JaimeStill/vigil/internal/queue"
	"github.com/JaimeStill/vigil/internal/screenshots"
)

// Job is one classification attempt for a screenshot.
type Job struct {
	ChildID      string  `json:"childId"`
	ScreenshotID string  `json:"screenshotId"`
	StoragePath  string  `json:"storagePath"`
	URL          *string `json:"url,omitempty"`
	Title        *string `json:"title,omitempty"`
	AppName      *string `json:"appName,omitempty"`
	FamilyID     string  `json:"familyId"`
	RetryCount   int     `json:"retryCount"`
}

// JobFor builds the job that reprocesses s.
func JobFor(s *screenshots.Screenshot) Job {
	return Job{
		ChildID:      s.ChildID,
		ScreenshotID: s.ID,
		StoragePath:  s.StoragePath,
		URL:          s.URL,
		Title:        s.Title,
		AppName:      s.AppName,
		FamilyID:     s.FamilyID,
		RetryCount:   s.RetryCount + 1,
	}
}

func (j Job) validate() error {
	switch {
	case j.ScreenshotID == "":
		return fmt.Errorf("%w: screenshotId required", queue.ErrMalformed)
	case j.ChildID == "":
		return fmt.Errorf("%w: childId required", queue.ErrMalformed)
	case j.FamilyID == "":
		return fmt.Errorf("%w: familyId required", queue.ErrMalformed)
	case j.StoragePath == "":
		return fmt.Errorf("%w: storagePath required", queue.ErrMalformed)
	case j.RetryCount < 0:
		return fmt.Errorf("%w: negative retryCount", queue.ErrMalformed)
	}
	return nil
}

// DecodeJob parses and validates a queued job.
func DecodeJob(body []byte) (Job, error) {
	var j Job
	if err := json.Unmarshal(body, &j); err != nil {
		return j, fmt.Errorf("%w: %v", queue.ErrMalformed, err)
	}
	if err := j.validate(); err != nil {
		return j, err
	}
	return j, nil
}

// DescribeRequest asks the description service to summarize a classified screenshot.
type DescribeRequest struct {
	ScreenshotID string `json:"screenshotId"`
	ChildID      string `json:"childId"`
	FamilyID     string `json:"familyId"`
	StoragePath  string `json:"storagePath"`
	Category     string `json:"category"`
}
