package approvals

import (
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/JaimeStill/vigil/internal/concerns"
	"github.com/JaimeStill/vigil/internal/crisis"
)

// UnknownApp is the identifier used when neither a URL nor an app name is available.
const UnknownApp = "unknown"

// Status is a guardian's standing decision for one app and concern category.
type Status string

const (
	StatusApproved    Status = "approved"
	StatusDisapproved Status = "disapproved"
	StatusNeutral     Status = "neutral"
)

// Valid reports whether s is a known approval status.
func (s Status) Valid() bool {
	switch s {
	case StatusApproved, StatusDisapproved, StatusNeutral:
		return true
	}
	return false
}

// UnmarshalJSON rejects unknown status values.
func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	v := Status(raw)
	if !v.Valid() {
		return ErrInvalidStatus
	}
	*s = v
	return nil
}

// Approval is a per-child exception for one app and concern category.
type Approval struct {
	ChildID       string    `json:"childId"`
	AppIdentifier string    `json:"appIdentifier"`
	Category      string    `json:"category"`
	Status        Status    `json:"status"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// SetCommand is the request body for creating or replacing an approval.
type SetCommand struct {
	AppIdentifier string `json:"appIdentifier"`
	Category      string `json:"category"`
	Status        Status `json:"status"`
}

// AppIdentifier derives the app key for a screenshot: the URL hostname
// when it parses, else the normalized app name, else UnknownApp.
func AppIdentifier(rawURL, appName string) string {
	if host := urlHost(rawURL); host != "" {
		return host
	}
	if name := NormalizeAppName(appName); name != "" {
		return name
	}
	return UnknownApp
}

// urlHost returns the normalized hostname of rawURL. Scheme-less values
// such as "example.com/path" are read as https.
func urlHost(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		u, err = url.Parse("https://" + rawURL)
		if err != nil {
			return ""
		}
	}
	host, err := crisis.NormalizeHost(u.Hostname())
	if err != nil {
		return ""
	}
	return host
}

// NormalizeAppName lowercases name and collapses internal whitespace.
func NormalizeAppName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// Apply adjusts each concern that has a matching approval for appID:
// approved subtracts penalty, disapproved adds bonus, and neutral or
// unmatched concerns pass through. Results are clamped.
func Apply(list []Approval, appID string, cs []concerns.Concern, penalty, bonus int) []concerns.Concern {
	byCategory := make(map[string]Status, len(list))
	for _, a := range list {
		if a.AppIdentifier == appID {
			byCategory[a.Category] = a.Status
		}
	}

	out := make([]concerns.Concern, len(cs))
	for i, c := range cs {
		switch byCategory[c.Category] {
		case StatusApproved:
			c.Confidence -= penalty
		case StatusDisapproved:
			c.Confidence += bonus
		}
		c.Confidence = concerns.Clamp(c.Confidence)
		out[i] = c
	}
	return out
}
