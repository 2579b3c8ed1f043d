// Package distress holds self-harm concerns back from immediate guardian
// visibility and releases them after a fixed window.
package distress

import (
	"time"

	"github.com/JaimeStill/vigil/internal/concerns"
)

// HoldWindow is how long a self-harm flag stays on sensitive hold. It is
// not configurable.
const HoldWindow = 48 * time.Hour

// Reason is the suppression reason recorded on held flags.
const Reason = "self-harm indicator held for delayed guardian review"

// Suppress converts surviving concerns into flags detected at detectedAt.
// Self-harm concerns are placed on sensitive hold until detectedAt+HoldWindow;
// every other concern is pending. held reports whether any flag was held.
func Suppress(cs []concerns.Concern, detectedAt time.Time) (flags []concerns.Flag, held bool) {
	flags = make([]concerns.Flag, 0, len(cs))
	for _, c := range cs {
		f := concerns.NewFlag(c, detectedAt)
		if concerns.IsSelfHarm(c.Category) {
			releasable := detectedAt.Add(HoldWindow)
			f.Status = concerns.StatusSensitiveHold
			f.SuppressionReason = Reason
			f.ReleasableAfter = &releasable
			held = true
		}
		flags = append(flags, f)
	}
	return flags, held
}
