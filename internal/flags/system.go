// Package flags persists finalized concern flags and serves them to guardians.
package flags

import (
	"context"
	"time"

	"github.com/JaimeStill/vigil/pkg/pagination"
)

// System defines the public contract for flag operations.
type System interface {
	Handler() *Handler

	// Create writes a single flag.
	Create(ctx context.Context, f Flag) error
	// CreateBatch writes flags concurrently, then set-unions their ids into
	// the screenshot's flag_ids in one update.
	CreateBatch(ctx context.Context, screenshotID string, fs []Flag) error
	// List returns a child's visible flags newest first. Flags on sensitive
	// hold are never listed.
	List(ctx context.Context, childID string, cursor pagination.CursorRequest, filters Filters) (*pagination.CursorResult[Flag], error)
	// Find returns one visible flag for the child.
	Find(ctx context.Context, childID, id string) (*Flag, error)
	// Get returns a flag by id in any status, including sensitive hold.
	// It serves operator tooling and is never routed to guardians.
	Get(ctx context.Context, id string) (*Flag, error)
	// Review records a guardian review and moves the flag to reviewed or dismissed.
	Review(ctx context.Context, childID, id string, cmd ReviewCommand) (*Flag, error)
	// ReleaseHeld returns held flags whose hold has elapsed to pending.
	ReleaseHeld(ctx context.Context, now time.Time) (int, error)
}
