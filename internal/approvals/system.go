// Package approvals manages per-child app exceptions and applies them to
// detected concern confidence.
package approvals

import (
	"context"

	"github.com/JaimeStill/vigil/internal/concerns"
)

// System defines the public contract for app approval operations.
type System interface {
	Handler() *Handler

	// List returns the child's approvals, served from cache when fresh.
	List(ctx context.Context, childID string) ([]Approval, error)
	// Set upserts an approval and invalidates the child's cached list.
	Set(ctx context.Context, childID string, cmd SetCommand) (*Approval, error)
	// Invalidate drops the child's cached approvals.
	Invalidate(ctx context.Context, childID string) error
	// Adjust applies the child's approvals for appID to cs. Read failures
	// leave cs unchanged.
	Adjust(ctx context.Context, childID, appID string, cs []concerns.Concern) []concerns.Concern
}
