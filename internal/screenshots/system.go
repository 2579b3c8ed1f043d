package screenshots

import (
	"context"

	"github.com/JaimeStill/vigil/pkg/pagination"
	"github.com/JaimeStill/vigil/pkg/storage"
)

// System defines the public contract for screenshot records and job state.
type System interface {
	Handler() *Handler

	List(ctx context.Context, page pagination.PageRequest, filters Filters) (*pagination.PageResult[Screenshot], error)
	Find(ctx context.Context, id string) (*Screenshot, error)

	// Claim atomically moves a pending screenshot to processing. A
	// screenshot in any other state returns ErrNotClaimable.
	Claim(ctx context.Context, id string) (*Screenshot, error)
	// Complete writes the classification result of a processing screenshot.
	Complete(ctx context.Context, id string, result Result) error
	// Fail records the error and the retry count that produced it.
	Fail(ctx context.Context, id string, message string, retryCount int) error
	// Reset returns a completed or failed screenshot to pending.
	Reset(ctx context.Context, id string) (*Screenshot, error)

	RecordDebug(ctx context.Context, rec DebugRecord) error
	// Image streams the stored screenshot bytes. The caller must close Body.
	Image(ctx context.Context, id string) (*storage.Blob, error)
}
