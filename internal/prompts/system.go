package prompts

import (
	"context"

	"github.com/google/uuid"

	"github.com/JaimeStill/vigil/pkg/pagination"
)

// System defines the public contract for prompt operations.
type System interface {
	Handler() *Handler

	List(ctx context.Context, page pagination.PageRequest, filters Filters) (*pagination.PageResult[Prompt], error)
	Find(ctx context.Context, id uuid.UUID) (*Prompt, error)
	Create(ctx context.Context, cmd CreateCommand) (*Prompt, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Activate(ctx context.Context, id uuid.UUID) (*Prompt, error)
	Deactivate(ctx context.Context, id uuid.UUID) (*Prompt, error)

	// Instructions returns the active override for stage, or the default.
	Instructions(ctx context.Context, stage Stage) (string, error)
	// Compose returns the full system prompt for stage: effective
	// instructions followed by the fixed response specification.
	Compose(ctx context.Context, stage Stage) (string, error)
}
