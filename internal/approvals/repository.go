package approvals

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/JaimeStill/vigil/internal/concerns"
	"github.com/JaimeStill/vigil/pkg/cache"
	"github.com/JaimeStill/vigil/pkg/repository"
)

const upsertApproval = `
INSERT INTO app_category_approvals (child_id, app_identifier, category, status, updated_at)
VALUES ($1, $2, $3, $4, now())
ON CONFLICT (child_id, app_identifier, category)
DO UPDATE SET status = EXCLUDED.status, updated_at = now()
RETURNING child_id, app_identifier, category, status, updated_at`

type repo struct {
	db      *sql.DB
	cache   cache.Cache
	ttl     time.Duration
	penalty int
	bonus   int
	logger  *slog.Logger
}

// New creates an approvals system. penalty is subtracted for approved
// apps and bonus is added for disapproved apps.
func New(db *sql.DB, c cache.Cache, ttl time.Duration, penalty, bonus int, logger *slog.Logger) System {
	return &repo{
		db:      db,
		cache:   c,
		ttl:     ttl,
		penalty: penalty,
		bonus:   bonus,
		logger:  logger.With("system", "approvals"),
	}
}

func cacheKey(childID string) string {
	return "approvals:" + childID
}

func (r *repo) Handler() *Handler {
	return NewHandler(r, r.logger)
}

func (r *repo) List(ctx context.Context, childID string) ([]Approval, error) {
	key := cacheKey(childID)

	if list, ok, err := cache.GetJSON[[]Approval](ctx, r.cache, key); err != nil {
		r.logger.WarnContext(ctx, "approvals cache read failed", "child_id", childID, "error", err)
	} else if ok {
		return list, nil
	}

	list, err := repository.QueryMany(ctx, r.db,
		`SELECT child_id, app_identifier, category, status, updated_at
		FROM app_category_approvals
		WHERE child_id = $1
		ORDER BY app_identifier, category`,
		[]any{childID}, scanApproval)
	if err != nil {
		return nil, fmt.Errorf("query approvals: %w", err)
	}

	if err := cache.SetJSON(ctx, r.cache, key, list, r.ttl); err != nil {
		r.logger.WarnContext(ctx, "approvals cache write failed", "child_id", childID, "error", err)
	}

	return list, nil
}

func (r *repo) Set(ctx context.Context, childID string, cmd SetCommand) (*Approval, error) {
	appID := strings.ToLower(strings.TrimSpace(cmd.AppIdentifier))
	if appID == "" {
		return nil, ErrMissingApp
	}
	if !concerns.IsConcernCategory(cmd.Category) {
		return nil, ErrInvalidCategory
	}
	if !cmd.Status.Valid() {
		return nil, ErrInvalidStatus
	}

	a, err := repository.QueryOne(ctx, r.db, upsertApproval,
		[]any{childID, appID, cmd.Category, string(cmd.Status)}, scanApproval)
	if err != nil {
		return nil, fmt.Errorf("upsert approval: %w", err)
	}

	if err := r.Invalidate(ctx, childID); err != nil {
		r.logger.WarnContext(ctx, "approvals cache invalidation failed", "child_id", childID, "error", err)
	}

	r.logger.InfoContext(ctx, "approval set",
		"child_id", childID,
		"app", appID,
		"category", cmd.Category,
		"status", cmd.Status,
	)
	return &a, nil
}

func (r *repo) Invalidate(ctx context.Context, childID string) error {
	return r.cache.Delete(ctx, cacheKey(childID))
}

func (r *repo) Adjust(ctx context.Context, childID, appID string, cs []concerns.Concern) []concerns.Concern {
	list, err := r.List(ctx, childID)
	if err != nil {
		r.logger.WarnContext(ctx, "approvals unavailable, skipping app adjustment",
			"child_id", childID,
			"error", err,
		)
		list = nil
	}
	return Apply(list, appID, cs, r.penalty, r.bonus)
}

func scanApproval(s repository.Scanner) (Approval, error) {
	var (
		a      Approval
		status string
	)
	err := s.Scan(&a.ChildID, &a.AppIdentifier, &a.Category, &status, &a.UpdatedAt)
	a.Status = Status(status)
	return a, err
}
