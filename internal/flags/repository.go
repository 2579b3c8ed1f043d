package flags

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/JaimeStill/vigil/internal/concerns"
	"github.com/JaimeStill/vigil/internal/metrics"
	"github.com/JaimeStill/vigil/pkg/pagination"
	"github.com/JaimeStill/vigil/pkg/query"
	"github.com/JaimeStill/vigil/pkg/repository"
)

const insertFlag = `
INSERT INTO flags
	(id, child_id, family_id, screenshot_id, category, severity, confidence, reasoning,
	 status, detected_at, suppression_reason, releasable_after, throttled, throttled_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, now())`

const unionFlagIDs = `
UPDATE screenshots
SET flag_ids = (
	SELECT COALESCE(jsonb_agg(DISTINCT ids.value), '[]'::jsonb)
	FROM jsonb_array_elements_text(COALESCE(flag_ids, '[]'::jsonb) || $2::jsonb) AS ids
), updated_at = now()
WHERE id = $1`

const visible = "f.status <> 'sensitive_hold'"

type repo struct {
	db          *sql.DB
	logger      *slog.Logger
	pagination  pagination.Config
	concurrency int
}

// New creates a flag repository implementing the System interface.
// concurrency bounds parallel inserts in CreateBatch.
func New(db *sql.DB, logger *slog.Logger, pagination pagination.Config, concurrency int) System {
	if concurrency < 1 {
		concurrency = 4
	}
	return &repo{
		db:          db,
		logger:      logger.With("system", "flags"),
		pagination:  pagination,
		concurrency: concurrency,
	}
}

func (r *repo) Handler() *Handler {
	return NewHandler(r, r.logger, r.pagination)
}

func (r *repo) Create(ctx context.Context, f Flag) error {
	_, err := r.db.ExecContext(ctx, insertFlag,
		f.ID, f.ChildID, f.FamilyID, f.ScreenshotID,
		f.Category, string(f.Severity), f.Confidence, f.Reasoning,
		string(f.Status), f.DetectedAt, nullString(f.SuppressionReason), f.ReleasableAfter,
		f.Throttled, f.ThrottledAt,
	)
	if err != nil {
		return fmt.Errorf("insert flag %s: %w", f.ID, repository.MapError(err, ErrNotFound, ErrDuplicate))
	}

	metrics.FlagsCreated.WithLabelValues(f.Category, string(f.Status)).Inc()
	return nil
}

func (r *repo) CreateBatch(ctx context.Context, screenshotID string, fs []Flag) error {
	if len(fs) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for _, f := range fs {
		g.Go(func() error {
			return r.Create(gctx, f)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	ids := make([]string, len(fs))
	for i, f := range fs {
		ids[i] = f.ID
	}
	arg, err := repository.JSONArg(ids)
	if err != nil {
		return err
	}

	if err := repository.ExecExpectOne(ctx, r.db, unionFlagIDs, screenshotID, arg); err != nil {
		return fmt.Errorf("link flags to screenshot %s: %w",
			screenshotID, repository.MapError(err, ErrScreenshotMissing, ErrDuplicate))
	}

	r.logger.InfoContext(ctx, "flags created", "screenshot_id", screenshotID, "count", len(fs))
	return nil
}

func (r *repo) List(ctx context.Context, childID string, cursor pagination.CursorRequest, filters Filters) (*pagination.CursorResult[Flag], error) {
	cursor.Normalize(r.pagination)

	qb := query.
		NewBuilder(projection, defaultSort...).
		WhereEquals("ChildID", childID).
		WhereRaw(visible)

	filters.Apply(qb)

	if cursor.StartAfter != "" {
		qb.WhereRaw(
			"(f.created_at, f.id) < (SELECT created_at, id FROM public.flags WHERE id = $%d)",
			cursor.StartAfter,
		)
	}

	q, args := qb.BuildLimit(cursor.Limit + 1)
	rows, err := repository.QueryMany(ctx, r.db, q, args, scanFlag)
	if err != nil {
		return nil, fmt.Errorf("query flags: %w", err)
	}

	result := pagination.NewCursorResult(rows, cursor.Limit, func(f Flag) string { return f.ID })
	return &result, nil
}

func (r *repo) Find(ctx context.Context, childID, id string) (*Flag, error) {
	q, args := query.
		NewBuilder(projection).
		WhereEquals("ID", id).
		WhereEquals("ChildID", childID).
		WhereRaw(visible).
		Build()

	f, err := repository.QueryOne(ctx, r.db, q, args, scanFlag)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &f, nil
}

func (r *repo) Get(ctx context.Context, id string) (*Flag, error) {
	q, args := query.
		NewBuilder(projection).
		WhereEquals("ID", id).
		Build()

	f, err := repository.QueryOne(ctx, r.db, q, args, scanFlag)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &f, nil
}

func (r *repo) Review(ctx context.Context, childID, id string, cmd ReviewCommand) (*Flag, error) {
	if err := cmd.validate(); err != nil {
		return nil, err
	}

	var feedback sql.NullString
	if cmd.Feedback != nil {
		feedback = nullString(string(*cmd.Feedback))
	}

	q := fmt.Sprintf(`
UPDATE public.flags f
SET status = $3, feedback = COALESCE($4, f.feedback), reviewed_by = $5, reviewed_at = now()
WHERE f.id = $1 AND f.child_id = $2 AND %s
RETURNING %s`, visible, projection.Columns())

	f, err := repository.QueryOne(ctx, r.db, q,
		[]any{id, childID, string(cmd.Status), feedback, nullString(cmd.ReviewedBy)}, scanFlag)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	r.logger.InfoContext(ctx, "flag reviewed", "flag_id", id, "status", cmd.Status)
	return &f, nil
}

func (r *repo) ReleaseHeld(ctx context.Context, now time.Time) (int, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE flags SET status = $1, released_at = $2
		WHERE status = $3 AND releasable_after <= $2`,
		string(concerns.StatusPending), now, string(concerns.StatusSensitiveHold),
	)
	if err != nil {
		return 0, fmt.Errorf("release held flags: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("release held flags: %w", err)
	}
	return int(n), nil
}
