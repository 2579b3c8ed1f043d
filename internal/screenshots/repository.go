package screenshots

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/JaimeStill/vigil/pkg/pagination"
	"github.com/JaimeStill/vigil/pkg/query"
	"github.com/JaimeStill/vigil/pkg/repository"
	"github.com/JaimeStill/vigil/pkg/storage"
)

type repo struct {
	db         *sql.DB
	storage    storage.System
	logger     *slog.Logger
	pagination pagination.Config
}

// New creates a screenshot repository implementing the System interface.
func New(
	db *sql.DB,
	store storage.System,
	logger *slog.Logger,
	pagination pagination.Config,
) System {
	return &repo{
		db:         db,
		storage:    store,
		logger:     logger.With("system", "screenshots"),
		pagination: pagination,
	}
}

func (r *repo) Handler() *Handler {
	return NewHandler(r, r.logger, r.pagination)
}

func (r *repo) List(
	ctx context.Context,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[Screenshot], error) {
	page.Normalize(r.pagination)

	qb := query.
		NewBuilder(projection, defaultSort).
		WhereSearch(page.Search, "URL", "Title", "AppName")

	filters.Apply(qb)

	if len(page.Sort) > 0 {
		qb.OrderByFields(page.Sort)
	}

	countSQL, countArgs := qb.BuildCount()
	var total int
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count screenshots: %w", err)
	}

	pageSQL, pageArgs := qb.BuildPage(page.Page, page.PageSize)
	shots, err := repository.QueryMany(ctx, r.db, pageSQL, pageArgs, scanScreenshot)
	if err != nil {
		return nil, fmt.Errorf("query screenshots: %w", err)
	}

	result := pagination.NewPageResult(shots, total, page.Page, page.PageSize)
	return &result, nil
}

func (r *repo) Find(ctx context.Context, id string) (*Screenshot, error) {
	q, args := query.NewBuilder(projection).BuildSingle("ID", id)

	s, err := repository.QueryOne(ctx, r.db, q, args, scanScreenshot)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &s, nil
}

func (r *repo) Claim(ctx context.Context, id string) (*Screenshot, error) {
	q := fmt.Sprintf(`
		UPDATE public.screenshots s
		SET status = $2, updated_at = now()
		WHERE s.id = $1 AND s.status = $3
		RETURNING %s`, projection.Columns())

	s, err := repository.QueryOne(ctx, r.db, q,
		[]any{id, string(StatusProcessing), string(StatusPending)}, scanScreenshot)
	if err == nil {
		return &s, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("claim screenshot %s: %w", id, err)
	}

	if _, err := r.Find(ctx, id); err != nil {
		return nil, err
	}
	return nil, ErrNotClaimable
}

func (r *repo) Complete(ctx context.Context, id string, result Result) error {
	secondaries := result.SecondaryCategories
	if secondaries == nil {
		secondaries = []Secondary{}
	}
	arg, err := repository.JSONArg(secondaries)
	if err != nil {
		return err
	}

	q := `
		UPDATE screenshots
		SET status = $2, category = $3, confidence = $4, secondary_categories = $5,
			is_low_confidence = $6, needs_review = $7, crisis_protected = $8,
			retry_count = $9, classified_at = $10, error = NULL, updated_at = now()
		WHERE id = $1 AND status = $11`

	err = repository.ExecExpectOne(ctx, r.db, q,
		id, string(StatusCompleted), result.Category, result.Confidence, arg,
		result.IsLowConfidence, result.NeedsReview, result.CrisisProtected,
		result.RetryCount, result.ClassifiedAt, string(StatusProcessing),
	)
	if err != nil {
		return fmt.Errorf("complete screenshot %s: %w", id, repository.MapError(err, ErrNotFound, ErrDuplicate))
	}

	r.logger.InfoContext(ctx, "screenshot classified",
		"id", id,
		"category", result.Category,
		"confidence", result.Confidence,
		"crisis_protected", result.CrisisProtected,
	)
	return nil
}

func (r *repo) Fail(ctx context.Context, id string, message string, retryCount int) error {
	err := repository.ExecExpectOne(ctx, r.db,
		`UPDATE screenshots SET status = $2, error = $3, retry_count = $4, updated_at = now() WHERE id = $1`,
		id, string(StatusFailed), message, retryCount,
	)
	if err != nil {
		return fmt.Errorf("fail screenshot %s: %w", id, repository.MapError(err, ErrNotFound, ErrDuplicate))
	}
	return nil
}

func (r *repo) Reset(ctx context.Context, id string) (*Screenshot, error) {
	q := fmt.Sprintf(`
		UPDATE public.screenshots s
		SET status = $2, error = NULL, updated_at = now()
		WHERE s.id = $1 AND s.status IN ($3, $4)
		RETURNING %s`, projection.Columns())

	s, err := repository.QueryOne(ctx, r.db, q,
		[]any{id, string(StatusPending), string(StatusCompleted), string(StatusFailed)}, scanScreenshot)
	if err == nil {
		r.logger.InfoContext(ctx, "screenshot reset", "id", id)
		return &s, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("reset screenshot %s: %w", id, err)
	}

	if _, err := r.Find(ctx, id); err != nil {
		return nil, err
	}
	return nil, ErrInvalidTransition
}

func (r *repo) RecordDebug(ctx context.Context, rec DebugRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO classification_debug (id, screenshot_id, stage, payload, created_at)
		VALUES ($1, $2, $3, $4, now())`,
		uuid.New(), rec.ScreenshotID, rec.Stage, []byte(rec.Payload),
	)
	if err != nil {
		return fmt.Errorf("record debug %s/%s: %w", rec.ScreenshotID, rec.Stage, err)
	}
	return nil
}

func (r *repo) Image(ctx context.Context, id string) (*storage.Blob, error) {
	s, err := r.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.storage.Download(ctx, s.StoragePath)
}
