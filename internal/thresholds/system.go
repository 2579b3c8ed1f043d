package thresholds

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/JaimeStill/vigil/internal/concerns"
	"github.com/JaimeStill/vigil/internal/metrics"
	"github.com/JaimeStill/vigil/pkg/cache"
	"github.com/JaimeStill/vigil/pkg/repository"
)

// System loads family threshold settings and filters concerns with them.
type System interface {
	Handler() *Handler

	// Settings returns the family's settings, or DefaultSettings when none are stored.
	Settings(ctx context.Context, familyID string) (Settings, error)
	// Save replaces the family's settings and invalidates the cached copy.
	Save(ctx context.Context, familyID string, s Settings) (Settings, error)
	// Filter drops concerns below the family's effective thresholds.
	// Discarded concerns are logged and never returned.
	Filter(ctx context.Context, familyID string, cs []concerns.Concern) []concerns.Concern
}

type repo struct {
	db     *sql.DB
	cache  cache.Cache
	ttl    time.Duration
	logger *slog.Logger
}

// New creates a thresholds system reading family_threshold_settings through c.
func New(db *sql.DB, c cache.Cache, ttl time.Duration, logger *slog.Logger) System {
	return &repo{
		db:     db,
		cache:  c,
		ttl:    ttl,
		logger: logger.With("system", "thresholds"),
	}
}

func cacheKey(familyID string) string {
	return "thresholds:" + familyID
}

func (r *repo) Handler() *Handler {
	return NewHandler(r, r.logger)
}

func (r *repo) Settings(ctx context.Context, familyID string) (Settings, error) {
	key := cacheKey(familyID)

	if s, ok, err := cache.GetJSON[Settings](ctx, r.cache, key); err != nil {
		r.logger.WarnContext(ctx, "threshold cache read failed", "family_id", familyID, "error", err)
	} else if ok {
		return s, nil
	}

	var (
		level string
		raw   []byte
	)
	err := r.db.QueryRowContext(ctx,
		"SELECT level, category_overrides FROM family_threshold_settings WHERE family_id = $1",
		familyID,
	).Scan(&level, &raw)

	s := DefaultSettings()
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return Settings{}, fmt.Errorf("query threshold settings: %w", err)
	default:
		s.Level = Level(level)
		if err := repository.ScanJSON(raw, &s.CategoryOverrides); err != nil {
			return Settings{}, err
		}
	}

	if err := cache.SetJSON(ctx, r.cache, key, s, r.ttl); err != nil {
		r.logger.WarnContext(ctx, "threshold cache write failed", "family_id", familyID, "error", err)
	}

	return s, nil
}

func (r *repo) Save(ctx context.Context, familyID string, s Settings) (Settings, error) {
	if !s.Level.Valid() {
		return Settings{}, ErrInvalidLevel
	}
	if s.CategoryOverrides == nil {
		s.CategoryOverrides = map[string]int{}
	}
	for category, v := range s.CategoryOverrides {
		if !concerns.IsConcernCategory(category) || v < concerns.MinConfidence || v > concerns.MaxConfidence {
			return Settings{}, fmt.Errorf("%w: %s=%d", ErrInvalidOverride, category, v)
		}
	}

	overrides, err := repository.JSONArg(s.CategoryOverrides)
	if err != nil {
		return Settings{}, err
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO family_threshold_settings (family_id, level, category_overrides, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (family_id)
		DO UPDATE SET level = EXCLUDED.level, category_overrides = EXCLUDED.category_overrides, updated_at = now()`,
		familyID, string(s.Level), overrides,
	)
	if err != nil {
		return Settings{}, fmt.Errorf("save threshold settings: %w", err)
	}

	if err := r.cache.Delete(ctx, cacheKey(familyID)); err != nil {
		r.logger.WarnContext(ctx, "threshold cache invalidation failed", "family_id", familyID, "error", err)
	}

	r.logger.InfoContext(ctx, "threshold settings saved", "family_id", familyID, "level", s.Level)
	return s, nil
}

func (r *repo) Filter(ctx context.Context, familyID string, cs []concerns.Concern) []concerns.Concern {
	s, err := r.Settings(ctx, familyID)
	if err != nil {
		r.logger.WarnContext(ctx, "threshold settings unavailable, using defaults",
			"family_id", familyID,
			"error", err,
		)
		s = DefaultSettings()
	}

	kept, dropped := Filter(s, cs)
	for _, d := range dropped {
		metrics.ConcernsDiscarded.WithLabelValues(d.Concern.Category).Inc()
		r.logger.InfoContext(ctx, "concern discarded below threshold",
			"family_id", familyID,
			"category", d.Concern.Category,
			"severity", d.Concern.Severity,
			"confidence", d.Concern.Confidence,
			"threshold", d.Threshold,
		)
	}

	return kept
}
