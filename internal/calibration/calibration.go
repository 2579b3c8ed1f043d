// Package calibration applies per-family confidence offsets learned from
// guardian corrections.
package calibration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/JaimeStill/vigil/internal/concerns"
	"github.com/JaimeStill/vigil/pkg/cache"
	"github.com/JaimeStill/vigil/pkg/repository"
)

// Weights are the learned per-category offsets for one family.
type Weights struct {
	CorrectionCount     int            `json:"correctionCount"`
	CategoryAdjustments map[string]int `json:"categoryAdjustments"`
}

// System loads family weights and adjusts concern confidence with them.
type System interface {
	// Weights returns the weights for familyID. A family with no stored
	// weights yields zero Weights.
	Weights(ctx context.Context, familyID string) (Weights, error)
	// Adjust returns cs with each confidence shifted by the family's
	// category offset. Weight read failures leave cs unchanged.
	Adjust(ctx context.Context, familyID string, cs []concerns.Concern) []concerns.Concern
}

type repo struct {
	db             *sql.DB
	cache          cache.Cache
	ttl            time.Duration
	minCorrections int
	logger         *slog.Logger
}

// New creates a calibration system reading family_bias_weights through c.
func New(db *sql.DB, c cache.Cache, ttl time.Duration, minCorrections int, logger *slog.Logger) System {
	return &repo{
		db:             db,
		cache:          c,
		ttl:            ttl,
		minCorrections: minCorrections,
		logger:         logger.With("system", "calibration"),
	}
}

func cacheKey(familyID string) string {
	return "bias:" + familyID
}

func (r *repo) Weights(ctx context.Context, familyID string) (Weights, error) {
	key := cacheKey(familyID)

	if w, ok, err := cache.GetJSON[Weights](ctx, r.cache, key); err != nil {
		r.logger.WarnContext(ctx, "bias cache read failed", "family_id", familyID, "error", err)
	} else if ok {
		return w, nil
	}

	var (
		w   Weights
		raw []byte
	)
	err := r.db.QueryRowContext(ctx,
		"SELECT correction_count, category_adjustments FROM family_bias_weights WHERE family_id = $1",
		familyID,
	).Scan(&w.CorrectionCount, &raw)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		w = Weights{}
	case err != nil:
		return Weights{}, fmt.Errorf("query bias weights: %w", err)
	default:
		if err := repository.ScanJSON(raw, &w.CategoryAdjustments); err != nil {
			return Weights{}, err
		}
	}

	if err := cache.SetJSON(ctx, r.cache, key, w, r.ttl); err != nil {
		r.logger.WarnContext(ctx, "bias cache write failed", "family_id", familyID, "error", err)
	}

	return w, nil
}

func (r *repo) Adjust(ctx context.Context, familyID string, cs []concerns.Concern) []concerns.Concern {
	w, err := r.Weights(ctx, familyID)
	if err != nil {
		r.logger.WarnContext(ctx, "bias weights unavailable, skipping calibration",
			"family_id", familyID,
			"error", err,
		)
		return Apply(Weights{}, cs, r.minCorrections)
	}
	return Apply(w, cs, r.minCorrections)
}

// Apply shifts each concern's confidence by its category offset in w and
// clamps the result. Weights backed by fewer than minCorrections
// corrections are ignored. The input slice is not modified.
func Apply(w Weights, cs []concerns.Concern, minCorrections int) []concerns.Concern {
	out := make([]concerns.Concern, len(cs))
	for i, c := range cs {
		if w.CorrectionCount >= minCorrections {
			if offset, ok := w.CategoryAdjustments[c.Category]; ok {
				c.Confidence += offset
			}
		}
		c.Confidence = concerns.Clamp(c.Confidence)
		out[i] = c
	}
	return out
}
