package throttle

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

// recordAlert merges into today's row or replaces a stale one in a single
// statement. Flag ids are set-unioned; counters never drop below zero.
const recordAlert = `
INSERT INTO flag_throttle_state
	(family_id, child_id, state_date, alerts_sent, throttled, alerted_flag_ids, high_count, medium_count, low_count, updated_at)
VALUES ($1, $2, $3, 1, 0, jsonb_build_array($4::text), GREATEST($5, 0), GREATEST($6, 0), GREATEST($7, 0), now())
ON CONFLICT (family_id, child_id) DO UPDATE SET
	alerts_sent = CASE WHEN flag_throttle_state.state_date = EXCLUDED.state_date
		THEN flag_throttle_state.alerts_sent + 1 ELSE 1 END,
	throttled = CASE WHEN flag_throttle_state.state_date = EXCLUDED.state_date
		THEN flag_throttle_state.throttled ELSE 0 END,
	alerted_flag_ids = CASE
		WHEN flag_throttle_state.state_date <> EXCLUDED.state_date THEN EXCLUDED.alerted_flag_ids
		WHEN flag_throttle_state.alerted_flag_ids ? $4::text THEN flag_throttle_state.alerted_flag_ids
		ELSE flag_throttle_state.alerted_flag_ids || EXCLUDED.alerted_flag_ids END,
	high_count = CASE WHEN flag_throttle_state.state_date = EXCLUDED.state_date
		THEN GREATEST(flag_throttle_state.high_count + $5, 0) ELSE EXCLUDED.high_count END,
	medium_count = CASE WHEN flag_throttle_state.state_date = EXCLUDED.state_date
		THEN GREATEST(flag_throttle_state.medium_count + $6, 0) ELSE EXCLUDED.medium_count END,
	low_count = CASE WHEN flag_throttle_state.state_date = EXCLUDED.state_date
		THEN GREATEST(flag_throttle_state.low_count + $7, 0) ELSE EXCLUDED.low_count END,
	state_date = EXCLUDED.state_date,
	updated_at = now()`

const recordThrottled = `
INSERT INTO flag_throttle_state
	(family_id, child_id, state_date, alerts_sent, throttled, alerted_flag_ids, high_count, medium_count, low_count, updated_at)
VALUES ($1, $2, $3, 0, 1, '[]'::jsonb, 0, 0, 0, now())
ON CONFLICT (family_id, child_id) DO UPDATE SET
	throttled = CASE WHEN flag_throttle_state.state_date = EXCLUDED.state_date
		THEN flag_throttle_state.throttled + 1 ELSE 1 END,
	alerts_sent = CASE WHEN flag_throttle_state.state_date = EXCLUDED.state_date
		THEN flag_throttle_state.alerts_sent ELSE 0 END,
	alerted_flag_ids = CASE WHEN flag_throttle_state.state_date = EXCLUDED.state_date
		THEN flag_throttle_state.alerted_flag_ids ELSE '[]'::jsonb END,
	high_count = CASE WHEN flag_throttle_state.state_date = EXCLUDED.state_date
		THEN flag_throttle_state.high_count ELSE 0 END,
	medium_count = CASE WHEN flag_throttle_state.state_date = EXCLUDED.state_date
		THEN flag_throttle_state.medium_count ELSE 0 END,
	low_count = CASE WHEN flag_throttle_state.state_date = EXCLUDED.state_date
		THEN flag_throttle_state.low_count ELSE 0 END,
	state_date = EXCLUDED.state_date,
	updated_at = now()`

// System reads family throttle levels and per-child daily state and
// decides whether flags notify.
type System interface {
	Handler() *Handler

	Level(ctx context.Context, familyID string) (Level, error)
	SetLevel(ctx context.Context, familyID string, level Level) error
	// State returns the child's state for the UTC day of now. A missing or
	// stale row reads as zero.
	State(ctx context.Context, familyID, childID string, now time.Time) (State, error)
	// ShouldAlert decides for one flag. Read failures fail open to alerting.
	ShouldAlert(ctx context.Context, familyID, childID string, severity concerns.Severity, flagID string, now time.Time) Decision
	RecordFlagAlert(ctx context.Context, familyID, childID, flagID string, severity concerns.Severity, now time.Time) error
	RecordThrottledFlag(ctx context.Context, familyID, childID string, now time.Time) error
	// Apply decides and records each flag in order and marks throttled
	// flags. Held flags are skipped: they never notify at detection time.
	Apply(ctx context.Context, familyID, childID string, ids []string, fs []concerns.Flag, now time.Time) []concerns.Flag
}

type repo struct {
	db     *sql.DB
	cache  cache.Cache
	ttl    time.Duration
	logger *slog.Logger
}

// New creates a throttle system backed by flag_throttle_state and
// family_throttle_settings.
func New(db *sql.DB, c cache.Cache, ttl time.Duration, logger *slog.Logger) System {
	return &repo{
		db:     db,
		cache:  c,
		ttl:    ttl,
		logger: logger.With("system", "throttle"),
	}
}

func levelKey(familyID string) string {
	return "throttle:" + familyID
}

func (r *repo) Handler() *Handler {
	return NewHandler(r, r.logger)
}

func (r *repo) Level(ctx context.Context, familyID string) (Level, error) {
	key := levelKey(familyID)

	if l, ok, err := cache.GetJSON[Level](ctx, r.cache, key); err != nil {
		r.logger.WarnContext(ctx, "throttle cache read failed", "family_id", familyID, "error", err)
	} else if ok {
		return l, nil
	}

	var raw string
	err := r.db.QueryRowContext(ctx,
		"SELECT level FROM family_throttle_settings WHERE family_id = $1",
		familyID,
	).Scan(&raw)

	level := LevelStandard
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return "", fmt.Errorf("query throttle level: %w", err)
	default:
		if l := Level(raw); l.Valid() {
			level = l
		}
	}

	if err := cache.SetJSON(ctx, r.cache, key, level, r.ttl); err != nil {
		r.logger.WarnContext(ctx, "throttle cache write failed", "family_id", familyID, "error", err)
	}
	return level, nil
}

func (r *repo) SetLevel(ctx context.Context, familyID string, level Level) error {
	if !level.Valid() {
		return ErrInvalidLevel
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO family_throttle_settings (family_id, level, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (family_id) DO UPDATE SET level = EXCLUDED.level, updated_at = now()`,
		familyID, string(level),
	)
	if err != nil {
		return fmt.Errorf("save throttle level: %w", err)
	}

	if err := r.cache.Delete(ctx, levelKey(familyID)); err != nil {
		r.logger.WarnContext(ctx, "throttle cache invalidation failed", "family_id", familyID, "error", err)
	}
	return nil
}

func (r *repo) State(ctx context.Context, familyID, childID string, now time.Time) (State, error) {
	today := Today(now)

	var (
		s    State
		date time.Time
		ids  []byte
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT state_date, alerts_sent, throttled, alerted_flag_ids, high_count, medium_count, low_count
		FROM flag_throttle_state WHERE family_id = $1 AND child_id = $2`,
		familyID, childID,
	).Scan(&date, &s.AlertsSentToday, &s.ThrottledToday, &ids,
		&s.SeverityCounts.High, &s.SeverityCounts.Medium, &s.SeverityCounts.Low)

	if errors.Is(err, sql.ErrNoRows) {
		return State{}.ForDate(today), nil
	}
	if err != nil {
		return State{}, fmt.Errorf("query throttle state: %w", err)
	}

	s.Date = date.UTC().Format(DateLayout)
	if err := repository.ScanJSON(ids, &s.AlertedFlagIDs); err != nil {
		return State{}, err
	}
	return s.ForDate(today), nil
}

func (r *repo) ShouldAlert(ctx context.Context, familyID, childID string, severity concerns.Severity, flagID string, now time.Time) Decision {
	level, err := r.Level(ctx, familyID)
	if err != nil {
		r.logger.WarnContext(ctx, "throttle level unavailable, using standard", "family_id", familyID, "error", err)
		level = LevelStandard
	}
	if level == LevelAll {
		return Decision{Alert: true, Reason: ReasonUnbounded}
	}

	s, err := r.State(ctx, familyID, childID, now)
	if err != nil {
		r.logger.WarnContext(ctx, "throttle state unavailable, alerting",
			"family_id", familyID,
			"child_id", childID,
			"error", err,
		)
		return Decision{Alert: true, Reason: ReasonFailOpen}
	}

	return Decide(level, s, severity, flagID)
}

func (r *repo) RecordFlagAlert(ctx context.Context, familyID, childID, flagID string, severity concerns.Severity, now time.Time) error {
	d := Delta(severity)
	_, err := r.db.ExecContext(ctx, recordAlert,
		familyID, childID, Today(now), flagID, d.High, d.Medium, d.Low)
	if err != nil {
		return fmt.Errorf("record flag alert: %w", err)
	}
	return nil
}

func (r *repo) RecordThrottledFlag(ctx context.Context, familyID, childID string, now time.Time) error {
	if _, err := r.db.ExecContext(ctx, recordThrottled, familyID, childID, Today(now)); err != nil {
		return fmt.Errorf("record throttled flag: %w", err)
	}
	return nil
}

func (r *repo) Apply(ctx context.Context, familyID, childID string, ids []string, fs []concerns.Flag, now time.Time) []concerns.Flag {
	out := make([]concerns.Flag, len(fs))
	copy(out, fs)

	for i := range out {
		f := &out[i]
		if f.Status == concerns.StatusSensitiveHold {
			continue
		}

		d := r.ShouldAlert(ctx, familyID, childID, f.Severity, ids[i], now)
		metrics.AlertDecisions.WithLabelValues(string(d.Reason)).Inc()

		if d.Alert {
			if err := r.RecordFlagAlert(ctx, familyID, childID, ids[i], f.Severity, now); err != nil {
				r.logger.WarnContext(ctx, "alert record failed", "flag_id", ids[i], "error", err)
			}
			continue
		}

		if d.Reason == ReasonThrottled {
			throttledAt := now
			f.Throttled = true
			f.ThrottledAt = &throttledAt
			if err := r.RecordThrottledFlag(ctx, familyID, childID, now); err != nil {
				r.logger.WarnContext(ctx, "throttle record failed", "flag_id", ids[i], "error", err)
			}
		}

		r.logger.InfoContext(ctx, "flag notification withheld",
			"flag_id", ids[i],
			"severity", f.Severity,
			"reason", d.Reason,
		)
	}

	return out
}
