package throttle_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/JaimeStill/vigil/internal/concerns"
	"github.com/JaimeStill/vigil/internal/throttle"
	"github.com/JaimeStill/vigil/pkg/cache"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

var stateColumns = []string{"state_date", "alerts_sent", "throttled", "alerted_flag_ids", "high_count", "medium_count", "low_count"}

const (
	levelQuery = `SELECT level FROM family_throttle_settings WHERE family_id = \$1`
	stateQuery = `SELECT state_date, alerts_sent, throttled, alerted_flag_ids`
)

func TestDecide(t *testing.T) {
	today := "2024-01-01"

	tests := []struct {
		name     string
		level    throttle.Level
		state    throttle.State
		severity concerns.Severity
		flagID   string
		want     throttle.Decision
	}{
		{
			name:     "all is unbounded",
			level:    throttle.LevelAll,
			state:    throttle.State{Date: today, AlertsSentToday: 50},
			severity: concerns.SeverityLow,
			want:     throttle.Decision{Alert: true, Reason: throttle.ReasonUnbounded},
		},
		{
			name:     "under limit",
			level:    throttle.LevelStandard,
			state:    throttle.State{Date: today, AlertsSentToday: 2},
			severity: concerns.SeverityLow,
			flagID:   "f3",
			want:     throttle.Decision{Alert: true, Reason: throttle.ReasonUnderLimit},
		},
		{
			name:     "duplicate never alerts twice",
			level:    throttle.LevelStandard,
			state:    throttle.State{Date: today, AlertsSentToday: 1, AlertedFlagIDs: []string{"f1"}},
			severity: concerns.SeverityHigh,
			flagID:   "f1",
			want:     throttle.Decision{Alert: false, Reason: throttle.ReasonDuplicate},
		},
		{
			name:  "three highs throttle a medium",
			level: throttle.LevelStandard,
			state: throttle.State{
				Date: today, AlertsSentToday: 3,
				SeverityCounts: throttle.SeverityCounts{High: 3},
			},
			severity: concerns.SeverityMedium,
			flagID:   "f4",
			want:     throttle.Decision{Alert: false, Reason: throttle.ReasonThrottled},
		},
		{
			name:  "medium bumps a low",
			level: throttle.LevelStandard,
			state: throttle.State{
				Date: today, AlertsSentToday: 3,
				SeverityCounts: throttle.SeverityCounts{High: 2, Low: 1},
			},
			severity: concerns.SeverityMedium,
			flagID:   "f4",
			want:     throttle.Decision{Alert: true, Reason: throttle.ReasonBump},
		},
		{
			name:  "low never bumps",
			level: throttle.LevelStandard,
			state: throttle.State{
				Date: today, AlertsSentToday: 3,
				SeverityCounts: throttle.SeverityCounts{Low: 3},
			},
			severity: concerns.SeverityLow,
			flagID:   "f4",
			want:     throttle.Decision{Alert: false, Reason: throttle.ReasonThrottled},
		},
		{
			name:     "minimal allows one",
			level:    throttle.LevelMinimal,
			state:    throttle.State{Date: today, AlertsSentToday: 1, SeverityCounts: throttle.SeverityCounts{High: 1}},
			severity: concerns.SeverityHigh,
			flagID:   "f2",
			want:     throttle.Decision{Alert: false, Reason: throttle.ReasonThrottled},
		},
		{
			name:     "unknown level uses standard",
			level:    "chatty",
			state:    throttle.State{Date: today, AlertsSentToday: 2},
			severity: concerns.SeverityLow,
			flagID:   "f3",
			want:     throttle.Decision{Alert: true, Reason: throttle.ReasonUnderLimit},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := throttle.Decide(tt.level, tt.state, tt.severity, tt.flagID); got != tt.want {
				t.Errorf("Decide = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDelta(t *testing.T) {
	if d := throttle.Delta(concerns.SeverityHigh); d != (throttle.SeverityCounts{High: 1}) {
		t.Errorf("high delta = %+v", d)
	}
	if d := throttle.Delta(concerns.SeverityMedium); d != (throttle.SeverityCounts{Medium: 1}) {
		t.Errorf("medium delta = %+v", d)
	}
	if d := throttle.Delta(concerns.SeverityLow); d != (throttle.SeverityCounts{Low: 1}) {
		t.Errorf("low delta = %+v", d)
	}
}

func TestDecideSuccessiveBumps(t *testing.T) {
	s := throttle.State{
		Date:            "2024-01-01",
		AlertsSentToday: 3,
		AlertedFlagIDs:  []string{"a", "b", "c"},
		SeverityCounts:  throttle.SeverityCounts{High: 2, Low: 1},
	}

	for _, next := range []struct {
		id       string
		severity concerns.Severity
	}{
		{"d", concerns.SeverityMedium},
		{"e", concerns.SeverityHigh},
		{"f", concerns.SeverityMedium},
	} {
		d := throttle.Decide(throttle.LevelStandard, s, next.severity, next.id)
		if d != (throttle.Decision{Alert: true, Reason: throttle.ReasonBump}) {
			t.Fatalf("flag %s: decision = %+v, want bump", next.id, d)
		}

		delta := throttle.Delta(next.severity)
		s.AlertsSentToday++
		s.AlertedFlagIDs = append(s.AlertedFlagIDs, next.id)
		s.SeverityCounts.High += delta.High
		s.SeverityCounts.Medium += delta.Medium
		s.SeverityCounts.Low += delta.Low
	}

	want := throttle.SeverityCounts{High: 3, Medium: 2, Low: 1}
	if s.SeverityCounts != want || s.AlertsSentToday != 6 {
		t.Errorf("state = %+v, want counts %+v and 6 sent", s, want)
	}
}

func TestForDateResetsStaleState(t *testing.T) {
	stale := throttle.State{
		Date:            "2023-12-31",
		AlertsSentToday: 3,
		ThrottledToday:  4,
		AlertedFlagIDs:  []string{"a", "b", "c"},
		SeverityCounts:  throttle.SeverityCounts{High: 3},
	}

	got := stale.ForDate("2024-01-01")
	if got.AlertsSentToday != 0 || got.ThrottledToday != 0 || len(got.AlertedFlagIDs) != 0 || got.SeverityCounts != (throttle.SeverityCounts{}) {
		t.Errorf("stale state not reset: %+v", got)
	}
	if got.Date != "2024-01-01" {
		t.Errorf("date = %s", got.Date)
	}

	negative := throttle.State{Date: "2024-01-01", AlertsSentToday: -2, SeverityCounts: throttle.SeverityCounts{Low: -1}}
	got = negative.ForDate("2024-01-01")
	if got.AlertsSentToday != 0 || got.SeverityCounts.Low != 0 {
		t.Errorf("negative counters not floored: %+v", got)
	}
}

func TestToday(t *testing.T) {
	loc := time.FixedZone("UTC-8", -8*3600)
	local := time.Date(2024, 1, 1, 20, 0, 0, 0, loc)
	if got := throttle.Today(local); got != "2024-01-02" {
		t.Errorf("Today = %s, want UTC date 2024-01-02", got)
	}
}

func TestStateReadsStaleRowAsZero(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(stateQuery).
		WithArgs("fam-1", "child-1").
		WillReturnRows(sqlmock.NewRows(stateColumns).
			AddRow(time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC), 3, 2, []byte(`["a","b","c"]`), 3, 0, 0))

	sys := throttle.New(db, cache.NewMemory(time.Now), time.Minute, discard)
	s, err := sys.State(context.Background(), "fam-1", "child-1", time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if s.Date != "2024-01-01" || s.AlertsSentToday != 0 || len(s.AlertedFlagIDs) != 0 {
		t.Errorf("state = %+v", s)
	}
}

func TestShouldAlertFailsOpen(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(levelQuery).WithArgs("fam-1").
		WillReturnRows(sqlmock.NewRows([]string{"level"}).AddRow("minimal"))
	mock.ExpectQuery(stateQuery).WithArgs("fam-1", "child-1").
		WillReturnError(errors.New("connection refused"))

	sys := throttle.New(db, cache.NewMemory(time.Now), time.Minute, discard)
	d := sys.ShouldAlert(context.Background(), "fam-1", "child-1", concerns.SeverityLow, "f1", time.Now())
	if !d.Alert || d.Reason != throttle.ReasonFailOpen {
		t.Errorf("decision = %+v, want fail-open alert", d)
	}
}

func TestApplyMarksThrottledAndSkipsHeld(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	today := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(levelQuery).WithArgs("fam-1").
		WillReturnRows(sqlmock.NewRows([]string{"level"}).AddRow("standard"))

	mock.ExpectQuery(stateQuery).WithArgs("fam-1", "child-1").
		WillReturnRows(sqlmock.NewRows(stateColumns).
			AddRow(today, 3, 0, []byte(`["a","b","c"]`), 3, 0, 0))
	mock.ExpectExec(`INSERT INTO flag_throttle_state`).
		WithArgs("fam-1", "child-1", "2024-01-01").
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectQuery(stateQuery).WithArgs("fam-1", "child-1").
		WillReturnRows(sqlmock.NewRows(stateColumns).
			AddRow(today, 3, 1, []byte(`["a","b","c"]`), 3, 0, 0))
	mock.ExpectExec(`INSERT INTO flag_throttle_state`).
		WithArgs("fam-1", "child-1", "2024-01-01").
		WillReturnResult(sqlmock.NewResult(0, 1))

	sys := throttle.New(db, cache.NewMemory(time.Now), time.Minute, discard)

	releasable := now.Add(48 * time.Hour)
	in := []concerns.Flag{
		{Concern: concerns.Concern{Category: concerns.CategoryViolence, Severity: concerns.SeverityMedium, Confidence: 80}, Status: concerns.StatusPending},
		{Concern: concerns.Concern{Category: concerns.CategorySelfHarm, Severity: concerns.SeverityHigh, Confidence: 90}, Status: concerns.StatusSensitiveHold, ReleasableAfter: &releasable},
		{Concern: concerns.Concern{Category: concerns.CategoryBullying, Severity: concerns.SeverityLow, Confidence: 80}, Status: concerns.StatusPending},
	}

	out := sys.Apply(context.Background(), "fam-1", "child-1", []string{"d", "e", "f"}, in, now)

	if !out[0].Throttled || out[0].ThrottledAt == nil || !out[0].ThrottledAt.Equal(now) {
		t.Errorf("medium should be throttled: %+v", out[0])
	}
	if out[1].Throttled {
		t.Error("held flag should not be throttled")
	}
	if !out[2].Throttled {
		t.Error("low should be throttled")
	}
	if in[0].Throttled {
		t.Error("input slice was modified")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestApplyRecordsBump(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(levelQuery).WithArgs("fam-1").
		WillReturnRows(sqlmock.NewRows([]string{"level"}))
	mock.ExpectQuery(stateQuery).WithArgs("fam-1", "child-1").
		WillReturnRows(sqlmock.NewRows(stateColumns).
			AddRow(now, 3, 0, []byte(`["a","b","c"]`), 2, 0, 1))
	mock.ExpectExec(`INSERT INTO flag_throttle_state`).
		WithArgs("fam-1", "child-1", "2024-01-01", "d", 1, 0, 0).
		WillReturnResult(sqlmock.NewResult(0, 1))

	sys := throttle.New(db, cache.NewMemory(time.Now), time.Minute, discard)
	out := sys.Apply(context.Background(), "fam-1", "child-1", []string{"d"}, []concerns.Flag{
		{Concern: concerns.Concern{Category: concerns.CategoryViolence, Severity: concerns.SeverityHigh, Confidence: 95}, Status: concerns.StatusPending},
	}, now)

	if out[0].Throttled {
		t.Error("bumped flag should alert")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestApplySuccessiveBumpsKeepLowCount(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(levelQuery).WithArgs("fam-1").
		WillReturnRows(sqlmock.NewRows([]string{"level"}).AddRow("standard"))

	mock.ExpectQuery(stateQuery).WithArgs("fam-1", "child-1").
		WillReturnRows(sqlmock.NewRows(stateColumns).
			AddRow(now, 3, 0, []byte(`["a","b","c"]`), 2, 0, 1))
	mock.ExpectExec(`INSERT INTO flag_throttle_state`).
		WithArgs("fam-1", "child-1", "2024-01-01", "d", 0, 1, 0).
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectQuery(stateQuery).WithArgs("fam-1", "child-1").
		WillReturnRows(sqlmock.NewRows(stateColumns).
			AddRow(now, 4, 0, []byte(`["a","b","c","d"]`), 2, 1, 1))
	mock.ExpectExec(`INSERT INTO flag_throttle_state`).
		WithArgs("fam-1", "child-1", "2024-01-01", "e", 1, 0, 0).
		WillReturnResult(sqlmock.NewResult(0, 1))

	sys := throttle.New(db, cache.NewMemory(time.Now), time.Minute, discard)
	out := sys.Apply(context.Background(), "fam-1", "child-1", []string{"d", "e"}, []concerns.Flag{
		{Concern: concerns.Concern{Category: concerns.CategoryBullying, Severity: concerns.SeverityMedium, Confidence: 85}, Status: concerns.StatusPending},
		{Concern: concerns.Concern{Category: concerns.CategoryViolence, Severity: concerns.SeverityHigh, Confidence: 95}, Status: concerns.StatusPending},
	}, now)

	for i, f := range out {
		if f.Throttled {
			t.Errorf("flag %d should alert by bumping the low alert", i)
		}
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestApplyRecordsUnboundedAlerts(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(levelQuery).WithArgs("fam-1").
		WillReturnRows(sqlmock.NewRows([]string{"level"}).AddRow("all"))
	mock.ExpectExec(`INSERT INTO flag_throttle_state`).
		WithArgs("fam-1", "child-1", "2024-01-01", "d", 0, 0, 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO flag_throttle_state`).
		WithArgs("fam-1", "child-1", "2024-01-01", "e", 1, 0, 0).
		WillReturnResult(sqlmock.NewResult(0, 1))

	sys := throttle.New(db, cache.NewMemory(time.Now), time.Minute, discard)
	out := sys.Apply(context.Background(), "fam-1", "child-1", []string{"d", "e"}, []concerns.Flag{
		{Concern: concerns.Concern{Category: concerns.CategoryExplicitLang, Severity: concerns.SeverityLow, Confidence: 80}, Status: concerns.StatusPending},
		{Concern: concerns.Concern{Category: concerns.CategoryViolence, Severity: concerns.SeverityHigh, Confidence: 95}, Status: concerns.StatusPending},
	}, now)

	for i, f := range out {
		if f.Throttled {
			t.Errorf("flag %d should alert at level all", i)
		}
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
