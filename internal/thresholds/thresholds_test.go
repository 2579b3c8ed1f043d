package thresholds_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/JaimeStill/vigil/internal/concerns"
	"github.com/JaimeStill/vigil/internal/thresholds"
	"github.com/JaimeStill/vigil/pkg/cache"
	"github.com/JaimeStill/vigil/pkg/routes"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

const settingsQuery = `SELECT level, category_overrides FROM family_threshold_settings WHERE family_id = \$1`

func TestThreshold(t *testing.T) {
	tests := []struct {
		name     string
		settings thresholds.Settings
		category string
		want     int
	}{
		{"sensitive", thresholds.Settings{Level: thresholds.LevelSensitive}, concerns.CategoryViolence, 60},
		{"balanced", thresholds.Settings{Level: thresholds.LevelBalanced}, concerns.CategoryViolence, 75},
		{"relaxed", thresholds.Settings{Level: thresholds.LevelRelaxed}, concerns.CategoryViolence, 90},
		{"unknown level falls back to balanced", thresholds.Settings{Level: "paranoid"}, concerns.CategoryViolence, 75},
		{"empty level falls back to balanced", thresholds.Settings{}, concerns.CategoryViolence, 75},
		{"override wins", thresholds.Settings{
			Level:             thresholds.LevelRelaxed,
			CategoryOverrides: map[string]int{concerns.CategoryBullying: 40},
		}, concerns.CategoryBullying, 40},
		{"override for other category ignored", thresholds.Settings{
			Level:             thresholds.LevelRelaxed,
			CategoryOverrides: map[string]int{concerns.CategoryBullying: 40},
		}, concerns.CategoryViolence, 90},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.settings.Threshold(tt.category); got != tt.want {
				t.Errorf("Threshold = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestAlwaysFlagSurvivesAnyThreshold(t *testing.T) {
	for confidence := thresholds.AlwaysFlag; confidence <= 100; confidence++ {
		for _, threshold := range []int{0, 60, 75, 90, 99, 100, 150} {
			if !thresholds.Survives(confidence, threshold) {
				t.Errorf("confidence %d discarded at threshold %d", confidence, threshold)
			}
		}
	}

	s := thresholds.Settings{
		Level:             thresholds.LevelRelaxed,
		CategoryOverrides: map[string]int{concerns.CategoryViolence: 100},
	}
	kept, dropped := thresholds.Filter(s, []concerns.Concern{
		{Category: concerns.CategoryViolence, Severity: concerns.SeverityHigh, Confidence: 95},
		{Category: concerns.CategoryViolence, Severity: concerns.SeverityHigh, Confidence: 94},
	})
	if len(kept) != 1 || kept[0].Confidence != 95 {
		t.Errorf("kept = %v", kept)
	}
	if len(dropped) != 1 || dropped[0].Threshold != 100 {
		t.Errorf("dropped = %v", dropped)
	}
}

func TestFilterBoundary(t *testing.T) {
	s := thresholds.Settings{Level: thresholds.LevelBalanced}
	kept, dropped := thresholds.Filter(s, []concerns.Concern{
		{Category: concerns.CategoryBullying, Confidence: 75},
		{Category: concerns.CategoryBullying, Confidence: 74},
	})
	if len(kept) != 1 || kept[0].Confidence != 75 {
		t.Errorf("kept = %v", kept)
	}
	if len(dropped) != 1 || dropped[0].Concern.Confidence != 74 {
		t.Errorf("dropped = %v", dropped)
	}
}

func TestSettingsDefaultWhenMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(settingsQuery).
		WithArgs("fam-1").
		WillReturnRows(sqlmock.NewRows([]string{"level", "category_overrides"}))

	sys := thresholds.New(db, cache.NewMemory(time.Now), time.Minute, discard)
	s, err := sys.Settings(context.Background(), "fam-1")
	if err != nil {
		t.Fatalf("Settings: %v", err)
	}
	if s.Level != thresholds.LevelBalanced {
		t.Errorf("level = %s, want balanced", s.Level)
	}
}

func TestFilterUsesStoredSettings(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(settingsQuery).
		WithArgs("fam-1").
		WillReturnRows(sqlmock.NewRows([]string{"level", "category_overrides"}).
			AddRow("sensitive", []byte(`{"Violence":85}`)))

	sys := thresholds.New(db, cache.NewMemory(time.Now), time.Minute, discard)
	kept := sys.Filter(context.Background(), "fam-1", []concerns.Concern{
		{Category: concerns.CategoryViolence, Confidence: 80},
		{Category: concerns.CategoryBullying, Confidence: 61},
		{Category: concerns.CategoryAdultContent, Confidence: 59},
	})

	if len(kept) != 1 || kept[0].Category != concerns.CategoryBullying {
		t.Errorf("kept = %v", kept)
	}
}

func TestSaveInvalidatesCache(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	c := cache.NewMemory(time.Now)
	sys := thresholds.New(db, c, time.Minute, discard)
	ctx := context.Background()

	mock.ExpectQuery(settingsQuery).
		WithArgs("fam-1").
		WillReturnRows(sqlmock.NewRows([]string{"level", "category_overrides"}))
	mock.ExpectExec(`INSERT INTO family_threshold_settings`).
		WithArgs("fam-1", "relaxed", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if _, err := sys.Settings(ctx, "fam-1"); err != nil {
		t.Fatalf("Settings: %v", err)
	}
	if _, err := sys.Save(ctx, "fam-1", thresholds.Settings{Level: thresholds.LevelRelaxed}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if _, ok, _ := c.Get(ctx, "thresholds:fam-1"); ok {
		t.Error("cache entry should be invalidated after Save")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestSaveRejectsInvalidOverride(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	sys := thresholds.New(db, cache.NewMemory(time.Now), time.Minute, discard)
	_, err = sys.Save(context.Background(), "fam-1", thresholds.Settings{
		Level:             thresholds.LevelBalanced,
		CategoryOverrides: map[string]int{"Gaming": 50},
	})
	if thresholds.MapHTTPStatus(err) != http.StatusBadRequest {
		t.Errorf("expected 400-mapped error, got %v", err)
	}
}

func TestHandlerPutRejectsUnknownLevel(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	sys := thresholds.New(db, cache.NewMemory(time.Now), time.Minute, discard)
	mux := http.NewServeMux()
	routes.Register(mux, sys.Handler().Routes())

	req := httptest.NewRequest(http.MethodPut, "/families/fam-1/thresholds", strings.NewReader(`{"level":"extreme"}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
