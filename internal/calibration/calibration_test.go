package calibration_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/JaimeStill/vigil/internal/calibration"
	"github.com/JaimeStill/vigil/internal/concerns"
	"github.com/JaimeStill/vigil/pkg/cache"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

const weightsQuery = `SELECT correction_count, category_adjustments FROM family_bias_weights WHERE family_id = \$1`

func concern(category string, confidence int) concerns.Concern {
	return concerns.Concern{Category: category, Severity: concerns.SeverityMedium, Confidence: confidence}
}

func TestApply(t *testing.T) {
	weights := calibration.Weights{
		CorrectionCount: 12,
		CategoryAdjustments: map[string]int{
			concerns.CategoryViolence: -15,
			concerns.CategoryBullying: 30,
		},
	}

	tests := []struct {
		name           string
		weights        calibration.Weights
		minCorrections int
		in             concerns.Concern
		want           int
	}{
		{"negative offset", weights, 10, concern(concerns.CategoryViolence, 70), 55},
		{"positive offset clamps", weights, 10, concern(concerns.CategoryBullying, 85), 100},
		{"no offset for category", weights, 10, concern(concerns.CategoryAdultContent, 70), 70},
		{"below minimum corrections", weights, 20, concern(concerns.CategoryViolence, 70), 70},
		{"negative clamps to zero", calibration.Weights{
			CorrectionCount:     50,
			CategoryAdjustments: map[string]int{concerns.CategoryViolence: -90},
		}, 10, concern(concerns.CategoryViolence, 40), 0},
		{"zero weights", calibration.Weights{}, 10, concern(concerns.CategoryViolence, 64), 64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := []concerns.Concern{tt.in}
			got := calibration.Apply(tt.weights, in, tt.minCorrections)
			if got[0].Confidence != tt.want {
				t.Errorf("confidence = %d, want %d", got[0].Confidence, tt.want)
			}
			if in[0].Confidence != tt.in.Confidence {
				t.Error("input slice was modified")
			}
		})
	}
}

func TestWeightsCached(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(weightsQuery).
		WithArgs("fam-1").
		WillReturnRows(sqlmock.NewRows([]string{"correction_count", "category_adjustments"}).
			AddRow(15, []byte(`{"Violence":-10}`)))

	sys := calibration.New(db, cache.NewMemory(time.Now), time.Minute, 10, discard)
	ctx := context.Background()

	for range 2 {
		w, err := sys.Weights(ctx, "fam-1")
		if err != nil {
			t.Fatalf("Weights: %v", err)
		}
		if w.CorrectionCount != 15 || w.CategoryAdjustments[concerns.CategoryViolence] != -10 {
			t.Errorf("weights = %+v", w)
		}
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("second read should hit the cache: %v", err)
	}
}

func TestWeightsMissingFamily(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(weightsQuery).
		WithArgs("fam-new").
		WillReturnRows(sqlmock.NewRows([]string{"correction_count", "category_adjustments"}))

	sys := calibration.New(db, cache.NewMemory(time.Now), time.Minute, 10, discard)
	w, err := sys.Weights(context.Background(), "fam-new")
	if err != nil {
		t.Fatalf("Weights: %v", err)
	}
	if w.CorrectionCount != 0 || len(w.CategoryAdjustments) != 0 {
		t.Errorf("weights = %+v, want zero", w)
	}
}

func TestAdjustPassesThroughOnReadFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(weightsQuery).
		WithArgs("fam-1").
		WillReturnError(errors.New("connection reset"))

	sys := calibration.New(db, cache.NewMemory(time.Now), time.Minute, 10, discard)
	got := sys.Adjust(context.Background(), "fam-1", []concerns.Concern{concern(concerns.CategoryViolence, 72)})

	if len(got) != 1 || got[0].Confidence != 72 {
		t.Errorf("got %+v, want unchanged", got)
	}
}
