package prompts_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/JaimeStill/vigil/internal/prompts"
	"github.com/JaimeStill/vigil/pkg/pagination"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMapHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", prompts.ErrNotFound, http.StatusNotFound},
		{"duplicate", prompts.ErrDuplicate, http.StatusConflict},
		{"wrapped invalid stage", fmt.Errorf("decode: %w", prompts.ErrInvalidStage), http.StatusBadRequest},
		{"unknown error", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := prompts.MapHTTPStatus(tt.err); got != tt.want {
				t.Errorf("MapHTTPStatus(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestStageUnmarshalJSON(t *testing.T) {
	var s prompts.Stage
	if err := json.Unmarshal([]byte(`"concerns"`), &s); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if s != prompts.StageConcerns {
		t.Errorf("stage = %q, want concerns", s)
	}

	if err := json.Unmarshal([]byte(`"enhance"`), &s); !errors.Is(err, prompts.ErrInvalidStage) {
		t.Errorf("err = %v, want ErrInvalidStage", err)
	}
}

func TestSpecsNameEveryCategory(t *testing.T) {
	spec, err := prompts.Spec(prompts.StageConcerns)
	if err != nil {
		t.Fatalf("Spec: %v", err)
	}
	for _, c := range []string{"Violence", "Self-Harm Indicators", "Unknown Contacts"} {
		if !strings.Contains(spec, fmt.Sprintf("%q", c)) {
			t.Errorf("concerns spec missing %q", c)
		}
	}

	spec, err = prompts.Spec(prompts.StageClassify)
	if err != nil {
		t.Fatalf("Spec: %v", err)
	}
	if !strings.Contains(spec, `"Homework"`) || !strings.Contains(spec, "secondaryCategories") {
		t.Error("classify spec missing categories or secondary field")
	}

	if _, err := prompts.Spec("finalize"); !errors.Is(err, prompts.ErrInvalidStage) {
		t.Errorf("err = %v, want ErrInvalidStage", err)
	}
}

func TestComposeUsesActiveOverride(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT instructions FROM prompts").
		WithArgs(prompts.StageConcerns).
		WillReturnRows(sqlmock.NewRows([]string{"instructions"}).AddRow("Be extra careful."))

	sys := prompts.New(db, discard(), pagination.Config{DefaultPageSize: 20, MaxPageSize: 100})

	text, err := sys.Compose(context.Background(), prompts.StageConcerns)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if !strings.HasPrefix(text, "Be extra careful.\n\n") {
		t.Errorf("override not used: %q", text[:40])
	}
	if !strings.Contains(text, `"concerns"`) {
		t.Error("spec not appended")
	}
}

func TestComposeFallsBackToDefault(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT instructions FROM prompts").
		WithArgs(prompts.StageClassify).
		WillReturnRows(sqlmock.NewRows([]string{"instructions"}))

	sys := prompts.New(db, discard(), pagination.Config{DefaultPageSize: 20, MaxPageSize: 100})

	text, err := sys.Compose(context.Background(), prompts.StageClassify)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}

	def, _ := prompts.Instructions(prompts.StageClassify)
	if !strings.HasPrefix(text, def) {
		t.Error("default instructions not used")
	}
}

func TestFiltersFromQuery(t *testing.T) {
	f := prompts.FiltersFromQuery(url.Values{
		"stage":  {"classify"},
		"name":   {"strict"},
		"active": {"true"},
	})

	if f.Stage == nil || *f.Stage != prompts.StageClassify {
		t.Errorf("Stage = %v", f.Stage)
	}
	if f.Name == nil || *f.Name != "strict" {
		t.Errorf("Name = %v", f.Name)
	}
	if f.Active == nil || !*f.Active {
		t.Errorf("Active = %v", f.Active)
	}

	f = prompts.FiltersFromQuery(url.Values{"stage": {"bogus"}})
	if f.Stage != nil {
		t.Error("invalid stage should be ignored")
	}
}
