package approvals_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/JaimeStill/vigil/internal/approvals"
	"github.com/JaimeStill/vigil/internal/concerns"
	"github.com/JaimeStill/vigil/pkg/cache"
	"github.com/JaimeStill/vigil/pkg/routes"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

var approvalColumns = []string{"child_id", "app_identifier", "category", "status", "updated_at"}

const listQuery = `SELECT child_id, app_identifier, category, status, updated_at\s+FROM app_category_approvals`

func TestAppIdentifier(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		appName string
		want    string
	}{
		{"hostname lowercased", "https://WWW.YouTube.com/watch?v=1", "", "www.youtube.com"},
		{"url wins over app name", "https://discord.com/channels", "Discord", "discord.com"},
		{"scheme-less url", "roblox.com/games/1", "", "roblox.com"},
		{"app name fallback", "", "  Minecraft   Launcher ", "minecraft launcher"},
		{"unknown", "", "", approvals.UnknownApp},
		{"blank app name", "", "   ", approvals.UnknownApp},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := approvals.AppIdentifier(tt.url, tt.appName); got != tt.want {
				t.Errorf("AppIdentifier(%q, %q) = %q, want %q", tt.url, tt.appName, got, tt.want)
			}
		})
	}
}

func TestApply(t *testing.T) {
	list := []approvals.Approval{
		{AppIdentifier: "youtube.com", Category: concerns.CategoryViolence, Status: approvals.StatusApproved},
		{AppIdentifier: "youtube.com", Category: concerns.CategoryBullying, Status: approvals.StatusDisapproved},
		{AppIdentifier: "youtube.com", Category: concerns.CategoryExplicitLang, Status: approvals.StatusNeutral},
		{AppIdentifier: "tiktok.com", Category: concerns.CategoryAdultContent, Status: approvals.StatusApproved},
	}

	tests := []struct {
		name     string
		category string
		in       int
		want     int
	}{
		{"approved subtracts penalty", concerns.CategoryViolence, 70, 50},
		{"approved clamps at zero", concerns.CategoryViolence, 10, 0},
		{"disapproved adds bonus", concerns.CategoryBullying, 70, 85},
		{"disapproved clamps at 100", concerns.CategoryBullying, 95, 100},
		{"neutral unchanged", concerns.CategoryExplicitLang, 70, 70},
		{"other app ignored", concerns.CategoryAdultContent, 70, 70},
		{"out of range input clamped", concerns.CategoryUnknownContacts, 130, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := []concerns.Concern{{Category: tt.category, Severity: concerns.SeverityLow, Confidence: tt.in}}
			got := approvals.Apply(list, "youtube.com", in, 20, 15)
			if got[0].Confidence != tt.want {
				t.Errorf("confidence = %d, want %d", got[0].Confidence, tt.want)
			}
		})
	}
}

func TestSetInvalidatesCache(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Now()
	sys := approvals.New(db, cache.NewMemory(time.Now), time.Minute, 20, 15, discard)
	ctx := context.Background()

	mock.ExpectQuery(listQuery).
		WithArgs("child-1").
		WillReturnRows(sqlmock.NewRows(approvalColumns))

	mock.ExpectQuery(`INSERT INTO app_category_approvals`).
		WithArgs("child-1", "youtube.com", concerns.CategoryViolence, "approved").
		WillReturnRows(sqlmock.NewRows(approvalColumns).
			AddRow("child-1", "youtube.com", concerns.CategoryViolence, "approved", now))

	mock.ExpectQuery(listQuery).
		WithArgs("child-1").
		WillReturnRows(sqlmock.NewRows(approvalColumns).
			AddRow("child-1", "youtube.com", concerns.CategoryViolence, "approved", now))

	first, err := sys.List(ctx, "child-1")
	if err != nil || len(first) != 0 {
		t.Fatalf("List = %v, %v", first, err)
	}

	if _, err := sys.List(ctx, "child-1"); err != nil {
		t.Fatalf("cached List: %v", err)
	}

	if _, err := sys.Set(ctx, "child-1", approvals.SetCommand{
		AppIdentifier: "YouTube.com",
		Category:      concerns.CategoryViolence,
		Status:        approvals.StatusApproved,
	}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	adjusted := sys.Adjust(ctx, "child-1", "youtube.com", []concerns.Concern{
		{Category: concerns.CategoryViolence, Severity: concerns.SeverityHigh, Confidence: 80},
	})
	if adjusted[0].Confidence != 60 {
		t.Errorf("adjusted confidence = %d, want 60", adjusted[0].Confidence)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestSetValidation(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	sys := approvals.New(db, cache.NewMemory(time.Now), time.Minute, 20, 15, discard)

	tests := []struct {
		name string
		cmd  approvals.SetCommand
	}{
		{"missing app", approvals.SetCommand{Category: concerns.CategoryViolence, Status: approvals.StatusApproved}},
		{"bad category", approvals.SetCommand{AppIdentifier: "x.com", Category: "Gaming", Status: approvals.StatusApproved}},
		{"bad status", approvals.SetCommand{AppIdentifier: "x.com", Category: concerns.CategoryViolence, Status: "maybe"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := sys.Set(context.Background(), "child-1", tt.cmd)
			if approvals.MapHTTPStatus(err) != http.StatusBadRequest {
				t.Errorf("expected 400-mapped error, got %v", err)
			}
		})
	}
}

func TestHandlerSetRejectsUnknownStatus(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	sys := approvals.New(db, cache.NewMemory(time.Now), time.Minute, 20, 15, discard)
	mux := http.NewServeMux()
	routes.Register(mux, sys.Handler().Routes())

	body := `{"appIdentifier":"x.com","category":"Violence","status":"sometimes"}`
	req := httptest.NewRequest(http.MethodPut, "/children/child-1/approvals", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}

	var resp map[string]string
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp["error"] == "" {
		t.Error("expected error body")
	}
}
