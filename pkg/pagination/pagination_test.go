package pagination_test

import (
	"net/url"
	"testing"

	"github.com/JaimeStill/vigil/pkg/pagination"
)

func defaultConfig() pagination.Config {
	return pagination.Config{DefaultPageSize: 20, MaxPageSize: 100}
}

func TestConfigFinalize(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := pagination.Config{}
		if err := cfg.Finalize(nil); err != nil {
			t.Fatalf("finalize failed: %v", err)
		}
		if cfg.DefaultPageSize != 20 || cfg.MaxPageSize != 100 {
			t.Errorf("cfg = %+v, want 20/100", cfg)
		}
	})

	t.Run("env overrides", func(t *testing.T) {
		t.Setenv("TEST_PAGE_SIZE", "50")
		t.Setenv("TEST_MAX_PAGE", "200")

		cfg := pagination.Config{}
		err := cfg.Finalize(&pagination.ConfigEnv{
			DefaultPageSize: "TEST_PAGE_SIZE",
			MaxPageSize:     "TEST_MAX_PAGE",
		})
		if err != nil {
			t.Fatalf("finalize failed: %v", err)
		}
		if cfg.DefaultPageSize != 50 || cfg.MaxPageSize != 200 {
			t.Errorf("cfg = %+v, want 50/200", cfg)
		}
	})

	t.Run("default exceeds max", func(t *testing.T) {
		cfg := pagination.Config{DefaultPageSize: 200, MaxPageSize: 100}
		if err := cfg.Finalize(nil); err == nil {
			t.Error("expected validation error")
		}
	})
}

func TestPageRequestFromQuery(t *testing.T) {
	values := url.Values{
		"page":      {"3"},
		"page_size": {"500"},
		"search":    {"gaming"},
		"sort":      {"-createdAt"},
	}

	req := pagination.PageRequestFromQuery(values, defaultConfig())

	if req.Page != 3 {
		t.Errorf("Page = %d, want 3", req.Page)
	}
	if req.PageSize != 100 {
		t.Errorf("PageSize = %d, want clamped 100", req.PageSize)
	}
	if req.Search == nil || *req.Search != "gaming" {
		t.Errorf("Search = %v, want gaming", req.Search)
	}
	if len(req.Sort) != 1 || !req.Sort[0].Descending {
		t.Errorf("Sort = %v", req.Sort)
	}
	if req.Offset() != 200 {
		t.Errorf("Offset = %d, want 200", req.Offset())
	}
}

func TestNewPageResult(t *testing.T) {
	result := pagination.NewPageResult[string](nil, 41, 1, 20)

	if result.TotalPages != 3 {
		t.Errorf("TotalPages = %d, want 3", result.TotalPages)
	}
	if result.Data == nil {
		t.Error("Data should be empty slice, not nil")
	}
}

func TestCursorRequestFromQuery(t *testing.T) {
	tests := []struct {
		name       string
		values     url.Values
		wantLimit  int
		wantCursor string
	}{
		{"defaults", url.Values{}, 20, ""},
		{"explicit", url.Values{"limit": {"5"}, "start_after": {"flag-9"}}, 5, "flag-9"},
		{"clamped", url.Values{"limit": {"1000"}}, 100, ""},
		{"invalid limit", url.Values{"limit": {"abc"}}, 20, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := pagination.CursorRequestFromQuery(tt.values, defaultConfig())
			if req.Limit != tt.wantLimit {
				t.Errorf("Limit = %d, want %d", req.Limit, tt.wantLimit)
			}
			if req.StartAfter != tt.wantCursor {
				t.Errorf("StartAfter = %q, want %q", req.StartAfter, tt.wantCursor)
			}
		})
	}
}

func TestNewCursorResult(t *testing.T) {
	id := func(s string) string { return s }

	t.Run("more rows than limit", func(t *testing.T) {
		result := pagination.NewCursorResult([]string{"a", "b", "c"}, 2, id)
		if len(result.Data) != 2 {
			t.Fatalf("Data = %v, want 2 rows", result.Data)
		}
		if !result.HasMore || result.NextCursor != "b" {
			t.Errorf("HasMore = %v NextCursor = %q, want true b", result.HasMore, result.NextCursor)
		}
	})

	t.Run("final slice", func(t *testing.T) {
		result := pagination.NewCursorResult([]string{"a"}, 2, id)
		if result.HasMore || result.NextCursor != "" {
			t.Errorf("HasMore = %v NextCursor = %q, want false empty", result.HasMore, result.NextCursor)
		}
	})

	t.Run("nil rows", func(t *testing.T) {
		result := pagination.NewCursorResult[string](nil, 2, id)
		if result.Data == nil {
			t.Error("Data should be empty slice, not nil")
		}
	})
}
