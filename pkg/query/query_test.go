package query_test

import (
	"testing"

	"github.com/JaimeStill/vigil/pkg/query"
)

func flagProjection() *query.ProjectionMap {
	return query.NewProjectionMap("public", "flags", "f").
		Project("id", "id").
		Project("child_id", "childId").
		Project("category", "category").
		Project("created_at", "createdAt")
}

func ptr(s string) *string { return &s }

const flagColumns = "SELECT f.id, f.child_id, f.category, f.created_at FROM public.flags f"

func TestProjectionMap(t *testing.T) {
	p := flagProjection()

	if got := p.From(); got != "public.flags f" {
		t.Errorf("From() = %q, want %q", got, "public.flags f")
	}
	if got := p.Columns(); got != "f.id, f.child_id, f.category, f.created_at" {
		t.Errorf("Columns() = %q", got)
	}

	tests := []struct {
		name     string
		viewName string
		want     string
	}{
		{"mapped field", "category", "f.category"},
		{"mapped camel", "childId", "f.child_id"},
		{"unmapped passthrough", "severity", "severity"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.Column(tt.viewName); got != tt.want {
				t.Errorf("Column(%q) = %q, want %q", tt.viewName, got, tt.want)
			}
		})
	}
}

func TestParseSortFields(t *testing.T) {
	got := query.ParseSortFields(" category , -createdAt,, ")
	want := []query.SortField{
		{Field: "category"},
		{Field: "createdAt", Descending: true},
	}

	if len(got) != len(want) {
		t.Fatalf("length = %d, want %d", len(got), len(want))
	}
	for i := range got {
		if got[i] != want[i] {
			t.Errorf("[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	if query.ParseSortFields("") != nil {
		t.Error("empty input should return nil")
	}
}

func TestBuilderConditions(t *testing.T) {
	tests := []struct {
		name     string
		build    func(*query.Builder)
		wantSQL  string
		wantArgs int
	}{
		{
			name:     "equals",
			build:    func(b *query.Builder) { b.WhereEquals("childId", "child-1") },
			wantSQL:  flagColumns + " WHERE f.child_id = $1",
			wantArgs: 1,
		},
		{
			name:     "equals nil skipped",
			build:    func(b *query.Builder) { b.WhereEquals("childId", nil) },
			wantSQL:  flagColumns,
			wantArgs: 0,
		},
		{
			name:     "contains",
			build:    func(b *query.Builder) { b.WhereContains("category", ptr("harm")) },
			wantSQL:  flagColumns + " WHERE f.category ILIKE $1",
			wantArgs: 1,
		},
		{
			name:     "contains empty skipped",
			build:    func(b *query.Builder) { b.WhereContains("category", ptr("")) },
			wantSQL:  flagColumns,
			wantArgs: 0,
		},
		{
			name:     "in",
			build:    func(b *query.Builder) { b.WhereIn("id", []any{"a", "b"}) },
			wantSQL:  flagColumns + " WHERE f.id IN ($1, $2)",
			wantArgs: 2,
		},
		{
			name:     "nullable nil",
			build:    func(b *query.Builder) { b.WhereNullable("category", nil) },
			wantSQL:  flagColumns + " WHERE f.category IS NULL",
			wantArgs: 0,
		},
		{
			name:     "greater or equal",
			build:    func(b *query.Builder) { b.WhereGreaterOrEqual("createdAt", int64(10)) },
			wantSQL:  flagColumns + " WHERE f.created_at >= $1",
			wantArgs: 1,
		},
		{
			name:     "less",
			build:    func(b *query.Builder) { b.WhereLess("createdAt", int64(10)) },
			wantSQL:  flagColumns + " WHERE f.created_at < $1",
			wantArgs: 1,
		},
		{
			name: "raw renumbered after equals",
			build: func(b *query.Builder) {
				b.WhereEquals("childId", "child-1").
					WhereRaw("(f.created_at, f.id) < (SELECT created_at, id FROM flags WHERE id = $%d)", "flag-9")
			},
			wantSQL:  flagColumns + " WHERE f.child_id = $1 AND (f.created_at, f.id) < (SELECT created_at, id FROM flags WHERE id = $2)",
			wantArgs: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := query.NewBuilder(flagProjection())
			tt.build(b)
			sql, args := b.Build()

			if sql != tt.wantSQL {
				t.Errorf("sql = %q, want %q", sql, tt.wantSQL)
			}
			if len(args) != tt.wantArgs {
				t.Errorf("args = %v, want %d args", args, tt.wantArgs)
			}
		})
	}
}

func TestBuilderBuildPage(t *testing.T) {
	b := query.NewBuilder(flagProjection(), query.SortField{Field: "createdAt", Descending: true})
	b.WhereEquals("childId", "child-1")
	sql, args := b.BuildPage(3, 25)

	want := flagColumns + " WHERE f.child_id = $1 ORDER BY f.created_at DESC LIMIT 25 OFFSET 50"
	if sql != want {
		t.Errorf("sql = %q, want %q", sql, want)
	}
	if len(args) != 1 {
		t.Errorf("args = %v, want 1", args)
	}
}

func TestBuilderBuildLimit(t *testing.T) {
	b := query.NewBuilder(
		flagProjection(),
		query.SortField{Field: "createdAt", Descending: true},
		query.SortField{Field: "id", Descending: true},
	)
	sql, _ := b.BuildLimit(21)

	want := flagColumns + " ORDER BY f.created_at DESC, f.id DESC LIMIT 21"
	if sql != want {
		t.Errorf("sql = %q, want %q", sql, want)
	}
}

func TestBuilderOrderByOverridesDefault(t *testing.T) {
	b := query.NewBuilder(flagProjection(), query.SortField{Field: "id"})
	b.OrderByFields([]query.SortField{{Field: "category"}})
	sql, _ := b.Build()

	want := flagColumns + " ORDER BY f.category ASC"
	if sql != want {
		t.Errorf("sql = %q, want %q", sql, want)
	}
}

func TestBuilderBuildSingle(t *testing.T) {
	sql, args := query.NewBuilder(flagProjection()).BuildSingle("id", "flag-1")

	want := flagColumns + " WHERE f.id = $1"
	if sql != want {
		t.Errorf("sql = %q, want %q", sql, want)
	}
	if len(args) != 1 || args[0] != "flag-1" {
		t.Errorf("args = %v, want [flag-1]", args)
	}
}

func TestBuilderBuildCount(t *testing.T) {
	b := query.NewBuilder(flagProjection())
	b.WhereEquals("category", "Violence")
	sql, args := b.BuildCount()

	want := "SELECT COUNT(*) FROM public.flags f WHERE f.category = $1"
	if sql != want {
		t.Errorf("sql = %q, want %q", sql, want)
	}
	if len(args) != 1 {
		t.Errorf("args = %v", args)
	}
}
