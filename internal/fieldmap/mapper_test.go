package fieldmap

import (
	"log/slog"
	"testing"

	"github.com/njoerd114/notionrelay/internal/model"
)

func ptr[T any](v T) *T { return &v }

func newTestMapper() *Mapper { return NewMapper(slog.Default()) }

func TestMap_Conversions(t *testing.T) {
	tests := []struct {
		name  string
		field model.Field
		want  any
	}{
		{"title", model.TitleField{Runs: []string{"Hello ", "world"}}, "Hello world"},
		{"rich text runs", model.RichTextField{Runs: []string{"a", "b", "c"}}, "abc"},
		{"number", model.NumberField{Value: ptr(42.5)}, 42.5},
		{"zero number kept", model.NumberField{Value: ptr(0.0)}, 0.0},
		{"select", model.SelectField{Name: "High"}, "High"},
		{"status", model.StatusField{Name: "Done"}, "Done"},
		{"multi select", model.MultiSelectField{Names: []string{"a", "b", "c"}}, "a, b, c"},
		{"date point", model.DateField{Start: "2024-01-02"}, "2024-01-02"},
		{"date range", model.DateField{Start: "2024-01-02", End: "2024-01-05"}, "2024-01-02 to 2024-01-05"},
		{"people name or id", model.PeopleField{People: []model.Ref{{ID: "u1", Name: "Ada"}, {ID: "u2"}}}, "Ada, u2"},
		{"files", model.FilesField{Files: []model.Ref{{Name: "brief.pdf"}, {Name: "a.png"}}}, "brief.pdf, a.png"},
		{"checkbox true", model.CheckboxField{Value: ptr(true)}, true},
		{"checkbox false kept", model.CheckboxField{Value: ptr(false)}, false},
		{"url", model.URLField{Value: ptr("https://example.com")}, "https://example.com"},
		{"email", model.EmailField{Value: ptr("a@b.c")}, "a@b.c"},
		{"phone", model.PhoneField{Value: ptr("+1 555")}, "+1 555"},
		{"formula string", model.FormulaField{Value: "computed"}, "computed"},
		{"formula number", model.FormulaField{Value: 3.0}, 3.0},
		{"formula bool", model.FormulaField{Value: false}, false},
		{"relation", model.RelationField{IDs: []string{"p1", "p2"}}, "p1, p2"},
		{"rollup array count", model.RollupField{IsArray: true, Count: 4}, 4},
		{"rollup empty array count", model.RollupField{IsArray: true}, 0},
		{"rollup scalar", model.RollupField{Value: 12.0}, 12.0},
		{"created time", model.TimestampField{Kind: model.FieldCreatedTime, Value: ptr("2024-01-01T00:00:00Z")}, "2024-01-01T00:00:00Z"},
		{"created by name", model.ActorField{Kind: model.FieldCreatedBy, Actor: &model.Ref{ID: "u1", Name: "Ada"}}, "Ada"},
		{"edited by id fallback", model.ActorField{Kind: model.FieldLastEditedBy, Actor: &model.Ref{ID: "u9"}}, "u9"},
	}

	m := newTestMapper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m.Map(map[string]model.Field{"f": tt.field})
			v, ok := got["f"]
			if !ok {
				t.Fatalf("field omitted, want %v", tt.want)
			}
			if v != tt.want {
				t.Errorf("got %#v, want %#v", v, tt.want)
			}
		})
	}
}

func TestMap_OmitsEmptyValues(t *testing.T) {
	fields := map[string]model.Field{
		"empty text":     model.RichTextField{},
		"empty runs":     model.RichTextField{Runs: []string{"", ""}},
		"null number":    model.NumberField{},
		"unset select":   model.SelectField{},
		"unset status":   model.StatusField{},
		"no options":     model.MultiSelectField{},
		"no date":        model.DateField{},
		"end only":       model.DateField{End: "2024-01-01"},
		"no people":      model.PeopleField{},
		"no files":       model.FilesField{},
		"null checkbox":  model.CheckboxField{},
		"null url":       model.URLField{},
		"empty email":    model.EmailField{Value: ptr("")},
		"null phone":     model.PhoneField{},
		"null formula":   model.FormulaField{},
		"no relations":   model.RelationField{},
		"null rollup":    model.RollupField{},
		"null timestamp": model.TimestampField{Kind: model.FieldLastEditedTime},
		"null actor":     model.ActorField{Kind: model.FieldCreatedBy},
		"empty formula":  model.FormulaField{Value: ""},
	}

	got := newTestMapper().Map(fields)
	if len(got) != 0 {
		t.Errorf("Map() = %v, want empty map", got)
	}
}

func TestMap_UnknownTypesOmitted(t *testing.T) {
	fields := map[string]model.Field{
		"button":  model.UnknownField{RawType: "button"},
		"nil":     nil,
		"keep me": model.SelectField{Name: "x"},
	}

	got := newTestMapper().Map(fields)
	if len(got) != 1 {
		t.Fatalf("Map() returned %d entries, want 1: %v", len(got), got)
	}
	if got["keep me"] != "x" {
		t.Errorf("keep me = %v, want x", got["keep me"])
	}
}

func TestMap_NeverPanics(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("Map panicked: %v", r)
		}
	}()

	m := newTestMapper()
	_ = m.Map(nil)
	_ = m.Map(map[string]model.Field{
		"a": nil,
		"b": model.ActorField{},
		"c": model.RollupField{IsArray: true, Value: []any{1, 2}},
		"d": model.UnknownField{},
	})
}

func TestExtractTitle(t *testing.T) {
	tests := []struct {
		name     string
		fields   map[string]model.Field
		wantName string
		wantText string
	}{
		{
			name:     "found by type not by name",
			fields:   map[string]model.Field{"Task": model.TitleField{Runs: []string{"Buy ", "milk"}}, "Name": model.RichTextField{Runs: []string{"nope"}}},
			wantName: "Task",
			wantText: "Buy milk",
		},
		{
			name:     "empty title",
			fields:   map[string]model.Field{"Name": model.TitleField{}},
			wantName: "Name",
			wantText: UntitledContent,
		},
		{
			name:     "no title field",
			fields:   map[string]model.Field{"Notes": model.RichTextField{Runs: []string{"x"}}},
			wantName: "",
			wantText: UntitledContent,
		},
		{
			name:     "nil fields",
			fields:   nil,
			wantName: "",
			wantText: UntitledContent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, text := ExtractTitle(tt.fields)
			if name != tt.wantName {
				t.Errorf("name = %q, want %q", name, tt.wantName)
			}
			if text != tt.wantText {
				t.Errorf("text = %q, want %q", text, tt.wantText)
			}
		})
	}
}

func TestBuild_RemovesTitleFromMetadata(t *testing.T) {
	fields := map[string]model.Field{
		"Task":     model.TitleField{Runs: []string{"Write report"}},
		"Priority": model.SelectField{Name: "High"},
		"Tags":     model.MultiSelectField{Names: []string{"work", "q3"}},
	}

	content, meta := newTestMapper().Build(fields)
	if content != "Write report" {
		t.Errorf("content = %q, want %q", content, "Write report")
	}
	if _, ok := meta["Task"]; ok {
		t.Error("title property should not appear in metadata")
	}
	if meta["Priority"] != "High" {
		t.Errorf("Priority = %v, want High", meta["Priority"])
	}
	if meta["Tags"] != "work, q3" {
		t.Errorf("Tags = %v, want %q", meta["Tags"], "work, q3")
	}
}

func TestBuild_UntitledWithoutTitle(t *testing.T) {
	content, meta := newTestMapper().Build(map[string]model.Field{})
	if content != UntitledContent {
		t.Errorf("content = %q, want %q", content, UntitledContent)
	}
	if len(meta) != 0 {
		t.Errorf("metadata = %v, want empty", meta)
	}
}

func TestFormatDate(t *testing.T) {
	if got := FormatDate("", "2024-01-01"); got != "" {
		t.Errorf("FormatDate without start = %q, want empty", got)
	}
	if got := FormatDate("a", ""); got != "a" {
		t.Errorf("FormatDate point = %q, want %q", got, "a")
	}
	if got := FormatDate("a", "b"); got != "a to b" {
		t.Errorf("FormatDate range = %q, want %q", got, "a to b")
	}
}
