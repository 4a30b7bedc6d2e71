// Package fieldmap converts typed Notion properties into the flat metadata
// map stored alongside each Supermemory document. It performs no I/O.
package fieldmap

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/njoerd114/notionrelay/internal/model"
)

// UntitledContent is used as document content when a record has no title.
const UntitledContent = "Untitled"

// listSeparator joins multi-valued properties.
const listSeparator = ", "

// Mapper converts record fields to metadata values. The zero value is not
// usable; create one with [NewMapper].
type Mapper struct {
	log *slog.Logger
}

// NewMapper creates a Mapper that reports skipped fields to logger.
func NewMapper(logger *slog.Logger) *Mapper {
	return &Mapper{log: logger}
}

// Map converts every field to a scalar or string. Fields that resolve to no
// value, fail to convert, or have an unknown type are omitted; the others
// are always converted.
func (m *Mapper) Map(fields map[string]model.Field) map[string]any {
	out := make(map[string]any, len(fields))
	for name, f := range fields {
		v, ok := m.convertSafe(name, f)
		if ok {
			out[name] = v
		}
	}
	return out
}

// Build splits fields into document content (the title text) and metadata
// (every other field, mapped).
func (m *Mapper) Build(fields map[string]model.Field) (content string, metadata map[string]any) {
	titleName, content := ExtractTitle(fields)

	rest := make(map[string]model.Field, len(fields))
	for name, f := range fields {
		if titleName != "" && name == titleName {
			continue
		}
		rest[name] = f
	}
	return content, m.Map(rest)
}

// ExtractTitle returns the name of the title property and its text. The
// title is found by type, not by name. text is never empty.
func ExtractTitle(fields map[string]model.Field) (name, text string) {
	for n, f := range fields {
		tf, ok := f.(model.TitleField)
		if !ok {
			continue
		}
		text = strings.Join(tf.Runs, "")
		if text == "" {
			text = UntitledContent
		}
		return n, text
	}
	return "", UntitledContent
}

// convertSafe wraps convert so a panicking conversion only loses one field.
func (m *Mapper) convertSafe(name string, f model.Field) (v any, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Warn("failed to map field", "field", name, "error", fmt.Sprint(r))
			v, ok = nil, false
		}
	}()

	if f == nil {
		return nil, false
	}
	v, ok = m.convert(name, f)
	if !ok {
		return nil, false
	}
	if s, isString := v.(string); isString && s == "" {
		return nil, false
	}
	return v, true
}

// convert maps one field. ok is false when the field should be omitted.
func (m *Mapper) convert(name string, f model.Field) (any, bool) {
	switch f := f.(type) {
	case model.TitleField:
		return joinRuns(f.Runs)
	case model.RichTextField:
		return joinRuns(f.Runs)
	case model.NumberField:
		if f.Value == nil {
			return nil, false
		}
		return *f.Value, true
	case model.SelectField:
		return f.Name, f.Name != ""
	case model.StatusField:
		return f.Name, f.Name != ""
	case model.MultiSelectField:
		return joinList(f.Names)
	case model.DateField:
		return formatDate(f.Start, f.End)
	case model.PeopleField:
		return joinRefs(f.People)
	case model.FilesField:
		return joinRefs(f.Files)
	case model.CheckboxField:
		if f.Value == nil {
			return nil, false
		}
		return *f.Value, true
	case model.URLField:
		return derefString(f.Value)
	case model.EmailField:
		return derefString(f.Value)
	case model.PhoneField:
		return derefString(f.Value)
	case model.FormulaField:
		return f.Value, f.Value != nil
	case model.RelationField:
		return joinList(f.IDs)
	case model.RollupField:
		if f.IsArray {
			return f.Count, true
		}
		return f.Value, f.Value != nil
	case model.TimestampField:
		return derefString(f.Value)
	case model.ActorField:
		if f.Actor == nil {
			return nil, false
		}
		label := f.Actor.Label()
		return label, label != ""
	case model.UnknownField:
		m.log.Warn("unsupported property type", "field", name, "type", f.RawType)
		return nil, false
	default:
		m.log.Warn("unsupported property type", "field", name, "type", f.Type())
		return nil, false
	}
}

// FormatDate renders a date value: the start alone, or "<start> to <end>"
// for ranges.
func FormatDate(start, end string) string {
	switch {
	case start == "":
		return ""
	case end != "":
		return start + " to " + end
	default:
		return start
	}
}

func formatDate(start, end string) (any, bool) {
	s := FormatDate(start, end)
	return s, s != ""
}

func joinRuns(runs []string) (any, bool) {
	s := strings.Join(runs, "")
	return s, s != ""
}

func joinList(items []string) (any, bool) {
	if len(items) == 0 {
		return nil, false
	}
	return strings.Join(items, listSeparator), true
}

func joinRefs(refs []model.Ref) (any, bool) {
	if len(refs) == 0 {
		return nil, false
	}
	labels := make([]string, 0, len(refs))
	for _, r := range refs {
		labels = append(labels, r.Label())
	}
	return strings.Join(labels, listSeparator), true
}

func derefString(p *string) (any, bool) {
	if p == nil || *p == "" {
		return nil, false
	}
	return *p, true
}
