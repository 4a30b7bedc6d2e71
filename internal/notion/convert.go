package notion

import (
	"encoding/json"
	"strings"

	"github.com/njoerd114/notionrelay/internal/fieldmap"
	"github.com/njoerd114/notionrelay/internal/model"
)

type richText struct {
	PlainText string `json:"plain_text"`
}

type option struct {
	Name string `json:"name"`
}

type dateValue struct {
	Start string  `json:"start"`
	End   *string `json:"end"`
}

type userRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type fileRef struct {
	Name string `json:"name"`
}

type idRef struct {
	ID string `json:"id"`
}

type formulaValue struct {
	Type    string     `json:"type"`
	String  *string    `json:"string"`
	Number  *float64   `json:"number"`
	Boolean *bool      `json:"boolean"`
	Date    *dateValue `json:"date"`
}

type rollupValue struct {
	Type   string            `json:"type"`
	Number *float64          `json:"number"`
	Date   *dateValue        `json:"date"`
	Array  []json.RawMessage `json:"array"`
}

// rawProperty is a page property as Notion serialises it: a type tag plus a
// key of the same name holding the value.
type rawProperty struct {
	Type           string        `json:"type"`
	Title          []richText    `json:"title"`
	RichText       []richText    `json:"rich_text"`
	Number         *float64      `json:"number"`
	Select         *option       `json:"select"`
	Status         *option       `json:"status"`
	MultiSelect    []option      `json:"multi_select"`
	Date           *dateValue    `json:"date"`
	People         []userRef     `json:"people"`
	Files          []fileRef     `json:"files"`
	Checkbox       *bool         `json:"checkbox"`
	URL            *string       `json:"url"`
	Email          *string       `json:"email"`
	PhoneNumber    *string       `json:"phone_number"`
	Formula        *formulaValue `json:"formula"`
	Relation       []idRef       `json:"relation"`
	Rollup         *rollupValue  `json:"rollup"`
	CreatedTime    *string       `json:"created_time"`
	LastEditedTime *string       `json:"last_edited_time"`
	CreatedBy      *userRef      `json:"created_by"`
	LastEditedBy   *userRef      `json:"last_edited_by"`
}

type rawParent struct {
	Type       string `json:"type"`
	DatabaseID string `json:"database_id"`
}

type rawPage struct {
	ID         string                     `json:"id"`
	URL        string                     `json:"url"`
	Parent     rawParent                  `json:"parent"`
	Properties map[string]json.RawMessage `json:"properties"`
}

type rawDatabase struct {
	ID    string     `json:"id"`
	URL   string     `json:"url"`
	Title []richText `json:"title"`
}

func (r rawDatabase) toDatabase() Database {
	name := plainText(r.Title)
	if name == "" {
		name = fieldmap.UntitledContent
	}
	return Database{ID: r.ID, Name: name, URL: r.URL}
}

// toRecord converts a page into a Record. Properties that fail to decode are
// kept as UnknownField so the mapper omits them.
func (c *Client) toRecord(p *rawPage) *model.Record {
	rec := &model.Record{
		ID:     p.ID,
		URL:    p.URL,
		Fields: make(map[string]model.Field, len(p.Properties)),
	}
	if p.Parent.Type == "database_id" {
		rec.CollectionID = p.Parent.DatabaseID
	}
	for name, raw := range p.Properties {
		f, err := decodeField(raw)
		if err != nil {
			c.logger.Warn("failed to decode property", "record_id", p.ID, "field", name, "error", err)
			f = model.UnknownField{RawType: "invalid"}
		}
		rec.Fields[name] = f
	}
	return rec
}

// decodeField turns one raw property into its typed variant.
func decodeField(raw json.RawMessage) (model.Field, error) {
	var p rawProperty
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}

	switch model.FieldType(p.Type) {
	case model.FieldTitle:
		return model.TitleField{Runs: runs(p.Title)}, nil
	case model.FieldRichText:
		return model.RichTextField{Runs: runs(p.RichText)}, nil
	case model.FieldNumber:
		return model.NumberField{Value: p.Number}, nil
	case model.FieldSelect:
		return model.SelectField{Name: optionName(p.Select)}, nil
	case model.FieldStatus:
		return model.StatusField{Name: optionName(p.Status)}, nil
	case model.FieldMultiSelect:
		names := make([]string, 0, len(p.MultiSelect))
		for _, o := range p.MultiSelect {
			names = append(names, o.Name)
		}
		return model.MultiSelectField{Names: names}, nil
	case model.FieldDate:
		start, end := dateParts(p.Date)
		return model.DateField{Start: start, End: end}, nil
	case model.FieldPeople:
		refs := make([]model.Ref, 0, len(p.People))
		for _, u := range p.People {
			refs = append(refs, model.Ref{ID: u.ID, Name: u.Name})
		}
		return model.PeopleField{People: refs}, nil
	case model.FieldFiles:
		refs := make([]model.Ref, 0, len(p.Files))
		for _, f := range p.Files {
			refs = append(refs, model.Ref{Name: f.Name})
		}
		return model.FilesField{Files: refs}, nil
	case model.FieldCheckbox:
		return model.CheckboxField{Value: p.Checkbox}, nil
	case model.FieldURL:
		return model.URLField{Value: p.URL}, nil
	case model.FieldEmail:
		return model.EmailField{Value: p.Email}, nil
	case model.FieldPhone:
		return model.PhoneField{Value: p.PhoneNumber}, nil
	case model.FieldFormula:
		return model.FormulaField{Value: formulaResult(p.Formula)}, nil
	case model.FieldRelation:
		ids := make([]string, 0, len(p.Relation))
		for _, r := range p.Relation {
			ids = append(ids, r.ID)
		}
		return model.RelationField{IDs: ids}, nil
	case model.FieldRollup:
		return rollupField(p.Rollup), nil
	case model.FieldCreatedTime:
		return model.TimestampField{Kind: model.FieldCreatedTime, Value: p.CreatedTime}, nil
	case model.FieldLastEditedTime:
		return model.TimestampField{Kind: model.FieldLastEditedTime, Value: p.LastEditedTime}, nil
	case model.FieldCreatedBy:
		return model.ActorField{Kind: model.FieldCreatedBy, Actor: actor(p.CreatedBy)}, nil
	case model.FieldLastEditedBy:
		return model.ActorField{Kind: model.FieldLastEditedBy, Actor: actor(p.LastEditedBy)}, nil
	default:
		return model.UnknownField{RawType: p.Type}, nil
	}
}

func plainText(rt []richText) string {
	var b strings.Builder
	for _, t := range rt {
		b.WriteString(t.PlainText)
	}
	return b.String()
}

func runs(rt []richText) []string {
	out := make([]string, 0, len(rt))
	for _, t := range rt {
		out = append(out, t.PlainText)
	}
	return out
}

func optionName(o *option) string {
	if o == nil {
		return ""
	}
	return o.Name
}

func dateParts(d *dateValue) (start, end string) {
	if d == nil {
		return "", ""
	}
	if d.End != nil {
		end = *d.End
	}
	return d.Start, end
}

func actor(u *userRef) *model.Ref {
	if u == nil {
		return nil
	}
	return &model.Ref{ID: u.ID, Name: u.Name}
}

// formulaResult reduces a formula to the scalar its type tag points at.
func formulaResult(f *formulaValue) any {
	if f == nil {
		return nil
	}
	switch f.Type {
	case "string":
		if f.String != nil {
			return *f.String
		}
	case "number":
		if f.Number != nil {
			return *f.Number
		}
	case "boolean":
		if f.Boolean != nil {
			return *f.Boolean
		}
	case "date":
		if s := fieldmap.FormatDate(dateParts(f.Date)); s != "" {
			return s
		}
	}
	return nil
}

func rollupField(r *rollupValue) model.RollupField {
	if r == nil {
		return model.RollupField{}
	}
	switch r.Type {
	case "array":
		return model.RollupField{IsArray: true, Count: len(r.Array)}
	case "number":
		if r.Number != nil {
			return model.RollupField{Value: *r.Number}
		}
	case "date":
		if s := fieldmap.FormatDate(dateParts(r.Date)); s != "" {
			return model.RollupField{Value: s}
		}
	}
	return model.RollupField{}
}
