package model

// FieldType names a Notion property type as it appears on the wire.
type FieldType string

const (
	FieldTitle          FieldType = "title"
	FieldRichText       FieldType = "rich_text"
	FieldNumber         FieldType = "number"
	FieldSelect         FieldType = "select"
	FieldMultiSelect    FieldType = "multi_select"
	FieldStatus         FieldType = "status"
	FieldDate           FieldType = "date"
	FieldPeople         FieldType = "people"
	FieldFiles          FieldType = "files"
	FieldCheckbox       FieldType = "checkbox"
	FieldURL            FieldType = "url"
	FieldEmail          FieldType = "email"
	FieldPhone          FieldType = "phone_number"
	FieldFormula        FieldType = "formula"
	FieldRelation       FieldType = "relation"
	FieldRollup         FieldType = "rollup"
	FieldCreatedTime    FieldType = "created_time"
	FieldLastEditedTime FieldType = "last_edited_time"
	FieldCreatedBy      FieldType = "created_by"
	FieldLastEditedBy   FieldType = "last_edited_by"
)

// Field is one typed property value of a Record. The set of implementations
// is closed: adding a Notion property type means adding a variant here and a
// case in the field mapper.
type Field interface {
	Type() FieldType
	isField()
}

// Ref is a reference to a person or a file: a display name and an id.
// Files carry no id; people may carry no name.
type Ref struct {
	ID   string
	Name string
}

// Label returns the display name, falling back to the id.
func (r Ref) Label() string {
	if r.Name != "" {
		return r.Name
	}
	return r.ID
}

// TitleField is the record's title property. Exactly one exists per database.
type TitleField struct{ Runs []string }

// RichTextField is a multi-run text property.
type RichTextField struct{ Runs []string }

// NumberField holds a number; nil when the cell is empty.
type NumberField struct{ Value *float64 }

// SelectField is a single choice; Name is empty when unset.
type SelectField struct{ Name string }

// StatusField is a status choice; Name is empty when unset.
type StatusField struct{ Name string }

// MultiSelectField holds the display names of every selected option.
type MultiSelectField struct{ Names []string }

// DateField is a point in time or a range. Start is empty when unset.
type DateField struct {
	Start string
	End   string
}

// PeopleField references workspace users.
type PeopleField struct{ People []Ref }

// FilesField references uploaded or external files.
type FilesField struct{ Files []Ref }

// CheckboxField holds a boolean; nil when absent from the payload.
type CheckboxField struct{ Value *bool }

// URLField holds a URL; nil when empty.
type URLField struct{ Value *string }

// EmailField holds an email address; nil when empty.
type EmailField struct{ Value *string }

// PhoneField holds a phone number; nil when empty.
type PhoneField struct{ Value *string }

// FormulaField carries the formula's computed result, already reduced to a
// string, float64, bool or nil.
type FormulaField struct{ Value any }

// RelationField lists the ids of related pages.
type RelationField struct{ IDs []string }

// RollupField is an aggregation. When IsArray is set, Count holds the number
// of aggregated items; otherwise Value holds the resolved scalar.
type RollupField struct {
	IsArray bool
	Count   int
	Value   any
}

// TimestampField is a created_time or last_edited_time property.
type TimestampField struct {
	Kind  FieldType
	Value *string
}

// ActorField is a created_by or last_edited_by property.
type ActorField struct {
	Kind  FieldType
	Actor *Ref
}

// UnknownField stands in for property types this build does not understand.
type UnknownField struct{ RawType string }

func (TitleField) Type() FieldType       { return FieldTitle }
func (RichTextField) Type() FieldType    { return FieldRichText }
func (NumberField) Type() FieldType      { return FieldNumber }
func (SelectField) Type() FieldType      { return FieldSelect }
func (StatusField) Type() FieldType      { return FieldStatus }
func (MultiSelectField) Type() FieldType { return FieldMultiSelect }
func (DateField) Type() FieldType        { return FieldDate }
func (PeopleField) Type() FieldType      { return FieldPeople }
func (FilesField) Type() FieldType       { return FieldFiles }
func (CheckboxField) Type() FieldType    { return FieldCheckbox }
func (URLField) Type() FieldType         { return FieldURL }
func (EmailField) Type() FieldType       { return FieldEmail }
func (PhoneField) Type() FieldType       { return FieldPhone }
func (FormulaField) Type() FieldType     { return FieldFormula }
func (RelationField) Type() FieldType    { return FieldRelation }
func (RollupField) Type() FieldType      { return FieldRollup }
func (f TimestampField) Type() FieldType { return f.Kind }
func (f ActorField) Type() FieldType     { return f.Kind }
func (f UnknownField) Type() FieldType   { return FieldType(f.RawType) }

func (TitleField) isField()       {}
func (RichTextField) isField()    {}
func (NumberField) isField()      {}
func (SelectField) isField()      {}
func (StatusField) isField()      {}
func (MultiSelectField) isField() {}
func (DateField) isField()        {}
func (PeopleField) isField()      {}
func (FilesField) isField()       {}
func (CheckboxField) isField()    {}
func (URLField) isField()         {}
func (EmailField) isField()       {}
func (PhoneField) isField()       {}
func (FormulaField) isField()     {}
func (RelationField) isField()    {}
func (RollupField) isField()      {}
func (TimestampField) isField()   {}
func (ActorField) isField()       {}
func (UnknownField) isField()     {}
