// Package permits serves rows of the V_RECORD view under a stable public
// schema.
//
// # Field catalog
//
// Every public field is declared once in a [FieldSet] as a (storage column,
// public name, kind, optionality) tuple. The same catalog renders the SELECT
// list and decodes result rows, so the two cannot drift apart. Storage columns
// ending in '#' are published with a _HASH suffix instead.
//
// # Profiles
//
// A [Profile] pairs a field set with an optional status predicate and row
// bounds. [FullProfile] serves every column with a caller-supplied limit;
// [NarrowProfile] serves a six-field subset of records in review.
package permits

import (
	"fmt"
	"strings"
)

// ViewName is the storage relation every profile reads from.
const ViewName = "V_RECORD"

// hashSuffix marks storage columns that are renamed on the way out.
const (
	hashSuffix       = "#"
	publicHashSuffix = "_HASH"
)

// Kind is the public type a storage value is coerced to.
type Kind uint8

// Supported kinds.
const (
	String Kind = iota + 1
	Int
	Float
	Time
)

// String satisfies [fmt.Stringer].
func (k Kind) String() string {
	switch k {
	case String:
		return "string"
	case Int:
		return "int"
	case Float:
		return "float"
	case Time:
		return "time"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Field maps one storage column to one public field.
type Field struct {
	// Column is the storage-side column name in [ViewName].
	Column string
	// Name is the public field name.
	Name string
	Kind Kind
	// Optional fields may be NULL in storage and are published as null.
	// Required fields found NULL are an integrity violation.
	Optional bool
}

func required(column string, kind Kind) Field {
	return Field{Column: column, Name: column, Kind: kind}
}

func optional(column string, kind Kind) Field {
	return Field{Column: column, Name: column, Kind: kind, Optional: true}
}

// hashed declares a field whose storage column is base+"#" and whose public
// name is base+"_HASH".
func hashed(base string, kind Kind, opt bool) Field {
	return Field{
		Column:   base + hashSuffix,
		Name:     base + publicHashSuffix,
		Kind:     kind,
		Optional: opt,
	}
}

// FieldSet is an ordered, validated collection of fields. The order defines
// both the SELECT list and the key order of serialized records.
type FieldSet struct {
	name   string
	fields []Field
	byName map[string]int
}

// NewFieldSet validates fields and returns them as a set. Public names and
// storage columns must each be unique, and '#'-suffixed columns must be
// published under the matching _HASH name.
func NewFieldSet(name string, fields ...Field) (*FieldSet, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("field set %q is empty", name)
	}
	set := &FieldSet{
		name:   name,
		fields: make([]Field, len(fields)),
		byName: make(map[string]int, len(fields)),
	}
	columns := make(map[string]struct{}, len(fields))
	for i, field := range fields {
		switch {
		case field.Column == "" || field.Name == "":
			return nil, fmt.Errorf("field set %q: field %d has an empty column or name", name, i)
		case field.Kind < String || field.Kind > Time:
			return nil, fmt.Errorf("field set %q: field %s has invalid %v", name, field.Name, field.Kind)
		}
		if base, ok := strings.CutSuffix(field.Column, hashSuffix); ok && field.Name != base+publicHashSuffix {
			return nil, fmt.Errorf("field set %q: column %s must be published as %s%s",
				name, field.Column, base, publicHashSuffix)
		}
		if _, dup := set.byName[field.Name]; dup {
			return nil, fmt.Errorf("field set %q: duplicate name %s", name, field.Name)
		}
		if _, dup := columns[field.Column]; dup {
			return nil, fmt.Errorf("field set %q: duplicate column %s", name, field.Column)
		}
		columns[field.Column] = struct{}{}
		set.byName[field.Name] = i
		set.fields[i] = field
	}
	return set, nil
}

// MustFieldSet is like [NewFieldSet] but panics on an invalid declaration.
func MustFieldSet(name string, fields ...Field) *FieldSet {
	set, err := NewFieldSet(name, fields...)
	if err != nil {
		panic(err)
	}
	return set
}

// Name identifies the set in logs.
func (s *FieldSet) Name() string { return s.name }

// Len returns the number of fields.
func (s *FieldSet) Len() int { return len(s.fields) }

// Field returns the i-th field.
func (s *FieldSet) Field(i int) Field { return s.fields[i] }

// Fields returns a copy of the ordered fields.
func (s *FieldSet) Fields() []Field {
	return append([]Field(nil), s.fields...)
}

// Lookup returns the position of the field with the given public name.
func (s *FieldSet) Lookup(name string) (int, bool) {
	i, ok := s.byName[name]
	return i, ok
}

// Full is the complete public shape of a permit record.
var Full = MustFieldSet("full",
	required("AGENCY_ID", String),
	optional("RECORD_ID", String),
	required("RECORD_MODULE", String),
	optional("RECORD_NAME", String),
	optional("RECORD_OPEN_DATE", Time),
	optional("RECORD_STATUS", String),
	optional("RECORD_STATUS_DATE", Time),
	optional("RECORD_TYPE", String),
	required("UPDATED_BY", String),
	optional("ACA_INITIATED", String),
	hashed("ADDR_FULL_LINE", String, true),
	hashed("ADDR_FULL_LINE1", String, true),
	optional("ASSIGNED_USERID", String),
	optional("BALANCE_DUE", Float),
	optional("BUILDING_COUNT", Int),
	optional("CLOSED_USERID", String),
	optional("COMPLETED_USERID", String),
	optional("CONST_TYPE_CODE", String),
	optional("DATE_ASSIGNED", Time),
	optional("DATE_CLOSED", Time),
	optional("DATE_COMPLETED", Time),
	optional("DATE_OPENED", Time),
	required("DATE_OPENED_ORIGINAL", Time),
	optional("DATE_STATUS", Time),
	optional("DATE_TRACK_START", Time),
	optional("DESCRIPTION", String),
	optional("HOUSING_UNITS", Int),
	optional("IN_POSSESSION_HRS", Float),
	optional("INSPECTOR_USERID", String),
	optional("JOB_VALUE", Float),
	optional("JOB_VALUE_CALCULATED", Float),
	optional("JOB_VALUE_CONTRACTOR", Float),
	optional("OFFICER_USERID", String),
	optional("OPENED_USERID", String),
	hashed("PARENT_RECORD_ID", String, true),
	optional("PERCENT_COMPLETE", Float),
	optional("PRIORITY", String),
	optional("PUBLIC_OWNED", String),
	optional("RECORD_AGE", Int),
	optional("RECORD_OPEN_HRS", Float),
	hashed("RECORD_TYPE_4LEVEL", String, false),
	required("RECORD_TYPE_CATEGORY", String),
	required("RECORD_TYPE_GROUP", String),
	required("RECORD_TYPE_SUBTYPE", String),
	required("RECORD_TYPE_TYPE", String),
	optional("REPORTED_CHANNEL", String),
	optional("SHORT_NOTES", String),
	optional("STATUS", String),
	optional("TOTAL_INVOICED", Float),
	optional("TOTAL_PAID", Float),
	optional("TRUST_ACCOUNT_BAL", Float),
	optional("TRUST_ACCOUNT_DESC", String),
	optional("TRUST_ACCOUNT_ID_PRI", String),
	optional("TRUST_ACCOUNT_STATUS", String),
	required("TEMPLATE_ID", String),
	required("T_ID1", String),
	required("T_ID2", String),
	required("T_ID3", String),
	hashed("STREET_NBR_ALPHA", String, true),
)

// Narrow is the stable six-field subset for simpler consumers.
var Narrow = MustFieldSet("narrow",
	required("RECORD_ID", String),
	required("RECORD_TYPE", String),
	required("RECORD_STATUS", String),
	required("RECORD_OPEN_DATE", Time),
	required("RECORD_AGE", Int),
	required("ASSIGNED_USERID", String),
)
