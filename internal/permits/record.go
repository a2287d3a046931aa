package permits

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Record is one permit in a public shape. Values are string, int64, float64
// or time.Time according to the field kind; nil marks an absent optional
// value.
type Record struct {
	fields *FieldSet
	values []any
}

// Fields returns the shape of the record.
func (r Record) Fields() *FieldSet { return r.fields }

// Get returns the value of the named public field. The boolean is false if
// the shape has no such field or r is the zero Record.
func (r Record) Get(name string) (any, bool) {
	if r.fields == nil {
		return nil, false
	}
	i, ok := r.fields.Lookup(name)
	if !ok {
		return nil, false
	}
	return r.values[i], true
}

// MarshalJSON satisfies [json.Marshaler]. Keys are emitted in field order.
func (r Record) MarshalJSON() ([]byte, error) {
	if r.fields == nil {
		return []byte("{}"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, field := range r.fields.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(field.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(r.values[i])
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", field.Name, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// timeLayouts are the textual timestamp forms accepted from drivers that do
// not hand back time.Time.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

// cell is a [sql.Scanner] that coerces a storage value to a field kind.
type cell struct {
	kind  Kind
	valid bool
	value any
}

// Scan satisfies [sql.Scanner].
func (c *cell) Scan(src any) error {
	c.valid, c.value = false, nil
	if src == nil {
		return nil
	}
	switch c.kind {
	case String:
		var v sql.NullString
		if err := v.Scan(src); err != nil {
			return err
		}
		c.value = v.String
	case Int:
		var v sql.NullInt64
		if err := v.Scan(src); err != nil {
			return err
		}
		c.value = v.Int64
	case Float:
		var v sql.NullFloat64
		if err := v.Scan(src); err != nil {
			return err
		}
		c.value = v.Float64
	case Time:
		t, err := parseTime(src)
		if err != nil {
			return err
		}
		c.value = t
	default:
		return fmt.Errorf("unsupported %v", c.kind)
	}
	c.valid = true
	return nil
}

func parseTime(src any) (time.Time, error) {
	var text string
	switch v := src.(type) {
	case time.Time:
		return v, nil
	case string:
		text = v
	case []byte:
		text = string(v)
	default:
		return time.Time{}, fmt.Errorf("cannot convert %T to time", src)
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", text)
}
