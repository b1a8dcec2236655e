package store

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"sqlbridge/internal/shared"
)

// ValueKind enumerates the closed set of kinds a Value can hold.
type ValueKind int

const (
	// KindNull is the SQL NULL value
	KindNull ValueKind = iota
	// KindInteger is a 64-bit signed integer
	KindInteger
	// KindFloat is a 64-bit floating-point number
	KindFloat
	// KindText is a UTF-8 string
	KindText
	// KindBlob is a binary blob
	KindBlob
)

// String returns the kind name.
func (k ValueKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindText:
		return "text"
	case KindBlob:
		return "blob"
	default:
		return "invalid"
	}
}

// Value is a tagged union over the engine's storage classes. It is used for
// both bound parameters and result cells; there is no implicit coercion
// between kinds.
type Value struct {
	kind ValueKind
	i    int64
	f    float64
	s    string
	b    []byte
}

// Null returns the NULL value.
func Null() Value { return Value{kind: KindNull} }

// Integer returns an integer value.
func Integer(i int64) Value { return Value{kind: KindInteger, i: i} }

// Float returns a floating-point value.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// Text returns a text value.
func Text(s string) Value { return Value{kind: KindText, s: s} }

// Blob returns a binary value.
func Blob(b []byte) Value { return Value{kind: KindBlob, b: b} }

// Kind returns the value's kind tag.
func (v Value) Kind() ValueKind { return v.kind }

// IsNull reports whether the value is NULL.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Int64 returns the integer payload; zero for other kinds.
func (v Value) Int64() int64 { return v.i }

// Float64 returns the floating-point payload; zero for other kinds.
func (v Value) Float64() float64 { return v.f }

// Text returns the text payload; empty for other kinds.
func (v Value) Text() string { return v.s }

// Bytes returns the blob payload; nil for other kinds.
func (v Value) Bytes() []byte { return v.b }

// String renders the value for logs and error messages.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "NULL"
	case KindInteger:
		return fmt.Sprintf("%d", v.i)
	case KindFloat:
		return fmt.Sprintf("%g", v.f)
	case KindText:
		return fmt.Sprintf("%q", v.s)
	case KindBlob:
		return fmt.Sprintf("blob(%d bytes)", len(v.b))
	default:
		return "invalid"
	}
}

// arg converts the value to a driver argument. Each kind maps to exactly one
// native representation; no cross-kind coercion happens here.
func (v Value) arg() any {
	switch v.kind {
	case KindInteger:
		return v.i
	case KindFloat:
		return v.f
	case KindText:
		return v.s
	case KindBlob:
		return v.b
	default:
		return nil
	}
}

// valueFromColumn converts a scanned database/sql column into a Value.
// The driver hands back nil, int64, float64, string, []byte or time.Time;
// anything else is rendered as text so a result cell is never lost.
func valueFromColumn(col any) Value {
	switch c := col.(type) {
	case nil:
		return Null()
	case int64:
		return Integer(c)
	case float64:
		return Float(c)
	case bool:
		if c {
			return Integer(1)
		}
		return Integer(0)
	case string:
		return Text(c)
	case []byte:
		// Copy: the driver may reuse the buffer between rows.
		b := make([]byte, len(c))
		copy(b, c)
		return Blob(b)
	case time.Time:
		return Text(c.Format(time.RFC3339Nano))
	default:
		return Text(fmt.Sprintf("%v", c))
	}
}

// MarshalJSON encodes the value the way the wire layer expects: NULL as
// null, numbers as numbers, text as a string and blobs as base64 strings.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindInteger:
		return json.Marshal(v.i)
	case KindFloat:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			return nil, shared.Wrapf(shared.ErrQuery, "cannot represent %g as JSON", v.f)
		}
		return json.Marshal(v.f)
	case KindText:
		return json.Marshal(v.s)
	case KindBlob:
		return json.Marshal(base64.StdEncoding.EncodeToString(v.b))
	default:
		return nil, fmt.Errorf("invalid value kind %d", v.kind)
	}
}

// UnmarshalJSON decodes a bound parameter. Booleans coerce to 0/1 the way
// the engine stores them; arrays and objects are rejected since the engine
// has no corresponding storage class.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}

	switch r := raw.(type) {
	case nil:
		*v = Null()
	case bool:
		if r {
			*v = Integer(1)
		} else {
			*v = Integer(0)
		}
	case json.Number:
		if i, err := r.Int64(); err == nil {
			*v = Integer(i)
			return nil
		}
		f, err := r.Float64()
		if err != nil {
			return shared.Wrapf(shared.ErrQuery, "unsupported number %q", r.String())
		}
		*v = Float(f)
	case string:
		*v = Text(r)
	default:
		return fmt.Errorf("JSON arrays and objects are not supported as parameters")
	}
	return nil
}

// Row is an ordered mapping from column name to Value, preserving the
// engine's column order.
type Row struct {
	Columns []string
	Values  []Value
}

// Get returns the value for the named column.
func (r Row) Get(column string) (Value, bool) {
	for i, c := range r.Columns {
		if c == column {
			return r.Values[i], true
		}
	}
	return Value{}, false
}

// MarshalJSON encodes the row as a JSON object whose keys appear in column
// order. encoding/json maps would sort keys, so the object is built by hand.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, col := range r.Columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(col)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(r.Values[i])
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// ExecResult reports the outcome of a mutating statement.
type ExecResult struct {
	RowsAffected int64 `json:"rowsAffected"`
	LastInsertID int64 `json:"lastInsertId"`
}
