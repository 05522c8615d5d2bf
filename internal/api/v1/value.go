package v1

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DataType is the abstract field type exposed by the catalog.
// Engine-native types are collapsed into these four on the way in.
type DataType string

const (
	DataTypeString  DataType = "string"
	DataTypeNumber  DataType = "number"
	DataTypeDate    DataType = "date"
	DataTypeBoolean DataType = "boolean"
)

// ValueKind tags the variant carried by a Value.
type ValueKind string

const (
	KindNull    ValueKind = "null"
	KindString  ValueKind = "string"
	KindNumber  ValueKind = "number"
	KindDate    ValueKind = "date"
	KindBoolean ValueKind = "boolean"
)

// Value is the tagged union carried from filter input through cell output.
// Exactly one variant is meaningful, selected by Kind.
type Value struct {
	Kind ValueKind
	Str  string
	Num  decimal.Decimal
	Time time.Time
	Bool bool
}

func Null() Value                     { return Value{Kind: KindNull} }
func String(s string) Value           { return Value{Kind: KindString, Str: s} }
func Number(d decimal.Decimal) Value  { return Value{Kind: KindNumber, Num: d} }
func NumberFromInt(n int64) Value     { return Number(decimal.NewFromInt(n)) }
func Date(t time.Time) Value          { return Value{Kind: KindDate, Time: t.UTC()} }
func Boolean(b bool) Value            { return Value{Kind: KindBoolean, Bool: b} }

// IsNull reports whether the value carries no data.
func (v Value) IsNull() bool {
	return v.Kind == KindNull || v.Kind == ""
}

// AsDecimal returns the numeric variant, if present.
func (v Value) AsDecimal() (decimal.Decimal, bool) {
	if v.Kind == KindNumber {
		return v.Num, true
	}
	return decimal.Decimal{}, false
}

// Arg converts the value into a driver-friendly bind argument.
func (v Value) Arg() interface{} {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		return v.Num
	case KindDate:
		return v.Time
	case KindBoolean:
		return v.Bool
	default:
		return nil
	}
}

// MarshalJSON renders the value as the natural JSON scalar.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindString:
		return jsonString(v.Str), nil
	case KindNumber:
		return []byte(v.Num.String()), nil
	case KindDate:
		return jsonString(v.Time.Format(time.RFC3339)), nil
	case KindBoolean:
		if v.Bool {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON infers the variant from the JSON scalar type.
// Dates arrive as strings; the caller decides date semantics via the
// field's declared DataType.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty value")
	}

	switch {
	case bytes.Equal(data, []byte("null")):
		*v = Null()
		return nil
	case bytes.Equal(data, []byte("true")):
		*v = Boolean(true)
		return nil
	case bytes.Equal(data, []byte("false")):
		*v = Boolean(false)
		return nil
	case data[0] == '"':
		s, err := unquoteJSON(data)
		if err != nil {
			return err
		}
		*v = String(s)
		return nil
	default:
		d, err := decimal.NewFromString(string(data))
		if err != nil {
			return fmt.Errorf("invalid scalar value %s: %w", data, err)
		}
		*v = Number(d)
		return nil
	}
}

func jsonString(s string) []byte {
	b, _ := json.Marshal(s)
	return b
}

func unquoteJSON(data []byte) (string, error) {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return "", fmt.Errorf("invalid string value: %w", err)
	}
	return s, nil
}

// DataTypeForEngineType maps an engine-native column type name to the
// abstract DataType. Unrecognized types default to string.
func DataTypeForEngineType(engineType string) DataType {
	t := strings.ToUpper(engineType)

	switch {
	case strings.Contains(t, "INT"),
		strings.Contains(t, "DECIMAL"),
		strings.Contains(t, "NUMERIC"),
		strings.Contains(t, "FLOAT"),
		strings.Contains(t, "DOUBLE"),
		strings.Contains(t, "REAL"):
		return DataTypeNumber
	case strings.Contains(t, "DATE"), strings.Contains(t, "TIME"):
		return DataTypeDate
	case strings.Contains(t, "BOOL"):
		return DataTypeBoolean
	default:
		return DataTypeString
	}
}
