package domain

import (
	"math"
	"strconv"
	"strings"

	"github.com/gopcua/opcua/ua"
)

// ValueKind tells which payload a Value carries.
type ValueKind uint8

const (
	ValueEmpty ValueKind = iota
	// ValueVariant is an ordinary data payload as read from a server.
	ValueVariant
	// ValueQuality is a status code emitted as the value itself.
	ValueQuality
)

func (k ValueKind) String() string {
	switch k {
	case ValueVariant:
		return "variant"
	case ValueQuality:
		return "quality"
	default:
		return "empty"
	}
}

// Value keeps data payloads and quality-as-value payloads apart so a status
// code is never coerced into a number.
type Value struct {
	kind    ValueKind
	variant *ua.Variant
	quality ua.StatusCode
}

// VariantValue wraps a server variant. A nil variant yields an empty Value.
func VariantValue(v *ua.Variant) Value {
	if v == nil {
		return Value{}
	}
	return Value{kind: ValueVariant, variant: v}
}

// NumberValue wraps a float64 as a Double variant.
func NumberValue(f float64) Value {
	return Value{kind: ValueVariant, variant: ua.MustVariant(f)}
}

// QualityValue makes a status code the payload.
func QualityValue(code ua.StatusCode) Value {
	return Value{kind: ValueQuality, quality: code}
}

func (v Value) Kind() ValueKind { return v.kind }

func (v Value) IsEmpty() bool { return v.kind == ValueEmpty }

// Quality returns the status-code payload, if that is what v carries.
func (v Value) Quality() (ua.StatusCode, bool) {
	if v.kind != ValueQuality {
		return 0, false
	}
	return v.quality, true
}

// Variant renders the payload for the wire. Quality payloads become
// StatusCode variants; empty values return nil.
func (v Value) Variant() *ua.Variant {
	switch v.kind {
	case ValueVariant:
		return v.variant
	case ValueQuality:
		return ua.MustVariant(v.quality)
	default:
		return nil
	}
}

// Interface returns the underlying Go value, or nil when empty.
func (v Value) Interface() interface{} {
	switch v.kind {
	case ValueVariant:
		return v.variant.Value()
	case ValueQuality:
		return v.quality
	default:
		return nil
	}
}

// Float64 interprets a data payload as a real number. Quality payloads,
// non-numeric variants, NaN and infinities report false.
func (v Value) Float64() (float64, bool) {
	if v.kind != ValueVariant || v.variant == nil {
		return 0, false
	}
	f, ok := toFloat(v.variant.Value())
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func toFloat(raw interface{}) (float64, bool) {
	switch val := raw.(type) {
	case float32:
		return float64(val), true
	case float64:
		return val, true
	case int8:
		return float64(val), true
	case uint8:
		return float64(val), true
	case int16:
		return float64(val), true
	case uint16:
		return float64(val), true
	case int32:
		return float64(val), true
	case uint32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint64:
		return float64(val), true
	case bool:
		if val {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
