package vm

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ValueKind tags the payload of a Value.
type ValueKind uint8

const (
	KindInt ValueKind = iota
	KindFloat
)

// String returns a human-readable name for ValueKind.
func (k ValueKind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	default:
		return fmt.Sprintf("ValueKind(%d)", k)
	}
}

// Value is a stack or variable value: either a 64-bit integer or a 64-bit
// float. The zero Value is Int(0).
type Value struct {
	kind ValueKind
	i    int64
	f    float64
}

// IntValue returns an integer Value.
func IntValue(i int64) Value {
	return Value{kind: KindInt, i: i}
}

// FloatValue returns a float Value.
func FloatValue(f float64) Value {
	return Value{kind: KindFloat, f: f}
}

// Kind returns the value's tag.
func (v Value) Kind() ValueKind { return v.kind }

// IsInt reports whether v holds an integer.
func (v Value) IsInt() bool { return v.kind == KindInt }

// IsFloat reports whether v holds a float.
func (v Value) IsFloat() bool { return v.kind == KindFloat }

// Int returns the integer payload. Only meaningful when IsInt.
func (v Value) Int() int64 { return v.i }

// Float returns the float payload. Only meaningful when IsFloat.
func (v Value) Float() float64 { return v.f }

// Number returns the payload widened to float64.
func (v Value) Number() float64 {
	if v.kind == KindInt {
		return float64(v.i)
	}
	return v.f
}

// String formats integers in decimal and floats in their shortest
// round-trip form without an exponent.
func (v Value) String() string {
	if v.kind == KindInt {
		return strconv.FormatInt(v.i, 10)
	}
	return formatFloat(v.f)
}

// GoString is used by %#v and by test failure messages.
func (v Value) GoString() string {
	if v.kind == KindInt {
		return fmt.Sprintf("Int(%d)", v.i)
	}
	return fmt.Sprintf("Float(%s)", formatFloat(v.f))
}

func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// truncate converts a float result back to an integer, saturating at the
// int64 range and mapping NaN to zero.
func truncate(f float64) int64 {
	switch {
	case math.IsNaN(f):
		return 0
	case f >= math.MaxInt64:
		return math.MaxInt64
	case f <= math.MinInt64:
		return math.MinInt64
	}
	return int64(f)
}

// IsIntegral reports whether a literal should be stored as an integer:
// finite with a zero fractional part.
func IsIntegral(f float64) bool {
	return !math.IsInf(f, 0) && !math.IsNaN(f) && math.Trunc(f) == f
}

// NumberValue returns the Value a numeric literal assembles to.
func NumberValue(f float64) Value {
	if IsIntegral(f) {
		return IntValue(truncate(f))
	}
	return FloatValue(f)
}

// ParseFloat parses a decimal floating-point literal. Out-of-range
// literals parse to ±Inf instead of failing. Go literal syntax that
// strconv would accept (digit underscores, hex mantissas) is rejected.
func ParseFloat(s string) (float64, error) {
	if strings.ContainsRune(s, '_') {
		return 0, fmt.Errorf("invalid number %q: digit separators are not allowed", s)
	}
	digits := strings.TrimLeft(s, "+-")
	if len(s)-len(digits) > 1 {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	if strings.HasPrefix(digits, "0x") || strings.HasPrefix(digits, "0X") {
		return 0, fmt.Errorf("invalid number %q: hexadecimal literals are not allowed", s)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			return f, nil
		}
		return 0, err
	}
	return f, nil
}
