package expr

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Operator is a comparison understood by Compare.
type Operator string

const (
	OpEqual    Operator = "=="
	OpNotEqual Operator = "!="
	OpGreater  Operator = ">"
	OpLess     Operator = "<"
	OpContains Operator = "contains"
)

// Operators lists every supported operator.
var Operators = []Operator{OpEqual, OpNotEqual, OpGreater, OpLess, OpContains}

// Compare applies op to left and right. Values that both read as numbers are
// compared numerically, anything else is compared as text. A nil left side
// only equals a nil or empty right side. "contains" matches list elements and
// substrings of the textual form.
func Compare(left any, op Operator, right any) (bool, error) {
	switch op {
	case OpEqual:
		return looseEqual(left, right), nil
	case OpNotEqual:
		return !looseEqual(left, right), nil
	case OpGreater, OpLess:
		if left == nil || right == nil {
			return false, nil
		}
		c := order(left, right)
		if op == OpGreater {
			return c > 0, nil
		}
		return c < 0, nil
	case OpContains:
		return contains(left, right), nil
	default:
		return false, fmt.Errorf("unsupported operator %q", op)
	}
}

func looseEqual(left, right any) bool {
	if left == nil || right == nil {
		return isNilOrEmpty(left) && isNilOrEmpty(right)
	}
	if l, ok := AsNumber(left); ok {
		if r, ok := AsNumber(right); ok {
			return l == r
		}
	}
	return Stringify(left) == Stringify(right)
}

func isNilOrEmpty(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

func order(left, right any) int {
	if l, ok := AsNumber(left); ok {
		if r, ok := AsNumber(right); ok {
			switch {
			case l > r:
				return 1
			case l < r:
				return -1
			default:
				return 0
			}
		}
	}
	return strings.Compare(Stringify(left), Stringify(right))
}

func contains(left, right any) bool {
	if left == nil {
		return false
	}
	if items, ok := left.([]any); ok {
		for _, item := range items {
			if looseEqual(item, right) {
				return true
			}
		}
	}
	return strings.Contains(Stringify(left), Stringify(right))
}

// AsNumber reports the numeric reading of v. Strings count when they parse as
// a finite float after trimming; booleans do not.
func AsNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, !math.IsNaN(t)
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// Stringify formats a value as text. Whole floats print without a fraction,
// containers print as JSON and nil prints as the empty string.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float32:
		return formatFloat(float64(t))
	case float64:
		return formatFloat(t)
	case json.Number:
		return t.String()
	case fmt.Stringer:
		return t.String()
	case map[string]any, []any, map[string]string, []string:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	default:
		return fmt.Sprint(t)
	}
}

func formatFloat(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
