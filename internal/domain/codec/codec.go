// Package codec converts property values to and from their string attribute
// form.
//
// A property travels as an attribute string plus a type hint. The hint tells
// the receiving side how to restore the original value:
//
//	Hint      Encoded form          Decoded as
//	""        the string itself     string
//	boolean   "true" / "false"      bool
//	number    JS String(number)     float64 (NaN when malformed)
//	json      JSON text             map[string]any, []any, ... (raw string when malformed)
//
// Decoding never fails. Malformed input degrades to NaN or to the raw string.
package codec

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
)

// Hint names the original type of an encoded attribute value.
type Hint string

const (
	HintString  Hint = ""
	HintBoolean Hint = "boolean"
	HintNumber  Hint = "number"
	HintJSON    Hint = "json"
)

// HintAttributePrefix prefixes the companion attribute carrying a hint when
// a property is rendered as a plain HTML attribute.
const HintAttributePrefix = "data-type-"

// jsonAPI matches JSON.stringify closely enough: no HTML escaping. Map keys
// are sorted so encodings are stable.
var jsonAPI = sonic.Config{
	SortMapKeys: true,
}.Froze()

// ParseHint normalises a hint string. Unknown hints fall back to HintString.
func ParseHint(s string) Hint {
	switch Hint(s) {
	case HintBoolean, HintNumber, HintJSON:
		return Hint(s)
	default:
		return HintString
	}
}

// HintAttribute returns the companion attribute name for a property.
func HintAttribute(name string) string {
	return HintAttributePrefix + name
}

// Encode converts a value into its attribute string and hint.
func Encode(v any) (string, Hint) {
	switch val := v.(type) {
	case string:
		return val, HintString
	case bool:
		if val {
			return "true", HintBoolean
		}
		return "false", HintBoolean
	case nil:
		return "null", HintJSON
	}

	if f, ok := toFloat(v); ok {
		return FormatNumber(f), HintNumber
	}

	data, err := jsonAPI.Marshal(JSONValue(v))
	if err != nil {
		return fmt.Sprint(v), HintString
	}
	return string(data), HintJSON
}

// JSONValue replaces non-finite numbers with nil, as JSON.stringify writes
// them as null. Slices and maps of the decoded JSON shapes are walked; other
// values are returned unchanged.
func JSONValue(v any) any {
	switch val := v.(type) {
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return nil
		}
	case float32:
		if math.IsNaN(float64(val)) || math.IsInf(float64(val), 0) {
			return nil
		}
	case []any:
		if val == nil {
			return v
		}
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = JSONValue(item)
		}
		return out
	case map[string]any:
		if val == nil {
			return v
		}
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = JSONValue(item)
		}
		return out
	}
	return v
}

// Decode restores a value from its attribute string and hint.
func Decode(s string, h Hint) any {
	switch h {
	case HintBoolean:
		return s == "true"
	case HintNumber:
		return ParseNumber(s)
	case HintJSON:
		var out any
		if err := jsonAPI.Unmarshal([]byte(s), &out); err != nil {
			return s
		}
		return out
	default:
		return s
	}
}

// toFloat reports whether v is a Go numeric kind and returns it as float64.
func toFloat(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(rv.Uint()), true
	case reflect.Float32:
		// Go through the shortest decimal form so 0.1 stays 0.1
		f, _ := strconv.ParseFloat(strconv.FormatFloat(rv.Float(), 'g', -1, 32), 64)
		return f, true
	case reflect.Float64:
		return rv.Float(), true
	default:
		return 0, false
	}
}

// FormatNumber renders f the way JavaScript's String(number) does.
func FormatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	}

	abs := math.Abs(f)
	if abs >= 1e21 || abs < 1e-6 {
		s := strconv.FormatFloat(f, 'e', -1, 64)
		// Go pads the exponent to two digits ("1e-07"); JS does not.
		mantissa, exp, _ := strings.Cut(s, "e")
		sign := exp[:1]
		digits := strings.TrimLeft(exp[1:], "0")
		if digits == "" {
			digits = "0"
		}
		return mantissa + "e" + sign + digits
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// ParseNumber converts a string the way JavaScript's Number(string) does.
// Malformed input yields NaN.
func ParseNumber(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}

	switch s {
	case "Infinity", "+Infinity":
		return math.Inf(1)
	case "-Infinity":
		return math.Inf(-1)
	}

	if len(s) > 2 && s[0] == '0' {
		base := 0
		switch s[1] {
		case 'x', 'X':
			base = 16
		case 'o', 'O':
			base = 8
		case 'b', 'B':
			base = 2
		}
		if base != 0 {
			digits := s[2:]
			if strings.ContainsRune(digits, '_') {
				return math.NaN()
			}
			n, err := strconv.ParseUint(digits, base, 64)
			if errors.Is(err, strconv.ErrRange) {
				// Wider than 64 bits: round to the nearest float64 like JS
				wide, ok := new(big.Int).SetString(digits, base)
				if !ok {
					return math.NaN()
				}
				f, _ := new(big.Float).SetInt(wide).Float64()
				return f
			}
			if err != nil {
				return math.NaN()
			}
			return float64(n)
		}
	}

	// ParseFloat is more lenient than JS: it accepts "inf", "nan",
	// underscores and hex floats. Only plain decimal notation is allowed here.
	for _, r := range s {
		if !strings.ContainsRune("0123456789+-.eE", r) {
			return math.NaN()
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		// Out-of-range input saturates to ±Inf or 0, as in JS
		if errors.Is(err, strconv.ErrRange) {
			return f
		}
		return math.NaN()
	}
	return f
}
