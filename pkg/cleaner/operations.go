// pkg/cleaner/operations.go
package cleaner

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// dateLayouts are tried in order when correcting date columns.
// Sources mix ISO dates with human-entered forms like "January 1951 27".
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"01-02-2006",
	"January 2006 02",
	"2006 January 02",
	"January 02 2006",
	"2 January 2006",
	"Jan 2, 2006",
}

var (
	errNil   = errors.New("nil value")
	errEmpty = errors.New("empty string")
)

// toString renders a cell as text; times use RFC 3339
func toString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return fmt.Sprint(val)
	}
}

// textOf returns the trimmed text of a string or []byte cell
func textOf(v any) (string, bool, error) {
	switch v.(type) {
	case string, []byte:
		s := strings.TrimSpace(toString(v))
		if s == "" {
			return "", true, errEmpty
		}
		return s, true, nil
	}
	return "", false, nil
}

// toInt converts a cell to int64. Fractional values are truncated.
func toInt(v any) (int64, error) {
	switch val := v.(type) {
	case nil:
		return 0, errNil
	case int:
		return int64(val), nil
	case int32:
		return int64(val), nil
	case int64:
		return val, nil
	}

	if s, ok, err := textOf(v); ok {
		if err != nil {
			return 0, err
		}
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, nil
		}
	}

	f, err := toFloat(v)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("cannot convert %v to int", f)
	}
	return int64(f), nil
}

// toFloat converts a cell to float64
func toFloat(v any) (float64, error) {
	switch val := v.(type) {
	case nil:
		return 0, errNil
	case int:
		return float64(val), nil
	case int32:
		return float64(val), nil
	case int64:
		return float64(val), nil
	case float32:
		return float64(val), nil
	case float64:
		return val, nil
	}

	s, ok, err := textOf(v)
	if !ok {
		return 0, fmt.Errorf("cannot convert %T to float", v)
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(s, 64)
}

// toTime converts a cell to time.Time using the first matching layout
func toTime(v any) (time.Time, error) {
	if t, ok := v.(time.Time); ok {
		return t, nil
	}
	if v == nil {
		return time.Time{}, errNil
	}

	s, ok, err := textOf(v)
	if !ok {
		return time.Time{}, fmt.Errorf("cannot convert %T to time", v)
	}
	if err != nil {
		return time.Time{}, err
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse time from %q", s)
}

// digitsOnly strips punctuation and whitespace from a number-like value.
// A value containing letters is not a number and yields false.
func digitsOnly(v any) (string, bool) {
	s := toString(v)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsLetter(r):
			return "", false
		}
	}
	return b.String(), b.Len() > 0
}

// keyOf renders a cell for duplicate detection
func keyOf(v any) string {
	return fmt.Sprintf("%T:%s", v, toString(v))
}
