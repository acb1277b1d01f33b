// pkg/quantity/quantity.go

// Package quantity converts free-text product weights into kilograms.
//
// Substring checks overlap ("kg" contains "g", "ml" contains "l"), so the
// order of the unit rules is fixed and must not change: previously loaded
// product data was normalized with exactly this order.
package quantity

import (
	"strconv"
	"strings"
)

// unitSuffixes are removed from the per-item side of a multipack, longest first
var unitSuffixes = []string{"kg", "ml", "g", "l"}

// ParseKilograms parses a weight such as "0.5kg", "250ml" or "12 x 100g".
// The second result is false when the string cannot be interpreted.
func ParseKilograms(raw string) (float64, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return 0, false
	}

	// A multipack can never satisfy a unit rule ("12 x 100" is not a number),
	// so route it before them.
	if isMultipack(s) {
		return parseMultipack(s)
	}

	switch {
	case strings.Contains(s, "kg"):
		return parseAmount(strings.ReplaceAll(s, "kg", ""), 1)
	case strings.Contains(s, "g"):
		return parseAmount(strings.ReplaceAll(s, "g", ""), 1000)
	case strings.Contains(s, "ml"):
		return parseAmount(strings.ReplaceAll(s, "ml", ""), 1000)
	case strings.Contains(s, "l"):
		return parseAmount(strings.ReplaceAll(s, "l", ""), 1)
	case strings.Contains(s, "x"):
		return parseMultipack(s)
	default:
		return 0, false
	}
}

// Kilograms adapts a table cell: numbers are already kilograms, strings are parsed
func Kilograms(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int64:
		return float64(val), true
	case int:
		return float64(val), true
	case string:
		return ParseKilograms(val)
	case []byte:
		return ParseKilograms(string(val))
	default:
		return 0, false
	}
}

func parseAmount(s string, divisor float64) (float64, bool) {
	value, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return value / divisor, true
}

// isMultipack reports whether s looks like "<count> x <size>"
func isMultipack(s string) bool {
	parts := strings.Split(s, "x")
	if len(parts) != 2 {
		return false
	}
	_, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	return err == nil
}

// parseMultipack multiplies count by per-item size.
// A total of 1000 or more without a gram or millilitre marker is read as kilograms;
// this is lossy near the 1000 g boundary.
func parseMultipack(s string) (float64, bool) {
	parts := strings.Split(s, "x")
	if len(parts) != 2 {
		return 0, false
	}

	count, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, false
	}

	per := parts[1]
	for _, unit := range unitSuffixes {
		per = strings.ReplaceAll(per, unit, "")
	}
	size, err := strconv.ParseFloat(strings.TrimSpace(per), 64)
	if err != nil {
		return 0, false
	}

	total := count * size
	if strings.Contains(s, "kg") {
		return total, true
	}
	if total >= 1000 && !strings.Contains(s, "g") && !strings.Contains(s, "ml") {
		return total, true
	}
	return total / 1000, true
}
