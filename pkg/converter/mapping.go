// pkg/converter/mapping.go
package converter

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/David-Botos/retail-ingress/pkg/model"
)

// Patterns for type extraction
var (
	precisionScalePattern = regexp.MustCompile(`(?:NUMBER|NUMERIC|DECIMAL)\((\d+)(?:,\s*(\d+))?\)`)
)

// getBaseType extracts the base type from a complex type definition
func getBaseType(fullType string) string {
	parts := strings.Split(fullType, "(")
	return strings.TrimSpace(parts[0])
}

// SnowflakeKind maps a Snowflake column type to the kind its cells should hold.
// dbType may be a driver type name ("FIXED", "TEXT") or a declared type ("NUMBER(38,0)").
// scale is used when dbType carries none; pass -1 when unknown.
func SnowflakeKind(dbType string, scale int64) model.Kind {
	dbType = strings.ToUpper(strings.TrimSpace(dbType))

	switch getBaseType(dbType) {
	case "FIXED", "NUMBER", "NUMERIC", "DECIMAL":
		if s, ok := declaredScale(dbType); ok {
			scale = s
		}
		if scale == 0 {
			return model.KindInt
		}
		return model.KindFloat
	case "INT", "INTEGER", "BIGINT", "SMALLINT", "TINYINT", "BYTEINT":
		return model.KindInt
	case "REAL", "FLOAT", "FLOAT4", "FLOAT8", "DOUBLE", "DOUBLE PRECISION":
		return model.KindFloat
	case "BOOLEAN":
		return model.KindBool
	case "DATE", "TIMESTAMP", "TIMESTAMP_NTZ", "TIMESTAMP_TZ", "TIMESTAMP_LTZ", "DATETIME":
		return model.KindTime
	default:
		// TEXT, VARCHAR, VARIANT, OBJECT and ARRAY arrive as strings
		return model.KindString
	}
}

// declaredScale extracts the scale from NUMBER(p,s); NUMBER(p) has scale 0
func declaredScale(fullType string) (int64, bool) {
	matches := precisionScalePattern.FindStringSubmatch(fullType)
	if len(matches) < 2 {
		return 0, false
	}
	if len(matches) > 2 && matches[2] != "" {
		s, err := strconv.ParseInt(matches[2], 10, 64)
		if err != nil {
			return 0, false
		}
		return s, true
	}
	return 0, true
}

// NormalizeCell converts a driver value to the cell type for kind.
// Values that do not convert are kept as strings for the cleaner to handle.
func NormalizeCell(v any, kind model.Kind) any {
	if v == nil {
		return nil
	}
	if b, ok := v.([]byte); ok {
		v = string(b)
	}

	s, ok := v.(string)
	if !ok {
		return v
	}

	switch kind {
	case model.KindInt:
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i
		}
	case model.KindFloat:
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	case model.KindBool:
		if b, err := strconv.ParseBool(s); err == nil {
			return b
		}
	case model.KindTime:
		if format := DetectTimeFormat(s); format != "" {
			if t, err := time.Parse(format, s); err == nil {
				return t
			}
		}
	}
	return s
}

// DetectTimeFormat analyzes a value to determine its timestamp format
func DetectTimeFormat(value string) string {
	formats := []string{
		"2006-01-02T15:04:05Z",             // ISO8601 UTC
		"2006-01-02T15:04:05-07:00",        // ISO8601 with timezone
		"2006-01-02 15:04:05",              // SQL timestamp
		"2006-01-02 15:04:05.999999999",    // SQL timestamp with fraction
		"2006-01-02",                       // Date only
		"20060102T150405Z",                 // Compact ISO8601
		"2006-01-02T15:04:05.999999Z",      // ISO8601 with microseconds
		"2006-01-02T15:04:05.999999-07:00", // ISO8601 with microseconds and TZ
		time.RFC3339Nano,
	}

	for _, format := range formats {
		if _, err := time.Parse(format, value); err == nil {
			return format
		}
	}

	return ""
}
