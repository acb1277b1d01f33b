// pkg/converter/values.go
package converter

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/David-Botos/retail-ingress/pkg/model"
)

// pgClass groups PostgreSQL column types that share a Go representation
type pgClass int

const (
	classUnknown pgClass = iota
	classText
	classUUID
	classInteger
	classNumeric
	classBoolean
	classTemporal
)

func classify(pgType string) pgClass {
	t := strings.ToLower(pgType)
	switch {
	case isTextType(t):
		return classText
	case t == "uuid":
		return classUUID
	case t == "bigint" || t == "integer" || t == "smallint":
		return classInteger
	case t == "double precision" || t == "real" ||
		strings.HasPrefix(t, "numeric") || strings.HasPrefix(t, "decimal"):
		return classNumeric
	case t == "boolean":
		return classBoolean
	case t == "date" || strings.Contains(t, "timestamp"):
		return classTemporal
	}
	return classUnknown
}

var cellConverters = map[pgClass]func(any) (any, error){
	classUUID:     toUUID,
	classInteger:  toBigint,
	classNumeric:  toDouble,
	classBoolean:  toBoolean,
	classTemporal: toTimestamp,
}

// ConvertValueForPostgres converts a cleaned cell to the Go value pgx binds for targetType.
// Missing cells become NULL, except empty strings in text columns when EmptyStringAsNull is off.
func (c *TypeConverter) ConvertValueForPostgres(value any, targetType string, colName string) (any, error) {
	class := classify(targetType)
	if model.IsMissing(value) {
		if s, ok := value.(string); ok && s == "" && class == classText && !c.config.EmptyStringAsNull {
			return "", nil
		}
		return nil, nil
	}

	if conv, ok := cellConverters[class]; ok {
		return conv(value)
	}
	if class == classUnknown {
		c.logger.Debug("Unknown target type, storing as text",
			zap.String("column", colName), zap.String("type", targetType))
	}
	return convertToText(value), nil
}

// convertToText renders a cell the way it is written to text columns and CSV loads
func convertToText(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case time.Time:
		return v.Format(time.RFC3339)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return fmt.Sprint(value)
}

func toUUID(value any) (any, error) {
	s := strings.TrimSpace(convertToText(value))
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("cannot convert %q to uuid: %w", s, err)
	}
	return id.String(), nil
}

// number reads numeric cells and numeric strings as float64.
// ints reports whether the cell was already integral.
func number(value any) (f float64, ints bool, err error) {
	switch v := value.(type) {
	case int:
		return float64(v), true, nil
	case int32:
		return float64(v), true, nil
	case int64:
		return float64(v), true, nil
	case float32:
		return float64(v), false, nil
	case float64:
		return v, false, nil
	case string:
		s := strings.TrimSpace(v)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return float64(i), true, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false, fmt.Errorf("cannot convert string %q to a number", v)
		}
		return f, false, nil
	}
	return 0, false, fmt.Errorf("cannot convert %T to a number", value)
}

func toBigint(value any) (any, error) {
	switch v := value.(type) {
	case int64:
		return v, nil
	case bool:
		if v {
			return int64(1), nil
		}
		return int64(0), nil
	case string:
		if i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return i, nil
		}
	}

	f, ints, err := number(value)
	if err != nil {
		return nil, err
	}
	if !ints && (math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f)) {
		return nil, fmt.Errorf("cannot convert %v to integer", value)
	}
	return int64(f), nil
}

func toDouble(value any) (any, error) {
	f, _, err := number(value)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func toBoolean(value any) (any, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "t", "yes", "y", "1", "on":
			return true, nil
		case "false", "f", "no", "n", "0", "off":
			return false, nil
		}
		return nil, fmt.Errorf("cannot convert string %q to boolean", v)
	}
	f, ints, err := number(value)
	if err != nil || !ints {
		return nil, fmt.Errorf("cannot convert %T to boolean", value)
	}
	return f != 0, nil
}

func toTimestamp(value any) (any, error) {
	switch v := value.(type) {
	case time.Time:
		return v, nil
	case string:
		if layout := DetectTimeFormat(v); layout != "" {
			if parsed, err := time.Parse(layout, v); err == nil {
				return parsed, nil
			}
		}
		return nil, fmt.Errorf("cannot parse %q as timestamp", v)
	}
	return nil, fmt.Errorf("cannot convert %T to timestamp", value)
}
