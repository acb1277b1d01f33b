// pkg/converter/bigquery.go
package converter

import (
	"strconv"
	"time"

	"cloud.google.com/go/bigquery"

	"github.com/David-Botos/retail-ingress/pkg/model"
)

// MapKindToBigQuery returns the BigQuery field type for a column kind
func MapKindToBigQuery(kind model.Kind) bigquery.FieldType {
	switch kind {
	case model.KindInt:
		return bigquery.IntegerFieldType
	case model.KindFloat:
		return bigquery.FloatFieldType
	case model.KindBool:
		return bigquery.BooleanFieldType
	case model.KindTime:
		return bigquery.TimestampFieldType
	default:
		return bigquery.StringFieldType
	}
}

// BigQuerySchema builds a load schema for a cleaned table
func (c *TypeConverter) BigQuerySchema(t *model.Table) bigquery.Schema {
	meta := model.DescribeTable("", t)
	schema := make(bigquery.Schema, len(meta.Columns))
	for i, col := range meta.Columns {
		fieldType := MapKindToBigQuery(col.Kind)
		if col.Kind == model.KindTime && c.config.OptimizeStorage {
			values, _ := t.Values(col.Name)
			if allDates(values) {
				fieldType = bigquery.DateFieldType
			}
		}
		schema[i] = &bigquery.FieldSchema{
			Name:     col.Name,
			Type:     fieldType,
			Required: !col.Nullable,
		}
	}
	return schema
}

// FormatBigQueryCSV renders a cell for a CSV load job; missing values become empty fields
func FormatBigQueryCSV(v any, fieldType bigquery.FieldType) string {
	if model.IsMissing(v) {
		return ""
	}
	switch val := v.(type) {
	case time.Time:
		if fieldType == bigquery.DateFieldType {
			return val.Format("2006-01-02")
		}
		return val.UTC().Format("2006-01-02 15:04:05.999999")
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	default:
		return convertToText(val)
	}
}
