// pkg/extract/ordered.go
package extract

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/David-Botos/retail-ingress/pkg/model"
)

// orderedObject is a JSON object that remembers key order
type orderedObject struct {
	keys   []string
	values map[string]any
}

func newDecoder(r io.Reader) *json.Decoder {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	return dec
}

// decodeValue reads one JSON value, keeping object key order
func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			obj := &orderedObject{values: make(map[string]any)}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("unexpected object key %v", keyTok)
				}
				val, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				if _, seen := obj.values[key]; !seen {
					obj.keys = append(obj.keys, key)
				}
				obj.values[key] = val
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return obj, nil
		case '[':
			var arr []any
			for dec.More() {
				val, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				arr = append(arr, val)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return arr, nil
		}
		return nil, fmt.Errorf("unexpected delimiter %v", t)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, nil
		}
		f, err := t.Float64()
		if err != nil {
			return t.String(), nil
		}
		return f, nil
	default:
		// string, bool or nil
		return t, nil
	}
}

// cellValue flattens nested JSON into a table cell
func cellValue(v any) any {
	switch val := v.(type) {
	case *orderedObject:
		m := make(map[string]any, len(val.keys))
		for _, k := range val.keys {
			m[k] = plain(val.values[k])
		}
		b, _ := json.Marshal(m)
		return string(b)
	case []any:
		b, _ := json.Marshal(plain(val))
		return string(b)
	default:
		return val
	}
}

func plain(v any) any {
	switch val := v.(type) {
	case *orderedObject:
		m := make(map[string]any, len(val.keys))
		for _, k := range val.keys {
			m[k] = plain(val.values[k])
		}
		return m
	case []any:
		out := make([]any, len(val))
		for i, x := range val {
			out[i] = plain(x)
		}
		return out
	default:
		return val
	}
}

// recordsTable builds a table from a list of objects; columns are the union of keys in first-seen order
func recordsTable(name string, records []*orderedObject) *model.Table {
	var columns []string
	seen := make(map[string]bool)
	for _, rec := range records {
		for _, k := range rec.keys {
			if !seen[k] {
				seen[k] = true
				columns = append(columns, k)
			}
		}
	}

	table := model.NewTable(name, columns...)
	for _, rec := range records {
		row := make([]any, len(columns))
		for i, col := range columns {
			if v, ok := rec.values[col]; ok {
				row[i] = cellValue(v)
			}
		}
		table.Rows = append(table.Rows, row)
	}
	return table
}

// columnsTable builds a table from a column-oriented object: {"col": {"0": v, "1": v}}
func columnsTable(name string, obj *orderedObject) (*model.Table, error) {
	indexSet := make(map[string]bool)
	for _, col := range obj.keys {
		inner, ok := obj.values[col].(*orderedObject)
		if !ok {
			return nil, fmt.Errorf("column %q is not an object of row values", col)
		}
		for _, k := range inner.keys {
			indexSet[k] = true
		}
	}

	index := make([]string, 0, len(indexSet))
	for k := range indexSet {
		index = append(index, k)
	}
	sort.Slice(index, func(i, j int) bool {
		a, errA := strconv.Atoi(index[i])
		b, errB := strconv.Atoi(index[j])
		if errA == nil && errB == nil {
			return a < b
		}
		return index[i] < index[j]
	})

	table := model.NewTable(name, obj.keys...)
	for _, idx := range index {
		row := make([]any, len(obj.keys))
		for i, col := range obj.keys {
			inner := obj.values[col].(*orderedObject)
			if v, ok := inner.values[idx]; ok {
				row[i] = cellValue(v)
			}
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}
