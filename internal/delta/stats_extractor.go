package delta

import (
	"fmt"

	"github.com/openmined/tablesync/internal/model"
)

// FileStats are the statistics recorded with an add action.
type FileStats struct {
	RecordCount int64
	Columns     []model.ColumnStat
}

type rawStats struct {
	NumRecords any            `json:"numRecords"`
	MinValues  map[string]any `json:"minValues"`
	MaxValues  map[string]any `json:"maxValues"`
	NullCount  map[string]any `json:"nullCount"`
}

type jsonNumber interface {
	Int64() (int64, error)
	Float64() (float64, error)
	String() string
}

// ParseStats reads the JSON stats string of an add action. Nested columns are
// matched by dotted path; columns without any statistic are left out. An
// empty string means the writer recorded no stats.
func ParseStats(stats string, schema *model.InternalSchema) (*FileStats, error) {
	if stats == "" {
		return &FileStats{}, nil
	}

	var raw rawStats
	if err := jsonUnmarshalNumbers([]byte(stats), &raw); err != nil {
		return nil, fmt.Errorf("parse stats: %w", err)
	}

	mins := flatten("", raw.MinValues, map[string]any{})
	maxs := flatten("", raw.MaxValues, map[string]any{})
	nulls := flatten("", raw.NullCount, map[string]any{})

	out := &FileStats{RecordCount: toInt64(raw.NumRecords)}
	for _, f := range schema.AllFields() {
		switch f.Schema.DataType {
		case model.DataTypeRecord, model.DataTypeList, model.DataTypeMap:
			continue
		}
		if f.ParentPath != "" && !underRecords(schema, f.ParentPath) {
			continue
		}

		path := f.Path()
		minV, hasMin := mins[path]
		maxV, hasMax := maxs[path]
		nullV, hasNull := nulls[path]
		if !hasMin && !hasMax && !hasNull {
			continue
		}
		out.Columns = append(out.Columns, model.ColumnStat{
			Field:     f,
			Range:     model.Range{Min: statValue(f.Schema, minV), Max: statValue(f.Schema, maxV)},
			NumNulls:  toInt64(nullV),
			NumValues: out.RecordCount,
		})
	}
	return out, nil
}

// underRecords reports whether every ancestor of a nested field is a struct;
// stats are never collected inside lists or maps.
func underRecords(schema *model.InternalSchema, parentPath string) bool {
	f := schema.FindField(parentPath)
	for f != nil {
		if f.Schema.DataType != model.DataTypeRecord {
			return false
		}
		if f.ParentPath == "" {
			return true
		}
		f = schema.FindField(f.ParentPath)
	}
	return false
}

func flatten(prefix string, in map[string]any, out map[string]any) map[string]any {
	for k, v := range in {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok {
			flatten(key, nested, out)
			continue
		}
		out[key] = v
	}
	return out
}

func statValue(schema *model.InternalSchema, v any) any {
	n, ok := v.(jsonNumber)
	if !ok {
		return v
	}
	switch schema.DataType {
	case model.DataTypeInt, model.DataTypeLong:
		if i, err := n.Int64(); err == nil {
			return i
		}
	case model.DataTypeFloat, model.DataTypeDouble:
		if f, err := n.Float64(); err == nil {
			return f
		}
	}
	return n.String()
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case jsonNumber:
		i, err := n.Int64()
		if err != nil {
			f, _ := n.Float64()
			return int64(f)
		}
		return i
	case float64:
		return int64(n)
	}
	return 0
}
