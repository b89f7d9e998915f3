package delta

import (
	"fmt"
	"strconv"
	"time"

	"github.com/openmined/tablesync/internal/model"
)

const (
	partitionDateLayout      = "2006-01-02"
	partitionTimestampLayout = "2006-01-02 15:04:05.999999999"
)

// PartitionFields returns one identity partition field per partition column,
// in the order the columns are declared.
func PartitionFields(schema *model.InternalSchema, partitionColumns []string) ([]*model.PartitionField, error) {
	fields := make([]*model.PartitionField, 0, len(partitionColumns))
	for _, col := range partitionColumns {
		f := schema.FindField(col)
		if f == nil {
			return nil, fmt.Errorf("%w: partition column %q is not in the schema", ErrInvalidSchema, col)
		}
		fields = append(fields, &model.PartitionField{SourceField: f, TransformType: model.PartitionTransformValue})
	}
	return fields, nil
}

// PartitionValues types the raw partition values of a file action by the
// partition columns' schema types. A missing or null value yields a nil range.
func PartitionValues(fields []*model.PartitionField, raw map[string]*string) ([]model.PartitionValue, error) {
	if len(fields) == 0 {
		return nil, nil
	}

	values := make([]model.PartitionValue, 0, len(fields))
	for _, pf := range fields {
		s := raw[pf.SourceField.Path()]
		if s == nil {
			values = append(values, model.PartitionValue{PartitionField: pf})
			continue
		}
		v, err := parsePartitionValue(pf.SourceField.Schema, *s)
		if err != nil {
			return nil, fmt.Errorf("partition %s: %w", pf.SourceField.Path(), err)
		}
		values = append(values, model.PartitionValue{PartitionField: pf, Range: model.ScalarRange(v)})
	}
	return values, nil
}

func parsePartitionValue(schema *model.InternalSchema, s string) (any, error) {
	if s == "" && schema.DataType != model.DataTypeString {
		return nil, nil
	}

	switch schema.DataType {
	case model.DataTypeString, model.DataTypeDecimal, model.DataTypeBytes:
		return s, nil
	case model.DataTypeInt, model.DataTypeLong:
		return strconv.ParseInt(s, 10, 64)
	case model.DataTypeFloat, model.DataTypeDouble:
		return strconv.ParseFloat(s, 64)
	case model.DataTypeBoolean:
		return strconv.ParseBool(s)
	case model.DataTypeDate:
		return time.Parse(partitionDateLayout, s)
	case model.DataTypeTimestamp, model.DataTypeTimestampNTZ:
		if t, err := time.Parse(partitionTimestampLayout, s); err == nil {
			return t, nil
		}
		return time.Parse(time.RFC3339Nano, s)
	}
	return nil, fmt.Errorf("unsupported partition type %s", schema.DataType)
}
