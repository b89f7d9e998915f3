package model

import "strings"

type DataType string

const (
	DataTypeRecord       DataType = "RECORD"
	DataTypeList         DataType = "LIST"
	DataTypeMap          DataType = "MAP"
	DataTypeString       DataType = "STRING"
	DataTypeBytes        DataType = "BYTES"
	DataTypeBoolean      DataType = "BOOLEAN"
	DataTypeInt          DataType = "INT"
	DataTypeLong         DataType = "LONG"
	DataTypeFloat        DataType = "FLOAT"
	DataTypeDouble       DataType = "DOUBLE"
	DataTypeDecimal      DataType = "DECIMAL"
	DataTypeDate         DataType = "DATE"
	DataTypeTimestamp    DataType = "TIMESTAMP"
	DataTypeTimestampNTZ DataType = "TIMESTAMP_NTZ"
)

// InternalSchema is a recursive schema node. Records carry Fields, lists carry
// a single "element" field and maps carry "key" and "value" fields.
type InternalSchema struct {
	Name       string
	DataType   DataType
	IsNullable bool
	Comment    string
	Fields     []*InternalField
	Precision  int
	Scale      int
}

type InternalField struct {
	Name       string
	ParentPath string
	Schema     *InternalSchema
}

// Path returns the dotted path of the field from the schema root.
func (f *InternalField) Path() string {
	if f.ParentPath == "" {
		return f.Name
	}
	return f.ParentPath + "." + f.Name
}

// FindField looks up a field by its dotted path.
func (s *InternalSchema) FindField(path string) *InternalField {
	if s == nil {
		return nil
	}
	name, rest, nested := strings.Cut(path, ".")
	for _, f := range s.Fields {
		if f.Name != name {
			continue
		}
		if !nested {
			return f
		}
		return f.Schema.FindField(rest)
	}
	return nil
}

// AllFields walks the schema depth first and returns every field, nested ones included.
func (s *InternalSchema) AllFields() []*InternalField {
	if s == nil {
		return nil
	}
	var out []*InternalField
	for _, f := range s.Fields {
		out = append(out, f)
		out = append(out, f.Schema.AllFields()...)
	}
	return out
}

type PartitionTransformType string

const (
	// PartitionTransformValue partitions by the raw column value.
	PartitionTransformValue PartitionTransformType = "VALUE"
)

type PartitionField struct {
	SourceField   *InternalField
	TransformType PartitionTransformType
}
