package delta

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/openmined/tablesync/internal/model"
)

var decimalPattern = regexp.MustCompile(`^decimal\(\s*(\d+)\s*,\s*(\d+)\s*\)$`)

var primitiveTypes = map[string]model.DataType{
	"string":        model.DataTypeString,
	"binary":        model.DataTypeBytes,
	"boolean":       model.DataTypeBoolean,
	"byte":          model.DataTypeInt,
	"short":         model.DataTypeInt,
	"integer":       model.DataTypeInt,
	"long":          model.DataTypeLong,
	"float":         model.DataTypeFloat,
	"double":        model.DataTypeDouble,
	"date":          model.DataTypeDate,
	"timestamp":     model.DataTypeTimestamp,
	"timestamp_ntz": model.DataTypeTimestampNTZ,
}

// ParseSchema converts the JSON schema string of a metadata action into the
// format-neutral schema. Column comments are read from field metadata.
func ParseSchema(schemaString string) (*model.InternalSchema, error) {
	if schemaString == "" {
		return nil, fmt.Errorf("%w: empty schema string", ErrInvalidSchema)
	}

	var root map[string]any
	if err := jsonUnmarshal([]byte(schemaString), &root); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSchema, err)
	}
	if root["type"] != "struct" {
		return nil, fmt.Errorf("%w: root type must be struct, got %v", ErrInvalidSchema, root["type"])
	}

	return convertType(root, "struct", "", false, "")
}

func convertType(typ any, name, path string, nullable bool, comment string) (*model.InternalSchema, error) {
	schema := &model.InternalSchema{Name: name, IsNullable: nullable, Comment: comment}

	switch t := typ.(type) {
	case string:
		if dt, ok := primitiveTypes[t]; ok {
			schema.DataType = dt
			return schema, nil
		}
		if m := decimalPattern.FindStringSubmatch(t); m != nil {
			schema.DataType = model.DataTypeDecimal
			schema.Precision, _ = strconv.Atoi(m[1])
			schema.Scale, _ = strconv.Atoi(m[2])
			return schema, nil
		}
		return nil, fmt.Errorf("%w: unknown type %q at %q", ErrInvalidSchema, t, path)

	case map[string]any:
		switch t["type"] {
		case "struct":
			schema.DataType = model.DataTypeRecord
			fields, _ := t["fields"].([]any)
			for _, raw := range fields {
				f, ok := raw.(map[string]any)
				if !ok {
					return nil, fmt.Errorf("%w: malformed field at %q", ErrInvalidSchema, path)
				}
				field, err := convertField(f, path)
				if err != nil {
					return nil, err
				}
				schema.Fields = append(schema.Fields, field)
			}
			return schema, nil

		case "array":
			schema.DataType = model.DataTypeList
			containsNull, _ := t["containsNull"].(bool)
			elem, err := childField("element", t["elementType"], path, containsNull)
			if err != nil {
				return nil, err
			}
			schema.Fields = []*model.InternalField{elem}
			return schema, nil

		case "map":
			schema.DataType = model.DataTypeMap
			key, err := childField("key", t["keyType"], path, false)
			if err != nil {
				return nil, err
			}
			valueContainsNull, _ := t["valueContainsNull"].(bool)
			value, err := childField("value", t["valueType"], path, valueContainsNull)
			if err != nil {
				return nil, err
			}
			schema.Fields = []*model.InternalField{key, value}
			return schema, nil
		}
		return nil, fmt.Errorf("%w: unknown complex type %v at %q", ErrInvalidSchema, t["type"], path)
	}

	return nil, fmt.Errorf("%w: unexpected type %T at %q", ErrInvalidSchema, typ, path)
}

func convertField(f map[string]any, parentPath string) (*model.InternalField, error) {
	name, _ := f["name"].(string)
	if name == "" {
		return nil, fmt.Errorf("%w: field without name under %q", ErrInvalidSchema, parentPath)
	}
	nullable, _ := f["nullable"].(bool)

	var comment string
	if meta, ok := f["metadata"].(map[string]any); ok {
		comment, _ = meta["comment"].(string)
	}

	field := &model.InternalField{Name: name, ParentPath: parentPath}
	schema, err := convertType(f["type"], name, field.Path(), nullable, comment)
	if err != nil {
		return nil, err
	}
	field.Schema = schema
	return field, nil
}

func childField(name string, typ any, parentPath string, nullable bool) (*model.InternalField, error) {
	field := &model.InternalField{Name: name, ParentPath: parentPath}
	schema, err := convertType(typ, name, field.Path(), nullable, "")
	if err != nil {
		return nil, err
	}
	field.Schema = schema
	return field, nil
}
