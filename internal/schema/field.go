package schema

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FieldType is the semantic type of a column.
type FieldType int

const (
	TypeText FieldType = iota
	TypeInteger
	TypeReal
	TypeBoolean
	TypeTimestamp
	TypeUUID
	TypeJSON
)

func (t FieldType) String() string {
	switch t {
	case TypeInteger:
		return "integer"
	case TypeReal:
		return "real"
	case TypeBoolean:
		return "boolean"
	case TypeTimestamp:
		return "timestamp"
	case TypeUUID:
		return "uuid"
	case TypeJSON:
		return "json"
	default:
		return "text"
	}
}

// Field describes one user column of a record type.
type Field struct {
	Name string
	Type FieldType

	// PrimaryKey marks the key column. Integer keys are generated by the
	// database; GenerateUUID keys are generated by the engine before
	// insert and bound like a create field.
	PrimaryKey   bool
	GenerateUUID bool

	Create     bool
	Update     bool
	ReadOnly   bool
	SoftDelete bool
	Nullable   bool
}

var (
	timeType      = reflect.TypeOf(time.Time{})
	timestampType = reflect.TypeOf(Timestamp{})
	uuidType      = reflect.TypeOf(uuid.UUID{})
	tagsType      = reflect.TypeOf(Tags{})
	metaType      = reflect.TypeOf(Meta{})
)

// parseFieldTag applies a `store:"..."` tag to f.
func parseFieldTag(f *Field, tag string) error {
	if tag == "" {
		return nil
	}
	for _, opt := range strings.Split(tag, ",") {
		switch strings.TrimSpace(opt) {
		case "pk":
			f.PrimaryKey = true
		case "uuid":
			f.GenerateUUID = true
		case "create":
			f.Create = true
		case "update":
			f.Update = true
		case "readonly":
			f.ReadOnly = true
		case "softdelete":
			f.SoftDelete = true
		case "nullable":
			f.Nullable = true
		case "":
		default:
			return fmt.Errorf("unknown store option %q", opt)
		}
	}
	return nil
}

// inferType maps a Go type onto a FieldType.
func inferType(t reflect.Type) FieldType {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t {
	case timeType, timestampType:
		return TypeTimestamp
	case uuidType:
		return TypeUUID
	case tagsType:
		return TypeJSON
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return TypeInteger
	case reflect.Float32, reflect.Float64:
		return TypeReal
	case reflect.Bool:
		return TypeBoolean
	case reflect.String:
		return TypeText
	case reflect.Slice, reflect.Map, reflect.Struct:
		return TypeJSON
	}
	return TypeText
}
