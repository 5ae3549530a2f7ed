package value

import (
	"database/sql/driver"
	"fmt"
	"reflect"
	"time"
)

var valuerType = reflect.TypeOf((*driver.Valuer)(nil)).Elem()

// FromGo converts an arbitrary Go value into a Value.
//
// Scalars map onto their natural Value type, pointers are dereferenced
// (nil becomes Null), slices and arrays become Array, and maps keyed by
// string become Record. Non-slice types implementing driver.Valuer
// (uuid.UUID, sql.NullString, ...) are converted through their driver
// value. Anything else falls back to its fmt representation.
func FromGo(v any) Value {
	switch val := v.(type) {
	case nil:
		return Null{}
	case Value:
		return val
	case string:
		return Text(val)
	case []byte:
		return Text(string(val))
	case bool:
		return Bool(val)
	case int:
		return Int(val)
	case int8:
		return Int(val)
	case int16:
		return Int(val)
	case int32:
		return Int(val)
	case int64:
		return Int(val)
	case uint:
		return Int(val)
	case uint8:
		return Int(val)
	case uint16:
		return Int(val)
	case uint32:
		return Int(val)
	case uint64:
		return Int(val)
	case float32:
		return Float(val)
	case float64:
		return Float(val)
	case time.Time:
		return NewTime(val)
	case map[string]any:
		rec := make(Record, len(val))
		for k, e := range val {
			rec[k] = FromGo(e)
		}
		return rec
	case []any:
		arr := make(Array, len(val))
		for i, e := range val {
			arr[i] = FromGo(e)
		}
		return arr
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return Null{}
		}
		return FromGo(rv.Elem().Interface())
	}

	if rv.Kind() != reflect.Slice && rv.Type().Implements(valuerType) {
		dv, err := v.(driver.Valuer).Value()
		if err == nil {
			return FromGo(dv)
		}
	}

	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return Array{}
		}
		arr := make(Array, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			arr[i] = FromGo(rv.Index(i).Interface())
		}
		return arr
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		rec := make(Record, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			rec[iter.Key().String()] = FromGo(iter.Value().Interface())
		}
		return rec
	case reflect.String:
		return Text(rv.String())
	case reflect.Bool:
		return Bool(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return Int(int64(rv.Uint()))
	case reflect.Float32, reflect.Float64:
		return Float(rv.Float())
	}
	return Text(fmt.Sprint(v))
}

// ToGo converts a Value back into plain Go types: string, int64, float64,
// bool, time.Time, []any, map[string]any or nil.
func ToGo(v Value) any {
	switch val := v.(type) {
	case nil, Null:
		return nil
	case Text:
		return string(val)
	case Int:
		return int64(val)
	case Float:
		return float64(val)
	case Bool:
		return bool(val)
	case Time:
		return val.Time
	case Array:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = ToGo(e)
		}
		return out
	case Record:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = ToGo(e)
		}
		return out
	}
	return nil
}
