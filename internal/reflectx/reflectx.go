// Package reflectx holds the reflection helpers behind config:"" and resolve:"" struct
// field injection, and the naming of components in startup errors.
package reflectx

import (
	"fmt"
	"path"
	"reflect"
	"runtime"
	"strings"
)

// GetTypeName names t as "package.Type". Unnamed and built-in types use their Go
// syntax, e.g. "int" or "*initgate.server".
func GetTypeName(t reflect.Type) string {
	switch {
	case t.PkgPath() != "":
		return path.Base(t.PkgPath()) + "." + t.Name()
	case t.Name() != "":
		return t.Name()
	default:
		return t.String()
	}
}

// TypeNameOf names the dynamic type of v, e.g. "config.EnvVarProvider".
func TypeNameOf(v any) string {
	return fmt.Sprintf("%T", v)
}

// ComponentName describes a component for diagnostics: functions are named with their
// source location, everything else by its type name.
func ComponentName(component any) (name, fileLine string) {
	if component == nil {
		return "", ""
	}
	t := reflect.TypeOf(component)
	if t.Kind() == reflect.Func {
		return FunctionLocation(component)
	}
	return GetTypeName(t), ""
}

// FunctionLocation returns "package.Func" and "dir/file.go:line" for a function value.
func FunctionLocation(fn any) (name, fileLine string) {
	f := runtime.FuncForPC(reflect.ValueOf(fn).Pointer())
	if f == nil {
		return "unknown", ""
	}
	name = f.Name()
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	file, line := f.FileLine(f.Entry())
	dir, base := path.Split(file)
	return name, fmt.Sprintf("%s/%s:%d", path.Base(path.Clean(dir)), base, line)
}

// StructFieldIteratorFunc is called for each field of a struct. targetType is the
// pointer type being iterated.
type StructFieldIteratorFunc func(fieldValue reflect.Value, structField reflect.StructField, targetType reflect.Type) error

// IterateStructFields runs fns, in order, on every field of the struct target points to.
func IterateStructFields(target any, fns ...StructFieldIteratorFunc) error {
	v := reflect.ValueOf(target)
	if !IsPointerStruct(v) {
		return fmt.Errorf("target must be a struct pointer, got '%s'", TypeNameOf(target))
	}
	ptrType, elem := v.Type(), v.Elem()
	for i := range elem.NumField() {
		field, structField := elem.Field(i), elem.Type().Field(i)
		for _, fn := range fns {
			if err := fn(field, structField, ptrType); err != nil {
				return err
			}
		}
	}
	return nil
}

// SetFieldValue assigns value to field. Unexported fields cannot be set.
func SetFieldValue(field reflect.Value, structField reflect.StructField, value any) error {
	if !field.CanSet() {
		return fmt.Errorf("field '%s' is not settable", structField.Name)
	}
	field.Set(reflect.ValueOf(value))
	return nil
}

// IsPointerStruct reports whether v is a non-nil pointer to a struct.
func IsPointerStruct(v reflect.Value) bool {
	return v.Kind() == reflect.Pointer && !v.IsNil() && v.Elem().Kind() == reflect.Struct
}
