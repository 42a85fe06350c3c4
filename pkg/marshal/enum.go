package marshal

import (
	"github.com/openfroyo/cedarbridge/pkg/foreign"
)

// EnumValue pairs a foreign constant name with its native value.
type EnumValue[T comparable] struct {
	Name  string
	Value T
}

// EnumTable is the closed set of names a foreign enum may take.
type EnumTable[T comparable] struct {
	enum   string
	values []EnumValue[T]
	byName map[string]T
	byVal  map[T]string
}

// NewEnumTable creates a table for the enum named enum. Values keep their order.
func NewEnumTable[T comparable](enum string, values ...EnumValue[T]) *EnumTable[T] {
	t := &EnumTable[T]{
		enum:   enum,
		values: values,
		byName: make(map[string]T, len(values)),
		byVal:  make(map[T]string, len(values)),
	}
	for _, v := range values {
		t.byName[v.Name] = v.Value
		t.byVal[v.Value] = v.Name
	}
	return t
}

// Enum returns the enum name used in errors.
func (t *EnumTable[T]) Enum() string {
	return t.enum
}

// Parse maps a constant name to its value.
func (t *EnumTable[T]) Parse(name string) (T, error) {
	v, ok := t.byName[name]
	if !ok {
		var zero T
		return zero, &UnknownEnumValueError{Enum: t.enum, Value: name}
	}
	return v, nil
}

// Name maps a value back to its constant name.
func (t *EnumTable[T]) Name(v T) (string, bool) {
	name, ok := t.byVal[v]
	return name, ok
}

// Names returns every constant name in declaration order.
func (t *EnumTable[T]) Names() []string {
	names := make([]string, len(t.values))
	for i, v := range t.values {
		names[i] = v.Name
	}
	return names
}

// Decode reads a foreign enum constant through its string form.
func (t *EnumTable[T]) Decode(ctx *Context, obj foreign.Object) (T, error) {
	name, err := ctx.ToString(obj)
	if err != nil {
		var zero T
		return zero, err
	}
	return t.Parse(name)
}

// DecodeField reads a required enum field.
func (t *EnumTable[T]) DecodeField(r *Reader, field, class string) (T, error) {
	obj, err := r.RequireObject(field, class)
	if err != nil {
		var zero T
		return zero, err
	}
	return t.Decode(r.ctx, obj)
}
