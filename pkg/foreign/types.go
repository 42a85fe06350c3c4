package foreign

import "fmt"

// Ref is the raw value of a foreign reference. Zero is the null reference.
type Ref uint64

// Object is an opaque reference to a foreign object instance.
// The zero Object is the foreign null.
type Object struct {
	ref Ref
}

// ObjectOf wraps a raw reference. It is meant for Env implementations.
func ObjectOf(ref Ref) Object {
	return Object{ref: ref}
}

// Null returns the foreign null reference.
func Null() Object {
	return Object{}
}

// IsNull reports whether the reference is the foreign null.
func (o Object) IsNull() bool {
	return o.ref == 0
}

// Ref returns the raw reference value.
func (o Object) Ref() Ref {
	return o.ref
}

// String implements fmt.Stringer.
func (o Object) String() string {
	if o.IsNull() {
		return "null"
	}
	return fmt.Sprintf("object#%d", o.ref)
}

// Class is a reference to a foreign class. Classes are objects in the foreign
// runtime, so a Class carries the same lifetime rules as an Object.
type Class struct {
	ref Ref
}

// ClassOf wraps a raw reference as a class reference.
func ClassOf(ref Ref) Class {
	return Class{ref: ref}
}

// IsNull reports whether the reference is null.
func (c Class) IsNull() bool {
	return c.ref == 0
}

// Object returns the class as a plain object reference.
func (c Class) Object() Object {
	return Object{ref: c.ref}
}

// MethodID identifies a resolved method or constructor. MethodIDs are not
// references: they stay valid as long as the class that declares them is loaded.
type MethodID struct {
	id uint64
}

// MethodIDOf wraps a raw method identifier.
func MethodIDOf(id uint64) MethodID {
	return MethodID{id: id}
}

// ID returns the raw identifier.
func (m MethodID) ID() uint64 {
	return m.id
}

// IsZero reports whether the identifier was never resolved.
func (m MethodID) IsZero() bool {
	return m.id == 0
}

// FieldID identifies a resolved static field.
type FieldID struct {
	id uint64
}

// FieldIDOf wraps a raw field identifier.
func FieldIDOf(id uint64) FieldID {
	return FieldID{id: id}
}

// ID returns the raw identifier.
func (f FieldID) ID() uint64 {
	return f.id
}

// IsZero reports whether the identifier was never resolved.
func (f FieldID) IsZero() bool {
	return f.id == 0
}

// Kind is the type tag of a Value.
type Kind uint8

const (
	// KindVoid is the result of a void method.
	KindVoid Kind = iota
	// KindBool is a foreign boolean (Z).
	KindBool
	// KindInt is a signed 32-bit integer (I).
	KindInt
	// KindLong is a signed 64-bit integer (J).
	KindLong
	// KindObject is an object reference (L...;).
	KindObject
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindVoid:
		return "void"
	case KindBool:
		return "boolean"
	case KindInt:
		return "int"
	case KindLong:
		return "long"
	case KindObject:
		return "object"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is an argument to, or the result of, a foreign method call.
type Value struct {
	kind Kind
	num  int64
	obj  Object
}

// Bool wraps a boolean argument.
func Bool(b bool) Value {
	v := Value{kind: KindBool}
	if b {
		v.num = 1
	}
	return v
}

// Int wraps a 32-bit integer argument.
func Int(i int32) Value { return Value{kind: KindInt, num: int64(i)} }

// Long wraps a 64-bit integer argument.
func Long(l int64) Value { return Value{kind: KindLong, num: l} }

// Obj wraps an object argument. A null Object is a valid argument.
func Obj(o Object) Value { return Value{kind: KindObject, obj: o} }

// Kind returns the type tag.
func (v Value) Kind() Kind { return v.kind }

// AsBool returns the boolean payload.
func (v Value) AsBool() bool { return v.num != 0 }

// AsInt returns the 32-bit payload.
func (v Value) AsInt() int32 { return int32(v.num) }

// AsLong returns the 64-bit payload.
func (v Value) AsLong() int64 { return v.num }

// AsObject returns the object payload.
func (v Value) AsObject() Object { return v.obj }
