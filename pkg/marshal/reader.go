package marshal

import (
	"github.com/openfroyo/cedarbridge/pkg/foreign"
	"github.com/openfroyo/cedarbridge/pkg/handles"
)

// Reader reads the fields of one foreign object through the cached getters of
// its class.
type Reader struct {
	ctx   *Context
	cache *handles.Cache
	class string
	obj   foreign.Object
}

// Read creates a Reader for obj, an instance of class whose getters are
// registered in cache. obj must not be null.
func (c *Context) Read(cache *handles.Cache, class string, obj foreign.Object) *Reader {
	return &Reader{ctx: c, cache: cache, class: class, obj: obj}
}

// Class returns the class the reader was created for.
func (r *Reader) Class() string {
	return r.class
}

func (r *Reader) getter(field, sig string) (foreign.MethodID, error) {
	return r.cache.LookupMethod(handles.MemberKey{Class: r.class, Name: GetterName(field), Sig: "()" + sig})
}

// OptString reads an optional string field.
func (r *Reader) OptString(field string) (*string, error) {
	method, err := r.getter(field, SigString)
	if err != nil {
		return nil, err
	}
	obj, err := r.ctx.env.CallObjectMethod(r.obj, method)
	if err != nil {
		return nil, err
	}
	return r.ctx.String(obj)
}

// String reads a required string field.
func (r *Reader) String(field string) (string, error) {
	s, err := r.OptString(field)
	if err != nil {
		return "", err
	}
	return Require(r.class, field, s)
}

// Bool reads a boolean field.
func (r *Reader) Bool(field string) (bool, error) {
	method, err := r.getter(field, SigBool)
	if err != nil {
		return false, err
	}
	return r.ctx.env.CallBooleanMethod(r.obj, method)
}

// Int reads a 32-bit integer field.
func (r *Reader) Int(field string) (int32, error) {
	method, err := r.getter(field, SigInt)
	if err != nil {
		return 0, err
	}
	return r.ctx.env.CallIntMethod(r.obj, method)
}

// Long reads a 64-bit integer field.
func (r *Reader) Long(field string) (int64, error) {
	method, err := r.getter(field, SigLong)
	if err != nil {
		return 0, err
	}
	return r.ctx.env.CallLongMethod(r.obj, method)
}

// OptLong reads an optional boxed java/lang/Long field.
func (r *Reader) OptLong(field string) (*int64, error) {
	obj, err := r.Object(field, ClassLong)
	if err != nil {
		return nil, err
	}
	return r.ctx.Unbox(obj)
}

// Object reads an object field of the given class. The result may be null.
func (r *Reader) Object(field, class string) (foreign.Object, error) {
	method, err := r.getter(field, Sig(class))
	if err != nil {
		return foreign.Object{}, err
	}
	return r.ctx.env.CallObjectMethod(r.obj, method)
}

// RequireObject reads an object field that must not be null.
func (r *Reader) RequireObject(field, class string) (foreign.Object, error) {
	obj, err := r.Object(field, class)
	if err != nil {
		return foreign.Object{}, err
	}
	if obj.IsNull() {
		return foreign.Object{}, &FieldCannotBeNullError{Class: r.class, Field: field}
	}
	return obj, nil
}

// List reads a java/util/List field. The result may be null.
func (r *Reader) List(field string) (foreign.Object, error) {
	return r.Object(field, ClassList)
}

// Strings reads a list of strings, skipping null elements.
func (r *Reader) Strings(field string) ([]string, error) {
	list, err := r.List(field)
	if err != nil {
		return nil, err
	}
	return r.ctx.Strings(list)
}

// Each walks a list field. A null list is empty; a null element is an error.
func (r *Reader) Each(field string, fn func(i int, elem foreign.Object) error) error {
	list, err := r.List(field)
	if err != nil {
		return err
	}
	return r.ctx.Each(list, r.class, field, fn)
}

// Call invokes an arbitrary cached method returning an object.
func (r *Reader) Call(name, sig string, args ...foreign.Value) (foreign.Object, error) {
	method, err := r.cache.LookupMethod(handles.MemberKey{Class: r.class, Name: name, Sig: sig})
	if err != nil {
		return foreign.Object{}, err
	}
	return r.ctx.env.CallObjectMethod(r.obj, method, args...)
}

// Require turns an absent value into FieldCannotBeNullError.
func Require[T any](class, field string, v *T) (T, error) {
	if v == nil {
		var zero T
		return zero, &FieldCannotBeNullError{Class: class, Field: field}
	}
	return *v, nil
}
