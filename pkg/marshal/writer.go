package marshal

import (
	"github.com/openfroyo/cedarbridge/pkg/foreign"
	"github.com/openfroyo/cedarbridge/pkg/handles"
)

// Writer builds and populates foreign objects of one class through cached
// constructors and setters.
type Writer struct {
	ctx   *Context
	cache *handles.Cache
	class string
	obj   foreign.Object
}

// New constructs an instance of class with the cached constructor ctorSig.
func (c *Context) New(cache *handles.Cache, class, ctorSig string, args ...foreign.Value) (*Writer, error) {
	cls, err := cache.LookupClass(c.env, class)
	if err != nil {
		return nil, err
	}
	ctor, err := cache.LookupMethod(handles.MemberKey{Class: class, Name: "<init>", Sig: ctorSig})
	if err != nil {
		return nil, err
	}
	obj, err := c.env.NewObject(cls, ctor, args...)
	if err != nil {
		return nil, err
	}
	return &Writer{ctx: c, cache: cache, class: class, obj: obj}, nil
}

// StaticObject reads a cached static object field, e.g. an enum constant.
func (c *Context) StaticObject(cache *handles.Cache, class, field, sig string) (foreign.Object, error) {
	cls, err := cache.LookupClass(c.env, class)
	if err != nil {
		return foreign.Object{}, err
	}
	fid, err := cache.LookupStaticField(handles.MemberKey{Class: class, Name: field, Sig: sig})
	if err != nil {
		return foreign.Object{}, err
	}
	return c.env.GetStaticObjectField(cls, fid)
}

// Object returns the constructed object.
func (w *Writer) Object() foreign.Object {
	return w.obj
}

// Call invokes a cached void method, typically a setter or an adder.
func (w *Writer) Call(name, sig string, args ...foreign.Value) error {
	method, err := w.cache.LookupMethod(handles.MemberKey{Class: w.class, Name: name, Sig: sig})
	if err != nil {
		return err
	}
	return w.ctx.env.CallVoidMethod(w.obj, method, args...)
}

// SetString calls a setter taking a string. A nil value passes null.
func (w *Writer) SetString(name string, value *string) error {
	s, err := w.ctx.NewString(value)
	if err != nil {
		return err
	}
	return w.Call(name, "("+SigString+")V", foreign.Obj(s))
}

// SetBool calls a setter taking a boolean.
func (w *Writer) SetBool(name string, value bool) error {
	return w.Call(name, "(Z)V", foreign.Bool(value))
}

// SetObject calls a setter taking an object of class. A null object passes null.
func (w *Writer) SetObject(name, class string, value foreign.Object) error {
	return w.Call(name, "("+Sig(class)+")V", foreign.Obj(value))
}
