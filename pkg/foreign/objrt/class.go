package objrt

import "sync"

// Method implements an instance method or constructor.
//
// Object arguments arrive as *Instance (nil for the foreign null), primitives as
// bool, int32 or int64. The result may be nil (void or null), *Instance, string
// (converted to a new String), bool, int32 or int64.
type Method func(env *Env, this *Instance, args []any) (any, error)

// ClassDef describes a class or interface.
type ClassDef struct {
	// Name is the fully-qualified, slash-separated class name.
	Name string

	// Super is the superclass. Empty means java/lang/Object.
	Super string

	// Interfaces lists implemented (or, for interfaces, extended) interfaces.
	Interfaces []string

	// Interface marks the class as an interface. Interfaces cannot be instantiated.
	Interface bool

	// Methods maps name+signature to an implementation, e.g.
	// "getData()Ljava/lang/String;". A nil implementation declares an abstract
	// method. Constructors use the name "<init>".
	Methods map[string]Method

	// Fields declares instance fields by name with their type signature.
	Fields map[string]string

	// StaticFields declares static object fields by name with their type signature.
	StaticFields map[string]string
}

type classEntry struct {
	def        ClassDef
	super      *classEntry
	interfaces []*classEntry
	object     *Instance

	// guarded by Runtime.mu
	statics map[string]*Instance
}

type memberEntry struct {
	id    uint64
	owner *classEntry
	name  string
	sig   string
}

// declares reports whether the class or one of its ancestors declares the method,
// abstract or not.
func (c *classEntry) declares(key string) bool {
	if _, ok := c.def.Methods[key]; ok {
		return true
	}
	if c.super != nil && c.super.declares(key) {
		return true
	}
	for _, iface := range c.interfaces {
		if iface.declares(key) {
			return true
		}
	}
	return false
}

// implementation finds the concrete method along the superclass chain.
func (c *classEntry) implementation(key string) Method {
	for cls := c; cls != nil; cls = cls.super {
		if m, ok := cls.def.Methods[key]; ok && m != nil {
			return m
		}
	}
	return nil
}

func (c *classEntry) fieldSig(name string) (string, bool) {
	for cls := c; cls != nil; cls = cls.super {
		if sig, ok := cls.def.Fields[name]; ok {
			return sig, true
		}
	}
	return "", false
}

func (c *classEntry) staticSig(name string) (string, bool) {
	sig, ok := c.def.StaticFields[name]
	return sig, ok
}

func (c *classEntry) assignableTo(target *classEntry) bool {
	if c == target {
		return true
	}
	if c.super != nil && c.super.assignableTo(target) {
		return true
	}
	for _, iface := range c.interfaces {
		if iface.assignableTo(target) {
			return true
		}
	}
	return false
}

// Instance is an object living in the runtime.
type Instance struct {
	class *classEntry

	mu     sync.Mutex
	fields map[string]any

	// Native is the host payload: the Go string of a String, the items of a
	// list, the constant of an enum.
	Native any
}

func newInstance(class *classEntry, native any) *Instance {
	return &Instance{
		class:  class,
		fields: make(map[string]any),
		Native: native,
	}
}

// ClassName returns the name of the instance's class.
func (i *Instance) ClassName() string {
	return i.class.def.Name
}

// Get reads a field. Missing fields read as nil.
func (i *Instance) Get(name string) any {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.fields[name]
}

// Set writes a field and returns the instance for chaining.
func (i *Instance) Set(name string, value any) *Instance {
	i.mu.Lock()
	i.fields[name] = value
	i.mu.Unlock()
	return i
}

// Getter returns a method that reads the named field.
func Getter(field string) Method {
	return func(_ *Env, this *Instance, _ []any) (any, error) {
		return this.Get(field), nil
	}
}
