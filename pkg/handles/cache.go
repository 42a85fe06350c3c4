package handles

import (
	"fmt"
	"sync"

	"github.com/openfroyo/cedarbridge/pkg/foreign"
)

// MemberKey identifies a method or static field by owning class, member name and
// type signature.
type MemberKey struct {
	Class string
	Name  string
	Sig   string
}

// String implements fmt.Stringer.
func (k MemberKey) String() string {
	return k.Class + "." + k.Name + k.Sig
}

// Member is a (name, signature) pair declared by a ClassSpec.
type Member struct {
	Name string
	Sig  string
}

// Constructor declares the "<init>" method with the given signature.
func Constructor(sig string) Member {
	return Member{Name: "<init>", Sig: sig}
}

// ClassSpec lists everything a converter needs from one foreign class.
type ClassSpec struct {
	// Name is the fully-qualified, slash-separated class name.
	Name string

	// Methods lists instance methods and constructors.
	Methods []Member

	// StaticFields lists static object fields.
	StaticFields []Member
}

// Method returns the key of one of the ClassSpec's methods.
func (s ClassSpec) Method(name, sig string) MemberKey {
	return MemberKey{Class: s.Name, Name: name, Sig: sig}
}

// Cache stores resolved class references, method IDs and static field IDs.
//
// Entries are written once, during registration, and read afterwards. The lock
// is never held across a foreign call: members are resolved first and inserted
// after.
type Cache struct {
	// name identifies the cache in errors and logs.
	name string

	// mu guards the three maps.
	mu sync.Mutex

	// classes maps class name to a durable class reference.
	classes map[string]foreign.Global

	// methods maps (class, member, signature) to a method ID.
	methods map[MemberKey]foreign.MethodID

	// fields maps (class, field, signature) to a static field ID.
	fields map[MemberKey]foreign.FieldID
}

// New creates an empty cache.
func New(name string) *Cache {
	return &Cache{
		name:    name,
		classes: make(map[string]foreign.Global),
		methods: make(map[MemberKey]foreign.MethodID),
		fields:  make(map[MemberKey]foreign.FieldID),
	}
}

// Name returns the cache name.
func (c *Cache) Name() string {
	return c.name
}

// RegisterClass resolves a class, promotes it to a durable reference and stores
// it under name. The returned class is valid in the current call only and is
// meant for registering the class's members.
func (c *Cache) RegisterClass(env foreign.Env, name string) (foreign.Class, error) {
	cls, err := env.FindClass(name)
	if err != nil {
		return foreign.Class{}, &ClassNotFoundError{Class: name, Err: err}
	}

	global, err := foreign.Promote(env, cls.Object())
	if err != nil {
		return foreign.Class{}, fmt.Errorf("failed to promote class %s: %w", name, err)
	}

	c.mu.Lock()
	_, exists := c.classes[name]
	if !exists {
		c.classes[name] = global
	}
	c.mu.Unlock()

	if exists {
		_ = global.Release(env)
		return foreign.Class{}, &DuplicateRegistrationError{Cache: c.name, Key: name}
	}
	return cls, nil
}

// RegisterMethod resolves a method of cls, the class returned by RegisterClass in
// the same call, and stores it.
func (c *Cache) RegisterMethod(env foreign.Env, cls foreign.Class, className, name, sig string) error {
	id, err := env.GetMethodID(cls, name, sig)
	if err != nil {
		return &MemberNotFoundError{Class: className, Member: name, Sig: sig, Err: err}
	}

	key := MemberKey{Class: className, Name: name, Sig: sig}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.methods[key]; exists {
		return &DuplicateRegistrationError{Cache: c.name, Key: key.String()}
	}
	c.methods[key] = id
	return nil
}

// RegisterStaticField resolves a static field of cls and stores it.
func (c *Cache) RegisterStaticField(env foreign.Env, cls foreign.Class, className, name, sig string) error {
	id, err := env.GetStaticFieldID(cls, name, sig)
	if err != nil {
		return &MemberNotFoundError{Class: className, Member: name, Sig: sig, Static: true, Err: err}
	}

	key := MemberKey{Class: className, Name: name, Sig: sig}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.fields[key]; exists {
		return &DuplicateRegistrationError{Cache: c.name, Key: key.String()}
	}
	c.fields[key] = id
	return nil
}

// Register registers every class and member in specs. It stops at the first
// failure.
func (c *Cache) Register(env foreign.Env, specs ...ClassSpec) error {
	for _, spec := range specs {
		cls, err := c.RegisterClass(env, spec.Name)
		if err != nil {
			return err
		}
		for _, m := range spec.Methods {
			if err := c.RegisterMethod(env, cls, spec.Name, m.Name, m.Sig); err != nil {
				return err
			}
		}
		for _, f := range spec.StaticFields {
			if err := c.RegisterStaticField(env, cls, spec.Name, f.Name, f.Sig); err != nil {
				return err
			}
		}
	}
	return nil
}

// LookupClass returns the cached class as a reference valid in the current call.
func (c *Cache) LookupClass(env foreign.Env, name string) (foreign.Class, error) {
	c.mu.Lock()
	global, ok := c.classes[name]
	c.mu.Unlock()

	if !ok {
		return foreign.Class{}, &CachedClassNotFoundError{Cache: c.name, Class: name}
	}
	return global.LocalClass(env)
}

// LookupMethod returns a cached method ID.
func (c *Cache) LookupMethod(key MemberKey) (foreign.MethodID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id, ok := c.methods[key]
	if !ok {
		return foreign.MethodID{}, &CachedInstanceMethodNotFoundError{Cache: c.name, Class: key.Class, Member: key.Name}
	}
	return id, nil
}

// LookupStaticField returns a cached static field ID.
func (c *Cache) LookupStaticField(key MemberKey) (foreign.FieldID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id, ok := c.fields[key]
	if !ok {
		return foreign.FieldID{}, &CachedStaticFieldNotFoundError{Cache: c.name, Class: key.Class, Field: key.Name}
	}
	return id, nil
}

// Stats reports how many classes, methods and static fields are registered.
type Stats struct {
	Classes      int
	Methods      int
	StaticFields int
}

// Stats returns the current entry counts.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Classes:      len(c.classes),
		Methods:      len(c.methods),
		StaticFields: len(c.fields),
	}
}
