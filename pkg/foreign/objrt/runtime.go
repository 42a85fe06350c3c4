// Package objrt is an in-process implementation of the foreign object runtime.
//
// It models the caller side of the bridge: a registry of classes with single
// inheritance and interfaces, virtual method dispatch by name and signature,
// static fields, and a reference table split into per-call local references and
// durable global references. Host code (the CLI, tests) defines its classes here
// and calls into the bridge through Runtime.Call, exactly as the real caller would.
package objrt

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/openfroyo/cedarbridge/pkg/foreign"
)

// Runtime holds the class registry and the durable reference table.
// It is safe for concurrent use; each Call gets its own Env.
type Runtime struct {
	mu      sync.RWMutex
	classes map[string]*classEntry
	globals map[foreign.Ref]*Instance

	methods    map[uint64]*memberEntry
	methodKeys map[string]uint64
	fields     map[uint64]*memberEntry
	fieldKeys  map[string]uint64

	nextRef    atomic.Uint64
	nextMember atomic.Uint64
}

// New creates a runtime with the built-in java/lang, java/util, java/io,
// java/net and java/time classes defined.
func New() *Runtime {
	rt := &Runtime{
		classes:    make(map[string]*classEntry),
		globals:    make(map[foreign.Ref]*Instance),
		methods:    make(map[uint64]*memberEntry),
		methodKeys: make(map[string]uint64),
		fields:     make(map[uint64]*memberEntry),
		fieldKeys:  make(map[string]uint64),
	}
	rt.bootstrap()
	return rt
}

// Call runs fn as one call from the foreign side into native code.
//
// Local references created during fn are invalid once Call returns. If fn leaves
// an exception pending, Call returns it as an *Exception. An error returned by fn
// itself takes precedence.
func (rt *Runtime) Call(fn func(env *Env) error) error {
	env := &Env{
		rt:     rt,
		locals: make(map[foreign.Ref]*Instance),
	}
	err := fn(env)
	env.close()
	if err != nil {
		return err
	}
	if env.pending != nil {
		return env.pending
	}
	return nil
}

// GlobalRefs returns the number of live durable references.
func (rt *Runtime) GlobalRefs() int {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return len(rt.globals)
}

// DefineClass adds a class to the registry. The superclass and interfaces must
// already be defined. An empty Super means java/lang/Object.
func (rt *Runtime) DefineClass(def ClassDef) error {
	if def.Name == "" {
		return fmt.Errorf("class name is required")
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()

	if _, exists := rt.classes[def.Name]; exists {
		return fmt.Errorf("class %s already defined", def.Name)
	}

	super := def.Super
	if super == "" && def.Name != ClassObject {
		super = ClassObject
	}

	entry := &classEntry{def: def}
	if super != "" {
		parent, ok := rt.classes[super]
		if !ok {
			return fmt.Errorf("class %s: superclass %s not defined", def.Name, super)
		}
		entry.super = parent
	}
	for _, name := range def.Interfaces {
		iface, ok := rt.classes[name]
		if !ok {
			return fmt.Errorf("class %s: interface %s not defined", def.Name, name)
		}
		entry.interfaces = append(entry.interfaces, iface)
	}

	entry.statics = make(map[string]*Instance)
	entry.object = &Instance{class: rt.classes[ClassClass], Native: entry}
	rt.classes[def.Name] = entry
	return nil
}

// MustDefine is DefineClass for static class tables. It panics on error.
func (rt *Runtime) MustDefine(defs ...ClassDef) {
	for _, def := range defs {
		if err := rt.DefineClass(def); err != nil {
			panic(err)
		}
	}
}

// SetStatic assigns a static object field declared by the class.
func (rt *Runtime) SetStatic(className, field string, value *Instance) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	entry, ok := rt.classes[className]
	if !ok {
		return fmt.Errorf("class %s not defined", className)
	}
	if _, declared := entry.def.StaticFields[field]; !declared {
		return fmt.Errorf("class %s has no static field %s", className, field)
	}
	entry.statics[field] = value
	return nil
}

// Static reads a static object field from the host side.
func (rt *Runtime) Static(className, field string) (*Instance, error) {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	entry, ok := rt.classes[className]
	if !ok {
		return nil, fmt.Errorf("class %s not defined", className)
	}
	value, ok := entry.statics[field]
	if !ok {
		return nil, fmt.Errorf("class %s has no static field %s", className, field)
	}
	return value, nil
}

// NewInstance allocates an instance without running a constructor. Host code
// uses it to build object graphs that are then passed into the bridge.
func (rt *Runtime) NewInstance(className string, native any) (*Instance, error) {
	entry, err := rt.class(className)
	if err != nil {
		return nil, err
	}
	if entry.def.Interface {
		return nil, fmt.Errorf("cannot instantiate interface %s", className)
	}
	return newInstance(entry, native), nil
}

// ClassOf returns the class name of an instance.
func (rt *Runtime) ClassOf(inst *Instance) string {
	if inst == nil {
		return ""
	}
	return inst.class.def.Name
}

func (rt *Runtime) class(name string) (*classEntry, error) {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	entry, ok := rt.classes[name]
	if !ok {
		return nil, fmt.Errorf("class %s not defined", name)
	}
	return entry, nil
}

func (rt *Runtime) newRef() foreign.Ref {
	return foreign.Ref(rt.nextRef.Add(1))
}

func (rt *Runtime) addGlobal(inst *Instance) foreign.Ref {
	ref := rt.newRef()
	rt.mu.Lock()
	rt.globals[ref] = inst
	rt.mu.Unlock()
	return ref
}

func (rt *Runtime) global(ref foreign.Ref) (*Instance, bool) {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	inst, ok := rt.globals[ref]
	return inst, ok
}

func (rt *Runtime) deleteGlobal(ref foreign.Ref) bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if _, ok := rt.globals[ref]; !ok {
		return false
	}
	delete(rt.globals, ref)
	return true
}

// memberID returns a stable identifier for a member key, allocating one on first use.
func (rt *Runtime) memberID(table map[uint64]*memberEntry, keys map[string]uint64, m *memberEntry) uint64 {
	key := m.owner.def.Name + "." + m.name + m.sig

	rt.mu.Lock()
	defer rt.mu.Unlock()

	if id, ok := keys[key]; ok {
		return id
	}
	id := rt.nextMember.Add(1)
	m.id = id
	keys[key] = id
	table[id] = m
	return id
}

func (rt *Runtime) method(id uint64) (*memberEntry, bool) {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	m, ok := rt.methods[id]
	return m, ok
}

func (rt *Runtime) field(id uint64) (*memberEntry, bool) {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	f, ok := rt.fields[id]
	return f, ok
}
