package objrt

import (
	"errors"
	"fmt"

	"github.com/openfroyo/cedarbridge/pkg/foreign"
)

var (
	errInvalidRef    = errors.New("invalid reference")
	errNullRef       = errors.New("null reference")
	errClosed        = errors.New("call context already returned")
	errNotAssignable = errors.New("receiver is not an instance of the declaring class")
)

// Env is the foreign.Env of one Runtime.Call.
type Env struct {
	rt      *Runtime
	locals  map[foreign.Ref]*Instance
	pending *Exception
	closed  bool
}

var _ foreign.Env = (*Env)(nil)

// Runtime returns the runtime this call belongs to.
func (e *Env) Runtime() *Runtime {
	return e.rt
}

// Import creates a local reference to a host instance. A nil instance is null.
func (e *Env) Import(inst *Instance) foreign.Object {
	if inst == nil || e.closed {
		return foreign.Null()
	}
	ref := e.rt.newRef()
	e.locals[ref] = inst
	return foreign.ObjectOf(ref)
}

// Export resolves a reference to its host instance. The null reference
// exports as nil without error.
func (e *Env) Export(obj foreign.Object) (*Instance, error) {
	if obj.IsNull() {
		return nil, nil
	}
	return e.resolve("Export", obj)
}

func (e *Env) close() {
	e.closed = true
	e.locals = nil
}

func (e *Env) fail(op, target string, err error) error {
	return &foreign.CallError{Op: op, Target: target, Err: err}
}

func (e *Env) resolve(op string, obj foreign.Object) (*Instance, error) {
	if e.closed {
		return nil, e.fail(op, "", errClosed)
	}
	if obj.IsNull() {
		return nil, e.fail(op, "", errNullRef)
	}
	if inst, ok := e.locals[obj.Ref()]; ok {
		return inst, nil
	}
	if inst, ok := e.rt.global(obj.Ref()); ok {
		return inst, nil
	}
	return nil, e.fail(op, obj.String(), errInvalidRef)
}

func (e *Env) resolveClass(op string, cls foreign.Class) (*classEntry, error) {
	inst, err := e.resolve(op, cls.Object())
	if err != nil {
		return nil, err
	}
	entry, ok := inst.Native.(*classEntry)
	if !ok || inst.class.def.Name != ClassClass {
		return nil, e.fail(op, inst.ClassName(), errors.New("reference is not a class"))
	}
	return entry, nil
}

// FindClass implements foreign.Env.
func (e *Env) FindClass(name string) (foreign.Class, error) {
	entry, err := e.rt.class(name)
	if err != nil {
		return foreign.Class{}, e.fail("FindClass", name, err)
	}
	return foreign.ClassOf(e.Import(entry.object).Ref()), nil
}

// GetMethodID implements foreign.Env.
func (e *Env) GetMethodID(cls foreign.Class, name, sig string) (foreign.MethodID, error) {
	entry, err := e.resolveClass("GetMethodID", cls)
	if err != nil {
		return foreign.MethodID{}, err
	}
	if !entry.declares(name + sig) {
		return foreign.MethodID{}, e.fail("GetMethodID", entry.def.Name+"."+name+sig, errors.New("no such method"))
	}
	id := e.rt.memberID(e.rt.methods, e.rt.methodKeys, &memberEntry{owner: entry, name: name, sig: sig})
	return foreign.MethodIDOf(id), nil
}

// GetStaticFieldID implements foreign.Env.
func (e *Env) GetStaticFieldID(cls foreign.Class, name, sig string) (foreign.FieldID, error) {
	entry, err := e.resolveClass("GetStaticFieldID", cls)
	if err != nil {
		return foreign.FieldID{}, err
	}
	declared, ok := entry.staticSig(name)
	if !ok || declared != sig {
		return foreign.FieldID{}, e.fail("GetStaticFieldID", entry.def.Name+"."+name+":"+sig, errors.New("no such field"))
	}
	id := e.rt.memberID(e.rt.fields, e.rt.fieldKeys, &memberEntry{owner: entry, name: name, sig: sig})
	return foreign.FieldIDOf(id), nil
}

// GetStaticObjectField implements foreign.Env.
func (e *Env) GetStaticObjectField(cls foreign.Class, field foreign.FieldID) (foreign.Object, error) {
	entry, err := e.resolveClass("GetStaticObjectField", cls)
	if err != nil {
		return foreign.Object{}, err
	}
	member, ok := e.rt.field(field.ID())
	if !ok || !entry.assignableTo(member.owner) {
		return foreign.Object{}, e.fail("GetStaticObjectField", entry.def.Name, errors.New("unknown field id"))
	}
	e.rt.mu.RLock()
	value := member.owner.statics[member.name]
	e.rt.mu.RUnlock()
	return e.Import(value), nil
}

// NewObject implements foreign.Env.
func (e *Env) NewObject(cls foreign.Class, ctor foreign.MethodID, args ...foreign.Value) (foreign.Object, error) {
	entry, err := e.resolveClass("NewObject", cls)
	if err != nil {
		return foreign.Object{}, err
	}
	if entry.def.Interface {
		return foreign.Object{}, e.fail("NewObject", entry.def.Name, errors.New("cannot instantiate interface"))
	}
	member, ok := e.rt.method(ctor.ID())
	if !ok || member.name != "<init>" || member.owner != entry {
		return foreign.Object{}, e.fail("NewObject", entry.def.Name, errors.New("method id is not a constructor of this class"))
	}
	impl, ok := entry.def.Methods[member.name+member.sig]
	if !ok {
		return foreign.Object{}, e.fail("NewObject", entry.def.Name, errors.New("no such constructor"))
	}

	hostArgs, err := e.hostArgs("NewObject", args)
	if err != nil {
		return foreign.Object{}, err
	}
	inst := newInstance(entry, nil)
	if impl != nil {
		if _, err := impl(e, inst, hostArgs); err != nil {
			return foreign.Object{}, e.fail("NewObject", entry.def.Name+"."+member.name+member.sig, err)
		}
	}
	return e.Import(inst), nil
}

func (e *Env) invoke(op string, obj foreign.Object, method foreign.MethodID, args []foreign.Value) (any, error) {
	this, err := e.resolve(op, obj)
	if err != nil {
		return nil, err
	}
	member, ok := e.rt.method(method.ID())
	if !ok || member.name == "<init>" {
		return nil, e.fail(op, this.ClassName(), errors.New("unknown method id"))
	}
	target := member.owner.def.Name + "." + member.name + member.sig
	if !this.class.assignableTo(member.owner) {
		return nil, e.fail(op, target, errNotAssignable)
	}
	impl := this.class.implementation(member.name + member.sig)
	if impl == nil {
		return nil, e.fail(op, target, fmt.Errorf("abstract method not implemented by %s", this.ClassName()))
	}

	hostArgs, err := e.hostArgs(op, args)
	if err != nil {
		return nil, err
	}
	result, err := impl(e, this, hostArgs)
	if err != nil {
		return nil, e.fail(op, target, err)
	}
	return result, nil
}

func (e *Env) hostArgs(op string, args []foreign.Value) ([]any, error) {
	out := make([]any, len(args))
	for i, arg := range args {
		switch arg.Kind() {
		case foreign.KindBool:
			out[i] = arg.AsBool()
		case foreign.KindInt:
			out[i] = arg.AsInt()
		case foreign.KindLong:
			out[i] = arg.AsLong()
		case foreign.KindObject:
			if arg.AsObject().IsNull() {
				out[i] = (*Instance)(nil)
				continue
			}
			inst, err := e.resolve(op, arg.AsObject())
			if err != nil {
				return nil, err
			}
			out[i] = inst
		default:
			return nil, e.fail(op, "", fmt.Errorf("argument %d has kind %s", i, arg.Kind()))
		}
	}
	return out, nil
}

// CallObjectMethod implements foreign.Env.
func (e *Env) CallObjectMethod(obj foreign.Object, method foreign.MethodID, args ...foreign.Value) (foreign.Object, error) {
	result, err := e.invoke("CallObjectMethod", obj, method, args)
	if err != nil {
		return foreign.Object{}, err
	}
	switch v := result.(type) {
	case nil:
		return foreign.Null(), nil
	case *Instance:
		return e.Import(v), nil
	case string:
		return e.Import(e.rt.String(v)), nil
	default:
		return foreign.Object{}, e.fail("CallObjectMethod", "", fmt.Errorf("method returned %T, want object", result))
	}
}

// CallBooleanMethod implements foreign.Env.
func (e *Env) CallBooleanMethod(obj foreign.Object, method foreign.MethodID, args ...foreign.Value) (bool, error) {
	result, err := e.invoke("CallBooleanMethod", obj, method, args)
	if err != nil {
		return false, err
	}
	b, ok := result.(bool)
	if !ok {
		return false, e.fail("CallBooleanMethod", "", fmt.Errorf("method returned %T, want boolean", result))
	}
	return b, nil
}

// CallIntMethod implements foreign.Env.
func (e *Env) CallIntMethod(obj foreign.Object, method foreign.MethodID, args ...foreign.Value) (int32, error) {
	result, err := e.invoke("CallIntMethod", obj, method, args)
	if err != nil {
		return 0, err
	}
	switch v := result.(type) {
	case int32:
		return v, nil
	case int:
		return int32(v), nil
	default:
		return 0, e.fail("CallIntMethod", "", fmt.Errorf("method returned %T, want int", result))
	}
}

// CallLongMethod implements foreign.Env.
func (e *Env) CallLongMethod(obj foreign.Object, method foreign.MethodID, args ...foreign.Value) (int64, error) {
	result, err := e.invoke("CallLongMethod", obj, method, args)
	if err != nil {
		return 0, err
	}
	switch v := result.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	default:
		return 0, e.fail("CallLongMethod", "", fmt.Errorf("method returned %T, want long", result))
	}
}

// CallVoidMethod implements foreign.Env.
func (e *Env) CallVoidMethod(obj foreign.Object, method foreign.MethodID, args ...foreign.Value) error {
	_, err := e.invoke("CallVoidMethod", obj, method, args)
	return err
}

// NewString implements foreign.Env.
func (e *Env) NewString(s string) (foreign.Object, error) {
	if e.closed {
		return foreign.Object{}, e.fail("NewString", "", errClosed)
	}
	return e.Import(e.rt.String(s)), nil
}

// GetString implements foreign.Env.
func (e *Env) GetString(obj foreign.Object) (string, error) {
	inst, err := e.resolve("GetString", obj)
	if err != nil {
		return "", err
	}
	s, ok := StringValue(inst)
	if !ok {
		return "", e.fail("GetString", inst.ClassName(), errors.New("object is not a string"))
	}
	return s, nil
}

// NewLocalRef implements foreign.Env.
func (e *Env) NewLocalRef(ref foreign.Object) (foreign.Object, error) {
	inst, err := e.resolve("NewLocalRef", ref)
	if err != nil {
		return foreign.Object{}, err
	}
	return e.Import(inst), nil
}

// NewGlobalRef implements foreign.Env.
func (e *Env) NewGlobalRef(obj foreign.Object) (foreign.Object, error) {
	inst, err := e.resolve("NewGlobalRef", obj)
	if err != nil {
		return foreign.Object{}, err
	}
	return foreign.ObjectOf(e.rt.addGlobal(inst)), nil
}

// DeleteGlobalRef implements foreign.Env.
func (e *Env) DeleteGlobalRef(ref foreign.Object) error {
	if !e.rt.deleteGlobal(ref.Ref()) {
		return e.fail("DeleteGlobalRef", ref.String(), errInvalidRef)
	}
	return nil
}

// GetLongField implements foreign.Env.
func (e *Env) GetLongField(obj foreign.Object, name string) (int64, error) {
	inst, err := e.resolve("GetLongField", obj)
	if err != nil {
		return 0, err
	}
	if sig, ok := inst.class.fieldSig(name); !ok || sig != "J" {
		return 0, e.fail("GetLongField", inst.ClassName()+"."+name, errors.New("no such long field"))
	}
	v, _ := inst.Get(name).(int64)
	return v, nil
}

// SetLongField implements foreign.Env.
func (e *Env) SetLongField(obj foreign.Object, name string, value int64) error {
	inst, err := e.resolve("SetLongField", obj)
	if err != nil {
		return err
	}
	if sig, ok := inst.class.fieldSig(name); !ok || sig != "J" {
		return e.fail("SetLongField", inst.ClassName()+"."+name, errors.New("no such long field"))
	}
	inst.Set(name, value)
	return nil
}

// ThrowNew implements foreign.Env.
func (e *Env) ThrowNew(cls foreign.Class, message string) error {
	entry, err := e.resolveClass("ThrowNew", cls)
	if err != nil {
		return err
	}
	throwable, err := e.rt.class(ClassThrowable)
	if err != nil {
		return e.fail("ThrowNew", entry.def.Name, err)
	}
	if !entry.assignableTo(throwable) {
		return e.fail("ThrowNew", entry.def.Name, errors.New("class is not throwable"))
	}
	e.pending = &Exception{Class: entry.def.Name, Message: message}
	return nil
}

// ExceptionCheck implements foreign.Env.
func (e *Env) ExceptionCheck() bool {
	return e.pending != nil
}
