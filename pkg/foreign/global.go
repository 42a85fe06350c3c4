package foreign

import (
	"errors"
	"fmt"
)

// ErrReleased is returned when a Global is used after Release.
var ErrReleased = errors.New("durable reference already released")

// Global is a durable reference. It is the only form in which a foreign
// reference may be stored beyond the call that produced it.
//
// A Global is owned by whoever called Promote. Copies share the underlying
// reference; exactly one owner calls Release.
type Global struct {
	ref Object
}

// Promote turns a context-local reference into a durable one.
func Promote(env Env, obj Object) (Global, error) {
	if obj.IsNull() {
		return Global{}, fmt.Errorf("%w: cannot promote a null reference", ErrCallFailed)
	}
	ref, err := env.NewGlobalRef(obj)
	if err != nil {
		return Global{}, err
	}
	return Global{ref: ref}, nil
}

// IsNull reports whether the Global holds no reference.
func (g Global) IsNull() bool {
	return g.ref.IsNull()
}

// Local re-homes the durable reference into the current call context.
func (g Global) Local(env Env) (Object, error) {
	if g.ref.IsNull() {
		return Object{}, ErrReleased
	}
	return env.NewLocalRef(g.ref)
}

// LocalClass is Local for references that point at a class.
func (g Global) LocalClass(env Env) (Class, error) {
	obj, err := g.Local(env)
	if err != nil {
		return Class{}, err
	}
	return ClassOf(obj.Ref()), nil
}

// Release deletes the durable reference.
func (g *Global) Release(env Env) error {
	if g.ref.IsNull() {
		return ErrReleased
	}
	err := env.DeleteGlobalRef(g.ref)
	g.ref = Object{}
	return err
}
