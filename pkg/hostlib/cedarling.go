package hostlib

import (
	"errors"
	"fmt"

	"github.com/openfroyo/cedarbridge/pkg/authz"
	"github.com/openfroyo/cedarbridge/pkg/config"
	"github.com/openfroyo/cedarbridge/pkg/foreign"
	"github.com/openfroyo/cedarbridge/pkg/foreign/objrt"
)

// Natives implements the native methods of the Cedarling class. Failures are
// reported by leaving an exception pending on env, never by return value.
type Natives interface {
	InitCache(env foreign.Env)
	CreateInstance(env foreign.Env, this, config foreign.Object)
	Authorize(env foreign.Env, this, request foreign.Object) foreign.Object
	AuthorizeUnsigned(env foreign.Env, this, request foreign.Object) foreign.Object
	Cleanup(env foreign.Env, this foreign.Object)
}

var errNoNatives = errors.New("native library not loaded")

func createNativeCedarling(natives Natives) objrt.Method {
	return func(env *objrt.Env, this *objrt.Instance, args []any) (any, error) {
		if natives == nil {
			return nil, errNoNatives
		}
		natives.CreateInstance(env, env.Import(this), env.Import(asInstance(args[0])))
		return nil, nil
	}
}

func authorize(natives Natives, unsigned bool) objrt.Method {
	return func(env *objrt.Env, this *objrt.Instance, args []any) (any, error) {
		if natives == nil {
			return nil, errNoNatives
		}
		var result foreign.Object
		if unsigned {
			result = natives.AuthorizeUnsigned(env, env.Import(this), env.Import(asInstance(args[0])))
		} else {
			result = natives.Authorize(env, env.Import(this), env.Import(asInstance(args[0])))
		}
		inst, err := env.Export(result)
		if err != nil {
			return nil, err
		}
		if inst == nil {
			return nil, nil
		}
		return inst, nil
	}
}

func cleanupCedarling(natives Natives) objrt.Method {
	return func(env *objrt.Env, this *objrt.Instance, _ []any) (any, error) {
		if natives == nil {
			return nil, errNoNatives
		}
		natives.Cleanup(env, env.Import(this))
		return nil, nil
	}
}

// Install defines the class library in rt and runs the Cedarling static
// initializer, which builds the native handle cache.
func Install(rt *objrt.Runtime, natives Natives) error {
	if err := Define(rt, natives); err != nil {
		return err
	}
	if natives == nil {
		return errNoNatives
	}
	return rt.Call(func(env *objrt.Env) error {
		natives.InitCache(env)
		return nil
	})
}

// Cedarling is the host-side view of a Cedarling object: it builds request
// graphs, invokes the native methods through the runtime and reads the results
// back.
type Cedarling struct {
	rt  *objrt.Runtime
	obj *objrt.Instance
}

// New constructs a Cedarling object from cfg. A pending exception from the
// constructor is returned as an *objrt.Exception.
func New(rt *objrt.Runtime, cfg *config.BootstrapConfig) (*Cedarling, error) {
	cfgObj, err := BuildBootstrap(rt, cfg)
	if err != nil {
		return nil, err
	}
	return NewFromObject(rt, cfgObj)
}

// NewFromObject constructs a Cedarling object from an already built
// BootstrapConfiguration. cfgObj may be nil.
func NewFromObject(rt *objrt.Runtime, cfgObj *objrt.Instance) (*Cedarling, error) {
	var obj *objrt.Instance
	err := rt.Call(func(env *objrt.Env) error {
		cls, err := env.FindClass(ClassCedarling)
		if err != nil {
			return err
		}
		ctor, err := env.GetMethodID(cls, "<init>", "("+sig(ClassBootstrapConfiguration)+")V")
		if err != nil {
			return err
		}
		ref, err := env.NewObject(cls, ctor, foreign.Obj(env.Import(cfgObj)))
		if err != nil {
			return err
		}
		obj, err = env.Export(ref)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &Cedarling{rt: rt, obj: obj}, nil
}

// Instance returns the underlying Cedarling object.
func (c *Cedarling) Instance() *objrt.Instance {
	return c.obj
}

// Authorize evaluates a signed request.
func (c *Cedarling) Authorize(req authz.Request) (*authz.Result, error) {
	reqObj, err := BuildRequest(c.rt, req)
	if err != nil {
		return nil, err
	}
	return c.AuthorizeObject(reqObj)
}

// AuthorizeObject evaluates an already built AuthorizeRequest. reqObj may be nil.
func (c *Cedarling) AuthorizeObject(reqObj *objrt.Instance) (*authz.Result, error) {
	return c.call("authorize", ClassAuthorizeRequest, reqObj)
}

// AuthorizeUnsigned evaluates an unsigned request.
func (c *Cedarling) AuthorizeUnsigned(req authz.RequestUnsigned) (*authz.Result, error) {
	reqObj, err := BuildRequestUnsigned(c.rt, req)
	if err != nil {
		return nil, err
	}
	return c.AuthorizeUnsignedObject(reqObj)
}

// AuthorizeUnsignedObject evaluates an already built AuthorizeRequestUnsigned.
func (c *Cedarling) AuthorizeUnsignedObject(reqObj *objrt.Instance) (*authz.Result, error) {
	return c.call("authorizeUnsigned", ClassAuthorizeRequestUnsigned, reqObj)
}

func (c *Cedarling) call(name, reqClass string, reqObj *objrt.Instance) (*authz.Result, error) {
	var resultObj *objrt.Instance
	err := c.rt.Call(func(env *objrt.Env) error {
		cls, err := env.FindClass(ClassCedarling)
		if err != nil {
			return err
		}
		mid, err := env.GetMethodID(cls, name, "("+sig(reqClass)+")"+sig(ClassAuthorizeResult))
		if err != nil {
			return err
		}
		ref, err := env.CallObjectMethod(env.Import(c.obj), mid, foreign.Obj(env.Import(reqObj)))
		if err != nil {
			return err
		}
		resultObj, err = env.Export(ref)
		return err
	})
	if err != nil {
		return nil, err
	}
	if resultObj == nil {
		return nil, fmt.Errorf("%s returned null without an exception", name)
	}
	return ReadResult(resultObj)
}

// Close releases the native instance.
func (c *Cedarling) Close() error {
	return c.rt.Call(func(env *objrt.Env) error {
		cls, err := env.FindClass(ClassCedarling)
		if err != nil {
			return err
		}
		mid, err := env.GetMethodID(cls, "close", "()V")
		if err != nil {
			return err
		}
		return env.CallVoidMethod(env.Import(c.obj), mid)
	})
}
