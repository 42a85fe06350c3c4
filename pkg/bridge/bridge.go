package bridge

import (
	"context"
	"fmt"
	"sync"

	"github.com/openfroyo/cedarbridge/pkg/authz"
	"github.com/openfroyo/cedarbridge/pkg/config"
	"github.com/openfroyo/cedarbridge/pkg/convert"
	"github.com/openfroyo/cedarbridge/pkg/engine"
	"github.com/openfroyo/cedarbridge/pkg/foreign"
	"github.com/openfroyo/cedarbridge/pkg/handles"
	"github.com/openfroyo/cedarbridge/pkg/telemetry"
)

// EngineFactory builds the engine for a converted bootstrap configuration.
type EngineFactory func(ctx context.Context, cfg *config.BootstrapConfig) (Engine, error)

// entryPoint describes how one native method reports failure.
type entryPoint struct {
	name      string
	exception string
	message   string
}

var (
	epInitCache         = entryPoint{"initCache", convert.ClassCedarlingError, "failed to initialize handle cache"}
	epCreateInstance    = entryPoint{"createInstance", convert.ClassConfigurationError, "failed to create Cedarling instance"}
	epAuthorize         = entryPoint{"authorize", convert.ClassAuthorizationError, "authorization failed"}
	epAuthorizeUnsigned = entryPoint{"authorizeUnsigned", convert.ClassAuthorizationError, "unsigned authorization failed"}
	epCleanup           = entryPoint{"cleanup", convert.ClassCedarlingError, "failed to release Cedarling instance"}
)

// Bridge implements the native methods of the Cedarling class.
//
// Every entry point converts its input, invokes the engine and converts the
// output. Any failure leaves exactly one foreign exception pending and the
// entry point returns null. Errors are never logged as part of that contract.
type Bridge struct {
	registry  *convert.Registry
	factory   EngineFactory
	instances *instanceTable
	tel       *telemetry.Telemetry
	logger    *telemetry.Logger

	initMu   sync.Mutex
	initDone bool

	// attachMu guards the check and write of an object's instance field.
	attachMu sync.Mutex
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithEngineFactory replaces the engine used for new instances.
func WithEngineFactory(f EngineFactory) Option {
	return func(b *Bridge) {
		b.factory = f
	}
}

// WithTelemetry sets the telemetry used for logging, spans and metrics.
func WithTelemetry(tel *telemetry.Telemetry) Option {
	return func(b *Bridge) {
		b.tel = tel
	}
}

// New creates a bridge with an uninitialized handle cache.
func New(opts ...Option) *Bridge {
	b := &Bridge{
		registry:  convert.NewRegistry(),
		instances: newInstanceTable(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.tel == nil {
		b.tel = telemetry.NewNopTelemetry()
	}
	if b.factory == nil {
		b.factory = engineFactory(b.tel)
	}
	b.logger = b.tel.Logger.NewComponentLogger("bridge")
	return b
}

func engineFactory(tel *telemetry.Telemetry) EngineFactory {
	return func(ctx context.Context, cfg *config.BootstrapConfig) (Engine, error) {
		return engine.New(ctx, cfg, engine.WithTelemetry(tel))
	}
}

// Registry returns the converter registry.
func (b *Bridge) Registry() *convert.Registry {
	return b.registry
}

// LiveInstances returns the number of attached engine instances.
func (b *Bridge) LiveInstances() int {
	return b.instances.len()
}

// InitCache implements hostlib.Natives.
func (b *Bridge) InitCache(env foreign.Env) {
	_ = b.Init(env)
}

// Init registers every converter's classes. It must run exactly once, before
// any other entry point. A failed Init is not retried: the caches may hold a
// partial registration.
func (b *Bridge) Init(env foreign.Env) error {
	return b.run(env, epInitCache, func(context.Context) error {
		b.initMu.Lock()
		defer b.initMu.Unlock()
		if b.initDone {
			return ErrAlreadyInitialized
		}
		b.initDone = true

		if err := b.registry.Init(env); err != nil {
			return err
		}
		for name, s := range b.registry.Stats() {
			b.tel.Metrics.SetCachedHandles(name, "classes", s.Classes)
			b.tel.Metrics.SetCachedHandles(name, "methods", s.Methods)
			b.tel.Metrics.SetCachedHandles(name, "static_fields", s.StaticFields)
		}
		return nil
	})
}

// CreateInstance implements hostlib.Natives.
func (b *Bridge) CreateInstance(env foreign.Env, this, cfg foreign.Object) {
	_ = b.Create(env, this, cfg)
}

// Create converts cfg, builds an engine and attaches it to this.
func (b *Bridge) Create(env foreign.Env, this, cfgObj foreign.Object) error {
	return b.run(env, epCreateInstance, func(ctx context.Context) error {
		if this.IsNull() {
			return &convert.MissingArgumentError{Class: convert.ClassCedarling}
		}
		current, err := env.GetLongField(this, refField)
		if err != nil {
			return err
		}
		if _, ok := b.instances.get(current); ok {
			return &InstanceAttachedError{ID: current}
		}

		cfg, err := b.registry.Bootstrap(env, cfgObj)
		if err != nil {
			return err
		}
		eng, err := b.factory(ctx, cfg)
		if err != nil {
			return &EngineError{Op: "create engine", Err: err}
		}

		id, err := b.attach(env, this, eng)
		if err != nil {
			_ = eng.Close(ctx)
			return err
		}

		b.tel.Metrics.InstanceCreated()
		telemetry.AddEvent(ctx, "instance.attached", telemetry.AttrInstanceID.Int64(id))
		b.logger.WithInstance(id).Debugf("attached engine for %s", cfg.ApplicationName)
		return nil
	})
}

// attach stores eng in the instance field of this. The field is checked again
// under attachMu since another Create on the same object may have won while
// eng was being built. The caller closes eng on error.
func (b *Bridge) attach(env foreign.Env, this foreign.Object, eng Engine) (int64, error) {
	b.attachMu.Lock()
	defer b.attachMu.Unlock()

	current, err := env.GetLongField(this, refField)
	if err != nil {
		return 0, err
	}
	if _, ok := b.instances.get(current); ok {
		return 0, &InstanceAttachedError{ID: current}
	}

	owner, err := foreign.Promote(env, this)
	if err != nil {
		return 0, err
	}
	inst := &instance{engine: eng, owner: owner}
	id := b.instances.add(inst)
	if err := env.SetLongField(this, refField, id); err != nil {
		b.instances.take(id)
		_ = owner.Release(env)
		return 0, err
	}
	return id, nil
}

// Authorize implements hostlib.Natives.
func (b *Bridge) Authorize(env foreign.Env, this, req foreign.Object) foreign.Object {
	var out foreign.Object
	err := b.run(env, epAuthorize, func(ctx context.Context) error {
		request, err := b.registry.Request(env, req)
		if err != nil {
			return err
		}
		return b.invoke(ctx, env, this, "authorize", func(e Engine) (*authz.Result, error) {
			return e.Authorize(ctx, *request)
		}, &out)
	})
	if err != nil {
		return foreign.Null()
	}
	return out
}

// AuthorizeUnsigned implements hostlib.Natives.
func (b *Bridge) AuthorizeUnsigned(env foreign.Env, this, req foreign.Object) foreign.Object {
	var out foreign.Object
	err := b.run(env, epAuthorizeUnsigned, func(ctx context.Context) error {
		request, err := b.registry.RequestUnsigned(env, req)
		if err != nil {
			return err
		}
		return b.invoke(ctx, env, this, "authorize unsigned", func(e Engine) (*authz.Result, error) {
			return e.AuthorizeUnsigned(ctx, *request)
		}, &out)
	})
	if err != nil {
		return foreign.Null()
	}
	return out
}

// invoke runs fn against the instance attached to this while holding the
// instance lock, then converts the result.
func (b *Bridge) invoke(ctx context.Context, env foreign.Env, this foreign.Object, op string, fn func(Engine) (*authz.Result, error), out *foreign.Object) error {
	inst, err := b.lookup(env, this)
	if err != nil {
		return err
	}

	inst.mu.Lock()
	res, err := fn(inst.engine)
	inst.mu.Unlock()
	if err != nil {
		return &EngineError{Op: op, Err: err}
	}

	obj, err := b.registry.Result(env, res)
	if err != nil {
		return err
	}
	*out = obj
	return nil
}

// Cleanup implements hostlib.Natives.
func (b *Bridge) Cleanup(env foreign.Env, this foreign.Object) {
	_ = b.Release(env, this)
}

// Release detaches and closes the instance attached to this. Releasing an
// object without an instance returns *InstanceNotFoundError.
func (b *Bridge) Release(env foreign.Env, this foreign.Object) error {
	return b.run(env, epCleanup, func(ctx context.Context) error {
		id, err := env.GetLongField(this, refField)
		if err != nil {
			return err
		}
		inst, ok := b.instances.take(id)
		if !ok {
			return &InstanceNotFoundError{ID: id}
		}
		// The instance is out of the table, so it is closed even when the
		// field cannot be cleared.
		setErr := env.SetLongField(this, refField, 0)
		b.tel.Metrics.InstanceReleased()

		// Wait for a call still running on another thread.
		inst.mu.Lock()
		closeErr := inst.engine.Close(ctx)
		inst.mu.Unlock()

		releaseErr := inst.owner.Release(env)
		switch {
		case setErr != nil:
			return setErr
		case releaseErr != nil:
			return releaseErr
		case closeErr != nil:
			return &EngineError{Op: "close engine", Err: closeErr}
		}
		telemetry.AddEvent(ctx, "instance.released", telemetry.AttrInstanceID.Int64(id))
		b.logger.WithInstance(id).Debug("released engine")
		return nil
	})
}

func (b *Bridge) lookup(env foreign.Env, this foreign.Object) (*instance, error) {
	id, err := env.GetLongField(this, refField)
	if err != nil {
		return nil, err
	}
	inst, ok := b.instances.get(id)
	if !ok {
		return nil, &InstanceNotFoundError{ID: id}
	}
	return inst, nil
}

// run wraps one entry point call with a span, metrics and failure reporting.
func (b *Bridge) run(env foreign.Env, ep entryPoint, fn func(ctx context.Context) error) error {
	ctx := b.logger.WithEntryPoint(ep.name).WithContext(b.tel.WithContext(context.Background()))
	op := telemetry.StartOperation(ctx, "bridge."+ep.name, telemetry.AttrEntryPoint.String(ep.name))
	op.Logger.Trace("call started")

	err := fn(op.Ctx)
	if err == nil {
		op.End(nil)
		b.tel.Metrics.RecordCall(ep.name, "success", op.Timer.Duration())
		op.Logger.Tracef("call finished in %s", op.Timer.Duration())
		return nil
	}

	class := Classify(err)
	op.Span.SetAttributes(telemetry.AttrErrorClass.String(class))
	op.End(err)
	b.tel.Metrics.RecordFailure(ep.name, class)
	b.tel.Metrics.RecordCall(ep.name, "failure", op.Timer.Duration())
	op.Logger.Debugf("call failed with %s error", class)

	b.raise(env, ep, err)
	return err
}

// raise leaves one exception of the entry point's category pending. The
// exception class comes from the cache when possible so that a failed Init
// can still be reported.
func (b *Bridge) raise(env foreign.Env, ep entryPoint, err error) {
	cls, lookupErr := b.registry.ExceptionClass(env, ep.exception)
	if lookupErr != nil && handles.IsCacheMiss(lookupErr) {
		cls, lookupErr = env.FindClass(ep.exception)
	}
	if lookupErr != nil {
		b.logger.WithError(lookupErr).Debugf("no exception class %s", ep.exception)
		return
	}
	_ = env.ThrowNew(cls, fmt.Sprintf("%s: %v", ep.message, err))
}
