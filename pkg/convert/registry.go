package convert

import (
	"fmt"

	"github.com/openfroyo/cedarbridge/pkg/authz"
	"github.com/openfroyo/cedarbridge/pkg/config"
	"github.com/openfroyo/cedarbridge/pkg/foreign"
	"github.com/openfroyo/cedarbridge/pkg/handles"
	"github.com/openfroyo/cedarbridge/pkg/marshal"
)

// Registry aggregates the converter modules, each with its own cache, plus the
// core runtime classes and the exception classes.
type Registry struct {
	core       *handles.Cache
	exceptions *handles.Cache
	config     *ConfigConverter
	request    *RequestConverter
	result     *ResultConverter
}

// NewRegistry creates a registry whose caches are all empty. Init must run
// before any conversion.
func NewRegistry() *Registry {
	return &Registry{
		core:       handles.New("core"),
		exceptions: handles.New("exceptions"),
		config:     NewConfigConverter(),
		request:    NewRequestConverter(),
		result:     NewResultConverter(),
	}
}

// Init registers every class table. A missing class or member fails Init, so a
// registry that initialized successfully can serve every conversion.
func (r *Registry) Init(env foreign.Env) error {
	steps := []struct {
		name     string
		register func(foreign.Env) error
	}{
		{"core", func(env foreign.Env) error { return r.core.Register(env, marshal.CoreClasses...) }},
		{"exceptions", func(env foreign.Env) error { return r.exceptions.Register(env, ExceptionClasses...) }},
		{"config", r.config.Register},
		{"request", r.request.Register},
		{"result", r.result.Register},
	}
	for _, s := range steps {
		if err := s.register(env); err != nil {
			return fmt.Errorf("failed to register %s classes: %w", s.name, err)
		}
	}
	return nil
}

// Context creates a conversion context for one foreign call.
func (r *Registry) Context(env foreign.Env) *marshal.Context {
	return marshal.NewContext(env, r.core)
}

// Bootstrap converts the constructor argument of Cedarling.
func (r *Registry) Bootstrap(env foreign.Env, obj foreign.Object) (*config.BootstrapConfig, error) {
	cfg, err := r.config.Bootstrap(r.Context(env), obj)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, &MissingArgumentError{Class: ClassBootstrapConfiguration}
	}
	return cfg, nil
}

// Request converts the argument of Cedarling.authorize.
func (r *Registry) Request(env foreign.Env, obj foreign.Object) (*authz.Request, error) {
	req, err := r.request.Request(r.Context(env), obj)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, &MissingArgumentError{Class: ClassAuthorizeRequest}
	}
	return req, nil
}

// RequestUnsigned converts the argument of Cedarling.authorizeUnsigned.
func (r *Registry) RequestUnsigned(env foreign.Env, obj foreign.Object) (*authz.RequestUnsigned, error) {
	req, err := r.request.RequestUnsigned(r.Context(env), obj)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, &MissingArgumentError{Class: ClassAuthorizeRequestUnsigned}
	}
	return req, nil
}

// Result builds the AuthorizeResult returned to the caller.
func (r *Registry) Result(env foreign.Env, res *authz.Result) (foreign.Object, error) {
	return r.result.Result(r.Context(env), res)
}

// ExceptionClass returns a cached exception class valid in the current call.
func (r *Registry) ExceptionClass(env foreign.Env, name string) (foreign.Class, error) {
	return r.exceptions.LookupClass(env, name)
}

// Stats reports the entry counts of every cache, keyed by cache name.
func (r *Registry) Stats() map[string]handles.Stats {
	out := make(map[string]handles.Stats)
	for _, c := range []*handles.Cache{r.core, r.exceptions, r.config.Cache(), r.request.Cache(), r.result.Cache()} {
		out[c.Name()] = c.Stats()
	}
	return out
}
