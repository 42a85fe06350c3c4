package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/openfroyo/cedarbridge/pkg/authz"
	"github.com/openfroyo/cedarbridge/pkg/config"
	"github.com/openfroyo/cedarbridge/pkg/convert"
	"github.com/openfroyo/cedarbridge/pkg/foreign"
	"github.com/openfroyo/cedarbridge/pkg/foreign/objrt"
	"github.com/openfroyo/cedarbridge/pkg/hostlib"
	"github.com/openfroyo/cedarbridge/pkg/telemetry"
)

var _ hostlib.Natives = (*Bridge)(nil)

type fakeEngine struct {
	mu       sync.Mutex
	requests []authz.Request
	unsigned []authz.RequestUnsigned
	closed   int

	result   *authz.Result
	err      error
	closeErr error
	delay    time.Duration

	active    atomic.Int32
	maxActive atomic.Int32
}

func (f *fakeEngine) enter() func() {
	n := f.active.Add(1)
	for {
		max := f.maxActive.Load()
		if n <= max || f.maxActive.CompareAndSwap(max, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return func() { f.active.Add(-1) }
}

func (f *fakeEngine) Authorize(_ context.Context, req authz.Request) (*authz.Result, error) {
	defer f.enter()()
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeEngine) AuthorizeUnsigned(_ context.Context, req authz.RequestUnsigned) (*authz.Result, error) {
	defer f.enter()()
	f.mu.Lock()
	f.unsigned = append(f.unsigned, req)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeEngine) Close(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return f.closeErr
}

func allowResult() *authz.Result {
	return &authz.Result{
		Workload: &authz.PolicyResponse{
			Decision:    authz.Allow,
			Diagnostics: authz.Diagnostics{Reason: []string{"policy-1"}, Errors: []string{}},
		},
		Principals: map[string]authz.PolicyResponse{},
		Decision:   true,
		RequestID:  "r-1",
	}
}

func bridgeConfig() *config.BootstrapConfig {
	cfg := config.Default()
	cfg.ApplicationName = "app"
	cfg.PolicyStore = config.PolicyStoreConfig{Source: config.PolicyStoreJSON, Data: "{}"}
	return &cfg
}

func signedRequest() authz.Request {
	return authz.Request{
		Tokens:   map[string]string{"access_token": "abc"},
		Action:   "View",
		Resource: authz.EntityData{Type: "App", ID: "1", Attributes: map[string]any{}},
		Context:  json.RawMessage("{}"),
	}
}

type harness struct {
	rt      *objrt.Runtime
	bridge  *Bridge
	engine  *fakeEngine
	tel     *telemetry.Telemetry
	configs []*config.BootstrapConfig
}

func setupBridge(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		rt:     objrt.New(),
		engine: &fakeEngine{result: allowResult()},
	}
	tel, err := telemetry.NewTelemetry(telemetry.TestConfig())
	if err != nil {
		t.Fatalf("failed to create telemetry: %v", err)
	}
	h.tel = tel
	h.bridge = New(
		WithTelemetry(tel),
		WithEngineFactory(func(_ context.Context, cfg *config.BootstrapConfig) (Engine, error) {
			h.configs = append(h.configs, cfg)
			return h.engine, nil
		}),
	)
	if err := hostlib.Install(h.rt, h.bridge); err != nil {
		t.Fatalf("failed to install class library: %v", err)
	}
	return h
}

func (h *harness) create(t *testing.T) *hostlib.Cedarling {
	t.Helper()
	c, err := hostlib.New(h.rt, bridgeConfig())
	if err != nil {
		t.Fatalf("failed to create Cedarling: %v", err)
	}
	return c
}

func expectException(t *testing.T, err error, class, contains string) {
	t.Helper()
	var exc *objrt.Exception
	if !errors.As(err, &exc) {
		t.Fatalf("expected a pending exception, got %v", err)
	}
	if exc.Class != class {
		t.Errorf("expected exception %s, got %s", class, exc.Class)
	}
	if !strings.Contains(exc.Message, contains) {
		t.Errorf("expected message containing %q, got %q", contains, exc.Message)
	}
}

func TestInit(t *testing.T) {
	h := setupBridge(t)

	stats := h.bridge.Registry().Stats()
	if stats["request"].Methods == 0 {
		t.Error("expected request methods to be cached")
	}
	if n, err := testutil.GatherAndCount(h.tel.Metrics.Registry(), "cedarbridge_cached_handles"); err != nil || n == 0 {
		t.Errorf("expected cached handle gauges, got %d (%v)", n, err)
	}

	var initErr error
	err := h.rt.Call(func(env *objrt.Env) error {
		initErr = h.bridge.Init(env)
		return nil
	})
	if !errors.Is(initErr, ErrAlreadyInitialized) {
		t.Errorf("expected ErrAlreadyInitialized, got %v", initErr)
	}
	expectException(t, err, convert.ClassCedarlingError, "already initialized")
}

func TestAuthorize_Signed(t *testing.T) {
	h := setupBridge(t)
	c := h.create(t)

	res, err := c.Authorize(signedRequest())
	if err != nil {
		t.Fatalf("authorize failed: %v", err)
	}
	if !res.Decision {
		t.Error("expected decision true")
	}
	if res.RequestID != "r-1" {
		t.Errorf("expected request id r-1, got %q", res.RequestID)
	}

	if len(h.engine.requests) != 1 {
		t.Fatalf("expected 1 engine call, got %d", len(h.engine.requests))
	}
	got := h.engine.requests[0]
	if got.Tokens["access_token"] != "abc" || got.Action != "View" {
		t.Errorf("unexpected request %+v", got)
	}
	if got.Resource.Type != "App" || got.Resource.ID != "1" || string(got.Context) != "{}" {
		t.Errorf("unexpected resource or context %+v", got)
	}
	if len(h.configs) != 1 || h.configs[0].ApplicationName != "app" {
		t.Errorf("expected the converted configuration to reach the engine, got %v", h.configs)
	}
}

func TestAuthorize_Unsigned(t *testing.T) {
	h := setupBridge(t)
	c := h.create(t)

	req := authz.RequestUnsigned{
		Principals: []authz.EntityData{
			{Type: "Jans::User", ID: "alice", Attributes: map[string]any{}},
			{Type: "Jans::User", ID: "bob", Attributes: map[string]any{}},
		},
		Action:   `Jans::Action::"Read"`,
		Resource: authz.EntityData{Type: "Jans::Issue", ID: "1", Attributes: map[string]any{}},
	}
	if _, err := c.AuthorizeUnsigned(req); err != nil {
		t.Fatalf("authorize failed: %v", err)
	}
	if len(h.engine.unsigned) != 1 {
		t.Fatalf("expected 1 engine call, got %d", len(h.engine.unsigned))
	}
	if p := h.engine.unsigned[0].Principals; len(p) != 2 || p[0].ID != "alice" || p[1].ID != "bob" {
		t.Errorf("expected principals in order, got %+v", p)
	}
}

func TestAuthorize_UnsignedNullPrincipal(t *testing.T) {
	h := setupBridge(t)
	c := h.create(t)

	reqObj, err := hostlib.BuildRequestUnsigned(h.rt, authz.RequestUnsigned{
		Principals: []authz.EntityData{
			{Type: "Jans::User", ID: "alice"},
			{Type: "Jans::User", ID: "bob"},
		},
		Action:   "Read",
		Resource: authz.EntityData{Type: "Jans::Issue", ID: "1"},
	})
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	items, _ := objrt.ListItems(reqObj.Get("principals").(*objrt.Instance))
	reqObj.Set("principals", h.rt.List(items[0], nil, items[1]))

	_, err = c.AuthorizeUnsignedObject(reqObj)
	expectException(t, err, convert.ClassAuthorizationError, "index 1")
	if len(h.engine.unsigned) != 0 {
		t.Error("expected the engine not to be invoked")
	}
}

func TestCreateInstance_Failures(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(rt *objrt.Runtime, root *objrt.Instance)
		contains string
	}{
		{
			name: "trust mode missing",
			mutate: func(rt *objrt.Runtime, root *objrt.Instance) {
				root.Get("authzConfiguration").(*objrt.Instance).Set("idTokenTrustMode", nil)
			},
			contains: "AuthorizationConfiguration.idTokenTrustMode cannot be null",
		},
		{
			name: "memory log without memory configuration",
			mutate: func(rt *objrt.Runtime, root *objrt.Instance) {
				root.Get("logConfiguration").(*objrt.Instance).
					Set("logType", rt.MustEnum(hostlib.ClassLogType, "MEMORY")).
					Set("memoryLogConfiguration", nil)
			},
			contains: "configuration error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := setupBridge(t)
			root, err := hostlib.BuildBootstrap(h.rt, bridgeConfig())
			if err != nil {
				t.Fatalf("failed to build configuration: %v", err)
			}
			tt.mutate(h.rt, root)

			_, err = hostlib.NewFromObject(h.rt, root)
			expectException(t, err, convert.ClassConfigurationError, tt.contains)
			if len(h.configs) != 0 {
				t.Error("expected the engine not to be built")
			}
			if h.bridge.LiveInstances() != 0 {
				t.Error("expected no attached instance")
			}
		})
	}
}

func TestCreateInstance_NullConfig(t *testing.T) {
	h := setupBridge(t)

	_, err := hostlib.NewFromObject(h.rt, nil)
	expectException(t, err, convert.ClassConfigurationError, "BootstrapConfiguration cannot be null")
}

func TestCreateInstance_EngineFailure(t *testing.T) {
	rt := objrt.New()
	b := New(WithEngineFactory(func(context.Context, *config.BootstrapConfig) (Engine, error) {
		return nil, errors.New("policy store unreadable")
	}))
	if err := hostlib.Install(rt, b); err != nil {
		t.Fatalf("failed to install class library: %v", err)
	}

	_, err := hostlib.New(rt, bridgeConfig())
	expectException(t, err, convert.ClassConfigurationError, "policy store unreadable")
}

func TestAuthorize_EngineFailure(t *testing.T) {
	h := setupBridge(t)
	h.engine.err = errors.New("token expired")
	c := h.create(t)

	_, err := c.Authorize(signedRequest())
	expectException(t, err, convert.ClassAuthorizationError, "authorization failed: authorize: token expired")

	n, err := testutil.GatherAndCount(h.tel.Metrics.Registry(), "cedarbridge_bridge_failures_total")
	if err != nil || n != 1 {
		t.Errorf("expected one failure series, got %d (%v)", n, err)
	}
}

func TestCleanup(t *testing.T) {
	h := setupBridge(t)
	before := h.rt.GlobalRefs()
	c := h.create(t)

	if h.rt.GlobalRefs() != before+1 {
		t.Errorf("expected one durable reference for the instance owner, got %d", h.rt.GlobalRefs()-before)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if h.engine.closed != 1 {
		t.Errorf("expected engine to be closed once, got %d", h.engine.closed)
	}
	if h.rt.GlobalRefs() != before {
		t.Error("expected the owner reference to be released")
	}
	if h.bridge.LiveInstances() != 0 {
		t.Error("expected no attached instance")
	}

	err := c.Close()
	expectException(t, err, convert.ClassCedarlingError, "failed to release Cedarling instance: no engine instance attached")

	_, err = c.Authorize(signedRequest())
	expectException(t, err, convert.ClassAuthorizationError, "no engine instance attached")
}

func TestRelease_NotFound(t *testing.T) {
	h := setupBridge(t)
	c := h.create(t)
	if err := c.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	var releaseErr error
	_ = h.rt.Call(func(env *objrt.Env) error {
		releaseErr = h.bridge.Release(env, env.Import(c.Instance()))
		return nil
	})
	var target *InstanceNotFoundError
	if !errors.As(releaseErr, &target) {
		t.Fatalf("expected InstanceNotFoundError, got %v", releaseErr)
	}
	if Classify(releaseErr) != "instance" {
		t.Errorf("expected instance class, got %s", Classify(releaseErr))
	}
}

// fieldFailEnv fails every write of the instance field.
type fieldFailEnv struct {
	foreign.Env
}

func (e fieldFailEnv) SetLongField(foreign.Object, string, int64) error {
	return &foreign.CallError{Op: "SetLongField", Err: errors.New("field is read-only")}
}

func TestRelease_FieldWriteFailure(t *testing.T) {
	h := setupBridge(t)
	before := h.rt.GlobalRefs()
	c := h.create(t)

	var releaseErr error
	_ = h.rt.Call(func(env *objrt.Env) error {
		releaseErr = h.bridge.Release(fieldFailEnv{env}, env.Import(c.Instance()))
		return nil
	})
	if !IsBoundary(releaseErr) {
		t.Fatalf("expected boundary error, got %v", releaseErr)
	}
	if h.engine.closed != 1 {
		t.Errorf("expected engine to be closed once, got %d", h.engine.closed)
	}
	if h.rt.GlobalRefs() != before {
		t.Error("expected the owner reference to be released")
	}
	if h.bridge.LiveInstances() != 0 {
		t.Error("expected no attached instance")
	}
}

func TestCreateInstance_ConcurrentAttach(t *testing.T) {
	rt := objrt.New()
	var (
		mu      sync.Mutex
		engines []*fakeEngine
		calls   atomic.Int32
	)
	both := make(chan struct{})
	b := New(WithEngineFactory(func(context.Context, *config.BootstrapConfig) (Engine, error) {
		if calls.Add(1) == 2 {
			close(both)
		}
		select {
		case <-both:
		case <-time.After(time.Second):
		}
		e := &fakeEngine{result: allowResult()}
		mu.Lock()
		engines = append(engines, e)
		mu.Unlock()
		return e, nil
	}))
	if err := hostlib.Install(rt, b); err != nil {
		t.Fatalf("failed to install class library: %v", err)
	}

	this, err := rt.NewInstance(hostlib.ClassCedarling, nil)
	if err != nil {
		t.Fatalf("failed to allocate Cedarling: %v", err)
	}
	cfgObj, err := hostlib.BuildBootstrap(rt, bridgeConfig())
	if err != nil {
		t.Fatalf("failed to build configuration: %v", err)
	}
	before := rt.GlobalRefs()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = rt.Call(func(env *objrt.Env) error {
				errs[i] = b.Create(env, env.Import(this), env.Import(cfgObj))
				return nil
			})
		}(i)
	}
	wg.Wait()

	var attached int
	for _, err := range errs {
		var target *InstanceAttachedError
		if errors.As(err, &target) {
			attached++
		} else if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if attached != 1 {
		t.Fatalf("expected exactly one create to lose, got %v", errs)
	}
	if b.LiveInstances() != 1 {
		t.Errorf("expected one attached instance, got %d", b.LiveInstances())
	}
	if rt.GlobalRefs() != before+1 {
		t.Errorf("expected one durable reference, got %d", rt.GlobalRefs()-before)
	}

	var closed int
	for _, e := range engines {
		closed += e.closed
	}
	if len(engines) != 2 || closed != 1 {
		t.Errorf("expected the losing engine to be closed, built %d closed %d", len(engines), closed)
	}
}

func TestAuthorize_Serialized(t *testing.T) {
	h := setupBridge(t)
	h.engine.delay = 5 * time.Millisecond
	c := h.create(t)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Authorize(signedRequest()); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("authorize failed: %v", err)
	}

	if got := h.engine.maxActive.Load(); got != 1 {
		t.Errorf("expected calls on one instance to be serialized, saw %d at once", got)
	}
	if len(h.engine.requests) != 8 {
		t.Errorf("expected 8 engine calls, got %d", len(h.engine.requests))
	}
}

func TestAuthorize_BeforeInit(t *testing.T) {
	rt := objrt.New()
	b := New(WithEngineFactory(func(context.Context, *config.BootstrapConfig) (Engine, error) {
		return &fakeEngine{result: allowResult()}, nil
	}))
	if err := hostlib.Define(rt, b); err != nil {
		t.Fatalf("failed to define class library: %v", err)
	}

	_, err := hostlib.New(rt, bridgeConfig())
	expectException(t, err, convert.ClassConfigurationError, "cached")
}

func TestEntryPointSpans(t *testing.T) {
	var buf bytes.Buffer
	cfg := telemetry.TestConfig()
	cfg.Tracing.Enabled = true
	cfg.Tracing.Exporter = "stdout"
	cfg.Tracing.Writer = &buf
	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		t.Fatalf("failed to create telemetry: %v", err)
	}

	rt := objrt.New()
	b := New(WithTelemetry(tel), WithEngineFactory(func(context.Context, *config.BootstrapConfig) (Engine, error) {
		return &fakeEngine{result: allowResult()}, nil
	}))
	if err := hostlib.Install(rt, b); err != nil {
		t.Fatalf("failed to install class library: %v", err)
	}
	c, err := hostlib.New(rt, bridgeConfig())
	if err != nil {
		t.Fatalf("failed to create Cedarling: %v", err)
	}
	if _, err := c.Authorize(signedRequest()); err != nil {
		t.Fatalf("authorize failed: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := tel.Shutdown(context.Background()); err != nil {
		t.Fatalf("failed to shut down telemetry: %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		`"Name": "bridge.initCache"`,
		`"Name": "bridge.createInstance"`,
		`"Name": "bridge.authorize"`,
		`"Name": "bridge.cleanup"`,
		`"Name": "instance.attached"`,
		`"Name": "instance.released"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in exported spans", want)
		}
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{&EngineError{Op: "authorize", Err: errors.New("boom")}, "engine"},
		{&InstanceNotFoundError{ID: 3}, "instance"},
		{&convert.MissingArgumentError{Class: convert.ClassAuthorizeRequest}, "domain"},
		{ErrAlreadyInitialized, "unknown"},
		{&foreign.CallError{Op: "GetString", Err: errors.New("bad ref")}, "boundary"},
	}
	for _, tt := range tests {
		if got := Classify(tt.err); got != tt.want {
			t.Errorf("Classify(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
