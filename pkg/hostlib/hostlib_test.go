package hostlib

import (
	"errors"
	"testing"
	"time"

	"github.com/openfroyo/cedarbridge/pkg/authz"
	"github.com/openfroyo/cedarbridge/pkg/config"
	"github.com/openfroyo/cedarbridge/pkg/foreign"
	"github.com/openfroyo/cedarbridge/pkg/foreign/objrt"
)

// fakeNatives answers every authorization with an allow for one principal.
type fakeNatives struct {
	inits    int
	created  int
	cleanups int
	lastReq  string
	throwOn  string
}

func (f *fakeNatives) throw(env foreign.Env, class, msg string) {
	cls, err := env.FindClass(class)
	if err != nil {
		panic(err)
	}
	if err := env.ThrowNew(cls, msg); err != nil {
		panic(err)
	}
}

func (f *fakeNatives) InitCache(env foreign.Env) { f.inits++ }

func (f *fakeNatives) CreateInstance(env foreign.Env, this, cfg foreign.Object) {
	if f.throwOn == "create" || cfg.IsNull() {
		f.throw(env, ClassConfigurationError, "bad config")
		return
	}
	f.created++
	if err := env.SetLongField(this, "cedarlingRef", int64(f.created)); err != nil {
		panic(err)
	}
}

func (f *fakeNatives) Authorize(env foreign.Env, this, request foreign.Object) foreign.Object {
	if f.throwOn == "authorize" {
		f.throw(env, ClassAuthorizationError, "denied by fake")
		return foreign.Null()
	}
	rt := env.(*objrt.Env)
	req, _ := rt.Export(request)
	action, _ := objrt.StringValue(asInstance(req.Get("action")))
	f.lastReq = action
	return f.result(rt)
}

func (f *fakeNatives) AuthorizeUnsigned(env foreign.Env, this, request foreign.Object) foreign.Object {
	return f.result(env.(*objrt.Env))
}

func (f *fakeNatives) Cleanup(env foreign.Env, this foreign.Object) { f.cleanups++ }

func (f *fakeNatives) result(env *objrt.Env) foreign.Object {
	call := func(obj foreign.Object, class, name, sig string, args ...foreign.Value) {
		cls, _ := env.FindClass(class)
		mid, err := env.GetMethodID(cls, name, sig)
		if err != nil {
			panic(err)
		}
		if err := env.CallVoidMethod(obj, mid, args...); err != nil {
			panic(err)
		}
	}
	newObj := func(class, sig string, args ...foreign.Value) foreign.Object {
		cls, _ := env.FindClass(class)
		ctor, err := env.GetMethodID(cls, "<init>", sig)
		if err != nil {
			panic(err)
		}
		obj, err := env.NewObject(cls, ctor, args...)
		if err != nil {
			panic(err)
		}
		return obj
	}
	str := func(s string) foreign.Value {
		obj, _ := env.NewString(s)
		return foreign.Obj(obj)
	}

	diag := newObj(ClassDiagnostics, "()V")
	policy := newObj(ClassPolicyId, "("+sigString+")V", str("p1"))
	call(diag, ClassDiagnostics, "addPolicyId", "("+sig(ClassPolicyId)+")V", foreign.Obj(policy))
	call(diag, ClassDiagnostics, "addPolicyId", "("+sig(ClassPolicyId)+")V", foreign.Obj(policy))

	allow := env.Import(env.Runtime().MustEnum(ClassAuthzDecision, "ALLOW"))
	resp := newObj(ClassPolicyResponse, "("+sig(ClassAuthzDecision)+sig(ClassDiagnostics)+")V", foreign.Obj(allow), foreign.Obj(diag))

	result := newObj(ClassAuthorizeResult, "()V")
	call(result, ClassAuthorizeResult, "setWorkload", "("+sig(ClassPolicyResponse)+")V", foreign.Obj(resp))
	call(result, ClassAuthorizeResult, "addPrincipal", "("+sigString+sig(ClassPolicyResponse)+")V", str("Jans::Workload"), foreign.Obj(resp))
	call(result, ClassAuthorizeResult, "setDecision", "(Z)V", foreign.Bool(true))
	call(result, ClassAuthorizeResult, "setRequestId", "("+sigString+")V", str("r-1"))
	return result
}

func setupRuntime(t *testing.T) (*objrt.Runtime, *fakeNatives) {
	t.Helper()
	rt := objrt.New()
	natives := &fakeNatives{}
	if err := Install(rt, natives); err != nil {
		t.Fatalf("failed to install library: %v", err)
	}
	return rt, natives
}

func testConfig() *config.BootstrapConfig {
	cfg := config.Default()
	cfg.ApplicationName = "app"
	cfg.PolicyStore = config.PolicyStoreConfig{Source: config.PolicyStoreFileYAML, Path: "store.yaml"}
	cfg.Log.Type = config.LogTypeMemory
	maxItems := int64(5)
	cfg.Log.Memory = &config.MemoryLogConfig{LogTTL: 30, MaxItems: &maxItems}
	cfg.JWT.SignatureAlgorithms = []config.JwtAlgorithm{config.RS256, config.HS256}
	cfg.Authorization.DecisionLogUserClaims = []string{"sub", "email"}
	cfg.Lock = &config.LockServiceConfig{
		LogLevel:    config.LogLevelDebug,
		ConfigURI:   "https://lock.example.com",
		LogInterval: config.NewDuration(10 * time.Second),
	}
	return &cfg
}

func TestInstall(t *testing.T) {
	rt, natives := setupRuntime(t)

	if natives.inits != 1 {
		t.Errorf("expected static initializer to run once, ran %d times", natives.inits)
	}
	if err := Define(rt, natives); err == nil {
		t.Error("expected redefinition to fail")
	}
	if err := Install(objrt.New(), nil); err == nil {
		t.Error("expected install without natives to fail")
	}
}

func TestBuildBootstrap(t *testing.T) {
	rt, _ := setupRuntime(t)

	root, err := BuildBootstrap(rt, testConfig())
	if err != nil {
		t.Fatalf("failed to build bootstrap: %v", err)
	}

	err = rt.Call(func(env *objrt.Env) error {
		get := func(obj foreign.Object, class, field, typeSig string) foreign.Object {
			t.Helper()
			cls, _ := env.FindClass(class)
			mid, err := env.GetMethodID(cls, getterName(field), "()"+typeSig)
			if err != nil {
				t.Fatalf("missing getter %s.%s: %v", class, field, err)
			}
			v, err := env.CallObjectMethod(obj, mid)
			if err != nil {
				t.Fatalf("getter %s.%s failed: %v", class, field, err)
			}
			return v
		}

		obj := env.Import(root)
		name, err := env.GetString(get(obj, ClassBootstrapConfiguration, "applicationName", sigString))
		if err != nil || name != "app" {
			t.Errorf("expected application name 'app', got %q (%v)", name, err)
		}

		logCfg := get(obj, ClassBootstrapConfiguration, "logConfiguration", sig(ClassLogConfiguration))
		logType, _ := env.Export(get(logCfg, ClassLogConfiguration, "logType", sig(ClassLogType)))
		if n, _ := objrt.EnumName(logType); n != "MEMORY" {
			t.Errorf("expected MEMORY log type, got %s", n)
		}
		memory := get(logCfg, ClassLogConfiguration, "memoryLogConfiguration", sig(ClassMemoryLogConfiguration))
		if memory.IsNull() {
			t.Fatal("expected memory configuration")
		}
		maxItemSize := get(memory, ClassMemoryLogConfiguration, "maxItemSize", sigLong)
		if !maxItemSize.IsNull() {
			t.Error("expected unset max item size to be null")
		}

		jwtCfg := get(obj, ClassBootstrapConfiguration, "jwtConfiguration", sig(ClassJwtConfiguration))
		algs, _ := env.Export(get(jwtCfg, ClassJwtConfiguration, "supportedSignatureAlgorithms", sigList))
		items, _ := objrt.ListItems(algs)
		if len(items) != 2 {
			t.Fatalf("expected 2 algorithms, got %d", len(items))
		}
		if n, _ := objrt.EnumName(items[1]); n != "HS256" {
			t.Errorf("expected HS256 second, got %s", n)
		}
		jwks := get(jwtCfg, ClassJwtConfiguration, "jwks", sigString)
		if !jwks.IsNull() {
			t.Error("expected empty jwks to be null")
		}

		lock := get(obj, ClassBootstrapConfiguration, "lockConfiguration", sig(ClassLockServiceConfiguration))
		interval, _ := env.Export(get(lock, ClassLockServiceConfiguration, "logInterval", sigDuration))
		if d, _ := interval.Native.(time.Duration); d != 10*time.Second {
			t.Errorf("expected 10s log interval, got %v", d)
		}
		health := get(lock, ClassLockServiceConfiguration, "healthInterval", sigDuration)
		if !health.IsNull() {
			t.Error("expected unset health interval to be null")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("call failed: %v", err)
	}
}

func TestBuildBootstrap_UnknownEnum(t *testing.T) {
	rt, _ := setupRuntime(t)
	cfg := testConfig()
	cfg.Log.Level = "VERBOSE"

	if _, err := BuildBootstrap(rt, cfg); err == nil {
		t.Fatal("expected error for unknown log level")
	}
}

func TestBuildRequest_Tokens(t *testing.T) {
	rt, _ := setupRuntime(t)

	req, err := BuildRequest(rt, authz.Request{
		Tokens:   map[string]string{"id_token": "b", "access_token": "a"},
		Action:   "Read",
		Resource: authz.EntityData{Type: "App", ID: "1"},
	})
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}

	err = rt.Call(func(env *objrt.Env) error {
		cls, _ := env.FindClass(ClassAuthorizeRequest)
		namesID, err := env.GetMethodID(cls, "getTokenNames", "()"+sigList)
		if err != nil {
			return err
		}
		tokenID, err := env.GetMethodID(cls, "getToken", "("+sigString+")"+sigString)
		if err != nil {
			return err
		}

		obj := env.Import(req)
		namesObj, err := env.CallObjectMethod(obj, namesID)
		if err != nil {
			return err
		}
		names, _ := env.Export(namesObj)
		items, _ := objrt.ListItems(names)
		if len(items) != 2 {
			t.Fatalf("expected 2 token names, got %d", len(items))
		}
		if first, _ := objrt.StringValue(items[0]); first != "access_token" {
			t.Errorf("expected sorted names, got %s first", first)
		}

		for name, want := range map[string]string{"access_token": "a", "userinfo_token": ""} {
			key, _ := env.NewString(name)
			tok, err := env.CallObjectMethod(obj, tokenID, foreign.Obj(key))
			if err != nil {
				return err
			}
			if want == "" {
				if !tok.IsNull() {
					t.Errorf("expected null for %s", name)
				}
				continue
			}
			got, _ := env.GetString(tok)
			if got != want {
				t.Errorf("expected token %q for %s, got %q", want, name, got)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("call failed: %v", err)
	}
}

func TestCedarling_RoundTrip(t *testing.T) {
	rt, natives := setupRuntime(t)

	c, err := New(rt, testConfig())
	if err != nil {
		t.Fatalf("failed to create cedarling: %v", err)
	}
	if ref, _ := c.Instance().Get("cedarlingRef").(int64); ref != 1 {
		t.Errorf("expected cedarlingRef 1, got %d", ref)
	}

	result, err := c.Authorize(authz.Request{
		Tokens:   map[string]string{"access_token": "abc"},
		Action:   `Jans::Action::"View"`,
		Resource: authz.EntityData{Type: "App", ID: "1"},
	})
	if err != nil {
		t.Fatalf("authorize failed: %v", err)
	}
	if natives.lastReq != `Jans::Action::"View"` {
		t.Errorf("expected action to reach natives, got %q", natives.lastReq)
	}
	if !result.Decision || result.RequestID != "r-1" {
		t.Errorf("unexpected result: %+v", result)
	}
	if result.Person != nil {
		t.Error("expected no person response")
	}
	if result.Workload == nil || result.Workload.Decision != authz.Allow {
		t.Fatalf("expected workload allow, got %+v", result.Workload)
	}
	if len(result.Workload.Diagnostics.Reason) != 1 {
		t.Errorf("expected duplicate policy ids to collapse, got %v", result.Workload.Diagnostics.Reason)
	}
	if _, ok := result.Principals["Jans::Workload"]; !ok {
		t.Errorf("expected workload principal, got %v", result.Principals)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if natives.cleanups != 1 {
		t.Errorf("expected one cleanup, got %d", natives.cleanups)
	}
}

func TestCedarling_Exceptions(t *testing.T) {
	rt, natives := setupRuntime(t)

	t.Run("constructor", func(t *testing.T) {
		_, err := NewFromObject(rt, nil)
		var exc *objrt.Exception
		if !errors.As(err, &exc) {
			t.Fatalf("expected exception, got %v", err)
		}
		if exc.Class != ClassConfigurationError {
			t.Errorf("expected %s, got %s", ClassConfigurationError, exc.Class)
		}
	})

	t.Run("authorize", func(t *testing.T) {
		c, err := New(rt, testConfig())
		if err != nil {
			t.Fatalf("failed to create cedarling: %v", err)
		}
		natives.throwOn = "authorize"
		defer func() { natives.throwOn = "" }()

		_, err = c.Authorize(authz.Request{Action: "Read", Resource: authz.EntityData{Type: "App", ID: "1"}})
		var exc *objrt.Exception
		if !errors.As(err, &exc) {
			t.Fatalf("expected exception, got %v", err)
		}
		if exc.Class != ClassAuthorizationError || exc.Message != "denied by fake" {
			t.Errorf("unexpected exception: %v", exc)
		}
	})
}
