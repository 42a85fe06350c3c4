package hostlib

import (
	"encoding/json"
	"fmt"

	"github.com/openfroyo/cedarbridge/pkg/authz"
	"github.com/openfroyo/cedarbridge/pkg/config"
	"github.com/openfroyo/cedarbridge/pkg/foreign/objrt"
)

// builder allocates library objects and remembers the first failure so that a
// whole graph can be built without checking every step.
type builder struct {
	rt  *objrt.Runtime
	err error
}

func (b *builder) object(class string) *objrt.Instance {
	if b.err != nil {
		return nil
	}
	inst, err := b.rt.NewInstance(class, nil)
	if err != nil {
		b.err = err
		return nil
	}
	return inst
}

func (b *builder) enum(class, constant string) *objrt.Instance {
	if b.err != nil {
		return nil
	}
	inst, err := b.rt.Enum(class, constant)
	if err != nil {
		b.err = fmt.Errorf("unknown %s constant %q: %w", class, constant, err)
		return nil
	}
	return inst
}

func (b *builder) str(s string) *objrt.Instance {
	return b.rt.String(s)
}

// optStr returns null for the empty string.
func (b *builder) optStr(s string) *objrt.Instance {
	if s == "" {
		return nil
	}
	return b.rt.String(s)
}

func (b *builder) long(v *int64) *objrt.Instance {
	if v == nil {
		return nil
	}
	return b.rt.Long(*v)
}

func (b *builder) duration(d *config.Duration) *objrt.Instance {
	if d == nil {
		return nil
	}
	return b.rt.Duration(d.Duration)
}

func (b *builder) json(what string, v any) *objrt.Instance {
	if b.err != nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		b.err = fmt.Errorf("failed to encode %s: %w", what, err)
		return nil
	}
	return b.rt.String(string(data))
}

func (b *builder) done(inst *objrt.Instance) (*objrt.Instance, error) {
	if b.err != nil {
		return nil, b.err
	}
	return inst, nil
}

// BuildBootstrap builds a BootstrapConfiguration graph from cfg.
func BuildBootstrap(rt *objrt.Runtime, cfg *config.BootstrapConfig) (*objrt.Instance, error) {
	b := &builder{rt: rt}

	var memory *objrt.Instance
	if m := cfg.Log.Memory; m != nil {
		memory = b.object(ClassMemoryLogConfiguration)
		if memory != nil {
			memory.Set("logTtl", m.LogTTL).
				Set("maxItems", b.long(m.MaxItems)).
				Set("maxItemSize", b.long(m.MaxItemSize))
		}
	}

	logCfg := b.object(ClassLogConfiguration)
	if logCfg != nil {
		logCfg.Set("logType", b.enum(ClassLogType, string(cfg.Log.Type))).
			Set("logLevel", b.enum(ClassLogLevel, string(cfg.Log.Level))).
			Set("memoryLogConfiguration", memory)
	}

	store := b.object(ClassPolicyStoreConfiguration)
	if store != nil {
		store.Set("source", b.enum(ClassPolicyStoreSource, string(cfg.PolicyStore.Source))).
			Set("data", b.optStr(cfg.PolicyStore.Data))
		if cfg.PolicyStore.Path != "" {
			store.Set("dataPath", rt.File(cfg.PolicyStore.Path))
		}
	}

	algs := make([]*objrt.Instance, len(cfg.JWT.SignatureAlgorithms))
	for i, alg := range cfg.JWT.SignatureAlgorithms {
		algs[i] = b.enum(ClassJwtAlgorithm, string(alg))
	}
	jwtCfg := b.object(ClassJwtConfiguration)
	if jwtCfg != nil {
		jwtCfg.Set("jwks", b.optStr(cfg.JWT.JWKS)).
			Set("jwtCheckSignValidation", cfg.JWT.CheckSignature).
			Set("jwtCheckStatusValidation", cfg.JWT.CheckStatus).
			Set("supportedSignatureAlgorithms", rt.List(algs...))
	}

	rule := b.object(ClassJsonRule)
	if rule != nil {
		op := cfg.Authorization.PrincipalBoolOperator
		if op == nil {
			op = map[string]any{}
		}
		rule.Set("value", b.json("principal bool operator", op))
	}
	authzCfg := b.object(ClassAuthorizationConfiguration)
	if authzCfg != nil {
		a := cfg.Authorization
		authzCfg.Set("useUserPrincipal", a.UseUserPrincipal).
			Set("useWorkloadPrincipal", a.UseWorkloadPrincipal).
			Set("principalBoolOperator", rule).
			Set("decisionLogUserClaims", rt.StringList(a.DecisionLogUserClaims...)).
			Set("decisionLogWorkloadClaims", rt.StringList(a.DecisionLogWorkloadClaims...)).
			Set("decisionLogDefaultJwtId", b.str(a.DecisionLogDefaultJwtID)).
			Set("idTokenTrustMode", b.enum(ClassIdTokenTrustMode, string(a.IDTokenTrustMode)))
	}

	names := b.object(ClassEntityNames)
	if names != nil {
		n := cfg.EntityBuilder.EntityNames
		names.Set("user", b.str(n.User)).
			Set("workload", b.str(n.Workload)).
			Set("role", b.str(n.Role)).
			Set("iss", b.str(n.Iss))
	}
	roleSrc := b.object(ClassUnsignedRoleIdSrc)
	if roleSrc != nil {
		roleSrc.Set("value", b.str(cfg.EntityBuilder.UnsignedRoleIDSrc))
	}
	builderCfg := b.object(ClassEntityBuilderConfiguration)
	if builderCfg != nil {
		builderCfg.Set("entityNames", names).
			Set("buildWorkload", cfg.EntityBuilder.BuildWorkload).
			Set("buildUser", cfg.EntityBuilder.BuildUser).
			Set("unsignedRoleIdSrc", roleSrc)
	}

	var lock *objrt.Instance
	if l := cfg.Lock; l != nil {
		lock = b.object(ClassLockServiceConfiguration)
		if lock != nil {
			lock.Set("logLevel", b.enum(ClassLogLevel, string(l.LogLevel))).
				Set("configUri", rt.URI(l.ConfigURI)).
				Set("dynamicConfig", l.DynamicConfig).
				Set("ssaJwt", b.optStr(l.SSAJWT)).
				Set("logInterval", b.duration(l.LogInterval)).
				Set("healthInterval", b.duration(l.HealthInterval)).
				Set("telemetryInterval", b.duration(l.TelemetryInterval)).
				Set("listenSse", l.ListenSSE).
				Set("acceptInvalidCerts", l.AcceptInvalidCerts)
		}
	}

	root := b.object(ClassBootstrapConfiguration)
	if root != nil {
		root.Set("applicationName", b.str(cfg.ApplicationName)).
			Set("logConfiguration", logCfg).
			Set("policyStoreConfiguration", store).
			Set("jwtConfiguration", jwtCfg).
			Set("authzConfiguration", authzCfg).
			Set("entityBuilderConfiguration", builderCfg).
			Set("lockConfiguration", lock)
	}
	return b.done(root)
}

func (b *builder) entityData(e authz.EntityData) *objrt.Instance {
	mapping := b.object(ClassCedarEntityMapping)
	if mapping != nil {
		mapping.Set("id", b.str(e.ID)).Set("entityType", b.str(e.Type))
	}
	attrs := e.Attributes
	if attrs == nil {
		attrs = map[string]any{}
	}
	data := b.object(ClassEntityData)
	if data != nil {
		data.Set("cedarMapping", mapping).Set("attributes", b.json("entity attributes", attrs))
	}
	return data
}

func (b *builder) context(raw json.RawMessage) *objrt.Instance {
	ctx := b.object(ClassContext)
	if ctx == nil {
		return nil
	}
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	return ctx.Set("data", b.str(string(raw)))
}

// BuildRequest builds an AuthorizeRequest from req.
func BuildRequest(rt *objrt.Runtime, req authz.Request) (*objrt.Instance, error) {
	b := &builder{rt: rt}
	resource := b.entityData(req.Resource)
	ctx := b.context(req.Context)

	tokens := make(map[string]string, len(req.Tokens))
	for k, v := range req.Tokens {
		tokens[k] = v
	}
	obj := b.object(ClassAuthorizeRequest)
	if obj != nil {
		obj.Native = tokens
		obj.Set("action", b.str(req.Action)).
			Set("resource", resource).
			Set("context", ctx)
	}
	return b.done(obj)
}

// BuildRequestUnsigned builds an AuthorizeRequestUnsigned from req.
func BuildRequestUnsigned(rt *objrt.Runtime, req authz.RequestUnsigned) (*objrt.Instance, error) {
	b := &builder{rt: rt}
	principals := make([]*objrt.Instance, len(req.Principals))
	for i, p := range req.Principals {
		principals[i] = b.entityData(p)
	}
	resource := b.entityData(req.Resource)
	ctx := b.context(req.Context)

	obj := b.object(ClassAuthorizeRequestUnsigned)
	if obj != nil {
		obj.Set("principals", rt.List(principals...)).
			Set("action", b.str(req.Action)).
			Set("resource", resource).
			Set("context", ctx)
	}
	return b.done(obj)
}
