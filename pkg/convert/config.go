package convert

import (
	"time"

	"github.com/openfroyo/cedarbridge/pkg/config"
	"github.com/openfroyo/cedarbridge/pkg/foreign"
	"github.com/openfroyo/cedarbridge/pkg/handles"
	"github.com/openfroyo/cedarbridge/pkg/marshal"
)

// ConfigConverter reads BootstrapConfiguration graphs into config.BootstrapConfig.
type ConfigConverter struct {
	cache *handles.Cache
}

// NewConfigConverter creates a converter with an empty cache.
func NewConfigConverter() *ConfigConverter {
	return &ConfigConverter{cache: handles.New("config")}
}

// Register resolves ConfigClasses into the converter's cache.
func (c *ConfigConverter) Register(env foreign.Env) error {
	return c.cache.Register(env, ConfigClasses...)
}

// Cache returns the converter's handle cache.
func (c *ConfigConverter) Cache() *handles.Cache {
	return c.cache
}

// Bootstrap converts a BootstrapConfiguration. A null object converts to nil.
func (c *ConfigConverter) Bootstrap(ctx *marshal.Context, obj foreign.Object) (*config.BootstrapConfig, error) {
	if obj.IsNull() {
		return nil, nil
	}
	r := ctx.Read(c.cache, ClassBootstrapConfiguration, obj)

	cfg := &config.BootstrapConfig{}
	var err error
	if cfg.ApplicationName, err = r.String("applicationName"); err != nil {
		return nil, err
	}

	sections := []struct {
		field string
		class string
		read  func(*marshal.Context, foreign.Object) error
	}{
		{"logConfiguration", ClassLogConfiguration, func(ctx *marshal.Context, o foreign.Object) (err error) {
			cfg.Log, err = c.logConfig(ctx, o)
			return err
		}},
		{"policyStoreConfiguration", ClassPolicyStoreConfiguration, func(ctx *marshal.Context, o foreign.Object) (err error) {
			cfg.PolicyStore, err = c.policyStore(ctx, o)
			return err
		}},
		{"jwtConfiguration", ClassJwtConfiguration, func(ctx *marshal.Context, o foreign.Object) (err error) {
			cfg.JWT, err = c.jwtConfig(ctx, o)
			return err
		}},
		{"authzConfiguration", ClassAuthorizationConfiguration, func(ctx *marshal.Context, o foreign.Object) (err error) {
			cfg.Authorization, err = c.authzConfig(ctx, o)
			return err
		}},
		{"entityBuilderConfiguration", ClassEntityBuilderConfiguration, func(ctx *marshal.Context, o foreign.Object) (err error) {
			cfg.EntityBuilder, err = c.entityBuilder(ctx, o)
			return err
		}},
	}
	for _, s := range sections {
		o, err := r.RequireObject(s.field, s.class)
		if err != nil {
			return nil, err
		}
		if err := s.read(ctx, o); err != nil {
			return nil, err
		}
	}

	lockObj, err := r.Object("lockConfiguration", ClassLockServiceConfiguration)
	if err != nil {
		return nil, err
	}
	if cfg.Lock, err = c.lockConfig(ctx, lockObj); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *ConfigConverter) logConfig(ctx *marshal.Context, obj foreign.Object) (config.LogConfig, error) {
	r := ctx.Read(c.cache, ClassLogConfiguration, obj)

	name, err := LogTypes.DecodeField(r, "logType", ClassLogType)
	if err != nil {
		return config.LogConfig{}, err
	}
	level, err := LogLevels.DecodeField(r, "logLevel", ClassLogLevel)
	if err != nil {
		return config.LogConfig{}, err
	}
	memObj, err := r.Object("memoryLogConfiguration", ClassMemoryLogConfiguration)
	if err != nil {
		return config.LogConfig{}, err
	}
	memory, err := c.memoryLog(ctx, memObj)
	if err != nil {
		return config.LogConfig{}, err
	}
	return LogTypeConfig(name, level, memory)
}

// LogTypeConfig resolves a decoded log type against its sibling memory log
// configuration. MEMORY without a memory configuration is a ConfigError; a
// memory configuration under any other type is dropped.
func LogTypeConfig(logType config.LogType, level config.LogLevel, memory *config.MemoryLogConfig) (config.LogConfig, error) {
	switch {
	case logType == config.LogTypeMemory && memory == nil:
		return config.LogConfig{}, &marshal.ConfigError{
			Message: "log type set to MEMORY but no memory log configuration provided",
		}
	case logType != config.LogTypeMemory:
		memory = nil
	}
	return config.LogConfig{Type: logType, Level: level, Memory: memory}, nil
}

func (c *ConfigConverter) memoryLog(ctx *marshal.Context, obj foreign.Object) (*config.MemoryLogConfig, error) {
	if obj.IsNull() {
		return nil, nil
	}
	r := ctx.Read(c.cache, ClassMemoryLogConfiguration, obj)

	ttl, err := r.Long("logTtl")
	if err != nil {
		return nil, err
	}
	maxItems, err := r.OptLong("maxItems")
	if err != nil {
		return nil, err
	}
	maxItemSize, err := r.OptLong("maxItemSize")
	if err != nil {
		return nil, err
	}
	return &config.MemoryLogConfig{LogTTL: ttl, MaxItems: maxItems, MaxItemSize: maxItemSize}, nil
}

func (c *ConfigConverter) policyStore(ctx *marshal.Context, obj foreign.Object) (config.PolicyStoreConfig, error) {
	r := ctx.Read(c.cache, ClassPolicyStoreConfiguration, obj)

	source, err := PolicyStoreSources.DecodeField(r, "source", ClassPolicyStoreSource)
	if err != nil {
		return config.PolicyStoreConfig{}, err
	}
	out := config.PolicyStoreConfig{Source: source}

	if source.IsFile() {
		file, err := r.RequireObject("dataPath", marshal.ClassFile)
		if err != nil {
			return config.PolicyStoreConfig{}, err
		}
		if out.Path, err = ctx.AbsolutePath(file); err != nil {
			return config.PolicyStoreConfig{}, err
		}
		return out, nil
	}

	if out.Data, err = r.String("data"); err != nil {
		return config.PolicyStoreConfig{}, err
	}
	return out, nil
}

func (c *ConfigConverter) jwtConfig(ctx *marshal.Context, obj foreign.Object) (config.JWTConfig, error) {
	r := ctx.Read(c.cache, ClassJwtConfiguration, obj)

	var out config.JWTConfig
	jwks, err := r.OptString("jwks")
	if err != nil {
		return out, err
	}
	if jwks != nil {
		out.JWKS = *jwks
	}
	if out.CheckSignature, err = r.Bool("jwtCheckSignValidation"); err != nil {
		return out, err
	}
	if out.CheckStatus, err = r.Bool("jwtCheckStatusValidation"); err != nil {
		return out, err
	}

	list, err := r.RequireObject("supportedSignatureAlgorithms", marshal.ClassList)
	if err != nil {
		return out, err
	}
	seen := make(map[config.JwtAlgorithm]bool)
	out.SignatureAlgorithms = []config.JwtAlgorithm{}
	err = ctx.Each(list, ClassJwtConfiguration, "supportedSignatureAlgorithms", func(_ int, elem foreign.Object) error {
		alg, err := JwtAlgorithms.Decode(ctx, elem)
		if err != nil {
			return err
		}
		if !seen[alg] {
			seen[alg] = true
			out.SignatureAlgorithms = append(out.SignatureAlgorithms, alg)
		}
		return nil
	})
	return out, err
}

func (c *ConfigConverter) authzConfig(ctx *marshal.Context, obj foreign.Object) (config.AuthorizationConfig, error) {
	r := ctx.Read(c.cache, ClassAuthorizationConfiguration, obj)

	var out config.AuthorizationConfig
	var err error
	if out.UseUserPrincipal, err = r.Bool("useUserPrincipal"); err != nil {
		return out, err
	}
	if out.UseWorkloadPrincipal, err = r.Bool("useWorkloadPrincipal"); err != nil {
		return out, err
	}

	ruleObj, err := r.RequireObject("principalBoolOperator", ClassJsonRule)
	if err != nil {
		return out, err
	}
	if out.PrincipalBoolOperator, err = c.jsonRule(ctx, ruleObj); err != nil {
		return out, err
	}

	if out.DecisionLogUserClaims, err = c.claims(ctx, r, "decisionLogUserClaims"); err != nil {
		return out, err
	}
	if out.DecisionLogWorkloadClaims, err = c.claims(ctx, r, "decisionLogWorkloadClaims"); err != nil {
		return out, err
	}
	if out.DecisionLogDefaultJwtID, err = r.String("decisionLogDefaultJwtId"); err != nil {
		return out, err
	}
	if out.IDTokenTrustMode, err = IDTokenTrustModes.DecodeField(r, "idTokenTrustMode", ClassIdTokenTrustMode); err != nil {
		return out, err
	}
	return out, nil
}

// claims reads a required list of claim names. Null names are skipped.
func (c *ConfigConverter) claims(ctx *marshal.Context, r *marshal.Reader, field string) ([]string, error) {
	list, err := r.RequireObject(field, marshal.ClassList)
	if err != nil {
		return nil, err
	}
	out, err := ctx.Strings(list)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

func (c *ConfigConverter) jsonRule(ctx *marshal.Context, obj foreign.Object) (map[string]any, error) {
	r := ctx.Read(c.cache, ClassJsonRule, obj)
	value, err := r.String("value")
	if err != nil {
		return nil, err
	}
	return marshal.ParseObject(value, "JsonRule.value")
}

func (c *ConfigConverter) entityBuilder(ctx *marshal.Context, obj foreign.Object) (config.EntityBuilderConfig, error) {
	r := ctx.Read(c.cache, ClassEntityBuilderConfiguration, obj)

	var out config.EntityBuilderConfig
	var err error
	if out.BuildWorkload, err = r.Bool("buildWorkload"); err != nil {
		return out, err
	}
	if out.BuildUser, err = r.Bool("buildUser"); err != nil {
		return out, err
	}

	namesObj, err := r.RequireObject("entityNames", ClassEntityNames)
	if err != nil {
		return out, err
	}
	names := ctx.Read(c.cache, ClassEntityNames, namesObj)
	for _, f := range []struct {
		field string
		dst   *string
	}{
		{"user", &out.EntityNames.User},
		{"workload", &out.EntityNames.Workload},
		{"role", &out.EntityNames.Role},
		{"iss", &out.EntityNames.Iss},
	} {
		if *f.dst, err = names.String(f.field); err != nil {
			return out, err
		}
	}

	srcObj, err := r.RequireObject("unsignedRoleIdSrc", ClassUnsignedRoleIdSrc)
	if err != nil {
		return out, err
	}
	if out.UnsignedRoleIDSrc, err = ctx.Read(c.cache, ClassUnsignedRoleIdSrc, srcObj).String("value"); err != nil {
		return out, err
	}
	return out, nil
}

func (c *ConfigConverter) lockConfig(ctx *marshal.Context, obj foreign.Object) (*config.LockServiceConfig, error) {
	if obj.IsNull() {
		return nil, nil
	}
	r := ctx.Read(c.cache, ClassLockServiceConfiguration, obj)

	out := &config.LockServiceConfig{}
	var err error
	if out.LogLevel, err = LogLevels.DecodeField(r, "logLevel", ClassLogLevel); err != nil {
		return nil, err
	}
	uri, err := r.RequireObject("configUri", marshal.ClassURI)
	if err != nil {
		return nil, err
	}
	if out.ConfigURI, err = ctx.ToString(uri); err != nil {
		return nil, err
	}
	if out.DynamicConfig, err = r.Bool("dynamicConfig"); err != nil {
		return nil, err
	}
	ssa, err := r.OptString("ssaJwt")
	if err != nil {
		return nil, err
	}
	if ssa != nil {
		out.SSAJWT = *ssa
	}

	for _, f := range []struct {
		field string
		dst   **config.Duration
	}{
		{"logInterval", &out.LogInterval},
		{"healthInterval", &out.HealthInterval},
		{"telemetryInterval", &out.TelemetryInterval},
	} {
		if *f.dst, err = c.duration(ctx, r, f.field); err != nil {
			return nil, err
		}
	}

	if out.ListenSSE, err = r.Bool("listenSse"); err != nil {
		return nil, err
	}
	if out.AcceptInvalidCerts, err = r.Bool("acceptInvalidCerts"); err != nil {
		return nil, err
	}
	return out, nil
}

// duration reads an optional java/time/Duration field at millisecond precision.
func (c *ConfigConverter) duration(ctx *marshal.Context, r *marshal.Reader, field string) (*config.Duration, error) {
	obj, err := r.Object(field, marshal.ClassDuration)
	if err != nil || obj.IsNull() {
		return nil, err
	}
	ms, err := ctx.Millis(obj)
	if err != nil {
		return nil, err
	}
	return config.NewDuration(time.Duration(ms) * time.Millisecond), nil
}
