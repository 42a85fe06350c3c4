package hostlib

import (
	"errors"
	"fmt"
	"sort"
	"unicode"
	"unicode/utf8"

	"github.com/openfroyo/cedarbridge/pkg/foreign/objrt"
)

const pkg = "io/jans/cedarling/bridge/"

// Library class names.
const (
	ClassCedarling          = pkg + "Cedarling"
	ClassCedarlingError     = pkg + "CedarlingError"
	ClassConfigurationError = pkg + "config/CedarlingConfigurationError"
	ClassAuthorizationError = pkg + "authz/CedarlingAuthorizationError"

	ClassBootstrapConfiguration     = pkg + "config/BootstrapConfiguration"
	ClassLogConfiguration           = pkg + "config/LogConfiguration"
	ClassMemoryLogConfiguration     = pkg + "config/MemoryLogConfiguration"
	ClassPolicyStoreConfiguration   = pkg + "config/PolicyStoreConfiguration"
	ClassJwtConfiguration           = pkg + "config/JwtConfiguration"
	ClassAuthorizationConfiguration = pkg + "config/AuthorizationConfiguration"
	ClassJsonRule                   = pkg + "config/JsonRule"
	ClassEntityBuilderConfiguration = pkg + "config/EntityBuilderConfiguration"
	ClassEntityNames                = pkg + "config/EntityNames"
	ClassUnsignedRoleIdSrc          = pkg + "config/UnsignedRoleIdSrc"
	ClassLockServiceConfiguration   = pkg + "config/LockServiceConfiguration"

	ClassLogType           = pkg + "config/LogType"
	ClassLogLevel          = pkg + "config/LogLevel"
	ClassPolicyStoreSource = pkg + "config/PolicyStoreSource"
	ClassJwtAlgorithm      = pkg + "config/JwtAlgorithm"
	ClassIdTokenTrustMode  = pkg + "config/IdTokenTrustMode"

	ClassAuthorizeRequest         = pkg + "authz/AuthorizeRequest"
	ClassAuthorizeRequestUnsigned = pkg + "authz/AuthorizeRequestUnsigned"
	ClassEntityData               = pkg + "authz/EntityData"
	ClassCedarEntityMapping       = pkg + "authz/CedarEntityMapping"
	ClassContext                  = pkg + "authz/Context"
	ClassAuthorizeResult          = pkg + "authz/AuthorizeResult"

	ClassPolicyResponse = pkg + "cedar/policy/PolicyResponse"
	ClassDiagnostics    = pkg + "cedar/policy/Diagnostics"
	ClassPolicyId       = pkg + "cedar/policy/PolicyId"
	ClassAuthzError     = pkg + "cedar/policy/AuthzError"
	ClassAuthzDecision  = pkg + "cedar/policy/AuthzDecision"
)

// Enum constants in declaration order.
var (
	LogTypes           = []string{"OFF", "MEMORY", "STDOUT", "LOCK"}
	LogLevels          = []string{"FATAL", "ERROR", "WARN", "INFO", "DEBUG", "TRACE"}
	PolicyStoreSources = []string{"JSON", "YAML", "LOCKMASTER", "FILEJSON", "FILEYAML"}
	JwtAlgorithms      = []string{
		"HS256", "HS384", "HS512", "ES256", "ES384", "RS256",
		"RS384", "RS512", "PS256", "PS384", "PS512", "EdDSA",
	}
	IdTokenTrustModes = []string{"NONE", "STRICT"}
	AuthzDecisions    = []string{"ALLOW", "DENY"}
)

const (
	sigString   = "Ljava/lang/String;"
	sigList     = "Ljava/util/List;"
	sigLong     = "Ljava/lang/Long;"
	sigFile     = "Ljava/io/File;"
	sigURI      = "Ljava/net/URI;"
	sigDuration = "Ljava/time/Duration;"
)

var errUninitialized = errors.New("object not initialized by its constructor")

func sig(class string) string {
	return "L" + class + ";"
}

func getterName(field string) string {
	r, size := utf8.DecodeRuneInString(field)
	return "get" + string(unicode.ToUpper(r)) + field[size:]
}

type member struct {
	key  string
	impl objrt.Method
}

// getter reads field. Primitive getters return the zero value for unset fields.
func getter(field, typeSig string) member {
	impl := objrt.Getter(field)
	switch typeSig {
	case "Z":
		impl = func(_ *objrt.Env, this *objrt.Instance, _ []any) (any, error) {
			v, _ := this.Get(field).(bool)
			return v, nil
		}
	case "J":
		impl = func(_ *objrt.Env, this *objrt.Instance, _ []any) (any, error) {
			v, _ := this.Get(field).(int64)
			return v, nil
		}
	}
	return member{key: getterName(field) + "()" + typeSig, impl: impl}
}

// setter stores its single argument in field.
func setter(name, field, argSig string) member {
	return member{
		key: name + "(" + argSig + ")V",
		impl: func(_ *objrt.Env, this *objrt.Instance, args []any) (any, error) {
			this.Set(field, args[0])
			return nil, nil
		},
	}
}

func method(key string, impl objrt.Method) member {
	return member{key: key, impl: impl}
}

func methods(members ...member) map[string]objrt.Method {
	out := make(map[string]objrt.Method, len(members))
	for _, m := range members {
		out[m.key] = m.impl
	}
	return out
}

type resultData struct {
	principals []principalEntry
}

type principalEntry struct {
	key      string
	response *objrt.Instance
}

type diagnosticsData struct {
	reason []string
	errors []string
}

// Define installs the class library into rt. Cedarling's native methods are
// bound to natives.
func Define(rt *objrt.Runtime, natives Natives) error {
	for _, enum := range []struct {
		name      string
		constants []string
	}{
		{ClassLogType, LogTypes},
		{ClassLogLevel, LogLevels},
		{ClassPolicyStoreSource, PolicyStoreSources},
		{ClassJwtAlgorithm, JwtAlgorithms},
		{ClassIdTokenTrustMode, IdTokenTrustModes},
		{ClassAuthzDecision, AuthzDecisions},
	} {
		if err := rt.DefineEnum(enum.name, enum.constants...); err != nil {
			return fmt.Errorf("failed to define enum %s: %w", enum.name, err)
		}
	}

	for _, def := range classDefs(natives) {
		if err := rt.DefineClass(def); err != nil {
			return fmt.Errorf("failed to define class %s: %w", def.Name, err)
		}
	}
	return nil
}

func classDefs(natives Natives) []objrt.ClassDef {
	return []objrt.ClassDef{
		{Name: ClassCedarlingError, Super: objrt.ClassException},
		{Name: ClassConfigurationError, Super: ClassCedarlingError},
		{Name: ClassAuthorizationError, Super: ClassCedarlingError},

		{
			Name: ClassMemoryLogConfiguration,
			Methods: methods(
				getter("logTtl", "J"),
				getter("maxItems", sigLong),
				getter("maxItemSize", sigLong),
			),
		},
		{
			Name: ClassLogConfiguration,
			Methods: methods(
				getter("logType", sig(ClassLogType)),
				getter("logLevel", sig(ClassLogLevel)),
				getter("memoryLogConfiguration", sig(ClassMemoryLogConfiguration)),
			),
		},
		{
			Name: ClassPolicyStoreConfiguration,
			Methods: methods(
				getter("source", sig(ClassPolicyStoreSource)),
				getter("data", sigString),
				getter("dataPath", sigFile),
			),
		},
		{
			Name: ClassJwtConfiguration,
			Methods: methods(
				getter("jwks", sigString),
				getter("jwtCheckSignValidation", "Z"),
				getter("jwtCheckStatusValidation", "Z"),
				getter("supportedSignatureAlgorithms", sigList),
			),
		},
		{
			Name:    ClassJsonRule,
			Methods: methods(getter("value", sigString)),
		},
		{
			Name: ClassAuthorizationConfiguration,
			Methods: methods(
				getter("useUserPrincipal", "Z"),
				getter("useWorkloadPrincipal", "Z"),
				getter("principalBoolOperator", sig(ClassJsonRule)),
				getter("decisionLogUserClaims", sigList),
				getter("decisionLogWorkloadClaims", sigList),
				getter("decisionLogDefaultJwtId", sigString),
				getter("idTokenTrustMode", sig(ClassIdTokenTrustMode)),
			),
		},
		{
			Name: ClassEntityNames,
			Methods: methods(
				getter("user", sigString),
				getter("workload", sigString),
				getter("role", sigString),
				getter("iss", sigString),
			),
		},
		{
			Name:    ClassUnsignedRoleIdSrc,
			Methods: methods(getter("value", sigString)),
		},
		{
			Name: ClassEntityBuilderConfiguration,
			Methods: methods(
				getter("entityNames", sig(ClassEntityNames)),
				getter("buildWorkload", "Z"),
				getter("buildUser", "Z"),
				getter("unsignedRoleIdSrc", sig(ClassUnsignedRoleIdSrc)),
			),
		},
		{
			Name: ClassLockServiceConfiguration,
			Methods: methods(
				getter("logLevel", sig(ClassLogLevel)),
				getter("configUri", sigURI),
				getter("dynamicConfig", "Z"),
				getter("ssaJwt", sigString),
				getter("logInterval", sigDuration),
				getter("healthInterval", sigDuration),
				getter("telemetryInterval", sigDuration),
				getter("listenSse", "Z"),
				getter("acceptInvalidCerts", "Z"),
			),
		},
		{
			Name: ClassBootstrapConfiguration,
			Methods: methods(
				getter("applicationName", sigString),
				getter("logConfiguration", sig(ClassLogConfiguration)),
				getter("policyStoreConfiguration", sig(ClassPolicyStoreConfiguration)),
				getter("jwtConfiguration", sig(ClassJwtConfiguration)),
				getter("authzConfiguration", sig(ClassAuthorizationConfiguration)),
				getter("entityBuilderConfiguration", sig(ClassEntityBuilderConfiguration)),
				getter("lockConfiguration", sig(ClassLockServiceConfiguration)),
			),
		},

		{
			Name: ClassCedarEntityMapping,
			Methods: methods(
				getter("id", sigString),
				getter("entityType", sigString),
			),
		},
		{
			Name: ClassEntityData,
			Methods: methods(
				getter("cedarMapping", sig(ClassCedarEntityMapping)),
				getter("type", sigString),
				getter("id", sigString),
				getter("attributes", sigString),
			),
		},
		{
			Name:    ClassContext,
			Methods: methods(getter("data", sigString)),
		},
		{
			Name: ClassAuthorizeRequest,
			Methods: methods(
				method("getToken("+sigString+")"+sigString, getToken),
				method("getTokenNames()"+sigList, getTokenNames),
				getter("action", sigString),
				getter("resource", sig(ClassEntityData)),
				getter("context", sig(ClassContext)),
			),
		},
		{
			Name: ClassAuthorizeRequestUnsigned,
			Methods: methods(
				getter("principals", sigList),
				getter("action", sigString),
				getter("resource", sig(ClassEntityData)),
				getter("context", sig(ClassContext)),
			),
		},

		{
			Name: ClassPolicyId,
			Methods: methods(
				setter("<init>", "value", sigString),
				getter("value", sigString),
			),
		},
		{
			Name: ClassAuthzError,
			Methods: methods(
				setter("<init>", "description", sigString),
				getter("description", sigString),
			),
		},
		{
			Name: ClassDiagnostics,
			Methods: methods(
				method("<init>()V", func(_ *objrt.Env, this *objrt.Instance, _ []any) (any, error) {
					this.Native = &diagnosticsData{}
					return nil, nil
				}),
				method("addPolicyId("+sig(ClassPolicyId)+")V", addPolicyID),
				method("addError("+sig(ClassAuthzError)+")V", addError),
			),
		},
		{
			Name: ClassPolicyResponse,
			Methods: methods(
				method("<init>("+sig(ClassAuthzDecision)+sig(ClassDiagnostics)+")V", func(_ *objrt.Env, this *objrt.Instance, args []any) (any, error) {
					this.Set("decision", args[0]).Set("diagnostics", args[1])
					return nil, nil
				}),
				getter("decision", sig(ClassAuthzDecision)),
				getter("diagnostics", sig(ClassDiagnostics)),
			),
		},
		{
			Name: ClassAuthorizeResult,
			Methods: methods(
				method("<init>()V", func(_ *objrt.Env, this *objrt.Instance, _ []any) (any, error) {
					this.Native = &resultData{}
					this.Set("decision", false)
					return nil, nil
				}),
				setter("setWorkload", "workload", sig(ClassPolicyResponse)),
				setter("setPerson", "person", sig(ClassPolicyResponse)),
				method("addPrincipal("+sigString+sig(ClassPolicyResponse)+")V", addPrincipal),
				setter("setDecision", "decision", "Z"),
				setter("setRequestId", "requestId", sigString),
				method("isAllowed()Z", getter("decision", "Z").impl),
				getter("requestId", sigString),
			),
		},

		{
			Name:   ClassCedarling,
			Fields: map[string]string{"cedarlingRef": "J"},
			Methods: methods(
				method("<init>("+sig(ClassBootstrapConfiguration)+")V", createNativeCedarling(natives)),
				method("authorize("+sig(ClassAuthorizeRequest)+")"+sig(ClassAuthorizeResult), authorize(natives, false)),
				method("authorizeUnsigned("+sig(ClassAuthorizeRequestUnsigned)+")"+sig(ClassAuthorizeResult), authorize(natives, true)),
				method("close()V", cleanupCedarling(natives)),
			),
		},
	}
}

func getToken(_ *objrt.Env, this *objrt.Instance, args []any) (any, error) {
	tokens, _ := this.Native.(map[string]string)
	name, ok := objrt.StringValue(asInstance(args[0]))
	if !ok {
		return nil, nil
	}
	token, ok := tokens[name]
	if !ok {
		return nil, nil
	}
	return token, nil
}

func getTokenNames(env *objrt.Env, this *objrt.Instance, _ []any) (any, error) {
	tokens, _ := this.Native.(map[string]string)
	names := make([]string, 0, len(tokens))
	for name := range tokens {
		names = append(names, name)
	}
	sort.Strings(names)
	return env.Runtime().StringList(names...), nil
}

func addPolicyID(_ *objrt.Env, this *objrt.Instance, args []any) (any, error) {
	d, ok := this.Native.(*diagnosticsData)
	if !ok {
		return nil, errUninitialized
	}
	id := asInstance(args[0])
	if id == nil {
		return nil, errors.New("policy id cannot be null")
	}
	value, _ := objrt.StringValue(asInstance(id.Get("value")))
	for _, existing := range d.reason {
		if existing == value {
			return nil, nil
		}
	}
	d.reason = append(d.reason, value)
	return nil, nil
}

func addError(_ *objrt.Env, this *objrt.Instance, args []any) (any, error) {
	d, ok := this.Native.(*diagnosticsData)
	if !ok {
		return nil, errUninitialized
	}
	e := asInstance(args[0])
	if e == nil {
		return nil, errors.New("error cannot be null")
	}
	desc, _ := objrt.StringValue(asInstance(e.Get("description")))
	d.errors = append(d.errors, desc)
	return nil, nil
}

func addPrincipal(_ *objrt.Env, this *objrt.Instance, args []any) (any, error) {
	r, ok := this.Native.(*resultData)
	if !ok {
		return nil, errUninitialized
	}
	key, ok := objrt.StringValue(asInstance(args[0]))
	if !ok {
		return nil, errors.New("principal key must be a string")
	}
	r.principals = append(r.principals, principalEntry{key: key, response: asInstance(args[1])})
	return nil, nil
}

func asInstance(v any) *objrt.Instance {
	inst, _ := v.(*objrt.Instance)
	return inst
}
