package convert

import (
	"github.com/openfroyo/cedarbridge/pkg/authz"
	"github.com/openfroyo/cedarbridge/pkg/config"
	"github.com/openfroyo/cedarbridge/pkg/handles"
	"github.com/openfroyo/cedarbridge/pkg/marshal"
)

const pkg = "io/jans/cedarling/bridge/"

// Foreign class names, by converter module.
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
	ClassLogType                    = pkg + "config/LogType"
	ClassLogLevel                   = pkg + "config/LogLevel"
	ClassPolicyStoreSource          = pkg + "config/PolicyStoreSource"
	ClassJwtAlgorithm               = pkg + "config/JwtAlgorithm"
	ClassIdTokenTrustMode           = pkg + "config/IdTokenTrustMode"

	ClassAuthorizeRequest         = pkg + "authz/AuthorizeRequest"
	ClassAuthorizeRequestUnsigned = pkg + "authz/AuthorizeRequestUnsigned"
	ClassEntityData               = pkg + "authz/EntityData"
	ClassCedarEntityMapping       = pkg + "authz/CedarEntityMapping"
	ClassContext                  = pkg + "authz/Context"

	ClassAuthorizeResult = pkg + "authz/AuthorizeResult"
	ClassPolicyResponse  = pkg + "cedar/policy/PolicyResponse"
	ClassDiagnostics     = pkg + "cedar/policy/Diagnostics"
	ClassPolicyId        = pkg + "cedar/policy/PolicyId"
	ClassAuthzError      = pkg + "cedar/policy/AuthzError"
	ClassAuthzDecision   = pkg + "cedar/policy/AuthzDecision"
)

func enumOf[T ~string](enum string, values ...T) *marshal.EnumTable[T] {
	entries := make([]marshal.EnumValue[T], len(values))
	for i, v := range values {
		entries[i] = marshal.EnumValue[T]{Name: string(v), Value: v}
	}
	return marshal.NewEnumTable(enum, entries...)
}

// Enum tables of the foreign enum classes.
var (
	LogTypes = enumOf("LogType",
		config.LogTypeOff, config.LogTypeMemory, config.LogTypeStdout, config.LogTypeLock)
	LogLevels = enumOf("LogLevel",
		config.LogLevelFatal, config.LogLevelError, config.LogLevelWarn,
		config.LogLevelInfo, config.LogLevelDebug, config.LogLevelTrace)
	PolicyStoreSources = enumOf("PolicyStoreSource",
		config.PolicyStoreJSON, config.PolicyStoreYAML, config.PolicyStoreLockMaster,
		config.PolicyStoreFileJSON, config.PolicyStoreFileYAML)
	JwtAlgorithms     = enumOf("JwtAlgorithm", config.AllJwtAlgorithms...)
	IDTokenTrustModes = enumOf("IdTokenTrustMode", config.TrustModeNone, config.TrustModeStrict)
	Decisions         = enumOf("AuthzDecision", authz.Allow, authz.Deny)
)

func getters(class string, fields ...[2]string) handles.ClassSpec {
	spec := handles.ClassSpec{Name: class}
	for _, f := range fields {
		spec.Methods = append(spec.Methods, marshal.Getter(f[0], f[1]))
	}
	return spec
}

func field(name, sig string) [2]string {
	return [2]string{name, sig}
}

var (
	sigString   = marshal.SigString
	sigBool     = marshal.SigBool
	sigLong     = marshal.SigLong
	sigList     = marshal.SigList
	sigBoxed    = marshal.SigBoxedLong
	sigFile     = marshal.Sig(marshal.ClassFile)
	sigURI      = marshal.Sig(marshal.ClassURI)
	sigDuration = marshal.Sig(marshal.ClassDuration)
)

// ConfigClasses lists everything the configuration converter reads.
var ConfigClasses = []handles.ClassSpec{
	getters(ClassBootstrapConfiguration,
		field("applicationName", sigString),
		field("logConfiguration", marshal.Sig(ClassLogConfiguration)),
		field("policyStoreConfiguration", marshal.Sig(ClassPolicyStoreConfiguration)),
		field("jwtConfiguration", marshal.Sig(ClassJwtConfiguration)),
		field("authzConfiguration", marshal.Sig(ClassAuthorizationConfiguration)),
		field("entityBuilderConfiguration", marshal.Sig(ClassEntityBuilderConfiguration)),
		field("lockConfiguration", marshal.Sig(ClassLockServiceConfiguration)),
	),
	getters(ClassLogConfiguration,
		field("logType", marshal.Sig(ClassLogType)),
		field("logLevel", marshal.Sig(ClassLogLevel)),
		field("memoryLogConfiguration", marshal.Sig(ClassMemoryLogConfiguration)),
	),
	getters(ClassMemoryLogConfiguration,
		field("logTtl", sigLong),
		field("maxItems", sigBoxed),
		field("maxItemSize", sigBoxed),
	),
	getters(ClassPolicyStoreConfiguration,
		field("source", marshal.Sig(ClassPolicyStoreSource)),
		field("data", sigString),
		field("dataPath", sigFile),
	),
	getters(ClassJwtConfiguration,
		field("jwks", sigString),
		field("jwtCheckSignValidation", sigBool),
		field("jwtCheckStatusValidation", sigBool),
		field("supportedSignatureAlgorithms", sigList),
	),
	getters(ClassAuthorizationConfiguration,
		field("useUserPrincipal", sigBool),
		field("useWorkloadPrincipal", sigBool),
		field("principalBoolOperator", marshal.Sig(ClassJsonRule)),
		field("decisionLogUserClaims", sigList),
		field("decisionLogWorkloadClaims", sigList),
		field("decisionLogDefaultJwtId", sigString),
		field("idTokenTrustMode", marshal.Sig(ClassIdTokenTrustMode)),
	),
	getters(ClassJsonRule, field("value", sigString)),
	getters(ClassEntityBuilderConfiguration,
		field("entityNames", marshal.Sig(ClassEntityNames)),
		field("buildWorkload", sigBool),
		field("buildUser", sigBool),
		field("unsignedRoleIdSrc", marshal.Sig(ClassUnsignedRoleIdSrc)),
	),
	getters(ClassEntityNames,
		field("user", sigString),
		field("workload", sigString),
		field("role", sigString),
		field("iss", sigString),
	),
	getters(ClassUnsignedRoleIdSrc, field("value", sigString)),
	getters(ClassLockServiceConfiguration,
		field("logLevel", marshal.Sig(ClassLogLevel)),
		field("configUri", sigURI),
		field("dynamicConfig", sigBool),
		field("ssaJwt", sigString),
		field("logInterval", sigDuration),
		field("healthInterval", sigDuration),
		field("telemetryInterval", sigDuration),
		field("listenSse", sigBool),
		field("acceptInvalidCerts", sigBool),
	),
	{Name: ClassLogType},
	{Name: ClassLogLevel},
	{Name: ClassPolicyStoreSource},
	{Name: ClassJwtAlgorithm},
	{Name: ClassIdTokenTrustMode},
}

// RequestClasses lists everything the request converter reads.
var RequestClasses = []handles.ClassSpec{
	func() handles.ClassSpec {
		spec := getters(ClassAuthorizeRequest,
			field("action", sigString),
			field("resource", marshal.Sig(ClassEntityData)),
			field("context", marshal.Sig(ClassContext)),
		)
		spec.Methods = append(spec.Methods,
			handles.Member{Name: "getTokenNames", Sig: "()" + sigList},
			handles.Member{Name: "getToken", Sig: "(" + sigString + ")" + sigString},
		)
		return spec
	}(),
	getters(ClassAuthorizeRequestUnsigned,
		field("principals", sigList),
		field("action", sigString),
		field("resource", marshal.Sig(ClassEntityData)),
		field("context", marshal.Sig(ClassContext)),
	),
	getters(ClassEntityData,
		field("cedarMapping", marshal.Sig(ClassCedarEntityMapping)),
		field("type", sigString),
		field("id", sigString),
		field("attributes", sigString),
	),
	getters(ClassCedarEntityMapping,
		field("id", sigString),
		field("entityType", sigString),
	),
	getters(ClassContext, field("data", sigString)),
}

// ResultClasses lists everything the result converter constructs.
var ResultClasses = []handles.ClassSpec{
	{
		Name: ClassAuthorizeResult,
		Methods: []handles.Member{
			handles.Constructor("()V"),
			{Name: "setWorkload", Sig: "(" + marshal.Sig(ClassPolicyResponse) + ")V"},
			{Name: "setPerson", Sig: "(" + marshal.Sig(ClassPolicyResponse) + ")V"},
			{Name: "addPrincipal", Sig: "(" + sigString + marshal.Sig(ClassPolicyResponse) + ")V"},
			{Name: "setDecision", Sig: "(Z)V"},
			{Name: "setRequestId", Sig: "(" + sigString + ")V"},
		},
	},
	{
		Name: ClassPolicyResponse,
		Methods: []handles.Member{
			handles.Constructor("(" + marshal.Sig(ClassAuthzDecision) + marshal.Sig(ClassDiagnostics) + ")V"),
		},
	},
	{
		Name: ClassDiagnostics,
		Methods: []handles.Member{
			handles.Constructor("()V"),
			{Name: "addPolicyId", Sig: "(" + marshal.Sig(ClassPolicyId) + ")V"},
			{Name: "addError", Sig: "(" + marshal.Sig(ClassAuthzError) + ")V"},
		},
	},
	{
		Name:    ClassPolicyId,
		Methods: []handles.Member{handles.Constructor("(" + sigString + ")V")},
	},
	{
		Name:    ClassAuthzError,
		Methods: []handles.Member{handles.Constructor("(" + sigString + ")V")},
	},
	{
		Name: ClassAuthzDecision,
		StaticFields: []handles.Member{
			{Name: string(authz.Allow), Sig: marshal.Sig(ClassAuthzDecision)},
			{Name: string(authz.Deny), Sig: marshal.Sig(ClassAuthzDecision)},
		},
	},
}

// ExceptionClasses lists the exception classes raised across the boundary.
var ExceptionClasses = []handles.ClassSpec{
	{Name: ClassCedarlingError},
	{Name: ClassConfigurationError},
	{Name: ClassAuthorizationError},
}
