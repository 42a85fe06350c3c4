package config

import (
	"fmt"
	"strings"
	"time"
)

// LogType selects the decision log sink.
type LogType string

const (
	LogTypeOff    LogType = "OFF"
	LogTypeMemory LogType = "MEMORY"
	LogTypeStdout LogType = "STDOUT"
	LogTypeLock   LogType = "LOCK"
)

// LogLevel is the minimum level of decision log entries.
type LogLevel string

const (
	LogLevelFatal LogLevel = "FATAL"
	LogLevelError LogLevel = "ERROR"
	LogLevelWarn  LogLevel = "WARN"
	LogLevelInfo  LogLevel = "INFO"
	LogLevelDebug LogLevel = "DEBUG"
	LogLevelTrace LogLevel = "TRACE"
)

// PolicyStoreSource selects where the policy store is read from.
type PolicyStoreSource string

const (
	PolicyStoreJSON       PolicyStoreSource = "JSON"
	PolicyStoreYAML       PolicyStoreSource = "YAML"
	PolicyStoreLockMaster PolicyStoreSource = "LOCKMASTER"
	PolicyStoreFileJSON   PolicyStoreSource = "FILEJSON"
	PolicyStoreFileYAML   PolicyStoreSource = "FILEYAML"
)

// IsFile reports whether the source reads from a file path.
func (s PolicyStoreSource) IsFile() bool {
	return s == PolicyStoreFileJSON || s == PolicyStoreFileYAML
}

// JwtAlgorithm is a JWT signature algorithm name.
type JwtAlgorithm string

const (
	HS256 JwtAlgorithm = "HS256"
	HS384 JwtAlgorithm = "HS384"
	HS512 JwtAlgorithm = "HS512"
	ES256 JwtAlgorithm = "ES256"
	ES384 JwtAlgorithm = "ES384"
	RS256 JwtAlgorithm = "RS256"
	RS384 JwtAlgorithm = "RS384"
	RS512 JwtAlgorithm = "RS512"
	PS256 JwtAlgorithm = "PS256"
	PS384 JwtAlgorithm = "PS384"
	PS512 JwtAlgorithm = "PS512"
	EdDSA JwtAlgorithm = "EdDSA"
)

// AllJwtAlgorithms lists every supported algorithm.
var AllJwtAlgorithms = []JwtAlgorithm{
	HS256, HS384, HS512,
	ES256, ES384,
	RS256, RS384, RS512,
	PS256, PS384, PS512,
	EdDSA,
}

// IDTokenTrustMode controls how the id token is checked against the access token.
type IDTokenTrustMode string

const (
	// TrustModeNone performs no cross-token checks.
	TrustModeNone IDTokenTrustMode = "NONE"

	// TrustModeStrict requires the id token audience to match the access token
	// client and the userinfo subject to match the id token subject.
	TrustModeStrict IDTokenTrustMode = "STRICT"
)

// Default entity type names.
const (
	DefaultWorkloadEntity = "Jans::Workload"
	DefaultUserEntity     = "Jans::User"
	DefaultRoleEntity     = "Jans::Role"
	DefaultIssuerEntity   = "Jans::TrustedIssuer"

	DefaultUnsignedRoleIDSrc = "role"
	DefaultDecisionLogJwtID  = "jti"
)

// BootstrapConfig is the complete configuration of an engine instance.
type BootstrapConfig struct {
	// ApplicationName identifies the application in decision logs.
	ApplicationName string `json:"application_name" yaml:"application_name" validate:"required"`

	// Log configures the decision log.
	Log LogConfig `json:"log" yaml:"log"`

	// PolicyStore selects the policy store.
	PolicyStore PolicyStoreConfig `json:"policy_store" yaml:"policy_store"`

	// JWT configures token decoding and validation.
	JWT JWTConfig `json:"jwt" yaml:"jwt"`

	// Authorization configures how principal decisions are combined.
	Authorization AuthorizationConfig `json:"authorization" yaml:"authorization"`

	// EntityBuilder configures principal entity construction.
	EntityBuilder EntityBuilderConfig `json:"entity_builder" yaml:"entity_builder"`

	// Lock configures the remote lock service. Optional.
	Lock *LockServiceConfig `json:"lock,omitempty" yaml:"lock,omitempty"`
}

// LogConfig configures the decision log.
type LogConfig struct {
	// Type selects the sink.
	Type LogType `json:"type" yaml:"type" validate:"required,oneof=OFF MEMORY STDOUT LOCK"`

	// Level is the minimum level recorded.
	Level LogLevel `json:"level" yaml:"level" validate:"required,oneof=FATAL ERROR WARN INFO DEBUG TRACE"`

	// Memory configures the MEMORY sink. Required when Type is MEMORY.
	Memory *MemoryLogConfig `json:"memory,omitempty" yaml:"memory,omitempty"`
}

// MemoryLogConfig configures the in-memory decision log.
type MemoryLogConfig struct {
	// LogTTL is how long entries are kept, in seconds. Zero keeps them forever.
	LogTTL int64 `json:"log_ttl" yaml:"log_ttl" validate:"gte=0"`

	// MaxItems caps the number of entries. Nil means unbounded.
	MaxItems *int64 `json:"max_items,omitempty" yaml:"max_items,omitempty" validate:"omitempty,gt=0"`

	// MaxItemSize caps the size of one entry in bytes. Nil means unbounded.
	MaxItemSize *int64 `json:"max_item_size,omitempty" yaml:"max_item_size,omitempty" validate:"omitempty,gt=0"`
}

// PolicyStoreConfig selects the policy store.
type PolicyStoreConfig struct {
	// Source selects how Data or Path is interpreted.
	Source PolicyStoreSource `json:"source" yaml:"source" validate:"required,oneof=JSON YAML LOCKMASTER FILEJSON FILEYAML"`

	// Data is inline JSON or YAML, or the store id for LOCKMASTER.
	Data string `json:"data,omitempty" yaml:"data,omitempty"`

	// Path is the policy store file for FILEJSON and FILEYAML.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

// JWTConfig configures token decoding and validation.
type JWTConfig struct {
	// JWKS is an inline JSON Web Key Set. Optional.
	JWKS string `json:"jwks,omitempty" yaml:"jwks,omitempty"`

	// CheckSignature enables signature validation.
	CheckSignature bool `json:"check_signature" yaml:"check_signature"`

	// CheckStatus enables token status validation.
	CheckStatus bool `json:"check_status" yaml:"check_status"`

	// SignatureAlgorithms lists the accepted algorithms.
	SignatureAlgorithms []JwtAlgorithm `json:"signature_algorithms" yaml:"signature_algorithms" validate:"dive,oneof=HS256 HS384 HS512 ES256 ES384 RS256 RS384 RS512 PS256 PS384 PS512 EdDSA"`
}

// AuthorizationConfig configures how principal decisions are combined.
type AuthorizationConfig struct {
	// UseUserPrincipal evaluates the user principal.
	UseUserPrincipal bool `json:"use_user_principal" yaml:"use_user_principal"`

	// UseWorkloadPrincipal evaluates the workload principal.
	UseWorkloadPrincipal bool `json:"use_workload_principal" yaml:"use_workload_principal"`

	// PrincipalBoolOperator is a JSON-logic rule over principal decisions. An
	// empty rule falls back to the Use* flags.
	PrincipalBoolOperator map[string]any `json:"principal_bool_operator,omitempty" yaml:"principal_bool_operator,omitempty"`

	// DecisionLogUserClaims lists user claims copied into decision log entries.
	DecisionLogUserClaims []string `json:"decision_log_user_claims,omitempty" yaml:"decision_log_user_claims,omitempty"`

	// DecisionLogWorkloadClaims lists workload claims copied into decision log entries.
	DecisionLogWorkloadClaims []string `json:"decision_log_workload_claims,omitempty" yaml:"decision_log_workload_claims,omitempty"`

	// DecisionLogDefaultJwtID is the claim used as token id in decision logs.
	DecisionLogDefaultJwtID string `json:"decision_log_default_jwt_id" yaml:"decision_log_default_jwt_id" validate:"required"`

	// IDTokenTrustMode controls cross-token checks.
	IDTokenTrustMode IDTokenTrustMode `json:"id_token_trust_mode" yaml:"id_token_trust_mode" validate:"required,oneof=NONE STRICT"`
}

// EntityBuilderConfig configures principal entity construction.
type EntityBuilderConfig struct {
	// EntityNames overrides the entity type names.
	EntityNames EntityNames `json:"entity_names" yaml:"entity_names"`

	// BuildWorkload builds the workload entity from the access token.
	BuildWorkload bool `json:"build_workload" yaml:"build_workload"`

	// BuildUser builds the user entity from the id and userinfo tokens.
	BuildUser bool `json:"build_user" yaml:"build_user"`

	// UnsignedRoleIDSrc is the attribute of unsigned principals that names roles.
	UnsignedRoleIDSrc string `json:"unsigned_role_id_src" yaml:"unsigned_role_id_src" validate:"required"`
}

// EntityNames are the Cedar entity type names of built entities.
type EntityNames struct {
	User     string `json:"user" yaml:"user" validate:"required"`
	Workload string `json:"workload" yaml:"workload" validate:"required"`
	Role     string `json:"role" yaml:"role" validate:"required"`
	Iss      string `json:"iss" yaml:"iss" validate:"required"`
}

// LockServiceConfig configures the remote lock service.
type LockServiceConfig struct {
	// LogLevel is the minimum level of entries shipped to the lock service.
	LogLevel LogLevel `json:"log_level" yaml:"log_level" validate:"required,oneof=FATAL ERROR WARN INFO DEBUG TRACE"`

	// ConfigURI is the lock service configuration endpoint.
	ConfigURI string `json:"config_uri" yaml:"config_uri" validate:"required,url"`

	// DynamicConfig enables periodic configuration refresh.
	DynamicConfig bool `json:"dynamic_config" yaml:"dynamic_config"`

	// SSAJWT is the software statement used to register with the service.
	SSAJWT string `json:"ssa_jwt,omitempty" yaml:"ssa_jwt,omitempty"`

	// LogInterval is how often buffered entries are shipped. Nil ships only
	// when a batch fills and on close.
	LogInterval *Duration `json:"log_interval,omitempty" yaml:"log_interval,omitempty"`

	// HealthInterval is how often health is reported. Nil disables it.
	HealthInterval *Duration `json:"health_interval,omitempty" yaml:"health_interval,omitempty"`

	// TelemetryInterval is how often telemetry is reported. Nil disables it.
	TelemetryInterval *Duration `json:"telemetry_interval,omitempty" yaml:"telemetry_interval,omitempty"`

	// ListenSSE subscribes to server-sent configuration events.
	ListenSSE bool `json:"listen_sse" yaml:"listen_sse"`

	// AcceptInvalidCerts skips TLS certificate verification.
	AcceptInvalidCerts bool `json:"accept_invalid_certs" yaml:"accept_invalid_certs"`
}

// Duration is a time.Duration written as a Go duration string ("10s") in
// documents.
type Duration struct {
	time.Duration
}

// NewDuration wraps d.
func NewDuration(d time.Duration) *Duration {
	return &Duration{Duration: d}
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = parsed
	return nil
}

// Default returns the configuration every field of which holds its documented
// default. Policy store and application name are left empty.
func Default() BootstrapConfig {
	return BootstrapConfig{
		Log: LogConfig{
			Type:  LogTypeOff,
			Level: LogLevelInfo,
		},
		JWT: JWTConfig{
			CheckSignature: true,
			CheckStatus:    true,
		},
		Authorization: AuthorizationConfig{
			UseUserPrincipal:        true,
			UseWorkloadPrincipal:    true,
			PrincipalBoolOperator:   map[string]any{},
			DecisionLogDefaultJwtID: DefaultDecisionLogJwtID,
			IDTokenTrustMode:        TrustModeStrict,
		},
		EntityBuilder: EntityBuilderConfig{
			EntityNames: EntityNames{
				User:     DefaultUserEntity,
				Workload: DefaultWorkloadEntity,
				Role:     DefaultRoleEntity,
				Iss:      DefaultIssuerEntity,
			},
			BuildWorkload:     true,
			BuildUser:         true,
			UnsignedRoleIDSrc: DefaultUnsignedRoleIDSrc,
		},
	}
}

// WithoutValidation returns a copy with signature and status checks disabled
// and every algorithm allowed.
func (c BootstrapConfig) WithoutValidation() BootstrapConfig {
	c.JWT.CheckSignature = false
	c.JWT.CheckStatus = false
	c.JWT.SignatureAlgorithms = append([]JwtAlgorithm(nil), AllJwtAlgorithms...)
	return c
}

// ValidationError is one problem found while loading or validating a document.
type ValidationError struct {
	// File is the source file, if known.
	File string `json:"file,omitempty"`

	// Line is the line number, if known.
	Line int `json:"line,omitempty"`

	// Column is the column number, if known.
	Column int `json:"column,omitempty"`

	// Path is the field path, e.g. "log.memory".
	Path string `json:"path,omitempty"`

	// Message describes the problem.
	Message string `json:"message"`
}

func (e ValidationError) String() string {
	loc := e.File
	if e.Line > 0 {
		loc = fmt.Sprintf("%s:%d:%d", e.File, e.Line, e.Column)
	}
	switch {
	case loc != "" && e.Path != "":
		return fmt.Sprintf("%s: %s: %s", loc, e.Path, e.Message)
	case loc != "":
		return fmt.Sprintf("%s: %s", loc, e.Message)
	case e.Path != "":
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// ValidationErrors is the error returned when a document is invalid.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 1 {
		return "invalid configuration: " + e[0].String()
	}
	msgs := make([]string, len(e))
	for i, v := range e {
		msgs[i] = v.String()
	}
	return fmt.Sprintf("invalid configuration (%d errors): %s", len(e), strings.Join(msgs, "; "))
}
