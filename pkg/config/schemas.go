package config

import (
	"context"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// SchemaBootstrap is the name of the built-in bootstrap document schema.
const SchemaBootstrap = "bootstrap"

// SchemaRegistry manages CUE schemas for validation.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a new schema registry with built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     cuecontext.New(),
		schemas: make(map[string]cue.Value),
	}

	if err := sr.RegisterSchema(SchemaBootstrap, "#Bootstrap", builtinBootstrapSchema); err != nil {
		panic(err)
	}

	return sr
}

// RegisterSchema compiles schema and registers the definition def under name.
func (sr *SchemaRegistry) RegisterSchema(name, def, schema string) error {
	val := sr.ctx.CompileString(schema, cue.Filename(name+".cue"))
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}
	defVal := val.LookupPath(cue.ParsePath(def))
	if !defVal.Exists() {
		return fmt.Errorf("schema %s does not define %s", name, def)
	}

	sr.mu.Lock()
	defer sr.mu.Unlock()
	sr.schemas[name] = defVal
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// Apply unifies val with the named schema, filling in schema defaults, and
// checks that the result is concrete.
func (sr *SchemaRegistry) Apply(schemaName string, val cue.Value) (cue.Value, error) {
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return cue.Value{}, fmt.Errorf("schema %s not found", schemaName)
	}
	unified := schema.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return cue.Value{}, err
	}
	return unified, nil
}

// ValidateAgainstSchema validates data against a named schema.
func (sr *SchemaRegistry) ValidateAgainstSchema(ctx context.Context, schemaName string, data any) error {
	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}
	if _, err := sr.Apply(schemaName, dataVal); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// ValidateBootstrap validates a bootstrap configuration against the built-in schema.
func (sr *SchemaRegistry) ValidateBootstrap(ctx context.Context, cfg *BootstrapConfig) error {
	return sr.ValidateAgainstSchema(ctx, SchemaBootstrap, cfg)
}

const builtinBootstrapSchema = `
#LogLevel: "FATAL" | "ERROR" | "WARN" | "INFO" | "DEBUG" | "TRACE"

#Algorithm: "HS256" | "HS384" | "HS512" | "ES256" | "ES384" |
	"RS256" | "RS384" | "RS512" | "PS256" | "PS384" | "PS512" | "EdDSA"

#Bootstrap: {
	application_name: string & !=""

	log: {
		type:  *"OFF" | "MEMORY" | "STDOUT" | "LOCK"
		level: #LogLevel | *"INFO"
		memory?: {
			log_ttl:        int & >=0 | *0
			max_items?:     int & >0
			max_item_size?: int & >0
		}
		if type == "MEMORY" {
			memory: _
		}
	}

	policy_store: {
		source: "JSON" | "YAML" | "LOCKMASTER" | "FILEJSON" | "FILEYAML"
		data?:  string
		path?:  string
		if source == "FILEJSON" || source == "FILEYAML" {
			path: string & !=""
		}
		if source == "JSON" || source == "YAML" || source == "LOCKMASTER" {
			data: string & !=""
		}
	}

	jwt: {
		jwks?:                string
		check_signature:      bool | *true
		check_status:         bool | *true
		signature_algorithms: [...#Algorithm] | *[] | null
	}

	authorization: {
		use_user_principal:            bool | *true
		use_workload_principal:        bool | *true
		principal_bool_operator?:      {...}
		decision_log_user_claims?:     [...string]
		decision_log_workload_claims?: [...string]
		decision_log_default_jwt_id:   string | *"jti"
		id_token_trust_mode:           *"STRICT" | "NONE"
	}

	entity_builder: {
		entity_names: {
			user:     string | *"Jans::User"
			workload: string | *"Jans::Workload"
			role:     string | *"Jans::Role"
			iss:      string | *"Jans::TrustedIssuer"
		}
		build_workload:       bool | *true
		build_user:           bool | *true
		unsigned_role_id_src: string | *"role"
	}

	lock?: {
		log_level:            #LogLevel
		config_uri:           string & =~"^https?://"
		dynamic_config:       bool | *false
		ssa_jwt?:             string
		log_interval?:        string
		health_interval?:     string
		telemetry_interval?:  string
		listen_sse:           bool | *false
		accept_invalid_certs: bool | *false
	}
}
`
