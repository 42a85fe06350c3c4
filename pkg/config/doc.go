// Package config defines the native bootstrap configuration of a decision
// engine instance and loads it from YAML, JSON or CUE documents.
//
// # Overview
//
// BootstrapConfig is the Go form of the caller's BootstrapConfiguration object
// graph. The bridge converts foreign objects into it; the CLI loads it from
// files. Either way it is validated before an engine is created.
//
// # Components
//
// Parser: loads documents by extension (.yaml, .yml, .json, .cue). Fields a
// document omits keep the values of Default. CUE documents are unified with the
// built-in #Bootstrap schema, which supplies the same defaults.
//
// SchemaRegistry: manages compiled CUE schemas. The "bootstrap" schema is
// registered on creation.
//
// # Usage Example
//
//	parser := config.NewParser()
//	cfg, err := parser.Load(ctx, "bootstrap.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # Document Structure
//
//	application_name: my-app
//	log:
//	  type: MEMORY
//	  level: INFO
//	  memory:
//	    log_ttl: 60
//	    max_items: 1000
//	policy_store:
//	  source: FILEYAML
//	  path: /etc/cedarling/policy-store.yaml
//	jwt:
//	  check_signature: true
//	  signature_algorithms: [RS256]
//	authorization:
//	  id_token_trust_mode: STRICT
//	lock:
//	  log_level: INFO
//	  config_uri: https://lock.example.com/.well-known/lock-server-configuration
//	  log_interval: 30s
//
// # Error Handling
//
// Invalid documents produce ValidationErrors, one ValidationError per problem
// with the file, position (for CUE) and field path:
//
//	ValidationError{
//	    File: "bootstrap.yaml",
//	    Path: "log.memory",
//	    Message: "required when log type is MEMORY",
//	}
//
// # Thread Safety
//
// Parser and SchemaRegistry are safe for concurrent use.
package config
