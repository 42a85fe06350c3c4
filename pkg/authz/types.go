// Package authz defines the native authorization request and result types
// exchanged with the decision engine.
package authz

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Decision is the outcome of one policy evaluation.
type Decision string

const (
	Allow Decision = "ALLOW"
	Deny  Decision = "DENY"
)

// DecisionOf returns Allow for true and Deny for false.
func DecisionOf(allowed bool) Decision {
	if allowed {
		return Allow
	}
	return Deny
}

// IsAllow reports whether d is Allow.
func (d Decision) IsAllow() bool {
	return d == Allow
}

// EntityData identifies a Cedar entity and carries its attributes.
type EntityData struct {
	// Type is the entity type name, e.g. "Jans::Application".
	Type string `json:"type" yaml:"type" validate:"required"`

	// ID is the entity id.
	ID string `json:"id" yaml:"id" validate:"required"`

	// Attributes are the entity attributes.
	Attributes map[string]any `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

// UID returns the entity reference in Cedar form: Type::"ID".
func (e EntityData) UID() string {
	return fmt.Sprintf("%s::%q", e.Type, e.ID)
}

// Request is a signed authorization request.
type Request struct {
	// Tokens maps token names such as "access_token" to encoded JWTs.
	Tokens map[string]string `json:"tokens" yaml:"tokens"`

	// Action is the Cedar action, e.g. `Jans::Action::"Read"`.
	Action string `json:"action" yaml:"action" validate:"required"`

	// Resource is the entity being accessed.
	Resource EntityData `json:"resource" yaml:"resource"`

	// Context is the request context as a JSON object.
	Context json.RawMessage `json:"context,omitempty" yaml:"-"`
}

// TokenNames returns the token names in sorted order.
func (r Request) TokenNames() []string {
	names := make([]string, 0, len(r.Tokens))
	for name := range r.Tokens {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RequestUnsigned is an authorization request whose principals are supplied
// directly instead of being derived from tokens.
type RequestUnsigned struct {
	// Principals are evaluated one by one.
	Principals []EntityData `json:"principals" yaml:"principals" validate:"dive"`

	// Action is the Cedar action.
	Action string `json:"action" yaml:"action" validate:"required"`

	// Resource is the entity being accessed.
	Resource EntityData `json:"resource" yaml:"resource"`

	// Context is the request context as a JSON object.
	Context json.RawMessage `json:"context,omitempty" yaml:"-"`
}

// Diagnostics explains a policy decision.
type Diagnostics struct {
	// Reason lists the ids of the policies that determined the decision.
	Reason []string `json:"reason"`

	// Errors lists evaluation errors.
	Errors []string `json:"errors"`
}

// PolicyResponse is the decision for one principal.
type PolicyResponse struct {
	Decision    Decision    `json:"decision"`
	Diagnostics Diagnostics `json:"diagnostics"`
}

// Result is the combined outcome of an authorization request.
type Result struct {
	// Workload is the decision for the workload principal, if evaluated.
	Workload *PolicyResponse `json:"workload,omitempty"`

	// Person is the decision for the user principal, if evaluated.
	Person *PolicyResponse `json:"person,omitempty"`

	// Principals holds the decision per principal, keyed by entity type
	// (signed requests) or entity reference (unsigned requests).
	Principals map[string]PolicyResponse `json:"principals"`

	// Decision is the combined decision.
	Decision bool `json:"decision"`

	// RequestID identifies the request in decision logs.
	RequestID string `json:"request_id"`
}

// PrincipalKeys returns the keys of Principals in sorted order.
func (r *Result) PrincipalKeys() []string {
	keys := make([]string, 0, len(r.Principals))
	for k := range r.Principals {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
