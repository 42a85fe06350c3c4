package policy

import (
	"encoding/base64"
	"fmt"
	"sort"
)

// Severity represents the severity level of a guard violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for warnings that are logged but do not deny.
	SeverityWarning Severity = "warning"

	// SeverityError denies the request.
	SeverityError Severity = "error"

	// SeverityCritical denies the request.
	SeverityCritical Severity = "critical"
)

// Blocks reports whether a violation of this severity denies the request.
func (s Severity) Blocks() bool {
	return s == SeverityError || s == SeverityCritical
}

// Document is a policy store document. It holds one or more named stores;
// an engine serves exactly one.
type Document struct {
	// CedarVersion is the Cedar language version the policies target.
	CedarVersion string `json:"cedar_version,omitempty" yaml:"cedar_version,omitempty"`

	// PolicyStores maps store ids to stores.
	PolicyStores map[string]Store `json:"policy_stores" yaml:"policy_stores"`
}

// Single returns the only store of the document. A document without stores
// yields an empty store, which denies every request.
func (d *Document) Single() (string, Store, error) {
	switch len(d.PolicyStores) {
	case 0:
		return "", Store{}, nil
	case 1:
		for id, s := range d.PolicyStores {
			return id, s, nil
		}
	}
	ids := make([]string, 0, len(d.PolicyStores))
	for id := range d.PolicyStores {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return "", Store{}, fmt.Errorf("policy store document holds %d stores %v, want exactly one", len(ids), ids)
}

// Store is one policy store.
type Store struct {
	// Name is the human-readable store name.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Description describes the store.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Policies maps policy ids to Cedar policies.
	Policies map[string]CedarPolicy `json:"policies" yaml:"policies"`

	// TrustedIssuers maps issuer ids to token issuers.
	TrustedIssuers map[string]TrustedIssuer `json:"trusted_issuers,omitempty" yaml:"trusted_issuers,omitempty"`

	// Guards are Rego rules evaluated before the Cedar policies.
	Guards []Guard `json:"guards,omitempty" yaml:"guards,omitempty"`
}

// CedarPolicy is one Cedar policy.
type CedarPolicy struct {
	// Description describes the policy.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Content is the policy text.
	Content string `json:"policy_content" yaml:"policy_content"`

	// Encoding is "" for plain text or "base64".
	Encoding string `json:"encoding,omitempty" yaml:"encoding,omitempty"`
}

// Text returns the decoded policy text.
func (p CedarPolicy) Text() (string, error) {
	switch p.Encoding {
	case "", "none":
		return p.Content, nil
	case "base64":
		b, err := base64.StdEncoding.DecodeString(p.Content)
		if err != nil {
			return "", fmt.Errorf("invalid base64 policy content: %w", err)
		}
		return string(b), nil
	default:
		return "", fmt.Errorf("unsupported policy encoding %q", p.Encoding)
	}
}

// TrustedIssuer is an identity provider whose tokens are accepted.
type TrustedIssuer struct {
	// Name is the issuer's display name.
	Name string `json:"name" yaml:"name"`

	// Description describes the issuer.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// OpenIDConfigurationEndpoint is the issuer's discovery document URL.
	OpenIDConfigurationEndpoint string `json:"openid_configuration_endpoint" yaml:"openid_configuration_endpoint"`

	// RoleClaim names the id token claim that lists user roles. Defaults to "role".
	RoleClaim string `json:"role_claim,omitempty" yaml:"role_claim,omitempty"`
}

// Guard is a Rego rule set evaluated against every request. Each element of
// its deny set is a violation.
type Guard struct {
	// Name is the unique name of the guard.
	Name string `json:"name" yaml:"name"`

	// Description provides a human-readable description.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Rego contains the Rego module.
	Rego string `json:"rego" yaml:"rego"`

	// Severity is the default severity of violations. Defaults to error.
	Severity Severity `json:"severity,omitempty" yaml:"severity,omitempty"`

	// Disabled skips the guard.
	Disabled bool `json:"disabled,omitempty" yaml:"disabled,omitempty"`
}

// Violation is one element of a guard's deny set.
type Violation struct {
	// Guard is the name of the guard that produced the violation.
	Guard string `json:"guard"`

	// Message is a human-readable violation message.
	Message string `json:"message"`

	// Severity is the violation severity level.
	Severity Severity `json:"severity"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s", v.Guard, v.Message)
}

// GuardInput is the input document of guard evaluation.
type GuardInput struct {
	// Kind is "signed" or "unsigned".
	Kind string `json:"kind"`

	// Action is the Cedar action reference.
	Action string `json:"action"`

	// Resource is the resource entity.
	Resource EntityInput `json:"resource"`

	// Principals are the principal entities.
	Principals []EntityInput `json:"principals"`

	// Context is the request context.
	Context map[string]any `json:"context"`
}

// EntityInput is an entity as seen by guards.
type EntityInput struct {
	Type       string         `json:"type"`
	ID         string         `json:"id"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// GuardResult is the outcome of evaluating every enabled guard.
type GuardResult struct {
	// Allowed is false when any violation blocks.
	Allowed bool `json:"allowed"`

	// Violations are the blocking violations.
	Violations []Violation `json:"violations,omitempty"`

	// Warnings are the non-blocking violations.
	Warnings []Violation `json:"warnings,omitempty"`

	// Evaluated lists the guards that ran.
	Evaluated []string `json:"evaluated"`
}
