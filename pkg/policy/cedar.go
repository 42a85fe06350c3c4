package policy

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/cedar-policy/cedar-go"

	"github.com/openfroyo/cedarbridge/pkg/authz"
)

// ParseEntityUID parses an entity reference of the form Type::"id", where
// Type may itself be namespaced (Jans::Action::"Read").
func ParseEntityUID(s string) (cedar.EntityUID, error) {
	i := strings.LastIndex(s, `::"`)
	if i <= 0 {
		return cedar.EntityUID{}, fmt.Errorf("invalid entity reference %q: want Type::\"id\"", s)
	}
	id, err := strconv.Unquote(s[i+2:])
	if err != nil {
		return cedar.EntityUID{}, fmt.Errorf("invalid entity reference %q: %w", s, err)
	}
	return cedar.NewEntityUID(cedar.EntityType(s[:i]), cedar.String(id)), nil
}

// EntitySpec describes one entity to add to an entity map.
type EntitySpec struct {
	Type       string
	ID         string
	Attributes map[string]any
	Parents    []authz.EntityData
}

// UID returns the entity's reference.
func (s EntitySpec) UID() cedar.EntityUID {
	return cedar.NewEntityUID(cedar.EntityType(s.Type), cedar.String(s.ID))
}

type uidJSON struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type entityJSON struct {
	UID     uidJSON        `json:"uid"`
	Parents []uidJSON      `json:"parents"`
	Attrs   map[string]any `json:"attrs"`
}

// BuildEntities converts specs into an entity map. A later spec with the
// same reference as an earlier one replaces it.
func BuildEntities(specs []EntitySpec) (cedar.EntityMap, error) {
	list := make([]entityJSON, 0, len(specs))
	for _, s := range specs {
		if s.Type == "" || s.ID == "" {
			return nil, fmt.Errorf("entity %s::%q has an empty type or id", s.Type, s.ID)
		}
		e := entityJSON{
			UID:     uidJSON{Type: s.Type, ID: s.ID},
			Parents: make([]uidJSON, 0, len(s.Parents)),
			Attrs:   sanitizeRecord(s.Attributes),
		}
		for _, p := range s.Parents {
			e.Parents = append(e.Parents, uidJSON{Type: p.Type, ID: p.ID})
		}
		list = append(list, e)
	}

	b, err := json.Marshal(list)
	if err != nil {
		return nil, fmt.Errorf("failed to encode entities: %w", err)
	}
	var entities cedar.EntityMap
	if err := json.Unmarshal(b, &entities); err != nil {
		return nil, fmt.Errorf("failed to build entities: %w", err)
	}
	return entities, nil
}

// ParseContext converts a JSON object into a Cedar record. Empty input yields
// an empty record.
func ParseContext(raw json.RawMessage) (cedar.Record, map[string]any, error) {
	values := map[string]any{}
	if len(strings.TrimSpace(string(raw))) > 0 {
		if err := json.Unmarshal(raw, &values); err != nil {
			return cedar.Record{}, nil, fmt.Errorf("context must be a JSON object: %w", err)
		}
		if values == nil {
			values = map[string]any{}
		}
	}
	rec, err := NewRecord(values)
	if err != nil {
		return cedar.Record{}, nil, err
	}
	return rec, values, nil
}

// NewRecord converts a map into a Cedar record.
func NewRecord(values map[string]any) (cedar.Record, error) {
	b, err := json.Marshal(sanitizeRecord(values))
	if err != nil {
		return cedar.Record{}, fmt.Errorf("failed to encode record: %w", err)
	}
	var rec cedar.Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return cedar.Record{}, fmt.Errorf("failed to build record: %w", err)
	}
	return rec, nil
}

// sanitizeRecord drops null attributes and rewrites values Cedar cannot
// represent. Cedar numbers are 64-bit integers, so fractional numbers become
// strings.
func sanitizeRecord(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if v == nil {
			continue
		}
		out[k] = sanitizeValue(v)
	}
	return out
}

func sanitizeValue(v any) any {
	switch val := v.(type) {
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1<<63 {
			return int64(val)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return sanitizeValue(float64(val))
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		return val.String()
	case map[string]any:
		return sanitizeRecord(val)
	case []any:
		out := make([]any, 0, len(val))
		for _, item := range val {
			if item != nil {
				out = append(out, sanitizeValue(item))
			}
		}
		return out
	case []string:
		out := make([]any, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out
	}
	return v
}

// compilePolicies parses every policy of a store into one policy set.
func compilePolicies(policies map[string]CedarPolicy) (*cedar.PolicySet, []string, error) {
	ids := make([]string, 0, len(policies))
	for id := range policies {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	set := cedar.NewPolicySet()
	for _, id := range ids {
		text, err := policies[id].Text()
		if err != nil {
			return nil, nil, fmt.Errorf("policy %s: %w", id, err)
		}
		var p cedar.Policy
		if err := p.UnmarshalCedar([]byte(text)); err != nil {
			return nil, nil, fmt.Errorf("policy %s: %w", id, err)
		}
		set.Add(cedar.PolicyID(id), &p)
	}
	return set, ids, nil
}

// Query is one Cedar authorization question.
type Query struct {
	Principal cedar.EntityUID
	Action    cedar.EntityUID
	Resource  cedar.EntityUID
	Context   cedar.Record
	Entities  cedar.EntityMap
}

func evaluate(set *cedar.PolicySet, q Query) authz.PolicyResponse {
	decision, diag := cedar.Authorize(set, q.Entities, cedar.Request{
		Principal: q.Principal,
		Action:    q.Action,
		Resource:  q.Resource,
		Context:   q.Context,
	})

	resp := authz.PolicyResponse{
		Decision: authz.DecisionOf(decision == cedar.Allow),
		Diagnostics: authz.Diagnostics{
			Reason: make([]string, 0, len(diag.Reasons)),
			Errors: make([]string, 0, len(diag.Errors)),
		},
	}
	for _, r := range diag.Reasons {
		resp.Diagnostics.Reason = append(resp.Diagnostics.Reason, string(r.PolicyID))
	}
	for _, e := range diag.Errors {
		resp.Diagnostics.Errors = append(resp.Diagnostics.Errors, fmt.Sprintf("%s: %s", e.PolicyID, e.Message))
	}
	sort.Strings(resp.Diagnostics.Reason)
	return resp
}
