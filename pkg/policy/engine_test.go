package policy

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"github.com/cedar-policy/cedar-go"
	"github.com/rs/zerolog"

	"github.com/openfroyo/cedarbridge/pkg/authz"
)

const (
	allowAdmins = `permit(principal in Jans::Role::"admin", action == Jans::Action::"Read", resource);`
	denyBlocked = `forbid(principal, action, resource) when { resource has blocked && resource.blocked };`

	networkGuard = `package guards.network

import rego.v1

deny contains msg if {
	input.context.ip == "10.0.0.1"
	msg := "blocked address"
}
`
	auditGuard = `package guards.audit

import rego.v1

deny contains violation if {
	count(input.principals) > 1
	violation := {"message": "multiple principals", "severity": "warning"}
}
`
)

func testLogger() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}

func testDocument() *Document {
	return &Document{
		CedarVersion: "v4.0.0",
		PolicyStores: map[string]Store{
			"store-1": {
				Name: "test",
				Policies: map[string]CedarPolicy{
					"allow-admins": {Content: allowAdmins},
					"deny-blocked": {
						Content:  base64.StdEncoding.EncodeToString([]byte(denyBlocked)),
						Encoding: "base64",
					},
				},
				TrustedIssuers: map[string]TrustedIssuer{
					"idp": {
						Name:                        "IdP",
						OpenIDConfigurationEndpoint: "https://idp.example.com/.well-known/openid-configuration",
					},
				},
				Guards: []Guard{
					{Name: "network", Rego: networkGuard},
					{Name: "audit", Rego: auditGuard},
					{Name: "off", Rego: "package guards.off\n", Disabled: true},
				},
			},
		},
	}
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	eng, err := NewEngine(context.Background(), testDocument(), testLogger())
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	return eng
}

func mustUID(t *testing.T, s string) cedar.EntityUID {
	t.Helper()
	uid, err := ParseEntityUID(s)
	if err != nil {
		t.Fatalf("ParseEntityUID(%q) error = %v", s, err)
	}
	return uid
}

func TestNewEngine(t *testing.T) {
	eng := newTestEngine(t)

	if got := eng.StoreID(); got != "store-1" {
		t.Errorf("StoreID() = %q", got)
	}
	if got := eng.PolicyIDs(); !reflect.DeepEqual(got, []string{"allow-admins", "deny-blocked"}) {
		t.Errorf("PolicyIDs() = %v", got)
	}
	if got := eng.GuardNames(); !reflect.DeepEqual(got, []string{"network", "audit"}) {
		t.Errorf("GuardNames() = %v", got)
	}
	if eng.LoadedAt().IsZero() {
		t.Error("LoadedAt() is zero")
	}
}

func TestNewEngine_EmptyDocument(t *testing.T) {
	eng, err := NewEngine(context.Background(), &Document{}, testLogger())
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	resp := eng.Authorize(Query{
		Principal: mustUID(t, `Jans::User::"u"`),
		Action:    mustUID(t, `Jans::Action::"Read"`),
		Resource:  mustUID(t, `Jans::Doc::"d"`),
	})
	if resp.Decision != authz.Deny {
		t.Errorf("Decision = %s, want DENY", resp.Decision)
	}
}

func TestNewEngine_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(doc *Document)
		wantErr string
	}{
		{
			name: "two stores",
			mutate: func(doc *Document) {
				doc.PolicyStores["store-2"] = Store{}
			},
			wantErr: "want exactly one",
		},
		{
			name: "cedar syntax",
			mutate: func(doc *Document) {
				doc.PolicyStores["store-1"].Policies["broken"] = CedarPolicy{Content: "permit(principal"}
			},
			wantErr: "policy broken",
		},
		{
			name: "bad base64",
			mutate: func(doc *Document) {
				doc.PolicyStores["store-1"].Policies["broken"] = CedarPolicy{Content: "%%", Encoding: "base64"}
			},
			wantErr: "invalid base64",
		},
		{
			name: "unknown encoding",
			mutate: func(doc *Document) {
				doc.PolicyStores["store-1"].Policies["broken"] = CedarPolicy{Content: allowAdmins, Encoding: "gzip"}
			},
			wantErr: "unsupported policy encoding",
		},
		{
			name: "bad rego",
			mutate: func(doc *Document) {
				s := doc.PolicyStores["store-1"]
				s.Guards = append(s.Guards, Guard{Name: "broken", Rego: "package x\ndeny contains"})
				doc.PolicyStores["store-1"] = s
			},
			wantErr: "guard broken",
		},
		{
			name: "duplicate guard",
			mutate: func(doc *Document) {
				s := doc.PolicyStores["store-1"]
				s.Guards = append(s.Guards, Guard{Name: "network", Rego: networkGuard})
				doc.PolicyStores["store-1"] = s
			},
			wantErr: "duplicate guard network",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := testDocument()
			tt.mutate(doc)
			_, err := NewEngine(context.Background(), doc, testLogger())
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestAuthorize(t *testing.T) {
	eng := newTestEngine(t)

	admin := authz.EntityData{Type: "Jans::Role", ID: "admin"}
	tests := []struct {
		name       string
		principal  EntitySpec
		resource   EntitySpec
		action     string
		want       authz.Decision
		wantReason []string
	}{
		{
			name:       "admin reads",
			principal:  EntitySpec{Type: "Jans::User", ID: "u1", Parents: []authz.EntityData{admin}},
			resource:   EntitySpec{Type: "Jans::Doc", ID: "d1"},
			action:     `Jans::Action::"Read"`,
			want:       authz.Allow,
			wantReason: []string{"allow-admins"},
		},
		{
			name:       "non-admin",
			principal:  EntitySpec{Type: "Jans::User", ID: "u2"},
			resource:   EntitySpec{Type: "Jans::Doc", ID: "d1"},
			action:     `Jans::Action::"Read"`,
			want:       authz.Deny,
			wantReason: []string{},
		},
		{
			name:       "other action",
			principal:  EntitySpec{Type: "Jans::User", ID: "u1", Parents: []authz.EntityData{admin}},
			resource:   EntitySpec{Type: "Jans::Doc", ID: "d1"},
			action:     `Jans::Action::"Write"`,
			want:       authz.Deny,
			wantReason: []string{},
		},
		{
			name:       "blocked resource",
			principal:  EntitySpec{Type: "Jans::User", ID: "u1", Parents: []authz.EntityData{admin}},
			resource:   EntitySpec{Type: "Jans::Doc", ID: "d2", Attributes: map[string]any{"blocked": true}},
			action:     `Jans::Action::"Read"`,
			want:       authz.Deny,
			wantReason: []string{"deny-blocked"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entities, err := BuildEntities([]EntitySpec{tt.principal, tt.resource})
			if err != nil {
				t.Fatalf("BuildEntities() error = %v", err)
			}
			resp := eng.Authorize(Query{
				Principal: tt.principal.UID(),
				Action:    mustUID(t, tt.action),
				Resource:  tt.resource.UID(),
				Entities:  entities,
			})
			if resp.Decision != tt.want {
				t.Errorf("Decision = %s, want %s", resp.Decision, tt.want)
			}
			if !reflect.DeepEqual(resp.Diagnostics.Reason, tt.wantReason) {
				t.Errorf("Reason = %v, want %v", resp.Diagnostics.Reason, tt.wantReason)
			}
		})
	}
}

func TestGuard(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	tests := []struct {
		name         string
		input        *GuardInput
		wantAllowed  bool
		wantViolated []string
		wantWarnings int
	}{
		{
			name:        "clean",
			input:       &GuardInput{Kind: "signed", Principals: []EntityInput{{Type: "Jans::User", ID: "u"}}, Context: map[string]any{"ip": "10.0.0.2"}},
			wantAllowed: true,
		},
		{
			name:         "blocked address",
			input:        &GuardInput{Kind: "signed", Context: map[string]any{"ip": "10.0.0.1"}},
			wantAllowed:  false,
			wantViolated: []string{"network: blocked address"},
		},
		{
			name: "warning only",
			input: &GuardInput{Kind: "unsigned", Principals: []EntityInput{
				{Type: "Jans::User", ID: "a"}, {Type: "Jans::User", ID: "b"},
			}, Context: map[string]any{}},
			wantAllowed:  true,
			wantWarnings: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := eng.Guard(ctx, tt.input)
			if res.Allowed != tt.wantAllowed {
				t.Errorf("Allowed = %v, want %v", res.Allowed, tt.wantAllowed)
			}
			var got []string
			for _, v := range res.Violations {
				got = append(got, v.String())
			}
			if !reflect.DeepEqual(got, tt.wantViolated) {
				t.Errorf("Violations = %v, want %v", got, tt.wantViolated)
			}
			if len(res.Warnings) != tt.wantWarnings {
				t.Errorf("Warnings = %v, want %d", res.Warnings, tt.wantWarnings)
			}
			if !reflect.DeepEqual(res.Evaluated, []string{"network", "audit"}) {
				t.Errorf("Evaluated = %v", res.Evaluated)
			}
		})
	}
}

func TestLoad_KeepsPreviousOnError(t *testing.T) {
	eng := newTestEngine(t)

	bad := testDocument()
	bad.PolicyStores["store-1"].Policies["broken"] = CedarPolicy{Content: "permit("}
	if err := eng.Load(context.Background(), bad); err == nil {
		t.Fatal("expected error")
	}
	if got := len(eng.PolicyIDs()); got != 2 {
		t.Errorf("len(PolicyIDs()) = %d, want 2", got)
	}

	next := &Document{PolicyStores: map[string]Store{"store-2": {
		Policies: map[string]CedarPolicy{"all": {Content: "permit(principal, action, resource);"}},
	}}}
	if err := eng.Load(context.Background(), next); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if eng.StoreID() != "store-2" || len(eng.GuardNames()) != 0 {
		t.Errorf("store = %s, guards = %v", eng.StoreID(), eng.GuardNames())
	}
}

func TestTrustedIssuer(t *testing.T) {
	eng := newTestEngine(t)

	for _, iss := range []string{"https://idp.example.com", "https://idp.example.com/"} {
		id, ti, ok := eng.TrustedIssuer(iss)
		if !ok || id != "idp" || ti.Name != "IdP" {
			t.Errorf("TrustedIssuer(%q) = %q, %+v, %v", iss, id, ti, ok)
		}
	}
	if _, _, ok := eng.TrustedIssuer("https://other.example.com"); ok {
		t.Error("unexpected trusted issuer")
	}
	if !eng.HasTrustedIssuers() {
		t.Error("HasTrustedIssuers() = false")
	}
}

func TestParseEntityUID(t *testing.T) {
	tests := []struct {
		in       string
		wantType string
		wantID   string
		wantErr  bool
	}{
		{in: `Jans::Action::"Read"`, wantType: "Jans::Action", wantID: "Read"},
		{in: `User::"a \"quoted\" id"`, wantType: "User", wantID: `a "quoted" id`},
		{in: `Read`, wantErr: true},
		{in: `::"x"`, wantErr: true},
		{in: `Jans::Action::"unterminated`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			uid, err := ParseEntityUID(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", uid)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseEntityUID() error = %v", err)
			}
			if string(uid.Type) != tt.wantType || string(uid.ID) != tt.wantID {
				t.Errorf("uid = %v", uid)
			}
		})
	}
}

func TestBuildEntities(t *testing.T) {
	entities, err := BuildEntities([]EntitySpec{{
		Type: "Jans::User",
		ID:   "u1",
		Attributes: map[string]any{
			"exp":    float64(1740830400),
			"score":  1.5,
			"nick":   nil,
			"groups": []any{"a", nil, "b"},
			"addr":   map[string]any{"zip": "12345"},
		},
		Parents: []authz.EntityData{{Type: "Jans::Role", ID: "admin"}},
	}})
	if err != nil {
		t.Fatalf("BuildEntities() error = %v", err)
	}

	uid := cedar.NewEntityUID("Jans::User", "u1")
	e, ok := entities[uid]
	if !ok {
		t.Fatalf("entity %v missing", uid)
	}
	b, err := json.Marshal(e.Attributes)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var attrs map[string]any
	if err := json.Unmarshal(b, &attrs); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if attrs["exp"] != float64(1740830400) || attrs["score"] != "1.5" {
		t.Errorf("attrs = %v", attrs)
	}
	if _, ok := attrs["nick"]; ok {
		t.Error("null attribute was kept")
	}
	if groups, _ := attrs["groups"].([]any); len(groups) != 2 {
		t.Errorf("groups = %v", attrs["groups"])
	}

	if _, err := BuildEntities([]EntitySpec{{Type: "Jans::User"}}); err == nil {
		t.Error("expected error for empty id")
	}
}

func TestParseContext(t *testing.T) {
	_, values, err := ParseContext(nil)
	if err != nil || len(values) != 0 {
		t.Errorf("ParseContext(nil) = %v, %v", values, err)
	}
	_, values, err = ParseContext(json.RawMessage(`{"ip":"10.0.0.1","n":2}`))
	if err != nil || values["ip"] != "10.0.0.1" {
		t.Errorf("ParseContext() = %v, %v", values, err)
	}
	if _, _, err := ParseContext(json.RawMessage(`[1,2]`)); err == nil {
		t.Error("expected error for array context")
	}
}
