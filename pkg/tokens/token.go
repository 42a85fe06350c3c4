package tokens

import (
	"fmt"
	"sort"

	"github.com/golang-jwt/jwt/v5"
)

// Kind names the role a token plays in a request.
type Kind string

const (
	AccessToken   Kind = "access_token"
	IDToken       Kind = "id_token"
	UserinfoToken Kind = "userinfo_token"
)

// ParseKind maps a request token name to its Kind.
func ParseKind(name string) (Kind, error) {
	switch k := Kind(name); k {
	case AccessToken, IDToken, UserinfoToken:
		return k, nil
	}
	return "", &UnknownKindError{Name: name}
}

// ClaimRequirements lists the registered claims a token must carry.
type ClaimRequirements struct {
	Iss bool
	Aud bool
	Sub bool
	Jti bool
	Iat bool
	Exp bool
	Nbf bool
}

// RequirementsFor returns the default requirements of a token kind.
func RequirementsFor(kind Kind) ClaimRequirements {
	switch kind {
	case AccessToken:
		return ClaimRequirements{Iss: true, Jti: true, Exp: true}
	case IDToken:
		return ClaimRequirements{Iss: true, Aud: true, Sub: true, Iat: true, Exp: true}
	case UserinfoToken:
		return ClaimRequirements{Iss: true, Aud: true, Sub: true}
	}
	return ClaimRequirements{}
}

// names returns the required claim names in a stable order.
func (r ClaimRequirements) names() []string {
	var out []string
	for _, c := range []struct {
		name string
		on   bool
	}{
		{"iss", r.Iss}, {"aud", r.Aud}, {"sub", r.Sub}, {"jti", r.Jti},
		{"iat", r.Iat}, {"exp", r.Exp}, {"nbf", r.Nbf},
	} {
		if c.on {
			out = append(out, c.name)
		}
	}
	return out
}

// Check returns a *MissingClaimError for the first required claim absent
// from claims.
func (r ClaimRequirements) Check(claims jwt.MapClaims) error {
	for _, name := range r.names() {
		if v, ok := claims[name]; !ok || v == nil {
			return &MissingClaimError{Claim: name}
		}
	}
	return nil
}

// Token is a decoded JWT.
type Token struct {
	Kind      Kind
	Raw       string
	Algorithm string
	KeyID     string
	Claims    jwt.MapClaims
	Verified  bool
}

// Claim returns a claim value.
func (t *Token) Claim(name string) (any, bool) {
	v, ok := t.Claims[name]
	return v, ok && v != nil
}

// String returns a claim as a string. Non-string values are formatted.
func (t *Token) String(name string) string {
	v, ok := t.Claim(name)
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Strings returns a claim holding a string or a list of strings. A string
// holding spaces is not split.
func (t *Token) Strings(name string) []string {
	v, ok := t.Claim(name)
	if !ok {
		return nil
	}
	switch val := v.(type) {
	case string:
		return []string{val}
	case []string:
		return val
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Issuer returns the iss claim.
func (t *Token) Issuer() string { return t.String("iss") }

// Subject returns the sub claim.
func (t *Token) Subject() string { return t.String("sub") }

// Audience returns the aud claim as a list.
func (t *Token) Audience() []string { return t.Strings("aud") }

// HasAudience reports whether aud contains s.
func (t *Token) HasAudience(s string) bool {
	for _, a := range t.Audience() {
		if a == s {
			return true
		}
	}
	return false
}

// ClaimNames returns the claim names in sorted order.
func (t *Token) ClaimNames() []string {
	names := make([]string, 0, len(t.Claims))
	for k := range t.Claims {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Select returns the listed claims that are present, keyed by name.
func (t *Token) Select(names []string) map[string]any {
	out := make(map[string]any, len(names))
	for _, n := range names {
		if v, ok := t.Claim(n); ok {
			out[n] = v
		}
	}
	return out
}
