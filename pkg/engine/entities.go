package engine

import (
	"fmt"
	"sort"

	"github.com/openfroyo/cedarbridge/pkg/authz"
	"github.com/openfroyo/cedarbridge/pkg/config"
	"github.com/openfroyo/cedarbridge/pkg/policy"
	"github.com/openfroyo/cedarbridge/pkg/tokens"
)

// defaultRoleClaim is read when the token issuer names no role claim.
const defaultRoleClaim = "role"

// principal is one entity evaluated as a Cedar principal.
type principal struct {
	// key names the principal in results and principal rules.
	key  string
	spec policy.EntitySpec
}

// entitySet collects the entities of one request. A later entity with the
// same reference replaces an earlier one.
type entitySet struct {
	specs []policy.EntitySpec
	index map[string]int
}

func newEntitySet() *entitySet {
	return &entitySet{index: map[string]int{}}
}

func (s *entitySet) add(spec policy.EntitySpec) {
	uid := authz.EntityData{Type: spec.Type, ID: spec.ID}.UID()
	if i, ok := s.index[uid]; ok {
		s.specs[i] = spec
		return
	}
	s.index[uid] = len(s.specs)
	s.specs = append(s.specs, spec)
}

// signedPrincipals are the principals derived from the tokens of a signed
// request.
type signedPrincipals struct {
	workload *principal
	user     *principal
	// userClaims merges the id and userinfo token claims.
	userClaims map[string]any
}

// buildSignedEntities derives the workload, user, role and issuer entities
// from decoded tokens.
func (c *Cedarling) buildSignedEntities(toks map[tokens.Kind]*tokens.Token, set *entitySet) (*signedPrincipals, error) {
	names := c.cfg.EntityBuilder.EntityNames
	out := &signedPrincipals{}

	for _, kind := range []tokens.Kind{tokens.AccessToken, tokens.IDToken, tokens.UserinfoToken} {
		tok, ok := toks[kind]
		if !ok {
			continue
		}
		if err := c.addIssuer(tok, set); err != nil {
			return nil, err
		}
	}

	access := toks[tokens.AccessToken]
	if c.cfg.EntityBuilder.BuildWorkload && access != nil {
		id := access.String("client_id")
		if id == "" {
			if aud := access.Audience(); len(aud) > 0 {
				id = aud[0]
			}
		}
		if id == "" {
			return nil, newAuthorizeError(ErrorTypeAccessTokenEntities,
				"failed to create workload entity", fmt.Errorf("access token has neither client_id nor aud"))
		}
		out.workload = &principal{
			key: names.Workload,
			spec: policy.EntitySpec{
				Type:       names.Workload,
				ID:         id,
				Attributes: claimAttributes(access),
			},
		}
		set.add(out.workload.spec)
	}

	if !c.cfg.EntityBuilder.BuildUser {
		return out, nil
	}

	idTok := toks[tokens.IDToken]
	userinfo := toks[tokens.UserinfoToken]
	if err := c.checkTrust(access, idTok, userinfo); err != nil {
		return nil, err
	}
	if idTok == nil && userinfo == nil {
		return out, nil
	}

	out.userClaims = map[string]any{}
	for _, tok := range []*tokens.Token{idTok, userinfo} {
		if tok == nil {
			continue
		}
		for k, v := range claimAttributes(tok) {
			out.userClaims[k] = v
		}
	}

	sub := ""
	if idTok != nil {
		sub = idTok.Subject()
	}
	if sub == "" && userinfo != nil {
		sub = userinfo.Subject()
	}
	if sub == "" {
		return nil, newAuthorizeError(ErrorTypeCreateUserEntity,
			"failed to create user entity", fmt.Errorf("no sub claim in id or userinfo token"))
	}

	roles, err := c.tokenRoles(userinfo, idTok, access)
	if err != nil {
		return nil, err
	}
	parents := make([]authz.EntityData, 0, len(roles))
	for _, r := range roles {
		role := authz.EntityData{Type: names.Role, ID: r}
		parents = append(parents, role)
		set.add(policy.EntitySpec{Type: role.Type, ID: role.ID})
	}

	out.user = &principal{
		key: names.User,
		spec: policy.EntitySpec{
			Type:       names.User,
			ID:         sub,
			Attributes: out.userClaims,
			Parents:    parents,
		},
	}
	set.add(out.user.spec)
	return out, nil
}

// addIssuer rejects tokens from issuers the policy store does not trust and
// adds the issuer entity of trusted ones.
func (c *Cedarling) addIssuer(tok *tokens.Token, set *entitySet) error {
	if !c.policies.HasTrustedIssuers() {
		return nil
	}
	iss := tok.Issuer()
	id, ti, ok := c.policies.TrustedIssuer(iss)
	if !ok {
		return newAuthorizeError(ErrorTypeProcessTokens,
			fmt.Sprintf("failed to process %s", tok.Kind), fmt.Errorf("untrusted issuer %q", iss))
	}
	set.add(policy.EntitySpec{
		Type: c.cfg.EntityBuilder.EntityNames.Iss,
		ID:   id,
		Attributes: map[string]any{
			"name":   ti.Name,
			"issuer": iss,
		},
	})
	return nil
}

// checkTrust enforces the id token trust mode.
func (c *Cedarling) checkTrust(access, idTok, userinfo *tokens.Token) error {
	if c.cfg.Authorization.IDTokenTrustMode != config.TrustModeStrict {
		return nil
	}
	if idTok != nil && access != nil {
		if clientID := access.String("client_id"); clientID != "" && !idTok.HasAudience(clientID) {
			return newAuthorizeError(ErrorTypeCreateIDTokenEntity, "id token is not trusted",
				fmt.Errorf("audience %v does not include access token client_id %q", idTok.Audience(), clientID))
		}
	}
	if userinfo != nil && idTok != nil && userinfo.Subject() != idTok.Subject() {
		return newAuthorizeError(ErrorTypeCreateUserinfoTokenEntity, "userinfo token is not trusted",
			fmt.Errorf("sub %q does not match id token sub %q", userinfo.Subject(), idTok.Subject()))
	}
	return nil
}

// tokenRoles reads the role claim of the first token that carries it. The
// claim name comes from the token's trusted issuer.
func (c *Cedarling) tokenRoles(toks ...*tokens.Token) ([]string, error) {
	for _, tok := range toks {
		if tok == nil {
			continue
		}
		claim := defaultRoleClaim
		if _, ti, ok := c.policies.TrustedIssuer(tok.Issuer()); ok && ti.RoleClaim != "" {
			claim = ti.RoleClaim
		}
		v, ok := tok.Claim(claim)
		if !ok {
			continue
		}
		roles, err := roleList(v)
		if err != nil {
			return nil, newAuthorizeError(ErrorTypeRoleEntity,
				fmt.Sprintf("failed to read %s claim of %s", claim, tok.Kind), err)
		}
		return roles, nil
	}
	return nil, nil
}

// buildUnsignedPrincipals adds the supplied principals and their roles.
func (c *Cedarling) buildUnsignedPrincipals(in []authz.EntityData, set *entitySet) ([]principal, error) {
	names := c.cfg.EntityBuilder.EntityNames
	src := c.cfg.EntityBuilder.UnsignedRoleIDSrc
	if src == "" {
		src = config.DefaultUnsignedRoleIDSrc
	}

	out := make([]principal, 0, len(in))
	for i, p := range in {
		if p.Type == "" || p.ID == "" {
			return nil, newAuthorizeError(ErrorTypeEntities,
				fmt.Sprintf("invalid principal %d", i), fmt.Errorf("type and id are required"))
		}

		var parents []authz.EntityData
		if v, ok := p.Attributes[src]; ok && v != nil {
			roles, err := roleList(v)
			if err != nil {
				return nil, newAuthorizeError(ErrorTypeRoleEntity,
					fmt.Sprintf("failed to read %s attribute of %s", src, p.UID()), err)
			}
			for _, r := range roles {
				role := authz.EntityData{Type: names.Role, ID: r}
				parents = append(parents, role)
				set.add(policy.EntitySpec{Type: role.Type, ID: role.ID})
			}
		}

		spec := policy.EntitySpec{
			Type:       p.Type,
			ID:         p.ID,
			Attributes: p.Attributes,
			Parents:    parents,
		}
		set.add(spec)
		out = append(out, principal{key: p.UID(), spec: spec})
	}
	return out, nil
}

// roleList accepts a role name or a list of role names. Duplicates are
// dropped and the result is sorted.
func roleList(v any) ([]string, error) {
	var raw []string
	switch val := v.(type) {
	case string:
		raw = []string{val}
	case []string:
		raw = val
	case []any:
		for _, item := range val {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("role %v is %T, want string", item, item)
			}
			raw = append(raw, s)
		}
	default:
		return nil, fmt.Errorf("roles are %T, want string or list of strings", v)
	}

	seen := make(map[string]bool, len(raw))
	roles := make([]string, 0, len(raw))
	for _, r := range raw {
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		roles = append(roles, r)
	}
	sort.Strings(roles)
	return roles, nil
}

// claimAttributes copies the non-null claims of a token.
func claimAttributes(tok *tokens.Token) map[string]any {
	attrs := make(map[string]any, len(tok.Claims))
	for k, v := range tok.Claims {
		if v != nil {
			attrs[k] = v
		}
	}
	return attrs
}
