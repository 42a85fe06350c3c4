// Package engine provides the Cedarling authorization engine.
//
// # Overview
//
// A Cedarling evaluates Cedar policies from one policy store against requests
// whose principals are either derived from JWTs (Authorize) or supplied
// directly (AuthorizeUnsigned). Every request goes through the same phases:
//
//  1. Tokens - Decode and validate the access, id and userinfo tokens
//  2. Entities - Build workload, user, role, issuer and resource entities
//  3. Guards - Evaluate the store's Rego guards against the request
//  4. Policies - Evaluate each principal against the Cedar policies
//  5. Combine - Reduce per-principal decisions to one decision
//  6. Log - Record the decision in the configured decision log
//
// # Combining Decisions
//
// Without a principal rule, a signed request is allowed when every principal
// enabled by the use_workload_principal and use_user_principal flags is
// allowed, and an unsigned request is allowed when it has principals and all
// of them are allowed.
//
// A principal rule is a JSON-logic expression over principal names:
//
//	{"or": [{"===": [{"var": "Jans::Workload"}, "ALLOW"]},
//	        {"===": [{"var": "Jans::User"}, "ALLOW"]}]}
//
// It is compiled to CEL once, at construction.
//
// # Error Classification
//
// Failed requests return an *AuthorizeError whose Type names the phase that
// failed:
//
//	if IsAuthorizeError(err, ErrorTypeProcessTokens) {
//	    // reject the caller's tokens
//	}
//
// Configurations the engine cannot run with fail New with a *ConfigError.
//
// # Example Usage
//
//	cfg := config.Default()
//	cfg.ApplicationName = "issues"
//	cfg.PolicyStore = config.PolicyStoreConfig{Source: config.PolicyStoreFileJSON, Path: "store.json"}
//
//	c, err := engine.New(ctx, &cfg)
//	if err != nil {
//	    return err
//	}
//	defer c.Close(ctx)
//
//	res, err := c.Authorize(ctx, authz.Request{
//	    Tokens:   map[string]string{"access_token": at, "id_token": it},
//	    Action:   `Jans::Action::"Read"`,
//	    Resource: authz.EntityData{Type: "Jans::Issue", ID: "42"},
//	})
//
// # Thread Safety
//
// A Cedarling is safe for concurrent use. File policy stores are reloaded in
// the background; requests see either the old or the new store, never a mix.
package engine
