// Package policy evaluates authorization requests against a policy store.
//
// A policy store document holds Cedar policies, trusted token issuers and
// optional Rego guards:
//
//	{
//	  "cedar_version": "v4.0.0",
//	  "policy_stores": {
//	    "store-1": {
//	      "name": "example",
//	      "policies": {
//	        "allow-admins": {"policy_content": "permit(principal in Jans::Role::\"admin\", action, resource);"}
//	      },
//	      "trusted_issuers": {
//	        "idp": {"name": "IdP", "openid_configuration_endpoint": "https://idp.example.com/.well-known/openid-configuration"}
//	      },
//	      "guards": [
//	        {"name": "business-hours", "rego": "package guards.hours\n..."}
//	      ]
//	    }
//	  }
//	}
//
// Cedar policies are evaluated with cedar-go, one principal at a time. Guards
// are Rego modules whose deny set is evaluated with OPA before any Cedar
// policy; a violation of severity error or critical denies the request for
// every principal.
//
// # Usage
//
//	loader := policy.NewLoader(logger)
//	doc, err := loader.Load(cfg.PolicyStore)
//	if err != nil {
//	    return err
//	}
//	eng, err := policy.NewEngine(ctx, doc, logger)
//
// Stores read from files can be watched; Loader.Watch reparses the file on
// change and Engine.Load swaps the compiled store without blocking readers
// for longer than a pointer swap.
package policy
