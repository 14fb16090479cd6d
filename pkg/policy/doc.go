// Package policy gates deployment plans with Open Policy Agent.
//
// Policies are Rego modules defining a `deny` set in their package. Each
// element is either a message string or an object with "message" and
// optionally "unit" and "severity". The input document is
//
//	{
//	  "network": "sepolia",
//	  "plan": {
//	    "id": "...",
//	    "summary": {"total": 4, "to_deploy": 3, "to_redeploy": 0, "to_skip": 1},
//	    "steps": [
//	      {"position": 0, "level": 0, "unit": "WebAuthn256r1", "artifact": "WebAuthn256r1",
//	       "action": "deploy", "forced": false, "non_critical": false,
//	       "args": [{"value": "0x5FF1..."}, {"depends_on": "Other"}]}
//	    ]
//	  }
//	}
//
// Violations with severity error or critical deny the plan; info and
// warning violations are logged and reported only.
//
// # Built-in Policies
//
//   - zero-address-args: a literal 0x000...0 argument on a unit that will be
//     submitted (error)
//   - unit-naming: unit names that do not look like contract names (warning)
//   - redeploy-notice: every ledger entry the plan replaces (info)
//
// # Usage
//
//	eng, err := policy.NewEngine(logger)
//	if err != nil {
//	    return err
//	}
//	if err := eng.LoadPolicies(ctx, []string{"policies"}); err != nil {
//	    return err
//	}
//	if _, err := eng.Enforce(ctx, plan); err != nil {
//	    return err // engine.ErrCodePolicyDenied
//	}
//
// User policy files may start with a comment block; its text becomes the
// description and a "# severity: warning" line overrides the default
// severity of error.
package policy
